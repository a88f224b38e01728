package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/smtp"
	"strconv"
	"strings"

	"github.com/domodwyer/mailyak/v3"
	log "github.com/sirupsen/logrus"

	"github.com/iliyamo/raffle-ledger/internal/config"
	"github.com/iliyamo/raffle-ledger/internal/model"
)

var mailTemplates = template.Must(template.New("mail").Parse(`
{{define "ticket.reserved"}}<div style="font-family: Arial, sans-serif; padding: 20px; border: 1px solid #008f39; border-radius: 5px;">
  <h2 style="color: #008f39;">Hello {{.Name}}!</h2>
  <p>You have reserved the following tickets:</p>
  <h3 style="background-color: #f0f0f0; padding: 10px; display: inline-block;">{{.Labels}}</h3>
  {{if .AmountDue}}<p><strong>Amount due:</strong> {{.AmountDue}}</p>{{end}}
  <p><strong>Status:</strong> pending payment</p>
  <p>Please complete your payment and send the receipt to the organizer so the purchase can be confirmed.</p>
  <hr>
  <small>If you did not make this reservation, please ignore this email.</small>
</div>{{end}}
{{define "ticket.approved"}}<div style="font-family: Arial, sans-serif; padding: 20px; border: 1px solid #008f39; border-radius: 5px;">
  <h2 style="color: #008f39;">Thank you {{.Name}}!</h2>
  <p>Your payment was confirmed and your tickets are officially secured.</p>
  <h3 style="background-color: #d4edda; padding: 10px; display: inline-block; color: #155724;">{{.Labels}}</h3>
  <p><strong>Status:</strong> PAID / APPROVED</p>
  <p>Good luck!</p>
  <hr>
  <small>{{.Raffle}}</small>
</div>{{end}}`))

// Mailer sends notification emails through an SMTP relay.  Messages whose
// contact is not an email address are skipped silently.
type Mailer struct {
	addr     string
	auth     smtp.Auth
	from     string
	fromName string
	log      log.FieldLogger
}

// NewMailer builds a Mailer from SMTP settings.
func NewMailer(cfg config.SMTP, logger log.FieldLogger) *Mailer {
	var auth smtp.Auth
	if cfg.User != "" {
		auth = smtp.PlainAuth("", cfg.User, cfg.Pass, cfg.Host)
	}
	return &Mailer{
		addr:     cfg.Host + ":" + strconv.Itoa(cfg.Port),
		auth:     auth,
		from:     cfg.From,
		fromName: cfg.FromName,
		log:      logger.WithField("component", "notify.mailer"),
	}
}

// Send renders msg and hands it to the SMTP relay.  The SMTP exchange is
// not context aware; the dispatcher's timeout only bounds how long the
// worker waits.
func (m *Mailer) Send(ctx context.Context, msg Message) error {
	if !IsEmail(msg.Contact) {
		m.log.WithField("numbers", msg.Numbers).Debug("contact is not an email address; skipping")
		return nil
	}
	subject, body, err := Render(msg)
	if err != nil {
		return err
	}

	mail := mailyak.New(m.addr, m.auth)
	mail.To(msg.Contact)
	mail.From(m.from)
	mail.FromName(m.fromName)
	mail.Subject(subject)
	mail.HTML().Set(body)

	done := make(chan error, 1)
	go func() { done <- mail.Send() }()
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("send %s to %s: %w", msg.Kind, msg.Contact, err)
		}
		m.log.WithFields(log.Fields{"kind": msg.Kind, "numbers": msg.Numbers}).Info("notification email sent")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Render returns the subject line and HTML body for msg.
func Render(msg Message) (string, string, error) {
	var subject string
	switch msg.Kind {
	case KindReserved:
		subject = "Reservation confirmation - " + msg.Raffle
	case KindApproved:
		subject = "Payment approved! - " + msg.Raffle
	default:
		return "", "", fmt.Errorf("no template for %q", msg.Kind)
	}
	var buf bytes.Buffer
	err := mailTemplates.ExecuteTemplate(&buf, string(msg.Kind), struct {
		Message
		Labels string
	}{msg, strings.Join(model.FormatNumbers(msg.Numbers), ", ")})
	if err != nil {
		return "", "", err
	}
	return subject, strings.TrimSpace(buf.String()), nil
}

// LogSink records notifications in the log instead of delivering them.  It
// stands in for the mailer when no SMTP relay is configured.
type LogSink struct {
	Log log.FieldLogger
}

// Holder contacts are only written at debug level.
func (s LogSink) Send(_ context.Context, msg Message) error {
	entry := s.Log.WithFields(log.Fields{
		"component": "notify.log",
		"kind":      msg.Kind,
		"numbers":   model.FormatNumbers(msg.Numbers),
	})
	entry.Info("notification (no delivery channel configured)")
	entry.WithField("contact", msg.Contact).Debug("notification recipient")
	return nil
}
