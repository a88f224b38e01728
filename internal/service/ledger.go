// Package service holds the raffle ledger: input validation, ticket state
// transitions, post-commit notifications and the expiry sweep.
package service

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/iliyamo/raffle-ledger/internal/metrics"
	"github.com/iliyamo/raffle-ledger/internal/model"
	"github.com/iliyamo/raffle-ledger/internal/notify"
	"github.com/iliyamo/raffle-ledger/internal/repository"
	"github.com/iliyamo/raffle-ledger/internal/utils"
)

// MaxFieldLen bounds holder name and contact, in characters.
const MaxFieldLen = 255

// TicketStore is the persistence the ledger needs.  *repository.TicketRepo
// satisfies it.
type TicketStore interface {
	ListAll(ctx context.Context) ([]model.TicketStatus, error)
	ListActive(ctx context.Context) ([]model.Ticket, error)
	CountByStatus(ctx context.Context) (map[model.Status]int, error)
	Reserve(ctx context.Context, numbers []int, holder model.Holder, at time.Time) error
	Approve(ctx context.Context, numbers []int) ([]model.Ticket, error)
	Release(ctx context.Context, numbers []int) (int64, error)
	ExpireReservedBefore(ctx context.Context, cutoff time.Time) ([]int, error)
}

// Notifier accepts messages without blocking.  *notify.Dispatcher
// satisfies it.
type Notifier interface {
	Dispatch(msg notify.Message) bool
}

// LedgerConfig carries the business settings of one raffle.
type LedgerConfig struct {
	ReservationTTL time.Duration
	TicketPrice    decimal.Decimal
	RaffleName     string
}

// Ledger coordinates every ticket state transition.
type Ledger struct {
	store    TicketStore
	notifier Notifier
	cfg      LedgerConfig
	log      log.FieldLogger

	// Now is the clock used for reservation stamps and expiry cutoffs.
	Now func() time.Time
}

// NewLedger wires a ledger.  notifier may be nil, in which case no
// notifications are produced.
func NewLedger(store TicketStore, notifier Notifier, cfg LedgerConfig, logger log.FieldLogger) *Ledger {
	if store == nil {
		panic("nil store passed to NewLedger")
	}
	if cfg.ReservationTTL <= 0 {
		cfg.ReservationTTL = 12 * time.Hour
	}
	return &Ledger{
		store:    store,
		notifier: notifier,
		cfg:      cfg,
		log:      logger.WithField("component", "ledger"),
		Now:      time.Now,
	}
}

// Summary is the per-status count of the pool.
type Summary struct {
	Available int `json:"available"`
	Reserved  int `json:"reserved"`
	Sold      int `json:"sold"`
	Total     int `json:"total"`
}

// ReserveRequest is a reservation as submitted by a buyer.  Numbers and
// Selection are merged.
type ReserveRequest struct {
	Numbers   []int
	Selection string
	Name      string
	Contact   string
}

// ReserveResult describes a committed reservation.
type ReserveResult struct {
	Numbers   []int
	AmountDue string // empty when no ticket price is configured
}

// ListAll returns the status of every ticket ordered by number.
func (l *Ledger) ListAll(ctx context.Context) ([]model.TicketStatus, error) {
	all, err := l.store.ListAll(ctx)
	if err != nil {
		return nil, &StorageError{Op: "list tickets", Err: err}
	}
	return all, nil
}

// ListActive returns reserved and sold tickets, newest reservation first.
func (l *Ledger) ListActive(ctx context.Context) ([]model.Ticket, error) {
	active, err := l.store.ListActive(ctx)
	if err != nil {
		return nil, &StorageError{Op: "list reservations", Err: err}
	}
	return active, nil
}

// Groups returns active tickets grouped by holder.  status may be empty,
// "reserved" or "sold".
func (l *Ledger) Groups(ctx context.Context, status string) ([]model.ReservationGroup, error) {
	s := model.Status(strings.ToLower(strings.TrimSpace(status)))
	if s != "" && s != model.StatusReserved && s != model.StatusSold {
		return nil, invalid("status must be reserved or sold")
	}
	active, err := l.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	return model.FilterGroups(model.GroupReservations(active), s), nil
}

// Summary counts tickets per status and refreshes the status gauge.
func (l *Ledger) Summary(ctx context.Context) (Summary, error) {
	counts, err := l.store.CountByStatus(ctx)
	if err != nil {
		return Summary{}, &StorageError{Op: "count tickets", Err: err}
	}
	publishCounts(counts)
	s := Summary{
		Available: counts[model.StatusAvailable],
		Reserved:  counts[model.StatusReserved],
		Sold:      counts[model.StatusSold],
	}
	s.Total = s.Available + s.Reserved + s.Sold
	return s, nil
}

// Reserve atomically reserves every requested ticket for one holder or
// none of them.  A lost race surfaces as *repository.ConflictError.
func (l *Ledger) Reserve(ctx context.Context, req ReserveRequest) (ReserveResult, error) {
	start := time.Now()
	numbers, holder, err := validateReserve(req)
	if err != nil {
		metrics.ObserveOperation("reserve", "invalid", time.Since(start))
		return ReserveResult{}, err
	}

	err = l.store.Reserve(ctx, numbers, holder, l.Now())
	switch {
	case errors.Is(err, repository.ErrConflict):
		metrics.ObserveOperation("reserve", "conflict", time.Since(start))
		return ReserveResult{}, err
	case err != nil:
		metrics.ObserveOperation("reserve", "error", time.Since(start))
		return ReserveResult{}, &StorageError{Op: "reserve", Err: err}
	}
	metrics.ObserveOperation("reserve", "ok", time.Since(start))
	metrics.TicketsTransitioned("reserve", len(numbers))

	res := ReserveResult{Numbers: numbers, AmountDue: l.amountDue(len(numbers))}
	l.log.WithFields(log.Fields{"holder": holder.Name, "count": len(numbers)}).Info("tickets reserved")
	l.notify(notify.KindReserved, holder, numbers)
	return res, nil
}

// Approve marks the reserved tickets among numbers as sold and returns how
// many changed.  Each distinct holder gets one approval notice.
func (l *Ledger) Approve(ctx context.Context, numbers []int) (int, error) {
	start := time.Now()
	nums, err := validateAdmin(numbers)
	if err != nil {
		metrics.ObserveOperation("approve", "invalid", time.Since(start))
		return 0, err
	}
	approved, err := l.store.Approve(ctx, nums)
	if err != nil {
		metrics.ObserveOperation("approve", "error", time.Since(start))
		return 0, &StorageError{Op: "approve", Err: err}
	}
	metrics.ObserveOperation("approve", "ok", time.Since(start))
	metrics.TicketsTransitioned("approve", len(approved))

	holders, byHolder := groupByHolder(approved)
	for _, h := range holders {
		l.notify(notify.KindApproved, h, byHolder[h])
	}
	if len(approved) > 0 {
		l.log.WithFields(log.Fields{"count": len(approved), "holders": len(holders)}).Info("tickets approved")
	}
	return len(approved), nil
}

// Release returns the listed tickets to the pool and reports how many
// changed.
func (l *Ledger) Release(ctx context.Context, numbers []int) (int64, error) {
	start := time.Now()
	nums, err := validateAdmin(numbers)
	if err != nil {
		metrics.ObserveOperation("release", "invalid", time.Since(start))
		return 0, err
	}
	changed, err := l.store.Release(ctx, nums)
	if err != nil {
		metrics.ObserveOperation("release", "error", time.Since(start))
		return 0, &StorageError{Op: "release", Err: err}
	}
	metrics.ObserveOperation("release", "ok", time.Since(start))
	metrics.TicketsTransitioned("release", int(changed))
	if changed > 0 {
		l.log.WithField("count", changed).Info("tickets released")
	}
	return changed, nil
}

// ExpireStale releases reservations older than the configured TTL and
// returns the released numbers.
func (l *Ledger) ExpireStale(ctx context.Context) ([]int, error) {
	start := time.Now()
	cutoff := l.Now().Add(-l.cfg.ReservationTTL)
	expired, err := l.store.ExpireReservedBefore(ctx, cutoff)
	if err != nil {
		metrics.ObserveOperation("expire", "error", time.Since(start))
		return nil, &StorageError{Op: "expire", Err: err}
	}
	metrics.ObserveOperation("expire", "ok", time.Since(start))
	metrics.TicketsTransitioned("expire", len(expired))
	return expired, nil
}

func (l *Ledger) amountDue(count int) string {
	if !l.cfg.TicketPrice.IsPositive() {
		return ""
	}
	return l.cfg.TicketPrice.Mul(decimal.NewFromInt(int64(count))).StringFixed(2)
}

func (l *Ledger) notify(kind notify.Kind, h model.Holder, numbers []int) {
	if l.notifier == nil {
		return
	}
	msg := notify.NewMessage(kind, l.cfg.RaffleName, h.Name, h.Contact, numbers)
	msg.AmountDue = l.amountDue(len(numbers))
	if !l.notifier.Dispatch(msg) {
		l.log.WithFields(log.Fields{"kind": kind, "holder": h.Name}).Warn("notification not queued")
	}
}

func validateReserve(req ReserveRequest) ([]int, model.Holder, error) {
	var fromSelection []int
	if strings.TrimSpace(req.Selection) != "" {
		sel, err := utils.ParseSelection(req.Selection, model.TicketCount)
		if err != nil {
			return nil, model.Holder{}, invalid("%s", err.Error())
		}
		fromSelection = sel
	}
	numbers := utils.Normalize(req.Numbers, fromSelection)
	if len(numbers) == 0 {
		return nil, model.Holder{}, invalid("numbers must be a non-empty list")
	}
	for _, n := range numbers {
		if !model.ValidNumber(n) {
			return nil, model.Holder{}, invalid("ticket %d is outside 1-%d", n, model.TicketCount)
		}
	}

	h := model.Holder{Name: strings.TrimSpace(req.Name), Contact: strings.TrimSpace(req.Contact)}
	switch {
	case h.Name == "":
		return nil, model.Holder{}, invalid("name is required")
	case h.Contact == "":
		return nil, model.Holder{}, invalid("contact is required")
	case utf8.RuneCountInString(h.Name) > MaxFieldLen:
		return nil, model.Holder{}, invalid("name exceeds %d characters", MaxFieldLen)
	case utf8.RuneCountInString(h.Contact) > MaxFieldLen:
		return nil, model.Holder{}, invalid("contact exceeds %d characters", MaxFieldLen)
	}
	return numbers, h, nil
}

// validateAdmin deduplicates an approve/release batch.  Numbers outside
// the pool are dropped; they cannot match a row.
func validateAdmin(numbers []int) ([]int, error) {
	if len(numbers) == 0 {
		return nil, invalid("numbers must be a non-empty list")
	}
	out := make([]int, 0, len(numbers))
	for _, n := range utils.Normalize(numbers) {
		if model.ValidNumber(n) {
			out = append(out, n)
		}
	}
	return out, nil
}

// groupByHolder buckets tickets by holder, keeping first-appearance order.
func groupByHolder(tickets []model.Ticket) ([]model.Holder, map[model.Holder][]int) {
	var order []model.Holder
	by := make(map[model.Holder][]int)
	for _, t := range tickets {
		h, ok := t.Holder()
		if !ok {
			continue
		}
		if _, seen := by[h]; !seen {
			order = append(order, h)
		}
		by[h] = append(by[h], t.Number)
	}
	return order, by
}

func publishCounts(counts map[model.Status]int) {
	m := make(map[string]int, len(counts))
	for s, n := range counts {
		m[string(s)] = n
	}
	metrics.SetTicketCounts(m)
}
