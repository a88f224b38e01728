package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	log "github.com/sirupsen/logrus"

	"github.com/iliyamo/raffle-ledger/internal/notify"
)

// Consumer drains NotificationQueue into a notify.Sink.
type Consumer struct {
	url     string
	sink    notify.Sink
	timeout time.Duration
	log     log.FieldLogger
}

// NewConsumer builds a consumer delivering to sink with a per-message
// timeout.
func NewConsumer(url string, sink notify.Sink, timeout time.Duration, logger log.FieldLogger) *Consumer {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Consumer{url: url, sink: sink, timeout: timeout, log: logger.WithField("component", "queue.consumer")}
}

// Run connects to the broker and consumes until ctx is cancelled.  Lost
// connections are re-dialed with exponential backoff capped at 30s.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(c.url)
		if err != nil {
			c.log.WithError(err).Warnf("failed to dial broker; retrying in %s", backoff)
			if !sleep(ctx, backoff) {
				return nil
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second // reset after successful connect

		err = c.consumeLoop(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return nil
		}
		c.log.WithError(err).Warn("consume loop ended; reconnecting")
		if !sleep(ctx, 2*time.Second) {
			return nil
		}
	}
}

func (c *Consumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(20, 0, false); err != nil {
		c.log.WithError(err).Warn("set QoS failed")
	}
	if err := declare(ch); err != nil {
		return err
	}
	msgs, err := ch.Consume(NotificationQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := c.handle(ctx, d.Body); err != nil {
				c.log.WithError(err).Warn("handle message failed")
				_ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
				continue
			}
			_ = d.Ack(false)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, body []byte) error {
	msg, err := Decode(body)
	if err != nil {
		return err
	}
	sendCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.sink.Send(sendCtx, msg)
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
