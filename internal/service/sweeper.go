package service

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"
)

// Sweeper periodically returns stale reservations to the pool.
type Sweeper struct {
	ledger   *Ledger
	interval time.Duration
	log      log.FieldLogger
}

// NewSweeper builds a sweeper that runs every interval (default one hour).
func NewSweeper(ledger *Ledger, interval time.Duration, logger log.FieldLogger) *Sweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Sweeper{ledger: ledger, interval: interval, log: logger.WithField("component", "sweeper")}
}

// Run sweeps once immediately and then on every tick until ctx is done.
// Failed sweeps are logged and retried on the next tick.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if _, err := s.SweepOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.log.WithError(err).Error("expiry sweep failed")
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// SweepOnce performs a single expiry pass and refreshes the status gauge.
func (s *Sweeper) SweepOnce(ctx context.Context) ([]int, error) {
	expired, err := s.ledger.ExpireStale(ctx)
	if err != nil {
		return nil, err
	}
	if len(expired) > 0 {
		s.log.WithField("count", len(expired)).Info("released expired reservations")
	}
	if _, err := s.ledger.Summary(ctx); err != nil {
		s.log.WithError(err).Warn("refresh ticket gauge")
	}
	return expired, nil
}
