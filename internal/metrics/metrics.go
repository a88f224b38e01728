// Package metrics exposes Prometheus collectors for the ticket ledger.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ledgerOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "raffle_ledger_operations_total",
			Help: "Ledger operations by outcome",
		},
		[]string{"operation", "outcome"},
	)

	ledgerDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "raffle_ledger_operation_duration_seconds",
			Help:    "Duration of ledger transactions",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
		[]string{"operation"},
	)

	ticketsChanged = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "raffle_tickets_transitioned_total",
			Help: "Tickets moved by each transition",
		},
		[]string{"transition"},
	)

	ticketsByStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "raffle_tickets",
			Help: "Current number of tickets per status",
		},
		[]string{"status"},
	)

	notifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "raffle_notifications_total",
			Help: "Notification attempts by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)
)

// ObserveOperation records one ledger operation.
func ObserveOperation(operation, outcome string, took time.Duration) {
	ledgerOperations.WithLabelValues(operation, outcome).Inc()
	ledgerDuration.WithLabelValues(operation).Observe(took.Seconds())
}

// TicketsTransitioned adds n to the counter for transition (reserve,
// approve, release, expire).
func TicketsTransitioned(transition string, n int) {
	if n > 0 {
		ticketsChanged.WithLabelValues(transition).Add(float64(n))
	}
}

// SetTicketCounts publishes the per-status ticket counts.
func SetTicketCounts(counts map[string]int) {
	for status, n := range counts {
		ticketsByStatus.WithLabelValues(status).Set(float64(n))
	}
}

// Notification counts a notification outcome (sent, failed, dropped).
func Notification(kind, outcome string) {
	notifications.WithLabelValues(kind, outcome).Inc()
}

// Handler serves the default registry.
func Handler() http.Handler { return promhttp.Handler() }
