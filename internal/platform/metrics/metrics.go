// Package metrics defines the prometheus collectors of the wallet ledger.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups every collector so binaries can register them once.
type Metrics struct {
	WalletsCreated        *prometheus.CounterVec
	WalletCreateErrors    *prometheus.CounterVec
	WalletReads           *prometheus.CounterVec
	TransactionsConfirmed *prometheus.CounterVec
	ConfirmDuration       *prometheus.HistogramVec
	SettlementEvents      *prometheus.CounterVec
	OutboxPublished       *prometheus.CounterVec
	CacheLookups          *prometheus.CounterVec
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		WalletsCreated: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "wallet_create_total",
			Help: "Wallets created, by currency",
		}, []string{"currency"}),
		WalletCreateErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "wallet_create_errors_total",
			Help: "Rejected wallet creations, by reason",
		}, []string{"reason"}),
		WalletReads: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "wallet_get_total",
			Help: "Wallet lookups, by outcome status",
		}, []string{"status"}),
		TransactionsConfirmed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "transactions_confirmed_total",
			Help: "Transactions confirmed, by type and resulting status",
		}, []string{"type", "status"}),
		ConfirmDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "transaction_confirm_duration_seconds",
			Help:    "Time spent confirming a transaction, including lock waits",
			Buckets: prometheus.DefBuckets,
		}, []string{"type"}),
		SettlementEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "settlement_events_total",
			Help: "Settlement events handled, by kind and outcome",
		}, []string{"kind", "outcome"}),
		OutboxPublished: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "outbox_messages_total",
			Help: "Outbox messages handled by the poller, by event type and outcome",
		}, []string{"event_type", "outcome"}),
		CacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "wallet_cache_lookups_total",
			Help: "Wallet cache lookups, by result",
		}, []string{"result"}),
	}
}
