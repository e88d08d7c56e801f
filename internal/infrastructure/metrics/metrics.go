package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Account metrics
	AccountsCreated prometheus.Counter
	EntriesPosted   *prometheus.CounterVec
	EntriesReversed prometheus.Counter
	PeriodsClosed   prometheus.Counter
	PostingAmount   prometheus.Histogram
	AccountReplays  prometheus.Counter

	// Gift card metrics
	CardsIssued       prometheus.Counter
	CardRedemptions   prometheus.Counter
	RedemptionAmount  prometheus.Histogram
	CardStatusChanges *prometheus.CounterVec

	// Drawer metrics
	DrawersOpened   prometheus.Counter
	DrawersClosed   prometheus.Counter
	DrawerOverShort prometheus.Histogram

	// Command metrics
	CommandDuration *prometheus.HistogramVec
	CommandErrors   *prometheus.CounterVec

	// Runtime metrics
	RuntimeWorkers prometheus.Gauge

	// Storage metrics
	SnapshotWrites *prometheus.CounterVec
	EventAppends   prometheus.Counter

	// Outbox metrics
	OutboxPublished prometheus.Counter
	OutboxErrors    prometheus.Counter
}

// New creates and registers all Prometheus metrics
func New() *Metrics {
	return &Metrics{
		AccountsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "opsledger_accounts_created_total",
			Help: "Total number of accounts created",
		}),
		EntriesPosted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "opsledger_journal_entries_posted_total",
				Help: "Total journal entries posted by entry type",
			},
			[]string{"entry_type"},
		),
		EntriesReversed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "opsledger_journal_entries_reversed_total",
			Help: "Total number of journal entries reversed",
		}),
		PeriodsClosed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "opsledger_periods_closed_total",
			Help: "Total number of accounting periods closed",
		}),
		PostingAmount: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "opsledger_posting_amount",
			Help:    "Posted debit/credit amounts",
			Buckets: []float64{1, 10, 100, 1000, 10000, 100000, 1000000},
		}),
		AccountReplays: promauto.NewCounter(prometheus.CounterOpts{
			Name: "opsledger_account_replays_total",
			Help: "Total number of cold account activations replayed from the event log",
		}),

		CardsIssued: promauto.NewCounter(prometheus.CounterOpts{
			Name: "opsledger_giftcards_issued_total",
			Help: "Total number of gift cards issued",
		}),
		CardRedemptions: promauto.NewCounter(prometheus.CounterOpts{
			Name: "opsledger_giftcard_redemptions_total",
			Help: "Total number of gift card redemptions",
		}),
		RedemptionAmount: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "opsledger_giftcard_redemption_amount",
			Help:    "Gift card redemption amounts",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
		}),
		CardStatusChanges: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "opsledger_giftcard_status_changes_total",
				Help: "Gift card status transitions by target status",
			},
			[]string{"status"},
		),

		DrawersOpened: promauto.NewCounter(prometheus.CounterOpts{
			Name: "opsledger_drawers_opened_total",
			Help: "Total number of cash drawer opens",
		}),
		DrawersClosed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "opsledger_drawers_closed_total",
			Help: "Total number of cash drawer closes",
		}),
		DrawerOverShort: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "opsledger_drawer_over_short",
			Help:    "Absolute over/short amounts at drawer close",
			Buckets: []float64{0.01, 0.1, 1, 5, 10, 50, 100},
		}),

		CommandDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "opsledger_command_duration_seconds",
				Help:    "Entity command duration",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"entity"},
		),
		CommandErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "opsledger_command_errors_total",
				Help: "Entity command rejections and failures",
			},
			[]string{"entity"},
		),

		RuntimeWorkers: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "opsledger_runtime_workers",
			Help: "Current number of live entity workers",
		}),

		SnapshotWrites: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "opsledger_snapshot_writes_total",
				Help: "Total wholesale state writes by entity kind",
			},
			[]string{"kind"},
		),
		EventAppends: promauto.NewCounter(prometheus.CounterOpts{
			Name: "opsledger_event_appends_total",
			Help: "Total account events appended to the log",
		}),

		OutboxPublished: promauto.NewCounter(prometheus.CounterOpts{
			Name: "opsledger_outbox_published_total",
			Help: "Total outbox events published",
		}),
		OutboxErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "opsledger_outbox_errors_total",
			Help: "Total outbox publish failures",
		}),
	}
}
