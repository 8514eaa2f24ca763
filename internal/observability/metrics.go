package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the protection engine.
type Metrics struct {
	// --- Core processing ---
	CoreEventsApplied  *prometheus.CounterVec
	CoreEventsRejected *prometheus.CounterVec
	CoreEventDuration  *prometheus.HistogramVec
	CoreJournals       *prometheus.CounterVec
	CoreSequence       prometheus.Gauge

	// --- Channel & backpressure ---
	ChannelSize         *prometheus.GaugeVec
	ChannelUtilization  *prometheus.GaugeVec
	PublishDrops        prometheus.Counter
	PersistBackpressure prometheus.Counter

	// --- Idempotency & ordering ---
	IdempotencyDuplicates *prometheus.CounterVec
	DedupLRUSize          prometheus.Gauge
	DedupLRUEvictions     prometheus.Counter
	EventSequenceGap      *prometheus.CounterVec
	EventOutOfOrder       *prometheus.CounterVec

	// --- Oracle ---
	OracleObservations *prometheus.CounterVec
	OracleStaleDropped *prometheus.CounterVec
	OracleFeedGaps     *prometheus.CounterVec
	CrashesDetected    *prometheus.CounterVec

	// --- Emergency execution ---
	ExecutionsTriggered *prometheus.CounterVec
	ExecutionsCompleted *prometheus.CounterVec
	ConversionLegs      *prometheus.CounterVec
	AmountConverted     prometheus.Counter
	ConversionSlippage  prometheus.Histogram

	// --- Cross-chain ---
	MessagesSent      *prometheus.CounterVec
	MessagesReceived  *prometheus.CounterVec
	ReplaysRejected   prometheus.Counter
	LocksActive       prometheus.Gauge
	CoordinationsOpen prometheus.Gauge

	// --- Persistence ---
	PersistEventsWritten   prometheus.Counter
	PersistJournalsWritten prometheus.Counter
	PersistBatchSize       prometheus.Histogram
	PersistBatchDur        prometheus.Histogram
	PersistErrors          *prometheus.CounterVec
	PersistLastSequence    prometheus.Gauge

	// --- Snapshots ---
	SnapshotsTaken   prometheus.Counter
	SnapshotDuration prometheus.Histogram
	SnapshotLastSeq  prometheus.Gauge

	// --- Query API ---
	QueryRequests *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec
	QueryErrors   *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	latencyBuckets := []float64{
		0.000001, 0.000005, 0.00001, 0.000025, 0.00005,
		0.0001, 0.00025, 0.0005, 0.001, 0.002, 0.005, 0.01,
	}

	return &Metrics{
		CoreEventsApplied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "guardx_core_events_applied_total",
			Help: "Events successfully applied by the protection core",
		}, []string{"event_type"}),

		CoreEventsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "guardx_core_events_rejected_total",
			Help: "Events rejected (dedup, gap, validation, authorization)",
		}, []string{"event_type", "reason"}),

		CoreEventDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "guardx_core_event_apply_duration_seconds",
			Help:    "Time to apply a single event in the core",
			Buckets: latencyBuckets,
		}, []string{"event_type"}),

		CoreJournals: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "guardx_core_journals_generated_total",
			Help: "Journal entries generated",
		}, []string{"journal_type"}),

		CoreSequence: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "guardx_core_sequence",
			Help: "Current global sequence number",
		}),

		ChannelSize: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "guardx_channel_size",
			Help: "Current buffered entries per channel",
		}, []string{"channel"}),

		ChannelUtilization: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "guardx_channel_utilization_ratio",
			Help: "Buffered entries over capacity per channel",
		}, []string{"channel"}),

		PublishDrops: promauto.NewCounter(prometheus.CounterOpts{
			Name: "guardx_publish_drops_total",
			Help: "Outputs dropped on the non-blocking publish channel",
		}),

		PersistBackpressure: promauto.NewCounter(prometheus.CounterOpts{
			Name: "guardx_persist_backpressure_total",
			Help: "Blocking persist sends that stalled the core",
		}),

		IdempotencyDuplicates: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "guardx_idempotency_duplicates_total",
			Help: "Duplicate events detected",
		}, []string{"event_type", "tier"}),

		DedupLRUSize: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "guardx_dedup_lru_size",
			Help: "Entries in the idempotency LRU",
		}),

		DedupLRUEvictions: promauto.NewCounter(prometheus.CounterOpts{
			Name: "guardx_dedup_lru_evictions_total",
			Help: "Idempotency LRU evictions",
		}),

		EventSequenceGap: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "guardx_event_sequence_gaps_total",
			Help: "Sequence gaps detected per partition",
		}, []string{"partition"}),

		EventOutOfOrder: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "guardx_event_out_of_order_total",
			Help: "Out-of-order events detected per partition",
		}, []string{"partition"}),

		OracleObservations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "guardx_oracle_observations_total",
			Help: "Price observations ingested per feed",
		}, []string{"feed"}),

		OracleStaleDropped: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "guardx_oracle_stale_dropped_total",
			Help: "Stale price sequences silently ignored per feed",
		}, []string{"feed"}),

		OracleFeedGaps: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "guardx_oracle_feed_gaps_total",
			Help: "Tolerated price sequence gaps per feed",
		}, []string{"feed"}),

		CrashesDetected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "guardx_crashes_detected_total",
			Help: "Crash conditions detected",
		}, []string{"feed", "kind"}),

		ExecutionsTriggered: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "guardx_executions_triggered_total",
			Help: "Emergency executions triggered",
		}, []string{"trigger"}),

		ExecutionsCompleted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "guardx_executions_completed_total",
			Help: "Emergency executions completed",
		}, []string{"outcome"}),

		ConversionLegs: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "guardx_conversion_legs_total",
			Help: "Individual conversion legs",
		}, []string{"outcome"}),

		AmountConverted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "guardx_amount_converted_total",
			Help: "Total stablecoin credited by conversions (1e8 fixed point)",
		}),

		ConversionSlippage: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "guardx_conversion_slippage_bp",
			Help:    "Per-leg conversion slippage in basis points",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		}),

		MessagesSent: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "guardx_messages_sent_total",
			Help: "Outbound cross-chain messages per target chain",
		}, []string{"chain"}),

		MessagesReceived: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "guardx_messages_received_total",
			Help: "Inbound cross-chain messages per result",
		}, []string{"result"}),

		ReplaysRejected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "guardx_replays_rejected_total",
			Help: "Inbound messages rejected as replays",
		}),

		LocksActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "guardx_locks_active",
			Help: "Cross-chain locks currently held",
		}),

		CoordinationsOpen: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "guardx_coordinations_open",
			Help: "Coordinations not yet terminal",
		}),

		PersistEventsWritten: promauto.NewCounter(prometheus.CounterOpts{
			Name: "guardx_persist_events_written_total",
			Help: "Event envelopes written to the event log",
		}),

		PersistJournalsWritten: promauto.NewCounter(prometheus.CounterOpts{
			Name: "guardx_persist_journals_written_total",
			Help: "Journal rows written",
		}),

		PersistBatchSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "guardx_persist_batch_size",
			Help:    "Outputs per persistence flush",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250},
		}),

		PersistBatchDur: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "guardx_persist_batch_duration_seconds",
			Help:    "Postgres batch write duration",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),

		PersistErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "guardx_persist_errors_total",
			Help: "Persistence errors per kind",
		}, []string{"kind"}),

		PersistLastSequence: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "guardx_persist_last_sequence",
			Help: "Highest sequence durably written",
		}),

		SnapshotsTaken: promauto.NewCounter(prometheus.CounterOpts{
			Name: "guardx_snapshots_taken_total",
			Help: "Snapshots captured and saved",
		}),

		SnapshotDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "guardx_snapshot_duration_seconds",
			Help:    "Snapshot capture and save duration",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),

		SnapshotLastSeq: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "guardx_snapshot_last_sequence",
			Help: "Sequence of the most recent snapshot",
		}),

		QueryRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "guardx_query_requests_total",
			Help: "HTTP API requests",
		}, []string{"endpoint", "status"}),

		QueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "guardx_query_duration_seconds",
			Help:    "HTTP API request duration",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		}, []string{"endpoint"}),

		QueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "guardx_query_errors_total",
			Help: "HTTP API errors per endpoint",
		}, []string{"endpoint"}),
	}
}
