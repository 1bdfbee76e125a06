package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is the judge's Prometheus instrumentation. A nil *Metrics is valid
// and records nothing, so components can be built without it in tests.
type Metrics struct {
	JudgeRuns        *prometheus.CounterVec
	JudgeStage       *prometheus.HistogramVec
	JudgeInFlight    prometheus.Gauge
	JudgeQueueWait   prometheus.Histogram
	Verdicts         *prometheus.CounterVec
	ScoringUpdates   *prometheus.CounterVec
	ReconcileGaps    prometheus.Counter
	BroadcastSent    prometheus.Counter
	BroadcastDropped prometheus.Counter
	WSConnections    prometheus.Gauge
	KafkaMessages    *prometheus.CounterVec
}

// New registers all collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		JudgeRuns: f.NewCounterVec(prometheus.CounterOpts{
			Name: "judge_runs_total",
			Help: "Sandbox invocations by outcome kind",
		}, []string{"kind"}),
		JudgeStage: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "judge_stage_duration_seconds",
			Help:    "Wall time of compile and simulate stages",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"stage"}),
		JudgeInFlight: f.NewGauge(prometheus.GaugeOpts{
			Name: "judge_in_flight",
			Help: "Sandbox invocations currently holding a worker slot",
		}),
		JudgeQueueWait: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "judge_queue_wait_seconds",
			Help:    "Time spent waiting for a worker slot",
			Buckets: prometheus.DefBuckets,
		}),
		Verdicts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "judge_verdicts_total",
			Help: "Classified verdicts",
		}, []string{"verdict"}),
		ScoringUpdates: f.NewCounterVec(prometheus.CounterOpts{
			Name: "scoring_updates_total",
			Help: "Contest scoring attempts by result",
		}, []string{"result"}),
		ReconcileGaps: f.NewCounter(prometheus.CounterOpts{
			Name: "scoring_reconcile_gaps_total",
			Help: "Judged submissions whose scoring failed and was queued for reconciliation",
		}),
		BroadcastSent: f.NewCounter(prometheus.CounterOpts{
			Name: "broadcast_messages_sent_total",
			Help: "Live updates handed to subscribers",
		}),
		BroadcastDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "broadcast_messages_dropped_total",
			Help: "Live updates dropped because a subscriber buffer was full",
		}),
		WSConnections: f.NewGauge(prometheus.GaugeOpts{
			Name: "ws_connections_total",
			Help: "Active WebSocket connections",
		}),
		KafkaMessages: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kafka_messages_produced_total",
			Help: "Kafka messages produced by topic and status",
		}, []string{"topic", "status"}),
	}
}

func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.JudgeStage.WithLabelValues(stage).Observe(d.Seconds())
}

func (m *Metrics) IncRun(kind string) {
	if m == nil {
		return
	}
	if kind == "" {
		kind = "ok"
	}
	m.JudgeRuns.WithLabelValues(kind).Inc()
}

func (m *Metrics) AddInFlight(delta float64) {
	if m == nil {
		return
	}
	m.JudgeInFlight.Add(delta)
}

func (m *Metrics) ObserveQueueWait(d time.Duration) {
	if m == nil {
		return
	}
	m.JudgeQueueWait.Observe(d.Seconds())
}

func (m *Metrics) IncVerdict(verdict string) {
	if m == nil {
		return
	}
	m.Verdicts.WithLabelValues(verdict).Inc()
}

func (m *Metrics) IncScoring(result string) {
	if m == nil {
		return
	}
	m.ScoringUpdates.WithLabelValues(result).Inc()
}

func (m *Metrics) IncReconcileGap() {
	if m == nil {
		return
	}
	m.ReconcileGaps.Inc()
}

func (m *Metrics) IncBroadcast(delivered bool) {
	if m == nil {
		return
	}
	if delivered {
		m.BroadcastSent.Inc()
		return
	}
	m.BroadcastDropped.Inc()
}

func (m *Metrics) AddConnections(delta float64) {
	if m == nil {
		return
	}
	m.WSConnections.Add(delta)
}

func (m *Metrics) IncKafka(topic, status string) {
	if m == nil {
		return
	}
	m.KafkaMessages.WithLabelValues(topic, status).Inc()
}
