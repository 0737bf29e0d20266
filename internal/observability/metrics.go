package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors of the turn pipeline. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	turns             *prometheus.CounterVec
	stageDuration     *prometheus.HistogramVec
	retrievalFailures prometheus.Counter
}

// NewMetrics registers the pipeline collectors with reg. Registration errors
// panic, mirroring promauto.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		turns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "voicechat",
				Name:      "turns_total",
				Help:      "Conversation turns by mode and outcome.",
			},
			[]string{"mode", "outcome"},
		),
		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "voicechat",
				Name:      "stage_duration_seconds",
				Help:      "Time spent in each turn stage.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"stage", "status"},
		),
		retrievalFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "voicechat",
				Name:      "retrieval_failures_total",
				Help:      "Retrievals that failed and degraded to an empty context.",
			},
		),
	}

	reg.MustRegister(m.turns, m.stageDuration, m.retrievalFailures)
	return m
}

// RegisterSessionGauge exposes the number of live sessions through count.
func RegisterSessionGauge(reg prometheus.Registerer, count func() int) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: "voicechat",
			Name:      "sessions_active",
			Help:      "Session mappings currently held by the registry.",
		},
		func() float64 { return float64(count()) },
	))
}

func (m *Metrics) ObserveTurn(mode, outcome string) {
	if m == nil {
		return
	}
	m.turns.WithLabelValues(mode, outcome).Inc()
}

func (m *Metrics) ObserveStage(stage string, started time.Time, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.stageDuration.WithLabelValues(stage, status).Observe(time.Since(started).Seconds())
}

func (m *Metrics) RetrievalFailed() {
	if m == nil {
		return
	}
	m.retrievalFailures.Inc()
}
