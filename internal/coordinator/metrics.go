package coordinator

import (
	"sync"
	"time"

	"github.com/alexanderramin/streak/internal/clock"
	"github.com/alexanderramin/streak/internal/decision"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for the coordinator and, through
// the clock.Observer methods, the session clock.
type Metrics struct {
	outcomes        *prometheus.CounterVec
	executeFailures *prometheus.CounterVec
	completions     *prometheus.CounterVec
	deduplicated    prometheus.Counter
	autoCompletions prometheus.Counter
	submitDuration  *prometheus.HistogramVec
	transitions     *prometheus.CounterVec
	ticks           prometheus.Counter
	activeSessions  prometheus.Gauge
}

var (
	defaultMetricsOnce sync.Once
	sharedMetrics      *Metrics
)

// DefaultMetrics returns the instance registered with the global registry.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		sharedMetrics = MustNewMetrics(prometheus.DefaultRegisterer)
	})
	return sharedMetrics
}

// MustNewMetrics registers the collectors with reg and panics on a
// registration conflict that is not an identical collector.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "streak",
			Subsystem: "coordinator",
			Name:      "outcomes_total",
			Help:      "Decision outcomes by intent and kind.",
		}, []string{"intent", "kind"}),
		executeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "streak",
			Subsystem: "coordinator",
			Name:      "execute_failures_total",
			Help:      "Execute outcomes rolled back after a failure.",
		}, []string{"intent"}),
		completions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "streak",
			Subsystem: "coordinator",
			Name:      "completions_total",
			Help:      "Completion writes by result.",
		}, []string{"result"}),
		deduplicated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "streak",
			Subsystem: "coordinator",
			Name:      "deduplicated_total",
			Help:      "Intents rejected because the habit already had one in flight.",
		}),
		autoCompletions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "streak",
			Subsystem: "coordinator",
			Name:      "auto_completions_total",
			Help:      "Completions triggered by a timer reaching its target.",
		}),
		submitDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "streak",
			Subsystem: "coordinator",
			Name:      "submit_duration_seconds",
			Help:      "Time spent handling one submitted intent.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"intent"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "streak",
			Subsystem: "clock",
			Name:      "transitions_total",
			Help:      "Session lifecycle events emitted by the clock.",
		}, []string{"event"}),
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "streak",
			Subsystem: "clock",
			Name:      "ticks_total",
			Help:      "Tick events emitted for running sessions.",
		}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "streak",
			Subsystem: "clock",
			Name:      "active_sessions",
			Help:      "Open (running or paused) timer sessions.",
		}),
	}

	m.outcomes = register(reg, m.outcomes)
	m.executeFailures = register(reg, m.executeFailures)
	m.completions = register(reg, m.completions)
	m.deduplicated = register(reg, m.deduplicated)
	m.autoCompletions = register(reg, m.autoCompletions)
	m.submitDuration = register(reg, m.submitDuration)
	m.transitions = register(reg, m.transitions)
	m.ticks = register(reg, m.ticks)
	m.activeSessions = register(reg, m.activeSessions)
	return m
}

// register reuses an identical collector that is already registered.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	if err := reg.Register(c); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := already.ExistingCollector.(T); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

func (m *Metrics) observeOutcome(intent decision.Intent, kind decision.Kind) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(string(intent), string(kind)).Inc()
}

func (m *Metrics) observeFailure(intent decision.Intent) {
	if m == nil {
		return
	}
	m.executeFailures.WithLabelValues(string(intent)).Inc()
}

func (m *Metrics) observeCompletion(inserted bool) {
	if m == nil {
		return
	}
	result := "duplicate"
	if inserted {
		result = "inserted"
	}
	m.completions.WithLabelValues(result).Inc()
}

func (m *Metrics) observeDeduplicated() {
	if m == nil {
		return
	}
	m.deduplicated.Inc()
}

func (m *Metrics) observeAutoCompletion() {
	if m == nil {
		return
	}
	m.autoCompletions.Inc()
}

func (m *Metrics) observeSubmit(intent decision.Intent, d time.Duration) {
	if m == nil {
		return
	}
	m.submitDuration.WithLabelValues(string(intent)).Observe(d.Seconds())
}

func (m *Metrics) ObserveTick() {
	if m == nil {
		return
	}
	m.ticks.Inc()
}

func (m *Metrics) ObserveTransition(t clock.EventType) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(string(t)).Inc()
}

func (m *Metrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.activeSessions.Set(float64(n))
}

var _ clock.Observer = (*Metrics)(nil)
