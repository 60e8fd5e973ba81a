package api

import (
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AaronLay10/SentientTrainer/internal/events"
	"github.com/AaronLay10/SentientTrainer/internal/version"
)

// Metrics exposes trainer counters in the Prometheus format. Counters are
// fed from the event stream; gauges read the live state on scrape.
type Metrics struct {
	registry  *prometheus.Registry
	startTime time.Time

	clicks        *prometheus.CounterVec
	steps         *prometheus.CounterVec
	completions   prometheus.Counter
	sessions      *prometheus.CounterVec
	notifications *prometheus.CounterVec
	sessionActive prometheus.Gauge

	mu     sync.Mutex
	frames func() int64
	detach func()
}

// NewMetrics builds a registry labelled with the training id, host and build.
func NewMetrics(trainingID string) *Metrics {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "unknown"
	}
	labels := prometheus.Labels{
		"training": trainingID,
		"instance": hostname,
		"version":  version.Version,
	}

	m := &Metrics{
		registry:  prometheus.NewRegistry(),
		startTime: time.Now(),
		clicks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "trainer_clicks_total",
			Help:        "Object clicks received, by source",
			ConstLabels: labels,
		}, []string{"source"}),
		steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "trainer_steps_total",
			Help:        "Clicks processed by the sequence, by outcome",
			ConstLabels: labels,
		}, []string{"outcome"}),
		completions: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "trainer_sequences_completed_total",
			Help:        "Procedures completed without a wrong click left",
			ConstLabels: labels,
		}),
		sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "trainer_sessions_total",
			Help:        "Session lifecycle transitions",
			ConstLabels: labels,
		}, []string{"transition"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "trainer_notifications_total",
			Help:        "Completion notifications, by result",
			ConstLabels: labels,
		}, []string{"result"}),
		sessionActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "trainer_session_active",
			Help:        "Whether a session is open (1) or not (0)",
			ConstLabels: labels,
		}),
	}

	m.registry.MustRegister(
		m.clicks,
		m.steps,
		m.completions,
		m.sessions,
		m.notifications,
		m.sessionActive,
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name:        "trainer_uptime_seconds",
			Help:        "Number of seconds since the trainer started",
			ConstLabels: labels,
		}, func() float64 { return time.Since(m.startTime).Seconds() }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name:        "trainer_events_total",
			Help:        "Total number of events emitted since startup",
			ConstLabels: labels,
		}, func() float64 { return float64(events.TotalCount()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name:        "trainer_events_dropped_total",
			Help:        "Events not persisted because the Postgres queue was full",
			ConstLabels: labels,
		}, func() float64 { return float64(events.PersistDropped()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name:        "trainer_frames_total",
			Help:        "Animation frames run by the session loop",
			ConstLabels: labels,
		}, m.frameCount),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name:        "trainer_mqtt_connected",
			Help:        "Whether the MQTT broker is connected (1) or not (0)",
			ConstLabels: labels,
		}, func() float64 { return boolGauge(readiness.snapshot().mqttConnected) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name:        "trainer_postgres_connected",
			Help:        "Whether PostgreSQL is connected (1) or not (0)",
			ConstLabels: labels,
		}, func() float64 { return boolGauge(readiness.snapshot().postgresConnected) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name:        "trainer_ws_clients",
			Help:        "Number of active WebSocket client connections",
			ConstLabels: labels,
		}, func() float64 { return float64(events.SubscriberCount()) }),
	)
	return m
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// SetFrameSource reports the loop's frame counter.
func (m *Metrics) SetFrameSource(fn func() int64) {
	m.mu.Lock()
	m.frames = fn
	m.mu.Unlock()
}

func (m *Metrics) frameCount() float64 {
	m.mu.Lock()
	fn := m.frames
	m.mu.Unlock()
	if fn == nil {
		return 0
	}
	return float64(fn())
}

// Attach starts counting emitted events. Calling it twice is a no-op.
func (m *Metrics) Attach() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.detach == nil {
		m.detach = events.Observe(m.Observe)
	}
}

func (m *Metrics) Detach() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.detach != nil {
		m.detach()
		m.detach = nil
	}
}

// Observe updates the counters for one event.
func (m *Metrics) Observe(e events.Event) {
	switch e.Name {
	case "client.click":
		m.clicks.WithLabelValues("client").Inc()
	case "operator.click":
		m.clicks.WithLabelValues("operator").Inc()
	case "step.validated":
		m.steps.WithLabelValues("validated").Inc()
	case "step.rejected":
		m.steps.WithLabelValues("rejected").Inc()
	case "step.ignored":
		m.steps.WithLabelValues("ignored").Inc()
	case "sequence.completed":
		m.completions.Inc()
	case "session.started", "session.restarted":
		m.sessions.WithLabelValues(e.Name[len("session."):]).Inc()
		m.sessionActive.Set(1)
	case "session.completed":
		m.sessions.WithLabelValues("completed").Inc()
	case "session.closed":
		m.sessions.WithLabelValues("closed").Inc()
		m.sessionActive.Set(0)
	case "notify.sent", "notify.failed", "notify.recorded", "notify.resent":
		m.notifications.WithLabelValues(e.Name[len("notify."):]).Inc()
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
