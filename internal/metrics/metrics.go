package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/satriahrh/sparkchat/adapters/spark"
	"github.com/satriahrh/sparkchat/domain/entities"
)

const (
	OutcomeCompleted = "completed"
	OutcomeError     = "error"
)

// Metrics holds the chat session collectors
type Metrics struct {
	SessionsTotal   *prometheus.CounterVec
	FragmentsTotal  prometheus.Counter
	SessionDuration prometheus.Histogram
	TokensTotal     *prometheus.CounterVec
}

// New registers the chat collectors on reg
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		SessionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sparkchat_sessions_total",
				Help: "Total number of finished chat sessions",
			},
			[]string{"outcome"},
		),
		FragmentsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "sparkchat_fragments_total",
				Help: "Total number of content fragments received",
			},
		),
		SessionDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "sparkchat_session_duration_seconds",
				Help:    "Chat session duration from connect to completion or error",
				Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
		),
		TokensTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sparkchat_tokens_total",
				Help: "Total number of tokens reported by the server",
			},
			[]string{"kind"},
		),
	}
}

// Listener records session metrics and forwards every event to the
// wrapped listener.
type Listener struct {
	spark.Listener
	metrics *Metrics
	now     func() time.Time

	mu      sync.Mutex
	started time.Time
}

var (
	_ spark.Listener      = (*Listener)(nil)
	_ spark.UsageListener = (*Listener)(nil)
)

// NewListener wraps next, which may be nil
func (m *Metrics) NewListener(next spark.Listener) *Listener {
	if next == nil {
		next = spark.NopListener{}
	}
	return &Listener{
		Listener: next,
		metrics:  m,
		now:      time.Now,
	}
}

func (l *Listener) OnStatusChange(state entities.SessionState) {
	if state == entities.SessionStateConnecting {
		l.mu.Lock()
		l.started = l.now()
		l.mu.Unlock()
	}
	l.Listener.OnStatusChange(state)
}

func (l *Listener) OnMessage(fragment string, frame *spark.Response) {
	l.metrics.FragmentsTotal.Inc()
	l.Listener.OnMessage(fragment, frame)
}

func (l *Listener) OnComplete(content string, conversation []entities.Turn) {
	l.finish(OutcomeCompleted)
	l.Listener.OnComplete(content, conversation)
}

func (l *Listener) OnError(err error) {
	l.finish(OutcomeError)
	l.Listener.OnError(err)
}

func (l *Listener) OnUsage(usage spark.Usage) {
	l.metrics.TokensTotal.WithLabelValues("prompt").Add(float64(usage.Text.PromptTokens))
	l.metrics.TokensTotal.WithLabelValues("completion").Add(float64(usage.Text.CompletionTokens))

	if ul, ok := l.Listener.(spark.UsageListener); ok {
		ul.OnUsage(usage)
	}
}

func (l *Listener) finish(outcome string) {
	l.metrics.SessionsTotal.WithLabelValues(outcome).Inc()

	l.mu.Lock()
	started := l.started
	l.started = time.Time{}
	l.mu.Unlock()

	if !started.IsZero() {
		l.metrics.SessionDuration.Observe(l.now().Sub(started).Seconds())
	}
}
