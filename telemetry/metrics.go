// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	EventsReceived     prometheus.Counter
	MessagesSent       prometheus.Counter
	ForwardDropped     *prometheus.CounterVec
	SubscriptionErrors prometheus.Counter

	// Histograms (seconds)
	SendDuration prometheus.Observer

	// Gauges
	MessengerReadyGauge prometheus.Gauge // 1=ready,0=not yet
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		EventsReceived = promauto.NewCounter(prometheus.CounterOpts{Name: "relaybot_events_received_total", Help: "Number of insert events received from the change feed"})
		MessagesSent = promauto.NewCounter(prometheus.CounterOpts{Name: "relaybot_messages_sent_total", Help: "Number of messages delivered to the destination chat"})
		ForwardDropped = promauto.NewCounterVec(prometheus.CounterOpts{Name: "relaybot_forward_dropped_total", Help: "Number of events dropped without a successful send, by reason"}, []string{"reason"})
		SubscriptionErrors = promauto.NewCounter(prometheus.CounterOpts{Name: "relaybot_subscription_errors_total", Help: "Number of change feed subscription errors"})
		SendDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "relaybot_send_duration_seconds", Help: "Duration of outbound send calls", Buckets: prometheus.DefBuckets})
		MessengerReadyGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "relaybot_messenger_ready", Help: "Messaging client ready=1 not ready=0"})
	})
}

// SetMessengerReady sets the ready gauge.
func SetMessengerReady(ready bool) {
	if MessengerReadyGauge == nil {
		return
	}
	if ready {
		MessengerReadyGauge.Set(1)
	} else {
		MessengerReadyGauge.Set(0)
	}
}

// IncEventsReceived counts one change feed event.
func IncEventsReceived() {
	if EventsReceived != nil {
		EventsReceived.Inc()
	}
}

// IncMessagesSent counts one delivered message.
func IncMessagesSent() {
	if MessagesSent != nil {
		MessagesSent.Inc()
	}
}

// IncDropped counts one dropped event under reason.
func IncDropped(reason string) {
	if ForwardDropped != nil {
		ForwardDropped.WithLabelValues(reason).Inc()
	}
}

// IncSubscriptionErrors counts one subscription-level failure.
func IncSubscriptionErrors() {
	if SubscriptionErrors != nil {
		SubscriptionErrors.Inc()
	}
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	if s, ok := ctx.Value(corrKey).(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
