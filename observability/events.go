package observability

import (
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aerisfi/aeris-contracts/core/events"
	"github.com/aerisfi/aeris-contracts/core/types"
)

type eventMetrics struct {
	emitted *prometheus.CounterVec
}

var (
	eventMetricsOnce sync.Once
	eventRegistry    *eventMetrics
)

// Events returns the metrics registry tracking structured lifecycle events.
func Events() *eventMetrics {
	eventMetricsOnce.Do(func() {
		eventRegistry = &eventMetrics{
			emitted: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "aeris",
				Subsystem: "events",
				Name:      "emitted_total",
				Help:      "Count of lifecycle events segmented by type.",
			}, []string{"type"}),
		}
		prometheus.MustRegister(eventRegistry.emitted)
	})
	return eventRegistry
}

func (m *eventMetrics) Record(eventType string) {
	if m == nil {
		return
	}
	if eventType == "" {
		eventType = "unknown"
	}
	m.emitted.WithLabelValues(eventType).Inc()
}

// EventLogger is an events.Emitter that writes every lifecycle event to the
// structured log and increments the per-type counter. It is the daemon's
// default subscriber; indexers consume the same stream via RPC.
type EventLogger struct {
	log *slog.Logger
}

// NewEventLogger builds an emitter backed by the supplied logger.
func NewEventLogger(log *slog.Logger) *EventLogger {
	return &EventLogger{log: log}
}

type payloadCarrier interface {
	Event() *types.Event
}

// Emit implements events.Emitter.
func (l *EventLogger) Emit(evt events.Event) {
	if l == nil || evt == nil {
		return
	}
	Events().Record(evt.EventType())
	if l.log == nil {
		return
	}
	args := []any{slog.String("event", evt.EventType())}
	if carrier, ok := evt.(payloadCarrier); ok {
		if payload := carrier.Event(); payload != nil {
			for key, value := range payload.Attributes {
				args = append(args, slog.String(key, value))
			}
		}
	}
	l.log.Info("lifecycle event", args...)
}
