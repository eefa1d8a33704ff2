package metrics

import "github.com/prometheus/client_golang/prometheus"

// Outbox relay results recorded by OutboxMetrics.
const (
	OutboxPublished = "published"
	OutboxFailed    = "failed"
	OutboxAbandoned = "abandoned"
)

// OutboxMetrics tracks rows the outbox publisher relays to Pub/Sub.
type OutboxMetrics struct {
	events  *prometheus.CounterVec
	batches prometheus.Histogram
}

func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_outbox_events_total",
		Help: "Outbox rows handled by the publisher, by event type and result.",
	}, []string{"event_type", "result"})
	batches := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "storefront_outbox_batch_size",
		Help:    "Rows claimed per non-empty publisher batch.",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250},
	})
	reg.MustRegister(events, batches)
	return &OutboxMetrics{events: events, batches: batches}
}

func (o *OutboxMetrics) IncEvent(eventType, result string) {
	if o == nil || o.events == nil {
		return
	}
	o.events.WithLabelValues(normalizeLabel(eventType), normalizeLabel(result)).Inc()
}

func (o *OutboxMetrics) ObserveBatch(rows int) {
	if o == nil || o.batches == nil || rows <= 0 {
		return
	}
	o.batches.Observe(float64(rows))
}
