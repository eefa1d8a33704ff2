package metrics

import "github.com/prometheus/client_golang/prometheus"

// Callback delivery results recorded by CallbackMetrics.
const (
	DeliveryDelivered = "delivered"
	DeliveryRejected  = "rejected"
	DeliveryExhausted = "exhausted"
	DeliveryDropped   = "dropped"
)

// CallbackMetrics tracks order-event callback deliveries.
type CallbackMetrics struct {
	deliveries *prometheus.CounterVec
	attempts   prometheus.Counter
}

func NewCallbackMetrics(reg prometheus.Registerer) *CallbackMetrics {
	if reg == nil {
		return &CallbackMetrics{}
	}
	deliveries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_callback_deliveries_total",
		Help: "Order-event callback deliveries by final result.",
	}, []string{"result"})
	attempts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "storefront_callback_attempts_total",
		Help: "Individual HTTP attempts made while delivering callbacks.",
	})
	reg.MustRegister(deliveries, attempts)
	return &CallbackMetrics{deliveries: deliveries, attempts: attempts}
}

func (c *CallbackMetrics) IncDelivery(result string) {
	if c == nil || c.deliveries == nil {
		return
	}
	c.deliveries.WithLabelValues(normalizeLabel(result)).Inc()
}

func (c *CallbackMetrics) IncAttempt() {
	if c == nil || c.attempts == nil {
		return
	}
	c.attempts.Inc()
}
