package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Completion outcomes recorded by CheckoutMetrics.
const (
	OutcomeCreated           = "created"
	OutcomeReplayed          = "replayed"
	OutcomeConflict          = "conflict"
	OutcomeExpired           = "expired"
	OutcomeInsufficientStock = "insufficient_stock"
	OutcomeNotFound          = "not_found"
	OutcomeError             = "error"
)

// CheckoutMetrics tracks session completions.
type CheckoutMetrics struct {
	completions *prometheus.CounterVec
	txDuration  prometheus.Histogram
	sessions    prometheus.Counter
}

func NewCheckoutMetrics(reg prometheus.Registerer) *CheckoutMetrics {
	if reg == nil {
		return &CheckoutMetrics{}
	}
	completions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_checkout_completions_total",
		Help: "Checkout session completion attempts by outcome.",
	}, []string{"outcome"})
	txDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "storefront_checkout_completion_tx_seconds",
		Help:    "Duration of the claim and order materialization transaction.",
		Buckets: prometheus.DefBuckets,
	})
	sessions := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "storefront_checkout_sessions_created_total",
		Help: "Checkout sessions created.",
	})
	reg.MustRegister(completions, txDuration, sessions)
	return &CheckoutMetrics{completions: completions, txDuration: txDuration, sessions: sessions}
}

func (c *CheckoutMetrics) IncCompletion(outcome string) {
	if c == nil || c.completions == nil {
		return
	}
	c.completions.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (c *CheckoutMetrics) ObserveTx(duration time.Duration) {
	if c == nil || c.txDuration == nil {
		return
	}
	c.txDuration.Observe(duration.Seconds())
}

func (c *CheckoutMetrics) IncSessionCreated() {
	if c == nil || c.sessions == nil {
		return
	}
	c.sessions.Inc()
}
