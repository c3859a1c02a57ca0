package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PaymentMetrics records payment session and callback outcomes.
type PaymentMetrics struct {
	sessionsStarted  prometheus.Counter
	sessionsSwept    prometheus.Counter
	callbackOutcomes *prometheus.CounterVec
	orphanCallbacks  prometheus.Counter
	reconcileLatency prometheus.Histogram
	governorDenials  *prometheus.CounterVec
}

// NewPaymentMetrics registers the payment metrics on the provided registerer.
func NewPaymentMetrics(reg prometheus.Registerer) *PaymentMetrics {
	if reg == nil {
		return &PaymentMetrics{}
	}
	sessionsStarted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "payment_sessions_started",
		Help: "Payment sessions opened by confirmation dialogues.",
	})
	sessionsSwept := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "payment_sessions_swept",
		Help: "Idle payment sessions evicted by the sweeper.",
	})
	callbackOutcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_callback_outcomes",
		Help: "Payment callbacks processed, labeled by decoded status.",
	}, []string{"status"})
	orphanCallbacks := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "payment_callback_orphans",
		Help: "Payment callbacks reconciled without a live session.",
	})
	reconcileLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "payment_reconcile_seconds",
		Help:    "Duration of callback reconciliation in seconds.",
		Buckets: prometheus.DefBuckets,
	})
	governorDenials := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "governor_denials",
		Help: "Function invocations denied by the call governor.",
	}, []string{"function"})
	reg.MustRegister(sessionsStarted, sessionsSwept, callbackOutcomes, orphanCallbacks, reconcileLatency, governorDenials)
	return &PaymentMetrics{
		sessionsStarted:  sessionsStarted,
		sessionsSwept:    sessionsSwept,
		callbackOutcomes: callbackOutcomes,
		orphanCallbacks:  orphanCallbacks,
		reconcileLatency: reconcileLatency,
		governorDenials:  governorDenials,
	}
}

// IncSessionStarted counts a newly opened payment session.
func (p *PaymentMetrics) IncSessionStarted() {
	if p == nil || p.sessionsStarted == nil {
		return
	}
	p.sessionsStarted.Inc()
}

// AddSessionsSwept counts sessions evicted in a sweep pass.
func (p *PaymentMetrics) AddSessionsSwept(n int) {
	if p == nil || p.sessionsSwept == nil || n <= 0 {
		return
	}
	p.sessionsSwept.Add(float64(n))
}

// IncCallbackOutcome counts a processed callback by decoded status.
func (p *PaymentMetrics) IncCallbackOutcome(status string) {
	if p == nil || p.callbackOutcomes == nil {
		return
	}
	p.callbackOutcomes.WithLabelValues(normalizeLabel(status)).Inc()
}

// IncOrphanCallback counts a callback that arrived with no live session.
func (p *PaymentMetrics) IncOrphanCallback() {
	if p == nil || p.orphanCallbacks == nil {
		return
	}
	p.orphanCallbacks.Inc()
}

// ObserveReconcile records how long a callback took to reconcile.
func (p *PaymentMetrics) ObserveReconcile(duration time.Duration) {
	if p == nil || p.reconcileLatency == nil {
		return
	}
	p.reconcileLatency.Observe(duration.Seconds())
}

// IncGovernorDenial counts a cooldown denial for the named function.
func (p *PaymentMetrics) IncGovernorDenial(function string) {
	if p == nil || p.governorDenials == nil {
		return
	}
	p.governorDenials.WithLabelValues(normalizeLabel(function)).Inc()
}
