package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// OrderMetrics tracks state machine activity.
type OrderMetrics struct {
	transitions *prometheus.CounterVec
	rejections  *prometheus.CounterVec
}

// NewOrderMetrics registers the order transition metrics on the provided registerer.
func NewOrderMetrics(reg prometheus.Registerer) *OrderMetrics {
	if reg == nil {
		return &OrderMetrics{}
	}
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "order_transitions_total",
		Help: "Accepted order state transitions.",
	}, []string{"from", "to", "trigger"})
	rejections := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "order_transition_rejections_total",
		Help: "Rejected order transition attempts.",
	}, []string{"from", "trigger", "reason"})
	reg.MustRegister(transitions, rejections)
	return &OrderMetrics{transitions: transitions, rejections: rejections}
}

// IncTransition records an accepted transition.
func (m *OrderMetrics) IncTransition(from, to, trigger string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(labelOr(from), labelOr(to), labelOr(trigger)).Inc()
}

// IncRejection records a rejected transition attempt.
func (m *OrderMetrics) IncRejection(from, trigger, reason string) {
	if m == nil || m.rejections == nil {
		return
	}
	m.rejections.WithLabelValues(labelOr(from), labelOr(trigger), labelOr(reason)).Inc()
}

func labelOr(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
