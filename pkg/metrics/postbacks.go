package metrics

import "github.com/prometheus/client_golang/prometheus"

// PostbackMetrics records outbound postback delivery attempts.
type PostbackMetrics struct {
	attempts *prometheus.CounterVec
}

// NewPostbackMetrics registers the postback metrics on the provided registerer.
func NewPostbackMetrics(reg prometheus.Registerer) *PostbackMetrics {
	if reg == nil {
		return &PostbackMetrics{}
	}
	attempts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "postback_attempts_total",
		Help: "Outbound postback attempts by result.",
	}, []string{"result"})
	reg.MustRegister(attempts)
	return &PostbackMetrics{attempts: attempts}
}

// IncAttempt increments the attempt counter for the given result.
func (m *PostbackMetrics) IncAttempt(result string) {
	if m == nil || m.attempts == nil {
		return
	}
	m.attempts.WithLabelValues(normalizeLabel(result)).Inc()
}
