package oauth

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metric label values.
const (
	resultSuccess = "success"
	resultFailure = "failure"
)

// Metrics records OAuth action outcomes. A nil *Metrics records nothing.
type Metrics struct {
	actionsTotal     *prometheus.CounterVec
	refreshTotal     *prometheus.CounterVec
	revocationsTotal *prometheus.CounterVec
}

// NewMetrics creates the OAuth collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		actionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "integrate",
			Subsystem: "oauth",
			Name:      "actions_total",
			Help:      "Total number of OAuth actions by provider, action and result.",
		}, []string{"provider", "action", "result"}),
		refreshTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "integrate",
			Subsystem: "oauth",
			Name:      "token_refresh_total",
			Help:      "Total number of silent token refresh attempts.",
		}, []string{"provider", "result"}),
		revocationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "integrate",
			Subsystem: "oauth",
			Name:      "revocations_total",
			Help:      "Total number of upstream revocation attempts on disconnect.",
		}, []string{"provider", "result"}),
	}

	for _, c := range []prometheus.Collector{m.actionsTotal, m.refreshTotal, m.revocationsTotal} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func result(err error) string {
	if err != nil {
		return resultFailure
	}
	return resultSuccess
}

func (m *Metrics) recordAction(provider, action string, err error) {
	if m == nil {
		return
	}
	m.actionsTotal.WithLabelValues(provider, action, result(err)).Inc()
}

func (m *Metrics) recordRefresh(provider string, err error) {
	if m == nil {
		return
	}
	m.refreshTotal.WithLabelValues(provider, result(err)).Inc()
}

func (m *Metrics) recordRevocation(provider string, err error) {
	if m == nil {
		return
	}
	m.revocationsTotal.WithLabelValues(provider, result(err)).Inc()
}
