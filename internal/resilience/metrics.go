package resilience

import "github.com/prometheus/client_golang/prometheus"

var (
	BreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "sekolah",
			Subsystem: "dependency",
			Name:      "breaker_state",
			Help:      "Current breaker state per downstream: 0=closed,1=open,2=half-open",
		},
		[]string{"target"},
	)
	BreakerTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sekolah",
			Subsystem: "dependency",
			Name:      "breaker_transition_total",
			Help:      "Breaker state transitions per downstream",
		},
		[]string{"target", "from", "to"},
	)
	BreakerOpenedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sekolah",
			Subsystem: "dependency",
			Name:      "breaker_open_total",
			Help:      "Times a downstream breaker opened",
		},
		[]string{"target"},
	)
)

func init() {
	prometheus.MustRegister(BreakerState, BreakerTransitions, BreakerOpenedTotal)
}
