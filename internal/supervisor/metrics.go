package supervisor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var stateGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name: "nickguard_session_state",
	Help: "1 for the current session state, 0 otherwise",
}, []string{"state"})

var connectCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "nickguard_session_connects",
	Help: "Connection attempts, by result",
}, []string{"result"})

func observeState(s State) {
	for _, st := range allStates {
		v := 0.0
		if st == s {
			v = 1
		}
		stateGauge.WithLabelValues(string(st)).Set(v)
	}
}
