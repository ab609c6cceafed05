package rules

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var reloadCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "nickguard_rules_reloads",
	Help: "Number of rule file loads, by result",
}, []string{"result"})
