package httpapi

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var wsClients = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "nickguard_ws_clients",
	Help: "Connected /ws subscribers",
})

var requestCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "nickguard_http_requests",
	Help: "HTTP requests, by route and status code",
}, []string{"route", "code"})
