package practiceapi

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "practiceflow",
		Subsystem: "api",
		Name:      "requests_total",
		Help:      "HTTP requests handled, by endpoint and status code.",
	}, []string{"endpoint", "code"})

	transitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "practiceflow",
		Subsystem: "api",
		Name:      "transitions_total",
		Help:      "State transitions applied, by entity kind and outcome.",
	}, []string{"kind", "outcome"})

	instancingsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "practiceflow",
		Subsystem: "api",
		Name:      "instancings_total",
		Help:      "Template instancing attempts, by outcome.",
	}, []string{"outcome"})
)
