package stream

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var streamState = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "tm_stream_state",
	Help: "Current supervisor state (0 idle, 1 connecting, 2 streaming, 3 backoff, 4 stopped)",
})

var connectAttempts = promauto.NewCounter(prometheus.CounterOpts{
	Name: "tm_stream_connect_attempts_total",
	Help: "Number of times the supervisor tried to register rules and open the stream",
})

var streamFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "tm_stream_failures_total",
	Help: "Stream failures by classification",
}, []string{"class"})

var mentionsReceived = promauto.NewCounter(prometheus.CounterOpts{
	Name: "tm_stream_mentions_received_total",
	Help: "Mentions read from the stream and handed to the dispatcher",
})
