package gateway

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "tm_gateway_runs_total",
	Help: "Handled mentions by final run status",
}, []string{"status"})

var mentionsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "tm_gateway_mentions_dropped_total",
	Help: "Mentions declined by moderation, by reason",
}, []string{"reason"})

var repliesPublished = promauto.NewCounter(prometheus.CounterOpts{
	Name: "tm_gateway_replies_published_total",
	Help: "Replies successfully published",
})
