package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var jobFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "tm_scheduler_job_failures_total",
	Help: "Failed scheduled job runs, by job",
}, []string{"job"})
