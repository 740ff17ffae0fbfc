package valuemetric

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func counter(name, help string) *prometheus.CounterVec {
	return promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "valuemetric",
		Subsystem: "producer",
		Name:      name,
		Help:      help,
	}, []string{"metric"})
}

var (
	guardrailRejections = counter("guardrail_rejections_total", "Samples dropped because the dimension limit was reached.")
	taintedWindows      = counter("tainted_windows_total", "Slice windows suppressed because their samples were unreliable.")
	lateEvents          = counter("late_events_total", "Samples older than the current bucket.")
	futureSamples       = counter("future_samples_total", "Samples stamped too far past the producer clock.")
	malformedEvents     = counter("malformed_events_total", "Events whose value could not be extracted.")
	pullFailures        = counter("pull_failures_total", "Synchronous pulls that returned an error.")
	bucketsEmitted      = counter("buckets_emitted_total", "Finalized value buckets.")
)
