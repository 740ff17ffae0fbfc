package shipper

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sent = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "valuemetric",
		Subsystem: "shipper",
		Name:      "reports_sent_total",
		Help:      "Reports accepted by the server.",
	})

	failures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "valuemetric",
		Subsystem: "shipper",
		Name:      "send_failures_total",
		Help:      "Failed report sends, transient and permanent.",
	})

	evicted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "valuemetric",
		Subsystem: "shipper",
		Name:      "evicted_total",
		Help:      "Reports evicted from a full buffer.",
	})

	buffered = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "valuemetric",
		Subsystem: "shipper",
		Name:      "buffered_reports",
		Help:      "Reports waiting to be sent.",
	})
)
