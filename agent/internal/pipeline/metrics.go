package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	eventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "valuemetric",
		Subsystem: "pipeline",
		Name:      "events_total",
		Help:      "Pushed events by match result.",
	}, []string{"result"})

	eventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "valuemetric",
		Subsystem: "pipeline",
		Name:      "events_dropped_total",
		Help:      "Events rejected because the queue was full.",
	})

	reportsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "valuemetric",
		Subsystem: "pipeline",
		Name:      "reports_total",
		Help:      "Reports dumped and handed to the shipper.",
	})

	earlyDumps = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "valuemetric",
		Subsystem: "pipeline",
		Name:      "early_dumps_total",
		Help:      "Dumps forced by the buffered size limit.",
	})

	bufferedBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "valuemetric",
		Subsystem: "pipeline",
		Name:      "buffered_bytes",
		Help:      "Estimated size of buffered buckets across all metrics.",
	})
)
