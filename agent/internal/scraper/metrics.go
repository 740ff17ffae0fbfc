package scraper

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	pullsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "valuemetric",
		Subsystem: "scraper",
		Name:      "pulls_total",
		Help:      "Scrapes issued per source (cache hits excluded).",
	}, []string{"source"})

	pullFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "valuemetric",
		Subsystem: "scraper",
		Name:      "pull_failures_total",
		Help:      "Scrapes that failed after all retries, per source.",
	}, []string{"source"})

	cacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "valuemetric",
		Subsystem: "scraper",
		Name:      "cache_hits_total",
		Help:      "Pulls served from the cool-down cache, per source.",
	}, []string{"source"})

	pullDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "valuemetric",
		Subsystem: "scraper",
		Name:      "pull_duration_seconds",
		Help:      "Scrape latency per source, retries included.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"source"})
)
