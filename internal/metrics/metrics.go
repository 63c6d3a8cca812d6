// Package metrics holds the Prometheus collectors for scraping and answering.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Scrape and conversation Prometheus metrics.
var (
	LinksCollectedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "intbuddy",
			Name:      "links_collected_total",
			Help:      "Total number of interview links collected from listing pages",
		},
	)

	ExtractionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "intbuddy",
			Name:      "extractions_total",
			Help:      "Detail page extractions by outcome",
		},
		[]string{"outcome"}, // "success" / "failure"
	)

	ScrapeRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "intbuddy",
			Name:      "scrape_runs_total",
			Help:      "Scrape runs by final status",
		},
		[]string{"status"},
	)

	ScrapeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "intbuddy",
			Name:      "scrape_duration_seconds",
			Help:      "Wall-clock duration of a scrape run",
			Buckets:   []float64{5, 15, 30, 60, 120, 300, 600},
		},
	)

	QuestionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "intbuddy",
			Name:      "questions_total",
			Help:      "Questions handled by the conversation engine",
		},
		[]string{"status"}, // "answered" / "error" / "ended"
	)

	IndexCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "intbuddy",
			Name:      "index_cache_total",
			Help:      "Knowledge index cache hits and misses",
		},
		[]string{"result"},
	)
)

var registerOnce sync.Once

// Register registers all collectors with the default registry. Safe to call
// more than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			LinksCollectedTotal,
			ExtractionsTotal,
			ScrapeRunsTotal,
			ScrapeDuration,
			QuestionsTotal,
			IndexCacheTotal,
		)
	})
}
