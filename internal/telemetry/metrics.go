// Package telemetry exposes Prometheus collectors and the status HTTP server
// for a crawl process.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	articlesProcessedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wikigraph_articles_processed_total",
			Help: "Total number of articles marked processed by this crawl process.",
		},
	)

	linksSavedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wikigraph_links_saved_total",
			Help: "Total number of outgoing links persisted.",
		},
	)

	fetchFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wikigraph_fetch_failures_total",
			Help: "Total number of failed page fetches.",
		},
	)

	recordFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wikigraph_record_failures_total",
			Help: "Total number of failed result writes.",
		},
	)

	backlogRemaining = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "wikigraph_backlog_remaining",
			Help: "Unprocessed articles remaining in this shard at the last batch boundary.",
		},
	)
)

// ArticleProcessed counts one article marked processed with n saved links.
func ArticleProcessed(n int) {
	articlesProcessedTotal.Inc()
	linksSavedTotal.Add(float64(n))
}

// FetchFailure counts one failed page fetch.
func FetchFailure() {
	fetchFailuresTotal.Inc()
}

// RecordFailure counts one failed result write.
func RecordFailure() {
	recordFailuresTotal.Inc()
}

// SetBacklog publishes the remaining backlog size.
func SetBacklog(remaining int64) {
	backlogRemaining.Set(float64(remaining))
}
