package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dash_requests_total",
			Help: "Total number of requests",
		},
		[]string{"route", "code", "method"},
	)

	FetchErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dash_fetch_errors_total",
			Help: "Failed collaborator fetches by collaborator",
		},
		[]string{"collaborator"},
	)

	FetchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dash_fetch_seconds",
			Help:    "Duration of collaborator fetches",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"collaborator"},
	)

	LiveMessages = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dash_live_messages_total",
			Help: "Push notifications received on live channels",
		},
	)

	LiveOpen = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dash_live_channels_open",
			Help: "Live channels currently connected",
		},
	)

	LiveReconnects = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dash_live_reconnects_total",
			Help: "Live channel reconnect attempts",
		},
	)

	ViewsOpen = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dash_views_open",
			Help: "View sessions currently open",
		},
	)

	CacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dash_cache_lookups_total",
			Help: "Collaborator cache lookups by result",
		},
		[]string{"result"},
	)

	RateLimitExceeded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dash_rate_limit_exceeded_total",
			Help: "Total rate limit exceeded",
		},
	)
)

var registerOnce sync.Once

// InitMetrics registers the collectors with the default registry. Safe to
// call more than once.
func InitMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(RequestsTotal, FetchErrors, FetchDuration, LiveMessages, LiveOpen,
			LiveReconnects, ViewsOpen, CacheLookups, RateLimitExceeded)
	})
}
