package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Sync metrics
	PagesFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feed_relay_pages_fetched_total",
			Help: "Article pages fetched from upstream",
		},
		[]string{"status"},
	)

	ArticlesUpserted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "feed_relay_articles_upserted_total",
			Help: "Articles written to storage",
		},
	)

	SweepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "feed_relay_sweep_duration_seconds",
			Help:    "Duration of multi-feed sync sweeps",
			Buckets: []float64{1, 10, 60, 300, 900, 1800, 3600, 7200},
		},
		[]string{"mode", "status"},
	)

	SweepsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feed_relay_sweeps_skipped_total",
			Help: "Sweeps and backfills ignored because one was already running",
		},
		[]string{"mode"},
	)

	// Credential metrics
	UpstreamErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feed_relay_upstream_errors_total",
			Help: "Classified upstream failures",
		},
		[]string{"kind"},
	)

	CredentialSelections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feed_relay_credential_selections_total",
			Help: "Credential selection attempts",
		},
		[]string{"result"},
	)

	BlockedCredentials = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "feed_relay_blocked_credentials",
			Help: "Credentials on today's blocklist",
		},
	)

	Reauthentications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feed_relay_reauthentications_total",
			Help: "Re-authentication attempts by outcome",
		},
		[]string{"result"},
	)

	HealthProbes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feed_relay_health_probes_total",
			Help: "Credential validity probes by pass and verdict",
		},
		[]string{"pass", "verdict"},
	)
)
