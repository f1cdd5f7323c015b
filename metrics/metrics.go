// Package metrics exposes the sequencer's prometheus instrumentation.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config contains the configurable items for this package.
type Config struct {
	Enabled bool   `toml:"enabled"`
	Addr    string `toml:"addr"`
	Path    string `toml:"path"`
}

// NewDefaultConfig creates an instance of the package-specific configuration.
func NewDefaultConfig() Config {
	return Config{
		Enabled: true,
		Addr:    "localhost:2112",
		Path:    "/metrics",
	}
}

var (
	// RequestsProcessed counts requests by type and resulting error code.
	RequestsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sequencer",
			Name:      "requests_processed_total",
			Help:      "Number of requests processed, by type and error code",
		},
		[]string{"type", "error"},
	)

	// RequestDuration observes engine processing time per request type.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "sequencer",
			Name:      "request_duration_seconds",
			Help:      "Engine processing time per request",
			Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 12),
		},
		[]string{"type"},
	)

	// TradesCreated counts fills produced by the matching engine.
	TradesCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "sequencer",
			Name:      "trades_created_total",
			Help:      "Number of trades created by the matching engine",
		},
	)

	// CheckpointsWritten counts checkpoints persisted to the journal.
	CheckpointsWritten = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "sequencer",
			Name:      "checkpoints_written_total",
			Help:      "Number of checkpoints written to the journal",
		},
	)
)

func init() {
	prometheus.MustRegister(RequestsProcessed, RequestDuration, TradesCreated, CheckpointsWritten)
}

// Start serves the metrics endpoint. It blocks, so run it in its own
// goroutine.
func Start(cfg Config) error {
	if !cfg.Enabled {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.Handler())
	return http.ListenAndServe(cfg.Addr, mux)
}
