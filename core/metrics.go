// core/metrics.go
package core

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the Prometheus instruments the Sync Engine updates once
// per cycle, one gauge registered per tracked stat.
type Metrics struct {
	registry *prometheus.Registry

	syncRateGauge     prometheus.Gauge
	blocksBehindGauge prometheus.Gauge
	progressGauge     prometheus.Gauge
	cycleFailures     prometheus.Counter
	cacheHits         *prometheus.CounterVec
	cacheMisses       *prometheus.CounterVec
}

// NewMetrics builds and registers the indexer's metric set against a fresh
// registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		syncRateGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fluxrevenue_sync_rate_blocks_per_sec",
			Help: "Rolling blocks-per-second rate of the most recent sync cycle.",
		}),
		blocksBehindGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fluxrevenue_blocks_behind",
			Help: "Blocks remaining before the store reaches the chain tip.",
		}),
		progressGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fluxrevenue_sync_progress_pct",
			Help: "Overall sync progress as a fraction (0 to 1) of the retention window.",
		}),
		cycleFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fluxrevenue_cycle_failures_total",
			Help: "Number of sync cycles that aborted before completion.",
		}),
		cacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fluxrevenue_cache_hits_total",
			Help: "Cache hits by cache name.",
		}, []string{"cache"}),
		cacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fluxrevenue_cache_misses_total",
			Help: "Cache misses by cache name.",
		}, []string{"cache"}),
	}

	reg.MustRegister(
		m.syncRateGauge,
		m.blocksBehindGauge,
		m.progressGauge,
		m.cycleFailures,
		m.cacheHits,
		m.cacheMisses,
	)
	return m
}

// Registry exposes the underlying Prometheus registry, e.g. for wiring a
// promhttp.HandlerFor in cmd/server.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordCycle updates the per-cycle gauges after a Sync Engine cycle
// completes (successfully or not).
func (m *Metrics) RecordCycle(status SyncStatus, failed bool) {
	m.syncRateGauge.Set(status.SyncRateBlocksPerSec)
	m.blocksBehindGauge.Set(float64(status.NewBlocksRemaining + status.HistoricalBlocksRemaining))
	m.progressGauge.Set(status.ProgressPct)
	if failed {
		m.cycleFailures.Inc()
	}
}

// RecordCacheHit and RecordCacheMiss tag cache outcomes by name; the Chain
// Client records its resolved-address ("address") and block-body ("block")
// caches. The network-stats caches are not recorded.
func (m *Metrics) RecordCacheHit(cache string)  { m.cacheHits.WithLabelValues(cache).Inc() }
func (m *Metrics) RecordCacheMiss(cache string) { m.cacheMisses.WithLabelValues(cache).Inc() }
