package metrics

import (
	"context"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/milalabs/licsync/internal/gitsync"
	"github.com/milalabs/licsync/internal/license"
)

// StatusSource reports the current sync state.
type StatusSource interface {
	GetStatus(ctx context.Context) (*gitsync.SyncState, error)
}

// CacheSizer reports how many entries a cache holds.
type CacheSizer interface {
	Size() int
}

// Collector implements prometheus.Collector for values read at scrape time.
type Collector struct {
	startTime time.Time
	version   string
	status    StatusSource
	licenses  license.Service
	cache     CacheSizer

	infoDesc        *prometheus.Desc
	uptimeDesc      *prometheus.Desc
	pendingPushDesc *prometheus.Desc
	phaseDesc       *prometheus.Desc
	licensesDesc    *prometheus.Desc
	cacheDesc       *prometheus.Desc
}

// NewCollector creates a new metrics collector. Any source may be nil.
func NewCollector(version string, status StatusSource, licenses license.Service, cache CacheSizer) *Collector {
	return &Collector{
		startTime: time.Now(),
		version:   version,
		status:    status,
		licenses:  licenses,
		cache:     cache,

		infoDesc: prometheus.NewDesc(
			"licsync_info",
			"Licsync build information",
			[]string{"version", "go_version"},
			nil,
		),
		uptimeDesc: prometheus.NewDesc(
			"licsync_uptime_seconds",
			"Time since server start",
			nil,
			nil,
		),
		pendingPushDesc: prometheus.NewDesc(
			"licsync_sync_pending_push",
			"Whether local changes are waiting to be pushed",
			nil,
			nil,
		),
		phaseDesc: prometheus.NewDesc(
			"licsync_sync_phase",
			"Current sync phase",
			[]string{"phase"},
			nil,
		),
		licensesDesc: prometheus.NewDesc(
			"licsync_licenses_total",
			"Number of license records by activation state",
			[]string{"activated"},
			nil,
		),
		cacheDesc: prometheus.NewDesc(
			"licsync_collection_cache_entries",
			"Number of parsed collections held in memory",
			nil,
			nil,
		),
	}
}

// Describe implements prometheus.Collector
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.infoDesc
	ch <- c.uptimeDesc
	ch <- c.pendingPushDesc
	ch <- c.phaseDesc
	ch <- c.licensesDesc
	ch <- c.cacheDesc
}

// Collect implements prometheus.Collector
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ch <- prometheus.MustNewConstMetric(c.infoDesc, prometheus.GaugeValue, 1, c.version, runtime.Version())
	ch <- prometheus.MustNewConstMetric(c.uptimeDesc, prometheus.GaugeValue, time.Since(c.startTime).Seconds())

	if c.status != nil {
		if state, err := c.status.GetStatus(ctx); err == nil {
			ch <- prometheus.MustNewConstMetric(c.pendingPushDesc, prometheus.GaugeValue, boolValue(state.PendingPush))
			ch <- prometheus.MustNewConstMetric(c.phaseDesc, prometheus.GaugeValue, 1, string(state.Phase))
		}
	}

	if c.licenses != nil {
		if all, err := c.licenses.ListAll(ctx, ""); err == nil {
			var activated int
			for _, r := range all {
				if r.Activated {
					activated++
				}
			}
			ch <- prometheus.MustNewConstMetric(c.licensesDesc, prometheus.GaugeValue, float64(activated), "true")
			ch <- prometheus.MustNewConstMetric(c.licensesDesc, prometheus.GaugeValue, float64(len(all)-activated), "false")
		}
	}

	if c.cache != nil {
		ch <- prometheus.MustNewConstMetric(c.cacheDesc, prometheus.GaugeValue, float64(c.cache.Size()))
	}
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
