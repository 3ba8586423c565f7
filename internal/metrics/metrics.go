// Package metrics exposes sync and backup outcomes to Prometheus.
package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/milalabs/licsync/internal/backup"
	"github.com/milalabs/licsync/internal/gitsync"
)

// Metrics holds the counters updated by sync and backup results.
type Metrics struct {
	syncTotal       *prometheus.CounterVec
	syncDuration    *prometheus.HistogramVec
	syncLastSuccess *prometheus.GaugeVec
	syncedFiles     *prometheus.CounterVec
	backupTotal     *prometheus.CounterVec
}

// NewMetrics creates and registers the metrics with the given registry.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		syncTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "licsync_sync_total",
			Help: "Total number of sync cycles by direction, trigger and outcome",
		}, []string{"direction", "trigger", "outcome"}),
		syncDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "licsync_sync_duration_seconds",
			Help:    "Duration of sync cycles by direction",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"direction"}),
		syncLastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "licsync_sync_last_success_timestamp_seconds",
			Help: "Unix time of the last successful sync by direction",
		}, []string{"direction"}),
		syncedFiles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "licsync_synced_collections_total",
			Help: "Total number of collections written by sync cycles",
		}, []string{"direction"}),
		backupTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "licsync_backup_total",
			Help: "Total number of backup transfers by operation and outcome",
		}, []string{"operation", "outcome"}),
	}

	registry.MustRegister(
		m.syncTotal,
		m.syncDuration,
		m.syncLastSuccess,
		m.syncedFiles,
		m.backupTotal,
	)

	return m
}

// ObserveSync records a sync result. It has the shape of a
// gitsync.ResultHook.
func (m *Metrics) ObserveSync(_ context.Context, result *gitsync.SyncResult) {
	if m == nil || result == nil {
		return
	}
	direction := string(result.Direction)
	m.syncTotal.WithLabelValues(direction, string(result.Trigger), syncOutcome(result)).Inc()
	if result.Skipped {
		return
	}
	m.syncDuration.WithLabelValues(direction).Observe(result.Duration.Seconds())
	if result.Success {
		m.syncLastSuccess.WithLabelValues(direction).Set(float64(result.Timestamp.Unix()))
		m.syncedFiles.WithLabelValues(direction).Add(float64(len(result.Synced)))
	}
}

// ObserveBackup records a backup result.
func (m *Metrics) ObserveBackup(result *backup.Result) {
	if m == nil || result == nil {
		return
	}
	outcome := "success"
	if !result.Success {
		outcome = "failure"
	}
	m.backupTotal.WithLabelValues(string(result.Operation), outcome).Inc()
}

func syncOutcome(r *gitsync.SyncResult) string {
	switch {
	case r.Skipped:
		return "skipped"
	case r.Success:
		return "success"
	default:
		return "failure"
	}
}
