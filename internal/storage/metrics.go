package storage

import (
	"context"

	"go.opentelemetry.io/otel/metric"

	"github.com/jsralgo/fxvault/internal/telemetry"
)

// RegisterPoolMetrics exposes pgxpool statistics as observable gauges.
// Safe to call once after New; instrument registration failures are
// ignored (a noop meter provider returns noop instruments).
func (db *DB) RegisterPoolMetrics() {
	meter := telemetry.Meter("fxvault/storage")

	acquired, _ := meter.Int64ObservableGauge("fxvault.db.pool.acquired",
		metric.WithDescription("Connections currently acquired from the pool"))
	idle, _ := meter.Int64ObservableGauge("fxvault.db.pool.idle",
		metric.WithDescription("Idle connections in the pool"))
	total, _ := meter.Int64ObservableGauge("fxvault.db.pool.total",
		metric.WithDescription("Total connections in the pool"))

	_, err := meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		stat := db.pool.Stat()
		o.ObserveInt64(acquired, int64(stat.AcquiredConns()))
		o.ObserveInt64(idle, int64(stat.IdleConns()))
		o.ObserveInt64(total, int64(stat.TotalConns()))
		return nil
	}, acquired, idle, total)
	if err != nil {
		db.logger.Warn("storage: register pool metrics", "error", err)
	}
}
