package persistence

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/coachpo/chronicle/internal/infra/telemetry"
)

// ObservePoolMetrics registers observable gauges that report pool occupancy.
// Gauges emit total, idle, in-use and constructing connection counts.
func ObservePoolMetrics(pool Pool, poolName string) {
	if pool == nil {
		return
	}
	normalized := strings.TrimSpace(poolName)
	if normalized == "" {
		normalized = "primary"
	}
	attrs := metric.WithAttributes(telemetry.PoolAttributes(telemetry.Environment(), normalized, pool.Dialect().String())...)

	gauges := []struct {
		name        string
		description string
		value       func(Stats) int64
	}{
		{"chronicle_db_pool_connections_total", "Total connections (idle + in use + constructing)", func(s Stats) int64 { return s.Total }},
		{"chronicle_db_pool_connections_idle", "Idle connections ready for checkout", func(s Stats) int64 { return s.Idle }},
		{"chronicle_db_pool_connections_in_use", "Connections currently held by callers", func(s Stats) int64 { return s.InUse }},
		{"chronicle_db_pool_connections_constructing", "Connections currently being constructed", func(s Stats) int64 { return s.Constructing }},
	}
	meter := otel.Meter("chronicle.persistence.pool")
	for _, g := range gauges {
		value := g.value
		if _, err := meter.Int64ObservableGauge(g.name,
			metric.WithDescription(g.description),
			metric.WithUnit("{connection}"),
			metric.WithInt64Callback(func(_ context.Context, observer metric.Int64Observer) error {
				observer.Observe(value(pool.Stats()), attrs)
				return nil
			}),
		); err != nil {
			return
		}
	}
}
