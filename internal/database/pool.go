package database

import (
	"log/slog"
	"time"

	"truefantix/internal/models"
)

// GetPoolStats - снимок sql.DBStats для админской сводки
func (db *DB) GetPoolStats() models.PoolStats {
	stats := db.Stats()
	return models.PoolStats{
		MaxOpenConns:      stats.MaxOpenConnections,
		OpenConns:         stats.OpenConnections,
		InUse:             stats.InUse,
		Idle:              stats.Idle,
		WaitCount:         stats.WaitCount,
		WaitDuration:      stats.WaitDuration,
		MaxIdleClosed:     stats.MaxIdleClosed,
		MaxLifetimeClosed: stats.MaxLifetimeClosed,
	}
}

// ValidateConnectionPool пишет предупреждения о перегрузке пула
func (db *DB) ValidateConnectionPool() {
	stats := db.Stats()

	if stats.InUse > int(float64(stats.MaxOpenConnections)*0.9) {
		slog.Warn("High connection usage detected",
			"in_use", stats.InUse, "max_open", stats.MaxOpenConnections)
	}

	if stats.WaitCount > 0 && stats.WaitDuration > time.Second {
		slog.Warn("High database wait times detected",
			"wait_count", stats.WaitCount, "wait_duration", stats.WaitDuration)
	}
}
