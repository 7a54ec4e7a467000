package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"VitalWatch/internal/domain/models"
	domrepo "VitalWatch/internal/domain/repository"
)

// ObservationHistorySchema returns the DDL for the archive table read by ClickHouseHistory.
func ObservationHistorySchema(table string) []string {
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	ts DateTime64(3),
	patient_id UInt32,
	category LowCardinality(String),
	value Float64
) ENGINE = MergeTree ORDER BY (patient_id, ts)`, table),
	}
}

// ClickHouseHistory reads archived observations from ClickHouse. It never writes.
type ClickHouseHistory struct {
	db    *sql.DB
	table string
}

// NewClickHouseHistory creates a history reader over table.
func NewClickHouseHistory(db *sql.DB, table string) *ClickHouseHistory {
	return &ClickHouseHistory{db: db, table: table}
}

// LoadSince returns observations with ts >= fromMillis ordered by time, at most limit rows.
func (h *ClickHouseHistory) LoadSince(ctx context.Context, fromMillis int64, limit int) ([]models.Observation, error) {
	if limit <= 0 {
		limit = 100000
	}
	q := fmt.Sprintf("SELECT patient_id, category, value, ts FROM %s WHERE ts >= ? ORDER BY ts ASC LIMIT ?", h.table)
	rows, err := h.db.QueryContext(ctx, q, time.UnixMilli(fromMillis).UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	out := make([]models.Observation, 0, 256)
	for rows.Next() {
		var (
			id       uint32
			category string
			value    float64
			ts       time.Time
		)
		if err := rows.Scan(&id, &category, &value, &ts); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		out = append(out, models.Observation{
			SubjectID: int(id),
			Category:  models.Category(category),
			Value:     value,
			Timestamp: ts.UnixMilli(),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return out, nil
}

// Health pings the database.
func (h *ClickHouseHistory) Health(ctx context.Context) error {
	return h.db.PingContext(ctx)
}

// Close is a no-op; the pool belongs to the ClickHouse client.
func (h *ClickHouseHistory) Close() error { return nil }

var _ domrepo.ObservationHistory = (*ClickHouseHistory)(nil)
