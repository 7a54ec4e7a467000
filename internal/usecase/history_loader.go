package usecase

import (
	"context"
	"fmt"
	"time"

	drepo "VitalWatch/internal/domain/repository"
	applogger "VitalWatch/pkg/logger"
)

// HistoryLoader backfills the in-memory store from an upstream archive at startup.
type HistoryLoader struct {
	history  drepo.ObservationHistory
	proc     *ObservationProcessor
	l        *applogger.Logger
	lookback time.Duration
	limit    int
	now      func() time.Time
}

// NewHistoryLoader creates a loader reading the last lookback of history, at most limit rows.
func NewHistoryLoader(history drepo.ObservationHistory, proc *ObservationProcessor, l *applogger.Logger, lookback time.Duration, limit int) *HistoryLoader {
	if l == nil {
		l = applogger.NewNop()
	}
	return &HistoryLoader{history: history, proc: proc, l: l, lookback: lookback, limit: limit, now: time.Now}
}

// Load copies archived observations into the store. Rows with unknown
// categories are skipped and counted; they never abort the load.
func (h *HistoryLoader) Load(ctx context.Context) (loaded, skipped int, err error) {
	from := h.now().Add(-h.lookback).UnixMilli()
	if h.lookback <= 0 {
		from = 0
	}
	rows, err := h.history.LoadSince(ctx, from, h.limit)
	if err != nil {
		return 0, 0, fmt.Errorf("load history: %w", err)
	}
	failed := h.proc.ProcessBatch(ctx, rows)
	skipped = len(failed)
	loaded = len(rows) - skipped
	h.l.Info("history backfill complete",
		applogger.Int("loaded", loaded),
		applogger.Int("skipped", skipped),
		applogger.Int64("from", from),
	)
	return loaded, skipped, nil
}
