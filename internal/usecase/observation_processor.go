package usecase

import (
	"context"
	"fmt"
	"time"

	"VitalWatch/internal/domain/models"
	drepo "VitalWatch/internal/domain/repository"
)

// ObservationProcessor writes observations into the store and records ingest metrics.
type ObservationProcessor struct {
	store   drepo.ObservationStore
	metrics drepo.Metrics
}

// NewObservationProcessor creates a new ObservationProcessor instance.
func NewObservationProcessor(store drepo.ObservationStore, metrics drepo.Metrics) *ObservationProcessor {
	return &ObservationProcessor{store: store, metrics: metrics}
}

// Process appends a single observation.
func (p *ObservationProcessor) Process(_ context.Context, o *models.Observation) error {
	if o == nil {
		return fmt.Errorf("observation is nil")
	}
	start := time.Now()
	if err := p.store.Append(o.SubjectID, string(o.Category), o.Value, o.Timestamp); err != nil {
		p.metrics.RecordError("process")
		return fmt.Errorf("process observation: %w", err)
	}
	p.metrics.RecordObservation(string(o.Category))
	p.metrics.RecordLatency("process", time.Since(start).Seconds())
	return nil
}

// ProcessBatch appends every observation it can and returns the per-index
// errors of those it could not. One bad observation does not stop the batch.
func (p *ObservationProcessor) ProcessBatch(ctx context.Context, obs []models.Observation) map[int]error {
	if len(obs) == 0 {
		return nil
	}
	start := time.Now()
	var failed map[int]error
	for i := range obs {
		if err := p.Process(ctx, &obs[i]); err != nil {
			if failed == nil {
				failed = make(map[int]error)
			}
			failed[i] = err
		}
	}
	p.metrics.RecordLatency("process_batch", time.Since(start).Seconds())
	return failed
}
