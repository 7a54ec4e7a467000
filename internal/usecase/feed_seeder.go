package usecase

import (
	"context"

	"VitalWatch/internal/domain/models"
	"VitalWatch/internal/service/feed"
)

// FeedSeeder loads feed files straight into the store at startup. It skips the
// ingest pipeline so recorded files are not subject to live-feed throttling.
type FeedSeeder struct {
	reader *feed.FileReader
	proc   *ObservationProcessor
	engine *AlertEngine
}

func NewFeedSeeder(reader *feed.FileReader, proc *ObservationProcessor, engine *AlertEngine) *FeedSeeder {
	return &FeedSeeder{reader: reader, proc: proc, engine: engine}
}

// Seed loads every file and returns the accepted and skipped line counts.
func (s *FeedSeeder) Seed(ctx context.Context) (accepted, skipped int, err error) {
	return s.reader.Load(ctx, func(ctx context.Context, ev models.FeedEvent) error {
		return routeEvent(ctx, s.engine, s.proc, ev)
	})
}
