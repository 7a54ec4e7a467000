package repository

import (
	"context"

	"VitalWatch/internal/domain/models"
)

// ObservationStore is the concurrent patient record store.
type ObservationStore interface {
	Append(subjectID int, category string, value float64, ts int64) error
	Query(subjectID int, start, end int64) []models.Observation
	GetPatient(subjectID int) (models.Patient, bool)
	AllPatients() []models.Patient
	SubjectIDs() []int
	Count(subjectID int) int
}

// ObservationFeed streams observations from an external source.
type ObservationFeed interface {
	Connect(ctx context.Context) error
	Read(ctx context.Context) (<-chan models.FeedEvent, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// ObservationHistory is a read-only upstream archive of past observations.
type ObservationHistory interface {
	LoadSince(ctx context.Context, fromMillis int64, limit int) ([]models.Observation, error)
	Health(ctx context.Context) error
	Close() error
}

// AlertNotifier receives copies of newly raised alerts. Delivery is best effort.
type AlertNotifier interface {
	Notify(ctx context.Context, alerts []models.Alert) error
	Close() error
}

type Metrics interface {
	RecordObservation(category string)
	RecordAlert(condition string)
	RecordError(kind string)
	RecordPatients(n int)
	RecordLatency(op string, seconds float64)
}
