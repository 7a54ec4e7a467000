package usecase

import (
	"context"
	"testing"

	"VitalWatch/internal/domain/models"
	"VitalWatch/internal/repository"
	"VitalWatch/pkg/metrics"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObservationProcessor_Process(t *testing.T) {
	store := repository.NewPatientStore()
	p := NewObservationProcessor(store, metrics.Nop{})

	require.NoError(t, p.Process(context.Background(), &models.Observation{SubjectID: 3, Category: models.ECG, Value: 0.4, Timestamp: t0}))
	assert.Equal(t, 1, store.Count(3))

	err := p.Process(context.Background(), &models.Observation{SubjectID: 3, Category: "Temp", Value: 1, Timestamp: t0})
	assert.ErrorIs(t, err, models.ErrInvalidCategory)
	assert.Error(t, p.Process(context.Background(), nil))
}

func TestObservationProcessor_ProcessBatch(t *testing.T) {
	store := repository.NewPatientStore()
	p := NewObservationProcessor(store, metrics.Nop{})

	failed := p.ProcessBatch(context.Background(), []models.Observation{
		{SubjectID: 1, Category: models.HeartRate, Value: 80, Timestamp: t0},
		{SubjectID: 1, Category: "", Value: 80, Timestamp: t0},
		{SubjectID: 2, Category: models.Systolic, Value: 120, Timestamp: t0},
	})
	require.Len(t, failed, 1)
	assert.ErrorIs(t, failed[1], models.ErrInvalidCategory)
	assert.Equal(t, []int{1, 2}, store.SubjectIDs())
	assert.Nil(t, p.ProcessBatch(context.Background(), nil))
}
