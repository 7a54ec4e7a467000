package usecase

import (
	"context"
	"testing"
	"time"

	"VitalWatch/internal/repository"
	"VitalWatch/internal/services/rules"
	"VitalWatch/pkg/metrics"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluationScheduler_RunOnceOnlyDirtyPatients(t *testing.T) {
	store := repository.NewPatientStore()
	engine := NewAlertEngine(store, rules.Default())
	s := NewEvaluationScheduler(store, engine, metrics.Nop{}, nil, time.Hour, 2)
	ctx := context.Background()

	for id := 1; id <= 5; id++ {
		require.NoError(t, store.Append(id, "HeartRate", 110, t0))
	}
	assert.Equal(t, 5, s.RunOnce(ctx))
	assert.Equal(t, 0, s.RunOnce(ctx), "no new observations, nothing to evaluate")

	require.NoError(t, store.Append(3, "HeartRate", 70, t0+1))
	assert.Equal(t, 1, s.RunOnce(ctx))
	assert.Len(t, engine.Alerts(), 6)
}

func TestEvaluationScheduler_StartStop(t *testing.T) {
	store := repository.NewPatientStore()
	engine := NewAlertEngine(store, rules.Default())
	s := NewEvaluationScheduler(store, engine, metrics.Nop{}, nil, 10*time.Millisecond, 0)
	require.NoError(t, store.Append(1, "ECG", 2.0, t0))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	s.Start(ctx)

	assert.Eventually(t, func() bool { return len(engine.Alerts()) == 1 }, time.Second, 5*time.Millisecond)
	s.Stop()
	s.Stop()
	assert.Len(t, engine.Alerts(), 1)
}
