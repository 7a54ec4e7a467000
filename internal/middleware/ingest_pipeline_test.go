package middleware

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"VitalWatch/internal/domain/models"
	"VitalWatch/pkg/metrics"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakyProc struct {
	mu       sync.Mutex
	failures int
	err      error
	got      []models.Observation
}

func (f *flakyProc) Process(_ context.Context, o *models.Observation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures > 0 {
		f.failures--
		return f.err
	}
	f.got = append(f.got, *o)
	return nil
}

func (f *flakyProc) received() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.got)
}

func obs(id int, c models.Category, v float64) *models.Observation {
	return &models.Observation{SubjectID: id, Category: c, Value: v, Timestamp: 1000}
}

func TestIngestPipeline_ForwardsValid(t *testing.T) {
	proc := &flakyProc{}
	p := NewIngestPipeline(proc, metrics.Nop{})

	require.NoError(t, p.Process(context.Background(), obs(1, models.HeartRate, 72)))
	assert.Equal(t, 1, proc.received())
}

func TestIngestPipeline_RejectsInvalid(t *testing.T) {
	proc := &flakyProc{}
	p := NewIngestPipeline(proc, metrics.Nop{})

	err := p.Process(context.Background(), obs(1, "Temperature", 37))
	assert.ErrorIs(t, err, models.ErrInvalidCategory)
	assert.Error(t, p.Process(context.Background(), nil))
	assert.Equal(t, 0, proc.received())
}

func TestIngestPipeline_DownstreamErrorReturned(t *testing.T) {
	proc := &flakyProc{failures: 1, err: errors.New("store closed")}
	p := NewIngestPipeline(proc, metrics.Nop{})

	err := p.Process(context.Background(), obs(1, models.HeartRate, 72))
	assert.EqualError(t, err, "store closed")
	require.NoError(t, p.Process(context.Background(), obs(1, models.HeartRate, 73)))
	assert.Equal(t, 1, proc.received())
}

func TestIngestPipeline_Throttle(t *testing.T) {
	proc := &flakyProc{}
	p := NewIngestPipeline(proc, metrics.Nop{}, WithRate(0, 2))
	ctx := context.Background()

	require.NoError(t, p.Process(ctx, obs(1, models.HeartRate, 70)))
	require.NoError(t, p.Process(ctx, obs(1, models.HeartRate, 71)))
	assert.ErrorIs(t, p.Process(ctx, obs(1, models.HeartRate, 72)), ErrThrottled)
	require.NoError(t, p.Process(ctx, obs(2, models.HeartRate, 70)), "other patients keep their own budget")
	assert.Equal(t, 3, proc.received())
}

func TestIngestPipeline_PrunesIdleBuckets(t *testing.T) {
	p := NewIngestPipeline(&flakyProc{}, metrics.Nop{}, WithBucketTTL(20*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, p.Process(ctx, obs(1, models.HeartRate, 70)))
	require.NoError(t, p.Process(ctx, obs(2, models.HeartRate, 70)))
	assert.Equal(t, 2, p.Tracked())

	p.Start(ctx)
	defer p.Stop()
	assert.Eventually(t, func() bool { return p.Tracked() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestIngestPipeline_StopIsIdempotent(t *testing.T) {
	p := NewIngestPipeline(&flakyProc{}, metrics.Nop{})
	p.Stop()
	p.Start(context.Background())
	p.Start(context.Background())
	p.Stop()
	p.Stop()
}
