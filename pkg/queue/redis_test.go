package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ping struct {
	N int `json:"n"`
}

type recordJob struct {
	mu   sync.Mutex
	seen []int
	err  error
}

func (j *recordJob) Name() string { return "record" }
func (j *recordJob) Type() string { return "ping" }

func (j *recordJob) Handle(_ context.Context, payload json.RawMessage) error {
	p, err := Decode[ping](payload)
	if err != nil {
		return err
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	j.seen = append(j.seen, p.N)
	return j.err
}

func (j *recordJob) count() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.seen)
}

func newQueue(t *testing.T, cfg QueueConfig, opts ...RedisQueueOption) *RedisQueue {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisQueue(nil, cfg, client, opts...)
}

func TestRedisQueueProcessesJobs(t *testing.T) {
	q := newQueue(t, QueueConfig{Workers: 2, PollInterval: 20 * time.Millisecond})
	job := &recordJob{}
	q.RegisterJob(job)
	require.NoError(t, q.Start(context.Background()))
	t.Cleanup(func() { _ = q.Stop(context.Background()) })

	for i := 0; i < 5; i++ {
		require.NoError(t, q.Enqueue(context.Background(), "ping", ping{N: i}))
	}
	assert.Eventually(t, func() bool { return job.count() == 5 }, 5*time.Second, 10*time.Millisecond)

	err := q.Enqueue(context.Background(), "unknown", ping{})
	assert.Error(t, err)
}

func TestRedisQueueDeadLettersAfterRetries(t *testing.T) {
	q := newQueue(t, QueueConfig{
		Workers:      1,
		RetryLimit:   1,
		RetryDelay:   time.Millisecond,
		PollInterval: 20 * time.Millisecond,
	})
	job := &recordJob{err: errors.New("boom")}
	q.RegisterJob(job)
	require.NoError(t, q.Start(context.Background()))
	t.Cleanup(func() { _ = q.Stop(context.Background()) })

	require.NoError(t, q.Enqueue(context.Background(), "ping", ping{N: 7}))

	assert.Eventually(t, func() bool {
		_, _, dead, err := q.Len(context.Background())
		return err == nil && dead == 1
	}, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, 2, job.count())
}

func TestRedisQueueLifecycle(t *testing.T) {
	q := newQueue(t, QueueConfig{}, WithMode(ModeProducerOnly), WithKeyPrefix("test:q"))

	assert.ErrorIs(t, q.Enqueue(context.Background(), "ping", ping{}), ErrNotRunning)

	q.RegisterJob(&recordJob{})
	require.NoError(t, q.Start(context.Background()))
	assert.Error(t, q.Start(context.Background()))

	require.NoError(t, q.Enqueue(context.Background(), "anything", ping{N: 1}))
	pending, _, _, err := q.Len(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), pending)

	require.NoError(t, q.Stop(context.Background()))
	require.NoError(t, q.Stop(context.Background()))
}

func TestDecode(t *testing.T) {
	p, err := Decode[ping](json.RawMessage(`{"n":3}`))
	require.NoError(t, err)
	assert.Equal(t, 3, p.N)

	_, err = Decode[ping](nil)
	assert.Error(t, err)
	_, err = Decode[ping](json.RawMessage(`{`))
	assert.Error(t, err)
}
