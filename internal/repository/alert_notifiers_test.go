package repository

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"VitalWatch/internal/domain/models"
	"VitalWatch/pkg/cache"
	pkgkafka "VitalWatch/pkg/kafka"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	topic  string
	msgs   []pkgkafka.Message
	err    error
	closed bool
}

func (f *fakePublisher) PublishBatch(_ context.Context, topic string, msgs []pkgkafka.Message) error {
	f.topic = topic
	f.msgs = append(f.msgs, msgs...)
	return f.err
}

func (f *fakePublisher) Close() error {
	f.closed = true
	return nil
}

func TestKafkaAlertPublisher_Notify(t *testing.T) {
	pub := &fakePublisher{}
	p := NewKafkaAlertPublisher(pub, "vitals.alerts")
	alerts := []models.Alert{
		models.NewAlert(3, models.CondAbnormalECG, 10),
		models.NewExternalAlert(4, models.CondManual, 11),
	}

	require.NoError(t, p.Notify(context.Background(), alerts))
	assert.Equal(t, "vitals.alerts", pub.topic)
	require.Len(t, pub.msgs, 2)
	assert.Equal(t, []byte("3"), pub.msgs[0].Key)
	assert.Equal(t, alerts[1], pub.msgs[1].Value)
	assert.True(t, time.UnixMilli(10).Equal(pub.msgs[0].Time))
	assert.Equal(t, map[string]string{
		"condition": models.CondAbnormalECG,
		"severity":  "High",
		"source":    "rule",
	}, pub.msgs[0].Headers)
	assert.Equal(t, "external", pub.msgs[1].Headers["source"])

	require.NoError(t, p.Notify(context.Background(), nil))
	assert.Len(t, pub.msgs, 2)

	pub.err = errors.New("leader not available")
	assert.ErrorContains(t, p.Notify(context.Background(), alerts), "publish alerts")

	require.NoError(t, p.Close())
	assert.True(t, pub.closed)
}

func newBoard(t *testing.T, maxLen int) (*miniredis.Miniredis, *cache.RedisCache, *RedisAlertBoard) {
	t.Helper()
	mr := miniredis.RunT(t)
	rc, err := cache.NewRedisCache(cache.WithRedisAddr(mr.Addr()), cache.WithRedisPrefix("vw"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = rc.Close() })
	return mr, rc, NewRedisAlertBoard(rc, maxLen, time.Hour)
}

func TestRedisAlertBoard_NotifyAndRecent(t *testing.T) {
	mr, _, board := newBoard(t, 2)
	ctx := context.Background()

	require.NoError(t, board.Notify(ctx, []models.Alert{
		models.NewAlert(1, models.CondHighHeartRate, 100),
		models.NewAlert(2, models.CondLowSaturation, 101),
		models.NewAlert(1, models.CondAbnormalECG, 102),
	}))

	recent, err := board.Recent(ctx, -1, 0)
	require.NoError(t, err)
	require.Len(t, recent, 2, "global list is capped")
	assert.Equal(t, models.CondAbnormalECG, recent[0].Condition)
	assert.Equal(t, models.CondLowSaturation, recent[1].Condition)

	p1, err := board.Recent(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, p1, 2)
	assert.Equal(t, models.CondAbnormalECG, p1[0].Condition)
	assert.Equal(t, models.SeverityHigh, p1[0].Severity)
	assert.Equal(t, time.Hour, mr.TTL("vw:alerts:patient:1"))

	none, err := board.Recent(ctx, 9, 10)
	require.NoError(t, err)
	assert.Empty(t, none)

	require.NoError(t, board.Clear(ctx))
	assert.False(t, mr.Exists("vw:alerts:recent"))
	assert.False(t, mr.Exists("vw:alerts:patient:1"))
}

func TestRedisAlertBoard_Remove(t *testing.T) {
	_, _, board := newBoard(t, 10)
	ctx := context.Background()

	require.NoError(t, board.Notify(ctx, []models.Alert{
		models.NewExternalAlert(1, models.CondManual, 100),
		models.NewAlert(1, models.CondHighHeartRate, 101),
		models.NewExternalAlert(1, models.CondManual, 102),
		models.NewExternalAlert(2, models.CondManual, 103),
	}))

	n, err := board.Remove(ctx, 1, models.CondManual)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	p1, err := board.Recent(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, p1, 1)
	assert.Equal(t, models.CondHighHeartRate, p1[0].Condition)

	all, err := board.Recent(ctx, -1, 10)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, 2, all[0].SubjectID, "other patients keep their manual alert")
	assert.Equal(t, models.CondHighHeartRate, all[1].Condition)

	n, err = board.Remove(ctx, 1, models.CondManual)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRedisAlertBoard_Publishes(t *testing.T) {
	_, rc, board := newBoard(t, 10)
	ctx := context.Background()

	sub := rc.Client().Subscribe(ctx, "vw:alerts")
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	a := models.NewAlert(5, models.CondCriticalBP, 42)
	require.NoError(t, board.Notify(ctx, []models.Alert{a}))

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)
	var got models.Alert
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
	assert.Equal(t, a, got)
}

func TestRedisAlertBoard_Unavailable(t *testing.T) {
	mr, _, board := newBoard(t, 10)
	mr.Close()
	assert.Error(t, board.Notify(context.Background(), []models.Alert{models.NewAlert(1, models.CondManual, 1)}))
}

type errNotifier struct {
	err   error
	calls int
}

func (e *errNotifier) Notify(context.Context, []models.Alert) error {
	e.calls++
	return e.err
}

func (e *errNotifier) Close() error { return e.err }

func TestMultiNotifier(t *testing.T) {
	bad := &errNotifier{err: errors.New("down")}
	good := &errNotifier{}
	m := MultiNotifier{bad, good}

	err := m.Notify(context.Background(), []models.Alert{models.NewAlert(1, models.CondManual, 1)})
	assert.ErrorContains(t, err, "down")
	assert.Equal(t, 1, bad.calls)
	assert.Equal(t, 1, good.calls, "later notifiers still run")
	assert.Error(t, m.Close())
	assert.NoError(t, MultiNotifier{good}.Close())
}
