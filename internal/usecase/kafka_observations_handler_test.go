package usecase

import (
	"context"
	"math"
	"testing"

	mid "VitalWatch/internal/middleware"
	"VitalWatch/internal/repository"
	pkgkafka "VitalWatch/pkg/kafka"
	"VitalWatch/pkg/metrics"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKafkaObservationsHandler_Handle(t *testing.T) {
	store := repository.NewPatientStore()
	pipe := mid.NewIngestPipeline(NewObservationProcessor(store, metrics.Nop{}), metrics.Nop{})
	h := NewKafkaObservationsHandler("vitals.observations", pipe, metrics.Nop{})
	ctx := context.Background()

	assert.Equal(t, "vitals.observations", h.Topic())

	require.NoError(t, h.Handle(ctx, []byte(`{"patient_id":5,"category":"Saturation","value":96,"timestamp":1700000000000}`)))
	require.NoError(t, h.Handle(ctx, []byte(`{"patient_id":5,"category":"HeartRate","value":70,"timestamp":600000}`)))

	got := store.Query(5, math.MinInt64, math.MaxInt64)
	require.Len(t, got, 2)
	assert.Equal(t, int64(600_000), got[0].Timestamp, "small millisecond timestamps are stored unchanged")
	assert.Equal(t, int64(1_700_000_000_000), got[1].Timestamp)

	assert.NoError(t, h.Handle(ctx, []byte(`{"patient_id":5,"category":"Temperature","value":37,"timestamp":1}`)), "invalid categories are acknowledged")
	assert.Equal(t, 2, store.Count(5))

	err := h.Handle(ctx, []byte(`not json`))
	assert.True(t, pkgkafka.IsPermanent(err), "undecodable records go straight to the dead-letter topic")
	err = h.Handle(ctx, []byte(`{"category":"HeartRate","value":70}`))
	assert.True(t, pkgkafka.IsPermanent(err))
	assert.Equal(t, []int{5}, store.SubjectIDs())
}
