package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"VitalWatch/internal/domain/models"
	domrepo "VitalWatch/internal/domain/repository"
	mid "VitalWatch/internal/middleware"
	pkgkafka "VitalWatch/pkg/kafka"
)

// KafkaObservationsHandler consumes observation messages and feeds them through the ingest pipeline.
type KafkaObservationsHandler struct {
	topic   string
	pipe    mid.Proc
	metrics domrepo.Metrics
}

func NewKafkaObservationsHandler(topic string, pipe mid.Proc, metrics domrepo.Metrics) *KafkaObservationsHandler {
	return &KafkaObservationsHandler{topic: topic, pipe: pipe, metrics: metrics}
}

func (h *KafkaObservationsHandler) Topic() string { return h.topic }

// incoming message schema: {patient_id, category, value, timestamp}, timestamp in epoch millis
func (h *KafkaObservationsHandler) Handle(ctx context.Context, b []byte) error {
	var m struct {
		PatientID *int     `json:"patient_id"`
		Category  string   `json:"category"`
		Value     *float64 `json:"value"`
		Timestamp int64    `json:"timestamp"`
	}
	if err := json.Unmarshal(b, &m); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return pkgkafka.Permanent(fmt.Errorf("decode observation: %w", err))
	}
	if m.PatientID == nil || m.Value == nil {
		h.metrics.RecordError("consumer_unmarshal")
		return pkgkafka.Permanent(errors.New("decode observation: patient_id and value are required"))
	}
	h.metrics.RecordLatency("ingest_e2e_seconds", time.Since(time.UnixMilli(m.Timestamp)).Seconds())

	err := h.pipe.Process(ctx, &models.Observation{
		SubjectID: *m.PatientID,
		Category:  models.Category(m.Category),
		Value:     *m.Value,
		Timestamp: m.Timestamp,
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, models.ErrInvalidCategory), errors.Is(err, mid.ErrThrottled):
		// retrying cannot help; acknowledge and move on
		h.metrics.RecordError("consumer_rejected")
		return nil
	default:
		h.metrics.RecordError("consumer_store")
		return err
	}
}

var _ pkgkafka.MessageHandler = (*KafkaObservationsHandler)(nil)
