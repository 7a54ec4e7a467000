package usecase

import (
	"context"
	"encoding/json"

	"VitalWatch/pkg/queue"
)

// EvaluateJobType is the queue message type for deferred evaluations.
const EvaluateJobType = "evaluate_patient"

// EvaluateRequest is the payload of an EvaluateJobType message.
type EvaluateRequest struct {
	PatientID int `json:"patient_id"`
}

// EvaluateJob runs the alert engine for patients named by queued messages.
type EvaluateJob struct {
	engine *AlertEngine
}

func NewEvaluateJob(engine *AlertEngine) *EvaluateJob {
	return &EvaluateJob{engine: engine}
}

func (j *EvaluateJob) Name() string { return "evaluate-job" }
func (j *EvaluateJob) Type() string { return EvaluateJobType }

func (j *EvaluateJob) Handle(ctx context.Context, payload json.RawMessage) error {
	req, err := queue.Decode[EvaluateRequest](payload)
	if err != nil {
		return err
	}
	j.engine.Evaluate(ctx, req.PatientID)
	return nil
}
