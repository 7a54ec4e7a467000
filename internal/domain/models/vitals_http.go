package models

// Requests for the vitals HTTP endpoints. Defined in domain for consistency and reuse.
// Omitted timestamps default to the time the request is handled.

type AppendObservationRequest struct {
	PatientID int      `json:"patient_id" validate:"gte=0"`
	Category  string   `json:"category" validate:"required"`
	Value     *float64 `json:"value" validate:"required"`
	Timestamp *int64   `json:"timestamp"`
}

type AppendBatchRequest struct {
	Observations []AppendObservationRequest `json:"observations" validate:"required,min=1,max=5000,dive"`
}

// Start and End accept epoch milliseconds or RFC3339; empty means unbounded.
type QueryObservationsRequest struct {
	PatientID int    `param:"id" validate:"gte=0"`
	Start     string `query:"start" validate:"omitempty,instant"`
	End       string `query:"end" validate:"omitempty,instant"`
}

type PatientPathRequest struct {
	PatientID int `param:"id" validate:"gte=0"`
}

type ListAlertsRequest struct {
	PatientID string `query:"patient_id" validate:"omitempty,patient_filter"`
	Condition string `query:"condition"`
	Limit     int    `query:"limit" default:"1000" validate:"gte=1,lte=100000"`
}

type RecentAlertsRequest struct {
	PatientID string `query:"patient_id" validate:"omitempty,patient_filter"`
	Limit     int    `query:"limit" default:"50" validate:"gte=1,lte=1000"`
}

type TriggerAlertRequest struct {
	PatientID int    `json:"patient_id" validate:"gte=0"`
	Condition string `json:"condition" default:"Manual Alert" validate:"required"`
	Timestamp *int64 `json:"timestamp"`
}

type UntriggerAlertRequest struct {
	PatientID int    `query:"patient_id" validate:"gte=0"`
	Condition string `query:"condition" validate:"required"`
}

// PatientSummary is the list view of a patient.
type PatientSummary struct {
	SubjectID    int   `json:"patient_id"`
	Observations int   `json:"observations"`
	LastSeen     int64 `json:"last_seen,omitempty"`
}

// BatchResult reports the outcome of a batch append.
type BatchResult struct {
	Accepted int            `json:"accepted"`
	Rejected int            `json:"rejected"`
	Errors   map[int]string `json:"errors,omitempty"`
}
