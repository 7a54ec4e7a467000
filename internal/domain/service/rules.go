package service

import "VitalWatch/internal/domain/models"

// Rule inspects a patient's observation window and appends zero or more alerts to out.
// The window is ordered by timestamp and belongs to a single subject.
type Rule interface {
	Name() string
	Evaluate(subjectID int, window []models.Observation, out []models.Alert) []models.Alert
}
