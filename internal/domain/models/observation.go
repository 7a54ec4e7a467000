package models

import (
	"errors"
	"fmt"
)

// ErrInvalidCategory is returned when an observation carries an empty or unknown category.
var ErrInvalidCategory = errors.New("invalid category")

// Category is a recognised vital-sign measurement kind.
type Category string

const (
	HeartRate       Category = "HeartRate"
	Systolic        Category = "Systolic"
	Diastolic       Category = "Diastolic"
	Saturation      Category = "Saturation"
	ECG             Category = "ECG"
	Cholesterol     Category = "Cholesterol"
	WhiteBloodCells Category = "WhiteBloodCells"
	RedBloodCells   Category = "RedBloodCells"
)

var knownCategories = map[Category]struct{}{
	HeartRate:       {},
	Systolic:        {},
	Diastolic:       {},
	Saturation:      {},
	ECG:             {},
	Cholesterol:     {},
	WhiteBloodCells: {},
	RedBloodCells:   {},
}

// ParseCategory validates a raw label. Matching is exact.
func ParseCategory(s string) (Category, error) {
	if s == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidCategory)
	}
	c := Category(s)
	if _, ok := knownCategories[c]; !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidCategory, s)
	}
	return c, nil
}

// Categories lists every recognised category.
func Categories() []Category {
	return []Category{HeartRate, Systolic, Diastolic, Saturation, ECG, Cholesterol, WhiteBloodCells, RedBloodCells}
}

// Observation is one timestamped reading. Timestamp is epoch milliseconds.
type Observation struct {
	SubjectID int      `json:"patient_id"`
	Category  Category `json:"category"`
	Value     float64  `json:"value"`
	Timestamp int64    `json:"timestamp"`
}

// Patient is a snapshot of one subject's history, ordered by timestamp.
type Patient struct {
	SubjectID    int           `json:"patient_id"`
	Observations []Observation `json:"observations"`
}

// Filter returns the observations of the given category, preserving order.
func Filter(obs []Observation, c Category) []Observation {
	var out []Observation
	for _, o := range obs {
		if o.Category == c {
			out = append(out, o)
		}
	}
	return out
}

// AlertLabel marks feed lines that toggle a manual alert instead of carrying a reading.
const AlertLabel = "Alert"

// Manual alert states carried by feed lines labelled AlertLabel.
const (
	AlertTriggered = "triggered"
	AlertResolved  = "resolved"
)

// FeedEvent is one parsed feed line. Label is kept raw so the store owns category validation.
type FeedEvent struct {
	SubjectID  int
	Label      string
	Value      float64
	AlertState string
	Timestamp  int64
}

// IsAlert reports whether the event toggles a manual alert.
func (e FeedEvent) IsAlert() bool { return e.Label == AlertLabel }
