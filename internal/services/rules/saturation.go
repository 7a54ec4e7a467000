package rules

import (
	"VitalWatch/internal/domain/models"
	domsvc "VitalWatch/internal/domain/service"
)

// SaturationRapidDrop compares the first and last saturation sample inside the
// trailing window that ends at each saturation reading. A net drop of MinDrop
// or more fires, however many small steps it took.
type SaturationRapidDrop struct {
	WindowMillis int64
	MinDrop      float64
}

func NewSaturationRapidDrop() *SaturationRapidDrop {
	return &SaturationRapidDrop{WindowMillis: RapidDropWindowMillis, MinDrop: 5}
}

func (*SaturationRapidDrop) Name() string { return "saturation_rapid_drop" }

func (r *SaturationRapidDrop) Evaluate(subjectID int, window []models.Observation, out []models.Alert) []models.Alert {
	series := models.Filter(window, models.Saturation)
	for _, cur := range series {
		w := Trailing(series, windowStart(cur.Timestamp, r.WindowMillis), cur.Timestamp)
		if len(w) < 2 {
			continue
		}
		if w[0].Value-w[len(w)-1].Value >= r.MinDrop {
			out = append(out, models.NewAlert(subjectID, models.CondRapidSaturationDrop, cur.Timestamp))
		}
	}
	return out
}

var _ domsvc.Rule = (*SaturationRapidDrop)(nil)
