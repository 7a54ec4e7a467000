package rules

import (
	"VitalWatch/internal/domain/models"
	domsvc "VitalWatch/internal/domain/service"
)

// BloodPressureCritical fires once per systolic or diastolic reading outside the safe band.
type BloodPressureCritical struct{}

func NewBloodPressureCritical() *BloodPressureCritical { return &BloodPressureCritical{} }

func (BloodPressureCritical) Name() string { return "blood_pressure_critical" }

func (BloodPressureCritical) Evaluate(subjectID int, window []models.Observation, out []models.Alert) []models.Alert {
	for _, o := range window {
		var critical bool
		switch o.Category {
		case models.Systolic:
			critical = o.Value > 180 || o.Value < 90
		case models.Diastolic:
			critical = o.Value > 120 || o.Value < 60
		}
		if critical {
			out = append(out, models.NewAlert(subjectID, models.CondCriticalBP, o.Timestamp))
		}
	}
	return out
}

// BloodPressureTrend looks at the last TrendLength readings of each pressure
// category on its own. Every consecutive delta must exceed TrendDelta in the same direction.
type BloodPressureTrend struct {
	TrendLength int
	TrendDelta  float64
}

func NewBloodPressureTrend() *BloodPressureTrend {
	return &BloodPressureTrend{TrendLength: 3, TrendDelta: 10}
}

func (*BloodPressureTrend) Name() string { return "blood_pressure_trend" }

func (r *BloodPressureTrend) Evaluate(subjectID int, window []models.Observation, out []models.Alert) []models.Alert {
	for _, c := range []models.Category{models.Systolic, models.Diastolic} {
		last := LastN(window, c, r.TrendLength)
		if len(last) < r.TrendLength || r.TrendLength < 2 {
			continue
		}
		rising, falling := true, true
		for i := 1; i < len(last); i++ {
			d := last[i].Value - last[i-1].Value
			if d <= r.TrendDelta {
				rising = false
			}
			if -d <= r.TrendDelta {
				falling = false
			}
		}
		ts := last[len(last)-1].Timestamp
		switch {
		case rising:
			out = append(out, models.NewAlert(subjectID, models.CondIncreasingBPTrend, ts))
		case falling:
			out = append(out, models.NewAlert(subjectID, models.CondDecreasingBPTrend, ts))
		}
	}
	return out
}

var (
	_ domsvc.Rule = (*BloodPressureCritical)(nil)
	_ domsvc.Rule = (*BloodPressureTrend)(nil)
)
