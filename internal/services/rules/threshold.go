package rules

import (
	"VitalWatch/internal/domain/models"
	domsvc "VitalWatch/internal/domain/service"
)

// Threshold emits one alert per reading of a category that crosses a fixed limit.
type Threshold struct {
	name      string
	category  models.Category
	condition string
	fires     func(v float64) bool
}

func (r *Threshold) Name() string { return r.name }

func (r *Threshold) Evaluate(subjectID int, window []models.Observation, out []models.Alert) []models.Alert {
	for _, o := range window {
		if o.Category == r.category && r.fires(o.Value) {
			out = append(out, models.NewAlert(subjectID, r.condition, o.Timestamp))
		}
	}
	return out
}

// NewHeartRate fires on heart rate above 100 bpm.
func NewHeartRate() *Threshold {
	return &Threshold{
		name:      "heart_rate",
		category:  models.HeartRate,
		condition: models.CondHighHeartRate,
		fires:     func(v float64) bool { return v > 100 },
	}
}

// NewSaturationLow fires on oxygen saturation below 92%.
func NewSaturationLow() *Threshold {
	return &Threshold{
		name:      "saturation_low",
		category:  models.Saturation,
		condition: models.CondLowSaturation,
		fires:     func(v float64) bool { return v < 92 },
	}
}

// NewECGAbnormal fires on ECG amplitude above 1.5.
func NewECGAbnormal() *Threshold {
	return &Threshold{
		name:      "ecg_abnormal",
		category:  models.ECG,
		condition: models.CondAbnormalECG,
		fires:     func(v float64) bool { return v > 1.5 },
	}
}

var _ domsvc.Rule = (*Threshold)(nil)
