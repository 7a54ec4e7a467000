package rules

import (
	"VitalWatch/internal/domain/models"
	domsvc "VitalWatch/internal/domain/service"
)

// HypotensiveHypoxemia fires once when the window holds both a systolic reading
// below 90 and a saturation reading below 92. The alert carries the later of the
// two first triggering timestamps.
type HypotensiveHypoxemia struct{}

func NewHypotensiveHypoxemia() *HypotensiveHypoxemia { return &HypotensiveHypoxemia{} }

func (HypotensiveHypoxemia) Name() string { return "hypotensive_hypoxemia" }

func (HypotensiveHypoxemia) Evaluate(subjectID int, window []models.Observation, out []models.Alert) []models.Alert {
	var (
		lowBP, lowSat bool
		bpTS, satTS   int64
	)
	for _, o := range window {
		switch {
		case o.Category == models.Systolic && o.Value < 90 && !lowBP:
			lowBP, bpTS = true, o.Timestamp
		case o.Category == models.Saturation && o.Value < 92 && !lowSat:
			lowSat, satTS = true, o.Timestamp
		}
	}
	if !lowBP || !lowSat {
		return out
	}
	ts := bpTS
	if satTS > ts {
		ts = satTS
	}
	return append(out, models.NewAlert(subjectID, models.CondHypotensiveHypoxemia, ts))
}

var _ domsvc.Rule = (*HypotensiveHypoxemia)(nil)
