package rules

import (
	"math"
	"testing"

	"VitalWatch/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func obs(c models.Category, v float64, ts int64) models.Observation {
	return models.Observation{SubjectID: 1, Category: c, Value: v, Timestamp: ts}
}

func conditions(alerts []models.Alert) []string {
	out := make([]string, 0, len(alerts))
	for _, a := range alerts {
		out = append(out, a.Condition)
	}
	return out
}

func TestThresholdRules(t *testing.T) {
	tests := []struct {
		name   string
		rule   *Threshold
		window []models.Observation
		want   int
	}{
		{"heart rate above 100", NewHeartRate(), []models.Observation{obs(models.HeartRate, 101, 1)}, 1},
		{"heart rate at 100", NewHeartRate(), []models.Observation{obs(models.HeartRate, 100, 1)}, 0},
		{"heart rate ignores other categories", NewHeartRate(), []models.Observation{obs(models.Systolic, 150, 1)}, 0},
		{"saturation below 92", NewSaturationLow(), []models.Observation{obs(models.Saturation, 91.9, 1), obs(models.Saturation, 90, 2)}, 2},
		{"saturation at 92", NewSaturationLow(), []models.Observation{obs(models.Saturation, 92, 1)}, 0},
		{"ecg above 1.5", NewECGAbnormal(), []models.Observation{obs(models.ECG, 1.51, 1)}, 1},
		{"ecg at 1.5", NewECGAbnormal(), []models.Observation{obs(models.ECG, 1.5, 1)}, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := tc.rule.Evaluate(1, tc.window, nil)
			assert.Len(t, got, tc.want)
			for _, a := range got {
				assert.Equal(t, models.SeverityHigh, a.Severity)
				assert.Equal(t, models.SourceRule, a.Source)
			}
		})
	}
}

func TestBloodPressureCritical(t *testing.T) {
	r := NewBloodPressureCritical()

	window := []models.Observation{
		obs(models.Systolic, 185, 1),
		obs(models.Diastolic, 125, 1),
		obs(models.Systolic, 89, 2),
		obs(models.Diastolic, 59, 2),
		obs(models.Systolic, 180, 3),
		obs(models.Systolic, 90, 3),
		obs(models.Diastolic, 120, 3),
		obs(models.Diastolic, 60, 3),
		obs(models.HeartRate, 200, 4),
	}
	got := r.Evaluate(7, window, nil)
	require.Len(t, got, 4)
	for _, a := range got {
		assert.Equal(t, models.CondCriticalBP, a.Condition)
		assert.Equal(t, 7, a.SubjectID)
	}
	assert.Equal(t, int64(1), got[0].Timestamp)
	assert.Equal(t, int64(2), got[3].Timestamp)
}

func TestBloodPressureTrend(t *testing.T) {
	r := NewBloodPressureTrend()

	t.Run("increasing systolic", func(t *testing.T) {
		got := r.Evaluate(1, []models.Observation{
			obs(models.Systolic, 110, 1), obs(models.Systolic, 122, 2), obs(models.Systolic, 135, 3),
		}, nil)
		require.Len(t, got, 1)
		assert.Equal(t, models.CondIncreasingBPTrend, got[0].Condition)
		assert.Equal(t, int64(3), got[0].Timestamp)
	})

	t.Run("decreasing diastolic", func(t *testing.T) {
		got := r.Evaluate(1, []models.Observation{
			obs(models.Diastolic, 100, 1), obs(models.Diastolic, 85, 2), obs(models.Diastolic, 70, 3),
		}, nil)
		assert.Equal(t, []string{models.CondDecreasingBPTrend}, conditions(got))
	})

	t.Run("delta of exactly ten does not count", func(t *testing.T) {
		got := r.Evaluate(1, []models.Observation{
			obs(models.Systolic, 110, 1), obs(models.Systolic, 120, 2), obs(models.Systolic, 135, 3),
		}, nil)
		assert.Empty(t, got)
	})

	t.Run("mixed direction", func(t *testing.T) {
		got := r.Evaluate(1, []models.Observation{
			obs(models.Systolic, 110, 1), obs(models.Systolic, 130, 2), obs(models.Systolic, 115, 3),
		}, nil)
		assert.Empty(t, got)
	})

	t.Run("categories are not mixed", func(t *testing.T) {
		got := r.Evaluate(1, []models.Observation{
			obs(models.Systolic, 110, 1), obs(models.Diastolic, 122, 2), obs(models.Systolic, 135, 3),
		}, nil)
		assert.Empty(t, got)
	})

	t.Run("only the last three readings count", func(t *testing.T) {
		got := r.Evaluate(1, []models.Observation{
			obs(models.Systolic, 200, 0),
			obs(models.Systolic, 110, 1), obs(models.Systolic, 122, 2), obs(models.Systolic, 135, 3),
		}, nil)
		assert.Equal(t, []string{models.CondIncreasingBPTrend}, conditions(got))
	})

	t.Run("both categories trend independently", func(t *testing.T) {
		got := r.Evaluate(1, []models.Observation{
			obs(models.Systolic, 110, 1), obs(models.Diastolic, 90, 1),
			obs(models.Systolic, 122, 2), obs(models.Diastolic, 75, 2),
			obs(models.Systolic, 135, 3), obs(models.Diastolic, 60, 3),
		}, nil)
		assert.Equal(t, []string{models.CondIncreasingBPTrend, models.CondDecreasingBPTrend}, conditions(got))
	})

	t.Run("fewer than three readings", func(t *testing.T) {
		got := r.Evaluate(1, []models.Observation{obs(models.Systolic, 110, 1), obs(models.Systolic, 140, 2)}, nil)
		assert.Empty(t, got)
	})
}

func TestSaturationRapidDrop(t *testing.T) {
	r := NewSaturationRapidDrop()

	t.Run("drop at the window edge", func(t *testing.T) {
		got := r.Evaluate(1, []models.Observation{
			obs(models.Saturation, 97, 0), obs(models.Saturation, 91, 600_000),
		}, nil)
		require.Len(t, got, 1)
		assert.Equal(t, models.CondRapidSaturationDrop, got[0].Condition)
		assert.Equal(t, int64(600_000), got[0].Timestamp)
	})

	t.Run("drop outside the window", func(t *testing.T) {
		got := r.Evaluate(1, []models.Observation{
			obs(models.Saturation, 97, 0), obs(models.Saturation, 91, 600_001),
		}, nil)
		assert.Empty(t, got)
	})

	t.Run("net drop across small steps", func(t *testing.T) {
		got := r.Evaluate(1, []models.Observation{
			obs(models.Saturation, 98, 0),
			obs(models.Saturation, 97, 60_000),
			obs(models.Saturation, 95.5, 120_000),
			obs(models.Saturation, 94.5, 180_000),
			obs(models.Saturation, 93, 240_000),
		}, nil)
		require.Len(t, got, 1)
		assert.Equal(t, int64(240_000), got[0].Timestamp)
	})

	t.Run("drop below five", func(t *testing.T) {
		got := r.Evaluate(1, []models.Observation{
			obs(models.Saturation, 97, 0), obs(models.Saturation, 92.5, 1000),
		}, nil)
		assert.Empty(t, got)
	})

	t.Run("other categories are ignored", func(t *testing.T) {
		got := r.Evaluate(1, []models.Observation{
			obs(models.Saturation, 97, 0), obs(models.HeartRate, 50, 10), obs(models.Saturation, 96, 20),
		}, nil)
		assert.Empty(t, got)
	})

	t.Run("minimum timestamp does not wrap", func(t *testing.T) {
		got := r.Evaluate(1, []models.Observation{
			obs(models.Saturation, 99, math.MinInt64), obs(models.Saturation, 90, math.MinInt64+1),
		}, nil)
		assert.Len(t, got, 1)
	})
}

func TestHypotensiveHypoxemia(t *testing.T) {
	r := NewHypotensiveHypoxemia()

	got := r.Evaluate(1, []models.Observation{
		obs(models.Systolic, 85, 10), obs(models.Saturation, 95, 20), obs(models.Saturation, 90, 30),
	}, nil)
	require.Len(t, got, 1)
	assert.Equal(t, models.CondHypotensiveHypoxemia, got[0].Condition)
	assert.Equal(t, int64(30), got[0].Timestamp)

	assert.Empty(t, r.Evaluate(1, []models.Observation{obs(models.Systolic, 85, 10)}, nil))
	assert.Empty(t, r.Evaluate(1, []models.Observation{obs(models.Saturation, 85, 10)}, nil))
	assert.Empty(t, r.Evaluate(1, []models.Observation{
		obs(models.Systolic, 90, 10), obs(models.Saturation, 92, 10),
	}, nil))
}

func TestDefaultOrderAndSelect(t *testing.T) {
	var names []string
	for _, r := range Default() {
		names = append(names, r.Name())
	}
	assert.Equal(t, []string{
		"heart_rate", "blood_pressure_critical", "blood_pressure_trend",
		"saturation_low", "saturation_rapid_drop", "ecg_abnormal", "hypotensive_hypoxemia",
	}, names)

	sel := Select([]string{"ecg_abnormal", "heart_rate", "unknown"})
	require.Len(t, sel, 2)
	assert.Equal(t, "heart_rate", sel[0].Name())
	assert.Equal(t, "ecg_abnormal", sel[1].Name())
	assert.Len(t, Select(nil), 7)
}

func TestLastNAndTrailing(t *testing.T) {
	w := []models.Observation{
		obs(models.Systolic, 1, 1), obs(models.Diastolic, 2, 2), obs(models.Systolic, 3, 3), obs(models.Systolic, 4, 4),
	}
	last := LastN(w, models.Systolic, 2)
	require.Len(t, last, 2)
	assert.Equal(t, 3.0, last[0].Value)
	assert.Equal(t, 4.0, last[1].Value)

	tr := Trailing(w, 2, 3)
	require.Len(t, tr, 2)
	assert.Equal(t, int64(2), tr[0].Timestamp)
	assert.Equal(t, int64(3), tr[1].Timestamp)
}
