package rules

import domsvc "VitalWatch/internal/domain/service"

// Default returns the standard rule set in evaluation order.
func Default() []domsvc.Rule {
	return []domsvc.Rule{
		NewHeartRate(),
		NewBloodPressureCritical(),
		NewBloodPressureTrend(),
		NewSaturationLow(),
		NewSaturationRapidDrop(),
		NewECGAbnormal(),
		NewHypotensiveHypoxemia(),
	}
}

// Select returns the rules of Default whose names appear in names, keeping
// registration order. An empty names list selects every rule.
func Select(names []string) []domsvc.Rule {
	all := Default()
	if len(names) == 0 {
		return all
	}
	want := make(map[string]struct{}, len(names))
	for _, n := range names {
		want[n] = struct{}{}
	}
	out := make([]domsvc.Rule, 0, len(names))
	for _, r := range all {
		if _, ok := want[r.Name()]; ok {
			out = append(out, r)
		}
	}
	return out
}
