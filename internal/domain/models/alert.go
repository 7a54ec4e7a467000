package models

// Severity ranks how urgently an alert needs attention.
type Severity string

const (
	SeverityLow    Severity = "Low"
	SeverityMedium Severity = "Medium"
	SeverityHigh   Severity = "High"
)

// AlertSource tells rule-driven alerts apart from manual ones.
type AlertSource string

const (
	SourceRule     AlertSource = "rule"
	SourceExternal AlertSource = "external"
)

// Condition labels emitted by the rule set.
const (
	CondHighHeartRate        = "High Heart Rate"
	CondCriticalBP           = "Critical Blood Pressure"
	CondIncreasingBPTrend    = "Increasing Blood Pressure Trend"
	CondDecreasingBPTrend    = "Decreasing Blood Pressure Trend"
	CondLowSaturation        = "Low Blood Saturation"
	CondRapidSaturationDrop  = "Rapid Blood Saturation Drop"
	CondAbnormalECG          = "Abnormal ECG"
	CondHypotensiveHypoxemia = "Hypotensive Hypoxemia"
	CondManual               = "Manual Alert"
)

// severities maps condition labels to severity. Low and Medium are reserved
// for non-critical notices.
var severities = map[string]Severity{
	CondHighHeartRate:        SeverityHigh,
	CondCriticalBP:           SeverityHigh,
	CondIncreasingBPTrend:    SeverityHigh,
	CondDecreasingBPTrend:    SeverityHigh,
	CondLowSaturation:        SeverityHigh,
	CondRapidSaturationDrop:  SeverityHigh,
	CondAbnormalECG:          SeverityHigh,
	CondHypotensiveHypoxemia: SeverityHigh,
	CondManual:               SeverityHigh,
}

// SeverityFor resolves the severity of a condition label. Unknown labels are High.
func SeverityFor(condition string) Severity {
	if s, ok := severities[condition]; ok {
		return s
	}
	return SeverityHigh
}

// Alert is an immutable record of a detected condition.
type Alert struct {
	SubjectID int         `json:"patient_id"`
	Condition string      `json:"condition"`
	Timestamp int64       `json:"timestamp"`
	Severity  Severity    `json:"severity"`
	Source    AlertSource `json:"source"`
}

// NewAlert builds a rule-origin alert with its severity resolved.
func NewAlert(subjectID int, condition string, ts int64) Alert {
	return Alert{
		SubjectID: subjectID,
		Condition: condition,
		Timestamp: ts,
		Severity:  SeverityFor(condition),
		Source:    SourceRule,
	}
}

// NewExternalAlert builds an alert supplied by a caller rather than a rule.
func NewExternalAlert(subjectID int, condition string, ts int64) Alert {
	a := NewAlert(subjectID, condition, ts)
	a.Source = SourceExternal
	return a
}

// Matches reports whether the alert belongs to subject and carries condition exactly.
func (a Alert) Matches(subjectID int, condition string) bool {
	return a.SubjectID == subjectID && a.Condition == condition
}
