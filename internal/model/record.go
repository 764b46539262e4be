package model

import "time"

// Record is a quantified emission record checked by the quality pass.
type Record struct {
	Date           time.Time
	ID             string
	Description    string
	Unit           string
	FactorID       string
	Category       Category
	Quantity       float64
	EmissionKgCO2e float64
}

// AnomalyType names a quality issue.
type AnomalyType string

// Anomaly types.
const (
	AnomalyDuplicate        AnomalyType = "duplicate"
	AnomalyOutlier          AnomalyType = "outlier"
	AnomalyUnitInconsistent AnomalyType = "unit_inconsistency"
	AnomalyMissingCategory  AnomalyType = "missing_category"
	AnomalyAI               AnomalyType = "ai_detected"
)

// Severity of an anomaly.
type Severity string

// Severities.
const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// AnomalySource tells whether an anomaly came from the deterministic checks or the AI pass.
type AnomalySource string

// Anomaly sources.
const (
	AnomalySourceRules AnomalySource = "rules"
	AnomalySourceAI    AnomalySource = "ai"
)

// Anomaly is one finding of the quality pass.
type Anomaly struct {
	Type     AnomalyType
	Severity Severity
	Message  string
	RecordID string
	FactorID string
	Category Category
	Source   AnomalySource
	ZScore   float64
}
