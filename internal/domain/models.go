package domain

import "time"

type TargetID string

// Status is the coarse availability of a target as seen by one probe.
type Status string

const (
	StatusHealthy     Status = "healthy"
	StatusDegraded    Status = "degraded"
	StatusUnreachable Status = "unreachable"
)

// Severity classifies how urgent a verdict is. Severities are ordered:
// info < warning < critical.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Rank maps a severity onto the ordering used by cooldown escalation
// checks. Unknown values rank below info.
func (s Severity) Rank() int {
	switch s {
	case SeverityInfo:
		return 1
	case SeverityWarning:
		return 2
	case SeverityCritical:
		return 3
	default:
		return 0
	}
}

// Baseline holds the expected-normal operating range for a target.
type Baseline struct {
	LatencyMS    float64 `json:"latency_ms" yaml:"baseline_latency_ms"`
	ErrorRatePct float64 `json:"error_rate" yaml:"baseline_error_rate"`
}

// Target is one monitored platform API. The set of targets is fixed at
// configuration load and never mutated afterwards.
type Target struct {
	ID       TargetID `json:"id" yaml:"id"`
	URL      string   `json:"url" yaml:"url"`
	Name     string   `json:"name" yaml:"name"`
	Baseline Baseline `json:"baseline" yaml:",inline"`
}

// HealthRecord is a point-in-time measurement of one target. Records are
// created fresh on every probe and never mutated.
type HealthRecord struct {
	TargetID          TargetID  `json:"platform"`
	Status            Status    `json:"status"`
	LatencyMS         float64   `json:"response_time"`
	ErrorRatePct      float64   `json:"error_rate"`
	QuotaUsedFraction float64   `json:"quota_used"`
	Details           string    `json:"details,omitempty"`
	CheckedAt         time.Time `json:"last_check"`
}

// Verdict is the classification of one HealthRecord.
type Verdict struct {
	TargetID          TargetID  `json:"platform"`
	Severity          Severity  `json:"severity"`
	Message           string    `json:"message"`
	RecommendedAction string    `json:"recommended_action"`
	ShouldEmit        bool      `json:"should_alert"`
	Status            Status    `json:"status"`
	LatencyMS         float64   `json:"response_time"`
	ErrorRatePct      float64   `json:"error_rate"`
	At                time.Time `json:"timestamp"`
}

// CheckedTarget pairs a record with its verdict for status responses and
// snapshot broadcasts.
type CheckedTarget struct {
	HealthRecord
	Analysis Verdict `json:"analysis"`
}
