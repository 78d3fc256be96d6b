package models

// Severity classifies a quality finding.
type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// QualityFinding is the ephemeral result of one audit rule over the
// warehouse. Findings are produced fresh each audit run and never persisted;
// violations are reported, not auto-corrected.
type QualityFinding struct {
	Rule       string   `json:"rule"`
	Severity   Severity `json:"severity"`
	Violations int64    `json:"violations"`
	Passed     bool     `json:"passed"`
	// Detail carries the sanitized storage error when the rule itself could
	// not run. A rule that errors counts as not passed but never blocks the
	// remaining rules.
	Detail string `json:"detail,omitempty"`
}
