/*
result.go - Validation outcomes

PURPOSE:
  Validation failures are results, not errors. The pipeline evaluates
  every rule and reports all violations; batch validation isolates items
  so one bad reading never hides problems in the rest.

SEVERITIES:
  invalid  the reading/change must not be persisted as-is
  warning  the reading is acceptable but should be routed to review
           (reconciliation deltas over tolerance, accepted corrections)

SEE ALSO:
  - engine.go: The rule pipeline
*/
package validation

// Status is the aggregate outcome for one validated entity.
type Status string

const (
	StatusValid   Status = "valid"
	StatusInvalid Status = "invalid"
	StatusWarning Status = "warning"
)

// Rule identifies one pipeline rule. Rule ids are stable and appear in
// API responses and audit reasons.
type Rule string

const (
	RuleTemporal       Rule = "temporal_validity"
	RuleMonotonicity   Rule = "monotonicity"
	RuleRateChange     Rule = "rate_change_restriction"
	RuleReconciliation Rule = "estimated_actual_reconciliation"
)

// Violation is one rule failure with a human-readable reason.
type Violation struct {
	Rule     Rule
	Severity Status
	Message  string
}

// Result is the outcome of validating one entity.
type Result struct {
	EntityID   string
	Status     Status
	Violations []Violation
}

// Violated reports whether the given rule appears in the violations.
func (r Result) Violated(rule Rule) bool {
	for _, v := range r.Violations {
		if v.Rule == rule {
			return true
		}
	}
	return false
}

// add records a violation and downgrades the aggregate status. Invalid
// dominates warning; warnings never mask an invalid outcome.
func (r *Result) add(rule Rule, severity Status, message string) {
	r.Violations = append(r.Violations, Violation{Rule: rule, Severity: severity, Message: message})
	if severity == StatusInvalid {
		r.Status = StatusInvalid
	} else if r.Status == StatusValid {
		r.Status = StatusWarning
	}
}

// BatchResult aggregates per-item results with counts. Items keep the
// input order; Results[i] corresponds to the i-th submitted reading.
type BatchResult struct {
	Results  []Result
	Valid    int
	Invalid  int
	Warnings int
}

func (b *BatchResult) append(r Result) {
	b.Results = append(b.Results, r)
	switch r.Status {
	case StatusInvalid:
		b.Invalid++
	case StatusWarning:
		b.Warnings++
	default:
		b.Valid++
	}
}
