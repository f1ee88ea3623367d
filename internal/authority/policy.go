// Package authority decides when an action needs explicit user confirmation
// and ranks ambiguous calendar candidates.
package authority

// Risk classifies an action's blast radius.
type Risk string

const (
	RiskLow    Risk = "low"
	RiskMedium Risk = "medium"
	RiskHigh   Risk = "high"
)

// ConfidenceThreshold is the single trusted-domain fast-path constant: a
// medium-risk action skips confirmation only at or above this confidence.
const ConfidenceThreshold = 0.85

// Policy evaluates the risk-by-confidence confirmation rules.
type Policy struct {
	trusted map[string]bool
}

// NewPolicy creates a policy with the given trusted domains.
func NewPolicy(trustedDomains ...string) *Policy {
	trusted := make(map[string]bool, len(trustedDomains))
	for _, d := range trustedDomains {
		trusted[d] = true
	}
	return &Policy{trusted: trusted}
}

// DefaultPolicy trusts the three first-party service domains.
func DefaultPolicy() *Policy {
	return NewPolicy("gmail", "calendar", "trello")
}

// RequiresConfirmation decides whether (domain, action) at the given risk
// and confidence needs an explicit YES before executing.
func (p *Policy) RequiresConfirmation(domain, action string, risk Risk, confidence float64) bool {
	if !p.trusted[domain] {
		return true
	}
	switch risk {
	case RiskLow:
		return false
	case RiskHigh:
		return true
	default:
		return confidence < ConfidenceThreshold
	}
}
