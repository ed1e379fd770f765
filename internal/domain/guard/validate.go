package guard

import "fmt"

// Validate checks that a Profile is well-formed.
func (p *Profile) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("guard: name is required")
	}
	for i, s := range p.Sandbox {
		if s == "" {
			return fmt.Errorf("guard: sandbox[%d]: name must not be empty", i)
		}
	}
	for i := range p.Rules {
		if err := p.Rules[i].Validate(); err != nil {
			return fmt.Errorf("guard: rule[%d]: %w", i, err)
		}
	}
	return nil
}

// Validate checks that a Rule is well-formed.
func (r *Rule) Validate() error {
	if r.Specifier.Tool == "" {
		return fmt.Errorf("tool is required")
	}
	if !isValidDecision(r.Decision) {
		return fmt.Errorf("invalid decision %q", r.Decision)
	}
	return nil
}

func isValidDecision(d Decision) bool {
	switch d {
	case DecisionAllow, DecisionDeny, DecisionRequireApproval:
		return true
	}
	return false
}

// IsValidRisk reports whether lvl is one of the four known levels.
func IsValidRisk(lvl RiskLevel) bool {
	switch lvl {
	case RiskLow, RiskMedium, RiskHigh, RiskCritical:
		return true
	}
	return false
}
