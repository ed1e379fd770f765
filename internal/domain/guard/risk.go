package guard

// riskRank orders levels so they can be compared and clamped.
var riskRank = map[RiskLevel]int{
	RiskLow:      0,
	RiskMedium:   1,
	RiskHigh:     2,
	RiskCritical: 3,
}

// Rank returns the ordinal of a risk level. Unknown levels rank lowest.
func (r RiskLevel) Rank() int {
	return riskRank[r]
}

// AtLeast reports whether r is as severe as min.
func (r RiskLevel) AtLeast(min RiskLevel) bool {
	return r.Rank() >= min.Rank()
}

// MaxRisk returns the more severe of two levels.
func MaxRisk(a, b RiskLevel) RiskLevel {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// Downgrade lowers a level by one step. Low stays Low.
func Downgrade(r RiskLevel) RiskLevel {
	switch r {
	case RiskCritical:
		return RiskHigh
	case RiskHigh:
		return RiskMedium
	case RiskMedium:
		return RiskLow
	default:
		return RiskLow
	}
}

// baseRiskByAccess is the baseline classification per access kind.
// Command execution starts at High; reads start at Low.
var baseRiskByAccess = map[AccessKind]RiskLevel{
	AccessCommand:   RiskHigh,
	AccessFileWrite: RiskMedium,
	AccessNetwork:   RiskMedium,
	AccessFileRead:  RiskLow,
}

// RiskTable classifies invocations by tool name with a fallback on the
// access kinds the tool declares.
type RiskTable struct {
	Tools map[string]RiskLevel `json:"tools,omitempty" yaml:"tools,omitempty"`
}

// Classify returns the risk level for a request: the per-tool entry when
// present, otherwise the most severe baseline across the declared access
// kinds, and never below the caller's declared hint.
func (t RiskTable) Classify(req Request) RiskLevel {
	risk := RiskLow
	if lvl, ok := t.Tools[req.Tool]; ok {
		risk = lvl
	} else {
		for _, kind := range req.Access {
			if base, ok := baseRiskByAccess[kind]; ok {
				risk = MaxRisk(risk, base)
			}
		}
	}
	return MaxRisk(risk, req.RiskHint)
}
