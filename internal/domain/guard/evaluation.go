package guard

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Verdict captures the outcome of a rule pass over one request,
// including which rule matched and why.
type Verdict struct {
	Decision  Decision  `json:"decision"`
	Risk      RiskLevel `json:"risk"`
	Profile   string    `json:"profile"`
	RuleIndex int       `json:"rule_index"` // -1 if no rule matched (risk default)
	Reason    string    `json:"reason"`
}

// Apply checks a Request against the profile's rules using first-match-wins.
// A rule that matched through a non-empty allow list downgrades the risk one
// step before its decision applies. When no rule matches, the decision falls
// back to the classified risk: Low and Medium allow, High and Critical
// require approval. Critical risk requires approval even when a rule
// allowed the call.
func (p *Profile) Apply(req Request, risk RiskLevel) Verdict {
	decision := Decision("")
	ruleIndex := -1
	reason := ""

	for i := range p.Rules {
		rule := &p.Rules[i]
		scoped, ok := rule.applies(req)
		if !ok {
			continue
		}
		if scoped && rule.Decision == DecisionAllow {
			risk = Downgrade(risk)
		}
		decision = rule.Decision
		ruleIndex = i
		reason = fmt.Sprintf("matched rule[%d]: tool=%q decision=%s", i, rule.Specifier.Tool, rule.Decision)
		break
	}

	if ruleIndex == -1 {
		if risk.AtLeast(RiskHigh) {
			decision = DecisionRequireApproval
			reason = fmt.Sprintf("no matching rule; %s risk requires approval", risk)
		} else {
			decision = DecisionAllow
			reason = fmt.Sprintf("no matching rule; %s risk allowed", risk)
		}
	}

	if decision == DecisionAllow && risk == RiskCritical {
		decision = DecisionRequireApproval
		reason = "critical risk requires approval"
	}

	return Verdict{
		Decision:  decision,
		Risk:      risk,
		Profile:   p.Name,
		RuleIndex: ruleIndex,
		Reason:    reason,
	}
}

// applies reports whether the rule covers the request. The second return
// is true when the rule matched; the first is true when it matched through
// one of its allow lists.
func (r *Rule) applies(req Request) (scoped, ok bool) {
	if !matchPattern(r.Specifier.Tool, req.Tool) {
		return false, false
	}
	if r.Specifier.SubPattern != "" && req.Command != "" {
		if !matchPattern(r.Specifier.SubPattern, req.Command) {
			return false, false
		}
	}
	if matchCommand(r.CommandDeny, req.Command) || matchPath(r.PathDeny, req.Path) {
		return false, false
	}
	if len(r.CommandAllow) > 0 {
		if !matchCommand(r.CommandAllow, req.Command) {
			return false, false
		}
		scoped = true
	}
	if len(r.PathAllow) > 0 {
		if !matchPath(r.PathAllow, req.Path) {
			return false, false
		}
		scoped = true
	}
	return scoped, true
}

// matchPattern checks whether a tool specifier pattern matches a name.
// Supports glob-style wildcards via filepath.Match:
//   - "*" matches everything
//   - "file_*" matches "file_read" and "file_write"
//   - "shell_exec" matches exactly
func matchPattern(pattern, name string) bool {
	if pattern == name {
		return true
	}
	matched, err := filepath.Match(pattern, name)
	return err == nil && matched
}

// matchCommand matches a command string against prefix or glob patterns.
// "git status" matches "git status" and "git status --short".
func matchCommand(patterns []string, command string) bool {
	if command == "" {
		return false
	}
	for _, pat := range patterns {
		if command == pat || strings.HasPrefix(command, pat+" ") {
			return true
		}
		if matched, err := filepath.Match(pat, command); err == nil && matched {
			return true
		}
	}
	return false
}

// matchPath matches a path against glob patterns with limited support for
// the "**/name" and "dir/**" forms used in profile files.
func matchPath(patterns []string, path string) bool {
	if path == "" {
		return false
	}
	for _, pat := range patterns {
		if matchOnePath(pat, path) {
			return true
		}
	}
	return false
}

func matchOnePath(pat, path string) bool {
	if matched, err := filepath.Match(pat, path); err == nil && matched {
		return true
	}
	if rest, found := strings.CutPrefix(pat, "**/"); found {
		if matched, err := filepath.Match(rest, filepath.Base(path)); err == nil && matched {
			return true
		}
	}
	if prefix, found := strings.CutSuffix(pat, "/**"); found {
		if path == prefix || strings.HasPrefix(path, prefix+"/") {
			return true
		}
	}
	return false
}
