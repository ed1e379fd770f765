// Package guard defines the domain model for BrainStem's guard layer.
// Guard profiles govern which tools callers may invoke, under what
// conditions, and with what risk ceiling. Every invocation is reduced
// to one of three decisions: allow, deny, or require_approval.
package guard

// Decision is the result of evaluating a tool invocation against a Profile.
type Decision string

const (
	DecisionAllow           Decision = "allow"
	DecisionDeny            Decision = "deny"
	DecisionRequireApproval Decision = "require_approval"
)

// RiskLevel classifies how dangerous an invocation is before rules apply.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// AccessKind names a category of side effect a tool may produce.
type AccessKind string

const (
	AccessNetwork   AccessKind = "network"
	AccessFileRead  AccessKind = "file_read"
	AccessFileWrite AccessKind = "file_write"
	AccessCommand   AccessKind = "command"
)

// ToolSpecifier identifies a tool and optionally a sub-command pattern.
// Examples: Tool="file_read", Tool="shell_exec" SubPattern="git status*"
type ToolSpecifier struct {
	Tool       string `json:"tool" yaml:"tool"`
	SubPattern string `json:"sub_pattern,omitempty" yaml:"sub_pattern,omitempty"`
}

// Rule maps a ToolSpecifier to a Decision. The *Allow lists scope the
// rule in (when non-empty, the command/path must match one entry) and
// the *Deny lists scope it out (a match means the rule does not apply).
// Rules are evaluated first-match-wins.
type Rule struct {
	Specifier    ToolSpecifier `json:"specifier" yaml:"specifier"`
	Decision     Decision      `json:"decision" yaml:"decision"`
	PathAllow    []string      `json:"path_allow,omitempty" yaml:"path_allow,omitempty"`
	PathDeny     []string      `json:"path_deny,omitempty" yaml:"path_deny,omitempty"`
	CommandAllow []string      `json:"command_allow,omitempty" yaml:"command_allow,omitempty"`
	CommandDeny  []string      `json:"command_deny,omitempty" yaml:"command_deny,omitempty"`
}

// Profile is the top-level guard configuration bound to a caller or node.
// Sandbox names the access profiles the process sandbox enforces before
// any rule is consulted.
type Profile struct {
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Sandbox     []string `json:"sandbox" yaml:"sandbox"`
	Rules       []Rule   `json:"rules" yaml:"rules"`
}

// Request represents one tool invocation submitted to the guard engine.
type Request struct {
	Tool     string       `json:"tool"`
	Caller   string       `json:"caller"`
	Access   []AccessKind `json:"access,omitempty"`
	Command  string       `json:"command,omitempty"`
	Path     string       `json:"path,omitempty"`
	RiskHint RiskLevel    `json:"risk_hint,omitempty"`
}
