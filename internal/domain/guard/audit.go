package guard

import "time"

// ApprovalOutcome records how a require_approval decision was resolved.
type ApprovalOutcome string

const (
	ApprovalApproved ApprovalOutcome = "approved"
	ApprovalDenied   ApprovalOutcome = "denied"
	ApprovalTimeout  ApprovalOutcome = "timeout"
)

// AuditEntry is one append-only record of a guard evaluation. Entries are
// written once per evaluation and never edited in place, only exported.
type AuditEntry struct {
	ID       string          `json:"id"`
	Time     time.Time       `json:"time"`
	Caller   string          `json:"caller"`
	Tool     string          `json:"tool"`
	Access   []AccessKind    `json:"access,omitempty"`
	Decision Decision        `json:"decision"`
	Risk     RiskLevel       `json:"risk"`
	Profile  string          `json:"profile"`
	Reason   string          `json:"reason"`
	Approval ApprovalOutcome `json:"approval,omitempty"`
}
