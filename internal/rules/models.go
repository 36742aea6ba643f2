package rules

import "time"

// SLAStatus is the compliance state of a case against its due date.
type SLAStatus string

const (
	SLAOnTrack  SLAStatus = "onTrack"
	SLAAtRisk   SLAStatus = "atRisk"
	SLABreached SLAStatus = "breached"
)

// ApprovalStatus is the approval outcome visible to consumers.
type ApprovalStatus string

const (
	ApprovalNone     ApprovalStatus = "none"
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// SLA is the computed due date and compliance status for one case.
type SLA struct {
	DueDate time.Time `json:"dueDate"`
	Status  SLAStatus `json:"status"`
}

// Approval reports whether approval is required and where it stands.
// TriggeringRule names the first matching trigger in declaration order,
// empty when approval is not required.
type Approval struct {
	Required       bool           `json:"required"`
	Status         ApprovalStatus `json:"status"`
	TriggeringRule string         `json:"triggeringRule,omitempty"`
}

// Result is the combined output of all four rule categories.
type Result struct {
	RequiredFields map[string]bool `json:"requiredFields"`
	VisibleActions []string        `json:"visibleActions"`
	SLA            SLA             `json:"sla"`
	Approval       Approval        `json:"approval"`
}
