package record

import "time"

// Case status values as stored. The evaluator only cares about open vs closed.
const (
	CaseStatusNew        = "New"
	CaseStatusInProgress = "In Progress"
	CaseStatusOnHold     = "On Hold"
	CaseStatusClosed     = "Closed"
	CaseStatusCancelled  = "Cancelled"
)

// Case is an immutable snapshot of one case record. Produced only by the
// backing store; never partially constructed.
type Case struct {
	ID         string `json:"id"`
	Status     string `json:"status"`
	Type       string `json:"type"`
	SubType    string `json:"subType"`
	ReasonCode string `json:"reasonCode"`

	AccountID   string `json:"accountId"`
	ContactID   string `json:"contactId"`
	AssetID     string `json:"assetId"`
	WorkOrderID string `json:"workOrderId"`
	QuoteID     string `json:"quoteId"`

	// Plural memberships, maintained by the backing store's relationship
	// bookkeeping. Fetched by id through the same read boundary.
	OpenTaskIDs    []string `json:"openTaskIds"`
	RelatedCaseIDs []string `json:"relatedCaseIds"`
	QuoteIDs       []string `json:"quoteIds"`

	ServiceType string     `json:"serviceType"`
	ServiceDate *time.Time `json:"serviceDate"`
	CreatedAt   time.Time  `json:"createdAt"`

	CustomerPO      string `json:"customerPO"`
	ProfileNumber   string `json:"profileNumber"`
	ProjectSiteInfo string `json:"projectSiteInfo"`
	Description     string `json:"description"`

	Value    float64 `json:"value"`
	Priority string  `json:"priority"`
	RiskFlag bool    `json:"riskFlag"`

	// ApprovalStatus mirrors the outcome recorded by the external approval
	// process: "", "Pending", "Approved", or "Rejected".
	ApprovalStatus string `json:"approvalStatus"`
}

func (c Case) RecordID() string       { return c.ID }
func (c Case) EntityType() EntityType { return EntityCase }

// IsOpen reports whether the case still counts against its SLA.
func (c Case) IsOpen() bool {
	return c.Status != CaseStatusClosed && c.Status != CaseStatusCancelled
}

// caseFields enumerates every field name the rule configuration may reference.
// Rule configs referencing anything else are rejected at load time.
var caseFields = []string{
	"id", "status", "type", "subType", "reasonCode",
	"accountId", "contactId", "assetId", "workOrderId", "quoteId",
	"serviceType", "serviceDate", "createdAt",
	"customerPO", "profileNumber", "projectSiteInfo", "description",
	"value", "priority", "riskFlag", "approvalStatus",
}

// CaseFields returns the rule-addressable schema of a case snapshot.
func CaseFields() []string {
	out := make([]string, len(caseFields))
	copy(out, caseFields)
	return out
}

// IsCaseField reports whether name is part of the case schema.
func IsCaseField(name string) bool {
	for _, f := range caseFields {
		if f == name {
			return true
		}
	}
	return false
}

// Field resolves a rule-addressable field by name. The second return is false
// when the field exists in the schema but has no usable value (nil date,
// empty string), which rule evaluation treats as "missing".
func (c Case) Field(name string) (any, bool) {
	switch name {
	case "id":
		return c.ID, c.ID != ""
	case "status":
		return c.Status, c.Status != ""
	case "type":
		return c.Type, c.Type != ""
	case "subType":
		return c.SubType, c.SubType != ""
	case "reasonCode":
		return c.ReasonCode, c.ReasonCode != ""
	case "accountId":
		return c.AccountID, c.AccountID != ""
	case "contactId":
		return c.ContactID, c.ContactID != ""
	case "assetId":
		return c.AssetID, c.AssetID != ""
	case "workOrderId":
		return c.WorkOrderID, c.WorkOrderID != ""
	case "quoteId":
		return c.QuoteID, c.QuoteID != ""
	case "serviceType":
		return c.ServiceType, c.ServiceType != ""
	case "serviceDate":
		if c.ServiceDate == nil {
			return nil, false
		}
		return *c.ServiceDate, true
	case "createdAt":
		return c.CreatedAt, !c.CreatedAt.IsZero()
	case "customerPO":
		return c.CustomerPO, c.CustomerPO != ""
	case "profileNumber":
		return c.ProfileNumber, c.ProfileNumber != ""
	case "projectSiteInfo":
		return c.ProjectSiteInfo, c.ProjectSiteInfo != ""
	case "description":
		return c.Description, c.Description != ""
	case "value":
		return c.Value, true
	case "priority":
		return c.Priority, c.Priority != ""
	case "riskFlag":
		return c.RiskFlag, true
	case "approvalStatus":
		return c.ApprovalStatus, c.ApprovalStatus != ""
	}
	return nil, false
}
