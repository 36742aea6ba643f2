package record

import "time"

// AccountKind distinguishes the account variants a case can reference.
type AccountKind string

const (
	AccountClient   AccountKind = "client"
	AccountLocation AccountKind = "location"
	AccountVendor   AccountKind = "vendor"
)

// Account is a client, location, or vendor party on a case.
type Account struct {
	ID       string      `json:"id"`
	Name     string      `json:"name"`
	Kind     AccountKind `json:"kind"`
	ParentID string      `json:"parentId"`
	Phone    string      `json:"phone"`
	City     string      `json:"city"`
	Region   string      `json:"region"`
}

func (a Account) RecordID() string       { return a.ID }
func (a Account) EntityType() EntityType { return EntityAccount }

// Contact is the person attached to a case.
type Contact struct {
	ID        string `json:"id"`
	AccountID string `json:"accountId"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
}

func (c Contact) RecordID() string       { return c.ID }
func (c Contact) EntityType() EntityType { return EntityContact }

// Asset is the serviced equipment referenced by a case.
type Asset struct {
	ID           string     `json:"id"`
	AccountID    string     `json:"accountId"`
	Name         string     `json:"name"`
	SerialNumber string     `json:"serialNumber"`
	Status       string     `json:"status"`
	InstalledAt  *time.Time `json:"installedAt"`
}

func (a Asset) RecordID() string       { return a.ID }
func (a Asset) EntityType() EntityType { return EntityAsset }

// Task is an open activity attached to a case.
type Task struct {
	ID      string     `json:"id"`
	CaseID  string     `json:"caseId"`
	Subject string     `json:"subject"`
	Status  string     `json:"status"`
	OwnerID string     `json:"ownerId"`
	DueDate *time.Time `json:"dueDate"`
}

func (t Task) RecordID() string       { return t.ID }
func (t Task) EntityType() EntityType { return EntityTask }

// WorkOrder is the field-service order generated from a case.
type WorkOrder struct {
	ID           string     `json:"id"`
	CaseID       string     `json:"caseId"`
	Status       string     `json:"status"`
	ScheduledFor *time.Time `json:"scheduledFor"`
}

func (w WorkOrder) RecordID() string       { return w.ID }
func (w WorkOrder) EntityType() EntityType { return EntityWorkOrder }

// Quote is a priced proposal attached to a case.
type Quote struct {
	ID     string  `json:"id"`
	CaseID string  `json:"caseId"`
	Status string  `json:"status"`
	Amount float64 `json:"amount"`
}

func (q Quote) RecordID() string       { return q.ID }
func (q Quote) EntityType() EntityType { return EntityQuote }
