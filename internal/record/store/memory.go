package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"casegov/internal/record"
	"casegov/pkg/platform/sentinel"
)

// InMemoryStore keeps the dev-mode and test implementation lightweight. It
// intentionally favors clarity over performance.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[record.EntityType]map[string]record.Record
}

func NewInMemoryStore() *InMemoryStore {
	records := make(map[record.EntityType]map[string]record.Record)
	for _, t := range record.AllEntityTypes {
		records[t] = make(map[string]record.Record)
	}
	return &InMemoryStore{records: records}
}

// Put seeds or replaces a record. Used by dev wiring and tests.
func (s *InMemoryStore) Put(rec record.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.EntityType()][rec.RecordID()] = rec
}

func (s *InMemoryStore) Fetch(_ context.Context, entityType record.EntityType, id string) (record.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if rec, ok := s.records[entityType][id]; ok {
		return rec, nil
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryStore) FetchMany(_ context.Context, entityType record.EntityType, ids []string) (map[string]record.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]record.Record, len(ids))
	for _, id := range ids {
		if rec, ok := s.records[entityType][id]; ok {
			out[id] = rec
		}
	}
	return out, nil
}

// Write applies a patch to an existing record. Unknown fields are reported in
// WriteResult.Errors rather than failing the whole patch.
func (s *InMemoryStore) Write(_ context.Context, patch Patch) (WriteResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[patch.EntityType][patch.ID]
	if !ok {
		return WriteResult{}, sentinel.ErrNotFound
	}

	updated, errs := applyPatch(rec, patch.Fields)
	if len(errs) > 0 {
		return WriteResult{Success: false, Errors: errs}, nil
	}
	s.records[patch.EntityType][patch.ID] = updated
	return WriteResult{Success: true}, nil
}

func applyPatch(rec record.Record, fields map[string]any) (record.Record, []string) {
	var errs []string
	switch r := rec.(type) {
	case record.Case:
		for name, value := range fields {
			if err := applyCaseField(&r, name, value); err != nil {
				errs = append(errs, err.Error())
			}
		}
		return r, errs
	case record.Task:
		for name, value := range fields {
			switch name {
			case "status":
				r.Status, _ = value.(string)
			case "subject":
				r.Subject, _ = value.(string)
			default:
				errs = append(errs, fmt.Sprintf("field %q is not writable on tasks", name))
			}
		}
		return r, errs
	case record.WorkOrder:
		for name, value := range fields {
			if name != "status" {
				errs = append(errs, fmt.Sprintf("field %q is not writable on work orders", name))
				continue
			}
			r.Status, _ = value.(string)
		}
		return r, errs
	case record.Quote:
		for name, value := range fields {
			switch name {
			case "status":
				r.Status, _ = value.(string)
			case "amount":
				if f, ok := value.(float64); ok {
					r.Amount = f
				} else {
					errs = append(errs, "amount must be a number")
				}
			default:
				errs = append(errs, fmt.Sprintf("field %q is not writable on quotes", name))
			}
		}
		return r, errs
	}
	return rec, []string{fmt.Sprintf("records of type %q are read-only", rec.EntityType())}
}

func applyCaseField(c *record.Case, name string, value any) error {
	str := func() (string, error) {
		s, ok := value.(string)
		if !ok {
			return "", fmt.Errorf("field %q expects a string", name)
		}
		return s, nil
	}

	switch name {
	case "status":
		s, err := str()
		if err != nil {
			return err
		}
		c.Status = s
	case "subType":
		s, err := str()
		if err != nil {
			return err
		}
		c.SubType = s
	case "reasonCode":
		s, err := str()
		if err != nil {
			return err
		}
		c.ReasonCode = s
	case "assetId":
		s, err := str()
		if err != nil {
			return err
		}
		c.AssetID = s
	case "workOrderId":
		s, err := str()
		if err != nil {
			return err
		}
		c.WorkOrderID = s
	case "quoteId":
		s, err := str()
		if err != nil {
			return err
		}
		c.QuoteID = s
	case "customerPO":
		s, err := str()
		if err != nil {
			return err
		}
		c.CustomerPO = s
	case "profileNumber":
		s, err := str()
		if err != nil {
			return err
		}
		c.ProfileNumber = s
	case "projectSiteInfo":
		s, err := str()
		if err != nil {
			return err
		}
		c.ProjectSiteInfo = s
	case "description":
		s, err := str()
		if err != nil {
			return err
		}
		c.Description = s
	case "priority":
		s, err := str()
		if err != nil {
			return err
		}
		c.Priority = s
	case "approvalStatus":
		s, err := str()
		if err != nil {
			return err
		}
		c.ApprovalStatus = s
	case "serviceDate":
		s, err := str()
		if err != nil {
			return err
		}
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return fmt.Errorf("field %q expects an RFC3339 timestamp", name)
		}
		c.ServiceDate = &t
	case "value":
		f, ok := value.(float64)
		if !ok {
			return fmt.Errorf("field %q expects a number", name)
		}
		c.Value = f
	case "riskFlag":
		b, ok := value.(bool)
		if !ok {
			return fmt.Errorf("field %q expects a boolean", name)
		}
		c.RiskFlag = b
	default:
		return fmt.Errorf("field %q is not writable on cases", name)
	}
	return nil
}
