package rules

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"casegov/internal/record"
)

// Kind separates the rule categories the evaluator runs.
type Kind string

const (
	KindFieldRequirement Kind = "field_requirement"
	KindActionVisibility Kind = "action_visibility"
	KindApprovalTrigger  Kind = "approval_trigger"
)

// Effect is what an action-visibility rule does to its action id.
type Effect string

const (
	EffectShow Effect = "show"
	EffectHide Effect = "hide"
)

// Rule is one externally supplied declarative rule record. Declaration order
// within a kind is the evaluation order and is part of the contract.
type Rule struct {
	ID           string      `json:"id"`
	Kind         Kind        `json:"kind"`
	TargetObject string      `json:"targetObject"`
	Conditions   []Condition `json:"conditions"`

	// KindFieldRequirement: fields this rule marks required when it matches.
	RequiredFields []string `json:"requiredFields,omitempty"`

	// KindActionVisibility: the action affected and whether to show or hide it.
	ActionID string `json:"actionId,omitempty"`
	Effect   Effect `json:"effect,omitempty"`

	Message  string `json:"message,omitempty"`
	Severity string `json:"severity,omitempty"`
	Active   bool   `json:"active"`
	Order    int    `json:"order"`
}

// SLAPolicy maps a service type to its business-day offset from case creation.
type SLAPolicy struct {
	ServiceType        string `json:"serviceType"`
	OffsetBusinessDays int    `json:"offsetBusinessDays"`
}

// SLAConfig carries the externally supplied calendar and thresholds.
type SLAConfig struct {
	Policies          []SLAPolicy `json:"policies"`
	DefaultOffsetDays int         `json:"defaultOffsetDays"`
	AtRiskLead        string      `json:"atRiskLead"` // Go duration, e.g. "24h"
	Holidays          []string    `json:"holidays"`   // YYYY-MM-DD
}

// Config is the full rule configuration surface.
type Config struct {
	Rules []Rule    `json:"rules"`
	SLA   SLAConfig `json:"sla"`
}

// Load reads a rule configuration file, falling back to the embedded defaults
// when path is empty.
func Load(path string) (Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read rule config: %w", err)
	}
	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse rule config: %w", err)
	}
	return cfg, nil
}

// Validate rejects configurations referencing fields outside the case schema
// or using unknown operators. Unknown fields are a configuration error, not a
// runtime one.
func (c Config) Validate() error {
	for _, rule := range c.Rules {
		if rule.ID == "" {
			return fmt.Errorf("rule with empty id")
		}
		switch rule.Kind {
		case KindFieldRequirement:
			if len(rule.RequiredFields) == 0 {
				return fmt.Errorf("rule %q: field_requirement rules need requiredFields", rule.ID)
			}
			for _, f := range rule.RequiredFields {
				if !record.IsCaseField(f) {
					return fmt.Errorf("rule %q references unknown field %q", rule.ID, f)
				}
			}
		case KindActionVisibility:
			if rule.ActionID == "" {
				return fmt.Errorf("rule %q: action_visibility rules need an actionId", rule.ID)
			}
			if rule.Effect != EffectShow && rule.Effect != EffectHide {
				return fmt.Errorf("rule %q: unknown effect %q", rule.ID, rule.Effect)
			}
		case KindApprovalTrigger:
			// Conditions alone define a trigger.
		default:
			return fmt.Errorf("rule %q: unknown kind %q", rule.ID, rule.Kind)
		}

		for _, cond := range rule.Conditions {
			if !record.IsCaseField(cond.Field) {
				return fmt.Errorf("rule %q references unknown field %q", rule.ID, cond.Field)
			}
			if !knownOperators[cond.Op] {
				return fmt.Errorf("rule %q uses unknown operator %q", rule.ID, cond.Op)
			}
		}
	}

	if _, err := c.SLA.atRiskLead(); err != nil {
		return err
	}
	for _, day := range c.SLA.Holidays {
		if _, err := time.Parse("2006-01-02", day); err != nil {
			return fmt.Errorf("invalid holiday %q: %w", day, err)
		}
	}
	return nil
}

func (s SLAConfig) atRiskLead() (time.Duration, error) {
	if s.AtRiskLead == "" {
		return 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(s.AtRiskLead)
	if err != nil {
		return 0, fmt.Errorf("invalid atRiskLead %q: %w", s.AtRiskLead, err)
	}
	return d, nil
}

func (s SLAConfig) offsetFor(serviceType string) int {
	for _, p := range s.Policies {
		if p.ServiceType == serviceType {
			return p.OffsetBusinessDays
		}
	}
	if s.DefaultOffsetDays > 0 {
		return s.DefaultOffsetDays
	}
	return 5
}

// DefaultConfig is the embedded dev-mode configuration. Production deployments
// supply their own records through CASEGOV_RULES_PATH.
func DefaultConfig() Config {
	return Config{
		Rules: []Rule{
			{
				ID:   "new-service-required-fields",
				Kind: KindFieldRequirement, TargetObject: "case", Active: true, Order: 10,
				Conditions:     []Condition{{Field: "serviceType", Op: OpEq, Value: "New Service"}},
				RequiredFields: []string{"assetId", "serviceDate", "customerPO"},
				Message:        "New service cases need an asset, a service date, and a customer PO",
			},
			{
				ID:   "emergency-contact-required",
				Kind: KindFieldRequirement, TargetObject: "case", Active: true, Order: 20,
				Conditions:     []Condition{{Field: "serviceType", Op: OpEq, Value: "Emergency"}},
				RequiredFields: []string{"contactId", "serviceDate"},
				Message:        "Emergency cases need a reachable contact and a service date",
			},
			{
				ID:   "project-site-for-installs",
				Kind: KindFieldRequirement, TargetObject: "case", Active: true, Order: 30,
				Conditions:     []Condition{{Field: "type", Op: OpEq, Value: "Installation"}},
				RequiredFields: []string{"projectSiteInfo", "serviceDate"},
			},

			{
				ID:   "show-close-on-open-cases",
				Kind: KindActionVisibility, TargetObject: "case", Active: true, Order: 10,
				Conditions: []Condition{{Field: "status", Op: OpNe, Value: "Closed"}},
				ActionID:   "close_case", Effect: EffectShow,
			},
			{
				ID:   "show-create-work-order",
				Kind: KindActionVisibility, TargetObject: "case", Active: true, Order: 20,
				Conditions: []Condition{{Field: "workOrderId", Op: OpAbsent}},
				ActionID:   "create_work_order", Effect: EffectShow,
			},
			{
				ID:   "show-generate-quote",
				Kind: KindActionVisibility, TargetObject: "case", Active: true, Order: 30,
				Conditions: []Condition{{Field: "quoteId", Op: OpAbsent}},
				ActionID:   "generate_quote", Effect: EffectShow,
			},
			{
				ID:   "suppress-actions-on-closed",
				Kind: KindActionVisibility, TargetObject: "case", Active: true, Order: 40,
				Conditions: []Condition{{Field: "status", Op: OpEq, Value: "Closed"}},
				ActionID:   "create_work_order", Effect: EffectHide,
			},
			{
				ID:   "show-escalate-on-critical",
				Kind: KindActionVisibility, TargetObject: "case", Active: true, Order: 50,
				Conditions: []Condition{{Field: "priority", Op: OpEq, Value: "Critical"}},
				ActionID:   "escalate", Effect: EffectShow,
			},

			{
				ID:   "high-value-threshold",
				Kind: KindApprovalTrigger, TargetObject: "case", Active: true, Order: 10,
				Conditions: []Condition{{Field: "value", Op: OpGt, Value: 50000.0}},
				Message:    "Cases above the value threshold need manager approval",
			},
			{
				ID:   "risk-flagged",
				Kind: KindApprovalTrigger, TargetObject: "case", Active: true, Order: 20,
				Conditions: []Condition{{Field: "riskFlag", Op: OpEq, Value: true}},
			},
			{
				ID:   "critical-priority",
				Kind: KindApprovalTrigger, TargetObject: "case", Active: true, Order: 30,
				Conditions: []Condition{{Field: "priority", Op: OpEq, Value: "Critical"}},
			},
		},
		SLA: SLAConfig{
			Policies: []SLAPolicy{
				{ServiceType: "Emergency", OffsetBusinessDays: 1},
				{ServiceType: "Repair", OffsetBusinessDays: 3},
				{ServiceType: "New Service", OffsetBusinessDays: 10},
				{ServiceType: "Maintenance", OffsetBusinessDays: 5},
			},
			DefaultOffsetDays: 5,
			AtRiskLead:        "24h",
		},
	}
}
