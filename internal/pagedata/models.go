package pagedata

import (
	"fmt"
	"time"

	"casegov/internal/record"
	"casegov/internal/rules"
)

// PageData is the unit of distribution: everything one case page needs,
// assembled once and fanned out to every consumer. Immutable once built.
type PageData struct {
	CaseID   string                  `json:"caseId"`
	Snapshot record.Case             `json:"caseSnapshot"`
	Related  record.RelatedRecordSet `json:"relatedRecordSet"`
	Rules    *rules.Result           `json:"ruleResult,omitempty"`

	// Sequence and GeneratedAt both increase strictly per case id across
	// successive builds. Consumers discard anything older than what they
	// already applied; ordering is their job, not the transport's.
	Sequence      uint64    `json:"sequence"`
	GeneratedAt   time.Time `json:"generatedAt"`
	CorrelationID string    `json:"correlationId"`
}

// NewerThan reports whether p supersedes other for the same case id.
// A nil other never supersedes.
func (p *PageData) NewerThan(other *PageData) bool {
	if other == nil {
		return true
	}
	if p.Sequence != other.Sequence {
		return p.Sequence > other.Sequence
	}
	return p.GeneratedAt.After(other.GeneratedAt)
}

// BuildOptions narrows what a build loads. The zero value loads everything.
type BuildOptions struct {
	SkipRelated bool
	SkipRules   bool
}

// AggregationFailed reports a fatal build: the case snapshot itself could not
// be loaded. Related-record failures never produce this; they degrade to
// absent entries instead.
type AggregationFailed struct {
	CaseID string
	Cause  error
}

func (e *AggregationFailed) Error() string {
	return fmt.Sprintf("aggregation failed for case %s: %v", e.CaseID, e.Cause)
}

func (e *AggregationFailed) Unwrap() error { return e.Cause }
