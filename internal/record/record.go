// Package record defines the entity model shared by the context store, the
// aggregator, and the rule evaluator. Everything here is a point-in-time
// snapshot: values are copied out of the backing store and never mutated.
package record

import "fmt"

// EntityType identifies one of the record families the page aggregates.
type EntityType string

const (
	EntityCase      EntityType = "case"
	EntityAccount   EntityType = "account"
	EntityContact   EntityType = "contact"
	EntityAsset     EntityType = "asset"
	EntityTask      EntityType = "task"
	EntityWorkOrder EntityType = "work_order"
	EntityQuote     EntityType = "quote"
)

// AllEntityTypes lists every known entity type in a stable order.
var AllEntityTypes = []EntityType{
	EntityCase,
	EntityAccount,
	EntityContact,
	EntityAsset,
	EntityTask,
	EntityWorkOrder,
	EntityQuote,
}

// ParseEntityType validates an entity type name from config or transport.
func ParseEntityType(s string) (EntityType, error) {
	for _, t := range AllEntityTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown entity type %q", s)
}

// Record is the minimal contract every entity satisfies so the context store
// can cache and fetch them generically.
type Record interface {
	RecordID() string
	EntityType() EntityType
}

// ReadScope returns the auth scope required to read records of type t.
func ReadScope(t EntityType) string {
	return string(t) + ":read"
}
