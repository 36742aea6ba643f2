// Package broadcast is the pub/sub transport between the governor and its
// consumers. The transport contract is at-least-once with no ordering
// guarantee; consumers discard stale sequence numbers themselves.
package broadcast

import (
	"context"
	"time"

	"casegov/internal/pagedata"
)

// EventType classifies governor broadcasts.
type EventType string

const (
	EventLoad    EventType = "load"
	EventRefresh EventType = "refresh"
	EventError   EventType = "error"
)

// Envelope is the wire shape on the broadcast channel. Error events carry no
// PageData: consumers get a complete snapshot or an explicit error, never a
// half-populated one.
type Envelope struct {
	CaseID       string             `json:"caseId"`
	EventType    EventType          `json:"eventType"`
	PageData     *pagedata.PageData `json:"pageData,omitempty"`
	Section      string             `json:"section,omitempty"`
	ErrorMessage string             `json:"errorMessage,omitempty"`
	Timestamp    time.Time          `json:"timestamp"`
}

// Broadcaster publishes envelopes and hands out case-filtered subscriptions.
type Broadcaster interface {
	Publish(ctx context.Context, env Envelope) error

	// Subscribe returns a channel of envelopes for one case id and a cancel
	// function. Cancel is idempotent. Late subscribers only see envelopes
	// published after they subscribed.
	Subscribe(caseID string) (<-chan Envelope, func())

	Close() error
}
