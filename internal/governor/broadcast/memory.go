package broadcast

import (
	"context"
	"log/slog"
	"sync"
)

// subscriberBuffer bounds each subscription channel. A consumer that cannot
// keep up loses envelopes, which the transport contract permits: it falls
// back or catches up on the next publish.
const subscriberBuffer = 16

// Memory is the in-process broadcaster used when no external transport is
// configured, and as the local dispatch registry behind the Kafka transport.
type Memory struct {
	logger *slog.Logger

	mu     sync.Mutex
	nextID int
	subs   map[int]*subscription
	closed bool
}

type subscription struct {
	caseID string
	ch     chan Envelope
}

func NewMemory(logger *slog.Logger) *Memory {
	return &Memory{
		logger: logger,
		subs:   make(map[int]*subscription),
	}
}

func (m *Memory) Publish(_ context.Context, env Envelope) error {
	m.Dispatch(env)
	return nil
}

// Dispatch fans an envelope out to matching subscribers without blocking.
func (m *Memory) Dispatch(env Envelope) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	for _, sub := range m.subs {
		if sub.caseID != env.CaseID {
			continue
		}
		select {
		case sub.ch <- env:
		default:
			if m.logger != nil {
				m.logger.Warn("dropping broadcast for slow subscriber",
					"case_id", env.CaseID,
					"event_type", env.EventType,
				)
			}
		}
	}
}

func (m *Memory) Subscribe(caseID string) (<-chan Envelope, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextID
	m.nextID++
	sub := &subscription{caseID: caseID, ch: make(chan Envelope, subscriberBuffer)}
	m.subs[id] = sub

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, id)
			m.mu.Unlock()
		})
	}
	return sub.ch, cancel
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.subs = make(map[int]*subscription)
	return nil
}
