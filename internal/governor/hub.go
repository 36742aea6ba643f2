package governor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	dErrors "casegov/pkg/domain-errors"

	"casegov/internal/contextstore"
	"casegov/internal/governor/broadcast"
	"casegov/internal/governor/metrics"
	"casegov/internal/pagedata"
	"casegov/internal/record"
)

// State names the hub's lifecycle phases.
type State string

const (
	StateIdle           State = "idle"
	StateLoading        State = "loading"
	StatePublished      State = "published"
	StateRefreshPending State = "refresh_pending"
	StateTornDown       State = "torn_down"
)

// Sections a refresh request may narrow to. A scoped refresh invalidates only
// that section's source records before rebuilding; the rebuilt PageData is
// always complete.
const (
	SectionCase         = "case"
	SectionAccounts     = "accounts"
	SectionContacts     = "contacts"
	SectionAssets       = "assets"
	SectionTasks        = "tasks"
	SectionWorkOrders   = "workOrders"
	SectionQuotes       = "quotes"
	SectionRelatedCases = "relatedCases"
)

// Aggregator is the slice of the page data service the hub drives.
type Aggregator interface {
	Build(ctx context.Context, caseID string, opts pagedata.BuildOptions) (*pagedata.PageData, error)
}

var _ Aggregator = (*pagedata.Service)(nil)

// ContextStore is the slice of the context store the hub needs for scoped
// invalidation.
type ContextStore interface {
	GetByID(ctx context.Context, entityType record.EntityType, id string) (record.Record, error)
	Invalidate(ctx context.Context, entityType record.EntityType, id string)
}

var _ ContextStore = (*contextstore.Service)(nil)

// Hub is the distribution state machine for one mounted page. It owns the
// broadcast side of the contract: build once, publish complete snapshots,
// never partial ones.
type Hub struct {
	aggregator Aggregator
	contexts   ContextStore
	bus        broadcast.Broadcaster
	logger     *slog.Logger
	metrics    *metrics.Metrics
	clock      func() time.Time

	mu    sync.Mutex
	state State
}

// Option configures a Hub.
type Option func(*Hub)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Hub) { h.logger = logger }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Hub) { h.metrics = m }
}

// WithClock overrides the time source for envelope timestamps.
func WithClock(clock func() time.Time) Option {
	return func(h *Hub) { h.clock = clock }
}

// New creates a hub in the Idle state.
func New(aggregator Aggregator, contexts ContextStore, bus broadcast.Broadcaster, opts ...Option) *Hub {
	h := &Hub{
		aggregator: aggregator,
		contexts:   contexts,
		bus:        bus,
		clock:      time.Now,
		state:      StateIdle,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// State reports the current lifecycle phase.
func (h *Hub) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

func (h *Hub) transition(to State) {
	h.mu.Lock()
	h.state = to
	h.mu.Unlock()
	h.metrics.IncrementTransition(string(to))
}

// OnMount builds the page for caseID and broadcasts it as a load event. A
// fatal aggregation failure broadcasts an error event with no payload and is
// also returned to the caller.
func (h *Hub) OnMount(ctx context.Context, caseID string) error {
	if err := h.ensureLive(); err != nil {
		return err
	}
	h.transition(StateLoading)

	pd, err := h.aggregator.Build(ctx, caseID, pagedata.BuildOptions{})
	if err != nil {
		h.transition(StateIdle)
		h.publishError(ctx, caseID, broadcast.EventLoad, err)
		return err
	}

	h.publish(ctx, broadcast.Envelope{
		CaseID:    caseID,
		EventType: broadcast.EventLoad,
		PageData:  pd,
		Timestamp: h.clock(),
	})
	h.transition(StatePublished)
	return nil
}

// OnRefreshRequest rebuilds the page and broadcasts the result as a refresh
// event. A non-empty section first invalidates that section's source records
// so the rebuild reads fresh data; the published PageData is always complete.
func (h *Hub) OnRefreshRequest(ctx context.Context, caseID, section string) error {
	if err := h.ensureLive(); err != nil {
		return err
	}
	h.transition(StateRefreshPending)
	h.metrics.IncrementRefreshRequest(refreshScope(section))

	h.invalidateSection(ctx, caseID, section)

	pd, err := h.aggregator.Build(ctx, caseID, pagedata.BuildOptions{})
	if err != nil {
		h.transition(StatePublished)
		h.publishError(ctx, caseID, broadcast.EventRefresh, err)
		return err
	}

	h.publish(ctx, broadcast.Envelope{
		CaseID:    caseID,
		EventType: broadcast.EventRefresh,
		PageData:  pd,
		Section:   section,
		Timestamp: h.clock(),
	})
	h.transition(StatePublished)
	return nil
}

// OnTeardown releases the hub. Safe to call any number of times; every
// operation after the first teardown fails with an invalid-state error.
func (h *Hub) OnTeardown() {
	h.mu.Lock()
	already := h.state == StateTornDown
	h.state = StateTornDown
	h.mu.Unlock()
	if !already {
		h.metrics.IncrementTransition(string(StateTornDown))
	}
}

func (h *Hub) ensureLive() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state == StateTornDown {
		return dErrors.New(dErrors.CodeInvariantViolation, "hub is torn down")
	}
	return nil
}

// invalidateSection drops the cached source records behind one section. An
// empty section invalidates only the case snapshot so a full refresh re-reads
// it; written related records were already invalidated by the write path.
func (h *Hub) invalidateSection(ctx context.Context, caseID, section string) {
	if section == "" || section == SectionCase {
		h.contexts.Invalidate(ctx, record.EntityCase, caseID)
		return
	}

	rec, err := h.contexts.GetByID(ctx, record.EntityCase, caseID)
	if err != nil {
		if h.logger != nil {
			h.logger.WarnContext(ctx, "section invalidation skipped, case unavailable",
				"case_id", caseID,
				"section", section,
				"error", err,
			)
		}
		return
	}
	c, ok := rec.(record.Case)
	if !ok {
		return
	}

	entityType, ids := sectionSources(c, section)
	if entityType == "" {
		if h.logger != nil {
			h.logger.WarnContext(ctx, "unknown refresh section ignored",
				"case_id", caseID,
				"section", section,
			)
		}
		return
	}
	for _, id := range ids {
		if id == "" {
			continue
		}
		h.contexts.Invalidate(ctx, entityType, id)
	}
}

// sectionSources maps a section name to the entity type and record ids that
// feed it. Unknown sections return an empty type.
func sectionSources(c record.Case, section string) (record.EntityType, []string) {
	switch section {
	case SectionAccounts:
		return record.EntityAccount, []string{c.AccountID}
	case SectionContacts:
		return record.EntityContact, []string{c.ContactID}
	case SectionAssets:
		return record.EntityAsset, []string{c.AssetID}
	case SectionTasks:
		return record.EntityTask, c.OpenTaskIDs
	case SectionWorkOrders:
		return record.EntityWorkOrder, []string{c.WorkOrderID}
	case SectionQuotes:
		return record.EntityQuote, append([]string{c.QuoteID}, c.QuoteIDs...)
	case SectionRelatedCases:
		return record.EntityCase, c.RelatedCaseIDs
	default:
		return "", nil
	}
}

func (h *Hub) publish(ctx context.Context, env broadcast.Envelope) {
	if err := h.bus.Publish(ctx, env); err != nil {
		if h.logger != nil {
			h.logger.ErrorContext(ctx, "broadcast publish failed",
				"case_id", env.CaseID,
				"event_type", env.EventType,
				"error", err,
			)
		}
		return
	}
	h.metrics.IncrementBroadcast(string(env.EventType))
}

// publishError broadcasts an error event. No partial PageData ever rides
// along with it.
func (h *Hub) publishError(ctx context.Context, caseID string, during broadcast.EventType, cause error) {
	if h.logger != nil {
		h.logger.ErrorContext(ctx, "aggregation failed",
			"case_id", caseID,
			"event_type", during,
			"error", cause,
		)
	}
	h.publish(ctx, broadcast.Envelope{
		CaseID:       caseID,
		EventType:    broadcast.EventError,
		ErrorMessage: cause.Error(),
		Timestamp:    h.clock(),
	})
}

func refreshScope(section string) string {
	if section == "" {
		return "full"
	}
	return "section"
}
