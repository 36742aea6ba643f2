// Package pagedata composes context store reads and rule evaluation into one
// immutable PageData snapshot per case id. It is the single build path: the
// governor uses it on load and refresh, and consumers use the same path when
// falling back, so both always agree.
package pagedata

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"casegov/internal/contextstore"
	"casegov/internal/pagedata/metrics"
	"casegov/internal/record"
	"casegov/internal/rules"
)

// ContextStore is the read surface the aggregator composes over.
type ContextStore interface {
	GetByID(ctx context.Context, entityType record.EntityType, id string) (record.Record, error)
	GetManyByIDs(ctx context.Context, entityType record.EntityType, ids []string) (map[string]record.Record, error)
	Invalidate(ctx context.Context, entityType record.EntityType, id string)
}

// compile-time conformance of the concrete store
var _ ContextStore = (*contextstore.Service)(nil)

// Service builds PageData snapshots. Builds for different cases run freely in
// parallel; concurrent builds for the same case coalesce into one, so two
// snapshots for one case can never race each other onto the wire.
type Service struct {
	contexts  ContextStore
	evaluator *rules.Evaluator
	logger    *slog.Logger
	metrics   *metrics.Metrics
	clock     func() time.Time
	tracer    trace.Tracer

	group singleflight.Group

	// mu guards the per-case publish timeline.
	mu   sync.Mutex
	last map[string]timeline
}

type timeline struct {
	sequence    uint64
	generatedAt time.Time
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock sets the time source for testability.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

func New(contexts ContextStore, evaluator *rules.Evaluator, opts ...Option) *Service {
	s := &Service{
		contexts:  contexts,
		evaluator: evaluator,
		clock:     time.Now,
		tracer:    otel.Tracer("casegov/pagedata"),
		last:      make(map[string]timeline),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Build assembles one PageData for caseID. Concurrent calls for the same case
// and options share a single build and receive the identical snapshot.
func (s *Service) Build(ctx context.Context, caseID string, opts BuildOptions) (*PageData, error) {
	key := fmt.Sprintf("%s|related=%t|rules=%t", caseID, !opts.SkipRelated, !opts.SkipRules)
	out, err, shared := s.group.Do(key, func() (any, error) {
		return s.build(ctx, caseID, opts)
	})
	if shared {
		s.metrics.IncrementBuildJoin()
	}
	if err != nil {
		return nil, err
	}
	return out.(*PageData), nil
}

func (s *Service) build(ctx context.Context, caseID string, opts BuildOptions) (*PageData, error) {
	ctx, span := s.tracer.Start(ctx, "pagedata.build",
		trace.WithAttributes(attribute.String("case.id", caseID)))
	defer span.End()

	start := time.Now()

	rec, err := s.contexts.GetByID(ctx, record.EntityCase, caseID)
	if err != nil {
		span.RecordError(err)
		s.metrics.IncrementOutcome("failed")
		return nil, &AggregationFailed{CaseID: caseID, Cause: err}
	}
	snapshot, ok := rec.(record.Case)
	if !ok {
		s.metrics.IncrementOutcome("failed")
		return nil, &AggregationFailed{CaseID: caseID, Cause: fmt.Errorf("record %s is not a case", caseID)}
	}

	related := record.NewRelatedRecordSet()
	if !opts.SkipRelated {
		related = s.gatherRelated(ctx, snapshot)
	}

	var ruleResult *rules.Result
	if !opts.SkipRules {
		result := s.evaluator.Evaluate(snapshot, s.clock())
		ruleResult = &result
	}

	page := &PageData{
		CaseID:        caseID,
		Snapshot:      snapshot,
		Related:       related,
		Rules:         ruleResult,
		CorrelationID: uuid.NewString(),
	}
	s.stamp(page)

	s.metrics.ObserveBuildLatency(time.Since(start))
	s.metrics.IncrementOutcome("ok")
	return page, nil
}

// stamp assigns the per-case sequence and a strictly increasing GeneratedAt.
func (s *Service) stamp(page *PageData) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.last[page.CaseID]
	now := s.clock()
	if !now.After(prev.generatedAt) {
		now = prev.generatedAt.Add(time.Nanosecond)
	}
	next := timeline{sequence: prev.sequence + 1, generatedAt: now}
	s.last[page.CaseID] = next

	page.Sequence = next.sequence
	page.GeneratedAt = next.generatedAt
}

// gatherRelated fetches every related family in parallel. A family that fails
// degrades to absent entries; it never fails the build.
func (s *Service) gatherRelated(ctx context.Context, snapshot record.Case) record.RelatedRecordSet {
	related := record.NewRelatedRecordSet()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		for id, rec := range s.fetchFamily(ctx, record.EntityAccount, []string{snapshot.AccountID}) {
			related.Accounts[id] = rec.(record.Account)
		}
		return nil
	})
	g.Go(func() error {
		for id, rec := range s.fetchFamily(ctx, record.EntityContact, []string{snapshot.ContactID}) {
			related.Contacts[id] = rec.(record.Contact)
		}
		return nil
	})
	g.Go(func() error {
		for id, rec := range s.fetchFamily(ctx, record.EntityAsset, []string{snapshot.AssetID}) {
			related.Assets[id] = rec.(record.Asset)
		}
		return nil
	})
	g.Go(func() error {
		for id, rec := range s.fetchFamily(ctx, record.EntityTask, snapshot.OpenTaskIDs) {
			related.OpenTasks[id] = rec.(record.Task)
		}
		return nil
	})
	g.Go(func() error {
		for id, rec := range s.fetchFamily(ctx, record.EntityCase, snapshot.RelatedCaseIDs) {
			related.RelatedCases[id] = rec.(record.Case)
		}
		return nil
	})
	g.Go(func() error {
		for id, rec := range s.fetchFamily(ctx, record.EntityWorkOrder, []string{snapshot.WorkOrderID}) {
			related.WorkOrders[id] = rec.(record.WorkOrder)
		}
		return nil
	})
	g.Go(func() error {
		ids := append([]string{snapshot.QuoteID}, snapshot.QuoteIDs...)
		for id, rec := range s.fetchFamily(ctx, record.EntityQuote, ids) {
			related.Quotes[id] = rec.(record.Quote)
		}
		return nil
	})

	// The goroutines only return nil; Wait is for completion, not failure.
	_ = g.Wait()
	return related
}

// fetchFamily loads one related family, dropping empty ids and degrading
// fetch failures to an empty result.
func (s *Service) fetchFamily(ctx context.Context, entityType record.EntityType, ids []string) map[string]record.Record {
	filtered := ids[:0:0]
	for _, id := range ids {
		if id != "" {
			filtered = append(filtered, id)
		}
	}
	if len(filtered) == 0 {
		return nil
	}

	recs, err := s.contexts.GetManyByIDs(ctx, entityType, filtered)
	if err != nil {
		if s.logger != nil {
			s.logger.WarnContext(ctx, "related fetch degraded to absent",
				"entity_type", entityType,
				"ids", filtered,
				"error", err,
			)
		}
		s.metrics.IncrementRelatedDegraded(string(entityType))
		return nil
	}
	return recs
}
