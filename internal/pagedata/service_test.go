package pagedata

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"casegov/internal/contextstore"
	"casegov/internal/record"
	"casegov/internal/record/store"
	"casegov/internal/rules"
	"casegov/pkg/platform/sentinel"
)

// =============================================================================
// Aggregator Test Suite
// =============================================================================
// Justification for unit tests: the aggregator carries the idempotence,
// degradation, and per-case ordering invariants that the governor and every
// fallback path rely on; they need controlled stores and clocks.

type AggregatorSuite struct {
	suite.Suite
	backing *flakyStore
	service *Service
	now     time.Time
}

func TestAggregatorSuite(t *testing.T) {
	suite.Run(t, new(AggregatorSuite))
}

// flakyStore wraps the in-memory store with per-entity-type failure injection.
type flakyStore struct {
	*store.InMemoryStore
	mu        sync.Mutex
	failTypes map[record.EntityType]bool
	block     chan struct{}
	fetches   int
}

func newFlakyStore() *flakyStore {
	return &flakyStore{
		InMemoryStore: store.NewInMemoryStore(),
		failTypes:     make(map[record.EntityType]bool),
	}
}

func (f *flakyStore) FetchMany(ctx context.Context, entityType record.EntityType, ids []string) (map[string]record.Record, error) {
	f.mu.Lock()
	failing := f.failTypes[entityType]
	block := f.block
	if entityType == record.EntityCase {
		f.fetches++
	}
	f.mu.Unlock()

	if block != nil && entityType == record.EntityCase {
		<-block
	}
	if failing {
		return nil, sentinel.ErrUnavailable
	}
	return f.InMemoryStore.FetchMany(ctx, entityType, ids)
}

func (s *AggregatorSuite) SetupTest() {
	s.backing = newFlakyStore()
	s.now = time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)

	serviceDate := time.Date(2024, 6, 14, 9, 0, 0, 0, time.UTC)
	s.backing.Put(record.Case{
		ID:          "c1",
		Status:      record.CaseStatusNew,
		ServiceType: "Repair",
		CreatedAt:   s.now.AddDate(0, 0, -1),
		ServiceDate: &serviceDate,
		AccountID:   "a1",
		ContactID:   "ct1",
		OpenTaskIDs: []string{"t1", "t2"},
		QuoteIDs:    []string{"q1"},
	})
	s.backing.Put(record.Account{ID: "a1", Name: "Acme", Kind: record.AccountClient})
	s.backing.Put(record.Contact{ID: "ct1", Name: "Dana Ruiz"})
	s.backing.Put(record.Task{ID: "t1", CaseID: "c1", Status: "Open"})
	s.backing.Put(record.Task{ID: "t2", CaseID: "c1", Status: "Open"})
	s.backing.Put(record.Quote{ID: "q1", CaseID: "c1", Amount: 1800})

	contexts := contextstore.New(s.backing, contextstore.WithTTL(time.Minute))
	evaluator, err := rules.New(rules.DefaultConfig())
	s.Require().NoError(err)

	s.service = New(contexts, evaluator, WithClock(func() time.Time { return s.now }))
}

// =============================================================================
// Build Tests
// =============================================================================

func (s *AggregatorSuite) TestBuild() {
	ctx := context.Background()

	s.Run("full build assembles snapshot, related set, and rules", func() {
		page, err := s.service.Build(ctx, "c1", BuildOptions{})
		s.Require().NoError(err)

		s.Equal("c1", page.CaseID)
		s.Equal("c1", page.Snapshot.ID)
		s.Len(page.Related.Accounts, 1)
		s.Len(page.Related.Contacts, 1)
		s.Len(page.Related.OpenTasks, 2)
		s.Len(page.Related.Quotes, 1)
		s.Require().NotNil(page.Rules)
		s.Contains(page.Rules.VisibleActions, "close_case")
		s.NotEmpty(page.CorrelationID)
		s.False(page.GeneratedAt.IsZero())
	})

	s.Run("skip options narrow the build", func() {
		page, err := s.service.Build(ctx, "c1", BuildOptions{SkipRelated: true, SkipRules: true})
		s.Require().NoError(err)
		s.Empty(page.Related.Accounts)
		s.NotNil(page.Related.OpenTasks) // empty, never nil
		s.Nil(page.Rules)
	})

	s.Run("missing case is fatal", func() {
		_, err := s.service.Build(ctx, "ghost", BuildOptions{})
		s.Require().Error(err)

		var aggErr *AggregationFailed
		s.Require().ErrorAs(err, &aggErr)
		s.Equal("ghost", aggErr.CaseID)
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
}

// =============================================================================
// Idempotence Tests
// =============================================================================

func (s *AggregatorSuite) TestIdempotence() {
	ctx := context.Background()

	first, err := s.service.Build(ctx, "c1", BuildOptions{})
	s.Require().NoError(err)
	second, err := s.service.Build(ctx, "c1", BuildOptions{})
	s.Require().NoError(err)

	// Field values identical; only the publish timeline differs.
	s.Equal(first.Snapshot, second.Snapshot)
	s.Equal(first.Related, second.Related)
	s.Equal(first.Rules, second.Rules)
	s.NotEqual(first.CorrelationID, second.CorrelationID)
	s.Greater(second.Sequence, first.Sequence)
	s.True(second.GeneratedAt.After(first.GeneratedAt))
}

// =============================================================================
// Degradation Tests
// =============================================================================

func (s *AggregatorSuite) TestRelatedDegradation() {
	ctx := context.Background()

	s.backing.mu.Lock()
	s.backing.failTypes[record.EntityAccount] = true
	s.backing.mu.Unlock()

	page, err := s.service.Build(ctx, "c1", BuildOptions{})
	s.Require().NoError(err)

	// Accounts degraded to absent; everything else still present.
	s.Empty(page.Related.Accounts)
	s.Len(page.Related.Contacts, 1)
	s.Len(page.Related.OpenTasks, 2)
	s.NotNil(page.Rules)
}

// =============================================================================
// Ordering Tests
// =============================================================================

func (s *AggregatorSuite) TestMonotonicTimeline() {
	ctx := context.Background()

	// The clock is frozen; GeneratedAt must still strictly increase.
	var prev *PageData
	for range 5 {
		page, err := s.service.Build(ctx, "c1", BuildOptions{})
		s.Require().NoError(err)
		if prev != nil {
			s.True(page.NewerThan(prev))
			s.True(page.GeneratedAt.After(prev.GeneratedAt))
		}
		prev = page
	}
}

func (s *AggregatorSuite) TestConcurrentBuildsCoalesce() {
	ctx := context.Background()

	block := make(chan struct{})
	s.backing.mu.Lock()
	s.backing.block = block
	s.backing.mu.Unlock()

	var wg sync.WaitGroup
	pages := make([]*PageData, 2)
	errs := make([]error, 2)
	for i := range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pages[i], errs[i] = s.service.Build(ctx, "c1", BuildOptions{})
		}()
	}

	// Let both calls land on the in-flight build before releasing the fetch.
	time.Sleep(20 * time.Millisecond)
	close(block)
	wg.Wait()

	s.Require().NoError(errs[0])
	s.Require().NoError(errs[1])

	// Both callers received the identical snapshot from one build.
	s.Same(pages[0], pages[1])

	s.backing.mu.Lock()
	fetches := s.backing.fetches
	s.backing.mu.Unlock()
	s.Equal(1, fetches)
}
