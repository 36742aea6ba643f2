package consumer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"casegov/internal/contextstore"
	"casegov/internal/governor"
	"casegov/internal/governor/broadcast"
	"casegov/internal/pagedata"
	"casegov/internal/record"
	"casegov/internal/record/store"
	"casegov/internal/rules"
)

// TestFallbackMatchesHubOutput runs the full stack twice for the same case:
// once through a hub broadcast and once through a consumer fallback with no
// hub present. Both paths go through the same aggregator, so the snapshots,
// related records, and rule results must be identical.
func TestFallbackMatchesHubOutput(t *testing.T) {
	ctx := context.Background()

	backing := store.NewInMemoryStore()
	backing.Put(record.Case{
		ID:          "case-1",
		Status:      record.CaseStatusInProgress,
		ServiceType: "New Service",
		AccountID:   "acct-1",
		ContactID:   "contact-1",
		Value:       75000,
		Priority:    "High",
		CreatedAt:   time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC),
	})
	backing.Put(record.Account{ID: "acct-1", Name: "Acme", Kind: record.AccountClient})
	backing.Put(record.Contact{ID: "contact-1", Name: "R. Vance"})

	newAggregator := func() *pagedata.Service {
		contexts := contextstore.New(backing)
		evaluator, err := rules.New(rules.DefaultConfig())
		require.NoError(t, err)
		return pagedata.New(contexts, evaluator)
	}

	// Path one: a hub builds and broadcasts; the adapter receives it.
	bus := broadcast.NewMemory(nil)
	defer bus.Close()
	hub := governor.New(newAggregator(), contextstore.New(backing), bus)

	hubApplied := make(chan *pagedata.PageData, 1)
	withHub := New("case-1", bus, newAggregator(),
		WithWaitTimeout(time.Minute),
		WithOnApply(func(pd *pagedata.PageData) { hubApplied <- pd }),
	)
	withHub.Mount(ctx)
	defer withHub.Unmount()

	require.NoError(t, hub.OnMount(ctx, "case-1"))

	var fromHub *pagedata.PageData
	select {
	case fromHub = <-hubApplied:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for hub broadcast")
	}

	// Path two: no hub ever publishes; the adapter's bounded wait expires and
	// it fetches directly.
	silentBus := broadcast.NewMemory(nil)
	defer silentBus.Close()

	fallbackApplied := make(chan *pagedata.PageData, 1)
	withoutHub := New("case-1", silentBus, newAggregator(),
		WithWaitTimeout(10*time.Millisecond),
		WithOnApply(func(pd *pagedata.PageData) { fallbackApplied <- pd }),
	)
	withoutHub.Mount(ctx)
	defer withoutHub.Unmount()

	var fromFallback *pagedata.PageData
	select {
	case fromFallback = <-fallbackApplied:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for fallback fetch")
	}

	require.True(t, withHub.HasGovernorData())
	require.False(t, withoutHub.HasGovernorData())

	// Identity fields differ per build; the content must not.
	require.Equal(t, fromHub.Snapshot, fromFallback.Snapshot)
	require.Equal(t, fromHub.Related, fromFallback.Related)
	require.Equal(t, fromHub.Rules, fromFallback.Rules)
	require.NotNil(t, fromHub.Rules)
	require.True(t, fromHub.Rules.Approval.Required, "75k case crosses the approval threshold")
}
