package httptransport

import (
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"casegov/internal/contextstore"
	"casegov/internal/pagedata"
	"casegov/internal/platform/logger"
	"casegov/internal/record"
	"casegov/internal/record/store"
	"casegov/internal/rules"
	"casegov/pkg/testutil"
)

// newBareRouter mounts the handler without the auth middleware so tests
// control the caller identity directly through the request context.
func newBareRouter(t *testing.T) (chi.Router, *store.InMemoryStore) {
	t.Helper()

	backing := store.NewInMemoryStore()
	backing.Put(record.Case{
		ID:        "case-1",
		Status:    record.CaseStatusNew,
		Priority:  "Low",
		CreatedAt: time.Now(),
	})

	contexts := contextstore.New(backing)
	evaluator, err := rules.New(rules.DefaultConfig())
	require.NoError(t, err)
	aggregator := pagedata.New(contexts, evaluator)

	r := chi.NewRouter()
	New(aggregator, nil, backing, contexts, logger.New()).Register(r)
	return r, backing
}

func TestGetPageDataDeniedWithoutScope(t *testing.T) {
	router, _ := newBareRouter(t)

	req := testutil.NewJSONRequest(t, http.MethodGet, "/cases/case-1/page-data", nil)
	req = testutil.WithCaller(req, "agent-1", "task:read")

	rr := testutil.DoRequest(router, req)
	testutil.AssertStatus(t, rr, http.StatusForbidden)
	testutil.AssertErrorCode(t, rr, "access_denied")
}

func TestRefreshWithoutHubIsUnavailable(t *testing.T) {
	router, _ := newBareRouter(t)

	req := testutil.NewJSONRequest(t, http.MethodPost, "/cases/case-1/refresh", nil)
	req = testutil.WithCaller(req, "agent-1")

	rr := testutil.DoRequest(router, req)
	testutil.AssertStatus(t, rr, http.StatusServiceUnavailable)
}

func TestWriteRecordResponseShape(t *testing.T) {
	router, _ := newBareRouter(t)

	req := testutil.NewJSONRequest(t, http.MethodPatch, "/records/case/case-1",
		WriteRecordRequest{Fields: map[string]any{"priority": "High"}})
	req = testutil.WithCaller(req, "agent-1")

	rr := testutil.DoRequest(router, req)
	testutil.AssertStatus(t, rr, http.StatusOK)

	result := testutil.UnmarshalResponse[store.WriteResult](t, rr)
	require.True(t, result.Success)
	require.Empty(t, result.Errors)
}
