package httptransport

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"casegov/internal/contextstore"
	"casegov/internal/governor"
	"casegov/internal/governor/broadcast"
	"casegov/internal/pagedata"
	"casegov/internal/platform/logger"
	"casegov/internal/record"
	"casegov/internal/record/store"
	"casegov/internal/rules"
	"casegov/internal/token"
)

// ============================================================
// HTTP Handler Suite
// ============================================================

type HandlerSuite struct {
	suite.Suite
	backing  *store.InMemoryStore
	contexts *contextstore.Service
	bus      *broadcast.Memory
	hub      *governor.Hub
	tokens   *token.JWTService
	server   *httptest.Server
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	log := logger.New()

	s.backing = store.NewInMemoryStore()
	s.backing.Put(record.Case{
		ID:          "case-1",
		Status:      record.CaseStatusInProgress,
		ServiceType: "Repair",
		AccountID:   "acct-1",
		Priority:    "Medium",
		CreatedAt:   time.Now().Add(-24 * time.Hour),
	})
	s.backing.Put(record.Account{ID: "acct-1", Name: "Acme", Kind: record.AccountClient})

	s.contexts = contextstore.New(s.backing)
	evaluator, err := rules.New(rules.DefaultConfig())
	s.Require().NoError(err)
	aggregator := pagedata.New(s.contexts, evaluator)

	s.bus = broadcast.NewMemory(nil)
	s.hub = governor.New(aggregator, s.contexts, s.bus)

	s.tokens = token.NewJWTService("test-signing-key", "casegov", "casegov")

	handler := New(aggregator, s.hub, s.backing, s.contexts, log)
	s.server = httptest.NewServer(NewRouter(handler, s.tokens))
}

func (s *HandlerSuite) TearDownTest() {
	s.server.Close()
	s.Require().NoError(s.bus.Close())
}

func (s *HandlerSuite) bearerToken(scopes ...string) string {
	tok, err := s.tokens.GenerateAccessToken("agent-1", scopes, time.Hour)
	s.Require().NoError(err)
	return tok
}

func (s *HandlerSuite) do(method, path, token string, body any) *http.Response {
	var buf bytes.Buffer
	if body != nil {
		s.Require().NoError(json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, s.server.URL+path, &buf)
	s.Require().NoError(err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.server.Client().Do(req)
	s.Require().NoError(err)
	return resp
}

func (s *HandlerSuite) decode(resp *http.Response, v any) {
	defer resp.Body.Close()
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(v))
}

func allReadScopes() []string {
	scopes := make([]string, 0, len(record.AllEntityTypes))
	for _, t := range record.AllEntityTypes {
		scopes = append(scopes, record.ReadScope(t))
	}
	return scopes
}

// ============================================================
// GET /cases/{caseID}/page-data
// ============================================================

func (s *HandlerSuite) TestGetPageData() {
	resp := s.do(http.MethodGet, "/cases/case-1/page-data", s.bearerToken(allReadScopes()...), nil)
	s.Require().Equal(http.StatusOK, resp.StatusCode)

	var pd pagedata.PageData
	s.decode(resp, &pd)
	s.Equal("case-1", pd.CaseID)
	s.Equal("case-1", pd.Snapshot.ID)
	s.Require().NotNil(pd.Rules)
	s.NotEmpty(pd.Rules.VisibleActions)
	s.Contains(pd.Related.Accounts, "acct-1")
	s.NotEmpty(pd.CorrelationID)
}

func (s *HandlerSuite) TestGetPageDataSkipsSectionsOnRequest() {
	resp := s.do(http.MethodGet, "/cases/case-1/page-data?includeRelated=false&evaluateRules=false",
		s.bearerToken(allReadScopes()...), nil)
	s.Require().Equal(http.StatusOK, resp.StatusCode)

	var pd pagedata.PageData
	s.decode(resp, &pd)
	s.Equal("case-1", pd.Snapshot.ID)
	s.Nil(pd.Rules)
	s.Empty(pd.Related.Accounts)
}

func (s *HandlerSuite) TestGetPageDataUnknownCase() {
	resp := s.do(http.MethodGet, "/cases/missing/page-data", s.bearerToken(allReadScopes()...), nil)
	defer resp.Body.Close()
	s.Equal(http.StatusNotFound, resp.StatusCode)
}

func (s *HandlerSuite) TestGetPageDataWithoutToken() {
	resp := s.do(http.MethodGet, "/cases/case-1/page-data", "", nil)
	defer resp.Body.Close()
	s.Equal(http.StatusUnauthorized, resp.StatusCode)
}

func (s *HandlerSuite) TestGetPageDataWithoutCaseReadScope() {
	resp := s.do(http.MethodGet, "/cases/case-1/page-data", s.bearerToken("task:read"), nil)
	defer resp.Body.Close()
	s.Equal(http.StatusForbidden, resp.StatusCode)
}

// ============================================================
// POST /cases/{caseID}/refresh
// ============================================================

func (s *HandlerSuite) TestRequestRefreshBroadcasts() {
	ch, cancel := s.bus.Subscribe("case-1")
	defer cancel()

	resp := s.do(http.MethodPost, "/cases/case-1/refresh", s.bearerToken(), RefreshRequest{Section: "accounts"})
	defer resp.Body.Close()
	s.Require().Equal(http.StatusAccepted, resp.StatusCode)

	select {
	case env := <-ch:
		s.Equal(broadcast.EventRefresh, env.EventType)
		s.Equal("accounts", env.Section)
		s.Require().NotNil(env.PageData)
		s.Equal("case-1", env.PageData.CaseID)
	case <-time.After(2 * time.Second):
		s.FailNow("timed out waiting for refresh broadcast")
	}
}

func (s *HandlerSuite) TestRequestRefreshWithoutBody() {
	resp := s.do(http.MethodPost, "/cases/case-1/refresh", s.bearerToken(), nil)
	defer resp.Body.Close()
	s.Equal(http.StatusAccepted, resp.StatusCode)
}

// ============================================================
// PATCH /records/{entityType}/{id}
// ============================================================

func (s *HandlerSuite) TestWriteRecordInvalidatesCache() {
	token := s.bearerToken(allReadScopes()...)

	// Warm the cache.
	resp := s.do(http.MethodGet, "/cases/case-1/page-data", token, nil)
	var before pagedata.PageData
	s.decode(resp, &before)
	s.Equal(record.CaseStatusInProgress, before.Snapshot.Status)

	resp = s.do(http.MethodPatch, "/records/case/case-1", token,
		WriteRecordRequest{Fields: map[string]any{"status": record.CaseStatusOnHold}})
	s.Require().Equal(http.StatusOK, resp.StatusCode)

	var result store.WriteResult
	s.decode(resp, &result)
	s.True(result.Success)
	s.Empty(result.Errors)

	// The next read must observe the write, not the cached entry.
	resp = s.do(http.MethodGet, "/cases/case-1/page-data", token, nil)
	var after pagedata.PageData
	s.decode(resp, &after)
	s.Equal(record.CaseStatusOnHold, after.Snapshot.Status)
	s.True(after.NewerThan(&before))
}

func (s *HandlerSuite) TestWriteRecordReportsFieldErrors() {
	resp := s.do(http.MethodPatch, "/records/case/case-1", s.bearerToken(),
		WriteRecordRequest{Fields: map[string]any{"status": record.CaseStatusOnHold, "nonsense": 1}})
	s.Require().Equal(http.StatusOK, resp.StatusCode)

	var result store.WriteResult
	s.decode(resp, &result)
	s.False(result.Success)
	s.Require().Len(result.Errors, 1)
	s.Contains(result.Errors[0], "nonsense")
}

func (s *HandlerSuite) TestWriteRecordValidation() {
	s.Run("unknown entity type", func() {
		resp := s.do(http.MethodPatch, "/records/widget/w-1", s.bearerToken(),
			WriteRecordRequest{Fields: map[string]any{"status": "x"}})
		defer resp.Body.Close()
		s.Equal(http.StatusBadRequest, resp.StatusCode)
	})

	s.Run("empty fields", func() {
		resp := s.do(http.MethodPatch, "/records/case/case-1", s.bearerToken(),
			WriteRecordRequest{Fields: map[string]any{}})
		defer resp.Body.Close()
		s.Equal(http.StatusBadRequest, resp.StatusCode)
	})

	s.Run("missing record", func() {
		resp := s.do(http.MethodPatch, "/records/case/missing", s.bearerToken(),
			WriteRecordRequest{Fields: map[string]any{"status": record.CaseStatusOnHold}})
		defer resp.Body.Close()
		s.Equal(http.StatusNotFound, resp.StatusCode)
	})
}

// ============================================================
// Probes
// ============================================================

func (s *HandlerSuite) TestHealthEndpointIsOpen() {
	resp, err := s.server.Client().Get(s.server.URL + "/healthz")
	s.Require().NoError(err)
	defer resp.Body.Close()
	s.Equal(http.StatusOK, resp.StatusCode)
}

func (s *HandlerSuite) TestMetricsEndpointIsOpen() {
	resp, err := s.server.Client().Get(s.server.URL + "/metrics")
	s.Require().NoError(err)
	defer resp.Body.Close()
	s.Equal(http.StatusOK, resp.StatusCode)
}

func (s *HandlerSuite) TestRequestIDPropagates() {
	req, err := http.NewRequest(http.MethodGet, fmt.Sprintf("%s/cases/case-1/page-data", s.server.URL), nil)
	s.Require().NoError(err)
	req.Header.Set("Authorization", "Bearer "+s.bearerToken(allReadScopes()...))
	req.Header.Set("X-Request-ID", "req-42")

	resp, err := s.server.Client().Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()
	s.Equal("req-42", resp.Header.Get("X-Request-ID"))
}
