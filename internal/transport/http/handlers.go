package httptransport

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	dErrors "casegov/pkg/domain-errors"
	"casegov/pkg/platform/httputil"
	"casegov/pkg/platform/sentinel"
	"casegov/pkg/requestcontext"

	"casegov/internal/governor"
	"casegov/internal/pagedata"
	"casegov/internal/record"
	"casegov/internal/record/store"
)

// Aggregator is the direct page data path exposed to consumers.
type Aggregator interface {
	Build(ctx context.Context, caseID string, opts pagedata.BuildOptions) (*pagedata.PageData, error)
}

// Refresher accepts fire-and-forget refresh signals. Typically the hub.
type Refresher interface {
	OnRefreshRequest(ctx context.Context, caseID, section string) error
}

// Invalidator drops cache entries after a write lands.
type Invalidator interface {
	Invalidate(ctx context.Context, entityType record.EntityType, id string)
}

// HealthChecker reports backing dependency health for readiness probes.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Handler wires the consumer-facing endpoints to the core services.
type Handler struct {
	aggregator Aggregator
	refresher  Refresher
	writer     store.Writer
	contexts   Invalidator
	health     []HealthChecker
	logger     *slog.Logger
}

// New constructs the HTTP handler. refresher may be nil when no hub runs in
// this process; refresh requests then answer 503 and consumers fall back.
func New(aggregator Aggregator, refresher Refresher, writer store.Writer, contexts Invalidator, logger *slog.Logger, health ...HealthChecker) *Handler {
	return &Handler{
		aggregator: aggregator,
		refresher:  refresher,
		writer:     writer,
		contexts:   contexts,
		health:     health,
		logger:     logger,
	}
}

// Register mounts the authenticated endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/cases/{caseID}/page-data", h.HandleGetPageData)
	r.Post("/cases/{caseID}/refresh", h.HandleRequestRefresh)
	r.Patch("/records/{entityType}/{id}", h.HandleWriteRecord)
}

// HandleGetPageData handles GET /cases/{caseID}/page-data requests. Query
// parameters includeRelated and evaluateRules narrow the build; both default
// to true.
func (h *Handler) HandleGetPageData(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	caseID := chi.URLParam(r, "caseID")
	if caseID == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "case id is required"))
		return
	}

	opts := pagedata.BuildOptions{
		SkipRelated: r.URL.Query().Get("includeRelated") == "false",
		SkipRules:   r.URL.Query().Get("evaluateRules") == "false",
	}

	pd, err := h.aggregator.Build(ctx, caseID, opts)
	if err != nil {
		h.logger.ErrorContext(ctx, "page data build failed",
			"request_id", requestID,
			"case_id", caseID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "page data served",
		"request_id", requestID,
		"case_id", caseID,
		"sequence", pd.Sequence,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, pd)
}

// RefreshRequest is the optional body of a refresh signal.
type RefreshRequest struct {
	Section string `json:"section"`
}

// HandleRequestRefresh handles POST /cases/{caseID}/refresh requests. The
// signal is fire-and-forget: the rebuild and broadcast run after the 202.
func (h *Handler) HandleRequestRefresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	caseID := chi.URLParam(r, "caseID")
	if caseID == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "case id is required"))
		return
	}
	if h.refresher == nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnavailable, "no distribution hub in this process"))
		return
	}

	var req RefreshRequest
	if r.ContentLength > 0 {
		var ok bool
		if req, ok = httputil.DecodeAndPrepare[RefreshRequest](w, r, h.logger, ctx, requestID); !ok {
			return
		}
	}

	h.logger.InfoContext(ctx, "refresh requested",
		"request_id", requestID,
		"case_id", caseID,
		"section", req.Section,
	)

	// Detached from the request lifecycle; the caller does not wait for the
	// rebuild.
	go func() {
		refreshCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := h.refresher.OnRefreshRequest(refreshCtx, caseID, req.Section); err != nil {
			h.logger.ErrorContext(refreshCtx, "refresh failed",
				"request_id", requestID,
				"case_id", caseID,
				"section", req.Section,
				"error", err,
			)
		}
	}()

	httputil.WriteJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// WriteRecordRequest carries the fields of a partial record update.
type WriteRecordRequest struct {
	Fields map[string]any `json:"fields"`
}

// Validate implements the httputil validation hook.
func (r *WriteRecordRequest) Validate() error {
	if len(r.Fields) == 0 {
		return dErrors.New(dErrors.CodeBadRequest, "fields must not be empty")
	}
	return nil
}

// HandleWriteRecord handles PATCH /records/{entityType}/{id} requests. The
// write goes through the persistence boundary, then the cache entry is
// invalidated so the next read observes the new state. The caller still owns
// the follow-up refresh request.
func (h *Handler) HandleWriteRecord(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	entityType, err := record.ParseEntityType(chi.URLParam(r, "entityType"))
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "unknown entity type"))
		return
	}
	id := chi.URLParam(r, "id")
	if id == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "record id is required"))
		return
	}

	req, ok := httputil.DecodeAndPrepare[WriteRecordRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	result, err := h.writer.Write(ctx, store.Patch{
		EntityType: entityType,
		ID:         id,
		Fields:     req.Fields,
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "record write failed",
			"request_id", requestID,
			"entity_type", entityType,
			"record_id", id,
			"error", err,
		)
		if errors.Is(err, sentinel.ErrNotFound) {
			err = dErrors.Wrap(err, dErrors.CodeNotFound, string(entityType)+" record not found")
		}
		httputil.WriteError(w, err)
		return
	}

	h.contexts.Invalidate(ctx, entityType, id)

	h.logger.InfoContext(ctx, "record written",
		"request_id", requestID,
		"caller_id", requestcontext.CallerID(ctx),
		"entity_type", entityType,
		"record_id", id,
		"success", result.Success,
		"field_errors", len(result.Errors),
	)
	httputil.WriteJSON(w, http.StatusOK, result)
}

// HandleHealth handles GET /healthz requests.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	for _, checker := range h.health {
		if checker == nil {
			continue
		}
		if err := checker.Health(ctx); err != nil {
			httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeUnavailable, "dependency unhealthy"))
			return
		}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

var _ Refresher = (*governor.Hub)(nil)
var _ Aggregator = (*pagedata.Service)(nil)
