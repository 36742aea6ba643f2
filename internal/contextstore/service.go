// Package contextstore is the single source of truth for record reads. It
// layers an in-process TTL cache (optionally backed by a shared Redis tier)
// over the persistence boundary and deduplicates concurrent fetches so a
// bulk fetch is never started twice for the same uncached key.
package contextstore

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"casegov/internal/contextstore/metrics"
	platformredis "casegov/internal/platform/redis"
	"casegov/internal/record"
	"casegov/internal/record/store"
	dErrors "casegov/pkg/domain-errors"
	"casegov/pkg/platform/sentinel"
	"casegov/pkg/requestcontext"
)

//go:generate mockgen -source=../record/store/ports.go -destination=mocks/mocks.go -package=mocks Fetcher

// Service owns the cache. Nothing else mutates cache entries.
type Service struct {
	fetcher      store.Fetcher
	cache        *memoryCache
	shared       *redisTier
	defaultTTL   time.Duration
	ttlOverrides map[record.EntityType]time.Duration
	logger       *slog.Logger
	metrics      *metrics.Metrics
	clock        func() time.Time

	mu       sync.Mutex
	inflight map[string]*inflightFetch
}

// inflightFetch represents one key being fetched. Followers wait on done and
// read rec/err afterwards; a nil rec with nil err means the id has no record.
type inflightFetch struct {
	done chan struct{}
	rec  record.Record
	err  error
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithSharedCache adds the Redis tier between the in-process cache and the
// backing store. A nil client leaves the tier disabled.
func WithSharedCache(client *platformredis.Client) Option {
	return func(s *Service) { s.shared = newRedisTier(client) }
}

// WithTTL sets the default entry retention.
func WithTTL(ttl time.Duration) Option {
	return func(s *Service) { s.defaultTTL = ttl }
}

// WithTTLOverrides sets per-entity-type retention.
func WithTTLOverrides(overrides map[record.EntityType]time.Duration) Option {
	return func(s *Service) { s.ttlOverrides = overrides }
}

// WithClock sets the time source for testability.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

func New(fetcher store.Fetcher, opts ...Option) *Service {
	s := &Service{
		fetcher:    fetcher,
		cache:      newMemoryCache(),
		defaultTTL: 30 * time.Second,
		clock:      time.Now,
		inflight:   make(map[string]*inflightFetch),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) ttlFor(entityType record.EntityType) time.Duration {
	if ttl, ok := s.ttlOverrides[entityType]; ok {
		return ttl
	}
	return s.defaultTTL
}

// checkReadScope enforces read permission when the request carries a caller.
// Internal reads (governor, aggregator) run without a caller and are trusted.
// Denials carry no field data.
func (s *Service) checkReadScope(ctx context.Context, entityType record.EntityType) error {
	if requestcontext.CallerID(ctx) == "" {
		return nil
	}
	scope := record.ReadScope(entityType)
	if requestcontext.HasScope(ctx, scope) {
		return nil
	}
	return dErrors.Wrap(sentinel.ErrAccessDenied, dErrors.CodeAccessDenied, "missing "+scope+" scope")
}

// GetByID returns one record, reading through the cache on a miss.
func (s *Service) GetByID(ctx context.Context, entityType record.EntityType, id string) (record.Record, error) {
	if err := s.checkReadScope(ctx, entityType); err != nil {
		return nil, err
	}

	if rec, ok := s.cache.get(cacheKey(entityType, id), s.clock()); ok {
		s.metrics.IncrementHit(string(entityType))
		return rec, nil
	}
	s.metrics.IncrementMiss(string(entityType))

	found, err := s.fetchMissing(ctx, entityType, []string{id})
	if err != nil {
		return nil, err
	}
	rec, ok := found[id]
	if !ok {
		return nil, dErrors.Wrap(sentinel.ErrNotFound, dErrors.CodeNotFound, string(entityType)+" record not found")
	}
	return rec, nil
}

// GetManyByIDs returns every existing record among ids. Cached entries are
// served directly; the uncached subset goes to the backing store in exactly
// one bulk fetch per unique id, shared with any concurrent caller.
func (s *Service) GetManyByIDs(ctx context.Context, entityType record.EntityType, ids []string) (map[string]record.Record, error) {
	if err := s.checkReadScope(ctx, entityType); err != nil {
		return nil, err
	}

	out := make(map[string]record.Record, len(ids))
	var missing []string
	now := s.clock()
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if rec, ok := s.cache.get(cacheKey(entityType, id), now); ok {
			s.metrics.IncrementHit(string(entityType))
			out[id] = rec
			continue
		}
		s.metrics.IncrementMiss(string(entityType))
		missing = append(missing, id)
	}

	if len(missing) == 0 {
		return out, nil
	}

	found, err := s.fetchMissing(ctx, entityType, missing)
	if err != nil {
		return nil, err
	}
	for id, rec := range found {
		out[id] = rec
	}
	return out, nil
}

// Invalidate removes a cache entry from every tier. Idempotent.
func (s *Service) Invalidate(ctx context.Context, entityType record.EntityType, id string) {
	s.cache.delete(cacheKey(entityType, id))
	if s.shared != nil {
		if err := s.shared.delete(ctx, entityType, id); err != nil && s.logger != nil {
			s.logger.WarnContext(ctx, "shared cache invalidation failed",
				"entity_type", entityType,
				"record_id", id,
				"error", err,
			)
		}
	}
	s.metrics.IncrementInvalidation(string(entityType))
}

// fetchMissing resolves uncached ids. For each id either this caller becomes
// the leader (and includes it in its one bulk fetch) or it joins the fetch
// already in flight for it. Ids with no record are absent from the result.
func (s *Service) fetchMissing(ctx context.Context, entityType record.EntityType, ids []string) (map[string]record.Record, error) {
	s.mu.Lock()
	var lead []string
	join := make(map[string]*inflightFetch)
	for _, id := range ids {
		key := cacheKey(entityType, id)
		if call, ok := s.inflight[key]; ok {
			join[id] = call
			continue
		}
		call := &inflightFetch{done: make(chan struct{})}
		s.inflight[key] = call
		lead = append(lead, id)
	}
	s.mu.Unlock()

	out := make(map[string]record.Record, len(ids))

	var leadErr error
	if len(lead) > 0 {
		found, err := s.fetchAndPopulate(ctx, entityType, lead)
		leadErr = err

		s.mu.Lock()
		for _, id := range lead {
			key := cacheKey(entityType, id)
			call := s.inflight[key]
			delete(s.inflight, key)
			if err != nil {
				call.err = err
			} else if rec, ok := found[id]; ok {
				call.rec = rec
				out[id] = rec
			}
			close(call.done)
		}
		s.mu.Unlock()
	}

	for id, call := range join {
		s.metrics.IncrementInflightJoin(string(entityType))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-call.done:
		}
		if call.err != nil {
			return nil, call.err
		}
		if call.rec != nil {
			out[id] = call.rec
		}
	}

	if leadErr != nil {
		return nil, dErrors.Wrap(leadErr, dErrors.CodeUnavailable, "record fetch failed")
	}
	return out, nil
}

// fetchAndPopulate consults the shared tier, bulk-fetches the rest from the
// backing store, and populates both cache tiers.
func (s *Service) fetchAndPopulate(ctx context.Context, entityType record.EntityType, ids []string) (map[string]record.Record, error) {
	found := make(map[string]record.Record, len(ids))
	remaining := ids

	if s.shared != nil {
		remaining = remaining[:0:0]
		for _, id := range ids {
			rec, err := s.shared.get(ctx, entityType, id)
			if err != nil {
				if s.logger != nil {
					s.logger.WarnContext(ctx, "shared cache read failed, falling through",
						"entity_type", entityType,
						"record_id", id,
						"error", err,
					)
				}
				remaining = append(remaining, id)
				continue
			}
			if rec == nil {
				remaining = append(remaining, id)
				continue
			}
			found[id] = rec
		}
	}

	if len(remaining) > 0 {
		start := time.Now()
		fetched, err := s.fetcher.FetchMany(ctx, entityType, remaining)
		s.metrics.ObserveFetchLatency(string(entityType), time.Since(start))
		if err != nil {
			return nil, err
		}
		for id, rec := range fetched {
			found[id] = rec
		}
	}

	now := s.clock()
	ttl := s.ttlFor(entityType)
	for id, rec := range found {
		s.cache.set(cacheKey(entityType, id), rec, now, ttl)
		if s.shared != nil {
			if err := s.shared.set(ctx, rec, ttl); err != nil && s.logger != nil {
				s.logger.WarnContext(ctx, "shared cache write failed",
					"entity_type", entityType,
					"record_id", id,
					"error", err,
				)
			}
		}
	}
	return found, nil
}
