package consumer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"casegov/internal/governor/broadcast"
	"casegov/internal/governor/metrics"
	"casegov/internal/pagedata"
)

const defaultWaitTimeout = 1500 * time.Millisecond

// Subscriber is the receive side of the broadcast channel.
type Subscriber interface {
	Subscribe(caseID string) (<-chan broadcast.Envelope, func())
}

// Aggregator is the direct page data path. It is the same path the hub uses,
// so a fallback fetch can never diverge from what the hub would have
// published.
type Aggregator interface {
	Build(ctx context.Context, caseID string, opts pagedata.BuildOptions) (*pagedata.PageData, error)
}

// Refresher accepts scoped refresh requests. Typically the hub; nil when no
// hub is present.
type Refresher interface {
	OnRefreshRequest(ctx context.Context, caseID, section string) error
}

// Adapter binds one consumer to one case. It waits a bounded time for hub
// data, falls back to a direct fetch when none arrives, and enforces
// monotonic application: an envelope older than what it already holds is
// discarded, never applied.
type Adapter struct {
	caseID      string
	bus         Subscriber
	source      Aggregator
	refresher   Refresher
	buildOpts   pagedata.BuildOptions
	waitTimeout time.Duration
	logger      *slog.Logger
	metrics     *metrics.Metrics
	onApply     func(*pagedata.PageData)

	mu              sync.Mutex
	current         *pagedata.PageData
	hasGovernorData bool

	cancelOnce sync.Once
	cancel     func()
	done       chan struct{}
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Adapter) { a.logger = logger }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Adapter) { a.metrics = m }
}

// WithWaitTimeout bounds how long the adapter waits for hub data before
// fetching directly.
func WithWaitTimeout(d time.Duration) Option {
	return func(a *Adapter) { a.waitTimeout = d }
}

// WithBuildOptions narrows the adapter's direct fetches to its own need.
func WithBuildOptions(opts pagedata.BuildOptions) Option {
	return func(a *Adapter) { a.buildOpts = opts }
}

// WithRefresher wires the hub's refresh entry point for post-write refreshes.
func WithRefresher(r Refresher) Option {
	return func(a *Adapter) { a.refresher = r }
}

// WithOnApply registers a callback invoked with every applied snapshot.
func WithOnApply(fn func(*pagedata.PageData)) Option {
	return func(a *Adapter) { a.onApply = fn }
}

// New creates an adapter for caseID. Call Mount to start it.
func New(caseID string, bus Subscriber, source Aggregator, opts ...Option) *Adapter {
	a := &Adapter{
		caseID:      caseID,
		bus:         bus,
		source:      source,
		waitTimeout: defaultWaitTimeout,
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Mount subscribes to the broadcast channel and starts the bounded wait for
// hub data. ctx cancellation stops the adapter.
func (a *Adapter) Mount(ctx context.Context) {
	ch, cancel := a.bus.Subscribe(a.caseID)
	a.cancel = cancel
	go a.run(ctx, ch)
}

// Unmount stops the subscription. Idempotent.
func (a *Adapter) Unmount() {
	a.cancelOnce.Do(func() {
		if a.cancel != nil {
			a.cancel()
		}
	})
}

// Current returns the last applied snapshot, or nil before any data arrived.
func (a *Adapter) Current() *pagedata.PageData {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current
}

// HasGovernorData reports whether any snapshot arrived via the hub.
func (a *Adapter) HasGovernorData() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.hasGovernorData
}

// Done closes when the adapter's event loop has exited.
func (a *Adapter) Done() <-chan struct{} {
	return a.done
}

// AfterWrite routes the post-write reload. With hub data seen it requests a
// scoped refresh so every subscriber updates; without a hub it re-fetches
// directly. Never both.
func (a *Adapter) AfterWrite(ctx context.Context, section string) error {
	if a.HasGovernorData() && a.refresher != nil {
		return a.refresher.OnRefreshRequest(ctx, a.caseID, section)
	}
	return a.fetchDirect(ctx, "after_write")
}

func (a *Adapter) run(ctx context.Context, ch <-chan broadcast.Envelope) {
	defer close(a.done)
	defer a.Unmount()

	timer := time.NewTimer(a.waitTimeout)
	defer timer.Stop()
	waiting := true

	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-ch:
			if !ok {
				return
			}
			if a.handle(ctx, env) && waiting {
				waiting = false
				timer.Stop()
			}
		case <-timer.C:
			if !waiting {
				continue
			}
			waiting = false
			if err := a.fetchDirect(ctx, "wait_timeout"); err != nil && a.logger != nil {
				a.logger.WarnContext(ctx, "fallback fetch failed",
					"case_id", a.caseID,
					"error", err,
				)
			}
		}
	}
}

// handle processes one envelope. It reports whether the bounded wait is
// satisfied: either data was delivered or the hub declared an error and the
// fallback already ran.
func (a *Adapter) handle(ctx context.Context, env broadcast.Envelope) bool {
	switch env.EventType {
	case broadcast.EventLoad, broadcast.EventRefresh:
		if env.PageData == nil {
			return false
		}
		a.apply(env.PageData, true)
		return true
	case broadcast.EventError:
		if a.logger != nil {
			a.logger.WarnContext(ctx, "hub reported aggregation error",
				"case_id", a.caseID,
				"error_message", env.ErrorMessage,
			)
		}
		if a.Current() == nil {
			if err := a.fetchDirect(ctx, "hub_error"); err != nil && a.logger != nil {
				a.logger.WarnContext(ctx, "fallback fetch failed",
					"case_id", a.caseID,
					"error", err,
				)
			}
		}
		return true
	default:
		return false
	}
}

// apply installs pd if it supersedes the current snapshot. Older or duplicate
// deliveries are discarded here; the transport makes no ordering promise.
func (a *Adapter) apply(pd *pagedata.PageData, fromGovernor bool) bool {
	a.mu.Lock()
	if !pd.NewerThan(a.current) {
		a.mu.Unlock()
		a.metrics.IncrementStaleDiscard()
		if a.logger != nil {
			a.logger.Debug("stale page data discarded",
				"case_id", a.caseID,
				"sequence", pd.Sequence,
			)
		}
		return false
	}
	a.current = pd
	if fromGovernor {
		a.hasGovernorData = true
	}
	onApply := a.onApply
	a.mu.Unlock()

	if onApply != nil {
		onApply(pd)
	}
	return true
}

func (a *Adapter) fetchDirect(ctx context.Context, reason string) error {
	a.metrics.IncrementFallback(reason)
	pd, err := a.source.Build(ctx, a.caseID, a.buildOpts)
	if err != nil {
		return err
	}
	a.apply(pd, false)
	return nil
}
