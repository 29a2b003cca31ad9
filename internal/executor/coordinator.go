// Package executor drives admitted opportunities through the two-leg trade
// state machine: buy on one venue, sell on the other, settle or escalate.
package executor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

// Config holds the per-leg deadlines and fee fallback.
type Config struct {
	// ExecutionDelay bounds the wait for each leg to fill.
	ExecutionDelay time.Duration
	// ProtectiveTimeout bounds the wait for the protective sell after a
	// naked position.
	ProtectiveTimeout time.Duration
	CancelTimeout     time.Duration
	// DefaultFeePct is used when a venue's fee schedule cannot be read.
	DefaultFeePct float64
	// DedupTTL bounds how long a route stays blocked when its trade never
	// reports a terminal state.
	DedupTTL time.Duration
}

// DefaultConfig returns the stock deadlines.
func DefaultConfig() Config {
	return Config{
		ExecutionDelay:    100 * time.Millisecond,
		ProtectiveTimeout: 5 * time.Second,
		CancelTimeout:     3 * time.Second,
		DefaultFeePct:     0.1,
		DedupTTL:          time.Minute,
	}
}

// Admitter is the risk gate as seen by the coordinator.
type Admitter interface {
	PositionSize(balance float64) float64
	TryAdmit(opp domain.Opportunity, tradeID string) domain.Decision
	RecordTrade(t domain.Trade)
	Release(tradeID string)
}

// TradeSink receives every trade once it is terminal.
type TradeSink interface {
	Record(t domain.Trade)
}

// Ticket is an admitted opportunity with its trade id registered in the risk
// book.
type Ticket struct {
	TradeID     string
	Opportunity domain.Opportunity
	Size        float64
	AdmittedAt  time.Time
}

// Option customizes a Coordinator.
type Option func(*Coordinator)

// WithRecorder persists every trade transition.
func WithRecorder(r domain.Recorder) Option {
	return func(c *Coordinator) { c.recorder = r }
}

// WithNotifier sends trade outcomes and naked-position escalations.
func WithNotifier(n domain.Notifier) Option {
	return func(c *Coordinator) { c.notifier = n }
}

// WithSink adds a consumer of terminal trades.
func WithSink(s TradeSink) Option {
	return func(c *Coordinator) { c.sinks = append(c.sinks, s) }
}

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

type inflight struct {
	trade  domain.Trade
	route  string
	cancel context.CancelFunc
}

// Coordinator owns every trade from admission until a terminal state.
type Coordinator struct {
	cfg      Config
	venues   domain.VenueLookup
	risk     Admitter
	recorder domain.Recorder
	notifier domain.Notifier
	sinks    []TradeSink
	logger   *slog.Logger
	now      func() time.Time
	ids      *idSource
	dedup    *Dedup

	mu     sync.Mutex
	active map[string]*inflight
	wg     sync.WaitGroup
}

// New creates a Coordinator.
func New(cfg Config, venues domain.VenueLookup, risk Admitter, logger *slog.Logger, opts ...Option) *Coordinator {
	c := &Coordinator{
		cfg:    cfg,
		venues: venues,
		risk:   risk,
		logger: logger.With(slog.String("component", "executor")),
		now:    time.Now,
		ids:    newIDSource(),
		active: make(map[string]*inflight),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.dedup = NewDedup(cfg.DedupTTL, c.now)
	return c
}

// Admit sizes the opportunity against balance and registers a new trade id
// in the risk book. A rejected decision means no trade exists. A route with a
// trade still in flight is rejected as a duplicate until that trade is
// terminal.
func (c *Coordinator) Admit(opp domain.Opportunity, balance float64) (Ticket, domain.Decision) {
	size := c.risk.PositionSize(balance)
	if size <= 0 {
		return Ticket{}, domain.Reject(domain.RejectSize, "no balance to size the trade")
	}
	route := opp.Route()
	if c.dedup.IsDuplicate(route) {
		return Ticket{}, domain.Reject(domain.RejectDuplicate, route)
	}

	now := c.now()
	id := c.ids.next(now)
	d := c.risk.TryAdmit(opp, id)
	if !d.Allowed {
		c.dedup.Forget(route)
		return Ticket{}, d
	}
	return Ticket{TradeID: id, Opportunity: opp, Size: size, AdmittedAt: now}, d
}

// Execute runs the trade to a terminal state and returns it. The error is
// nil for a settled trade and otherwise one of *domain.OrderPlacementError,
// *domain.LegFillTimeoutError or *domain.NakedPositionError.
func (c *Coordinator) Execute(ctx context.Context, tk Ticket) (domain.Trade, error) {
	run := c.begin(ctx, tk)
	return run.execute()
}

// Launch executes the trade in the background and calls after, if non-nil,
// once it is terminal. Parent cancellation does not abort the trade; use
// ExpireStale to force one to a terminal state.
func (c *Coordinator) Launch(ctx context.Context, tk Ticket, after func(domain.Trade, error)) {
	run := c.begin(context.WithoutCancel(ctx), tk)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		t, err := run.execute()
		if after != nil {
			after(t, err)
		}
		if err != nil {
			c.logger.WarnContext(ctx, "trade ended without settlement",
				slog.String("trade_id", t.ID),
				slog.String("state", string(t.State)),
				slog.String("error", err.Error()),
			)
		}
	}()
}

func (c *Coordinator) begin(ctx context.Context, tk Ticket) *tradeRun {
	tctx, cancel := context.WithCancel(ctx)
	t := domain.NewTrade(tk.TradeID, tk.Opportunity, tk.Size, c.now())

	c.mu.Lock()
	c.active[t.ID] = &inflight{trade: cloneTrade(t), route: tk.Opportunity.Route(), cancel: cancel}
	c.mu.Unlock()

	return &tradeRun{c: c, ctx: tctx, cancel: cancel, trade: t}
}

// Active returns copies of the trades that are still in flight.
func (c *Coordinator) Active() []domain.Trade {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.Trade, 0, len(c.active))
	for _, f := range c.active {
		out = append(out, cloneTrade(f.trade))
	}
	return out
}

// ExpireStale cancels trades in flight for at least maxAge and returns their
// ids. A cancelled trade abandons its pending leg and reaches a terminal
// state on its own.
func (c *Coordinator) ExpireStale(maxAge time.Duration) []string {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()

	var expired []string
	for id, f := range c.active {
		if now.Sub(f.trade.StartedAt) >= maxAge {
			f.cancel()
			expired = append(expired, id)
			c.logger.Warn("trade timed out, forcing terminal state",
				slog.String("trade_id", id),
				slog.String("state", string(f.trade.State)),
				slog.Duration("age", now.Sub(f.trade.StartedAt)),
			)
		}
	}
	return expired
}

// Wait blocks until every launched trade is terminal or ctx ends.
func (c *Coordinator) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CleanupDedup drops route entries older than DedupTTL.
func (c *Coordinator) CleanupDedup() int {
	return c.dedup.Cleanup()
}

func (c *Coordinator) update(t domain.Trade) {
	c.mu.Lock()
	if f, ok := c.active[t.ID]; ok {
		f.trade = cloneTrade(t)
	}
	c.mu.Unlock()
}

func (c *Coordinator) finish(t domain.Trade) {
	c.mu.Lock()
	if f, ok := c.active[t.ID]; ok {
		c.dedup.Forget(f.route)
		delete(c.active, t.ID)
	}
	c.mu.Unlock()
	for _, s := range c.sinks {
		s.Record(t)
	}
}

func (c *Coordinator) persist(ctx context.Context, t domain.Trade) {
	if c.recorder == nil {
		return
	}
	if err := c.recorder.AppendTrade(ctx, t); err != nil {
		c.logger.WarnContext(ctx, "failed to persist trade",
			slog.String("trade_id", t.ID),
			slog.String("error", err.Error()),
		)
	}
}

func (c *Coordinator) notify(ctx context.Context, kind domain.EventKind, title, msg string) {
	if c.notifier != nil {
		c.notifier.Notify(ctx, kind, title, msg)
	}
}

func (c *Coordinator) escalate(ctx context.Context, title, msg string) {
	if c.notifier != nil {
		c.notifier.Escalate(ctx, title, msg)
	}
}

func cloneTrade(t domain.Trade) domain.Trade {
	t.History = append([]domain.StateChange(nil), t.History...)
	return t
}
