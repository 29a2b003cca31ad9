// Package aggregator collects top-of-book quotes from every registered venue
// and keeps the latest snapshot per instrument.
package aggregator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

// Config bounds a collection cycle.
type Config struct {
	// CycleTimeout is the overall deadline for one Collect; venues that have
	// not answered by then are left out of the snapshot.
	CycleTimeout time.Duration
	// MaxQuoteAge is how old a held snapshot may be before Snapshot refetches.
	MaxQuoteAge time.Duration
	// MaxConcurrentFetches caps in-flight venue calls across all instruments.
	MaxConcurrentFetches int
}

// DefaultConfig returns the stock bounds.
func DefaultConfig() Config {
	return Config{
		CycleTimeout:         2 * time.Second,
		MaxQuoteAge:          5 * time.Second,
		MaxConcurrentFetches: 16,
	}
}

// cacheWriteTimeout bounds a single detached price cache write.
const cacheWriteTimeout = time.Second

type held struct {
	snap domain.Snapshot
	at   time.Time
}

// Aggregator fans quote requests out to venues.
type Aggregator struct {
	venues   []domain.Venue
	cfg      Config
	sem      *semaphore.Weighted
	recorder domain.Recorder
	cache    domain.QuoteCache
	logger   *slog.Logger
	now      func() time.Time

	mu     sync.RWMutex
	latest map[string]held
}

// Option customizes an Aggregator.
type Option func(*Aggregator)

// WithRecorder hands every usable quote to r. r must not block; wrap slow
// backends in store.AsyncRecorder.
func WithRecorder(r domain.Recorder) Option {
	return func(a *Aggregator) { a.recorder = r }
}

// WithCache mirrors usable quotes into a shared price cache. Writes run
// detached so a slow cache never delays a cycle.
func WithCache(c domain.QuoteCache) Option {
	return func(a *Aggregator) { a.cache = c }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) { a.now = now }
}

// New creates an Aggregator over venues.
func New(venues []domain.Venue, cfg Config, logger *slog.Logger, opts ...Option) *Aggregator {
	if cfg.MaxConcurrentFetches <= 0 {
		cfg.MaxConcurrentFetches = DefaultConfig().MaxConcurrentFetches
	}
	if cfg.CycleTimeout <= 0 {
		cfg.CycleTimeout = DefaultConfig().CycleTimeout
	}
	a := &Aggregator{
		venues: venues,
		cfg:    cfg,
		sem:    semaphore.NewWeighted(int64(cfg.MaxConcurrentFetches)),
		logger: logger.With(slog.String("component", "aggregator")),
		now:    time.Now,
		latest: make(map[string]held),
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Collect fetches the instrument from every venue concurrently and returns
// the quotes that arrived usable before the cycle deadline. Failures are
// logged and excluded; they never fail the cycle. A venue that ignores the
// deadline is left to finish in the background and its quote is discarded.
func (a *Aggregator) Collect(ctx context.Context, instrument string) domain.Snapshot {
	cctx, cancel := context.WithTimeout(ctx, a.cfg.CycleTimeout)
	defer cancel()

	type result struct {
		venue string
		quote domain.Quote
		err   error
	}
	// Buffered so stragglers never block once collection has stopped.
	results := make(chan result, len(a.venues))
	for _, v := range a.venues {
		go func(v domain.Venue) {
			q, err := a.fetch(cctx, v, instrument)
			results <- result{venue: v.Name(), quote: q, err: err}
		}(v)
	}

	snap := make(domain.Snapshot, len(a.venues))
collect:
	for pending := len(a.venues); pending > 0; pending-- {
		select {
		case r := <-results:
			if r.err != nil {
				a.logger.WarnContext(ctx, "quote unavailable",
					slog.String("venue", r.venue),
					slog.String("instrument", instrument),
					slog.String("error", r.err.Error()),
				)
				continue
			}
			snap[r.venue] = r.quote
		case <-cctx.Done():
			a.logger.WarnContext(ctx, "cycle deadline reached",
				slog.String("instrument", instrument),
				slog.Int("answered", len(snap)),
				slog.Int("missing", pending),
			)
			break collect
		}
	}

	for _, q := range snap {
		a.handOff(ctx, q)
	}
	a.mu.Lock()
	a.latest[instrument] = held{snap: snap, at: a.now()}
	a.mu.Unlock()
	return snap
}

func (a *Aggregator) fetch(ctx context.Context, v domain.Venue, instrument string) (domain.Quote, error) {
	if err := a.sem.Acquire(ctx, 1); err != nil {
		return domain.Quote{}, &domain.QuoteUnavailableError{Venue: v.Name(), Instrument: instrument, Err: err}
	}
	defer a.sem.Release(1)

	q, err := v.FetchQuote(ctx, instrument)
	if err != nil {
		var qu *domain.QuoteUnavailableError
		if errors.As(err, &qu) {
			return domain.Quote{}, err
		}
		return domain.Quote{}, &domain.QuoteUnavailableError{Venue: v.Name(), Instrument: instrument, Err: err}
	}
	if !q.Usable() {
		return domain.Quote{}, &domain.QuoteUnavailableError{
			Venue: v.Name(), Instrument: instrument,
			Err: errors.New("unusable quote: non-positive or crossed book"),
		}
	}
	if q.Venue == "" {
		q.Venue = v.Name()
	}
	if q.Instrument == "" {
		q.Instrument = instrument
	}
	if q.ObservedAt.IsZero() {
		q.ObservedAt = a.now()
	}
	return q, nil
}

func (a *Aggregator) handOff(ctx context.Context, q domain.Quote) {
	if a.recorder != nil {
		if err := a.recorder.AppendQuote(ctx, q); err != nil {
			a.logger.WarnContext(ctx, "record quote failed", slog.String("error", err.Error()))
		}
	}
	if a.cache != nil {
		go func() {
			cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cacheWriteTimeout)
			defer cancel()
			if err := a.cache.SetQuote(cctx, q); err != nil {
				a.logger.Debug("cache quote failed", slog.String("venue", q.Venue), slog.String("error", err.Error()))
			}
		}()
	}
}

// CollectAll collects every instrument concurrently. In-flight venue calls
// across all instruments never exceed MaxConcurrentFetches.
func (a *Aggregator) CollectAll(ctx context.Context, instruments []string) map[string]domain.Snapshot {
	var (
		mu  sync.Mutex
		out = make(map[string]domain.Snapshot, len(instruments))
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, inst := range instruments {
		g.Go(func() error {
			snap := a.Collect(gctx, inst)
			mu.Lock()
			out[inst] = snap
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// Latest returns the held snapshot for instrument if it is no older than
// maxAge.
func (a *Aggregator) Latest(instrument string, maxAge time.Duration) (domain.Snapshot, bool) {
	a.mu.RLock()
	h, ok := a.latest[instrument]
	a.mu.RUnlock()
	if !ok || a.now().Sub(h.at) > maxAge {
		return nil, false
	}
	return h.snap, true
}

// Snapshot returns a fresh-enough snapshot, collecting a new one when the
// held snapshot is older than MaxQuoteAge.
func (a *Aggregator) Snapshot(ctx context.Context, instrument string) domain.Snapshot {
	if snap, ok := a.Latest(instrument, a.cfg.MaxQuoteAge); ok {
		return snap
	}
	return a.Collect(ctx, instrument)
}

// Venues returns the venue names the aggregator polls.
func (a *Aggregator) Venues() []string {
	names := make([]string, len(a.venues))
	for i, v := range a.venues {
		names[i] = v.Name()
	}
	return names
}
