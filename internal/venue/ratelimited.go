package venue

import (
	"context"
	"time"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

// RateLimited throttles every call to a venue through a shared limiter so
// several engine replicas stay under the venue's request budget together.
type RateLimited struct {
	next    domain.Venue
	limiter domain.RateLimiter
	key     string
	limit   int
	window  time.Duration
	backoff Backoff
}

// NewRateLimited wraps v with a limit of perSecond calls per second.
func NewRateLimited(v domain.Venue, limiter domain.RateLimiter, perSecond int) *RateLimited {
	return &RateLimited{
		next:    v,
		limiter: limiter,
		key:     "venue:" + v.Name(),
		limit:   perSecond,
		window:  time.Second,
		backoff: DefaultBackoff,
	}
}

func (r *RateLimited) wait(ctx context.Context) error {
	return r.limiter.Wait(ctx, r.key, r.limit, r.window)
}

func (r *RateLimited) Name() string { return r.next.Name() }

func (r *RateLimited) FetchQuote(ctx context.Context, instrument string) (domain.Quote, error) {
	if err := r.wait(ctx); err != nil {
		return domain.Quote{}, &domain.QuoteUnavailableError{Venue: r.Name(), Instrument: instrument, Err: err}
	}
	return r.next.FetchQuote(ctx, instrument)
}

func (r *RateLimited) PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderRef, error) {
	if err := r.wait(ctx); err != nil {
		return domain.OrderRef{}, &domain.OrderPlacementError{Venue: r.Name(), Side: req.Side, Err: err}
	}
	return r.next.PlaceOrder(ctx, req)
}

func (r *RateLimited) OrderStatus(ctx context.Context, ref domain.OrderRef) (domain.OrderReport, error) {
	if err := r.wait(ctx); err != nil {
		return domain.OrderReport{}, err
	}
	return r.next.OrderStatus(ctx, ref)
}

func (r *RateLimited) CancelOrder(ctx context.Context, ref domain.OrderRef) (bool, error) {
	if err := r.wait(ctx); err != nil {
		return false, err
	}
	return r.next.CancelOrder(ctx, ref)
}

func (r *RateLimited) Balance(ctx context.Context, currency string) (float64, error) {
	if err := r.wait(ctx); err != nil {
		return 0, err
	}
	return r.next.Balance(ctx, currency)
}

func (r *RateLimited) FeeSchedule(ctx context.Context, instrument string) (domain.FeeSchedule, error) {
	if err := r.wait(ctx); err != nil {
		return domain.FeeSchedule{}, err
	}
	return r.next.FeeSchedule(ctx, instrument)
}

// AwaitFill polls through the limiter rather than delegating, so status polls
// count against the budget.
func (r *RateLimited) AwaitFill(ctx context.Context, ref domain.OrderRef, timeout time.Duration) (domain.OrderReport, error) {
	return PollFill(ctx, r.OrderStatus, ref, timeout, r.backoff)
}

var _ domain.Venue = (*RateLimited)(nil)
