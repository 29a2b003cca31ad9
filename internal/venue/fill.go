package venue

import (
	"context"
	"time"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

// Backoff shapes the poll interval of PollFill.
type Backoff struct {
	Initial time.Duration
	Max     time.Duration
	Factor  float64
}

// DefaultBackoff starts at 10ms and doubles up to 250ms.
var DefaultBackoff = Backoff{Initial: 10 * time.Millisecond, Max: 250 * time.Millisecond, Factor: 2}

func (b Backoff) next(d time.Duration) time.Duration {
	if d <= 0 {
		return b.Initial
	}
	n := time.Duration(float64(d) * b.Factor)
	if n > b.Max {
		n = b.Max
	}
	return n
}

// StatusFunc reads the current state of an order.
type StatusFunc func(ctx context.Context, ref domain.OrderRef) (domain.OrderReport, error)

// PollFill polls status until the order is filled or cancelled, or until
// timeout elapses. Transient status errors are retried. It returns
// *domain.LegFillTimeoutError when the deadline passes (or ctx ends) and
// domain.ErrOrderCancelled when the venue reports the order cancelled.
func PollFill(ctx context.Context, status StatusFunc, ref domain.OrderRef, timeout time.Duration, b Backoff) (domain.OrderReport, error) {
	pollCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var (
		delay   time.Duration
		lastErr error
		timer   *time.Timer
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		report, err := status(pollCtx, ref)
		switch {
		case err != nil:
			lastErr = err
		case report.Filled():
			return report, nil
		case report.Status == domain.OrderStatusCancelled:
			return report, domain.ErrOrderCancelled
		}

		delay = b.next(delay)
		if timer == nil {
			timer = time.NewTimer(delay)
		} else {
			timer.Reset(delay)
		}
		select {
		case <-pollCtx.Done():
			if lastErr == nil && ctx.Err() != nil {
				lastErr = ctx.Err()
			}
			return domain.OrderReport{Status: domain.OrderStatusOpen}, &domain.LegFillTimeoutError{
				Venue:    ref.Venue,
				OrderID:  ref.ID,
				Side:     ref.Side,
				Deadline: timeout,
				Err:      lastErr,
			}
		case <-timer.C:
		}
	}
}
