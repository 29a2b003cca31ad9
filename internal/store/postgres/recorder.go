package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

// Recorder combines the stores into the engine's persistence collaborator.
type Recorder struct {
	Quotes        *QuoteStore
	Opportunities *OpportunityStore
	Trades        *TradeStore
	Metrics       *MetricsStore
	Audit         *AuditStore
}

// NewRecorder builds every store on the client's pool.
func NewRecorder(c *Client) *Recorder {
	return &Recorder{
		Quotes:        NewQuoteStore(c.pool),
		Opportunities: NewOpportunityStore(c.pool),
		Trades:        NewTradeStore(c.pool),
		Metrics:       NewMetricsStore(c.pool),
		Audit:         NewAuditStore(c.pool),
	}
}

func (r *Recorder) AppendQuote(ctx context.Context, q domain.Quote) error {
	return r.Quotes.Insert(ctx, q)
}

func (r *Recorder) AppendOpportunity(ctx context.Context, o domain.Opportunity) error {
	if o.Executed {
		if err := r.Opportunities.MarkExecuted(ctx, o.ID); err == nil {
			return nil
		}
	}
	return r.Opportunities.Insert(ctx, o)
}

func (r *Recorder) AppendTrade(ctx context.Context, t domain.Trade) error {
	return r.Trades.Upsert(ctx, t)
}

func (r *Recorder) AppendPerformance(ctx context.Context, p domain.PerformanceStats, at time.Time) error {
	return r.Metrics.Insert(ctx, p, at)
}

func (r *Recorder) QueryRecentTrades(ctx context.Context, limit int) ([]domain.Trade, error) {
	return r.Trades.RecentTerminal(ctx, limit)
}

func (r *Recorder) ListTrades(ctx context.Context, opts domain.ListOpts) ([]domain.Trade, error) {
	return r.Trades.ListTrades(ctx, opts)
}

func (r *Recorder) ListQuotesBefore(ctx context.Context, before time.Time) ([]domain.Quote, error) {
	return r.Quotes.ListQuotesBefore(ctx, before)
}

func (r *Recorder) DeleteQuotesBefore(ctx context.Context, before time.Time) (int64, error) {
	return r.Quotes.DeleteQuotesBefore(ctx, before)
}

func (r *Recorder) ListOpportunitiesBefore(ctx context.Context, before time.Time) ([]domain.Opportunity, error) {
	return r.Opportunities.ListOpportunitiesBefore(ctx, before)
}

func (r *Recorder) ListTradesBefore(ctx context.Context, before time.Time) ([]domain.Trade, error) {
	return r.Trades.ListTradesBefore(ctx, before)
}

func (r *Recorder) Log(ctx context.Context, event string, detail map[string]any) error {
	return r.Audit.Log(ctx, event, detail)
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

var (
	_ domain.Recorder    = (*Recorder)(nil)
	_ domain.TradeLister = (*Recorder)(nil)
	_ domain.AuditLogger = (*Recorder)(nil)
)
