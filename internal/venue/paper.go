package venue

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

// PaperConfig configures a simulated venue.
type PaperConfig struct {
	Name string
	// BasePrices maps instrument to mid price; DefaultBase covers the rest.
	BasePrices  map[string]float64
	DefaultBase float64
	// Variation is the max relative random move of the mid per quote.
	Variation float64
	// Spread is the relative bid/ask spread around the mid.
	Spread    float64
	MinVolume float64
	MaxVolume float64
	// FeePct is the maker and taker fee in percent.
	FeePct      float64
	Balances    map[string]float64
	FillLatency time.Duration
	Seed        uint64
}

// DefaultPaperConfig mirrors the demo venues: +/-0.2% noise, 0.1% spread,
// volume between 1000 and 10000.
func DefaultPaperConfig(name string, base float64) PaperConfig {
	return PaperConfig{
		Name:        name,
		DefaultBase: base,
		Variation:   0.002,
		Spread:      0.001,
		MinVolume:   1000,
		MaxVolume:   10000,
		FeePct:      0.1,
		Balances:    map[string]float64{"USD": 10000},
	}
}

type paperOrder struct {
	ref       domain.OrderRef
	price     float64
	fillAt    time.Time
	cancelled bool
	hold      bool
	settled   bool
}

// Paper is an in-memory simulated exchange. Market orders fill at the touch
// of a fresh quote once FillLatency has passed.
type Paper struct {
	cfg PaperConfig
	now func() time.Time

	mu       sync.Mutex
	rng      *rand.Rand
	pinned   map[string]domain.Quote
	orders   map[string]*paperOrder
	balances map[string]float64
	offline  bool
	reject   map[domain.OrderSide]error
	hold     map[domain.OrderSide]bool
}

// NewPaper builds a paper venue.
func NewPaper(cfg PaperConfig) *Paper {
	seed := cfg.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	balances := make(map[string]float64, len(cfg.Balances))
	for k, v := range cfg.Balances {
		balances[strings.ToUpper(k)] = v
	}
	return &Paper{
		cfg:      cfg,
		now:      time.Now,
		rng:      rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		pinned:   make(map[string]domain.Quote),
		orders:   make(map[string]*paperOrder),
		balances: balances,
		reject:   make(map[domain.OrderSide]error),
		hold:     make(map[domain.OrderSide]bool),
	}
}

func (p *Paper) Name() string { return p.cfg.Name }

// PinQuote fixes the quote returned for instrument, disabling the noise.
func (p *Paper) PinQuote(instrument string, bid, ask, volume float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pinned[instrument] = domain.Quote{Venue: p.cfg.Name, Instrument: instrument, Bid: bid, Ask: ask, Last: (bid + ask) / 2, Volume: volume}
}

// SetOffline makes every quote fetch fail.
func (p *Paper) SetOffline(offline bool) {
	p.mu.Lock()
	p.offline = offline
	p.mu.Unlock()
}

// RejectOrders makes order placement on side fail with err; nil clears it.
func (p *Paper) RejectOrders(side domain.OrderSide, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err == nil {
		delete(p.reject, side)
		return
	}
	p.reject[side] = err
}

// HoldOrders keeps new orders on side open forever.
func (p *Paper) HoldOrders(side domain.OrderSide, hold bool) {
	p.mu.Lock()
	p.hold[side] = hold
	p.mu.Unlock()
}

// SetBalance overrides a currency balance.
func (p *Paper) SetBalance(currency string, amount float64) {
	p.mu.Lock()
	p.balances[strings.ToUpper(currency)] = amount
	p.mu.Unlock()
}

// Orders returns a copy of every order placed on the venue.
func (p *Paper) Orders() []domain.OrderRef {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.OrderRef, 0, len(p.orders))
	for _, o := range p.orders {
		out = append(out, o.ref)
	}
	return out
}

func (p *Paper) FetchQuote(ctx context.Context, instrument string) (domain.Quote, error) {
	if err := ctx.Err(); err != nil {
		return domain.Quote{}, &domain.QuoteUnavailableError{Venue: p.cfg.Name, Instrument: instrument, Err: err}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.offline {
		return domain.Quote{}, &domain.QuoteUnavailableError{Venue: p.cfg.Name, Instrument: instrument, Err: errors.New("venue offline")}
	}
	return p.quoteLocked(instrument), nil
}

func (p *Paper) quoteLocked(instrument string) domain.Quote {
	now := p.now()
	if q, ok := p.pinned[instrument]; ok {
		q.ObservedAt = now
		return q
	}
	base, ok := p.cfg.BasePrices[instrument]
	if !ok {
		base = p.cfg.DefaultBase
	}
	mid := base * (1 + (p.rng.Float64()*2-1)*p.cfg.Variation)
	half := p.cfg.Spread / 2
	return domain.Quote{
		Venue:      p.cfg.Name,
		Instrument: instrument,
		Bid:        mid * (1 - half),
		Ask:        mid * (1 + half),
		Last:       mid,
		Volume:     p.cfg.MinVolume + p.rng.Float64()*(p.cfg.MaxVolume-p.cfg.MinVolume),
		ObservedAt: now,
	}
}

func (p *Paper) PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderRef, error) {
	if req.Size <= 0 {
		return domain.OrderRef{}, &domain.OrderPlacementError{Venue: p.cfg.Name, Side: req.Side, Err: domain.ErrInvalidOrder}
	}
	if err := ctx.Err(); err != nil {
		return domain.OrderRef{}, &domain.OrderPlacementError{Venue: p.cfg.Name, Side: req.Side, Err: err}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.reject[req.Side]; err != nil {
		return domain.OrderRef{}, &domain.OrderPlacementError{Venue: p.cfg.Name, Side: req.Side, Err: err}
	}

	price := req.Price
	if req.IsMarket() {
		q := p.quoteLocked(req.Instrument)
		price = q.Ask
		if req.Side == domain.OrderSideSell {
			price = q.Bid
		}
	}
	now := p.now()
	ref := domain.OrderRef{
		Venue:      p.cfg.Name,
		ID:         uuid.NewString(),
		Instrument: req.Instrument,
		Side:       req.Side,
		Size:       req.Size,
		PlacedAt:   now,
	}
	p.orders[ref.ID] = &paperOrder{
		ref:    ref,
		price:  price,
		fillAt: now.Add(p.cfg.FillLatency),
		hold:   p.hold[req.Side],
	}
	return ref, nil
}

func (p *Paper) OrderStatus(_ context.Context, ref domain.OrderRef) (domain.OrderReport, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	o, ok := p.orders[ref.ID]
	if !ok {
		return domain.OrderReport{}, fmt.Errorf("paper %s: order %s: %w", p.cfg.Name, ref.ID, domain.ErrNotFound)
	}
	switch {
	case o.cancelled:
		return domain.OrderReport{Status: domain.OrderStatusCancelled}, nil
	case o.hold || p.now().Before(o.fillAt):
		return domain.OrderReport{Status: domain.OrderStatusOpen}, nil
	}
	p.settleLocked(o)
	return domain.OrderReport{Status: domain.OrderStatusFilled, FilledPrice: o.price, FilledSize: o.ref.Size}, nil
}

// settleLocked applies a fill to the USD balance once.
func (p *Paper) settleLocked(o *paperOrder) {
	if o.settled {
		return
	}
	o.settled = true
	notional := o.price * o.ref.Size
	fee := notional * p.cfg.FeePct / 100
	if o.ref.Side == domain.OrderSideBuy {
		p.balances["USD"] -= notional + fee
	} else {
		p.balances["USD"] += notional - fee
	}
}

func (p *Paper) CancelOrder(_ context.Context, ref domain.OrderRef) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	o, ok := p.orders[ref.ID]
	if !ok {
		return false, fmt.Errorf("paper %s: order %s: %w", p.cfg.Name, ref.ID, domain.ErrNotFound)
	}
	if o.settled || o.cancelled {
		return false, nil
	}
	if !o.hold && !p.now().Before(o.fillAt) {
		p.settleLocked(o)
		return false, nil
	}
	o.cancelled = true
	return true, nil
}

func (p *Paper) Balance(_ context.Context, currency string) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.balances[strings.ToUpper(currency)], nil
}

func (p *Paper) FeeSchedule(context.Context, string) (domain.FeeSchedule, error) {
	return domain.FeeSchedule{MakerFeePct: p.cfg.FeePct, TakerFeePct: p.cfg.FeePct}, nil
}

func (p *Paper) AwaitFill(ctx context.Context, ref domain.OrderRef, timeout time.Duration) (domain.OrderReport, error) {
	return PollFill(ctx, p.OrderStatus, ref, timeout, DefaultBackoff)
}

var _ domain.Venue = (*Paper)(nil)
