package sqlite

import (
	"encoding/json"
	"time"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

type quoteRow struct {
	ID         uint   `gorm:"primaryKey"`
	Venue      string `gorm:"index:idx_quotes_instrument"`
	Instrument string `gorm:"index:idx_quotes_instrument"`
	Bid        float64
	Ask        float64
	Last       float64
	Volume     float64
	ObservedAt time.Time `gorm:"index"`
}

func (quoteRow) TableName() string { return "quotes" }

func quoteToRow(q domain.Quote) quoteRow {
	return quoteRow{
		Venue: q.Venue, Instrument: q.Instrument,
		Bid: q.Bid, Ask: q.Ask, Last: q.Last, Volume: q.Volume,
		ObservedAt: q.ObservedAt.UTC(),
	}
}

func (r quoteRow) toDomain() domain.Quote {
	return domain.Quote{
		Venue: r.Venue, Instrument: r.Instrument,
		Bid: r.Bid, Ask: r.Ask, Last: r.Last, Volume: r.Volume,
		ObservedAt: r.ObservedAt.UTC(),
	}
}

type opportunityRow struct {
	ID         string `gorm:"primaryKey"`
	Instrument string
	BuyVenue   string
	SellVenue  string
	BuyPrice   float64
	SellPrice  float64
	SpreadAbs  float64
	SpreadPct  float64
	EstVolume  float64
	Executed   bool
	DetectedAt time.Time `gorm:"index"`
}

func (opportunityRow) TableName() string { return "opportunities" }

func opportunityToRow(o domain.Opportunity) opportunityRow {
	return opportunityRow{
		ID: o.ID, Instrument: o.Instrument, BuyVenue: o.BuyVenue, SellVenue: o.SellVenue,
		BuyPrice: o.BuyPrice, SellPrice: o.SellPrice, SpreadAbs: o.SpreadAbs, SpreadPct: o.SpreadPct,
		EstVolume: o.EstVolume, Executed: o.Executed, DetectedAt: o.DetectedAt.UTC(),
	}
}

func (r opportunityRow) toDomain() domain.Opportunity {
	return domain.Opportunity{
		ID: r.ID, Instrument: r.Instrument, BuyVenue: r.BuyVenue, SellVenue: r.SellVenue,
		BuyPrice: r.BuyPrice, SellPrice: r.SellPrice, SpreadAbs: r.SpreadAbs, SpreadPct: r.SpreadPct,
		EstVolume: r.EstVolume, Executed: r.Executed, DetectedAt: r.DetectedAt.UTC(),
	}
}

type tradeRow struct {
	ID                string `gorm:"primaryKey"`
	OpportunityID     string
	Instrument        string
	BuyVenue          string
	SellVenue         string
	Size              float64
	ExpectedBuy       float64
	ExpectedSell      float64
	State             string
	BuyOrderID        string
	SellOrderID       string
	ProtectiveOrderID string
	ActualBuyPrice    float64
	ActualSellPrice   float64
	Fees              float64
	GrossProfit       float64
	NetProfit         float64
	ProfitPct         float64
	NakedExposure     bool
	FailureReason     string
	ExecutionMs       int64
	History           string
	StartedAt         time.Time  `gorm:"index"`
	CompletedAt       *time.Time `gorm:"index"`
}

func (tradeRow) TableName() string { return "trades" }

func tradeToRow(t domain.Trade) (tradeRow, error) {
	history, err := json.Marshal(t.History)
	if err != nil {
		return tradeRow{}, err
	}
	row := tradeRow{
		ID: t.ID, OpportunityID: t.OpportunityID, Instrument: t.Instrument,
		BuyVenue: t.BuyVenue, SellVenue: t.SellVenue, Size: t.Size,
		ExpectedBuy: t.ExpectedBuy, ExpectedSell: t.ExpectedSell, State: string(t.State),
		BuyOrderID: t.BuyOrder.ID, SellOrderID: t.SellOrder.ID, ProtectiveOrderID: t.ProtectiveOrder.ID,
		ActualBuyPrice: t.ActualBuyPrice, ActualSellPrice: t.ActualSellPrice,
		Fees: t.Fees, GrossProfit: t.GrossProfit, NetProfit: t.NetProfit, ProfitPct: t.ProfitPct(),
		NakedExposure: t.NakedExposure, FailureReason: t.FailureReason,
		ExecutionMs: t.Duration().Milliseconds(), History: string(history), StartedAt: t.StartedAt.UTC(),
	}
	if !t.CompletedAt.IsZero() {
		completed := t.CompletedAt.UTC()
		row.CompletedAt = &completed
	}
	return row, nil
}

func (r tradeRow) toDomain() (domain.Trade, error) {
	t := domain.Trade{
		ID: r.ID, OpportunityID: r.OpportunityID, Instrument: r.Instrument,
		BuyVenue: r.BuyVenue, SellVenue: r.SellVenue, Size: r.Size,
		ExpectedBuy: r.ExpectedBuy, ExpectedSell: r.ExpectedSell, State: domain.TradeState(r.State),
		BuyOrder:        domain.OrderRef{Venue: r.BuyVenue, ID: r.BuyOrderID},
		SellOrder:       domain.OrderRef{Venue: r.SellVenue, ID: r.SellOrderID},
		ProtectiveOrder: domain.OrderRef{Venue: r.BuyVenue, ID: r.ProtectiveOrderID},
		ActualBuyPrice:  r.ActualBuyPrice, ActualSellPrice: r.ActualSellPrice,
		Fees: r.Fees, GrossProfit: r.GrossProfit, NetProfit: r.NetProfit,
		NakedExposure: r.NakedExposure, FailureReason: r.FailureReason,
		StartedAt: r.StartedAt.UTC(),
	}
	if r.CompletedAt != nil {
		t.CompletedAt = r.CompletedAt.UTC()
	}
	if r.History != "" {
		if err := json.Unmarshal([]byte(r.History), &t.History); err != nil {
			return t, err
		}
	}
	return t, nil
}

type performanceRow struct {
	ID               uint `gorm:"primaryKey"`
	TotalTrades      int
	SuccessfulTrades int
	FailedTrades     int
	TotalProfit      float64
	TotalLoss        float64
	NetProfit        float64
	WinRate          float64
	AverageProfit    float64
	NakedExposures   int
	RecordedAt       time.Time `gorm:"index"`
}

func (performanceRow) TableName() string { return "performance_metrics" }

type auditRow struct {
	ID        uint `gorm:"primaryKey"`
	Event     string
	Detail    string
	CreatedAt time.Time
}

func (auditRow) TableName() string { return "audit_log" }
