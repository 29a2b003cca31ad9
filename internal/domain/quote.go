package domain

import (
	"sort"
	"time"
)

// Quote is a top-of-book observation for one instrument on one venue. Quotes
// are immutable; a newer quote supersedes an older one for the same
// venue/instrument.
type Quote struct {
	Venue      string    `json:"venue"`
	Instrument string    `json:"instrument"`
	Bid        float64   `json:"bid"`
	Ask        float64   `json:"ask"`
	Last       float64   `json:"last"`
	Volume     float64   `json:"volume"`
	ObservedAt time.Time `json:"observed_at"`
}

// Usable reports whether the quote can take part in detection: both sides
// present and the book not crossed.
func (q Quote) Usable() bool {
	return q.Bid > 0 && q.Ask > 0 && q.Bid <= q.Ask
}

// Spread returns ask minus bid.
func (q Quote) Spread() float64 {
	return q.Ask - q.Bid
}

// Snapshot maps venue name to the quote it returned for one instrument in a
// single aggregation cycle.
type Snapshot map[string]Quote

// Venues returns the venue names of the snapshot in sorted order.
func (s Snapshot) Venues() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Oldest returns the earliest observation time in the snapshot, or the zero
// time for an empty snapshot.
func (s Snapshot) Oldest() time.Time {
	var oldest time.Time
	for _, q := range s {
		if oldest.IsZero() || q.ObservedAt.Before(oldest) {
			oldest = q.ObservedAt
		}
	}
	return oldest
}

// Opportunity is a profitable buy/sell venue pair for one instrument.
// BuyPrice is the buy venue's ask and SellPrice the sell venue's bid;
// BuyPrice < SellPrice always holds.
type Opportunity struct {
	ID         string    `json:"id"`
	Instrument string    `json:"instrument"`
	BuyVenue   string    `json:"buy_venue"`
	SellVenue  string    `json:"sell_venue"`
	BuyPrice   float64   `json:"buy_price"`
	SellPrice  float64   `json:"sell_price"`
	SpreadAbs  float64   `json:"spread_abs"`
	SpreadPct  float64   `json:"spread_pct"`
	EstVolume  float64   `json:"est_volume"`
	DetectedAt time.Time `json:"detected_at"`
	Executed   bool      `json:"executed"`
}

// Route identifies the instrument and venue direction of an opportunity.
func (o Opportunity) Route() string {
	return o.Instrument + ":" + o.BuyVenue + ":" + o.SellVenue
}
