// Package arbitrage detects cross-venue arbitrage opportunities in quote
// snapshots.
package arbitrage

import (
	"math"
	"time"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

// Detect returns every profitable buy/sell venue direction in the snapshot
// whose spread is at least minProfitPct percent of the buy price.
//
// For each unordered venue pair both directions are evaluated: buying on X
// and selling on Y qualifies iff X.ask < Y.bid. Venues are visited in sorted
// name order so the result is deterministic. Unusable quotes are skipped and
// the snapshot is never modified. Opportunity IDs are left empty for the
// caller to assign.
func Detect(snap domain.Snapshot, minProfitPct float64, now time.Time) []domain.Opportunity {
	venues := snap.Venues()
	var out []domain.Opportunity
	for i := 0; i < len(venues); i++ {
		x := snap[venues[i]]
		if !x.Usable() {
			continue
		}
		for j := i + 1; j < len(venues); j++ {
			y := snap[venues[j]]
			if !y.Usable() {
				continue
			}
			if opp, ok := evaluate(x, y, minProfitPct, now); ok {
				out = append(out, opp)
			}
			if opp, ok := evaluate(y, x, minProfitPct, now); ok {
				out = append(out, opp)
			}
		}
	}
	return out
}

// evaluate checks the buy-on-buy / sell-on-sell direction.
func evaluate(buy, sell domain.Quote, minProfitPct float64, now time.Time) (domain.Opportunity, bool) {
	if buy.Ask >= sell.Bid {
		return domain.Opportunity{}, false
	}
	spread := sell.Bid - buy.Ask
	spreadPct := spread / buy.Ask * 100
	if spreadPct < minProfitPct {
		return domain.Opportunity{}, false
	}
	return domain.Opportunity{
		Instrument: buy.Instrument,
		BuyVenue:   buy.Venue,
		SellVenue:  sell.Venue,
		BuyPrice:   buy.Ask,
		SellPrice:  sell.Bid,
		SpreadAbs:  spread,
		SpreadPct:  spreadPct,
		EstVolume:  math.Min(buy.Volume, sell.Volume),
		DetectedAt: now,
	}, true
}
