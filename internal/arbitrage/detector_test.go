package arbitrage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

var now = time.Date(2024, 5, 10, 9, 30, 0, 0, time.UTC)

func quote(venue string, bid, ask, vol float64) domain.Quote {
	return domain.Quote{Venue: venue, Instrument: "EUR/USD", Bid: bid, Ask: ask, Volume: vol, ObservedAt: now}
}

func TestDetect_SingleDirection(t *testing.T) {
	t.Parallel()

	snap := domain.Snapshot{
		"alpha": quote("alpha", 1.1998, 1.2000, 5000),
		"beta":  quote("beta", 1.2008, 1.2010, 2500),
	}

	opps := Detect(snap, 0.05, now)
	require.Len(t, opps, 1)

	opp := opps[0]
	assert.Equal(t, "alpha", opp.BuyVenue)
	assert.Equal(t, "beta", opp.SellVenue)
	assert.Equal(t, 1.2000, opp.BuyPrice)
	assert.Equal(t, 1.2008, opp.SellPrice)
	assert.InDelta(t, 0.0667, opp.SpreadPct, 0.0001)
	assert.InDelta(t, 0.0008, opp.SpreadAbs, 1e-12)
	assert.Equal(t, 2500.0, opp.EstVolume)
	assert.Equal(t, now, opp.DetectedAt)
	assert.Empty(t, opp.ID)
}

func TestDetect_OverlappingBooksYieldNothing(t *testing.T) {
	t.Parallel()

	snap := domain.Snapshot{
		"a": quote("a", 1.1995, 1.2005, 1000),
		"b": quote("b", 1.1998, 1.2003, 1000),
		"c": quote("c", 1.2000, 1.2004, 1000),
	}
	assert.Empty(t, Detect(snap, 0, now))
}

func TestDetect_ThresholdFilters(t *testing.T) {
	t.Parallel()

	snap := domain.Snapshot{
		"a": quote("a", 1.1998, 1.2000, 1000),
		"b": quote("b", 1.2008, 1.2010, 1000),
	}
	assert.Empty(t, Detect(snap, 0.1, now))
	assert.Len(t, Detect(snap, 0.0666, now), 1)
}

func TestDetect_SkipsCrossedBooksAndOrdersPairs(t *testing.T) {
	t.Parallel()

	snap := domain.Snapshot{
		"a": quote("a", 1.30, 1.10, 10),
		"b": quote("b", 1.25, 1.15, 20),
	}
	assert.Empty(t, Detect(snap, 0, now))

	snap = domain.Snapshot{
		"a": quote("a", 1.00, 1.01, 10),
		"b": quote("b", 1.02, 1.03, 20),
		"c": quote("c", 0.97, 0.98, 30),
	}
	opps := Detect(snap, 0, now)
	require.Len(t, opps, 3)
	// sorted venue order: (a,b) then (a,c) then (b,c)
	assert.Equal(t, [2]string{"a", "b"}, [2]string{opps[0].BuyVenue, opps[0].SellVenue})
	assert.Equal(t, [2]string{"c", "a"}, [2]string{opps[1].BuyVenue, opps[1].SellVenue})
	assert.Equal(t, [2]string{"c", "b"}, [2]string{opps[2].BuyVenue, opps[2].SellVenue})
}

func TestDetect_Properties(t *testing.T) {
	t.Parallel()

	snap := domain.Snapshot{
		"a": quote("a", 1.2001, 1.2003, 1000),
		"b": quote("b", 1.2010, 1.2012, 2000),
		"c": quote("c", 1.1990, 1.1992, 3000),
		"d": quote("d", 0, 1.1000, 3000),
	}
	before := map[string]domain.Quote{}
	for k, v := range snap {
		before[k] = v
	}

	opps := Detect(snap, 0, now)
	require.NotEmpty(t, opps)
	for _, o := range opps {
		assert.Less(t, o.BuyPrice, o.SellPrice)
		assert.Equal(t, snap[o.BuyVenue].Ask, o.BuyPrice)
		assert.Equal(t, snap[o.SellVenue].Bid, o.SellPrice)
		assert.InDelta(t, (o.SellPrice-o.BuyPrice)/o.BuyPrice*100, o.SpreadPct, 1e-12)
		assert.NotEqual(t, "d", o.BuyVenue)
		assert.NotEqual(t, "d", o.SellVenue)
	}
	assert.Equal(t, before, map[string]domain.Quote(snap))
	assert.Equal(t, opps, Detect(snap, 0, now))
}

func TestDetect_EmptyAndSingleVenue(t *testing.T) {
	t.Parallel()

	assert.Empty(t, Detect(nil, 0, now))
	assert.Empty(t, Detect(domain.Snapshot{"a": quote("a", 1, 1.1, 1)}, 0, now))
}
