package handler

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

func TestParseInstrument(t *testing.T) {
	tests := []struct {
		raw     string
		want    string
		wantErr bool
	}{
		{raw: "EUR/USD", want: "EUR/USD"},
		{raw: " eur-usd ", want: "EUR/USD"},
		{raw: "btc_usdt", want: "BTC/USDT"},
		{raw: "1INCH/USD", want: "1INCH/USD"},
		{raw: "", wantErr: true},
		{raw: "EURUSD", wantErr: true},
		{raw: "EUR/", wantErr: true},
		{raw: "EUR/USD/JPY", wantErr: true},
		{raw: "EUR USD", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := parseInstrument(tt.raw)
			if tt.wantErr {
				assert.ErrorIs(t, err, errBadInstrument)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBestPrices(t *testing.T) {
	snap := domain.Snapshot{
		"alpha":  {Venue: "alpha", Bid: 1.1998, Ask: 1.2000},
		"beta":   {Venue: "beta", Bid: 1.2008, Ask: 1.2010},
		"gamma":  {Venue: "gamma", Bid: 1.2008, Ask: 1.2012},
		"broken": {Venue: "broken", Bid: 1.3, Ask: 1.1},
	}
	bid, ask := bestPrices(snap)
	require.NotNil(t, bid)
	require.NotNil(t, ask)
	assert.Equal(t, "beta", bid.Venue, "crossed books are skipped and ties go to the first venue")
	assert.Equal(t, 1.2008, bid.Price)
	assert.Equal(t, "alpha", ask.Venue)

	bid, ask = bestPrices(domain.Snapshot{})
	assert.Nil(t, bid)
	assert.Nil(t, ask)
}

func TestParseListOpts(t *testing.T) {
	tests := []struct {
		query      string
		wantLimit  int
		wantOffset int
	}{
		{"", 50, 0},
		{"?limit=10&offset=20", 10, 20},
		{"?limit=9000", 500, 0},
		{"?limit=-1&offset=-5", 50, 0},
		{"?limit=abc", 50, 0},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			opts := parseListOpts(httptest.NewRequest("GET", "/api/trades/recent"+tt.query, nil))
			assert.Equal(t, tt.wantLimit, opts.Limit)
			assert.Equal(t, tt.wantOffset, opts.Offset)
		})
	}
}
