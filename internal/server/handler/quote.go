package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

// SnapshotSource is the aggregator's view of the last collected quotes.
type SnapshotSource interface {
	Latest(instrument string, maxAge time.Duration) (domain.Snapshot, bool)
}

// QuoteHandler serves the latest quotes for an instrument, preferring the
// shared price cache and falling back to the local aggregator.
type QuoteHandler struct {
	cache  domain.QuoteCache
	source SnapshotSource
	maxAge time.Duration
	logger *slog.Logger
}

// NewQuoteHandler creates a QuoteHandler. cache may be nil.
func NewQuoteHandler(cache domain.QuoteCache, source SnapshotSource, maxAge time.Duration, logger *slog.Logger) *QuoteHandler {
	return &QuoteHandler{cache: cache, source: source, maxAge: maxAge, logger: logHandler(logger, "quotes")}
}

type quotesResponse struct {
	Instrument string         `json:"instrument"`
	Source     string         `json:"source"`
	Quotes     []domain.Quote `json:"quotes"`
	BestBid    *bestPrice     `json:"best_bid,omitempty"`
	BestAsk    *bestPrice     `json:"best_ask,omitempty"`
}

// GetQuotes returns one quote per venue for the instrument.
// GET /api/quotes/{instrument...}
func (h *QuoteHandler) GetQuotes(w http.ResponseWriter, r *http.Request) {
	instrument, err := parseInstrument(r.PathValue("instrument"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	snap, source := h.lookup(r, instrument)
	if len(snap) == 0 {
		writeError(w, http.StatusNotFound, "no quotes for "+instrument)
		return
	}

	resp := quotesResponse{Instrument: instrument, Source: source}
	for _, venue := range snap.Venues() {
		resp.Quotes = append(resp.Quotes, snap[venue])
	}
	resp.BestBid, resp.BestAsk = bestPrices(snap)
	writeJSON(w, http.StatusOK, resp)
}

func (h *QuoteHandler) lookup(r *http.Request, instrument string) (domain.Snapshot, string) {
	if h.cache != nil {
		snap, err := h.cache.GetSnapshot(r.Context(), instrument)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			h.logger.WarnContext(r.Context(), "quote cache lookup failed",
				slog.String("instrument", instrument),
				slog.String("error", err.Error()),
			)
		} else if err == nil && len(snap) > 0 {
			return snap, "cache"
		}
	}
	if h.source != nil {
		if snap, ok := h.source.Latest(instrument, h.maxAge); ok {
			return snap, "aggregator"
		}
	}
	return nil, ""
}
