package handler

import (
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/arbengine/internal/domain"
	"github.com/alanyoungcy/arbengine/internal/stats"
)

// TradeHandler serves stored trades. The lister pages through the store; a
// recorder that only answers recent queries is the fallback.
type TradeHandler struct {
	lister domain.TradeLister
	recent domain.TradeHistory
	logger *slog.Logger
}

// NewTradeHandler creates a TradeHandler. Either source may be nil.
func NewTradeHandler(lister domain.TradeLister, recent domain.TradeHistory, logger *slog.Logger) *TradeHandler {
	return &TradeHandler{lister: lister, recent: recent, logger: logHandler(logger, "trades")}
}

// ListRecent returns the newest trades.
// GET /api/trades/recent?limit=50&offset=0
func (h *TradeHandler) ListRecent(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	var (
		trades []domain.Trade
		err    error
	)
	switch {
	case h.lister != nil:
		trades, err = h.lister.ListTrades(r.Context(), opts)
	case h.recent != nil:
		trades, err = h.recent.QueryRecentTrades(r.Context(), opts.Limit)
	default:
		writeError(w, http.StatusServiceUnavailable, "trade storage is not configured")
		return
	}
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list trades failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list trades")
		return
	}
	if trades == nil {
		trades = []domain.Trade{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"trades":  trades,
		"count":   len(trades),
		"limit":   opts.Limit,
		"offset":  opts.Offset,
		"summary": stats.Recompute(trades),
	})
}
