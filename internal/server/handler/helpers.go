package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 500
)

var errBadInstrument = errors.New("instrument must look like BASE/QUOTE, e.g. EUR/USD")

// writeJSON marshals v as JSON and writes it with the given status. If
// marshaling fails, it falls back to a plain-text 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// parseListOpts reads limit and offset from the query string. Bad values fall
// back to the defaults; limit is capped at maxPageLimit.
func parseListOpts(r *http.Request) domain.ListOpts {
	q := r.URL.Query()
	opts := domain.ListOpts{Limit: defaultPageLimit}
	if n, err := strconv.Atoi(q.Get("limit")); err == nil && n > 0 {
		opts.Limit = min(n, maxPageLimit)
	}
	if n, err := strconv.Atoi(q.Get("offset")); err == nil && n >= 0 {
		opts.Offset = n
	}
	return opts
}

// parseInstrument accepts "EUR/USD", "eur-usd" and "EUR_USD" alike and
// returns the canonical "BASE/QUOTE" symbol.
func parseInstrument(raw string) (string, error) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	s = strings.NewReplacer("-", "/", "_", "/").Replace(s)
	base, quote, ok := strings.Cut(s, "/")
	if !ok || !isSymbol(base) || !isSymbol(quote) {
		return "", errBadInstrument
	}
	return base + "/" + quote, nil
}

func isSymbol(s string) bool {
	if s == "" || len(s) > 12 {
		return false
	}
	for _, c := range s {
		if (c < 'A' || c > 'Z') && (c < '0' || c > '9') {
			return false
		}
	}
	return true
}

type bestPrice struct {
	Venue string  `json:"venue"`
	Price float64 `json:"price"`
}

// bestPrices picks the highest bid and lowest ask among usable quotes. Ties
// go to the venue that sorts first.
func bestPrices(snap domain.Snapshot) (bid, ask *bestPrice) {
	for _, venue := range snap.Venues() {
		q := snap[venue]
		if !q.Usable() {
			continue
		}
		if bid == nil || q.Bid > bid.Price {
			bid = &bestPrice{Venue: venue, Price: q.Bid}
		}
		if ask == nil || q.Ask < ask.Price {
			ask = &bestPrice{Venue: venue, Price: q.Ask}
		}
	}
	return bid, ask
}

func logHandler(logger *slog.Logger, handler string) *slog.Logger {
	return logger.With(slog.String("handler", handler))
}
