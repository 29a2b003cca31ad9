package venue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/alanyoungcy/arbengine/internal/credentials"
	"github.com/alanyoungcy/arbengine/internal/domain"
)

// RESTConfig configures a JSON-over-HTTP exchange gateway client.
type RESTConfig struct {
	Name    string
	BaseURL string
	Signer  *credentials.Signer
	Timeout time.Duration
	Backoff Backoff
}

// REST talks to an exchange gateway exposing ticker, order, balance and fee
// endpoints under /api/v1. Private endpoints are HMAC signed.
type REST struct {
	name       string
	baseURL    string
	signer     *credentials.Signer
	backoff    Backoff
	httpClient *http.Client
}

// NewREST creates a gateway client.
func NewREST(cfg RESTConfig) *REST {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	b := cfg.Backoff
	if b.Initial <= 0 {
		b = DefaultBackoff
	}
	return &REST{
		name:       cfg.Name,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		signer:     cfg.Signer,
		backoff:    b,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (r *REST) Name() string { return r.name }

type tickerResponse struct {
	Bid       float64 `json:"bid"`
	Ask       float64 `json:"ask"`
	Last      float64 `json:"last"`
	Volume    float64 `json:"volume"`
	Timestamp int64   `json:"timestamp"`
}

type orderRequest struct {
	Symbol        string  `json:"symbol"`
	Side          string  `json:"side"`
	Type          string  `json:"type"`
	Amount        float64 `json:"amount"`
	Price         float64 `json:"price,omitempty"`
	ClientOrderID string  `json:"client_order_id,omitempty"`
}

type orderResponse struct {
	ID      string  `json:"id"`
	Status  string  `json:"status"`
	Average float64 `json:"average"`
	Filled  float64 `json:"filled"`
}

func (r *REST) FetchQuote(ctx context.Context, instrument string) (domain.Quote, error) {
	path := "/api/v1/ticker?symbol=" + url.QueryEscape(instrument)
	var resp tickerResponse
	if err := r.do(ctx, http.MethodGet, path, nil, false, &resp); err != nil {
		return domain.Quote{}, &domain.QuoteUnavailableError{Venue: r.name, Instrument: instrument, Err: err}
	}
	observed := time.Now()
	if resp.Timestamp > 0 {
		observed = time.UnixMilli(resp.Timestamp)
	}
	return domain.Quote{
		Venue:      r.name,
		Instrument: instrument,
		Bid:        resp.Bid,
		Ask:        resp.Ask,
		Last:       resp.Last,
		Volume:     resp.Volume,
		ObservedAt: observed,
	}, nil
}

func (r *REST) PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderRef, error) {
	body := orderRequest{
		Symbol:        req.Instrument,
		Side:          string(req.Side),
		Type:          "market",
		Amount:        req.Size,
		ClientOrderID: req.ClientID,
	}
	if !req.IsMarket() {
		body.Type = "limit"
		body.Price = req.Price
	}
	var resp orderResponse
	if err := r.do(ctx, http.MethodPost, "/api/v1/orders", body, true, &resp); err != nil {
		return domain.OrderRef{}, &domain.OrderPlacementError{Venue: r.name, Side: req.Side, Err: err}
	}
	if resp.ID == "" {
		return domain.OrderRef{}, &domain.OrderPlacementError{Venue: r.name, Side: req.Side, Err: errors.New("empty order id")}
	}
	if mapStatus(resp.Status) == domain.OrderStatusCancelled {
		return domain.OrderRef{}, &domain.OrderPlacementError{Venue: r.name, Side: req.Side, Err: domain.ErrOrderRejected}
	}
	return domain.OrderRef{
		Venue:      r.name,
		ID:         resp.ID,
		Instrument: req.Instrument,
		Side:       req.Side,
		Size:       req.Size,
		PlacedAt:   time.Now(),
	}, nil
}

func (r *REST) OrderStatus(ctx context.Context, ref domain.OrderRef) (domain.OrderReport, error) {
	var resp orderResponse
	if err := r.do(ctx, http.MethodGet, "/api/v1/orders/"+url.PathEscape(ref.ID), nil, true, &resp); err != nil {
		return domain.OrderReport{}, fmt.Errorf("rest %s: order status %s: %w", r.name, ref.ID, err)
	}
	return domain.OrderReport{
		Status:      mapStatus(resp.Status),
		FilledPrice: resp.Average,
		FilledSize:  resp.Filled,
	}, nil
}

func (r *REST) CancelOrder(ctx context.Context, ref domain.OrderRef) (bool, error) {
	var resp struct {
		Cancelled bool `json:"cancelled"`
	}
	if err := r.do(ctx, http.MethodDelete, "/api/v1/orders/"+url.PathEscape(ref.ID), nil, true, &resp); err != nil {
		return false, fmt.Errorf("rest %s: cancel order %s: %w", r.name, ref.ID, err)
	}
	return resp.Cancelled, nil
}

func (r *REST) Balance(ctx context.Context, currency string) (float64, error) {
	var resp struct {
		Currency string  `json:"currency"`
		Free     float64 `json:"free"`
	}
	if err := r.do(ctx, http.MethodGet, "/api/v1/balance?currency="+url.QueryEscape(currency), nil, true, &resp); err != nil {
		return 0, fmt.Errorf("rest %s: balance %s: %w", r.name, currency, err)
	}
	return resp.Free, nil
}

// FeeSchedule converts the gateway's fractional rates to percent.
func (r *REST) FeeSchedule(ctx context.Context, instrument string) (domain.FeeSchedule, error) {
	var resp struct {
		Maker float64 `json:"maker"`
		Taker float64 `json:"taker"`
	}
	if err := r.do(ctx, http.MethodGet, "/api/v1/fees?symbol="+url.QueryEscape(instrument), nil, true, &resp); err != nil {
		return domain.FeeSchedule{}, fmt.Errorf("rest %s: fees %s: %w", r.name, instrument, err)
	}
	return domain.FeeSchedule{MakerFeePct: resp.Maker * 100, TakerFeePct: resp.Taker * 100}, nil
}

func (r *REST) AwaitFill(ctx context.Context, ref domain.OrderRef, timeout time.Duration) (domain.OrderReport, error) {
	return PollFill(ctx, r.OrderStatus, ref, timeout, r.backoff)
}

func mapStatus(s string) domain.OrderStatus {
	switch strings.ToLower(s) {
	case "filled", "closed":
		return domain.OrderStatusFilled
	case "canceled", "cancelled", "rejected", "expired":
		return domain.OrderStatusCancelled
	default:
		return domain.OrderStatusOpen
	}
}

// do sends a request, optionally signed, and decodes the JSON response into
// out.
func (r *REST) do(ctx context.Context, method, path string, reqBody any, signed bool, out any) error {
	var payload []byte
	if reqBody != nil {
		b, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		payload = b
	}

	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if signed {
		if r.signer == nil {
			return fmt.Errorf("rest %s: %w: no credentials configured", r.name, domain.ErrUnauthorized)
		}
		for k, v := range r.signer.Headers(method, path, string(payload)) {
			req.Header.Set(k, v)
		}
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if err := checkStatus(resp.StatusCode, body); err != nil {
		return err
	}
	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// checkStatus maps non-2xx HTTP status codes to domain errors.
func checkStatus(code int, body []byte) error {
	if code >= 200 && code < 300 {
		return nil
	}
	var apiErr struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	}
	_ = json.Unmarshal(body, &apiErr)

	switch code {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s (%s)", domain.ErrNotFound, apiErr.Message, apiErr.Code)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s (%s)", domain.ErrUnauthorized, apiErr.Message, apiErr.Code)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s (%s)", domain.ErrRateLimited, apiErr.Message, apiErr.Code)
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %s (%s)", domain.ErrInvalidOrder, apiErr.Message, apiErr.Code)
	case http.StatusConflict, http.StatusPaymentRequired:
		return fmt.Errorf("%w: %s (%s)", domain.ErrOrderRejected, apiErr.Message, apiErr.Code)
	default:
		return fmt.Errorf("HTTP %d: %s (%s)", code, apiErr.Message, apiErr.Code)
	}
}

var _ domain.Venue = (*REST)(nil)
