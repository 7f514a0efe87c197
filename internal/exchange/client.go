// Package exchange implements the signed, rate-limited, retrying REST
// client over the venue's spot-market surface:
//
//   - AccountInfo:   GET  /api/v3/account      — balances by asset
//   - OpenOrders:    GET  /api/v3/openOrders   — venue-observed open orders
//   - PlaceOrder:    POST /api/v3/order        — place a limit order
//   - CancelOrder:   DELETE /api/v3/order      — cancel by client order id
//   - CurrentPrice:  GET  /api/v3/ticker/price — last trade price
//   - MyTrades:      GET  /api/v3/myTrades     — executions since a timestamp
//   - ExchangeInfo:  GET  /api/v3/exchangeInfo — tick/lot/min-notional filters
//
// Every call takes one token from a single process-global TokenBucket
// before its first attempt, is automatically retried on 429/5xx (resty's
// retries of a call take no further tokens), and is authenticated with a
// query-string HMAC signature (except the public ticker/exchangeInfo reads).
package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
)

// Client is the venue's REST API client. It wraps a resty HTTP client
// with rate limiting, retry, and HMAC signing.
type Client struct {
	http       *resty.Client
	auth       *Auth
	rl         *TokenBucket
	recvWindow int64 // ms
	dryRun     bool  // when true, mutating methods return fake success without HTTP calls
	logger     *slog.Logger
}

// NewClient creates a REST client with rate limiting and retry.
func NewClient(baseURL string, auth *Auth, dryRun bool, logger *slog.Logger) *Client {
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(1 * time.Second).
		SetRetryMaxWaitTime(8 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() == http.StatusTooManyRequests || r.StatusCode() >= 500
		})

	return &Client{
		http:       httpClient,
		auth:       auth,
		rl:         NewExchangeRateLimiter(),
		recvWindow: 60_000,
		dryRun:     dryRun,
		logger:     logger,
	}
}

// signedQuery builds the timestamp+recvWindow query string, signs it, and
// returns it with the signature appended.
func (c *Client) signedQuery(extra url.Values) url.Values {
	q := url.Values{}
	for k, v := range extra {
		q[k] = v
	}
	q.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
	q.Set("recvWindow", strconv.FormatInt(c.recvWindow, 10))
	q.Set("signature", c.auth.Sign(q))
	return q
}

// handleVenueError parses a non-2xx response body into the typed error
// taxonomy spec.md §7 requires. Takes the raw status/body rather than a
// *resty.Response so it can be exercised without a live HTTP round trip.
func handleVenueError(statusCode int, body []byte) error {
	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return &DecodeError{Cause: fmt.Errorf("status %d: %s", statusCode, string(body))}
	}
	return &ExchangeError{Code: env.Code, Msg: env.Msg}
}

// AccountInfo fetches balances by asset.
func (c *Client) AccountInfo(ctx context.Context) (*AccountInfo, error) {
	if err := c.rl.Wait(ctx); err != nil {
		return nil, err
	}
	var result AccountInfo
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParamsFromValues(c.signedQuery(nil)).
		SetHeader("X-API-KEY", c.auth.APIKey()).
		SetResult(&result).
		Get("/api/v3/account")
	if err != nil {
		return nil, fmt.Errorf("account info: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, handleVenueError(resp.StatusCode(), resp.Body())
	}
	return &result, nil
}

// OpenOrders lists the venue-observed orders for a pair.
func (c *Client) OpenOrders(ctx context.Context, pair string) ([]VenueOrder, error) {
	if err := c.rl.Wait(ctx); err != nil {
		return nil, err
	}
	q := url.Values{"symbol": {pair}}
	var result []VenueOrder
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParamsFromValues(c.signedQuery(q)).
		SetHeader("X-API-KEY", c.auth.APIKey()).
		SetResult(&result).
		Get("/api/v3/openOrders")
	if err != nil {
		return nil, fmt.Errorf("open orders: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, handleVenueError(resp.StatusCode(), resp.Body())
	}
	return result, nil
}

// PlaceOrder places a single limit order with the given deterministic
// client id and time-in-force GTC.
func (c *Client) PlaceOrder(ctx context.Context, pair, side, orderType string, price, qty decimal.Decimal, clientID string) (*VenueOrder, error) {
	if c.dryRun {
		c.logger.Info("DRY-RUN: would place order", "pair", pair, "side", side, "price", price, "qty", qty, "client_id", clientID)
		return &VenueOrder{OrderID: "dry-run-" + clientID, ClientOrderID: clientID, Pair: pair, Side: side, Type: orderType, Price: price, Qty: qty, Status: "NEW"}, nil
	}
	if err := c.rl.Wait(ctx); err != nil {
		return nil, err
	}
	q := url.Values{
		"symbol":           {pair},
		"side":             {side},
		"type":             {orderType},
		"timeInForce":      {"GTC"},
		"price":            {price.String()},
		"quantity":         {qty.String()},
		"newClientOrderId": {clientID},
	}
	var result VenueOrder
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParamsFromValues(c.signedQuery(q)).
		SetHeader("X-API-KEY", c.auth.APIKey()).
		SetResult(&result).
		Post("/api/v3/order")
	if err != nil {
		return nil, fmt.Errorf("place order: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, handleVenueError(resp.StatusCode(), resp.Body())
	}
	return &result, nil
}

// CancelOrder cancels an order by its deterministic client id.
func (c *Client) CancelOrder(ctx context.Context, pair, clientID string) error {
	if c.dryRun {
		c.logger.Info("DRY-RUN: would cancel order", "pair", pair, "client_id", clientID)
		return nil
	}
	if err := c.rl.Wait(ctx); err != nil {
		return err
	}
	q := url.Values{"symbol": {pair}, "origClientOrderId": {clientID}}
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParamsFromValues(c.signedQuery(q)).
		SetHeader("X-API-KEY", c.auth.APIKey()).
		Delete("/api/v3/order")
	if err != nil {
		return fmt.Errorf("cancel order: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return handleVenueError(resp.StatusCode(), resp.Body())
	}
	return nil
}

// CurrentPrice fetches the last trade price for a pair.
func (c *Client) CurrentPrice(ctx context.Context, pair string) (decimal.Decimal, error) {
	if err := c.rl.Wait(ctx); err != nil {
		return decimal.Zero, err
	}
	var result struct {
		Price decimal.Decimal `json:"price"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("symbol", pair).
		SetResult(&result).
		Get("/api/v3/ticker/price")
	if err != nil {
		return decimal.Zero, fmt.Errorf("current price: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return decimal.Zero, handleVenueError(resp.StatusCode(), resp.Body())
	}
	return result.Price, nil
}

// MyTrades fetches executions for a pair since an optional timestamp
// (ms epoch, 0 means "no lower bound").
func (c *Client) MyTrades(ctx context.Context, pair string, sinceMs int64) ([]Trade, error) {
	if err := c.rl.Wait(ctx); err != nil {
		return nil, err
	}
	q := url.Values{"symbol": {pair}}
	if sinceMs > 0 {
		q.Set("startTime", strconv.FormatInt(sinceMs, 10))
	}
	var result []Trade
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParamsFromValues(c.signedQuery(q)).
		SetHeader("X-API-KEY", c.auth.APIKey()).
		SetResult(&result).
		Get("/api/v3/myTrades")
	if err != nil {
		return nil, fmt.Errorf("my trades: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, handleVenueError(resp.StatusCode(), resp.Body())
	}
	return result, nil
}

// ExchangeInfo fetches the {tick_size, lot_size, min_notional} filter
// block for a pair. Public endpoint, not signed.
func (c *Client) ExchangeInfo(ctx context.Context, pair string) (*SymbolFilters, error) {
	if err := c.rl.Wait(ctx); err != nil {
		return nil, err
	}
	var result SymbolFilters
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("symbol", pair).
		SetResult(&result).
		Get("/api/v3/exchangeInfo")
	if err != nil {
		return nil, fmt.Errorf("exchange info: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, handleVenueError(resp.StatusCode(), resp.Body())
	}
	return &result, nil
}
