// Package kanga implements the live Kanga exchange client: signed requests,
// paced per-day fetching and normalization into canonical trades.
package kanga

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/WisniowskiMariusz/CryptoPortfolioTracker/src/errs"
	"github.com/WisniowskiMariusz/CryptoPortfolioTracker/src/logger"
)

// Exchange is the ledger partition name for trades fetched by this client.
const Exchange = "Kanga"

// Config carries the connection settings for one Kanga account.
type Config struct {
	BaseURL     string
	APIKey      string
	APISecret   string
	User        string
	PageLimit   int
	Pause       time.Duration
	MaxRetries  int
	BackoffBase time.Duration
}

// Client is a Kanga REST API client. Signed endpoints use HMAC-SHA512 over
// the JSON request body, sent in the api-sig header.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
}

func NewClient(cfg Config) *Client {
	if cfg.PageLimit <= 0 {
		cfg.PageLimit = 500
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.Pause > 0 {
		limiter = rate.NewLimiter(rate.Every(cfg.Pause), 1)
	}
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: 30 * time.Second},
		limiter: limiter,
	}
}

// User returns the ledger partition user this client is configured for.
func (c *Client) User() string { return c.cfg.User }

// sign serializes the payload and computes the api-sig HMAC over the exact
// bytes that will be sent as the request body.
func (c *Client) sign(payload map[string]any) ([]byte, string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, "", fmt.Errorf("marshaling kanga request payload: %w", err)
	}
	mac := hmac.New(sha512.New, []byte(c.cfg.APISecret))
	mac.Write(body)
	return body, hex.EncodeToString(mac.Sum(nil)), nil
}

// postSigned sends one signed POST request and returns the response status
// and body. Transport failures come back as errs.E with code network.
func (c *Client) postSigned(ctx context.Context, path string, payload map[string]any) (int, []byte, error) {
	payload["nonce"] = time.Now().UnixMilli()
	payload["appId"] = c.cfg.APIKey
	body, sig, err := c.sign(payload)
	if err != nil {
		return 0, nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return 0, nil, fmt.Errorf("building kanga request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api-sig", sig)

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, errs.New(Exchange, errs.CodeNetwork,
			errs.WithMessage("request to "+path+" failed"), errs.WithCause(err))
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, errs.New(Exchange, errs.CodeNetwork,
			errs.WithMessage("reading response from "+path+" failed"), errs.WithCause(err))
	}
	return resp.StatusCode, respBody, nil
}

// HistoryPage is one decoded page of the transaction history endpoint.
// The endpoint multiplexes outcomes: a trade list, an informational message,
// or an in-band rate-limit marker ({"result":"fail","code":429}).
type HistoryPage struct {
	Result  string     `json:"result"`
	Code    int        `json:"code"`
	Message string     `json:"message"`
	List    []apiTrade `json:"list"`
}

// RateLimited reports whether the page is Kanga's in-band rate-limit reply.
func (p *HistoryPage) RateLimited() bool {
	return p.Result == "fail" && p.Code == http.StatusTooManyRequests
}

// TransactionHistory fetches one page of transaction history for the given
// ISO-8601 time range. HTTP 429, transport failures and undecodable bodies
// are retried with exponential backoff up to MaxRetries; any other non-200
// status fails immediately with the upstream status and body attached.
func (c *Client) TransactionHistory(ctx context.Context, startTime, endTime string) (*HistoryPage, error) {
	log := logger.FromContext(ctx)

	schedule := backoff.NewExponentialBackOff()
	schedule.InitialInterval = c.cfg.BackoffBase
	schedule.RandomizationFactor = 0
	schedule.Multiplier = 2

	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			wait := schedule.NextBackOff()
			if wait == backoff.Stop {
				break
			}
			log.Warn("Retrying Kanga transaction history", "attempt", attempt, "wait", wait.String())
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}

		status, body, err := c.postSigned(ctx, "/api/v2/market/transactions/history/list", map[string]any{
			"startTime": startTime,
			"endTime":   endTime,
			"limit":     c.cfg.PageLimit,
		})
		if err != nil {
			if e, ok := err.(*errs.E); ok && e.IsRetryable() {
				lastErr = err
				continue
			}
			return nil, err
		}

		switch {
		case status == http.StatusOK:
			var page HistoryPage
			if err := json.Unmarshal(body, &page); err != nil {
				lastErr = errs.New(Exchange, errs.CodeNetwork,
					errs.WithMessage("invalid JSON from transaction history"), errs.WithCause(err))
				continue
			}
			return &page, nil
		case status == http.StatusTooManyRequests:
			lastErr = errs.New(Exchange, errs.CodeRateLimited,
				errs.WithHTTP(status), errs.WithBody(string(body)))
			continue
		default:
			return nil, errs.New(Exchange, errs.CodeExchange,
				errs.WithHTTP(status), errs.WithBody(string(body)),
				errs.WithMessage("error fetching transaction history"))
		}
	}
	return nil, errs.New(Exchange, errs.CodeRetryExhausted,
		errs.WithMessage(fmt.Sprintf("exceeded %d retries fetching transaction history", c.cfg.MaxRetries)),
		errs.WithCause(lastErr))
}

// WalletList returns the main account wallet balances as raw JSON.
func (c *Client) WalletList(ctx context.Context) (json.RawMessage, error) {
	status, body, err := c.postSigned(ctx, "/api/v2/wallet/list", map[string]any{})
	if err != nil {
		return nil, err
	}
	var decoded struct {
		Result  string          `json:"result"`
		Wallets json.RawMessage `json:"wallets"`
	}
	if status != http.StatusOK || json.Unmarshal(body, &decoded) != nil || decoded.Result != "ok" {
		return nil, errs.New(Exchange, errs.CodeExchange,
			errs.WithHTTP(status), errs.WithBody(string(body)),
			errs.WithMessage("error fetching wallet balances"))
	}
	return decoded.Wallets, nil
}

// MarketList returns the exchange's market list as raw JSON.
func (c *Client) MarketList(ctx context.Context) (json.RawMessage, error) {
	status, body, err := c.postSigned(ctx, "/api/markets", map[string]any{})
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, errs.New(Exchange, errs.CodeExchange,
			errs.WithHTTP(status), errs.WithBody(string(body)),
			errs.WithMessage("error fetching market list"))
	}
	return json.RawMessage(body), nil
}

// MarketTickers returns the names of all markets with a published ticker.
func (c *Client) MarketTickers(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/api/v2/market/ticker", nil)
	if err != nil {
		return nil, fmt.Errorf("building kanga ticker request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errs.New(Exchange, errs.CodeNetwork,
			errs.WithMessage("ticker request failed"), errs.WithCause(err))
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errs.New(Exchange, errs.CodeNetwork,
			errs.WithMessage("reading ticker response failed"), errs.WithCause(err))
	}
	var tickers map[string]json.RawMessage
	if err := json.Unmarshal(body, &tickers); err != nil {
		return nil, errs.New(Exchange, errs.CodeExchange,
			errs.WithHTTP(resp.StatusCode), errs.WithBody(string(body)),
			errs.WithMessage("error fetching market tickers"), errs.WithCause(err))
	}
	names := make([]string, 0, len(tickers))
	for name := range tickers {
		names = append(names, name)
	}
	return names, nil
}
