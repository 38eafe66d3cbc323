// Package binance implements the live Binance exchange client: signed
// queries, cursor and window pagination, and normalization into canonical
// trades and transfers.
package binance

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/WisniowskiMariusz/CryptoPortfolioTracker/src/errs"
	"github.com/WisniowskiMariusz/CryptoPortfolioTracker/src/logger"
)

// Exchange is the ledger partition name for trades fetched by this client.
const Exchange = "Binance"

// Config carries the connection settings for one Binance account.
type Config struct {
	BaseURL     string
	APIKey      string
	APISecret   string
	PageLimit   int
	Pause       time.Duration
	MaxRetries  int
	BackoffBase time.Duration
}

// Client is a Binance REST API client. Signed endpoints use HMAC-SHA256 over
// the url-encoded query string, with the key sent in the X-MBX-APIKEY header.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
}

func NewClient(cfg Config) *Client {
	if cfg.PageLimit <= 0 {
		cfg.PageLimit = 1000
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

// signQuery appends the request timestamp and the HMAC-SHA256 signature to
// the query string. The signature covers the exact encoded query.
func (c *Client) signQuery(params url.Values) string {
	params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
	query := params.Encode()
	mac := hmac.New(sha256.New, []byte(c.cfg.APISecret))
	mac.Write([]byte(query))
	return query + "&signature=" + hex.EncodeToString(mac.Sum(nil))
}

// get performs one GET request with the retry policy shared by all
// endpoints: HTTP 429, transport failures and undecodable bodies retry with
// exponential backoff up to MaxRetries; any other non-200 status fails
// immediately with the upstream status and body attached. Signed requests
// re-sign on every attempt so the timestamp stays fresh.
func (c *Client) get(ctx context.Context, path string, params url.Values, signed bool, out any) error {
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
			log.Warn("Retrying Binance request", "path", path, "attempt", attempt, "wait", wait.String())
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}

		query := params.Encode()
		if signed {
			// Copy so the fresh timestamp of this attempt does not leak
			// into the caller's params.
			signedParams := url.Values{}
			for k, v := range params {
				signedParams[k] = v
			}
			query = c.signQuery(signedParams)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+path+"?"+query, nil)
		if err != nil {
			return fmt.Errorf("building binance request: %w", err)
		}
		if signed {
			req.Header.Set("X-MBX-APIKEY", c.cfg.APIKey)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = errs.New(Exchange, errs.CodeNetwork,
				errs.WithMessage("request to "+path+" failed"), errs.WithCause(err))
			continue
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = errs.New(Exchange, errs.CodeNetwork,
				errs.WithMessage("reading response from "+path+" failed"), errs.WithCause(err))
			continue
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			if err := json.Unmarshal(body, out); err != nil {
				lastErr = errs.New(Exchange, errs.CodeNetwork,
					errs.WithMessage("invalid JSON from "+path), errs.WithCause(err))
				continue
			}
			return nil
		case resp.StatusCode == http.StatusTooManyRequests:
			lastErr = errs.New(Exchange, errs.CodeRateLimited,
				errs.WithHTTP(resp.StatusCode), errs.WithBody(string(body)))
			continue
		default:
			return errs.New(Exchange, errs.CodeExchange,
				errs.WithHTTP(resp.StatusCode), errs.WithBody(string(body)),
				errs.WithMessage("error fetching "+path))
		}
	}
	return errs.New(Exchange, errs.CodeRetryExhausted,
		errs.WithMessage(fmt.Sprintf("exceeded %d retries fetching %s", c.cfg.MaxRetries, path)),
		errs.WithCause(lastErr))
}
