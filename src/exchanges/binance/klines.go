package binance

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/WisniowskiMariusz/CryptoPortfolioTracker/src/logger"
	"github.com/WisniowskiMariusz/CryptoPortfolioTracker/src/models"
	"github.com/WisniowskiMariusz/CryptoPortfolioTracker/src/utils"
)

// Kline is one candlestick. The endpoint returns heterogeneous arrays; only
// the open time and open price are kept, which is what the price history
// stores.
type Kline struct {
	OpenTime  int64
	OpenPrice float64
}

func (k *Kline) UnmarshalJSON(b []byte) error {
	var entry []json.RawMessage
	if err := json.Unmarshal(b, &entry); err != nil {
		return err
	}
	if len(entry) < 2 {
		return fmt.Errorf("kline entry has %d fields, want at least 2", len(entry))
	}
	if err := json.Unmarshal(entry[0], &k.OpenTime); err != nil {
		return fmt.Errorf("kline open time: %w", err)
	}
	var priceStr string
	if err := json.Unmarshal(entry[1], &priceStr); err != nil {
		return fmt.Errorf("kline open price: %w", err)
	}
	price, err := strconv.ParseFloat(priceStr, 64)
	if err != nil {
		return fmt.Errorf("kline open price %q: %w", priceStr, err)
	}
	k.OpenPrice = price
	return nil
}

// Klines fetches one batch of candlesticks. Start and end are Unix
// milliseconds; zero means unbounded.
func (c *Client) Klines(ctx context.Context, symbol, interval string, startMs, endMs int64, limit int) ([]Kline, error) {
	if limit <= 0 {
		limit = c.cfg.PageLimit
	}
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", interval)
	params.Set("limit", strconv.Itoa(limit))
	if startMs > 0 {
		params.Set("startTime", strconv.FormatInt(startMs, 10))
	}
	if endMs > 0 {
		params.Set("endTime", strconv.FormatInt(endMs, 10))
	}
	var klines []Kline
	if err := c.get(ctx, "/api/v3/klines", params, false, &klines); err != nil {
		return nil, err
	}
	return klines, nil
}

// KlinesDescending walks candlestick batches backwards in time, starting at
// endMs (zero for now) and stepping each window to just before the earliest
// candle of the previous batch. A short batch is terminal; maxPages bounds
// the walk (zero means one page). Candles come back in fetch order.
func (c *Client) KlinesDescending(ctx context.Context, symbol, interval string, endMs int64, batchSize, maxPages int) ([]models.Candle, error) {
	log := logger.FromContext(ctx)
	if batchSize <= 0 {
		batchSize = c.cfg.PageLimit
	}
	if maxPages <= 0 {
		maxPages = 1
	}

	var candles []models.Candle
	for page := 0; page < maxPages; page++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return candles, err
		}
		klines, err := c.Klines(ctx, symbol, interval, 0, endMs, batchSize)
		if err != nil {
			return candles, err
		}
		if len(klines) == 0 {
			break
		}
		candles = append(candles, ParseKlines(klines, symbol, interval)...)
		if len(klines) < batchSize {
			break
		}
		// Next window ends one minute before the earliest candle fetched.
		endMs = klines[0].OpenTime - time.Minute.Milliseconds()
		log.Debug("Continuing kline walk", "symbol", symbol, "page", page+1,
			"nextEnd", utils.TimeFromMillis(endMs).Format(time.RFC3339))
	}
	return candles, nil
}

// ParseKlines converts candlesticks into storable price points, truncated to
// the minute.
func ParseKlines(klines []Kline, symbol, interval string) []models.Candle {
	candles := make([]models.Candle, 0, len(klines))
	for _, k := range klines {
		candles = append(candles, models.Candle{
			Symbol:   symbol,
			Interval: interval,
			Time:     utils.TimeFromMillis(k.OpenTime).Truncate(time.Minute),
			Price:    k.OpenPrice,
			Source:   "binance",
		})
	}
	return candles
}
