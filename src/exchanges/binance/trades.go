package binance

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/WisniowskiMariusz/CryptoPortfolioTracker/src/identity"
	"github.com/WisniowskiMariusz/CryptoPortfolioTracker/src/logger"
	"github.com/WisniowskiMariusz/CryptoPortfolioTracker/src/models"
	"github.com/WisniowskiMariusz/CryptoPortfolioTracker/src/utils"
)

// RawTrade is one account trade as the myTrades endpoint returns it.
type RawTrade struct {
	Symbol          string          `json:"symbol"`
	ID              int64           `json:"id"`
	OrderID         int64           `json:"orderId"`
	Price           decimal.Decimal `json:"price"`
	Qty             decimal.Decimal `json:"qty"`
	QuoteQty        decimal.Decimal `json:"quoteQty"`
	Commission      decimal.Decimal `json:"commission"`
	CommissionAsset string          `json:"commissionAsset"`
	Time            int64           `json:"time"`
	IsBuyer         bool            `json:"isBuyer"`
	IsMaker         bool            `json:"isMaker"`
	IsBestMatch     bool            `json:"isBestMatch"`
}

// MyTrades fetches every account trade for the symbol in the optional time
// range, following the fromId cursor: full pages continue from the last id
// plus one, a short page is terminal. Start and end are Unix milliseconds;
// zero means unbounded.
func (c *Client) MyTrades(ctx context.Context, symbol string, startMs, endMs int64) ([]RawTrade, error) {
	log := logger.FromContext(ctx)

	var trades []RawTrade
	var fromID int64 = -1
	for {
		if err := c.limiter.Wait(ctx); err != nil {
			return trades, err
		}
		params := url.Values{}
		params.Set("symbol", symbol)
		params.Set("limit", strconv.Itoa(c.cfg.PageLimit))
		if fromID >= 0 {
			params.Set("fromId", strconv.FormatInt(fromID, 10))
		}
		if startMs > 0 {
			params.Set("startTime", strconv.FormatInt(startMs, 10))
		}
		if endMs > 0 {
			params.Set("endTime", strconv.FormatInt(endMs, 10))
		}

		var batch []RawTrade
		if err := c.get(ctx, "/api/v3/myTrades", params, true, &batch); err != nil {
			return trades, err
		}
		if len(batch) == 0 {
			break
		}
		trades = append(trades, batch...)
		if len(batch) < c.cfg.PageLimit {
			break
		}
		fromID = batch[len(batch)-1].ID + 1
	}
	log.Info("Fetched Binance trades", "symbol", symbol, "count", len(trades))
	return trades, nil
}

// NormalizeTrades converts raw account trades into canonical form using the
// symbol's base/quote split. Buyers gain the base asset and pay the quote;
// sellers the reverse. Sold amounts are recorded negative, matching the
// ledger convention of the CSV importers, and the commission is reconciled
// into the matching side since it is already deducted there upstream.
func NormalizeTrades(raw []RawTrade, symbol models.Symbol, user string) []models.Trade {
	trades := make([]models.Trade, 0, len(raw))
	for _, r := range raw {
		t := models.Trade{
			OriginalID:  strconv.FormatInt(r.ID, 10),
			Exchange:    Exchange,
			User:        user,
			UTCTime:     utils.TimeFromMillis(r.Time),
			Price:       r.Price,
			FeeCurrency: r.CommissionAsset,
			FeeAmount:   r.Commission,
		}
		if r.IsBuyer {
			t.BoughtCurrency = symbol.BaseAsset
			t.BoughtAmount = r.Qty
			t.SoldCurrency = symbol.QuoteAsset
			t.SoldAmount = r.QuoteQty.Neg()
		} else {
			t.BoughtCurrency = symbol.QuoteAsset
			t.BoughtAmount = r.QuoteQty
			t.SoldCurrency = symbol.BaseAsset
			t.SoldAmount = r.Qty.Neg()
		}
		if t.FeeCurrency == t.SoldCurrency {
			t.SoldAmount = t.SoldAmount.Sub(t.FeeAmount)
		}
		if t.FeeCurrency == t.BoughtCurrency {
			t.BoughtAmount = t.BoughtAmount.Add(t.FeeAmount)
		}
		t.ID = identity.HashTrade(t)
		trades = append(trades, t)
	}
	return trades
}

// Symbols fetches the exchange's trading pairs with their base and quote
// assets from the exchangeInfo endpoint.
func (c *Client) Symbols(ctx context.Context) ([]models.Symbol, error) {
	var info struct {
		Symbols []struct {
			Symbol     string `json:"symbol"`
			BaseAsset  string `json:"baseAsset"`
			QuoteAsset string `json:"quoteAsset"`
			Status     string `json:"status"`
		} `json:"symbols"`
	}
	if err := c.get(ctx, "/api/v3/exchangeInfo", url.Values{}, false, &info); err != nil {
		return nil, err
	}
	if len(info.Symbols) == 0 {
		return nil, fmt.Errorf("no symbols in exchangeInfo response")
	}
	symbols := make([]models.Symbol, 0, len(info.Symbols))
	for _, s := range info.Symbols {
		symbols = append(symbols, models.Symbol{
			Venue:      Exchange,
			Symbol:     s.Symbol,
			BaseAsset:  s.BaseAsset,
			QuoteAsset: s.QuoteAsset,
		})
	}
	return symbols, nil
}
