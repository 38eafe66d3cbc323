package kanga

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"github.com/WisniowskiMariusz/CryptoPortfolioTracker/src/errs"
	"github.com/WisniowskiMariusz/CryptoPortfolioTracker/src/identity"
	"github.com/WisniowskiMariusz/CryptoPortfolioTracker/src/logger"
	"github.com/WisniowskiMariusz/CryptoPortfolioTracker/src/models"
	"github.com/WisniowskiMariusz/CryptoPortfolioTracker/src/utils"
)

// RetentionBoundary is the earliest date Kanga serves transaction history
// for. Days before it always come back empty from the API.
var RetentionBoundary = time.Date(2023, 3, 15, 0, 0, 0, 0, time.UTC)

const unavailableOriginalID = "Not available for dates before 2023-03-15"

// Outcome classifies what a per-day fetch produced.
type Outcome int

const (
	// OutcomeFetched means real trades were fetched from the API.
	OutcomeFetched Outcome = iota
	// OutcomeAlreadyChecked means the day was confirmed earlier; no request sent.
	OutcomeAlreadyChecked
	// OutcomeEmptyDay means the API reported no trades; a sentinel row marks the day.
	OutcomeEmptyDay
	// OutcomeBeforeRetention means the day predates the API's retention window.
	OutcomeBeforeRetention
	// OutcomeRateLimited means the API refused the request with its in-band
	// rate-limit reply; fetching should stop.
	OutcomeRateLimited
)

func (o Outcome) String() string {
	switch o {
	case OutcomeFetched:
		return "fetched"
	case OutcomeAlreadyChecked:
		return "already_checked"
	case OutcomeEmptyDay:
		return "empty_day"
	case OutcomeBeforeRetention:
		return "before_retention"
	case OutcomeRateLimited:
		return "rate_limited"
	}
	return "unknown"
}

// DayTrades is the result of fetching one calendar day.
type DayTrades struct {
	Trades  []models.Trade
	Outcome Outcome
}

// Store is the subset of the trade store the fetch loop consults to decide
// whether a past day still needs a request.
type Store interface {
	TradeExistsForDateNonEmptyOriginalID(ctx context.Context, exchange, user, date string) (bool, error)
	TradesForDateWithEmptyOriginalID(ctx context.Context, exchange, user, date string) ([]models.Trade, error)
}

// apiTrade is one trade as the transaction history endpoint returns it.
type apiTrade struct {
	ID             flexString      `json:"id"`
	Side           string          `json:"side"`
	BuyingCurrency string          `json:"buyingCurrency"`
	PayingCurrency string          `json:"payingCurrency"`
	Quantity       decimal.Decimal `json:"quantity"`
	Value          decimal.Decimal `json:"value"`
	Price          decimal.Decimal `json:"price"`
	FeeCurrency    string          `json:"feeCurrency"`
	Fee            decimal.Decimal `json:"fee"`
	Created        string          `json:"created"`
}

// flexString decodes a JSON string or number into a string. Kanga is not
// consistent about whether trade ids are quoted.
type flexString string

func (s *flexString) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = flexString(v)
		return nil
	}
	*s = flexString(string(b))
	return nil
}

var createdLayouts = []string{
	"2006-01-02T15:04:05.000Z",
	"2006-01-02T15:04:05Z",
	time.RFC3339Nano,
}

// parseAPITrade normalizes one API trade into the canonical form: BUYER gets
// the buying currency, sellers the paying one, and the content hash becomes
// the trade ID while the native id moves to OriginalID.
func parseAPITrade(raw apiTrade, user string) (models.Trade, error) {
	var created time.Time
	var err error
	for _, layout := range createdLayouts {
		if created, err = time.Parse(layout, raw.Created); err == nil {
			break
		}
	}
	if err != nil {
		return models.Trade{}, fmt.Errorf("unparsable trade time %q: %w", raw.Created, err)
	}

	t := models.Trade{
		OriginalID:  string(raw.ID),
		Exchange:    Exchange,
		User:        user,
		UTCTime:     created.UTC().Truncate(time.Second),
		Price:       raw.Price,
		FeeCurrency: raw.FeeCurrency,
		FeeAmount:   raw.Fee,
	}
	if raw.Side == "BUYER" {
		t.BoughtCurrency = raw.BuyingCurrency
		t.SoldCurrency = raw.PayingCurrency
		t.BoughtAmount = raw.Quantity
		t.SoldAmount = raw.Value
	} else {
		t.BoughtCurrency = raw.PayingCurrency
		t.SoldCurrency = raw.BuyingCurrency
		t.BoughtAmount = raw.Value
		t.SoldAmount = raw.Quantity
	}
	t.ID = identity.HashTrade(t)
	return t, nil
}

// ParsePage normalizes every trade on a transaction history page. Pages
// without a trade list (rate-limit or informational replies) are an error
// here; callers wanting the per-day sentinel handling use TradesForDate.
func ParsePage(page *HistoryPage, user string) ([]models.Trade, error) {
	if page.RateLimited() {
		return nil, errs.New(Exchange, errs.CodeRateLimited,
			errs.WithMessage("too many calls"))
	}
	if page.List == nil {
		return nil, errs.New(Exchange, errs.CodeExchange,
			errs.WithMessage("no transactions in response: "+page.Message))
	}
	trades := make([]models.Trade, 0, len(page.List))
	for _, raw := range page.List {
		t, err := parseAPITrade(raw, user)
		if err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}
	return trades, nil
}

// sentinelTrade builds the placeholder row that marks a day with no real
// trades, so the day is never re-fetched. Its descriptive OriginalID keeps
// the row distinguishable from real records.
func sentinelTrade(day time.Time, originalID, user string) models.Trade {
	t := models.Trade{
		OriginalID:     originalID,
		Exchange:       Exchange,
		User:           user,
		UTCTime:        time.Date(day.Year(), day.Month(), day.Day(), 12, 0, 0, 0, time.UTC),
		BoughtCurrency: "ALL",
		BoughtAmount:   decimal.Zero,
		SoldCurrency:   "ALL",
		SoldAmount:     decimal.Zero,
		Price:          decimal.Zero,
		FeeCurrency:    "Not applicable",
		FeeAmount:      decimal.Zero,
	}
	t.ID = identity.HashTrade(t)
	return t
}

// TradesForDate fetches (or reconstructs) the trades of one calendar day.
// Past days already holding a confirmed trade are skipped without a request;
// days before the retention boundary never hit the API. Empty past days get
// a sentinel row so they are recognized as checked next time.
func (c *Client) TradesForDate(ctx context.Context, store Store, date string) (DayTrades, error) {
	log := logger.FromContext(ctx)

	day, err := utils.DateFromString(date)
	if err != nil {
		return DayTrades{}, errs.New(Exchange, errs.CodeInvalid, errs.WithMessage(err.Error()))
	}
	endOfDay := day.Add(24*time.Hour - time.Millisecond)
	now := time.Now().UTC()

	if endOfDay.Before(now) {
		checked, err := store.TradeExistsForDateNonEmptyOriginalID(ctx, Exchange, c.cfg.User, date)
		if err != nil {
			return DayTrades{}, err
		}
		if checked {
			log.Debug("Day already confirmed, skipping request", "exchange", Exchange, "date", date)
			return DayTrades{Outcome: OutcomeAlreadyChecked}, nil
		}
	}

	if endOfDay.Before(RetentionBoundary) {
		placeholders, err := store.TradesForDateWithEmptyOriginalID(ctx, Exchange, c.cfg.User, date)
		if err != nil {
			return DayTrades{}, err
		}
		if len(placeholders) > 0 {
			// Placeholders imported from CSV can never be confirmed by the
			// API; mark them with the retention notice instead.
			for i := range placeholders {
				placeholders[i].OriginalID = unavailableOriginalID
			}
			return DayTrades{Trades: placeholders, Outcome: OutcomeBeforeRetention}, nil
		}
		unavailable := fmt.Sprintf("Data for %s are unavailable (%s < 2023-03-15).", date, date)
		return DayTrades{
			Trades:  []models.Trade{sentinelTrade(day, unavailable, c.cfg.User)},
			Outcome: OutcomeBeforeRetention,
		}, nil
	}

	start := date + "T00:00:00.000Z"
	end := date + "T23:59:59.999Z"
	page, err := c.TransactionHistory(ctx, start, end)
	if err != nil {
		return DayTrades{}, err
	}

	switch {
	case page.RateLimited():
		log.Warn("Kanga reported too many calls", "date", date)
		return DayTrades{Outcome: OutcomeRateLimited}, nil
	case page.Message != "":
		unavailable := fmt.Sprintf("Data for %s are unavailable (%s).", date, page.Message)
		return DayTrades{
			Trades:  []models.Trade{sentinelTrade(day, unavailable, c.cfg.User)},
			Outcome: OutcomeEmptyDay,
		}, nil
	case len(page.List) == 0:
		if endOfDay.Before(now) {
			noTrades := fmt.Sprintf("No trades for user: %s, exchange: %s, date: %s", c.cfg.User, Exchange, date)
			return DayTrades{
				Trades:  []models.Trade{sentinelTrade(day, noTrades, c.cfg.User)},
				Outcome: OutcomeEmptyDay,
			}, nil
		}
		// The day is still in progress; leave it unmarked.
		return DayTrades{Outcome: OutcomeFetched}, nil
	}

	trades := make([]models.Trade, 0, len(page.List))
	for _, raw := range page.List {
		t, err := parseAPITrade(raw, c.cfg.User)
		if err != nil {
			return DayTrades{}, fmt.Errorf("parsing kanga trade for %s: %w", date, err)
		}
		trades = append(trades, t)
	}
	return DayTrades{Trades: trades, Outcome: OutcomeFetched}, nil
}

// TradesForPeriod walks every day between startDate and endDate inclusive,
// pacing requests through the client's limiter. On a rate-limit breach it
// stops and returns what it has so the caller can persist partial progress.
func (c *Client) TradesForPeriod(ctx context.Context, store Store, startDate, endDate string) ([]models.Trade, error) {
	log := logger.FromContext(ctx)

	dates, err := utils.DatesBetween(startDate, endDate)
	if err != nil {
		return nil, errs.New(Exchange, errs.CodeInvalid, errs.WithMessage(err.Error()))
	}

	var trades []models.Trade
	for _, date := range dates {
		day, err := c.TradesForDate(ctx, store, date)
		if err != nil {
			return trades, err
		}
		switch day.Outcome {
		case OutcomeAlreadyChecked, OutcomeBeforeRetention:
			// No request was sent, no pacing needed.
			trades = append(trades, day.Trades...)
			continue
		case OutcomeRateLimited:
			log.Warn("Rate limit breached, stopping fetch and keeping partial results",
				"date", date, "fetchedSoFar", len(trades))
			return trades, nil
		}
		if len(day.Trades) > 0 {
			log.Info("Fetched trades for date", "exchange", Exchange, "date", date,
				"count", len(day.Trades), "outcome", day.Outcome.String())
		}
		trades = append(trades, day.Trades...)
		if err := c.limiter.Wait(ctx); err != nil {
			return trades, err
		}
	}
	return trades, nil
}
