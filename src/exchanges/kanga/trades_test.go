package kanga

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WisniowskiMariusz/CryptoPortfolioTracker/src/errs"
	"github.com/WisniowskiMariusz/CryptoPortfolioTracker/src/models"
)

// fakeStore satisfies the Store interface with canned answers.
type fakeStore struct {
	confirmed    bool
	placeholders []models.Trade
}

func (s *fakeStore) TradeExistsForDateNonEmptyOriginalID(ctx context.Context, exchange, user, date string) (bool, error) {
	return s.confirmed, nil
}

func (s *fakeStore) TradesForDateWithEmptyOriginalID(ctx context.Context, exchange, user, date string) ([]models.Trade, error) {
	return s.placeholders, nil
}

const apiTradeJSON = `{
	"id": 123456,
	"side": "BUYER",
	"buyingCurrency": "BTC",
	"payingCurrency": "oPLN",
	"quantity": "0.5",
	"value": "125000",
	"price": "250000",
	"feeCurrency": "oPLN",
	"fee": "12.5",
	"created": "2024-05-10T15:30:45.123Z"
}`

func TestParseAPITradeBuyer(t *testing.T) {
	var raw apiTrade
	require.NoError(t, json.Unmarshal([]byte(apiTradeJSON), &raw))

	tr, err := parseAPITrade(raw, "mariusz")
	require.NoError(t, err)
	assert.Equal(t, "123456", tr.OriginalID)
	assert.Equal(t, Exchange, tr.Exchange)
	assert.Equal(t, "mariusz", tr.User)
	assert.Equal(t, "BTC", tr.BoughtCurrency)
	assert.Equal(t, "0.5", tr.BoughtAmount.String())
	assert.Equal(t, "oPLN", tr.SoldCurrency)
	assert.Equal(t, "125000", tr.SoldAmount.String())
	assert.NotEmpty(t, tr.ID)
	// Sub-second precision is dropped so the hash layout round-trips.
	assert.Equal(t, time.Date(2024, 5, 10, 15, 30, 45, 0, time.UTC), tr.UTCTime)
}

func TestParseAPITradeSeller(t *testing.T) {
	var raw apiTrade
	require.NoError(t, json.Unmarshal([]byte(apiTradeJSON), &raw))
	raw.Side = "SELLER"

	tr, err := parseAPITrade(raw, "mariusz")
	require.NoError(t, err)
	assert.Equal(t, "oPLN", tr.BoughtCurrency)
	assert.Equal(t, "125000", tr.BoughtAmount.String())
	assert.Equal(t, "BTC", tr.SoldCurrency)
	assert.Equal(t, "0.5", tr.SoldAmount.String())
}

func TestFlexStringAcceptsQuotedAndBare(t *testing.T) {
	var s flexString
	require.NoError(t, json.Unmarshal([]byte(`"abc-123"`), &s))
	assert.Equal(t, flexString("abc-123"), s)
	require.NoError(t, json.Unmarshal([]byte(`987654`), &s))
	assert.Equal(t, flexString("987654"), s)
}

func TestParsePage(t *testing.T) {
	page := &HistoryPage{Result: "ok", List: []apiTrade{}}
	trades, err := ParsePage(page, "mariusz")
	require.NoError(t, err)
	assert.Empty(t, trades)

	_, err = ParsePage(&HistoryPage{Result: "fail", Code: 429}, "mariusz")
	assert.Error(t, err)

	_, err = ParsePage(&HistoryPage{Result: "ok", Message: "nothing here"}, "mariusz")
	assert.Error(t, err)
}

func TestTradesForDateRejectsBadDate(t *testing.T) {
	_, err := testClient("http://unreachable.invalid").TradesForDate(context.Background(), &fakeStore{}, "10.05.2024")
	require.Error(t, err)
	var e *errs.E
	require.ErrorAs(t, err, &e)
	assert.Equal(t, errs.CodeInvalid, e.Code)

	_, err = testClient("http://unreachable.invalid").TradesForPeriod(context.Background(), &fakeStore{}, "2024-05-10", "not-a-date")
	require.Error(t, err)
	require.ErrorAs(t, err, &e)
	assert.Equal(t, errs.CodeInvalid, e.Code)
}

func TestTradesForDateAlreadyChecked(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer srv.Close()

	day, err := testClient(srv.URL).TradesForDate(context.Background(), &fakeStore{confirmed: true}, "2024-05-10")
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyChecked, day.Outcome)
	assert.Empty(t, day.Trades)
	assert.Zero(t, calls, "confirmed days must not hit the API")
}

func TestTradesForDateBeforeRetentionSentinel(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer srv.Close()

	day, err := testClient(srv.URL).TradesForDate(context.Background(), &fakeStore{}, "2022-01-01")
	require.NoError(t, err)
	assert.Equal(t, OutcomeBeforeRetention, day.Outcome)
	require.Len(t, day.Trades, 1)
	assert.Zero(t, calls, "days before the retention boundary must not hit the API")

	sentinel := day.Trades[0]
	assert.Equal(t, "ALL", sentinel.BoughtCurrency)
	assert.Equal(t, "ALL", sentinel.SoldCurrency)
	assert.Equal(t, "Not applicable", sentinel.FeeCurrency)
	assert.True(t, sentinel.BoughtAmount.IsZero())
	assert.Contains(t, sentinel.OriginalID, "2022-01-01")
	assert.Equal(t, time.Date(2022, 1, 1, 12, 0, 0, 0, time.UTC), sentinel.UTCTime)
}

func TestTradesForDateBeforeRetentionTagsPlaceholders(t *testing.T) {
	placeholder := models.Trade{ID: "abc", Exchange: Exchange, User: "mariusz"}
	store := &fakeStore{placeholders: []models.Trade{placeholder}}

	day, err := testClient("http://unreachable.invalid").TradesForDate(context.Background(), store, "2022-06-15")
	require.NoError(t, err)
	assert.Equal(t, OutcomeBeforeRetention, day.Outcome)
	require.Len(t, day.Trades, 1)
	assert.Equal(t, unavailableOriginalID, day.Trades[0].OriginalID)
	assert.Equal(t, "abc", day.Trades[0].ID)
}

func TestTradesForDateInBandRateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"result":"fail","code":429}`))
	}))
	defer srv.Close()

	day, err := testClient(srv.URL).TradesForDate(context.Background(), &fakeStore{}, "2024-05-10")
	require.NoError(t, err)
	assert.Equal(t, OutcomeRateLimited, day.Outcome)
	assert.Empty(t, day.Trades)
}

func TestTradesForDateEmptyPastDay(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"result":"ok","list":[]}`))
	}))
	defer srv.Close()

	day, err := testClient(srv.URL).TradesForDate(context.Background(), &fakeStore{}, "2024-05-10")
	require.NoError(t, err)
	assert.Equal(t, OutcomeEmptyDay, day.Outcome)
	require.Len(t, day.Trades, 1)
	assert.Contains(t, day.Trades[0].OriginalID, "No trades for user: mariusz")
}

func TestTradesForDateCurrentDayWithoutTrades(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"result":"ok","list":[]}`))
	}))
	defer srv.Close()

	today := time.Now().UTC().Format("2006-01-02")
	day, err := testClient(srv.URL).TradesForDate(context.Background(), &fakeStore{}, today)
	require.NoError(t, err)
	// A day still in progress gets no sentinel so a later fetch can retry.
	assert.Equal(t, OutcomeFetched, day.Outcome)
	assert.Empty(t, day.Trades)
}

func TestTradesForDateFetchesTrades(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"result":"ok","list":[` + apiTradeJSON + `]}`))
	}))
	defer srv.Close()

	day, err := testClient(srv.URL).TradesForDate(context.Background(), &fakeStore{}, "2024-05-10")
	require.NoError(t, err)
	assert.Equal(t, OutcomeFetched, day.Outcome)
	require.Len(t, day.Trades, 1)
	assert.Equal(t, "123456", day.Trades[0].OriginalID)
}

func TestTradesForPeriodStopsOnRateLimit(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls >= 3 {
			w.Write([]byte(`{"result":"fail","code":429}`))
			return
		}
		w.Write([]byte(`{"result":"ok","list":[` + apiTradeJSON + `]}`))
	}))
	defer srv.Close()

	trades, err := testClient(srv.URL).TradesForPeriod(context.Background(), &fakeStore{}, "2024-05-10", "2024-05-14")
	require.NoError(t, err)
	// Two fetched days before the breach; the partial result is kept.
	assert.Len(t, trades, 2)
	assert.Equal(t, 3, calls)
}

func TestTradesForPeriodSkipsConfirmedDays(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer srv.Close()

	trades, err := testClient(srv.URL).TradesForPeriod(context.Background(), &fakeStore{confirmed: true}, "2024-05-10", "2024-05-12")
	require.NoError(t, err)
	assert.Empty(t, trades)
	assert.Zero(t, calls)
}
