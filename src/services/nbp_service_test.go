package services

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	dbmigrations "github.com/WisniowskiMariusz/CryptoPortfolioTracker/db/migrations"
	"github.com/WisniowskiMariusz/CryptoPortfolioTracker/src/logger"
	"github.com/WisniowskiMariusz/CryptoPortfolioTracker/src/model"
)

func TestMain(m *testing.M) {
	logger.InitLogger("error")
	m.Run()
}

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	schema, err := dbmigrations.Files.ReadFile("0001_init.up.sql")
	require.NoError(t, err)
	_, err = db.Exec(string(schema))
	require.NoError(t, err)
	return db
}

const nbpResponse = `{
	"table": "A",
	"currency": "euro",
	"code": "EUR",
	"rates": [
		{"no": "090/A/NBP/2024", "effectiveDate": "2024-05-09", "mid": 4.3101},
		{"no": "091/A/NBP/2024", "effectiveDate": "2024-05-10", "mid": 4.2989}
	]
}`

func TestFetchRatesCachesPerURL(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, "/exchangerates/rates/a/eur/2024-05-09/2024-05-10/", r.URL.Path)
		w.Write([]byte(nbpResponse))
	}))
	defer srv.Close()

	svc := NewNbpService(srv.URL, newTestDB(t), cache.New(time.Minute, time.Minute))

	rates, err := svc.FetchRates(context.Background(), "a", "eur", "2024-05-09", "2024-05-10")
	require.NoError(t, err)
	require.Len(t, rates, 2)
	assert.Equal(t, "EUR", rates[0].BaseCurrency)
	assert.Equal(t, "PLN", rates[0].QuoteCurrency)
	assert.Equal(t, "2024-05-09", rates[0].Date)
	assert.Equal(t, 4.3101, rates[0].Price)
	assert.Equal(t, "NBP", rates[0].Source)

	// Second fetch for the same range is served from cache.
	_, err = svc.FetchRates(context.Background(), "a", "eur", "2024-05-09", "2024-05-10")
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestFetchRatesUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "404 NotFound", http.StatusNotFound)
	}))
	defer srv.Close()

	svc := NewNbpService(srv.URL, newTestDB(t), cache.New(time.Minute, time.Minute))
	_, err := svc.FetchRates(context.Background(), "a", "eur", "2024-05-09", "2024-05-10")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestStoreRatesSkipsExisting(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(nbpResponse))
	}))
	defer srv.Close()

	db := newTestDB(t)
	svc := NewNbpService(srv.URL, db, cache.New(time.Minute, time.Minute))
	ctx := context.Background()

	rates, err := svc.FetchRates(ctx, "a", "eur", "2024-05-09", "2024-05-10")
	require.NoError(t, err)

	saved, err := svc.StoreRates(ctx, rates)
	require.NoError(t, err)
	assert.Equal(t, 2, saved)

	saved, err = svc.StoreRates(ctx, rates)
	require.NoError(t, err)
	assert.Zero(t, saved)

	exists, err := model.RateExists(ctx, db, "EUR", "PLN", "2024-05-10")
	require.NoError(t, err)
	assert.True(t, exists)
}
