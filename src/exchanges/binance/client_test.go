package binance

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WisniowskiMariusz/CryptoPortfolioTracker/src/errs"
	"github.com/WisniowskiMariusz/CryptoPortfolioTracker/src/logger"
)

func TestMain(m *testing.M) {
	logger.InitLogger("error")
	m.Run()
}

// testClient builds a client against the stub server with pacing disabled
// and a negligible backoff so retry tests run instantly.
func testClient(serverURL string, pageLimit int) *Client {
	return NewClient(Config{
		BaseURL:     serverURL,
		APIKey:      "test-api-key",
		APISecret:   "test-secret",
		PageLimit:   pageLimit,
		Pause:       0,
		MaxRetries:  2,
		BackoffBase: time.Millisecond,
	})
}

func TestGetSignsQuery(t *testing.T) {
	var gotQuery, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		gotKey = r.Header.Get("X-MBX-APIKEY")
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	params := url.Values{}
	params.Set("symbol", "BTCUSDT")
	var out map[string]any
	require.NoError(t, testClient(srv.URL, 0).get(context.Background(), "/api/v3/myTrades", params, true, &out))

	assert.Equal(t, "test-api-key", gotKey)
	// The caller's params must not pick up the per-attempt timestamp.
	assert.Empty(t, params.Get("timestamp"))

	parts := strings.SplitN(gotQuery, "&signature=", 2)
	require.Len(t, parts, 2, "query %q missing signature", gotQuery)
	mac := hmac.New(sha256.New, []byte("test-secret"))
	mac.Write([]byte(parts[0]))
	assert.Equal(t, hex.EncodeToString(mac.Sum(nil)), parts[1])

	signed, err := url.ParseQuery(parts[0])
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT", signed.Get("symbol"))
	assert.NotEmpty(t, signed.Get("timestamp"))
}

func TestGetUnsignedOmitsAuth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("X-MBX-APIKEY"))
		assert.NotContains(t, r.URL.RawQuery, "signature")
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	var out map[string]any
	require.NoError(t, testClient(srv.URL, 0).get(context.Background(), "/api/v3/exchangeInfo", url.Values{}, false, &out))
}

func TestGetRetryExhausted(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	var out map[string]any
	err := testClient(srv.URL, 0).get(context.Background(), "/api/v3/myTrades", url.Values{}, true, &out)
	require.Error(t, err)
	// MaxRetries retries on top of the initial attempt.
	assert.Equal(t, 3, calls)

	var e *errs.E
	require.True(t, errors.As(err, &e))
	assert.Equal(t, errs.CodeRetryExhausted, e.Code)
	var cause *errs.E
	require.True(t, errors.As(e.Unwrap(), &cause))
	assert.Equal(t, errs.CodeRateLimited, cause.Code)
}

func TestGetServerErrorFailsImmediately(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code":-1121,"msg":"Invalid symbol."}`))
	}))
	defer srv.Close()

	var out map[string]any
	err := testClient(srv.URL, 0).get(context.Background(), "/api/v3/myTrades", url.Values{}, true, &out)
	require.Error(t, err)
	assert.Equal(t, 1, calls)

	var e *errs.E
	require.True(t, errors.As(err, &e))
	assert.Equal(t, errs.CodeExchange, e.Code)
	assert.Equal(t, http.StatusBadRequest, e.HTTP)
	assert.Contains(t, e.Body, "Invalid symbol")
}

func TestGetRetriesBadJSON(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.Write([]byte("<html>maintenance</html>"))
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	var out map[string]any
	require.NoError(t, testClient(srv.URL, 0).get(context.Background(), "/api/v3/exchangeInfo", url.Values{}, false, &out))
	assert.Equal(t, 2, calls)
}
