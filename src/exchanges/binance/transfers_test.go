package binance

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDepositHistoryNormalizes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sapi/v1/capital/deposit/hisrec", r.URL.Path)
		assert.Equal(t, "BTC", r.URL.Query().Get("coin"))
		fmt.Fprint(w, `[{"amount":"0.5","coin":"BTC","network":"BTC","status":1,"txId":"tx-abc","insertTime":1715355045000}]`)
	}))
	defer srv.Close()

	transfers, err := testClient(srv.URL, 0).DepositHistory(context.Background(), "mariusz", "BTC", 1000, 2000)
	require.NoError(t, err)
	require.Len(t, transfers, 1)

	tr := transfers[0]
	assert.Equal(t, Exchange, tr.Exchange)
	assert.Equal(t, "mariusz", tr.User)
	assert.Equal(t, "deposit", tr.Kind)
	assert.Equal(t, "tx-abc", tr.NativeID)
	assert.Equal(t, "tx-abc", tr.TxID)
	assert.Equal(t, "0.5", tr.Amount)
	assert.Equal(t, "1", tr.Status)
	assert.Equal(t, time.Date(2024, 5, 10, 15, 30, 45, 0, time.UTC), tr.UTCTime)
}

func TestWithdrawHistoryNormalizes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sapi/v1/capital/withdraw/history", r.URL.Path)
		fmt.Fprint(w, `[
			{"id":"w-1","amount":"1.0","coin":"ETH","status":6,"txId":"tx-def","applyTime":"2024-05-10 15:30:45"},
			{"id":"w-2","amount":"2.0","coin":"ETH","status":6,"txId":"tx-ghi","applyTime":"garbage"}
		]`)
	}))
	defer srv.Close()

	transfers, err := testClient(srv.URL, 0).WithdrawHistory(context.Background(), "mariusz", "", 0, 0)
	require.NoError(t, err)
	require.Len(t, transfers, 2)

	assert.Equal(t, "withdrawal", transfers[0].Kind)
	assert.Equal(t, "w-1", transfers[0].NativeID)
	assert.Equal(t, time.Date(2024, 5, 10, 15, 30, 45, 0, time.UTC), transfers[0].UTCTime)
	// An unparsable apply time degrades to the zero time, not an error.
	assert.True(t, transfers[1].UTCTime.IsZero())
}

func TestAllDepositsWalksWindows(t *testing.T) {
	latest := time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)
	earliest := latest.AddDate(0, 0, -200)

	type window struct{ start, end int64 }
	var windows []window
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start, err := strconv.ParseInt(r.URL.Query().Get("startTime"), 10, 64)
		require.NoError(t, err)
		end, err := strconv.ParseInt(r.URL.Query().Get("endTime"), 10, 64)
		require.NoError(t, err)
		windows = append(windows, window{start, end})
		fmt.Fprint(w, `[{"amount":"0.1","coin":"BTC","status":1,"txId":"tx","insertTime":1715355045000}]`)
	}))
	defer srv.Close()

	transfers, err := testClient(srv.URL, 0).AllDeposits(context.Background(), "mariusz", "", earliest, latest)
	require.NoError(t, err)

	// 200 days of history in descending 90-day windows: 90 + 90 + 20.
	require.Len(t, windows, 3)
	assert.Len(t, transfers, 3)

	assert.Equal(t, latest.UnixMilli(), windows[0].end)
	assert.Equal(t, latest.AddDate(0, 0, -90).UnixMilli(), windows[0].start)
	assert.Equal(t, latest.AddDate(0, 0, -90).UnixMilli(), windows[1].end)
	assert.Equal(t, latest.AddDate(0, 0, -180).UnixMilli(), windows[1].start)
	// The final window is clamped to the earliest date.
	assert.Equal(t, latest.AddDate(0, 0, -180).UnixMilli(), windows[2].end)
	assert.Equal(t, earliest.UnixMilli(), windows[2].start)
}

func TestAllWithdrawalsSingleClampedWindow(t *testing.T) {
	latest := time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)
	earliest := latest.AddDate(0, 0, -30)

	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, strconv.FormatInt(earliest.UnixMilli(), 10), r.URL.Query().Get("startTime"))
		fmt.Fprint(w, `[]`)
	}))
	defer srv.Close()

	transfers, err := testClient(srv.URL, 0).AllWithdrawals(context.Background(), "mariusz", "", earliest, latest)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, transfers)
}
