package binance

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"github.com/WisniowskiMariusz/CryptoPortfolioTracker/src/logger"
	"github.com/WisniowskiMariusz/CryptoPortfolioTracker/src/models"
	"github.com/WisniowskiMariusz/CryptoPortfolioTracker/src/utils"
)

// EarliestTransferDate is where the full-history walks stop by default;
// Binance spot launched mid-2017.
var EarliestTransferDate = time.Date(2017, 7, 1, 0, 0, 0, 0, time.UTC)

// transferWindowDays is the widest time range the capital endpoints accept.
const transferWindowDays = 90

type rawDeposit struct {
	Amount     string `json:"amount"`
	Coin       string `json:"coin"`
	Network    string `json:"network"`
	Status     int    `json:"status"`
	Address    string `json:"address"`
	TxID       string `json:"txId"`
	InsertTime int64  `json:"insertTime"`
}

type rawWithdrawal struct {
	ID        string `json:"id"`
	Amount    string `json:"amount"`
	Coin      string `json:"coin"`
	Status    int    `json:"status"`
	Address   string `json:"address"`
	TxID      string `json:"txId"`
	ApplyTime string `json:"applyTime"`
}

func transferParams(asset string, startMs, endMs int64) url.Values {
	params := url.Values{}
	if asset != "" {
		params.Set("coin", asset)
	}
	if startMs > 0 {
		params.Set("startTime", strconv.FormatInt(startMs, 10))
	}
	if endMs > 0 {
		params.Set("endTime", strconv.FormatInt(endMs, 10))
	}
	return params
}

// DepositHistory fetches deposits in one time window (at most 90 days).
func (c *Client) DepositHistory(ctx context.Context, user, asset string, startMs, endMs int64) ([]models.Transfer, error) {
	var raw []rawDeposit
	if err := c.get(ctx, "/sapi/v1/capital/deposit/hisrec", transferParams(asset, startMs, endMs), true, &raw); err != nil {
		return nil, err
	}
	transfers := make([]models.Transfer, 0, len(raw))
	for _, d := range raw {
		transfers = append(transfers, models.Transfer{
			Exchange: Exchange,
			User:     user,
			Kind:     "deposit",
			NativeID: d.TxID,
			Asset:    d.Coin,
			Amount:   d.Amount,
			Status:   strconv.Itoa(d.Status),
			TxID:     d.TxID,
			UTCTime:  utils.TimeFromMillis(d.InsertTime),
		})
	}
	return transfers, nil
}

// WithdrawHistory fetches withdrawals in one time window (at most 90 days).
func (c *Client) WithdrawHistory(ctx context.Context, user, asset string, startMs, endMs int64) ([]models.Transfer, error) {
	var raw []rawWithdrawal
	if err := c.get(ctx, "/sapi/v1/capital/withdraw/history", transferParams(asset, startMs, endMs), true, &raw); err != nil {
		return nil, err
	}
	transfers := make([]models.Transfer, 0, len(raw))
	for _, w := range raw {
		applied, err := time.ParseInLocation("2006-01-02 15:04:05", w.ApplyTime, time.UTC)
		if err != nil {
			applied = time.Time{}
		}
		transfers = append(transfers, models.Transfer{
			Exchange: Exchange,
			User:     user,
			Kind:     "withdrawal",
			NativeID: w.ID,
			Asset:    w.Coin,
			Amount:   w.Amount,
			Status:   strconv.Itoa(w.Status),
			TxID:     w.TxID,
			UTCTime:  applied,
		})
	}
	return transfers, nil
}

type transferFetch func(ctx context.Context, user, asset string, startMs, endMs int64) ([]models.Transfer, error)

// walkTransferWindows covers [earliest, latest] in descending 90-day
// windows. The final window is clamped to earliest, and empty windows never
// stop the walk; only reaching earliest does.
func (c *Client) walkTransferWindows(ctx context.Context, kind string, fetch transferFetch, user, asset string, earliest, latest time.Time) ([]models.Transfer, error) {
	log := logger.FromContext(ctx)
	if latest.IsZero() {
		latest = time.Now().UTC()
	}
	if earliest.IsZero() {
		earliest = EarliestTransferDate
	}

	var all []models.Transfer
	for page := 1; ; page++ {
		end := latest.AddDate(0, 0, -transferWindowDays*(page-1))
		start := end.AddDate(0, 0, -transferWindowDays)
		if start.Before(earliest) {
			start = earliest
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return all, err
		}
		log.Info("Fetching transfer window", "kind", kind, "page", page,
			"start", start.Format(utils.DateLayout), "end", end.Format(utils.DateLayout))
		batch, err := fetch(ctx, user, asset, start.UnixMilli(), end.UnixMilli())
		if err != nil {
			return all, err
		}
		all = append(all, batch...)
		if start.Equal(earliest) {
			break
		}
	}
	log.Info("Transfer history walk complete", "kind", kind, "count", len(all))
	return all, nil
}

// AllDeposits fetches the complete deposit history between earliest and
// latest (zero values default to 2017-07-01 and now).
func (c *Client) AllDeposits(ctx context.Context, user, asset string, earliest, latest time.Time) ([]models.Transfer, error) {
	return c.walkTransferWindows(ctx, "deposit", c.DepositHistory, user, asset, earliest, latest)
}

// AllWithdrawals fetches the complete withdrawal history between earliest
// and latest (zero values default to 2017-07-01 and now).
func (c *Client) AllWithdrawals(ctx context.Context, user, asset string, earliest, latest time.Time) ([]models.Transfer, error) {
	return c.walkTransferWindows(ctx, "withdrawal", c.WithdrawHistory, user, asset, earliest, latest)
}
