package model

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/WisniowskiMariusz/CryptoPortfolioTracker/src/models"
)

// TimeLayout is the TEXT format trade timestamps are stored in. Keeping the
// stored form lexicographically ordered lets date filters use plain prefix
// comparisons.
const TimeLayout = "2006-01-02 15:04:05"

// ConflictError reports a uniqueness-constraint violation on insert, carrying
// the offending trade for diagnosis.
type ConflictError struct {
	Trade models.Trade
	Err   error
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("duplicate trade key (id=%s, original_id=%s): %v", e.Trade.ID, e.Trade.OriginalID, e.Err)
}

func (e *ConflictError) Unwrap() error { return e.Err }

// ErrPlaceholderMissing reports that the placeholder row an update targeted no
// longer exists, typically because it was upgraded since the batch was probed.
var ErrPlaceholderMissing = errors.New("placeholder trade not found for update")

// TradeStore provides keyed lookups and transactional persistence for the
// trade ledger. All operations are scoped by the (user, exchange) partition.
type TradeStore struct {
	db *sql.DB
}

func NewTradeStore(db *sql.DB) *TradeStore {
	return &TradeStore{db: db}
}

// TxOps are the mutation operations available inside one store transaction.
type TxOps struct {
	tx *sql.Tx
}

// ExistingKeys returns which of the given composite keys already exist in the
// partition. Callers are expected to chunk large key sets.
func (s *TradeStore) ExistingKeys(ctx context.Context, exchange, user string, keys []models.TradeKey) (map[models.TradeKey]struct{}, error) {
	found := make(map[models.TradeKey]struct{})
	if len(keys) == 0 {
		return found, nil
	}
	var sb strings.Builder
	sb.WriteString(`SELECT trade_id, original_id FROM trades WHERE user = ? AND exchange = ? AND (`)
	args := make([]any, 0, 2+2*len(keys))
	args = append(args, user, exchange)
	for i, key := range keys {
		if i > 0 {
			sb.WriteString(" OR ")
		}
		sb.WriteString("(trade_id = ? AND original_id = ?)")
		args = append(args, key.ID, key.OriginalID)
	}
	sb.WriteString(")")

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("querying existing trade keys: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var key models.TradeKey
		if err := rows.Scan(&key.ID, &key.OriginalID); err != nil {
			return nil, fmt.Errorf("scanning existing trade key: %w", err)
		}
		found[key] = struct{}{}
	}
	return found, rows.Err()
}

// ExistingIDsSplitByOriginal returns which of the given trade ids already
// exist in the partition, split into ids stored with an empty original_id
// (placeholders) and ids stored with a non-empty one (confirmed records).
func (s *TradeStore) ExistingIDsSplitByOriginal(ctx context.Context, exchange, user string, ids []string) (map[string]struct{}, map[string]struct{}, error) {
	empty := make(map[string]struct{})
	nonEmpty := make(map[string]struct{})
	if len(ids) == 0 {
		return empty, nonEmpty, nil
	}
	query := `SELECT trade_id, original_id FROM trades WHERE user = ? AND exchange = ? AND trade_id IN (?` +
		strings.Repeat(",?", len(ids)-1) + `)`
	args := make([]any, 0, 2+len(ids))
	args = append(args, user, exchange)
	for _, id := range ids {
		args = append(args, id)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, nil, fmt.Errorf("querying existing trade ids: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id, originalID string
		if err := rows.Scan(&id, &originalID); err != nil {
			return nil, nil, fmt.Errorf("scanning existing trade id: %w", err)
		}
		if originalID == "" {
			empty[id] = struct{}{}
		} else {
			nonEmpty[id] = struct{}{}
		}
	}
	return empty, nonEmpty, rows.Err()
}

// InTx runs fn inside one database transaction, committing on success and
// rolling back on error.
func (s *TradeStore) InTx(ctx context.Context, fn func(ops TxOps) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning trade transaction: %w", err)
	}
	defer tx.Rollback()
	if err := fn(TxOps{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing trade transaction: %w", err)
	}
	return nil
}

// BulkInsert inserts all trades inside the current transaction. A uniqueness
// violation is returned as a *ConflictError carrying the offending trade.
func (ops TxOps) BulkInsert(ctx context.Context, trades []models.Trade) error {
	if len(trades) == 0 {
		return nil
	}
	stmt, err := ops.tx.PrepareContext(ctx, `INSERT INTO trades
		(trade_id, original_id, exchange, user, utc_time,
		 bought_currency, bought_amount, sold_currency, sold_amount,
		 price, fee_currency, fee_amount)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing trade insert: %w", err)
	}
	defer stmt.Close()
	for _, t := range trades {
		_, err := stmt.ExecContext(ctx,
			t.ID, t.OriginalID, t.Exchange, t.User, t.UTCTime.UTC().Format(TimeLayout),
			t.BoughtCurrency, t.BoughtAmount.String(), t.SoldCurrency, t.SoldAmount.String(),
			t.Price.String(), t.FeeCurrency, t.FeeAmount.String(),
		)
		if err != nil {
			if strings.Contains(strings.ToLower(err.Error()), "unique constraint failed") {
				return &ConflictError{Trade: t, Err: err}
			}
			return fmt.Errorf("inserting trade (id=%s): %w", t.ID, err)
		}
	}
	return nil
}

// UpdatePlaceholder upgrades a placeholder row (stored with an empty
// original_id) in place, overwriting its original_id and utc_time. This is
// the only mutation path in the ledger.
func (ops TxOps) UpdatePlaceholder(ctx context.Context, exchange, user, id, newOriginalID string, newTime time.Time) error {
	res, err := ops.tx.ExecContext(ctx, `UPDATE trades
		SET original_id = ?, utc_time = ?
		WHERE user = ? AND exchange = ? AND trade_id = ? AND original_id = ''`,
		newOriginalID, newTime.UTC().Format(TimeLayout), user, exchange, id)
	if err != nil {
		return fmt.Errorf("updating placeholder trade (id=%s): %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking placeholder update result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w (id=%s)", ErrPlaceholderMissing, id)
	}
	return nil
}

// TradeExistsForDateNonEmptyOriginalID reports whether the partition already
// holds any trade on the given YYYY-MM-DD date with a confirmed original_id.
// The fetch loop uses this to skip past days that were already checked.
func (s *TradeStore) TradeExistsForDateNonEmptyOriginalID(ctx context.Context, exchange, user, date string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM trades
		WHERE user = ? AND exchange = ? AND original_id != '' AND substr(utc_time, 1, 10) = ?`,
		user, exchange, date).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking trades for date %s: %w", date, err)
	}
	return n > 0, nil
}

// TradesForDateWithEmptyOriginalID returns the partition's placeholder trades
// on the given YYYY-MM-DD date.
func (s *TradeStore) TradesForDateWithEmptyOriginalID(ctx context.Context, exchange, user, date string) ([]models.Trade, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT trade_id, original_id, exchange, user, utc_time,
			bought_currency, bought_amount, sold_currency, sold_amount, price, fee_currency, fee_amount
		FROM trades
		WHERE user = ? AND exchange = ? AND original_id = '' AND substr(utc_time, 1, 10) = ?
		ORDER BY utc_time`,
		user, exchange, date)
	if err != nil {
		return nil, fmt.Errorf("querying placeholder trades for date %s: %w", date, err)
	}
	defer rows.Close()
	return scanTrades(rows)
}

// TradesForPartition returns every trade in the partition ordered by time.
func (s *TradeStore) TradesForPartition(ctx context.Context, exchange, user string) ([]models.Trade, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT trade_id, original_id, exchange, user, utc_time,
			bought_currency, bought_amount, sold_currency, sold_amount, price, fee_currency, fee_amount
		FROM trades
		WHERE user = ? AND exchange = ?
		ORDER BY utc_time, id`,
		user, exchange)
	if err != nil {
		return nil, fmt.Errorf("querying trades for partition: %w", err)
	}
	defer rows.Close()
	return scanTrades(rows)
}

// GetTrade returns the trade with the given composite key, or sql.ErrNoRows.
func (s *TradeStore) GetTrade(ctx context.Context, exchange, user, id, originalID string) (models.Trade, error) {
	row := s.db.QueryRowContext(ctx, `SELECT trade_id, original_id, exchange, user, utc_time,
			bought_currency, bought_amount, sold_currency, sold_amount, price, fee_currency, fee_amount
		FROM trades
		WHERE user = ? AND exchange = ? AND trade_id = ? AND original_id = ?`,
		user, exchange, id, originalID)
	return scanTrade(row)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTrade(row rowScanner) (models.Trade, error) {
	var t models.Trade
	var utcTime, boughtAmount, soldAmount, price, feeAmount string
	err := row.Scan(&t.ID, &t.OriginalID, &t.Exchange, &t.User, &utcTime,
		&t.BoughtCurrency, &boughtAmount, &t.SoldCurrency, &soldAmount,
		&price, &t.FeeCurrency, &feeAmount)
	if err != nil {
		return models.Trade{}, err
	}
	if t.UTCTime, err = time.ParseInLocation(TimeLayout, utcTime, time.UTC); err != nil {
		return models.Trade{}, fmt.Errorf("parsing stored trade time %q: %w", utcTime, err)
	}
	if t.BoughtAmount, err = decimal.NewFromString(boughtAmount); err != nil {
		return models.Trade{}, fmt.Errorf("parsing stored bought amount %q: %w", boughtAmount, err)
	}
	if t.SoldAmount, err = decimal.NewFromString(soldAmount); err != nil {
		return models.Trade{}, fmt.Errorf("parsing stored sold amount %q: %w", soldAmount, err)
	}
	if t.Price, err = decimal.NewFromString(price); err != nil {
		return models.Trade{}, fmt.Errorf("parsing stored price %q: %w", price, err)
	}
	if t.FeeAmount, err = decimal.NewFromString(feeAmount); err != nil {
		return models.Trade{}, fmt.Errorf("parsing stored fee amount %q: %w", feeAmount, err)
	}
	return t, nil
}

func scanTrades(rows *sql.Rows) ([]models.Trade, error) {
	var trades []models.Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}
