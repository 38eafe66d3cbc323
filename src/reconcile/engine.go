// Package reconcile classifies batches of canonical trades against the trade
// ledger and persists the outcome without creating duplicates.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/WisniowskiMariusz/CryptoPortfolioTracker/src/errs"
	"github.com/WisniowskiMariusz/CryptoPortfolioTracker/src/logger"
	"github.com/WisniowskiMariusz/CryptoPortfolioTracker/src/model"
	"github.com/WisniowskiMariusz/CryptoPortfolioTracker/src/models"
	"github.com/WisniowskiMariusz/CryptoPortfolioTracker/src/utils"
)

// DefaultChunkSize bounds the size of a single existence-probe query.
const DefaultChunkSize = 100

// Store is the persistence collaborator the engine reconciles against.
type Store interface {
	ExistingKeys(ctx context.Context, exchange, user string, keys []models.TradeKey) (map[models.TradeKey]struct{}, error)
	ExistingIDsSplitByOriginal(ctx context.Context, exchange, user string, ids []string) (map[string]struct{}, map[string]struct{}, error)
	InTx(ctx context.Context, fn func(ops model.TxOps) error) error
}

// Result reports the outcome of one reconciliation pass. SumCheck must equal
// Fetched; a mismatch indicates a classification bug and is reported loudly.
type Result struct {
	Fetched   int `json:"fetched"`
	Inserted  int `json:"inserted"`
	Updated   int `json:"updated"`
	Duplicate int `json:"duplicate"`
	SumCheck  int `json:"sum_check"`

	// Message is set when a store-level integrity conflict rolled the
	// transaction back; Conflict carries the offending trade for diagnosis.
	Message  string        `json:"message,omitempty"`
	Conflict *models.Trade `json:"conflict,omitempty"`
}

// Engine implements the reconciliation pass for one (user, exchange)
// partition. Concurrent passes over the same partition are not safe: the
// classification step is read-then-write, so callers must serialize per
// partition.
type Engine struct {
	store     Store
	chunkSize int
}

func NewEngine(store Store) *Engine {
	return &Engine{store: store, chunkSize: DefaultChunkSize}
}

// batchSeenKey identifies a trade within the incoming batch for internal
// repeat detection.
type batchSeenKey struct {
	id      string
	utcTime time.Time
}

// Reconcile classifies every incoming trade as insert, placeholder update, or
// duplicate, then persists inserts and updates in one transaction. A
// uniqueness violation at commit time is converted into a structured Result
// with a message instead of an error, since duplicate-key races between
// concurrent callers are an expected occasional outcome that must stay
// diagnosable.
func (e *Engine) Reconcile(ctx context.Context, exchange, user string, trades []models.Trade) (*Result, error) {
	log := logger.FromContext(ctx)
	result := &Result{Fetched: len(trades)}
	if len(trades) == 0 {
		return result, nil
	}

	existingKeys, emptyIDs, nonEmptyIDs, err := e.probe(ctx, exchange, user, trades)
	if err != nil {
		return nil, err
	}

	var inserts, updates []models.Trade
	seen := make(map[batchSeenKey]struct{}, len(trades))
	for _, t := range trades {
		switch {
		case contains(existingKeys, t.Key()):
			result.Duplicate++
		case containsID(emptyIDs, t.ID):
			if t.OriginalID == "" {
				// Placeholder re-seen; nothing new to learn.
				result.Duplicate++
			} else {
				updates = append(updates, t)
				result.Updated++
				// The placeholder is spoken for; further batch rows with
				// this id must not upgrade it a second time.
				delete(emptyIDs, t.ID)
				nonEmptyIDs[t.ID] = struct{}{}
			}
		case containsID(nonEmptyIDs, t.ID):
			// The id is taken by an unrelated confirmed trade; refusing the
			// write protects that record from corruption.
			result.Duplicate++
		case containsSeen(seen, batchSeenKey{t.ID, t.UTCTime}):
			result.Duplicate++
		default:
			inserts = append(inserts, t)
			result.Inserted++
		}
		seen[batchSeenKey{t.ID, t.UTCTime}] = struct{}{}
	}

	err = e.store.InTx(ctx, func(ops model.TxOps) error {
		if err := ops.BulkInsert(ctx, inserts); err != nil {
			return err
		}
		for _, u := range updates {
			if err := ops.UpdatePlaceholder(ctx, exchange, user, u.ID, u.OriginalID, u.UTCTime); err != nil {
				return err
			}
		}
		return nil
	})
	var conflict *model.ConflictError
	if errors.As(err, &conflict) {
		sample := conflict.Trade
		result.Message = fmt.Sprintf("data integrity conflict, transaction rolled back: %v", conflict)
		result.Conflict = &sample
		result.SumCheck = result.Inserted + result.Updated + result.Duplicate
		log.Warn("Reconciliation hit integrity conflict",
			"exchange", exchange, "user", user,
			"attemptedInserts", result.Inserted, "attemptedUpdates", result.Updated,
			"duplicates", result.Duplicate, "conflictID", sample.ID)
		return result, nil
	}
	if errors.Is(err, model.ErrPlaceholderMissing) {
		// The placeholder an update targeted is gone, so the batch's probe
		// answers are stale and this pass cannot be trusted.
		return nil, errs.New(exchange, errs.CodeConflict,
			errs.WithMessage("placeholder upgraded concurrently, reconciliation aborted"),
			errs.WithCause(err))
	}
	if err != nil {
		return nil, fmt.Errorf("persisting reconciled trades: %w", err)
	}

	result.SumCheck = result.Inserted + result.Updated + result.Duplicate
	if result.SumCheck != result.Fetched {
		log.Error("Reconciliation sum-check mismatch",
			"exchange", exchange, "user", user,
			"fetched", result.Fetched, "sumCheck", result.SumCheck)
	} else {
		log.Info("Reconciliation pass complete",
			"exchange", exchange, "user", user,
			"fetched", result.Fetched, "inserted", result.Inserted,
			"updated", result.Updated, "duplicate", result.Duplicate)
	}
	return result, nil
}

// probe queries the store in bounded-size chunks for the batch's composite
// keys and bare ids.
func (e *Engine) probe(ctx context.Context, exchange, user string, trades []models.Trade) (
	map[models.TradeKey]struct{}, map[string]struct{}, map[string]struct{}, error,
) {
	keySet := make(map[models.TradeKey]struct{}, len(trades))
	idSet := make(map[string]struct{}, len(trades))
	var keys []models.TradeKey
	var ids []string
	for _, t := range trades {
		if _, ok := keySet[t.Key()]; !ok {
			keySet[t.Key()] = struct{}{}
			keys = append(keys, t.Key())
		}
		if _, ok := idSet[t.ID]; !ok {
			idSet[t.ID] = struct{}{}
			ids = append(ids, t.ID)
		}
	}

	existingKeys := make(map[models.TradeKey]struct{})
	for _, chunk := range utils.Chunked(keys, e.chunkSize) {
		found, err := e.store.ExistingKeys(ctx, exchange, user, chunk)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("probing existing keys: %w", err)
		}
		for k := range found {
			existingKeys[k] = struct{}{}
		}
	}

	emptyIDs := make(map[string]struct{})
	nonEmptyIDs := make(map[string]struct{})
	for _, chunk := range utils.Chunked(ids, e.chunkSize) {
		empty, nonEmpty, err := e.store.ExistingIDsSplitByOriginal(ctx, exchange, user, chunk)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("probing existing ids: %w", err)
		}
		for id := range empty {
			emptyIDs[id] = struct{}{}
		}
		for id := range nonEmpty {
			nonEmptyIDs[id] = struct{}{}
		}
	}
	return existingKeys, emptyIDs, nonEmptyIDs, nil
}

func contains(set map[models.TradeKey]struct{}, key models.TradeKey) bool {
	_, ok := set[key]
	return ok
}

func containsID(set map[string]struct{}, id string) bool {
	_, ok := set[id]
	return ok
}

func containsSeen(set map[batchSeenKey]struct{}, key batchSeenKey) bool {
	_, ok := set[key]
	return ok
}
