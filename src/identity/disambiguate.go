package identity

import (
	"fmt"
	"time"

	"github.com/WisniowskiMariusz/CryptoPortfolioTracker/src/logger"
	"github.com/WisniowskiMariusz/CryptoPortfolioTracker/src/models"
)

// MaxCollisionBumps bounds the one-second timestamp perturbation applied when
// two normalized rows hash identically. Exceeding it fails the import rather
// than silently merging distinct trades.
const MaxCollisionBumps = 128

// HashTrade returns the content hash of the trade's identity fields.
func HashTrade(t models.Trade) string {
	return Hash(t.HashFields())
}

// AssignHash computes the trade's content hash, disambiguating batch-local
// collisions by bumping the timestamp one second per collision. Each bump is
// logged as a warning; this is a best-effort fallback for sources that truly
// contain field-identical rows, not a correctness guarantee. The returned
// trade carries the (possibly bumped) timestamp and the final hash in ID.
func AssignHash(t models.Trade, used map[string]struct{}) (models.Trade, error) {
	hash := HashTrade(t)
	bumps := 0
	for {
		if _, collides := used[hash]; !collides {
			break
		}
		bumps++
		if bumps > MaxCollisionBumps {
			return models.Trade{}, fmt.Errorf(
				"unable to disambiguate trade at %s after %d timestamp bumps",
				t.UTCTime.Format(models.HashTimeLayout), MaxCollisionBumps)
		}
		t.UTCTime = t.UTCTime.Add(time.Second)
		hash = HashTrade(t)
		logger.L.Warn("Duplicate trade content detected, bumped timestamp by one second",
			"adjustedTime", t.UTCTime.Format(models.HashTimeLayout), "bumps", bumps)
	}
	t.ID = hash
	used[hash] = struct{}{}
	return t, nil
}
