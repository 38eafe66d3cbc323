// Package identity derives deterministic content-hash identifiers for trades
// that arrive without a stable exchange-assigned id.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/goccy/go-json"
)

// Hash computes a deterministic digest over the given stringified trade
// fields. The fields are serialized in canonical form (key-sorted, no
// whitespace) so that identical values always produce the identical digest
// regardless of map insertion order.
func Hash(fields map[string]string) string {
	// json.Marshal sorts map keys and emits no insignificant whitespace,
	// which is exactly the canonical form the digest is defined over.
	payload, err := json.Marshal(fields)
	if err != nil {
		// A map[string]string cannot fail to marshal; keep the invariant loud.
		panic(fmt.Sprintf("identity: marshal hash fields: %v", err))
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
