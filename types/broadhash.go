package types

import (
	"strings"

	"github.com/Leasehold/leasehold/crypto"
)

// BroadhashWindow is the number of trailing block ids folded into a
// broadhash.
const BroadhashWindow = 5

// ComputeBroadhash hashes the concatenation of the last BroadhashWindow
// block ids, most recent first, exactly as the round-trip
// property expects: "Broadhash recomputed from the last 5 block ids at
// any time equals blocks.broadhash."
func ComputeBroadhash(lastBlockIDs []string) string {
	n := len(lastBlockIDs)
	if n > BroadhashWindow {
		n = BroadhashWindow
	}
	return crypto.HashHex([]byte(strings.Join(lastBlockIDs[:n], "")))
}
