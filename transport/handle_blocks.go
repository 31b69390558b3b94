package transport

import "github.com/Leasehold/leasehold/types"

// Blocks returns up to MaxBlocksPerFetch blocks following lastBlockID,
// for a peer's sync loader.
func (t *Transport) Blocks(lastBlockID string) ([]*types.Block, error) {
	return t.cfg.Blocks.LoadBlocksDataWS(lastBlockID, MaxBlocksPerFetch)
}
