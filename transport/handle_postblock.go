package transport

import "github.com/Leasehold/leasehold/types"

// PostBlock passes an inbound block through to receiveBlockFromNetwork,
// unless the node is mid-sync (sync owns catch-up ordering and would
// race with an interleaved network block).
func (t *Transport) PostBlock(peerID string, block *types.Block) error {
	if t.cfg.Sync.Syncing() {
		log.Debugf("ignoring postBlock from %s while syncing", peerID)
		return nil
	}

	if err := validateBlockSchema(block); err != nil {
		return t.penalize(peerID, "invalid block schema")
	}

	delegates, err := t.cfg.Delegates.CurrentDelegates()
	if err != nil {
		return err
	}

	return t.cfg.Blocks.ReceiveBlockFromNetwork(block, delegates)
}
