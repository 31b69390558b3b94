package transport

import "github.com/Leasehold/leasehold/types"

// PostTransactions ingests a batch of transactions shared by a peer,
// each bundled (broadcast-batched rather than re-announced immediately).
func (t *Transport) PostTransactions(peerID string, txs []*types.Transaction) error {
	for _, tx := range txs {
		if err := validateTransactionSchema(tx); err != nil {
			return t.penalize(peerID, "invalid transaction schema")
		}
		if err := t.cfg.Pool.Add(tx, true); err != nil {
			log.Debugf("rejecting transaction %s from %s: %v", tx.ID, peerID, err)
		}
	}
	return nil
}
