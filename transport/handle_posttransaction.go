package transport

import (
	"github.com/Leasehold/leasehold/chainerrors"
	"github.com/Leasehold/leasehold/types"
)

// PostTransaction is the single synchronous transaction ingest path
// used by clients submitting directly (as opposed to peer gossip). It
// validates, adds to the pool, and processes it unconfirmed in one call.
func (t *Transport) PostTransaction(peerID string, tx *types.Transaction) (string, error) {
	if err := validateTransactionSchema(tx); err != nil {
		return "", t.penalize(peerID, "invalid transaction schema")
	}

	if err := t.cfg.Pool.Add(tx, false); err != nil {
		return "", chainerrors.NewInvalidTransactionError(tx.ID, err)
	}
	if err := t.cfg.Pool.ProcessUnconfirmedTransaction(tx, true); err != nil {
		return "", chainerrors.NewInvalidTransactionError(tx.ID, err)
	}

	return tx.ID, nil
}
