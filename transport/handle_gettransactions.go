package transport

import "github.com/Leasehold/leasehold/types"

// GetTransactions returns up to MaxSharedTransactions ready transactions
// from the pool, for a peer building its own shared-pool view.
func (t *Transport) GetTransactions() []*types.Transaction {
	return t.cfg.Pool.GetMergedTransactionList(false, t.cfg.Params.MaxSharedTransactions)
}
