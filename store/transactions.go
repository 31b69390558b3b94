package store

import (
	"github.com/Leasehold/leasehold/chain"
	"github.com/Leasehold/leasehold/chainerrors"
)

// InboundTransactions returns up to limit transactions received by
// walletAddress at or after fromTimestamp, newest first. Implements
// chain.TransactionQuery.
func (s *Store) InboundTransactions(walletAddress string, fromTimestamp uint64, limit int) ([]chain.WalletTransaction, error) {
	return s.queryTransactions("recipient_id = ? AND timestamp >= ?", walletAddress, fromTimestamp, limit)
}

// OutboundTransactions returns up to limit transactions sent by
// walletAddress at or after fromTimestamp, newest first. Implements
// chain.TransactionQuery.
func (s *Store) OutboundTransactions(walletAddress string, fromTimestamp uint64, limit int) ([]chain.WalletTransaction, error) {
	return s.queryTransactions("sender_id = ? AND timestamp >= ?", walletAddress, fromTimestamp, limit)
}

// InboundTransactionsFromBlock returns every transaction received by
// walletAddress within blockID. Implements chain.TransactionQuery.
func (s *Store) InboundTransactionsFromBlock(walletAddress, blockID string) ([]chain.WalletTransaction, error) {
	return s.queryTransactionsInBlock("recipient_id = ? AND block_id = ?", walletAddress, blockID)
}

// OutboundTransactionsFromBlock returns every transaction sent by
// walletAddress within blockID. Implements chain.TransactionQuery.
func (s *Store) OutboundTransactionsFromBlock(walletAddress, blockID string) ([]chain.WalletTransaction, error) {
	return s.queryTransactionsInBlock("sender_id = ? AND block_id = ?", walletAddress, blockID)
}

func (s *Store) queryTransactions(where string, address string, fromTimestamp uint64, limit int) ([]chain.WalletTransaction, error) {
	var rows []transactionRow
	err := s.db.Where(where, address, fromTimestamp).Order("timestamp desc").Limit(limit).Find(&rows).Error
	if err != nil {
		return nil, chainerrors.NewPersistenceError("querying transactions for "+address, err)
	}
	return toWalletTransactions(rows), nil
}

func (s *Store) queryTransactionsInBlock(where string, address, blockID string) ([]chain.WalletTransaction, error) {
	var rows []transactionRow
	err := s.db.Where(where, address, blockID).Order("timestamp desc").Find(&rows).Error
	if err != nil {
		return nil, chainerrors.NewPersistenceError("querying transactions for "+address+" in block "+blockID, err)
	}
	return toWalletTransactions(rows), nil
}

func toWalletTransactions(rows []transactionRow) []chain.WalletTransaction {
	out := make([]chain.WalletTransaction, len(rows))
	for i, row := range rows {
		out[i] = chain.WalletTransaction{
			Transaction: toTransaction(row),
			BlockID:     row.BlockID,
		}
	}
	return out
}
