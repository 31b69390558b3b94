package store

import (
	"crypto/ed25519"

	"github.com/jinzhu/gorm"

	"github.com/Leasehold/leasehold/chainerrors"
	"github.com/Leasehold/leasehold/types"
)

// GetAccount returns the account at address, if any. Implements
// blocks.Store and txpool.AccountSource.
func (s *Store) GetAccount(address string) (*types.Account, bool, error) {
	var row accountRow
	err := s.db.Where("address = ?", address).First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, chainerrors.NewPersistenceError("loading account "+address, err)
	}
	return toAccount(row), true, nil
}

// TopDelegates returns the limit highest-weighted delegate accounts.
// atHeight is accepted for interface compatibility with a future
// height-indexed vote snapshot; this store keeps only current weights.
// Implements rounds.AccountSource.
func (s *Store) TopDelegates(atHeight uint64, limit int) ([]*types.Account, error) {
	var rows []accountRow
	err := s.db.Where("is_delegate = ?", true).Order("vote_weight desc, address asc").Limit(limit).Find(&rows).Error
	if err != nil {
		return nil, chainerrors.NewPersistenceError("loading top delegates", err)
	}
	accounts := make([]*types.Account, len(rows))
	for i, row := range rows {
		accounts[i] = toAccount(row)
	}
	return accounts, nil
}

// RecordRoundRewards upserts one round_rewards row per rewarded address.
// Implements rounds.RewardStore.
func (s *Store) RecordRoundRewards(round uint64, rewards map[string]uint64) error {
	tx := s.db.Begin()
	if tx.Error != nil {
		return chainerrors.NewPersistenceError("beginning reward transaction", tx.Error)
	}
	for address, amount := range rewards {
		row := roundRewardRow{Round: round, Address: address, Amount: amount}
		if err := tx.Save(&row).Error; err != nil {
			tx.Rollback()
			return chainerrors.NewPersistenceError("recording reward for "+address, err)
		}
	}
	if err := tx.Commit().Error; err != nil {
		return chainerrors.NewPersistenceError("committing reward transaction", err)
	}
	return nil
}

// CreditAccount adds amount to address's balance, creating the account
// row if it doesn't exist yet. Implements blocks.Store, used by
// rounds.SettleRound's applyFee callback when a round closes.
func (s *Store) CreditAccount(address string, amount uint64) error {
	tx := s.db.Begin()
	if tx.Error != nil {
		return chainerrors.NewPersistenceError("beginning credit transaction", tx.Error)
	}

	var row accountRow
	err := tx.Where("address = ?", address).First(&row).Error
	if err == gorm.ErrRecordNotFound {
		row = accountRow{Address: address}
	} else if err != nil {
		tx.Rollback()
		return chainerrors.NewPersistenceError("loading account "+address, err)
	}

	row.Balance += int64(amount)
	if err := tx.Save(&row).Error; err != nil {
		tx.Rollback()
		return chainerrors.NewPersistenceError("crediting account "+address, err)
	}
	if err := tx.Commit().Error; err != nil {
		return chainerrors.NewPersistenceError("committing credit transaction", err)
	}
	return nil
}

// MultisigWalletMembers returns the member addresses of the multisig
// wallet at walletAddress. Implements chain.WalletSource.
func (s *Store) MultisigWalletMembers(walletAddress string) ([]string, error) {
	var row accountRow
	err := s.db.Where("address = ?", walletAddress).First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, chainerrors.NewPersistenceError("loading wallet "+walletAddress, err)
	}
	return multisigMemberAddresses(decodeMemberKeys(row.MultisignaturesJSON)), nil
}

// MinMultisigRequiredSignatures returns the wallet's configured signature
// threshold. Implements chain.WalletSource.
func (s *Store) MinMultisigRequiredSignatures(walletAddress string) (int, bool, error) {
	var row accountRow
	err := s.db.Where("address = ?", walletAddress).First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, chainerrors.NewPersistenceError("loading wallet "+walletAddress, err)
	}
	return row.Multimin, true, nil
}

// MultisigWalletMemberKeys returns the member public keys of the
// multisig wallet at walletAddress. Implements chain.WalletSource.
func (s *Store) MultisigWalletMemberKeys(walletAddress string) ([]ed25519.PublicKey, error) {
	var row accountRow
	err := s.db.Where("address = ?", walletAddress).First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, chainerrors.NewPersistenceError("loading wallet "+walletAddress, err)
	}
	return decodeMemberKeys(row.MultisignaturesJSON), nil
}

func decodeMemberKeys(data []byte) []ed25519.PublicKey {
	return toAccount(accountRow{MultisignaturesJSON: data}).Multisignatures
}
