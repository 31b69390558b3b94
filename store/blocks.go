package store

import (
	"github.com/jinzhu/gorm"

	"github.com/Leasehold/leasehold/chainerrors"
	"github.com/Leasehold/leasehold/types"
)

// GetLastBlock returns the highest-height committed block. Implements
// blocks.Store.
func (s *Store) GetLastBlock() (*types.Block, bool, error) {
	var row blockRow
	err := s.db.Order("height desc").First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, chainerrors.NewPersistenceError("loading last block", err)
	}
	block, err := s.hydrateBlock(row)
	if err != nil {
		return nil, false, err
	}
	return block, true, nil
}

// SaveBlock commits block, its transactions, and every account delta in a
// single transaction. Implements blocks.Store.
func (s *Store) SaveBlock(block *types.Block, accountDeltas map[string]*types.Account) error {
	tx := s.db.Begin()
	if tx.Error != nil {
		return chainerrors.NewPersistenceError("beginning save transaction", tx.Error)
	}

	if err := tx.Create(fromBlock(block)).Error; err != nil {
		tx.Rollback()
		return chainerrors.NewPersistenceError("saving block", err)
	}
	for _, t := range block.Transactions {
		if err := tx.Create(fromTransaction(t, block.ID)).Error; err != nil {
			tx.Rollback()
			return chainerrors.NewPersistenceError("saving transaction "+t.ID, err)
		}
	}
	if err := upsertAccounts(tx, accountDeltas); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit().Error; err != nil {
		return chainerrors.NewPersistenceError("committing save transaction", err)
	}
	return nil
}

// DeleteBlock removes block, its transactions, and applies the reverted
// account deltas in a single transaction. Implements blocks.Store.
func (s *Store) DeleteBlock(block *types.Block, accountDeltas map[string]*types.Account) error {
	tx := s.db.Begin()
	if tx.Error != nil {
		return chainerrors.NewPersistenceError("beginning delete transaction", tx.Error)
	}

	if err := tx.Where("block_id = ?", block.ID).Delete(transactionRow{}).Error; err != nil {
		tx.Rollback()
		return chainerrors.NewPersistenceError("deleting transactions for block "+block.ID, err)
	}
	if err := tx.Delete(&blockRow{ID: block.ID}).Error; err != nil {
		tx.Rollback()
		return chainerrors.NewPersistenceError("deleting block "+block.ID, err)
	}
	if err := upsertAccounts(tx, accountDeltas); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit().Error; err != nil {
		return chainerrors.NewPersistenceError("committing delete transaction", err)
	}
	return nil
}

func upsertAccounts(tx *gorm.DB, deltas map[string]*types.Account) error {
	for addr, acc := range deltas {
		row := fromAccount(acc)
		var existing accountRow
		err := tx.Where("address = ?", addr).First(&existing).Error
		switch err {
		case gorm.ErrRecordNotFound:
			if err := tx.Create(row).Error; err != nil {
				return chainerrors.NewPersistenceError("creating account "+addr, err)
			}
		case nil:
			if err := tx.Model(&accountRow{}).Where("address = ?", addr).Updates(row).Error; err != nil {
				return chainerrors.NewPersistenceError("updating account "+addr, err)
			}
		default:
			return chainerrors.NewPersistenceError("loading account "+addr, err)
		}
	}
	return nil
}

// GetBlock returns the block with id, if any. Implements blocks.Store.
func (s *Store) GetBlock(id string) (*types.Block, bool, error) {
	var row blockRow
	err := s.db.Where("id = ?", id).First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, chainerrors.NewPersistenceError("loading block "+id, err)
	}
	block, err := s.hydrateBlock(row)
	if err != nil {
		return nil, false, err
	}
	return block, true, nil
}

// GetBlocksAfter returns up to limit blocks committed after lastID, in
// height order. Implements blocks.Store.
func (s *Store) GetBlocksAfter(lastID string, limit int) ([]*types.Block, error) {
	var afterHeight uint64
	if lastID != "" {
		var last blockRow
		if err := s.db.Where("id = ?", lastID).First(&last).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return nil, chainerrors.NewValidationError("unknown block "+lastID, nil)
			}
			return nil, chainerrors.NewPersistenceError("loading block "+lastID, err)
		}
		afterHeight = last.Height
	}

	var rows []blockRow
	if err := s.db.Where("height > ?", afterHeight).Order("height asc").Limit(limit).Find(&rows).Error; err != nil {
		return nil, chainerrors.NewPersistenceError("loading blocks after "+lastID, err)
	}
	return s.hydrateBlocks(rows)
}

// GetBlockAtHeight returns the block at height, if any. Implements
// blocks.Store.
func (s *Store) GetBlockAtHeight(height uint64) (*types.Block, bool, error) {
	var row blockRow
	err := s.db.Where("height = ?", height).First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, chainerrors.NewPersistenceError("loading block at height", err)
	}
	block, err := s.hydrateBlock(row)
	if err != nil {
		return nil, false, err
	}
	return block, true, nil
}

// GetMaxHeight returns the highest committed block height. Implements
// blocks.Store.
func (s *Store) GetMaxHeight() (uint64, error) {
	var row blockRow
	err := s.db.Order("height desc").First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, chainerrors.NewPersistenceError("loading max height", err)
	}
	return row.Height, nil
}

// GetBlocksBetweenHeights returns up to limit blocks with
// fromHeight < height <= toHeight. Implements blocks.Store.
func (s *Store) GetBlocksBetweenHeights(fromHeight, toHeight uint64, limit int) ([]*types.Block, error) {
	var rows []blockRow
	err := s.db.Where("height > ? AND height <= ?", fromHeight, toHeight).
		Order("height asc").Limit(limit).Find(&rows).Error
	if err != nil {
		return nil, chainerrors.NewPersistenceError("loading blocks between heights", err)
	}
	return s.hydrateBlocks(rows)
}

// GetLastBlockAtOrBeforeTimestamp returns the latest committed block at or
// before timestamp, if any. Implements blocks.Store.
func (s *Store) GetLastBlockAtOrBeforeTimestamp(timestamp uint64) (*types.Block, bool, error) {
	var row blockRow
	err := s.db.Where("timestamp <= ?", timestamp).Order("timestamp desc").First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, chainerrors.NewPersistenceError("loading last block at or before timestamp", err)
	}
	block, err := s.hydrateBlock(row)
	if err != nil {
		return nil, false, err
	}
	return block, true, nil
}

// RecentBlockIDs returns up to limit of the most recently committed block
// ids, newest first. Implements blocks.Store.
func (s *Store) RecentBlockIDs(limit int) ([]string, error) {
	var rows []blockRow
	if err := s.db.Order("height desc").Limit(limit).Select("id").Find(&rows).Error; err != nil {
		return nil, chainerrors.NewPersistenceError("loading recent block ids", err)
	}
	ids := make([]string, len(rows))
	for i, row := range rows {
		ids[i] = row.ID
	}
	return ids, nil
}

// FindCommonBlock returns the first of candidateIDs, in order, that names
// a locally known block. Implements transport.CommonFinder.
func (s *Store) FindCommonBlock(candidateIDs []string) (string, bool, error) {
	for _, id := range candidateIDs {
		var count int
		if err := s.db.Model(&blockRow{}).Where("id = ?", id).Count(&count).Error; err != nil {
			return "", false, chainerrors.NewPersistenceError("checking candidate block "+id, err)
		}
		if count > 0 {
			return id, true, nil
		}
	}
	return "", false, nil
}

func (s *Store) hydrateBlock(row blockRow) (*types.Block, error) {
	block := toBlock(row)
	var txRows []transactionRow
	if err := s.db.Where("block_id = ?", row.ID).Find(&txRows).Error; err != nil {
		return nil, chainerrors.NewPersistenceError("loading transactions for block "+row.ID, err)
	}
	block.Transactions = make([]*types.Transaction, len(txRows))
	for i, txRow := range txRows {
		block.Transactions[i] = toTransaction(txRow)
	}
	return block, nil
}

func (s *Store) hydrateBlocks(rows []blockRow) ([]*types.Block, error) {
	blocks := make([]*types.Block, len(rows))
	for i, row := range rows {
		block, err := s.hydrateBlock(row)
		if err != nil {
			return nil, err
		}
		blocks[i] = block
	}
	return blocks, nil
}
