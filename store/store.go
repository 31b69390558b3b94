// Package store is the relational persistence layer: committed blocks,
// transactions and account balances, backed by gorm and migrated with
// golang-migrate at boot. It implements every storage-facing collaborator
// interface the chain components declare (blocks.Store,
// rounds.AccountSource/RewardStore, txpool.AccountSource,
// transport.CommonFinder, chain.WalletSource/TransactionQuery) against a
// single underlying SQL schema.
package store

import (
	"crypto/ed25519"
	"encoding/json"

	"github.com/jinzhu/gorm"
	_ "github.com/jinzhu/gorm/dialects/postgres"
	"github.com/golang-migrate/migrate/v4"
	migratepostgres "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/Leasehold/leasehold/chainerrors"
	"github.com/Leasehold/leasehold/crypto"
	"github.com/Leasehold/leasehold/types"
)

// Store wraps a gorm connection to the relational backing store.
type Store struct {
	db *gorm.DB
}

// New opens dsn, runs pending migrations from migrationsPath, and returns
// a ready Store. A migration failure is logged as a warning and does not
// stop New; only a failure to open the database is returned.
func New(dsn, migrationsPath string) (*Store, error) {
	if err := migrate2Up(dsn, migrationsPath); err != nil {
		log.Warnf("running migrations: %v", err)
	}

	db, err := gorm.Open("postgres", dsn)
	if err != nil {
		return nil, chainerrors.NewFatal("opening database", err)
	}
	db.LogMode(false)

	return &Store{db: db}, nil
}

func migrate2Up(dsn, migrationsPath string) error {
	db, err := gorm.Open("postgres", dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	driver, err := migratepostgres.WithInstance(db.DB(), &migratepostgres.Config{})
	if err != nil {
		return err
	}
	m, err := migrate.NewWithDatabaseInstance("file://"+migrationsPath, "postgres", driver)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}

// Close releases the underlying database handle. Satisfies chain.Closer.
func (s *Store) Close() error {
	return s.db.Close()
}

func fromBlock(block *types.Block) blockRow {
	return blockRow{
		ID:                   block.ID,
		Height:               block.Height,
		PreviousBlockID:      block.PreviousBlockID,
		Timestamp:            block.Timestamp,
		GeneratorPublicKey:   []byte(block.GeneratorPublicKey),
		BlockSignature:       block.BlockSignature,
		PayloadHash:          block.PayloadHash,
		PayloadLength:        block.PayloadLength,
		NumberOfTransactions: block.NumberOfTransactions,
		TotalAmount:          block.TotalAmount,
		TotalFee:             block.TotalFee,
		Reward:               block.Reward,
	}
}

func toBlock(row blockRow) *types.Block {
	return &types.Block{
		ID:                   row.ID,
		Height:               row.Height,
		PreviousBlockID:      row.PreviousBlockID,
		Timestamp:            row.Timestamp,
		GeneratorPublicKey:   ed25519.PublicKey(row.GeneratorPublicKey),
		BlockSignature:       row.BlockSignature,
		PayloadHash:          row.PayloadHash,
		PayloadLength:        row.PayloadLength,
		NumberOfTransactions: row.NumberOfTransactions,
		TotalAmount:          row.TotalAmount,
		TotalFee:             row.TotalFee,
		Reward:               row.Reward,
	}
}

func assetData(asset types.Asset) []byte {
	transfer, ok := asset.(*types.TransferAsset)
	if !ok || transfer == nil {
		return nil
	}
	data, _ := json.Marshal(transfer)
	return data
}

func assetFromData(transactionType types.TransactionType, data []byte) types.Asset {
	if transactionType != types.TypeTransfer {
		return nil
	}
	asset := &types.TransferAsset{}
	if len(data) > 0 {
		_ = json.Unmarshal(data, asset)
	}
	return asset
}

func fromTransaction(tx *types.Transaction, blockID string) transactionRow {
	signatures, _ := json.Marshal(tx.Signatures)
	return transactionRow{
		ID:              tx.ID,
		BlockID:         blockID,
		Type:            byte(tx.Type),
		SenderPublicKey: []byte(tx.SenderPublicKey),
		SenderID:        tx.SenderID,
		RecipientID:     tx.RecipientID,
		Amount:          tx.Amount,
		Fee:             tx.Fee,
		Timestamp:       tx.Timestamp,
		Signature:       tx.Signature,
		SignSignature:   tx.SignSignature,
		SignaturesJSON:  signatures,
		AssetData:       assetData(tx.Asset),
	}
}

func toTransaction(row transactionRow) *types.Transaction {
	var signatures []types.SignerSignature
	if len(row.SignaturesJSON) > 0 {
		_ = json.Unmarshal(row.SignaturesJSON, &signatures)
	}
	return &types.Transaction{
		ID:              row.ID,
		Type:            types.TransactionType(row.Type),
		SenderPublicKey: ed25519.PublicKey(row.SenderPublicKey),
		SenderID:        row.SenderID,
		RecipientID:     row.RecipientID,
		Amount:          row.Amount,
		Fee:             row.Fee,
		Timestamp:       row.Timestamp,
		Signature:       row.Signature,
		SignSignature:   row.SignSignature,
		Signatures:      signatures,
		Asset:           assetFromData(types.TransactionType(row.Type), row.AssetData),
	}
}

func fromAccount(acc *types.Account) accountRow {
	multisig, _ := json.Marshal(acc.Multisignatures)
	return accountRow{
		Address:             acc.Address,
		PublicKey:           []byte(acc.PublicKey),
		Balance:             acc.Balance,
		UBalance:            acc.UBalance,
		IsDelegate:          acc.IsDelegate,
		VoteWeight:          acc.VoteWeight,
		Multimin:            acc.Multimin,
		Multilifetime:       acc.Multilifetime,
		MultisignaturesJSON: multisig,
	}
}

func toAccount(row accountRow) *types.Account {
	var multisig []ed25519.PublicKey
	if len(row.MultisignaturesJSON) > 0 {
		_ = json.Unmarshal(row.MultisignaturesJSON, &multisig)
	}
	return &types.Account{
		Address:         row.Address,
		PublicKey:       ed25519.PublicKey(row.PublicKey),
		Balance:         row.Balance,
		UBalance:        row.UBalance,
		IsDelegate:      row.IsDelegate,
		VoteWeight:      row.VoteWeight,
		Multimin:        row.Multimin,
		Multilifetime:   row.Multilifetime,
		Multisignatures: multisig,
	}
}

func multisigMemberAddresses(pubkeys []ed25519.PublicKey) []string {
	addresses := make([]string, len(pubkeys))
	for i, pub := range pubkeys {
		addresses[i] = crypto.DeriveAddress(pub)
	}
	return addresses
}
