// Package transport implements the inbound peer RPC surface: postBlock,
// postTransaction(s), blocks, blocksCommon, getTransactions. Each handler
// lives in its own file, one responsibility per file, matching the rest
// of this codebase's RPC handler layout.
package transport

import (
	"crypto/ed25519"

	"github.com/Leasehold/leasehold/chainerrors"
	"github.com/Leasehold/leasehold/config"
	"github.com/Leasehold/leasehold/types"
)

// MaxBlocksPerFetch bounds a single blocks() response.
const MaxBlocksPerFetch = 34

// MaxCommonCandidates bounds a single blocksCommon request.
const MaxCommonCandidates = 1000

// BlocksEngine is the narrow chain-state-machine surface Transport needs.
type BlocksEngine interface {
	ReceiveBlockFromNetwork(block *types.Block, delegates []ed25519.PublicKey) error
	LoadBlocksDataWS(lastID string, limit int) ([]*types.Block, error)
}

// CommonFinder answers blocksCommon: the first of candidateIDs, in the
// order given, that matches a row in the store.
type CommonFinder interface {
	FindCommonBlock(candidateIDs []string) (blockID string, found bool, err error)
}

// DelegateSource resolves the delegate list an inbound block's slot
// assignment is checked against.
type DelegateSource interface {
	CurrentDelegates() ([]ed25519.PublicKey, error)
}

// Pool is the narrow txpool surface Transport needs.
type Pool interface {
	Add(tx *types.Transaction, bundled bool) error
	ProcessUnconfirmedTransaction(tx *types.Transaction, broadcast bool) error
	GetMergedTransactionList(reverse bool, limit int) []*types.Transaction
}

// SyncState reports whether the node is mid-sync, which pauses inbound
// block ingestion (sync owns the chain's catch-up ordering).
type SyncState interface {
	Syncing() bool
}

// PeerPenalizer is the network collaborator's misbehavior-accounting
// hook: a peer that sends a schema-invalid payload is a candidate for a
// penalty, which may eventually disconnect it.
type PeerPenalizer interface {
	Penalize(peerID string, reason string)
}

// Config bundles Transport's collaborators and tunables.
type Config struct {
	Params    *config.Params
	Blocks    BlocksEngine
	Common    CommonFinder
	Delegates DelegateSource
	Pool      Pool
	Sync      SyncState
	Penalizer PeerPenalizer
}

// Transport is the inbound peer RPC surface.
type Transport struct {
	cfg Config
}

// New builds a Transport bound to cfg.
func New(cfg Config) *Transport {
	return &Transport{cfg: cfg}
}

// penalize records a schema violation against peerID and returns the
// ValidationError the handler should surface to its caller.
func (t *Transport) penalize(peerID, reason string) error {
	if t.cfg.Penalizer != nil {
		t.cfg.Penalizer.Penalize(peerID, reason)
	}
	return chainerrors.NewValidationError(reason, nil)
}

func validateBlockSchema(block *types.Block) error {
	if block == nil {
		return chainerrors.NewValidationError("block is nil", nil)
	}
	if block.ID == "" || block.GeneratorPublicKey == nil || block.BlockSignature == nil {
		return chainerrors.NewValidationError("block missing required fields", nil)
	}
	return nil
}

func validateTransactionSchema(tx *types.Transaction) error {
	if tx == nil {
		return chainerrors.NewValidationError("transaction is nil", nil)
	}
	if tx.ID == "" || tx.SenderPublicKey == nil || tx.Signature == nil {
		return chainerrors.NewValidationError("transaction missing required fields", nil)
	}
	return nil
}
