// Package blocks implements the chain's state machine --
// append, delete, load, and receive-from-network -- the single place
// authoritative chain height advances.
package blocks

import (
	"crypto/ed25519"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/Leasehold/leasehold/chainerrors"
	"github.com/Leasehold/leasehold/config"
	"github.com/Leasehold/leasehold/crypto"
	"github.com/Leasehold/leasehold/rounds"
	"github.com/Leasehold/leasehold/slots"
	"github.com/Leasehold/leasehold/types"
)

// ErrBlockAhead is returned by ReceiveBlockFromNetwork when the incoming
// block is ahead of our tip and cannot be appended directly: the caller
// (normally Loader, via Chain) should trigger a sync.
var ErrBlockAhead = errors.New("block is ahead of local tip")

// Store is the persistence surface Blocks needs from the out-of-scope SQL
// store collaborator.
type Store interface {
	GetLastBlock() (*types.Block, bool, error)
	SaveBlock(block *types.Block, accountDeltas map[string]*types.Account) error
	DeleteBlock(block *types.Block, accountDeltas map[string]*types.Account) error
	GetBlock(id string) (*types.Block, bool, error)
	GetBlocksAfter(lastID string, limit int) ([]*types.Block, error)
	GetBlockAtHeight(height uint64) (*types.Block, bool, error)
	GetMaxHeight() (uint64, error)
	GetBlocksBetweenHeights(fromHeight, toHeight uint64, limit int) ([]*types.Block, error)
	GetLastBlockAtOrBeforeTimestamp(timestamp uint64) (*types.Block, bool, error)
	GetAccount(address string) (*types.Account, bool, error)
	RecentBlockIDs(limit int) ([]string, error)
	CreditAccount(address string, amount uint64) error
}

// Pool is the narrow txpool surface Blocks needs.
type Pool interface {
	OnConfirmedTransactions(txs []*types.Transaction)
	OnDeletedTransactions(txs []*types.Transaction)
}

// EventBus is the narrow publish surface Blocks needs.
type EventBus interface {
	Publish(topic string, payload interface{})
}

// Config bundles Blocks's collaborators and tunables.
type Config struct {
	Params *config.Params
	Slots  *slots.Slots
	Rounds *rounds.Rounds
	Store  Store
	Pool   Pool
	Events EventBus

	// CheckAllowedTransaction vets a transaction against the current tip
	// before it is allowed into a block. Nil means "always allowed".
	CheckAllowedTransaction func(tx *types.Transaction, lastBlock *types.Block) error
}

// Blocks is the chain state machine.
type Blocks struct {
	cfg Config

	mu          sync.RWMutex
	lastBlock   *types.Block
	lastReceipt time.Time
	broadhash   string
	recentIDs   []string // most-recent-first, bounded to BroadhashWindow

	state      stateHolder
	forgedSlot map[uint64]bool // allocated by New; nothing reads, writes or prunes it
}

// New builds a Blocks engine. Call LoadBlockChain before using it.
func New(cfg Config) *Blocks {
	return &Blocks{cfg: cfg, forgedSlot: make(map[uint64]bool)}
}

// LastBlock returns the current chain tip. Callers outside Sequence must
// tolerate it advancing between reads.
func (b *Blocks) LastBlock() *types.Block {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastBlock
}

// Broadhash returns the current broadhash.
func (b *Blocks) Broadhash() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.broadhash
}

// State returns the current chain-state-machine state.
func (b *Blocks) State() State {
	return b.state.get()
}

// IsStale reports whether the chain has not accepted a block within
// BlockReceiptTimeout.
func (b *Blocks) IsStale() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.lastReceipt.IsZero() {
		return true
	}
	return time.Since(b.lastReceipt) > b.cfg.Params.BlockReceiptTimeout
}

// LoadBlockChain loads (or initializes) the chain at boot. If the store is
// empty, genesis is persisted and applied. If rebuildUpToRound > 0, the
// chain is replayed from genesis, applying blocks one by one, until that
// round closes, at which point the caller should shut down. genesis must
// always be supplied so an empty store can bootstrap.
func (b *Blocks) LoadBlockChain(genesis *types.Block, rebuildUpToRound int) error {
	b.state.set(StateLoading)

	last, found, err := b.cfg.Store.GetLastBlock()
	if err != nil {
		return chainerrors.NewPersistenceError("loading last block", err)
	}

	if !found {
		if err := b.ApplyGenesisBlock(genesis); err != nil {
			return err
		}
		b.state.set(StateSynced)
		return nil
	}

	if rebuildUpToRound > 0 {
		b.state.set(StateRebuilding)
		return b.rebuild(genesis, rebuildUpToRound)
	}

	if err := b.refreshTipState(last); err != nil {
		return err
	}
	b.state.set(StateSynced)
	return nil
}

func (b *Blocks) rebuild(genesis *types.Block, upToRound int) error {
	if err := b.ApplyGenesisBlock(genesis); err != nil {
		return err
	}

	maxHeight, err := b.cfg.Store.GetMaxHeight()
	if err != nil {
		return chainerrors.NewPersistenceError("reading max height during rebuild", err)
	}

	for height := uint64(2); height <= maxHeight; height++ {
		block, found, err := b.cfg.Store.GetBlockAtHeight(height)
		if err != nil {
			return chainerrors.NewPersistenceError("loading block during rebuild", err)
		}
		if !found {
			break
		}
		if err := b.ProcessBlock(block, false); err != nil {
			return err
		}
		if int(b.cfg.Slots.CalcRound(height)) >= upToRound && b.cfg.Slots.IsLastHeightOfRound(height) {
			log.Infof("rebuild reached target round %d at height %d, stopping", upToRound, height)
			return nil
		}
	}
	return nil
}

func (b *Blocks) refreshTipState(last *types.Block) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastBlock = last
	b.lastReceipt = time.Now()

	ids, err := b.cfg.Store.RecentBlockIDs(types.BroadhashWindow)
	if err != nil {
		return chainerrors.NewPersistenceError("loading recent block ids", err)
	}
	b.recentIDs = ids
	b.broadhash = types.ComputeBroadhash(ids)
	return nil
}

// ApplyGenesisBlock persists and applies the genesis block directly,
// bypassing the normal verification pipeline (there is no previous block
// or slot to check it against).
func (b *Blocks) ApplyGenesisBlock(genesis *types.Block) error {
	deltas, err := b.applyTransactions(genesis, genesis.Transactions)
	if err != nil {
		return err
	}
	if err := b.cfg.Store.SaveBlock(genesis, deltas); err != nil {
		return chainerrors.NewPersistenceError("persisting genesis block", err)
	}

	b.mu.Lock()
	b.lastBlock = genesis
	b.lastReceipt = time.Now()
	b.recentIDs = []string{genesis.ID}
	b.broadhash = types.ComputeBroadhash(b.recentIDs)
	b.mu.Unlock()

	b.publish(EventNewBlock, NewBlockEvent{Block: genesis})
	return nil
}

// VerifyBlock checks every structural and consensus invariant that does
// not require mutating state: height continuity, slot/generator
// assignment, signature, and payload hash.
func (b *Blocks) VerifyBlock(block *types.Block, previous *types.Block, delegates []ed25519.PublicKey) error {
	if block.Height != previous.Height+1 {
		return chainerrors.NewConsensusError("block height does not follow previous block", nil)
	}
	if block.PreviousBlockID != previous.ID {
		return chainerrors.NewConsensusError("block previousBlockId does not match tip", nil)
	}

	ok, err := block.VerifySignature()
	if err != nil {
		return chainerrors.NewValidationError("verifying block signature", err)
	}
	if !ok {
		return chainerrors.NewConsensusError("invalid block signature", nil)
	}

	slot := b.cfg.Slots.GetSlotNumber(block.Timestamp)
	idx := b.cfg.Slots.DelegateIndexForSlot(slot)
	if int(idx) >= len(delegates) {
		return chainerrors.NewConsensusError("slot delegate index out of range", nil)
	}
	expected := delegates[idx]
	if string(expected) != string(block.GeneratorPublicKey) {
		return chainerrors.NewConsensusError("block generator not assigned to its slot", nil)
	}

	payloadHash, payloadLength, err := types.ComputePayloadHash(block.Transactions)
	if err != nil {
		return chainerrors.NewValidationError("recomputing payload hash", err)
	}
	if payloadHash != block.PayloadHash || payloadLength != block.PayloadLength {
		return chainerrors.NewConsensusError("payload hash/length mismatch", nil)
	}
	if block.PayloadLength > b.cfg.Params.MaxPayloadLength {
		return chainerrors.NewValidationError("payload too large", nil)
	}
	if len(block.Transactions) > b.cfg.Params.MaxTransactionsPerBlock {
		return chainerrors.NewValidationError("too many transactions", nil)
	}

	return nil
}

// ProcessBlock runs the append pipeline after verification: check and
// apply every transaction, persist atomically, advance tip, recompute
// broadhash, and emit events. It does not check the block's signature
// or payload hash itself; those checks live in VerifyBlock. The caller is responsible for
// having already run VerifyBlock when the block came from the network
// (ProcessBlock itself is also used directly by LoadBlockChain/rebuild,
// where the block was already committed once and is being replayed).
func (b *Blocks) ProcessBlock(block *types.Block, broadcast bool) error {
	previous := b.LastBlock()

	if b.cfg.CheckAllowedTransaction != nil {
		for _, tx := range block.Transactions {
			if err := b.cfg.CheckAllowedTransaction(tx, previous); err != nil {
				return chainerrors.NewStateError("transaction not allowed at current tip", err)
			}
		}
	}

	deltas, err := b.applyTransactions(block, block.Transactions)
	if err != nil {
		return err
	}

	if err := b.cfg.Store.SaveBlock(block, deltas); err != nil {
		return chainerrors.NewPersistenceError("persisting block "+block.ID, err)
	}

	b.mu.Lock()
	b.lastBlock = block
	b.lastReceipt = time.Now()
	b.recentIDs = prependBounded(b.recentIDs, block.ID, types.BroadhashWindow)
	newBroadhash := types.ComputeBroadhash(b.recentIDs)
	broadhashChanged := newBroadhash != b.broadhash
	b.broadhash = newBroadhash
	b.mu.Unlock()

	if b.cfg.Pool != nil {
		b.cfg.Pool.OnConfirmedTransactions(block.Transactions)
	}

	b.publish(EventNewBlock, NewBlockEvent{Block: block, Broadcast: broadcast})
	if broadhashChanged {
		b.publish(EventNewBroadhash, newBroadhash)
	}
	if broadcast {
		b.publish(EventBroadcastBlock, block)
	}

	if b.cfg.Slots.IsLastHeightOfRound(block.Height) {
		round := b.cfg.Slots.CalcRound(block.Height)
		log.Infof("round %d closed at height %d", round, block.Height)
		if err := b.settleRound(round, block.Height); err != nil {
			return err
		}
	}

	return nil
}

// settleRound gathers the blocks produced in round (which closed at
// lastHeight) and runs Rounds.SettleRound's fee split over them. Nil
// Rounds means round settlement isn't wired for this engine (some tests
// don't need it); that is not an error.
func (b *Blocks) settleRound(round, lastHeight uint64) error {
	if b.cfg.Rounds == nil {
		return nil
	}

	firstHeight := b.cfg.Slots.FirstHeightOfRound(round)
	blocksInRound, err := b.cfg.Store.GetBlocksBetweenHeights(firstHeight-1, lastHeight, int(b.cfg.Params.ActiveDelegates))
	if err != nil {
		return chainerrors.NewPersistenceError("loading round blocks", err)
	}

	err = b.cfg.Rounds.SettleRound(round, blocksInRound, func(generatorAddress string, amount uint64) error {
		return b.cfg.Store.CreditAccount(generatorAddress, amount)
	})
	if err != nil {
		return chainerrors.NewStateError("settling round", err)
	}
	return nil
}

// DeleteLastBlock reverses the current tip: undoes its transactions,
// removes the block row, and restores the previous tip.
func (b *Blocks) DeleteLastBlock() (*types.Block, error) {
	current := b.LastBlock()
	if current == nil || current.IsGenesis() {
		return nil, chainerrors.NewStateError("cannot delete genesis block", nil)
	}

	previous, found, err := b.cfg.Store.GetBlock(current.PreviousBlockID)
	if err != nil {
		return nil, chainerrors.NewPersistenceError("loading previous block", err)
	}
	if !found {
		return nil, chainerrors.NewStateError("previous block not found", nil)
	}

	deltas, err := b.undoTransactions(current, current.Transactions)
	if err != nil {
		return nil, err
	}

	if err := b.cfg.Store.DeleteBlock(current, deltas); err != nil {
		return nil, chainerrors.NewPersistenceError("deleting block "+current.ID, err)
	}

	b.mu.Lock()
	b.lastBlock = previous
	b.lastReceipt = time.Now()
	if len(b.recentIDs) > 0 {
		b.recentIDs = b.recentIDs[1:]
	}
	b.broadhash = types.ComputeBroadhash(b.recentIDs)
	b.mu.Unlock()

	if b.cfg.Pool != nil {
		b.cfg.Pool.OnDeletedTransactions(current.Transactions)
	}

	b.publish(EventDeleteBlock, current)
	return current, nil
}

// ReceiveBlockFromNetwork implements the three-way fork-handling decision
// for a block arriving from a peer. It must be called from within Sequence.
func (b *Blocks) ReceiveBlockFromNetwork(block *types.Block, delegates []ed25519.PublicKey) error {
	current := b.LastBlock()

	switch {
	case block.PreviousBlockID == current.ID && block.Height == current.Height+1:
		if err := b.VerifyBlock(block, current, delegates); err != nil {
			return err
		}
		return b.ProcessBlock(block, true)

	case block.Height == current.Height && block.ID == current.ID:
		return nil // already have it

	case block.Height == current.Height && block.ID != current.ID:
		if block.Timestamp < current.Timestamp ||
			(block.Timestamp == current.Timestamp && block.ID < current.ID) {
			if _, err := b.DeleteLastBlock(); err != nil {
				return err
			}
			grandparent := b.LastBlock()
			if err := b.VerifyBlock(block, grandparent, delegates); err != nil {
				return err
			}
			return b.ProcessBlock(block, true)
		}
		return chainerrors.NewConsensusError("rejecting inferior competing block", nil)

	case block.Height > current.Height+1:
		return ErrBlockAhead

	default:
		return chainerrors.NewConsensusError("rejecting block at unreachable height", nil)
	}
}

// LoadBlocksDataWS returns up to limit blocks following lastID, for
// peer-facing block sharing.
func (b *Blocks) LoadBlocksDataWS(lastID string, limit int) ([]*types.Block, error) {
	list, err := b.cfg.Store.GetBlocksAfter(lastID, limit)
	if err != nil {
		return nil, chainerrors.NewPersistenceError("loading blocks after "+lastID, err)
	}
	return list, nil
}

// BlockIDAtHeight returns the id of the block at height, if any.
func (b *Blocks) BlockIDAtHeight(height uint64) (string, bool, error) {
	block, found, err := b.cfg.Store.GetBlockAtHeight(height)
	if err != nil {
		return "", false, chainerrors.NewPersistenceError("loading block at height", err)
	}
	if !found {
		return "", false, nil
	}
	return block.ID, true, nil
}

// RecentBlockIDs returns up to limit of the most recent block ids, for
// fork-detection candidate lists (Loader's blocksCommon call).
func (b *Blocks) RecentBlockIDs(limit int) ([]string, error) {
	ids, err := b.cfg.Store.RecentBlockIDs(limit)
	if err != nil {
		return nil, chainerrors.NewPersistenceError("loading recent block ids", err)
	}
	return ids, nil
}

// BlockAtHeight returns the full block at height, if any.
func (b *Blocks) BlockAtHeight(height uint64) (*types.Block, bool, error) {
	block, found, err := b.cfg.Store.GetBlockAtHeight(height)
	if err != nil {
		return nil, false, chainerrors.NewPersistenceError("loading block at height", err)
	}
	return block, found, nil
}

// BlocksBetweenHeights returns up to limit blocks with fromHeight < height
// <= toHeight.
func (b *Blocks) BlocksBetweenHeights(fromHeight, toHeight uint64, limit int) ([]*types.Block, error) {
	list, err := b.cfg.Store.GetBlocksBetweenHeights(fromHeight, toHeight, limit)
	if err != nil {
		return nil, chainerrors.NewPersistenceError("loading blocks between heights", err)
	}
	return list, nil
}

// LastBlockAtOrBeforeTimestamp returns the latest committed block at or
// before timestamp, if any.
func (b *Blocks) LastBlockAtOrBeforeTimestamp(timestamp uint64) (*types.Block, bool, error) {
	block, found, err := b.cfg.Store.GetLastBlockAtOrBeforeTimestamp(timestamp)
	if err != nil {
		return nil, false, chainerrors.NewPersistenceError("loading last block at or before timestamp", err)
	}
	return block, found, nil
}

// MaxHeight returns the highest committed block height.
func (b *Blocks) MaxHeight() (uint64, error) {
	height, err := b.cfg.Store.GetMaxHeight()
	if err != nil {
		return 0, chainerrors.NewPersistenceError("loading max height", err)
	}
	return height, nil
}

func (b *Blocks) publish(topic string, payload interface{}) {
	if b.cfg.Events != nil {
		b.cfg.Events.Publish(topic, payload)
	}
}

func prependBounded(ids []string, id string, max int) []string {
	out := append([]string{id}, ids...)
	if len(out) > max {
		out = out[:max]
	}
	return out
}

// applyTransactions runs each transaction's confirmed-apply handler
// against cloned account state and returns the set of deltas for the
// store to persist atomically alongside the block.
func (b *Blocks) applyTransactions(block *types.Block, txs []*types.Transaction) (map[string]*types.Account, error) {
	touched := make(map[string]*types.Account)

	load := func(address string) (*types.Account, error) {
		if acc, ok := touched[address]; ok {
			return acc, nil
		}
		acc, found, err := b.cfg.Store.GetAccount(address)
		if err != nil {
			return nil, errors.Wrap(err, "loading account")
		}
		if !found {
			acc = &types.Account{Address: address}
		} else {
			acc = acc.Clone()
		}
		touched[address] = acc
		return acc, nil
	}

	for _, tx := range txs {
		handler, ok := types.HandlerFor(tx.Type)
		if !ok {
			return nil, chainerrors.NewValidationError("unregistered transaction type in block", nil)
		}

		sender, err := load(tx.SenderID)
		if err != nil {
			return nil, chainerrors.NewStateError("loading sender account", err)
		}
		var recipient *types.Account
		if tx.RecipientID != "" {
			recipient, err = load(tx.RecipientID)
			if err != nil {
				return nil, chainerrors.NewStateError("loading recipient account", err)
			}
		}

		if err := handler.ApplyConfirmed(tx, sender, recipient); err != nil {
			return nil, chainerrors.NewStateError("applying transaction "+tx.ID, err)
		}
		if sender.Balance < 0 {
			return nil, chainerrors.NewStateError("balance underflow for "+tx.SenderID, nil)
		}
	}

	generator, err := load(addressOfGenerator(block))
	if err != nil {
		return nil, err
	}
	generator.Balance += int64(block.Reward)

	return touched, nil
}

// undoTransactions reverses applyTransactions for DeleteLastBlock.
func (b *Blocks) undoTransactions(block *types.Block, txs []*types.Transaction) (map[string]*types.Account, error) {
	touched := make(map[string]*types.Account)

	load := func(address string) (*types.Account, error) {
		if acc, ok := touched[address]; ok {
			return acc, nil
		}
		acc, found, err := b.cfg.Store.GetAccount(address)
		if err != nil {
			return nil, errors.Wrap(err, "loading account")
		}
		if !found {
			acc = &types.Account{Address: address}
		} else {
			acc = acc.Clone()
		}
		touched[address] = acc
		return acc, nil
	}

	for i := len(txs) - 1; i >= 0; i-- {
		tx := txs[i]
		handler, ok := types.HandlerFor(tx.Type)
		if !ok {
			return nil, chainerrors.NewValidationError("unregistered transaction type in block", nil)
		}

		sender, err := load(tx.SenderID)
		if err != nil {
			return nil, chainerrors.NewStateError("loading sender account", err)
		}
		var recipient *types.Account
		if tx.RecipientID != "" {
			recipient, err = load(tx.RecipientID)
			if err != nil {
				return nil, chainerrors.NewStateError("loading recipient account", err)
			}
		}

		if err := handler.UndoConfirmed(tx, sender, recipient); err != nil {
			return nil, chainerrors.NewStateError("undoing transaction "+tx.ID, err)
		}
	}

	generator, err := load(addressOfGenerator(block))
	if err != nil {
		return nil, err
	}
	generator.Balance -= int64(block.Reward)

	return touched, nil
}

func addressOfGenerator(block *types.Block) string {
	return crypto.DeriveAddress(block.GeneratorPublicKey)
}
