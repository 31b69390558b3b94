// Package chain is the orchestrator: it wires every component together,
// subscribes to their events, and exposes the module action surface the
// host application and peer transport drive the node through.
package chain

import (
	"crypto/ed25519"
	"time"

	"github.com/Leasehold/leasehold/blocks"
	"github.com/Leasehold/leasehold/broadcaster"
	"github.com/Leasehold/leasehold/chainerrors"
	"github.com/Leasehold/leasehold/config"
	"github.com/Leasehold/leasehold/forger"
	"github.com/Leasehold/leasehold/loader"
	"github.com/Leasehold/leasehold/peers"
	"github.com/Leasehold/leasehold/rounds"
	"github.com/Leasehold/leasehold/sequence"
	"github.com/Leasehold/leasehold/slots"
	"github.com/Leasehold/leasehold/transport"
	"github.com/Leasehold/leasehold/txpool"
	"github.com/Leasehold/leasehold/types"
)

// ConsensusInterval is how often the broadhash consensus cache is
// refreshed against the connected peer set.
const ConsensusInterval = 3 * time.Second

// EventBus is the internal publish/subscribe surface Chain needs: it both
// feeds Blocks/TransactionPool (Publish only, satisfying their narrower
// EventBus interfaces) and is the thing Chain itself subscribes to, to
// bridge internal events onto the host Channel.
type EventBus interface {
	Publish(topic string, payload interface{})
	Subscribe(topic string, handler func(payload interface{})) (unsubscribe func())
}

// HostChannel is the host-application pub/sub and action-registration
// surface: Publish emits named events ("{alias}:blocks:change",
// "{alias}:bootstrap", ...), Handle exposes a request/response module
// action for the host (or the RPC listener behind it) to invoke.
type HostChannel interface {
	Publish(event string, payload interface{})
	Handle(action string, handler func(args interface{}) (interface{}, error))
}

// Closer is the narrow shutdown surface of a persistence-backed
// collaborator (store, cache); Cleanup calls it best-effort.
type Closer interface {
	Close() error
}

// WalletTransaction pairs a transaction with the id of the block it was
// committed in, the shape the inbound/outbound transaction queries need.
type WalletTransaction struct {
	Transaction *types.Transaction
	BlockID     string
}

// WalletSource resolves a multisig wallet's membership and the member
// public keys needed to resolve a sanitized transaction's signerAddress
// list. Backed by the store collaborator.
type WalletSource interface {
	MultisigWalletMembers(walletAddress string) ([]string, error)
	MinMultisigRequiredSignatures(walletAddress string) (int, bool, error)
	MultisigWalletMemberKeys(walletAddress string) ([]ed25519.PublicKey, error)
}

// TransactionQuery resolves a wallet's inbound/outbound committed
// transaction history. Backed by the store collaborator.
type TransactionQuery interface {
	InboundTransactions(walletAddress string, fromTimestamp uint64, limit int) ([]WalletTransaction, error)
	OutboundTransactions(walletAddress string, fromTimestamp uint64, limit int) ([]WalletTransaction, error)
	InboundTransactionsFromBlock(walletAddress, blockID string) ([]WalletTransaction, error)
	OutboundTransactionsFromBlock(walletAddress, blockID string) ([]WalletTransaction, error)
}

// Config bundles every constructed component Chain orchestrates, plus the
// out-of-scope collaborators it talks to directly.
type Config struct {
	Params  *config.Params
	Options *config.Config

	Slots       *slots.Slots
	Rounds      *rounds.Rounds
	Sequence    *sequence.Sequence
	Pool        *txpool.Pool
	Blocks      *blocks.Blocks
	Peers       *peers.Peers
	Broadcaster *broadcaster.Broadcaster
	Loader      *loader.Loader
	Forger      *forger.Forger
	Transport   *transport.Transport
	Delegates   *DelegateResolver

	Events  EventBus
	Channel HostChannel
	Wallets WalletSource
	Queries TransactionQuery

	// Store and Cache are closed, in that order, by Cleanup if non-nil.
	Store Closer
	Cache Closer
}

// Chain is the wired-up node: every component plus the module action
// surface over them.
type Chain struct {
	cfg Config

	unsubscribes  []func()
	consensusStop chan struct{}
}

// New wires Chain to cfg's already-constructed components and subscribes
// to their events, bridging them onto the host Channel.
func New(cfg Config) *Chain {
	c := &Chain{cfg: cfg}
	if cfg.Events != nil {
		c.subscribe(blocks.EventNewBlock, c.onNewBlock)
		c.subscribe(blocks.EventDeleteBlock, c.onDeleteBlock)
		c.subscribe(blocks.EventBroadcastBlock, c.onBroadcastBlock)
		c.subscribe(blocks.EventNewBroadhash, c.onNewBroadhash)
		c.subscribe(txpool.EventUnconfirmedTransaction, c.onUnconfirmedTransaction)
		c.subscribe(txpool.EventSignature, c.onSignatureChange)
	}
	return c
}

func (c *Chain) subscribe(topic string, handler func(payload interface{})) {
	unsubscribe := c.cfg.Events.Subscribe(topic, handler)
	c.unsubscribes = append(c.unsubscribes, unsubscribe)
}

func (c *Chain) topic(name string) string {
	return c.cfg.Params.ModuleAlias + ":" + name
}

func (c *Chain) onNewBlock(payload interface{}) {
	event, ok := payload.(blocks.NewBlockEvent)
	if !ok {
		return
	}
	c.publishHost(c.topic("blocks:change"), event.Block)
	c.publishHost(c.topic("transactions:confirmed:change"), event.Block)
}

func (c *Chain) onDeleteBlock(payload interface{}) {
	c.publishHost(c.topic("blocks:change"), payload)
}

func (c *Chain) onBroadcastBlock(payload interface{}) {
	block, ok := payload.(*types.Block)
	if !ok {
		return
	}
	c.cfg.Broadcaster.EnqueueBlock(block)
}

func (c *Chain) onNewBroadhash(payload interface{}) {
	broadhash, ok := payload.(string)
	if !ok {
		return
	}
	last := c.cfg.Blocks.LastBlock()
	c.publishHost("interchain:updateModuleState", map[string]interface{}{
		"broadhash": broadhash,
		"height":    last.Height,
	})
}

func (c *Chain) onUnconfirmedTransaction(payload interface{}) {
	c.publishHost(c.topic("transactions:change"), payload)
}

func (c *Chain) onSignatureChange(payload interface{}) {
	c.publishHost(c.topic("signature:change"), payload)
}

func (c *Chain) publishHost(event string, payload interface{}) {
	if c.cfg.Channel != nil {
		c.cfg.Channel.Publish(event, payload)
	}
}

// Boot loads (or initializes from genesis) the chain, then pulls the
// initial unconfirmed-transaction snapshot from a forward peer.
func (c *Chain) Boot(genesis *types.Block) error {
	if err := c.cfg.Blocks.LoadBlockChain(genesis, c.cfg.Options.Loading.RebuildUpToRound); err != nil {
		return err
	}

	if c.cfg.Options.Syncing.Active {
		if err := c.cfg.Loader.LoadUnconfirmedTransactions(); err != nil {
			log.Warnf("loading unconfirmed transactions at boot: %v", err)
		}
	}

	if c.cfg.Channel != nil {
		c.RegisterActions(c.cfg.Channel)
	}

	c.publishHost(c.topic("bootstrap"), nil)
	return nil
}

// Start launches every component's periodic schedule: forging, sync
// (if enabled), and broadhash consensus refresh.
func (c *Chain) Start() {
	c.cfg.Forger.Start()
	if c.cfg.Options.Syncing.Active {
		c.cfg.Loader.Start()
	}

	c.consensusStop = make(chan struct{})
	go c.runConsensusJob()
}

func (c *Chain) runConsensusJob() {
	ticker := time.NewTicker(ConsensusInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			broadhash := c.cfg.Blocks.Broadhash()
			if _, err := c.cfg.Peers.RefreshConsensus(c.cfg.Params.ModuleAlias, broadhash); err != nil {
				log.Warnf("refreshing broadhash consensus: %v", err)
			}
		case <-c.consensusStop:
			return
		}
	}
}

// Cleanup unsubscribes every event listener, drains/cancels every timer
// job, closes every component in order, and releases persistence
// handles. It is best-effort: a failure at one step is logged and does
// not abort the rest.
func (c *Chain) Cleanup(cause error) {
	if cause != nil {
		log.Errorf("chain shutting down: %v", cause)
	}

	for _, unsubscribe := range c.unsubscribes {
		unsubscribe()
	}
	c.unsubscribes = nil

	if c.consensusStop != nil {
		close(c.consensusStop)
		c.consensusStop = nil
	}

	c.cfg.Forger.Close()
	if c.cfg.Options.Syncing.Active {
		c.cfg.Loader.Close()
	}
	c.cfg.Broadcaster.Close()
	c.cfg.Pool.Close()
	c.cfg.Sequence.Close()

	if c.cfg.Store != nil {
		if err := c.cfg.Store.Close(); err != nil {
			log.Warnf("closing store: %v", err)
		}
	}
	if c.cfg.Cache != nil {
		if err := c.cfg.Cache.Close(); err != nil {
			log.Warnf("closing cache: %v", err)
		}
	}

	c.publishHost(c.topic("shutdown"), cause)
}

// PostTransaction runs the ingest pipeline (structural add, then
// unconfirmed apply) under Sequence and returns the transaction's id, or
// an InvalidTransactionError carrying the rejection cause.
func (c *Chain) PostTransaction(tx *types.Transaction) (string, error) {
	future := c.cfg.Sequence.Add(func() (interface{}, error) {
		if err := c.cfg.Pool.Add(tx, false); err != nil {
			return nil, err
		}
		if err := c.cfg.Pool.ProcessUnconfirmedTransaction(tx, true); err != nil {
			return nil, err
		}
		return tx.ID, nil
	})

	value, err := future.Wait()
	if err != nil {
		return "", chainerrors.NewInvalidTransactionError(tx.ID, err)
	}
	return value.(string), nil
}

// GetTransactions returns up to MaxSharedTransactions ready transactions,
// for a host client building its own shared-pool view.
func (c *Chain) GetTransactions() []*types.Transaction {
	return c.cfg.Transport.GetTransactions()
}

// GetTransactionsFromPool returns ready transactions of transactionType
// (pass -1 for any type) matching filter.
func (c *Chain) GetTransactionsFromPool(transactionType int, filter func(*types.Transaction) bool) []*types.Transaction {
	return c.cfg.Pool.GetPooledTransactions(transactionType, filter)
}

// GetLastBlock returns the current chain tip.
func (c *Chain) GetLastBlock() *types.Block {
	return c.cfg.Blocks.LastBlock()
}

// Blocks returns up to MaxBlocksPerFetch blocks following lastBlockID.
func (c *Chain) Blocks(lastBlockID string) ([]*types.Block, error) {
	return c.cfg.Transport.Blocks(lastBlockID)
}

// BlocksCommon returns the first of candidateIDs that matches a locally
// known block, for host-side fork detection.
func (c *Chain) BlocksCommon(candidateIDs []string) (string, bool, error) {
	return c.cfg.Transport.BlocksCommon("host", candidateIDs)
}

// GetSlotNumber returns the slot index for epochTime, or the current
// slot if epochTime is zero.
func (c *Chain) GetSlotNumber(epochTime uint64) uint64 {
	if epochTime == 0 {
		return c.cfg.Slots.GetSlotNumberFromNow()
	}
	return c.cfg.Slots.GetSlotNumber(epochTime)
}

// CalcSlotRound returns the round height belongs to.
func (c *Chain) CalcSlotRound(height uint64) uint64 {
	return c.cfg.Slots.CalcRound(height)
}

// GenerateDelegateList returns round's shuffled delegate list, overriding
// the top-voted lookup with source when non-nil.
func (c *Chain) GenerateDelegateList(round uint64, source []ed25519.PublicKey) ([]ed25519.PublicKey, error) {
	return c.cfg.Delegates.ForRoundFromSource(round, source)
}

// UpdateForgingStatus toggles one delegate's enablement; password must
// decrypt that delegate's stored encrypted passphrase.
func (c *Chain) UpdateForgingStatus(publicKeyHex, password string, forging bool) (bool, error) {
	return c.cfg.Forger.UpdateForgingStatus(publicKeyHex, password, forging)
}

// GetForgingStatusForAllDelegates lists every loaded delegate's current
// forging enablement.
func (c *Chain) GetForgingStatusForAllDelegates() []forger.DelegateStatus {
	return c.cfg.Forger.GetForgingStatusForAllDelegates()
}

// CalculateSupply returns the total minted supply at height.
func (c *Chain) CalculateSupply(height uint64) uint64 {
	return c.cfg.Params.Rewards.CalculateSupply(height)
}

// CalculateMilestone returns the reward-schedule milestone index at height.
func (c *Chain) CalculateMilestone(height uint64) int {
	return c.cfg.Params.Rewards.CalculateMilestone(height)
}

// CalculateReward returns the per-block reward at height.
func (c *Chain) CalculateReward(height uint64) uint64 {
	return c.cfg.Params.Rewards.CalculateReward(height)
}

// GetMultisigWalletMembers lists walletAddress's member addresses.
func (c *Chain) GetMultisigWalletMembers(walletAddress string) ([]string, error) {
	return c.cfg.Wallets.MultisigWalletMembers(walletAddress)
}

// GetMinMultisigRequiredSignatures returns walletAddress's signature
// threshold, erroring if the wallet is not a multisig wallet.
func (c *Chain) GetMinMultisigRequiredSignatures(walletAddress string) (int, error) {
	min, found, err := c.cfg.Wallets.MinMultisigRequiredSignatures(walletAddress)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, chainerrors.NewValidationError("wallet "+walletAddress+" has no multisig configuration", nil)
	}
	return min, nil
}

func (c *Chain) sanitize(list []WalletTransaction, walletAddress string) ([]*types.SanitizedTransaction, error) {
	memberKeys, err := c.cfg.Wallets.MultisigWalletMemberKeys(walletAddress)
	if err != nil {
		return nil, err
	}

	out := make([]*types.SanitizedTransaction, 0, len(list))
	for _, entry := range list {
		sanitized, err := entry.Transaction.Sanitize(entry.BlockID, memberKeys)
		if err != nil {
			return nil, err
		}
		out = append(out, sanitized)
	}
	return out, nil
}

// GetInboundTransactions returns walletAddress's sanitized incoming
// transaction history after fromTimestamp, up to limit.
func (c *Chain) GetInboundTransactions(walletAddress string, fromTimestamp uint64, limit int) ([]*types.SanitizedTransaction, error) {
	list, err := c.cfg.Queries.InboundTransactions(walletAddress, fromTimestamp, limit)
	if err != nil {
		return nil, err
	}
	return c.sanitize(list, walletAddress)
}

// GetOutboundTransactions returns walletAddress's sanitized outgoing
// transaction history after fromTimestamp, up to limit.
func (c *Chain) GetOutboundTransactions(walletAddress string, fromTimestamp uint64, limit int) ([]*types.SanitizedTransaction, error) {
	list, err := c.cfg.Queries.OutboundTransactions(walletAddress, fromTimestamp, limit)
	if err != nil {
		return nil, err
	}
	return c.sanitize(list, walletAddress)
}

// GetInboundTransactionsFromBlock returns walletAddress's sanitized
// incoming transactions committed in blockID.
func (c *Chain) GetInboundTransactionsFromBlock(walletAddress, blockID string) ([]*types.SanitizedTransaction, error) {
	list, err := c.cfg.Queries.InboundTransactionsFromBlock(walletAddress, blockID)
	if err != nil {
		return nil, err
	}
	return c.sanitize(list, walletAddress)
}

// GetOutboundTransactionsFromBlock returns walletAddress's sanitized
// outgoing transactions committed in blockID.
func (c *Chain) GetOutboundTransactionsFromBlock(walletAddress, blockID string) ([]*types.SanitizedTransaction, error) {
	list, err := c.cfg.Queries.OutboundTransactionsFromBlock(walletAddress, blockID)
	if err != nil {
		return nil, err
	}
	return c.sanitize(list, walletAddress)
}

// GetLastBlockAtTimestamp returns the latest block committed at or before
// timestamp, if any.
func (c *Chain) GetLastBlockAtTimestamp(timestamp uint64) (*types.Block, bool, error) {
	return c.cfg.Blocks.LastBlockAtOrBeforeTimestamp(timestamp)
}

// GetMaxBlockHeight returns the highest committed block height.
func (c *Chain) GetMaxBlockHeight() (uint64, error) {
	return c.cfg.Blocks.MaxHeight()
}

// GetBlocksBetweenHeights returns up to limit blocks with
// fromHeight < height <= toHeight.
func (c *Chain) GetBlocksBetweenHeights(fromHeight, toHeight uint64, limit int) ([]*types.Block, error) {
	return c.cfg.Blocks.BlocksBetweenHeights(fromHeight, toHeight, limit)
}

// GetBlockAtHeight returns the block at height, if any.
func (c *Chain) GetBlockAtHeight(height uint64) (*types.Block, bool, error) {
	return c.cfg.Blocks.BlockAtHeight(height)
}

// NodeStatus is the output shape of GetNodeStatus.
type NodeStatus struct {
	Consensus               float64
	Loaded                  bool
	Syncing                 bool
	UnconfirmedTransactions int
	SecondsSinceEpoch       uint64
	LastBlock               *types.Block
}

// GetNodeStatus reports a live snapshot of the node's current state.
func (c *Chain) GetNodeStatus() NodeStatus {
	counts := c.cfg.Pool.GetCount()
	return NodeStatus{
		Consensus:               c.cfg.Peers.LastConsensus(),
		Loaded:                  c.cfg.Blocks.State() == blocks.StateSynced,
		Syncing:                 c.cfg.Loader.Syncing(),
		UnconfirmedTransactions: counts.Ready,
		SecondsSinceEpoch:       c.cfg.Slots.GetEpochTime(0),
		LastBlock:               c.cfg.Blocks.LastBlock(),
	}
}

// ModuleOptions is the output shape of GetModuleOptions.
type ModuleOptions struct {
	SyncingActive           bool
	BroadcastsActive        bool
	BroadcastInterval       time.Duration
	ReleaseLimit            int
	ForgingForce            bool
	MaxTransactionsPerQueue int
}

// GetModuleOptions reports the process options this node was started with.
func (c *Chain) GetModuleOptions() ModuleOptions {
	opts := c.cfg.Options
	return ModuleOptions{
		SyncingActive:           opts.Syncing.Active,
		BroadcastsActive:        opts.Broadcasts.Active,
		BroadcastInterval:       time.Duration(opts.Broadcasts.BroadcastInterval) * time.Millisecond,
		ReleaseLimit:            opts.Broadcasts.ReleaseLimit,
		ForgingForce:            opts.Forging.Force,
		MaxTransactionsPerQueue: opts.Transactions.MaxTransactionsPerQueue,
	}
}
