// Package forger unlocks configured delegate keys and produces blocks on
// the slot this node's delegate is assigned to.
package forger

import (
	"crypto/ed25519"
	"encoding/hex"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Leasehold/leasehold/chainerrors"
	"github.com/Leasehold/leasehold/config"
	"github.com/Leasehold/leasehold/sequence"
	"github.com/Leasehold/leasehold/slots"
	"github.com/Leasehold/leasehold/types"
)

// ForgeInterval is how often the forging job considers producing a block.
const ForgeInterval = 1000 * time.Millisecond

// Decryptor recovers a delegate's private key from its configured
// encrypted passphrase and a caller-supplied password.
type Decryptor interface {
	DecryptPassphrase(encryptedPassphrase, password string) (ed25519.PrivateKey, error)
}

// RoundsEngine is the narrow rounds surface Forger needs.
type RoundsEngine interface {
	GenerateDelegateList(round uint64, source []ed25519.PublicKey, previousRoundLastBlockID string) ([]ed25519.PublicKey, error)
}

// BlocksEngine is the narrow chain-state-machine surface Forger needs.
type BlocksEngine interface {
	LastBlock() *types.Block
	ProcessBlock(block *types.Block, broadcast bool) error
	BlockIDAtHeight(height uint64) (string, bool, error)
}

// Pool is the narrow txpool surface Forger needs.
type Pool interface {
	GetMergedTransactionList(reverse bool, limit int) []*types.Transaction
}

// PeersEngine is the narrow peers surface Forger needs.
type PeersEngine interface {
	LastConsensus() float64
	IsPoorConsensus(consensus float64, forgingForce bool) bool
}

// Config bundles Forger's collaborators and tunables.
type Config struct {
	Params    *config.Params
	Slots     *slots.Slots
	Rounds    RoundsEngine
	Blocks    BlocksEngine
	Pool      Pool
	Peers     PeersEngine
	Decryptor Decryptor

	// Sequence is where forge() runs, matching every other authoritative
	// mutation of chain state.
	Sequence *sequence.Sequence

	// ForcingConsensus skips the poor-consensus check, mirroring
	// ForgingSection.Force.
	ForcingConsensus bool
}

type delegateKey struct {
	priv                ed25519.PrivateKey
	encryptedPassphrase string
	enabled             bool
}

// DelegateStatus reports one delegate's current forging enablement.
type DelegateStatus struct {
	PublicKey string
	Forging   bool
}

// Forger holds unlocked delegate keys and produces blocks on this node's
// assigned slots.
type Forger struct {
	cfg Config

	mu   sync.RWMutex
	keys map[string]*delegateKey

	cachedRound uint64
	cachedList  []ed25519.PublicKey

	lastForgedSlot int64 // atomic

	stop      chan struct{}
	closeOnce sync.Once
}

// New builds a Forger with no delegates loaded.
func New(cfg Config) *Forger {
	return &Forger{
		cfg:            cfg,
		keys:           make(map[string]*delegateKey),
		lastForgedSlot: -1,
		stop:           make(chan struct{}),
	}
}

func publicKeyHex(pub ed25519.PublicKey) string {
	return hex.EncodeToString(pub)
}

// LoadDelegates decrypts every configured delegate's passphrase with
// password and keeps the resulting private keys in memory, enabled.
func (f *Forger) LoadDelegates(delegates []config.ForgingDelegate, password string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, d := range delegates {
		priv, err := f.cfg.Decryptor.DecryptPassphrase(d.EncryptedPassphrase, password)
		if err != nil {
			return chainerrors.NewConfigError("decrypting delegate passphrase for "+d.PublicKey, err)
		}
		pub := priv.Public().(ed25519.PublicKey)
		f.keys[publicKeyHex(pub)] = &delegateKey{
			priv:                priv,
			encryptedPassphrase: d.EncryptedPassphrase,
			enabled:             true,
		}
	}
	return nil
}

// UpdateForgingStatus toggles one delegate's enable flag. password must
// decrypt that delegate's stored encrypted passphrase, proving
// authorization.
func (f *Forger) UpdateForgingStatus(publicKeyHex, password string, forging bool) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key, ok := f.keys[publicKeyHex]
	if !ok {
		return false, chainerrors.NewConfigError("unknown delegate "+publicKeyHex, nil)
	}
	if _, err := f.cfg.Decryptor.DecryptPassphrase(key.encryptedPassphrase, password); err != nil {
		return false, chainerrors.NewConfigError("incorrect password for delegate "+publicKeyHex, err)
	}
	key.enabled = forging
	return key.enabled, nil
}

// GetForgingStatusForAllDelegates lists every loaded delegate's current
// enablement.
func (f *Forger) GetForgingStatusForAllDelegates() []DelegateStatus {
	f.mu.RLock()
	defer f.mu.RUnlock()

	statuses := make([]DelegateStatus, 0, len(f.keys))
	for pub, key := range f.keys {
		statuses = append(statuses, DelegateStatus{PublicKey: pub, Forging: key.enabled})
	}
	return statuses
}

// Start launches the periodic forging schedule.
func (f *Forger) Start() {
	go f.run()
}

// Close stops the periodic forging schedule. Close is idempotent.
func (f *Forger) Close() {
	f.closeOnce.Do(func() { close(f.stop) })
}

func (f *Forger) run() {
	ticker := time.NewTicker(ForgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			f.cfg.Sequence.Add(func() (interface{}, error) {
				return nil, f.Forge()
			})
		case <-f.stop:
			return
		}
	}
}

// beforeForge ensures the cached delegate list is current for round.
func (f *Forger) beforeForge(round uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if round == f.cachedRound && f.cachedList != nil {
		return nil
	}

	var previousRoundLastID string
	if round > 1 {
		id, found, err := f.cfg.Blocks.BlockIDAtHeight(f.cfg.Slots.LastHeightOfRound(round - 1))
		if err != nil {
			return err
		}
		if found {
			previousRoundLastID = id
		}
	}

	list, err := f.cfg.Rounds.GenerateDelegateList(round, nil, previousRoundLastID)
	if err != nil {
		return err
	}
	f.cachedRound = round
	f.cachedList = list
	return nil
}

// Forge attempts to produce a block for the current slot if this node
// owns the assigned delegate. Must run under Sequence.
func (f *Forger) Forge() error {
	last := f.cfg.Blocks.LastBlock()

	currentSlot := f.cfg.Slots.GetSlotNumberFromNow()
	lastSlot := f.cfg.Slots.GetSlotNumber(last.Timestamp)
	if currentSlot <= lastSlot {
		return nil
	}
	if atomic.LoadInt64(&f.lastForgedSlot) == int64(currentSlot) {
		return nil
	}

	round := f.cfg.Slots.CalcRound(last.Height + 1)
	if err := f.beforeForge(round); err != nil {
		return err
	}

	idx := f.cfg.Slots.DelegateIndexForSlot(currentSlot)

	f.mu.RLock()
	if int(idx) >= len(f.cachedList) {
		f.mu.RUnlock()
		return nil
	}
	assigned := f.cachedList[idx]
	key, owned := f.keys[publicKeyHex(assigned)]
	f.mu.RUnlock()

	if !owned || !key.enabled {
		return nil
	}

	if f.cfg.Peers.IsPoorConsensus(f.cfg.Peers.LastConsensus(), f.cfg.ForcingConsensus) {
		log.Warnf("skipping forge for slot %d: poor broadhash consensus", currentSlot)
		return nil
	}

	block, err := f.buildBlock(last, currentSlot, assigned, key.priv)
	if err != nil {
		return err
	}

	atomic.StoreInt64(&f.lastForgedSlot, int64(currentSlot))
	return f.cfg.Blocks.ProcessBlock(block, true)
}

func (f *Forger) buildBlock(last *types.Block, slot uint64, generator ed25519.PublicKey, priv ed25519.PrivateKey) (*types.Block, error) {
	txs := f.selectTransactions()

	payloadHash, payloadLength, err := types.ComputePayloadHash(txs)
	if err != nil {
		return nil, err
	}

	var totalAmount, totalFee uint64
	for _, tx := range txs {
		totalAmount += tx.Amount
		totalFee += tx.Fee
	}

	height := last.Height + 1
	block := &types.Block{
		Height:               height,
		PreviousBlockID:      last.ID,
		Timestamp:            f.cfg.Slots.GetSlotTime(slot),
		GeneratorPublicKey:   generator,
		PayloadHash:          payloadHash,
		PayloadLength:        payloadLength,
		NumberOfTransactions: len(txs),
		TotalAmount:          totalAmount,
		TotalFee:             totalFee,
		Reward:               f.cfg.Params.Rewards.CalculateReward(height),
		Transactions:         txs,
	}

	unsigned, err := block.CanonicalBytes(false)
	if err != nil {
		return nil, err
	}
	block.BlockSignature = ed25519.Sign(priv, unsigned)

	id, err := block.ComputeID()
	if err != nil {
		return nil, err
	}
	block.ID = id

	return block, nil
}

// selectTransactions pulls ready transactions from the pool, respecting
// both the per-block transaction count and total payload byte bounds.
func (f *Forger) selectTransactions() []*types.Transaction {
	candidates := f.cfg.Pool.GetMergedTransactionList(false, f.cfg.Params.MaxTransactionsPerBlock)

	var selected []*types.Transaction
	var length uint64
	for _, tx := range candidates {
		txBytes, err := tx.CanonicalBytes(true)
		if err != nil {
			continue
		}
		if length+uint64(len(txBytes)) > f.cfg.Params.MaxPayloadLength {
			break
		}
		length += uint64(len(txBytes))
		selected = append(selected, tx)
	}
	return selected
}
