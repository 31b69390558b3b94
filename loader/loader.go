// Package loader implements the startup unconfirmed-transaction pull and
// the periodic forward-peer sync job.
package loader

import (
	"crypto/ed25519"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Leasehold/leasehold/sequence"
	"github.com/Leasehold/leasehold/types"
)

// MaxBlocksPerFetch bounds a single blocks() call to a peer.
const MaxBlocksPerFetch = 34

// MaxCommonCandidates bounds how many recent block ids are offered to
// blocksCommon.
const MaxCommonCandidates = 1000

// SyncInterval is how often the periodic sync job is considered.
const SyncInterval = 10 * time.Second

// BlocksEngine is the narrow chain-state-machine surface Loader needs.
type BlocksEngine interface {
	LastBlock() *types.Block
	IsStale() bool
	ReceiveBlockFromNetwork(block *types.Block, delegates []ed25519.PublicKey) error
	RecentBlockIDs(limit int) ([]string, error)
}

// DelegateSource resolves the delegate list a fetched block's slot must
// be checked against.
type DelegateSource interface {
	CurrentDelegates() ([]ed25519.PublicKey, error)
}

// Pool is the narrow txpool surface Loader needs to ingest a peer's
// shared unconfirmed transactions.
type Pool interface {
	Add(tx *types.Transaction, bundled bool) error
}

// Transport is the peer-to-peer collaborator Loader drives. All methods
// address a specific, already-chosen peer except ChooseForwardPeer.
type Transport interface {
	ChooseForwardPeer() (peerID string, ok bool, err error)
	BlocksCommon(peerID string, candidateIDs []string) (blockID string, found bool, err error)
	FetchBlocks(peerID, afterID string, limit int) ([]*types.Block, error)
	FetchTransactions(peerID string) ([]*types.Transaction, error)
}

// Config bundles Loader's collaborators.
type Config struct {
	Blocks    BlocksEngine
	Delegates DelegateSource
	Pool      Pool
	Transport Transport
	Sequence  *sequence.Sequence
}

// Loader runs the startup pool pull and the periodic forward-peer sync.
type Loader struct {
	cfg       Config
	sync      int32 // atomic: 1 while a sync task is enqueued or running
	stop      chan struct{}
	closeOnce sync.Once
}

// New builds a Loader. Call Start to begin the periodic sync schedule.
func New(cfg Config) *Loader {
	return &Loader{cfg: cfg, stop: make(chan struct{})}
}

// Syncing reports whether a sync task is currently enqueued or running.
func (l *Loader) Syncing() bool {
	return atomic.LoadInt32(&l.sync) == 1
}

// LoadUnconfirmedTransactions pulls the shared pool from one forward
// peer at startup and ingests each transaction, tolerating individual
// rejects.
func (l *Loader) LoadUnconfirmedTransactions() error {
	peerID, ok, err := l.cfg.Transport.ChooseForwardPeer()
	if err != nil {
		return err
	}
	if !ok {
		log.Infof("no forward peer available for initial unconfirmed transaction load")
		return nil
	}

	txs, err := l.cfg.Transport.FetchTransactions(peerID)
	if err != nil {
		return err
	}

	for _, tx := range txs {
		if err := l.cfg.Pool.Add(tx, true); err != nil {
			log.Debugf("rejecting shared unconfirmed transaction %s: %v", tx.ID, err)
		}
	}
	return nil
}

// Start launches the periodic sync schedule, skipping ticks while a sync
// is already active or the chain is not stale.
func (l *Loader) Start() {
	go l.run()
}

// Close stops the periodic sync schedule. Close is idempotent.
func (l *Loader) Close() {
	l.closeOnce.Do(func() { close(l.stop) })
}

func (l *Loader) run() {
	ticker := time.NewTicker(SyncInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.maybeScheduleSync()
		case <-l.stop:
			return
		}
	}
}

func (l *Loader) maybeScheduleSync() {
	if l.Syncing() || !l.cfg.Blocks.IsStale() {
		return
	}
	atomic.StoreInt32(&l.sync, 1)
	l.cfg.Sequence.Add(func() (interface{}, error) {
		defer atomic.StoreInt32(&l.sync, 0)
		return nil, l.Sync()
	})
}

// Sync finds the common block with a chosen forward peer, then
// repeatedly fetches and processes blocks after it until the peer
// reports an empty batch or our tip matches. Must run under Sequence.
func (l *Loader) Sync() error {
	peerID, ok, err := l.cfg.Transport.ChooseForwardPeer()
	if err != nil {
		return err
	}
	if !ok {
		log.Infof("no forward peer available for sync")
		return nil
	}

	candidates, err := l.cfg.Blocks.RecentBlockIDs(MaxCommonCandidates)
	if err != nil {
		return err
	}

	commonID, found, err := l.cfg.Transport.BlocksCommon(peerID, candidates)
	if err != nil {
		return err
	}
	if !found {
		log.Warnf("no common block found with peer %s, skipping sync", peerID)
		return nil
	}

	afterID := commonID
	for {
		batch, err := l.cfg.Transport.FetchBlocks(peerID, afterID, MaxBlocksPerFetch)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}

		delegates, err := l.cfg.Delegates.CurrentDelegates()
		if err != nil {
			return err
		}

		for _, block := range batch {
			if err := l.cfg.Blocks.ReceiveBlockFromNetwork(block, delegates); err != nil {
				return err
			}
		}

		afterID = batch[len(batch)-1].ID
		if afterID == l.cfg.Blocks.LastBlock().ID {
			return nil
		}
	}
}
