// Package broadcaster batches outbound block/transaction announcements
// and periodically releases them to a random subset of connected peers.
package broadcaster

import (
	"math/rand"
	"sync"
	"time"

	"github.com/Leasehold/leasehold/types"
)

// Identifiable is anything that can be deduplicated by a stable id --
// block and transaction payloads both qualify via their hash id.
type Identifiable interface {
	BroadcastID() string
}

// PeerLister is the narrow peer-to-peer transport surface Broadcaster
// needs: the ids of currently connected peers to pick a release subset
// from.
type PeerLister interface {
	ListPeerIDs() ([]string, error)
}

// Sender delivers one announcement to one peer over the network
// collaborator.
type Sender interface {
	Send(peerID, api string, data interface{}) error
}

// Config bundles Broadcaster's collaborators and tunables.
type Config struct {
	Peers     PeerLister
	Transport Sender

	// BroadcastInterval is how often the queue drains.
	BroadcastInterval time.Duration

	// ReleaseLimit caps how many announcements a single drain releases.
	ReleaseLimit int

	// PeerSampleSize caps how many peers a single announcement is sent
	// to per drain; 0 means "all connected peers".
	PeerSampleSize int

	// DefaultTTL is used when Enqueue is called without an explicit TTL.
	DefaultTTL time.Duration
}

type announcement struct {
	api      string
	data     Identifiable
	enqueued time.Time
	ttl      time.Duration
}

func (a *announcement) key() string { return a.api + ":" + a.data.BroadcastID() }

func (a *announcement) expired(now time.Time) bool {
	return a.ttl > 0 && now.Sub(a.enqueued) > a.ttl
}

// Broadcaster is the outbound announcement pipeline of the chain engine.
type Broadcaster struct {
	cfg Config

	mu    sync.Mutex
	order []string
	items map[string]*announcement

	stop      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// New builds and starts a Broadcaster. Call Close to stop its drain loop.
func New(cfg Config) *Broadcaster {
	if cfg.ReleaseLimit <= 0 {
		cfg.ReleaseLimit = 100
	}
	if cfg.BroadcastInterval <= 0 {
		cfg.BroadcastInterval = 5 * time.Second
	}
	b := &Broadcaster{
		cfg:   cfg,
		items: make(map[string]*announcement),
		stop:  make(chan struct{}),
	}
	b.wg.Add(1)
	go b.run()
	return b
}

// Close stops the drain loop and waits for it to exit. Close is
// idempotent.
func (b *Broadcaster) Close() {
	b.closeOnce.Do(func() { close(b.stop) })
	b.wg.Wait()
}

// Enqueue adds an announcement to the outbound queue, deduplicated by
// (api, data.BroadcastID()). A repeated enqueue of the same key is a
// no-op; the first enqueue's TTL governs when it expires.
func (b *Broadcaster) Enqueue(api string, data Identifiable, ttl time.Duration) {
	if ttl <= 0 {
		ttl = b.cfg.DefaultTTL
	}
	entry := &announcement{api: api, data: data, enqueued: time.Now(), ttl: ttl}
	key := entry.key()

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.items[key]; exists {
		return
	}
	b.items[key] = entry
	b.order = append(b.order, key)
}

// EnqueueTransaction enqueues a transaction announcement; it satisfies
// txpool.BroadcastEnqueuer.
func (b *Broadcaster) EnqueueTransaction(tx *types.Transaction) {
	b.Enqueue("postTransaction", tx, b.cfg.DefaultTTL)
}

// EnqueueBlock enqueues a block announcement.
func (b *Broadcaster) EnqueueBlock(block *types.Block) {
	b.Enqueue("postBlock", block, b.cfg.DefaultTTL)
}

// Len reports the current queue depth.
func (b *Broadcaster) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.order)
}

func (b *Broadcaster) run() {
	defer b.wg.Done()
	ticker := time.NewTicker(b.cfg.BroadcastInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			b.drain()
		case <-b.stop:
			return
		}
	}
}

// drain releases up to ReleaseLimit non-expired announcements to a random
// subset of connected peers, dropping expired entries without sending.
func (b *Broadcaster) drain() {
	now := time.Now()

	b.mu.Lock()
	var toSend []*announcement
	remaining := b.order[:0]
	for _, key := range b.order {
		entry := b.items[key]
		if entry.expired(now) {
			delete(b.items, key)
			continue
		}
		if len(toSend) < b.cfg.ReleaseLimit {
			toSend = append(toSend, entry)
			delete(b.items, key)
			continue
		}
		remaining = append(remaining, key)
	}
	b.order = remaining
	b.mu.Unlock()

	if len(toSend) == 0 {
		return
	}

	peers, err := b.cfg.Peers.ListPeerIDs()
	if err != nil {
		log.Warnf("listing peers for broadcast: %v", err)
		return
	}
	if len(peers) == 0 {
		return
	}

	targets := samplePeers(peers, b.cfg.PeerSampleSize)
	for _, entry := range toSend {
		for _, peerID := range targets {
			if err := b.cfg.Transport.Send(peerID, entry.api, entry.data); err != nil {
				log.Debugf("broadcast %s to peer %s failed: %v", entry.api, peerID, err)
			}
		}
	}
}

// samplePeers returns a random subset of peers of size n, or all of
// peers if n <= 0 or n >= len(peers).
func samplePeers(peers []string, n int) []string {
	if n <= 0 || n >= len(peers) {
		return peers
	}
	shuffled := make([]string, len(peers))
	copy(shuffled, peers)
	rand.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
	return shuffled[:n]
}
