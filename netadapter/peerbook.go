package netadapter

import (
	"math/rand"
	"sync"

	"github.com/Leasehold/leasehold/chainerrors"
	"github.com/Leasehold/leasehold/peers"
)

// maxViolations is how many schema violations a peer accrues before it
// is dropped from the active set.
const maxViolations = 10

// peerState is the known state of one connected peer: its dial address
// plus the advertised moduleAlias/broadhash peers.Peers compares
// candidates against.
type peerState struct {
	addr        string
	moduleAlias string
	broadhash   string
	active      bool
	violations  int
}

// PeerBook is the shared registry of connected peers: Server registers a
// peer on its first inbound request and records its advertised
// moduleAlias/broadhash, Client resolves a peer id to a dial address, and
// both peers.NetworkSource and broadcaster.PeerLister read the
// connected set from it.
type PeerBook struct {
	mu    sync.RWMutex
	peers map[string]*peerState
}

// NewPeerBook returns an empty PeerBook.
func NewPeerBook() *PeerBook {
	return &PeerBook{peers: make(map[string]*peerState)}
}

// Register records addr as the dial address for peerID, creating the
// entry if peerID is unknown.
func (b *PeerBook) Register(peerID, addr string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	state, ok := b.peers[peerID]
	if !ok {
		state = &peerState{}
		b.peers[peerID] = state
	}
	state.addr = addr
	state.active = true
}

// Advertise updates the moduleAlias/broadhash peerID last reported.
func (b *PeerBook) Advertise(peerID, moduleAlias, broadhash string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	state, ok := b.peers[peerID]
	if !ok {
		state = &peerState{}
		b.peers[peerID] = state
	}
	state.moduleAlias = moduleAlias
	state.broadhash = broadhash
	state.active = true
}

// Remove marks peerID inactive; it is kept (not deleted) so a
// reconnecting peer's history isn't lost.
func (b *PeerBook) Remove(peerID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if state, ok := b.peers[peerID]; ok {
		state.active = false
	}
}

// Addr resolves peerID's dial address. Implements the lookup Client uses
// before every outbound request.
func (b *PeerBook) Addr(peerID string) (string, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	state, ok := b.peers[peerID]
	if !ok {
		return "", false
	}
	return state.addr, true
}

// ConnectedPeers returns the peers.Peer view of every known peer.
// Implements peers.NetworkSource.
func (b *PeerBook) ConnectedPeers() ([]peers.Peer, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]peers.Peer, 0, len(b.peers))
	for id, state := range b.peers {
		out = append(out, peers.Peer{
			ID:          id,
			ModuleAlias: state.moduleAlias,
			Broadhash:   state.broadhash,
			Active:      state.active,
		})
	}
	return out, nil
}

// ListPeerIDs returns the ids of currently active peers. Implements
// broadcaster.PeerLister.
func (b *PeerBook) ListPeerIDs() ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	ids := make([]string, 0, len(b.peers))
	for id, state := range b.peers {
		if state.active {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// Penalize records a schema violation against peerID, dropping it from
// the active set once it accrues maxViolations. Implements
// transport.PeerPenalizer.
func (b *PeerBook) Penalize(peerID string, reason string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	state, ok := b.peers[peerID]
	if !ok {
		return
	}
	state.violations++
	log.Warnf("peer %s penalized (%d/%d): %s", peerID, state.violations, maxViolations, reason)
	if state.violations >= maxViolations {
		state.active = false
	}
}

// ChooseForwardPeer picks a uniformly random active peer to sync
// against. Implements loader.Transport.
func (b *PeerBook) ChooseForwardPeer() (string, bool, error) {
	ids, err := b.ListPeerIDs()
	if err != nil {
		return "", false, chainerrors.NewNetworkError("listing peers", err)
	}
	if len(ids) == 0 {
		return "", false, nil
	}
	return ids[rand.Intn(len(ids))], true, nil
}
