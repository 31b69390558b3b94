// Package peers tracks the broadhash consensus of the peer set the
// network collaborator maintains. It holds no peer state of its own; a
// connected peer's moduleAlias/broadhash is whatever the network
// collaborator currently reports.
package peers

import (
	"math"
	"sync"

	"github.com/Leasehold/leasehold/config"
)

// MaxPeers caps the denominator calculateConsensus clamps against, so a
// misbehaving network collaborator reporting an enormous peer count
// cannot produce a runaway ratio.
const MaxPeers = 100

// Peer is the subset of a connected peer's advertised state Peers needs.
type Peer struct {
	ID          string
	ModuleAlias string
	Broadhash   string
	Active      bool
}

// NetworkSource is the peer-to-peer transport collaborator, queried for
// the currently connected peer set.
type NetworkSource interface {
	ConnectedPeers() ([]Peer, error)
}

// Peers computes broadhash consensus ratio against the connected peer
// set and caches the last value computed by the periodic job so readers
// outside Sequence have something to observe without forcing a query.
type Peers struct {
	params *config.Params
	source NetworkSource

	mu            sync.RWMutex
	lastConsensus float64
}

// New builds a Peers tracker bound to params and source.
func New(params *config.Params, source NetworkSource) *Peers {
	return &Peers{params: params, source: source}
}

// CalculateConsensus queries the connected peer set, matches those
// advertising moduleAlias with broadhash, and returns the percentage of
// matched peers among active ones, clamped by MaxPeers and rounded to
// two decimals. It always recomputes; it does not read or write the
// cached value.
func (p *Peers) CalculateConsensus(moduleAlias, broadhash string) (float64, error) {
	all, err := p.source.ConnectedPeers()
	if err != nil {
		return 0, err
	}

	var active, matched int
	for _, peer := range all {
		if active >= MaxPeers {
			break
		}
		if !peer.Active {
			continue
		}
		active++
		if peer.ModuleAlias == moduleAlias && peer.Broadhash == broadhash {
			matched++
		}
	}

	if active == 0 {
		return 0, nil
	}

	ratio := float64(matched) / float64(active) * 100
	return math.Round(ratio*100) / 100, nil
}

// RefreshConsensus runs CalculateConsensus and stores the result for
// LastConsensus to read. Called by the periodic consensus job.
func (p *Peers) RefreshConsensus(moduleAlias, broadhash string) (float64, error) {
	consensus, err := p.CalculateConsensus(moduleAlias, broadhash)
	if err != nil {
		return 0, err
	}
	p.mu.Lock()
	p.lastConsensus = consensus
	p.mu.Unlock()
	return consensus, nil
}

// LastConsensus returns the value written by the most recent
// RefreshConsensus call, or 0 before the first has run.
func (p *Peers) LastConsensus() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastConsensus
}

// IsPoorConsensus reports whether consensus is below
// MinBroadhashConsensus, unless forgingForce is set. Consensus is
// advisory: forging refuses on poor consensus, nothing else does.
func (p *Peers) IsPoorConsensus(consensus float64, forgingForce bool) bool {
	if forgingForce {
		return false
	}
	return consensus < p.params.MinBroadhashConsensus
}
