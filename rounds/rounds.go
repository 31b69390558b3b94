// Package rounds implements delegate-list generation for a
// round and the reward/fee settlement that runs when a round closes.
package rounds

import (
	"crypto/ed25519"
	"encoding/binary"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/Leasehold/leasehold/config"
	"github.com/Leasehold/leasehold/crypto"
	"github.com/Leasehold/leasehold/slots"
	"github.com/Leasehold/leasehold/types"
)

// AccountSource resolves the top-voted delegate accounts as of a given
// round's starting height. It is backed by the store collaborator.
type AccountSource interface {
	TopDelegates(atHeight uint64, limit int) ([]*types.Account, error)
}

// RewardStore persists the per-delegate reward/fee settlement of a closed
// round. It is backed by the store collaborator (rounds_rewards table).
type RewardStore interface {
	RecordRoundRewards(round uint64, rewards map[string]uint64) error
}

// Rounds generates delegate lists and settles closed rounds.
type Rounds struct {
	params  *config.Params
	slots   *slots.Slots
	source  AccountSource
	rewards RewardStore

	ticking int32
}

// New builds a Rounds bound to the given collaborators.
func New(params *config.Params, sl *slots.Slots, source AccountSource, rewards RewardStore) *Rounds {
	return &Rounds{params: params, slots: sl, source: source, rewards: rewards}
}

// Ticking reports whether a round boundary is currently being applied
// under Sequence.
func (r *Rounds) Ticking() bool {
	return atomic.LoadInt32(&r.ticking) == 1
}

// GenerateDelegateList returns the ActiveDelegates-long shuffled delegate
// list for round. If source is non-nil it overrides the top-voted lookup;
// this override hook is used only by replay/rebuild.
func (r *Rounds) GenerateDelegateList(round uint64, source []ed25519.PublicKey, previousRoundLastBlockID string) ([]ed25519.PublicKey, error) {
	var delegates []ed25519.PublicKey

	if source != nil {
		delegates = source
	} else {
		atHeight := r.slots.FirstHeightOfRound(round)
		accounts, err := r.source.TopDelegates(atHeight, int(r.params.ActiveDelegates))
		if err != nil {
			return nil, errors.Wrap(err, "loading top-voted delegates")
		}
		delegates = make([]ed25519.PublicKey, len(accounts))
		for i, a := range accounts {
			delegates[i] = a.PublicKey
		}
	}

	if uint64(len(delegates)) != r.params.ActiveDelegates {
		log.Warnf("round %d has %d delegates, want %d", round, len(delegates), r.params.ActiveDelegates)
	}

	return shuffle(delegates, previousRoundLastBlockID), nil
}

// shuffle deterministically permutes delegates using a Fisher-Yates
// shuffle driven by a hash stream seeded from the previous round's last
// block id, so every node reproduces the same order from the same chain
// state.
func shuffle(delegates []ed25519.PublicKey, seed string) []ed25519.PublicKey {
	out := make([]ed25519.PublicKey, len(delegates))
	copy(out, delegates)

	var lastHash [crypto.HashSize]byte // scratch state for the hash stream, local to this call
	counter := uint32(0)
	nextRandomByte := func() byte {
		idx := counter % crypto.HashSize
		if idx == 0 {
			block := make([]byte, len(seed)+4)
			copy(block, seed)
			binary.LittleEndian.PutUint32(block[len(seed):], counter/crypto.HashSize)
			lastHash = crypto.Hash(block)
		}
		counter++
		return lastHash[idx]
	}

	for i := len(out) - 1; i > 0; i-- {
		j := int(nextRandomByte()) % (i + 1)
		out[i], out[j] = out[j], out[i]
	}

	return out
}

// SettleRound distributes the round's accumulated fees across the
// delegates that produced its blocks: sum(fees)/ActiveDelegates per
// produced block, remainder to the last forger. Block reward itself was
// already credited at append time; SettleRound only
// handles the fee split.
func (r *Rounds) SettleRound(round uint64, blocksInRound []*types.Block, applyFee func(generatorAddress string, amount uint64) error) error {
	atomic.StoreInt32(&r.ticking, 1)
	defer atomic.StoreInt32(&r.ticking, 0)

	if len(blocksInRound) == 0 {
		return nil
	}

	var totalFee uint64
	for _, b := range blocksInRound {
		totalFee += b.TotalFee
	}

	share := totalFee / r.params.ActiveDelegates
	remainder := totalFee - share*r.params.ActiveDelegates

	rewards := make(map[string]uint64, len(blocksInRound))
	for i, b := range blocksInRound {
		amount := share
		if i == len(blocksInRound)-1 {
			amount += remainder
		}
		addr := crypto.DeriveAddress(b.GeneratorPublicKey)
		rewards[addr] += amount
		if err := applyFee(addr, amount); err != nil {
			return errors.Wrapf(err, "crediting round %d fee share to %s", round, addr)
		}
	}

	if err := r.rewards.RecordRoundRewards(round, rewards); err != nil {
		return errors.Wrapf(err, "recording round %d rewards", round)
	}

	return nil
}
