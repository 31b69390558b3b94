// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package config

import "time"

// Rewards describes the block-reward milestone schedule used by
// calculateSupply/calculateMilestone/calculateReward.
type Rewards struct {
	// Distance is the number of blocks between two reward milestones.
	Distance uint64

	// Offset is the height of the first milestone.
	Offset uint64

	// Milestones is the reward paid at each successive milestone, in the
	// smallest account unit. The last entry repeats forever once reached.
	Milestones []uint64
}

// CalculateMilestone returns the index into Milestones that height falls
// under: floor((height-Offset)/Distance), clamped to the last entry once
// the schedule bottoms out.
func (r Rewards) CalculateMilestone(height uint64) int {
	if len(r.Milestones) == 0 {
		return 0
	}
	if height < r.Offset {
		return 0
	}
	idx := int((height - r.Offset) / r.Distance)
	if idx >= len(r.Milestones) {
		idx = len(r.Milestones) - 1
	}
	return idx
}

// CalculateReward returns the per-block reward at height. Genesis pays
// no reward.
func (r Rewards) CalculateReward(height uint64) uint64 {
	if height <= 1 || len(r.Milestones) == 0 {
		return 0
	}
	return r.Milestones[r.CalculateMilestone(height)]
}

// CalculateSupply returns the total reward minted from block 2 through
// height, summing whole milestone intervals plus the partial interval
// height currently sits in.
func (r Rewards) CalculateSupply(height uint64) uint64 {
	if height <= 1 || len(r.Milestones) == 0 {
		return 0
	}
	milestone := r.CalculateMilestone(height)

	var supply uint64
	start := uint64(2) // first rewarded height of the current interval
	for m := 0; m < milestone; m++ {
		end := r.Offset + uint64(m+1)*r.Distance // first height of milestone m+1
		supply += (end - start) * r.Milestones[m]
		start = end
	}
	supply += (height - start + 1) * r.Milestones[milestone]
	return supply
}

// Params holds the network-wide constants of a leasehold chain. Params is
// immutable once constructed and is passed by reference into every
// component constructor; nothing mutates it after boot.
type Params struct {
	// EpochTime is the reference instant from which Slots computes
	// epoch-relative seconds.
	EpochTime time.Time

	// BlockTime is the width, in seconds, of a single slot.
	BlockTime uint64

	// ActiveDelegates is the number of delegates forging in a round.
	ActiveDelegates uint64

	// MaxPayloadLength is the maximum total transaction-byte length of a
	// block's payload.
	MaxPayloadLength uint64

	// MaxTransactionsPerBlock bounds the number of transactions a single
	// block may carry.
	MaxTransactionsPerBlock int

	// MaxSharedTransactions bounds how many pooled transactions are
	// returned to a peer by getTransactions.
	MaxSharedTransactions int

	// BlockReceiptTimeout is how long without a new block before the
	// chain considers itself stale and triggers a sync.
	BlockReceiptTimeout time.Duration

	// ExpiryInterval is the tick period for pending (multisig) queue
	// expiry scans.
	ExpiryInterval time.Duration

	// BlockSlotWindow is the number of past slots Forger/Blocks will
	// still accept a block for, guarding against excessive clock skew.
	BlockSlotWindow uint64

	// MinBroadhashConsensus is the percentage (0-100) below which
	// forging is refused unless forcing is enabled.
	MinBroadhashConsensus float64

	// Rewards is the block-reward milestone schedule.
	Rewards Rewards

	// TotalAmount is the fixed total token supply.
	TotalAmount uint64

	// ModuleAlias is this node's identifier in peer broadhash
	// advertisements and host-channel event topic prefixes
	// ("{alias}:blocks:change", ...).
	ModuleAlias string
}

// MainNetParams are the default production network constants.
var MainNetParams = Params{
	EpochTime:               time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
	BlockTime:               10,
	ActiveDelegates:         101,
	MaxPayloadLength:        1024 * 1024,
	MaxTransactionsPerBlock: 25,
	MaxSharedTransactions:   100,
	BlockReceiptTimeout:     20 * time.Second,
	ExpiryInterval:          30 * time.Second,
	BlockSlotWindow:         5,
	MinBroadhashConsensus:   51,
	Rewards: Rewards{
		Distance:   3000000,
		Offset:     1451520,
		Milestones: []uint64{500000000, 400000000, 300000000, 200000000, 100000000},
	},
	TotalAmount: 10000000000000000,
	ModuleAlias: "leasehold",
}
