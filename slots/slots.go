// Package slots implements pure time arithmetic mapping
// wall-clock time to epoch seconds, slot numbers, and rounds. Every
// function here is pure and depends only on the injected config.Params.
package slots

import (
	"time"

	"github.com/Leasehold/leasehold/config"
)

// Slots converts wall-clock time to the chain's slot/round coordinates.
type Slots struct {
	params *config.Params
}

// New builds a Slots calculator bound to params.
func New(params *config.Params) *Slots {
	return &Slots{params: params}
}

// GetEpochTime returns the number of whole seconds between
// params.EpochTime and ms (milliseconds since the Unix epoch). If ms is
// zero, the current time is used.
func (s *Slots) GetEpochTime(ms int64) uint64 {
	if ms == 0 {
		ms = time.Now().UnixMilli()
	}
	elapsedMS := ms - s.params.EpochTime.UnixMilli()
	if elapsedMS < 0 {
		return 0
	}
	return uint64(elapsedMS / 1000)
}

// GetTime is an alias for GetEpochTime kept for symmetry with the rest of
// this package's operation list; both compute epoch-relative seconds.
func (s *Slots) GetTime(ms int64) uint64 {
	return s.GetEpochTime(ms)
}

// GetRealTime converts epoch-relative seconds back to milliseconds since
// the Unix epoch.
func (s *Slots) GetRealTime(epochTimeSeconds uint64) int64 {
	return s.params.EpochTime.UnixMilli() + int64(epochTimeSeconds)*1000
}

// GetSlotNumber returns the slot index for epochTime (epoch-relative
// seconds); an epochTime of 0 is slot 0. GetSlotNumberFromNow gives the
// slot for the current time.
func (s *Slots) GetSlotNumber(epochTime uint64) uint64 {
	return epochTime / s.params.BlockTime
}

// GetSlotNumberFromNow returns the slot index for the current wall-clock
// time.
func (s *Slots) GetSlotNumberFromNow() uint64 {
	return s.GetSlotNumber(s.GetEpochTime(0))
}

// GetSlotTime returns the epoch-relative second at which slot begins.
func (s *Slots) GetSlotTime(slot uint64) uint64 {
	return slot * s.params.BlockTime
}

// GetNextSlot returns the slot immediately following the current one.
func (s *Slots) GetNextSlot() uint64 {
	return s.GetSlotNumberFromNow() + 1
}

// GetLastSlot returns the smallest multiple of ActiveDelegates strictly
// greater than nextSlot, i.e. the first slot of the round after the one
// nextSlot belongs to.
func (s *Slots) GetLastSlot(nextSlot uint64) uint64 {
	activeDelegates := s.params.ActiveDelegates
	return nextSlot + activeDelegates - (nextSlot % activeDelegates)
}

// CalcRound returns the round a block at height belongs to:
// round = ceil(height / ActiveDelegates).
func (s *Slots) CalcRound(height uint64) uint64 {
	activeDelegates := s.params.ActiveDelegates
	return (height + activeDelegates - 1) / activeDelegates
}

// DelegateIndexForSlot returns the index into a round's shuffled delegate
// list that is assigned to slot.
func (s *Slots) DelegateIndexForSlot(slot uint64) uint64 {
	return slot % s.params.ActiveDelegates
}

// FirstHeightOfRound returns the height of the first block in round.
func (s *Slots) FirstHeightOfRound(round uint64) uint64 {
	if round == 0 {
		return 1
	}
	return (round-1)*s.params.ActiveDelegates + 1
}

// LastHeightOfRound returns the height of the last block in round.
func (s *Slots) LastHeightOfRound(round uint64) uint64 {
	return round * s.params.ActiveDelegates
}

// IsLastHeightOfRound reports whether height closes its round.
func (s *Slots) IsLastHeightOfRound(height uint64) bool {
	return height%s.params.ActiveDelegates == 0
}
