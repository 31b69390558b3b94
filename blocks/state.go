package blocks

import "sync/atomic"

// State is one of the chain-state-machine states.
type State int32

// The states a Blocks instance can be in.
const (
	StateLoading State = iota
	StateSynced
	StateSyncing
	StateRebuilding
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateSynced:
		return "synced"
	case StateSyncing:
		return "syncing"
	case StateRebuilding:
		return "rebuilding"
	default:
		return "unknown"
	}
}

type stateHolder struct {
	v int32
}

func (h *stateHolder) get() State {
	return State(atomic.LoadInt32(&h.v))
}

func (h *stateHolder) set(s State) {
	atomic.StoreInt32(&h.v, int32(s))
}

// Event topics published by Blocks on its EventBus.
const (
	EventNewBlock      = "blocks:new"
	EventDeleteBlock   = "blocks:delete"
	EventBroadcastBlock = "blocks:broadcast"
	EventNewBroadhash   = "blocks:broadhash"
)

// NewBlockEvent is the payload published on EventNewBlock.
type NewBlockEvent struct {
	Block     interface{}
	Broadcast bool
}
