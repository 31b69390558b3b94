package txpool

import (
	"sync"

	"github.com/Leasehold/leasehold/types"
)

// queue is an insertion-ordered, capacity-bounded id -> transaction
// mapping used for each of the pool's four internal queues. It is the
// simple map+slice idiom used throughout for
// its own pool/orphan maps (domain/mempool.TxPool.pool), generalized with
// an explicit order slice since, unlike a plain Go map, the pool requires
// insertion order to be observable (for getMergedTransactionList's
// receivedAt-ascending tiebreak and for pending-queue expiry scans).
type queue struct {
	mu       sync.RWMutex
	capacity int
	order    []string
	items    map[string]*types.Transaction
}

func newQueue(capacity int) *queue {
	return &queue{
		capacity: capacity,
		items:    make(map[string]*types.Transaction),
	}
}

// add inserts tx at the tail. Returns false if tx.ID is already present.
func (q *queue) add(tx *types.Transaction) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, exists := q.items[tx.ID]; exists {
		return false
	}
	q.items[tx.ID] = tx
	q.order = append(q.order, tx.ID)
	return true
}

// addFront inserts tx at the head, used by onDeletedTransactions's
// reverse re-insertion.
func (q *queue) addFront(tx *types.Transaction) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, exists := q.items[tx.ID]; exists {
		return false
	}
	q.items[tx.ID] = tx
	q.order = append([]string{tx.ID}, q.order...)
	return true
}

// remove deletes id, if present, and returns the removed transaction.
func (q *queue) remove(id string) (*types.Transaction, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	tx, ok := q.items[id]
	if !ok {
		return nil, false
	}
	delete(q.items, id)
	for i, existing := range q.order {
		if existing == id {
			q.order = append(q.order[:i], q.order[i+1:]...)
			break
		}
	}
	return tx, true
}

func (q *queue) get(id string) (*types.Transaction, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	tx, ok := q.items[id]
	return tx, ok
}

func (q *queue) has(id string) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	_, ok := q.items[id]
	return ok
}

func (q *queue) len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.order)
}

func (q *queue) isFull() bool {
	return q.len() >= q.capacity
}

// list returns every transaction in insertion order. The returned slice is
// a snapshot; mutating it does not affect the queue.
func (q *queue) list() []*types.Transaction {
	q.mu.RLock()
	defer q.mu.RUnlock()
	out := make([]*types.Transaction, 0, len(q.order))
	for _, id := range q.order {
		out = append(out, q.items[id])
	}
	return out
}

// oldestLowestFeeID returns the id of the non-ready item (by convention,
// callers only invoke this on the received/validated queues) with the
// lowest fee-per-byte, breaking ties toward the oldest entry, for the
// overflow-eviction policy.
func (q *queue) oldestLowestFeeID() (string, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if len(q.order) == 0 {
		return "", false
	}
	worstID := q.order[0]
	worstFee := q.items[worstID].FeePerByte()
	for _, id := range q.order[1:] {
		fee := q.items[id].FeePerByte()
		if fee < worstFee {
			worstFee = fee
			worstID = id
		}
	}
	return worstID, true
}
