package txpool

import (
	"sync"
	"time"

	"github.com/Leasehold/leasehold/types"
)

// pendingQueue holds multisig transactions awaiting additional signatures
// until their sender's multilifetime elapses.
type pendingQueue struct {
	mu       sync.RWMutex
	capacity int
	items    map[string]*pendingEntry
	order    []string
}

type pendingEntry struct {
	tx        *types.Transaction
	expiresAt time.Time
}

func newPendingQueue(capacity int) *pendingQueue {
	return &pendingQueue{capacity: capacity, items: make(map[string]*pendingEntry)}
}

// add places tx in the pending queue with a deadline ttl from now.
func (q *pendingQueue) add(tx *types.Transaction, ttl time.Duration) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, exists := q.items[tx.ID]; exists {
		return false
	}
	if len(q.order) >= q.capacity {
		return false
	}
	q.items[tx.ID] = &pendingEntry{tx: tx, expiresAt: time.Now().Add(ttl)}
	q.order = append(q.order, tx.ID)
	return true
}

// addSignature appends a signature to a pending transaction's signature
// set, returning the updated transaction.
func (q *pendingQueue) addSignature(id string, sig types.SignerSignature) (*types.Transaction, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	entry, ok := q.items[id]
	if !ok {
		return nil, false
	}
	entry.tx.Signatures = append(entry.tx.Signatures, sig)
	return entry.tx, true
}

func (q *pendingQueue) has(id string) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	_, ok := q.items[id]
	return ok
}

func (q *pendingQueue) remove(id string) (*types.Transaction, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	entry, ok := q.items[id]
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
	return entry.tx, true
}

func (q *pendingQueue) len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.order)
}

// evictExpired removes and returns every entry whose deadline is before
// now, for the periodic expiry tick.
func (q *pendingQueue) evictExpired(now time.Time) []*types.Transaction {
	q.mu.Lock()
	defer q.mu.Unlock()

	var expired []*types.Transaction
	remaining := q.order[:0]
	for _, id := range q.order {
		entry := q.items[id]
		if now.After(entry.expiresAt) {
			expired = append(expired, entry.tx)
			delete(q.items, id)
			continue
		}
		remaining = append(remaining, id)
	}
	q.order = remaining
	return expired
}
