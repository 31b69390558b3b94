// Package txpool implements the four-queue transaction
// pool (received, validated, verified/ready, pending) and the u_state
// shadow of account balances it owns exclusively.
package txpool

import (
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/Leasehold/leasehold/chainerrors"
	"github.com/Leasehold/leasehold/config"
	"github.com/Leasehold/leasehold/types"
)

// AccountSource resolves confirmed account state. It is the read side of
// the store collaborator.
type AccountSource interface {
	GetAccount(address string) (*types.Account, bool, error)
}

// EventBus is the narrow publish surface txpool needs; satisfied by
// eventbus.Bus.
type EventBus interface {
	Publish(topic string, payload interface{})
}

// BroadcastEnqueuer is the narrow surface of Broadcaster that txpool
// needs to schedule outbound transaction announcements.
type BroadcastEnqueuer interface {
	EnqueueTransaction(tx *types.Transaction)
}

// Pool event topics, published on EventBus.
const (
	EventUnconfirmedTransaction = "transactions:unconfirmed"
	EventSignature              = "transactions:signature"
)

// Counts is the per-queue size snapshot returned by GetCount.
type Counts struct {
	Received  int
	Validated int
	Ready     int
	Pending   int
}

// Config bundles txpool's collaborators and tunables.
type Config struct {
	Params            *config.Params
	Accounts          AccountSource
	Events            EventBus
	Broadcaster       BroadcastEnqueuer
	MaxPerQueue       int
	ExpiryInterval    time.Duration
}

// Pool is the transaction pool: received, validated, verified, and pending queues.
type Pool struct {
	cfg Config

	received  *queue
	validated *queue
	verified  *queue
	pending   *pendingQueue

	senderMu sync.Mutex
	sender   map[string]map[string]struct{} // senderID -> set of txID

	shadowMu sync.Mutex
	shadow   map[string]*types.Account // address -> cloned, mutated confirmed+unconfirmed state

	stopExpiry chan struct{}
	closeOnce  sync.Once
}

// New builds a Pool from cfg.
func New(cfg Config) *Pool {
	p := &Pool{
		cfg:        cfg,
		received:   newQueue(cfg.MaxPerQueue),
		validated:  newQueue(cfg.MaxPerQueue),
		verified:   newQueue(cfg.MaxPerQueue),
		pending:    newPendingQueue(cfg.MaxPerQueue),
		sender:     make(map[string]map[string]struct{}),
		shadow:     make(map[string]*types.Account),
		stopExpiry: make(chan struct{}),
	}
	go p.expiryLoop()
	return p
}

// Close stops the pending-queue expiry ticker. Close is idempotent.
func (p *Pool) Close() {
	p.closeOnce.Do(func() { close(p.stopExpiry) })
}

func (p *Pool) expiryLoop() {
	interval := p.cfg.ExpiryInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			expired := p.pending.evictExpired(time.Now())
			for _, tx := range expired {
				p.untrackSender(tx)
				log.Debugf("pending transaction %s expired", tx.ID)
			}
		case <-p.stopExpiry:
			return
		}
	}
}

func (p *Pool) trackSender(tx *types.Transaction) bool {
	p.senderMu.Lock()
	defer p.senderMu.Unlock()
	ids, ok := p.sender[tx.SenderID]
	if !ok {
		ids = make(map[string]struct{})
		p.sender[tx.SenderID] = ids
	}
	if _, exists := ids[tx.ID]; exists {
		return false
	}
	ids[tx.ID] = struct{}{}
	return true
}

func (p *Pool) untrackSender(tx *types.Transaction) {
	p.senderMu.Lock()
	defer p.senderMu.Unlock()
	if ids, ok := p.sender[tx.SenderID]; ok {
		delete(ids, tx.ID)
		if len(ids) == 0 {
			delete(p.sender, tx.SenderID)
		}
	}
}

// inAnyQueue reports whether id already lives in one of the four queues,
// enforcing that a tx is in exactly one queue at a time.
func (p *Pool) inAnyQueue(id string) bool {
	return p.received.has(id) || p.validated.has(id) || p.verified.has(id) || p.pending.has(id)
}

// Add validates tx structurally and places it in the received queue. If
// bundled, it is tagged for deferred batch broadcast instead of being
// scheduled immediately.
func (p *Pool) Add(tx *types.Transaction, bundled bool) error {
	if p.inAnyQueue(tx.ID) {
		return chainerrors.NewPoolError("duplicate transaction "+tx.ID, nil)
	}

	if err := p.validateStructure(tx); err != nil {
		return err
	}

	if !p.trackSender(tx) {
		return chainerrors.NewPoolError("duplicate transaction "+tx.ID+" for sender "+tx.SenderID, nil)
	}

	tx.Bundled = bundled
	if tx.ReceivedAt == 0 {
		tx.ReceivedAt = time.Now().UnixNano()
	}

	if p.received.isFull() {
		if !p.evictForIncoming(p.received, tx) {
			p.untrackSender(tx)
			return chainerrors.NewPoolError("received queue full", nil)
		}
	}

	p.received.add(tx)
	return nil
}

// evictForIncoming makes room in q for incoming by evicting the queue's
// oldest lowest-fee-per-byte entry, but only if incoming out-earns it;
// returns whether room was made.
func (p *Pool) evictForIncoming(q *queue, incoming *types.Transaction) bool {
	worstID, ok := q.oldestLowestFeeID()
	if !ok {
		return true
	}
	worst, _ := q.get(worstID)
	if incoming.FeePerByte() <= worst.FeePerByte() {
		return false
	}
	if removed, ok := q.remove(worstID); ok {
		p.untrackSender(removed)
	}
	return true
}

// validateStructure checks the structural/signature invariants of
// common to every transaction type, then defers to the
// registered type handler for the asset schema.
func (p *Pool) validateStructure(tx *types.Transaction) error {
	if tx.ID == "" || tx.SenderPublicKey == nil || tx.Signature == nil {
		return chainerrors.NewValidationError("missing required transaction field", nil)
	}

	computedID, err := tx.ComputeID()
	if err != nil {
		return chainerrors.NewValidationError("computing transaction id", err)
	}
	if computedID != tx.ID {
		return chainerrors.NewValidationError("transaction id does not match canonical hash", nil)
	}

	ok, err := tx.VerifySignature()
	if err != nil {
		return chainerrors.NewValidationError("verifying transaction signature", err)
	}
	if !ok {
		return chainerrors.NewConsensusError("invalid transaction signature for "+tx.ID, nil)
	}

	handler, found := types.HandlerFor(tx.Type)
	if !found {
		return chainerrors.NewValidationError("unregistered transaction type", nil)
	}
	if err := handler.ValidateAsset(tx); err != nil {
		return chainerrors.NewValidationError("invalid asset for "+tx.ID, err)
	}

	return nil
}

// shadowAccount returns (creating if necessary from confirmed state) the
// pool's mutable shadow entry for address. Must only be called from
// within Sequence.
func (p *Pool) shadowAccount(address string) (*types.Account, error) {
	p.shadowMu.Lock()
	defer p.shadowMu.Unlock()

	if acc, ok := p.shadow[address]; ok {
		return acc, nil
	}

	acc, found, err := p.cfg.Accounts.GetAccount(address)
	if err != nil {
		return nil, errors.Wrap(err, "loading account for pool shadow state")
	}
	if !found {
		acc = &types.Account{Address: address}
	} else {
		acc = acc.Clone()
	}
	p.shadow[address] = acc
	return acc, nil
}

// ProcessUnconfirmedTransaction flows tx from received/validated through
// to verified synchronously: structural validation was already done by
// Add, so this step performs the unconfirmed (u_state) apply. On success
// it emits EventUnconfirmedTransaction and, if broadcast, hands tx to the
// Broadcaster.
func (p *Pool) ProcessUnconfirmedTransaction(tx *types.Transaction, broadcast bool) error {
	if err := p.validateStructure(tx); err != nil {
		return err
	}
	p.validated.add(tx) // transient marker state; immediately promoted below

	handler, _ := types.HandlerFor(tx.Type)

	sender, err := p.shadowAccount(tx.SenderID)
	if err != nil {
		p.validated.remove(tx.ID)
		return err
	}

	var recipient *types.Account
	if tx.RecipientID != "" {
		recipient, err = p.shadowAccount(tx.RecipientID)
		if err != nil {
			p.validated.remove(tx.ID)
			return err
		}
	}

	if err := handler.ApplyUnconfirmed(tx, sender, recipient); err != nil {
		p.validated.remove(tx.ID)
		return chainerrors.NewStateError("applying unconfirmed transaction "+tx.ID, err)
	}
	if sender.UBalance < 0 {
		handler.UndoUnconfirmed(tx, sender, recipient)
		p.validated.remove(tx.ID)
		return chainerrors.NewStateError("insufficient unconfirmed balance for "+tx.SenderID, nil)
	}

	p.validated.remove(tx.ID)
	p.received.remove(tx.ID)

	if sender.Multimin > 1 && len(tx.Signatures) < sender.Multimin {
		p.pending.add(tx, time.Duration(sender.Multilifetime)*time.Second)
	} else {
		p.verified.add(tx)
	}

	if p.cfg.Events != nil {
		p.cfg.Events.Publish(EventUnconfirmedTransaction, tx)
	}
	if broadcast && p.cfg.Broadcaster != nil {
		p.cfg.Broadcaster.EnqueueTransaction(tx)
	}

	return nil
}

// AddSignature appends a signature to a multisig transaction waiting in
// the pending queue, promoting it to the ready queue once it reaches
// requiredSignatures.
func (p *Pool) AddSignature(id string, sig types.SignerSignature, requiredSignatures int) (*types.Transaction, error) {
	tx, ok := p.pending.addSignature(id, sig)
	if !ok {
		return nil, chainerrors.NewPoolError("unknown pending transaction "+id, nil)
	}

	if len(tx.Signatures) >= requiredSignatures {
		if promoted, ok := p.pending.remove(id); ok {
			p.verified.add(promoted)
		}
	}

	if p.cfg.Events != nil {
		p.cfg.Events.Publish(EventSignature, tx)
	}
	return tx, nil
}

// GetMergedTransactionList returns up to limit ready transactions ordered
// by fee-per-byte descending then receivedAt ascending (or the reverse of
// that order, if reverse is set).
func (p *Pool) GetMergedTransactionList(reverse bool, limit int) []*types.Transaction {
	list := p.verified.list()

	sort.SliceStable(list, func(i, j int) bool {
		fi, fj := list[i].FeePerByte(), list[j].FeePerByte()
		if fi != fj {
			return fi > fj
		}
		return list[i].ReceivedAt < list[j].ReceivedAt
	})

	if reverse {
		for i, j := 0, len(list)-1; i < j; i, j = i+1, j-1 {
			list[i], list[j] = list[j], list[i]
		}
	}

	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list
}

// GetCount returns the current size of each queue.
func (p *Pool) GetCount() Counts {
	return Counts{
		Received:  p.received.len(),
		Validated: p.validated.len(),
		Ready:     p.verified.len(),
		Pending:   p.pending.len(),
	}
}

// GetPooledTransactions returns ready transactions of the given type
// (pass -1 to match any type) for which filter returns true.
func (p *Pool) GetPooledTransactions(transactionType int, filter func(*types.Transaction) bool) []*types.Transaction {
	var out []*types.Transaction
	for _, tx := range p.verified.list() {
		if transactionType >= 0 && int(tx.Type) != transactionType {
			continue
		}
		if filter != nil && !filter(tx) {
			continue
		}
		out = append(out, tx)
	}
	return out
}

// OnConfirmedTransactions removes txs from every queue: they now live
// only in committed chain state.
func (p *Pool) OnConfirmedTransactions(txs []*types.Transaction) {
	for _, tx := range txs {
		p.received.remove(tx.ID)
		p.validated.remove(tx.ID)
		p.verified.remove(tx.ID)
		p.pending.remove(tx.ID)
		p.untrackSender(tx)
	}
}

// OnDeletedTransactions re-inserts txs at the head of the ready queue, in
// reverse order, on a block-deletion round trip. OnConfirmedTransactions
// never reverses the unconfirmed-apply debit a transaction took against
// the shadow state when it was first ingested, so that balance
// reservation is still in place and the shadow state is left untouched
// here: neither applied a second time nor undone.
func (p *Pool) OnDeletedTransactions(txs []*types.Transaction) {
	for i := len(txs) - 1; i >= 0; i-- {
		tx := txs[i]
		p.trackSender(tx)
		p.verified.addFront(tx)
	}
}
