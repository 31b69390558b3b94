package types

import "sync"

// TransactionHandler implements the semantics of one TransactionType:
// structural validation, unconfirmed (u_state) apply/undo, and confirmed
// apply/undo against account state. Concrete transaction type
// implementations are provided by the embedding application; leasehold
// itself registers only the built-in Transfer handler and exposes
// RegisterTransactionType for the rest: a tagged variant dispatched
// through a registry from tag to handler interface, populated at boot.
type TransactionHandler interface {
	// ValidateAsset checks the type-specific asset schema.
	ValidateAsset(tx *Transaction) error

	// ApplyUnconfirmed mutates sender (and recipient, if any) in place
	// against the unconfirmed (u_balance) shadow state.
	ApplyUnconfirmed(tx *Transaction, sender, recipient *Account) error

	// UndoUnconfirmed reverses ApplyUnconfirmed.
	UndoUnconfirmed(tx *Transaction, sender, recipient *Account) error

	// ApplyConfirmed mutates sender (and recipient, if any) in place
	// against confirmed balance state.
	ApplyConfirmed(tx *Transaction, sender, recipient *Account) error

	// UndoConfirmed reverses ApplyConfirmed, used by Blocks.deleteLastBlock.
	UndoConfirmed(tx *Transaction, sender, recipient *Account) error
}

var (
	registryMu sync.RWMutex
	registry   = map[TransactionType]TransactionHandler{}
)

// RegisterTransactionType registers (or overwrites) the handler for tag.
// Called at boot, before any transaction of that type is processed.
func RegisterTransactionType(tag TransactionType, handler TransactionHandler) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[tag] = handler
}

// HandlerFor returns the registered handler for tag, if any.
func HandlerFor(tag TransactionType) (TransactionHandler, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	h, ok := registry[tag]
	return h, ok
}

// transferHandler implements TransactionHandler for TypeTransfer, the one
// built-in variant leasehold fully owns (the rest are "provided by the
// embedding framework").
type transferHandler struct{}

func (transferHandler) ValidateAsset(tx *Transaction) error {
	return nil // TransferAsset.Data has no further schema beyond its length prefix
}

func (transferHandler) ApplyUnconfirmed(tx *Transaction, sender, recipient *Account) error {
	sender.UBalance -= int64(tx.Amount) + int64(tx.Fee)
	if recipient != nil {
		recipient.UBalance += int64(tx.Amount)
	}
	return nil
}

func (transferHandler) UndoUnconfirmed(tx *Transaction, sender, recipient *Account) error {
	sender.UBalance += int64(tx.Amount) + int64(tx.Fee)
	if recipient != nil {
		recipient.UBalance -= int64(tx.Amount)
	}
	return nil
}

func (transferHandler) ApplyConfirmed(tx *Transaction, sender, recipient *Account) error {
	sender.Balance -= int64(tx.Amount) + int64(tx.Fee)
	if recipient != nil {
		recipient.Balance += int64(tx.Amount)
	}
	return nil
}

func (transferHandler) UndoConfirmed(tx *Transaction, sender, recipient *Account) error {
	sender.Balance += int64(tx.Amount) + int64(tx.Fee)
	if recipient != nil {
		recipient.Balance -= int64(tx.Amount)
	}
	return nil
}

func init() {
	RegisterTransactionType(TypeTransfer, transferHandler{})
}
