package txpool

import (
	"crypto/ed25519"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Leasehold/leasehold/config"
	"github.com/Leasehold/leasehold/types"
)

type stubAccounts struct {
	accounts map[string]*types.Account
}

func (s *stubAccounts) GetAccount(address string) (*types.Account, bool, error) {
	acc, ok := s.accounts[address]
	return acc, ok, nil
}

type stubEvents struct {
	published []string
}

func (s *stubEvents) Publish(topic string, payload interface{}) {
	s.published = append(s.published, topic)
}

func signedTransfer(t *testing.T, pub ed25519.PublicKey, priv ed25519.PrivateKey, amount, fee uint64) *types.Transaction {
	tx := &types.Transaction{
		Type:            types.TypeTransfer,
		SenderPublicKey: pub,
		SenderID:        "sender-1",
		RecipientID:     "0000000000000000000000000000000000000000",
		Amount:          amount,
		Fee:             fee,
		Timestamp:       1,
		Asset:           &types.TransferAsset{},
	}
	unsigned, err := tx.CanonicalBytes(false)
	require.NoError(t, err)
	tx.Signature = ed25519.Sign(priv, unsigned)
	id, err := tx.ComputeID()
	require.NoError(t, err)
	tx.ID = id
	return tx
}

func newTestPool(t *testing.T, balance int64) (*Pool, *stubAccounts, *stubEvents) {
	accounts := &stubAccounts{accounts: map[string]*types.Account{
		"sender-1": {Address: "sender-1", Balance: balance, UBalance: balance},
	}}
	events := &stubEvents{}

	params := config.MainNetParams
	pool := New(Config{
		Params:         &params,
		Accounts:       accounts,
		Events:         events,
		MaxPerQueue:    10,
		ExpiryInterval: time.Hour,
	})
	t.Cleanup(pool.Close)
	return pool, accounts, events
}

func TestAddAndProcessUnconfirmed(t *testing.T) {
	pool, accounts, events := newTestPool(t, 1000)
	accPriv := ed25519.NewKeyFromSeed(make([]byte, ed25519.SeedSize))
	accounts.accounts["sender-1"].PublicKey = accPriv.Public().(ed25519.PublicKey)
	tx := signedTransfer(t, accounts.accounts["sender-1"].PublicKey, accPriv, 100, 1)

	require.NoError(t, pool.Add(tx, false))
	require.Equal(t, 1, pool.GetCount().Received)

	require.NoError(t, pool.ProcessUnconfirmedTransaction(tx, false))
	require.Equal(t, 0, pool.GetCount().Received)
	require.Equal(t, 1, pool.GetCount().Ready)
	require.Contains(t, events.published, EventUnconfirmedTransaction)

	shadow, err := pool.shadowAccount("sender-1")
	require.NoError(t, err)
	require.EqualValues(t, 1000-101, shadow.UBalance)
}

func TestProcessUnconfirmedRejectsOverdraw(t *testing.T) {
	pool, accounts, _ := newTestPool(t, 50)
	accPriv := ed25519.NewKeyFromSeed(make([]byte, ed25519.SeedSize))
	accounts.accounts["sender-1"].PublicKey = accPriv.Public().(ed25519.PublicKey)
	tx := signedTransfer(t, accounts.accounts["sender-1"].PublicKey, accPriv, 100, 1)

	require.NoError(t, pool.Add(tx, false))
	err := pool.ProcessUnconfirmedTransaction(tx, false)
	require.Error(t, err)
	require.Equal(t, 0, pool.GetCount().Ready)
}

func TestOnConfirmedAndOnDeletedTransactions(t *testing.T) {
	pool, accounts, _ := newTestPool(t, 1000)
	accPriv := ed25519.NewKeyFromSeed(make([]byte, ed25519.SeedSize))
	accounts.accounts["sender-1"].PublicKey = accPriv.Public().(ed25519.PublicKey)
	tx := signedTransfer(t, accounts.accounts["sender-1"].PublicKey, accPriv, 100, 1)

	require.NoError(t, pool.Add(tx, false))
	require.NoError(t, pool.ProcessUnconfirmedTransaction(tx, false))

	shadow, err := pool.shadowAccount("sender-1")
	require.NoError(t, err)
	require.EqualValues(t, 1000-101, shadow.UBalance)

	pool.OnConfirmedTransactions([]*types.Transaction{tx})
	require.Equal(t, Counts{}, pool.GetCount())

	pool.OnDeletedTransactions([]*types.Transaction{tx})
	require.Equal(t, 1, pool.GetCount().Ready)

	// Reinsertion must restore the balance reservation the transaction
	// held before confirmation, not undo it: OnConfirmedTransactions never
	// reverses the original debit, so undoing it again here would free up
	// room for a second transaction to overspend the same balance.
	shadow, err = pool.shadowAccount("sender-1")
	require.NoError(t, err)
	require.EqualValues(t, 1000-101, shadow.UBalance)
}

func TestOnDeletedTransactionsPreventsDoubleSpendAcrossReinsertion(t *testing.T) {
	pool, accounts, _ := newTestPool(t, 150)
	accPriv := ed25519.NewKeyFromSeed(make([]byte, ed25519.SeedSize))
	accounts.accounts["sender-1"].PublicKey = accPriv.Public().(ed25519.PublicKey)

	tx1 := signedTransfer(t, accounts.accounts["sender-1"].PublicKey, accPriv, 100, 1)
	require.NoError(t, pool.Add(tx1, false))
	require.NoError(t, pool.ProcessUnconfirmedTransaction(tx1, false))

	// Simulate tx1 being confirmed into a block, then that block getting
	// deleted (e.g. a chain reorg), putting tx1 back in the ready queue.
	pool.OnConfirmedTransactions([]*types.Transaction{tx1})
	pool.OnDeletedTransactions([]*types.Transaction{tx1})
	require.Equal(t, 1, pool.GetCount().Ready)

	// A second transaction spending the remaining balance must still be
	// rejected: tx1's reservation is still held, so there isn't room for
	// both to be forged.
	tx2 := signedTransfer(t, accounts.accounts["sender-1"].PublicKey, accPriv, 49, 1)
	require.NoError(t, pool.Add(tx2, false))
	err := pool.ProcessUnconfirmedTransaction(tx2, false)
	require.Error(t, err)
}

func TestMultisigSenderHeldPendingUntilThreshold(t *testing.T) {
	pool, accounts, events := newTestPool(t, 1000)
	accPriv := ed25519.NewKeyFromSeed(make([]byte, ed25519.SeedSize))
	accounts.accounts["sender-1"].PublicKey = accPriv.Public().(ed25519.PublicKey)
	accounts.accounts["sender-1"].Multimin = 2
	accounts.accounts["sender-1"].Multilifetime = 3600
	tx := signedTransfer(t, accounts.accounts["sender-1"].PublicKey, accPriv, 100, 1)

	require.NoError(t, pool.Add(tx, false))
	require.NoError(t, pool.ProcessUnconfirmedTransaction(tx, false))
	require.Equal(t, 1, pool.GetCount().Pending)
	require.Equal(t, 0, pool.GetCount().Ready)

	sig := types.SignerSignature{Signature: []byte("sig-1")}
	_, err := pool.AddSignature(tx.ID, sig, 2)
	require.NoError(t, err)
	require.Equal(t, 1, pool.GetCount().Pending)

	sig2 := types.SignerSignature{Signature: []byte("sig-2")}
	promoted, err := pool.AddSignature(tx.ID, sig2, 2)
	require.NoError(t, err)
	require.Len(t, promoted.Signatures, 2)
	require.Equal(t, 0, pool.GetCount().Pending)
	require.Equal(t, 1, pool.GetCount().Ready)
	require.Contains(t, events.published, EventSignature)
}

func TestDuplicateTransactionRejected(t *testing.T) {
	pool, accounts, _ := newTestPool(t, 1000)
	accPriv := ed25519.NewKeyFromSeed(make([]byte, ed25519.SeedSize))
	accounts.accounts["sender-1"].PublicKey = accPriv.Public().(ed25519.PublicKey)
	tx := signedTransfer(t, accounts.accounts["sender-1"].PublicKey, accPriv, 100, 1)

	require.NoError(t, pool.Add(tx, false))
	err := pool.Add(tx, false)
	require.Error(t, err)
}
