package cache

import (
	"crypto/ed25519"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Leasehold/leasehold/chain"
	"github.com/Leasehold/leasehold/types"
)

type fakeNext struct {
	accounts map[string]*types.Account
	saved    []string
	deleted  []string
}

func newFakeNext() *fakeNext {
	return &fakeNext{accounts: make(map[string]*types.Account)}
}

func (f *fakeNext) GetLastBlock() (*types.Block, bool, error)                   { return nil, false, nil }
func (f *fakeNext) GetBlock(id string) (*types.Block, bool, error)              { return nil, false, nil }
func (f *fakeNext) GetBlocksAfter(string, int) ([]*types.Block, error)          { return nil, nil }
func (f *fakeNext) GetBlockAtHeight(uint64) (*types.Block, bool, error)         { return nil, false, nil }
func (f *fakeNext) GetMaxHeight() (uint64, error)                               { return 0, nil }
func (f *fakeNext) GetBlocksBetweenHeights(uint64, uint64, int) ([]*types.Block, error) {
	return nil, nil
}
func (f *fakeNext) GetLastBlockAtOrBeforeTimestamp(uint64) (*types.Block, bool, error) {
	return nil, false, nil
}
func (f *fakeNext) RecentBlockIDs(int) ([]string, error) { return nil, nil }

func (f *fakeNext) SaveBlock(block *types.Block, deltas map[string]*types.Account) error {
	f.saved = append(f.saved, block.ID)
	for addr, acc := range deltas {
		f.accounts[addr] = acc
	}
	return nil
}

func (f *fakeNext) DeleteBlock(block *types.Block, deltas map[string]*types.Account) error {
	f.deleted = append(f.deleted, block.ID)
	for addr, acc := range deltas {
		f.accounts[addr] = acc
	}
	return nil
}

func (f *fakeNext) GetAccount(address string) (*types.Account, bool, error) {
	acc, ok := f.accounts[address]
	return acc, ok, nil
}

func (f *fakeNext) TopDelegates(uint64, int) ([]*types.Account, error) { return nil, nil }
func (f *fakeNext) RecordRoundRewards(uint64, map[string]uint64) error { return nil }
func (f *fakeNext) FindCommonBlock([]string) (string, bool, error)     { return "", false, nil }

func (f *fakeNext) MultisigWalletMembers(string) ([]string, error) { return nil, nil }
func (f *fakeNext) MinMultisigRequiredSignatures(string) (int, bool, error) {
	return 0, false, nil
}
func (f *fakeNext) MultisigWalletMemberKeys(string) ([]ed25519.PublicKey, error) { return nil, nil }

func (f *fakeNext) InboundTransactions(string, uint64, int) ([]chain.WalletTransaction, error) {
	return nil, nil
}
func (f *fakeNext) OutboundTransactions(string, uint64, int) ([]chain.WalletTransaction, error) {
	return nil, nil
}
func (f *fakeNext) InboundTransactionsFromBlock(string, string) ([]chain.WalletTransaction, error) {
	return nil, nil
}
func (f *fakeNext) OutboundTransactionsFromBlock(string, string) ([]chain.WalletTransaction, error) {
	return nil, nil
}

func (f *fakeNext) Close() error { return nil }

func newTestCache(t *testing.T) (*Cache, *fakeNext) {
	next := newFakeNext()
	c, err := New(Config{Next: next, Path: filepath.Join(t.TempDir(), "accounts.db")})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c, next
}

func TestGetAccountFallsThroughOnMissThenServesFromCache(t *testing.T) {
	c, next := newTestCache(t)
	next.accounts["addr-1"] = &types.Account{Address: "addr-1", Balance: 10}

	acc, found, err := c.GetAccount("addr-1")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, int64(10), acc.Balance)

	delete(next.accounts, "addr-1")

	acc, found, err = c.GetAccount("addr-1")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, int64(10), acc.Balance)
}

func TestGetAccountMissingEverywhereReportsNotFound(t *testing.T) {
	c, _ := newTestCache(t)
	_, found, err := c.GetAccount("missing")
	require.NoError(t, err)
	require.False(t, found)
}

func TestSaveBlockWritesDeltaThroughToCache(t *testing.T) {
	c, next := newTestCache(t)
	block := &types.Block{ID: "block-1"}
	deltas := map[string]*types.Account{"addr-2": {Address: "addr-2", Balance: 5}}

	require.NoError(t, c.SaveBlock(block, deltas))
	require.Contains(t, next.saved, "block-1")

	delete(next.accounts, "addr-2")
	acc, found, err := c.GetAccount("addr-2")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, int64(5), acc.Balance)
}

func TestDeleteBlockWritesRevertedDeltaThroughToCache(t *testing.T) {
	c, next := newTestCache(t)
	block := &types.Block{ID: "block-1"}
	require.NoError(t, c.SaveBlock(block, map[string]*types.Account{"addr-3": {Address: "addr-3", Balance: 9}}))

	require.NoError(t, c.DeleteBlock(block, map[string]*types.Account{"addr-3": {Address: "addr-3", Balance: 0}}))
	require.Contains(t, next.deleted, "block-1")

	delete(next.accounts, "addr-3")
	acc, found, err := c.GetAccount("addr-3")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, int64(0), acc.Balance)
}
