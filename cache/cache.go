// Package cache is the embedded key-value read cache that sits in front
// of the relational store: account lookups (the hot path for every
// transaction validation and forging tick) are served from a local
// goleveldb instance when present, falling through to the store and
// populating the cache on miss. Block commits and deletions write the
// affected accounts through to the cache so it never serves stale
// balances. Everything else is a plain pass-through to the store.
package cache

import (
	"crypto/ed25519"
	"encoding/json"

	"github.com/btcsuite/goleveldb/leveldb"

	"github.com/Leasehold/leasehold/chain"
	"github.com/Leasehold/leasehold/chainerrors"
	"github.com/Leasehold/leasehold/types"
)

// Next is the full store surface Cache decorates: every collaborator
// interface the chain components declare against the store, bundled
// into one so a single Cache can stand in wherever a *store.Store would
// otherwise go.
type Next interface {
	GetLastBlock() (*types.Block, bool, error)
	SaveBlock(block *types.Block, accountDeltas map[string]*types.Account) error
	DeleteBlock(block *types.Block, accountDeltas map[string]*types.Account) error
	GetBlock(id string) (*types.Block, bool, error)
	GetBlocksAfter(lastID string, limit int) ([]*types.Block, error)
	GetBlockAtHeight(height uint64) (*types.Block, bool, error)
	GetMaxHeight() (uint64, error)
	GetBlocksBetweenHeights(fromHeight, toHeight uint64, limit int) ([]*types.Block, error)
	GetLastBlockAtOrBeforeTimestamp(timestamp uint64) (*types.Block, bool, error)
	GetAccount(address string) (*types.Account, bool, error)
	RecentBlockIDs(limit int) ([]string, error)
	CreditAccount(address string, amount uint64) error

	TopDelegates(atHeight uint64, limit int) ([]*types.Account, error)
	RecordRoundRewards(round uint64, rewards map[string]uint64) error
	FindCommonBlock(candidateIDs []string) (blockID string, found bool, err error)

	MultisigWalletMembers(walletAddress string) ([]string, error)
	MinMultisigRequiredSignatures(walletAddress string) (int, bool, error)
	MultisigWalletMemberKeys(walletAddress string) ([]ed25519.PublicKey, error)

	InboundTransactions(walletAddress string, fromTimestamp uint64, limit int) ([]chain.WalletTransaction, error)
	OutboundTransactions(walletAddress string, fromTimestamp uint64, limit int) ([]chain.WalletTransaction, error)
	InboundTransactionsFromBlock(walletAddress, blockID string) ([]chain.WalletTransaction, error)
	OutboundTransactionsFromBlock(walletAddress, blockID string) ([]chain.WalletTransaction, error)

	Close() error
}

// Config bundles Cache's collaborators and tunables.
type Config struct {
	Next Next
	Path string
}

// Cache decorates Next with a goleveldb-backed account read cache.
type Cache struct {
	next Next
	db   *leveldb.DB
}

// New opens (creating if absent) the goleveldb file at cfg.Path and
// returns a Cache decorating cfg.Next.
func New(cfg Config) (*Cache, error) {
	db, err := leveldb.OpenFile(cfg.Path, nil)
	if err != nil {
		return nil, chainerrors.NewFatal("opening account cache", err)
	}
	return &Cache{next: cfg.Next, db: db}, nil
}

// Close releases the goleveldb handle, then the decorated store.
// Satisfies chain.Closer.
func (c *Cache) Close() error {
	if err := c.db.Close(); err != nil {
		return chainerrors.NewPersistenceError("closing account cache", err)
	}
	return c.next.Close()
}

func accountKey(address string) []byte { return []byte("account:" + address) }

// GetAccount serves address from the cache when present, otherwise
// falls through to the store and populates the cache on the way out.
func (c *Cache) GetAccount(address string) (*types.Account, bool, error) {
	data, err := c.db.Get(accountKey(address), nil)
	if err == nil {
		var acc types.Account
		if unmarshalErr := json.Unmarshal(data, &acc); unmarshalErr == nil {
			return &acc, true, nil
		}
		log.Warnf("discarding unreadable cache entry for %s", address)
	} else if err != leveldb.ErrNotFound {
		log.Warnf("account cache read failed for %s: %s", address, err)
	}

	acc, found, err := c.next.GetAccount(address)
	if err != nil || !found {
		return acc, found, err
	}
	c.put(address, acc)
	return acc, true, nil
}

// CreditAccount delegates to the store, then drops any cached read for
// address so the next GetAccount re-fetches the credited balance.
func (c *Cache) CreditAccount(address string, amount uint64) error {
	if err := c.next.CreditAccount(address, amount); err != nil {
		return err
	}
	if err := c.db.Delete(accountKey(address), nil); err != nil {
		log.Warnf("failed invalidating cached account %s after credit: %s", address, err)
	}
	return nil
}

func (c *Cache) put(address string, acc *types.Account) {
	data, err := json.Marshal(acc)
	if err != nil {
		log.Warnf("failed encoding account %s for cache: %s", address, err)
		return
	}
	if err := c.db.Put(accountKey(address), data, nil); err != nil {
		log.Warnf("failed writing account %s to cache: %s", address, err)
	}
}

func (c *Cache) writeThrough(deltas map[string]*types.Account) {
	for address, acc := range deltas {
		c.put(address, acc)
	}
}

// SaveBlock delegates to the store, then writes every changed account
// through to the cache.
func (c *Cache) SaveBlock(block *types.Block, accountDeltas map[string]*types.Account) error {
	if err := c.next.SaveBlock(block, accountDeltas); err != nil {
		return err
	}
	c.writeThrough(accountDeltas)
	return nil
}

// DeleteBlock delegates to the store, then writes the reverted accounts
// through to the cache.
func (c *Cache) DeleteBlock(block *types.Block, accountDeltas map[string]*types.Account) error {
	if err := c.next.DeleteBlock(block, accountDeltas); err != nil {
		return err
	}
	c.writeThrough(accountDeltas)
	return nil
}

// The remaining methods are plain pass-throughs to the decorated store.

func (c *Cache) GetLastBlock() (*types.Block, bool, error) { return c.next.GetLastBlock() }

func (c *Cache) GetBlock(id string) (*types.Block, bool, error) { return c.next.GetBlock(id) }

func (c *Cache) GetBlocksAfter(lastID string, limit int) ([]*types.Block, error) {
	return c.next.GetBlocksAfter(lastID, limit)
}

func (c *Cache) GetBlockAtHeight(height uint64) (*types.Block, bool, error) {
	return c.next.GetBlockAtHeight(height)
}

func (c *Cache) GetMaxHeight() (uint64, error) { return c.next.GetMaxHeight() }

func (c *Cache) GetBlocksBetweenHeights(fromHeight, toHeight uint64, limit int) ([]*types.Block, error) {
	return c.next.GetBlocksBetweenHeights(fromHeight, toHeight, limit)
}

func (c *Cache) GetLastBlockAtOrBeforeTimestamp(timestamp uint64) (*types.Block, bool, error) {
	return c.next.GetLastBlockAtOrBeforeTimestamp(timestamp)
}

func (c *Cache) RecentBlockIDs(limit int) ([]string, error) { return c.next.RecentBlockIDs(limit) }

func (c *Cache) TopDelegates(atHeight uint64, limit int) ([]*types.Account, error) {
	return c.next.TopDelegates(atHeight, limit)
}

func (c *Cache) RecordRoundRewards(round uint64, rewards map[string]uint64) error {
	return c.next.RecordRoundRewards(round, rewards)
}

func (c *Cache) FindCommonBlock(candidateIDs []string) (string, bool, error) {
	return c.next.FindCommonBlock(candidateIDs)
}

func (c *Cache) MultisigWalletMembers(walletAddress string) ([]string, error) {
	return c.next.MultisigWalletMembers(walletAddress)
}

func (c *Cache) MinMultisigRequiredSignatures(walletAddress string) (int, bool, error) {
	return c.next.MinMultisigRequiredSignatures(walletAddress)
}

func (c *Cache) MultisigWalletMemberKeys(walletAddress string) ([]ed25519.PublicKey, error) {
	return c.next.MultisigWalletMemberKeys(walletAddress)
}

func (c *Cache) InboundTransactions(walletAddress string, fromTimestamp uint64, limit int) ([]chain.WalletTransaction, error) {
	return c.next.InboundTransactions(walletAddress, fromTimestamp, limit)
}

func (c *Cache) OutboundTransactions(walletAddress string, fromTimestamp uint64, limit int) ([]chain.WalletTransaction, error) {
	return c.next.OutboundTransactions(walletAddress, fromTimestamp, limit)
}

func (c *Cache) InboundTransactionsFromBlock(walletAddress, blockID string) ([]chain.WalletTransaction, error) {
	return c.next.InboundTransactionsFromBlock(walletAddress, blockID)
}

func (c *Cache) OutboundTransactionsFromBlock(walletAddress, blockID string) ([]chain.WalletTransaction, error) {
	return c.next.OutboundTransactionsFromBlock(walletAddress, blockID)
}
