package blocks

import (
	"crypto/ed25519"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Leasehold/leasehold/config"
	"github.com/Leasehold/leasehold/crypto"
	"github.com/Leasehold/leasehold/rounds"
	"github.com/Leasehold/leasehold/slots"
	"github.com/Leasehold/leasehold/types"
)

type fakeStore struct {
	blocksByID     map[string]*types.Block
	blocksByHeight map[uint64]*types.Block
	accounts       map[string]*types.Account
	recentIDs      []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		blocksByID:     make(map[string]*types.Block),
		blocksByHeight: make(map[uint64]*types.Block),
		accounts:       make(map[string]*types.Account),
	}
}

func (s *fakeStore) GetLastBlock() (*types.Block, bool, error) {
	var max *types.Block
	for _, b := range s.blocksByHeight {
		if max == nil || b.Height > max.Height {
			max = b
		}
	}
	return max, max != nil, nil
}

func (s *fakeStore) SaveBlock(block *types.Block, deltas map[string]*types.Account) error {
	s.blocksByID[block.ID] = block
	s.blocksByHeight[block.Height] = block
	for addr, acc := range deltas {
		s.accounts[addr] = acc
	}
	s.recentIDs = prependBounded(s.recentIDs, block.ID, types.BroadhashWindow)
	return nil
}

func (s *fakeStore) DeleteBlock(block *types.Block, deltas map[string]*types.Account) error {
	delete(s.blocksByID, block.ID)
	delete(s.blocksByHeight, block.Height)
	for addr, acc := range deltas {
		s.accounts[addr] = acc
	}
	if len(s.recentIDs) > 0 {
		s.recentIDs = s.recentIDs[1:]
	}
	return nil
}

func (s *fakeStore) GetBlock(id string) (*types.Block, bool, error) {
	b, ok := s.blocksByID[id]
	return b, ok, nil
}

func (s *fakeStore) GetBlocksAfter(lastID string, limit int) ([]*types.Block, error) {
	return nil, nil
}

func (s *fakeStore) GetBlockAtHeight(height uint64) (*types.Block, bool, error) {
	b, ok := s.blocksByHeight[height]
	return b, ok, nil
}

func (s *fakeStore) GetMaxHeight() (uint64, error) {
	var max uint64
	for h := range s.blocksByHeight {
		if h > max {
			max = h
		}
	}
	return max, nil
}

func (s *fakeStore) GetBlocksBetweenHeights(from, to uint64, limit int) ([]*types.Block, error) {
	var out []*types.Block
	for height := from + 1; height <= to; height++ {
		if b, ok := s.blocksByHeight[height]; ok {
			out = append(out, b)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *fakeStore) GetLastBlockAtOrBeforeTimestamp(timestamp uint64) (*types.Block, bool, error) {
	return nil, false, nil
}

func (s *fakeStore) GetAccount(address string) (*types.Account, bool, error) {
	acc, ok := s.accounts[address]
	return acc, ok, nil
}

func (s *fakeStore) RecentBlockIDs(limit int) ([]string, error) {
	if limit < len(s.recentIDs) {
		return s.recentIDs[:limit], nil
	}
	return s.recentIDs, nil
}

func (s *fakeStore) TopDelegates(atHeight uint64, limit int) ([]*types.Account, error) {
	return nil, nil
}

func (s *fakeStore) RecordRoundRewards(round uint64, rewards map[string]uint64) error {
	return nil
}

func (s *fakeStore) CreditAccount(address string, amount uint64) error {
	acc, ok := s.accounts[address]
	if !ok {
		acc = &types.Account{Address: address}
		s.accounts[address] = acc
	}
	acc.Balance += int64(amount)
	return nil
}

type fakeEvents struct {
	published []string
}

func (e *fakeEvents) Publish(topic string, payload interface{}) {
	e.published = append(e.published, topic)
}

type fakePool struct {
	confirmed int
	deleted   int
}

func (p *fakePool) OnConfirmedTransactions(txs []*types.Transaction) { p.confirmed += len(txs) }
func (p *fakePool) OnDeletedTransactions(txs []*types.Transaction)   { p.deleted += len(txs) }

func signBlock(t *testing.T, block *types.Block, priv ed25519.PrivateKey) {
	unsigned, err := block.CanonicalBytes(false)
	require.NoError(t, err)
	block.BlockSignature = ed25519.Sign(priv, unsigned)
	id, err := block.ComputeID()
	require.NoError(t, err)
	block.ID = id
}

func setupBlocks(t *testing.T) (*Blocks, *fakeStore, *fakeEvents, *fakePool, ed25519.PublicKey, ed25519.PrivateKey) {
	params := config.MainNetParams
	params.EpochTime = time.Unix(0, 0)
	params.ActiveDelegates = 1 // single delegate keeps slot/delegate-index math trivial in tests
	store := newFakeStore()
	events := &fakeEvents{}
	pool := &fakePool{}

	b := New(Config{
		Params: &params,
		Slots:  slots.New(&params),
		Store:  store,
		Pool:   pool,
		Events: events,
	})

	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	genesis := &types.Block{Height: 1, PreviousBlockID: "", Timestamp: 0, GeneratorPublicKey: pub}
	payloadHash, payloadLength, err := types.ComputePayloadHash(nil)
	require.NoError(t, err)
	genesis.PayloadHash = payloadHash
	genesis.PayloadLength = payloadLength
	signBlock(t, genesis, priv)

	require.NoError(t, b.LoadBlockChain(genesis, 0))
	return b, store, events, pool, pub, priv
}

func TestApplyGenesisBlock(t *testing.T) {
	b, store, events, _, _, _ := setupBlocks(t)

	require.Equal(t, StateSynced, b.State())
	require.NotNil(t, b.LastBlock())
	require.Equal(t, uint64(1), b.LastBlock().Height)
	require.Contains(t, events.published, EventNewBlock)

	_, found, err := store.GetAccount(crypto.DeriveAddress(b.LastBlock().GeneratorPublicKey))
	require.NoError(t, err)
	require.True(t, found)
}

func TestProcessBlockAdvancesTipAndAppliesReward(t *testing.T) {
	b, store, events, pool, pub, priv := setupBlocks(t)

	genesis := b.LastBlock()
	next := &types.Block{
		Height:             2,
		PreviousBlockID:    genesis.ID,
		Timestamp:          10,
		GeneratorPublicKey: pub,
		Reward:             100,
	}
	payloadHash, payloadLength, err := types.ComputePayloadHash(nil)
	require.NoError(t, err)
	next.PayloadHash = payloadHash
	next.PayloadLength = payloadLength
	signBlock(t, next, priv)

	delegates := []ed25519.PublicKey{pub}
	require.NoError(t, b.VerifyBlock(next, genesis, delegates))
	require.NoError(t, b.ProcessBlock(next, false))

	require.Equal(t, uint64(2), b.LastBlock().Height)
	require.Contains(t, events.published, EventNewBroadhash)
	require.Equal(t, 0, pool.confirmed)

	generator, found, err := store.GetAccount(crypto.DeriveAddress(pub))
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, int64(100), generator.Balance)
}

func TestVerifyBlockRejectsWrongGenerator(t *testing.T) {
	b, _, _, _, pub, _ := setupBlocks(t)

	genesis := b.LastBlock()
	otherPub, otherPriv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	next := &types.Block{
		Height:             2,
		PreviousBlockID:    genesis.ID,
		Timestamp:          10,
		GeneratorPublicKey: otherPub,
	}
	payloadHash, payloadLength, err := types.ComputePayloadHash(nil)
	require.NoError(t, err)
	next.PayloadHash = payloadHash
	next.PayloadLength = payloadLength
	signBlock(t, next, otherPriv)

	err = b.VerifyBlock(next, genesis, []ed25519.PublicKey{pub})
	require.Error(t, err)
}

func TestDeleteLastBlockRestoresPreviousTip(t *testing.T) {
	b, _, events, pool, pub, priv := setupBlocks(t)

	genesis := b.LastBlock()
	next := &types.Block{
		Height:             2,
		PreviousBlockID:    genesis.ID,
		Timestamp:          10,
		GeneratorPublicKey: pub,
		Reward:             50,
	}
	payloadHash, payloadLength, err := types.ComputePayloadHash(nil)
	require.NoError(t, err)
	next.PayloadHash = payloadHash
	next.PayloadLength = payloadLength
	signBlock(t, next, priv)
	require.NoError(t, b.ProcessBlock(next, false))

	deleted, err := b.DeleteLastBlock()
	require.NoError(t, err)
	require.Equal(t, next.ID, deleted.ID)
	require.Equal(t, genesis.ID, b.LastBlock().ID)
	require.Contains(t, events.published, EventDeleteBlock)
	require.Equal(t, 0, pool.deleted) // no transactions in this block, only the reward moved
}

func TestReceiveBlockFromNetworkAppendsNextBlock(t *testing.T) {
	b, _, _, _, pub, priv := setupBlocks(t)

	genesis := b.LastBlock()
	next := &types.Block{
		Height:             2,
		PreviousBlockID:    genesis.ID,
		Timestamp:          10,
		GeneratorPublicKey: pub,
	}
	payloadHash, payloadLength, err := types.ComputePayloadHash(nil)
	require.NoError(t, err)
	next.PayloadHash = payloadHash
	next.PayloadLength = payloadLength
	signBlock(t, next, priv)

	require.NoError(t, b.ReceiveBlockFromNetwork(next, []ed25519.PublicKey{pub}))
	require.Equal(t, next.ID, b.LastBlock().ID)
}

func TestReceiveBlockFromNetworkSignalsAheadBlocks(t *testing.T) {
	b, _, _, _, pub, priv := setupBlocks(t)

	farAhead := &types.Block{
		Height:             5,
		PreviousBlockID:    "unknown",
		Timestamp:          50,
		GeneratorPublicKey: pub,
	}
	payloadHash, payloadLength, err := types.ComputePayloadHash(nil)
	require.NoError(t, err)
	farAhead.PayloadHash = payloadHash
	farAhead.PayloadLength = payloadLength
	signBlock(t, farAhead, priv)

	err = b.ReceiveBlockFromNetwork(farAhead, []ed25519.PublicKey{pub})
	require.ErrorIs(t, err, ErrBlockAhead)
}

func TestProcessBlockSettlesRoundFees(t *testing.T) {
	params := config.MainNetParams
	params.EpochTime = time.Unix(0, 0)
	params.ActiveDelegates = 1 // every block closes its own round
	store := newFakeStore()
	sl := slots.New(&params)
	rd := rounds.New(&params, sl, store, store)

	b := New(Config{
		Params: &params,
		Slots:  sl,
		Rounds: rd,
		Store:  store,
		Pool:   &fakePool{},
		Events: &fakeEvents{},
	})

	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	genesis := &types.Block{Height: 1, PreviousBlockID: "", Timestamp: 0, GeneratorPublicKey: pub}
	payloadHash, payloadLength, err := types.ComputePayloadHash(nil)
	require.NoError(t, err)
	genesis.PayloadHash = payloadHash
	genesis.PayloadLength = payloadLength
	signBlock(t, genesis, priv)
	require.NoError(t, b.LoadBlockChain(genesis, 0))

	next := &types.Block{
		Height:             2,
		PreviousBlockID:    genesis.ID,
		Timestamp:          10,
		GeneratorPublicKey: pub,
		TotalFee:           100,
	}
	payloadHash, payloadLength, err = types.ComputePayloadHash(nil)
	require.NoError(t, err)
	next.PayloadHash = payloadHash
	next.PayloadLength = payloadLength
	signBlock(t, next, priv)

	require.NoError(t, b.ProcessBlock(next, false))

	acc, found, err := store.GetAccount(crypto.DeriveAddress(pub))
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, int64(100), acc.Balance)
}
