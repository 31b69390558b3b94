package loader

import (
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Leasehold/leasehold/sequence"
	"github.com/Leasehold/leasehold/types"
)

type stubBlocks struct {
	last      *types.Block
	stale     bool
	recentIDs []string
	received  []*types.Block
}

func (s *stubBlocks) LastBlock() *types.Block    { return s.last }
func (s *stubBlocks) IsStale() bool              { return s.stale }
func (s *stubBlocks) RecentBlockIDs(limit int) ([]string, error) { return s.recentIDs, nil }
func (s *stubBlocks) ReceiveBlockFromNetwork(block *types.Block, delegates []ed25519.PublicKey) error {
	s.received = append(s.received, block)
	s.last = block
	return nil
}

type stubDelegates struct {
	delegates []ed25519.PublicKey
}

func (s *stubDelegates) CurrentDelegates() ([]ed25519.PublicKey, error) { return s.delegates, nil }

type stubPool struct {
	added []*types.Transaction
}

func (s *stubPool) Add(tx *types.Transaction, bundled bool) error {
	s.added = append(s.added, tx)
	return nil
}

type stubTransport struct {
	peerID      string
	hasPeer     bool
	commonID    string
	commonFound bool
	batches     [][]*types.Block
	batchCall   int
	txs         []*types.Transaction
}

func (s *stubTransport) ChooseForwardPeer() (string, bool, error) {
	return s.peerID, s.hasPeer, nil
}

func (s *stubTransport) BlocksCommon(peerID string, candidateIDs []string) (string, bool, error) {
	return s.commonID, s.commonFound, nil
}

func (s *stubTransport) FetchBlocks(peerID, afterID string, limit int) ([]*types.Block, error) {
	if s.batchCall >= len(s.batches) {
		return nil, nil
	}
	batch := s.batches[s.batchCall]
	s.batchCall++
	return batch, nil
}

func (s *stubTransport) FetchTransactions(peerID string) ([]*types.Transaction, error) {
	return s.txs, nil
}

func TestLoadUnconfirmedTransactionsIngestsEachTransaction(t *testing.T) {
	pool := &stubPool{}
	transport := &stubTransport{peerID: "peer1", hasPeer: true, txs: []*types.Transaction{
		{ID: "tx1"}, {ID: "tx2"},
	}}
	l := New(Config{Pool: pool, Transport: transport})

	require.NoError(t, l.LoadUnconfirmedTransactions())
	require.Len(t, pool.added, 2)
}

func TestLoadUnconfirmedTransactionsNoPeerIsNoop(t *testing.T) {
	pool := &stubPool{}
	transport := &stubTransport{hasPeer: false}
	l := New(Config{Pool: pool, Transport: transport})

	require.NoError(t, l.LoadUnconfirmedTransactions())
	require.Empty(t, pool.added)
}

func TestSyncFetchesUntilTipMatches(t *testing.T) {
	genesis := &types.Block{ID: "g", Height: 1}
	blocksEngine := &stubBlocks{last: genesis, recentIDs: []string{"g"}}
	transport := &stubTransport{
		peerID:      "peer1",
		hasPeer:     true,
		commonID:    "g",
		commonFound: true,
		batches: [][]*types.Block{
			{{ID: "b1", Height: 2}, {ID: "b2", Height: 3}},
		},
	}
	seq := sequence.New(10, 100)
	defer seq.Close()

	l := New(Config{
		Blocks:    blocksEngine,
		Delegates: &stubDelegates{},
		Transport: transport,
		Sequence:  seq,
	})

	require.NoError(t, l.Sync())
	require.Len(t, blocksEngine.received, 2)
	require.Equal(t, "b2", blocksEngine.last.ID)
}

func TestSyncSkipsWhenNoCommonBlockFound(t *testing.T) {
	genesis := &types.Block{ID: "g", Height: 1}
	blocksEngine := &stubBlocks{last: genesis, recentIDs: []string{"g"}}
	transport := &stubTransport{peerID: "peer1", hasPeer: true, commonFound: false}
	seq := sequence.New(10, 100)
	defer seq.Close()

	l := New(Config{Blocks: blocksEngine, Delegates: &stubDelegates{}, Transport: transport, Sequence: seq})

	require.NoError(t, l.Sync())
	require.Empty(t, blocksEngine.received)
}
