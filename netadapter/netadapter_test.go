package netadapter

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Leasehold/leasehold/types"
)

type fakeHandlers struct {
	postedBlocks       []*types.Block
	postedTransactions []*types.Transaction
	commonID           string
	commonFound        bool
	blocksToReturn      []*types.Block
	transactionsToReturn []*types.Transaction
}

func (f *fakeHandlers) PostBlock(peerID string, block *types.Block) error {
	f.postedBlocks = append(f.postedBlocks, block)
	return nil
}

func (f *fakeHandlers) PostTransaction(peerID string, tx *types.Transaction) (string, error) {
	f.postedTransactions = append(f.postedTransactions, tx)
	return tx.ID, nil
}

func (f *fakeHandlers) PostTransactions(peerID string, txs []*types.Transaction) error {
	f.postedTransactions = append(f.postedTransactions, txs...)
	return nil
}

func (f *fakeHandlers) Blocks(lastBlockID string) ([]*types.Block, error) {
	return f.blocksToReturn, nil
}

func (f *fakeHandlers) BlocksCommon(peerID string, candidateIDs []string) (string, bool, error) {
	return f.commonID, f.commonFound, nil
}

func (f *fakeHandlers) GetTransactions() []*types.Transaction {
	return f.transactionsToReturn
}

func newTestPair(t *testing.T, handlers *fakeHandlers) (*Client, *PeerBook, *httptest.Server) {
	book := NewPeerBook()
	srv := NewServer("", handlers, book)
	ts := httptest.NewServer(srv.router)
	t.Cleanup(ts.Close)

	book.Register("peer-1", ts.URL)
	client := NewClient("self", "http://self.invalid", "leasehold", func() string { return "deadbeef" }, book)
	return client, book, ts
}

func TestSendPostsAnnouncementAndRegistersCaller(t *testing.T) {
	handlers := &fakeHandlers{}
	client, book, _ := newTestPair(t, handlers)

	block := &types.Block{ID: "block-1"}
	require.NoError(t, client.Send("peer-1", "postBlock", block))
	require.Len(t, handlers.postedBlocks, 1)
	require.Equal(t, "block-1", handlers.postedBlocks[0].ID)

	addr, ok := book.Addr("self")
	require.True(t, ok)
	require.Equal(t, "http://self.invalid", addr)
}

func TestSendAdvertisesModuleAliasAndBroadhash(t *testing.T) {
	handlers := &fakeHandlers{}
	client, book, _ := newTestPair(t, handlers)

	require.NoError(t, client.Send("peer-1", "postTransactions", []*types.Transaction{}))

	// The client and server share one book: it holds peer-1 plus the
	// caller the server registered as "self".
	peers, err := book.ConnectedPeers()
	require.NoError(t, err)
	require.Len(t, peers, 2)
	self := -1
	for i, p := range peers {
		if p.ID == "self" {
			self = i
		}
	}
	require.NotEqual(t, -1, self)
	require.Equal(t, "leasehold", peers[self].ModuleAlias)
	require.Equal(t, "deadbeef", peers[self].Broadhash)
}

func TestBlocksCommonRoundTrips(t *testing.T) {
	handlers := &fakeHandlers{commonID: "block-5", commonFound: true}
	client, _, _ := newTestPair(t, handlers)

	id, found, err := client.BlocksCommon("peer-1", []string{"a", "block-5", "c"})
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "block-5", id)
}

func TestFetchBlocksReturnsServerList(t *testing.T) {
	handlers := &fakeHandlers{blocksToReturn: []*types.Block{{ID: "block-1"}, {ID: "block-2"}}}
	client, _, _ := newTestPair(t, handlers)

	blocks, err := client.FetchBlocks("peer-1", "", 10)
	require.NoError(t, err)
	require.Len(t, blocks, 2)
}

func TestFetchTransactionsReturnsServerList(t *testing.T) {
	handlers := &fakeHandlers{transactionsToReturn: []*types.Transaction{{ID: "tx-1"}}}
	client, _, _ := newTestPair(t, handlers)

	txs, err := client.FetchTransactions("peer-1")
	require.NoError(t, err)
	require.Len(t, txs, 1)
	require.Equal(t, "tx-1", txs[0].ID)
}

func TestChooseForwardPeerPicksRegisteredPeer(t *testing.T) {
	handlers := &fakeHandlers{}
	client, _, _ := newTestPair(t, handlers)

	id, ok, err := client.ChooseForwardPeer()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "peer-1", id)
}

func TestPenalizeDropsPeerAfterThreshold(t *testing.T) {
	book := NewPeerBook()
	book.Register("peer-1", "http://a")

	for i := 0; i < maxViolations-1; i++ {
		book.Penalize("peer-1", "bad schema")
	}
	ids, err := book.ListPeerIDs()
	require.NoError(t, err)
	require.Equal(t, []string{"peer-1"}, ids)

	book.Penalize("peer-1", "bad schema")
	ids, err = book.ListPeerIDs()
	require.NoError(t, err)
	require.Empty(t, ids)
}

func TestPeerBookListPeerIDsExcludesRemoved(t *testing.T) {
	book := NewPeerBook()
	book.Register("peer-1", "http://a")
	book.Register("peer-2", "http://b")
	book.Remove("peer-1")

	ids, err := book.ListPeerIDs()
	require.NoError(t, err)
	require.Equal(t, []string{"peer-2"}, ids)
}
