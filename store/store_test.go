package store

import (
	"crypto/ed25519"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Leasehold/leasehold/types"
)

// Conversion round-trips run unconditionally: they touch no database.

func TestBlockRoundTrip(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	block := &types.Block{
		ID:                   "block-1",
		Height:               7,
		PreviousBlockID:      "block-0",
		Timestamp:            1000,
		GeneratorPublicKey:   pub,
		BlockSignature:       []byte("sig"),
		PayloadHash:          "hash",
		PayloadLength:        42,
		NumberOfTransactions: 1,
		TotalAmount:          100,
		TotalFee:             1,
		Reward:               5,
	}

	row := fromBlock(block)
	require.Equal(t, block.ID, row.ID)
	require.Equal(t, block.Height, row.Height)

	round := toBlock(row)
	require.Equal(t, block.ID, round.ID)
	require.Equal(t, block.Height, round.Height)
	require.Equal(t, block.PreviousBlockID, round.PreviousBlockID)
	require.Equal(t, block.GeneratorPublicKey, round.GeneratorPublicKey)
	require.Equal(t, block.Reward, round.Reward)
}

func TestTransactionRoundTripPreservesTransferAsset(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	tx := &types.Transaction{
		ID:              "tx-1",
		Type:            types.TypeTransfer,
		SenderPublicKey: pub,
		SenderID:        "sender",
		RecipientID:     "recipient",
		Amount:          10,
		Fee:             1,
		Timestamp:       500,
		Signature:       []byte("sig"),
		Asset:           &types.TransferAsset{Data: []byte("memo")},
	}

	row := fromTransaction(tx, "block-1")
	require.Equal(t, "block-1", row.BlockID)

	round := toTransaction(row)
	require.Equal(t, tx.ID, round.ID)
	require.Equal(t, tx.Type, round.Type)
	require.Equal(t, tx.SenderID, round.SenderID)
	require.Equal(t, tx.RecipientID, round.RecipientID)
	asset, ok := round.Asset.(*types.TransferAsset)
	require.True(t, ok)
	require.Equal(t, []byte("memo"), asset.Data)
}

func TestTransactionRoundTripOmitsAssetForNonTransferTypes(t *testing.T) {
	tx := &types.Transaction{ID: "tx-2", Type: types.TypeVote}
	row := fromTransaction(tx, "block-1")
	round := toTransaction(row)
	require.Nil(t, round.Asset)
}

func TestAccountRoundTripPreservesMultisigMembers(t *testing.T) {
	member1, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	member2, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	acc := &types.Account{
		Address:         "wallet-1",
		Balance:         100,
		IsDelegate:      true,
		VoteWeight:      50,
		Multimin:        2,
		Multilifetime:   3,
		Multisignatures: []ed25519.PublicKey{member1, member2},
	}

	row := fromAccount(acc)
	round := toAccount(row)
	require.Equal(t, acc.Address, round.Address)
	require.Equal(t, acc.IsDelegate, round.IsDelegate)
	require.Equal(t, acc.Multimin, round.Multimin)
	require.Len(t, round.Multisignatures, 2)
	require.Equal(t, member1, round.Multisignatures[0])
	require.Equal(t, member2, round.Multisignatures[1])

	addresses := multisigMemberAddresses(round.Multisignatures)
	require.Len(t, addresses, 2)
	require.NotEqual(t, addresses[0], addresses[1])
}

// The remaining tests exercise the live query methods and require a
// reachable postgres instance; they're skipped unless
// LEASEHOLD_TEST_DATABASE_URL is set, matching the rest of the module's
// environment-gated integration tests.

func testStore(t *testing.T) *Store {
	dsn := os.Getenv("LEASEHOLD_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("LEASEHOLD_TEST_DATABASE_URL not set, skipping store integration test")
	}
	s, err := New(dsn, "migrations")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveBlockThenGetBlockRoundTrips(t *testing.T) {
	s := testStore(t)

	pub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	block := &types.Block{
		ID:                 "it-block-1",
		Height:             1,
		Timestamp:          1,
		GeneratorPublicKey: pub,
		BlockSignature:     []byte("sig"),
	}

	require.NoError(t, s.SaveBlock(block, map[string]*types.Account{
		"acct-1": {Address: "acct-1", Balance: 10},
	}))

	got, found, err := s.GetBlock("it-block-1")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, block.ID, got.ID)

	acct, found, err := s.GetAccount("acct-1")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, int64(10), acct.Balance)
}

func TestFindCommonBlockReturnsFirstKnownCandidate(t *testing.T) {
	s := testStore(t)

	pub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	block := &types.Block{ID: "it-block-2", Height: 2, GeneratorPublicKey: pub, BlockSignature: []byte("sig")}
	require.NoError(t, s.SaveBlock(block, nil))

	id, found, err := s.FindCommonBlock([]string{"unknown-1", "it-block-2", "unknown-2"})
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "it-block-2", id)
}
