package forger

import (
	"crypto/ed25519"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Leasehold/leasehold/config"
	"github.com/Leasehold/leasehold/sequence"
	"github.com/Leasehold/leasehold/slots"
	"github.com/Leasehold/leasehold/types"
)

type plaintextDecryptor struct{}

// DecryptPassphrase treats the "encrypted" passphrase as a raw seed for
// test determinism and accepts only the password "password"; production
// wiring uses a real cipher.
func (plaintextDecryptor) DecryptPassphrase(encryptedPassphrase, password string) (ed25519.PrivateKey, error) {
	if password != "password" {
		return nil, errors.New("wrong password")
	}
	seed := make([]byte, ed25519.SeedSize)
	copy(seed, encryptedPassphrase)
	return ed25519.NewKeyFromSeed(seed), nil
}

type stubBlocks struct {
	last      *types.Block
	processed []*types.Block
	heights   map[uint64]string
}

func (s *stubBlocks) LastBlock() *types.Block { return s.last }
func (s *stubBlocks) ProcessBlock(block *types.Block, broadcast bool) error {
	s.processed = append(s.processed, block)
	s.last = block
	return nil
}
func (s *stubBlocks) BlockIDAtHeight(height uint64) (string, bool, error) {
	id, ok := s.heights[height]
	return id, ok, nil
}

type stubRounds struct {
	list []ed25519.PublicKey
}

func (s *stubRounds) GenerateDelegateList(round uint64, source []ed25519.PublicKey, previousRoundLastBlockID string) ([]ed25519.PublicKey, error) {
	return s.list, nil
}

type stubPool struct{}

func (stubPool) GetMergedTransactionList(reverse bool, limit int) []*types.Transaction { return nil }

type stubPeers struct {
	poor bool
}

func (s *stubPeers) LastConsensus() float64 { return 100 }
func (s *stubPeers) IsPoorConsensus(consensus float64, force bool) bool {
	if force {
		return false
	}
	return s.poor
}

func setupForger(t *testing.T, owns bool) (*Forger, *stubBlocks, ed25519.PublicKey) {
	params := config.MainNetParams
	params.EpochTime = time.Unix(0, 0)
	params.ActiveDelegates = 1

	seed := make([]byte, ed25519.SeedSize)
	seed[0] = 7
	priv := ed25519.NewKeyFromSeed(seed)
	pub := priv.Public().(ed25519.PublicKey)

	var delegateList []ed25519.PublicKey
	if owns {
		delegateList = []ed25519.PublicKey{pub}
	} else {
		otherPub, _, _ := ed25519.GenerateKey(nil)
		delegateList = []ed25519.PublicKey{otherPub}
	}

	blocksEngine := &stubBlocks{
		last:    &types.Block{ID: "genesis", Height: 1, Timestamp: 0},
		heights: map[uint64]string{},
	}

	seq := sequence.New(10, 100)
	t.Cleanup(seq.Close)

	f := New(Config{
		Params:    &params,
		Slots:     slots.New(&params),
		Rounds:    &stubRounds{list: delegateList},
		Blocks:    blocksEngine,
		Pool:      stubPool{},
		Peers:     &stubPeers{},
		Decryptor: plaintextDecryptor{},
		Sequence:  seq,
	})

	require.NoError(t, f.LoadDelegates([]config.ForgingDelegate{
		{EncryptedPassphrase: string(seed), PublicKey: publicKeyHex(pub)},
	}, "password"))

	return f, blocksEngine, pub
}

func TestForgeProducesBlockWhenSlotIsOwned(t *testing.T) {
	f, blocksEngine, pub := setupForger(t, true)

	// advance wall clock one slot past genesis's timestamp
	time.Sleep(1100 * time.Millisecond)

	require.NoError(t, f.Forge())
	require.Len(t, blocksEngine.processed, 1)
	require.Equal(t, pub, blocksEngine.processed[0].GeneratorPublicKey)
}

func TestForgeSkipsWhenSlotNotOwned(t *testing.T) {
	f, blocksEngine, _ := setupForger(t, false)

	time.Sleep(1100 * time.Millisecond)

	require.NoError(t, f.Forge())
	require.Empty(t, blocksEngine.processed)
}

func TestUpdateForgingStatusRequiresCorrectPassword(t *testing.T) {
	f, _, pub := setupForger(t, true)

	_, err := f.UpdateForgingStatus(publicKeyHex(pub), "wrong", false)
	require.Error(t, err)

	status, err := f.UpdateForgingStatus(publicKeyHex(pub), "password", false)
	require.NoError(t, err)
	require.False(t, status)

	statuses := f.GetForgingStatusForAllDelegates()
	require.Len(t, statuses, 1)
	require.False(t, statuses[0].Forging)
}
