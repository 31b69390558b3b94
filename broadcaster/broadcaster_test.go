package broadcaster

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Leasehold/leasehold/types"
)

type stubPeerLister struct {
	ids []string
}

func (s *stubPeerLister) ListPeerIDs() ([]string, error) { return s.ids, nil }

type recordingSender struct {
	mu   sync.Mutex
	sent []string
}

func (s *recordingSender) Send(peerID, api string, data interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, peerID+":"+api)
	return nil
}

func (s *recordingSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

func TestEnqueueDeduplicatesByAPIAndID(t *testing.T) {
	b := New(Config{
		Peers:             &stubPeerLister{ids: []string{"p1"}},
		Transport:         &recordingSender{},
		BroadcastInterval: time.Hour,
	})
	defer b.Close()

	tx := &types.Transaction{ID: "tx1"}
	b.EnqueueTransaction(tx)
	b.EnqueueTransaction(tx)
	require.Equal(t, 1, b.Len())
}

func TestDrainReleasesToConnectedPeers(t *testing.T) {
	sender := &recordingSender{}
	b := New(Config{
		Peers:             &stubPeerLister{ids: []string{"p1", "p2"}},
		Transport:         sender,
		BroadcastInterval: 10 * time.Millisecond,
		ReleaseLimit:      10,
	})
	defer b.Close()

	b.EnqueueTransaction(&types.Transaction{ID: "tx1"})

	require.Eventually(t, func() bool {
		return sender.count() == 2 // both peers
	}, time.Second, 5*time.Millisecond)
	require.Equal(t, 0, b.Len())
}

func TestDrainDropsExpiredAnnouncementsWithoutSending(t *testing.T) {
	sender := &recordingSender{}
	b := New(Config{
		Peers:             &stubPeerLister{ids: []string{"p1"}},
		Transport:         sender,
		BroadcastInterval: 10 * time.Millisecond,
	})
	defer b.Close()

	b.Enqueue("postTransaction", &types.Transaction{ID: "tx1"}, time.Nanosecond)
	time.Sleep(5 * time.Millisecond)

	require.Eventually(t, func() bool {
		return b.Len() == 0
	}, time.Second, 5*time.Millisecond)
	require.Equal(t, 0, sender.count())
}
