package chain

import (
	"crypto/ed25519"

	"github.com/Leasehold/leasehold/blocks"
	"github.com/Leasehold/leasehold/rounds"
	"github.com/Leasehold/leasehold/slots"
)

// DelegateResolver resolves the delegate list assigned to whichever round
// a chain height belongs to. It holds no state of its own; it exists
// because Loader and Transport both need a delegate-list source at
// construction time, before a Chain exists to provide one, and
// generateDelegateList needs the identical logic as a module action.
type DelegateResolver struct {
	Blocks *blocks.Blocks
	Slots  *slots.Slots
	Rounds *rounds.Rounds
}

// NewDelegateResolver builds a DelegateResolver bound to the given
// collaborators.
func NewDelegateResolver(b *blocks.Blocks, s *slots.Slots, r *rounds.Rounds) *DelegateResolver {
	return &DelegateResolver{Blocks: b, Slots: s, Rounds: r}
}

// CurrentDelegates resolves the delegate list for the round the next
// block (current tip height + 1) belongs to. Satisfies
// loader.DelegateSource and transport.DelegateSource.
func (d *DelegateResolver) CurrentDelegates() ([]ed25519.PublicKey, error) {
	last := d.Blocks.LastBlock()
	return d.ForRound(d.Slots.CalcRound(last.Height + 1))
}

// ForRound resolves the delegate list for round directly from the
// top-voted lookup (no source override; see ForRoundFromSource).
func (d *DelegateResolver) ForRound(round uint64) ([]ed25519.PublicKey, error) {
	return d.forRound(round, nil)
}

// ForRoundFromSource resolves round's delegate list using source instead
// of the top-voted lookup, for generateDelegateList's {round, source}
// input shape.
func (d *DelegateResolver) ForRoundFromSource(round uint64, source []ed25519.PublicKey) ([]ed25519.PublicKey, error) {
	return d.forRound(round, source)
}

func (d *DelegateResolver) forRound(round uint64, source []ed25519.PublicKey) ([]ed25519.PublicKey, error) {
	var previousRoundLastID string
	if round > 1 {
		id, found, err := d.Blocks.BlockIDAtHeight(d.Slots.LastHeightOfRound(round - 1))
		if err != nil {
			return nil, err
		}
		if found {
			previousRoundLastID = id
		}
	}
	return d.Rounds.GenerateDelegateList(round, source, previousRoundLastID)
}
