package types

import "crypto/ed25519"

// Account is the confirmed/unconfirmed ledger entry for one address. See
// Balance invariants (balance >= 0, u_balance >= 0) are
// enforced by the callers that mutate it (blocks, txpool), not by Account
// itself.
type Account struct {
	Address   string
	PublicKey ed25519.PublicKey
	Balance   int64
	UBalance  int64

	IsDelegate bool
	VoteWeight int64

	Multimin       int
	Multilifetime  int
	Multisignatures []ed25519.PublicKey // member public keys, keyed by Account.Address externally
}

// Clone returns a deep-enough copy for use as an in-memory shadow entry
// (txpool's u_state), matching a copy-before-mutate style
// uses for UTXO entries in blockdag/utxoset.go.
func (a *Account) Clone() *Account {
	clone := *a
	clone.Multisignatures = append([]ed25519.PublicKey(nil), a.Multisignatures...)
	return &clone
}
