// Package crypto is the thin library-backed boundary for hashing, signing,
// ("cryptographic primitives ... consumed as a library"): content hashing,
// signature verification, and address derivation. It deliberately holds no
// chain logic.
package crypto

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"

	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // ripemd160 is deprecated but still the standard choice for address hashing in this lineage
)

// HashSize is the length in bytes of a content hash.
const HashSize = sha256.Size

// Hash is a double-SHA256 content hash, matching daghash's DoubleHashB
// idiom: hashing twice defends against length-extension on the canonical
// byte encoding.
func Hash(data []byte) [HashSize]byte {
	first := sha256.Sum256(data)
	return sha256.Sum256(first[:])
}

// HashHex returns the hex encoding of Hash(data).
func HashHex(data []byte) string {
	h := Hash(data)
	return hex.EncodeToString(h[:])
}

// Sign signs data with an ed25519 private key.
func Sign(privateKey ed25519.PrivateKey, data []byte) []byte {
	return ed25519.Sign(privateKey, data)
}

// Verify reports whether signature is a valid ed25519 signature of data
// under publicKey.
func Verify(publicKey ed25519.PublicKey, data, signature []byte) bool {
	if len(publicKey) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(publicKey, data, signature)
}

// DeriveAddress computes the account address for a public key as
// ripemd160(sha256(publicKey)), hex-encoded. This mirrors the
// hash-then-ripemd160 shape of daglabs-btcd/util's address derivation,
// adapted to leasehold's account model (no base58/bech32 version byte or
// script type, since accounts here are plain public-key addresses, not
// UTXO scriptPubKeys).
func DeriveAddress(publicKey ed25519.PublicKey) string {
	sum := sha256.Sum256(publicKey)
	r := ripemd160.New()
	r.Write(sum[:])
	return hex.EncodeToString(r.Sum(nil))
}
