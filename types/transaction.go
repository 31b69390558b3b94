// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package types

import (
	"bytes"
	"crypto/ed25519"
	"encoding/binary"
	"encoding/hex"

	"github.com/pkg/errors"

	"github.com/Leasehold/leasehold/crypto"
)

// TransactionType tags one of the eight built-in transaction variants.
// Tags 0..7 are reserved for the built-in set.
type TransactionType byte

// The built-in transaction type tags.
const (
	TypeTransfer TransactionType = iota
	TypeSecondSignature
	TypeDelegate
	TypeVote
	TypeMultisignature
	TypeDapp
	TypeInTransfer
	TypeOutTransfer
)

func (t TransactionType) String() string {
	switch t {
	case TypeTransfer:
		return "Transfer"
	case TypeSecondSignature:
		return "SecondSignature"
	case TypeDelegate:
		return "Delegate"
	case TypeVote:
		return "Vote"
	case TypeMultisignature:
		return "Multisignature"
	case TypeDapp:
		return "Dapp"
	case TypeInTransfer:
		return "InTransfer"
	case TypeOutTransfer:
		return "OutTransfer"
	default:
		return "Unknown"
	}
}

// BroadcastID identifies this transaction for broadcaster dedup.
func (t *Transaction) BroadcastID() string { return t.ID }

// SignerSignature is one signature contributed toward a multisig
// transaction's signatures list.
type SignerSignature struct {
	SignerPublicKey ed25519.PublicKey
	Signature       []byte
}

// Transaction is the wire/storage representation of one chain operation.
// It is immutable once ID is computed.
type Transaction struct {
	ID              string
	Type            TransactionType
	SenderPublicKey ed25519.PublicKey
	SenderID        string
	RecipientID     string
	Amount          uint64
	Fee             uint64
	Timestamp       uint64
	Signature       []byte
	SignSignature   []byte
	Signatures      []SignerSignature
	Asset           Asset

	// ReceivedAt and Bundled are pool bookkeeping, not part of the
	// canonical/signed payload.
	ReceivedAt int64
	Bundled    bool
}

// Asset is the type-specific payload of a transaction. Its handling is
// dispatched through the registry keyed by type (types/dispatch.go).
type Asset interface {
	// CanonicalBytes appends the asset's canonical encoding to buf.
	CanonicalBytes(buf *bytes.Buffer) error
}

// TransferAsset is the asset of a Type 0 (Transfer) transaction: an
// optional UTF-8 message carried alongside the plain balance transfer.
type TransferAsset struct {
	Data []byte // transferData
}

// CanonicalBytes implements Asset.
func (a *TransferAsset) CanonicalBytes(buf *bytes.Buffer) error {
	buf.WriteByte(byte(len(a.Data)))
	buf.Write(a.Data)
	return nil
}

// CanonicalBytes serializes the transaction deterministically for hashing
// and signing: fixed-order fields, length-prefixed variable ones. Modeled
// on daglabs-btcd/wire's writeBlockHeader idiom (serialize to a byte
// buffer via binary.Write, then hash the result) rather than reflection-
// based encoding, so identical field order always reproduces identical
// bytes, so recomputing the id from the same transaction is stable.
//
// signedOnly controls whether the primary Signature is appended
// (SignSignature and Signatures are never included): the primary signature is computed and verified over the bytes
// WITHOUT any signature field (signedOnly=false); signSignature is
// computed/verified over the bytes WITH the primary Signature appended
// (signedOnly=true).
func (t *Transaction) CanonicalBytes(signedOnly bool) ([]byte, error) {
	buf := new(bytes.Buffer)

	if err := binary.Write(buf, binary.LittleEndian, byte(t.Type)); err != nil {
		return nil, err
	}
	if err := binary.Write(buf, binary.LittleEndian, t.Timestamp); err != nil {
		return nil, err
	}
	buf.Write(t.SenderPublicKey)

	var recipient [20]byte
	if t.RecipientID != "" {
		decoded, err := hex.DecodeString(t.RecipientID)
		if err != nil {
			return nil, errors.Wrap(err, "decoding recipientId")
		}
		copy(recipient[:], decoded)
	}
	buf.Write(recipient[:])

	if err := binary.Write(buf, binary.LittleEndian, t.Amount); err != nil {
		return nil, err
	}
	if err := binary.Write(buf, binary.LittleEndian, t.Fee); err != nil {
		return nil, err
	}

	if t.Asset != nil {
		if err := t.Asset.CanonicalBytes(buf); err != nil {
			return nil, err
		}
	}

	if signedOnly {
		buf.Write(t.Signature)
	}

	return buf.Bytes(), nil
}

// ComputeID hashes the signed canonical bytes and hex-encodes the result.
func (t *Transaction) ComputeID() (string, error) {
	bytesToHash, err := t.CanonicalBytes(true)
	if err != nil {
		return "", err
	}
	return crypto.HashHex(bytesToHash), nil
}

// VerifySignature checks the primary signature against SenderPublicKey.
func (t *Transaction) VerifySignature() (bool, error) {
	unsigned, err := t.CanonicalBytes(false)
	if err != nil {
		return false, err
	}
	return crypto.Verify(t.SenderPublicKey, unsigned, t.Signature), nil
}

// FeePerByte returns the transaction's fee density, used to order the
// pool's merged ready list.
func (t *Transaction) FeePerByte() float64 {
	size := len(t.Signature) + len(t.SignSignature) + 64 // fixed-field overhead estimate
	for _, s := range t.Signatures {
		size += len(s.Signature)
	}
	if a, ok := t.Asset.(*TransferAsset); ok {
		size += len(a.Data)
	}
	if size == 0 {
		return float64(t.Fee)
	}
	return float64(t.Fee) / float64(size)
}
