// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package types

import (
	"bytes"
	"crypto/ed25519"
	"encoding/binary"

	"github.com/Leasehold/leasehold/crypto"
)

// Block is immutable once committed.
type Block struct {
	ID                  string
	Height              uint64
	PreviousBlockID      string
	Timestamp           uint64 // seconds since config.Params.EpochTime
	GeneratorPublicKey  ed25519.PublicKey
	BlockSignature      []byte
	PayloadHash         string
	PayloadLength       uint64
	NumberOfTransactions int
	TotalAmount         uint64
	TotalFee            uint64
	Reward              uint64
	Transactions        []*Transaction
}

// CanonicalBytes serializes the block header fields (not including the
// transaction bodies, which are committed separately and represented only
// via PayloadHash/PayloadLength/NumberOfTransactions) deterministically,
// following the same "fixed field order into a buffer" idiom as
// Transaction.CanonicalBytes.
//
// signed controls whether BlockSignature is appended, mirroring
// Transaction.CanonicalBytes's signedOnly parameter.
func (b *Block) CanonicalBytes(signed bool) ([]byte, error) {
	buf := new(bytes.Buffer)

	if err := binary.Write(buf, binary.LittleEndian, b.Height); err != nil {
		return nil, err
	}
	if err := binary.Write(buf, binary.LittleEndian, b.Timestamp); err != nil {
		return nil, err
	}
	buf.WriteString(b.PreviousBlockID)
	buf.Write(b.GeneratorPublicKey)
	buf.WriteString(b.PayloadHash)
	if err := binary.Write(buf, binary.LittleEndian, b.PayloadLength); err != nil {
		return nil, err
	}
	if err := binary.Write(buf, binary.LittleEndian, int64(b.NumberOfTransactions)); err != nil {
		return nil, err
	}
	if err := binary.Write(buf, binary.LittleEndian, b.TotalAmount); err != nil {
		return nil, err
	}
	if err := binary.Write(buf, binary.LittleEndian, b.TotalFee); err != nil {
		return nil, err
	}
	if err := binary.Write(buf, binary.LittleEndian, b.Reward); err != nil {
		return nil, err
	}

	if signed {
		buf.Write(b.BlockSignature)
	}

	return buf.Bytes(), nil
}

// ComputeID hashes the signed canonical bytes and hex-encodes the result.
func (b *Block) ComputeID() (string, error) {
	signedBytes, err := b.CanonicalBytes(true)
	if err != nil {
		return "", err
	}
	return crypto.HashHex(signedBytes), nil
}

// ComputePayloadHash hashes the concatenated signed canonical bytes of
// the transactions in order, and returns their total length, matching the re-serializing-and-hashing check the chain runs on append.
func ComputePayloadHash(txs []*Transaction) (string, uint64, error) {
	buf := new(bytes.Buffer)
	var length uint64
	for _, tx := range txs {
		txBytes, err := tx.CanonicalBytes(true)
		if err != nil {
			return "", 0, err
		}
		buf.Write(txBytes)
		length += uint64(len(txBytes))
	}
	return crypto.HashHex(buf.Bytes()), length, nil
}

// VerifySignature checks BlockSignature against GeneratorPublicKey.
func (b *Block) VerifySignature() (bool, error) {
	unsigned, err := b.CanonicalBytes(false)
	if err != nil {
		return false, err
	}
	return crypto.Verify(b.GeneratorPublicKey, unsigned, b.BlockSignature), nil
}

// IsGenesis reports whether b is the chain's first block.
func (b *Block) IsGenesis() bool {
	return b.Height == 1
}

// BroadcastID identifies this block for broadcaster dedup.
func (b *Block) BroadcastID() string { return b.ID }
