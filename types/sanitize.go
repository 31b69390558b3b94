package types

import (
	"crypto/ed25519"
	"encoding/hex"

	"github.com/Leasehold/leasehold/crypto"
)

// SanitizedSignature is one resolved entry of a sanitized multisig
// transaction's signatures list.
type SanitizedSignature struct {
	SignerAddress *string `json:"signerAddress"`
	Signature     string  `json:"signature"`
}

// SanitizedTransaction is the shape returned by every inbound/outbound
// transaction query.
type SanitizedTransaction struct {
	ID              string                `json:"id"`
	Type            TransactionType       `json:"type"`
	SenderAddress   string                `json:"senderAddress"`
	SenderPublicKey string                `json:"senderPublicKey"`
	Timestamp       uint64                `json:"timestamp"`
	RecipientAddress string               `json:"recipientAddress"`
	Amount          uint64                `json:"amount"`
	BlockID         string                `json:"blockId"`
	Message         string                `json:"message,omitempty"`
	Signatures      []SanitizedSignature  `json:"signatures,omitempty"`
}

// Sanitize builds the sanitized view of tx as committed in blockID. When
// tx is a multisig Type-0 transaction, memberPublicKeys resolves each
// contributed signature to a signer address by testing each member public
// key against a single precomputed transaction hash, computed once up
// front rather than recomputed inside the loop.
func (t *Transaction) Sanitize(blockID string, memberPublicKeys []ed25519.PublicKey) (*SanitizedTransaction, error) {
	out := &SanitizedTransaction{
		ID:               t.ID,
		Type:             t.Type,
		SenderAddress:    t.SenderID,
		SenderPublicKey:  hex.EncodeToString(t.SenderPublicKey),
		Timestamp:        t.Timestamp,
		RecipientAddress: t.RecipientID,
		Amount:           t.Amount,
		BlockID:          blockID,
	}

	if asset, ok := t.Asset.(*TransferAsset); ok && len(asset.Data) > 0 {
		out.Message = string(asset.Data)
	}

	if t.Type == TypeTransfer && len(t.Signatures) > 0 && len(memberPublicKeys) > 0 {
		unsigned, err := t.CanonicalBytes(false)
		if err != nil {
			return nil, err
		}

		out.Signatures = make([]SanitizedSignature, len(t.Signatures))
		for i, sig := range t.Signatures {
			out.Signatures[i].Signature = hex.EncodeToString(sig.Signature)
			out.Signatures[i].SignerAddress = findMultisigMemberAddress(unsigned, sig.Signature, memberPublicKeys)
		}
	}

	return out, nil
}

// findMultisigMemberAddress returns the address of whichever member public
// key verifies signature against hash, or nil if none does.
func findMultisigMemberAddress(hash, signature []byte, memberPublicKeys []ed25519.PublicKey) *string {
	for _, pub := range memberPublicKeys {
		if crypto.Verify(pub, hash, signature) {
			addr := crypto.DeriveAddress(pub)
			return &addr
		}
	}
	return nil
}
