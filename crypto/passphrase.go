package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"

	"github.com/pkg/errors"
	"golang.org/x/crypto/scrypt"
)

// PassphraseDecryptor decrypts a delegate's encrypted passphrase and
// derives its ed25519 signing key from the result, treated as the
// ed25519 seed. Satisfies forger.Decryptor.
type PassphraseDecryptor struct{}

// DecryptPassphrase recovers the delegate's ed25519 private key from its
// encrypted passphrase and password.
func (PassphraseDecryptor) DecryptPassphrase(encryptedPassphrase, password string) (ed25519.PrivateKey, error) {
	plain, err := decryptPassphrase(encryptedPassphrase, password)
	if err != nil {
		return nil, err
	}
	seed := make([]byte, ed25519.SeedSize)
	copy(seed, plain)
	return ed25519.NewKeyFromSeed(seed), nil
}

// scrypt cost parameters, matching the ecosystem's go-ethereum-keystore
// "light" preset: strong enough for a delegate's forging passphrase
// without making node startup noticeably slow when unlocking many
// delegates at once.
const (
	scryptN      = 1 << 12
	scryptR      = 8
	scryptP      = 1
	scryptKeyLen = 32
	saltSize     = 16
)

// EncryptPassphrase derives a key from password via scrypt and seals
// passphrase with AES-256-GCM, returning salt || nonce || ciphertext,
// base64-encoded. This is the inverse of DecryptPassphrase and is used by
// node operators to produce the EncryptedPassphrase stored in a
// delegate's configuration.
func EncryptPassphrase(passphrase, password string) (string, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return "", errors.Wrap(err, "generating salt")
	}

	block, err := newCipherBlock(password, salt)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", errors.Wrap(err, "initializing AEAD")
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", errors.Wrap(err, "generating nonce")
	}

	sealed := gcm.Seal(nil, nonce, []byte(passphrase), nil)

	out := make([]byte, 0, len(salt)+len(nonce)+len(sealed))
	out = append(out, salt...)
	out = append(out, nonce...)
	out = append(out, sealed...)
	return base64.StdEncoding.EncodeToString(out), nil
}

// decryptPassphrase recovers the plaintext passphrase from its encrypted
// form and password.
func decryptPassphrase(encryptedPassphrase, password string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(encryptedPassphrase)
	if err != nil {
		return nil, errors.Wrap(err, "decoding encrypted passphrase")
	}
	if len(raw) < saltSize {
		return nil, errors.New("encrypted passphrase too short")
	}
	salt, rest := raw[:saltSize], raw[saltSize:]

	block, err := newCipherBlock(password, salt)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errors.Wrap(err, "initializing AEAD")
	}
	if len(rest) < gcm.NonceSize() {
		return nil, errors.New("encrypted passphrase too short")
	}
	nonce, ciphertext := rest[:gcm.NonceSize()], rest[gcm.NonceSize():]

	passphrase, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, errors.Wrap(err, "decrypting passphrase: wrong password or corrupt data")
	}
	return passphrase, nil
}

func newCipherBlock(password string, salt []byte) (cipher.Block, error) {
	key, err := scrypt.Key([]byte(password), salt, scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return nil, errors.Wrap(err, "deriving key")
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.Wrap(err, "initializing cipher")
	}
	return block, nil
}
