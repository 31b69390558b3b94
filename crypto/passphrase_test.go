package crypto

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptPassphraseRoundTrips(t *testing.T) {
	encrypted, err := EncryptPassphrase("correct horse battery staple", "hunter2")
	require.NoError(t, err)

	plain, err := decryptPassphrase(encrypted, "hunter2")
	require.NoError(t, err)
	require.Equal(t, "correct horse battery staple", string(plain))
}

func TestDecryptPassphraseRejectsWrongPassword(t *testing.T) {
	encrypted, err := EncryptPassphrase("correct horse battery staple", "hunter2")
	require.NoError(t, err)

	_, err = decryptPassphrase(encrypted, "wrong password")
	require.Error(t, err)
}

func TestPassphraseDecryptorDerivesStableKey(t *testing.T) {
	encrypted, err := EncryptPassphrase("a-delegate-seed-passphrase", "hunter2")
	require.NoError(t, err)

	priv1, err := PassphraseDecryptor{}.DecryptPassphrase(encrypted, "hunter2")
	require.NoError(t, err)
	priv2, err := PassphraseDecryptor{}.DecryptPassphrase(encrypted, "hunter2")
	require.NoError(t, err)

	require.Equal(t, priv1, priv2)
}
