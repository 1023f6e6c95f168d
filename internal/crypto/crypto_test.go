package crypto

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const testKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func TestSignRequestRecovers(t *testing.T) {
	s, err := NewSigner("0x" + testKey)
	require.NoError(t, err)

	body := []byte(`{"value":"1500"}`)
	sig, err := s.SignRequest(1000, "post", "/api/auctions/0/bids", body)
	require.NoError(t, err)

	got, err := RecoverMessage(RequestMessage(1000, "POST", "/api/auctions/0/bids", body), sig)
	require.NoError(t, err)
	require.Equal(t, s.Address(), got)

	other, err := RecoverMessage(RequestMessage(1001, "POST", "/api/auctions/0/bids", body), sig)
	require.NoError(t, err)
	require.NotEqual(t, s.Address(), other)

	_, err = RecoverMessage([]byte("x"), "0x1234")
	require.ErrorIs(t, err, ErrBadSignature)
}

func TestEncryptedKeyRoundTrip(t *testing.T) {
	blob, err := EncryptKey(testKey, "hunter2")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "operator.json")
	require.NoError(t, os.WriteFile(path, blob, 0o600))

	got, err := LoadKey(KeyConfig{EncryptedKeyPath: path, KeyPassword: "hunter2"})
	require.NoError(t, err)
	require.Equal(t, testKey, got)

	_, err = LoadKey(KeyConfig{EncryptedKeyPath: path, KeyPassword: "wrong"})
	require.Error(t, err)
}

func TestLoadKeyRaw(t *testing.T) {
	got, err := LoadKey(KeyConfig{RawPrivateKey: "0x" + testKey})
	require.NoError(t, err)
	require.Equal(t, testKey, got)

	_, err = LoadKey(KeyConfig{RawPrivateKey: "abcd"})
	require.Error(t, err)

	_, err = LoadKey(KeyConfig{})
	require.Error(t, err)
	require.False(t, KeyConfig{}.Configured())
}
