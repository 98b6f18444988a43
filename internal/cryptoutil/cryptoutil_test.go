package cryptoutil

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWrapAndUnwrapAESKey(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	der := x509.MarshalPKCS1PublicKey(&priv.PublicKey)
	b64 := base64.StdEncoding.EncodeToString(der)

	pub, err := ImportPublicKey(b64)
	require.NoError(t, err)

	aesKey, err := GenerateAESKey()
	require.NoError(t, err)
	require.Len(t, aesKey, AESKeySize)

	wrapped, err := WrapKeyForPeer(pub, aesKey)
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(wrapped)
	require.NoError(t, err)

	unwrapped, err := rsa.DecryptPKCS1v15(rand.Reader, priv, raw)
	require.NoError(t, err)
	require.Equal(t, aesKey, unwrapped)
}

func TestSealOpenRoundTrip(t *testing.T) {
	key, err := GenerateAESKey()
	require.NoError(t, err)

	plaintext := []byte(`{"command":"Ping","data":null}`)
	sealed, err := Seal(key, plaintext)
	require.NoError(t, err)

	opened, err := Open(key, sealed)
	require.NoError(t, err)
	require.Equal(t, plaintext, opened)
}

func TestOpenRejectsTamperedCiphertext(t *testing.T) {
	key, err := GenerateAESKey()
	require.NoError(t, err)

	sealed, err := Seal(key, []byte("hello"))
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(sealed)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0xFF
	tampered := base64.StdEncoding.EncodeToString(raw)

	_, err = Open(key, tampered)
	require.Error(t, err)
}

func TestImportPublicKeyRejectsGarbage(t *testing.T) {
	_, err := ImportPublicKey("not-base64!!!")
	require.Error(t, err)

	_, err = ImportPublicKey(base64.StdEncoding.EncodeToString([]byte("not a der key")))
	require.Error(t, err)
}
