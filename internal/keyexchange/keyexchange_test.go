package keyexchange

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveSharedSecretIsSymmetric(t *testing.T) {
	for i := 0; i < 8; i++ {
		a, err := GenerateKeyPair()
		require.NoError(t, err)
		b, err := GenerateKeyPair()
		require.NoError(t, err)

		ab, err := DeriveSharedSecret(a.Private, b.Public)
		require.NoError(t, err)
		ba, err := DeriveSharedSecret(b.Private, a.Public)
		require.NoError(t, err)

		assert.Len(t, ab, KeySize)
		assert.Equal(t, ab, ba)
	}
}

func TestDeriveSharedSecretDiffersPerPair(t *testing.T) {
	a, _ := GenerateKeyPair()
	b, _ := GenerateKeyPair()
	c, _ := GenerateKeyPair()

	ab, err := DeriveSharedSecret(a.Private, b.Public)
	require.NoError(t, err)
	ac, err := DeriveSharedSecret(a.Private, c.Public)
	require.NoError(t, err)

	assert.NotEqual(t, ab, ac)
}

func TestExportImportRoundTrip(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)

	encoded, err := ExportPublicKey(kp.Public)
	require.NoError(t, err)

	imported, err := ImportPublicKey(encoded)
	require.NoError(t, err)
	assert.True(t, kp.Public.Equal(imported))
}

func TestImportAcceptsECDSASPKI(t *testing.T) {
	// Browsers export ECDH keys with the id-ecPublicKey OID, same as ECDSA.
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	der, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	require.NoError(t, err)

	pub, err := ImportPublicKey(base64.StdEncoding.EncodeToString(der))
	require.NoError(t, err)
	assert.NotNil(t, pub)
}

func TestImportPublicKeyMalformed(t *testing.T) {
	p384, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	require.NoError(t, err)
	p384DER, err := x509.MarshalPKIXPublicKey(&p384.PublicKey)
	require.NoError(t, err)

	tests := []struct {
		name  string
		input string
	}{
		{name: "empty", input: ""},
		{name: "not base64", input: "%%%not-base64%%%"},
		{name: "garbage der", input: base64.StdEncoding.EncodeToString([]byte("definitely not a key"))},
		{name: "wrong curve", input: base64.StdEncoding.EncodeToString(p384DER)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ImportPublicKey(tt.input)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformedKey))

			var mke *MalformedKeyError
			assert.True(t, errors.As(err, &mke))
		})
	}
}

func TestDeriveSharedSecretMissingKey(t *testing.T) {
	kp, _ := GenerateKeyPair()
	_, err := DeriveSharedSecret(kp.Private, nil)
	assert.Error(t, err)
}
