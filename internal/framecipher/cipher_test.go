package framecipher

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, KeySize)
	_, err := rand.Read(key)
	require.NoError(t, err)
	return key
}

func keyedCipher(t *testing.T, key []byte) *Cipher {
	t.Helper()
	c := New(PassThrough)
	require.NoError(t, c.SetKey(key))
	return c
}

func TestRoundTrip(t *testing.T) {
	c := keyedCipher(t, randomKey(t))

	sizes := []int{0, 1, 15, 16, 17, 160, 1200, 64 * 1024}
	for _, size := range sizes {
		frame := make([]byte, size)
		_, _ = rand.Read(frame)

		enc, err := c.EncryptFrame(frame)
		require.NoError(t, err)
		assert.Len(t, enc, size+Overhead)

		dec, err := c.DecryptFrame(enc)
		require.NoError(t, err)
		assert.True(t, bytes.Equal(frame, dec), "size %d", size)
	}
}

func TestFreshNoncePerFrame(t *testing.T) {
	c := keyedCipher(t, randomKey(t))
	frame := []byte("same payload every time")

	seen := make(map[string]bool)
	for i := 0; i < 256; i++ {
		enc, err := c.EncryptFrame(frame)
		require.NoError(t, err)
		nonce := string(enc[:NonceSize])
		assert.False(t, seen[nonce], "nonce reused")
		seen[nonce] = true
	}
}

func TestTamperedFrameIsDropped(t *testing.T) {
	c := keyedCipher(t, randomKey(t))
	frame := []byte("keyframe-ish payload")

	enc, err := c.EncryptFrame(frame)
	require.NoError(t, err)

	for i := 0; i < len(enc); i++ {
		for bit := 0; bit < 8; bit++ {
			tampered := append([]byte(nil), enc...)
			tampered[i] ^= 1 << bit

			dec, err := c.DecryptFrame(tampered)
			require.ErrorIs(t, err, ErrAuthentication, "byte %d bit %d", i, bit)
			assert.Nil(t, dec)
		}
	}
}

func TestStaleKeyIsDropped(t *testing.T) {
	oldKey := randomKey(t)
	sender := keyedCipher(t, oldKey)
	enc, err := sender.EncryptFrame([]byte("frame under the old key"))
	require.NoError(t, err)

	receiver := keyedCipher(t, randomKey(t))
	dec, err := receiver.DecryptFrame(enc)
	assert.ErrorIs(t, err, ErrAuthentication)
	assert.Nil(t, dec)

	// The receiver keeps working for frames under its own key.
	fresh, err := receiver.EncryptFrame([]byte("next"))
	require.NoError(t, err)
	dec, err = receiver.DecryptFrame(fresh)
	require.NoError(t, err)
	assert.Equal(t, []byte("next"), dec)
}

func TestShortFrame(t *testing.T) {
	c := keyedCipher(t, randomKey(t))
	_, err := c.DecryptFrame(make([]byte, Overhead-1))
	assert.ErrorIs(t, err, ErrShortFrame)
}

func TestNoKeyPolicy(t *testing.T) {
	frame := []byte("clear")

	pass := New(PassThrough)
	assert.False(t, pass.Active())
	out, err := pass.EncryptFrame(frame)
	require.NoError(t, err)
	assert.Equal(t, frame, out)
	out, err = pass.DecryptFrame(frame)
	require.NoError(t, err)
	assert.Equal(t, frame, out)

	drop := New(Drop)
	_, err = drop.EncryptFrame(frame)
	assert.ErrorIs(t, err, ErrNoKey)
	_, err = drop.DecryptFrame(frame)
	assert.ErrorIs(t, err, ErrNoKey)
}

func TestClearKeyFallsBackToPolicy(t *testing.T) {
	c := keyedCipher(t, randomKey(t))
	require.True(t, c.Active())

	c.ClearKey()
	assert.False(t, c.Active())
	out, err := c.EncryptFrame([]byte("x"))
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), out)
}

func TestSetKeyRejectsWrongLength(t *testing.T) {
	c := New(PassThrough)
	assert.ErrorIs(t, c.SetKey(make([]byte, 16)), ErrInvalidKey)
	assert.False(t, c.Active())
}

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    Policy
		wantErr bool
	}{
		{in: "", want: PassThrough},
		{in: "passthrough", want: PassThrough},
		{in: "DROP", want: Drop},
		{in: "reject", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParsePolicy(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
