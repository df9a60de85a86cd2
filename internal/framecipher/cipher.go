// Package framecipher encrypts individual media frames with AES-256-GCM.
//
// Wire format of an encrypted frame:
//
//	[12-byte nonce][ciphertext || 16-byte tag]
package framecipher

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
)

const (
	NonceSize = 12
	TagSize   = 16
	KeySize   = 32

	// Overhead is the number of bytes encryption adds to a frame.
	Overhead = NonceSize + TagSize
)

var (
	ErrNoKey          = errors.New("no frame key")
	ErrShortFrame     = errors.New("frame shorter than nonce and tag")
	ErrAuthentication = errors.New("frame authentication failed")
	ErrInvalidKey     = errors.New("invalid frame key")
)

// Policy decides what happens to frames while no key is active.
type Policy int

const (
	// PassThrough forwards frames unmodified until a key is set.
	PassThrough Policy = iota
	// Drop discards frames until a key is set.
	Drop
)

func (p Policy) String() string {
	switch p {
	case Drop:
		return "drop"
	default:
		return "passthrough"
	}
}

// ParsePolicy accepts "passthrough" or "drop".
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "passthrough", "pass-through", "clear":
		return PassThrough, nil
	case "drop":
		return Drop, nil
	default:
		return PassThrough, fmt.Errorf("unknown frame policy %q", s)
	}
}

// Seal encrypts frame under aead with a fresh random nonce.
func Seal(aead cipher.AEAD, frame []byte) ([]byte, error) {
	out := make([]byte, NonceSize, NonceSize+len(frame)+aead.Overhead())
	if _, err := rand.Read(out); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return aead.Seal(out, out[:NonceSize], frame, nil), nil
}

// Open reverses Seal. It never returns partially decrypted data.
func Open(aead cipher.AEAD, frame []byte) ([]byte, error) {
	if len(frame) < NonceSize+aead.Overhead() {
		return nil, ErrShortFrame
	}
	nonce, ciphertext := frame[:NonceSize], frame[NonceSize:]
	plain, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrAuthentication
	}
	return plain, nil
}

// NewAEAD builds the AES-256-GCM instance for a derived key.
func NewAEAD(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidKey, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return cipher.NewGCM(block)
}

// Cipher is the frame cipher of one peer session. The key can be installed
// at any time from the control loop while media goroutines keep calling
// EncryptFrame and DecryptFrame; those never block on key setup.
type Cipher struct {
	policy Policy
	aead   atomic.Pointer[cipher.AEAD]
}

// New returns a Cipher without a key.
func New(policy Policy) *Cipher {
	return &Cipher{policy: policy}
}

// SetKey installs the shared key.
func (c *Cipher) SetKey(key []byte) error {
	aead, err := NewAEAD(key)
	if err != nil {
		return err
	}
	c.aead.Store(&aead)
	return nil
}

// ClearKey removes the key; later frames follow the no-key policy.
func (c *Cipher) ClearKey() {
	c.aead.Store(nil)
}

// Active reports whether a key is installed.
func (c *Cipher) Active() bool {
	return c.aead.Load() != nil
}

func (c *Cipher) Policy() Policy {
	return c.policy
}

// EncryptFrame returns the frame to put on the wire. Without a key the frame
// is returned unchanged under PassThrough, or ErrNoKey under Drop.
func (c *Cipher) EncryptFrame(frame []byte) ([]byte, error) {
	aead := c.aead.Load()
	if aead == nil {
		if c.policy == Drop {
			return nil, ErrNoKey
		}
		return frame, nil
	}
	return Seal(*aead, frame)
}

// DecryptFrame returns the plaintext of a received frame. Any error means the
// frame must be dropped.
func (c *Cipher) DecryptFrame(frame []byte) ([]byte, error) {
	aead := c.aead.Load()
	if aead == nil {
		if c.policy == Drop {
			return nil, ErrNoKey
		}
		return frame, nil
	}
	return Open(*aead, frame)
}
