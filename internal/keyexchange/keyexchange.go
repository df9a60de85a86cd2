// Package keyexchange implements the per-pair ECDH agreement used to key
// the frame cipher. Public keys travel over the relay as base64 DER
// SubjectPublicKeyInfo so browser peers using WebCrypto can import them.
package keyexchange

import (
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"
)

// KeySize is the length of a derived AES-256 key.
const KeySize = 32

var ErrMalformedKey = errors.New("malformed public key")

// MalformedKeyError reports a public key that could not be imported.
type MalformedKeyError struct {
	Reason string
	Err    error
}

func (e *MalformedKeyError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%v: %s: %v", ErrMalformedKey, e.Reason, e.Err)
	}
	return fmt.Sprintf("%v: %s", ErrMalformedKey, e.Reason)
}

func (e *MalformedKeyError) Is(target error) bool {
	return target == ErrMalformedKey
}

func (e *MalformedKeyError) Unwrap() error {
	return e.Err
}

// KeyPair is the local ECDH key pair. One is generated per call and shared
// by every peer session of that call.
type KeyPair struct {
	Private *ecdh.PrivateKey
	Public  *ecdh.PublicKey
}

// GenerateKeyPair creates a fresh P-256 key pair.
func GenerateKeyPair() (*KeyPair, error) {
	priv, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate key pair: %w", err)
	}
	return &KeyPair{Private: priv, Public: priv.PublicKey()}, nil
}

// ExportPublicKey encodes pub as base64 DER SubjectPublicKeyInfo.
func ExportPublicKey(pub *ecdh.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("export public key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(der), nil
}

// ImportPublicKey decodes a key produced by ExportPublicKey (or by a
// browser's SPKI export). Any failure is a *MalformedKeyError.
func ImportPublicKey(encoded string) (*ecdh.PublicKey, error) {
	der, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, &MalformedKeyError{Reason: "invalid base64", Err: err}
	}

	parsed, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, &MalformedKeyError{Reason: "invalid SPKI", Err: err}
	}

	// x509 hands back ECDSA keys for id-ecPublicKey, ecdh keys only for X25519.
	switch key := parsed.(type) {
	case *ecdh.PublicKey:
		if key.Curve() != ecdh.P256() {
			return nil, &MalformedKeyError{Reason: "unexpected curve"}
		}
		return key, nil
	case *ecdsa.PublicKey:
		pub, err := key.ECDH()
		if err != nil {
			return nil, &MalformedKeyError{Reason: "unsupported curve", Err: err}
		}
		if pub.Curve() != ecdh.P256() {
			return nil, &MalformedKeyError{Reason: "unexpected curve"}
		}
		return pub, nil
	default:
		return nil, &MalformedKeyError{Reason: fmt.Sprintf("unexpected key type %T", parsed)}
	}
}

// DeriveSharedSecret runs ECDH and returns the 32-byte secret used directly
// as the AES-256-GCM key, matching WebCrypto deriveKey(ECDH -> AES-GCM 256).
func DeriveSharedSecret(priv *ecdh.PrivateKey, remote *ecdh.PublicKey) ([]byte, error) {
	if priv == nil || remote == nil {
		return nil, errors.New("derive shared secret: missing key")
	}
	secret, err := priv.ECDH(remote)
	if err != nil {
		return nil, fmt.Errorf("derive shared secret: %w", err)
	}
	if len(secret) < KeySize {
		return nil, fmt.Errorf("derive shared secret: short secret (%d bytes)", len(secret))
	}
	return secret[:KeySize], nil
}
