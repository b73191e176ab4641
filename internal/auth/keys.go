// Package auth holds the asymmetric key material configured under auth.ek
// and auth.dk. The keys are parsed and checked at startup; nothing signs with
// them yet.
package auth

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

var ErrKeyMismatch = errors.New("auth.dk is not the public half of auth.ek")

type KeyPair struct {
	signing      ed25519.PrivateKey
	verification ed25519.PublicKey
}

// ParseKeyPair decodes a PKCS#8 Ed25519 private key (ek) and a PKIX Ed25519
// public key (dk) and checks that they belong together.
func ParseKeyPair(ekPEM, dkPEM string) (*KeyPair, error) {
	priv, err := jwt.ParseEdPrivateKeyFromPEM([]byte(ekPEM))
	if err != nil {
		return nil, fmt.Errorf("parse auth.ek: %w", err)
	}
	pub, err := jwt.ParseEdPublicKeyFromPEM([]byte(dkPEM))
	if err != nil {
		return nil, fmt.Errorf("parse auth.dk: %w", err)
	}

	signing, ok := priv.(ed25519.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("auth.ek: unexpected key type %T", priv)
	}
	verification, ok := pub.(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("auth.dk: unexpected key type %T", pub)
	}

	if !verification.Equal(signing.Public()) {
		return nil, ErrKeyMismatch
	}

	return &KeyPair{signing: signing, verification: verification}, nil
}

func (k *KeyPair) SigningKey() ed25519.PrivateKey {
	return k.signing
}

func (k *KeyPair) VerificationKey() ed25519.PublicKey {
	return k.verification
}

// Fingerprint is the first 8 bytes of sha256(public key), hex encoded. Safe
// to log.
func (k *KeyPair) Fingerprint() string {
	sum := sha256.Sum256(k.verification)
	return hex.EncodeToString(sum[:8])
}
