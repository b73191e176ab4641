package security

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const algorithm = "argon2id"

// Upper bounds on Argon2id cost. A stored hash above them is rejected before
// any derivation, so a corrupt row costs at most 1 GiB per verify.
const (
	MaxMemoryKiB  = 1024 * 1024
	maxIterations = 64
	maxKeyLength  = 1024
)

// Params are the Argon2id cost parameters encoded into every hash.
type Params struct {
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultParams: m=19456 KiB, t=2, p=1 with a 16 byte salt and 32 byte digest.
func DefaultParams() Params {
	return Params{
		MemoryKiB:   19 * 1024,
		Iterations:  2,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}
}

var errInvalidParams = errors.New("invalid argon2 parameters")

// Validate reports whether p is usable for both hashing and verification.
func (p Params) Validate() error {
	if p.MemoryKiB < 8*uint32(p.Parallelism) || p.MemoryKiB > MaxMemoryKiB {
		return fmt.Errorf("%w: memory %d KiB", errInvalidParams, p.MemoryKiB)
	}
	if p.Iterations < 1 || p.Iterations > maxIterations {
		return fmt.Errorf("%w: iterations %d", errInvalidParams, p.Iterations)
	}
	if p.Parallelism < 1 {
		return fmt.Errorf("%w: parallelism %d", errInvalidParams, p.Parallelism)
	}
	if p.KeyLength < 16 || p.KeyLength > maxKeyLength {
		return fmt.Errorf("%w: key length %d", errInvalidParams, p.KeyLength)
	}
	return nil
}

// HashPassword derives an Argon2id hash of plain under a fresh random salt
// and returns it in PHC form: $argon2id$v=19$m=19456,t=2,p=1$<salt>$<digest>.
func HashPassword(plain string, p Params) (string, error) {
	if err := p.Validate(); err != nil {
		return "", err
	}
	if p.SaltLength < 8 {
		return "", fmt.Errorf("%w: salt length %d", errInvalidParams, p.SaltLength)
	}

	salt := make([]byte, p.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	digest := argon2.IDKey([]byte(plain), salt, p.Iterations, p.MemoryKiB, p.Parallelism, p.KeyLength)

	return fmt.Sprintf(
		"$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithm,
		argon2.Version,
		p.MemoryKiB,
		p.Iterations,
		p.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(digest),
	), nil
}

// VerifyPassword re-derives plain with the parameters and salt stored in
// encoded and compares in constant time. A malformed hash reports false,
// the same as a wrong password.
func VerifyPassword(plain, encoded string) bool {
	p, salt, digest, err := decodeHash(encoded)
	if err != nil {
		return false
	}

	other := argon2.IDKey([]byte(plain), salt, p.Iterations, p.MemoryKiB, p.Parallelism, p.KeyLength)

	return subtle.ConstantTimeCompare(digest, other) == 1
}

var errMalformedHash = errors.New("malformed password hash")

func decodeHash(encoded string) (Params, []byte, []byte, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" {
		return Params{}, nil, nil, errMalformedHash
	}
	if parts[1] != algorithm {
		return Params{}, nil, nil, fmt.Errorf("%w: algorithm %q", errMalformedHash, parts[1])
	}
	if parts[2] != "v="+strconv.Itoa(argon2.Version) {
		return Params{}, nil, nil, fmt.Errorf("%w: version %q", errMalformedHash, parts[2])
	}

	var p Params
	for _, kv := range strings.Split(parts[3], ",") {
		key, val, ok := strings.Cut(kv, "=")
		if !ok {
			return Params{}, nil, nil, errMalformedHash
		}
		n, err := strconv.ParseUint(val, 10, 32)
		if err != nil {
			return Params{}, nil, nil, errMalformedHash
		}
		switch key {
		case "m":
			p.MemoryKiB = uint32(n)
		case "t":
			p.Iterations = uint32(n)
		case "p":
			if n > 255 {
				return Params{}, nil, nil, errMalformedHash
			}
			p.Parallelism = uint8(n)
		default:
			return Params{}, nil, nil, errMalformedHash
		}
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil || len(salt) == 0 {
		return Params{}, nil, nil, errMalformedHash
	}
	digest, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return Params{}, nil, nil, errMalformedHash
	}

	p.SaltLength = uint32(len(salt))
	p.KeyLength = uint32(len(digest))

	if err := p.Validate(); err != nil {
		return Params{}, nil, nil, errMalformedHash
	}

	return p, salt, digest, nil
}
