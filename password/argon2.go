// Package password provides Argon2id password hashing with PHC-encoded
// output. Hashes carry their own parameters, so verification works across
// configuration changes and NeedsRehash reports when a stored hash lags the
// current policy.
package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	phcAlgorithm = "argon2id"

	minMemoryKB    uint32 = 8 * 1024
	minIterations  uint32 = 1
	minThreads     uint8  = 1
	minSaltBytes   uint32 = 16
	minKeyBytes    uint32 = 16
	minPasswordLen        = 8
)

// ErrPasswordTooShort is returned by Hash for passwords below the minimum length.
var ErrPasswordTooShort = errors.New("password too short")

// Params are the Argon2id cost parameters. Memory is in kibibytes.
type Params struct {
	Memory     uint32
	Iterations uint32
	Threads    uint8
	SaltBytes  uint32
	KeyBytes   uint32
}

// DefaultParams is a moderate interactive-login profile.
var DefaultParams = Params{
	Memory:     64 * 1024,
	Iterations: 2,
	Threads:    2,
	SaltBytes:  16,
	KeyBytes:   32,
}

// Hasher hashes and verifies passwords. Safe for concurrent use.
type Hasher struct {
	params Params
}

// NewHasher validates the parameters and returns a Hasher.
func NewHasher(p Params) (*Hasher, error) {
	switch {
	case p.Memory < minMemoryKB:
		return nil, errors.New("argon2 memory must be >= 8192 KiB")
	case p.Iterations < minIterations:
		return nil, errors.New("argon2 iterations must be >= 1")
	case p.Threads < minThreads:
		return nil, errors.New("argon2 threads must be >= 1")
	case p.SaltBytes < minSaltBytes:
		return nil, errors.New("argon2 salt must be >= 16 bytes")
	case p.KeyBytes < minKeyBytes:
		return nil, errors.New("argon2 key must be >= 16 bytes")
	}
	return &Hasher{params: p}, nil
}

// Hash derives an Argon2id hash and returns it PHC-encoded.
func (h *Hasher) Hash(password string) (string, error) {
	if len(password) < minPasswordLen {
		return "", ErrPasswordTooShort
	}

	salt := make([]byte, h.params.SaltBytes)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", err
	}

	key := argon2.IDKey(
		[]byte(password),
		salt,
		h.params.Iterations,
		h.params.Memory,
		h.params.Threads,
		h.params.KeyBytes,
	)

	return fmt.Sprintf(
		"$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		phcAlgorithm,
		argon2.Version,
		h.params.Memory,
		h.params.Iterations,
		h.params.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify reports whether password matches the PHC-encoded hash. Comparison is
// constant-time over the derived key.
func (h *Hasher) Verify(password, encoded string) (bool, error) {
	parsed, err := parsePHC(encoded)
	if err != nil {
		return false, err
	}

	key := argon2.IDKey(
		[]byte(password),
		parsed.salt,
		parsed.iterations,
		parsed.memory,
		parsed.threads,
		uint32(len(parsed.key)),
	)

	return subtle.ConstantTimeCompare(key, parsed.key) == 1, nil
}

// NeedsRehash reports whether the stored hash was produced with weaker
// parameters than the hasher's current policy.
func (h *Hasher) NeedsRehash(encoded string) (bool, error) {
	parsed, err := parsePHC(encoded)
	if err != nil {
		return false, err
	}

	if h.params.Memory > parsed.memory ||
		h.params.Iterations > parsed.iterations ||
		h.params.Threads > parsed.threads ||
		h.params.KeyBytes != uint32(len(parsed.key)) {
		return true, nil
	}
	return false, nil
}

type phcHash struct {
	memory     uint32
	iterations uint32
	threads    uint8
	salt       []byte
	key        []byte
}

func parsePHC(encoded string) (*phcHash, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" {
		return nil, errors.New("malformed PHC hash")
	}
	if parts[1] != phcAlgorithm {
		return nil, errors.New("unsupported hash algorithm")
	}

	version, err := strconv.Atoi(strings.TrimPrefix(parts[2], "v="))
	if err != nil || !strings.HasPrefix(parts[2], "v=") {
		return nil, errors.New("malformed argon2 version")
	}
	if version != argon2.Version {
		return nil, errors.New("unsupported argon2 version")
	}

	var out phcHash
	for _, kv := range strings.Split(parts[3], ",") {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			return nil, errors.New("malformed argon2 parameters")
		}
		switch k {
		case "m":
			n, err := strconv.ParseUint(v, 10, 32)
			if err != nil || n < uint64(minMemoryKB) {
				return nil, errors.New("invalid memory parameter")
			}
			out.memory = uint32(n)
		case "t":
			n, err := strconv.ParseUint(v, 10, 32)
			if err != nil || n < uint64(minIterations) {
				return nil, errors.New("invalid iterations parameter")
			}
			out.iterations = uint32(n)
		case "p":
			n, err := strconv.ParseUint(v, 10, 8)
			if err != nil || n < uint64(minThreads) {
				return nil, errors.New("invalid threads parameter")
			}
			out.threads = uint8(n)
		default:
			return nil, errors.New("unknown argon2 parameter")
		}
	}
	if out.memory == 0 || out.iterations == 0 || out.threads == 0 {
		return nil, errors.New("missing argon2 parameters")
	}

	if out.salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil {
		return nil, errors.New("malformed salt")
	}
	if len(out.salt) < int(minSaltBytes) {
		return nil, errors.New("salt too short")
	}
	if out.key, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil {
		return nil, errors.New("malformed key")
	}
	if len(out.key) < int(minKeyBytes) {
		return nil, errors.New("key too short")
	}

	return &out, nil
}
