// Package security provides the adaptive password hashing used for
// password-gated pastes. Pastes store only the encoded hash; the plain
// password rides on each read request.
package security

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Params tunes the Argon2id cost factors.
type Params struct {
	Time    uint32
	Memory  uint32
	Threads uint8
	KeyLen  uint32
	SaltLen int
}

// DefaultParams are suitable for interactive request handling.
var DefaultParams = Params{
	Time:    2,
	Memory:  64 * 1024,
	Threads: 2,
	KeyLen:  32,
	SaltLen: 16,
}

// HashPassword hashes the provided password using Argon2id with the
// default parameters. An empty password hashes to the empty string.
func HashPassword(password string) (string, error) {
	return HashPasswordParams(password, DefaultParams)
}

// HashPasswordParams hashes a password with explicit cost parameters.
func HashPasswordParams(password string, p Params) (string, error) {
	if password == "" {
		return "", nil
	}
	salt := make([]byte, p.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	key := argon2.IDKey([]byte(password), salt, p.Time, p.Memory, p.Threads, p.KeyLen)
	return encode(p, salt, key), nil
}

// VerifyPassword checks whether password matches the stored encoded hash.
// The comparison is constant-time. The stored parameters are honored, so
// hashes survive future cost changes.
func VerifyPassword(encoded, password string) (bool, error) {
	if encoded == "" {
		return password == "", nil
	}
	p, salt, expected, err := decode(encoded)
	if err != nil {
		return false, err
	}
	key := argon2.IDKey([]byte(password), salt, p.Time, p.Memory, p.Threads, uint32(len(expected)))
	return subtle.ConstantTimeCompare(key, expected) == 1, nil
}

func encode(p Params, salt, key []byte) string {
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, p.Memory, p.Time, p.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key))
}

func decode(encoded string) (Params, []byte, []byte, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return Params{}, nil, nil, errors.New("malformed password hash")
	}
	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return Params{}, nil, nil, fmt.Errorf("parse hash version: %w", err)
	}
	if version != argon2.Version {
		return Params{}, nil, nil, fmt.Errorf("unsupported argon2 version %d", version)
	}
	var mem, tm, threads int
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &mem, &tm, &threads); err != nil {
		return Params{}, nil, nil, fmt.Errorf("parse hash params: %w", err)
	}
	if mem <= 0 || tm <= 0 || threads <= 0 || threads > 255 {
		return Params{}, nil, nil, errors.New("hash params out of range")
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return Params{}, nil, nil, fmt.Errorf("decode salt: %w", err)
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return Params{}, nil, nil, fmt.Errorf("decode key: %w", err)
	}
	p := Params{Time: uint32(tm), Memory: uint32(mem), Threads: uint8(threads), KeyLen: uint32(len(key)), SaltLen: len(salt)}
	return p, salt, key, nil
}
