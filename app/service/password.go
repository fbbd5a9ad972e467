package service

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// Argon2Params are the cost parameters for new password hashes. Defaults
// follow the OWASP recommendation: 64 MiB memory, 3 iterations, 4 lanes.
type Argon2Params struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

func DefaultArgon2Params() Argon2Params {
	return Argon2Params{
		Memory:      64 * 1024,
		Iterations:  3,
		Parallelism: 4,
		SaltLength:  16,
		KeyLength:   32,
	}
}

// VerifyResult is the outcome of checking a plaintext against a stored hash.
// NeedsRehash is set only when the match succeeded against a legacy bcrypt
// hash, so the caller can upgrade it while the plaintext is at hand.
type VerifyResult struct {
	Valid       bool
	NeedsRehash bool
}

type hashScheme int

const (
	schemeArgon2id hashScheme = iota
	schemeBcrypt
)

// bcrypt version prefixes as emitted by every bcrypt implementation in use.
var bcryptPrefixes = []string{"$2a$", "$2b$", "$2y$", "$2x$"}

func classifyHash(stored string) hashScheme {
	for _, p := range bcryptPrefixes {
		if strings.HasPrefix(stored, p) {
			return schemeBcrypt
		}
	}
	return schemeArgon2id
}

type PasswordHasher struct {
	params Argon2Params
}

func NewPasswordHasher(params Argon2Params) *PasswordHasher {
	return &PasswordHasher{params: params}
}

// Hash always produces an argon2id hash in PHC string format.
func (h *PasswordHasher) Hash(password string) (string, error) {
	salt := make([]byte, h.params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}

	key := argon2.IDKey([]byte(password), salt, h.params.Iterations, h.params.Memory, h.params.Parallelism, h.params.KeyLength)

	encoded := fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.params.Memory,
		h.params.Iterations,
		h.params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	)
	return encoded, nil
}

// Verify checks password against stored, dispatching on the hash scheme.
// A mismatch or malformed hash yields Valid:false, never an error.
func (h *PasswordHasher) Verify(password, stored string) VerifyResult {
	switch classifyHash(stored) {
	case schemeBcrypt:
		if bcrypt.CompareHashAndPassword([]byte(stored), []byte(password)) != nil {
			return VerifyResult{}
		}
		return VerifyResult{Valid: true, NeedsRehash: true}
	default:
		return VerifyResult{Valid: h.verifyArgon2id(password, stored)}
	}
}

func (h *PasswordHasher) verifyArgon2id(password, stored string) bool {
	params, salt, key, err := decodeArgon2idHash(stored)
	if err != nil {
		return false
	}

	candidate := argon2.IDKey([]byte(password), salt, params.Iterations, params.Memory, params.Parallelism, uint32(len(key)))
	return subtle.ConstantTimeCompare(candidate, key) == 1
}

func decodeArgon2idHash(stored string) (Argon2Params, []byte, []byte, error) {
	var params Argon2Params

	parts := strings.Split(stored, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return params, nil, nil, errors.New("not an argon2id hash")
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return params, nil, nil, err
	}
	if version != argon2.Version {
		return params, nil, nil, errors.New("unsupported argon2 version")
	}

	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &params.Memory, &params.Iterations, &params.Parallelism); err != nil {
		return params, nil, nil, err
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return params, nil, nil, err
	}

	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return params, nil, nil, err
	}

	return params, salt, key, nil
}
