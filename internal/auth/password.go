package auth

import (
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/bcrypt"
)

// PasswordCost is the bcrypt work factor for stored digests.
const PasswordCost = 10

type Hasher struct {
	cost int
}

func NewHasher() *Hasher {
	return &Hasher{cost: PasswordCost}
}

// Hash returns a salted bcrypt digest of plaintext. Any length is accepted:
// bcrypt only reads 72 bytes, so it is fed a fixed-size digest of the input.
func (h *Hasher) Hash(plaintext string) (string, error) {
	digest, err := bcrypt.GenerateFromPassword(prehash(plaintext), h.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(digest), nil
}

// Verify reports whether plaintext matches digest. A malformed digest never
// matches.
func (h *Hasher) Verify(plaintext, digest string) bool {
	return bcrypt.CompareHashAndPassword([]byte(digest), prehash(plaintext)) == nil
}

func prehash(plaintext string) []byte {
	sum := blake2b.Sum256([]byte(plaintext))
	return []byte(base64.StdEncoding.EncodeToString(sum[:]))
}
