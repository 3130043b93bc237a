package auth

import (
	"crypto/subtle"

	"github.com/alexedwards/argon2id"
)

// HashSecret returns an argon2id hash suitable for ADMIN_API_SECRET_HASH.
func HashSecret(plain string) (string, error) {
	return argon2id.CreateHash(plain, argon2id.DefaultParams)
}

// SecretMatcher checks presented shared secrets against a configured plain
// value or an argon2id hash. The hash wins when both are set.
type SecretMatcher struct {
	Plain string
	Hash  string
}

func (m SecretMatcher) Configured() bool { return m.Plain != "" || m.Hash != "" }

func (m SecretMatcher) Match(candidate string) bool {
	if candidate == "" {
		return false
	}
	if m.Hash != "" {
		ok, err := argon2id.ComparePasswordAndHash(candidate, m.Hash)
		return err == nil && ok
	}
	if m.Plain == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(candidate), []byte(m.Plain)) == 1
}
