package config

import (
	"fmt"
	"time"

	"github.com/zalando/go-keyring"
	"golang.org/x/crypto/bcrypt"
)

const keyringTimeout = 5 * time.Second

// HashSecret derives a bcrypt digest suitable for storing a derived
// API secret in a credentials record instead of the plaintext value
// (§6 credentials file; a record may hold either the plaintext
// password or a plug-in-specific derived secret).
func HashSecret(secret string) (string, error) {
	digest, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash secret: %w", err)
	}
	return string(digest), nil
}

// VerifySecret reports whether secret matches a digest produced by
// HashSecret.
func VerifySecret(digest, secret string) bool {
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(secret)) == nil
}

// KeyringResolver resolves a credentials entry against the host OS's
// secret store before falling back to the JSON credentials file,
// mirroring the teacher's keyring-first, file-second precedence.
type KeyringResolver struct {
	service string
}

// NewKeyringResolver scopes every lookup under service (typically the
// archive id, so two archives on the same host don't collide in the
// shared OS keyring namespace).
func NewKeyringResolver(service string) *KeyringResolver {
	return &KeyringResolver{service: service}
}

// Resolve looks up the password stored for target (a host, URL
// prefix, or "s3://bucket" key, same as CredentialsStore.Lookup) in
// the OS keyring. Absence of the system keyring (headless servers,
// CI) is reported as !ok, not an error, so callers fall through to
// CredentialsStore without special-casing the platform. The lookup
// runs with a bounded timeout: on some headless Linux setups a dbus
// secret-service call blocks indefinitely instead of failing fast.
func (r *KeyringResolver) Resolve(target string) (string, bool) {
	type result struct {
		secret string
		err    error
	}
	done := make(chan result, 1)
	go func() {
		secret, err := keyring.Get(r.service, target)
		done <- result{secret, err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return "", false
		}
		return res.secret, true
	case <-time.After(keyringTimeout):
		return "", false
	}
}

// Store saves a password for target in the OS keyring under this
// resolver's service scope.
func (r *KeyringResolver) Store(target, secret string) error {
	return keyring.Set(r.service, target, secret)
}

// Forget removes a stored password for target, if any.
func (r *KeyringResolver) Forget(target string) error {
	return keyring.Delete(r.service, target)
}

// ResolvePassword returns the password CredentialsStore should use
// for target: the keyring entry if one exists, otherwise the
// record's own Password field from a prior Lookup.
func (s *CredentialsStore) ResolvePassword(resolver *KeyringResolver, target string, fallback Credentials) string {
	if resolver != nil {
		if secret, ok := resolver.Resolve(target); ok {
			return secret
		}
	}
	return fallback.Password
}
