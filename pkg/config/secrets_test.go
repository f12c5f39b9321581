package config

import "testing"

func TestHashSecretRoundTrip(t *testing.T) {
	digest, err := HashSecret("s3kr3t")
	if err != nil {
		t.Fatalf("HashSecret: %v", err)
	}
	if !VerifySecret(digest, "s3kr3t") {
		t.Fatal("VerifySecret rejected the correct secret")
	}
	if VerifySecret(digest, "wrong") {
		t.Fatal("VerifySecret accepted an incorrect secret")
	}
}

func TestKeyringResolverMissingEntryIsNotAnError(t *testing.T) {
	resolver := NewKeyringResolver("muninn-test-archive")
	if _, ok := resolver.Resolve("https://example.invalid/does-not-exist"); ok {
		t.Fatal("expected no keyring entry for an unregistered target")
	}
}

func TestResolvePasswordFallsBackToRecord(t *testing.T) {
	store := NewCredentialsStore(map[string]Credentials{
		"example.com": {Username: "alice", Password: "file-password"},
	})
	fallback, _ := store.Lookup("example.com")
	got := store.ResolvePassword(nil, "example.com", fallback)
	if got != "file-password" {
		t.Fatalf("got %q, want file-password", got)
	}
}
