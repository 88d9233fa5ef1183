package auth

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newTestEncryptedStore(t *testing.T, dir string) *EncryptedFileStore {
	t.Helper()
	store, err := NewEncryptedFileStore(filepath.Join(dir, "sessions.enc"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	return store
}

func TestEncryptedStoreRoundtrip(t *testing.T) {
	t.Setenv("RUNWAY_PASSPHRASE", "test-passphrase")
	store := newTestEncryptedStore(t, t.TempDir())

	profile := &Profile{
		Name:          "default",
		SessionCookie: "runway_session=secret-value",
		UserAgent:     "test-agent",
		LastModified:  time.Now(),
	}
	if err := store.Store(profile); err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	got, err := store.Retrieve("default")
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if got.SessionCookie != profile.SessionCookie {
		t.Errorf("Cookie mismatch: %q", got.SessionCookie)
	}
	if got.UserAgent != profile.UserAgent {
		t.Errorf("User agent mismatch: %q", got.UserAgent)
	}
	if !store.Exists("default") {
		t.Error("Exists should report the stored profile")
	}
	if store.Exists("other") {
		t.Error("Exists should not report unknown profiles")
	}
}

func TestEncryptedStoreFileIsOpaque(t *testing.T) {
	t.Setenv("RUNWAY_PASSPHRASE", "test-passphrase")
	dir := t.TempDir()
	store := newTestEncryptedStore(t, dir)

	if err := store.Store(&Profile{Name: "default", SessionCookie: "runway_session=plainsecret"}); err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	content, err := os.ReadFile(filepath.Join(dir, "sessions.enc"))
	if err != nil {
		t.Fatalf("Failed to read store file: %v", err)
	}
	if strings.Contains(string(content), "plainsecret") {
		t.Error("Cookie value must not appear in the file on disk")
	}
}

func TestEncryptedStorePersistsAcrossReopen(t *testing.T) {
	t.Setenv("RUNWAY_PASSPHRASE", "test-passphrase")
	dir := t.TempDir()

	first := newTestEncryptedStore(t, dir)
	if err := first.Store(&Profile{Name: "default", SessionCookie: "runway_session=abc", LastModified: time.Now()}); err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	second := newTestEncryptedStore(t, dir)
	got, err := second.Retrieve("default")
	if err != nil {
		t.Fatalf("Retrieve after reopen failed: %v", err)
	}
	if got.SessionCookie != "runway_session=abc" {
		t.Errorf("Cookie mismatch after reopen: %q", got.SessionCookie)
	}
}

func TestEncryptedStoreWrongPassphrase(t *testing.T) {
	dir := t.TempDir()

	t.Setenv("RUNWAY_PASSPHRASE", "correct-passphrase")
	first := newTestEncryptedStore(t, dir)
	if err := first.Store(&Profile{Name: "default", SessionCookie: "runway_session=abc"}); err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	t.Setenv("RUNWAY_PASSPHRASE", "wrong-passphrase")
	second := newTestEncryptedStore(t, dir)
	if _, err := second.Retrieve("default"); err == nil {
		t.Error("Expected decryption failure with the wrong passphrase")
	}
}

func TestEncryptedStoreListAndDelete(t *testing.T) {
	t.Setenv("RUNWAY_PASSPHRASE", "test-passphrase")
	dir := t.TempDir()
	store := newTestEncryptedStore(t, dir)

	profiles, err := store.List()
	if err != nil {
		t.Fatalf("List on empty store failed: %v", err)
	}
	if len(profiles) != 0 {
		t.Errorf("Expected empty list, got %d profiles", len(profiles))
	}

	if err := store.Store(&Profile{Name: "a", SessionCookie: "runway_session=a"}); err != nil {
		t.Fatal(err)
	}
	if err := store.Store(&Profile{Name: "b", SessionCookie: "runway_session=b"}); err != nil {
		t.Fatal(err)
	}

	profiles, err = store.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(profiles) != 2 {
		t.Fatalf("Expected 2 profiles, got %d", len(profiles))
	}

	if err := store.Delete("a"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if store.Exists("a") {
		t.Error("Profile should be gone after delete")
	}
	if !errors.Is(store.Delete("a"), ErrProfileNotFound) {
		t.Error("Expected ErrProfileNotFound for a second delete")
	}

	// Deleting the last profile removes the file entirely.
	if err := store.Delete("b"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "sessions.enc")); !os.IsNotExist(err) {
		t.Error("Expected the store file to be removed when empty")
	}
}

func TestEncryptedStoreValidation(t *testing.T) {
	t.Setenv("RUNWAY_PASSPHRASE", "test-passphrase")
	store := newTestEncryptedStore(t, t.TempDir())

	if !errors.Is(store.Store(nil), ErrInvalidProfile) {
		t.Error("Expected ErrInvalidProfile for nil profile")
	}
	if !errors.Is(store.Store(&Profile{}), ErrInvalidProfile) {
		t.Error("Expected ErrInvalidProfile for unnamed profile")
	}
	if _, err := store.Retrieve(""); !errors.Is(err, ErrInvalidProfile) {
		t.Error("Expected ErrInvalidProfile for empty name")
	}
	if _, err := store.Retrieve("missing"); !errors.Is(err, ErrProfileNotFound) {
		t.Error("Expected ErrProfileNotFound for unknown profile")
	}
}
