package file

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"opsdesk.org/internal/rbac"
	"opsdesk.org/internal/session"
)

func testRecord() *session.Record {
	return &session.Record{
		AccessToken: "token-1",
		UserID:      "user-1",
		Email:       "user@example.com",
		Companies: []session.Membership{
			{CompanyID: "company-1", CompanyName: "Acme", Role: rbac.RoleViewer},
		},
		CurrentCompanyID: "company-1",
		ExpiresAt:        time.Now().Add(time.Hour).UTC(),
	}
}

func TestLoadMissingFileReturnsNoSession(t *testing.T) {
	store := New(filepath.Join(t.TempDir(), "session.json"))
	if _, err := store.Load(); !errors.Is(err, session.ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.json")
	store := New(path)

	if err := store.Save(testRecord()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.AccessToken != "token-1" || got.CurrentCompanyID != "company-1" {
		t.Fatalf("round trip mismatch: %+v", got)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("expected 0600 permissions, got %o", perm)
	}
}

func TestClearRemovesFileAndIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	store := New(path)

	if err := store.Save(testRecord()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := store.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if err := store.Clear(); err != nil {
		t.Fatalf("second Clear: %v", err)
	}
	if _, err := store.Load(); !errors.Is(err, session.ErrNoSession) {
		t.Fatalf("expected ErrNoSession after clear, got %v", err)
	}
}

func TestLoadRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	store := New(path)
	if _, err := store.Load(); err == nil {
		t.Fatalf("expected decode error")
	}
}
