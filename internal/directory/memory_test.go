package directory

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemorySeedAndLookup(t *testing.T) {
	mem := NewMemory()
	id, err := mem.SeedUser("User@Example.com", "User One", "secret", []Membership{
		{CompanyID: "company-1", CompanyName: "Acme", Role: "admin"},
	})
	if err != nil {
		t.Fatalf("SeedUser: %v", err)
	}

	user, err := mem.FindByEmail(context.Background(), "user@example.com")
	if err != nil {
		t.Fatalf("FindByEmail: %v", err)
	}
	if user.ID != id || !user.Active() || len(user.Memberships) != 1 {
		t.Fatalf("unexpected user: %+v", user)
	}
	if err := VerifyPassword(user.PasswordHash, "secret"); err != nil {
		t.Fatalf("password must verify: %v", err)
	}
	if err := VerifyPassword(user.PasswordHash, "wrong"); err == nil {
		t.Fatalf("wrong password must not verify")
	}

	if _, err := mem.FindByEmail(context.Background(), "nobody@example.com"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := mem.SeedUser("user@example.com", "Dup", "x", nil); err == nil {
		t.Fatalf("duplicate seed must fail")
	}
}

func TestMemoryRefreshTokenLifecycle(t *testing.T) {
	mem := NewMemory()
	ctx := context.Background()

	tok := &RefreshToken{
		ID:        "tok-1",
		UserID:    "user-1",
		TokenHash: "hash",
		ExpiresAt: time.Now().Add(time.Hour),
	}
	if err := mem.Create(ctx, tok); err != nil {
		t.Fatalf("Create: %v", err)
	}
	got, err := mem.Find(ctx, "tok-1")
	if err != nil || got.Revoked {
		t.Fatalf("Find: %+v err=%v", got, err)
	}
	if err := mem.MarkRevoked(ctx, "tok-1"); err != nil {
		t.Fatalf("MarkRevoked: %v", err)
	}
	got, err = mem.Find(ctx, "tok-1")
	if err != nil || !got.Revoked {
		t.Fatalf("expected revoked token, got %+v err=%v", got, err)
	}
	if err := mem.MarkRevoked(ctx, "tok-9"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
