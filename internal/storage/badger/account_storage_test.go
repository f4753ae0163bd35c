package badger

import (
	"context"
	"testing"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/renovo/internal/interfaces"
	"github.com/ternarybob/renovo/internal/models"
)

func TestAccountSwapReplacesIdentity(t *testing.T) {
	db := newTestDB(t)
	storage := NewAccountStorage(db, arbor.NewLogger())
	ctx := context.Background()

	account := models.NewAccount("profile-old", "farmer-1", "farmer1@example.com", "pw", "cred-1", false, t.TempDir())
	if err := storage.Save(ctx, account); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	replacement := *account
	replacement.ID = "profile-new"
	if err := storage.Swap(ctx, "profile-old", &replacement); err != nil {
		t.Fatalf("Swap failed: %v", err)
	}

	if _, err := storage.Get(ctx, "profile-old"); err != interfaces.ErrNotFound {
		t.Errorf("old identity still retrievable after swap, err=%v", err)
	}

	got, err := storage.Get(ctx, "profile-new")
	if err != nil {
		t.Fatalf("new identity not retrievable after swap: %v", err)
	}
	if got.EmailAddress != "farmer1@example.com" {
		t.Errorf("swap lost account fields: %+v", got)
	}

	count, err := storage.Count(ctx)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 1 {
		t.Errorf("expected exactly one account after swap, got %d", count)
	}
}

func TestAccountSwapWhenOldMissing(t *testing.T) {
	db := newTestDB(t)
	storage := NewAccountStorage(db, arbor.NewLogger())
	ctx := context.Background()

	// Retrying a swap whose delete already happened must still land the new
	// record rather than fail.
	account := models.NewAccount("profile-new", "farmer-2", "farmer2@example.com", "pw", "", true, t.TempDir())
	if err := storage.Swap(ctx, "profile-gone", account); err != nil {
		t.Fatalf("Swap with missing old record failed: %v", err)
	}

	if _, err := storage.Get(ctx, "profile-new"); err != nil {
		t.Errorf("new record missing after swap: %v", err)
	}
}

func TestAccountListByCredential(t *testing.T) {
	db := newTestDB(t)
	storage := NewAccountStorage(db, arbor.NewLogger())
	ctx := context.Background()
	dir := t.TempDir()

	a1 := models.NewAccount("profile-1", "one", "one@example.com", "pw", "cred-x", false, dir)
	a2 := models.NewAccount("profile-2", "two", "two@example.com", "pw", "cred-y", false, dir)
	a3 := models.NewAccount("profile-3", "three", "three@example.com", "pw", "cred-x", true, dir)
	for _, a := range []*models.Account{a1, a2, a3} {
		if err := storage.Save(ctx, a); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}

	matched, err := storage.ListByCredential(ctx, "cred-x")
	if err != nil {
		t.Fatalf("ListByCredential failed: %v", err)
	}
	if len(matched) != 2 {
		t.Errorf("expected 2 accounts for cred-x, got %d", len(matched))
	}
}
