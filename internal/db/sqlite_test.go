package db

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/pysugar/workspace-mirror/internal/db/models"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := InitDB(filepath.Join(t.TempDir(), "mirror.db"), "warn")
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	return db
}

func TestCreateUser_NormalizesEmailAndFinds(t *testing.T) {
	db := newTestDB(t)

	user, err := CreateUser(db, "  Alice@Example.COM ", "Alice")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if user.Email != "alice@example.com" {
		t.Fatalf("expected normalized email, got %q", user.Email)
	}

	byEmail, err := FindUser(db, "ALICE@example.com")
	if err != nil || byEmail.ID != user.ID {
		t.Fatalf("find by email: user=%v err=%v", byEmail, err)
	}
	byID, err := FindUser(db, user.ID)
	if err != nil || byID.Email != user.Email {
		t.Fatalf("find by id: user=%v err=%v", byID, err)
	}

	if _, err := FindUser(db, "nobody@example.com"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if _, err := CreateUser(db, "alice@example.com", "dup"); err == nil {
		t.Fatal("expected duplicate email to fail")
	}
}

func TestAuthorCheckConstraint_RejectsMixedVariant(t *testing.T) {
	db := newTestDB(t)
	user, err := CreateUser(db, "bob@example.com", "Bob")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	valid := []models.Author{
		{ID: uuid.NewString(), Provider: "google", Kind: models.AuthorUser, UserID: &user.ID},
		{ID: uuid.NewString(), Provider: "google", Kind: models.AuthorExternal, DisplayName: "Carol"},
	}
	for _, a := range valid {
		if err := db.Create(&a).Error; err != nil {
			t.Fatalf("expected author %+v to be accepted: %v", a, err)
		}
	}

	invalid := []models.Author{
		{ID: uuid.NewString(), Provider: "google", Kind: models.AuthorUser},
		{ID: uuid.NewString(), Provider: "google", Kind: models.AuthorExternal, UserID: &user.ID, DisplayName: "Carol"},
		{ID: uuid.NewString(), Provider: "google", Kind: models.AuthorExternal},
	}
	for _, a := range invalid {
		if err := db.Create(&a).Error; err == nil {
			t.Fatalf("expected author %+v to violate the variant check", a)
		}
	}
}

func TestEnsureAPIKey_GeneratesOnceAndHonorsOverride(t *testing.T) {
	db := newTestDB(t)

	first, err := EnsureAPIKey(db, "")
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if len(first) != 35 || first[:3] != "sk-" {
		t.Fatalf("unexpected key format: %q", first)
	}
	second, err := EnsureAPIKey(db, "")
	if err != nil || second != first {
		t.Fatalf("expected stable key, got %q err=%v", second, err)
	}

	if _, err := EnsureAPIKey(db, "sk-override"); err != nil {
		t.Fatalf("override: %v", err)
	}
	if got := GetAPIKey(db); got != "sk-override" {
		t.Fatalf("expected override to be persisted, got %q", got)
	}

	regenerated, err := RegenerateAPIKey(db)
	if err != nil || regenerated == "sk-override" || GetAPIKey(db) != regenerated {
		t.Fatalf("regenerate failed: key=%q err=%v", regenerated, err)
	}
}

func TestListThreads_UnknownResource(t *testing.T) {
	db := newTestDB(t)
	if _, err := ListThreads(db, "missing"); !errors.Is(err, ErrResourceNotFound) {
		t.Fatalf("expected ErrResourceNotFound, got %v", err)
	}
}
