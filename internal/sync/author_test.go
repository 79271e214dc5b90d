package sync

import (
	gosync "sync"
	"testing"

	"github.com/pysugar/workspace-mirror/internal/db/models"
	"github.com/pysugar/workspace-mirror/internal/remote"

	"gorm.io/gorm"
)

func TestAuthor_UniquePerVariant(t *testing.T) {
	db := newTestDB(t)
	ada := createUser(t, db, "ada@example.com")

	external := func(id, provider, name string) error {
		return db.Create(&models.Author{ID: id, Provider: provider, Kind: models.AuthorExternal, DisplayName: name}).Error
	}
	linked := func(id, provider string) error {
		userID := ada.ID
		return db.Create(&models.Author{ID: id, Provider: provider, Kind: models.AuthorUser, UserID: &userID, DisplayName: "Ada"}).Error
	}

	if err := external("e1", remote.ProviderGoogle, "Bob"); err != nil {
		t.Fatalf("first external author: %v", err)
	}
	if err := external("e2", remote.ProviderGoogle, "Bob"); err == nil {
		t.Fatal("duplicate external author should be rejected")
	}
	if err := external("e3", remote.ProviderAsana, "Bob"); err != nil {
		t.Fatalf("same name on another provider: %v", err)
	}

	if err := linked("u1", remote.ProviderGoogle); err != nil {
		t.Fatalf("first user author: %v", err)
	}
	if err := linked("u2", remote.ProviderGoogle); err == nil {
		t.Fatal("duplicate user author should be rejected")
	}
	if err := external("e4", remote.ProviderGoogle, "Ada"); err != nil {
		t.Fatalf("external author sharing a linked user's name: %v", err)
	}
}

func TestAuthorResolver_ReusesRowInsertedByAnotherWriter(t *testing.T) {
	db := newTestDB(t)
	ada := createUser(t, db, "ada@example.com")

	// Insert the same placeholder just before the resolver's own insert.
	var once gosync.Once
	if err := db.Callback().Create().Before("gorm:create").Register("test:competing_author", func(tx *gorm.DB) {
		if tx.Statement.Table != "authors" {
			return
		}
		once.Do(func() {
			tx.Session(&gorm.Session{NewDB: true}).Exec(
				`INSERT INTO authors (id, provider, kind, display_name, created_at) VALUES ('competitor', ?, ?, 'Bob', CURRENT_TIMESTAMP)`,
				remote.ProviderGoogle, models.AuthorExternal)
		})
	}); err != nil {
		t.Fatalf("register callback: %v", err)
	}

	resolver := authorResolver{provider: remote.ProviderGoogle, ownerID: ada.ID}
	var got *models.Author
	err := db.Transaction(func(tx *gorm.DB) error {
		author, ok, err := resolver.resolve(tx, &remote.Author{DisplayName: "Bob"})
		if err != nil {
			return err
		}
		if !ok {
			t.Fatal("expected an author")
		}
		got = author
		return nil
	})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got.ID != "competitor" {
		t.Fatalf("expected the existing placeholder, got %+v", got)
	}

	var count int64
	db.Model(&models.Author{}).Where("display_name = ?", "Bob").Count(&count)
	if count != 1 {
		t.Fatalf("expected one placeholder, got %d", count)
	}
}
