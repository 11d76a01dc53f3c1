package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"bil/internal/storage"
	"bil/internal/storage/storagetest"
)

func newTestRepository(t *testing.T) *Repository {
	t.Helper()
	repo, err := NewRepository(filepath.Join(t.TempDir(), "bil.db"))
	if err != nil {
		t.Fatalf("NewRepository() error = %v", err)
	}
	return repo
}

func TestRepositoryContract(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Ledger {
		return newTestRepository(t)
	})
}

func TestMigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "bil.db")

	first, err := NewRepository(path)
	if err != nil {
		t.Fatalf("first NewRepository() error = %v", err)
	}
	id, err := first.CreateProject(context.Background(), "Kept")
	if err != nil {
		t.Fatal(err)
	}
	first.Close()

	second, err := NewRepository(path)
	if err != nil {
		t.Fatalf("second NewRepository() error = %v", err)
	}
	defer second.Close()

	p, err := second.GetProject(context.Background(), id)
	if err != nil || p.Name != "Kept" {
		t.Fatalf("GetProject() = %+v, %v", p, err)
	}
	if err := second.Ping(context.Background()); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
}
