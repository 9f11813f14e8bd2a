// Tests for the SQLite backend lifecycle.
package sqlite

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/mesh-intelligence/vault/pkg/types"
)

func TestBackend_Attach(t *testing.T) {
	tmpDir := t.TempDir()

	b := NewBackend()
	config := types.Config{
		Backend: types.BackendSQLite,
		DataDir: tmpDir,
	}

	err := b.Attach(config)
	if err != nil {
		t.Fatalf("Attach failed: %v", err)
	}

	dbPath := filepath.Join(tmpDir, DBFileName)
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Errorf("%s not created", DBFileName)
	}
	if b.Path() != dbPath {
		t.Errorf("Path() = %q, want %q", b.Path(), dbPath)
	}

	err = b.Attach(config)
	if err != types.ErrAlreadyAttached {
		t.Errorf("expected ErrAlreadyAttached, got %v", err)
	}

	b.Detach()
}

func TestBackend_AttachInvalidConfig(t *testing.T) {
	b := NewBackend()
	err := b.Attach(types.Config{Backend: "postgres", DataDir: t.TempDir()})
	if !errors.Is(err, types.ErrBackendUnknown) {
		t.Errorf("expected ErrBackendUnknown, got %v", err)
	}
}

func TestBackend_Detach(t *testing.T) {
	tmpDir := t.TempDir()

	b := NewBackend()
	config := types.Config{
		Backend: types.BackendSQLite,
		DataDir: tmpDir,
	}

	b.Attach(config)

	err := b.Detach()
	if err != nil {
		t.Fatalf("Detach failed: %v", err)
	}

	err = b.Detach()
	if err != nil {
		t.Errorf("second Detach should not error, got %v", err)
	}

	ctx := context.Background()
	if _, err := b.GetByToken(ctx, "abc"); err != types.ErrBackendDetached {
		t.Errorf("GetByToken: expected ErrBackendDetached, got %v", err)
	}
	if _, err := b.GetByID(ctx, 1); err != types.ErrBackendDetached {
		t.Errorf("GetByID: expected ErrBackendDetached, got %v", err)
	}
	if _, err := b.Create(ctx, rootCandidate("tok", "a.png")); err != types.ErrBackendDetached {
		t.Errorf("Create: expected ErrBackendDetached, got %v", err)
	}
}

func TestBackend_ReattachKeepsData(t *testing.T) {
	tmpDir := t.TempDir()
	config := types.Config{Backend: types.BackendSQLite, DataDir: tmpDir}
	ctx := context.Background()

	b := NewBackend()
	if err := b.Attach(config); err != nil {
		t.Fatalf("Attach failed: %v", err)
	}
	created, err := b.Create(ctx, rootCandidate("keep-me", "keep.png"))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	b.Detach()

	b2 := NewBackend()
	if err := b2.Attach(config); err != nil {
		t.Fatalf("second Attach failed: %v", err)
	}
	defer b2.Detach()

	got, err := b2.GetByToken(ctx, "keep-me")
	if err != nil {
		t.Fatalf("GetByToken after reattach: %v", err)
	}
	if got.ID != created.ID {
		t.Errorf("ID = %d, want %d", got.ID, created.ID)
	}
}
