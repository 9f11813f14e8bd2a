// Package sqlite provides the public API for the SQLite contribution store.
// This package exposes the factory function for creating SQLite backends
// while keeping implementation details internal.
package sqlite

import (
	"log/slog"

	"github.com/mesh-intelligence/vault/internal/sqlite"
	"github.com/mesh-intelligence/vault/pkg/types"
)

// NewBackend creates a new SQLite backend instance.
// The backend is not attached; call Attach with a Config to initialize.
//
// Example:
//
//	store := sqlite.NewBackend(nil)
//	err := store.Attach(types.Config{
//	    Backend: types.BackendSQLite,
//	    DataDir: ".vault",
//	})
//	defer store.Detach()
func NewBackend(log *slog.Logger) types.ContributionStore {
	return sqlite.NewBackend(sqlite.WithLogger(log))
}
