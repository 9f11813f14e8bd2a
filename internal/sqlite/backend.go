// Package sqlite implements the SQLite storage backend for contributions.
// The Backend owns a single database handle for its whole attach/detach
// lifetime and serializes writes through it.
package sqlite

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/mesh-intelligence/vault/pkg/types"
)

// DBFileName is the database file created inside Config.DataDir.
const DBFileName = "vault.db"

// dsnPragmas apply to every connection the pool opens.
const dsnPragmas = "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"

// Compile-time interface check.
var _ types.ContributionStore = (*Backend)(nil)

// Backend implements types.ContributionStore on top of SQLite.
type Backend struct {
	mu       sync.RWMutex
	attached bool
	config   types.Config
	db       *sql.DB
	dbPath   string
	log      *slog.Logger
}

// Option configures a Backend.
type Option func(*Backend)

// WithLogger sets the logger used for storage diagnostics.
func WithLogger(log *slog.Logger) Option {
	return func(b *Backend) {
		if log != nil {
			b.log = log
		}
	}
}

// NewBackend creates a new SQLite backend instance.
// The backend is not attached; call Attach with a Config to initialize.
func NewBackend(opts ...Option) *Backend {
	b := &Backend{log: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Attach opens (or creates) the database under config.DataDir and applies
// the schema. Existing data is preserved.
// Returns ErrAlreadyAttached if already attached.
func (b *Backend) Attach(config types.Config) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.attached {
		return types.ErrAlreadyAttached
	}

	if err := config.Validate(); err != nil {
		return err
	}

	dataDir := config.DataDir
	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("creating data dir: %w", err)
	}

	dbPath := filepath.Join(dataDir, DBFileName)
	db, err := sql.Open("sqlite", dbPath+dsnPragmas)
	if err != nil {
		return fmt.Errorf("opening %s: %w", dbPath, err)
	}
	// One connection: SQLite has a single writer, and a transaction must
	// never wait on a second connection from the same process.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return fmt.Errorf("connecting to %s: %w", dbPath, err)
	}

	for _, ddl := range schemaDDL {
		if _, err := db.Exec(ddl); err != nil {
			db.Close()
			return fmt.Errorf("applying schema: %w", err)
		}
	}

	b.db = db
	b.dbPath = dbPath
	b.config = config
	b.attached = true

	b.log.Debug("sqlite backend attached", "path", dbPath)
	return nil
}

// Detach releases all resources held by the backend.
// After Detach, all operations return ErrBackendDetached.
// Detach is idempotent.
func (b *Backend) Detach() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.attached {
		return nil
	}

	if b.db != nil {
		if err := b.db.Close(); err != nil {
			return err
		}
		b.db = nil
	}

	b.attached = false
	b.log.Debug("sqlite backend detached", "path", b.dbPath)
	return nil
}

// Path returns the database file path, or the empty string before the first
// Attach.
func (b *Backend) Path() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.dbPath
}
