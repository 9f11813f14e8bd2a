package types

import (
	"context"
	"errors"
)

// ContributionStore is the durable home of contribution records.
// Implementations own their storage handle; callers attach before use and
// detach when done.
type ContributionStore interface {
	// Attach opens the backend described by config. Returns
	// ErrAlreadyAttached if called while attached.
	Attach(config Config) error

	// Detach releases backend resources. Idempotent. After Detach every
	// operation returns ErrBackendDetached.
	Detach() error

	// Create persists a new contribution, assigns its ID, and fills in the
	// lineage root. The record is never visible with an unset root.
	Create(ctx context.Context, nc *NewContribution) (*Contribution, error)

	// GetByToken returns the contribution with the given share token, or
	// ErrNotFound.
	GetByToken(ctx context.Context, token string) (*Contribution, error)

	// GetByID returns the contribution with the given ID, or ErrNotFound.
	GetByID(ctx context.Context, id int64) (*Contribution, error)
}

// Backend lifecycle errors.
var (
	ErrBackendDetached = errors.New("backend is detached")
	ErrAlreadyAttached = errors.New("backend is already attached")
)
