// Package lineage reconstructs the ancestor chain of a contribution.
//
// A Resolver starts at the contribution named by a share token and follows
// parent references back to the lineage root. The result is ordered root to
// tip and carries the root's prompt and survey questions.
package lineage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/mesh-intelligence/vault/pkg/types"
)

// Store is the read side of a contribution store.
type Store interface {
	GetByToken(ctx context.Context, token string) (*types.Contribution, error)
	GetByID(ctx context.Context, id int64) (*types.Contribution, error)
}

// Observer receives one call per resolved lineage.
type Observer interface {
	ObserveLineage(depth int, truncated bool)
}

// Resolver builds lineages from a Store.
type Resolver struct {
	store    Store
	policy   types.IntegrityPolicy
	log      *slog.Logger
	observer Observer
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithPolicy sets how missing ancestors are handled. The default is
// types.IntegrityLenient.
func WithPolicy(p types.IntegrityPolicy) Option {
	return func(r *Resolver) { r.policy = p }
}

// WithLogger sets the logger used to report broken chains.
func WithLogger(log *slog.Logger) Option {
	return func(r *Resolver) {
		if log != nil {
			r.log = log
		}
	}
}

// WithObserver registers an Observer, typically a metrics collector.
func WithObserver(o Observer) Option {
	return func(r *Resolver) { r.observer = o }
}

// NewResolver returns a Resolver reading from store.
func NewResolver(store Store, opts ...Option) *Resolver {
	r := &Resolver{
		store:  store,
		policy: types.IntegrityLenient,
		log:    slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the lineage ending at the contribution with the given
// share token.
//
// Returns types.ErrNotFound if no contribution has the token. Under the
// lenient policy a missing ancestor stops the walk and marks the result
// Truncated; under the strict policy it fails with types.ErrIntegrity. A
// parent reference cycle always fails with types.ErrIntegrity.
func (r *Resolver) Resolve(ctx context.Context, token string) (*types.Lineage, error) {
	tip, err := r.store.GetByToken(ctx, token)
	if err != nil {
		return nil, err
	}

	chain := []*types.Contribution{tip}
	visited := map[int64]bool{tip.ID: true}
	truncated := false

	for cur := tip; cur.ParentID != nil; {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pid := *cur.ParentID
		if visited[pid] {
			return nil, fmt.Errorf("%w: parent cycle at contribution %d", types.ErrIntegrity, pid)
		}

		parent, err := r.store.GetByID(ctx, pid)
		if errors.Is(err, types.ErrNotFound) {
			if r.policy == types.IntegrityStrict {
				return nil, fmt.Errorf("%w: contribution %d references missing parent %d",
					types.ErrIntegrity, cur.ID, pid)
			}
			r.log.Warn("lineage truncated at missing parent",
				"token", token, "contribution_id", cur.ID, "parent_id", pid)
			truncated = true
			break
		}
		if err != nil {
			return nil, fmt.Errorf("loading parent %d: %w", pid, err)
		}

		visited[pid] = true
		chain = append(chain, parent)
		cur = parent
	}
	slices.Reverse(chain)

	l := &types.Lineage{Contributions: chain, Truncated: truncated}
	if err := r.attachRootMetadata(ctx, l); err != nil {
		return nil, err
	}

	if r.observer != nil {
		r.observer.ObserveLineage(l.Depth(), l.Truncated)
	}
	return l, nil
}

// attachRootMetadata copies the prompt and questions from the lineage root.
// The root is looked up through the chain's lineage_root_id rather than
// assumed to be Contributions[0], so a truncated chain still reports them
// when the root itself survives. Under the lenient policy a failed lookup
// leaves the metadata empty.
func (r *Resolver) attachRootMetadata(ctx context.Context, l *types.Lineage) error {
	first := l.Root()
	rootID := first.LineageRootID

	root := first
	if first.ID != rootID {
		var err error
		root, err = r.store.GetByID(ctx, rootID)
		if err != nil {
			if r.policy == types.IntegrityStrict {
				if errors.Is(err, types.ErrNotFound) {
					return fmt.Errorf("%w: lineage root %d is missing", types.ErrIntegrity, rootID)
				}
				return fmt.Errorf("loading lineage root %d: %w", rootID, err)
			}
			r.log.Warn("lineage root unavailable, returning empty root metadata",
				"lineage_root_id", rootID, "error", err)
			return nil
		}
	}

	l.Prompt = root.Prompt
	l.RootQuestions = root.Questions
	return nil
}
