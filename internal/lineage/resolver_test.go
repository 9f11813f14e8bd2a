package lineage

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/vault/internal/sqlite"
	"github.com/mesh-intelligence/vault/pkg/types"
)

type fakeStore struct {
	byID    map[int64]*types.Contribution
	failIDs map[int64]error
	calls   int
}

func newFakeStore(cs ...*types.Contribution) *fakeStore {
	s := &fakeStore{byID: map[int64]*types.Contribution{}, failIDs: map[int64]error{}}
	for _, c := range cs {
		s.byID[c.ID] = c
	}
	return s
}

func (s *fakeStore) GetByToken(_ context.Context, token string) (*types.Contribution, error) {
	s.calls++
	for _, c := range s.byID {
		if c.ShareToken == token {
			return c, nil
		}
	}
	return nil, types.ErrNotFound
}

func (s *fakeStore) GetByID(_ context.Context, id int64) (*types.Contribution, error) {
	s.calls++
	if err, ok := s.failIDs[id]; ok {
		return nil, err
	}
	c, ok := s.byID[id]
	if !ok {
		return nil, types.ErrNotFound
	}
	return c, nil
}

type recordingObserver struct {
	depths    []int
	truncated []bool
}

func (o *recordingObserver) ObserveLineage(depth int, truncated bool) {
	o.depths = append(o.depths, depth)
	o.truncated = append(o.truncated, truncated)
}

func strPtr(s string) *string { return &s }

func node(id int64, token string, parent *int64, root int64) *types.Contribution {
	return &types.Contribution{ID: id, ShareToken: token, ParentID: parent, LineageRootID: root}
}

func idPtr(id int64) *int64 { return &id }

// chain builds root(1) <- 2 <- 3 <- 4.
func chain() []*types.Contribution {
	root := node(1, "t1", nil, 1)
	root.Prompt = strPtr("paint the sea")
	root.Questions = types.NewQuestions("q-one", "q-two", "q-three")
	return []*types.Contribution{
		root,
		node(2, "t2", idPtr(1), 1),
		node(3, "t3", idPtr(2), 1),
		node(4, "t4", idPtr(3), 1),
	}
}

func ids(l *types.Lineage) []int64 {
	out := make([]int64, 0, l.Depth())
	for _, c := range l.Contributions {
		out = append(out, c.ID)
	}
	return out
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name      string
		token     string
		remove    []int64
		policy    types.IntegrityPolicy
		wantIDs   []int64
		wantTrunc bool
		wantMeta  bool
		wantErr   error
	}{
		{name: "root only", token: "t1", wantIDs: []int64{1}, wantMeta: true},
		{name: "full chain", token: "t4", wantIDs: []int64{1, 2, 3, 4}, wantMeta: true},
		{name: "middle node", token: "t3", wantIDs: []int64{1, 2, 3}, wantMeta: true},
		{name: "unknown token", token: "nope", wantErr: types.ErrNotFound},
		{
			name:      "missing middle ancestor keeps root metadata",
			token:     "t4",
			remove:    []int64{2},
			wantIDs:   []int64{3, 4},
			wantTrunc: true,
			wantMeta:  true,
		},
		{
			name:      "missing root empties metadata",
			token:     "t3",
			remove:    []int64{1},
			wantIDs:   []int64{2, 3},
			wantTrunc: true,
		},
		{
			name:    "strict policy rejects missing ancestor",
			token:   "t4",
			remove:  []int64{2},
			policy:  types.IntegrityStrict,
			wantErr: types.ErrIntegrity,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore(chain()...)
			for _, id := range tt.remove {
				delete(store.byID, id)
			}
			obs := &recordingObserver{}
			opts := []Option{WithObserver(obs)}
			if tt.policy != "" {
				opts = append(opts, WithPolicy(tt.policy))
			}
			r := NewResolver(store, opts...)

			l, err := r.Resolve(context.Background(), tt.token)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, l)
				assert.Empty(t, obs.depths)
				return
			}
			require.NoError(t, err)

			assert.Equal(t, tt.wantIDs, ids(l))
			assert.Equal(t, tt.token, l.Tip().ShareToken)
			assert.Equal(t, tt.wantTrunc, l.Truncated)
			if tt.wantMeta {
				require.NotNil(t, l.Prompt)
				assert.Equal(t, "paint the sea", *l.Prompt)
				require.NotNil(t, l.RootQuestions.Q3)
				assert.Equal(t, "q-three", *l.RootQuestions.Q3)
			} else {
				assert.Nil(t, l.Prompt)
				assert.True(t, l.RootQuestions.Empty())
			}
			assert.Equal(t, []int{len(tt.wantIDs)}, obs.depths)
			assert.Equal(t, []bool{tt.wantTrunc}, obs.truncated)
		})
	}
}

func TestResolve_Cycle(t *testing.T) {
	a := node(1, "a", idPtr(2), 1)
	b := node(2, "b", idPtr(1), 1)
	r := NewResolver(newFakeStore(a, b))

	_, err := r.Resolve(context.Background(), "a")
	assert.ErrorIs(t, err, types.ErrIntegrity)
}

func TestResolve_StorageFailurePropagates(t *testing.T) {
	boom := errors.New("disk on fire")
	store := newFakeStore(chain()...)
	store.failIDs[2] = boom

	_, err := NewResolver(store).Resolve(context.Background(), "t4")
	assert.ErrorIs(t, err, boom)
}

func TestResolve_RootLookupFailureIsLenient(t *testing.T) {
	store := newFakeStore(chain()...)
	delete(store.byID, 2)
	store.failIDs[1] = errors.New("timeout")

	l, err := NewResolver(store).Resolve(context.Background(), "t4")
	require.NoError(t, err)
	assert.Nil(t, l.Prompt)
	assert.True(t, l.Truncated)

	_, err = NewResolver(store, WithPolicy(types.IntegrityStrict)).Resolve(context.Background(), "t4")
	assert.Error(t, err)
}

func TestResolve_Idempotent(t *testing.T) {
	r := NewResolver(newFakeStore(chain()...))
	first, err := r.Resolve(context.Background(), "t4")
	require.NoError(t, err)
	second, err := r.Resolve(context.Background(), "t4")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestResolve_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewResolver(newFakeStore(chain()...)).Resolve(ctx, "t4")
	assert.ErrorIs(t, err, context.Canceled)
}

// TestResolve_SQLiteAncestorDeletedOutOfBand deletes a middle record through
// a second database handle and checks the walk stops at the gap.
func TestResolve_SQLiteAncestorDeletedOutOfBand(t *testing.T) {
	ctx := context.Background()
	b := sqlite.NewBackend()
	require.NoError(t, b.Attach(types.Config{Backend: types.BackendSQLite, DataDir: t.TempDir()}))
	defer b.Detach()

	root, err := b.Create(ctx, &types.NewContribution{
		ShareToken: "r", ImageRef: "r.png", Prompt: strPtr("P"),
		Questions: types.NewQuestions("Q1", "Q2", "Q3"),
	})
	require.NoError(t, err)
	prev := root
	for _, tok := range []string{"c1", "c2", "c3"} {
		pid, rid := prev.ID, root.ID
		prev, err = b.Create(ctx, &types.NewContribution{
			ShareToken: tok, ImageRef: tok + ".png", ParentID: &pid, LineageRootID: &rid,
			Answers: types.Answers{A1: "a-" + tok},
		})
		require.NoError(t, err)
	}

	r := NewResolver(b)
	full, err := r.Resolve(ctx, "c3")
	require.NoError(t, err)
	assert.Equal(t, 4, full.Depth())
	assert.Equal(t, root.ID, full.Root().ID)
	assert.False(t, full.Truncated)

	raw, err := sql.Open("sqlite", b.Path())
	require.NoError(t, err)
	defer raw.Close()
	_, err = raw.Exec("DELETE FROM contributions WHERE share_token = 'c1'")
	require.NoError(t, err)

	partial, err := r.Resolve(ctx, "c3")
	require.NoError(t, err)
	assert.True(t, partial.Truncated)
	require.Equal(t, 2, partial.Depth())
	assert.Equal(t, "c2", partial.Root().ShareToken)
	assert.Equal(t, "c3", partial.Tip().ShareToken)
	require.NotNil(t, partial.Prompt)
	assert.Equal(t, "P", *partial.Prompt)
	assert.Equal(t, "a-c3", partial.Tip().Answers.A1)
}
