package sqlite_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/vault/pkg/sqlite"
	"github.com/mesh-intelligence/vault/pkg/types"
)

func TestNewBackend_CreateAndFetch(t *testing.T) {
	store := sqlite.NewBackend(nil)
	require.NoError(t, store.Attach(types.Config{Backend: types.BackendSQLite, DataDir: t.TempDir()}))
	defer store.Detach()

	ctx := context.Background()
	prompt := "Draw the harbour"
	created, err := store.Create(ctx, &types.NewContribution{
		ShareToken:       "0123456789abcdef0123456789abcdef",
		ImageRef:         "root.png",
		Prompt:           &prompt,
		ContributorAgent: types.DefaultContributorAgent,
	})
	require.NoError(t, err)
	assert.True(t, created.IsRoot())

	got, err := store.GetByToken(ctx, created.ShareToken)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	require.NotNil(t, got.Prompt)
	assert.Equal(t, prompt, *got.Prompt)

	_, err = store.GetByID(ctx, created.ID+1)
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestNewBackend_Detached(t *testing.T) {
	store := sqlite.NewBackend(nil)
	_, err := store.GetByToken(context.Background(), "anything")
	assert.ErrorIs(t, err, types.ErrBackendDetached)
}
