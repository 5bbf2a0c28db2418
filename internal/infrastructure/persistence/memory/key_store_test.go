package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/didagent/internal/domain/models"
	"github.com/turtacn/didagent/pkg/errors"
)

func secretEntry(id, alias string) *models.KeyEntry {
	return &models.KeyEntry{Key: &models.ManagedKey{
		ID:        id,
		Algorithm: models.KeyAlgorithm{Name: "AES-GCM", Length: 256},
		Type:      models.KeyTypeSecret,
		Usages:    []models.KeyUsage{models.KeyUsageEncrypt, models.KeyUsageDecrypt},
		Kms:       "local",
		Alias:     alias,
		State:     models.KeyStateEnabled,
		CreatedAt: time.Now().UTC(),
	}}
}

func TestKeyStoreReadsAreDetached(t *testing.T) {
	store := NewKeyStore()
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "tenant", secretEntry("k1", "signing")))

	got, err := store.GetByID(ctx, "tenant", "k1")
	require.NoError(t, err)
	got.Key.Alias = "scribbled"
	got.Key.State = models.KeyStateDisabled

	// The stored entry is untouched by mutations on the returned copy.
	again, err := store.GetByID(ctx, "tenant", "k1")
	require.NoError(t, err)
	assert.Equal(t, "signing", again.Alias())
	assert.Equal(t, models.KeyStateEnabled, again.Key.State)
}

func TestKeyStoreAliasRetiredOnRename(t *testing.T) {
	store := NewKeyStore()
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "tenant", secretEntry("k1", "old")))

	entry, err := store.GetByID(ctx, "tenant", "k1")
	require.NoError(t, err)
	entry.Key.Alias = "new"
	require.NoError(t, store.Save(ctx, "tenant", entry))

	byNew, err := store.GetByAlias(ctx, "tenant", "new")
	require.NoError(t, err)
	assert.Equal(t, "k1", byNew.ID())

	_, err = store.GetByAlias(ctx, "tenant", "old")
	require.Error(t, err)
	assert.Equal(t, errors.CodeKeyNotFound, errors.CodeOf(err))
}

func TestKeyStoreTenantIsolation(t *testing.T) {
	store := NewKeyStore()
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "tenant-a", secretEntry("k1", "")))

	_, err := store.GetByID(ctx, "tenant-b", "k1")
	require.Error(t, err)
	assert.Equal(t, errors.CodeKeyNotFound, errors.CodeOf(err))

	keys, err := store.List(ctx, "tenant-b")
	require.NoError(t, err)
	assert.Empty(t, keys)
}
