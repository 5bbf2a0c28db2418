package repository

import (
	"context"

	"github.com/turtacn/didagent/internal/domain/models"
)

// KeyMetadataRepository stores public key metadata. Each tenant sees an
// isolated keyspace; the tenant is always passed explicitly.
// KeyMetadataRepository 存储公开的密钥元数据，各租户的密钥空间相互隔离。
type KeyMetadataRepository interface {
	// Save persists one key entry under its id. Saving an existing id
	// replaces the stored entry.
	Save(ctx context.Context, tenant string, entry *models.KeyEntry) error

	// GetByID returns the entry stored under id, or a key_not_found error.
	GetByID(ctx context.Context, tenant string, id string) (*models.KeyEntry, error)

	// GetByAlias returns the entry carrying the alias, or a key_not_found
	// error. Aliases are unique per tenant.
	GetByAlias(ctx context.Context, tenant string, alias string) (*models.KeyEntry, error)

	// Delete removes the entry stored under id. Deleting an absent id is
	// a key_not_found error.
	Delete(ctx context.Context, tenant string, id string) error

	// List returns all entries for the tenant in unspecified order.
	List(ctx context.Context, tenant string) ([]*models.KeyEntry, error)
}

// PrivateKeyRepository stores raw private and secret key material. Material
// is retrievable only by id; the repository never exposes enumeration by
// alias or algorithm.
type PrivateKeyRepository interface {
	// Save persists private material under its id.
	Save(ctx context.Context, tenant string, key *models.ManagedPrivateKey) error

	// GetByID returns the material stored under id, or a key_not_found error.
	GetByID(ctx context.Context, tenant string, id string) (*models.ManagedPrivateKey, error)

	// Delete removes the material stored under id.
	Delete(ctx context.Context, tenant string, id string) error
}
