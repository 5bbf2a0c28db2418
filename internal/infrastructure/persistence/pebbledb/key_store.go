package pebbledb

import (
	"context"
	"encoding/json"

	"github.com/turtacn/didagent/internal/domain/models"
	"github.com/turtacn/didagent/internal/domain/repository"
	"github.com/turtacn/didagent/pkg/errors"
)

const (
	nsKeyEntry     = "key"
	nsKeyAlias     = "key-alias"
	nsRoutingEntry = "route"
	nsRoutingAlias = "route-alias"
	nsPrivateKey   = "priv"
)

// KeyStore is the pebble-backed key metadata repository. Entries are stored
// as JSON under (key, tenant, id); aliases map to ids under a second
// namespace so alias lookup stays a point read.
type KeyStore struct {
	db      *DB
	entryNS string
	aliasNS string
}

var _ repository.KeyMetadataRepository = (*KeyStore)(nil)

// NewKeyStore builds a KeyStore over the given database.
func NewKeyStore(db *DB) *KeyStore {
	return &KeyStore{db: db, entryNS: nsKeyEntry, aliasNS: nsKeyAlias}
}

// NewRoutingStore builds a KeyStore in a separate namespace. The key
// manager keeps its routing index here so it never collides with a backend
// sharing the same database.
func NewRoutingStore(db *DB) *KeyStore {
	return &KeyStore{db: db, entryNS: nsRoutingEntry, aliasNS: nsRoutingAlias}
}

func (s *KeyStore) Save(_ context.Context, tenant string, entry *models.KeyEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return errors.Wrap(err, errors.CodeInternal, "failed to encode key entry")
	}
	// Replacing an entry retires any alias the previous version carried.
	if prev, ok, err := s.db.Get(EncodeTuple(s.entryNS, tenant, entry.ID())); err != nil {
		return err
	} else if ok {
		var old models.KeyEntry
		if err := json.Unmarshal(prev, &old); err == nil {
			if alias := old.Alias(); alias != "" && alias != entry.Alias() {
				if err := s.db.Delete(EncodeTuple(s.aliasNS, tenant, alias)); err != nil {
					return err
				}
			}
		}
	}
	if err := s.db.Set(EncodeTuple(s.entryNS, tenant, entry.ID()), data); err != nil {
		return err
	}
	if alias := entry.Alias(); alias != "" {
		return s.db.Set(EncodeTuple(s.aliasNS, tenant, alias), []byte(entry.ID()))
	}
	return nil
}

func (s *KeyStore) GetByID(_ context.Context, tenant string, id string) (*models.KeyEntry, error) {
	data, ok, err := s.db.Get(EncodeTuple(s.entryNS, tenant, id))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.ErrKeyNotFound(id)
	}
	var entry models.KeyEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "failed to decode key entry")
	}
	return &entry, nil
}

func (s *KeyStore) GetByAlias(ctx context.Context, tenant string, alias string) (*models.KeyEntry, error) {
	id, ok, err := s.db.Get(EncodeTuple(s.aliasNS, tenant, alias))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.ErrKeyNotFound(alias)
	}
	return s.GetByID(ctx, tenant, string(id))
}

func (s *KeyStore) Delete(ctx context.Context, tenant string, id string) error {
	entry, err := s.GetByID(ctx, tenant, id)
	if err != nil {
		return err
	}
	if alias := entry.Alias(); alias != "" {
		if err := s.db.Delete(EncodeTuple(s.aliasNS, tenant, alias)); err != nil {
			return err
		}
	}
	return s.db.Delete(EncodeTuple(s.entryNS, tenant, id))
}

func (s *KeyStore) List(_ context.Context, tenant string) ([]*models.KeyEntry, error) {
	var entries []*models.KeyEntry
	err := s.db.ScanPrefix(EncodeTuple(s.entryNS, tenant), func(_, value []byte) error {
		var entry models.KeyEntry
		if err := json.Unmarshal(value, &entry); err != nil {
			return errors.Wrap(err, errors.CodeInternal, "failed to decode key entry")
		}
		entries = append(entries, &entry)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// PrivateKeyStore holds raw private material in its own namespace, reachable
// only by id.
type PrivateKeyStore struct {
	db *DB
}

var _ repository.PrivateKeyRepository = (*PrivateKeyStore)(nil)

// NewPrivateKeyStore builds a PrivateKeyStore over the given database.
func NewPrivateKeyStore(db *DB) *PrivateKeyStore {
	return &PrivateKeyStore{db: db}
}

func (s *PrivateKeyStore) Save(_ context.Context, tenant string, key *models.ManagedPrivateKey) error {
	data, err := json.Marshal(key)
	if err != nil {
		return errors.Wrap(err, errors.CodeInternal, "failed to encode private key")
	}
	return s.db.Set(EncodeTuple(nsPrivateKey, tenant, key.ID), data)
}

func (s *PrivateKeyStore) GetByID(_ context.Context, tenant string, id string) (*models.ManagedPrivateKey, error) {
	data, ok, err := s.db.Get(EncodeTuple(nsPrivateKey, tenant, id))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.ErrKeyNotFound(id)
	}
	var key models.ManagedPrivateKey
	if err := json.Unmarshal(data, &key); err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "failed to decode private key")
	}
	return &key, nil
}

func (s *PrivateKeyStore) Delete(_ context.Context, tenant string, id string) error {
	return s.db.Delete(EncodeTuple(nsPrivateKey, tenant, id))
}
