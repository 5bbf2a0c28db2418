// Package memory holds map-backed repositories. They back the reserved
// in-process KMS and keep tests free of disk state.
package memory

import (
	"context"
	"sync"

	"github.com/turtacn/didagent/internal/domain/models"
	"github.com/turtacn/didagent/internal/domain/repository"
	"github.com/turtacn/didagent/pkg/errors"
)

// KeyStore is an in-memory key metadata repository.
type KeyStore struct {
	mu      sync.RWMutex
	entries map[string]map[string]*models.KeyEntry // tenant -> id -> entry
	aliases map[string]map[string]string           // tenant -> alias -> id
}

var _ repository.KeyMetadataRepository = (*KeyStore)(nil)

// NewKeyStore builds an empty KeyStore.
func NewKeyStore() *KeyStore {
	return &KeyStore{
		entries: make(map[string]map[string]*models.KeyEntry),
		aliases: make(map[string]map[string]string),
	}
}

// Save stores a deep copy of the entry. Entries are also copied on every
// read, so callers mutating what they got back can never reach the stored
// state without an explicit re-save.
func (s *KeyStore) Save(_ context.Context, tenant string, entry *models.KeyEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entries[tenant] == nil {
		s.entries[tenant] = make(map[string]*models.KeyEntry)
		s.aliases[tenant] = make(map[string]string)
	}
	if old, ok := s.entries[tenant][entry.ID()]; ok {
		if alias := old.Alias(); alias != "" && alias != entry.Alias() {
			delete(s.aliases[tenant], alias)
		}
	}
	s.entries[tenant][entry.ID()] = entry.Clone()
	if alias := entry.Alias(); alias != "" {
		s.aliases[tenant][alias] = entry.ID()
	}
	return nil
}

func (s *KeyStore) GetByID(_ context.Context, tenant string, id string) (*models.KeyEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[tenant][id]
	if !ok {
		return nil, errors.ErrKeyNotFound(id)
	}
	return entry.Clone(), nil
}

func (s *KeyStore) GetByAlias(_ context.Context, tenant string, alias string) (*models.KeyEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.aliases[tenant][alias]
	if !ok {
		return nil, errors.ErrKeyNotFound(alias)
	}
	entry, ok := s.entries[tenant][id]
	if !ok {
		return nil, errors.ErrKeyNotFound(alias)
	}
	return entry.Clone(), nil
}

func (s *KeyStore) Delete(_ context.Context, tenant string, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[tenant][id]
	if !ok {
		return errors.ErrKeyNotFound(id)
	}
	if alias := entry.Alias(); alias != "" {
		delete(s.aliases[tenant], alias)
	}
	delete(s.entries[tenant], id)
	return nil
}

func (s *KeyStore) List(_ context.Context, tenant string) ([]*models.KeyEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := make([]*models.KeyEntry, 0, len(s.entries[tenant]))
	for _, e := range s.entries[tenant] {
		entries = append(entries, e.Clone())
	}
	return entries, nil
}

// PrivateKeyStore is an in-memory private material repository.
type PrivateKeyStore struct {
	mu   sync.RWMutex
	keys map[string]map[string]*models.ManagedPrivateKey // tenant -> id -> key
}

var _ repository.PrivateKeyRepository = (*PrivateKeyStore)(nil)

// NewPrivateKeyStore builds an empty PrivateKeyStore.
func NewPrivateKeyStore() *PrivateKeyStore {
	return &PrivateKeyStore{keys: make(map[string]map[string]*models.ManagedPrivateKey)}
}

func (s *PrivateKeyStore) Save(_ context.Context, tenant string, key *models.ManagedPrivateKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.keys[tenant] == nil {
		s.keys[tenant] = make(map[string]*models.ManagedPrivateKey)
	}
	s.keys[tenant][key.ID] = key
	return nil
}

func (s *PrivateKeyStore) GetByID(_ context.Context, tenant string, id string) (*models.ManagedPrivateKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key, ok := s.keys[tenant][id]
	if !ok {
		return nil, errors.ErrKeyNotFound(id)
	}
	return key, nil
}

func (s *PrivateKeyStore) Delete(_ context.Context, tenant string, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.keys[tenant], id)
	return nil
}
