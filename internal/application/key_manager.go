// Package application composes the domain services into the agent's use
// cases: key management across backends, identity lifecycle and sync.
package application

import (
	"context"

	"github.com/turtacn/didagent/internal/domain/models"
	"github.com/turtacn/didagent/internal/domain/repository"
	"github.com/turtacn/didagent/internal/domain/service"
	"github.com/turtacn/didagent/internal/infrastructure/crypto"
	"github.com/turtacn/didagent/internal/infrastructure/kms"
	"github.com/turtacn/didagent/internal/infrastructure/monitoring"
	"github.com/turtacn/didagent/internal/infrastructure/persistence/memory"
	"github.com/turtacn/didagent/pkg/constants"
	"github.com/turtacn/didagent/pkg/errors"
	"github.com/turtacn/didagent/pkg/logger"
)

// DefaultSigningKeyAlias names the agent's own signing key inside the
// reserved in-memory KMS.
const DefaultSigningKeyAlias = "agent-signing-key"

// KeyManager fronts every registered key management system. It keeps its
// own routing index of key metadata so that a bare id or alias is enough to
// find the owning backend; the backends never see each other.
// KeyManager 统一管理所有注册的密钥管理系统，并维护自己的路由索引。
type KeyManager struct {
	systems map[string]service.KeyManagementSystem
	routing repository.KeyMetadataRepository
	metrics *monitoring.Metrics
	log     logger.Logger
}

// NewKeyManager builds a manager over the given backends. The reserved
// in-memory KMS is always created internally and cannot be supplied from
// outside.
func NewKeyManager(routing repository.KeyMetadataRepository, metrics *monitoring.Metrics, log logger.Logger, systems ...service.KeyManagementSystem) (*KeyManager, error) {
	m := &KeyManager{
		systems: make(map[string]service.KeyManagementSystem),
		routing: routing,
		metrics: metrics,
		log:     log.WithComponent("key-manager"),
	}
	memoryName := string(constants.KmsNameMemory)
	m.systems[memoryName] = kms.NewLocalKMS(memoryName, memory.NewKeyStore(), memory.NewPrivateKeyStore(), crypto.NewRegistry(), log)
	for _, s := range systems {
		if s.Name() == memoryName {
			return nil, errors.New(errors.CodeInvalidArgument, "kms name %q is reserved", memoryName)
		}
		if _, ok := m.systems[s.Name()]; ok {
			return nil, errors.New(errors.CodeInvalidArgument, "kms %q registered twice", s.Name())
		}
		m.systems[s.Name()] = s
	}
	return m, nil
}

// EnsureDefaultSigningKey returns the agent's signing key for the tenant,
// creating it in the in-memory KMS on first use. The routing index may
// outlive the in-memory material across a restart, so a routing hit is only
// trusted after the owning backend confirms it still holds the key; a stale
// entry is retired and a fresh key minted under the same alias.
func (m *KeyManager) EnsureDefaultSigningKey(ctx context.Context, tenant string) (*models.KeyEntry, error) {
	entry, err := m.routing.GetByAlias(ctx, tenant, DefaultSigningKeyAlias)
	if err == nil {
		backend, err := m.backend(entry.KmsName())
		if err != nil {
			return nil, err
		}
		held, err := backend.GetKey(ctx, tenant, service.KeyRef{ID: entry.ID()})
		if err == nil {
			return held, nil
		}
		if !errors.Is(err, errors.CodeKeyNotFound) {
			return nil, err
		}
		m.log.Warn(ctx, "default signing key lost its material, regenerating",
			logger.String("key_id", entry.ID()),
			logger.String("tenant", tenant))
		if err := m.routing.Delete(ctx, tenant, entry.ID()); err != nil {
			return nil, err
		}
	} else if !errors.Is(err, errors.CodeKeyNotFound) {
		return nil, err
	}
	return m.GenerateKey(ctx, tenant, string(constants.KmsNameMemory), service.GenerateKeyRequest{
		Algorithm: models.KeyAlgorithm{Name: "Ed25519"},
		Usages:    []models.KeyUsage{models.KeyUsageSign, models.KeyUsageVerify},
		Alias:     DefaultSigningKeyAlias,
	})
}

// GenerateKey creates a key in the named backend and records it in the
// routing index.
func (m *KeyManager) GenerateKey(ctx context.Context, tenant string, kmsName string, req service.GenerateKeyRequest) (*models.KeyEntry, error) {
	backend, err := m.backend(kmsName)
	if err != nil {
		return nil, err
	}
	entry, err := backend.GenerateKey(ctx, tenant, req)
	m.observe(kmsName, "generate", err)
	if err != nil {
		return nil, err
	}
	if err := m.routing.Save(ctx, tenant, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// ImportKey imports key material into the named backend.
func (m *KeyManager) ImportKey(ctx context.Context, tenant string, kmsName string, entry *models.KeyEntry) (*models.KeyEntry, error) {
	backend, err := m.backend(kmsName)
	if err != nil {
		return nil, err
	}
	imported, err := backend.ImportKey(ctx, tenant, entry)
	m.observe(kmsName, "import", err)
	if err != nil {
		return nil, err
	}
	if err := m.routing.Save(ctx, tenant, imported); err != nil {
		return nil, err
	}
	return imported, nil
}

// GetKey resolves a key through the routing index and the owning backend.
func (m *KeyManager) GetKey(ctx context.Context, tenant string, ref service.KeyRef) (*models.KeyEntry, error) {
	backend, id, err := m.route(ctx, tenant, ref)
	if err != nil {
		return nil, err
	}
	return backend.GetKey(ctx, tenant, service.KeyRef{ID: id})
}

// ListKeys returns every key entry in the routing index for the tenant.
func (m *KeyManager) ListKeys(ctx context.Context, tenant string) ([]*models.KeyEntry, error) {
	return m.routing.List(ctx, tenant)
}

// UpdateKey applies metadata changes through the owning backend and keeps
// the routing index in step.
func (m *KeyManager) UpdateKey(ctx context.Context, tenant string, ref service.KeyRef, update service.KeyUpdate) (bool, error) {
	backend, id, err := m.route(ctx, tenant, ref)
	if err != nil {
		return false, err
	}
	changed, err := backend.UpdateKey(ctx, tenant, service.KeyRef{ID: id}, update)
	if err != nil || !changed {
		return changed, err
	}
	entry, err := backend.GetKey(ctx, tenant, service.KeyRef{ID: id})
	if err != nil {
		return true, err
	}
	return true, m.routing.Save(ctx, tenant, entry)
}

// Sign signs data with whichever backend owns the referenced key.
func (m *KeyManager) Sign(ctx context.Context, tenant string, ref service.KeyRef, data []byte) ([]byte, error) {
	backend, id, err := m.route(ctx, tenant, ref)
	if err != nil {
		return nil, err
	}
	sig, err := backend.Sign(ctx, tenant, service.KeyRef{ID: id}, data)
	m.observe(backend.Name(), "sign", err)
	return sig, err
}

// Verify checks a signature with the stored public half.
func (m *KeyManager) Verify(ctx context.Context, tenant string, ref service.KeyRef, data, signature []byte) (bool, error) {
	backend, id, err := m.route(ctx, tenant, ref)
	if err != nil {
		return false, err
	}
	return backend.Verify(ctx, tenant, service.KeyRef{ID: id}, data, signature)
}

// Encrypt encrypts with the referenced secret key.
func (m *KeyManager) Encrypt(ctx context.Context, tenant string, ref service.KeyRef, plaintext []byte) ([]byte, error) {
	backend, id, err := m.route(ctx, tenant, ref)
	if err != nil {
		return nil, err
	}
	out, err := backend.Encrypt(ctx, tenant, service.KeyRef{ID: id}, plaintext)
	m.observe(backend.Name(), "encrypt", err)
	return out, err
}

// Decrypt reverses Encrypt.
func (m *KeyManager) Decrypt(ctx context.Context, tenant string, ref service.KeyRef, ciphertext []byte) ([]byte, error) {
	backend, id, err := m.route(ctx, tenant, ref)
	if err != nil {
		return nil, err
	}
	out, err := backend.Decrypt(ctx, tenant, service.KeyRef{ID: id}, ciphertext)
	m.observe(backend.Name(), "decrypt", err)
	return out, err
}

// DeriveBits runs key agreement through the owning backend.
func (m *KeyManager) DeriveBits(ctx context.Context, tenant string, ref service.KeyRef, publicKey *models.ManagedKey, length int) ([]byte, error) {
	backend, id, err := m.route(ctx, tenant, ref)
	if err != nil {
		return nil, err
	}
	return backend.DeriveBits(ctx, tenant, service.KeyRef{ID: id}, publicKey, length)
}

// backend finds a KMS by name. An empty name selects the sole externally
// registered backend; with several registered the caller must name one.
func (m *KeyManager) backend(name string) (service.KeyManagementSystem, error) {
	if name == "" {
		var sole service.KeyManagementSystem
		for n, s := range m.systems {
			if n == string(constants.KmsNameMemory) {
				continue
			}
			if sole != nil {
				return nil, errors.New(errors.CodeUnknownKms, "several KMS backends are registered, name one")
			}
			sole = s
		}
		if sole == nil {
			return nil, errors.ErrUnknownKms(name)
		}
		return sole, nil
	}
	backend, ok := m.systems[name]
	if !ok {
		return nil, errors.ErrUnknownKms(name)
	}
	return backend, nil
}

// route resolves a reference to the owning backend and the key's id. The
// routing index is authoritative for which backend holds a key.
func (m *KeyManager) route(ctx context.Context, tenant string, ref service.KeyRef) (service.KeyManagementSystem, string, error) {
	var entry *models.KeyEntry
	var err error
	if ref.ID != "" {
		entry, err = m.routing.GetByID(ctx, tenant, ref.ID)
	} else if ref.Alias != "" {
		entry, err = m.routing.GetByAlias(ctx, tenant, ref.Alias)
	} else {
		return nil, "", errors.New(errors.CodeInvalidArgument, "key reference requires an id or an alias")
	}
	if err != nil {
		return nil, "", err
	}
	backend, err := m.backend(entry.KmsName())
	if err != nil {
		return nil, "", err
	}
	return backend, entry.ID(), nil
}

func (m *KeyManager) observe(kmsName, operation string, err error) {
	if m.metrics == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.metrics.KeyOperations.WithLabelValues(kmsName, operation, outcome).Inc()
}
