package application

import (
	"context"
	"time"

	"github.com/turtacn/didagent/internal/domain/models"
	"github.com/turtacn/didagent/internal/domain/service"
	"github.com/turtacn/didagent/internal/infrastructure/resolver"
	"github.com/turtacn/didagent/pkg/constants"
	"github.com/turtacn/didagent/pkg/errors"
	"github.com/turtacn/didagent/pkg/logger"
)

// Identity is an agent-managed decentralized identity and the key that
// controls it.
type Identity struct {
	DID       string    `json:"did"`
	KeyID     string    `json:"keyId"`
	Alias     string    `json:"alias,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// IdentityService creates and resolves identities for one tenant. A new
// identity gets an Ed25519 pair in the local KMS, a did:key derived from
// the public half, and a sync registration.
// IdentityService 为单个租户创建与解析身份。
type IdentityService struct {
	tenant   string
	keys     *KeyManager
	sync     *SyncEngine
	resolver service.DIDResolver
	log      logger.Logger
}

// NewIdentityService wires the identity use cases.
func NewIdentityService(tenant string, keys *KeyManager, sync *SyncEngine, didResolver service.DIDResolver, log logger.Logger) *IdentityService {
	return &IdentityService{
		tenant:   tenant,
		keys:     keys,
		sync:     sync,
		resolver: didResolver,
		log:      log.WithComponent("identity-service"),
	}
}

// CreateIdentity mints a new did:key identity backed by a fresh signing
// key and registers it with the sync engine.
func (s *IdentityService) CreateIdentity(ctx context.Context, alias string) (*Identity, error) {
	entry, err := s.keys.GenerateKey(ctx, s.tenant, string(constants.KmsNameLocal), service.GenerateKeyRequest{
		Algorithm: models.KeyAlgorithm{Name: "Ed25519"},
		Usages:    []models.KeyUsage{models.KeyUsageSign, models.KeyUsageVerify},
		Alias:     alias,
	})
	if err != nil {
		return nil, err
	}
	did, err := resolver.CreateDIDKey(entry.Pair.PublicKey.Material)
	if err != nil {
		return nil, err
	}
	if err := s.sync.RegisterIdentity(ctx, did); err != nil {
		return nil, err
	}

	s.log.Info(ctx, "created identity",
		logger.String("did", did),
		logger.String("key_id", entry.ID()))
	return &Identity{
		DID:       did,
		KeyID:     entry.ID(),
		Alias:     alias,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// ImportIdentity registers an externally controlled identity for sync
// without creating local key material.
func (s *IdentityService) ImportIdentity(ctx context.Context, did string) error {
	if did == "" {
		return errors.New(errors.CodeInvalidArgument, "identity import requires a did")
	}
	if _, err := s.resolver.Resolve(ctx, did); err != nil {
		return err
	}
	return s.sync.RegisterIdentity(ctx, did)
}

// ListIdentities returns every identity registered for sync.
func (s *IdentityService) ListIdentities(ctx context.Context) ([]*models.SyncRegistration, error) {
	return s.sync.Registrations(ctx)
}

// Resolve returns the document for a DID.
func (s *IdentityService) Resolve(ctx context.Context, did string) (*models.DIDDocument, error) {
	return s.resolver.Resolve(ctx, did)
}

// Sign signs data with the identity's key, addressed by key id or alias.
func (s *IdentityService) Sign(ctx context.Context, ref service.KeyRef, data []byte) ([]byte, error) {
	return s.keys.Sign(ctx, s.tenant, ref, data)
}
