// Package kms implements the cryptographic backend contract over local
// stores. Private material lives only in the private-key repository and is
// consumed in place; public metadata is what callers ever see.
package kms

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/turtacn/didagent/internal/domain/models"
	"github.com/turtacn/didagent/internal/domain/repository"
	"github.com/turtacn/didagent/internal/domain/service"
	"github.com/turtacn/didagent/internal/infrastructure/crypto"
	"github.com/turtacn/didagent/pkg/errors"
	"github.com/turtacn/didagent/pkg/logger"
)

// LocalKMS is the production key management system. It dispatches through
// the algorithm registry and keeps metadata and private material in two
// separate repositories, so the metadata store can never leak secrets.
// LocalKMS 是生产环境的密钥管理系统，元数据与私钥材料分库存储。
type LocalKMS struct {
	name        string
	keys        repository.KeyMetadataRepository
	privateKeys repository.PrivateKeyRepository
	registry    *crypto.Registry
	log         logger.Logger
}

var _ service.KeyManagementSystem = (*LocalKMS)(nil)

// NewLocalKMS builds a LocalKMS registered under name.
func NewLocalKMS(name string, keys repository.KeyMetadataRepository, privateKeys repository.PrivateKeyRepository, registry *crypto.Registry, log logger.Logger) *LocalKMS {
	return &LocalKMS{
		name:        name,
		keys:        keys,
		privateKeys: privateKeys,
		registry:    registry,
		log:         log.WithComponent("kms." + name),
	}
}

func (k *LocalKMS) Name() string {
	return k.name
}

func (k *LocalKMS) GenerateKey(ctx context.Context, tenant string, req service.GenerateKeyRequest) (*models.KeyEntry, error) {
	impl, err := k.registry.ResolveForKey(req.Algorithm)
	if err != nil {
		return nil, err
	}
	if impl.Generator == nil {
		return nil, errors.New(errors.CodeAlgorithmNotSupported, "algorithm %s cannot generate keys", impl.Name)
	}

	public, private, err := impl.Generator.Generate(req.Algorithm)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	now := time.Now().UTC()
	algorithm := req.Algorithm
	algorithm.Name = impl.Name

	var entry *models.KeyEntry
	privType := models.KeyTypeSecret
	if impl.Asymmetric {
		privType = models.KeyTypePrivate
		entry = &models.KeyEntry{Pair: &models.ManagedKeyPair{
			PrivateKey: &models.ManagedKey{
				ID:          id,
				Algorithm:   algorithm,
				Type:        models.KeyTypePrivate,
				Usages:      req.Usages,
				Kms:         k.name,
				Alias:       req.Alias,
				State:       models.KeyStateEnabled,
				Extractable: req.Extractable,
				CreatedAt:   now,
			},
			PublicKey: &models.ManagedKey{
				ID:        id,
				Algorithm: algorithm,
				Type:      models.KeyTypePublic,
				Usages:    req.Usages,
				Kms:       k.name,
				State:     models.KeyStateEnabled,
				Material:  public,
				CreatedAt: now,
			},
		}}
	} else {
		entry = &models.KeyEntry{Key: &models.ManagedKey{
			ID:          id,
			Algorithm:   algorithm,
			Type:        models.KeyTypeSecret,
			Usages:      req.Usages,
			Kms:         k.name,
			Alias:       req.Alias,
			State:       models.KeyStateEnabled,
			Extractable: req.Extractable,
			CreatedAt:   now,
		}}
	}

	if err := k.privateKeys.Save(ctx, tenant, &models.ManagedPrivateKey{ID: id, Type: privType, Material: private}); err != nil {
		return nil, err
	}
	if err := k.keys.Save(ctx, tenant, entry); err != nil {
		return nil, err
	}

	k.log.Debug(ctx, "generated key",
		logger.String("algorithm", impl.Name),
		logger.String("key_id", id),
		logger.String("tenant", tenant))
	return entry, nil
}

func (k *LocalKMS) ImportKey(ctx context.Context, tenant string, entry *models.KeyEntry) (*models.KeyEntry, error) {
	if entry == nil || (entry.Key == nil && entry.Pair == nil) {
		return nil, errors.New(errors.CodeInvalidArgument, "import requires a key or a key pair")
	}

	// Caller-supplied ids and kms names are never trusted.
	id := uuid.NewString()
	now := time.Now().UTC()

	if entry.Pair != nil {
		return k.importPair(ctx, tenant, entry.Pair, id, now)
	}
	return k.importSingle(ctx, tenant, entry.Key, id, now)
}

func (k *LocalKMS) importPair(ctx context.Context, tenant string, pair *models.ManagedKeyPair, id string, now time.Time) (*models.KeyEntry, error) {
	if pair.PrivateKey == nil || pair.PublicKey == nil {
		return nil, errors.New(errors.CodeInvalidKeyPairTypes, "key pair import requires both halves")
	}
	if pair.PrivateKey.Type == models.KeyTypePublic && pair.PublicKey.Type == models.KeyTypePrivate {
		return nil, errors.New(errors.CodePrivateKeyMismatch, "key pair halves are swapped")
	}
	if pair.PrivateKey.Type != models.KeyTypePrivate || pair.PublicKey.Type != models.KeyTypePublic {
		return nil, errors.New(errors.CodeInvalidKeyPairTypes,
			"key pair halves must be private and public, got %s and %s", pair.PrivateKey.Type, pair.PublicKey.Type)
	}
	if len(pair.PrivateKey.Material) == 0 {
		return nil, errors.New(errors.CodeMissingKeyMaterial, "key pair import requires private material")
	}
	impl, err := k.registry.ResolveForKey(pair.PrivateKey.Algorithm)
	if err != nil {
		return nil, err
	}
	if err := verifyPairConsistency(impl, pair.PrivateKey.Material, pair.PublicKey.Material); err != nil {
		return nil, err
	}

	stored := &models.KeyEntry{Pair: &models.ManagedKeyPair{
		PrivateKey: &models.ManagedKey{
			ID:          id,
			Algorithm:   pair.PrivateKey.Algorithm,
			Type:        models.KeyTypePrivate,
			Usages:      pair.PrivateKey.Usages,
			Kms:         k.name,
			Alias:       pair.PrivateKey.Alias,
			State:       models.KeyStateEnabled,
			Extractable: pair.PrivateKey.Extractable,
			CreatedAt:   now,
		},
		PublicKey: &models.ManagedKey{
			ID:        id,
			Algorithm: pair.PublicKey.Algorithm,
			Type:      models.KeyTypePublic,
			Usages:    pair.PublicKey.Usages,
			Kms:       k.name,
			State:     models.KeyStateEnabled,
			Material:  pair.PublicKey.Material,
			CreatedAt: now,
		},
	}}

	if err := k.privateKeys.Save(ctx, tenant, &models.ManagedPrivateKey{
		ID:       id,
		Type:     models.KeyTypePrivate,
		Material: pair.PrivateKey.Material,
	}); err != nil {
		return nil, err
	}
	if err := k.keys.Save(ctx, tenant, stored); err != nil {
		return nil, err
	}

	k.log.Debug(ctx, "imported key pair", logger.String("key_id", id), logger.String("tenant", tenant))
	return stored, nil
}

func (k *LocalKMS) importSingle(ctx context.Context, tenant string, key *models.ManagedKey, id string, now time.Time) (*models.KeyEntry, error) {
	if _, err := k.registry.ResolveForKey(key.Algorithm); err != nil {
		return nil, err
	}

	stored := &models.ManagedKey{
		ID:          id,
		Algorithm:   key.Algorithm,
		Type:        key.Type,
		Usages:      key.Usages,
		Kms:         k.name,
		Alias:       key.Alias,
		State:       models.KeyStateEnabled,
		Extractable: key.Extractable,
		CreatedAt:   now,
	}

	switch key.Type {
	case models.KeyTypePublic:
		// Public keys keep their material in metadata; nothing is secret.
		if len(key.Material) == 0 {
			return nil, errors.New(errors.CodeMissingKeyMaterial, "public key import requires material")
		}
		stored.Material = key.Material
	case models.KeyTypeSecret, models.KeyTypePrivate:
		if len(key.Material) == 0 {
			return nil, errors.New(errors.CodeMissingKeyMaterial, "%s key import requires material", key.Type)
		}
		if err := k.privateKeys.Save(ctx, tenant, &models.ManagedPrivateKey{
			ID:       id,
			Type:     key.Type,
			Material: key.Material,
		}); err != nil {
			return nil, err
		}
	default:
		return nil, errors.New(errors.CodeInvalidArgument, "unknown key type %q", key.Type)
	}

	entry := &models.KeyEntry{Key: stored}
	if err := k.keys.Save(ctx, tenant, entry); err != nil {
		return nil, err
	}

	k.log.Debug(ctx, "imported key", logger.String("key_id", id), logger.String("tenant", tenant))
	return entry, nil
}

func (k *LocalKMS) GetKey(ctx context.Context, tenant string, ref service.KeyRef) (*models.KeyEntry, error) {
	return k.resolve(ctx, tenant, ref)
}

func (k *LocalKMS) UpdateKey(ctx context.Context, tenant string, ref service.KeyRef, update service.KeyUpdate) (bool, error) {
	entry, err := k.resolve(ctx, tenant, ref)
	if err != nil {
		return false, err
	}

	target := entry.Key
	if entry.Pair != nil {
		target = entry.Pair.PrivateKey
	}

	changed := false
	if update.Alias != nil && *update.Alias != target.Alias {
		target.Alias = *update.Alias
		changed = true
	}
	if update.State != nil && *update.State != target.State {
		target.State = *update.State
		if entry.Pair != nil {
			entry.Pair.PublicKey.State = *update.State
		}
		changed = true
	}
	if !changed {
		return false, nil
	}
	if err := k.keys.Save(ctx, tenant, entry); err != nil {
		return false, err
	}
	return true, nil
}

func (k *LocalKMS) Sign(ctx context.Context, tenant string, ref service.KeyRef, data []byte) ([]byte, error) {
	entry, impl, err := k.resolveWithImpl(ctx, tenant, ref)
	if err != nil {
		return nil, err
	}
	if impl.Signer == nil {
		return nil, errors.New(errors.CodeAlgorithmNotSupported, "algorithm %s cannot sign", impl.Name)
	}
	material, err := k.privateMaterial(ctx, tenant, entry)
	if err != nil {
		return nil, err
	}
	return impl.Signer.Sign(material, data)
}

func (k *LocalKMS) Verify(ctx context.Context, tenant string, ref service.KeyRef, data, signature []byte) (bool, error) {
	entry, impl, err := k.resolveWithImpl(ctx, tenant, ref)
	if err != nil {
		return false, err
	}
	if impl.Signer == nil {
		return false, errors.New(errors.CodeAlgorithmNotSupported, "algorithm %s cannot verify", impl.Name)
	}
	public, err := publicMaterial(entry)
	if err != nil {
		return false, err
	}
	return impl.Signer.Verify(public, data, signature)
}

func (k *LocalKMS) Encrypt(ctx context.Context, tenant string, ref service.KeyRef, plaintext []byte) ([]byte, error) {
	entry, impl, err := k.resolveWithImpl(ctx, tenant, ref)
	if err != nil {
		return nil, err
	}
	if impl.Cipher == nil {
		return nil, errors.New(errors.CodeAlgorithmNotSupported, "algorithm %s cannot encrypt", impl.Name)
	}
	material, err := k.privateMaterial(ctx, tenant, entry)
	if err != nil {
		return nil, err
	}
	return impl.Cipher.Encrypt(material, plaintext)
}

func (k *LocalKMS) Decrypt(ctx context.Context, tenant string, ref service.KeyRef, ciphertext []byte) ([]byte, error) {
	entry, impl, err := k.resolveWithImpl(ctx, tenant, ref)
	if err != nil {
		return nil, err
	}
	if impl.Cipher == nil {
		return nil, errors.New(errors.CodeAlgorithmNotSupported, "algorithm %s cannot decrypt", impl.Name)
	}
	material, err := k.privateMaterial(ctx, tenant, entry)
	if err != nil {
		return nil, err
	}
	return impl.Cipher.Decrypt(material, ciphertext)
}

func (k *LocalKMS) DeriveBits(ctx context.Context, tenant string, ref service.KeyRef, publicKey *models.ManagedKey, length int) ([]byte, error) {
	entry, impl, err := k.resolveWithImpl(ctx, tenant, ref)
	if err != nil {
		return nil, err
	}
	if impl.Deriver == nil {
		return nil, errors.New(errors.CodeAlgorithmNotSupported, "algorithm %s cannot derive bits", impl.Name)
	}
	material, err := k.privateMaterial(ctx, tenant, entry)
	if err != nil {
		return nil, err
	}
	var peer []byte
	if publicKey != nil {
		peer = publicKey.Material
	}
	return impl.Deriver.DeriveBits(material, peer, length)
}

func (k *LocalKMS) WrapKey(ctx context.Context, tenant string, ref service.KeyRef, target service.KeyRef) ([]byte, error) {
	wrappingEntry, impl, err := k.resolveWithImpl(ctx, tenant, ref)
	if err != nil {
		return nil, err
	}
	if impl.Cipher == nil {
		return nil, errors.New(errors.CodeAlgorithmNotSupported, "wrapping key algorithm %s cannot encrypt", impl.Name)
	}
	wrappingKey, err := k.privateMaterial(ctx, tenant, wrappingEntry)
	if err != nil {
		return nil, err
	}
	targetEntry, err := k.resolve(ctx, tenant, target)
	if err != nil {
		return nil, err
	}
	targetMaterial, err := k.privateMaterial(ctx, tenant, targetEntry)
	if err != nil {
		return nil, err
	}
	return impl.Cipher.Encrypt(wrappingKey, targetMaterial)
}

func (k *LocalKMS) UnwrapKey(ctx context.Context, tenant string, ref service.KeyRef, wrapped []byte, req service.GenerateKeyRequest) (*models.KeyEntry, error) {
	entry, impl, err := k.resolveWithImpl(ctx, tenant, ref)
	if err != nil {
		return nil, err
	}
	if impl.Cipher == nil {
		return nil, errors.New(errors.CodeAlgorithmNotSupported, "wrapping key algorithm %s cannot decrypt", impl.Name)
	}
	wrappingKey, err := k.privateMaterial(ctx, tenant, entry)
	if err != nil {
		return nil, err
	}
	material, err := impl.Cipher.Decrypt(wrappingKey, wrapped)
	if err != nil {
		return nil, err
	}
	return k.ImportKey(ctx, tenant, &models.KeyEntry{Key: &models.ManagedKey{
		Algorithm:   req.Algorithm,
		Type:        models.KeyTypeSecret,
		Usages:      req.Usages,
		Alias:       req.Alias,
		Extractable: req.Extractable,
		Material:    material,
	}})
}

// resolve loads an entry by id or alias. Ids take precedence.
func (k *LocalKMS) resolve(ctx context.Context, tenant string, ref service.KeyRef) (*models.KeyEntry, error) {
	if ref.ID != "" {
		return k.keys.GetByID(ctx, tenant, ref.ID)
	}
	if ref.Alias != "" {
		return k.keys.GetByAlias(ctx, tenant, ref.Alias)
	}
	return nil, errors.New(errors.CodeInvalidArgument, "key reference requires an id or an alias")
}

func (k *LocalKMS) resolveWithImpl(ctx context.Context, tenant string, ref service.KeyRef) (*models.KeyEntry, *crypto.Implementation, error) {
	entry, err := k.resolve(ctx, tenant, ref)
	if err != nil {
		return nil, nil, err
	}
	alg := entryAlgorithm(entry)
	impl, err := k.registry.ResolveForKey(alg)
	if err != nil {
		return nil, nil, err
	}
	return entry, impl, nil
}

// privateMaterial loads the secret half of an entry. Metadata and material
// must both exist; a key missing either half is an unknown key to callers.
func (k *LocalKMS) privateMaterial(ctx context.Context, tenant string, entry *models.KeyEntry) ([]byte, error) {
	private, err := k.privateKeys.GetByID(ctx, tenant, entry.ID())
	if err != nil {
		return nil, err
	}
	return private.Material, nil
}

func publicMaterial(entry *models.KeyEntry) ([]byte, error) {
	if entry.Pair != nil && len(entry.Pair.PublicKey.Material) > 0 {
		return entry.Pair.PublicKey.Material, nil
	}
	if entry.Key != nil && entry.Key.Type == models.KeyTypePublic && len(entry.Key.Material) > 0 {
		return entry.Key.Material, nil
	}
	return nil, errors.ErrMissingKeyMaterial(entry.ID())
}

func entryAlgorithm(entry *models.KeyEntry) models.KeyAlgorithm {
	if entry.Pair != nil {
		return entry.Pair.PrivateKey.Algorithm
	}
	if entry.Key != nil {
		return entry.Key.Algorithm
	}
	return models.KeyAlgorithm{}
}

// verifyPairConsistency checks that imported halves belong together by
// signing a fixed message with the private half and verifying it with the
// public half.
func verifyPairConsistency(impl *crypto.Implementation, private, public []byte) error {
	if impl.Signer == nil || len(public) == 0 {
		return nil
	}
	check := []byte("pair-consistency-check")
	sig, err := impl.Signer.Sign(private, check)
	if err != nil {
		return errors.Wrap(err, errors.CodePrivateKeyMismatch, "private key material is not usable")
	}
	ok, err := impl.Signer.Verify(public, check, sig)
	if err != nil || !ok {
		return errors.New(errors.CodePrivateKeyMismatch, "private key does not match the supplied public key")
	}
	return nil
}
