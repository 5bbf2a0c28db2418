package kms

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/didagent/internal/domain/models"
	"github.com/turtacn/didagent/internal/domain/service"
	"github.com/turtacn/didagent/internal/infrastructure/crypto"
	"github.com/turtacn/didagent/internal/infrastructure/persistence/memory"
	"github.com/turtacn/didagent/pkg/errors"
	"github.com/turtacn/didagent/pkg/logger"
)

const testTenant = "tenant-1"

func newTestKMS() *LocalKMS {
	return NewLocalKMS("local", memory.NewKeyStore(), memory.NewPrivateKeyStore(), crypto.NewRegistry(), logger.NewNoopLogger())
}

func TestGenerateEd25519Pair(t *testing.T) {
	k := newTestKMS()
	ctx := context.Background()

	entry, err := k.GenerateKey(ctx, testTenant, service.GenerateKeyRequest{
		Algorithm: models.KeyAlgorithm{Name: "EdDSA"},
		Usages:    []models.KeyUsage{models.KeyUsageSign, models.KeyUsageVerify},
	})
	require.NoError(t, err)
	require.True(t, entry.IsPair())

	// Both halves always carry the same id and the owning kms name.
	assert.Equal(t, entry.Pair.PrivateKey.ID, entry.Pair.PublicKey.ID)
	assert.Equal(t, "local", entry.Pair.PrivateKey.Kms)
	assert.Equal(t, "local", entry.Pair.PublicKey.Kms)

	// Private material never shows up in metadata.
	assert.Nil(t, entry.Pair.PrivateKey.Material)
	assert.Len(t, entry.Pair.PublicKey.Material, 32)
	assert.Equal(t, "Ed25519", entry.Pair.PrivateKey.Algorithm.Name)
}

func TestSignProducesEd25519Signature(t *testing.T) {
	k := newTestKMS()
	ctx := context.Background()

	entry, err := k.GenerateKey(ctx, testTenant, service.GenerateKeyRequest{
		Algorithm: models.KeyAlgorithm{Name: "Ed25519"},
		Usages:    []models.KeyUsage{models.KeyUsageSign},
	})
	require.NoError(t, err)

	sig, err := k.Sign(ctx, testTenant, service.KeyRef{ID: entry.ID()}, []byte{51, 52, 53})
	require.NoError(t, err)
	assert.Len(t, sig, 64)

	ok, err := k.Verify(ctx, testTenant, service.KeyRef{ID: entry.ID()}, []byte{51, 52, 53}, sig)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestGenerateUnknownAlgorithm(t *testing.T) {
	k := newTestKMS()

	_, err := k.GenerateKey(context.Background(), testTenant, service.GenerateKeyRequest{
		Algorithm: models.KeyAlgorithm{Name: "RSA-PSS"},
	})
	require.Error(t, err)
	assert.Equal(t, errors.CodeAlgorithmNotSupported, errors.CodeOf(err))
}

func TestOperationsOnMissingKey(t *testing.T) {
	k := newTestKMS()
	ctx := context.Background()
	ref := service.KeyRef{ID: "no-such-key"}

	_, err := k.GetKey(ctx, testTenant, ref)
	assert.Equal(t, errors.CodeKeyNotFound, errors.CodeOf(err))

	_, err = k.Sign(ctx, testTenant, ref, []byte("data"))
	assert.Equal(t, errors.CodeKeyNotFound, errors.CodeOf(err))

	_, err = k.Verify(ctx, testTenant, ref, []byte("data"), []byte("sig"))
	assert.Equal(t, errors.CodeKeyNotFound, errors.CodeOf(err))

	_, err = k.Encrypt(ctx, testTenant, ref, []byte("data"))
	assert.Equal(t, errors.CodeKeyNotFound, errors.CodeOf(err))
}

func TestImportOverwritesIDAndKms(t *testing.T) {
	k := newTestKMS()
	ctx := context.Background()

	source, err := k.GenerateKey(ctx, testTenant, service.GenerateKeyRequest{
		Algorithm: models.KeyAlgorithm{Name: "Ed25519"},
		Usages:    []models.KeyUsage{models.KeyUsageSign},
	})
	require.NoError(t, err)

	// Re-import the public half with a forged id and kms.
	imported, err := k.ImportKey(ctx, testTenant, &models.KeyEntry{Key: &models.ManagedKey{
		ID:        "forged-id",
		Kms:       "forged-kms",
		Algorithm: models.KeyAlgorithm{Name: "Ed25519"},
		Type:      models.KeyTypePublic,
		Usages:    []models.KeyUsage{models.KeyUsageVerify},
		Material:  source.Pair.PublicKey.Material,
	}})
	require.NoError(t, err)

	assert.NotEqual(t, "forged-id", imported.ID())
	assert.Equal(t, "local", imported.KmsName())
}

func TestImportPairValidatesTypes(t *testing.T) {
	k := newTestKMS()
	ctx := context.Background()

	_, err := k.ImportKey(ctx, testTenant, &models.KeyEntry{Pair: &models.ManagedKeyPair{
		PrivateKey: &models.ManagedKey{Type: models.KeyTypePublic, Algorithm: models.KeyAlgorithm{Name: "Ed25519"}, Material: []byte{1}},
		PublicKey:  &models.ManagedKey{Type: models.KeyTypePublic, Algorithm: models.KeyAlgorithm{Name: "Ed25519"}, Material: []byte{1}},
	}})
	require.Error(t, err)
	assert.Equal(t, errors.CodeInvalidKeyPairTypes, errors.CodeOf(err))
}

func TestImportPairRejectsSwappedHalves(t *testing.T) {
	k := newTestKMS()
	ctx := context.Background()

	source, err := k.GenerateKey(ctx, testTenant, service.GenerateKeyRequest{Algorithm: models.KeyAlgorithm{Name: "Ed25519"}})
	require.NoError(t, err)
	private, err := k.privateKeys.GetByID(ctx, testTenant, source.ID())
	require.NoError(t, err)

	// The halves are present but sit in each other's slots.
	_, err = k.ImportKey(ctx, testTenant, &models.KeyEntry{Pair: &models.ManagedKeyPair{
		PrivateKey: &models.ManagedKey{
			Type:      models.KeyTypePublic,
			Algorithm: models.KeyAlgorithm{Name: "Ed25519"},
			Material:  source.Pair.PublicKey.Material,
		},
		PublicKey: &models.ManagedKey{
			Type:      models.KeyTypePrivate,
			Algorithm: models.KeyAlgorithm{Name: "Ed25519"},
			Material:  private.Material,
		},
	}})
	require.Error(t, err)
	assert.Equal(t, errors.CodePrivateKeyMismatch, errors.CodeOf(err))
}

func TestImportPairRejectsMismatchedHalves(t *testing.T) {
	k := newTestKMS()
	ctx := context.Background()

	a, err := k.GenerateKey(ctx, testTenant, service.GenerateKeyRequest{Algorithm: models.KeyAlgorithm{Name: "Ed25519"}})
	require.NoError(t, err)
	b, err := k.GenerateKey(ctx, testTenant, service.GenerateKeyRequest{Algorithm: models.KeyAlgorithm{Name: "Ed25519"}})
	require.NoError(t, err)

	// Pair a's public half with b's private material.
	bPrivate, err := k.privateKeys.GetByID(ctx, testTenant, b.ID())
	require.NoError(t, err)

	_, err = k.ImportKey(ctx, testTenant, &models.KeyEntry{Pair: &models.ManagedKeyPair{
		PrivateKey: &models.ManagedKey{
			Type:      models.KeyTypePrivate,
			Algorithm: models.KeyAlgorithm{Name: "Ed25519"},
			Material:  bPrivate.Material,
		},
		PublicKey: &models.ManagedKey{
			Type:      models.KeyTypePublic,
			Algorithm: models.KeyAlgorithm{Name: "Ed25519"},
			Material:  a.Pair.PublicKey.Material,
		},
	}})
	require.Error(t, err)
	assert.Equal(t, errors.CodePrivateKeyMismatch, errors.CodeOf(err))
}

func TestEncryptDecryptSecret(t *testing.T) {
	k := newTestKMS()
	ctx := context.Background()

	entry, err := k.GenerateKey(ctx, testTenant, service.GenerateKeyRequest{
		Algorithm: models.KeyAlgorithm{Name: "AES-GCM", Length: 256},
		Usages:    []models.KeyUsage{models.KeyUsageEncrypt, models.KeyUsageDecrypt},
	})
	require.NoError(t, err)
	require.False(t, entry.IsPair())
	assert.Nil(t, entry.Key.Material)

	ciphertext, err := k.Encrypt(ctx, testTenant, service.KeyRef{ID: entry.ID()}, []byte("record payload"))
	require.NoError(t, err)

	plaintext, err := k.Decrypt(ctx, testTenant, service.KeyRef{ID: entry.ID()}, ciphertext)
	require.NoError(t, err)
	assert.Equal(t, []byte("record payload"), plaintext)
}

func TestDeriveBitsX25519(t *testing.T) {
	k := newTestKMS()
	ctx := context.Background()

	alice, err := k.GenerateKey(ctx, testTenant, service.GenerateKeyRequest{
		Algorithm: models.KeyAlgorithm{Name: "X25519"},
		Usages:    []models.KeyUsage{models.KeyUsageDeriveBits},
	})
	require.NoError(t, err)
	bob, err := k.GenerateKey(ctx, testTenant, service.GenerateKeyRequest{
		Algorithm: models.KeyAlgorithm{Name: "X25519"},
		Usages:    []models.KeyUsage{models.KeyUsageDeriveBits},
	})
	require.NoError(t, err)

	aliceShared, err := k.DeriveBits(ctx, testTenant, service.KeyRef{ID: alice.ID()}, bob.Pair.PublicKey, 32)
	require.NoError(t, err)
	bobShared, err := k.DeriveBits(ctx, testTenant, service.KeyRef{ID: bob.ID()}, alice.Pair.PublicKey, 32)
	require.NoError(t, err)
	assert.Equal(t, aliceShared, bobShared)
}

func TestWrapUnwrapKey(t *testing.T) {
	k := newTestKMS()
	ctx := context.Background()

	wrapping, err := k.GenerateKey(ctx, testTenant, service.GenerateKeyRequest{
		Algorithm: models.KeyAlgorithm{Name: "AES-GCM", Length: 256},
		Usages:    []models.KeyUsage{models.KeyUsageWrapKey, models.KeyUsageUnwrapKey},
	})
	require.NoError(t, err)
	target, err := k.GenerateKey(ctx, testTenant, service.GenerateKeyRequest{
		Algorithm: models.KeyAlgorithm{Name: "AES-GCM", Length: 128},
		Usages:    []models.KeyUsage{models.KeyUsageEncrypt, models.KeyUsageDecrypt},
	})
	require.NoError(t, err)

	wrapped, err := k.WrapKey(ctx, testTenant, service.KeyRef{ID: wrapping.ID()}, service.KeyRef{ID: target.ID()})
	require.NoError(t, err)

	restored, err := k.UnwrapKey(ctx, testTenant, service.KeyRef{ID: wrapping.ID()}, wrapped, service.GenerateKeyRequest{
		Algorithm: models.KeyAlgorithm{Name: "AES-GCM", Length: 128},
		Usages:    []models.KeyUsage{models.KeyUsageEncrypt, models.KeyUsageDecrypt},
	})
	require.NoError(t, err)
	assert.NotEqual(t, target.ID(), restored.ID())

	// The restored key must decrypt what the original encrypted.
	ciphertext, err := k.Encrypt(ctx, testTenant, service.KeyRef{ID: target.ID()}, []byte("secret"))
	require.NoError(t, err)
	plaintext, err := k.Decrypt(ctx, testTenant, service.KeyRef{ID: restored.ID()}, ciphertext)
	require.NoError(t, err)
	assert.Equal(t, []byte("secret"), plaintext)
}

func TestUpdateKeyAliasAndState(t *testing.T) {
	k := newTestKMS()
	ctx := context.Background()

	entry, err := k.GenerateKey(ctx, testTenant, service.GenerateKeyRequest{
		Algorithm: models.KeyAlgorithm{Name: "Ed25519"},
		Alias:     "old-alias",
	})
	require.NoError(t, err)

	newAlias := "new-alias"
	changed, err := k.UpdateKey(ctx, testTenant, service.KeyRef{ID: entry.ID()}, service.KeyUpdate{Alias: &newAlias})
	require.NoError(t, err)
	assert.True(t, changed)

	byAlias, err := k.GetKey(ctx, testTenant, service.KeyRef{Alias: "new-alias"})
	require.NoError(t, err)
	assert.Equal(t, entry.ID(), byAlias.ID())

	_, err = k.GetKey(ctx, testTenant, service.KeyRef{Alias: "old-alias"})
	assert.Equal(t, errors.CodeKeyNotFound, errors.CodeOf(err))

	// Applying the same alias again reports no change.
	changed, err = k.UpdateKey(ctx, testTenant, service.KeyRef{ID: entry.ID()}, service.KeyUpdate{Alias: &newAlias})
	require.NoError(t, err)
	assert.False(t, changed)

	disabled := models.KeyStateDisabled
	changed, err = k.UpdateKey(ctx, testTenant, service.KeyRef{ID: entry.ID()}, service.KeyUpdate{State: &disabled})
	require.NoError(t, err)
	assert.True(t, changed)

	got, err := k.GetKey(ctx, testTenant, service.KeyRef{ID: entry.ID()})
	require.NoError(t, err)
	assert.Equal(t, models.KeyStateDisabled, got.Pair.PrivateKey.State)
	assert.Equal(t, models.KeyStateDisabled, got.Pair.PublicKey.State)
}

func TestSignWithoutPrivateMaterialIsKeyNotFound(t *testing.T) {
	k := newTestKMS()
	ctx := context.Background()

	entry, err := k.GenerateKey(ctx, testTenant, service.GenerateKeyRequest{Algorithm: models.KeyAlgorithm{Name: "Ed25519"}})
	require.NoError(t, err)

	// Drop the private half behind the metadata's back. Metadata without
	// material must look like an unknown key, never a half-present one.
	require.NoError(t, k.privateKeys.Delete(ctx, testTenant, entry.ID()))

	_, err = k.Sign(ctx, testTenant, service.KeyRef{ID: entry.ID()}, []byte("data"))
	require.Error(t, err)
	assert.Equal(t, errors.CodeKeyNotFound, errors.CodeOf(err))
}
