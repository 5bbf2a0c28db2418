package service

import (
	"context"

	"github.com/turtacn/didagent/internal/domain/models"
)

// KeyRef addresses a stored key by id or alias. Exactly one field is set;
// when both are set the id wins.
type KeyRef struct {
	ID    string `json:"id,omitempty"`
	Alias string `json:"alias,omitempty"`
}

// GenerateKeyRequest describes a key to create.
type GenerateKeyRequest struct {
	Algorithm   models.KeyAlgorithm `json:"algorithm"`
	Usages      []models.KeyUsage   `json:"usages"`
	Alias       string              `json:"alias,omitempty"`
	Extractable bool                `json:"extractable,omitempty"`
}

// KeyUpdate carries the mutable metadata fields of a key. Nil fields are
// left unchanged.
type KeyUpdate struct {
	Alias *string          `json:"alias,omitempty"`
	State *models.KeyState `json:"state,omitempty"`
}

// KeyManagementSystem is the single cryptographic backend contract. One
// production implementation runs over local stores; remote backends satisfy
// the same interface. Private material never crosses this boundary except
// through ImportKey.
// KeyManagementSystem 是统一的加密后端契约，私钥材料不跨越此边界。
type KeyManagementSystem interface {
	// Name returns the KMS's registration name.
	Name() string

	// GenerateKey creates a new key or key pair for the requested algorithm.
	// Unknown algorithms fail with algorithm_not_supported.
	GenerateKey(ctx context.Context, tenant string, req GenerateKeyRequest) (*models.KeyEntry, error)

	// ImportKey stores externally supplied key material. The id and kms
	// fields of the incoming entry are always overwritten.
	ImportKey(ctx context.Context, tenant string, entry *models.KeyEntry) (*models.KeyEntry, error)

	// GetKey returns stored key metadata. Private material is never
	// included in the result.
	GetKey(ctx context.Context, tenant string, ref KeyRef) (*models.KeyEntry, error)

	// UpdateKey applies metadata changes and reports whether anything
	// changed. Keys are never deleted; retirement is a state change to
	// disabled through this method.
	UpdateKey(ctx context.Context, tenant string, ref KeyRef, update KeyUpdate) (bool, error)

	// Sign produces a signature over data with the referenced private key.
	Sign(ctx context.Context, tenant string, ref KeyRef, data []byte) ([]byte, error)

	// Verify checks a signature with the referenced stored public key.
	Verify(ctx context.Context, tenant string, ref KeyRef, data, signature []byte) (bool, error)

	// Encrypt encrypts plaintext with the referenced secret key.
	Encrypt(ctx context.Context, tenant string, ref KeyRef, plaintext []byte) ([]byte, error)

	// Decrypt reverses Encrypt.
	Decrypt(ctx context.Context, tenant string, ref KeyRef, ciphertext []byte) ([]byte, error)

	// DeriveBits runs key agreement between the referenced private key and
	// the given public key, returning length bytes of shared secret.
	DeriveBits(ctx context.Context, tenant string, ref KeyRef, publicKey *models.ManagedKey, length int) ([]byte, error)

	// WrapKey encrypts the private material of the key named by target
	// under the referenced wrapping key.
	WrapKey(ctx context.Context, tenant string, ref KeyRef, target KeyRef) ([]byte, error)

	// UnwrapKey decrypts wrapped material and imports it as a new key.
	UnwrapKey(ctx context.Context, tenant string, ref KeyRef, wrapped []byte, req GenerateKeyRequest) (*models.KeyEntry, error)
}

// DataNode is an identity's message-processing node. The local node and
// remote HTTP clients both satisfy it, so the sync engine replicates
// between nodes without caring which side is which.
type DataNode interface {
	// ProcessMessage applies or answers one message for its target identity.
	ProcessMessage(ctx context.Context, msg *models.Message) (*models.Reply, error)

	// EventLog returns the identity's events strictly after the given
	// watermark, in watermark order. An empty watermark means from the
	// beginning.
	EventLog(ctx context.Context, did string, since string) ([]models.EventEntry, error)

	// GetMessage returns a stored message by id, or nil when the node no
	// longer holds it.
	GetMessage(ctx context.Context, did string, messageID string) (*models.Message, error)
}

// DIDResolver resolves a DID to its document.
type DIDResolver interface {
	Resolve(ctx context.Context, did string) (*models.DIDDocument, error)
}
