package kms

import (
	"context"
	"encoding/base64"
	"fmt"

	vault "github.com/hashicorp/vault/api"

	"github.com/turtacn/didagent/internal/domain/models"
	"github.com/turtacn/didagent/internal/domain/repository"
	"github.com/turtacn/didagent/pkg/errors"
	"github.com/turtacn/didagent/pkg/logger"
)

// VaultKeyStore keeps private material in HashiCorp Vault's KV v2 engine
// instead of the local store. Metadata still lives in the regular metadata
// repository; only secrets cross into Vault.
// VaultKeyStore 将私钥材料保存在 HashiCorp Vault 的 KV v2 引擎中。
type VaultKeyStore struct {
	client *vault.Client
	mount  string
	prefix string
	log    logger.Logger
}

var _ repository.PrivateKeyRepository = (*VaultKeyStore)(nil)

// VaultConfig carries the connection settings for a Vault key store.
type VaultConfig struct {
	Address string
	Token   string
	Mount   string
	Prefix  string
}

// NewVaultKeyStore connects to Vault and returns a private key repository
// rooted at mount/prefix.
func NewVaultKeyStore(cfg VaultConfig, log logger.Logger) (*VaultKeyStore, error) {
	vaultCfg := vault.DefaultConfig()
	vaultCfg.Address = cfg.Address
	client, err := vault.NewClient(vaultCfg)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "failed to create vault client")
	}
	client.SetToken(cfg.Token)

	mount := cfg.Mount
	if mount == "" {
		mount = "secret"
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "didagent"
	}
	return &VaultKeyStore{
		client: client,
		mount:  mount,
		prefix: prefix,
		log:    log.WithComponent("kms.vault"),
	}, nil
}

func (s *VaultKeyStore) Save(ctx context.Context, tenant string, key *models.ManagedPrivateKey) error {
	data := map[string]any{
		"data": map[string]any{
			"type":     string(key.Type),
			"material": base64.StdEncoding.EncodeToString(key.Material),
		},
	}
	if _, err := s.client.Logical().WriteWithContext(ctx, s.path(tenant, key.ID), data); err != nil {
		return errors.Wrap(err, errors.CodeInternal, "failed to write key to vault")
	}
	s.log.Debug(ctx, "stored private key in vault", logger.String("key_id", key.ID))
	return nil
}

func (s *VaultKeyStore) GetByID(ctx context.Context, tenant string, id string) (*models.ManagedPrivateKey, error) {
	secret, err := s.client.Logical().ReadWithContext(ctx, s.path(tenant, id))
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "failed to read key from vault")
	}
	if secret == nil || secret.Data == nil {
		return nil, errors.ErrKeyNotFound(id)
	}
	inner, ok := secret.Data["data"].(map[string]any)
	if !ok {
		return nil, errors.ErrKeyNotFound(id)
	}
	encoded, _ := inner["material"].(string)
	material, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "corrupt key material in vault")
	}
	keyType, _ := inner["type"].(string)
	return &models.ManagedPrivateKey{
		ID:       id,
		Type:     models.KeyType(keyType),
		Material: material,
	}, nil
}

func (s *VaultKeyStore) Delete(ctx context.Context, tenant string, id string) error {
	if _, err := s.client.Logical().DeleteWithContext(ctx, s.path(tenant, id)); err != nil {
		return errors.Wrap(err, errors.CodeInternal, "failed to delete key from vault")
	}
	return nil
}

func (s *VaultKeyStore) path(tenant, id string) string {
	return fmt.Sprintf("%s/data/%s/%s/keys/%s", s.mount, s.prefix, tenant, id)
}
