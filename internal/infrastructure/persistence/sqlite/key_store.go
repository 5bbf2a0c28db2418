// Package sqlite provides a relational key metadata repository for
// deployments that prefer SQL inspection over the embedded ordered store.
package sqlite

import (
	"context"
	"encoding/json"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/turtacn/didagent/internal/domain/models"
	"github.com/turtacn/didagent/internal/domain/repository"
	"github.com/turtacn/didagent/pkg/errors"
)

// keyRecord is the table row for one key entry. The full entry is kept as
// JSON; tenant, id and alias are lifted into columns for lookup.
type keyRecord struct {
	Tenant    string `gorm:"primaryKey;size:128"`
	KeyID     string `gorm:"primaryKey;size:128"`
	Alias     string `gorm:"size:256;index:idx_keys_tenant_alias"`
	Entry     []byte `gorm:"type:blob"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (keyRecord) TableName() string {
	return "managed_keys"
}

// KeyStore is the gorm-backed key metadata repository.
type KeyStore struct {
	db *gorm.DB
}

var _ repository.KeyMetadataRepository = (*KeyStore)(nil)

// NewKeyStore opens the sqlite database at dsn and migrates the schema.
func NewKeyStore(dsn string) (*KeyStore, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "failed to open sqlite database at %s", dsn)
	}
	if err := db.AutoMigrate(&keyRecord{}); err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "failed to migrate key schema")
	}
	return &KeyStore{db: db}, nil
}

func (s *KeyStore) Save(ctx context.Context, tenant string, entry *models.KeyEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return errors.Wrap(err, errors.CodeInternal, "failed to encode key entry")
	}
	record := keyRecord{
		Tenant: tenant,
		KeyID:  entry.ID(),
		Alias:  entry.Alias(),
		Entry:  data,
	}
	if err := s.db.WithContext(ctx).Save(&record).Error; err != nil {
		return errors.Wrap(err, errors.CodeInternal, "failed to save key entry")
	}
	return nil
}

func (s *KeyStore) GetByID(ctx context.Context, tenant string, id string) (*models.KeyEntry, error) {
	var record keyRecord
	err := s.db.WithContext(ctx).
		Where("tenant = ? AND key_id = ?", tenant, id).
		First(&record).Error
	if err == gorm.ErrRecordNotFound {
		return nil, errors.ErrKeyNotFound(id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "failed to load key entry")
	}
	return decodeEntry(record.Entry)
}

func (s *KeyStore) GetByAlias(ctx context.Context, tenant string, alias string) (*models.KeyEntry, error) {
	var record keyRecord
	err := s.db.WithContext(ctx).
		Where("tenant = ? AND alias = ?", tenant, alias).
		First(&record).Error
	if err == gorm.ErrRecordNotFound {
		return nil, errors.ErrKeyNotFound(alias)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "failed to load key entry")
	}
	return decodeEntry(record.Entry)
}

func (s *KeyStore) Delete(ctx context.Context, tenant string, id string) error {
	result := s.db.WithContext(ctx).
		Where("tenant = ? AND key_id = ?", tenant, id).
		Delete(&keyRecord{})
	if result.Error != nil {
		return errors.Wrap(result.Error, errors.CodeInternal, "failed to delete key entry")
	}
	if result.RowsAffected == 0 {
		return errors.ErrKeyNotFound(id)
	}
	return nil
}

func (s *KeyStore) List(ctx context.Context, tenant string) ([]*models.KeyEntry, error) {
	var records []keyRecord
	if err := s.db.WithContext(ctx).Where("tenant = ?", tenant).Find(&records).Error; err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "failed to list key entries")
	}
	entries := make([]*models.KeyEntry, 0, len(records))
	for _, r := range records {
		entry, err := decodeEntry(r.Entry)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func decodeEntry(data []byte) (*models.KeyEntry, error) {
	var entry models.KeyEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "failed to decode key entry")
	}
	return &entry, nil
}
