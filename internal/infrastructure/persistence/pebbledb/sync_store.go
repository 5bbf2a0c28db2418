package pebbledb

import (
	"context"
	"encoding/json"

	"github.com/turtacn/didagent/internal/domain/models"
	"github.com/turtacn/didagent/internal/domain/repository"
	"github.com/turtacn/didagent/pkg/errors"
)

const (
	nsRegistration = "sync-reg"
	nsWatermark    = "sync-wm"
	nsJob          = "sync-job"
	nsApplied      = "sync-applied"
)

// SyncStore is the pebble-backed sync state repository. Job keys embed the
// full (direction, did, endpoint, watermark, messageId) tuple, so a prefix
// scan yields jobs already grouped and ordered the way a drain consumes
// them.
// SyncStore 是基于 pebble 的同步状态仓库。
type SyncStore struct {
	db *DB
}

var _ repository.SyncRepository = (*SyncStore)(nil)

// NewSyncStore builds a SyncStore over the given database.
func NewSyncStore(db *DB) *SyncStore {
	return &SyncStore{db: db}
}

func (s *SyncStore) Register(_ context.Context, tenant string, reg *models.SyncRegistration) error {
	key := EncodeTuple(nsRegistration, tenant, reg.DID)
	if _, ok, err := s.db.Get(key); err != nil {
		return err
	} else if ok {
		return nil
	}
	data, err := json.Marshal(reg)
	if err != nil {
		return errors.Wrap(err, errors.CodeInternal, "failed to encode registration")
	}
	return s.db.Set(key, data)
}

func (s *SyncStore) ListRegistrations(_ context.Context, tenant string) ([]*models.SyncRegistration, error) {
	var regs []*models.SyncRegistration
	err := s.db.ScanPrefix(EncodeTuple(nsRegistration, tenant), func(_, value []byte) error {
		var reg models.SyncRegistration
		if err := json.Unmarshal(value, &reg); err != nil {
			return errors.Wrap(err, errors.CodeInternal, "failed to decode registration")
		}
		regs = append(regs, &reg)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return regs, nil
}

func (s *SyncStore) GetWatermark(_ context.Context, tenant string, did, endpoint string, direction models.Direction) (string, error) {
	value, ok, err := s.db.Get(EncodeTuple(nsWatermark, tenant, string(direction), did, endpoint))
	if err != nil || !ok {
		return "", err
	}
	return string(value), nil
}

func (s *SyncStore) SetWatermark(_ context.Context, tenant string, did, endpoint string, direction models.Direction, watermark string) error {
	return s.db.Set(EncodeTuple(nsWatermark, tenant, string(direction), did, endpoint), []byte(watermark))
}

func (s *SyncStore) EnqueueJob(_ context.Context, tenant string, job *models.SyncJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return errors.Wrap(err, errors.CodeInternal, "failed to encode sync job")
	}
	return s.db.Set(jobKey(tenant, job), data)
}

func (s *SyncStore) ListJobs(_ context.Context, tenant string, direction models.Direction) ([]*models.SyncJob, error) {
	var jobs []*models.SyncJob
	err := s.db.ScanPrefix(EncodeTuple(nsJob, tenant, string(direction)), func(_, value []byte) error {
		var job models.SyncJob
		if err := json.Unmarshal(value, &job); err != nil {
			return errors.Wrap(err, errors.CodeInternal, "failed to decode sync job")
		}
		jobs = append(jobs, &job)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

func (s *SyncStore) DeleteJobs(_ context.Context, tenant string, jobs []*models.SyncJob) error {
	if len(jobs) == 0 {
		return nil
	}
	keys := make([][]byte, 0, len(jobs))
	for _, job := range jobs {
		keys = append(keys, jobKey(tenant, job))
	}
	return s.db.DeleteBatch(keys)
}

func (s *SyncStore) MarkApplied(_ context.Context, tenant string, did, messageID string) error {
	return s.db.Set(EncodeTuple(nsApplied, tenant, did, messageID), []byte{1})
}

func (s *SyncStore) IsApplied(_ context.Context, tenant string, did, messageID string) (bool, error) {
	_, ok, err := s.db.Get(EncodeTuple(nsApplied, tenant, did, messageID))
	return ok, err
}

func jobKey(tenant string, job *models.SyncJob) []byte {
	return EncodeTuple(nsJob, tenant, string(job.Direction), job.DID, job.Endpoint, job.Watermark, job.MessageID)
}
