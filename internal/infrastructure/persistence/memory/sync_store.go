package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/turtacn/didagent/internal/domain/models"
	"github.com/turtacn/didagent/internal/domain/repository"
)

type jobKey struct {
	direction models.Direction
	did       string
	endpoint  string
	watermark string
	messageID string
}

type watermarkKey struct {
	did       string
	endpoint  string
	direction models.Direction
}

type appliedKey struct {
	did       string
	messageID string
}

// SyncStore is an in-memory sync state repository. ListJobs sorts on every
// call, which keeps the same tuple order the persistent store gets for free.
type SyncStore struct {
	mu            sync.RWMutex
	registrations map[string]map[string]*models.SyncRegistration // tenant -> did
	watermarks    map[string]map[watermarkKey]string
	jobs          map[string]map[jobKey]*models.SyncJob
	applied       map[string]map[appliedKey]struct{}
}

var _ repository.SyncRepository = (*SyncStore)(nil)

// NewSyncStore builds an empty SyncStore.
func NewSyncStore() *SyncStore {
	return &SyncStore{
		registrations: make(map[string]map[string]*models.SyncRegistration),
		watermarks:    make(map[string]map[watermarkKey]string),
		jobs:          make(map[string]map[jobKey]*models.SyncJob),
		applied:       make(map[string]map[appliedKey]struct{}),
	}
}

func (s *SyncStore) Register(_ context.Context, tenant string, reg *models.SyncRegistration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.registrations[tenant] == nil {
		s.registrations[tenant] = make(map[string]*models.SyncRegistration)
	}
	if _, ok := s.registrations[tenant][reg.DID]; ok {
		return nil
	}
	s.registrations[tenant][reg.DID] = reg
	return nil
}

func (s *SyncStore) ListRegistrations(_ context.Context, tenant string) ([]*models.SyncRegistration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	regs := make([]*models.SyncRegistration, 0, len(s.registrations[tenant]))
	for _, r := range s.registrations[tenant] {
		regs = append(regs, r)
	}
	sort.Slice(regs, func(i, j int) bool { return regs[i].DID < regs[j].DID })
	return regs, nil
}

func (s *SyncStore) GetWatermark(_ context.Context, tenant string, did, endpoint string, direction models.Direction) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.watermarks[tenant][watermarkKey{did, endpoint, direction}], nil
}

func (s *SyncStore) SetWatermark(_ context.Context, tenant string, did, endpoint string, direction models.Direction, watermark string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.watermarks[tenant] == nil {
		s.watermarks[tenant] = make(map[watermarkKey]string)
	}
	s.watermarks[tenant][watermarkKey{did, endpoint, direction}] = watermark
	return nil
}

func (s *SyncStore) EnqueueJob(_ context.Context, tenant string, job *models.SyncJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.jobs[tenant] == nil {
		s.jobs[tenant] = make(map[jobKey]*models.SyncJob)
	}
	s.jobs[tenant][jobKeyOf(job)] = job
	return nil
}

func (s *SyncStore) ListJobs(_ context.Context, tenant string, direction models.Direction) ([]*models.SyncJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var jobs []*models.SyncJob
	for key, job := range s.jobs[tenant] {
		if key.direction == direction {
			jobs = append(jobs, job)
		}
	}
	sort.Slice(jobs, func(i, j int) bool {
		a, b := jobs[i], jobs[j]
		if a.DID != b.DID {
			return a.DID < b.DID
		}
		if a.Endpoint != b.Endpoint {
			return a.Endpoint < b.Endpoint
		}
		if a.Watermark != b.Watermark {
			return a.Watermark < b.Watermark
		}
		return a.MessageID < b.MessageID
	})
	return jobs, nil
}

func (s *SyncStore) DeleteJobs(_ context.Context, tenant string, jobs []*models.SyncJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, job := range jobs {
		delete(s.jobs[tenant], jobKeyOf(job))
	}
	return nil
}

func (s *SyncStore) MarkApplied(_ context.Context, tenant string, did, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.applied[tenant] == nil {
		s.applied[tenant] = make(map[appliedKey]struct{})
	}
	s.applied[tenant][appliedKey{did, messageID}] = struct{}{}
	return nil
}

func (s *SyncStore) IsApplied(_ context.Context, tenant string, did, messageID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.applied[tenant][appliedKey{did, messageID}]
	return ok, nil
}

func jobKeyOf(job *models.SyncJob) jobKey {
	return jobKey{job.Direction, job.DID, job.Endpoint, job.Watermark, job.MessageID}
}
