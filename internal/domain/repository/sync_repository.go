package repository

import (
	"context"

	"github.com/turtacn/didagent/internal/domain/models"
)

// SyncRepository persists the sync engine's durable state: identity
// registrations, per-endpoint watermarks, pending jobs and the applied-message
// log. Implementations must keep job iteration in tuple key order so that a
// drain visits jobs grouped by identity, endpoint and then event order.
// SyncRepository 持久化同步引擎的持久状态。
type SyncRepository interface {
	// Register marks an identity as sync-managed. Registering an already
	// registered identity is a no-op.
	Register(ctx context.Context, tenant string, reg *models.SyncRegistration) error

	// ListRegistrations returns all registered identities for the tenant.
	ListRegistrations(ctx context.Context, tenant string) ([]*models.SyncRegistration, error)

	// GetWatermark returns the stored watermark for the tuple, or "" when
	// no sync has completed for it yet.
	GetWatermark(ctx context.Context, tenant string, did, endpoint string, direction models.Direction) (string, error)

	// SetWatermark advances the stored watermark for the tuple. Callers
	// only advance: the engine never writes a watermark lower than the one
	// it read.
	SetWatermark(ctx context.Context, tenant string, did, endpoint string, direction models.Direction, watermark string) error

	// EnqueueJob records a pending replication task. Enqueueing a job with
	// a tuple that is already queued replaces it, which keeps the queue
	// naturally deduplicated.
	EnqueueJob(ctx context.Context, tenant string, job *models.SyncJob) error

	// ListJobs returns all pending jobs for the direction in tuple key
	// order.
	ListJobs(ctx context.Context, tenant string, direction models.Direction) ([]*models.SyncJob, error)

	// DeleteJobs removes the given jobs atomically. A crash mid-tick either
	// keeps all listed jobs or none of them.
	DeleteJobs(ctx context.Context, tenant string, jobs []*models.SyncJob) error

	// MarkApplied records that a message id has been applied to the local
	// node for the identity. The log is append-only.
	MarkApplied(ctx context.Context, tenant string, did, messageID string) error

	// IsApplied reports whether the message id was already applied locally
	// for the identity.
	IsApplied(ctx context.Context, tenant string, did, messageID string) (bool, error)
}
