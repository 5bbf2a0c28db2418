package application

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/turtacn/didagent/internal/domain/models"
	"github.com/turtacn/didagent/internal/domain/repository"
	"github.com/turtacn/didagent/internal/domain/service"
	"github.com/turtacn/didagent/internal/infrastructure/datanode"
	"github.com/turtacn/didagent/internal/infrastructure/monitoring"
	"github.com/turtacn/didagent/internal/infrastructure/resolver"
	"github.com/turtacn/didagent/pkg/errors"
	"github.com/turtacn/didagent/pkg/logger"
)

// SyncEngine replicates messages between the local node and the remote
// nodes of every registered identity. Each cycle pushes local events out,
// then pulls remote events in; per-endpoint cursors mark how far each
// direction has scanned, and a durable job queue carries the work so a
// crash never loses a message.
// SyncEngine 在本地节点与远端节点之间复制消息，先推后拉。
type SyncEngine struct {
	tenant   string
	repo     repository.SyncRepository
	local    service.DataNode
	resolver service.DIDResolver
	remotes  datanode.RemoteFactory
	metrics  *monitoring.Metrics
	tracing  *monitoring.TracingManager
	log      logger.Logger

	mu sync.Mutex // one cycle at a time

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
	started  bool
	startMu  sync.Mutex
}

// SyncEngineDeps carries the engine's collaborators.
type SyncEngineDeps struct {
	Tenant   string
	Repo     repository.SyncRepository
	Local    service.DataNode
	Resolver service.DIDResolver
	Remotes  datanode.RemoteFactory
	Metrics  *monitoring.Metrics
	Tracing  *monitoring.TracingManager
	Logger   logger.Logger
}

// NewSyncEngine builds an engine for one tenant.
func NewSyncEngine(deps SyncEngineDeps) *SyncEngine {
	return &SyncEngine{
		tenant:   deps.Tenant,
		repo:     deps.Repo,
		local:    deps.Local,
		resolver: deps.Resolver,
		remotes:  deps.Remotes,
		metrics:  deps.Metrics,
		tracing:  deps.Tracing,
		log:      deps.Logger.WithComponent("sync-engine"),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// RegisterIdentity marks an identity as sync-managed. Registration is
// idempotent.
func (e *SyncEngine) RegisterIdentity(ctx context.Context, did string) error {
	return e.repo.Register(ctx, e.tenant, &models.SyncRegistration{
		DID:       did,
		CreatedAt: time.Now().UTC(),
	})
}

// Registrations returns the identities the engine is managing.
func (e *SyncEngine) Registrations(ctx context.Context) ([]*models.SyncRegistration, error) {
	return e.repo.ListRegistrations(ctx, e.tenant)
}

// Status reports registrations and queue depths for inspection.
type Status struct {
	Registrations []*models.SyncRegistration `json:"registrations"`
	PendingPush   int                        `json:"pendingPush"`
	PendingPull   int                        `json:"pendingPull"`
}

// Status snapshots the engine's registrations and pending work.
func (e *SyncEngine) Status(ctx context.Context) (*Status, error) {
	registrations, err := e.repo.ListRegistrations(ctx, e.tenant)
	if err != nil {
		return nil, err
	}
	if registrations == nil {
		registrations = []*models.SyncRegistration{}
	}
	pushJobs, err := e.repo.ListJobs(ctx, e.tenant, models.DirectionPush)
	if err != nil {
		return nil, err
	}
	pullJobs, err := e.repo.ListJobs(ctx, e.tenant, models.DirectionPull)
	if err != nil {
		return nil, err
	}
	return &Status{
		Registrations: registrations,
		PendingPush:   len(pushJobs),
		PendingPull:   len(pullJobs),
	}, nil
}

// Sync runs one full cycle: push, then pull. Per-endpoint failures are
// absorbed and retried next cycle; only storage failures escape.
func (e *SyncEngine) Sync(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.tracing != nil {
		var span trace.Span
		ctx, span = e.tracing.StartSpan(ctx, "sync.cycle", attribute.String("tenant", e.tenant))
		defer span.End()
	}
	if err := e.push(ctx); err != nil {
		return err
	}
	return e.pull(ctx)
}

// Start launches the periodic sync loop. The returned channel delivers at
// most one error: the storage failure that stopped the loop.
func (e *SyncEngine) Start(interval time.Duration) (<-chan error, error) {
	e.startMu.Lock()
	defer e.startMu.Unlock()
	if e.started {
		return nil, errors.New(errors.CodeInvalidArgument, "sync engine already started")
	}
	e.started = true

	errs := make(chan error, 1)
	go func() {
		defer close(e.doneCh)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-e.stopCh:
				return
			case <-ticker.C:
				ctx := context.Background()
				if err := e.Sync(ctx); err != nil {
					e.log.Error(ctx, "sync cycle failed, stopping", err)
					errs <- err
					return
				}
			}
		}
	}()
	return errs, nil
}

// Stop halts the loop and waits for the in-flight cycle. Stopping twice or
// stopping a never-started engine is safe.
func (e *SyncEngine) Stop() {
	e.startMu.Lock()
	started := e.started
	e.startMu.Unlock()

	e.stopOnce.Do(func() { close(e.stopCh) })
	if started {
		<-e.doneCh
	}
}

// endpointsFor resolves an identity to its data-node endpoints. An identity
// without the service entry simply has nowhere to sync.
func (e *SyncEngine) endpointsFor(ctx context.Context, did string) ([]string, error) {
	doc, err := e.resolver.Resolve(ctx, did)
	if err != nil {
		return nil, err
	}
	return resolver.DwnEndpoints(doc)
}

func (e *SyncEngine) observeTick(direction models.Direction, start time.Time, err error) {
	if e.metrics == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	e.metrics.SyncTicks.WithLabelValues(string(direction), outcome).Inc()
	e.metrics.SyncTickDuration.WithLabelValues(string(direction)).Observe(time.Since(start).Seconds())
}

func (e *SyncEngine) observeJob(direction models.Direction, failed bool) {
	if e.metrics == nil {
		return
	}
	if failed {
		e.metrics.SyncJobFailures.WithLabelValues(string(direction)).Inc()
	} else {
		e.metrics.SyncJobsProcessed.WithLabelValues(string(direction)).Inc()
	}
}

func (e *SyncEngine) observeEndpointError(endpoint string) {
	if e.metrics == nil {
		return
	}
	e.metrics.SyncEndpointErrors.WithLabelValues(endpoint).Inc()
}
