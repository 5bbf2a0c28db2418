package application

import (
	"context"
	"time"

	"github.com/turtacn/didagent/internal/domain/models"
	"github.com/turtacn/didagent/pkg/errors"
	"github.com/turtacn/didagent/pkg/logger"
)

// pull fetches remote events into the local node. Remote event logs are
// scanned past the per-endpoint pull cursor; each new event becomes a
// durable job, and the drain applies messages locally in event order.
func (e *SyncEngine) pull(ctx context.Context) error {
	start := time.Now()
	err := e.pullCycle(ctx)
	e.observeTick(models.DirectionPull, start, err)
	return err
}

func (e *SyncEngine) pullCycle(ctx context.Context) error {
	if err := e.enqueuePullJobs(ctx); err != nil {
		return err
	}
	return e.drainPullJobs(ctx)
}

func (e *SyncEngine) enqueuePullJobs(ctx context.Context) error {
	regs, err := e.repo.ListRegistrations(ctx, e.tenant)
	if err != nil {
		return err
	}
	for _, reg := range regs {
		endpoints, err := e.endpointsFor(ctx, reg.DID)
		if err != nil {
			e.log.Warn(ctx, "skipping identity, resolution failed",
				logger.String("did", reg.DID), logger.Error(err))
			continue
		}
		for _, endpoint := range endpoints {
			if err := e.enqueueRemoteEvents(ctx, reg.DID, endpoint); err != nil {
				return err
			}
		}
	}
	return nil
}

// enqueueRemoteEvents asks one endpoint for events past the pull cursor. An
// unreachable endpoint is skipped; its cursor does not move, so the next
// cycle asks again from the same place.
func (e *SyncEngine) enqueueRemoteEvents(ctx context.Context, did, endpoint string) error {
	cursor, err := e.repo.GetWatermark(ctx, e.tenant, did, endpoint, models.DirectionPull)
	if err != nil {
		return err
	}
	events, err := e.remotes(endpoint).EventLog(ctx, did, cursor)
	if err != nil {
		e.observeEndpointError(endpoint)
		e.log.Warn(ctx, "event log fetch failed, endpoint skipped this cycle",
			logger.String("endpoint", endpoint),
			logger.String("did", did),
			logger.Error(err))
		return nil
	}
	for _, event := range events {
		if err := e.repo.EnqueueJob(ctx, e.tenant, &models.SyncJob{
			Direction: models.DirectionPull,
			DID:       did,
			Endpoint:  endpoint,
			Watermark: event.Watermark,
			MessageID: event.MessageID,
		}); err != nil {
			return err
		}
	}
	if len(events) > 0 {
		return e.repo.SetWatermark(ctx, e.tenant, did, endpoint, models.DirectionPull, events[len(events)-1].Watermark)
	}
	return nil
}

// drainPullJobs applies queued remote messages locally. Messages already
// applied for the identity are skipped outright, which keeps the agent's
// own pushed messages from echoing back in. A message the remote no longer
// holds is applied as a pruned placeholder so the record of it survives.
func (e *SyncEngine) drainPullJobs(ctx context.Context) error {
	jobs, err := e.repo.ListJobs(ctx, e.tenant, models.DirectionPull)
	if err != nil {
		return err
	}

	errored := make(map[string]bool)
	var completed []*models.SyncJob
	for _, job := range jobs {
		if errored[job.Endpoint] {
			continue
		}

		applied, err := e.repo.IsApplied(ctx, e.tenant, job.DID, job.MessageID)
		if err != nil {
			return err
		}
		if applied {
			completed = append(completed, job)
			continue
		}
		if local, err := e.local.GetMessage(ctx, job.DID, job.MessageID); err != nil {
			return err
		} else if local != nil {
			// The local node produced or already holds this message.
			if err := e.repo.MarkApplied(ctx, e.tenant, job.DID, job.MessageID); err != nil {
				return err
			}
			completed = append(completed, job)
			continue
		}

		msg, err := e.remotes(job.Endpoint).GetMessage(ctx, job.DID, job.MessageID)
		if err != nil {
			if errors.Is(err, errors.CodeEndpointUnreachable) {
				errored[job.Endpoint] = true
				e.observeEndpointError(job.Endpoint)
			}
			e.observeJob(models.DirectionPull, true)
			continue
		}
		if msg == nil {
			msg = &models.Message{
				ID:        job.MessageID,
				DID:       job.DID,
				Type:      models.MessageTypeRecordsWrite,
				Pruned:    true,
				Timestamp: time.Now().UTC(),
			}
		}

		reply, err := e.local.ProcessMessage(ctx, msg)
		if err != nil {
			return err
		}
		if !reply.Status.OK() {
			e.observeJob(models.DirectionPull, true)
			e.log.Warn(ctx, "local node rejected pulled message, job stays queued",
				logger.String("message_id", job.MessageID),
				logger.Int("status", reply.Status.Code))
			continue
		}
		if err := e.repo.MarkApplied(ctx, e.tenant, job.DID, job.MessageID); err != nil {
			return err
		}
		e.observeJob(models.DirectionPull, false)
		completed = append(completed, job)
	}
	return e.repo.DeleteJobs(ctx, e.tenant, completed)
}
