package application

import (
	"context"
	"time"

	"github.com/turtacn/didagent/internal/domain/models"
	"github.com/turtacn/didagent/pkg/errors"
	"github.com/turtacn/didagent/pkg/logger"
)

// push publishes local events to every remote endpoint of every registered
// identity. New events are first enqueued durably, then the scan cursor
// advances, then the queue is drained; a crash between those steps only
// means redundant work, never a lost message.
func (e *SyncEngine) push(ctx context.Context) error {
	start := time.Now()
	err := e.pushCycle(ctx)
	e.observeTick(models.DirectionPush, start, err)
	return err
}

func (e *SyncEngine) pushCycle(ctx context.Context) error {
	if err := e.enqueuePushJobs(ctx); err != nil {
		return err
	}
	return e.drainPushJobs(ctx)
}

func (e *SyncEngine) enqueuePushJobs(ctx context.Context) error {
	regs, err := e.repo.ListRegistrations(ctx, e.tenant)
	if err != nil {
		return err
	}
	for _, reg := range regs {
		endpoints, err := e.endpointsFor(ctx, reg.DID)
		if err != nil {
			// Resolution trouble is scoped to this identity.
			e.log.Warn(ctx, "skipping identity, resolution failed",
				logger.String("did", reg.DID), logger.Error(err))
			continue
		}
		for _, endpoint := range endpoints {
			if err := e.enqueueLocalEvents(ctx, reg.DID, endpoint); err != nil {
				return err
			}
		}
	}
	return nil
}

// enqueueLocalEvents scans the local event log past the endpoint's push
// cursor, queues a job per event, and only then advances the cursor.
func (e *SyncEngine) enqueueLocalEvents(ctx context.Context, did, endpoint string) error {
	cursor, err := e.repo.GetWatermark(ctx, e.tenant, did, endpoint, models.DirectionPush)
	if err != nil {
		return err
	}
	events, err := e.local.EventLog(ctx, did, cursor)
	if err != nil {
		return err
	}
	for _, event := range events {
		if err := e.repo.EnqueueJob(ctx, e.tenant, &models.SyncJob{
			Direction: models.DirectionPush,
			DID:       did,
			Endpoint:  endpoint,
			Watermark: event.Watermark,
			MessageID: event.MessageID,
		}); err != nil {
			return err
		}
	}
	if len(events) > 0 {
		return e.repo.SetWatermark(ctx, e.tenant, did, endpoint, models.DirectionPush, events[len(events)-1].Watermark)
	}
	return nil
}

// drainPushJobs delivers queued messages in tuple order. A transport
// failure sidelines the endpoint for the rest of the cycle; everything
// delivered is deleted from the queue in one atomic batch.
func (e *SyncEngine) drainPushJobs(ctx context.Context) error {
	jobs, err := e.repo.ListJobs(ctx, e.tenant, models.DirectionPush)
	if err != nil {
		return err
	}

	errored := make(map[string]bool)
	var completed []*models.SyncJob
	for _, job := range jobs {
		if errored[job.Endpoint] {
			continue
		}
		msg, err := e.local.GetMessage(ctx, job.DID, job.MessageID)
		if err != nil {
			return err
		}
		if msg == nil {
			// The local node no longer holds the message; there is
			// nothing left to deliver for this job.
			e.log.Warn(ctx, "dropping push job, message gone locally",
				logger.String("did", job.DID),
				logger.String("message_id", job.MessageID))
			if err := e.repo.MarkApplied(ctx, e.tenant, job.DID, job.MessageID); err != nil {
				return err
			}
			completed = append(completed, job)
			continue
		}

		reply, err := e.remotes(job.Endpoint).ProcessMessage(ctx, msg)
		if err != nil {
			if errors.Is(err, errors.CodeEndpointUnreachable) {
				errored[job.Endpoint] = true
				e.observeEndpointError(job.Endpoint)
			}
			e.observeJob(models.DirectionPush, true)
			e.log.Warn(ctx, "push delivery failed, job stays queued",
				logger.String("endpoint", job.Endpoint),
				logger.String("message_id", job.MessageID),
				logger.Error(err))
			continue
		}
		if !reply.Status.OK() {
			e.observeJob(models.DirectionPush, true)
			e.log.Warn(ctx, "remote rejected message, job stays queued",
				logger.String("endpoint", job.Endpoint),
				logger.String("message_id", job.MessageID),
				logger.Int("status", reply.Status.Code))
			continue
		}
		// A delivered message is reconciled for this identity; the applied
		// record keeps later pulls from fetching it back.
		if err := e.repo.MarkApplied(ctx, e.tenant, job.DID, job.MessageID); err != nil {
			return err
		}
		e.observeJob(models.DirectionPush, false)
		completed = append(completed, job)
	}
	return e.repo.DeleteJobs(ctx, e.tenant, completed)
}
