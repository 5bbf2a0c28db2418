package application

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/didagent/internal/domain/models"
	"github.com/turtacn/didagent/internal/domain/service"
	"github.com/turtacn/didagent/internal/infrastructure/datanode"
	"github.com/turtacn/didagent/internal/infrastructure/persistence/memory"
	"github.com/turtacn/didagent/internal/infrastructure/persistence/pebbledb"
	"github.com/turtacn/didagent/pkg/errors"
	"github.com/turtacn/didagent/pkg/logger"
)

const (
	syncTenant  = "tenant-1"
	syncDID     = "did:key:alice"
	endpointOne = "https://dwn.example/one"
	endpointTwo = "https://dwn.example/two"
)

// stubResolver maps DIDs to fixed data-node endpoints.
type stubResolver struct {
	endpoints map[string][]string
}

func (r *stubResolver) Resolve(_ context.Context, did string) (*models.DIDDocument, error) {
	doc := &models.DIDDocument{ID: did}
	if eps := r.endpoints[did]; len(eps) > 0 {
		doc.Service = []models.Service{{
			ID:              "#dwn",
			Type:            "DecentralizedWebNode",
			ServiceEndpoint: eps,
		}}
	}
	return doc, nil
}

// flakyNode wraps a node with switchable failure modes.
type flakyNode struct {
	inner       service.DataNode
	endpoint    string
	unreachable bool
	failFetch   map[string]bool // messageID -> transport error on GetMessage
	prunedAway  map[string]bool // messageID -> GetMessage returns nothing
}

func (f *flakyNode) ProcessMessage(ctx context.Context, msg *models.Message) (*models.Reply, error) {
	if f.unreachable {
		return nil, errors.New(errors.CodeEndpointUnreachable, "endpoint %s is down", f.endpoint)
	}
	return f.inner.ProcessMessage(ctx, msg)
}

func (f *flakyNode) EventLog(ctx context.Context, did string, since string) ([]models.EventEntry, error) {
	if f.unreachable {
		return nil, errors.New(errors.CodeEndpointUnreachable, "endpoint %s is down", f.endpoint)
	}
	return f.inner.EventLog(ctx, did, since)
}

func (f *flakyNode) GetMessage(ctx context.Context, did string, messageID string) (*models.Message, error) {
	if f.unreachable || f.failFetch[messageID] {
		return nil, errors.New(errors.CodeEndpointUnreachable, "endpoint %s is down", f.endpoint)
	}
	if f.prunedAway[messageID] {
		return nil, nil
	}
	return f.inner.GetMessage(ctx, did, messageID)
}

type syncFixture struct {
	engine *SyncEngine
	repo   *memory.SyncStore
	local  *datanode.LocalNode
	remote map[string]*flakyNode
}

func newSyncFixture(t *testing.T, endpoints ...string) *syncFixture {
	t.Helper()
	openNode := func() *datanode.LocalNode {
		db, err := pebbledb.Open(t.TempDir())
		require.NoError(t, err)
		t.Cleanup(func() { _ = db.Close() })
		return datanode.NewLocalNode(db, logger.NewNoopLogger())
	}

	f := &syncFixture{
		repo:   memory.NewSyncStore(),
		local:  openNode(),
		remote: make(map[string]*flakyNode),
	}
	for _, ep := range endpoints {
		f.remote[ep] = &flakyNode{
			inner:      openNode(),
			endpoint:   ep,
			failFetch:  make(map[string]bool),
			prunedAway: make(map[string]bool),
		}
	}
	f.engine = NewSyncEngine(SyncEngineDeps{
		Tenant:   syncTenant,
		Repo:     f.repo,
		Local:    f.local,
		Resolver: &stubResolver{endpoints: map[string][]string{syncDID: endpoints}},
		Remotes:  func(endpoint string) service.DataNode { return f.remote[endpoint] },
		Logger:   logger.NewNoopLogger(),
	})
	require.NoError(t, f.engine.RegisterIdentity(context.Background(), syncDID))
	return f
}

func newWrite(record, payload string) *models.Message {
	msg := &models.Message{
		DID:       syncDID,
		Type:      models.MessageTypeRecordsWrite,
		RecordID:  record,
		Data:      []byte(payload),
		Timestamp: time.Now().UTC(),
	}
	msg.ID = datanode.ComputeMessageID(msg)
	return msg
}

func applyWrites(t *testing.T, node service.DataNode, msgs ...*models.Message) {
	t.Helper()
	for _, msg := range msgs {
		reply, err := node.ProcessMessage(context.Background(), msg)
		require.NoError(t, err)
		require.True(t, reply.Status.OK())
	}
}

func TestPushDeliversLocalEvents(t *testing.T) {
	f := newSyncFixture(t, endpointOne)
	ctx := context.Background()

	m1, m2 := newWrite("rec-1", "v1"), newWrite("rec-2", "v2")
	applyWrites(t, f.local, m1, m2)

	require.NoError(t, f.engine.Sync(ctx))

	for _, msg := range []*models.Message{m1, m2} {
		got, err := f.remote[endpointOne].inner.GetMessage(ctx, syncDID, msg.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, msg.Data, got.Data)
	}

	// Queue drained and cursor advanced.
	jobs, err := f.repo.ListJobs(ctx, syncTenant, models.DirectionPush)
	require.NoError(t, err)
	assert.Empty(t, jobs)
	wm, err := f.repo.GetWatermark(ctx, syncTenant, syncDID, endpointOne, models.DirectionPush)
	require.NoError(t, err)
	assert.NotEmpty(t, wm)
}

func TestSyncIsIdempotent(t *testing.T) {
	f := newSyncFixture(t, endpointOne)
	ctx := context.Background()

	applyWrites(t, f.local, newWrite("rec-1", "v1"))

	require.NoError(t, f.engine.Sync(ctx))
	require.NoError(t, f.engine.Sync(ctx))
	require.NoError(t, f.engine.Sync(ctx))

	// Exactly one event on each side despite repeated cycles.
	remoteEvents, err := f.remote[endpointOne].inner.EventLog(ctx, syncDID, "")
	require.NoError(t, err)
	assert.Len(t, remoteEvents, 1)
	localEvents, err := f.local.EventLog(ctx, syncDID, "")
	require.NoError(t, err)
	assert.Len(t, localEvents, 1)
}

func TestPullAppliesRemoteEventsInOrder(t *testing.T) {
	f := newSyncFixture(t, endpointOne)
	ctx := context.Background()

	m1, m2, m3 := newWrite("rec-1", "v1"), newWrite("rec-2", "v2"), newWrite("rec-3", "v3")
	applyWrites(t, f.remote[endpointOne].inner, m1, m2, m3)

	require.NoError(t, f.engine.Sync(ctx))

	events, err := f.local.EventLog(ctx, syncDID, "")
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, m1.ID, events[0].MessageID)
	assert.Equal(t, m2.ID, events[1].MessageID)
	assert.Equal(t, m3.ID, events[2].MessageID)
}

func TestPulledMessagesDoNotEchoBack(t *testing.T) {
	f := newSyncFixture(t, endpointOne)
	ctx := context.Background()

	m1 := newWrite("rec-1", "v1")
	applyWrites(t, f.local, m1)

	// First cycle pushes m1; the remote now lists it in its own event log,
	// so the following pulls see it coming back.
	require.NoError(t, f.engine.Sync(ctx))
	require.NoError(t, f.engine.Sync(ctx))

	localEvents, err := f.local.EventLog(ctx, syncDID, "")
	require.NoError(t, err)
	assert.Len(t, localEvents, 1)

	applied, err := f.repo.IsApplied(ctx, syncTenant, syncDID, m1.ID)
	require.NoError(t, err)
	assert.True(t, applied)
}

func TestPullPartialFailureResumesInOrder(t *testing.T) {
	f := newSyncFixture(t, endpointOne)
	ctx := context.Background()

	m1, m2, m3 := newWrite("rec-1", "v1"), newWrite("rec-2", "v2"), newWrite("rec-3", "v3")
	applyWrites(t, f.remote[endpointOne].inner, m1, m2, m3)

	// The second message fails to fetch; the endpoint is sidelined for the
	// rest of the cycle, so the third must not jump the queue.
	f.remote[endpointOne].failFetch[m2.ID] = true
	require.NoError(t, f.engine.Sync(ctx))

	events, err := f.local.EventLog(ctx, syncDID, "")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, m1.ID, events[0].MessageID)

	jobs, err := f.repo.ListJobs(ctx, syncTenant, models.DirectionPull)
	require.NoError(t, err)
	assert.Len(t, jobs, 2)

	// Recovery applies the remainder in order.
	f.remote[endpointOne].failFetch[m2.ID] = false
	require.NoError(t, f.engine.Sync(ctx))

	events, err = f.local.EventLog(ctx, syncDID, "")
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, m2.ID, events[1].MessageID)
	assert.Equal(t, m3.ID, events[2].MessageID)
}

func TestUnreachableEndpointDoesNotBlockOthers(t *testing.T) {
	f := newSyncFixture(t, endpointOne, endpointTwo)
	ctx := context.Background()

	m1 := newWrite("rec-1", "v1")
	applyWrites(t, f.local, m1)

	f.remote[endpointOne].unreachable = true
	require.NoError(t, f.engine.Sync(ctx))

	// The healthy endpoint got the message.
	got, err := f.remote[endpointTwo].inner.GetMessage(ctx, syncDID, m1.ID)
	require.NoError(t, err)
	require.NotNil(t, got)

	// The job for the down endpoint stays queued for retry.
	jobs, err := f.repo.ListJobs(ctx, syncTenant, models.DirectionPush)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, endpointOne, jobs[0].Endpoint)

	f.remote[endpointOne].unreachable = false
	require.NoError(t, f.engine.Sync(ctx))

	got, err = f.remote[endpointOne].inner.GetMessage(ctx, syncDID, m1.ID)
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func TestPullMissingMessageBecomesPrunedPlaceholder(t *testing.T) {
	f := newSyncFixture(t, endpointOne)
	ctx := context.Background()

	m1 := newWrite("rec-1", "v1")
	applyWrites(t, f.remote[endpointOne].inner, m1)

	// The remote lists the event but can no longer return the payload.
	f.remote[endpointOne].prunedAway[m1.ID] = true
	require.NoError(t, f.engine.Sync(ctx))

	got, err := f.local.GetMessage(ctx, syncDID, m1.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Pruned)
	assert.Nil(t, got.Data)
}

func TestPushJobForVanishedLocalMessageIsDropped(t *testing.T) {
	f := newSyncFixture(t, endpointOne)
	ctx := context.Background()

	require.NoError(t, f.repo.EnqueueJob(ctx, syncTenant, &models.SyncJob{
		Direction: models.DirectionPush,
		DID:       syncDID,
		Endpoint:  endpointOne,
		Watermark: "00000000000000000001",
		MessageID: "gone-forever",
	}))

	require.NoError(t, f.engine.Sync(ctx))

	jobs, err := f.repo.ListJobs(ctx, syncTenant, models.DirectionPush)
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestPushMarksDeliveredMessagesApplied(t *testing.T) {
	f := newSyncFixture(t, endpointOne)
	ctx := context.Background()

	m1 := newWrite("rec-1", "v1")
	applyWrites(t, f.local, m1)

	// Push alone records the message as reconciled; the pull side never has
	// to rediscover it through the local-presence check.
	require.NoError(t, f.engine.push(ctx))

	applied, err := f.repo.IsApplied(ctx, syncTenant, syncDID, m1.ID)
	require.NoError(t, err)
	assert.True(t, applied)
}

func TestWatermarkAdvancesOncePerScan(t *testing.T) {
	f := newSyncFixture(t, endpointOne)
	ctx := context.Background()

	applyWrites(t, f.remote[endpointOne].inner, newWrite("rec-1", "v1"))
	require.NoError(t, f.engine.Sync(ctx))

	first, err := f.repo.GetWatermark(ctx, syncTenant, syncDID, endpointOne, models.DirectionPull)
	require.NoError(t, err)
	require.NotEmpty(t, first)

	// No new remote events; the cursor holds its place.
	require.NoError(t, f.engine.Sync(ctx))
	second, err := f.repo.GetWatermark(ctx, syncTenant, syncDID, endpointOne, models.DirectionPull)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	applyWrites(t, f.remote[endpointOne].inner, newWrite("rec-2", "v2"))
	require.NoError(t, f.engine.Sync(ctx))
	third, err := f.repo.GetWatermark(ctx, syncTenant, syncDID, endpointOne, models.DirectionPull)
	require.NoError(t, err)
	assert.Greater(t, third, first)
}

func TestStartAndStop(t *testing.T) {
	f := newSyncFixture(t, endpointOne)

	m1 := newWrite("rec-1", "v1")
	applyWrites(t, f.local, m1)

	errs, err := f.engine.Start(10 * time.Millisecond)
	require.NoError(t, err)

	// A second start is rejected.
	_, err = f.engine.Start(10 * time.Millisecond)
	require.Error(t, err)

	require.Eventually(t, func() bool {
		msg, err := f.remote[endpointOne].inner.GetMessage(context.Background(), syncDID, m1.ID)
		return err == nil && msg != nil
	}, 2*time.Second, 20*time.Millisecond)

	f.engine.Stop()
	f.engine.Stop() // idempotent

	select {
	case err := <-errs:
		t.Fatalf("unexpected engine error: %v", err)
	default:
	}
}
