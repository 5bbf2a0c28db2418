package datanode

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/didagent/internal/domain/models"
	"github.com/turtacn/didagent/internal/infrastructure/persistence/pebbledb"
	"github.com/turtacn/didagent/pkg/logger"
)

const aliceDID = "did:key:alice"

func newTestNode(t *testing.T) *LocalNode {
	t.Helper()
	db, err := pebbledb.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewLocalNode(db, logger.NewNoopLogger())
}

func writeMessage(record, payload string) *models.Message {
	msg := &models.Message{
		DID:       aliceDID,
		Type:      models.MessageTypeRecordsWrite,
		RecordID:  record,
		Data:      []byte(payload),
		Timestamp: time.Now().UTC(),
	}
	msg.ID = ComputeMessageID(msg)
	return msg
}

func TestWriteAppendsEvent(t *testing.T) {
	node := newTestNode(t)
	ctx := context.Background()

	reply, err := node.ProcessMessage(ctx, writeMessage("rec-1", "v1"))
	require.NoError(t, err)
	assert.True(t, reply.Status.OK())

	events, err := node.EventLog(ctx, aliceDID, "")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.NotEmpty(t, events[0].Watermark)
}

func TestWatermarksAreMonotonic(t *testing.T) {
	node := newTestNode(t)
	ctx := context.Background()

	for _, payload := range []string{"v1", "v2", "v3"} {
		_, err := node.ProcessMessage(ctx, writeMessage("rec-"+payload, payload))
		require.NoError(t, err)
	}

	events, err := node.EventLog(ctx, aliceDID, "")
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Less(t, events[0].Watermark, events[1].Watermark)
	assert.Less(t, events[1].Watermark, events[2].Watermark)
}

func TestEventLogSinceExcludesWatermark(t *testing.T) {
	node := newTestNode(t)
	ctx := context.Background()

	for _, payload := range []string{"v1", "v2", "v3"} {
		_, err := node.ProcessMessage(ctx, writeMessage("rec-"+payload, payload))
		require.NoError(t, err)
	}
	all, err := node.EventLog(ctx, aliceDID, "")
	require.NoError(t, err)
	require.Len(t, all, 3)

	// since is exclusive: events strictly after the cursor.
	after, err := node.EventLog(ctx, aliceDID, all[0].Watermark)
	require.NoError(t, err)
	require.Len(t, after, 2)
	assert.Equal(t, all[1].MessageID, after[0].MessageID)
}

func TestReplayedWriteIsIdempotent(t *testing.T) {
	node := newTestNode(t)
	ctx := context.Background()
	msg := writeMessage("rec-1", "v1")

	first, err := node.ProcessMessage(ctx, msg)
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, first.Status.Code)

	second, err := node.ProcessMessage(ctx, msg)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, second.Status.Code)

	// No second event for the same message.
	events, err := node.EventLog(ctx, aliceDID, "")
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestReadReturnsLatestPayload(t *testing.T) {
	node := newTestNode(t)
	ctx := context.Background()

	_, err := node.ProcessMessage(ctx, writeMessage("rec-1", "v1"))
	require.NoError(t, err)

	reply, err := node.ProcessMessage(ctx, &models.Message{
		ID:       "read-1",
		DID:      aliceDID,
		Type:     models.MessageTypeRecordsRead,
		RecordID: "rec-1",
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, reply.Status.Code)
	assert.Equal(t, []byte("v1"), reply.Data)
}

func TestDeletePrunesPriorWrite(t *testing.T) {
	node := newTestNode(t)
	ctx := context.Background()

	write := writeMessage("rec-1", "v1")
	_, err := node.ProcessMessage(ctx, write)
	require.NoError(t, err)

	del := &models.Message{
		DID:       aliceDID,
		Type:      models.MessageTypeRecordsDelete,
		RecordID:  "rec-1",
		Timestamp: time.Now().UTC(),
	}
	del.ID = ComputeMessageID(del)
	reply, err := node.ProcessMessage(ctx, del)
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, reply.Status.Code)

	// The superseded write stays in the log but loses its payload.
	pruned, err := node.GetMessage(ctx, aliceDID, write.ID)
	require.NoError(t, err)
	require.NotNil(t, pruned)
	assert.True(t, pruned.Pruned)
	assert.Nil(t, pruned.Data)

	read, err := node.ProcessMessage(ctx, &models.Message{
		ID:       "read-1",
		DID:      aliceDID,
		Type:     models.MessageTypeRecordsRead,
		RecordID: "rec-1",
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, read.Status.Code)
}

func TestQueryFiltersByRecord(t *testing.T) {
	node := newTestNode(t)
	ctx := context.Background()

	_, err := node.ProcessMessage(ctx, writeMessage("rec-1", "v1"))
	require.NoError(t, err)
	_, err = node.ProcessMessage(ctx, writeMessage("rec-2", "v2"))
	require.NoError(t, err)

	reply, err := node.ProcessMessage(ctx, &models.Message{
		ID:       "query-1",
		DID:      aliceDID,
		Type:     models.MessageTypeRecordsQuery,
		RecordID: "rec-2",
	})
	require.NoError(t, err)
	require.Len(t, reply.Entries, 1)
	assert.Equal(t, "rec-2", reply.Entries[0].RecordID)

	all, err := node.ProcessMessage(ctx, &models.Message{
		ID:   "query-2",
		DID:  aliceDID,
		Type: models.MessageTypeRecordsQuery,
	})
	require.NoError(t, err)
	assert.Len(t, all.Entries, 2)
}

func TestGetMessageUnknownReturnsNil(t *testing.T) {
	node := newTestNode(t)

	msg, err := node.GetMessage(context.Background(), aliceDID, "absent")
	require.NoError(t, err)
	assert.Nil(t, msg)
}

func TestComputeMessageIDStable(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	a := &models.Message{DID: aliceDID, Type: models.MessageTypeRecordsWrite, RecordID: "rec", Data: []byte("x"), Timestamp: ts}
	b := &models.Message{DID: aliceDID, Type: models.MessageTypeRecordsWrite, RecordID: "rec", Data: []byte("x"), Timestamp: ts}

	assert.Equal(t, ComputeMessageID(a), ComputeMessageID(b))

	b.Data = []byte("y")
	assert.NotEqual(t, ComputeMessageID(a), ComputeMessageID(b))
}
