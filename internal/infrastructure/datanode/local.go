// Package datanode holds the agent's local message-processing node and the
// HTTP client for remote nodes. Both sides satisfy the same contract, so
// the sync engine moves messages between them symmetrically.
package datanode

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"

	"github.com/turtacn/didagent/internal/domain/models"
	"github.com/turtacn/didagent/internal/domain/service"
	"github.com/turtacn/didagent/internal/infrastructure/persistence/pebbledb"
	"github.com/turtacn/didagent/pkg/errors"
	"github.com/turtacn/didagent/pkg/logger"
)

const (
	nsNodeMessage = "node-msg"
	nsNodeEvent   = "node-evt"
	nsNodeRecord  = "node-rec"
	nsNodeSeq     = "node-seq"
)

// LocalNode is the agent's own data node. Every accepted state change gets
// a watermark from a per-identity counter; watermarks are zero-padded so
// their lexicographic order is their numeric order.
// LocalNode 是代理自身的数据节点，接受的每个状态变更都会得到一个水位线。
type LocalNode struct {
	db  *pebbledb.DB
	log logger.Logger

	mu sync.Mutex // guards the watermark counters
}

var _ service.DataNode = (*LocalNode)(nil)

// NewLocalNode builds a node over the given store.
func NewLocalNode(db *pebbledb.DB, log logger.Logger) *LocalNode {
	return &LocalNode{db: db, log: log.WithComponent("datanode.local")}
}

func (n *LocalNode) ProcessMessage(ctx context.Context, msg *models.Message) (*models.Reply, error) {
	if msg == nil || msg.ID == "" || msg.DID == "" {
		return nil, errors.New(errors.CodeInvalidArgument, "message requires an id and a target identity")
	}
	switch msg.Type {
	case models.MessageTypeRecordsWrite:
		return n.applyWrite(ctx, msg)
	case models.MessageTypeRecordsDelete:
		return n.applyDelete(ctx, msg)
	case models.MessageTypeRecordsRead:
		return n.read(msg)
	case models.MessageTypeRecordsQuery:
		return n.query(msg)
	default:
		return &models.Reply{Status: models.Status{
			Code:   http.StatusBadRequest,
			Detail: fmt.Sprintf("unknown message type %q", msg.Type),
		}}, nil
	}
}

// applyWrite stores the message and appends it to the event log. A message
// id that was stored before is acknowledged without a second event, which
// makes replays and sync echoes harmless.
func (n *LocalNode) applyWrite(ctx context.Context, msg *models.Message) (*models.Reply, error) {
	stored, err := n.loadMessage(msg.DID, msg.ID)
	if err != nil {
		return nil, err
	}
	if stored != nil {
		return &models.Reply{Status: models.Status{Code: http.StatusOK, Detail: "message already applied"}}, nil
	}

	if err := n.storeMessage(msg); err != nil {
		return nil, err
	}
	if msg.RecordID != "" {
		if err := n.db.Set(pebbledb.EncodeTuple(nsNodeRecord, msg.DID, msg.RecordID), []byte(msg.ID)); err != nil {
			return nil, err
		}
	}
	watermark, err := n.appendEvent(msg.DID, msg.ID)
	if err != nil {
		return nil, err
	}

	n.log.Debug(ctx, "applied write",
		logger.String("did", msg.DID),
		logger.String("message_id", msg.ID),
		logger.String("watermark", watermark))
	return &models.Reply{Status: models.Status{Code: http.StatusAccepted}}, nil
}

// applyDelete records the delete and prunes the payload of the write it
// supersedes. The pruned message keeps its place in the event log.
func (n *LocalNode) applyDelete(ctx context.Context, msg *models.Message) (*models.Reply, error) {
	stored, err := n.loadMessage(msg.DID, msg.ID)
	if err != nil {
		return nil, err
	}
	if stored != nil {
		return &models.Reply{Status: models.Status{Code: http.StatusOK, Detail: "message already applied"}}, nil
	}
	if msg.RecordID == "" {
		return &models.Reply{Status: models.Status{Code: http.StatusBadRequest, Detail: "delete requires a record id"}}, nil
	}

	recordKey := pebbledb.EncodeTuple(nsNodeRecord, msg.DID, msg.RecordID)
	if prior, ok, err := n.db.Get(recordKey); err != nil {
		return nil, err
	} else if ok {
		priorMsg, err := n.loadMessage(msg.DID, string(prior))
		if err != nil {
			return nil, err
		}
		if priorMsg != nil && len(priorMsg.Data) > 0 {
			priorMsg.Data = nil
			priorMsg.Pruned = true
			if err := n.storeMessage(priorMsg); err != nil {
				return nil, err
			}
		}
		if err := n.db.Delete(recordKey); err != nil {
			return nil, err
		}
	}

	if err := n.storeMessage(msg); err != nil {
		return nil, err
	}
	if _, err := n.appendEvent(msg.DID, msg.ID); err != nil {
		return nil, err
	}

	n.log.Debug(ctx, "applied delete",
		logger.String("did", msg.DID),
		logger.String("record_id", msg.RecordID))
	return &models.Reply{Status: models.Status{Code: http.StatusAccepted}}, nil
}

func (n *LocalNode) read(msg *models.Message) (*models.Reply, error) {
	if msg.RecordID == "" {
		return &models.Reply{Status: models.Status{Code: http.StatusBadRequest, Detail: "read requires a record id"}}, nil
	}
	current, ok, err := n.db.Get(pebbledb.EncodeTuple(nsNodeRecord, msg.DID, msg.RecordID))
	if err != nil {
		return nil, err
	}
	if !ok {
		return &models.Reply{Status: models.Status{Code: http.StatusNotFound, Detail: "record not found"}}, nil
	}
	stored, err := n.loadMessage(msg.DID, string(current))
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return &models.Reply{Status: models.Status{Code: http.StatusNotFound, Detail: "record not found"}}, nil
	}
	return &models.Reply{
		Status: models.Status{Code: http.StatusOK},
		Data:   stored.Data,
	}, nil
}

func (n *LocalNode) query(msg *models.Message) (*models.Reply, error) {
	var entries []*models.Message
	err := n.db.ScanPrefix(pebbledb.EncodeTuple(nsNodeMessage, msg.DID), func(_, value []byte) error {
		stored, err := decodeMessage(value)
		if err != nil {
			return err
		}
		if stored.Type != models.MessageTypeRecordsWrite {
			return nil
		}
		if msg.RecordID != "" && stored.RecordID != msg.RecordID {
			return nil
		}
		entries = append(entries, stored)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &models.Reply{
		Status:  models.Status{Code: http.StatusOK},
		Entries: entries,
	}, nil
}

func (n *LocalNode) EventLog(_ context.Context, did string, since string) ([]models.EventEntry, error) {
	var events []models.EventEntry
	err := n.db.ScanPrefix(pebbledb.EncodeTuple(nsNodeEvent, did), func(key, value []byte) error {
		fields := pebbledb.DecodeTuple(key)
		watermark := fields[len(fields)-1]
		if since != "" && watermark <= since {
			return nil
		}
		events = append(events, models.EventEntry{Watermark: watermark, MessageID: string(value)})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

func (n *LocalNode) GetMessage(_ context.Context, did string, messageID string) (*models.Message, error) {
	return n.loadMessage(did, messageID)
}

func (n *LocalNode) storeMessage(msg *models.Message) error {
	data, err := encodeMessage(msg)
	if err != nil {
		return err
	}
	return n.db.Set(pebbledb.EncodeTuple(nsNodeMessage, msg.DID, msg.ID), data)
}

// loadMessage returns nil without error when the message is unknown.
func (n *LocalNode) loadMessage(did, messageID string) (*models.Message, error) {
	data, ok, err := n.db.Get(pebbledb.EncodeTuple(nsNodeMessage, did, messageID))
	if err != nil || !ok {
		return nil, err
	}
	return decodeMessage(data)
}

// appendEvent assigns the next watermark for the identity and records the
// event under it.
func (n *LocalNode) appendEvent(did, messageID string) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	seqKey := pebbledb.EncodeTuple(nsNodeSeq, did)
	var counter uint64
	if raw, ok, err := n.db.Get(seqKey); err != nil {
		return "", err
	} else if ok {
		counter, _ = strconv.ParseUint(string(raw), 10, 64)
	}
	counter++

	watermark := fmt.Sprintf("%020d", counter)
	if err := n.db.Set(pebbledb.EncodeTuple(nsNodeEvent, did, watermark), []byte(messageID)); err != nil {
		return "", err
	}
	if err := n.db.Set(seqKey, []byte(strconv.FormatUint(counter, 10))); err != nil {
		return "", err
	}
	return watermark, nil
}
