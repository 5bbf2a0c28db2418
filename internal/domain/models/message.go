package models

import "time"

// MessageType names a node operation carried by a message.
// MessageType 表示消息承载的节点操作类型。
type MessageType string

const (
	MessageTypeRecordsWrite  MessageType = "RecordsWrite"
	MessageTypeRecordsRead   MessageType = "RecordsRead"
	MessageTypeRecordsDelete MessageType = "RecordsDelete"
	MessageTypeRecordsQuery  MessageType = "RecordsQuery"
)

// Message is one unit of state change or query addressed to an identity's
// data node. The message id is content-derived and stable across nodes, so
// the same logical message carries the same id everywhere.
// Message 是发往身份数据节点的一个状态变更或查询单元。
type Message struct {
	// ID uniquely identifies the message across all nodes.
	ID string `json:"id"`
	// DID is the identity the message targets.
	DID string `json:"did"`
	// Type is the operation the message performs.
	Type MessageType `json:"type"`
	// RecordID is the logical record the message addresses.
	RecordID string `json:"recordId,omitempty"`
	// Data is the message payload. It may be absent when the payload was
	// pruned on the serving node.
	Data []byte `json:"data,omitempty"`
	// Pruned marks a message whose payload is no longer available on the
	// node it was fetched from.
	Pruned bool `json:"pruned,omitempty"`
	// Timestamp is the message creation time as asserted by its author.
	Timestamp time.Time `json:"timestamp"`
}

// Status is the outcome of processing a message, using HTTP-like codes.
type Status struct {
	Code   int    `json:"code"`
	Detail string `json:"detail,omitempty"`
}

// OK reports whether the status is a success.
func (s Status) OK() bool {
	return s.Code >= 200 && s.Code < 300
}

// Reply is a node's response to one processed message.
type Reply struct {
	Status Status `json:"status"`
	// Entries carries matching messages for query replies.
	Entries []*Message `json:"entries,omitempty"`
	// Data carries record payload for read replies.
	Data []byte `json:"data,omitempty"`
}

// EventEntry is one line of a node's event log: a message id at the
// watermark assigned when the node accepted it. Watermarks are opaque
// strings whose lexicographic order is the node's event order.
type EventEntry struct {
	Watermark string `json:"watermark"`
	MessageID string `json:"messageId"`
}
