package models

import "time"

// Direction distinguishes the two halves of a sync cycle.
type Direction string

const (
	// DirectionPull fetches remote events into the local node.
	DirectionPull Direction = "pull"
	// DirectionPush publishes local events to remote nodes.
	DirectionPush Direction = "push"
)

// SyncRegistration marks an identity as managed by the sync engine. Only
// registered identities participate in push and pull cycles.
// SyncRegistration 将一个身份标记为由同步引擎管理。
type SyncRegistration struct {
	DID       string    `json:"did"`
	CreatedAt time.Time `json:"createdAt"`
}

// SyncJob is one message replication task, keyed by the full
// (did, endpoint, watermark, messageId) tuple. Jobs for one direction are
// drained in tuple order, which groups them by identity, then endpoint,
// then event order.
// SyncJob 是一个消息复制任务，由完整的四元组作为键。
type SyncJob struct {
	Direction Direction `json:"direction"`
	DID       string    `json:"did"`
	Endpoint  string    `json:"endpoint"`
	Watermark string    `json:"watermark"`
	MessageID string    `json:"messageId"`
}
