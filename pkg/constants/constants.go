// Package constants defines system-wide constants for the DID agent.
// This package provides type-safe constant definitions used across all modules.
package constants

import "time"

// ================================================================================
// Service Constants
// ================================================================================

const (
	// ServiceName identifies the agent in logs, traces and tokens.
	ServiceName = "didagent"

	// Version is the agent release version.
	Version = "0.1.0"
)

// ================================================================================
// KMS Constants
// ================================================================================

// KmsName identifies a registered key management system backend.
type KmsName string

const (
	// KmsNameLocal is the default persistent local KMS.
	KmsNameLocal KmsName = "local"

	// KmsNameMemory is the reserved in-memory KMS that holds the agent's
	// default signing key.
	KmsNameMemory KmsName = "memory"
)

// ================================================================================
// DID / Data-Node Constants
// ================================================================================

const (
	// DwnServiceID is the reserved service id inside a DID document that
	// announces an identity's data-node endpoints.
	DwnServiceID = "#dwn"

	// DwnServiceType is the reserved service type for data-node endpoints.
	DwnServiceType = "DecentralizedWebNode"

	// DidKeyPrefix is the method prefix for inline did:key identifiers.
	DidKeyPrefix = "did:key:"
)

// ================================================================================
// Sync Constants
// ================================================================================

const (
	// DefaultSyncInterval is the tick interval used when none is configured.
	DefaultSyncInterval = 2 * time.Minute

	// DefaultRequestTimeout bounds a single remote data-node request. A
	// timeout is handled identically to an unreachable endpoint.
	DefaultRequestTimeout = 30 * time.Second
)

// ================================================================================
// Logging Constants
// ================================================================================

// LogLevel represents the severity level of log messages.
type LogLevel string

const (
	// LogLevelDebug is the most verbose logging level.
	LogLevelDebug LogLevel = "debug"

	// LogLevelInfo is the standard informational logging level.
	LogLevelInfo LogLevel = "info"

	// LogLevelWarn indicates potential issues.
	LogLevelWarn LogLevel = "warn"

	// LogLevelError indicates errors that need attention.
	LogLevelError LogLevel = "error"
)

// ================================================================================
// Context Keys
// ================================================================================

// ContextKey represents keys used in context.Context.
type ContextKey string

const (
	// ContextKeyRequestID is the key for request ID in context.
	ContextKeyRequestID ContextKey = "request_id"

	// ContextKeyTraceID is the key for distributed trace ID in context.
	ContextKeyTraceID ContextKey = "trace_id"
)
