// Package errors defines structured error types for the DID agent. Every
// failure surfaced by the key-management and sync cores carries one of the
// stable codes below so callers can branch on kind instead of message text.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Code is a stable, machine-readable error kind.
type Code string

const (
	// CodeAlgorithmNotSupported indicates the requested algorithm, curve or
	// mode has no registered implementation. Never retried.
	CodeAlgorithmNotSupported Code = "algorithm_not_supported"

	// CodeKeyNotFound indicates a key reference resolved to no stored key in
	// either the metadata or the private-key store.
	CodeKeyNotFound Code = "key_not_found"

	// CodeMissingKeyMaterial indicates a public key record exists but lacks
	// the material needed for the requested operation.
	CodeMissingKeyMaterial Code = "missing_key_material"

	// CodeInvalidKeyPairTypes indicates an imported pair where neither part
	// is private or neither is public.
	CodeInvalidKeyPairTypes Code = "invalid_key_pair_types"

	// CodePrivateKeyMismatch indicates an imported pair with the private and
	// public parts swapped.
	CodePrivateKeyMismatch Code = "private_key_mismatch"

	// CodeUnknownKms indicates the key manager could not resolve which
	// backend should serve a request.
	CodeUnknownKms Code = "unknown_kms"

	// CodeEndpointUnreachable indicates a remote data-node endpoint could
	// not be reached (connect failure or timeout). Scoped to one endpoint
	// for one sync tick; retried on the next tick.
	CodeEndpointUnreachable Code = "endpoint_unreachable"

	// CodeResolutionFailed indicates DID resolution failed or the resolved
	// document is malformed.
	CodeResolutionFailed Code = "resolution_failed"

	// CodeInvalidArgument indicates a caller-supplied argument is invalid.
	CodeInvalidArgument Code = "invalid_argument"

	// CodeInternal indicates an unexpected internal failure.
	CodeInternal Code = "internal"
)

// AgentError is a structured error with a stable code, optional cause and
// optional context metadata.
type AgentError struct {
	code     Code
	message  string
	cause    error
	metadata map[string]any
}

// Error implements the error interface.
func (e *AgentError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Code returns the stable error kind.
func (e *AgentError) Code() Code {
	return e.code
}

// Unwrap returns the underlying cause for errors.Is/As chains.
func (e *AgentError) Unwrap() error {
	return e.cause
}

// WithMetadata attaches a context key/value to the error and returns it.
func (e *AgentError) WithMetadata(key string, value any) *AgentError {
	if e.metadata == nil {
		e.metadata = make(map[string]any)
	}
	e.metadata[key] = value
	return e
}

// Metadata returns all attached metadata.
func (e *AgentError) Metadata() map[string]any {
	return e.metadata
}

// New creates a new AgentError with the given code and formatted message.
func New(code Code, format string, args ...any) *AgentError {
	return &AgentError{code: code, message: fmt.Sprintf(format, args...)}
}

// Wrap annotates an existing error with a code and message, keeping the
// original reachable through Unwrap.
func Wrap(err error, code Code, format string, args ...any) *AgentError {
	return &AgentError{code: code, message: fmt.Sprintf(format, args...), cause: err}
}

// CodeOf extracts the code of an AgentError anywhere in err's chain, or
// CodeInternal when none is present.
func CodeOf(err error) Code {
	var ae *AgentError
	if stderrors.As(err, &ae) {
		return ae.code
	}
	return CodeInternal
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	var ae *AgentError
	if stderrors.As(err, &ae) {
		return ae.code == code
	}
	return false
}

// ================================================================================
// Predefined Constructors
// ================================================================================

// ErrAlgorithmNotSupported creates an algorithm_not_supported error.
func ErrAlgorithmNotSupported(name string) *AgentError {
	return New(CodeAlgorithmNotSupported, "algorithm not supported: %s", name).
		WithMetadata("algorithm", name)
}

// ErrKeyNotFound creates a key_not_found error for a key reference.
func ErrKeyNotFound(ref string) *AgentError {
	return New(CodeKeyNotFound, "key not found: %s", ref).
		WithMetadata("key_ref", ref)
}

// ErrMissingKeyMaterial creates a missing_key_material error.
func ErrMissingKeyMaterial(ref string) *AgentError {
	return New(CodeMissingKeyMaterial, "public key material is not available for key: %s", ref).
		WithMetadata("key_ref", ref)
}

// ErrUnknownKms creates an unknown_kms error.
func ErrUnknownKms(name string) *AgentError {
	return New(CodeUnknownKms, "no KMS registered under name: %s", name).
		WithMetadata("kms", name)
}

// ErrEndpointUnreachable creates an endpoint_unreachable error.
func ErrEndpointUnreachable(endpoint string, cause error) *AgentError {
	return Wrap(cause, CodeEndpointUnreachable, "data node unreachable: %s", endpoint).
		WithMetadata("endpoint", endpoint)
}
