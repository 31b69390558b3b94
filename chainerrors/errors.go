// Package chainerrors implements the chain's error taxonomy: each
// category is a distinct type so callers can switch on it with errors.As,
// while still carrying the wrapped cause and (via github.com/pkg/errors)
// a stack trace captured at the point of failure.
package chainerrors

import "github.com/pkg/errors"

// taggedError is the shared shape of every taxonomy member: a short
// message plus the underlying cause, if any.
type taggedError struct {
	tag     string
	message string
	cause   error
}

func (e *taggedError) Error() string {
	if e.cause == nil {
		return e.tag + ": " + e.message
	}
	return e.tag + ": " + e.message + ": " + e.cause.Error()
}

func (e *taggedError) Unwrap() error { return e.cause }

func newTagged(tag, message string, cause error) *taggedError {
	if cause != nil {
		cause = errors.WithStack(cause)
	}
	return &taggedError{tag: tag, message: message, cause: cause}
}

// ValidationError indicates a schema, format, or structural defect.
type ValidationError struct{ *taggedError }

// NewValidationError builds a ValidationError wrapping cause (which may be nil).
func NewValidationError(message string, cause error) *ValidationError {
	return &ValidationError{newTagged("ValidationError", message, cause)}
}

// ConsensusError indicates a slot/generator/previousBlock mismatch or a
// signature that failed verification.
type ConsensusError struct{ *taggedError }

// NewConsensusError builds a ConsensusError.
func NewConsensusError(message string, cause error) *ConsensusError {
	return &ConsensusError{newTagged("ConsensusError", message, cause)}
}

// StateError indicates a balance underflow, a missing sender, or a
// transaction type disallowed at the current chain tip.
type StateError struct{ *taggedError }

// NewStateError builds a StateError.
func NewStateError(message string, cause error) *StateError {
	return &StateError{newTagged("StateError", message, cause)}
}

// PersistenceError indicates a store transaction failed.
type PersistenceError struct{ *taggedError }

// NewPersistenceError builds a PersistenceError.
func NewPersistenceError(message string, cause error) *PersistenceError {
	return &PersistenceError{newTagged("PersistenceError", message, cause)}
}

// NetworkError indicates a peer RPC failure.
type NetworkError struct{ *taggedError }

// NewNetworkError builds a NetworkError.
func NewNetworkError(message string, cause error) *NetworkError {
	return &NetworkError{newTagged("NetworkError", message, cause)}
}

// PoolError indicates a full queue, a duplicate, or pending-queue expiry.
type PoolError struct{ *taggedError }

// NewPoolError builds a PoolError.
func NewPoolError(message string, cause error) *PoolError {
	return &PoolError{newTagged("PoolError", message, cause)}
}

// ConfigError indicates bad constants or bad delegate credentials.
type ConfigError struct{ *taggedError }

// NewConfigError builds a ConfigError.
func NewConfigError(message string, cause error) *ConfigError {
	return &ConfigError{newTagged("ConfigError", message, cause)}
}

// Fatal indicates the process cannot boot, or that migrations failed
// critically.
type Fatal struct{ *taggedError }

// NewFatal builds a Fatal error.
func NewFatal(message string, cause error) *Fatal {
	return &Fatal{newTagged("Fatal", message, cause)}
}

// InvalidTransactionError is the user-visible error thrown by postTransaction
// and friends. It carries the stringified list of underlying errors per
// the stringified underlying-error list contract postTransaction callers expect.
type InvalidTransactionError struct {
	TransactionID string
	Causes        []string
}

// NewInvalidTransactionError stringifies causes into an InvalidTransactionError.
func NewInvalidTransactionError(transactionID string, causes ...error) *InvalidTransactionError {
	strs := make([]string, len(causes))
	for i, c := range causes {
		strs[i] = c.Error()
	}
	return &InvalidTransactionError{TransactionID: transactionID, Causes: strs}
}

func (e *InvalidTransactionError) Error() string {
	msg := "invalid transaction " + e.TransactionID + ":"
	for _, c := range e.Causes {
		msg += " " + c
	}
	return msg
}
