package core

import (
	"errors"
	"fmt"
)

// Sentinel errors for comparison using errors.Is(). These are the error
// kinds the execute orchestrator surfaces to callers. Execute wraps
// ErrBulkheadRejected and ErrAllKeysExhausted in a KeyRotateError and
// ErrTimeout in an internal timeout error; GetKey and GetKeyByProvider
// return ErrAllKeysExhausted unwrapped. errors.Is matches all of them.
var (
	// ErrTimeout is raised when a single attempt exceeds its configured
	// timeout. It is also fed back into the classifier as a TIMEOUT
	// classification.
	ErrTimeout = errors.New("keyrotate: attempt timed out")

	// ErrBulkheadRejected is raised when the concurrency cap is hit. It is
	// never retried by the core.
	ErrBulkheadRejected = errors.New("keyrotate: bulkhead capacity exceeded")

	// ErrAllKeysExhausted is raised when selection returns nothing and no
	// fallback is configured.
	ErrAllKeysExhausted = errors.New("keyrotate: all keys exhausted")

	// ErrNoKeys describes an empty key pool. No function in this module
	// returns it: NewManager accepts an empty key list, and Execute on such
	// a manager fails with ErrAllKeysExhausted.
	ErrNoKeys = errors.New("keyrotate: no keys configured")

	// ErrInvalidConfiguration describes constructor-time misconfiguration.
	// NewManager does not validate its options and does not return it.
	ErrInvalidConfiguration = errors.New("keyrotate: invalid configuration")
)

// KeyRotateError gives every error surfaced across a package boundary a
// consistent shape: which operation failed, what kind of failure it was,
// which key (if any) was involved, and the underlying cause.
type KeyRotateError struct {
	Op      string // e.g. "Manager.Execute", "classifier.Classify"
	Kind    string // e.g. "bulkhead", "selection", "attempt"
	KeyID   string // optional key identity involved
	Message string
	Err     error
}

func (e *KeyRotateError) Error() string {
	switch {
	case e.Op != "" && e.KeyID != "" && e.Err != nil:
		return fmt.Sprintf("%s [%s]: %v", e.Op, e.KeyID, e.Err)
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return e.Err.Error()
	default:
		return fmt.Sprintf("keyrotate: %s error", e.Kind)
	}
}

// Unwrap exposes the underlying error for errors.Is/errors.As.
func (e *KeyRotateError) Unwrap() error {
	return e.Err
}

// NewError builds a KeyRotateError wrapping err for operation op.
func NewError(op, kind string, err error) *KeyRotateError {
	return &KeyRotateError{Op: op, Kind: kind, Err: err}
}

// NewKeyError is NewError with a key identity attached, for errors raised
// while handling a specific key.
func NewKeyError(op, kind, keyID string, err error) *KeyRotateError {
	return &KeyRotateError{Op: op, Kind: kind, KeyID: keyID, Err: err}
}
