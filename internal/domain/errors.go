package domain

import (
	"errors"
	"fmt"
)

// ValidationError reports malformed input before it reaches crypto or
// storage. Field names the form control the caller should flag.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NewValidationError builds a field-tagged validation failure.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// CapacityExceededError rejects a group mutation that would exceed the cap.
// The membership is left untouched.
type CapacityExceededError struct {
	ConversationID ConversationID
	Capacity       int
}

func (e *CapacityExceededError) Error() string {
	return fmt.Sprintf("group %s is full (capacity %d)", e.ConversationID, e.Capacity)
}

var (
	// ErrKeyUnavailable means encrypt/decrypt was attempted with no local
	// private key (not yet unlocked, or cleared). Prompt re-authentication.
	ErrKeyUnavailable = errors.New("no local private key available")

	// ErrDecryptionFailed means the ciphertext could not be opened with the
	// derived shared secret: wrong key version, corruption or tampering.
	// Callers degrade to a flagged placeholder, never a crash.
	ErrDecryptionFailed = errors.New("message could not be decrypted")

	// ErrWindowExpired means an edit or delete was attempted after the
	// allowed window closed. The transition is permanently unavailable.
	ErrWindowExpired = errors.New("edit/delete window has expired")

	// ErrKeyRecordExists is returned by first-time initialization when a
	// live key record already exists and this is not a migration case.
	ErrKeyRecordExists = errors.New("a key record already exists for this user")

	// ErrTransport wraps network and subscription failures. The sync
	// coordinator retries with backoff and marks its state degraded.
	ErrTransport = errors.New("transport failure")

	// ErrNotFound is the store-agnostic missing-row sentinel.
	ErrNotFound = errors.New("not found")

	// ErrNotParticipant rejects operations on conversations the caller is
	// not a member of.
	ErrNotParticipant = errors.New("user is not a conversation participant")

	// ErrNotDelivered rejects an edit on a message that has no delivery
	// receipt yet. Only delivered messages may be edited.
	ErrNotDelivered = errors.New("message has not been delivered")
)
