package types

import (
	"errors"
	"fmt"
)

var (
	// ErrPersonNotFound is returned when a person lookup matches nothing.
	ErrPersonNotFound = errors.New("person not found")
	// ErrOrganizationNotFound is returned when an organization lookup matches nothing.
	ErrOrganizationNotFound = errors.New("organization not found")
	// ErrConnectionNotFound is returned when a connection lookup matches nothing.
	ErrConnectionNotFound = errors.New("connection not found")
	// ErrRelationshipNotFound is returned when an edge lookup matches nothing.
	ErrRelationshipNotFound = errors.New("relationship not found")
)

// ValidationError reports missing or malformed caller input. It is always
// surfaced to the caller and never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ConflictError reports that a raw create would violate a uniqueness
// invariant. Resolution paths convert it into a get-or-create internally;
// it only surfaces when the caller requested strict creation.
type ConflictError struct {
	Kind NodeKind
	Key  string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s already exists for %s", e.Kind, e.Key)
}

// UpstreamProviderError reports a failure talking to an external provider.
// It is retryable by the caller and recorded per-item during sync runs.
type UpstreamProviderError struct {
	Provider string
	Op       string
	Err      error
}

func (e *UpstreamProviderError) Error() string {
	return fmt.Sprintf("provider %s: %s: %v", e.Provider, e.Op, e.Err)
}

func (e *UpstreamProviderError) Unwrap() error {
	return e.Err
}

// SignatureError reports a webhook payload whose HMAC signature did not match
// the connection's configured secret. No state is mutated on a signature
// mismatch.
type SignatureError struct {
	ConnectionID string
}

func (e *SignatureError) Error() string {
	return fmt.Sprintf("webhook signature mismatch for connection %s", e.ConnectionID)
}
