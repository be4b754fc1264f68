// Package provider defines the narrow contract the engine consumes from
// external communication sources (email and call-transcript services).
// Implementations live outside this repository; the engine only assumes
// stable external ids, participant pairs and timestamps.
package provider

import (
	"context"
	"time"
)

// Participant is a name/address pair as reported by the provider.
type Participant struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email"`
}

// Item is one provider record: an email, call transcript or similar event.
// ExternalID is immutable on the provider side and is the engine's
// idempotent upsert key.
type Item struct {
	ExternalID   string            `json:"external_id"`
	ThreadID     string            `json:"thread_id,omitempty"`
	Sender       Participant       `json:"sender"`
	Participants []Participant     `json:"participants,omitempty"`
	Outbound     bool              `json:"outbound"`
	Subject      string            `json:"subject,omitempty"`
	Snippet      string            `json:"snippet,omitempty"`
	Timestamp    time.Time         `json:"timestamp"`
	Payload      map[string]string `json:"payload,omitempty"`
}

// Identity describes the authenticated provider account.
type Identity struct {
	ProviderUserID string `json:"provider_user_id"`
	EmailAddress   string `json:"email_address,omitempty"`
}

// Client is the provider collaborator contract. All calls block on the
// network and honor the context.
type Client interface {
	// Name identifies the provider ("nylas", "gong", ...).
	Name() string

	// VerifyCredential checks the stored credential and returns the
	// provider-side identity. A failure here is a connection-level error:
	// the sync run aborts without touching the cursor.
	VerifyCredential(ctx context.Context) (*Identity, error)

	// ListItemsSince returns a bounded batch of items newer than the
	// cursor. maxItems caps the batch; a non-zero fromDate further bounds
	// it. Items are expected oldest first.
	ListItemsSince(ctx context.Context, cursor string, maxItems int, fromDate time.Time) ([]*Item, error)

	// GetItem fetches the single item referenced by a webhook payload.
	GetItem(ctx context.Context, externalID string) (*Item, error)
}
