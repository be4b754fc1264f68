// Package store defines the data-access interface for the relationship
// engine and its backend implementations. The Store is constructed once at
// process start and injected into every component; no package keeps an
// ambient global handle.
package store

import (
	"context"
	"time"

	"github.com/soundprediction/go-rolodex/pkg/types"
)

// CursorTimeFormat renders timestamp cursors with a fixed-width fraction so
// their lexical order matches their chronological order. Backends that
// compare cursors as strings rely on this.
const CursorTimeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// RelationshipFilter constrains a relationship query. Zero values mean
// "unfiltered". Results are ordered by strength descending, then most
// recently valid first.
type RelationshipFilter struct {
	Endpoint    *types.NodeRef
	Type        types.RelationshipType
	MinStrength float64
	ActiveOnly  bool
	Limit       int
}

// InteractionFilter constrains an interaction listing.
type InteractionFilter struct {
	PersonID       string
	OrganizationID string
	ConnectionID   string
	Since          time.Time
	Limit          int
}

// Store is the durable state of the engine: people, organizations, facts,
// relationships, interactions and per-provider connections.
//
// Correctness under concurrency is delegated to the implementation:
// two concurrent creates of the same normalized email, or two concurrent
// upserts of the same (provider, external id) interaction, must both
// terminate with exactly one surviving row, the loser converging onto the
// winner instead of erroring.
type Store interface {
	// Person operations
	GetPerson(ctx context.Context, id string) (*types.Person, error)
	GetPersonByEmail(ctx context.Context, normalizedEmail string) (*types.Person, error)
	CreatePerson(ctx context.Context, person *types.Person) (*types.Person, error)
	UpdatePerson(ctx context.Context, person *types.Person) error

	// Organization operations
	GetOrganization(ctx context.Context, id string) (*types.Organization, error)
	GetOrganizationByDomain(ctx context.Context, domain string) (*types.Organization, error)
	GetOrganizationByCanonicalKey(ctx context.Context, key string) (*types.Organization, error)
	GetOrganizationByName(ctx context.Context, name string) (*types.Organization, error)
	CreateOrganization(ctx context.Context, org *types.Organization) (*types.Organization, error)
	UpdateOrganization(ctx context.Context, org *types.Organization) error

	// Fact operations. SetCurrentFact closes the previous current fact for
	// the same (entity, fact type, key) and inserts the new one within a
	// single store transaction, returning the closed fact if one existed.
	SetCurrentFact(ctx context.Context, fact *types.Fact) (*types.Fact, error)
	CurrentFacts(ctx context.Context, entity types.NodeRef, factType string) ([]*types.Fact, error)
	FactHistory(ctx context.Context, entity types.NodeRef, factType, key string) ([]*types.Fact, error)

	// Relationship operations
	GetRelationship(ctx context.Context, id string) (*types.Relationship, error)
	GetActiveRelationship(ctx context.Context, source, target types.NodeRef, relType types.RelationshipType) (*types.Relationship, error)
	PutRelationship(ctx context.Context, rel *types.Relationship) error
	DeactivateRelationship(ctx context.Context, id string, at time.Time) error
	QueryRelationships(ctx context.Context, filter RelationshipFilter) ([]*types.Relationship, error)

	// Interaction operations. UpsertInteraction is keyed by the provider's
	// stable external id; replaying the same item is a duplicate-safe no-op
	// that reports created=false.
	UpsertInteraction(ctx context.Context, interaction *types.Interaction) (created bool, err error)
	ListInteractions(ctx context.Context, filter InteractionFilter) ([]*types.Interaction, error)

	// Connection operations. AdvanceCursor only ever moves the cursor
	// forward; an older cursor write is ignored so concurrent runs for the
	// same connection converge instead of regressing.
	GetConnection(ctx context.Context, id string) (*types.Connection, error)
	ListConnections(ctx context.Context, provider string, webhookOnly bool) ([]*types.Connection, error)
	FindConnectionByProviderUser(ctx context.Context, provider, providerUserID string) (*types.Connection, error)
	CreateConnection(ctx context.Context, conn *types.Connection) (*types.Connection, error)
	UpdateConnection(ctx context.Context, conn *types.Connection) error
	AdvanceCursor(ctx context.Context, connectionID, cursor string, syncedAt time.Time) error

	// CreateIndices installs uniqueness constraints and lookup indices.
	CreateIndices(ctx context.Context) error

	// Close releases backend resources.
	Close(ctx context.Context) error
}
