package types

import (
	"time"
)

// NodeKind identifies the kind of entity a graph endpoint refers to.
type NodeKind string

const (
	// PersonKind is the node kind for Person entities.
	PersonKind NodeKind = "person"
	// OrganizationKind is the node kind for Organization entities.
	OrganizationKind NodeKind = "organization"
)

// NodeRef is a strongly-typed (kind, id) reference to an entity.
// Edges and facts reference entities by NodeRef only, never by embedded object.
type NodeRef struct {
	Kind NodeKind `json:"kind"`
	ID   string   `json:"id"`
}

// Person is an individual identity aggregated from one or more sources.
// At most one non-deleted Person exists per normalized email; a Person with
// an empty Email is known only by name or handle and is exempt from email dedup.
type Person struct {
	ID          string            `json:"id"`
	GivenName   string            `json:"given_name"`
	FamilyName  string            `json:"family_name"`
	Email       string            `json:"email,omitempty"` // normalized: lower-cased, trimmed
	Phone       string            `json:"phone,omitempty"`
	City        string            `json:"city,omitempty"`
	Country     string            `json:"country,omitempty"`
	Handles     map[string]string `json:"handles,omitempty"` // network -> handle
	PrivacyTier string            `json:"privacy_tier,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
	DeletedAt   *time.Time        `json:"deleted_at,omitempty"`
}

// Ref returns the graph reference for the person.
func (p *Person) Ref() NodeRef {
	return NodeRef{Kind: PersonKind, ID: p.ID}
}

// Organization is a company or other collective entity.
// CanonicalKey is unique across non-deleted organizations; Domain is unique
// when present.
type Organization struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	CanonicalKey string    `json:"canonical_key"`
	Domain       string    `json:"domain,omitempty"`
	OrgType      string    `json:"org_type,omitempty"` // portfolio, prospect, client, ...
	Industry     string    `json:"industry,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Ref returns the graph reference for the organization.
func (o *Organization) Ref() NodeRef {
	return NodeRef{Kind: OrganizationKind, ID: o.ID}
}

// Provenance records which system or process asserted a fact or relationship.
type Provenance struct {
	SourceType string `json:"source_type"` // email_sync, call_sync, manual, enrichment, import
	SourceID   string `json:"source_id,omitempty"`
}

// Fact is a temporally-versioned key/value assertion about an entity.
// For a given (entity, fact type, key) at most one Fact is current, i.e. has
// ValidUntil == nil. Superseded facts are closed, never deleted.
type Fact struct {
	ID         string     `json:"id"`
	Entity     NodeRef    `json:"entity"`
	FactType   string     `json:"fact_type"`
	Key        string     `json:"key"`
	Value      string     `json:"value"`
	Source     Provenance `json:"source"`
	Confidence float64    `json:"confidence"` // [0,1]
	ValidFrom  time.Time  `json:"valid_from"`
	ValidUntil *time.Time `json:"valid_until,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Current reports whether the fact is the presently-believed value for its key.
func (f *Fact) Current() bool {
	return f.ValidUntil == nil
}

// RelationshipType tags a typed edge between two entities.
type RelationshipType string

const (
	// WorksAtRelationship connects a person to an organization they work at.
	WorksAtRelationship RelationshipType = "works_at"
	// InvestedInRelationship connects an investor to a portfolio organization.
	InvestedInRelationship RelationshipType = "invested_in"
	// CommunicatesWithRelationship connects two parties with observed communication.
	CommunicatesWithRelationship RelationshipType = "communicates_with"
	// IntroducedByRelationship records who brokered a connection.
	IntroducedByRelationship RelationshipType = "introduced_by"
)

// EmploymentProperties are the typed attributes of a works_at edge.
type EmploymentProperties struct {
	Title     string `json:"title,omitempty"`
	Seniority string `json:"seniority,omitempty"`
}

// InvestmentProperties are the typed attributes of an invested_in edge.
type InvestmentProperties struct {
	Round    string `json:"round,omitempty"`
	LeadRole bool   `json:"lead_role,omitempty"`
}

// RelationshipProperties is a tagged variant holding the schema for known
// relationship types, plus Extra for provider-specific fields not yet promoted
// to first-class attributes.
type RelationshipProperties struct {
	Employment *EmploymentProperties `json:"employment,omitempty"`
	Investment *InvestmentProperties `json:"investment,omitempty"`
	Extra      map[string]string     `json:"extra,omitempty"`
}

// Relationship is a directed, typed, temporally-versioned edge between two
// entity references. At most one active edge exists per (source, target, type)
// triple; superseded edges are deactivated, never hard-deleted.
type Relationship struct {
	ID          string                 `json:"id"`
	Source      NodeRef                `json:"source"`
	Target      NodeRef                `json:"target"`
	Type        RelationshipType       `json:"type"`
	Properties  RelationshipProperties `json:"properties"`
	Strength    float64                `json:"strength"`   // [0,1]
	Confidence  float64                `json:"confidence"` // [0,1]
	SourceOf    Provenance             `json:"source_of_truth"`
	ExternalRef string                 `json:"external_ref,omitempty"`
	IsActive    bool                   `json:"is_active"`
	ValidFrom   time.Time              `json:"valid_from"`
	ValidUntil  *time.Time             `json:"valid_until,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
}

// Direction classifies an interaction relative to the connection owner.
type Direction string

const (
	// Inbound interactions were received by the connection owner.
	Inbound Direction = "inbound"
	// Outbound interactions were sent by the connection owner.
	Outbound Direction = "outbound"
)

// Participant is a name/address pair observed on a provider item, with the
// resolved person id once entity resolution has run.
type Participant struct {
	Name     string `json:"name,omitempty"`
	Email    string `json:"email,omitempty"`
	PersonID string `json:"person_id,omitempty"`
}

// Interaction is a communication event (email, call, note) imported from a
// provider. The (Provider, ExternalID) pair is the idempotent upsert key:
// re-processing the same provider item never creates a second row.
type Interaction struct {
	ID              string        `json:"id"`
	Provider        string        `json:"provider"`
	ExternalID      string        `json:"external_id"`
	ConnectionID    string        `json:"connection_id"`
	ThreadID        string        `json:"thread_id,omitempty"`
	Direction       Direction     `json:"direction"`
	Participants    []Participant `json:"participants,omitempty"`
	PersonIDs       []string      `json:"person_ids,omitempty"`
	OrganizationIDs []string      `json:"organization_ids,omitempty"`
	Subject         string        `json:"subject,omitempty"`
	Snippet         string        `json:"snippet,omitempty"`
	OccurredAt      time.Time     `json:"occurred_at"`
	CreatedAt       time.Time     `json:"created_at"`
}

// Connection is the durable sync state for one provider account owned by one
// user: credential reference, cursor, webhook configuration. The cursor only
// moves forward, and only past durably-committed items.
type Connection struct {
	ID             string     `json:"id"`
	UserID         string     `json:"user_id"`
	Provider       string     `json:"provider"`
	ProviderUserID string     `json:"provider_user_id,omitempty"`
	CredentialRef  string     `json:"credential_ref,omitempty"`
	Cursor         string     `json:"cursor,omitempty"`
	LastSyncAt     *time.Time `json:"last_sync_at,omitempty"`
	WebhookEnabled bool       `json:"webhook_enabled"`
	WebhookSecret  string     `json:"webhook_secret,omitempty"`
	Status         string     `json:"status,omitempty"`
	LastError      string     `json:"last_error,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// TrendDirection classifies how a relationship score is moving.
type TrendDirection string

const (
	TrendStrengthening TrendDirection = "strengthening"
	TrendStable        TrendDirection = "stable"
	TrendWeakening     TrendDirection = "weakening"
)

// StrengthFactors are the four normalized component scores behind an overall
// relationship strength.
type StrengthFactors struct {
	Recency     float64 `json:"recency"`
	Frequency   float64 `json:"frequency"`
	Engagement  float64 `json:"engagement"`
	Reciprocity float64 `json:"reciprocity"`
}

// StrengthSnapshot is the cached result of a relationship strength
// computation for one person. It is a best-effort derived value: readers fall
// back to a live computation when no snapshot exists.
type StrengthSnapshot struct {
	PersonID          string          `json:"person_id"`
	Overall           float64         `json:"overall"`
	Factors           StrengthFactors `json:"factors"`
	Trend             TrendDirection  `json:"trend"`
	InteractionCount  int             `json:"interaction_count"`
	LastInteractionAt *time.Time      `json:"last_interaction_at,omitempty"`
	Summary           string          `json:"summary,omitempty"` // opaque AI text
	CalculatedAt      time.Time       `json:"calculated_at"`
}

// SyncItemError identifies one provider item that failed during a run.
type SyncItemError struct {
	ExternalID string `json:"external_id"`
	Label      string `json:"label,omitempty"`
	Message    string `json:"message"`
}

// SyncReport summarizes one sync run. A run with item errors is still a
// successful run; callers always receive counts plus the itemized error list.
type SyncReport struct {
	ConnectionID string          `json:"connection_id"`
	Provider     string          `json:"provider"`
	Created      int             `json:"created"`
	Updated      int             `json:"updated"`
	Skipped      int             `json:"skipped"`
	Errors       []SyncItemError `json:"errors,omitempty"`
	Cursor       string          `json:"cursor,omitempty"`
	StartedAt    time.Time       `json:"started_at"`
	FinishedAt   time.Time       `json:"finished_at"`
}

// WebhookResult reports the outcome of delivering one webhook payload to one
// connection.
type WebhookResult struct {
	ConnectionID string      `json:"connection_id"`
	Accepted     bool        `json:"accepted"`
	Report       *SyncReport `json:"report,omitempty"`
	Error        string      `json:"error,omitempty"`
}

// ClampScore bounds a score or confidence value to [0,1].
func ClampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
