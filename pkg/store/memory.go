package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/soundprediction/go-rolodex/pkg/types"
)

// MemoryStore is the mutex-guarded in-memory Store implementation. It is the
// reference for the engine's uniqueness invariants: duplicate creates for the
// same normalized email, canonical key, domain or external id converge onto
// the existing row instead of failing. Used for tests and embedded mode.
type MemoryStore struct {
	mu sync.RWMutex

	people        map[string]*types.Person
	peopleByEmail map[string]string // normalized email -> person id

	orgs         map[string]*types.Organization
	orgsByKey    map[string]string
	orgsByDomain map[string]string

	facts []*types.Fact

	relationships map[string]*types.Relationship

	interactions     map[string]*types.Interaction
	interactionByExt map[string]string // provider + "\x00" + external id -> interaction id

	connections map[string]*types.Connection
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		people:           make(map[string]*types.Person),
		peopleByEmail:    make(map[string]string),
		orgs:             make(map[string]*types.Organization),
		orgsByKey:        make(map[string]string),
		orgsByDomain:     make(map[string]string),
		relationships:    make(map[string]*types.Relationship),
		interactions:     make(map[string]*types.Interaction),
		interactionByExt: make(map[string]string),
		connections:      make(map[string]*types.Connection),
	}
}

func copyPerson(p *types.Person) *types.Person {
	cp := *p
	if p.Handles != nil {
		cp.Handles = make(map[string]string, len(p.Handles))
		for k, v := range p.Handles {
			cp.Handles[k] = v
		}
	}
	return &cp
}

func copyFact(f *types.Fact) *types.Fact {
	cp := *f
	return &cp
}

func copyRelationship(r *types.Relationship) *types.Relationship {
	cp := *r
	if r.Properties.Extra != nil {
		cp.Properties.Extra = make(map[string]string, len(r.Properties.Extra))
		for k, v := range r.Properties.Extra {
			cp.Properties.Extra[k] = v
		}
	}
	return &cp
}

func copyInteraction(i *types.Interaction) *types.Interaction {
	cp := *i
	cp.Participants = append([]types.Participant(nil), i.Participants...)
	cp.PersonIDs = append([]string(nil), i.PersonIDs...)
	cp.OrganizationIDs = append([]string(nil), i.OrganizationIDs...)
	return &cp
}

// GetPerson retrieves a person by id.
func (m *MemoryStore) GetPerson(ctx context.Context, id string) (*types.Person, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.people[id]
	if !ok || p.DeletedAt != nil {
		return nil, types.ErrPersonNotFound
	}
	return copyPerson(p), nil
}

// GetPersonByEmail retrieves the single non-deleted person for a normalized
// email.
func (m *MemoryStore) GetPersonByEmail(ctx context.Context, normalizedEmail string) (*types.Person, error) {
	if normalizedEmail == "" {
		return nil, types.ErrPersonNotFound
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.peopleByEmail[normalizedEmail]
	if !ok {
		return nil, types.ErrPersonNotFound
	}
	return copyPerson(m.people[id]), nil
}

// CreatePerson inserts a person. If another non-deleted person already holds
// the same normalized email, that existing row is returned instead: the
// loser of a concurrent create converges rather than erroring.
func (m *MemoryStore) CreatePerson(ctx context.Context, person *types.Person) (*types.Person, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if person.Email != "" {
		if id, ok := m.peopleByEmail[person.Email]; ok {
			return copyPerson(m.people[id]), nil
		}
	}

	cp := copyPerson(person)
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now

	m.people[cp.ID] = cp
	if cp.Email != "" {
		m.peopleByEmail[cp.Email] = cp.ID
	}
	return copyPerson(cp), nil
}

// UpdatePerson replaces a person row.
func (m *MemoryStore) UpdatePerson(ctx context.Context, person *types.Person) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.people[person.ID]
	if !ok {
		return types.ErrPersonNotFound
	}
	if person.Email != "" && person.Email != existing.Email {
		if id, taken := m.peopleByEmail[person.Email]; taken && id != person.ID {
			return &types.ConflictError{Kind: types.PersonKind, Key: person.Email}
		}
	}
	if existing.Email != "" && existing.Email != person.Email {
		delete(m.peopleByEmail, existing.Email)
	}

	cp := copyPerson(person)
	cp.UpdatedAt = time.Now().UTC()
	m.people[cp.ID] = cp
	if cp.Email != "" {
		m.peopleByEmail[cp.Email] = cp.ID
	}
	return nil
}

// GetOrganization retrieves an organization by id.
func (m *MemoryStore) GetOrganization(ctx context.Context, id string) (*types.Organization, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.orgs[id]
	if !ok {
		return nil, types.ErrOrganizationNotFound
	}
	cp := *o
	return &cp, nil
}

// GetOrganizationByDomain retrieves the organization owning a domain.
func (m *MemoryStore) GetOrganizationByDomain(ctx context.Context, domain string) (*types.Organization, error) {
	if domain == "" {
		return nil, types.ErrOrganizationNotFound
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.orgsByDomain[domain]
	if !ok {
		return nil, types.ErrOrganizationNotFound
	}
	cp := *m.orgs[id]
	return &cp, nil
}

// GetOrganizationByCanonicalKey retrieves the organization for a dedup key.
func (m *MemoryStore) GetOrganizationByCanonicalKey(ctx context.Context, key string) (*types.Organization, error) {
	if key == "" {
		return nil, types.ErrOrganizationNotFound
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.orgsByKey[key]
	if !ok {
		return nil, types.ErrOrganizationNotFound
	}
	cp := *m.orgs[id]
	return &cp, nil
}

// GetOrganizationByName retrieves an organization by case-insensitive exact
// name match.
func (m *MemoryStore) GetOrganizationByName(ctx context.Context, name string) (*types.Organization, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	lower := strings.ToLower(strings.TrimSpace(name))
	for _, o := range m.orgs {
		if strings.ToLower(o.Name) == lower {
			cp := *o
			return &cp, nil
		}
	}
	return nil, types.ErrOrganizationNotFound
}

// CreateOrganization inserts an organization, converging onto an existing row
// when the canonical key or domain is already taken.
func (m *MemoryStore) CreateOrganization(ctx context.Context, org *types.Organization) (*types.Organization, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if org.Domain != "" {
		if id, ok := m.orgsByDomain[org.Domain]; ok {
			cp := *m.orgs[id]
			return &cp, nil
		}
	}
	if org.CanonicalKey != "" {
		if id, ok := m.orgsByKey[org.CanonicalKey]; ok {
			cp := *m.orgs[id]
			return &cp, nil
		}
	}

	cp := *org
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now

	m.orgs[cp.ID] = &cp
	if cp.CanonicalKey != "" {
		m.orgsByKey[cp.CanonicalKey] = cp.ID
	}
	if cp.Domain != "" {
		m.orgsByDomain[cp.Domain] = cp.ID
	}
	out := cp
	return &out, nil
}

// UpdateOrganization replaces an organization row, keeping the domain and
// canonical key indexes unique.
func (m *MemoryStore) UpdateOrganization(ctx context.Context, org *types.Organization) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.orgs[org.ID]
	if !ok {
		return types.ErrOrganizationNotFound
	}
	if org.Domain != "" && org.Domain != existing.Domain {
		if id, taken := m.orgsByDomain[org.Domain]; taken && id != org.ID {
			return &types.ConflictError{Kind: types.OrganizationKind, Key: org.Domain}
		}
	}
	if org.CanonicalKey != "" && org.CanonicalKey != existing.CanonicalKey {
		if id, taken := m.orgsByKey[org.CanonicalKey]; taken && id != org.ID {
			return &types.ConflictError{Kind: types.OrganizationKind, Key: org.CanonicalKey}
		}
	}

	if existing.Domain != "" && existing.Domain != org.Domain {
		delete(m.orgsByDomain, existing.Domain)
	}
	if existing.CanonicalKey != "" && existing.CanonicalKey != org.CanonicalKey {
		delete(m.orgsByKey, existing.CanonicalKey)
	}

	cp := *org
	cp.UpdatedAt = time.Now().UTC()
	m.orgs[cp.ID] = &cp
	if cp.CanonicalKey != "" {
		m.orgsByKey[cp.CanonicalKey] = cp.ID
	}
	if cp.Domain != "" {
		m.orgsByDomain[cp.Domain] = cp.ID
	}
	return nil
}

// SetCurrentFact closes any current fact for the same (entity, fact type,
// key) and inserts the new fact, under one lock so no two facts for the same
// key are ever concurrently current.
func (m *MemoryStore) SetCurrentFact(ctx context.Context, fact *types.Fact) (*types.Fact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	var closed *types.Fact
	for _, f := range m.facts {
		if f.ValidUntil == nil && f.Entity == fact.Entity && f.FactType == fact.FactType && f.Key == fact.Key {
			until := now
			f.ValidUntil = &until
			closed = copyFact(f)
			break
		}
	}

	cp := copyFact(fact)
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	if cp.ValidFrom.IsZero() {
		cp.ValidFrom = now
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	cp.ValidUntil = nil
	m.facts = append(m.facts, cp)
	return closed, nil
}

// CurrentFacts returns all current facts for an entity, optionally filtered
// by fact type.
func (m *MemoryStore) CurrentFacts(ctx context.Context, entity types.NodeRef, factType string) ([]*types.Fact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*types.Fact
	for _, f := range m.facts {
		if f.ValidUntil != nil || f.Entity != entity {
			continue
		}
		if factType != "" && f.FactType != factType {
			continue
		}
		out = append(out, copyFact(f))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FactType != out[j].FactType {
			return out[i].FactType < out[j].FactType
		}
		return out[i].Key < out[j].Key
	})
	return out, nil
}

// FactHistory returns the full temporal sequence for a fact key, ordered by
// ValidFrom descending.
func (m *MemoryStore) FactHistory(ctx context.Context, entity types.NodeRef, factType, key string) ([]*types.Fact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*types.Fact
	for _, f := range m.facts {
		if f.Entity != entity || f.FactType != factType {
			continue
		}
		if key != "" && f.Key != key {
			continue
		}
		out = append(out, copyFact(f))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ValidFrom.After(out[j].ValidFrom)
	})
	return out, nil
}

// GetRelationship retrieves an edge by id.
func (m *MemoryStore) GetRelationship(ctx context.Context, id string) (*types.Relationship, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.relationships[id]
	if !ok {
		return nil, types.ErrRelationshipNotFound
	}
	return copyRelationship(r), nil
}

// GetActiveRelationship retrieves the single active edge for a triple.
func (m *MemoryStore) GetActiveRelationship(ctx context.Context, source, target types.NodeRef, relType types.RelationshipType) (*types.Relationship, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.relationships {
		if r.IsActive && r.Source == source && r.Target == target && r.Type == relType {
			return copyRelationship(r), nil
		}
	}
	return nil, types.ErrRelationshipNotFound
}

// PutRelationship inserts or replaces an edge row. Inserting a second active
// edge for an existing active triple converges onto the existing edge id.
func (m *MemoryStore) PutRelationship(ctx context.Context, rel *types.Relationship) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if rel.IsActive {
		for _, r := range m.relationships {
			if r.IsActive && r.ID != rel.ID && r.Source == rel.Source && r.Target == rel.Target && r.Type == rel.Type {
				rel.ID = r.ID
				rel.CreatedAt = r.CreatedAt
				rel.ValidFrom = r.ValidFrom
				break
			}
		}
	}

	cp := copyRelationship(rel)
	if cp.ID == "" {
		cp.ID = uuid.NewString()
		rel.ID = cp.ID
	}
	now := time.Now().UTC()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now
	m.relationships[cp.ID] = cp
	return nil
}

// DeactivateRelationship closes an edge without deleting it.
func (m *MemoryStore) DeactivateRelationship(ctx context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.relationships[id]
	if !ok {
		return types.ErrRelationshipNotFound
	}
	r.IsActive = false
	until := at.UTC()
	r.ValidUntil = &until
	r.UpdatedAt = time.Now().UTC()
	return nil
}

// QueryRelationships returns edges matching the filter, ordered by strength
// descending then most recently valid first.
func (m *MemoryStore) QueryRelationships(ctx context.Context, filter RelationshipFilter) ([]*types.Relationship, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*types.Relationship
	for _, r := range m.relationships {
		if filter.ActiveOnly && !r.IsActive {
			continue
		}
		if filter.Type != "" && r.Type != filter.Type {
			continue
		}
		if filter.MinStrength > 0 && r.Strength < filter.MinStrength {
			continue
		}
		if filter.Endpoint != nil && r.Source != *filter.Endpoint && r.Target != *filter.Endpoint {
			continue
		}
		out = append(out, copyRelationship(r))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Strength != out[j].Strength {
			return out[i].Strength > out[j].Strength
		}
		return out[i].ValidFrom.After(out[j].ValidFrom)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func interactionKey(provider, externalID string) string {
	return provider + "\x00" + externalID
}

// UpsertInteraction writes an interaction keyed by (provider, external id).
// Replaying a known item refreshes resolved entity links but reports
// created=false.
func (m *MemoryStore) UpsertInteraction(ctx context.Context, interaction *types.Interaction) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := interactionKey(interaction.Provider, interaction.ExternalID)
	if id, ok := m.interactionByExt[key]; ok {
		existing := m.interactions[id]
		cp := copyInteraction(interaction)
		cp.ID = existing.ID
		cp.CreatedAt = existing.CreatedAt
		m.interactions[id] = cp
		return false, nil
	}

	cp := copyInteraction(interaction)
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	m.interactions[cp.ID] = cp
	m.interactionByExt[key] = cp.ID
	return true, nil
}

// ListInteractions returns interactions matching the filter, newest first.
func (m *MemoryStore) ListInteractions(ctx context.Context, filter InteractionFilter) ([]*types.Interaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*types.Interaction
	for _, i := range m.interactions {
		if filter.ConnectionID != "" && i.ConnectionID != filter.ConnectionID {
			continue
		}
		if !filter.Since.IsZero() && i.OccurredAt.Before(filter.Since) {
			continue
		}
		if filter.PersonID != "" && !containsString(i.PersonIDs, filter.PersonID) {
			continue
		}
		if filter.OrganizationID != "" && !containsString(i.OrganizationIDs, filter.OrganizationID) {
			continue
		}
		out = append(out, copyInteraction(i))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].OccurredAt.After(out[j].OccurredAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

// GetConnection retrieves a connection by id.
func (m *MemoryStore) GetConnection(ctx context.Context, id string) (*types.Connection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.connections[id]
	if !ok {
		return nil, types.ErrConnectionNotFound
	}
	cp := *c
	return &cp, nil
}

// ListConnections returns connections for a provider, optionally restricted
// to webhook-enabled ones, ordered by id for determinism.
func (m *MemoryStore) ListConnections(ctx context.Context, provider string, webhookOnly bool) ([]*types.Connection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*types.Connection
	for _, c := range m.connections {
		if provider != "" && c.Provider != provider {
			continue
		}
		if webhookOnly && !c.WebhookEnabled {
			continue
		}
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// FindConnectionByProviderUser retrieves the connection bound to a provider's
// user identifier.
func (m *MemoryStore) FindConnectionByProviderUser(ctx context.Context, provider, providerUserID string) (*types.Connection, error) {
	if providerUserID == "" {
		return nil, types.ErrConnectionNotFound
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.connections {
		if c.Provider == provider && c.ProviderUserID == providerUserID {
			cp := *c
			return &cp, nil
		}
	}
	return nil, types.ErrConnectionNotFound
}

// CreateConnection inserts a connection row.
func (m *MemoryStore) CreateConnection(ctx context.Context, conn *types.Connection) (*types.Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *conn
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now
	m.connections[cp.ID] = &cp
	out := cp
	return &out, nil
}

// UpdateConnection replaces a connection row. The cursor and last-sync
// timestamp are managed by AdvanceCursor and preserved here.
func (m *MemoryStore) UpdateConnection(ctx context.Context, conn *types.Connection) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.connections[conn.ID]
	if !ok {
		return types.ErrConnectionNotFound
	}
	cp := *conn
	cp.Cursor = existing.Cursor
	cp.LastSyncAt = existing.LastSyncAt
	cp.UpdatedAt = time.Now().UTC()
	m.connections[cp.ID] = &cp
	return nil
}

// AdvanceCursor moves a connection's cursor forward. Timestamp-shaped cursors
// are compared chronologically and an older value is ignored, so a slow
// concurrent run can never regress a cursor committed by a faster one.
func (m *MemoryStore) AdvanceCursor(ctx context.Context, connectionID, cursor string, syncedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.connections[connectionID]
	if !ok {
		return types.ErrConnectionNotFound
	}
	if !cursorAdvances(c.Cursor, cursor) {
		// Still record that a sync ran.
		at := syncedAt.UTC()
		c.LastSyncAt = &at
		return nil
	}
	c.Cursor = cursor
	at := syncedAt.UTC()
	c.LastSyncAt = &at
	c.UpdatedAt = time.Now().UTC()
	return nil
}

// cursorAdvances reports whether next moves the cursor forward relative to
// current. Cursors that parse as RFC 3339 timestamps are ordered in time;
// opaque tokens only advance from an empty cursor or to a different value.
func cursorAdvances(current, next string) bool {
	if next == "" || next == current {
		return false
	}
	if current == "" {
		return true
	}
	curT, errCur := time.Parse(time.RFC3339Nano, current)
	nextT, errNext := time.Parse(time.RFC3339Nano, next)
	if errCur == nil && errNext == nil {
		return nextT.After(curT)
	}
	return true
}

// CreateIndices is a no-op for the in-memory store; indexes are maintained
// inline.
func (m *MemoryStore) CreateIndices(ctx context.Context) error {
	return nil
}

// Close releases nothing for the in-memory store.
func (m *MemoryStore) Close(ctx context.Context) error {
	return nil
}
