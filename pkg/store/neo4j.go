package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/db"

	"github.com/soundprediction/go-rolodex/pkg/types"
)

// Neo4jStore implements Store on a Neo4j database. People, organizations,
// facts, interactions and connections are nodes; relationships are RELATES
// edges between entity nodes. Uniqueness invariants are enforced by the
// constraints installed in CreateIndices plus MERGE-based upserts, so two
// concurrent writers converge on a single row.
type Neo4jStore struct {
	client   neo4j.DriverWithContext
	database string
}

// NewNeo4jStore creates a store backed by a Neo4j instance.
func NewNeo4jStore(uri, username, password, database string) (*Neo4jStore, error) {
	client, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}
	if database == "" {
		database = "neo4j"
	}
	return &Neo4jStore{client: client, database: database}, nil
}

func (s *Neo4jStore) read(ctx context.Context, work neo4j.ManagedTransactionWork) (any, error) {
	session := s.client.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database})
	defer session.Close(ctx)
	return session.ExecuteRead(ctx, work)
}

func (s *Neo4jStore) write(ctx context.Context, work neo4j.ManagedTransactionWork) (any, error) {
	session := s.client.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database})
	defer session.Close(ctx)
	return session.ExecuteWrite(ctx, work)
}

func asString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func asBool(v any) bool {
	if b, ok := v.(bool); ok {
		return b
	}
	return false
}

func asFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	}
	return 0
}

func asTime(v any) time.Time {
	if t, ok := v.(time.Time); ok {
		return t
	}
	if s, ok := v.(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func asTimePtr(v any) *time.Time {
	t := asTime(v)
	if t.IsZero() {
		return nil
	}
	return &t
}

// timeParam renders timestamps as fixed-width strings so the Cypher string
// comparisons and ORDER BY clauses over them are chronological.
func timeParam(t time.Time) string {
	return t.UTC().Format(CursorTimeFormat)
}

func timePtrParam(t *time.Time) any {
	if t == nil {
		return nil
	}
	return timeParam(*t)
}

func jsonParam(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

func personFromProps(p map[string]any) *types.Person {
	person := &types.Person{
		ID:          asString(p["id"]),
		GivenName:   asString(p["given_name"]),
		FamilyName:  asString(p["family_name"]),
		Email:       asString(p["email"]),
		Phone:       asString(p["phone"]),
		City:        asString(p["city"]),
		Country:     asString(p["country"]),
		PrivacyTier: asString(p["privacy_tier"]),
		CreatedAt:   asTime(p["created_at"]),
		UpdatedAt:   asTime(p["updated_at"]),
		DeletedAt:   asTimePtr(p["deleted_at"]),
	}
	if raw := asString(p["handles"]); raw != "" {
		_ = json.Unmarshal([]byte(raw), &person.Handles)
	}
	return person
}

func orgFromProps(p map[string]any) *types.Organization {
	return &types.Organization{
		ID:           asString(p["id"]),
		Name:         asString(p["name"]),
		CanonicalKey: asString(p["canonical_key"]),
		Domain:       asString(p["domain"]),
		OrgType:      asString(p["org_type"]),
		Industry:     asString(p["industry"]),
		CreatedAt:    asTime(p["created_at"]),
		UpdatedAt:    asTime(p["updated_at"]),
	}
}

func factFromProps(p map[string]any) *types.Fact {
	return &types.Fact{
		ID: asString(p["id"]),
		Entity: types.NodeRef{
			Kind: types.NodeKind(asString(p["entity_kind"])),
			ID:   asString(p["entity_id"]),
		},
		FactType: asString(p["fact_type"]),
		Key:      asString(p["key"]),
		Value:    asString(p["value"]),
		Source: types.Provenance{
			SourceType: asString(p["source_type"]),
			SourceID:   asString(p["source_id"]),
		},
		Confidence: asFloat(p["confidence"]),
		ValidFrom:  asTime(p["valid_from"]),
		ValidUntil: asTimePtr(p["valid_until"]),
		CreatedAt:  asTime(p["created_at"]),
	}
}

func relationshipFromProps(p map[string]any) *types.Relationship {
	rel := &types.Relationship{
		ID: asString(p["id"]),
		Source: types.NodeRef{
			Kind: types.NodeKind(asString(p["source_kind"])),
			ID:   asString(p["source_id"]),
		},
		Target: types.NodeRef{
			Kind: types.NodeKind(asString(p["target_kind"])),
			ID:   asString(p["target_id"]),
		},
		Type:       types.RelationshipType(asString(p["rel_type"])),
		Strength:   asFloat(p["strength"]),
		Confidence: asFloat(p["confidence"]),
		SourceOf: types.Provenance{
			SourceType: asString(p["source_type"]),
			SourceID:   asString(p["source_of_id"]),
		},
		ExternalRef: asString(p["external_ref"]),
		IsActive:    asBool(p["is_active"]),
		ValidFrom:   asTime(p["valid_from"]),
		ValidUntil:  asTimePtr(p["valid_until"]),
		CreatedAt:   asTime(p["created_at"]),
		UpdatedAt:   asTime(p["updated_at"]),
	}
	if raw := asString(p["properties"]); raw != "" {
		_ = json.Unmarshal([]byte(raw), &rel.Properties)
	}
	return rel
}

func interactionFromProps(p map[string]any) *types.Interaction {
	it := &types.Interaction{
		ID:           asString(p["id"]),
		Provider:     asString(p["provider"]),
		ExternalID:   asString(p["external_id"]),
		ConnectionID: asString(p["connection_id"]),
		ThreadID:     asString(p["thread_id"]),
		Direction:    types.Direction(asString(p["direction"])),
		Subject:      asString(p["subject"]),
		Snippet:      asString(p["snippet"]),
		OccurredAt:   asTime(p["occurred_at"]),
		CreatedAt:    asTime(p["created_at"]),
	}
	if raw := asString(p["participants"]); raw != "" {
		_ = json.Unmarshal([]byte(raw), &it.Participants)
	}
	if raw := asString(p["person_ids"]); raw != "" {
		_ = json.Unmarshal([]byte(raw), &it.PersonIDs)
	}
	if raw := asString(p["organization_ids"]); raw != "" {
		_ = json.Unmarshal([]byte(raw), &it.OrganizationIDs)
	}
	return it
}

func connectionFromProps(p map[string]any) *types.Connection {
	return &types.Connection{
		ID:             asString(p["id"]),
		UserID:         asString(p["user_id"]),
		Provider:       asString(p["provider"]),
		ProviderUserID: asString(p["provider_user_id"]),
		CredentialRef:  asString(p["credential_ref"]),
		Cursor:         asString(p["cursor"]),
		LastSyncAt:     asTimePtr(p["last_sync_at"]),
		WebhookEnabled: asBool(p["webhook_enabled"]),
		WebhookSecret:  asString(p["webhook_secret"]),
		Status:         asString(p["status"]),
		LastError:      asString(p["last_error"]),
		CreatedAt:      asTime(p["created_at"]),
		UpdatedAt:      asTime(p["updated_at"]),
	}
}

// singleProps runs a query expected to return one node/map column named "n"
// and returns its properties, or notFound when nothing matched.
func (s *Neo4jStore) singleProps(ctx context.Context, query string, params map[string]any, notFound error) (map[string]any, error) {
	result, err := s.read(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		return records, nil
	})
	if err != nil {
		return nil, err
	}
	records := result.([]*db.Record)
	if len(records) == 0 {
		return nil, notFound
	}
	value, found := records[0].Get("n")
	if !found {
		return nil, notFound
	}
	return nodeProps(value), nil
}

func nodeProps(value any) map[string]any {
	switch v := value.(type) {
	case neo4j.Node:
		return v.Props
	case map[string]any:
		return v
	}
	return map[string]any{}
}

func (s *Neo4jStore) collectProps(ctx context.Context, query string, params map[string]any) ([]map[string]any, error) {
	result, err := s.read(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, err
	}
	records := result.([]*db.Record)
	out := make([]map[string]any, 0, len(records))
	for _, record := range records {
		if value, found := record.Get("n"); found {
			out = append(out, nodeProps(value))
		}
	}
	return out, nil
}

// GetPerson retrieves a person by id.
func (s *Neo4jStore) GetPerson(ctx context.Context, id string) (*types.Person, error) {
	props, err := s.singleProps(ctx, `
		MATCH (n:Person {id: $id})
		WHERE n.deleted_at IS NULL
		RETURN n
	`, map[string]any{"id": id}, types.ErrPersonNotFound)
	if err != nil {
		return nil, err
	}
	return personFromProps(props), nil
}

// GetPersonByEmail retrieves the single non-deleted person for a normalized
// email.
func (s *Neo4jStore) GetPersonByEmail(ctx context.Context, normalizedEmail string) (*types.Person, error) {
	if normalizedEmail == "" {
		return nil, types.ErrPersonNotFound
	}
	props, err := s.singleProps(ctx, `
		MATCH (n:Person {email: $email})
		WHERE n.deleted_at IS NULL
		RETURN n
	`, map[string]any{"email": normalizedEmail}, types.ErrPersonNotFound)
	if err != nil {
		return nil, err
	}
	return personFromProps(props), nil
}

// CreatePerson inserts a person, converging on an existing row when the
// normalized email is already taken. The MERGE on email makes concurrent
// creates race-safe under the email uniqueness constraint.
func (s *Neo4jStore) CreatePerson(ctx context.Context, person *types.Person) (*types.Person, error) {
	if person.Email != "" {
		if existing, err := s.GetPersonByEmail(ctx, person.Email); err == nil {
			return existing, nil
		}
	}

	now := time.Now().UTC()
	id := person.ID
	if id == "" {
		id = newID()
	}

	query := `
		CREATE (n:Person {
			id: $id, given_name: $given_name, family_name: $family_name,
			email: $email, phone: $phone, city: $city, country: $country,
			handles: $handles, privacy_tier: $privacy_tier,
			created_at: $created_at, updated_at: $updated_at
		})
		RETURN n
	`
	if person.Email != "" {
		query = `
			MERGE (n:Person {email: $email})
			ON CREATE SET
				n.id = $id, n.given_name = $given_name, n.family_name = $family_name,
				n.phone = $phone, n.city = $city, n.country = $country,
				n.handles = $handles, n.privacy_tier = $privacy_tier,
				n.created_at = $created_at, n.updated_at = $updated_at
			RETURN n
		`
	}

	result, err := s.write(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, map[string]any{
			"id":           id,
			"given_name":   person.GivenName,
			"family_name":  person.FamilyName,
			"email":        person.Email,
			"phone":        person.Phone,
			"city":         person.City,
			"country":      person.Country,
			"handles":      jsonParam(person.Handles),
			"privacy_tier": person.PrivacyTier,
			"created_at":   timeParam(now),
			"updated_at":   timeParam(now),
		})
		if err != nil {
			return nil, err
		}
		return res.Single(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create person: %w", err)
	}
	value, _ := result.(*db.Record).Get("n")
	return personFromProps(nodeProps(value)), nil
}

// UpdatePerson replaces a person's mutable attributes.
func (s *Neo4jStore) UpdatePerson(ctx context.Context, person *types.Person) error {
	_, err := s.write(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MATCH (n:Person {id: $id})
			SET n.given_name = $given_name, n.family_name = $family_name,
				n.email = $email, n.phone = $phone, n.city = $city,
				n.country = $country, n.handles = $handles,
				n.privacy_tier = $privacy_tier, n.updated_at = $updated_at
			RETURN n.id
		`, map[string]any{
			"id":           person.ID,
			"given_name":   person.GivenName,
			"family_name":  person.FamilyName,
			"email":        person.Email,
			"phone":        person.Phone,
			"city":         person.City,
			"country":      person.Country,
			"handles":      jsonParam(person.Handles),
			"privacy_tier": person.PrivacyTier,
			"updated_at":   timeParam(time.Now()),
		})
		if err != nil {
			return nil, err
		}
		return res.Single(ctx)
	})
	if err != nil {
		return types.ErrPersonNotFound
	}
	return nil
}

// GetOrganization retrieves an organization by id.
func (s *Neo4jStore) GetOrganization(ctx context.Context, id string) (*types.Organization, error) {
	props, err := s.singleProps(ctx, `
		MATCH (n:Organization {id: $id}) RETURN n
	`, map[string]any{"id": id}, types.ErrOrganizationNotFound)
	if err != nil {
		return nil, err
	}
	return orgFromProps(props), nil
}

// GetOrganizationByDomain retrieves the organization owning a domain.
func (s *Neo4jStore) GetOrganizationByDomain(ctx context.Context, domain string) (*types.Organization, error) {
	if domain == "" {
		return nil, types.ErrOrganizationNotFound
	}
	props, err := s.singleProps(ctx, `
		MATCH (n:Organization {domain: $domain}) RETURN n
	`, map[string]any{"domain": domain}, types.ErrOrganizationNotFound)
	if err != nil {
		return nil, err
	}
	return orgFromProps(props), nil
}

// GetOrganizationByCanonicalKey retrieves the organization for a dedup key.
func (s *Neo4jStore) GetOrganizationByCanonicalKey(ctx context.Context, key string) (*types.Organization, error) {
	if key == "" {
		return nil, types.ErrOrganizationNotFound
	}
	props, err := s.singleProps(ctx, `
		MATCH (n:Organization {canonical_key: $key}) RETURN n
	`, map[string]any{"key": key}, types.ErrOrganizationNotFound)
	if err != nil {
		return nil, err
	}
	return orgFromProps(props), nil
}

// GetOrganizationByName retrieves an organization by case-insensitive exact
// name match.
func (s *Neo4jStore) GetOrganizationByName(ctx context.Context, name string) (*types.Organization, error) {
	props, err := s.singleProps(ctx, `
		MATCH (n:Organization)
		WHERE toLower(n.name) = toLower($name)
		RETURN n LIMIT 1
	`, map[string]any{"name": name}, types.ErrOrganizationNotFound)
	if err != nil {
		return nil, err
	}
	return orgFromProps(props), nil
}

// CreateOrganization inserts an organization, converging on an existing row
// when the canonical key or domain is taken.
func (s *Neo4jStore) CreateOrganization(ctx context.Context, org *types.Organization) (*types.Organization, error) {
	if org.Domain != "" {
		if existing, err := s.GetOrganizationByDomain(ctx, org.Domain); err == nil {
			return existing, nil
		}
	}
	if existing, err := s.GetOrganizationByCanonicalKey(ctx, org.CanonicalKey); err == nil {
		return existing, nil
	}

	now := time.Now().UTC()
	id := org.ID
	if id == "" {
		id = newID()
	}
	result, err := s.write(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MERGE (n:Organization {canonical_key: $canonical_key})
			ON CREATE SET
				n.id = $id, n.name = $name, n.domain = $domain,
				n.org_type = $org_type, n.industry = $industry,
				n.created_at = $created_at, n.updated_at = $updated_at
			RETURN n
		`, map[string]any{
			"id":            id,
			"name":          org.Name,
			"canonical_key": org.CanonicalKey,
			"domain":        org.Domain,
			"org_type":      org.OrgType,
			"industry":      org.Industry,
			"created_at":    timeParam(now),
			"updated_at":    timeParam(now),
		})
		if err != nil {
			return nil, err
		}
		return res.Single(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create organization: %w", err)
	}
	value, _ := result.(*db.Record).Get("n")
	return orgFromProps(nodeProps(value)), nil
}

// UpdateOrganization replaces an organization's mutable attributes.
func (s *Neo4jStore) UpdateOrganization(ctx context.Context, org *types.Organization) error {
	_, err := s.write(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MATCH (n:Organization {id: $id})
			SET n.name = $name, n.canonical_key = $canonical_key,
				n.domain = $domain, n.org_type = $org_type,
				n.industry = $industry, n.updated_at = $updated_at
			RETURN n.id
		`, map[string]any{
			"id":            org.ID,
			"name":          org.Name,
			"canonical_key": org.CanonicalKey,
			"domain":        org.Domain,
			"org_type":      org.OrgType,
			"industry":      org.Industry,
			"updated_at":    timeParam(time.Now()),
		})
		if err != nil {
			return nil, err
		}
		return res.Single(ctx)
	})
	if err != nil {
		return types.ErrOrganizationNotFound
	}
	return nil
}

// SetCurrentFact closes the previous current fact for the key and inserts
// the new one inside a single write transaction.
func (s *Neo4jStore) SetCurrentFact(ctx context.Context, fact *types.Fact) (*types.Fact, error) {
	now := time.Now().UTC()
	id := fact.ID
	if id == "" {
		id = newID()
	}
	validFrom := fact.ValidFrom
	if validFrom.IsZero() {
		validFrom = now
	}

	result, err := s.write(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			OPTIONAL MATCH (prev:Fact {
				entity_kind: $entity_kind, entity_id: $entity_id,
				fact_type: $fact_type, key: $key
			})
			WHERE prev.valid_until IS NULL
			SET prev.valid_until = $now
			WITH collect(prev) AS closed
			CREATE (f:Fact {
				id: $id, entity_kind: $entity_kind, entity_id: $entity_id,
				fact_type: $fact_type, key: $key, value: $value,
				source_type: $source_type, source_id: $source_id,
				confidence: $confidence, valid_from: $valid_from,
				created_at: $now
			})
			RETURN closed
		`, map[string]any{
			"id":          id,
			"entity_kind": string(fact.Entity.Kind),
			"entity_id":   fact.Entity.ID,
			"fact_type":   fact.FactType,
			"key":         fact.Key,
			"value":       fact.Value,
			"source_type": fact.Source.SourceType,
			"source_id":   fact.Source.SourceID,
			"confidence":  fact.Confidence,
			"valid_from":  timeParam(validFrom),
			"now":         timeParam(now),
		})
		if err != nil {
			return nil, err
		}
		return res.Single(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to set current fact: %w", err)
	}

	value, _ := result.(*db.Record).Get("closed")
	if nodes, ok := value.([]any); ok && len(nodes) > 0 {
		closed := factFromProps(nodeProps(nodes[0]))
		return closed, nil
	}
	return nil, nil
}

// CurrentFacts returns all current facts for an entity.
func (s *Neo4jStore) CurrentFacts(ctx context.Context, entity types.NodeRef, factType string) ([]*types.Fact, error) {
	query := `
		MATCH (n:Fact {entity_kind: $entity_kind, entity_id: $entity_id})
		WHERE n.valid_until IS NULL
	`
	params := map[string]any{"entity_kind": string(entity.Kind), "entity_id": entity.ID}
	if factType != "" {
		query += ` AND n.fact_type = $fact_type`
		params["fact_type"] = factType
	}
	query += ` RETURN n ORDER BY n.fact_type, n.key`

	propsList, err := s.collectProps(ctx, query, params)
	if err != nil {
		return nil, err
	}
	facts := make([]*types.Fact, 0, len(propsList))
	for _, props := range propsList {
		facts = append(facts, factFromProps(props))
	}
	return facts, nil
}

// FactHistory returns the full temporal sequence for a fact key, newest
// belief first.
func (s *Neo4jStore) FactHistory(ctx context.Context, entity types.NodeRef, factType, key string) ([]*types.Fact, error) {
	query := `
		MATCH (n:Fact {entity_kind: $entity_kind, entity_id: $entity_id, fact_type: $fact_type})
	`
	params := map[string]any{
		"entity_kind": string(entity.Kind),
		"entity_id":   entity.ID,
		"fact_type":   factType,
	}
	if key != "" {
		query += ` WHERE n.key = $key`
		params["key"] = key
	}
	query += ` RETURN n ORDER BY n.valid_from DESC`

	propsList, err := s.collectProps(ctx, query, params)
	if err != nil {
		return nil, err
	}
	facts := make([]*types.Fact, 0, len(propsList))
	for _, props := range propsList {
		facts = append(facts, factFromProps(props))
	}
	return facts, nil
}

// relationshipReturn projects a RELATES edge and its endpoints into the flat
// map relationshipFromProps expects.
const relationshipReturn = `
	RETURN {
		id: r.id, rel_type: r.rel_type,
		source_kind: r.source_kind, source_id: r.source_id,
		target_kind: r.target_kind, target_id: r.target_id,
		properties: r.properties, strength: r.strength, confidence: r.confidence,
		source_type: r.source_type, source_of_id: r.source_of_id,
		external_ref: r.external_ref, is_active: r.is_active,
		valid_from: r.valid_from, valid_until: r.valid_until,
		created_at: r.created_at, updated_at: r.updated_at
	} AS n
`

// GetRelationship retrieves an edge by id.
func (s *Neo4jStore) GetRelationship(ctx context.Context, id string) (*types.Relationship, error) {
	props, err := s.singleProps(ctx, `
		MATCH ()-[r:RELATES {id: $id}]->()
	`+relationshipReturn, map[string]any{"id": id}, types.ErrRelationshipNotFound)
	if err != nil {
		return nil, err
	}
	return relationshipFromProps(props), nil
}

// GetActiveRelationship retrieves the single active edge for a triple.
func (s *Neo4jStore) GetActiveRelationship(ctx context.Context, source, target types.NodeRef, relType types.RelationshipType) (*types.Relationship, error) {
	props, err := s.singleProps(ctx, `
		MATCH ()-[r:RELATES {
			source_kind: $source_kind, source_id: $source_id,
			target_kind: $target_kind, target_id: $target_id,
			rel_type: $rel_type, is_active: true
		}]->()
	`+relationshipReturn+` LIMIT 1`, map[string]any{
		"source_kind": string(source.Kind),
		"source_id":   source.ID,
		"target_kind": string(target.Kind),
		"target_id":   target.ID,
		"rel_type":    string(relType),
	}, types.ErrRelationshipNotFound)
	if err != nil {
		return nil, err
	}
	return relationshipFromProps(props), nil
}

func entityLabel(kind types.NodeKind) string {
	if kind == types.OrganizationKind {
		return "Organization"
	}
	return "Person"
}

// PutRelationship upserts an edge. The MERGE key is the (source, target,
// type) triple for active edges, so concurrent upserts converge.
func (s *Neo4jStore) PutRelationship(ctx context.Context, rel *types.Relationship) error {
	now := time.Now().UTC()
	if rel.ID == "" {
		rel.ID = newID()
	}
	if rel.ValidFrom.IsZero() {
		rel.ValidFrom = now
	}
	if rel.CreatedAt.IsZero() {
		rel.CreatedAt = now
	}

	query := fmt.Sprintf(`
		MATCH (src:%s {id: $source_id}), (dst:%s {id: $target_id})
		MERGE (src)-[r:RELATES {
			source_kind: $source_kind, source_id: $source_id,
			target_kind: $target_kind, target_id: $target_id,
			rel_type: $rel_type, is_active: $is_active
		}]->(dst)
		ON CREATE SET r.id = $id, r.created_at = $created_at, r.valid_from = $valid_from
		SET r.properties = $properties, r.strength = $strength,
			r.confidence = $confidence, r.source_type = $source_type,
			r.source_of_id = $source_of_id, r.external_ref = $external_ref,
			r.valid_until = $valid_until, r.updated_at = $updated_at
		RETURN r.id AS id
	`, entityLabel(rel.Source.Kind), entityLabel(rel.Target.Kind))

	result, err := s.write(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, map[string]any{
			"id":           rel.ID,
			"source_kind":  string(rel.Source.Kind),
			"source_id":    rel.Source.ID,
			"target_kind":  string(rel.Target.Kind),
			"target_id":    rel.Target.ID,
			"rel_type":     string(rel.Type),
			"is_active":    rel.IsActive,
			"properties":   jsonParam(rel.Properties),
			"strength":     rel.Strength,
			"confidence":   rel.Confidence,
			"source_type":  rel.SourceOf.SourceType,
			"source_of_id": rel.SourceOf.SourceID,
			"external_ref": rel.ExternalRef,
			"valid_from":   timeParam(rel.ValidFrom),
			"valid_until":  timePtrParam(rel.ValidUntil),
			"created_at":   timeParam(rel.CreatedAt),
			"updated_at":   timeParam(now),
		})
		if err != nil {
			return nil, err
		}
		return res.Single(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to upsert relationship: %w", err)
	}
	if value, found := result.(*db.Record).Get("id"); found {
		rel.ID = asString(value)
	}
	return nil
}

// DeactivateRelationship closes an edge without deleting it.
func (s *Neo4jStore) DeactivateRelationship(ctx context.Context, id string, at time.Time) error {
	_, err := s.write(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MATCH ()-[r:RELATES {id: $id}]->()
			SET r.is_active = false, r.valid_until = $at, r.updated_at = $now
			RETURN r.id
		`, map[string]any{
			"id":  id,
			"at":  timeParam(at),
			"now": timeParam(time.Now()),
		})
		if err != nil {
			return nil, err
		}
		return res.Single(ctx)
	})
	if err != nil {
		return types.ErrRelationshipNotFound
	}
	return nil
}

// QueryRelationships returns edges matching the filter, strongest first.
func (s *Neo4jStore) QueryRelationships(ctx context.Context, filter RelationshipFilter) ([]*types.Relationship, error) {
	query := `MATCH ()-[r:RELATES]->() WHERE 1 = 1`
	params := map[string]any{}
	if filter.ActiveOnly {
		query += ` AND r.is_active = true`
	}
	if filter.Type != "" {
		query += ` AND r.rel_type = $rel_type`
		params["rel_type"] = string(filter.Type)
	}
	if filter.MinStrength > 0 {
		query += ` AND r.strength >= $min_strength`
		params["min_strength"] = filter.MinStrength
	}
	if filter.Endpoint != nil {
		query += ` AND (
			(r.source_kind = $ep_kind AND r.source_id = $ep_id) OR
			(r.target_kind = $ep_kind AND r.target_id = $ep_id)
		)`
		params["ep_kind"] = string(filter.Endpoint.Kind)
		params["ep_id"] = filter.Endpoint.ID
	}
	query += relationshipReturn + ` ORDER BY r.strength DESC, r.valid_from DESC`
	if filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, filter.Limit)
	}

	propsList, err := s.collectProps(ctx, query, params)
	if err != nil {
		return nil, err
	}
	rels := make([]*types.Relationship, 0, len(propsList))
	for _, props := range propsList {
		rels = append(rels, relationshipFromProps(props))
	}
	return rels, nil
}

// UpsertInteraction writes an interaction keyed by (provider, external id).
func (s *Neo4jStore) UpsertInteraction(ctx context.Context, interaction *types.Interaction) (bool, error) {
	now := time.Now().UTC()
	id := interaction.ID
	if id == "" {
		id = newID()
	}

	result, err := s.write(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MERGE (n:Interaction {provider: $provider, external_id: $external_id})
			ON CREATE SET n.id = $id, n.created_at = $now, n.was_created = true
			ON MATCH SET n.was_created = false
			SET n.connection_id = $connection_id, n.thread_id = $thread_id,
				n.direction = $direction, n.participants = $participants,
				n.person_ids = $person_ids, n.organization_ids = $organization_ids,
				n.subject = $subject, n.snippet = $snippet,
				n.occurred_at = $occurred_at
			RETURN n.was_created AS created
		`, map[string]any{
			"id":               id,
			"provider":         interaction.Provider,
			"external_id":      interaction.ExternalID,
			"connection_id":    interaction.ConnectionID,
			"thread_id":        interaction.ThreadID,
			"direction":        string(interaction.Direction),
			"participants":     jsonParam(interaction.Participants),
			"person_ids":       jsonParam(interaction.PersonIDs),
			"organization_ids": jsonParam(interaction.OrganizationIDs),
			"subject":          interaction.Subject,
			"snippet":          interaction.Snippet,
			"occurred_at":      timeParam(interaction.OccurredAt),
			"now":              timeParam(now),
		})
		if err != nil {
			return nil, err
		}
		return res.Single(ctx)
	})
	if err != nil {
		return false, fmt.Errorf("failed to upsert interaction: %w", err)
	}
	value, _ := result.(*db.Record).Get("created")
	return asBool(value), nil
}

// ListInteractions returns interactions matching the filter, newest first.
func (s *Neo4jStore) ListInteractions(ctx context.Context, filter InteractionFilter) ([]*types.Interaction, error) {
	query := `MATCH (n:Interaction) WHERE 1 = 1`
	params := map[string]any{}
	if filter.ConnectionID != "" {
		query += ` AND n.connection_id = $connection_id`
		params["connection_id"] = filter.ConnectionID
	}
	if !filter.Since.IsZero() {
		query += ` AND n.occurred_at >= $since`
		params["since"] = timeParam(filter.Since)
	}
	if filter.PersonID != "" {
		query += ` AND n.person_ids CONTAINS $person_id`
		params["person_id"] = jsonQuoted(filter.PersonID)
	}
	if filter.OrganizationID != "" {
		query += ` AND n.organization_ids CONTAINS $organization_id`
		params["organization_id"] = jsonQuoted(filter.OrganizationID)
	}
	query += ` RETURN n ORDER BY n.occurred_at DESC`
	if filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, filter.Limit)
	}

	propsList, err := s.collectProps(ctx, query, params)
	if err != nil {
		return nil, err
	}
	interactions := make([]*types.Interaction, 0, len(propsList))
	for _, props := range propsList {
		interactions = append(interactions, interactionFromProps(props))
	}
	return interactions, nil
}

// jsonQuoted wraps an id the way it appears inside a JSON-encoded string
// array, so CONTAINS matches whole ids only.
func jsonQuoted(id string) string {
	return `"` + id + `"`
}

// GetConnection retrieves a connection by id.
func (s *Neo4jStore) GetConnection(ctx context.Context, id string) (*types.Connection, error) {
	props, err := s.singleProps(ctx, `
		MATCH (n:Connection {id: $id}) RETURN n
	`, map[string]any{"id": id}, types.ErrConnectionNotFound)
	if err != nil {
		return nil, err
	}
	return connectionFromProps(props), nil
}

// ListConnections returns connections for a provider, ordered by id.
func (s *Neo4jStore) ListConnections(ctx context.Context, provider string, webhookOnly bool) ([]*types.Connection, error) {
	query := `MATCH (n:Connection) WHERE 1 = 1`
	params := map[string]any{}
	if provider != "" {
		query += ` AND n.provider = $provider`
		params["provider"] = provider
	}
	if webhookOnly {
		query += ` AND n.webhook_enabled = true`
	}
	query += ` RETURN n ORDER BY n.id`

	propsList, err := s.collectProps(ctx, query, params)
	if err != nil {
		return nil, err
	}
	conns := make([]*types.Connection, 0, len(propsList))
	for _, props := range propsList {
		conns = append(conns, connectionFromProps(props))
	}
	return conns, nil
}

// FindConnectionByProviderUser retrieves the connection bound to a provider's
// user identifier.
func (s *Neo4jStore) FindConnectionByProviderUser(ctx context.Context, provider, providerUserID string) (*types.Connection, error) {
	if providerUserID == "" {
		return nil, types.ErrConnectionNotFound
	}
	props, err := s.singleProps(ctx, `
		MATCH (n:Connection {provider: $provider, provider_user_id: $provider_user_id})
		RETURN n LIMIT 1
	`, map[string]any{
		"provider":         provider,
		"provider_user_id": providerUserID,
	}, types.ErrConnectionNotFound)
	if err != nil {
		return nil, err
	}
	return connectionFromProps(props), nil
}

// CreateConnection inserts a connection row.
func (s *Neo4jStore) CreateConnection(ctx context.Context, conn *types.Connection) (*types.Connection, error) {
	now := time.Now().UTC()
	id := conn.ID
	if id == "" {
		id = newID()
	}
	result, err := s.write(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			CREATE (n:Connection {
				id: $id, user_id: $user_id, provider: $provider,
				provider_user_id: $provider_user_id, credential_ref: $credential_ref,
				cursor: $cursor, webhook_enabled: $webhook_enabled,
				webhook_secret: $webhook_secret, status: $status,
				created_at: $now, updated_at: $now
			})
			RETURN n
		`, map[string]any{
			"id":               id,
			"user_id":          conn.UserID,
			"provider":         conn.Provider,
			"provider_user_id": conn.ProviderUserID,
			"credential_ref":   conn.CredentialRef,
			"cursor":           conn.Cursor,
			"webhook_enabled":  conn.WebhookEnabled,
			"webhook_secret":   conn.WebhookSecret,
			"status":           conn.Status,
			"now":              timeParam(now),
		})
		if err != nil {
			return nil, err
		}
		return res.Single(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create connection: %w", err)
	}
	value, _ := result.(*db.Record).Get("n")
	return connectionFromProps(nodeProps(value)), nil
}

// UpdateConnection replaces a connection's mutable attributes. The cursor is
// managed by AdvanceCursor and left untouched here.
func (s *Neo4jStore) UpdateConnection(ctx context.Context, conn *types.Connection) error {
	_, err := s.write(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MATCH (n:Connection {id: $id})
			SET n.user_id = $user_id, n.provider_user_id = $provider_user_id,
				n.credential_ref = $credential_ref,
				n.webhook_enabled = $webhook_enabled,
				n.webhook_secret = $webhook_secret,
				n.status = $status, n.last_error = $last_error,
				n.updated_at = $now
			RETURN n.id
		`, map[string]any{
			"id":               conn.ID,
			"user_id":          conn.UserID,
			"provider_user_id": conn.ProviderUserID,
			"credential_ref":   conn.CredentialRef,
			"webhook_enabled":  conn.WebhookEnabled,
			"webhook_secret":   conn.WebhookSecret,
			"status":           conn.Status,
			"last_error":       conn.LastError,
			"now":              timeParam(time.Now()),
		})
		if err != nil {
			return nil, err
		}
		return res.Single(ctx)
	})
	if err != nil {
		return types.ErrConnectionNotFound
	}
	return nil
}

// AdvanceCursor moves a connection's cursor forward inside one write
// transaction; an older cursor is ignored. The string comparison in the
// CASE expression is chronological because timestamp cursors are rendered
// in CursorTimeFormat, whose fixed-width fraction makes lexical order match
// time order.
func (s *Neo4jStore) AdvanceCursor(ctx context.Context, connectionID, cursor string, syncedAt time.Time) error {
	_, err := s.write(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MATCH (n:Connection {id: $id})
			SET n.last_sync_at = $synced_at,
				n.cursor = CASE
					WHEN n.cursor IS NULL OR n.cursor = '' OR $cursor > n.cursor
					THEN $cursor ELSE n.cursor
				END,
				n.updated_at = $now
			RETURN n.id
		`, map[string]any{
			"id":        connectionID,
			"cursor":    cursor,
			"synced_at": timeParam(syncedAt),
			"now":       timeParam(time.Now()),
		})
		if err != nil {
			return nil, err
		}
		return res.Single(ctx)
	})
	if err != nil {
		return types.ErrConnectionNotFound
	}
	return nil
}

// CreateIndices installs the uniqueness constraints and lookup indices the
// engine's invariants rely on.
func (s *Neo4jStore) CreateIndices(ctx context.Context) error {
	statements := []string{
		`CREATE CONSTRAINT person_id IF NOT EXISTS FOR (n:Person) REQUIRE n.id IS UNIQUE`,
		`CREATE CONSTRAINT person_email IF NOT EXISTS FOR (n:Person) REQUIRE n.email IS UNIQUE`,
		`CREATE CONSTRAINT org_id IF NOT EXISTS FOR (n:Organization) REQUIRE n.id IS UNIQUE`,
		`CREATE CONSTRAINT org_key IF NOT EXISTS FOR (n:Organization) REQUIRE n.canonical_key IS UNIQUE`,
		`CREATE CONSTRAINT org_domain IF NOT EXISTS FOR (n:Organization) REQUIRE n.domain IS UNIQUE`,
		`CREATE CONSTRAINT connection_id IF NOT EXISTS FOR (n:Connection) REQUIRE n.id IS UNIQUE`,
		`CREATE INDEX fact_entity IF NOT EXISTS FOR (n:Fact) ON (n.entity_kind, n.entity_id, n.fact_type, n.key)`,
		`CREATE INDEX interaction_ext IF NOT EXISTS FOR (n:Interaction) ON (n.provider, n.external_id)`,
		`CREATE INDEX interaction_time IF NOT EXISTS FOR (n:Interaction) ON (n.occurred_at)`,
	}
	for _, stmt := range statements {
		if _, err := s.write(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
			return tx.Run(ctx, stmt, nil)
		}); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	return nil
}

// Close shuts down the underlying driver.
func (s *Neo4jStore) Close(ctx context.Context) error {
	return s.client.Close(ctx)
}
