// Package resolver creates and merges Person and Organization identities
// arriving from heterogeneous sources. It owns the dedup invariants: one
// non-deleted person per normalized email, one organization per canonical
// key or domain. Creation is always get-or-create; a create that would
// violate uniqueness converges onto the existing row.
package resolver

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/soundprediction/go-rolodex/pkg/facts"
	"github.com/soundprediction/go-rolodex/pkg/normalize"
	"github.com/soundprediction/go-rolodex/pkg/store"
	"github.com/soundprediction/go-rolodex/pkg/types"
)

// Resolver resolves identities against the injected store, recording
// provenance facts for every field filled during a merge.
type Resolver struct {
	db     store.Store
	facts  *facts.Store
	logger *slog.Logger
}

// NewResolver creates an entity resolver.
func NewResolver(db store.Store, factStore *facts.Store, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{db: db, facts: factStore, logger: logger}
}

// PersonInput is a partial person observation from some source.
type PersonInput struct {
	GivenName   string
	FamilyName  string
	Email       string
	Phone       string
	City        string
	Country     string
	Handles     map[string]string
	PrivacyTier string
	Source      types.Provenance
	Confidence  float64
}

// PersonResolution reports the outcome of resolving a person observation.
type PersonResolution struct {
	Person     *types.Person
	IsNew      bool
	WasUpdated bool
}

// ResolveOrCreatePerson resolves an observation to an existing person by
// normalized email (when dedupeByEmail is set and an email is present) or
// creates a new person. Merging only fills fields that are currently empty:
// previously-verified data is never clobbered by a lower-quality source.
func (r *Resolver) ResolveOrCreatePerson(ctx context.Context, input PersonInput, dedupeByEmail bool) (*PersonResolution, error) {
	if strings.TrimSpace(input.GivenName) == "" && strings.TrimSpace(input.FamilyName) == "" {
		return nil, &types.ValidationError{Field: "name", Reason: "given or family name is required"}
	}

	email := normalize.Email(input.Email)

	if dedupeByEmail && email != "" {
		existing, err := r.db.GetPersonByEmail(ctx, email)
		if err == nil {
			changed := r.mergePerson(ctx, existing, input)
			if changed > 0 {
				if err := r.db.UpdatePerson(ctx, existing); err != nil {
					return nil, err
				}
			}
			return &PersonResolution{Person: existing, IsNew: false, WasUpdated: changed > 0}, nil
		}
		if err != types.ErrPersonNotFound {
			return nil, err
		}
	}

	person := &types.Person{
		GivenName:   strings.TrimSpace(input.GivenName),
		FamilyName:  strings.TrimSpace(input.FamilyName),
		Email:       email,
		Phone:       strings.TrimSpace(input.Phone),
		City:        strings.TrimSpace(input.City),
		Country:     strings.TrimSpace(input.Country),
		Handles:     input.Handles,
		PrivacyTier: input.PrivacyTier,
	}

	// CreatePerson converges on the existing row if a concurrent create won
	// the email key. Pre-assigning the id makes the outcome detectable: a
	// different id back means the loser's create became a resolve.
	person.ID = uuid.NewString()
	created, err := r.db.CreatePerson(ctx, person)
	if err != nil {
		return nil, err
	}
	if created.ID != person.ID {
		changed := r.mergePerson(ctx, created, input)
		if changed > 0 {
			if err := r.db.UpdatePerson(ctx, created); err != nil {
				return nil, err
			}
		}
		return &PersonResolution{Person: created, IsNew: false, WasUpdated: changed > 0}, nil
	}

	r.recordProvenance(ctx, created.Ref(), "identity", map[string]string{
		"given_name":  created.GivenName,
		"family_name": created.FamilyName,
		"email":       created.Email,
	}, input.Source, input.Confidence)

	r.logger.Debug("created person", "person_id", created.ID, "email", created.Email)
	return &PersonResolution{Person: created, IsNew: true}, nil
}

// mergePerson fills empty fields on dst from input and returns how many
// fields changed. Set fields are never overwritten.
func (r *Resolver) mergePerson(ctx context.Context, dst *types.Person, input PersonInput) int {
	filled := map[string]string{}

	fill := func(dstField *string, value, name string) {
		value = strings.TrimSpace(value)
		if *dstField == "" && value != "" {
			*dstField = value
			filled[name] = value
		}
	}

	fill(&dst.GivenName, input.GivenName, "given_name")
	fill(&dst.FamilyName, input.FamilyName, "family_name")
	fill(&dst.Phone, input.Phone, "phone")
	fill(&dst.City, input.City, "city")
	fill(&dst.Country, input.Country, "country")
	if dst.PrivacyTier == "" && input.PrivacyTier != "" {
		dst.PrivacyTier = input.PrivacyTier
		filled["privacy_tier"] = input.PrivacyTier
	}

	for network, handle := range input.Handles {
		if handle == "" {
			continue
		}
		if dst.Handles == nil {
			dst.Handles = map[string]string{}
		}
		if dst.Handles[network] == "" {
			dst.Handles[network] = handle
			filled["handle:"+network] = handle
		}
	}

	if len(filled) > 0 {
		r.recordProvenance(ctx, dst.Ref(), "identity", filled, input.Source, input.Confidence)
	}
	return len(filled)
}

// recordProvenance writes one fact per merged field so later audits can tell
// which source asserted which value. Fact failures are logged, not raised:
// provenance is secondary to the identity write itself.
func (r *Resolver) recordProvenance(ctx context.Context, entity types.NodeRef, factType string, fields map[string]string, source types.Provenance, confidence float64) {
	if r.facts == nil {
		return
	}
	if confidence == 0 {
		confidence = 0.8
	}
	for key, value := range fields {
		if value == "" {
			continue
		}
		if _, err := r.facts.SetCurrentFact(ctx, entity, factType, key, value, source, confidence); err != nil {
			r.logger.Warn("failed to record provenance fact",
				"entity_id", entity.ID, "key", key, "error", err)
		}
	}
}

// OrganizationResolution reports the outcome of resolving an organization.
type OrganizationResolution struct {
	Organization *types.Organization
	IsNew        bool
}

// ResolveOrCreateOrganization resolves a name (and optional domain) to an
// organization. Domain is the stronger signal and is checked first, then the
// canonical key, then a case-insensitive exact name match. A miss creates
// the organization; a create racing an identical one converges.
func (r *Resolver) ResolveOrCreateOrganization(ctx context.Context, name, domain string) (*OrganizationResolution, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, &types.ValidationError{Field: "name", Reason: "organization name is required"}
	}

	domain = normalize.Domain(domain)
	key := normalize.CanonicalKey(name)

	if domain != "" {
		if org, err := r.db.GetOrganizationByDomain(ctx, domain); err == nil {
			return &OrganizationResolution{Organization: org}, nil
		} else if err != types.ErrOrganizationNotFound {
			return nil, err
		}
	}
	if org, err := r.db.GetOrganizationByCanonicalKey(ctx, key); err == nil {
		if domain != "" && org.Domain == "" {
			org.Domain = domain
			if err := r.db.UpdateOrganization(ctx, org); err != nil {
				r.logger.Warn("failed to backfill organization domain",
					"organization_id", org.ID, "domain", domain, "error", err)
			}
		}
		return &OrganizationResolution{Organization: org}, nil
	} else if err != types.ErrOrganizationNotFound {
		return nil, err
	}
	if org, err := r.db.GetOrganizationByName(ctx, name); err == nil {
		return &OrganizationResolution{Organization: org}, nil
	} else if err != types.ErrOrganizationNotFound {
		return nil, err
	}

	org := &types.Organization{
		ID:           uuid.NewString(),
		Name:         name,
		CanonicalKey: key,
		Domain:       domain,
	}
	created, err := r.db.CreateOrganization(ctx, org)
	if err != nil {
		return nil, err
	}
	if created.ID != org.ID {
		// Lost a concurrent create for the same key or domain; the create
		// converged onto the surviving row.
		return &OrganizationResolution{Organization: created}, nil
	}
	r.logger.Debug("created organization",
		"organization_id", created.ID, "canonical_key", created.CanonicalKey, "domain", created.Domain)
	return &OrganizationResolution{Organization: created, IsNew: true}, nil
}
