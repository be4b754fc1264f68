// Package graph maintains the typed, directed, temporally-versioned edges
// between entity references. Edges carry strength, confidence and
// provenance; superseded edges are deactivated with a closed validity
// window, never hard-deleted.
package graph

import (
	"context"
	"log/slog"
	"time"

	"github.com/soundprediction/go-rolodex/pkg/store"
	"github.com/soundprediction/go-rolodex/pkg/types"
)

// Graph is the relationship graph component.
type Graph struct {
	db     store.Store
	logger *slog.Logger
}

// NewGraph creates a relationship graph over the injected store.
func NewGraph(db store.Store, logger *slog.Logger) *Graph {
	if logger == nil {
		logger = slog.Default()
	}
	return &Graph{db: db, logger: logger}
}

// UpsertInput carries the attributes of an edge assertion.
type UpsertInput struct {
	Source      types.NodeRef
	Target      types.NodeRef
	Type        types.RelationshipType
	Properties  types.RelationshipProperties
	Strength    float64
	Confidence  float64
	SourceOf    types.Provenance
	ExternalRef string
}

// Upsert records an edge for the (source, target, type) triple. An existing
// active edge is refined in place: same provenance is assumed to be refining,
// not contradicting. A missing edge is created active with ValidFrom now.
// At most one active edge ever exists per triple.
func (g *Graph) Upsert(ctx context.Context, input UpsertInput) (*types.Relationship, error) {
	if input.Source.ID == "" || input.Target.ID == "" {
		return nil, &types.ValidationError{Field: "endpoint", Reason: "source and target ids are required"}
	}
	if input.Type == "" {
		return nil, &types.ValidationError{Field: "type", Reason: "relationship type is required"}
	}

	strength := types.ClampScore(input.Strength)
	confidence := types.ClampScore(input.Confidence)

	existing, err := g.db.GetActiveRelationship(ctx, input.Source, input.Target, input.Type)
	if err == nil {
		existing.Properties = input.Properties
		existing.Strength = strength
		existing.Confidence = confidence
		existing.SourceOf = input.SourceOf
		if input.ExternalRef != "" {
			existing.ExternalRef = input.ExternalRef
		}
		if err := g.db.PutRelationship(ctx, existing); err != nil {
			return nil, err
		}
		return existing, nil
	}
	if err != types.ErrRelationshipNotFound {
		return nil, err
	}

	rel := &types.Relationship{
		Source:      input.Source,
		Target:      input.Target,
		Type:        input.Type,
		Properties:  input.Properties,
		Strength:    strength,
		Confidence:  confidence,
		SourceOf:    input.SourceOf,
		ExternalRef: input.ExternalRef,
		IsActive:    true,
		ValidFrom:   time.Now().UTC(),
	}
	if err := g.db.PutRelationship(ctx, rel); err != nil {
		return nil, err
	}
	g.logger.Debug("created relationship",
		"type", rel.Type,
		"source", rel.Source.ID,
		"target", rel.Target.ID,
		"strength", rel.Strength)
	return rel, nil
}

// Deactivate closes an edge: IsActive false, ValidUntil now. The row stays
// in place for history queries.
func (g *Graph) Deactivate(ctx context.Context, edgeID string) error {
	if edgeID == "" {
		return &types.ValidationError{Field: "edge_id", Reason: "edge id is required"}
	}
	return g.db.DeactivateRelationship(ctx, edgeID, time.Now().UTC())
}

// Filter constrains a Query call.
type Filter struct {
	Endpoint        *types.NodeRef
	Type            types.RelationshipType
	MinStrength     float64
	IncludeInactive bool
	Limit           int
}

// Query answers "who is connected to X": edges matching the filter, ordered
// by strength descending then recency.
func (g *Graph) Query(ctx context.Context, filter Filter) ([]*types.Relationship, error) {
	return g.db.QueryRelationships(ctx, store.RelationshipFilter{
		Endpoint:    filter.Endpoint,
		Type:        filter.Type,
		MinStrength: filter.MinStrength,
		ActiveOnly:  !filter.IncludeInactive,
		Limit:       filter.Limit,
	})
}
