// Package facts maintains temporally-versioned key/value assertions about
// entities, with provenance and confidence. A fact is never deleted: setting
// a new value closes the previous current row and inserts a new one, so the
// full belief history stays queryable.
package facts

import (
	"context"
	"log/slog"

	"github.com/soundprediction/go-rolodex/pkg/store"
	"github.com/soundprediction/go-rolodex/pkg/types"
)

// Store reads and writes temporal facts through the injected data-access
// layer.
type Store struct {
	db     store.Store
	logger *slog.Logger
}

// NewStore creates a fact store.
func NewStore(db store.Store, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}
}

// SetCurrentFact records a new current value for (entity, factType, key),
// closing the previously-current fact in the same store transaction. At most
// one fact per key is ever current.
func (s *Store) SetCurrentFact(ctx context.Context, entity types.NodeRef, factType, key, value string, source types.Provenance, confidence float64) (*types.Fact, error) {
	if entity.ID == "" {
		return nil, &types.ValidationError{Field: "entity", Reason: "entity id is required"}
	}
	if factType == "" {
		return nil, &types.ValidationError{Field: "fact_type", Reason: "fact type is required"}
	}
	if key == "" {
		return nil, &types.ValidationError{Field: "key", Reason: "fact key is required"}
	}

	fact := &types.Fact{
		Entity:     entity,
		FactType:   factType,
		Key:        key,
		Value:      value,
		Source:     source,
		Confidence: types.ClampScore(confidence),
	}

	closed, err := s.db.SetCurrentFact(ctx, fact)
	if err != nil {
		return nil, err
	}
	if closed != nil {
		s.logger.Debug("superseded fact",
			"entity_kind", entity.Kind,
			"entity_id", entity.ID,
			"fact_type", factType,
			"key", key,
			"previous_value", closed.Value)
	}
	return fact, nil
}

// CurrentFacts returns the presently-believed facts for an entity, optionally
// filtered by fact type.
func (s *Store) CurrentFacts(ctx context.Context, entity types.NodeRef, factType string) ([]*types.Fact, error) {
	return s.db.CurrentFacts(ctx, entity, factType)
}

// History returns the full temporal sequence for a fact key, ordered by
// ValidFrom descending. Pass an empty key for all keys of the fact type.
func (s *Store) History(ctx context.Context, entity types.NodeRef, factType, key string) ([]*types.Fact, error) {
	if factType == "" {
		return nil, &types.ValidationError{Field: "fact_type", Reason: "fact type is required"}
	}
	return s.db.FactHistory(ctx, entity, factType, key)
}
