// Package strength scores relationship strength from communication history.
// Four factors (recency, frequency, engagement, reciprocity) combine into a
// weighted overall score with a trend classification. Results are persisted
// as snapshots in a TTL cache; reads prefer the snapshot and fall back to a
// live computation, never recomputing unconditionally.
package strength

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"time"

	"github.com/soundprediction/go-rolodex/pkg/cache"
	"github.com/soundprediction/go-rolodex/pkg/store"
	"github.com/soundprediction/go-rolodex/pkg/types"
)

const (
	// recencyHalfLife is the elapsed time at which the recency factor
	// decays to 0.5.
	recencyHalfLife = 30 * 24 * time.Hour
	// frequencyWindow is the trailing window counted for the frequency
	// factor.
	frequencyWindow = 90 * 24 * time.Hour
	// frequencySaturation is the interaction count at which frequency
	// reaches 1.0.
	frequencySaturation = 30.0
	// trendWindow splits recent history into two halves for the trend
	// comparison.
	trendWindow = 45 * 24 * time.Hour
	// trendTolerance is the score delta below which the trend is stable.
	trendTolerance = 0.05

	weightRecency     = 0.3
	weightFrequency   = 0.3
	weightEngagement  = 0.2
	weightReciprocity = 0.2

	// DefaultSnapshotTTL bounds how stale a cached snapshot may get.
	DefaultSnapshotTTL = 24 * time.Hour

	snapshotKeyPrefix = "strength:"
)

// Result wraps a strength lookup. NoData is set for a person with zero
// linked communications: the score is absent, not zero.
type Result struct {
	Snapshot *types.StrengthSnapshot `json:"snapshot,omitempty"`
	Cached   bool                    `json:"cached"`
	NoData   bool                    `json:"no_data"`
}

// Scorer computes and caches relationship strength per person.
type Scorer struct {
	db          store.Store
	snapshots   cache.Cache
	logger      *slog.Logger
	snapshotTTL time.Duration
	now         func() time.Time
}

// NewScorer creates a scorer. The cache may be nil, in which case every read
// is a live computation.
func NewScorer(db store.Store, snapshots cache.Cache, logger *slog.Logger) *Scorer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scorer{
		db:          db,
		snapshots:   snapshots,
		logger:      logger,
		snapshotTTL: DefaultSnapshotTTL,
		now:         time.Now,
	}
}

// Get returns the relationship strength for a person, preferring the cached
// snapshot (Cached=true) and computing live only when no snapshot exists.
func (s *Scorer) Get(ctx context.Context, personID string) (*Result, error) {
	if personID == "" {
		return nil, &types.ValidationError{Field: "person_id", Reason: "person id is required"}
	}

	if s.snapshots != nil {
		raw, err := s.snapshots.Get(snapshotKeyPrefix + personID)
		if err == nil {
			var snapshot types.StrengthSnapshot
			if err := json.Unmarshal(raw, &snapshot); err == nil {
				return &Result{Snapshot: &snapshot, Cached: true}, nil
			}
			// A corrupt snapshot degrades to a live computation.
			s.logger.Warn("discarding unreadable strength snapshot", "person_id", personID)
		} else if !errors.Is(err, cache.ErrKeyNotFound) {
			s.logger.Warn("strength snapshot read failed", "person_id", personID, "error", err)
		}
	}

	return s.Compute(ctx, personID)
}

// Compute runs a live strength computation and persists the snapshot.
// Snapshot writes are last-write-wins and best-effort; a cache failure never
// fails the computation.
func (s *Scorer) Compute(ctx context.Context, personID string) (*Result, error) {
	if _, err := s.db.GetPerson(ctx, personID); err != nil {
		return nil, err
	}

	interactions, err := s.db.ListInteractions(ctx, store.InteractionFilter{PersonID: personID})
	if err != nil {
		return nil, err
	}
	if len(interactions) == 0 {
		return &Result{NoData: true}, nil
	}

	now := s.now().UTC()
	factors, overall := scoreWindow(interactions, now, time.Time{})

	recentCutoff := now.Add(-trendWindow)
	previousCutoff := now.Add(-2 * trendWindow)
	_, recentScore := scoreWindow(filterWindow(interactions, recentCutoff, now), now, recentCutoff)
	_, previousScore := scoreWindow(filterWindow(interactions, previousCutoff, recentCutoff), recentCutoff, previousCutoff)

	snapshot := &types.StrengthSnapshot{
		PersonID:         personID,
		Overall:          overall,
		Factors:          factors,
		Trend:            classifyTrend(recentScore, previousScore),
		InteractionCount: len(interactions),
		CalculatedAt:     now,
	}
	if last := latestInteraction(interactions); last != nil {
		at := last.OccurredAt
		snapshot.LastInteractionAt = &at
	}

	s.persist(snapshot)
	return &Result{Snapshot: snapshot}, nil
}

// Invalidate drops the cached snapshot for a person, forcing the next read
// to recompute.
func (s *Scorer) Invalidate(personID string) {
	if s.snapshots == nil {
		return
	}
	if err := s.snapshots.Delete(snapshotKeyPrefix + personID); err != nil {
		s.logger.Warn("strength snapshot delete failed", "person_id", personID, "error", err)
	}
}

func (s *Scorer) persist(snapshot *types.StrengthSnapshot) {
	if s.snapshots == nil {
		return
	}
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return
	}
	if err := s.snapshots.Set(snapshotKeyPrefix+snapshot.PersonID, raw, s.snapshotTTL); err != nil {
		s.logger.Warn("strength snapshot write failed", "person_id", snapshot.PersonID, "error", err)
	}
}

// scoreWindow computes the four factors and overall score for a set of
// interactions, with recency measured back from reference. An empty set
// scores zero across the board.
func scoreWindow(interactions []*types.Interaction, reference, floor time.Time) (types.StrengthFactors, float64) {
	if len(interactions) == 0 {
		return types.StrengthFactors{}, 0
	}

	factors := types.StrengthFactors{
		Recency:     recencyScore(interactions, reference),
		Frequency:   frequencyScore(interactions, reference, floor),
		Engagement:  engagementScore(interactions),
		Reciprocity: reciprocityScore(interactions),
	}

	overall := weightRecency*factors.Recency +
		weightFrequency*factors.Frequency +
		weightEngagement*factors.Engagement +
		weightReciprocity*factors.Reciprocity
	return factors, types.ClampScore(overall)
}

// recencyScore decays exponentially with time since the most recent
// interaction: 1.0 just after contact, 0.5 at the half life, toward 0 as
// silence grows.
func recencyScore(interactions []*types.Interaction, reference time.Time) float64 {
	last := latestInteraction(interactions)
	if last == nil {
		return 0
	}
	elapsed := reference.Sub(last.OccurredAt)
	if elapsed <= 0 {
		return 1
	}
	return types.ClampScore(math.Exp2(-float64(elapsed) / float64(recencyHalfLife)))
}

// frequencyScore counts interactions in the trailing window and normalizes
// against the saturation threshold, so more contact helps with diminishing
// returns.
func frequencyScore(interactions []*types.Interaction, reference, floor time.Time) float64 {
	cutoff := reference.Add(-frequencyWindow)
	if floor.After(cutoff) {
		cutoff = floor
	}
	count := 0
	for _, it := range interactions {
		if !it.OccurredAt.Before(cutoff) {
			count++
		}
	}
	return types.ClampScore(float64(count) / frequencySaturation)
}

// engagementScore is the share of threads with mutual back-and-forth versus
// one-sided traffic. Interactions without a thread id count as their own
// one-message thread.
func engagementScore(interactions []*types.Interaction) float64 {
	type threadState struct {
		inbound  bool
		outbound bool
	}
	threads := map[string]*threadState{}
	for _, it := range interactions {
		key := it.ThreadID
		if key == "" {
			key = "solo:" + it.ID
		}
		state, ok := threads[key]
		if !ok {
			state = &threadState{}
			threads[key] = state
		}
		switch it.Direction {
		case types.Inbound:
			state.inbound = true
		case types.Outbound:
			state.outbound = true
		}
	}
	if len(threads) == 0 {
		return 0
	}
	mutual := 0
	for _, state := range threads {
		if state.inbound && state.outbound {
			mutual++
		}
	}
	return types.ClampScore(float64(mutual) / float64(len(threads)))
}

// reciprocityScore measures directional balance: 1.0 when inbound and
// outbound counts match, trending to 0 as one direction dominates.
func reciprocityScore(interactions []*types.Interaction) float64 {
	var inbound, outbound float64
	for _, it := range interactions {
		switch it.Direction {
		case types.Inbound:
			inbound++
		case types.Outbound:
			outbound++
		}
	}
	total := inbound + outbound
	if total == 0 {
		return 0
	}
	return types.ClampScore(1 - math.Abs(inbound-outbound)/total)
}

// classifyTrend compares the recent window's score to the preceding one.
func classifyTrend(recent, previous float64) types.TrendDirection {
	switch {
	case recent > previous+trendTolerance:
		return types.TrendStrengthening
	case recent < previous-trendTolerance:
		return types.TrendWeakening
	default:
		return types.TrendStable
	}
}

func latestInteraction(interactions []*types.Interaction) *types.Interaction {
	var latest *types.Interaction
	for _, it := range interactions {
		if latest == nil || it.OccurredAt.After(latest.OccurredAt) {
			latest = it
		}
	}
	return latest
}

// filterWindow returns interactions with from <= OccurredAt < to.
func filterWindow(interactions []*types.Interaction, from, to time.Time) []*types.Interaction {
	var out []*types.Interaction
	for _, it := range interactions {
		if it.OccurredAt.Before(from) || !it.OccurredAt.Before(to) {
			continue
		}
		out = append(out, it)
	}
	return out
}
