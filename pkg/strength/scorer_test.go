package strength

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundprediction/go-rolodex/pkg/cache"
	"github.com/soundprediction/go-rolodex/pkg/store"
	"github.com/soundprediction/go-rolodex/pkg/types"
)

var scorerNow = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestScorer(t *testing.T) (*Scorer, *store.MemoryStore) {
	t.Helper()
	db := store.NewMemoryStore()
	s := NewScorer(db, cache.NewMemoryCache(), nil)
	s.now = func() time.Time { return scorerNow }
	return s, db
}

func addPerson(t *testing.T, db *store.MemoryStore, id string) {
	t.Helper()
	_, err := db.CreatePerson(context.Background(), &types.Person{ID: id, GivenName: "Jane"})
	require.NoError(t, err)
}

func addInteraction(t *testing.T, db *store.MemoryStore, personID, externalID, threadID string, direction types.Direction, at time.Time) {
	t.Helper()
	_, err := db.UpsertInteraction(context.Background(), &types.Interaction{
		Provider:   "nylas",
		ExternalID: externalID,
		ThreadID:   threadID,
		Direction:  direction,
		PersonIDs:  []string{personID},
		OccurredAt: at,
	})
	require.NoError(t, err)
}

func TestComputeNoDataForSilentPerson(t *testing.T) {
	ctx := context.Background()
	s, db := newTestScorer(t)
	addPerson(t, db, "p1")

	result, err := s.Get(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, result.NoData)
	assert.Nil(t, result.Snapshot)
}

func TestComputeUnknownPerson(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestScorer(t)

	_, err := s.Get(ctx, "missing")
	assert.ErrorIs(t, err, types.ErrPersonNotFound)
}

func TestComputeScoresStayInBounds(t *testing.T) {
	ctx := context.Background()
	s, db := newTestScorer(t)
	addPerson(t, db, "p1")

	// Heavy recent mutual traffic should push toward 1.0 without exceeding it.
	for i := 0; i < 60; i++ {
		direction := types.Inbound
		if i%2 == 0 {
			direction = types.Outbound
		}
		addInteraction(t, db, "p1", "msg-"+string(rune('a'+i%26))+string(rune('0'+i/26)), "thread-1", direction, scorerNow.Add(-time.Duration(i)*time.Hour))
	}

	result, err := s.Compute(ctx, "p1")
	require.NoError(t, err)
	require.NotNil(t, result.Snapshot)

	snap := result.Snapshot
	assert.GreaterOrEqual(t, snap.Overall, 0.0)
	assert.LessOrEqual(t, snap.Overall, 1.0)
	for _, factor := range []float64{snap.Factors.Recency, snap.Factors.Frequency, snap.Factors.Engagement, snap.Factors.Reciprocity} {
		assert.GreaterOrEqual(t, factor, 0.0)
		assert.LessOrEqual(t, factor, 1.0)
	}
	assert.Greater(t, snap.Overall, 0.8)
	assert.Equal(t, 60, snap.InteractionCount)
	require.NotNil(t, snap.LastInteractionAt)
}

func TestGetPrefersCachedSnapshot(t *testing.T) {
	ctx := context.Background()
	s, db := newTestScorer(t)
	addPerson(t, db, "p1")
	addInteraction(t, db, "p1", "msg-1", "t1", types.Inbound, scorerNow.Add(-24*time.Hour))

	first, err := s.Get(ctx, "p1")
	require.NoError(t, err)
	assert.False(t, first.Cached)

	second, err := s.Get(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Snapshot.Overall, second.Snapshot.Overall)
}

func TestInvalidateForcesRecompute(t *testing.T) {
	ctx := context.Background()
	s, db := newTestScorer(t)
	addPerson(t, db, "p1")
	addInteraction(t, db, "p1", "msg-1", "t1", types.Inbound, scorerNow.Add(-24*time.Hour))

	_, err := s.Get(ctx, "p1")
	require.NoError(t, err)

	s.Invalidate("p1")

	result, err := s.Get(ctx, "p1")
	require.NoError(t, err)
	assert.False(t, result.Cached)
}

func TestRecencyDecay(t *testing.T) {
	ctx := context.Background()
	s, db := newTestScorer(t)
	addPerson(t, db, "fresh")
	addPerson(t, db, "stale")

	addInteraction(t, db, "fresh", "msg-f", "t1", types.Inbound, scorerNow.Add(-time.Hour))
	addInteraction(t, db, "stale", "msg-s", "t2", types.Inbound, scorerNow.Add(-120*24*time.Hour))

	freshResult, err := s.Compute(ctx, "fresh")
	require.NoError(t, err)
	staleResult, err := s.Compute(ctx, "stale")
	require.NoError(t, err)

	assert.Greater(t, freshResult.Snapshot.Factors.Recency, 0.9)
	assert.Less(t, staleResult.Snapshot.Factors.Recency, 0.1)
}

func TestReciprocityBalancedVersusOneSided(t *testing.T) {
	ctx := context.Background()
	s, db := newTestScorer(t)
	addPerson(t, db, "balanced")
	addPerson(t, db, "onesided")

	addInteraction(t, db, "balanced", "b-1", "t1", types.Inbound, scorerNow.Add(-time.Hour))
	addInteraction(t, db, "balanced", "b-2", "t1", types.Outbound, scorerNow.Add(-2*time.Hour))
	addInteraction(t, db, "onesided", "o-1", "t2", types.Outbound, scorerNow.Add(-time.Hour))
	addInteraction(t, db, "onesided", "o-2", "t3", types.Outbound, scorerNow.Add(-2*time.Hour))

	balanced, err := s.Compute(ctx, "balanced")
	require.NoError(t, err)
	oneSided, err := s.Compute(ctx, "onesided")
	require.NoError(t, err)

	assert.Equal(t, 1.0, balanced.Snapshot.Factors.Reciprocity)
	assert.Equal(t, 0.0, oneSided.Snapshot.Factors.Reciprocity)
	assert.Equal(t, 1.0, balanced.Snapshot.Factors.Engagement)
	assert.Equal(t, 0.0, oneSided.Snapshot.Factors.Engagement)
}

func TestTrendClassification(t *testing.T) {
	assert.Equal(t, types.TrendStrengthening, classifyTrend(0.8, 0.5))
	assert.Equal(t, types.TrendWeakening, classifyTrend(0.2, 0.5))
	assert.Equal(t, types.TrendStable, classifyTrend(0.52, 0.5))
}

func TestTrendWeakeningWhenContactStops(t *testing.T) {
	ctx := context.Background()
	s, db := newTestScorer(t)
	addPerson(t, db, "p1")

	// All traffic in the previous window, nothing recent.
	for i := 0; i < 10; i++ {
		addInteraction(t, db, "p1", "old-"+string(rune('a'+i)), "t1", types.Inbound, scorerNow.Add(-50*24*time.Hour).Add(-time.Duration(i)*time.Hour))
	}

	result, err := s.Compute(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, types.TrendWeakening, result.Snapshot.Trend)
}

func TestGetValidatesPersonID(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestScorer(t)

	var validation *types.ValidationError
	_, err := s.Get(ctx, "")
	require.ErrorAs(t, err, &validation)
}
