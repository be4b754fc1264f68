package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundprediction/go-rolodex/pkg/types"
)

func TestCreatePersonConvergesOnEmail(t *testing.T) {
	ctx := context.Background()
	db := NewMemoryStore()

	first, err := db.CreatePerson(ctx, &types.Person{GivenName: "Jane", Email: "jane@acme.com"})
	require.NoError(t, err)

	second, err := db.CreatePerson(ctx, &types.Person{GivenName: "Janet", Email: "jane@acme.com"})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "Jane", second.GivenName)
}

func TestConcurrentPersonCreatesConverge(t *testing.T) {
	ctx := context.Background()
	db := NewMemoryStore()

	const workers = 16
	ids := make([]string, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			p, err := db.CreatePerson(ctx, &types.Person{GivenName: "Jane", Email: "jane@acme.com"})
			if assert.NoError(t, err) {
				ids[n] = p.ID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
}

func TestCreatePersonWithoutEmailNeverConverges(t *testing.T) {
	ctx := context.Background()
	db := NewMemoryStore()

	first, err := db.CreatePerson(ctx, &types.Person{GivenName: "Jane"})
	require.NoError(t, err)
	second, err := db.CreatePerson(ctx, &types.Person{GivenName: "Jane"})
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
}

func TestUpdatePersonRejectsTakenEmail(t *testing.T) {
	ctx := context.Background()
	db := NewMemoryStore()

	_, err := db.CreatePerson(ctx, &types.Person{GivenName: "Jane", Email: "jane@acme.com"})
	require.NoError(t, err)
	other, err := db.CreatePerson(ctx, &types.Person{GivenName: "John", Email: "john@acme.com"})
	require.NoError(t, err)

	other.Email = "jane@acme.com"
	err = db.UpdatePerson(ctx, other)

	var conflict *types.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, types.PersonKind, conflict.Kind)
}

func TestCreateOrganizationConvergesOnKeyAndDomain(t *testing.T) {
	ctx := context.Background()
	db := NewMemoryStore()

	first, err := db.CreateOrganization(ctx, &types.Organization{Name: "Acme Labs", CanonicalKey: "acmelabs", Domain: "acme.com"})
	require.NoError(t, err)

	byKey, err := db.CreateOrganization(ctx, &types.Organization{Name: "ACME Labs", CanonicalKey: "acmelabs"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, byKey.ID)

	byDomain, err := db.CreateOrganization(ctx, &types.Organization{Name: "Acme", CanonicalKey: "acme", Domain: "acme.com"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, byDomain.ID)
}

func TestSetCurrentFactClosesPrevious(t *testing.T) {
	ctx := context.Background()
	db := NewMemoryStore()
	entity := types.NodeRef{Kind: types.PersonKind, ID: "p1"}

	closed, err := db.SetCurrentFact(ctx, &types.Fact{Entity: entity, FactType: "identity", Key: "city", Value: "Berlin"})
	require.NoError(t, err)
	assert.Nil(t, closed)

	closed, err = db.SetCurrentFact(ctx, &types.Fact{Entity: entity, FactType: "identity", Key: "city", Value: "Lisbon"})
	require.NoError(t, err)
	require.NotNil(t, closed)
	assert.Equal(t, "Berlin", closed.Value)
	assert.NotNil(t, closed.ValidUntil)

	current, err := db.CurrentFacts(ctx, entity, "identity")
	require.NoError(t, err)
	require.Len(t, current, 1)
	assert.Equal(t, "Lisbon", current[0].Value)

	history, err := db.FactHistory(ctx, entity, "identity", "city")
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestPutRelationshipConvergesActiveTriple(t *testing.T) {
	ctx := context.Background()
	db := NewMemoryStore()

	source := types.NodeRef{Kind: types.PersonKind, ID: "p1"}
	target := types.NodeRef{Kind: types.OrganizationKind, ID: "o1"}

	first := &types.Relationship{Source: source, Target: target, Type: types.WorksAtRelationship, IsActive: true, ValidFrom: time.Now().UTC()}
	require.NoError(t, db.PutRelationship(ctx, first))

	second := &types.Relationship{Source: source, Target: target, Type: types.WorksAtRelationship, IsActive: true, Strength: 0.5, ValidFrom: time.Now().UTC()}
	require.NoError(t, db.PutRelationship(ctx, second))

	assert.Equal(t, first.ID, second.ID)

	rels, err := db.QueryRelationships(ctx, RelationshipFilter{Endpoint: &source, ActiveOnly: true})
	require.NoError(t, err)
	require.Len(t, rels, 1)
	assert.Equal(t, 0.5, rels[0].Strength)
}

func TestUpsertInteractionIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db := NewMemoryStore()

	interaction := &types.Interaction{
		Provider:   "nylas",
		ExternalID: "msg-1",
		Direction:  types.Inbound,
		OccurredAt: time.Now().UTC(),
	}

	created, err := db.UpsertInteraction(ctx, interaction)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = db.UpsertInteraction(ctx, interaction)
	require.NoError(t, err)
	assert.False(t, created)

	list, err := db.ListInteractions(ctx, InteractionFilter{})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestAdvanceCursorIsForwardOnly(t *testing.T) {
	ctx := context.Background()
	db := NewMemoryStore()

	conn, err := db.CreateConnection(ctx, &types.Connection{UserID: "u1", Provider: "nylas"})
	require.NoError(t, err)

	newer := time.Date(2026, 5, 2, 12, 0, 0, 0, time.UTC).Format(time.RFC3339Nano)
	older := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC).Format(time.RFC3339Nano)

	require.NoError(t, db.AdvanceCursor(ctx, conn.ID, newer, time.Now()))
	require.NoError(t, db.AdvanceCursor(ctx, conn.ID, older, time.Now()))

	got, err := db.GetConnection(ctx, conn.ID)
	require.NoError(t, err)
	assert.Equal(t, newer, got.Cursor)
	assert.NotNil(t, got.LastSyncAt)
}

func TestUpdateConnectionPreservesSyncState(t *testing.T) {
	ctx := context.Background()
	db := NewMemoryStore()

	conn, err := db.CreateConnection(ctx, &types.Connection{UserID: "u1", Provider: "nylas"})
	require.NoError(t, err)

	cursor := time.Now().UTC().Format(CursorTimeFormat)
	require.NoError(t, db.AdvanceCursor(ctx, conn.ID, cursor, time.Now()))

	// A status write from a stale struct must not clobber what AdvanceCursor
	// committed.
	conn.Status = "active"
	conn.Cursor = "stale-value"
	conn.LastSyncAt = nil
	require.NoError(t, db.UpdateConnection(ctx, conn))

	got, err := db.GetConnection(ctx, conn.ID)
	require.NoError(t, err)
	assert.Equal(t, cursor, got.Cursor)
	assert.NotNil(t, got.LastSyncAt)
	assert.Equal(t, "active", got.Status)
}

func TestFindConnectionByProviderUser(t *testing.T) {
	ctx := context.Background()
	db := NewMemoryStore()

	_, err := db.CreateConnection(ctx, &types.Connection{UserID: "u1", Provider: "nylas", ProviderUserID: "acct-9"})
	require.NoError(t, err)

	got, err := db.FindConnectionByProviderUser(ctx, "nylas", "acct-9")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.UserID)

	_, err = db.FindConnectionByProviderUser(ctx, "nylas", "missing")
	assert.ErrorIs(t, err, types.ErrConnectionNotFound)
}
