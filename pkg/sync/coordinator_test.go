package sync

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundprediction/go-rolodex/pkg/facts"
	"github.com/soundprediction/go-rolodex/pkg/graph"
	"github.com/soundprediction/go-rolodex/pkg/provider"
	"github.com/soundprediction/go-rolodex/pkg/resolver"
	"github.com/soundprediction/go-rolodex/pkg/store"
	"github.com/soundprediction/go-rolodex/pkg/types"
)

// fakeClient is a scripted provider client.
type fakeClient struct {
	name      string
	identity  *provider.Identity
	verifyErr error
	items     []*provider.Item
	listErr   error
	getErr    error
}

func (f *fakeClient) Name() string { return f.name }

func (f *fakeClient) VerifyCredential(ctx context.Context) (*provider.Identity, error) {
	if f.verifyErr != nil {
		return nil, f.verifyErr
	}
	return f.identity, nil
}

func (f *fakeClient) ListItemsSince(ctx context.Context, cursor string, maxItems int, fromDate time.Time) ([]*provider.Item, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []*provider.Item
	for _, item := range f.items {
		if cursor != "" {
			cursorTime, err := time.Parse(time.RFC3339Nano, cursor)
			if err == nil && !item.Timestamp.After(cursorTime) {
				continue
			}
		}
		out = append(out, item)
		if maxItems > 0 && len(out) >= maxItems {
			break
		}
	}
	return out, nil
}

func (f *fakeClient) GetItem(ctx context.Context, externalID string) (*provider.Item, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	for _, item := range f.items {
		if item.ExternalID == externalID {
			return item, nil
		}
	}
	return nil, errors.New("no such item")
}

var syncBase = time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

func newTestCoordinator(t *testing.T, client *fakeClient) (*Coordinator, store.Store, *types.Connection) {
	t.Helper()
	db := store.NewMemoryStore()
	res := resolver.NewResolver(db, facts.NewStore(db, nil), nil)
	g := graph.NewGraph(db, nil)

	c := NewCoordinator(db, res, g, nil, nil, Options{MaxItems: 100})
	c.RegisterClient(client)

	conn, err := db.CreateConnection(context.Background(), &types.Connection{
		UserID:   "u1",
		Provider: client.name,
	})
	require.NoError(t, err)
	return c, db, conn
}

func mailItem(n int, at time.Time) *provider.Item {
	return &provider.Item{
		ExternalID: fmt.Sprintf("msg-%03d", n),
		ThreadID:   fmt.Sprintf("thread-%d", n%5),
		Sender:     provider.Participant{Name: "Jane Doe", Email: "jane@acme.com"},
		Subject:    fmt.Sprintf("Update %d", n),
		Timestamp:  at,
	}
}

func TestRunSyncIngestsBatchAndAdvancesCursor(t *testing.T) {
	ctx := context.Background()
	client := &fakeClient{
		name:     "nylas",
		identity: &provider.Identity{ProviderUserID: "acct-1", EmailAddress: "owner@me.com"},
		items: []*provider.Item{
			mailItem(1, syncBase),
			mailItem(2, syncBase.Add(time.Minute)),
			mailItem(3, syncBase.Add(2*time.Minute)),
		},
	}
	c, db, conn := newTestCoordinator(t, client)

	report, err := c.RunSync(ctx, conn.ID)
	require.NoError(t, err)

	assert.Equal(t, 3, report.Created)
	assert.Empty(t, report.Errors)
	assert.Equal(t, syncBase.Add(2*time.Minute).Format(store.CursorTimeFormat), report.Cursor)

	got, err := db.GetConnection(ctx, conn.ID)
	require.NoError(t, err)
	assert.Equal(t, report.Cursor, got.Cursor)
	assert.Equal(t, "acct-1", got.ProviderUserID)
	assert.Equal(t, "active", got.Status)
}

func TestRunSyncRecordsLastSyncAt(t *testing.T) {
	ctx := context.Background()
	client := &fakeClient{
		name:     "nylas",
		identity: &provider.Identity{ProviderUserID: "acct-1", EmailAddress: "owner@me.com"},
		items:    []*provider.Item{mailItem(1, syncBase)},
	}
	c, db, conn := newTestCoordinator(t, client)

	_, err := c.RunSync(ctx, conn.ID)
	require.NoError(t, err)

	// The final status write of the run must not wipe the timestamp the
	// cursor advance recorded.
	got, err := db.GetConnection(ctx, conn.ID)
	require.NoError(t, err)
	require.NotEmpty(t, got.Cursor)
	require.NotNil(t, got.LastSyncAt)
	assert.False(t, got.LastSyncAt.IsZero())
}

func TestCursorTimeFormatOrdersLexically(t *testing.T) {
	// A whole-second timestamp against a fractional one is the adversarial
	// pair: with a variable-width fraction the later value would sort first.
	older := time.Date(2026, 6, 1, 9, 0, 1, 0, time.UTC)
	newer := older.Add(500 * time.Millisecond)

	a := older.Format(store.CursorTimeFormat)
	b := newer.Format(store.CursorTimeFormat)
	assert.Greater(t, b, a)
	assert.Len(t, b, len(a))

	parsed, err := time.Parse(time.RFC3339Nano, b)
	require.NoError(t, err)
	assert.True(t, parsed.Equal(newer))
}

func TestRunSyncPartialFailureStillCommitsSuccesses(t *testing.T) {
	ctx := context.Background()

	items := make([]*provider.Item, 0, 50)
	for i := 0; i < 50; i++ {
		items = append(items, mailItem(i, syncBase.Add(time.Duration(i)*time.Minute)))
	}
	// One item in the middle is malformed.
	items[25].ExternalID = ""

	client := &fakeClient{
		name:     "nylas",
		identity: &provider.Identity{ProviderUserID: "acct-1", EmailAddress: "owner@me.com"},
		items:    items,
	}
	c, db, conn := newTestCoordinator(t, client)

	report, err := c.RunSync(ctx, conn.ID)
	require.NoError(t, err)

	assert.Equal(t, 49, report.Created)
	require.Len(t, report.Errors, 1)

	// The cursor still advances over the 49 committed items.
	got, err := db.GetConnection(ctx, conn.ID)
	require.NoError(t, err)
	assert.Equal(t, syncBase.Add(49*time.Minute).Format(store.CursorTimeFormat), got.Cursor)
	assert.Contains(t, got.LastError, "1 of 50")
}

func TestRunSyncReplayIsDuplicateSafe(t *testing.T) {
	ctx := context.Background()
	client := &fakeClient{
		name:     "nylas",
		identity: &provider.Identity{ProviderUserID: "acct-1", EmailAddress: "owner@me.com"},
		items:    []*provider.Item{mailItem(1, syncBase)},
	}
	c, db, conn := newTestCoordinator(t, client)

	first, err := c.RunSync(ctx, conn.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Created)

	// Hand the same item back regardless of cursor to simulate a replay.
	got, err := db.GetConnection(ctx, conn.ID)
	require.NoError(t, err)
	require.NotEmpty(t, got.Cursor)

	client.items[0].Timestamp = client.items[0].Timestamp.Add(time.Second)
	second, err := c.RunSync(ctx, conn.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Created)
	assert.Equal(t, 1, second.Skipped)

	interactions, err := db.ListInteractions(ctx, store.InteractionFilter{})
	require.NoError(t, err)
	assert.Len(t, interactions, 1)
}

func TestRunSyncCredentialFailureAbortsWithoutCursorMove(t *testing.T) {
	ctx := context.Background()
	client := &fakeClient{
		name:      "nylas",
		verifyErr: errors.New("token revoked"),
		items:     []*provider.Item{mailItem(1, syncBase)},
	}
	c, db, conn := newTestCoordinator(t, client)

	_, err := c.RunSync(ctx, conn.ID)

	var upstream *types.UpstreamProviderError
	require.ErrorAs(t, err, &upstream)
	assert.Equal(t, "verify_credential", upstream.Op)

	got, err := db.GetConnection(ctx, conn.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Cursor)
	assert.Equal(t, "error", got.Status)
	assert.Contains(t, got.LastError, "credential")
}

func TestRunSyncListFailureAbortsWithoutCursorMove(t *testing.T) {
	ctx := context.Background()
	client := &fakeClient{
		name:     "nylas",
		identity: &provider.Identity{ProviderUserID: "acct-1"},
		listErr:  errors.New("rate limited"),
	}
	c, db, conn := newTestCoordinator(t, client)

	_, err := c.RunSync(ctx, conn.ID)

	var upstream *types.UpstreamProviderError
	require.ErrorAs(t, err, &upstream)

	got, err := db.GetConnection(ctx, conn.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Cursor)
}

func TestRunSyncUnknownConnection(t *testing.T) {
	ctx := context.Background()
	client := &fakeClient{name: "nylas"}
	c, _, _ := newTestCoordinator(t, client)

	_, err := c.RunSync(ctx, "missing")
	assert.ErrorIs(t, err, types.ErrConnectionNotFound)
}

func TestRunSyncUnregisteredProvider(t *testing.T) {
	ctx := context.Background()
	client := &fakeClient{name: "nylas"}
	c, db, _ := newTestCoordinator(t, client)

	conn, err := db.CreateConnection(ctx, &types.Connection{UserID: "u1", Provider: "gong"})
	require.NoError(t, err)

	_, err = c.RunSync(ctx, conn.ID)
	var validation *types.ValidationError
	require.ErrorAs(t, err, &validation)
}

func TestRunSyncResolvesEntitiesAndEdges(t *testing.T) {
	ctx := context.Background()
	client := &fakeClient{
		name:     "nylas",
		identity: &provider.Identity{ProviderUserID: "acct-1", EmailAddress: "owner@me.com"},
		items: []*provider.Item{
			{
				ExternalID: "msg-1",
				ThreadID:   "t1",
				Sender:     provider.Participant{Name: "Jane Doe", Email: "jane@acme.com"},
				Participants: []provider.Participant{
					{Name: "Owner", Email: "owner@me.com"},
					{Name: "Pat", Email: "pat@gmail.com"},
				},
				Timestamp: syncBase,
			},
		},
	}
	c, db, conn := newTestCoordinator(t, client)

	report, err := c.RunSync(ctx, conn.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Created)

	// The counterpart resolved by normalized email.
	jane, err := db.GetPersonByEmail(ctx, "jane@acme.com")
	require.NoError(t, err)
	assert.Equal(t, "Jane", jane.GivenName)
	assert.Equal(t, "Doe", jane.FamilyName)

	// Her corporate domain produced an organization and a works_at edge.
	org, err := db.GetOrganizationByDomain(ctx, "acme.com")
	require.NoError(t, err)
	_, err = db.GetActiveRelationship(ctx, jane.Ref(), org.Ref(), types.WorksAtRelationship)
	require.NoError(t, err)

	// The generic gmail domain produced a person but no organization.
	_, err = db.GetPersonByEmail(ctx, "pat@gmail.com")
	require.NoError(t, err)
	_, err = db.GetOrganizationByDomain(ctx, "gmail.com")
	assert.ErrorIs(t, err, types.ErrOrganizationNotFound)

	// The owner communicates with the counterpart.
	owner, err := db.GetPersonByEmail(ctx, "owner@me.com")
	require.NoError(t, err)
	_, err = db.GetActiveRelationship(ctx, owner.Ref(), jane.Ref(), types.CommunicatesWithRelationship)
	require.NoError(t, err)

	// The interaction carries the resolved links.
	interactions, err := db.ListInteractions(ctx, store.InteractionFilter{PersonID: jane.ID})
	require.NoError(t, err)
	require.Len(t, interactions, 1)
	assert.Contains(t, interactions[0].OrganizationIDs, org.ID)
}
