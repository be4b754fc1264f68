package resolver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundprediction/go-rolodex/pkg/facts"
	"github.com/soundprediction/go-rolodex/pkg/store"
	"github.com/soundprediction/go-rolodex/pkg/types"
)

func newTestResolver() (*Resolver, store.Store) {
	db := store.NewMemoryStore()
	return NewResolver(db, facts.NewStore(db, nil), nil), db
}

func TestResolvePersonDedupesByNormalizedEmail(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestResolver()

	first, err := r.ResolveOrCreatePerson(ctx, PersonInput{
		GivenName: "Jane",
		Email:     "jane@acme.com",
		Source:    types.Provenance{SourceType: "email_sync"},
	}, true)
	require.NoError(t, err)
	assert.True(t, first.IsNew)

	// Same address with different casing and whitespace resolves, never
	// creates.
	second, err := r.ResolveOrCreatePerson(ctx, PersonInput{
		GivenName:  "Jane",
		FamilyName: "Doe",
		Email:      " Jane@Acme.com ",
		Source:     types.Provenance{SourceType: "import"},
	}, true)
	require.NoError(t, err)

	assert.False(t, second.IsNew)
	assert.Equal(t, first.Person.ID, second.Person.ID)
	assert.True(t, second.WasUpdated)
	assert.Equal(t, "Doe", second.Person.FamilyName)
}

func TestResolvePersonMergeFillsOnlyEmptyFields(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestResolver()

	_, err := r.ResolveOrCreatePerson(ctx, PersonInput{
		GivenName: "Jane",
		Email:     "jane@acme.com",
		City:      "Berlin",
	}, true)
	require.NoError(t, err)

	res, err := r.ResolveOrCreatePerson(ctx, PersonInput{
		GivenName: "Janet",
		Email:     "jane@acme.com",
		City:      "Lisbon",
		Phone:     "+49 30 1234",
	}, true)
	require.NoError(t, err)

	// Existing values survive; only the missing phone was filled.
	assert.Equal(t, "Jane", res.Person.GivenName)
	assert.Equal(t, "Berlin", res.Person.City)
	assert.Equal(t, "+49 30 1234", res.Person.Phone)
}

func TestResolvePersonWithoutEmailAlwaysCreates(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestResolver()

	first, err := r.ResolveOrCreatePerson(ctx, PersonInput{GivenName: "Jane"}, true)
	require.NoError(t, err)
	second, err := r.ResolveOrCreatePerson(ctx, PersonInput{GivenName: "Jane"}, true)
	require.NoError(t, err)

	// No email means no dedup key; each observation is its own person.
	assert.NotEqual(t, first.Person.ID, second.Person.ID)
}

func TestResolvePersonRequiresAName(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestResolver()

	_, err := r.ResolveOrCreatePerson(ctx, PersonInput{Email: "jane@acme.com"}, true)

	var validation *types.ValidationError
	require.ErrorAs(t, err, &validation)
}

func TestResolvePersonRecordsProvenanceFacts(t *testing.T) {
	ctx := context.Background()
	r, db := newTestResolver()

	res, err := r.ResolveOrCreatePerson(ctx, PersonInput{
		GivenName: "Jane",
		Email:     "jane@acme.com",
		Source:    types.Provenance{SourceType: "email_sync", SourceID: "msg-1"},
	}, true)
	require.NoError(t, err)

	current, err := db.CurrentFacts(ctx, res.Person.Ref(), "identity")
	require.NoError(t, err)
	require.NotEmpty(t, current)
	assert.Equal(t, "email_sync", current[0].Source.SourceType)
}

func TestResolveOrganizationPrefersDomain(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestResolver()

	first, err := r.ResolveOrCreateOrganization(ctx, "Acme Labs", "acme.com")
	require.NoError(t, err)
	assert.True(t, first.IsNew)

	// A different name with the same domain resolves to the same row.
	second, err := r.ResolveOrCreateOrganization(ctx, "Acme Incorporated", "acme.com")
	require.NoError(t, err)
	assert.False(t, second.IsNew)
	assert.Equal(t, first.Organization.ID, second.Organization.ID)
}

func TestResolveOrganizationByCanonicalKeyBackfillsDomain(t *testing.T) {
	ctx := context.Background()
	r, db := newTestResolver()

	first, err := r.ResolveOrCreateOrganization(ctx, "Acme Labs", "")
	require.NoError(t, err)
	assert.Empty(t, first.Organization.Domain)

	second, err := r.ResolveOrCreateOrganization(ctx, "acme-labs", "acme.com")
	require.NoError(t, err)
	assert.Equal(t, first.Organization.ID, second.Organization.ID)

	got, err := db.GetOrganization(ctx, first.Organization.ID)
	require.NoError(t, err)
	assert.Equal(t, "acme.com", got.Domain)
}

func TestResolveOrganizationRequiresName(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestResolver()

	_, err := r.ResolveOrCreateOrganization(ctx, "  ", "acme.com")

	var validation *types.ValidationError
	require.ErrorAs(t, err, &validation)
}
