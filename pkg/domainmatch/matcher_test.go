package domainmatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindCandidatesLabelExact(t *testing.T) {
	candidates := FindCandidates("Acme Labs", []Sender{
		{FromEmail: "jane@acme.com", FromName: "Jane Doe"},
	})

	require.Len(t, candidates, 1)
	assert.Equal(t, "acme.com", candidates[0].Domain)
	assert.GreaterOrEqual(t, candidates[0].Score, 0.9)
	assert.Equal(t, "label_exact", candidates[0].Rule)
	assert.True(t, candidates[0].AutoApplicable())
}

func TestFindCandidatesIsDeterministic(t *testing.T) {
	senders := []Sender{
		{FromEmail: "jane@acme.com", FromName: "Jane Doe"},
		{FromEmail: "billing@acmeapp.io", FromName: "Acme Billing"},
		{FromEmail: "info@acmelabs.io", FromName: ""},
		{FromEmail: "newsletter@substack.com", FromName: "Acme Weekly"},
	}

	first := FindCandidates("Acme Labs", senders)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, FindCandidates("Acme Labs", senders))
	}
}

func TestFindCandidatesSkipsBlockedDomains(t *testing.T) {
	candidates := FindCandidates("Acme Labs", []Sender{
		{FromEmail: "jane.acme@gmail.com", FromName: "Jane from Acme"},
		{FromEmail: "acme@outlook.com", FromName: "Acme Support"},
	})
	assert.Empty(t, candidates)
}

func TestFindCandidatesDisplayNameContains(t *testing.T) {
	candidates := FindCandidates("Globex Corporation", []Sender{
		{FromEmail: "hans@gbx-mail.de", FromName: "Hans at Globex"},
	})

	require.Len(t, candidates, 1)
	assert.Equal(t, "gbx-mail.de", candidates[0].Domain)
	assert.Equal(t, "display_name_contains", candidates[0].Rule)
	assert.True(t, candidates[0].AutoApplicable())
}

func TestFindCandidatesDedupesKeepingBestScore(t *testing.T) {
	candidates := FindCandidates("Acme Labs", []Sender{
		{FromEmail: "noreply@acme.com", FromName: ""},
		{FromEmail: "jane@acme.com", FromName: "Jane at Acme"},
	})

	require.Len(t, candidates, 1)
	assert.Equal(t, 1.0, candidates[0].Score)
}

func TestFindCandidatesOrdering(t *testing.T) {
	candidates := FindCandidates("Acme Labs", []Sender{
		{FromEmail: "jane@acme.com", FromName: ""},
		{FromEmail: "team@acmeventures.io", FromName: "Acme Ventures Team"},
	})

	require.Len(t, candidates, 2)
	assert.Equal(t, "acme.com", candidates[0].Domain)
	assert.Greater(t, candidates[0].Score, candidates[1].Score)
}

func TestFindCandidatesEmptyOrgName(t *testing.T) {
	assert.Nil(t, FindCandidates("", []Sender{{FromEmail: "jane@acme.com"}}))
}

func TestBlocked(t *testing.T) {
	assert.True(t, Blocked("gmail.com"))
	assert.True(t, Blocked("WWW.Gmail.com"))
	assert.False(t, Blocked("acme.com"))
}

func TestAutoApplicableThreshold(t *testing.T) {
	assert.True(t, Candidate{Score: 0.9}.AutoApplicable())
	assert.False(t, Candidate{Score: 0.89}.AutoApplicable())
}
