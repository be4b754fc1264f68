package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEmail(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"lowercases and trims", " Jane@Acme.COM ", "jane@acme.com"},
		{"already normalized", "jane@acme.com", "jane@acme.com"},
		{"missing at sign", "not-an-email", ""},
		{"missing local part", "@acme.com", ""},
		{"missing domain", "jane@", ""},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Email(tt.input))
		})
	}
}

func TestEmailDomain(t *testing.T) {
	assert.Equal(t, "acme.com", EmailDomain("Jane@Acme.com"))
	assert.Equal(t, "", EmailDomain("garbage"))
}

func TestDomain(t *testing.T) {
	assert.Equal(t, "acme.com", Domain(" WWW.Acme.com "))
	assert.Equal(t, "acme.co.uk", Domain("acme.co.uk"))
	assert.Equal(t, "", Domain(""))
}

func TestDomainLabel(t *testing.T) {
	assert.Equal(t, "acme", DomainLabel("acme.com"))
	assert.Equal(t, "acme", DomainLabel("www.acme.io"))
}

func TestCanonicalKey(t *testing.T) {
	assert.Equal(t, "acmelabs", CanonicalKey("Acme Labs"))
	assert.Equal(t, "acmelabs", CanonicalKey("  ACME-Labs!  "))
	assert.Equal(t, "", CanonicalKey("!!!"))
}

func TestOrgName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"drops corporate suffix", "Acme Labs", "acme"},
		{"drops inc", "Acme Inc.", "acme"},
		{"keeps multiword core", "Blue River", "blueriver"},
		{"all suffix falls back", "Labs Inc", "labsinc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, OrgName(tt.input))
		})
	}
}

func TestPrimaryWord(t *testing.T) {
	assert.Equal(t, "acme", PrimaryWord("Acme Labs"))
	assert.Equal(t, "blue", PrimaryWord("Blue River Technology"))
}

func TestSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, Similarity("acme", "acme"))
	assert.Greater(t, Similarity("acme", "acmelabs"), 0.4)
	assert.Less(t, Similarity("acme", "globex"), 0.5)
	assert.Equal(t, 0.0, Similarity("", "acme"))
}
