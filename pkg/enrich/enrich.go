// Package enrich wraps the external web-enrichment capability behind a
// narrow interface. Enrichment is best-effort by contract: a provider that
// returns nothing parseable degrades to "no enrichment for this record" and
// never fails the caller.
package enrich

import (
	"context"
)

// Profile is the structured record an enrichment lookup may return. All
// fields are optional.
type Profile struct {
	ProfileURL string `json:"profile_url,omitempty"`
	Title      string `json:"title,omitempty"`
	City       string `json:"city,omitempty"`
	Country    string `json:"country,omitempty"`
	Handle     string `json:"handle,omitempty"`
}

// Empty reports whether the lookup produced nothing usable.
func (p *Profile) Empty() bool {
	return p == nil || (p.ProfileURL == "" && p.Title == "" && p.City == "" && p.Country == "" && p.Handle == "")
}

// Provider looks up public profile details for a person.
type Provider interface {
	// LookupPerson enriches a name with an optional organization hint.
	// A nil profile with a nil error means "nothing found", which callers
	// must treat as a skip, not a failure.
	LookupPerson(ctx context.Context, name, organizationHint string) (*Profile, error)
}
