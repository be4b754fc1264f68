package dto

// ResolvePersonRequest asks the engine to resolve or create a person from a
// partial observation.
type ResolvePersonRequest struct {
	GivenName  string            `json:"given_name"`
	FamilyName string            `json:"family_name"`
	Email      string            `json:"email,omitempty"`
	Phone      string            `json:"phone,omitempty"`
	City       string            `json:"city,omitempty"`
	Country    string            `json:"country,omitempty"`
	Handles    map[string]string `json:"handles,omitempty"`
	SourceType string            `json:"source_type,omitempty"`
	SourceID   string            `json:"source_id,omitempty"`
	Confidence float64           `json:"confidence,omitempty"`
}

// ResolveOrganizationRequest asks the engine to resolve or create an
// organization by name and optional domain.
type ResolveOrganizationRequest struct {
	Name   string `json:"name" binding:"required"`
	Domain string `json:"domain,omitempty"`
}

// PromoteDomainRequest applies a confirmed domain to an organization.
type PromoteDomainRequest struct {
	Domain string `json:"domain" binding:"required"`
}
