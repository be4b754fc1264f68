// Package rolodex is a relationship intelligence engine: it resolves people
// and organizations from communication streams into a deduplicated entity
// graph, versions every assertion temporally, and scores how strong each
// relationship currently is.
package rolodex

import (
	"context"
	"log/slog"
	"time"

	"github.com/soundprediction/go-rolodex/pkg/cache"
	"github.com/soundprediction/go-rolodex/pkg/domainmatch"
	"github.com/soundprediction/go-rolodex/pkg/enrich"
	"github.com/soundprediction/go-rolodex/pkg/facts"
	"github.com/soundprediction/go-rolodex/pkg/graph"
	"github.com/soundprediction/go-rolodex/pkg/normalize"
	"github.com/soundprediction/go-rolodex/pkg/provider"
	"github.com/soundprediction/go-rolodex/pkg/resolver"
	"github.com/soundprediction/go-rolodex/pkg/store"
	"github.com/soundprediction/go-rolodex/pkg/strength"
	syncpkg "github.com/soundprediction/go-rolodex/pkg/sync"
	"github.com/soundprediction/go-rolodex/pkg/types"
)

// Rolodex is the main interface for interacting with the relationship
// engine. It exposes identity resolution, graph queries, strength scoring
// and the sync surface behind one handle.
type Rolodex interface {
	// ResolvePerson resolves an observation to an existing person by
	// normalized email or creates a new one.
	ResolvePerson(ctx context.Context, input resolver.PersonInput) (*resolver.PersonResolution, error)

	// ResolveOrganization resolves a name (and optional domain) to an
	// organization, creating it on a miss.
	ResolveOrganization(ctx context.Context, name, domain string) (*resolver.OrganizationResolution, error)

	// RunSync executes one batch sync run for a connection.
	RunSync(ctx context.Context, connectionID string) (*types.SyncReport, error)

	// HandleWebhook ingests one provider webhook delivery.
	HandleWebhook(ctx context.Context, providerName string, body []byte, signature, connectionID string) ([]*types.WebhookResult, error)

	// RelationshipStrength returns the strength score for a person,
	// preferring the cached snapshot.
	RelationshipStrength(ctx context.Context, personID string) (*strength.Result, error)

	// DomainCandidates ranks likely communication domains for an
	// organization from its observed sender corpus.
	DomainCandidates(ctx context.Context, organizationID string) ([]domainmatch.Candidate, error)

	// PromoteDomain applies a confirmed domain to an organization.
	PromoteDomain(ctx context.Context, organizationID, domain string) error

	// Connections answers "who is connected to X" from the graph.
	Connections(ctx context.Context, endpoint types.NodeRef, filter graph.Filter) ([]*types.Relationship, error)

	// CreateIndices installs storage constraints and indices.
	CreateIndices(ctx context.Context) error

	// Close closes all connections and cleans up resources.
	Close(ctx context.Context) error
}

// Client is the main implementation of the Rolodex interface.
type Client struct {
	db          store.Store
	facts       *facts.Store
	graph       *graph.Graph
	resolver    *resolver.Resolver
	scorer      *strength.Scorer
	coordinator *syncpkg.Coordinator
	enricher    enrich.Provider
	config      *Config
	logger      *slog.Logger
}

// Config holds configuration for the Rolodex client.
type Config struct {
	// Snapshots caches strength snapshots; nil disables caching.
	Snapshots cache.Cache
	// Archive receives the sync audit trail; nil disables archiving.
	Archive syncpkg.Archiver
	// Enricher supplies optional web enrichment; nil disables it.
	Enricher enrich.Provider
	// SyncMaxItems bounds one batch run.
	SyncMaxItems int
	// SyncLookback bounds the first run of an uncursored connection.
	SyncLookback time.Duration
	// Logger for all components; slog.Default when nil.
	Logger *slog.Logger
}

// NewClient creates a Rolodex client over the provided store.
func NewClient(db store.Store, config *Config) *Client {
	if config == nil {
		config = &Config{}
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	factStore := facts.NewStore(db, logger)
	g := graph.NewGraph(db, logger)
	res := resolver.NewResolver(db, factStore, logger)
	scorer := strength.NewScorer(db, config.Snapshots, logger)
	coordinator := syncpkg.NewCoordinator(db, res, g, scorer, logger, syncpkg.Options{
		MaxItems: config.SyncMaxItems,
		Lookback: config.SyncLookback,
		Archive:  config.Archive,
	})

	return &Client{
		db:          db,
		facts:       factStore,
		graph:       g,
		resolver:    res,
		scorer:      scorer,
		coordinator: coordinator,
		enricher:    config.Enricher,
		config:      config,
		logger:      logger,
	}
}

// RegisterProvider makes a provider client available to sync runs and
// webhooks. Wrap flaky transports with provider.NewBreakerClient first.
func (c *Client) RegisterProvider(client provider.Client) {
	c.coordinator.RegisterClient(client)
}

// ResolvePerson resolves an observation to a person, deduplicating by
// normalized email.
func (c *Client) ResolvePerson(ctx context.Context, input resolver.PersonInput) (*resolver.PersonResolution, error) {
	res, err := c.resolver.ResolveOrCreatePerson(ctx, input, true)
	if err != nil {
		return nil, err
	}
	if res.IsNew && c.enricher != nil {
		c.enrichPerson(ctx, res.Person)
	}
	return res, nil
}

// enrichPerson fills empty profile fields from the web enrichment provider.
// Enrichment is strictly best-effort.
func (c *Client) enrichPerson(ctx context.Context, person *types.Person) {
	name := person.GivenName
	if person.FamilyName != "" {
		name += " " + person.FamilyName
	}
	hint := normalize.EmailDomain(person.Email)

	profile, err := c.enricher.LookupPerson(ctx, name, hint)
	if err != nil || profile.Empty() {
		return
	}

	changed := false
	if person.City == "" && profile.City != "" {
		person.City = profile.City
		changed = true
	}
	if person.Country == "" && profile.Country != "" {
		person.Country = profile.Country
		changed = true
	}
	if profile.Handle != "" {
		if person.Handles == nil {
			person.Handles = map[string]string{}
		}
		if person.Handles["web"] == "" {
			person.Handles["web"] = profile.Handle
			changed = true
		}
	}
	if !changed {
		return
	}
	if err := c.db.UpdatePerson(ctx, person); err != nil {
		c.logger.Warn("failed to persist enrichment", "person_id", person.ID, "error", err)
		return
	}
	if profile.Title != "" {
		source := types.Provenance{SourceType: "enrichment"}
		if _, err := c.facts.SetCurrentFact(ctx, person.Ref(), "profile", "title", profile.Title, source, 0.6); err != nil {
			c.logger.Warn("failed to record enrichment fact", "person_id", person.ID, "error", err)
		}
	}
}

// ResolveOrganization resolves a name and optional domain to an organization.
func (c *Client) ResolveOrganization(ctx context.Context, name, domain string) (*resolver.OrganizationResolution, error) {
	return c.resolver.ResolveOrCreateOrganization(ctx, name, domain)
}

// RunSync executes one batch sync run for a connection.
func (c *Client) RunSync(ctx context.Context, connectionID string) (*types.SyncReport, error) {
	return c.coordinator.RunSync(ctx, connectionID)
}

// HandleWebhook ingests one provider webhook delivery.
func (c *Client) HandleWebhook(ctx context.Context, providerName string, body []byte, signature, connectionID string) ([]*types.WebhookResult, error) {
	return c.coordinator.HandleWebhook(ctx, providerName, body, signature, connectionID)
}

// RelationshipStrength returns the strength score for a person.
func (c *Client) RelationshipStrength(ctx context.Context, personID string) (*strength.Result, error) {
	return c.scorer.Get(ctx, personID)
}

// DomainCandidates ranks likely communication domains for an organization
// using the senders observed on interactions linked to it.
func (c *Client) DomainCandidates(ctx context.Context, organizationID string) ([]domainmatch.Candidate, error) {
	org, err := c.db.GetOrganization(ctx, organizationID)
	if err != nil {
		return nil, err
	}

	interactions, err := c.db.ListInteractions(ctx, store.InteractionFilter{OrganizationID: organizationID})
	if err != nil {
		return nil, err
	}

	var senders []domainmatch.Sender
	for _, interaction := range interactions {
		for _, p := range interaction.Participants {
			if p.Email == "" {
				continue
			}
			senders = append(senders, domainmatch.Sender{FromEmail: p.Email, FromName: p.Name})
		}
	}
	return domainmatch.FindCandidates(org.Name, senders), nil
}

// PromoteDomain applies a confirmed domain to an organization. Blocked
// generic domains are rejected; they can never identify an organization.
func (c *Client) PromoteDomain(ctx context.Context, organizationID, domain string) error {
	domain = normalize.Domain(domain)
	if domain == "" {
		return &types.ValidationError{Field: "domain", Reason: "domain is required"}
	}
	if domainmatch.Blocked(domain) {
		return &types.ValidationError{Field: "domain", Reason: "generic provider domains cannot identify an organization"}
	}

	org, err := c.db.GetOrganization(ctx, organizationID)
	if err != nil {
		return err
	}
	if org.Domain == domain {
		return nil
	}
	org.Domain = domain
	if err := c.db.UpdateOrganization(ctx, org); err != nil {
		return err
	}

	source := types.Provenance{SourceType: "manual"}
	if _, err := c.facts.SetCurrentFact(ctx, org.Ref(), "identity", "domain", domain, source, 1.0); err != nil {
		c.logger.Warn("failed to record domain fact", "organization_id", org.ID, "error", err)
	}
	return nil
}

// Connections answers "who is connected to X" from the graph.
func (c *Client) Connections(ctx context.Context, endpoint types.NodeRef, filter graph.Filter) ([]*types.Relationship, error) {
	filter.Endpoint = &endpoint
	return c.graph.Query(ctx, filter)
}

// CreateIndices installs storage constraints and indices.
func (c *Client) CreateIndices(ctx context.Context) error {
	return c.db.CreateIndices(ctx)
}

// Close closes all connections and cleans up resources.
func (c *Client) Close(ctx context.Context) error {
	if c.config.Snapshots != nil {
		if err := c.config.Snapshots.Close(); err != nil {
			c.logger.Warn("failed to close snapshot cache", "error", err)
		}
	}
	return c.db.Close(ctx)
}
