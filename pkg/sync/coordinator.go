// Package sync orchestrates provider imports: batch runs over a forward-only
// cursor, webhook-triggered single-item ingestion, and the entity/graph
// writes both paths share. Item failures are isolated; one bad item never
// aborts a run, and the cursor only advances past durably-committed items.
package sync

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/soundprediction/go-rolodex/pkg/domainmatch"
	"github.com/soundprediction/go-rolodex/pkg/graph"
	"github.com/soundprediction/go-rolodex/pkg/normalize"
	"github.com/soundprediction/go-rolodex/pkg/provider"
	"github.com/soundprediction/go-rolodex/pkg/resolver"
	"github.com/soundprediction/go-rolodex/pkg/store"
	"github.com/soundprediction/go-rolodex/pkg/strength"
	"github.com/soundprediction/go-rolodex/pkg/types"
)

const (
	// DefaultMaxItems bounds one batch run.
	DefaultMaxItems = 50
	// DefaultLookback bounds the first run of a connection with no cursor.
	DefaultLookback = 90 * 24 * time.Hour

	// connection status values persisted after a run.
	statusActive = "active"
	statusError  = "error"
)

// Archiver receives an audit copy of every finished run. Archive writes are
// best-effort; a failing archive never fails a sync.
type Archiver interface {
	RecordRun(ctx context.Context, report *types.SyncReport) error
	RecordItem(ctx context.Context, connectionID, providerName, externalID, outcome, message string, occurredAt time.Time) error
}

// Coordinator drives sync runs for registered providers.
type Coordinator struct {
	db       store.Store
	resolver *resolver.Resolver
	graph    *graph.Graph
	scorer   *strength.Scorer
	archive  Archiver
	clients  map[string]provider.Client
	logger   *slog.Logger
	maxItems int
	lookback time.Duration
	now      func() time.Time
}

// Options tunes a coordinator. Zero values take the defaults.
type Options struct {
	MaxItems int
	Lookback time.Duration
	Archive  Archiver
}

// NewCoordinator creates a sync coordinator. The scorer may be nil when
// snapshot invalidation is not wanted.
func NewCoordinator(db store.Store, res *resolver.Resolver, g *graph.Graph, scorer *strength.Scorer, logger *slog.Logger, opts Options) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxItems <= 0 {
		opts.MaxItems = DefaultMaxItems
	}
	if opts.Lookback <= 0 {
		opts.Lookback = DefaultLookback
	}
	return &Coordinator{
		db:       db,
		resolver: res,
		graph:    g,
		scorer:   scorer,
		archive:  opts.Archive,
		clients:  map[string]provider.Client{},
		logger:   logger,
		maxItems: opts.MaxItems,
		lookback: opts.Lookback,
		now:      time.Now,
	}
}

// RegisterClient makes a provider client available to runs and webhooks.
func (c *Coordinator) RegisterClient(client provider.Client) {
	c.clients[client.Name()] = client
}

func (c *Coordinator) client(providerName string) (provider.Client, error) {
	client, ok := c.clients[providerName]
	if !ok {
		return nil, &types.ValidationError{Field: "provider", Reason: fmt.Sprintf("no client registered for %q", providerName)}
	}
	return client, nil
}

// RunSync executes one batch run for a connection: verify the credential,
// list a bounded batch past the cursor, ingest each item independently, then
// advance the cursor to the newest successfully-committed item. Credential
// and listing failures abort the run without touching the cursor; item
// failures are recorded in the report and skipped over, and the cursor still
// advances to the newest success, so a failed item is only retried if the
// provider re-serves it past the cursor.
func (c *Coordinator) RunSync(ctx context.Context, connectionID string) (*types.SyncReport, error) {
	conn, err := c.db.GetConnection(ctx, connectionID)
	if err != nil {
		return nil, err
	}
	client, err := c.client(conn.Provider)
	if err != nil {
		return nil, err
	}

	report := &types.SyncReport{
		ConnectionID: conn.ID,
		Provider:     conn.Provider,
		StartedAt:    c.now().UTC(),
	}

	identity, err := client.VerifyCredential(ctx)
	if err != nil {
		c.markFailed(ctx, conn, "credential verification failed: "+err.Error())
		return nil, &types.UpstreamProviderError{Provider: conn.Provider, Op: "verify_credential", Err: err}
	}
	if identity != nil && conn.ProviderUserID == "" && identity.ProviderUserID != "" {
		conn.ProviderUserID = identity.ProviderUserID
		if err := c.db.UpdateConnection(ctx, conn); err != nil {
			c.logger.Warn("failed to backfill provider user id",
				"connection_id", conn.ID, "error", err)
		}
	}

	fromDate := time.Time{}
	if conn.Cursor == "" {
		fromDate = c.now().UTC().Add(-c.lookback)
	}

	items, err := client.ListItemsSince(ctx, conn.Cursor, c.maxItems, fromDate)
	if err != nil {
		c.markFailed(ctx, conn, "listing failed: "+err.Error())
		return nil, &types.UpstreamProviderError{Provider: conn.Provider, Op: "list_items", Err: err}
	}

	ownerEmail := ""
	if identity != nil {
		ownerEmail = normalize.Email(identity.EmailAddress)
	}

	var newestSuccess time.Time
	for _, item := range items {
		outcome, err := c.ingestItem(ctx, conn, item, ownerEmail)
		if err != nil {
			report.Errors = append(report.Errors, types.SyncItemError{
				ExternalID: item.ExternalID,
				Label:      item.Subject,
				Message:    err.Error(),
			})
			c.recordItem(ctx, conn, item, "error", err.Error())
			continue
		}
		switch outcome {
		case outcomeCreated:
			report.Created++
		case outcomeUpdated:
			report.Updated++
		default:
			report.Skipped++
		}
		if item.Timestamp.After(newestSuccess) {
			newestSuccess = item.Timestamp
		}
		c.recordItem(ctx, conn, item, outcome, "")
	}

	if !newestSuccess.IsZero() {
		cursor := newestSuccess.UTC().Format(store.CursorTimeFormat)
		if err := c.db.AdvanceCursor(ctx, conn.ID, cursor, c.now().UTC()); err != nil {
			c.logger.Error("failed to advance cursor",
				"connection_id", conn.ID, "cursor", cursor, "error", err)
		} else {
			report.Cursor = cursor
		}
	}

	conn.Status = statusActive
	conn.LastError = ""
	if len(report.Errors) > 0 {
		conn.LastError = fmt.Sprintf("%d of %d items failed", len(report.Errors), len(items))
	}
	if err := c.db.UpdateConnection(ctx, conn); err != nil {
		c.logger.Warn("failed to update connection after run",
			"connection_id", conn.ID, "error", err)
	}

	report.FinishedAt = c.now().UTC()
	c.recordRun(ctx, report)
	c.logger.Info("sync run finished",
		"connection_id", conn.ID,
		"provider", conn.Provider,
		"created", report.Created,
		"updated", report.Updated,
		"skipped", report.Skipped,
		"errors", len(report.Errors))
	return report, nil
}

const (
	outcomeCreated = "created"
	outcomeUpdated = "updated"
	outcomeSkipped = "skipped"
)

// ingestItem commits one provider item: resolve every counterpart identity,
// attach organizations by sender domain, upsert the interaction by its
// external id, and refresh the graph edges the item evidences.
func (c *Coordinator) ingestItem(ctx context.Context, conn *types.Connection, item *provider.Item, ownerEmail string) (string, error) {
	if item.ExternalID == "" {
		return "", &types.ValidationError{Field: "external_id", Reason: "provider item has no external id"}
	}
	if item.Timestamp.IsZero() {
		return "", &types.ValidationError{Field: "timestamp", Reason: "provider item has no timestamp"}
	}

	direction := types.Inbound
	if item.Outbound {
		direction = types.Outbound
	}

	interaction := &types.Interaction{
		Provider:     conn.Provider,
		ExternalID:   item.ExternalID,
		ConnectionID: conn.ID,
		ThreadID:     item.ThreadID,
		Direction:    direction,
		Subject:      item.Subject,
		Snippet:      item.Snippet,
		OccurredAt:   item.Timestamp.UTC(),
	}

	var owner *types.Person
	if ownerEmail != "" {
		res, err := c.resolver.ResolveOrCreatePerson(ctx, ownerPersonInput(conn, ownerEmail), true)
		if err == nil {
			owner = res.Person
		} else {
			c.logger.Warn("failed to resolve connection owner",
				"connection_id", conn.ID, "error", err)
		}
	}

	var counterparts []*types.Person
	seenOrgs := map[string]bool{}
	for _, raw := range participantsOf(item) {
		email := normalize.Email(raw.Email)
		if email == "" || email == ownerEmail {
			continue
		}

		given, family := splitName(raw.Name)
		res, err := c.resolver.ResolveOrCreatePerson(ctx, resolver.PersonInput{
			GivenName:  given,
			FamilyName: family,
			Email:      email,
			Source:     types.Provenance{SourceType: conn.Provider + "_sync", SourceID: item.ExternalID},
		}, true)
		if err != nil {
			return "", fmt.Errorf("resolving %s: %w", email, err)
		}
		person := res.Person
		counterparts = append(counterparts, person)

		interaction.Participants = append(interaction.Participants, types.Participant{
			Name:     raw.Name,
			Email:    email,
			PersonID: person.ID,
		})
		interaction.PersonIDs = append(interaction.PersonIDs, person.ID)

		domain := normalize.EmailDomain(email)
		if domain == "" || domainmatch.Blocked(domain) {
			continue
		}
		org, err := c.attachOrganization(ctx, conn, person, domain, item.ExternalID)
		if err != nil {
			c.logger.Warn("failed to attach organization",
				"domain", domain, "person_id", person.ID, "error", err)
			continue
		}
		if !seenOrgs[org.ID] {
			seenOrgs[org.ID] = true
			interaction.OrganizationIDs = append(interaction.OrganizationIDs, org.ID)
		}
	}

	created, err := c.db.UpsertInteraction(ctx, interaction)
	if err != nil {
		return "", err
	}
	if !created {
		// Replay of an already-committed item; entity state is already
		// converged, so skip the edge refresh too.
		return outcomeSkipped, nil
	}

	if owner != nil {
		for _, counterpart := range counterparts {
			if _, err := c.graph.Upsert(ctx, graph.UpsertInput{
				Source:     owner.Ref(),
				Target:     counterpart.Ref(),
				Type:       types.CommunicatesWithRelationship,
				Confidence: 1.0,
				SourceOf:   types.Provenance{SourceType: conn.Provider + "_sync", SourceID: item.ExternalID},
			}); err != nil {
				c.logger.Warn("failed to upsert communicates_with edge",
					"person_id", counterpart.ID, "error", err)
			}
		}
	}

	if c.scorer != nil {
		for _, counterpart := range counterparts {
			c.scorer.Invalidate(counterpart.ID)
		}
	}
	return outcomeCreated, nil
}

// attachOrganization resolves the organization behind a corporate domain and
// records the person's works_at edge. The organization is named after the
// domain label until a richer source supplies the real name.
func (c *Coordinator) attachOrganization(ctx context.Context, conn *types.Connection, person *types.Person, domain, externalID string) (*types.Organization, error) {
	res, err := c.resolver.ResolveOrCreateOrganization(ctx, normalize.DomainLabel(domain), domain)
	if err != nil {
		return nil, err
	}
	org := res.Organization

	if _, err := c.graph.Upsert(ctx, graph.UpsertInput{
		Source:     person.Ref(),
		Target:     org.Ref(),
		Type:       types.WorksAtRelationship,
		Confidence: 0.7,
		SourceOf:   types.Provenance{SourceType: conn.Provider + "_sync", SourceID: externalID},
	}); err != nil {
		return nil, err
	}
	return org, nil
}

func (c *Coordinator) markFailed(ctx context.Context, conn *types.Connection, reason string) {
	conn.Status = statusError
	conn.LastError = reason
	if err := c.db.UpdateConnection(ctx, conn); err != nil {
		c.logger.Warn("failed to mark connection failed",
			"connection_id", conn.ID, "error", err)
	}
}

func (c *Coordinator) recordRun(ctx context.Context, report *types.SyncReport) {
	if c.archive == nil {
		return
	}
	if err := c.archive.RecordRun(ctx, report); err != nil {
		c.logger.Warn("failed to archive sync run",
			"connection_id", report.ConnectionID, "error", err)
	}
}

func (c *Coordinator) recordItem(ctx context.Context, conn *types.Connection, item *provider.Item, outcome, message string) {
	if c.archive == nil {
		return
	}
	if err := c.archive.RecordItem(ctx, conn.ID, conn.Provider, item.ExternalID, outcome, message, item.Timestamp); err != nil {
		c.logger.Warn("failed to archive sync item",
			"connection_id", conn.ID, "external_id", item.ExternalID, "error", err)
	}
}

// participantsOf returns the sender plus the explicit participant list,
// deduplicated by normalized email.
func participantsOf(item *provider.Item) []provider.Participant {
	out := make([]provider.Participant, 0, len(item.Participants)+1)
	seen := map[string]bool{}
	add := func(p provider.Participant) {
		email := normalize.Email(p.Email)
		if email == "" || seen[email] {
			return
		}
		seen[email] = true
		out = append(out, p)
	}
	add(item.Sender)
	for _, p := range item.Participants {
		add(p)
	}
	return out
}

// splitName splits a display name into given and family parts. A single
// token becomes the given name.
func splitName(name string) (string, string) {
	fields := strings.Fields(strings.TrimSpace(name))
	switch len(fields) {
	case 0:
		return "", ""
	case 1:
		return fields[0], ""
	default:
		return fields[0], strings.Join(fields[1:], " ")
	}
}

// ownerPersonInput builds the resolution input for the connection owner. A
// display name is rarely available from the credential, so the email's local
// part stands in for the given name.
func ownerPersonInput(conn *types.Connection, ownerEmail string) resolver.PersonInput {
	local := ownerEmail
	if at := strings.Index(ownerEmail, "@"); at > 0 {
		local = ownerEmail[:at]
	}
	return resolver.PersonInput{
		GivenName: local,
		Email:     ownerEmail,
		Source:    types.Provenance{SourceType: conn.Provider + "_sync", SourceID: conn.ID},
	}
}
