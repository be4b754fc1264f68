package sync

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/soundprediction/go-rolodex/pkg/normalize"
	"github.com/soundprediction/go-rolodex/pkg/provider"
	"github.com/soundprediction/go-rolodex/pkg/store"
	"github.com/soundprediction/go-rolodex/pkg/types"
)

// maxBroadcastTargets bounds the fallback delivery of a webhook payload that
// names neither a connection nor a provider user.
const maxBroadcastTargets = 25

// WebhookPayload is the provider-agnostic event envelope posted to the
// webhook endpoint.
type WebhookPayload struct {
	EventType      string `json:"event_type"`
	ExternalItemID string `json:"external_item_id"`
	ProviderUserID string `json:"provider_user_id,omitempty"`
}

// VerifySignature checks an HMAC-SHA256 hex signature over the raw body.
// Comparison is constant time.
func VerifySignature(secret string, body []byte, signature string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// HandleWebhook ingests one provider webhook delivery. Routing precedence:
// an explicit connectionID wins, then the payload's provider user id, then a
// bounded broadcast to every webhook-enabled connection of the provider.
// Each target verifies the signature against its own secret before any state
// is touched; a connection without a secret skips verification.
//
// A single-target delivery returns its verification or ingestion error
// directly. A broadcast always returns per-connection results and no error.
func (c *Coordinator) HandleWebhook(ctx context.Context, providerName string, body []byte, signature, connectionID string) ([]*types.WebhookResult, error) {
	client, err := c.client(providerName)
	if err != nil {
		return nil, err
	}

	var payload WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &types.ValidationError{Field: "body", Reason: "payload is not valid JSON"}
	}
	if payload.ExternalItemID == "" {
		return nil, &types.ValidationError{Field: "external_item_id", Reason: "payload names no item"}
	}

	targets, broadcast, err := c.webhookTargets(ctx, providerName, connectionID, payload.ProviderUserID)
	if err != nil {
		return nil, err
	}

	if !broadcast {
		conn := targets[0]
		if conn.WebhookSecret != "" && !VerifySignature(conn.WebhookSecret, body, signature) {
			c.logger.Warn("rejected webhook with bad signature", "connection_id", conn.ID)
			return nil, &types.SignatureError{ConnectionID: conn.ID}
		}
	}

	results := make([]*types.WebhookResult, 0, len(targets))
	for _, conn := range targets {
		results = append(results, c.deliverWebhook(ctx, conn, client, body, signature, payload.ExternalItemID))
	}
	return results, nil
}

// webhookTargets resolves the connections a delivery applies to and reports
// whether the fallback broadcast path was taken.
func (c *Coordinator) webhookTargets(ctx context.Context, providerName, connectionID, providerUserID string) ([]*types.Connection, bool, error) {
	if connectionID != "" {
		conn, err := c.db.GetConnection(ctx, connectionID)
		if err != nil {
			return nil, false, err
		}
		return []*types.Connection{conn}, false, nil
	}
	if providerUserID != "" {
		conn, err := c.db.FindConnectionByProviderUser(ctx, providerName, providerUserID)
		if err == nil {
			return []*types.Connection{conn}, false, nil
		}
		if err != types.ErrConnectionNotFound {
			return nil, false, err
		}
		// Fall through to broadcast; the account may not be linked yet.
	}

	conns, err := c.db.ListConnections(ctx, providerName, true)
	if err != nil {
		return nil, false, err
	}
	if len(conns) > maxBroadcastTargets {
		c.logger.Warn("webhook broadcast truncated",
			"provider", providerName,
			"targets", len(conns),
			"limit", maxBroadcastTargets)
		conns = conns[:maxBroadcastTargets]
	}
	return conns, true, nil
}

// deliverWebhook verifies and ingests one payload for one connection. The
// signature check happens before any fetch or write; a mismatch leaves the
// engine state untouched.
func (c *Coordinator) deliverWebhook(ctx context.Context, conn *types.Connection, client provider.Client, body []byte, signature, externalItemID string) *types.WebhookResult {
	result := &types.WebhookResult{ConnectionID: conn.ID}

	if conn.WebhookSecret != "" && !VerifySignature(conn.WebhookSecret, body, signature) {
		result.Error = (&types.SignatureError{ConnectionID: conn.ID}).Error()
		c.logger.Warn("rejected webhook with bad signature", "connection_id", conn.ID)
		return result
	}

	item, err := client.GetItem(ctx, externalItemID)
	if err != nil {
		result.Error = (&types.UpstreamProviderError{Provider: conn.Provider, Op: "get_item", Err: err}).Error()
		return result
	}

	report := &types.SyncReport{
		ConnectionID: conn.ID,
		Provider:     conn.Provider,
		StartedAt:    c.now().UTC(),
	}

	ownerEmail := ""
	if identity, err := client.VerifyCredential(ctx); err == nil && identity != nil {
		ownerEmail = normalize.Email(identity.EmailAddress)
	}

	outcome, err := c.ingestItem(ctx, conn, item, ownerEmail)
	if err != nil {
		result.Error = err.Error()
		report.Errors = append(report.Errors, types.SyncItemError{
			ExternalID: item.ExternalID,
			Label:      item.Subject,
			Message:    err.Error(),
		})
		c.recordItem(ctx, conn, item, "error", err.Error())
	} else {
		result.Accepted = true
		switch outcome {
		case outcomeCreated:
			report.Created++
		case outcomeUpdated:
			report.Updated++
		default:
			report.Skipped++
		}
		c.recordItem(ctx, conn, item, outcome, "")

		// AdvanceCursor is forward-only, so an out-of-order webhook can
		// never drag the batch cursor backwards.
		if !item.Timestamp.IsZero() {
			cursor := item.Timestamp.UTC().Format(store.CursorTimeFormat)
			if err := c.db.AdvanceCursor(ctx, conn.ID, cursor, c.now().UTC()); err != nil {
				c.logger.Warn("failed to advance cursor from webhook",
					"connection_id", conn.ID, "error", err)
			} else {
				report.Cursor = cursor
			}
		}
	}

	report.FinishedAt = c.now().UTC()
	result.Report = report
	return result
}
