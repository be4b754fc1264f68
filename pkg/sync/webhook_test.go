package sync

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundprediction/go-rolodex/pkg/provider"
	"github.com/soundprediction/go-rolodex/pkg/store"
	"github.com/soundprediction/go-rolodex/pkg/types"
)

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func webhookClient() *fakeClient {
	return &fakeClient{
		name:     "nylas",
		identity: &provider.Identity{ProviderUserID: "acct-1", EmailAddress: "owner@me.com"},
		items: []*provider.Item{
			{
				ExternalID: "msg-1",
				ThreadID:   "t1",
				Sender:     provider.Participant{Name: "Jane Doe", Email: "jane@acme.com"},
				Timestamp:  syncBase,
			},
		},
	}
}

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"event_type":"message.created"}`)
	assert.True(t, VerifySignature("secret", body, sign("secret", body)))
	assert.False(t, VerifySignature("secret", body, sign("other", body)))
	assert.False(t, VerifySignature("secret", body, "not-hex"))
}

func TestHandleWebhookRejectsBadSignature(t *testing.T) {
	ctx := context.Background()
	client := webhookClient()
	c, db, _ := newTestCoordinator(t, client)

	conn, err := db.CreateConnection(ctx, &types.Connection{
		UserID:         "u1",
		Provider:       "nylas",
		WebhookEnabled: true,
		WebhookSecret:  "secret",
	})
	require.NoError(t, err)

	body := []byte(`{"event_type":"message.created","external_item_id":"msg-1"}`)

	_, err = c.HandleWebhook(ctx, "nylas", body, sign("wrong", body), conn.ID)

	var sigErr *types.SignatureError
	require.ErrorAs(t, err, &sigErr)
	assert.Equal(t, conn.ID, sigErr.ConnectionID)

	// No state was touched.
	interactions, err := db.ListInteractions(ctx, store.InteractionFilter{})
	require.NoError(t, err)
	assert.Empty(t, interactions)
	got, err := db.GetConnection(ctx, conn.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Cursor)
}

func TestHandleWebhookAcceptsValidSignature(t *testing.T) {
	ctx := context.Background()
	client := webhookClient()
	c, db, _ := newTestCoordinator(t, client)

	conn, err := db.CreateConnection(ctx, &types.Connection{
		UserID:         "u1",
		Provider:       "nylas",
		WebhookEnabled: true,
		WebhookSecret:  "secret",
	})
	require.NoError(t, err)

	body := []byte(`{"event_type":"message.created","external_item_id":"msg-1"}`)

	results, err := c.HandleWebhook(ctx, "nylas", body, sign("secret", body), conn.ID)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Accepted)
	require.NotNil(t, results[0].Report)
	assert.Equal(t, 1, results[0].Report.Created)

	// The item landed and the cursor moved forward.
	interactions, err := db.ListInteractions(ctx, store.InteractionFilter{})
	require.NoError(t, err)
	assert.Len(t, interactions, 1)
	got, err := db.GetConnection(ctx, conn.ID)
	require.NoError(t, err)
	assert.Equal(t, syncBase.Format(store.CursorTimeFormat), got.Cursor)
}

func TestHandleWebhookReplayIsDuplicateSafe(t *testing.T) {
	ctx := context.Background()
	client := webhookClient()
	c, db, _ := newTestCoordinator(t, client)

	conn, err := db.CreateConnection(ctx, &types.Connection{
		UserID:         "u1",
		Provider:       "nylas",
		WebhookEnabled: true,
		WebhookSecret:  "secret",
	})
	require.NoError(t, err)

	body := []byte(`{"event_type":"message.created","external_item_id":"msg-1"}`)
	signature := sign("secret", body)

	first, err := c.HandleWebhook(ctx, "nylas", body, signature, conn.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, first[0].Report.Created)

	second, err := c.HandleWebhook(ctx, "nylas", body, signature, conn.ID)
	require.NoError(t, err)
	assert.True(t, second[0].Accepted)
	assert.Equal(t, 0, second[0].Report.Created)
	assert.Equal(t, 1, second[0].Report.Skipped)

	interactions, err := db.ListInteractions(ctx, store.InteractionFilter{})
	require.NoError(t, err)
	assert.Len(t, interactions, 1)
}

func TestHandleWebhookSkipsVerificationWithoutSecret(t *testing.T) {
	ctx := context.Background()
	client := webhookClient()
	c, db, _ := newTestCoordinator(t, client)

	conn, err := db.CreateConnection(ctx, &types.Connection{
		UserID:         "u1",
		Provider:       "nylas",
		WebhookEnabled: true,
	})
	require.NoError(t, err)

	body := []byte(`{"event_type":"message.created","external_item_id":"msg-1"}`)

	results, err := c.HandleWebhook(ctx, "nylas", body, "", conn.ID)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Accepted)
}

func TestHandleWebhookRoutesByProviderUser(t *testing.T) {
	ctx := context.Background()
	client := webhookClient()
	c, db, _ := newTestCoordinator(t, client)

	conn, err := db.CreateConnection(ctx, &types.Connection{
		UserID:         "u1",
		Provider:       "nylas",
		ProviderUserID: "acct-1",
		WebhookEnabled: true,
	})
	require.NoError(t, err)

	body := []byte(`{"event_type":"message.created","external_item_id":"msg-1","provider_user_id":"acct-1"}`)

	results, err := c.HandleWebhook(ctx, "nylas", body, "", "")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, conn.ID, results[0].ConnectionID)
	assert.True(t, results[0].Accepted)
}

func TestHandleWebhookBroadcastsToWebhookEnabledConnections(t *testing.T) {
	ctx := context.Background()
	client := webhookClient()
	c, db, _ := newTestCoordinator(t, client)

	enabled, err := db.CreateConnection(ctx, &types.Connection{UserID: "u1", Provider: "nylas", WebhookEnabled: true})
	require.NoError(t, err)
	_, err = db.CreateConnection(ctx, &types.Connection{UserID: "u2", Provider: "nylas", WebhookEnabled: false})
	require.NoError(t, err)

	body := []byte(`{"event_type":"message.created","external_item_id":"msg-1"}`)

	results, err := c.HandleWebhook(ctx, "nylas", body, "", "")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, enabled.ID, results[0].ConnectionID)
}

func TestHandleWebhookBroadcastIsolatesSignatureFailures(t *testing.T) {
	ctx := context.Background()
	client := webhookClient()
	c, db, _ := newTestCoordinator(t, client)

	_, err := db.CreateConnection(ctx, &types.Connection{UserID: "u1", Provider: "nylas", WebhookEnabled: true, WebhookSecret: "alpha"})
	require.NoError(t, err)
	_, err = db.CreateConnection(ctx, &types.Connection{UserID: "u2", Provider: "nylas", WebhookEnabled: true, WebhookSecret: "beta"})
	require.NoError(t, err)

	body := []byte(`{"event_type":"message.created","external_item_id":"msg-1"}`)

	// A signature valid for one connection is rejected by the other, but
	// the broadcast itself succeeds with per-connection outcomes.
	results, err := c.HandleWebhook(ctx, "nylas", body, sign("alpha", body), "")
	require.NoError(t, err)
	require.Len(t, results, 2)

	accepted := 0
	for _, result := range results {
		if result.Accepted {
			accepted++
		} else {
			assert.Contains(t, result.Error, "signature mismatch")
		}
	}
	assert.Equal(t, 1, accepted)
}

func TestHandleWebhookRejectsMalformedPayload(t *testing.T) {
	ctx := context.Background()
	client := webhookClient()
	c, _, _ := newTestCoordinator(t, client)

	var validation *types.ValidationError

	_, err := c.HandleWebhook(ctx, "nylas", []byte("not json"), "", "")
	require.ErrorAs(t, err, &validation)

	_, err = c.HandleWebhook(ctx, "nylas", []byte(`{"event_type":"message.created"}`), "", "")
	require.ErrorAs(t, err, &validation)
}
