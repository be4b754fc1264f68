package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	rolodex "github.com/soundprediction/go-rolodex"
	"github.com/soundprediction/go-rolodex/pkg/server/dto"
)

// webhookSignatureHeader carries the HMAC-SHA256 hex signature of the raw
// request body.
const webhookSignatureHeader = "X-Webhook-Signature"

// SyncHandler handles sync run and webhook requests
type SyncHandler struct {
	engine rolodex.Rolodex
}

// NewSyncHandler creates a new sync handler
func NewSyncHandler(engine rolodex.Rolodex) *SyncHandler {
	return &SyncHandler{engine: engine}
}

// RunSync handles POST /sync/:connectionID
func (h *SyncHandler) RunSync(c *gin.Context) {
	report, err := h.engine.RunSync(c.Request.Context(), c.Param("connectionID"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// Webhook handles POST /webhooks/:provider. The optional connection_id query
// parameter targets a single connection; otherwise routing falls back to the
// payload's provider user id.
func (h *SyncHandler) Webhook(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "invalid_request",
			Message: "failed to read request body",
		})
		return
	}

	results, err := h.engine.HandleWebhook(
		c.Request.Context(),
		c.Param("provider"),
		body,
		c.GetHeader(webhookSignatureHeader),
		c.Query("connection_id"),
	)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}
