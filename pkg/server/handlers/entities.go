package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	rolodex "github.com/soundprediction/go-rolodex"
	"github.com/soundprediction/go-rolodex/pkg/graph"
	"github.com/soundprediction/go-rolodex/pkg/resolver"
	"github.com/soundprediction/go-rolodex/pkg/server/dto"
	"github.com/soundprediction/go-rolodex/pkg/types"
)

// EntityHandler handles identity resolution and graph read requests
type EntityHandler struct {
	engine rolodex.Rolodex
}

// NewEntityHandler creates a new entity handler
func NewEntityHandler(engine rolodex.Rolodex) *EntityHandler {
	return &EntityHandler{engine: engine}
}

// ResolvePerson handles POST /resolve/person
func (h *EntityHandler) ResolvePerson(c *gin.Context) {
	var req dto.ResolvePersonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "invalid_request",
			Message: err.Error(),
		})
		return
	}

	res, err := h.engine.ResolvePerson(c.Request.Context(), resolver.PersonInput{
		GivenName:  req.GivenName,
		FamilyName: req.FamilyName,
		Email:      req.Email,
		Phone:      req.Phone,
		City:       req.City,
		Country:    req.Country,
		Handles:    req.Handles,
		Source:     types.Provenance{SourceType: req.SourceType, SourceID: req.SourceID},
		Confidence: req.Confidence,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	status := http.StatusOK
	if res.IsNew {
		status = http.StatusCreated
	}
	c.JSON(status, res)
}

// ResolveOrganization handles POST /resolve/organization
func (h *EntityHandler) ResolveOrganization(c *gin.Context) {
	var req dto.ResolveOrganizationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "invalid_request",
			Message: err.Error(),
		})
		return
	}

	res, err := h.engine.ResolveOrganization(c.Request.Context(), req.Name, req.Domain)
	if err != nil {
		writeError(c, err)
		return
	}

	status := http.StatusOK
	if res.IsNew {
		status = http.StatusCreated
	}
	c.JSON(status, res)
}

// Strength handles GET /people/:id/strength
func (h *EntityHandler) Strength(c *gin.Context) {
	result, err := h.engine.RelationshipStrength(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Connections handles GET /people/:id/connections
func (h *EntityHandler) Connections(c *gin.Context) {
	endpoint := types.NodeRef{Kind: types.PersonKind, ID: c.Param("id")}
	rels, err := h.engine.Connections(c.Request.Context(), endpoint, graph.Filter{
		Type: types.RelationshipType(c.Query("type")),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"relationships": rels})
}

// DomainCandidates handles GET /organizations/:id/domains
func (h *EntityHandler) DomainCandidates(c *gin.Context) {
	candidates, err := h.engine.DomainCandidates(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"candidates": candidates})
}

// PromoteDomain handles POST /organizations/:id/domains
func (h *EntityHandler) PromoteDomain(c *gin.Context) {
	var req dto.PromoteDomainRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "invalid_request",
			Message: err.Error(),
		})
		return
	}

	if err := h.engine.PromoteDomain(c.Request.Context(), c.Param("id"), req.Domain); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"applied": true})
}
