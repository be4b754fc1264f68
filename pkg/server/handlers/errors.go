package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/soundprediction/go-rolodex/pkg/server/dto"
	"github.com/soundprediction/go-rolodex/pkg/types"
)

// writeError maps the engine's error taxonomy onto HTTP statuses: caller
// mistakes are 400, missing entities 404, signature mismatches 401 and
// provider outages 502. Anything unrecognized is a 500.
func writeError(c *gin.Context, err error) {
	var validation *types.ValidationError
	var signature *types.SignatureError
	var upstream *types.UpstreamProviderError
	var conflict *types.ConflictError

	switch {
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "invalid_request",
			Message: err.Error(),
		})
	case errors.As(err, &signature):
		c.JSON(http.StatusUnauthorized, dto.ErrorResponse{
			Error:   "signature_mismatch",
			Message: err.Error(),
		})
	case errors.As(err, &upstream):
		c.JSON(http.StatusBadGateway, dto.ErrorResponse{
			Error:   "upstream_provider_error",
			Message: err.Error(),
		})
	case errors.As(err, &conflict):
		c.JSON(http.StatusConflict, dto.ErrorResponse{
			Error:   "conflict",
			Message: err.Error(),
		})
	case errors.Is(err, types.ErrPersonNotFound),
		errors.Is(err, types.ErrOrganizationNotFound),
		errors.Is(err, types.ErrConnectionNotFound),
		errors.Is(err, types.ErrRelationshipNotFound):
		c.JSON(http.StatusNotFound, dto.ErrorResponse{
			Error:   "not_found",
			Message: err.Error(),
		})
	default:
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
			Error:   "internal_error",
			Message: err.Error(),
		})
	}
}
