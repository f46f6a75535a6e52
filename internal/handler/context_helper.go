package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/alumni-network-api/internal/dto"
	"github.com/noah-isme/alumni-network-api/internal/middleware"
	appErrors "github.com/noah-isme/alumni-network-api/pkg/errors"
)

// actorID returns the authenticated caller, or "" when the route is unauthenticated.
func actorID(c *gin.Context) string {
	claims := middleware.Claims(c)
	if claims == nil {
		return ""
	}
	return claims.ActorID()
}

func bindListQuery(c *gin.Context) (dto.ListQuery, error) {
	var query dto.ListQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		return query, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query parameters")
	}
	return query, nil
}

func bindTransition(c *gin.Context) (dto.TransitionRequest, error) {
	var req dto.TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return req, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid status payload")
	}
	return req, nil
}
