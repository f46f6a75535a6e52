package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/alumni-network-api/internal/dto"
	"github.com/noah-isme/alumni-network-api/internal/models"
	appErrors "github.com/noah-isme/alumni-network-api/pkg/errors"
	"github.com/noah-isme/alumni-network-api/pkg/response"
)

type connectionService interface {
	Request(ctx context.Context, actorID string, req dto.CreateConnectionRequest) (*models.Connection, error)
	Transition(ctx context.Context, actorID, id string, req dto.TransitionRequest) (*models.Connection, error)
	Cancel(ctx context.Context, actorID, id string) error
	Get(ctx context.Context, actorID, id string) (*models.Connection, error)
	ListForActor(ctx context.Context, actorID string, query dto.ListQuery) ([]models.Connection, *models.Pagination, error)
}

// ConnectionHandler exposes connection request endpoints.
type ConnectionHandler struct {
	service connectionService
}

// NewConnectionHandler builds a new handler.
func NewConnectionHandler(service connectionService) *ConnectionHandler {
	return &ConnectionHandler{service: service}
}

// Create godoc
// @Summary Send a connection request
// @Tags Connections
// @Accept json
// @Produce json
// @Param payload body dto.CreateConnectionRequest true "Connection payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /connections [post]
func (h *ConnectionHandler) Create(c *gin.Context) {
	var req dto.CreateConnectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid connection payload"))
		return
	}
	conn, err := h.service.Request(c.Request.Context(), actorID(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, conn)
}

// List godoc
// @Summary List the caller's connections
// @Tags Connections
// @Produce json
// @Param direction query string false "sent or received"
// @Param status query string false "Status filter"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /connections [get]
func (h *ConnectionHandler) List(c *gin.Context) {
	query, err := bindListQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	items, pagination, err := h.service.ListForActor(c.Request.Context(), actorID(c), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Get godoc
// @Summary Get a connection
// @Tags Connections
// @Produce json
// @Param id path string true "Connection ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /connections/{id} [get]
func (h *ConnectionHandler) Get(c *gin.Context) {
	conn, err := h.service.Get(c.Request.Context(), actorID(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, conn, nil)
}

// UpdateStatus godoc
// @Summary Accept, decline or block a connection
// @Tags Connections
// @Accept json
// @Produce json
// @Param id path string true "Connection ID"
// @Param payload body dto.TransitionRequest true "Target status"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /connections/{id}/status [patch]
func (h *ConnectionHandler) UpdateStatus(c *gin.Context) {
	req, err := bindTransition(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	conn, err := h.service.Transition(c.Request.Context(), actorID(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, conn, nil)
}

// Cancel godoc
// @Summary Withdraw a pending connection request
// @Tags Connections
// @Param id path string true "Connection ID"
// @Success 204
// @Router /connections/{id} [delete]
func (h *ConnectionHandler) Cancel(c *gin.Context) {
	if err := h.service.Cancel(c.Request.Context(), actorID(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
