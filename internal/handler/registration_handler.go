package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/alumni-network-api/internal/dto"
	"github.com/noah-isme/alumni-network-api/internal/models"
	appErrors "github.com/noah-isme/alumni-network-api/pkg/errors"
	"github.com/noah-isme/alumni-network-api/pkg/export"
	"github.com/noah-isme/alumni-network-api/pkg/response"
)

type registrationService interface {
	Register(ctx context.Context, actorID, eventID string, req dto.RegisterEventRequest) (*models.EventRegistration, error)
	Transition(ctx context.Context, actorID, id string, req dto.TransitionRequest) (*models.EventRegistration, error)
	Get(ctx context.Context, actorID, id string) (*models.EventRegistration, error)
	ListForEvent(ctx context.Context, actorID, eventID string, query dto.ListQuery) ([]models.EventRegistration, *models.Pagination, error)
	ListMine(ctx context.Context, actorID string, query dto.ListQuery) ([]models.EventRegistration, *models.Pagination, error)
	Capacity(ctx context.Context, actorID, eventID string) (*models.EventCapacity, error)
	ExportRoster(ctx context.Context, actorID, eventID, status string) (*export.Table, error)
}

// RegistrationHandler exposes event registration endpoints.
type RegistrationHandler struct {
	service registrationService
}

// NewRegistrationHandler builds a new handler.
func NewRegistrationHandler(service registrationService) *RegistrationHandler {
	return &RegistrationHandler{service: service}
}

// Register godoc
// @Summary Register for an event
// @Description Registers the caller, or places them on the waitlist when the event is full.
// @Tags Registrations
// @Accept json
// @Produce json
// @Param id path string true "Event ID"
// @Param payload body dto.RegisterEventRequest false "Registration payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /events/{id}/registrations [post]
func (h *RegistrationHandler) Register(c *gin.Context) {
	var req dto.RegisterEventRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid registration payload"))
			return
		}
	}
	reg, err := h.service.Register(c.Request.Context(), actorID(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, reg)
}

// ListForEvent godoc
// @Summary List an event's registrations
// @Tags Registrations
// @Produce json
// @Param id path string true "Event ID"
// @Param status query string false "Status filter"
// @Success 200 {object} response.Envelope
// @Router /events/{id}/registrations [get]
func (h *RegistrationHandler) ListForEvent(c *gin.Context) {
	query, err := bindListQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	items, pagination, err := h.service.ListForEvent(c.Request.Context(), actorID(c), c.Param("id"), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// ExportRoster godoc
// @Summary Download an event's registrations as CSV
// @Tags Registrations
// @Produce text/csv
// @Param id path string true "Event ID"
// @Param status query string false "Status filter"
// @Success 200 {file} file
// @Failure 403 {object} response.Envelope
// @Router /events/{id}/registrations/export [get]
func (h *RegistrationHandler) ExportRoster(c *gin.Context) {
	eventID := c.Param("id")
	table, err := h.service.ExportRoster(c.Request.Context(), actorID(c), eventID, c.Query("status"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "event-"+eventID+"-registrations.csv"))
	c.Header("Cache-Control", "no-store")
	c.Status(http.StatusOK)
	if err := export.WriteCSV(c.Writer, *table); err != nil {
		_ = c.Error(err)
	}
}

// Capacity godoc
// @Summary Get an event's seat usage
// @Tags Registrations
// @Produce json
// @Param id path string true "Event ID"
// @Success 200 {object} response.Envelope
// @Router /events/{id}/capacity [get]
func (h *RegistrationHandler) Capacity(c *gin.Context) {
	summary, err := h.service.Capacity(c.Request.Context(), actorID(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

// ListMine godoc
// @Summary List the caller's registrations
// @Tags Registrations
// @Produce json
// @Param status query string false "Status filter"
// @Success 200 {object} response.Envelope
// @Router /registrations [get]
func (h *RegistrationHandler) ListMine(c *gin.Context) {
	query, err := bindListQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	items, pagination, err := h.service.ListMine(c.Request.Context(), actorID(c), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Get godoc
// @Summary Get a registration
// @Tags Registrations
// @Produce json
// @Param id path string true "Registration ID"
// @Success 200 {object} response.Envelope
// @Router /registrations/{id} [get]
func (h *RegistrationHandler) Get(c *gin.Context) {
	reg, err := h.service.Get(c.Request.Context(), actorID(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, reg, nil)
}

// UpdateStatus godoc
// @Summary Cancel a registration or mark attendance
// @Tags Registrations
// @Accept json
// @Produce json
// @Param id path string true "Registration ID"
// @Param payload body dto.TransitionRequest true "Target status"
// @Success 200 {object} response.Envelope
// @Router /registrations/{id}/status [patch]
func (h *RegistrationHandler) UpdateStatus(c *gin.Context) {
	req, err := bindTransition(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	reg, err := h.service.Transition(c.Request.Context(), actorID(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, reg, nil)
}
