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

type applicationService interface {
	Apply(ctx context.Context, actorID, jobID string, req dto.ApplyJobRequest) (*models.JobApplication, error)
	Transition(ctx context.Context, actorID, id string, req dto.TransitionRequest) (*models.JobApplication, error)
	Get(ctx context.Context, actorID, id string) (*models.JobApplication, error)
	ListForJob(ctx context.Context, actorID, jobID string, query dto.ListQuery) ([]models.JobApplication, *models.Pagination, error)
	ListMine(ctx context.Context, actorID string, query dto.ListQuery) ([]models.JobApplication, *models.Pagination, error)
}

// ApplicationHandler exposes job application endpoints.
type ApplicationHandler struct {
	service applicationService
}

// NewApplicationHandler builds a new handler.
func NewApplicationHandler(service applicationService) *ApplicationHandler {
	return &ApplicationHandler{service: service}
}

// Apply godoc
// @Summary Apply to a job posting
// @Tags Applications
// @Accept json
// @Produce json
// @Param id path string true "Job posting ID"
// @Param payload body dto.ApplyJobRequest true "Application payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /jobs/{id}/applications [post]
func (h *ApplicationHandler) Apply(c *gin.Context) {
	var req dto.ApplyJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid application payload"))
		return
	}
	app, err := h.service.Apply(c.Request.Context(), actorID(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, app)
}

// ListForJob godoc
// @Summary List applications to a job posting
// @Tags Applications
// @Produce json
// @Param id path string true "Job posting ID"
// @Param status query string false "Status filter"
// @Success 200 {object} response.Envelope
// @Router /jobs/{id}/applications [get]
func (h *ApplicationHandler) ListForJob(c *gin.Context) {
	query, err := bindListQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	items, pagination, err := h.service.ListForJob(c.Request.Context(), actorID(c), c.Param("id"), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// ListMine godoc
// @Summary List the caller's applications
// @Tags Applications
// @Produce json
// @Param status query string false "Status filter"
// @Success 200 {object} response.Envelope
// @Router /applications [get]
func (h *ApplicationHandler) ListMine(c *gin.Context) {
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
// @Summary Get an application
// @Tags Applications
// @Produce json
// @Param id path string true "Application ID"
// @Success 200 {object} response.Envelope
// @Router /applications/{id} [get]
func (h *ApplicationHandler) Get(c *gin.Context) {
	app, err := h.service.Get(c.Request.Context(), actorID(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, app, nil)
}

// UpdateStatus godoc
// @Summary Advance, reject or withdraw an application
// @Tags Applications
// @Accept json
// @Produce json
// @Param id path string true "Application ID"
// @Param payload body dto.TransitionRequest true "Target status"
// @Success 200 {object} response.Envelope
// @Router /applications/{id}/status [patch]
func (h *ApplicationHandler) UpdateStatus(c *gin.Context) {
	req, err := bindTransition(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	app, err := h.service.Transition(c.Request.Context(), actorID(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, app, nil)
}
