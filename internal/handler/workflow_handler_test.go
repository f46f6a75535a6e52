package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/alumni-network-api/internal/dto"
	"github.com/noah-isme/alumni-network-api/internal/middleware"
	"github.com/noah-isme/alumni-network-api/internal/models"
	appErrors "github.com/noah-isme/alumni-network-api/pkg/errors"
	"github.com/noah-isme/alumni-network-api/pkg/export"
)

type connectionServiceMock struct {
	conn       *models.Connection
	err        error
	lastActor  string
	lastID     string
	lastCreate dto.CreateConnectionRequest
	lastStatus dto.TransitionRequest
	lastQuery  dto.ListQuery
	cancelled  bool
}

func (m *connectionServiceMock) Request(ctx context.Context, actorID string, req dto.CreateConnectionRequest) (*models.Connection, error) {
	m.lastActor, m.lastCreate = actorID, req
	return m.conn, m.err
}

func (m *connectionServiceMock) Transition(ctx context.Context, actorID, id string, req dto.TransitionRequest) (*models.Connection, error) {
	m.lastActor, m.lastID, m.lastStatus = actorID, id, req
	return m.conn, m.err
}

func (m *connectionServiceMock) Cancel(ctx context.Context, actorID, id string) error {
	m.lastActor, m.lastID, m.cancelled = actorID, id, true
	return m.err
}

func (m *connectionServiceMock) Get(ctx context.Context, actorID, id string) (*models.Connection, error) {
	m.lastActor, m.lastID = actorID, id
	return m.conn, m.err
}

func (m *connectionServiceMock) ListForActor(ctx context.Context, actorID string, query dto.ListQuery) ([]models.Connection, *models.Pagination, error) {
	m.lastActor, m.lastQuery = actorID, query
	if m.err != nil {
		return nil, nil, m.err
	}
	return []models.Connection{*m.conn}, &models.Pagination{Page: 1, PageSize: 20, TotalCount: 1}, nil
}

type registrationServiceMock struct {
	reg        *models.EventRegistration
	capacity   *models.EventCapacity
	roster     *export.Table
	err        error
	lastEvent  string
	lastCreate dto.RegisterEventRequest
}

func (m *registrationServiceMock) Register(ctx context.Context, actorID, eventID string, req dto.RegisterEventRequest) (*models.EventRegistration, error) {
	m.lastEvent, m.lastCreate = eventID, req
	return m.reg, m.err
}

func (m *registrationServiceMock) Transition(ctx context.Context, actorID, id string, req dto.TransitionRequest) (*models.EventRegistration, error) {
	return m.reg, m.err
}

func (m *registrationServiceMock) Get(ctx context.Context, actorID, id string) (*models.EventRegistration, error) {
	return m.reg, m.err
}

func (m *registrationServiceMock) ListForEvent(ctx context.Context, actorID, eventID string, query dto.ListQuery) ([]models.EventRegistration, *models.Pagination, error) {
	m.lastEvent = eventID
	return nil, &models.Pagination{Page: 1, PageSize: 20}, m.err
}

func (m *registrationServiceMock) ListMine(ctx context.Context, actorID string, query dto.ListQuery) ([]models.EventRegistration, *models.Pagination, error) {
	return nil, &models.Pagination{Page: 1, PageSize: 20}, m.err
}

func (m *registrationServiceMock) ExportRoster(ctx context.Context, actorID, eventID, status string) (*export.Table, error) {
	m.lastEvent = eventID
	return m.roster, m.err
}

func (m *registrationServiceMock) Capacity(ctx context.Context, actorID, eventID string) (*models.EventCapacity, error) {
	m.lastEvent = eventID
	return m.capacity, m.err
}

type applicationServiceMock struct {
	app       *models.JobApplication
	err       error
	lastJob   string
	lastApply dto.ApplyJobRequest
}

func (m *applicationServiceMock) Apply(ctx context.Context, actorID, jobID string, req dto.ApplyJobRequest) (*models.JobApplication, error) {
	m.lastJob, m.lastApply = jobID, req
	return m.app, m.err
}

func (m *applicationServiceMock) Transition(ctx context.Context, actorID, id string, req dto.TransitionRequest) (*models.JobApplication, error) {
	return m.app, m.err
}

func (m *applicationServiceMock) Get(ctx context.Context, actorID, id string) (*models.JobApplication, error) {
	return m.app, m.err
}

func (m *applicationServiceMock) ListForJob(ctx context.Context, actorID, jobID string, query dto.ListQuery) ([]models.JobApplication, *models.Pagination, error) {
	m.lastJob = jobID
	return nil, &models.Pagination{Page: 1, PageSize: 20}, m.err
}

func (m *applicationServiceMock) ListMine(ctx context.Context, actorID string, query dto.ListQuery) ([]models.JobApplication, *models.Pagination, error) {
	return nil, &models.Pagination{Page: 1, PageSize: 20}, m.err
}

func newTestContext(method, target, body string, params ...gin.Param) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	var reader *bytes.Buffer
	if body != "" {
		reader = bytes.NewBufferString(body)
	} else {
		reader = &bytes.Buffer{}
	}
	req, _ := http.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	c.Request = req
	c.Params = params
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "actor-1"})
	return c, w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	return envelope.Error.Code
}

func TestConnectionHandlerCreate(t *testing.T) {
	mockSvc := &connectionServiceMock{conn: &models.Connection{ID: "conn-1", Status: models.ConnectionPending}}
	handler := NewConnectionHandler(mockSvc)

	c, w := newTestContext(http.MethodPost, "/connections", `{"receiver_id":"user-2","message":"hi"}`)
	handler.Create(c)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "actor-1", mockSvc.lastActor)
	assert.Equal(t, "user-2", mockSvc.lastCreate.ReceiverID)
	assert.Contains(t, w.Body.String(), `"conn-1"`)
}

func TestConnectionHandlerCreateInvalidBody(t *testing.T) {
	handler := NewConnectionHandler(&connectionServiceMock{})

	c, w := newTestContext(http.MethodPost, "/connections", `{"receiver_id":`)
	handler.Create(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, appErrors.ErrValidation.Code, decodeError(t, w))
}

func TestConnectionHandlerMapsWorkflowErrors(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{appErrors.ErrForbidden, http.StatusForbidden},
		{appErrors.ErrDuplicateRequest, http.StatusConflict},
		{appErrors.ErrInvalidTransition, http.StatusConflict},
		{appErrors.ErrNotEligible, http.StatusConflict},
		{appErrors.ErrInvalidTarget, http.StatusBadRequest},
		{appErrors.ErrBusy, http.StatusServiceUnavailable},
		{appErrors.ErrNotFound, http.StatusNotFound},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		handler := NewConnectionHandler(&connectionServiceMock{err: tc.err})
		c, w := newTestContext(http.MethodPatch, "/connections/conn-1/status", `{"status":"accepted"}`, gin.Param{Key: "id", Value: "conn-1"})
		handler.UpdateStatus(c)
		assert.Equal(t, tc.status, w.Code, tc.err.Error())
	}
}

func TestConnectionHandlerUpdateStatusRequiresStatus(t *testing.T) {
	mockSvc := &connectionServiceMock{}
	handler := NewConnectionHandler(mockSvc)

	c, w := newTestContext(http.MethodPatch, "/connections/conn-1/status", `{}`, gin.Param{Key: "id", Value: "conn-1"})
	handler.UpdateStatus(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, mockSvc.lastID)
}

func TestConnectionHandlerListAndCancel(t *testing.T) {
	mockSvc := &connectionServiceMock{conn: &models.Connection{ID: "conn-1"}}
	handler := NewConnectionHandler(mockSvc)

	c, w := newTestContext(http.MethodGet, "/connections?direction=sent&status=pending&page=2&page_size=5", "")
	handler.List(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, dto.ListQuery{Direction: "sent", Status: "pending", Page: 2, PageSize: 5}, mockSvc.lastQuery)
	assert.Contains(t, w.Body.String(), `"pagination"`)

	c, w = newTestContext(http.MethodGet, "/connections?page=abc", "")
	handler.List(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	c, w = newTestContext(http.MethodDelete, "/connections/conn-1", "", gin.Param{Key: "id", Value: "conn-1"})
	handler.Cancel(c)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.True(t, mockSvc.cancelled)
	assert.Equal(t, "conn-1", mockSvc.lastID)
}

func TestRegistrationHandlerRegisterWithoutBody(t *testing.T) {
	mockSvc := &registrationServiceMock{reg: &models.EventRegistration{ID: "reg-1", Status: models.RegistrationWaitlist}}
	handler := NewRegistrationHandler(mockSvc)

	c, w := newTestContext(http.MethodPost, "/events/evt-1/registrations", "", gin.Param{Key: "id", Value: "evt-1"})
	handler.Register(c)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "evt-1", mockSvc.lastEvent)
	assert.Contains(t, w.Body.String(), `"waitlist"`)
}

func TestRegistrationHandlerRegisterErrors(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{appErrors.ErrRegistrationClosed, http.StatusBadRequest},
		{appErrors.ErrApprovalRequired, http.StatusForbidden},
		{appErrors.ErrDuplicateRequest, http.StatusConflict},
	}
	for _, tc := range cases {
		handler := NewRegistrationHandler(&registrationServiceMock{err: tc.err})
		c, w := newTestContext(http.MethodPost, "/events/evt-1/registrations", `{"special_requirements":"ramp"}`, gin.Param{Key: "id", Value: "evt-1"})
		handler.Register(c)
		assert.Equal(t, tc.status, w.Code)
		assert.Equal(t, tc.err.(*appErrors.Error).Code, decodeError(t, w))
	}
}

func TestRegistrationHandlerCapacity(t *testing.T) {
	available := 3
	mockSvc := &registrationServiceMock{capacity: &models.EventCapacity{EventID: "evt-1", Registered: 7, Available: &available}}
	handler := NewRegistrationHandler(mockSvc)

	c, w := newTestContext(http.MethodGet, "/events/evt-1/capacity", "", gin.Param{Key: "id", Value: "evt-1"})
	handler.Capacity(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"available":3`)
}

func TestRegistrationHandlerExportRoster(t *testing.T) {
	roster := &export.Table{Headers: []string{"registration_id", "status"}}
	roster.AddRow("reg-1", "registered")
	mockSvc := &registrationServiceMock{roster: roster}
	handler := NewRegistrationHandler(mockSvc)

	c, w := newTestContext(http.MethodGet, "/events/evt-1/registrations/export", "", gin.Param{Key: "id", Value: "evt-1"})
	handler.ExportRoster(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "event-evt-1-registrations.csv")
	assert.Equal(t, "registration_id,status\nreg-1,registered\n", w.Body.String())

	forbidden := NewRegistrationHandler(&registrationServiceMock{err: appErrors.ErrForbidden})
	c, w = newTestContext(http.MethodGet, "/events/evt-1/registrations/export", "", gin.Param{Key: "id", Value: "evt-1"})
	forbidden.ExportRoster(c)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestApplicationHandlerApply(t *testing.T) {
	mockSvc := &applicationServiceMock{app: &models.JobApplication{ID: "app-1", Status: models.ApplicationSubmitted}}
	handler := NewApplicationHandler(mockSvc)

	body := `{"cover_letter":"hello","additional_documents":["s3://files/a.pdf"]}`
	c, w := newTestContext(http.MethodPost, "/jobs/job-1/applications", body, gin.Param{Key: "id", Value: "job-1"})
	handler.Apply(c)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "job-1", mockSvc.lastJob)
	assert.Equal(t, []string{"s3://files/a.pdf"}, mockSvc.lastApply.AdditionalDocuments)
}

func TestApplicationHandlerListForJobForbidden(t *testing.T) {
	handler := NewApplicationHandler(&applicationServiceMock{err: appErrors.ErrForbidden})

	c, w := newTestContext(http.MethodGet, "/jobs/job-1/applications", "", gin.Param{Key: "id", Value: "job-1"})
	handler.ListForJob(c)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestOpsHandlerReady(t *testing.T) {
	healthy := NewOpsHandler(nil, map[string]ReadinessCheck{
		"postgres": func(context.Context) error { return nil },
	})
	c, w := newTestContext(http.MethodGet, "/ready", "")
	healthy.Ready(c)
	assert.Equal(t, http.StatusOK, w.Code)

	degraded := NewOpsHandler(nil, map[string]ReadinessCheck{
		"postgres": func(context.Context) error { return nil },
		"redis":    func(context.Context) error { return errors.New("connection refused") },
	})
	c, w = newTestContext(http.MethodGet, "/ready", "")
	degraded.Ready(c)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "connection refused")

	c, w = newTestContext(http.MethodGet, "/metrics", "")
	degraded.Prometheus(c)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
