package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx/types"
	"go.uber.org/zap"

	"github.com/noah-isme/alumni-network-api/internal/dto"
	"github.com/noah-isme/alumni-network-api/internal/models"
	"github.com/noah-isme/alumni-network-api/internal/repository"
	"github.com/noah-isme/alumni-network-api/pkg/database"
	appErrors "github.com/noah-isme/alumni-network-api/pkg/errors"
)

type jobReader interface {
	FindByID(ctx context.Context, id string) (*models.JobPosting, error)
}

type applicationStore interface {
	Create(ctx context.Context, app *models.JobApplication) error
	FindByID(ctx context.Context, id string) (*models.JobApplication, error)
	FindActive(ctx context.Context, jobID, applicantID string) (*models.JobApplication, error)
	UpdateStatus(ctx context.Context, id string, expected, next models.ApplicationStatus) (*models.JobApplication, error)
	List(ctx context.Context, filter models.ApplicationFilter) ([]models.JobApplication, int, error)
}

var (
	errApplicationNotFound = appErrors.Clone(appErrors.ErrNotFound, "application not found")
	errJobNotFound         = appErrors.Clone(appErrors.ErrNotFound, "job posting not found")
)

// ApplicationService runs the job application workflow.
type ApplicationService struct {
	workflowRuntime
	jobs      jobReader
	repo      applicationStore
	validator *validator.Validate
}

// NewApplicationService constructs the service.
func NewApplicationService(jobs jobReader, repo applicationStore, validate *validator.Validate, cfg WorkflowConfig, logger *zap.Logger, opts ...WorkflowOption) *ApplicationService {
	if validate == nil {
		validate = validator.New()
	}
	return &ApplicationService{
		workflowRuntime: newWorkflowRuntime(cfg, logger, opts),
		jobs:            jobs,
		repo:            repo,
		validator:       validate,
	}
}

// Apply submits the actor's application to an open job posting.
func (s *ApplicationService) Apply(ctx context.Context, actorID, jobID string, req dto.ApplyJobRequest) (*models.JobApplication, error) {
	if actorID == "" {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid application payload")
	}
	documents := req.AdditionalDocuments
	if documents == nil {
		documents = []string{}
	}
	encoded, err := json.Marshal(documents)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid additional documents")
	}

	ctx, cancel := s.storeContext(ctx)
	defer cancel()

	job, err := s.jobs.FindByID(ctx, jobID)
	if err != nil {
		if isNoRows(err) {
			return nil, appErrors.Clone(appErrors.ErrNotEligible, "job posting not found")
		}
		return nil, s.busyOrInternal(err, "failed to load job posting")
	}
	if !job.AcceptsApplications(s.now()) {
		return nil, appErrors.Clone(appErrors.ErrNotEligible, "job posting is not accepting applications")
	}

	existing, err := s.repo.FindActive(ctx, jobID, actorID)
	if err != nil {
		return nil, s.busyOrInternal(err, "failed to check existing applications")
	}
	if existing != nil {
		return nil, appErrors.Clone(appErrors.ErrDuplicateRequest, "already applied to this job")
	}

	app := &models.JobApplication{
		JobID:               jobID,
		ApplicantID:         actorID,
		Status:              models.ApplicationSubmitted,
		CoverLetter:         optionalString(req.CoverLetter),
		ResumeURI:           optionalString(req.ResumeURI),
		AdditionalDocuments: types.JSONText(encoded),
	}
	if err := s.repo.Create(ctx, app); err != nil {
		if database.IsUniqueViolation(err) {
			return nil, appErrors.Wrap(err, appErrors.ErrDuplicateRequest.Code, appErrors.ErrDuplicateRequest.Status, "already applied to this job")
		}
		return nil, s.busyOrInternal(err, "failed to submit application")
	}

	s.transitioned("application", "", string(app.Status))
	s.emitAudit(ctx, actorID, &models.AuditLog{
		Action:     models.AuditActionApplicationSubmit,
		Resource:   models.AuditResourceApplication,
		ResourceID: &app.ID,
		NewValues:  statusJSON(app.Status),
	})
	s.notify(Notification{
		Type:        NotifyApplicationReceived,
		RecipientID: job.PostedBy,
		ActorID:     actorID,
		Resource:    models.AuditResourceApplication,
		ResourceID:  app.ID,
		Status:      string(app.Status),
	})
	return app, nil
}

// Transition advances an application through review or withdraws it.
func (s *ApplicationService) Transition(ctx context.Context, actorID, id string, req dto.TransitionRequest) (*models.JobApplication, error) {
	if actorID == "" {
		return nil, appErrors.ErrUnauthorized
	}
	target := models.ApplicationStatus(strings.ToLower(strings.TrimSpace(req.Status)))
	if !target.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown application status")
	}

	current, job, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	var (
		result *models.JobApplication
		from   models.ApplicationStatus
		noop   bool
	)
	err = s.retry(ctx, "application", func(ctx context.Context) error {
		if current == nil {
			loaded, err := s.repo.FindByID(ctx, id)
			if err != nil {
				return storeError(err, errApplicationNotFound, "failed to load application")
			}
			current = loaded
		}
		skip, err := applicationTransitions.check(current.Status, target, ApplicationCapabilities(actorID, current, job))
		if err != nil {
			return err
		}
		if skip {
			result, noop = current, true
			return nil
		}
		updated, err := s.repo.UpdateStatus(ctx, id, current.Status, target)
		if err != nil {
			if errors.Is(err, repository.ErrStaleStatus) {
				current = nil
			}
			return storeError(err, errApplicationNotFound, "failed to update application")
		}
		from, result = current.Status, updated
		return nil
	})
	if err != nil {
		return nil, err
	}
	if noop {
		return result, nil
	}

	s.transitioned("application", string(from), string(target))
	s.emitAudit(ctx, actorID, &models.AuditLog{
		Action:     models.AuditActionApplicationChange,
		Resource:   models.AuditResourceApplication,
		ResourceID: &result.ID,
		OldValues:  statusJSON(from),
		NewValues:  statusJSON(target),
	})
	recipient := result.ApplicantID
	if actorID == result.ApplicantID {
		recipient = job.PostedBy
	}
	s.notify(Notification{
		Type:        NotifyApplicationChanged,
		RecipientID: recipient,
		ActorID:     actorID,
		Resource:    models.AuditResourceApplication,
		ResourceID:  result.ID,
		Status:      string(target),
	})
	return result, nil
}

// Get returns an application visible to its applicant or the job poster.
func (s *ApplicationService) Get(ctx context.Context, actorID, id string) (*models.JobApplication, error) {
	app, job, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ApplicationCapabilities(actorID, app, job).CanRead() {
		return nil, errApplicationNotFound
	}
	return app, nil
}

// ListForJob returns a posting's applications to its poster.
func (s *ApplicationService) ListForJob(ctx context.Context, actorID, jobID string, query dto.ListQuery) ([]models.JobApplication, *models.Pagination, error) {
	if actorID == "" {
		return nil, nil, appErrors.ErrUnauthorized
	}
	storeCtx, cancel := s.storeContext(ctx)
	job, err := s.jobs.FindByID(storeCtx, jobID)
	cancel()
	if err != nil {
		if isNoRows(err) {
			return nil, nil, errJobNotFound
		}
		return nil, nil, s.busyOrInternal(err, "failed to load job posting")
	}
	if !ApplicationCapabilities(actorID, nil, job).Has(CapPoster) {
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "only the poster may list applications")
	}
	return s.list(ctx, models.ApplicationFilter{JobID: jobID}, query)
}

// ListMine returns the actor's applications.
func (s *ApplicationService) ListMine(ctx context.Context, actorID string, query dto.ListQuery) ([]models.JobApplication, *models.Pagination, error) {
	if actorID == "" {
		return nil, nil, appErrors.ErrUnauthorized
	}
	return s.list(ctx, models.ApplicationFilter{ApplicantID: actorID}, query)
}

func (s *ApplicationService) list(ctx context.Context, filter models.ApplicationFilter, query dto.ListQuery) ([]models.JobApplication, *models.Pagination, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid list query")
	}
	filter.Status = models.ApplicationStatus(query.Status)
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "unknown application status")
	}
	filter.PageRequest = models.PageRequest{Page: query.Page, PageSize: query.PageSize}.Normalize()

	ctx, cancel := s.storeContext(ctx)
	defer cancel()

	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, s.busyOrInternal(err, "failed to list applications")
	}
	return items, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

func (s *ApplicationService) load(ctx context.Context, id string) (*models.JobApplication, *models.JobPosting, error) {
	ctx, cancel := s.storeContext(ctx)
	defer cancel()

	app, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if isNoRows(err) {
			return nil, nil, errApplicationNotFound
		}
		return nil, nil, s.busyOrInternal(err, "failed to load application")
	}
	job, err := s.jobs.FindByID(ctx, app.JobID)
	if err != nil {
		if isNoRows(err) {
			return nil, nil, errApplicationNotFound
		}
		return nil, nil, s.busyOrInternal(err, "failed to load job posting")
	}
	return app, job, nil
}
