package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"

	"github.com/noah-isme/alumni-network-api/internal/models"
)

const (
	jobColumns         = `id, title, posted_by, status, application_deadline, expires_at`
	applicationColumns = `id, job_id, applicant_id, status, cover_letter, resume_uri, additional_documents, applied_at, last_updated`
)

// JobRepository reads job postings.
type JobRepository struct {
	db *sqlx.DB
}

// NewJobRepository constructs the repository.
func NewJobRepository(db *sqlx.DB) *JobRepository {
	return &JobRepository{db: db}
}

// FindByID fetches a job posting.
func (r *JobRepository) FindByID(ctx context.Context, id string) (*models.JobPosting, error) {
	query := `SELECT ` + jobColumns + ` FROM job_postings WHERE id = $1`
	var job models.JobPosting
	if err := r.db.GetContext(ctx, &job, query, id); err != nil {
		return nil, fmt.Errorf("find job posting: %w", err)
	}
	return &job, nil
}

// ApplicationRepository persists job applications.
type ApplicationRepository struct {
	db *sqlx.DB
}

// NewApplicationRepository constructs the repository.
func NewApplicationRepository(db *sqlx.DB) *ApplicationRepository {
	return &ApplicationRepository{db: db}
}

// Create inserts a submitted application. A concurrent duplicate surfaces as a unique violation
// on job_applications_active_uidx.
func (r *ApplicationRepository) Create(ctx context.Context, app *models.JobApplication) error {
	if app.ID == "" {
		app.ID = uuid.NewString()
	}
	if app.Status == "" {
		app.Status = models.ApplicationSubmitted
	}
	if len(app.AdditionalDocuments) == 0 {
		app.AdditionalDocuments = types.JSONText(`[]`)
	}
	now := time.Now().UTC()
	app.AppliedAt = now
	app.LastUpdated = now
	const query = `INSERT INTO job_applications (id, job_id, applicant_id, status, cover_letter, resume_uri, additional_documents, applied_at, last_updated)
VALUES (:id, :job_id, :applicant_id, :status, :cover_letter, :resume_uri, :additional_documents, :applied_at, :last_updated)`
	if _, err := r.db.NamedExecContext(ctx, query, app); err != nil {
		return fmt.Errorf("create job application: %w", err)
	}
	return nil
}

// FindByID fetches an application by identifier.
func (r *ApplicationRepository) FindByID(ctx context.Context, id string) (*models.JobApplication, error) {
	query := `SELECT ` + applicationColumns + ` FROM job_applications WHERE id = $1`
	var app models.JobApplication
	if err := r.db.GetContext(ctx, &app, query, id); err != nil {
		return nil, fmt.Errorf("find job application: %w", err)
	}
	return &app, nil
}

// FindActive returns the applicant's active application for the job, or nil when none exists.
func (r *ApplicationRepository) FindActive(ctx context.Context, jobID, applicantID string) (*models.JobApplication, error) {
	query := `SELECT ` + applicationColumns + ` FROM job_applications
WHERE job_id = $1 AND applicant_id = $2 AND status NOT IN ('rejected', 'withdrawn')
LIMIT 1`
	var app models.JobApplication
	if err := r.db.GetContext(ctx, &app, query, jobID, applicantID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find active job application: %w", err)
	}
	return &app, nil
}

// UpdateStatus moves the application from expected to next. ErrStaleStatus is returned when the
// row no longer holds expected.
func (r *ApplicationRepository) UpdateStatus(ctx context.Context, id string, expected, next models.ApplicationStatus) (*models.JobApplication, error) {
	query := `UPDATE job_applications SET status = $1, last_updated = $2
WHERE id = $3 AND status = $4
RETURNING ` + applicationColumns
	var app models.JobApplication
	if err := r.db.GetContext(ctx, &app, query, next, time.Now().UTC(), id, expected); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrStaleStatus
		}
		return nil, fmt.Errorf("update job application status: %w", err)
	}
	return &app, nil
}

// List returns applications filtered by job, applicant and status, newest first.
func (r *ApplicationRepository) List(ctx context.Context, filter models.ApplicationFilter) ([]models.JobApplication, int, error) {
	where := &whereBuilder{}
	if filter.JobID != "" {
		where.add("job_id = $%d", filter.JobID)
	}
	if filter.ApplicantID != "" {
		where.add("applicant_id = $%d", filter.ApplicantID)
	}
	if filter.Status != "" {
		where.add("status = $%d", filter.Status)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM job_applications`+where.clause(), where.args...); err != nil {
		return nil, 0, fmt.Errorf("count job applications: %w", err)
	}

	page := filter.PageRequest.Normalize()
	limit, args := where.page(page.PageSize, filter.PageRequest.Offset())
	query := `SELECT ` + applicationColumns + ` FROM job_applications` + where.clause() + ` ORDER BY applied_at DESC, id` + limit
	var items []models.JobApplication
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list job applications: %w", err)
	}
	return items, total, nil
}
