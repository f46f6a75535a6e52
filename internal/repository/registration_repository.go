package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/alumni-network-api/internal/models"
)

// RegistrationRepository serves unlocked registration reads. Writes go through EventScope.
type RegistrationRepository struct {
	db *sqlx.DB
}

// NewRegistrationRepository constructs the repository.
func NewRegistrationRepository(db *sqlx.DB) *RegistrationRepository {
	return &RegistrationRepository{db: db}
}

// FindByID fetches a registration by identifier.
func (r *RegistrationRepository) FindByID(ctx context.Context, id string) (*models.EventRegistration, error) {
	query := `SELECT ` + registrationColumns + ` FROM event_registrations WHERE id = $1`
	var reg models.EventRegistration
	if err := r.db.GetContext(ctx, &reg, query, id); err != nil {
		return nil, fmt.Errorf("find registration: %w", err)
	}
	return &reg, nil
}

// List returns registrations filtered by event, user and status ordered by registration date.
func (r *RegistrationRepository) List(ctx context.Context, filter models.RegistrationFilter) ([]models.EventRegistration, int, error) {
	where := &whereBuilder{}
	if filter.EventID != "" {
		where.add("event_id = $%d", filter.EventID)
	}
	if filter.UserID != "" {
		where.add("user_id = $%d", filter.UserID)
	}
	if filter.Status != "" {
		where.add("status = $%d", filter.Status)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM event_registrations`+where.clause(), where.args...); err != nil {
		return nil, 0, fmt.Errorf("count registrations: %w", err)
	}

	page := filter.PageRequest.Normalize()
	limit, args := where.page(page.PageSize, filter.PageRequest.Offset())
	query := `SELECT ` + registrationColumns + ` FROM event_registrations` + where.clause() + ` ORDER BY registration_date ASC, id` + limit
	var items []models.EventRegistration
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list registrations: %w", err)
	}
	return items, total, nil
}
