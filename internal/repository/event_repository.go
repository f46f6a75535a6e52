package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/alumni-network-api/internal/models"
)

const (
	eventColumns        = `id, title, organizer_id, status, start_date, end_date, registration_deadline, max_attendees, requires_approval, is_public`
	registrationColumns = `id, event_id, user_id, status, special_requirements, registration_date, updated_at`
)

// EventScope exposes registration reads and writes for a single event while its row lock is
// held. Every capacity decision for the event goes through a scope, which serializes them.
type EventScope interface {
	Event() *models.Event
	CountByStatus(ctx context.Context, status models.RegistrationStatus) (int, error)
	FindActiveRegistration(ctx context.Context, userID string) (*models.EventRegistration, error)
	LockRegistration(ctx context.Context, id string) (*models.EventRegistration, error)
	OldestWaitlisted(ctx context.Context) (*models.EventRegistration, error)
	InsertRegistration(ctx context.Context, reg *models.EventRegistration) error
	UpdateRegistrationStatus(ctx context.Context, id string, expected, next models.RegistrationStatus) (*models.EventRegistration, error)
}

// EventRepository reads events and runs event-scoped registration transactions.
type EventRepository struct {
	db          *sqlx.DB
	lockTimeout time.Duration
}

// NewEventRepository constructs the repository. lockTimeout bounds the wait for the event row lock.
func NewEventRepository(db *sqlx.DB, lockTimeout time.Duration) *EventRepository {
	return &EventRepository{db: db, lockTimeout: lockTimeout}
}

// FindByID fetches an event without locking it.
func (r *EventRepository) FindByID(ctx context.Context, id string) (*models.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE id = $1`
	var event models.Event
	if err := r.db.GetContext(ctx, &event, query, id); err != nil {
		return nil, fmt.Errorf("find event: %w", err)
	}
	return &event, nil
}

// CountByStatus returns registration counts for the event grouped by status.
func (r *EventRepository) CountByStatus(ctx context.Context, eventID string) (map[models.RegistrationStatus]int, error) {
	const query = `SELECT status, COUNT(*) AS total FROM event_registrations WHERE event_id = $1 GROUP BY status`
	var rows []struct {
		Status models.RegistrationStatus `db:"status"`
		Total  int                       `db:"total"`
	}
	if err := r.db.SelectContext(ctx, &rows, query, eventID); err != nil {
		return nil, fmt.Errorf("count registrations: %w", err)
	}
	counts := make(map[models.RegistrationStatus]int, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Total
	}
	return counts, nil
}

// WithEventLock locks the event row and runs fn inside the same transaction. The transaction
// commits when fn returns nil and rolls back otherwise. sql.ErrNoRows is returned when the event
// does not exist.
func (r *EventRepository) WithEventLock(ctx context.Context, eventID string, fn func(EventScope) error) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin event transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = setLockTimeout(ctx, tx, r.lockTimeout); err != nil {
		return err
	}

	var event models.Event
	query := `SELECT ` + eventColumns + ` FROM events WHERE id = $1 FOR UPDATE`
	if err = tx.GetContext(ctx, &event, query, eventID); err != nil {
		return fmt.Errorf("lock event: %w", err)
	}

	if err = fn(&eventScope{tx: tx, event: &event}); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit event transaction: %w", err)
	}
	return nil
}

type eventScope struct {
	tx    *sqlx.Tx
	event *models.Event
}

func (s *eventScope) Event() *models.Event {
	return s.event
}

func (s *eventScope) CountByStatus(ctx context.Context, status models.RegistrationStatus) (int, error) {
	const query = `SELECT COUNT(*) FROM event_registrations WHERE event_id = $1 AND status = $2`
	var total int
	if err := s.tx.GetContext(ctx, &total, query, s.event.ID, status); err != nil {
		return 0, fmt.Errorf("count %s registrations: %w", status, err)
	}
	return total, nil
}

// FindActiveRegistration returns nil when the user holds no active registration.
func (s *eventScope) FindActiveRegistration(ctx context.Context, userID string) (*models.EventRegistration, error) {
	query := `SELECT ` + registrationColumns + ` FROM event_registrations
WHERE event_id = $1 AND user_id = $2 AND status IN ('registered', 'waitlist')
LIMIT 1`
	var reg models.EventRegistration
	if err := s.tx.GetContext(ctx, &reg, query, s.event.ID, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find active registration: %w", err)
	}
	return &reg, nil
}

func (s *eventScope) LockRegistration(ctx context.Context, id string) (*models.EventRegistration, error) {
	query := `SELECT ` + registrationColumns + ` FROM event_registrations WHERE id = $1 AND event_id = $2 FOR UPDATE`
	var reg models.EventRegistration
	if err := s.tx.GetContext(ctx, &reg, query, id, s.event.ID); err != nil {
		return nil, fmt.Errorf("lock registration: %w", err)
	}
	return &reg, nil
}

// OldestWaitlisted returns nil when the waitlist is empty.
func (s *eventScope) OldestWaitlisted(ctx context.Context) (*models.EventRegistration, error) {
	query := `SELECT ` + registrationColumns + ` FROM event_registrations
WHERE event_id = $1 AND status = 'waitlist'
ORDER BY registration_date ASC, id ASC
LIMIT 1
FOR UPDATE`
	var reg models.EventRegistration
	if err := s.tx.GetContext(ctx, &reg, query, s.event.ID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find oldest waitlisted: %w", err)
	}
	return &reg, nil
}

func (s *eventScope) InsertRegistration(ctx context.Context, reg *models.EventRegistration) error {
	if reg.ID == "" {
		reg.ID = uuid.NewString()
	}
	reg.EventID = s.event.ID
	now := time.Now().UTC()
	reg.RegistrationDate = now
	reg.UpdatedAt = now
	const query = `INSERT INTO event_registrations (id, event_id, user_id, status, special_requirements, registration_date, updated_at)
VALUES (:id, :event_id, :user_id, :status, :special_requirements, :registration_date, :updated_at)`
	if _, err := s.tx.NamedExecContext(ctx, query, reg); err != nil {
		return fmt.Errorf("insert registration: %w", err)
	}
	return nil
}

func (s *eventScope) UpdateRegistrationStatus(ctx context.Context, id string, expected, next models.RegistrationStatus) (*models.EventRegistration, error) {
	query := `UPDATE event_registrations SET status = $1, updated_at = $2
WHERE id = $3 AND event_id = $4 AND status = $5
RETURNING ` + registrationColumns
	var reg models.EventRegistration
	if err := s.tx.GetContext(ctx, &reg, query, next, time.Now().UTC(), id, s.event.ID, expected); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrStaleStatus
		}
		return nil, fmt.Errorf("update registration status: %w", err)
	}
	return &reg, nil
}
