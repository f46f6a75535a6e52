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

const connectionColumns = `id, requester_id, receiver_id, status, message, created_at, updated_at`

// ConnectionRepository persists connection requests.
type ConnectionRepository struct {
	db *sqlx.DB
}

// NewConnectionRepository constructs the repository.
func NewConnectionRepository(db *sqlx.DB) *ConnectionRepository {
	return &ConnectionRepository{db: db}
}

// Create inserts a pending connection request. A concurrent duplicate surfaces as a unique
// violation on connections_active_pair_uidx.
func (r *ConnectionRepository) Create(ctx context.Context, conn *models.Connection) error {
	if conn.ID == "" {
		conn.ID = uuid.NewString()
	}
	if conn.Status == "" {
		conn.Status = models.ConnectionPending
	}
	now := time.Now().UTC()
	conn.CreatedAt = now
	conn.UpdatedAt = now
	const query = `INSERT INTO connections (id, requester_id, receiver_id, status, message, created_at, updated_at)
VALUES (:id, :requester_id, :receiver_id, :status, :message, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, conn); err != nil {
		return fmt.Errorf("create connection: %w", err)
	}
	return nil
}

// FindByID fetches a connection by identifier.
func (r *ConnectionRepository) FindByID(ctx context.Context, id string) (*models.Connection, error) {
	query := `SELECT ` + connectionColumns + ` FROM connections WHERE id = $1`
	var conn models.Connection
	if err := r.db.GetContext(ctx, &conn, query, id); err != nil {
		return nil, fmt.Errorf("find connection: %w", err)
	}
	return &conn, nil
}

// FindActive returns the active request from requester to receiver, or nil when none exists.
func (r *ConnectionRepository) FindActive(ctx context.Context, requesterID, receiverID string) (*models.Connection, error) {
	query := `SELECT ` + connectionColumns + ` FROM connections
WHERE requester_id = $1 AND receiver_id = $2 AND status IN ('pending', 'accepted', 'blocked')
LIMIT 1`
	var conn models.Connection
	if err := r.db.GetContext(ctx, &conn, query, requesterID, receiverID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find active connection: %w", err)
	}
	return &conn, nil
}

// UpdateStatus moves the connection from expected to next. ErrStaleStatus is returned when the
// row no longer holds expected.
func (r *ConnectionRepository) UpdateStatus(ctx context.Context, id string, expected, next models.ConnectionStatus) (*models.Connection, error) {
	query := `UPDATE connections SET status = $1, updated_at = $2
WHERE id = $3 AND status = $4
RETURNING ` + connectionColumns
	var conn models.Connection
	if err := r.db.GetContext(ctx, &conn, query, next, time.Now().UTC(), id, expected); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrStaleStatus
		}
		return nil, fmt.Errorf("update connection status: %w", err)
	}
	return &conn, nil
}

// DeletePending removes the requester's own pending request.
func (r *ConnectionRepository) DeletePending(ctx context.Context, id, requesterID string) error {
	const query = `DELETE FROM connections WHERE id = $1 AND requester_id = $2 AND status = 'pending'`
	res, err := r.db.ExecContext(ctx, query, id, requesterID)
	if err != nil {
		return fmt.Errorf("delete connection: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete connection rows: %w", err)
	}
	if affected == 0 {
		return ErrStaleStatus
	}
	return nil
}

// List returns the actor's connections, newest first.
func (r *ConnectionRepository) List(ctx context.Context, filter models.ConnectionFilter) ([]models.Connection, int, error) {
	where := &whereBuilder{}
	switch filter.Direction {
	case models.ConnectionDirectionSent:
		where.add("requester_id = $%d", filter.ActorID)
	case models.ConnectionDirectionReceived:
		where.add("receiver_id = $%d", filter.ActorID)
	default:
		where.args = append(where.args, filter.ActorID)
		where.conditions = append(where.conditions, fmt.Sprintf("(requester_id = $%[1]d OR receiver_id = $%[1]d)", len(where.args)))
	}
	if filter.Status != "" {
		where.add("status = $%d", filter.Status)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM connections`+where.clause(), where.args...); err != nil {
		return nil, 0, fmt.Errorf("count connections: %w", err)
	}

	page := filter.PageRequest.Normalize()
	limit, args := where.page(page.PageSize, filter.PageRequest.Offset())
	query := `SELECT ` + connectionColumns + ` FROM connections` + where.clause() + ` ORDER BY created_at DESC, id` + limit
	var items []models.Connection
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list connections: %w", err)
	}
	return items, total, nil
}
