package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
)

// ErrStaleStatus is returned by compare-and-set writes when the row no longer holds the expected
// status (or no longer exists).
var ErrStaleStatus = errors.New("row status changed concurrently")

// setLockTimeout bounds row lock waits for the remainder of the transaction.
func setLockTimeout(ctx context.Context, tx *sqlx.Tx, timeout time.Duration) error {
	if timeout <= 0 {
		return nil
	}
	if _, err := tx.ExecContext(ctx, `SELECT set_config('lock_timeout', $1, true)`, fmt.Sprintf("%dms", timeout.Milliseconds())); err != nil {
		return fmt.Errorf("set lock timeout: %w", err)
	}
	return nil
}

// whereBuilder accumulates positional SQL predicates.
type whereBuilder struct {
	conditions []string
	args       []interface{}
}

func (w *whereBuilder) add(expr string, value interface{}) {
	w.args = append(w.args, value)
	w.conditions = append(w.conditions, fmt.Sprintf(expr, len(w.args)))
}

func (w *whereBuilder) clause() string {
	if len(w.conditions) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conditions, " AND ")
}

func (w *whereBuilder) page(limit, offset int) (string, []interface{}) {
	args := append(append([]interface{}{}, w.args...), limit, offset)
	return fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(w.args)+1, len(w.args)+2), args
}
