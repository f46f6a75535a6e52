package database

import (
	"context"
	"errors"

	"github.com/lib/pq"
)

// SQLSTATE codes the workflow store reacts to.
const (
	codeInvalidTextRepresentation = "22P02"
	codeForeignKeyViolation       = "23503"
	codeUniqueViolation           = "23505"
	codeCheckViolation            = "23514"
	codeSerializationFailure      = "40001"
	codeDeadlockDetected          = "40P01"
	codeLockNotAvailable          = "55P03"
	codeQueryCanceled             = "57014"
)

// IsUniqueViolation reports whether err was raised by a unique index.
func IsUniqueViolation(err error) bool {
	return hasCode(err, codeUniqueViolation)
}

// IsCheckViolation reports whether err was raised by a CHECK constraint.
func IsCheckViolation(err error) bool {
	return hasCode(err, codeCheckViolation)
}

// IsForeignKeyViolation reports whether err was raised by a missing referenced row.
func IsForeignKeyViolation(err error) bool {
	return hasCode(err, codeForeignKeyViolation)
}

// IsInvalidInput reports whether Postgres rejected a parameter that does not parse as the
// column type, such as a malformed uuid.
func IsInvalidInput(err error) bool {
	return hasCode(err, codeInvalidTextRepresentation)
}

// IsBusy reports contention errors that are safe to retry: lock waits that hit lock_timeout,
// serialization failures, deadlocks and statement/context timeouts.
func IsBusy(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return hasCode(err, codeSerializationFailure) ||
		hasCode(err, codeDeadlockDetected) ||
		hasCode(err, codeLockNotAvailable) ||
		hasCode(err, codeQueryCanceled)
}

// ConstraintName returns the violated constraint, if err is a pq error.
func ConstraintName(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Constraint
	}
	return ""
}

func hasCode(err error, code string) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == code
	}
	return false
}
