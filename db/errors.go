package db

import (
	"database/sql"
	"errors"
	"fmt"

	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// ErrNotFound reports a lookup for a row that does not exist. It is a
// non-fatal, user-facing condition.
var ErrNotFound = errors.New("not found")

// ValidationError reports caller input that failed validation before reaching
// storage. It is surfaced verbatim and never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ConstraintViolation reports a storage write rejected by a uniqueness or
// integrity constraint (duplicate unpublished week, duplicate seed tuple,
// double publish).
type ConstraintViolation struct {
	Constraint string
	Err        error
}

func (e *ConstraintViolation) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("constraint violated: %s: %v", e.Constraint, e.Err)
	}
	return fmt.Sprintf("constraint violated: %s", e.Constraint)
}

func (e *ConstraintViolation) Unwrap() error { return e.Err }

// StorageError reports an engine-level failure. It is not recoverable locally
// and propagates to the hosting process.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// IsConstraint reports whether err is (or wraps) a constraint violation.
func IsConstraint(err error) bool {
	var cv *ConstraintViolation
	return errors.As(err, &cv)
}

// MapError classifies a driver error: no rows become ErrNotFound, constraint
// failures become ConstraintViolation tagged with constraint, anything else a
// StorageError for op.
func MapError(err error, op, constraint string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var se *msqlite.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case sqlite3.SQLITE_CONSTRAINT,
			sqlite3.SQLITE_CONSTRAINT_UNIQUE,
			sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY,
			sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY,
			sqlite3.SQLITE_CONSTRAINT_CHECK,
			sqlite3.SQLITE_CONSTRAINT_TRIGGER:
			return &ConstraintViolation{Constraint: constraint, Err: err}
		}
	}
	return &StorageError{Op: op, Err: err}
}
