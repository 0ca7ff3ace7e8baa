package database

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// SQLSTATE classes the stores branch on.
const (
	sqlstateUniqueViolation      = "23505"
	sqlstateSerializationFailure = "40001"
)

// IsUniqueViolation reports whether err is a unique-constraint violation.
// gorm translates these to ErrDuplicatedKey when TranslateError is on; the
// raw driver error is matched as well so a handle opened without
// translation still classifies correctly.
func IsUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == sqlstateUniqueViolation
}

// IsSerializationFailure reports whether the database aborted a
// serializable transaction. The transaction saw no partial effects and is
// safe to run again.
func IsSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == sqlstateSerializationFailure
}
