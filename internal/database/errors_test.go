package database

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, IsUniqueViolation(gorm.ErrDuplicatedKey))
	assert.True(t, IsUniqueViolation(fmt.Errorf("create lease: %w", gorm.ErrDuplicatedKey)))

	// The postgres driver surfaces constraint violations as PgError; they
	// must classify even when gorm did not translate them.
	raw := &pgconn.PgError{Code: "23505", ConstraintName: "idx_leases_ip"}
	assert.True(t, IsUniqueViolation(raw))
	assert.True(t, IsUniqueViolation(fmt.Errorf("create lease: %w", raw)))

	assert.False(t, IsUniqueViolation(nil))
	assert.False(t, IsUniqueViolation(errors.New("duplicate key value")))
	assert.False(t, IsUniqueViolation(&pgconn.PgError{Code: "40001"}))
}

func TestIsSerializationFailure(t *testing.T) {
	aborted := &pgconn.PgError{Code: "40001"}
	assert.True(t, IsSerializationFailure(aborted))
	assert.True(t, IsSerializationFailure(fmt.Errorf("allocate: %w", aborted)))

	assert.False(t, IsSerializationFailure(nil))
	assert.False(t, IsSerializationFailure(gorm.ErrDuplicatedKey))
	assert.False(t, IsSerializationFailure(&pgconn.PgError{Code: "23505"}))
}
