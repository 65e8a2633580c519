package database

import (
	"errors"
	"fmt"
	"testing"

	"github.com/calebwray/vaultgate/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestMapPostgresError(t *testing.T) {
	tests := []struct {
		name string
		in   error
		want error
	}{
		{"NoRows", pgx.ErrNoRows, models.ErrNotFound},
		{"WrappedNoRows", fmt.Errorf("query profile: %w", pgx.ErrNoRows), models.ErrNotFound},
		{"UniqueViolation", &pgconn.PgError{Code: "23505"}, models.ErrConflict},
		{"WrappedUniqueViolation", fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"}), models.ErrConflict},
		{"NotNullViolation", &pgconn.PgError{Code: "23502"}, models.ErrBadRequest},
		{"ForeignKeyViolation", &pgconn.PgError{Code: "23503"}, models.ErrBadRequest},
		{"CheckViolation", &pgconn.PgError{Code: "23514"}, models.ErrBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, MapPostgresError(tt.in), tt.want)
		})
	}
}

func TestMapPostgresError_PassThrough(t *testing.T) {
	assert.NoError(t, MapPostgresError(nil))

	// Errors the mapping does not recognize come back unchanged.
	connErr := errors.New("connection refused")
	assert.Equal(t, connErr, MapPostgresError(connErr))

	serialization := &pgconn.PgError{Code: "40001"}
	assert.Equal(t, error(serialization), MapPostgresError(serialization))
}
