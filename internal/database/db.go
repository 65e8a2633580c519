package database

import (
	"errors"

	"github.com/calebwray/vaultgate/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// MapPostgresError folds driver errors into the model sentinels so
// repository callers can keep matching with errors.Is. A unique
// violation means a duplicate username on auth_profiles; constraint
// violations mean a malformed write.
func MapPostgresError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return models.ErrNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return models.ErrConflict
		case "23502", "23503", "23514": // not-null, foreign key, check
			return models.ErrBadRequest
		}
	}

	return err
}
