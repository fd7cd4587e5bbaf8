package errtranslator

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// SQLSTATE class 23, integrity constraint violation
const (
	pgNotNullViolation    = "23502"
	pgForeignKeyViolation = "23503"
	pgUniqueViolation     = "23505"
	pgCheckViolation      = "23514"
)

// Postgres translates pgconn errors by SQLSTATE.
type Postgres struct{}

func (Postgres) Translate(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch pgErr.Code {
	case pgUniqueViolation:
		return ErrDuplicatedKey{Code: pgErr.Code, Message: pgErr.Message}
	case pgForeignKeyViolation:
		return ErrForeignKeyViolated{Code: pgErr.Code, Message: pgErr.Message}
	case pgCheckViolation:
		return ErrCheckConstraintViolated{Code: pgErr.Code, Message: pgErr.Message}
	case pgNotNullViolation:
		return ErrNotNullViolated{Code: pgErr.Code, Message: pgErr.Message}
	}
	return err
}
