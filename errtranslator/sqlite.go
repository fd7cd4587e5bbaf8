package errtranslator

import (
	"errors"

	"github.com/mattn/go-sqlite3"
)

// SQLite translates go-sqlite3 extended result codes.
type SQLite struct{}

func (SQLite) Translate(err error) error {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return err
	}

	switch sqliteErr.ExtendedCode {
	case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
		return ErrDuplicatedKey{Code: int(sqliteErr.ExtendedCode), Message: sqliteErr.Error()}
	case sqlite3.ErrConstraintForeignKey:
		return ErrForeignKeyViolated{Code: int(sqliteErr.ExtendedCode), Message: sqliteErr.Error()}
	case sqlite3.ErrConstraintCheck:
		return ErrCheckConstraintViolated{Code: int(sqliteErr.ExtendedCode), Message: sqliteErr.Error()}
	case sqlite3.ErrConstraintNotNull:
		return ErrNotNullViolated{Code: int(sqliteErr.ExtendedCode), Message: sqliteErr.Error()}
	}
	return err
}
