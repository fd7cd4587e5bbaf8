package errtranslator

import "fmt"

// ErrTranslator maps a driver error onto one of the errors below, returning
// err unchanged when it has no counterpart.
type ErrTranslator interface {
	Translate(err error) error
}

// ErrDuplicatedKey a unique or primary key constraint rejected the row.
type ErrDuplicatedKey struct {
	Code    interface{}
	Message string
}

func (e ErrDuplicatedKey) Error() string {
	return fmt.Sprintf("duplicated key not allowed, code: %v, message: %s", e.Code, e.Message)
}

// Is matches any ErrDuplicatedKey, so errors.Is(err, ErrDuplicatedKey{}) works.
func (e ErrDuplicatedKey) Is(target error) bool {
	_, ok := target.(ErrDuplicatedKey)
	return ok
}

// ErrForeignKeyViolated a foreign key constraint rejected the statement.
type ErrForeignKeyViolated struct {
	Code    interface{}
	Message string
}

func (e ErrForeignKeyViolated) Error() string {
	return fmt.Sprintf("violates foreign key constraint, code: %v, message: %s", e.Code, e.Message)
}

func (e ErrForeignKeyViolated) Is(target error) bool {
	_, ok := target.(ErrForeignKeyViolated)
	return ok
}

// ErrCheckConstraintViolated a check constraint rejected the row.
type ErrCheckConstraintViolated struct {
	Code    interface{}
	Message string
}

func (e ErrCheckConstraintViolated) Error() string {
	return fmt.Sprintf("violates check constraint, code: %v, message: %s", e.Code, e.Message)
}

func (e ErrCheckConstraintViolated) Is(target error) bool {
	_, ok := target.(ErrCheckConstraintViolated)
	return ok
}

// ErrNotNullViolated a NULL was written to a NOT NULL column.
type ErrNotNullViolated struct {
	Code    interface{}
	Message string
}

func (e ErrNotNullViolated) Error() string {
	return fmt.Sprintf("violates not-null constraint, code: %v, message: %s", e.Code, e.Message)
}

func (e ErrNotNullViolated) Is(target error) bool {
	_, ok := target.(ErrNotNullViolated)
	return ok
}
