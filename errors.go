package minorm

import (
	"errors"

	"github.com/minorm/minorm/dialect"
	"github.com/minorm/minorm/logger"
)

var (
	// ErrConfiguration bad connection url, unknown field or invalid model declaration
	ErrConfiguration = errors.New("configuration error")
	// ErrState operation invalid for the current state, e.g. deleting an unsaved instance
	ErrState = errors.New("invalid state")
	// ErrNotFound record not found error
	ErrNotFound = logger.ErrRecordNotFound
	// ErrMultipleResults a single-row lookup matched more than one row
	ErrMultipleResults = errors.New("multiple results")
	// ErrDatabase driver-level failure, wraps the driver error
	ErrDatabase = errors.New("database error")
	// ErrUnsupportedDialect unsupported dialect, always wrapped in ErrConfiguration
	ErrUnsupportedDialect = dialect.ErrUnsupportedDialect
	// ErrClosed the handle was closed, always wrapped in ErrState
	ErrClosed = errors.New("database closed")
)
