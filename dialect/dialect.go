// Package dialect holds the per-database differences: driver, data source,
// placeholders, identifier quoting and identity retrieval.
package dialect

import (
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/minorm/minorm/errtranslator"
)

var (
	// ErrUnsupportedDialect the URL scheme names no known database
	ErrUnsupportedDialect = errors.New("unsupported dialect")
	// ErrInvalidURL the connection URL cannot be parsed
	ErrInvalidURL = errors.New("invalid connection url")
)

// Dialector is one database flavour.
type Dialector interface {
	errtranslator.ErrTranslator

	Name() string
	DriverName() string
	DataSource() string
	// BindVar returns the placeholder of the n-th argument, counting from 1.
	BindVar(n int) string
	Quote(identifier string) string
	// Returning returns the clause appended to INSERT to read back the
	// primary key, or "" when the driver reports LastInsertId.
	Returning(column string) string
	// AbortsOnError reports whether a failed statement aborts the enclosing
	// transaction, in which case each statement runs behind a savepoint.
	AbortsOnError() bool
	// Configure tunes a freshly opened pool.
	Configure(db *sql.DB)
	// Explain renders sql with vars inlined, for logging.
	Explain(sql string, vars ...interface{}) string
}

// Open selects a dialect from a URL of the form <dialect>://<details>.
func Open(rawURL string) (Dialector, error) {
	scheme, _, ok := strings.Cut(rawURL, "://")
	if !ok || scheme == "" {
		return nil, fmt.Errorf("%w: %q, want <dialect>://<details>", ErrInvalidURL, rawURL)
	}

	switch strings.ToLower(scheme) {
	case "sqlite", "sqlite3":
		d, err := NewSQLite(rawURL)
		if err != nil {
			return nil, err
		}
		return d, nil
	case "postgres", "postgresql":
		u, err := url.Parse(rawURL)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
		}
		return NewPostgres(u), nil
	}
	return nil, fmt.Errorf("%w: %q, supported: sqlite, postgresql", ErrUnsupportedDialect, scheme)
}

// quote wraps each dot-separated part of identifier in double quotes,
// doubling embedded ones, so schema.table stays qualified.
func quote(identifier string) string {
	var b strings.Builder
	for i, part := range strings.Split(identifier, ".") {
		if i > 0 {
			b.WriteByte('.')
		}
		b.WriteByte('"')
		b.WriteString(strings.ReplaceAll(part, `"`, `""`))
		b.WriteByte('"')
	}
	return b.String()
}
