package dialect

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/minorm/minorm/errtranslator"
	"github.com/minorm/minorm/logger"

	_ "github.com/mattn/go-sqlite3"
)

// SQLite is the dialect of github.com/mattn/go-sqlite3.
type SQLite struct {
	errtranslator.SQLite
	DSN string
}

// NewSQLite maps sqlite:///rel.db to rel.db, sqlite:////abs.db to /abs.db
// and sqlite:///:memory: to an in-memory database. A query string is passed
// to the driver untouched.
func NewSQLite(rawURL string) (*SQLite, error) {
	_, rest, _ := strings.Cut(rawURL, "://")
	if !strings.HasPrefix(rest, "/") {
		return nil, fmt.Errorf("%w: %q, want sqlite:///<path>", ErrInvalidURL, rawURL)
	}

	path, query, _ := strings.Cut(rest[1:], "?")
	if path == "" {
		return nil, fmt.Errorf("%w: %q has an empty database path", ErrInvalidURL, rawURL)
	}

	dsn := path
	if query != "" {
		dsn += "?" + query
	}
	return &SQLite{DSN: dsn}, nil
}

func (SQLite) Name() string { return "sqlite" }

func (SQLite) DriverName() string { return "sqlite3" }

func (d SQLite) DataSource() string { return d.DSN }

func (SQLite) BindVar(int) string { return "?" }

func (SQLite) Quote(identifier string) string { return quote(identifier) }

func (SQLite) Returning(string) string { return "" }

// AbortsOnError is false: SQLite undoes only the failed statement.
func (SQLite) AbortsOnError() bool { return false }

// Configure pins the pool to one connection; every :memory: connection is
// a separate database.
func (SQLite) Configure(db *sql.DB) {
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
}

func (SQLite) Explain(sql string, vars ...interface{}) string {
	return logger.ExplainSQL(sql, nil, `'`, vars...)
}
