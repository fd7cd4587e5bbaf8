// Package minorm maps Go structs onto rows of a SQLite or PostgreSQL table.
//
//	db, err := minorm.Open(ctx, "sqlite:///:memory:")
//	people := minorm.Objects[Person](db)
//	p, err := people.New(map[string]any{"name": "almaz", "surname": "galiev"})
//	err = people.Save(ctx, p)
//	err = db.Commit()
//
// Autocommit is off: the first statement begins a transaction that every
// later statement joins until Commit or Rollback.
package minorm

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/minorm/minorm/dialect"
	"github.com/minorm/minorm/logger"
	"github.com/minorm/minorm/schema"
)

// DB is an open database handle. Handles returned by Debug share its
// connection and pending transaction.
type DB struct {
	*Config
	Dialector dialect.Dialector

	conn *conn
}

// conn is the state shared by a DB and its Debug copies.
type conn struct {
	mu     sync.Mutex
	sqlDB  *sql.DB
	tx     *sql.Tx
	closed bool
	// savepoint is set while the statement savepoint exists in tx
	savepoint bool
}

// Open parses a <dialect>://<details> url, opens the driver and pings it.
func Open(ctx context.Context, url string, opts ...ConfigOption) (*DB, error) {
	d, err := dialect.Open(url)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	return OpenDialector(ctx, d, opts...)
}

// OpenDialector opens a database for an already selected dialect.
func OpenDialector(ctx context.Context, d dialect.Dialector, opts ...ConfigOption) (*DB, error) {
	config := newConfig(opts)

	sqlDB, err := sql.Open(d.DriverName(), d.DataSource())
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", ErrConfiguration, d.Name(), err)
	}
	d.Configure(sqlDB)

	if !config.DisableAutomaticPing {
		if err := sqlDB.PingContext(ctx); err != nil {
			_ = sqlDB.Close()
			config.Logger.Error(ctx, "failed to connect to %s database: %v", d.Name(), err)
			return nil, fmt.Errorf("%w: connect %s: %w", ErrConfiguration, d.Name(), err)
		}
	}

	config.Logger.Info(ctx, "opened %s database", d.Name())
	return &DB{Config: config, Dialector: d, conn: &conn{sqlDB: sqlDB}}, nil
}

// WithDatabase opens url, runs fn and closes the database, rolling back
// whatever fn left uncommitted.
func WithDatabase(ctx context.Context, url string, fn func(db *DB) error, opts ...ConfigOption) (err error) {
	db, err := Open(ctx, url, opts...)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); err == nil {
			err = closeErr
		}
	}()

	if err = fn(db); err != nil {
		if rbErr := db.Rollback(); rbErr != nil && !errors.Is(rbErr, ErrClosed) {
			db.Logger.Error(ctx, "rollback after failure: %v", rbErr)
		}
	}
	return err
}

// Debug returns a handle sharing db's connection that logs every statement.
func (db *DB) Debug() *DB {
	config := *db.Config
	config.Logger = db.Logger.LogMode(logger.Info)
	return &DB{Config: &config, Dialector: db.Dialector, conn: db.conn}
}

// Register parses and caches the schema of each model up front, surfacing
// declaration errors before any statement runs.
func (db *DB) Register(models ...interface{}) error {
	for _, model := range models {
		if _, err := db.schemaOf(model); err != nil {
			return err
		}
	}
	return nil
}

// Dialect returns the name of the database flavour, "sqlite" or "postgres".
func (db *DB) Dialect() string {
	return db.Dialector.Name()
}

// SQLDB returns the underlying pool. Statements run on it directly bypass
// the pending transaction.
func (db *DB) SQLDB() *sql.DB {
	return db.conn.sqlDB
}

// Close rolls back any pending transaction and closes the pool. Closing
// twice is a no-op.
func (db *DB) Close() error {
	c := db.conn
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	var rbErr error
	if c.tx != nil {
		rbErr = c.tx.Rollback()
		c.tx = nil
		c.savepoint = false
	}
	if err := c.sqlDB.Close(); err != nil {
		return fmt.Errorf("%w: %w", ErrDatabase, err)
	}
	if rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
		return fmt.Errorf("%w: %w", ErrDatabase, rbErr)
	}
	return nil
}

func (db *DB) schemaOf(model interface{}) (*schema.Schema, error) {
	s, err := schema.Parse(model, db.cacheStore, db.NamingStrategy)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	return s, nil
}
