package minorm

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/minorm/minorm/logger"
)

// session returns the pending transaction, beginning one if needed. The
// caller holds c.mu.
func (db *DB) session(ctx context.Context) (*sql.Tx, error) {
	c := db.conn
	if c.closed {
		return nil, fmt.Errorf("%w: %w", ErrState, ErrClosed)
	}
	if c.tx == nil {
		// the transaction outlives the statement that opened it
		tx, err := c.sqlDB.BeginTx(context.WithoutCancel(ctx), nil)
		if err != nil {
			return nil, db.wrapError(err)
		}
		c.tx = tx
		c.savepoint = false
	}

	if db.Dialector.AbortsOnError() {
		if err := db.markStatement(ctx, c.tx); err != nil {
			return nil, db.wrapError(err)
		}
	}
	return c.tx, nil
}

const statementSavepoint = "minorm_statement"

// markStatement sets a savepoint before the next statement, first undoing
// the previous statement if it failed and left tx aborted.
func (db *DB) markStatement(ctx context.Context, tx *sql.Tx) error {
	ctx = context.WithoutCancel(ctx)
	if err := db.releaseStatement(ctx, tx); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "SAVEPOINT "+statementSavepoint); err != nil {
		return err
	}
	db.conn.savepoint = true
	return nil
}

// releaseStatement drops the statement savepoint. RELEASE is refused in an
// aborted transaction, which is then rolled back to the savepoint.
func (db *DB) releaseStatement(ctx context.Context, tx *sql.Tx) error {
	c := db.conn
	if !c.savepoint {
		return nil
	}
	c.savepoint = false

	if _, err := tx.ExecContext(ctx, "RELEASE SAVEPOINT "+statementSavepoint); err == nil {
		return nil
	}
	if _, err := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+statementSavepoint); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, "RELEASE SAVEPOINT "+statementSavepoint)
	return err
}

func (db *DB) exec(ctx context.Context, query string, vars ...interface{}) (result sql.Result, err error) {
	begin := time.Now()
	rows := int64(-1)
	defer func() {
		db.trace(ctx, begin, query, vars, rows, err)
	}()

	db.conn.mu.Lock()
	defer db.conn.mu.Unlock()

	tx, err := db.session(ctx)
	if err != nil {
		return nil, err
	}
	result, err = tx.ExecContext(ctx, query, vars...)
	if err != nil {
		return nil, db.wrapError(err)
	}
	if n, err := result.RowsAffected(); err == nil {
		rows = n
	}
	return result, nil
}

// query runs a statement returning rows. The rows hold no lock, so the
// caller may issue further statements while iterating.
func (db *DB) query(ctx context.Context, query string, vars ...interface{}) (rows *sql.Rows, err error) {
	begin := time.Now()
	defer func() {
		db.trace(ctx, begin, query, vars, -1, err)
	}()

	db.conn.mu.Lock()
	defer db.conn.mu.Unlock()

	tx, err := db.session(ctx)
	if err != nil {
		return nil, err
	}
	rows, err = tx.QueryContext(ctx, query, vars...)
	if err != nil {
		return nil, db.wrapError(err)
	}
	return rows, nil
}

func (db *DB) trace(ctx context.Context, begin time.Time, query string, vars []interface{}, rows int64, err error) {
	db.Logger.Trace(ctx, begin, func() (string, int64) {
		if filter, ok := db.Logger.(logger.ParamsFilter); ok {
			query, vars = filter.ParamsFilter(ctx, query, vars...)
		}
		return db.Dialector.Explain(query, vars...), rows
	}, err)
}

// wrapError marks err as a database failure, adding the translated
// constraint error when TranslateError is set.
func (db *DB) wrapError(err error) error {
	if db.TranslateError {
		if translated := db.Dialector.Translate(err); translated != err {
			return fmt.Errorf("%w: %w: %w", ErrDatabase, translated, err)
		}
	}
	return fmt.Errorf("%w: %w", ErrDatabase, err)
}

func (db *DB) endTransaction(ctx context.Context, name string, end func(*sql.Tx) error) (err error) {
	c := db.conn
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("%w: %w", ErrState, ErrClosed)
	}
	if c.tx == nil {
		return nil
	}

	begin := time.Now()
	defer func() {
		db.trace(ctx, begin, name, nil, -1, err)
	}()

	tx := c.tx
	c.tx = nil
	defer func() { c.savepoint = false }()
	if err := end(tx); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return db.wrapError(err)
	}
	return nil
}
