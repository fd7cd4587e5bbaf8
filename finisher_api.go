package minorm

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"

	"github.com/minorm/minorm/builder"
	"github.com/minorm/minorm/schema"
)

// Commit commits the pending transaction, if any.
func (db *DB) Commit() error {
	return db.CommitContext(context.Background())
}

// CommitContext is Commit with a context for logging. A failed last
// statement is undone before committing.
func (db *DB) CommitContext(ctx context.Context) error {
	return db.endTransaction(ctx, "COMMIT", func(tx *sql.Tx) error {
		if err := db.releaseStatement(context.WithoutCancel(ctx), tx); err != nil {
			tx.Rollback()
			return err
		}
		return tx.Commit()
	})
}

// Rollback discards the pending transaction, if any.
func (db *DB) Rollback() error {
	return db.RollbackContext(context.Background())
}

// RollbackContext is Rollback with a context for logging.
func (db *DB) RollbackContext(ctx context.Context) error {
	return db.endTransaction(ctx, "ROLLBACK", (*sql.Tx).Rollback)
}

// Exec runs a statement inside the pending transaction. Values are bound to
// placeholders, never interpolated.
func (db *DB) Exec(ctx context.Context, query string, values ...interface{}) (sql.Result, error) {
	return db.exec(ctx, query, values...)
}

// Query runs a query inside the pending transaction. The caller closes the
// returned rows.
func (db *DB) Query(ctx context.Context, query string, values ...interface{}) (*sql.Rows, error) {
	return db.query(ctx, query, values...)
}

// Save inserts model when its primary key is zero, capturing the assigned
// identity, and updates the row keyed by it otherwise. model must be a
// pointer to a struct.
func (db *DB) Save(ctx context.Context, model interface{}) error {
	s, rv, err := db.modelValue(model)
	if err != nil {
		return err
	}

	if _, zero := s.PrimaryField.ValueOf(rv); zero {
		return db.insert(ctx, s, rv)
	}

	stmt := builder.Update(db.Dialector, s, rv)
	result, err := db.exec(ctx, stmt.String(), stmt.Vars...)
	if err != nil {
		return err
	}
	if n, err := result.RowsAffected(); err != nil {
		return fmt.Errorf("%w: %w", ErrDatabase, err)
	} else if n == 0 {
		id, _ := s.PrimaryField.ValueOf(rv)
		return fmt.Errorf("%w: %s with %s = %v", ErrNotFound, s.Table, s.PrimaryField.DBName, id)
	}
	return nil
}

func (db *DB) insert(ctx context.Context, s *schema.Schema, rv reflect.Value) error {
	stmt := builder.Insert(db.Dialector, s, rv)

	if db.Dialector.Returning(s.PrimaryField.DBName) != "" {
		rows, err := db.query(ctx, stmt.String(), stmt.Vars...)
		if err != nil {
			return err
		}
		defer rows.Close()

		if !rows.Next() {
			if err := rows.Err(); err != nil {
				return db.wrapError(err)
			}
			return fmt.Errorf("%w: insert into %s returned no identity", ErrDatabase, s.Table)
		}
		var id interface{}
		if err := rows.Scan(&id); err != nil {
			return db.wrapError(err)
		}
		if err := rows.Close(); err != nil {
			return db.wrapError(err)
		}
		return s.PrimaryField.Set(rv, id)
	}

	result, err := db.exec(ctx, stmt.String(), stmt.Vars...)
	if err != nil {
		return err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDatabase, err)
	}
	return s.PrimaryField.Set(rv, id)
}

// Delete removes the row of a saved model and resets its primary key to
// zero. Deleting an unsaved model fails with ErrState.
func (db *DB) Delete(ctx context.Context, model interface{}) error {
	s, rv, err := db.modelValue(model)
	if err != nil {
		return err
	}

	id, zero := s.PrimaryField.ValueOf(rv)
	if zero {
		return fmt.Errorf("%w: cannot delete unsaved instance of %s", ErrState, s.Name)
	}

	stmt := builder.Delete(db.Dialector, s, id)
	result, err := db.exec(ctx, stmt.String(), stmt.Vars...)
	if err != nil {
		return err
	}
	if n, err := result.RowsAffected(); err != nil {
		return fmt.Errorf("%w: %w", ErrDatabase, err)
	} else if n == 0 {
		return fmt.Errorf("%w: %s with %s = %v", ErrNotFound, s.Table, s.PrimaryField.DBName, id)
	}
	return s.PrimaryField.Set(rv, nil)
}

func (db *DB) modelValue(model interface{}) (*schema.Schema, reflect.Value, error) {
	rv := reflect.ValueOf(model)
	if rv.Kind() != reflect.Ptr || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return nil, rv, fmt.Errorf("%w: model must be a non-nil pointer to a struct, got %T", ErrConfiguration, model)
	}
	s, err := db.schemaOf(model)
	if err != nil {
		return nil, rv, err
	}
	return s, rv, nil
}
