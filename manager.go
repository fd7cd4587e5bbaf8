package minorm

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"

	"github.com/minorm/minorm/builder"
	"github.com/minorm/minorm/schema"
)

// Manager queries and persists models of type T through one DB. It holds
// no state besides the parsed schema.
type Manager[T any] struct {
	db     *DB
	schema *schema.Schema
	err    error
}

// Objects returns the Manager of T, a struct type, bound to db. A T that
// fails to parse makes every method return ErrConfiguration, a nil db
// ErrState.
func Objects[T any](db *DB) *Manager[T] {
	m := &Manager[T]{db: db}
	if db == nil {
		m.err = fmt.Errorf("%w: nil database", ErrState)
		return m
	}
	if t := reflect.TypeOf((*T)(nil)).Elem(); t.Kind() != reflect.Struct {
		m.err = fmt.Errorf("%w: manager needs a struct type, got %s", ErrConfiguration, t)
		return m
	}
	m.schema, m.err = db.schemaOf((*T)(nil))
	return m
}

// Schema returns the parsed schema of T.
func (m *Manager[T]) Schema() (*schema.Schema, error) {
	return m.schema, m.err
}

// New builds an unsaved T from values keyed by column or Go field name.
// Fields not supplied take their declared default, else the zero value.
func (m *Manager[T]) New(values map[string]interface{}) (*T, error) {
	if m.err != nil {
		return nil, m.err
	}

	obj := new(T)
	rv := reflect.ValueOf(obj)
	for _, field := range m.schema.Fields {
		if field.HasDefaultValue && field.DefaultValueInterface != nil {
			if err := field.Set(rv, field.DefaultValue); err != nil {
				return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
			}
		}
	}

	for name, value := range values {
		field := m.schema.LookUpField(name)
		if field == nil {
			return nil, fmt.Errorf("%w: unknown field %q for %s", ErrConfiguration, name, m.schema.Name)
		}
		if err := field.Set(rv, value); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
		}
	}
	return obj, nil
}

// Save inserts or updates obj, see DB.Save.
func (m *Manager[T]) Save(ctx context.Context, obj *T) error {
	if m.err != nil {
		return m.err
	}
	return m.db.Save(ctx, obj)
}

// Delete removes obj's row, see DB.Delete.
func (m *Manager[T]) Delete(ctx context.Context, obj *T) error {
	if m.err != nil {
		return m.err
	}
	return m.db.Delete(ctx, obj)
}

// All returns every row of the table, in whatever order the database
// returns them.
func (m *Manager[T]) All(ctx context.Context) ([]*T, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.find(ctx, builder.SelectAll(m.db.Dialector, m.schema))
}

// Filter returns the rows whose columns equal every value of conds. A nil
// value matches NULL.
func (m *Manager[T]) Filter(ctx context.Context, conds map[string]interface{}) ([]*T, error) {
	if m.err != nil {
		return nil, m.err
	}
	eqs, err := builder.EqMap(m.schema, conds)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	return m.find(ctx, builder.SelectWhere(m.db.Dialector, m.schema, eqs...))
}

// Get returns the row whose primary key is id.
func (m *Manager[T]) Get(ctx context.Context, id interface{}) (*T, error) {
	if m.err != nil {
		return nil, m.err
	}

	var found *T
	err := m.each(ctx, builder.SelectByID(m.db.Dialector, m.schema, id), func(obj *T) error {
		if found != nil {
			return fmt.Errorf("%w: %s with %s = %v", ErrMultipleResults, m.schema.Table, m.schema.PrimaryField.DBName, id)
		}
		found = obj
		return nil
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, fmt.Errorf("%w: %s with %s = %v", ErrNotFound, m.schema.Table, m.schema.PrimaryField.DBName, id)
	}
	return found, nil
}

// Each streams every row of the table to fn. An error from fn stops the
// iteration and is returned as is. The pgx driver allows one open result
// set per connection, so on PostgreSQL fn must not run statements itself.
func (m *Manager[T]) Each(ctx context.Context, fn func(*T) error) error {
	if m.err != nil {
		return m.err
	}
	return m.each(ctx, builder.SelectAll(m.db.Dialector, m.schema), fn)
}

// Count returns the number of rows in the table.
func (m *Manager[T]) Count(ctx context.Context) (int64, error) {
	if m.err != nil {
		return 0, m.err
	}

	stmt := builder.Count(m.db.Dialector, m.schema)
	rows, err := m.db.query(ctx, stmt.String(), stmt.Vars...)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	var count int64
	if rows.Next() {
		if err := rows.Scan(&count); err != nil {
			return 0, fmt.Errorf("%w: %w", ErrDatabase, err)
		}
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrDatabase, err)
	}
	return count, nil
}

func (m *Manager[T]) find(ctx context.Context, stmt *builder.Statement) ([]*T, error) {
	results := []*T{}
	err := m.each(ctx, stmt, func(obj *T) error {
		results = append(results, obj)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (m *Manager[T]) each(ctx context.Context, stmt *builder.Statement, fn func(*T) error) error {
	rows, err := m.db.query(ctx, stmt.String(), stmt.Vars...)
	if err != nil {
		return err
	}
	defer rows.Close()

	sc, err := newScanner(m.schema, rows)
	if err != nil {
		return err
	}

	for rows.Next() {
		obj := new(T)
		if err := sc.scanIntoStruct(rows, reflect.ValueOf(obj)); err != nil {
			return err
		}
		if err := fn(obj); err != nil {
			return err
		}
	}
	return rowsErr(rows)
}

func rowsErr(rows *sql.Rows) error {
	if err := rows.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrDatabase, err)
	}
	return nil
}
