package minorm

import (
	"database/sql"
	"fmt"
	"reflect"

	"github.com/minorm/minorm/schema"
)

// scanner hydrates rows of one query into struct values, matching columns
// to fields by name. Columns without a field are read and discarded.
type scanner struct {
	schema *schema.Schema
	fields []*schema.Field
	values []interface{}
}

func newScanner(s *schema.Schema, rows *sql.Rows) (*scanner, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDatabase, err)
	}

	sc := &scanner{
		schema: s,
		fields: make([]*schema.Field, len(columns)),
		values: make([]interface{}, len(columns)),
	}
	for idx, name := range columns {
		sc.fields[idx] = s.LookUpField(name)
	}
	return sc, nil
}

// scanIntoStruct reads the current row into reflectValue, a pointer to a
// zero struct of the schema's type.
func (sc *scanner) scanIntoStruct(rows *sql.Rows, reflectValue reflect.Value) error {
	for idx := range sc.values {
		sc.values[idx] = new(interface{})
	}

	if err := rows.Scan(sc.values...); err != nil {
		return fmt.Errorf("%w: %w", ErrDatabase, err)
	}

	for idx, field := range sc.fields {
		if field == nil {
			continue
		}
		if err := field.Set(reflectValue, *(sc.values[idx].(*interface{}))); err != nil {
			return fmt.Errorf("%w: column %s.%s: %w", ErrDatabase, sc.schema.Table, field.DBName, err)
		}
	}
	return nil
}
