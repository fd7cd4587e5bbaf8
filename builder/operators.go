package builder

import (
	"errors"
	"fmt"
	"reflect"
	"sort"

	"github.com/minorm/minorm/schema"
)

// Condition is a boolean SQL expression.
type Condition interface {
	Build(stmt *Statement)
}

// Eq column equal to value; a nil value renders IS NULL.
type Eq struct {
	Column string
	Value  interface{}
}

func (eq Eq) Build(stmt *Statement) {
	stmt.WriteQuoted(eq.Column)
	if isNil(eq.Value) {
		stmt.Write(" IS NULL")
		return
	}
	stmt.Write(" = ")
	stmt.AddVar(eq.Value)
}

// assign writes eq as a SET item; NULL is bound like any other value.
func (eq Eq) assign(stmt *Statement) {
	stmt.WriteQuoted(eq.Column)
	stmt.Write(" = ")
	stmt.AddVar(eq.Value)
}

func isNil(v interface{}) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	return rv.Kind() == reflect.Ptr && rv.IsNil()
}

// And TRUE if all the conditions are TRUE
type And []Condition

func (and And) Build(stmt *Statement) {
	for idx, cond := range and {
		if idx > 0 {
			stmt.Write(" AND ")
		}
		cond.Build(stmt)
	}
}

// ErrUnknownColumn a condition names no column of the schema
var ErrUnknownColumn = errors.New("unknown column")

// EqMap turns a column-to-value map into Eq conditions sorted by column,
// so equal maps build equal SQL. Keys may be column or Go field names.
func EqMap(s *schema.Schema, values map[string]interface{}) ([]Condition, error) {
	eqs := make([]Eq, 0, len(values))
	for k, v := range values {
		field := s.LookUpField(k)
		if field == nil {
			return nil, fmt.Errorf("%w: %q in %s", ErrUnknownColumn, k, s.Table)
		}
		eqs = append(eqs, Eq{Column: field.DBName, Value: v})
	}
	sort.Slice(eqs, func(i, j int) bool { return eqs[i].Column < eqs[j].Column })

	conds := make([]Condition, len(eqs))
	for i, eq := range eqs {
		conds[i] = eq
	}
	return conds, nil
}
