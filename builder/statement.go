// Package builder assembles parameterised SQL for one model schema. Values
// are always bound, never written into the SQL text.
package builder

import (
	"reflect"
	"strings"

	"github.com/minorm/minorm/dialect"
	"github.com/minorm/minorm/schema"
)

// Statement is SQL text plus its bound vars, in placeholder order.
type Statement struct {
	Dialector dialect.Dialector
	Schema    *schema.Schema
	SQL       strings.Builder
	Vars      []interface{}
}

// New starts an empty statement for s.
func New(d dialect.Dialector, s *schema.Schema) *Statement {
	return &Statement{Dialector: d, Schema: s}
}

func (stmt *Statement) Write(sql ...string) {
	for _, s := range sql {
		stmt.SQL.WriteString(s)
	}
}

// WriteQuoted writes a quoted identifier.
func (stmt *Statement) WriteQuoted(name string) {
	stmt.SQL.WriteString(stmt.Dialector.Quote(name))
}

// AddVar binds vars and writes their placeholders, comma separated.
func (stmt *Statement) AddVar(vars ...interface{}) {
	for idx, v := range vars {
		if idx > 0 {
			stmt.SQL.WriteByte(',')
		}
		stmt.Vars = append(stmt.Vars, v)
		stmt.SQL.WriteString(stmt.Dialector.BindVar(len(stmt.Vars)))
	}
}

func (stmt *Statement) String() string {
	return stmt.SQL.String()
}

// Explain renders the statement with its vars inlined, for logging.
func (stmt *Statement) Explain() string {
	return stmt.Dialector.Explain(stmt.SQL.String(), stmt.Vars...)
}

func (stmt *Statement) writeTable() {
	stmt.WriteQuoted(stmt.Schema.Table)
}

func (stmt *Statement) writePrimaryKeyCondition(id interface{}) {
	stmt.Write(" WHERE ")
	Eq{Column: stmt.Schema.PrimaryField.DBName, Value: id}.Build(stmt)
}

// Insert writes every non auto-increment column of model, a pointer to a
// struct of the schema's type. Dialects without LastInsertId get a
// RETURNING clause for the primary key.
func Insert(d dialect.Dialector, s *schema.Schema, model reflect.Value) *Statement {
	stmt := New(d, s)
	stmt.Write("INSERT INTO ")
	stmt.writeTable()

	var columns []*schema.Field
	for _, field := range s.Fields {
		if !field.AutoIncrement {
			columns = append(columns, field)
		}
	}

	if len(columns) == 0 {
		stmt.Write(" DEFAULT VALUES")
	} else {
		stmt.Write(" (")
		for idx, field := range columns {
			if idx > 0 {
				stmt.Write(",")
			}
			stmt.WriteQuoted(field.DBName)
		}
		stmt.Write(") VALUES (")
		for idx, field := range columns {
			if idx > 0 {
				stmt.Write(",")
			}
			v, _ := field.ValueOf(model)
			stmt.AddVar(v)
		}
		stmt.Write(")")
	}

	if returning := d.Returning(s.PrimaryField.DBName); returning != "" {
		stmt.Write(" ", returning)
	}
	return stmt
}

// Update sets every non primary key column of model, keyed by its primary
// key. A model with no other column rewrites the key onto itself so the
// affected row count still reports whether the row exists.
func Update(d dialect.Dialector, s *schema.Schema, model reflect.Value) *Statement {
	stmt := New(d, s)
	stmt.Write("UPDATE ")
	stmt.writeTable()
	stmt.Write(" SET ")

	id, _ := s.PrimaryField.ValueOf(model)
	assigned := 0
	for _, field := range s.Fields {
		if field.PrimaryKey {
			continue
		}
		if assigned > 0 {
			stmt.Write(", ")
		}
		v, _ := field.ValueOf(model)
		Eq{Column: field.DBName, Value: v}.assign(stmt)
		assigned++
	}
	if assigned == 0 {
		Eq{Column: s.PrimaryField.DBName, Value: id}.assign(stmt)
	}

	stmt.writePrimaryKeyCondition(id)
	return stmt
}

// Delete removes the row whose primary key is id.
func Delete(d dialect.Dialector, s *schema.Schema, id interface{}) *Statement {
	stmt := New(d, s)
	stmt.Write("DELETE FROM ")
	stmt.writeTable()
	stmt.writePrimaryKeyCondition(id)
	return stmt
}

// SelectAll selects every row, in whatever order the database returns them.
func SelectAll(d dialect.Dialector, s *schema.Schema) *Statement {
	stmt := New(d, s)
	stmt.Write("SELECT * FROM ")
	stmt.writeTable()
	return stmt
}

// SelectByID selects the row whose primary key is id.
func SelectByID(d dialect.Dialector, s *schema.Schema, id interface{}) *Statement {
	stmt := SelectAll(d, s)
	stmt.writePrimaryKeyCondition(id)
	return stmt
}

// SelectWhere selects the rows matching every condition.
func SelectWhere(d dialect.Dialector, s *schema.Schema, conds ...Condition) *Statement {
	stmt := SelectAll(d, s)
	if len(conds) > 0 {
		stmt.Write(" WHERE ")
		And(conds).Build(stmt)
	}
	return stmt
}

// Count counts the rows matching every condition.
func Count(d dialect.Dialector, s *schema.Schema, conds ...Condition) *Statement {
	stmt := New(d, s)
	stmt.Write("SELECT count(*) FROM ")
	stmt.writeTable()
	if len(conds) > 0 {
		stmt.Write(" WHERE ")
		And(conds).Build(stmt)
	}
	return stmt
}
