package schema

import (
	"database/sql"
	"database/sql/driver"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/jinzhu/now"
	"github.com/mattn/go-sqlite3"
	"github.com/minorm/minorm/utils"
)

// TagName is the struct tag key holding field settings, e.g.
// `orm:"column:first_name;not null"`.
const TagName = "orm"

type DataType string

const (
	Bool   DataType = "bool"
	Int    DataType = "int"
	Uint   DataType = "uint"
	Float  DataType = "float"
	String DataType = "string"
	Time   DataType = "time"
	Bytes  DataType = "bytes"
	Custom DataType = "custom"
)

var (
	TimeReflectType    = reflect.TypeOf(time.Time{})
	scannerReflectType = reflect.TypeOf((*sql.Scanner)(nil)).Elem()
	valuerReflectType  = reflect.TypeOf((*driver.Valuer)(nil)).Elem()
)

// Field declares one column of a model.
type Field struct {
	Name                  string
	DBName                string
	DataType              DataType
	PrimaryKey            bool
	AutoIncrement         bool
	HasDefaultValue       bool
	DefaultValue          string
	DefaultValueInterface interface{}
	NotNull               bool
	Unique                bool
	FieldType             reflect.Type
	IndirectFieldType     reflect.Type
	StructField           reflect.StructField
	Index                 []int
	Tag                   reflect.StructTag
	TagSettings           map[string]string
	Schema                *Schema

	// ReflectValueOf returns the field inside an addressable struct value.
	ReflectValueOf func(reflect.Value) reflect.Value
	// ValueOf returns the field's current value and whether it is zero.
	ValueOf func(reflect.Value) (value interface{}, zero bool)
	// Set assigns v to the field, converting driver and caller values.
	Set func(reflect.Value, interface{}) error
}

// isColumnType reports whether values of t map onto a single column.
func isColumnType(t reflect.Type) bool {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t == TimeReflectType || t.ConvertibleTo(TimeReflectType) {
		return true
	}
	if reflect.PtrTo(t).Implements(scannerReflectType) || t.Implements(valuerReflectType) {
		return true
	}

	switch t.Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64, reflect.String:
		return true
	case reflect.Slice:
		return t.Elem().Kind() == reflect.Uint8
	}
	return false
}

func dataTypeOf(t reflect.Type) DataType {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	switch {
	case t == TimeReflectType:
		return Time
	case reflect.PtrTo(t).Implements(scannerReflectType):
		return Custom
	}

	switch t.Kind() {
	case reflect.Bool:
		return Bool
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return Int
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return Uint
	case reflect.Float32, reflect.Float64:
		return Float
	case reflect.String:
		return String
	case reflect.Slice:
		return Bytes
	}
	return Custom
}

// ParseField parses one struct field. It returns nil for fields tagged "-".
func (schema *Schema) ParseField(fieldStruct reflect.StructField, index []int) (*Field, error) {
	tag := fieldStruct.Tag.Get(TagName)
	if tag == "-" {
		return nil, nil
	}

	if !isColumnType(fieldStruct.Type) {
		return nil, fmt.Errorf("%w: field %s.%s of type %s, tag it %s:\"-\" to skip it",
			ErrUnsupportedDataType, schema.Name, fieldStruct.Name, fieldStruct.Type, TagName)
	}

	field := &Field{
		Name:              fieldStruct.Name,
		FieldType:         fieldStruct.Type,
		IndirectFieldType: fieldStruct.Type,
		StructField:       fieldStruct,
		Index:             index,
		Tag:               fieldStruct.Tag,
		TagSettings:       ParseTagSetting(tag, ";"),
		Schema:            schema,
	}
	for field.IndirectFieldType.Kind() == reflect.Ptr {
		field.IndirectFieldType = field.IndirectFieldType.Elem()
	}
	field.DataType = dataTypeOf(field.IndirectFieldType)

	if dbName, ok := field.TagSettings["COLUMN"]; ok {
		field.DBName = dbName
	}

	if val, ok := field.TagSettings["PRIMARYKEY"]; ok && utils.CheckTruth(val) {
		field.PrimaryKey = true
	} else if val, ok := field.TagSettings["PRIMARY_KEY"]; ok && utils.CheckTruth(val) {
		field.PrimaryKey = true
	}

	if val, ok := field.TagSettings["AUTOINCREMENT"]; ok && utils.CheckTruth(val) {
		field.AutoIncrement = true
	}

	if val, ok := field.TagSettings["NOT NULL"]; ok && utils.CheckTruth(val) {
		field.NotNull = true
	} else if val, ok := field.TagSettings["NOTNULL"]; ok && utils.CheckTruth(val) {
		field.NotNull = true
	}

	if val, ok := field.TagSettings["UNIQUE"]; ok && utils.CheckTruth(val) {
		field.Unique = true
	}

	field.setupValuerAndSetter()

	if v, ok := field.TagSettings["DEFAULT"]; ok {
		field.HasDefaultValue = true
		field.DefaultValue = v

		if !strings.EqualFold(v, "null") {
			holder := reflect.New(reflect.StructOf([]reflect.StructField{{Name: "V", Type: field.FieldType}})).Elem()
			if err := assign(holder.Field(0), v); err != nil {
				return nil, fmt.Errorf("%w: failed to parse %q as default value of %s.%s: %v",
					ErrUnsupportedDataType, v, schema.Name, field.Name, err)
			}
			field.DefaultValueInterface = holder.Field(0).Interface()
		}
	}

	return field, nil
}

func (field *Field) setupValuerAndSetter() {
	index := field.Index
	if len(index) == 1 {
		i := index[0]
		field.ReflectValueOf = func(value reflect.Value) reflect.Value {
			return reflect.Indirect(value).Field(i)
		}
	} else {
		field.ReflectValueOf = func(value reflect.Value) reflect.Value {
			return reflect.Indirect(value).FieldByIndex(index)
		}
	}

	field.ValueOf = func(value reflect.Value) (interface{}, bool) {
		fieldValue := field.ReflectValueOf(value)
		if fieldValue.Kind() == reflect.Ptr && fieldValue.IsNil() {
			return nil, true
		}
		return fieldValue.Interface(), fieldValue.IsZero()
	}

	field.Set = func(value reflect.Value, v interface{}) error {
		if err := assign(field.ReflectValueOf(value), v); err != nil {
			return fmt.Errorf("failed to set value %#v to field %s: %w", v, field.Name, err)
		}
		return nil
	}
}

// assign stores v into dst, an addressable value, converting between the
// representations drivers and callers produce.
func assign(dst reflect.Value, v interface{}) error {
	if v == nil {
		dst.Set(reflect.Zero(dst.Type()))
		return nil
	}

	// drivers reuse their buffers, keep a copy
	if b, ok := v.([]byte); ok {
		v = append([]byte(nil), b...)
	}

	reflectV := reflect.ValueOf(v)
	if reflectV.Type().AssignableTo(dst.Type()) {
		dst.Set(reflectV)
		return nil
	}

	if reflectV.Kind() == reflect.Ptr {
		if reflectV.IsNil() {
			dst.Set(reflect.Zero(dst.Type()))
			return nil
		}
		return assign(dst, reflectV.Elem().Interface())
	}

	if dst.Kind() == reflect.Ptr {
		elem := reflect.New(dst.Type().Elem())
		if err := assign(elem.Elem(), v); err != nil {
			return err
		}
		dst.Set(elem)
		return nil
	}

	if dst.CanAddr() {
		if scanner, ok := dst.Addr().Interface().(sql.Scanner); ok {
			if valuer, ok := v.(driver.Valuer); ok {
				var err error
				if v, err = valuer.Value(); err != nil {
					return err
				}
			}
			return scanner.Scan(v)
		}
	}

	if valuer, ok := v.(driver.Valuer); ok {
		dv, err := valuer.Value()
		if err != nil {
			return err
		}
		if dv == nil {
			dst.Set(reflect.Zero(dst.Type()))
			return nil
		}
		return assign(dst, dv)
	}

	if dst.Type() == TimeReflectType {
		var s string
		switch data := v.(type) {
		case string:
			s = data
		case []byte:
			s = string(data)
		default:
			return convert(dst, reflectV)
		}
		t, err := parseTime(s)
		if err != nil {
			return err
		}
		dst.Set(reflect.ValueOf(t))
		return nil
	}

	switch dst.Kind() {
	case reflect.Bool:
		switch data := v.(type) {
		case int64:
			dst.SetBool(data != 0)
		case string:
			b, err := strconv.ParseBool(data)
			if err != nil {
				return err
			}
			dst.SetBool(b)
		case []byte:
			return assign(dst, string(data))
		default:
			return convert(dst, reflectV)
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		var i int64
		switch reflectV.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			i = reflectV.Int()
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			u := reflectV.Uint()
			if u > math.MaxInt64 {
				return fmt.Errorf("value %d overflows %s", u, dst.Type())
			}
			i = int64(u)
		case reflect.Float32, reflect.Float64:
			f := reflectV.Float()
			if f != math.Trunc(f) {
				return fmt.Errorf("value %v is not an integer", f)
			}
			i = int64(f)
		case reflect.String:
			parsed, err := strconv.ParseInt(reflectV.String(), 0, 64)
			if err != nil {
				return err
			}
			i = parsed
		case reflect.Slice:
			if b, ok := v.([]byte); ok {
				return assign(dst, string(b))
			}
			return convert(dst, reflectV)
		default:
			return convert(dst, reflectV)
		}
		if dst.OverflowInt(i) {
			return fmt.Errorf("value %d overflows %s", i, dst.Type())
		}
		dst.SetInt(i)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		var u uint64
		switch reflectV.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			i := reflectV.Int()
			if i < 0 {
				return fmt.Errorf("value %d overflows %s", i, dst.Type())
			}
			u = uint64(i)
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			u = reflectV.Uint()
		case reflect.Float32, reflect.Float64:
			f := reflectV.Float()
			if f != math.Trunc(f) || f < 0 {
				return fmt.Errorf("value %v is not an unsigned integer", f)
			}
			u = uint64(f)
		case reflect.String:
			parsed, err := strconv.ParseUint(reflectV.String(), 0, 64)
			if err != nil {
				return err
			}
			u = parsed
		case reflect.Slice:
			if b, ok := v.([]byte); ok {
				return assign(dst, string(b))
			}
			return convert(dst, reflectV)
		default:
			return convert(dst, reflectV)
		}
		if dst.OverflowUint(u) {
			return fmt.Errorf("value %d overflows %s", u, dst.Type())
		}
		dst.SetUint(u)
	case reflect.Float32, reflect.Float64:
		switch reflectV.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			dst.SetFloat(float64(reflectV.Int()))
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			dst.SetFloat(float64(reflectV.Uint()))
		case reflect.Float32, reflect.Float64:
			dst.SetFloat(reflectV.Float())
		case reflect.String:
			f, err := strconv.ParseFloat(reflectV.String(), 64)
			if err != nil {
				return err
			}
			dst.SetFloat(f)
		case reflect.Slice:
			if b, ok := v.([]byte); ok {
				return assign(dst, string(b))
			}
			return convert(dst, reflectV)
		default:
			return convert(dst, reflectV)
		}
	case reflect.String:
		switch reflectV.Kind() {
		case reflect.String:
			dst.SetString(reflectV.String())
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
			reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
			reflect.Float32, reflect.Float64:
			dst.SetString(utils.ToString(v))
		case reflect.Slice:
			if reflectV.Type().Elem().Kind() != reflect.Uint8 {
				return convert(dst, reflectV)
			}
			dst.SetString(string(reflectV.Bytes()))
		default:
			return convert(dst, reflectV)
		}
	case reflect.Slice:
		if dst.Type().Elem().Kind() != reflect.Uint8 {
			return convert(dst, reflectV)
		}
		switch reflectV.Kind() {
		case reflect.String:
			dst.SetBytes([]byte(reflectV.String()))
		case reflect.Slice:
			if reflectV.Type().Elem().Kind() != reflect.Uint8 {
				return convert(dst, reflectV)
			}
			dst.SetBytes(reflectV.Bytes())
		default:
			return convert(dst, reflectV)
		}
	default:
		return convert(dst, reflectV)
	}
	return nil
}

// parseTime accepts the layouts of now.Parse and those go-sqlite3 writes
// for time values stored in columns it does not declare as DATETIME.
func parseTime(s string) (time.Time, error) {
	t, err := now.Parse(s)
	if err == nil {
		return t, nil
	}
	trimmed := strings.TrimSuffix(s, "Z")
	for _, layout := range sqlite3.SQLiteTimestampFormats {
		if t, perr := time.ParseInLocation(layout, trimmed, time.UTC); perr == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("failed to parse %q as time: %w", s, err)
}

func convert(dst, reflectV reflect.Value) error {
	if reflectV.Kind() == dst.Kind() && reflectV.Type().ConvertibleTo(dst.Type()) {
		dst.Set(reflectV.Convert(dst.Type()))
		return nil
	}
	return fmt.Errorf("cannot convert %s to %s", reflectV.Type(), dst.Type())
}

// ParseTagSetting splits a tag such as "column:name;primaryKey" into
// upper-cased keys. Flags without a value map to their own key.
func ParseTagSetting(str string, sep string) map[string]string {
	settings := map[string]string{}
	names := strings.Split(str, sep)

	for i := 0; i < len(names); i++ {
		j := i
		if len(names[j]) > 0 {
			for {
				if names[j][len(names[j])-1] == '\\' && i+1 < len(names) {
					i++
					names[j] = names[j][0:len(names[j])-1] + sep + names[i]
					names[i] = ""
				} else {
					break
				}
			}
		}

		values := strings.Split(names[j], ":")
		k := strings.TrimSpace(strings.ToUpper(values[0]))

		if len(values) >= 2 {
			settings[k] = strings.Join(values[1:], ":")
		} else if k != "" {
			settings[k] = k
		}
	}

	return settings
}
