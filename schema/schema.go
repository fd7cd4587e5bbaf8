package schema

import (
	"errors"
	"fmt"
	"go/ast"
	"reflect"
	"sync"
)

var (
	// ErrUnsupportedDataType unsupported data type
	ErrUnsupportedDataType = errors.New("unsupported data type")
	// ErrPrimaryKeyRequired model declares no primary key
	ErrPrimaryKeyRequired = errors.New("primary key required")
	// ErrInvalidPrimaryKey primary key is not an integer column or is declared twice
	ErrInvalidPrimaryKey = errors.New("invalid primary key")
	// ErrDuplicatedColumn two fields map onto one column
	ErrDuplicatedColumn = errors.New("duplicated column")
)

// Tabler overrides the table name derived by the naming strategy.
type Tabler interface {
	TableName() string
}

// Schema is the declared shape of one model type: its table and ordered
// columns. Built once by Parse and never mutated afterwards.
type Schema struct {
	Name           string
	ModelType      reflect.Type
	Table          string
	PrimaryField   *Field
	Fields         []*Field
	FieldsByName   map[string]*Field
	FieldsByDBName map[string]*Field
	DBNames        []string
	namer          Namer
}

func (schema Schema) String() string {
	if schema.ModelType.Name() == "" {
		return fmt.Sprintf("%s(%s)", schema.Name, schema.Table)
	}
	return fmt.Sprintf("%s.%s", schema.ModelType.PkgPath(), schema.ModelType.Name())
}

// LookUpField finds a field by column name, then by Go field name.
func (schema Schema) LookUpField(name string) *Field {
	if field, ok := schema.FieldsByDBName[name]; ok {
		return field
	}
	if field, ok := schema.FieldsByName[name]; ok {
		return field
	}
	return nil
}

// New allocates a zero model value, returning a pointer to it.
func (schema Schema) New() reflect.Value {
	return reflect.New(schema.ModelType)
}

// ModelTypeOf resolves the struct type behind dest, which may be a value,
// pointer, slice or reflect.Type.
func ModelTypeOf(dest interface{}) (reflect.Type, error) {
	if dest == nil {
		return nil, fmt.Errorf("%w: nil model", ErrUnsupportedDataType)
	}

	modelType, ok := dest.(reflect.Type)
	if !ok {
		modelType = reflect.TypeOf(dest)
	}
	for modelType.Kind() == reflect.Slice || modelType.Kind() == reflect.Array || modelType.Kind() == reflect.Ptr {
		modelType = modelType.Elem()
	}

	if modelType.Kind() != reflect.Struct {
		if modelType.PkgPath() == "" {
			return nil, fmt.Errorf("%w: %+v", ErrUnsupportedDataType, dest)
		}
		return nil, fmt.Errorf("%w: %s.%s", ErrUnsupportedDataType, modelType.PkgPath(), modelType.Name())
	}
	return modelType, nil
}

// Parse builds the schema of dest, caching it per type in cacheStore.
func Parse(dest interface{}, cacheStore *sync.Map, namer Namer) (*Schema, error) {
	modelType, err := ModelTypeOf(dest)
	if err != nil {
		return nil, err
	}

	if v, ok := cacheStore.Load(modelType); ok {
		return v.(*Schema), nil
	}

	schema := &Schema{
		Name:           modelType.Name(),
		ModelType:      modelType,
		FieldsByName:   map[string]*Field{},
		FieldsByDBName: map[string]*Field{},
		namer:          namer,
	}

	modelValue := reflect.New(modelType)
	if tabler, ok := modelValue.Interface().(Tabler); ok {
		schema.Table = tabler.TableName()
	} else {
		schema.Table = namer.TableName(modelType.Name())
	}
	if schema.Table == "" {
		return nil, fmt.Errorf("%w: %s has no table name", ErrUnsupportedDataType, modelType)
	}

	if err := schema.parseFields(modelType, nil); err != nil {
		return nil, err
	}

	for _, field := range schema.Fields {
		if field.DBName == "" {
			field.DBName = namer.ColumnName(schema.Table, field.Name)
		}

		if v, ok := schema.FieldsByDBName[field.DBName]; ok {
			return nil, fmt.Errorf("%w: %s and %s both map to %q in %s", ErrDuplicatedColumn, v.Name, field.Name, field.DBName, schema)
		}
		schema.FieldsByDBName[field.DBName] = field
		schema.DBNames = append(schema.DBNames, field.DBName)
		if _, ok := schema.FieldsByName[field.Name]; !ok {
			schema.FieldsByName[field.Name] = field
		}

		if field.PrimaryKey {
			if schema.PrimaryField != nil {
				return nil, fmt.Errorf("%w: %s declares both %s and %s", ErrInvalidPrimaryKey, schema, schema.PrimaryField.Name, field.Name)
			}
			schema.PrimaryField = field
		}
	}

	if schema.PrimaryField == nil {
		if f := schema.FieldsByDBName["id"]; f != nil {
			f.PrimaryKey = true
			schema.PrimaryField = f
		}
	}

	if schema.PrimaryField == nil {
		return nil, fmt.Errorf("%w: %s", ErrPrimaryKeyRequired, schema)
	}

	switch schema.PrimaryField.DataType {
	case Int, Uint:
		if schema.PrimaryField.FieldType.Kind() == reflect.Ptr {
			return nil, fmt.Errorf("%w: %s.%s must not be a pointer", ErrInvalidPrimaryKey, schema, schema.PrimaryField.Name)
		}
		schema.PrimaryField.AutoIncrement = true
	default:
		return nil, fmt.Errorf("%w: %s.%s must be an integer", ErrInvalidPrimaryKey, schema, schema.PrimaryField.Name)
	}

	if v, loaded := cacheStore.LoadOrStore(modelType, schema); loaded {
		return v.(*Schema), nil
	}
	return schema, nil
}

// parseFields walks exported fields in declaration order, flattening
// untagged embedded structs such as a shared base model.
func (schema *Schema) parseFields(structType reflect.Type, index []int) error {
	for i := 0; i < structType.NumField(); i++ {
		fieldStruct := structType.Field(i)
		fieldIndex := append(append([]int{}, index...), i)

		if fieldStruct.Anonymous && fieldStruct.Type.Kind() == reflect.Struct && !isColumnType(fieldStruct.Type) {
			if fieldStruct.Tag.Get(TagName) == "-" {
				continue
			}
			if err := schema.parseFields(fieldStruct.Type, fieldIndex); err != nil {
				return err
			}
			continue
		}

		if !ast.IsExported(fieldStruct.Name) {
			continue
		}

		field, err := schema.ParseField(fieldStruct, fieldIndex)
		if err != nil {
			return err
		}
		if field != nil {
			schema.Fields = append(schema.Fields, field)
		}
	}
	return nil
}
