package queryreader

import (
	"context"
	"fmt"
	"reflect"
)

type dataMapper struct {
	modelType             reflect.Type
	modelDefinitionSchema modelDefinitionMap
}

// DataMapper provides abstraction to convert the rows of a Reader to arbitrary user-defined struct
type DataMapper interface {
	FromReader(ctx context.Context, r *Reader) ([]interface{}, error)
}

// NewMapperFor creates new DataMapper for given reflect.Type
// reflect.Type should be of struct value type, not pointer to struct.
//
// Example:
//
// mapper, err := queryreader.NewMapperFor(reflect.TypeOf(MyStruct{}))
func NewMapperFor(modelType reflect.Type) (DataMapper, error) {
	modelDefinitionSchema, err := newModelDefinitionMap(modelType)
	if err != nil {
		return nil, err
	}

	mapper := &dataMapper{
		modelType:             modelType,
		modelDefinitionSchema: modelDefinitionSchema,
	}
	return mapper, nil
}

// FromReader reads the remaining rows of r into strongly-typed []*mapper.modelType.
// Returns error if the reader schema lacks a column the mapper definition requires.
// The reader is left exhausted but open.
//
// Example:
// reader, err := cmd.ExecuteReader(ctx)
// defer reader.Close()
// mapped, err := mapper.FromReader(ctx, reader)
func (m *dataMapper) FromReader(ctx context.Context, r *Reader) ([]interface{}, error) {
	if err := r.checkOpen("map rows"); err != nil {
		return nil, err
	}
	resultSetSchema, err := newResultSetDefinitionMap(ctx, r.fields())
	if err != nil {
		return nil, err
	}

	err = validateResultSetSchema(ctx, resultSetSchema, m.modelDefinitionSchema)
	if err != nil {
		return nil, err
	}

	result := make([]interface{}, 0)
	for {
		ok, err := r.ReadContext(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}

		model := reflect.New(m.modelType)
		for colName, modelDefColInfo := range m.modelDefinitionSchema {
			mappedColumnInfo := resultSetSchema[colName]
			colData, err := r.GetFieldValue(mappedColumnInfo.index)
			if err != nil {
				return nil, err
			}
			field := model.Elem().Field(modelDefColInfo.fieldIndex)
			if err := assignField(field, colData); err != nil {
				return nil, fmt.Errorf("set %s.%s from column '%s': %w", m.modelType.Name(), modelDefColInfo.fieldName, colName, err)
			}
		}

		result = append(result, model.Interface())
	}

	return result, nil
}

// assignField stores v into field, leaving the zero value for nulls. A pointer
// field receives a pointer to a fresh copy of v.
func assignField(field reflect.Value, v interface{}) error {
	if v == nil {
		return nil
	}
	target := field.Type()
	isPtr := target.Kind() == reflect.Ptr
	if isPtr {
		target = target.Elem()
	}

	value := reflect.ValueOf(v)
	if !value.Type().AssignableTo(target) {
		converted, ok := convertTo(v, target)
		if !ok {
			return fmt.Errorf("cannot assign %T to %s", v, target)
		}
		value = reflect.ValueOf(converted)
	}

	if isPtr {
		ptr := reflect.New(target)
		ptr.Elem().Set(value)
		field.Set(ptr)
		return nil
	}
	field.Set(value)
	return nil
}
