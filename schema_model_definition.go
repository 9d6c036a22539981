package queryreader

import (
	"fmt"
	"reflect"
)

const structTagName = "queryreader"

// modelDefinitionMap is a map of column name to each field defined in struct tags
type modelDefinitionMap map[string]modelDefinitionColInfo

// modelDefinitionColInfo as defined in the user-defined struct field tags
type modelDefinitionColInfo struct {
	fieldName  string
	fieldIndex int
}

func newModelDefinitionMap(modelType reflect.Type) (modelDefinitionMap, error) {
	if modelType == nil || modelType.Kind() != reflect.Struct {
		return nil, fmt.Errorf("model type should be a struct value type, got: %v", modelType)
	}
	if modelType.NumField() <= 0 {
		err := fmt.Errorf("at least one field should be defined for struct of type: %s", modelType.String())
		return nil, err
	}

	schema := make(map[string]modelDefinitionColInfo)
	// generate schema from struct tags:
	for i := 0; i < modelType.NumField(); i++ {
		field := modelType.Field(i)
		fieldName := field.Name
		colName := field.Tag.Get(structTagName)
		if colName == "-" {
			continue
		}
		if colName == "" {
			err := fmt.Errorf("missing %s tag for fieldName: %s", structTagName, fieldName)
			return nil, err
		}
		if !field.IsExported() {
			err := fmt.Errorf("field %s tagged %q is not exported and cannot be set", fieldName, colName)
			return nil, err
		}

		if _, ok := schema[colName]; ok {
			err := fmt.Errorf("duplicate column name found in tags: %s", colName)
			return nil, err
		}
		schema[colName] = modelDefinitionColInfo{
			fieldName:  fieldName,
			fieldIndex: i,
		}
	}

	return schema, nil
}
