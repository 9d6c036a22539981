package queryreader

import (
	"context"
	"fmt"

	"github.com/kent-id/queryreader/types"
)

// resultSetDefinitionMap is a map of column name to each column returned by the reader
type resultSetDefinitionMap map[string]resultSetColInfo

// resultSetColInfo as retrieved from the schema of an executed command
type resultSetColInfo struct {
	index      int
	columnType string
}

// newResultSetDefinitionMap reads the schema definition from result set fields
func newResultSetDefinitionMap(ctx context.Context, fields []*types.TableFieldSchema) (resultSetDefinitionMap, error) {
	if len(fields) <= 0 {
		err := fmt.Errorf("at least one column should be returned by the data set")
		return nil, err
	}

	schema := make(map[string]resultSetColInfo)
	for index, field := range fields {
		if field == nil || field.Name == "" {
			err := fmt.Errorf("column name from result set is empty, index: %d, field: %+v", index, field)
			return nil, err
		}

		if field.Type == "" {
			err := fmt.Errorf("column type from result set is empty, index: %d, name: %s", index, field.Name)
			return nil, err
		}

		if _, ok := schema[field.Name]; ok {
			err := fmt.Errorf("duplicate column name from result set, index: %d, name: %s", index, field.Name)
			return nil, err
		}
		schema[field.Name] = resultSetColInfo{
			index:      index,
			columnType: field.Type,
		}
	}
	return schema, nil
}

func validateResultSetSchema(ctx context.Context, resultSetSchema resultSetDefinitionMap, modelDefSchema modelDefinitionMap) error {
	for key := range modelDefSchema {
		colInfo, ok := resultSetSchema[key]
		if !ok {
			err := fmt.Errorf("column '%s' is defined in model schema but not found in result set", key)
			return err
		}
		if _, err := mustResolveType(colInfo.columnType); err != nil {
			return err
		}
	}

	if extra := len(resultSetSchema) - len(modelDefSchema); extra > 0 {
		LogDebugf("result set has %d columns not defined in model schema, they will be ignored", extra)
	}
	return nil
}
