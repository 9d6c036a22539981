package queryreader

import (
	"github.com/kent-id/queryreader/types"
)

// SchemaColumn is one row of a SchemaTable.
type SchemaColumn struct {
	ColumnName string
	DataType   LocalType

	// TypeTag is the remote type the DataType was resolved from.
	TypeTag string
}

// SchemaTable describes the columns of one remote table in order.
type SchemaTable struct {
	TableName string
	Columns   []SchemaColumn
}

// Column returns the column with the given name.
func (t *SchemaTable) Column(name string) (SchemaColumn, bool) {
	for _, c := range t.Columns {
		if c.ColumnName == name {
			return c, true
		}
	}
	return SchemaColumn{}, false
}

func newSchemaTable(tableName string, schema *types.TableSchema) (*SchemaTable, error) {
	st := &SchemaTable{TableName: tableName}
	if schema == nil {
		return st, nil
	}
	st.Columns = make([]SchemaColumn, 0, len(schema.Fields))
	for _, f := range schema.Fields {
		lt, err := mustResolveType(f.Type)
		if err != nil {
			return nil, err
		}
		st.Columns = append(st.Columns, SchemaColumn{ColumnName: f.Name, DataType: lt, TypeTag: f.Type})
	}
	return st, nil
}
