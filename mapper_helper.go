package queryreader

import (
	"context"
	"reflect"
)

// ConvertReader reads the remaining rows of r into []*modelType.
// Useful for one-time conversion. For repeated use, consider creating DataMapper.
//
// Example:
// 	mapped, err := queryreader.ConvertReader(ctx, reflect.TypeOf(MyModel{}), reader)
func ConvertReader(ctx context.Context, modelType reflect.Type, r *Reader) ([]interface{}, error) {
	mapper, err := NewMapperFor(modelType)
	if err != nil {
		return nil, err
	}
	return mapper.FromReader(ctx, r)
}
