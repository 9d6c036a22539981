package queryreader

import (
	"reflect"
	"strings"
	"time"
)

// LocalType is the Go scalar a remote column is coerced into.
type LocalType int

const (
	TypeInvalid LocalType = iota
	TypeString
	TypeInt16
	TypeInt32
	TypeInt64
	TypeFloat32
	TypeFloat64
	TypeBoolean
	TypeTimestamp
	TypeDate
	TypeRecord
)

var localTypeNames = map[LocalType]string{
	TypeString:    "string",
	TypeInt16:     "int16",
	TypeInt32:     "int32",
	TypeInt64:     "int64",
	TypeFloat32:   "float32",
	TypeFloat64:   "float64",
	TypeBoolean:   "bool",
	TypeTimestamp: "time.Time",
	TypeDate:      "time.Time",
	TypeRecord:    "interface {}",
}

var localReflectTypes = map[LocalType]reflect.Type{
	TypeString:    reflect.TypeOf(""),
	TypeInt16:     reflect.TypeOf(int16(0)),
	TypeInt32:     reflect.TypeOf(int32(0)),
	TypeInt64:     reflect.TypeOf(int64(0)),
	TypeFloat32:   reflect.TypeOf(float32(0)),
	TypeFloat64:   reflect.TypeOf(float64(0)),
	TypeBoolean:   reflect.TypeOf(false),
	TypeTimestamp: reflect.TypeOf(time.Time{}),
	TypeDate:      reflect.TypeOf(time.Time{}),
	TypeRecord:    reflect.TypeOf((*interface{})(nil)).Elem(),
}

// String returns the Go type name values of this LocalType have.
func (t LocalType) String() string {
	if name, ok := localTypeNames[t]; ok {
		return name
	}
	return "invalid"
}

// ReflectType returns the reflect.Type of values of this LocalType, or nil for TypeInvalid.
func (t LocalType) ReflectType() reflect.Type {
	return localReflectTypes[t]
}

// for supported data types, see
// https://cloud.google.com/bigquery/docs/reference/legacy-sql#data-types and
// https://docs.aws.amazon.com/athena/latest/ug/data-types.html
var remoteTypeTable = map[string]LocalType{
	"string":    TypeString,
	"varchar":   TypeString,
	"char":      TypeString,
	"integer":   TypeInt64,
	"int64":     TypeInt64,
	"bigint":    TypeInt64,
	"int":       TypeInt32,
	"smallint":  TypeInt16,
	"tinyint":   TypeInt16,
	"float":     TypeFloat32,
	"real":      TypeFloat32,
	"float64":   TypeFloat64,
	"double":    TypeFloat64,
	"boolean":   TypeBoolean,
	"bool":      TypeBoolean,
	"timestamp": TypeTimestamp,
	"date":      TypeDate,
	"record":    TypeRecord,
	"struct":    TypeRecord,
}

// ResolveType looks up the local type for a remote type tag, ignoring case
// and any length or precision suffix such as varchar(255).
func ResolveType(remoteTypeTag string) (LocalType, bool) {
	tag := strings.ToLower(strings.TrimSpace(remoteTypeTag))
	if i := strings.IndexAny(tag, "(<"); i > 0 {
		tag = strings.TrimSpace(tag[:i])
	}
	t, ok := remoteTypeTable[tag]
	return t, ok
}

func mustResolveType(remoteTypeTag string) (LocalType, error) {
	t, ok := ResolveType(remoteTypeTag)
	if !ok {
		return TypeInvalid, &TypeResolutionError{TypeTag: remoteTypeTag}
	}
	return t, nil
}
