package queryreader

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

const parameterPrefix = "@"

// universalLayout is the sortable universal date/time pattern used inside TIMESTAMP('...').
const universalLayout = "2006-01-02 15:04:05Z"

// DbType is the declared type of a parameter and decides how its value is rendered.
type DbType int

const (
	DbTypeString DbType = iota
	DbTypeInteger
	DbTypeFloat
	DbTypeBoolean
	DbTypeTimestamp
	DbTypeUnknown
)

func (t DbType) String() string {
	switch t {
	case DbTypeString:
		return "STRING"
	case DbTypeInteger:
		return "INTEGER"
	case DbTypeFloat:
		return "FLOAT"
	case DbTypeBoolean:
		return "BOOLEAN"
	case DbTypeTimestamp:
		return "TIMESTAMP"
	default:
		return "UNKNOWN"
	}
}

// Parameter is a named value substituted into command text as a literal.
type Parameter struct {
	// Name with or without the leading @.
	Name string

	// Type decides quoting: strings are escaped and quoted, timestamps wrapped in TIMESTAMP().
	Type DbType

	Value interface{}

	// Size truncates string values to this many characters before escaping. Zero means no limit.
	Size int
}

// NewParameter infers the declared type from value.
func NewParameter(name string, value interface{}) *Parameter {
	return &Parameter{Name: name, Type: inferDbType(value), Value: value}
}

func inferDbType(value interface{}) DbType {
	switch value.(type) {
	case string, *string, []byte:
		return DbTypeString
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return DbTypeInteger
	case float32, float64:
		return DbTypeFloat
	case bool:
		return DbTypeBoolean
	case time.Time:
		return DbTypeTimestamp
	default:
		return DbTypeUnknown
	}
}

func (p *Parameter) bareName() string {
	return strings.TrimLeft(p.Name, parameterPrefix)
}

// Render returns the literal-safe text that replaces @name in command text.
func (p *Parameter) Render() string {
	switch p.Type {
	case DbTypeString:
		return "'" + escapeStringLiteral(truncateRunes(stringValue(p.Value), p.Size)) + "'"
	case DbTypeTimestamp:
		return fmt.Sprintf("TIMESTAMP('%s')", escapeStringLiteral(formatInvariant(p.Value)))
	default:
		if p.Value == nil {
			return "NULL"
		}
		return formatInvariant(p.Value)
	}
}

func stringValue(v interface{}) string {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return formatInvariant(v)
}

func truncateRunes(s string, size int) string {
	if size <= 0 || utf8.RuneCountInString(s) <= size {
		return s
	}
	return string([]rune(s)[:size])
}

// escapeStringLiteral makes s inert inside a single-quoted literal. Backslashes
// are doubled first so the backslash added before a quote cannot be consumed
// by one supplied in s. Double quotes cannot terminate a single-quoted literal
// and pass through unchanged.
var stringLiteralEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`)

func escapeStringLiteral(s string) string {
	return stringLiteralEscaper.Replace(s)
}

// ParameterCollection is the ordered set of parameters bound to a command.
type ParameterCollection struct {
	items []*Parameter
}

// Add appends p and returns it.
func (c *ParameterCollection) Add(p *Parameter) *Parameter {
	c.items = append(c.items, p)
	return p
}

// AddWithValue appends a parameter whose type is inferred from value.
func (c *ParameterCollection) AddWithValue(name string, value interface{}) *Parameter {
	return c.Add(NewParameter(name, value))
}

// Len returns the number of bound parameters.
func (c *ParameterCollection) Len() int {
	return len(c.items)
}

// Items returns the parameters in binding order.
func (c *ParameterCollection) Items() []*Parameter {
	out := make([]*Parameter, len(c.items))
	copy(out, c.items)
	return out
}

// Lookup finds a parameter by name, with or without the leading @.
func (c *ParameterCollection) Lookup(name string) (*Parameter, bool) {
	name = strings.TrimLeft(name, parameterPrefix)
	for _, p := range c.items {
		if p.bareName() == name {
			return p, true
		}
	}
	return nil, false
}

// Clear removes all parameters.
func (c *ParameterCollection) Clear() {
	c.items = nil
}

// Validate checks that every parameter has a unique non-empty name and a non-negative size.
func (c *ParameterCollection) Validate() error {
	seen := make(map[string]struct{}, len(c.items))
	for i, p := range c.items {
		if p == nil {
			return usageError("validate parameters", ErrInvalidParameter, "parameter %d is nil", i)
		}
		name := p.bareName()
		if name == "" {
			return usageError("validate parameters", ErrInvalidParameter, "parameter %d has no name", i)
		}
		if p.Size < 0 {
			return usageError("validate parameters", ErrInvalidParameter, "parameter %q has negative size %d", name, p.Size)
		}
		if _, dup := seen[name]; dup {
			return usageError("validate parameters", ErrInvalidParameter, "duplicate parameter name %q", name)
		}
		seen[name] = struct{}{}
	}
	return nil
}
