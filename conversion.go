package queryreader

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

var timestampLayouts = []string{
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05.999999999 MST",
	time.RFC3339Nano,
}

const dateLayout = "2006-01-02"

// castRawValue coerces a raw wire value into the Go representation of lt.
// A nil raw value is returned as nil without conversion.
func castRawValue(raw interface{}, lt LocalType) (interface{}, error) {
	if raw == nil {
		return nil, nil
	}

	switch lt {
	case TypeString:
		return formatInvariant(raw), nil
	case TypeInt16:
		v, err := toInt(raw, 16)
		return int16(v), err
	case TypeInt32:
		v, err := toInt(raw, 32)
		return int32(v), err
	case TypeInt64:
		return toInt(raw, 64)
	case TypeFloat32:
		v, err := toFloat(raw, 32)
		return float32(v), err
	case TypeFloat64:
		return toFloat(raw, 64)
	case TypeBoolean:
		switch v := raw.(type) {
		case bool:
			return v, nil
		default:
			return strconv.ParseBool(strings.TrimSpace(formatInvariant(raw)))
		}
	case TypeTimestamp:
		return toTimestamp(raw)
	case TypeDate:
		return toDate(raw)
	case TypeRecord:
		return raw, nil
	default:
		return nil, fmt.Errorf("no conversion for local type %s", lt)
	}
}

func toInt(raw interface{}, bitSize int) (int64, error) {
	switch v := raw.(type) {
	case int:
		return checkIntRange(int64(v), bitSize)
	case int16:
		return int64(v), nil
	case int32:
		return checkIntRange(int64(v), bitSize)
	case int64:
		return checkIntRange(v, bitSize)
	case float64:
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("value %v is not an integer", v)
		}
		if v < math.MinInt64 || v >= math.MaxInt64 {
			return 0, fmt.Errorf("value %v overflows int%d", v, bitSize)
		}
		return checkIntRange(int64(v), bitSize)
	default:
		return strconv.ParseInt(strings.TrimSpace(formatInvariant(raw)), 10, bitSize)
	}
}

func checkIntRange(v int64, bitSize int) (int64, error) {
	if bitSize >= 64 {
		return v, nil
	}
	limit := int64(1) << (bitSize - 1)
	if v < -limit || v >= limit {
		return 0, fmt.Errorf("value %d overflows int%d", v, bitSize)
	}
	return v, nil
}

func toFloat(raw interface{}, bitSize int) (float64, error) {
	switch v := raw.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case int:
		return float64(v), nil
	default:
		return strconv.ParseFloat(strings.TrimSpace(formatInvariant(raw)), bitSize)
	}
}

// toTimestamp reads the service-native timestamp: Unix epoch seconds with an
// optional fraction (e.g. "1.4200704E9"). Formatted timestamps, as Athena
// returns them, are accepted as well.
func toTimestamp(raw interface{}) (time.Time, error) {
	switch v := raw.(type) {
	case time.Time:
		return v.UTC(), nil
	case float64:
		return unixSecondsToTime(v), nil
	case int64:
		return time.Unix(v, 0).UTC(), nil
	}

	s := strings.TrimSpace(formatInvariant(raw))
	if seconds, err := strconv.ParseFloat(s, 64); err == nil {
		return unixSecondsToTime(seconds), nil
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse %q as timestamp", s)
}

func unixSecondsToTime(seconds float64) time.Time {
	whole, frac := math.Modf(seconds)
	nanos := math.Round(frac * float64(time.Second))
	return time.Unix(int64(whole), int64(nanos)).UTC()
}

func toDate(raw interface{}) (time.Time, error) {
	if v, ok := raw.(time.Time); ok {
		return v.UTC(), nil
	}
	s := strings.TrimSpace(formatInvariant(raw))
	if d, err := time.Parse(dateLayout, s); err == nil {
		return d, nil
	}
	return toTimestamp(s)
}

// formatInvariant renders a scalar the same way regardless of locale.
func formatInvariant(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case *string:
		if x == nil {
			return ""
		}
		return *x
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'g', -1, 32)
	case int:
		return strconv.Itoa(x)
	case int8:
		return strconv.FormatInt(int64(x), 10)
	case int16:
		return strconv.FormatInt(int64(x), 10)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case int64:
		return strconv.FormatInt(x, 10)
	case uint:
		return strconv.FormatUint(uint64(x), 10)
	case uint8:
		return strconv.FormatUint(uint64(x), 10)
	case uint16:
		return strconv.FormatUint(uint64(x), 10)
	case uint32:
		return strconv.FormatUint(uint64(x), 10)
	case uint64:
		return strconv.FormatUint(x, 10)
	case time.Time:
		return x.UTC().Format(universalLayout)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}
