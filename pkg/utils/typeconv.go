package utils

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/BartekS5/sante-etl/pkg/models"
)

// Cast converts val to the Go representation of the given column type.
// A nil value stays nil.
func Cast(val any, to models.ColumnType) (any, error) {
	if val == nil {
		return nil, nil
	}
	switch to {
	case models.TypeDate:
		return ConvertToDate(val)
	case models.TypeTimestamp:
		return ConvertDateTime(val)
	case models.TypeInteger:
		return ConvertToInt(val)
	case models.TypeFloat:
		return ConvertToFloat(val)
	case models.TypeBoolean:
		return ConvertToBool(val)
	case models.TypeString:
		return ConvertToString(val), nil
	default:
		return nil, fmt.Errorf("unknown column type %q", to)
	}
}

var dateTimeFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ConvertDateTime parses val into a UTC timestamp.
func ConvertDateTime(val any) (time.Time, error) {
	switch v := val.(type) {
	case time.Time:
		return v.UTC(), nil
	case models.Date:
		return v.Time(), nil
	case string:
		s := strings.TrimSpace(v)
		for _, f := range dateTimeFormats {
			if t, err := time.Parse(f, s); err == nil {
				return t.UTC(), nil
			}
		}
		return time.Time{}, fmt.Errorf("unable to parse datetime: %s", v)
	case []byte:
		return ConvertDateTime(string(v))
	default:
		return time.Time{}, fmt.Errorf("cannot convert %T to datetime", val)
	}
}

// ConvertToDate truncates val to a calendar day.
func ConvertToDate(val any) (models.Date, error) {
	if d, ok := val.(models.Date); ok {
		return d, nil
	}
	if t, ok := val.(time.Time); ok {
		// keep the wall-clock day of the source value
		return models.DateOf(t), nil
	}
	t, err := ConvertDateTime(val)
	if err != nil {
		return models.Date{}, err
	}
	return models.DateOf(t), nil
}

// ConvertToInt converts numeric values and numeric strings to int64.
// Floats are truncated toward zero.
func ConvertToInt(val any) (int64, error) {
	switch v := val.(type) {
	case int:
		return int64(v), nil
	case int8:
		return int64(v), nil
	case int16:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case uint8:
		return int64(v), nil
	case uint16:
		return int64(v), nil
	case uint32:
		return int64(v), nil
	case uint:
		return uintToInt(uint64(v))
	case uint64:
		return uintToInt(v)
	case float32:
		return floatToInt(float64(v))
	case float64:
		return floatToInt(v)
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	case string:
		s := strings.TrimSpace(v)
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("cannot convert %q to int", v)
		}
		return floatToInt(f)
	case []byte:
		return ConvertToInt(string(v))
	default:
		return 0, fmt.Errorf("cannot convert %T to int", val)
	}
}

func uintToInt(u uint64) (int64, error) {
	if u > math.MaxInt64 {
		return 0, fmt.Errorf("cannot convert %d to int: out of range", u)
	}
	return int64(u), nil
}

func floatToInt(f float64) (int64, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f > math.MaxInt64 || f < math.MinInt64 {
		return 0, fmt.Errorf("cannot convert %v to int", f)
	}
	return int64(f), nil
}

// ConvertToFloat converts numeric values, booleans and numeric strings to
// float64, the same inputs ConvertToInt accepts.
func ConvertToFloat(val any) (float64, error) {
	switch v := val.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int8:
		return float64(v), nil
	case int16:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case uint:
		return float64(v), nil
	case uint8:
		return float64(v), nil
	case uint16:
		return float64(v), nil
	case uint32:
		return float64(v), nil
	case uint64:
		return float64(v), nil
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, fmt.Errorf("cannot convert %q to float", v)
		}
		return f, nil
	case []byte:
		return ConvertToFloat(string(v))
	default:
		return 0, fmt.Errorf("cannot convert %T to float", val)
	}
}

// ConvertToBool accepts booleans, 0/1 integers and the usual string spellings.
func ConvertToBool(val any) (bool, error) {
	switch v := val.(type) {
	case bool:
		return v, nil
	case int64:
		if v == 0 || v == 1 {
			return v == 1, nil
		}
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err == nil {
			return b, nil
		}
	case []byte:
		return ConvertToBool(string(v))
	}
	return false, fmt.Errorf("cannot convert %v (%T) to bool", val, val)
}

// ConvertToString renders val the way it would print in a CSV export.
func ConvertToString(val any) string {
	switch v := val.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case time.Time:
		return v.UTC().Format(time.RFC3339Nano)
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}
