package utils

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Payload size limits (in bytes)
const (
	MaxMessageSize = 4 * 1024 * 1024 // one bridge frame; file contents travel inline
	MaxIDLength    = 128
)

// OperationPattern matches "<service>.<operation>" ids such as "terminal.create"
var OperationPattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_-]*\.[a-zA-Z][a-zA-Z0-9_.-]*$`)

// ValidateOperation validates an operation id
func ValidateOperation(op string) error {
	if op == "" {
		return fmt.Errorf("op is required")
	}
	if len(op) > MaxIDLength {
		return fmt.Errorf("op must not exceed %d characters", MaxIDLength)
	}
	if strings.Contains(op, "\x00") || !OperationPattern.MatchString(op) {
		return fmt.Errorf("op %q is not a valid operation id", op)
	}
	return nil
}

// ValueKey holds a bare params value. The bridge wraps non-object params
// under this key so "fs.readFile" may be called with a plain path.
const ValueKey = "value"

// Argument returns params[key], falling back to a bare params value
func Argument(params map[string]interface{}, key string) interface{} {
	if params == nil {
		return nil
	}
	if v, ok := params[key]; ok {
		return v
	}
	return params[ValueKey]
}

// StringArgument is Argument restricted to strings
func StringArgument(params map[string]interface{}, key string) (string, bool) {
	s, ok := Argument(params, key).(string)
	return s, ok
}

// StringParam returns params[key] when it is a string
func StringParam(params map[string]interface{}, key string) (string, bool) {
	if params == nil {
		return "", false
	}
	s, ok := params[key].(string)
	return s, ok
}

// BoolParam returns params[key] when it is a bool
func BoolParam(params map[string]interface{}, key string) bool {
	if params == nil {
		return false
	}
	b, _ := params[key].(bool)
	return b
}

// IntParam leniently coerces params[key] to an int: finite numbers are
// truncated toward negative infinity and decimal strings are parsed.
// Anything else reports false so callers can apply their default.
func IntParam(params map[string]interface{}, key string) (int, bool) {
	if params == nil {
		return 0, false
	}
	return toInt(params[key])
}

// IntegerParam accepts only values that are exact integers, used for
// identifiers where 1.5 or "1" must not alias a real session.
func IntegerParam(params map[string]interface{}, key string) (int64, bool) {
	if params == nil {
		return 0, false
	}
	return toInteger(params[key])
}

// IntegerArgument is IntegerParam with the bare value fallback of Argument
func IntegerArgument(params map[string]interface{}, key string) (int64, bool) {
	return toInteger(Argument(params, key))
}

func toInteger(value interface{}) (int64, bool) {
	switch v := value.(type) {
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) || v != math.Trunc(v) {
			return 0, false
		}
		return int64(v), true
	case int:
		return int64(v), true
	case int64:
		return v, true
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	default:
		return 0, false
	}
}

// SliceParam returns params[key] when it is a JSON array, else an empty slice
func SliceParam(params map[string]interface{}, key string) []interface{} {
	if params == nil {
		return []interface{}{}
	}
	if s, ok := params[key].([]interface{}); ok {
		return s
	}
	return []interface{}{}
}

func toInt(value interface{}) (int, bool) {
	switch v := value.(type) {
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, false
		}
		return int(math.Floor(v)), true
	case int:
		return v, true
	case int64:
		return int(v), true
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n), true
		}
		if f, err := v.Float64(); err == nil {
			return toInt(f)
		}
		return 0, false
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

// Clamp bounds value to [lo, hi]
func Clamp(value, lo, hi int) int {
	if value < lo {
		return lo
	}
	if value > hi {
		return hi
	}
	return value
}
