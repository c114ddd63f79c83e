package engine

import (
	"math"
	"strconv"
	"strings"

	"github.com/spf13/cast"
)

// Lookup walks a dot-separated path through nested maps and slices.
// Numeric segments index into slices. The boolean reports presence: a key
// holding nil is present.
func Lookup(payload map[string]any, path string) (any, bool) {
	if payload == nil || path == "" {
		return nil, false
	}

	var current any = payload

	for _, segment := range strings.Split(path, ".") {
		switch node := current.(type) {
		case map[string]any:
			value, ok := node[segment]
			if !ok {
				return nil, false
			}

			current = value
		case map[string]string:
			value, ok := node[segment]
			if !ok {
				return nil, false
			}

			current = value
		case []any:
			index, err := strconv.Atoi(segment)
			if err != nil || index < 0 || index >= len(node) {
				return nil, false
			}

			current = node[index]
		default:
			return nil, false
		}
	}

	return current, true
}

// asString coerces scalars to their string form. Nil, maps and slices are
// not strings.
func asString(value any) (string, bool) {
	switch value.(type) {
	case nil, map[string]any, []any:
		return "", false
	}

	s, err := cast.ToStringE(value)
	if err != nil {
		return "", false
	}

	return s, true
}

// asNumber coerces numbers and numeric strings. Nil, booleans and blank
// strings are never numeric.
func asNumber(value any) (float64, bool) {
	switch v := value.(type) {
	case nil, bool:
		return 0, false
	case string:
		if strings.TrimSpace(v) == "" {
			return 0, false
		}

		value = strings.TrimSpace(v)
	}

	number, err := cast.ToFloat64E(value)
	if err != nil || math.IsNaN(number) {
		return 0, false
	}

	return number, true
}
