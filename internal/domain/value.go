package domain

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// NoDataSentinel is the number exported for a missing value when a consumer
// needs a plain float. It never appears inside a Value.
const NoDataSentinel = -1.0

// Value is an optional metric value. The zero Value means "no data".
type Value struct {
	V     float64
	Valid bool
}

// Some wraps a present value.
func Some(v float64) Value { return Value{V: v, Valid: true} }

// None is the missing value.
func None() Value { return Value{} }

// Float returns the value, or NoDataSentinel when missing.
func (v Value) Float() float64 {
	if !v.Valid {
		return NoDataSentinel
	}
	return v.V
}

// MarshalJSON encodes a missing value as null.
func (v Value) MarshalJSON() ([]byte, error) {
	if !v.Valid || math.IsNaN(v.V) || math.IsInf(v.V, 0) {
		return []byte("null"), nil
	}
	return json.Marshal(v.V)
}

// ParseValue parses a tabular cell. Empty, unparsable and non-finite cells
// ("NaN", "Inf", "Infinity") are missing.
func ParseValue(s string) Value {
	s = strings.TrimSpace(s)
	if s == "" {
		return None()
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return None()
	}
	return Some(f)
}
