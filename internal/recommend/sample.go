package recommend

import "encoding/json"

// Sample values arrive from JSON decoding, so numbers are usually float64 or
// json.Number; native Go numerics are accepted for callers building columns
// by hand.

func isBoolSample(v any) bool {
	_, ok := v.(bool)
	return ok
}

func isNumericSample(v any) bool {
	switch v.(type) {
	case float64, float32, int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64, json.Number:
		return true
	}
	return false
}

func isTextSample(v any) bool {
	switch v.(type) {
	case string, []any, []string:
		return true
	}
	return false
}
