package utils

import (
	"time"
)

// Kinds detected by TypeScanner
const (
	KindNull   = "null"
	KindInt    = "int"
	KindUint   = "uint"
	KindFloat  = "float"
	KindBool   = "bool"
	KindString = "string"
	KindBytes  = "bytes"
	KindTime   = "time"
)

// TypeScanner tries to determine the type of a provided value
type TypeScanner struct {
	Valid    bool
	Value    interface{}
	Detected string
}

// Scan accepts a value and attempts to determine its type
func (scanner *TypeScanner) Scan(src interface{}) {
	scanner.Value = src
	scanner.Valid = true

	switch value := src.(type) {
	case int64, int32, int16, int8, int:
		scanner.Detected = KindInt
	case uint64, uint32, uint16, uint8, uint:
		scanner.Detected = KindUint
	case float64, float32:
		scanner.Detected = KindFloat
	case bool:
		scanner.Detected = KindBool
	case string:
		scanner.Detected = KindString
	case []byte:
		scanner.Detected = KindBytes
	case time.Time:
		scanner.Detected = KindTime
	case nil:
		scanner.Detected = KindNull
	case *interface{}:
		if value == nil {
			scanner.Value = nil
			scanner.Detected = KindNull
			return
		}
		scanner.Scan(*value)
	default:
		scanner.Valid = false
		scanner.Detected = ""
	}
}
