package main

import (
	"encoding/binary"
	"fmt"
	"math"
	"unicode/utf8"
)

// Value represents a typed database value
type Value interface {
	Type() ValueType
	IsNull() bool
	Raw() []byte
	String() string
	Int64() (int64, error)
	Float64() (float64, error)
	Text() (string, error)
}

// ValueType represents the type of a database value
type ValueType uint8

const (
	ValueTypeNull ValueType = iota
	ValueTypeInt8
	ValueTypeInt16
	ValueTypeInt24
	ValueTypeInt32
	ValueTypeInt48
	ValueTypeInt64
	ValueTypeFloat64
	ValueTypeZero
	ValueTypeOne
	ValueTypeBlob
	ValueTypeText
)

// SQLiteValue implements the Value interface
type SQLiteValue struct {
	serialType uint64
	data       []byte
}

// NewSQLiteValue creates a new SQLite value from serial type and data
func NewSQLiteValue(serialType uint64, data []byte) *SQLiteValue {
	return &SQLiteValue{
		serialType: serialType,
		data:       data,
	}
}

// decodeSerialValue decodes one column body according to its serial type.
// body must hold exactly the serial type's width.
func decodeSerialValue(serialType uint64, body []byte) (*SQLiteValue, error) {
	size, err := serialTypeSize(serialType)
	if err != nil {
		return nil, err
	}
	if len(body) < size {
		return nil, NewDatabaseError("decode_serial_value", ErrInsufficientData, map[string]interface{}{
			"serial_type": serialType,
			"needed":      size,
			"have":        len(body),
		})
	}
	return NewSQLiteValue(serialType, body[:size]), nil
}

// Type returns the value type
func (v *SQLiteValue) Type() ValueType {
	switch v.serialType {
	case SerialTypeNull:
		return ValueTypeNull
	case SerialTypeInt8:
		return ValueTypeInt8
	case SerialTypeInt16:
		return ValueTypeInt16
	case SerialTypeInt24:
		return ValueTypeInt24
	case SerialTypeInt32:
		return ValueTypeInt32
	case SerialTypeInt48:
		return ValueTypeInt48
	case SerialTypeInt64:
		return ValueTypeInt64
	case SerialTypeFloat64:
		return ValueTypeFloat64
	case SerialTypeZero:
		return ValueTypeZero
	case SerialTypeOne:
		return ValueTypeOne
	default:
		if v.serialType >= 12 && v.serialType%2 == 0 {
			return ValueTypeBlob
		}
		if v.serialType >= 13 && v.serialType%2 == 1 {
			return ValueTypeText
		}
		return ValueTypeNull
	}
}

// IsNull reports whether the value is SQL NULL.
func (v *SQLiteValue) IsNull() bool {
	return v.serialType == SerialTypeNull
}

// Raw returns the raw byte data
func (v *SQLiteValue) Raw() []byte {
	return v.data
}

// String returns the display representation
func (v *SQLiteValue) String() string {
	switch v.Type() {
	case ValueTypeNull:
		return ""
	case ValueTypeZero:
		return "0"
	case ValueTypeOne:
		return "1"
	case ValueTypeText, ValueTypeBlob:
		return string(v.data)
	case ValueTypeFloat64:
		if f, err := v.Float64(); err == nil {
			return fmt.Sprintf("%g", f)
		}
		return ""
	default:
		if i, err := v.Int64(); err == nil {
			return fmt.Sprintf("%d", i)
		}
		return ""
	}
}

// Int64 returns the integer representation. Integers of widths 3 and 6
// are sign-extended big-endian.
func (v *SQLiteValue) Int64() (int64, error) {
	switch v.Type() {
	case ValueTypeZero:
		return 0, nil
	case ValueTypeOne:
		return 1, nil
	case ValueTypeInt8:
		if len(v.data) >= 1 {
			return int64(int8(v.data[0])), nil
		}
	case ValueTypeInt16:
		if len(v.data) >= 2 {
			return int64(int16(binary.BigEndian.Uint16(v.data))), nil
		}
	case ValueTypeInt24:
		if len(v.data) >= 3 {
			var b [4]byte
			if v.data[0]&0x80 != 0 {
				b[0] = 0xFF
			}
			copy(b[1:], v.data[:3])
			return int64(int32(binary.BigEndian.Uint32(b[:]))), nil
		}
	case ValueTypeInt32:
		if len(v.data) >= 4 {
			return int64(int32(binary.BigEndian.Uint32(v.data))), nil
		}
	case ValueTypeInt48:
		if len(v.data) >= 6 {
			var b [8]byte
			if v.data[0]&0x80 != 0 {
				b[0], b[1] = 0xFF, 0xFF
			}
			copy(b[2:], v.data[:6])
			return int64(binary.BigEndian.Uint64(b[:])), nil
		}
	case ValueTypeInt64:
		if len(v.data) >= 8 {
			return int64(binary.BigEndian.Uint64(v.data)), nil
		}
	}
	return 0, NewDatabaseError("value_to_int64", ErrUnsupported, map[string]interface{}{
		"value_type": v.Type(),
	})
}

// Float64 returns the float representation
func (v *SQLiteValue) Float64() (float64, error) {
	switch v.Type() {
	case ValueTypeFloat64:
		if len(v.data) >= 8 {
			return math.Float64frombits(binary.BigEndian.Uint64(v.data)), nil
		}
		return 0, NewDatabaseError("value_to_float64", ErrInsufficientData, nil)
	case ValueTypeZero:
		return 0.0, nil
	case ValueTypeOne:
		return 1.0, nil
	default:
		if i, err := v.Int64(); err == nil {
			return float64(i), nil
		}
		return 0, NewDatabaseError("value_to_float64", ErrUnsupported, map[string]interface{}{
			"value_type": v.Type(),
		})
	}
}

// Text returns the value as a UTF-8 string. It fails for non-TEXT values
// and for TEXT bodies that are not valid UTF-8.
func (v *SQLiteValue) Text() (string, error) {
	if v.Type() != ValueTypeText {
		return "", NewDatabaseError("value_to_text", ErrUnsupported, map[string]interface{}{
			"value_type": v.Type(),
		})
	}
	if !utf8.Valid(v.data) {
		return "", NewDatabaseError("value_to_text", ErrInvalidText, nil)
	}
	return string(v.data), nil
}

// Column represents a database column
type Column struct {
	Name         string
	Type         string
	Index        int
	IsPrimaryKey bool
}

// Row represents a database row together with its table B-tree rowid
type Row struct {
	Rowid  int64
	Values []Value
}

// Get returns the value for a specific column
func (r *Row) Get(columnIndex int) (Value, error) {
	if columnIndex < 0 || columnIndex >= len(r.Values) {
		return nil, NewDatabaseError("get_column_value", ErrColumnNotFound, map[string]interface{}{
			"column_index": columnIndex,
			"column_count": len(r.Values),
		})
	}
	return r.Values[columnIndex], nil
}
