package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

// ValueType represents the type of a RESP value
type ValueType byte

const (
	// RESP value types
	TypeSimpleString ValueType = '+'
	TypeError        ValueType = '-'
	TypeInteger      ValueType = ':'
	TypeBulkString   ValueType = '$'
	TypeArray        ValueType = '*'
	TypeNull         ValueType = '_'
)

// String returns the name of the value type
func (t ValueType) String() string {
	switch t {
	case TypeSimpleString:
		return "simple string"
	case TypeError:
		return "error"
	case TypeInteger:
		return "integer"
	case TypeBulkString:
		return "bulk string"
	case TypeArray:
		return "array"
	case TypeNull:
		return "null"
	default:
		return fmt.Sprintf("unknown(%q)", byte(t))
	}
}

// Value represents a RESP value.
//
// Values are treated as immutable once constructed. Anything that needs to
// retain Data beyond the lifetime of a request must copy it.
type Value struct {
	Type    ValueType
	Data    []byte
	Integer int64
	Array   []Value
}

// SimpleString creates a simple string value
func SimpleString(s string) Value {
	return Value{Type: TypeSimpleString, Data: []byte(s)}
}

// BulkString creates a bulk string value
func BulkString(data []byte) Value {
	if data == nil {
		data = []byte{}
	}
	return Value{Type: TypeBulkString, Data: data}
}

// BulkStringFromString creates a bulk string value from a string
func BulkStringFromString(s string) Value {
	return Value{Type: TypeBulkString, Data: []byte(s)}
}

// Array creates an array value
func Array(values ...Value) Value {
	if values == nil {
		values = []Value{}
	}
	return Value{Type: TypeArray, Array: values}
}

// Null creates the null value
func Null() Value {
	return Value{Type: TypeNull}
}

// Error creates an error value
func Error(msg string) Value {
	return Value{Type: TypeError, Data: []byte(msg)}
}

// Integer creates an integer value
func Integer(n int64) Value {
	return Value{Type: TypeInteger, Integer: n}
}

// NewCommand builds a request: an array of bulk strings
func NewCommand(name string, args ...string) Value {
	values := make([]Value, 0, 1+len(args))
	values = append(values, BulkStringFromString(name))
	for _, arg := range args {
		values = append(values, BulkStringFromString(arg))
	}
	return Array(values...)
}

// String returns a string representation of the value
func (v Value) String() string {
	switch v.Type {
	case TypeSimpleString, TypeError, TypeBulkString:
		return string(v.Data)
	case TypeInteger:
		return strconv.FormatInt(v.Integer, 10)
	case TypeArray:
		parts := make([]string, len(v.Array))
		for i, item := range v.Array {
			parts[i] = item.String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case TypeNull:
		return "(nil)"
	default:
		return fmt.Sprintf("unknown type %c", v.Type)
	}
}

// Bytes returns the byte representation of the value
func (v Value) Bytes() []byte {
	return v.Data
}

// IsNull returns true if this is the null value
func (v Value) IsNull() bool {
	return v.Type == TypeNull
}

// IsError returns true if this is an error value
func (v Value) IsError() bool {
	return v.Type == TypeError
}

// Error returns the error message if this is an error value
func (v Value) Error() string {
	if v.Type == TypeError {
		return string(v.Data)
	}
	return ""
}

// IsSimpleString reports whether v is the simple string s
func (v Value) IsSimpleString(s string) bool {
	return v.Type == TypeSimpleString && string(v.Data) == s
}

// Equal reports whether two values are structurally identical
func (v Value) Equal(o Value) bool {
	if v.Type != o.Type {
		return false
	}
	switch v.Type {
	case TypeInteger:
		return v.Integer == o.Integer
	case TypeNull:
		return true
	case TypeArray:
		if len(v.Array) != len(o.Array) {
			return false
		}
		for i := range v.Array {
			if !v.Array[i].Equal(o.Array[i]) {
				return false
			}
		}
		return true
	default:
		return string(v.Data) == string(o.Data)
	}
}

// Command represents a Redis command parsed from a RESP array
type Command struct {
	Name string
	Args [][]byte
}

// ParseCommand parses a RESP array value into a Command.
// The command name is upper-cased so lookups are case-insensitive.
func ParseCommand(v Value) (*Command, error) {
	if v.Type != TypeArray || len(v.Array) == 0 {
		return nil, fmt.Errorf("invalid command format: expected non-empty array, got %s", v.Type)
	}

	cmd := &Command{
		Args: make([][]byte, len(v.Array)-1),
	}

	// First element is the command name
	if v.Array[0].Type != TypeBulkString {
		return nil, fmt.Errorf("command name must be bulk string, got %s", v.Array[0].Type)
	}
	cmd.Name = strings.ToUpper(string(v.Array[0].Data))

	// Remaining elements are arguments
	for i := 1; i < len(v.Array); i++ {
		if v.Array[i].Type != TypeBulkString {
			return nil, fmt.Errorf("command arguments must be bulk strings, got %s at position %d", v.Array[i].Type, i)
		}
		cmd.Args[i-1] = v.Array[i].Data
	}

	return cmd, nil
}

// String returns a string representation of the command
func (c *Command) String() string {
	args := make([]string, len(c.Args))
	for i, arg := range c.Args {
		args[i] = string(arg)
	}
	return strings.TrimSpace(c.Name + " " + strings.Join(args, " "))
}
