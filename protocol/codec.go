package protocol

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrIncomplete is wrapped by a FormatError when the input ends before the value does
var ErrIncomplete = errors.New("incomplete value")

// FormatError reports malformed wire bytes. RESP has no resynchronization
// point, so a FormatError is fatal to the stream that produced it.
type FormatError struct {
	Offset int
	Reason string
	Err    error
}

// Error implements the error interface
func (e *FormatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("protocol format error at byte %d: %s: %v", e.Offset, e.Reason, e.Err)
	}
	return fmt.Sprintf("protocol format error at byte %d: %s", e.Offset, e.Reason)
}

// Unwrap returns the wrapped error
func (e *FormatError) Unwrap() error {
	return e.Err
}

func formatErrorf(offset int, format string, args ...interface{}) error {
	return &FormatError{Offset: offset, Reason: fmt.Sprintf(format, args...)}
}

func incomplete(offset int, reason string) error {
	return &FormatError{Offset: offset, Reason: reason, Err: ErrIncomplete}
}

// Encode serializes a value to its wire representation
func Encode(v Value) []byte {
	return appendValue(make([]byte, 0, encodedSizeHint(v)), v)
}

// AppendEncode appends the wire representation of v to dst
func AppendEncode(dst []byte, v Value) []byte {
	return appendValue(dst, v)
}

func encodedSizeHint(v Value) int {
	switch v.Type {
	case TypeArray:
		n := 16
		for _, item := range v.Array {
			n += encodedSizeHint(item)
		}
		return n
	default:
		return len(v.Data) + 16
	}
}

func appendValue(dst []byte, v Value) []byte {
	switch v.Type {
	case TypeSimpleString, TypeError:
		dst = append(dst, byte(v.Type))
		dst = append(dst, sanitizeLine(v.Data)...)
		return append(dst, CRLF...)
	case TypeInteger:
		dst = append(dst, byte(TypeInteger))
		dst = strconv.AppendInt(dst, v.Integer, 10)
		return append(dst, CRLF...)
	case TypeBulkString:
		dst = append(dst, byte(TypeBulkString))
		dst = strconv.AppendInt(dst, int64(len(v.Data)), 10)
		dst = append(dst, CRLF...)
		dst = append(dst, v.Data...)
		return append(dst, CRLF...)
	case TypeArray:
		dst = append(dst, byte(TypeArray))
		dst = strconv.AppendInt(dst, int64(len(v.Array)), 10)
		dst = append(dst, CRLF...)
		for _, item := range v.Array {
			dst = appendValue(dst, item)
		}
		return dst
	default:
		// TypeNull and the zero Value both encode as null
		dst = append(dst, byte(TypeNull))
		return append(dst, CRLF...)
	}
}

// sanitizeLine replaces CR and LF so line-based values stay self-delimiting
func sanitizeLine(data []byte) []byte {
	if bytes.IndexAny(data, "\r\n") < 0 {
		return data
	}
	out := make([]byte, len(data))
	for i, c := range data {
		if c == '\r' || c == '\n' {
			c = ' '
		}
		out[i] = c
	}
	return out
}

// Decode decodes exactly one value from the front of data and returns the
// number of bytes it consumed.
func Decode(data []byte) (int, Value, error) {
	return decodeAt(data, 0)
}

// DecodeRequest decodes a complete request. The value must span the whole
// input; trailing bytes are a FormatError.
func DecodeRequest(data []byte) (Value, error) {
	n, v, err := Decode(data)
	if err != nil {
		return Value{}, err
	}
	if n != len(data) {
		return Value{}, formatErrorf(n, "%d trailing bytes after request", len(data)-n)
	}
	return v, nil
}

func decodeAt(data []byte, off int) (int, Value, error) {
	if off >= len(data) {
		return 0, Value{}, incomplete(off, "missing type marker")
	}

	switch ValueType(data[off]) {
	case TypeSimpleString, TypeError:
		line, next, err := scanLine(data, off+1)
		if err != nil {
			return 0, Value{}, err
		}
		return next - off, Value{Type: ValueType(data[off]), Data: cloneBytes(line)}, nil

	case TypeInteger:
		line, next, err := scanLine(data, off+1)
		if err != nil {
			return 0, Value{}, err
		}
		n, err := parseInt64(line)
		if err != nil {
			return 0, Value{}, formatErrorf(off+1, "invalid integer %q", line)
		}
		return next - off, Integer(n), nil

	case TypeBulkString:
		length, next, err := scanLength(data, off+1, maxBulkSize)
		if err != nil {
			return 0, Value{}, err
		}
		end := next + int(length)
		if end+len(CRLF) > len(data) {
			return 0, Value{}, incomplete(len(data), fmt.Sprintf("bulk string declares %d bytes", length))
		}
		if data[end] != '\r' || data[end+1] != '\n' {
			return 0, Value{}, formatErrorf(end, "expected CRLF after bulk string payload, got [%d, %d]", data[end], data[end+1])
		}
		return end + len(CRLF) - off, Value{Type: TypeBulkString, Data: cloneBytes(data[next:end])}, nil

	case TypeArray:
		count, next, err := scanLength(data, off+1, maxArraySize)
		if err != nil {
			return 0, Value{}, err
		}
		// every element needs at least 3 bytes, so never preallocate past the input
		capacity := count
		if remaining := int64(len(data)-next) / 3; capacity > remaining {
			capacity = remaining
		}
		values := make([]Value, 0, capacity)
		pos := next
		for i := int64(0); i < count; i++ {
			n, item, err := decodeAt(data, pos)
			if err != nil {
				return 0, Value{}, err
			}
			values = append(values, item)
			pos += n
		}
		return pos - off, Value{Type: TypeArray, Array: values}, nil

	case TypeNull:
		if off+3 > len(data) {
			return 0, Value{}, incomplete(len(data), "truncated null")
		}
		if data[off+1] != '\r' || data[off+2] != '\n' {
			return 0, Value{}, formatErrorf(off+1, "expected CRLF after null marker")
		}
		return 3, Null(), nil

	default:
		return 0, Value{}, formatErrorf(off, "unknown RESP type %q (0x%02x)", data[off], data[off])
	}
}

// scanLine returns the bytes between start and the first CRLF, and the offset
// just past that CRLF. A lone CR or LF before the terminator is malformed.
func scanLine(data []byte, start int) ([]byte, int, error) {
	idx := bytes.Index(data[start:], crlfBytes)
	if idx < 0 {
		if bad := bytes.IndexByte(data[start:], '\n'); bad >= 0 {
			return nil, 0, formatErrorf(start+bad, "line feed without carriage return")
		}
		return nil, 0, incomplete(len(data), "missing CRLF terminator")
	}
	line := data[start : start+idx]
	if bad := bytes.IndexAny(line, "\r\n"); bad >= 0 {
		return nil, 0, formatErrorf(start+bad, "stray line terminator inside line")
	}
	return line, start + idx + len(CRLF), nil
}

// scanLength parses an unsigned decimal length prefix terminated by CRLF
func scanLength(data []byte, start int, limit int64) (int64, int, error) {
	line, next, err := scanLine(data, start)
	if err != nil {
		return 0, 0, err
	}
	n, err := parseUint(line)
	if err != nil || n < 0 {
		return 0, 0, formatErrorf(start, "invalid length %q", line)
	}
	if n > limit {
		return 0, 0, formatErrorf(start, "length %d exceeds limit %d", n, limit)
	}
	return n, next, nil
}

// parseUint parses a non-negative decimal without sign
func parseUint(b []byte) (int64, error) {
	if len(b) == 0 {
		return 0, errors.New("empty length")
	}
	if b[0] == '-' || b[0] == '+' {
		return 0, fmt.Errorf("signed length %s", strings.TrimSpace(string(b)))
	}
	return parseInt64(b)
}

func cloneBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
