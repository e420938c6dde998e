package protocol

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
)

const (
	// CRLF is the Redis protocol line terminator
	CRLF = "\r\n"

	// maxBulkSize is the maximum size for bulk strings (512MB, same as Redis proto-max-bulk-len)
	maxBulkSize = 512 * 1024 * 1024

	// maxArraySize is the maximum size for arrays
	maxArraySize = 1024 * 1024

	// maxLineSize bounds simple strings, errors and length prefixes
	maxLineSize = 64 * 1024

	// bulkChunkSize bounds the up-front allocation for a bulk string
	bulkChunkSize = 64 * 1024
)

var (
	crlfBytes = []byte(CRLF)
)

// Reader is a streaming RESP protocol reader. It implements the same grammar
// as Decode, reading from a buffered stream instead of a complete slice.
type Reader struct {
	br  *bufio.Reader
	pos int // bytes consumed, for error offsets
}

// NewReader creates a new streaming RESP reader
func NewReader(r io.Reader) *Reader {
	return &Reader{
		br: bufio.NewReader(r),
	}
}

// Buffered returns the number of bytes already read from the stream but not yet consumed
func (r *Reader) Buffered() int {
	return r.br.Buffered()
}

// ReadNext reads the next RESP value from the stream.
//
// io.EOF is returned only when the stream ends cleanly between values. A
// stream that ends inside a value yields a FormatError wrapping ErrIncomplete.
func (r *Reader) ReadNext() (Value, error) {
	typeByte, err := r.br.ReadByte()
	if err != nil {
		return Value{}, err
	}
	r.pos++

	v, err := r.readBody(ValueType(typeByte))
	if err != nil {
		return Value{}, r.wrap(err)
	}
	return v, nil
}

func (r *Reader) readValue() (Value, error) {
	typeByte, err := r.br.ReadByte()
	if err != nil {
		return Value{}, err
	}
	r.pos++
	return r.readBody(ValueType(typeByte))
}

func (r *Reader) readBody(t ValueType) (Value, error) {
	switch t {
	case TypeSimpleString, TypeError:
		line, err := r.readLine()
		if err != nil {
			return Value{}, err
		}
		return Value{Type: t, Data: line}, nil
	case TypeInteger:
		return r.readInteger()
	case TypeBulkString:
		return r.readBulkString()
	case TypeArray:
		return r.readArray()
	case TypeNull:
		if err := r.expectCRLF(); err != nil {
			return Value{}, err
		}
		return Null(), nil
	default:
		if t == 0 {
			return Value{}, formatErrorf(r.pos-1, "unknown RESP type: empty byte (connection may be closed)")
		}
		return Value{}, formatErrorf(r.pos-1, "unknown RESP type: %c (0x%02x)", byte(t), byte(t))
	}
}

// wrap converts mid-value stream endings into FormatErrors
func (r *Reader) wrap(err error) error {
	var fe *FormatError
	if errors.As(err, &fe) {
		return err
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return &FormatError{Offset: r.pos, Reason: "stream ended inside value", Err: ErrIncomplete}
	}
	return err
}

// readInteger reads an integer value
func (r *Reader) readInteger() (Value, error) {
	start := r.pos
	line, err := r.readLine()
	if err != nil {
		return Value{}, err
	}

	integer, err := parseInt64(line)
	if err != nil {
		return Value{}, formatErrorf(start, "invalid integer: %s", line)
	}

	return Integer(integer), nil
}

// parseInt64 parses an int64 from a byte slice without allocation
func parseInt64(b []byte) (int64, error) {
	if len(b) == 0 {
		return 0, strconv.ErrSyntax
	}

	var neg bool
	var i int

	switch b[0] {
	case '-':
		neg = true
		i = 1
	case '+':
		i = 1
	default:
		i = 0
	}

	if i >= len(b) {
		return 0, strconv.ErrSyntax
	}

	var n int64
	for ; i < len(b); i++ {
		if b[i] < '0' || b[i] > '9' {
			return 0, strconv.ErrSyntax
		}

		d := int64(b[i] - '0')
		if n > (1<<63-1-d)/10 {
			return 0, strconv.ErrRange
		}

		n = n*10 + d
	}

	if neg {
		return -n, nil
	}
	return n, nil
}

// readLength reads an unsigned length prefix
func (r *Reader) readLength(limit int64) (int64, error) {
	start := r.pos
	line, err := r.readLine()
	if err != nil {
		return 0, err
	}

	length, err := parseUint(line)
	if err != nil || length < 0 {
		return 0, formatErrorf(start, "invalid length: %q", line)
	}
	if length > limit {
		return 0, formatErrorf(start, "length %d exceeds limit %d", length, limit)
	}
	return length, nil
}

// readBulkString reads a bulk string value
func (r *Reader) readBulkString() (Value, error) {
	length, err := r.readLength(maxBulkSize)
	if err != nil {
		return Value{}, err
	}

	// Grow with the payload actually received, not the declared length
	var buf bytes.Buffer
	buf.Grow(int(min(length, bulkChunkSize)))
	n, err := io.CopyN(&buf, r.br, length)
	r.pos += int(n)
	if err != nil {
		return Value{}, err
	}

	data := buf.Bytes()
	if data == nil {
		data = []byte{}
	}

	// Payload may contain CRLF; only the two bytes after it terminate the value
	if err := r.expectCRLF(); err != nil {
		return Value{}, err
	}

	return Value{
		Type: TypeBulkString,
		Data: data,
	}, nil
}

// readArray reads an array value
func (r *Reader) readArray() (Value, error) {
	length, err := r.readLength(maxArraySize)
	if err != nil {
		return Value{}, err
	}

	array := make([]Value, 0, min(length, 64))
	for i := int64(0); i < length; i++ {
		value, err := r.readValue()
		if err != nil {
			return Value{}, err
		}
		array = append(array, value)
	}

	return Value{
		Type:  TypeArray,
		Array: array,
	}, nil
}

// readLine reads a line terminated by CRLF
func (r *Reader) readLine() ([]byte, error) {
	var line []byte
	for {
		chunk, err := r.br.ReadSlice('\n')
		line = append(line, chunk...)
		if err == nil {
			break
		}
		if err != bufio.ErrBufferFull {
			r.pos += len(line)
			return nil, err
		}
		if len(line) > maxLineSize {
			return nil, formatErrorf(r.pos, "line exceeds %d bytes", maxLineSize)
		}
	}
	start := r.pos
	r.pos += len(line)

	if !bytes.HasSuffix(line, crlfBytes) {
		return nil, formatErrorf(r.pos-1, "missing CRLF terminator, line ends with [%d]", line[len(line)-1])
	}

	line = line[:len(line)-2]
	if bad := bytes.IndexByte(line, '\r'); bad >= 0 {
		return nil, formatErrorf(start+bad, "stray carriage return inside line")
	}

	return line, nil
}

// expectCRLF reads and validates CRLF terminator
func (r *Reader) expectCRLF() error {
	var crlf [2]byte
	n, err := io.ReadFull(r.br, crlf[:])
	r.pos += n
	if err != nil {
		return fmt.Errorf("failed to read CRLF terminator (read %d/2 bytes): %w", n, err)
	}

	if crlf != [2]byte{'\r', '\n'} {
		return formatErrorf(r.pos-2, "expected CRLF terminator [13, 10], got [%d, %d]", crlf[0], crlf[1])
	}

	return nil
}
