package protocol

import (
	"bufio"
	"io"
)

// Writer provides buffered writing of RESP protocol messages
type Writer struct {
	bw      *bufio.Writer
	scratch []byte // Reusable encode buffer
}

// NewWriter creates a new RESP protocol writer
func NewWriter(w io.Writer) *Writer {
	return &Writer{
		bw:      bufio.NewWriter(w),
		scratch: make([]byte, 0, 512),
	}
}

// WriteValue writes a RESP value to the output stream
func (w *Writer) WriteValue(v Value) error {
	w.scratch = AppendEncode(w.scratch[:0], v)
	_, err := w.bw.Write(w.scratch)
	if cap(w.scratch) > 64*1024 {
		// don't pin large replies
		w.scratch = make([]byte, 0, 512)
	}
	return err
}

// WriteSimpleString writes a simple string
func (w *Writer) WriteSimpleString(s string) error {
	return w.WriteValue(SimpleString(s))
}

// WriteError writes an error message
func (w *Writer) WriteError(msg string) error {
	return w.WriteValue(Error(msg))
}

// WriteInteger writes an integer
func (w *Writer) WriteInteger(n int64) error {
	return w.WriteValue(Integer(n))
}

// WriteBulkString writes a bulk string
func (w *Writer) WriteBulkString(data []byte) error {
	return w.WriteValue(BulkString(data))
}

// WriteNull writes the null value
func (w *Writer) WriteNull() error {
	_, err := w.bw.WriteString(string(TypeNull) + CRLF)
	return err
}

// WriteCommand writes a Redis command as a RESP array of bulk strings
func (w *Writer) WriteCommand(cmd string, args ...string) error {
	return w.WriteValue(NewCommand(cmd, args...))
}

// WriteOK writes a simple "OK" response
func (w *Writer) WriteOK() error {
	return w.WriteSimpleString("OK")
}

// Flush flushes any buffered data to the underlying writer
func (w *Writer) Flush() error {
	return w.bw.Flush()
}

// Reset resets the writer to write to a new underlying writer
func (w *Writer) Reset(writer io.Writer) {
	w.bw.Reset(writer)
}
