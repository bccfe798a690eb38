package datastore

import (
	"bufio"
	"io"

	"go.mongodb.org/mongo-driver/bson"
)

// QueryResultWriter receives documents one by one instead of having them
// collected into a QueryResult.
type QueryResultWriter interface {
	Open() error
	Write(doc M) error
	Close() error
}

// JSONWriter writes one extended JSON document per line.
type JSONWriter struct {
	out       io.Writer
	buf       *bufio.Writer
	Canonical bool
}

func NewJSONWriter(out io.Writer) *JSONWriter {
	return &JSONWriter{out: out}
}

func (w *JSONWriter) Open() error {
	w.buf = bufio.NewWriter(w.out)
	return nil
}

func (w *JSONWriter) Write(doc M) error {
	if w.buf == nil {
		if err := w.Open(); err != nil {
			return err
		}
	}
	data, err := bson.MarshalExtJSON(doc, w.Canonical, false)
	if err != nil {
		return err
	}
	if _, err = w.buf.Write(data); err != nil {
		return err
	}
	return w.buf.WriteByte('\n')
}

// Close flushes buffered output. The underlying writer is left open.
func (w *JSONWriter) Close() error {
	if w.buf == nil {
		return nil
	}
	return w.buf.Flush()
}
