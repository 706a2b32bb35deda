package fhir

import (
	"bufio"
	"encoding/json"
	"io"
)

// NDJSONWriter writes resources in newline-delimited JSON, the format
// used for bulk record export.
type NDJSONWriter struct {
	w *bufio.Writer
}

// NewNDJSONWriter creates a writer that writes to w.
func NewNDJSONWriter(w io.Writer) *NDJSONWriter {
	return &NDJSONWriter{w: bufio.NewWriter(w)}
}

// WriteResource serialises resource as a single JSON line.
func (n *NDJSONWriter) WriteResource(resource any) error {
	data, err := json.Marshal(resource)
	if err != nil {
		return err
	}
	if _, err := n.w.Write(data); err != nil {
		return err
	}
	return n.w.WriteByte('\n')
}

// Flush flushes any buffered data to the underlying writer.
func (n *NDJSONWriter) Flush() error {
	return n.w.Flush()
}
