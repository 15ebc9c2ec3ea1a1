// Package source reads newline-delimited records from files and streams.
package source

import (
	"bytes"
	"context"
)

// Line is one input line.
type Line struct {
	// Data is the line content without the line terminator
	Data []byte

	// End is the input offset just past the line terminator
	End int64
}

// Source yields lines in input order.
type Source interface {
	// Next returns the next line. A finite source returns io.EOF when
	// exhausted; a following source blocks until more data arrives or
	// ctx is done.
	Next(ctx context.Context) (Line, error)

	// Name identifies the input, used as the checkpoint key.
	Name() string

	Close() error
}

// trimEOL strips a trailing "\n" or "\r\n".
func trimEOL(b []byte) []byte {
	b = bytes.TrimSuffix(b, []byte("\n"))
	return bytes.TrimSuffix(b, []byte("\r"))
}

// newLine copies raw into a Line ending at end.
func newLine(raw []byte, end int64) Line {
	data := trimEOL(raw)
	out := make([]byte, len(data))
	copy(out, data)
	return Line{Data: out, End: end}
}
