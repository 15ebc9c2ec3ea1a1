package source

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
)

// Reader reads lines from a finite input.
// A final line without a terminator is still returned.
type Reader struct {
	name   string
	rd     *bufio.Reader
	closer io.Closer
	offset int64
}

// NewReader reads lines from r. Offsets start at zero.
func NewReader(r io.Reader, name string) *Reader {
	return &Reader{name: name, rd: bufio.NewReader(r)}
}

// OpenFile opens path and starts reading at offset.
func OpenFile(path string, offset int64) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if offset > 0 {
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			f.Close()
			return nil, fmt.Errorf("seek %s to %d: %w", path, offset, err)
		}
	}
	return &Reader{
		name:   path,
		rd:     bufio.NewReader(f),
		closer: f,
		offset: offset,
	}, nil
}

// Next returns the next line or io.EOF.
func (r *Reader) Next(ctx context.Context) (Line, error) {
	if err := ctx.Err(); err != nil {
		return Line{}, err
	}

	raw, err := r.rd.ReadBytes('\n')
	if len(raw) > 0 && (err == nil || err == io.EOF) {
		r.offset += int64(len(raw))
		return newLine(raw, r.offset), nil
	}
	return Line{}, err
}

// Name returns the input name.
func (r *Reader) Name() string {
	return r.name
}

// Offset returns the offset of the next unread byte.
func (r *Reader) Offset() int64 {
	return r.offset
}

// Close closes the underlying file, if any.
func (r *Reader) Close() error {
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}
