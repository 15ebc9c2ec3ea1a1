package source

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func readAll(t *testing.T, src Source) []Line {
	t.Helper()
	var lines []Line
	for {
		line, err := src.Next(context.Background())
		if err == io.EOF {
			return lines
		}
		if err != nil {
			t.Fatalf("Next() error = %v", err)
		}
		lines = append(lines, line)
	}
}

func TestReader_LinesAndOffsets(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantData []string
		wantEnds []int64
	}{
		{"unix newlines", "a\nbb\n", []string{"a", "bb"}, []int64{2, 5}},
		{"crlf", "a\r\nb\r\n", []string{"a", "b"}, []int64{3, 6}},
		{"unterminated tail", "a\nlast", []string{"a", "last"}, []int64{2, 6}},
		{"empty lines kept", "\n\nx\n", []string{"", "", "x"}, []int64{1, 2, 4}},
		{"empty input", "", nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lines := readAll(t, NewReader(strings.NewReader(tt.input), "stdin"))

			if len(lines) != len(tt.wantData) {
				t.Fatalf("got %d lines, want %d", len(lines), len(tt.wantData))
			}
			for i, line := range lines {
				if string(line.Data) != tt.wantData[i] {
					t.Errorf("line %d = %q, want %q", i, line.Data, tt.wantData[i])
				}
				if line.End != tt.wantEnds[i] {
					t.Errorf("line %d end = %d, want %d", i, line.End, tt.wantEnds[i])
				}
			}
		})
	}
}

func TestOpenFile_ResumesAtOffset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.log")
	if err := os.WriteFile(path, []byte("one\ntwo\nthree\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	r, err := OpenFile(path, 4)
	if err != nil {
		t.Fatalf("OpenFile() error = %v", err)
	}
	defer r.Close()

	lines := readAll(t, r)
	if len(lines) != 2 || string(lines[0].Data) != "two" || lines[1].End != 14 {
		t.Errorf("lines = %+v, want two and three ending at 14", lines)
	}
	if r.Name() != path {
		t.Errorf("Name() = %q, want %q", r.Name(), path)
	}
}

func TestOpenFile_Missing(t *testing.T) {
	if _, err := OpenFile(filepath.Join(t.TempDir(), "missing"), 0); err == nil {
		t.Error("OpenFile() of missing file returned no error")
	}
}

func TestReader_HonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := NewReader(strings.NewReader("a\n"), "stdin")
	if _, err := r.Next(ctx); err != context.Canceled {
		t.Errorf("Next() error = %v, want context.Canceled", err)
	}
}
