package source

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/bft-labs/appendship/pkg/log"
)

// DefaultPollInterval is how often a follower rechecks the file when no
// filesystem event arrives.
const DefaultPollInterval = time.Second

// Follower reads lines from a growing file, like tail -F.
// Partial lines are held back until their terminator is written. A
// truncated or replaced file is reopened and read from the start.
type Follower struct {
	path   string
	poll   time.Duration
	logger log.Logger

	file    *os.File
	rd      *bufio.Reader
	offset  int64
	partial []byte

	watcher *fsnotify.Watcher
}

// NewFollower opens path at offset and watches it for changes.
func NewFollower(path string, offset int64, poll time.Duration, logger log.Logger) (*Follower, error) {
	if poll <= 0 {
		poll = DefaultPollInterval
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	// Watch the directory so rotation (remove + create) is observed.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}

	f := &Follower{
		path:    path,
		poll:    poll,
		logger:  log.OrNoop(logger),
		watcher: watcher,
	}
	if err := f.open(offset); err != nil {
		watcher.Close()
		return nil, err
	}
	return f, nil
}

// Next blocks until a complete line is available or ctx is done.
func (f *Follower) Next(ctx context.Context) (Line, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Line{}, err
		}

		raw, err := f.rd.ReadBytes('\n')
		if len(raw) > 0 {
			f.partial = append(f.partial, raw...)
		}
		if err == nil {
			f.offset += int64(len(f.partial))
			line := newLine(f.partial, f.offset)
			f.partial = f.partial[:0]
			return line, nil
		}
		if !errors.Is(err, io.EOF) {
			return Line{}, err
		}

		if err := f.wait(ctx); err != nil {
			return Line{}, err
		}
		if err := f.checkReplaced(); err != nil {
			return Line{}, err
		}
	}
}

// Name returns the followed path.
func (f *Follower) Name() string {
	return f.path
}

// Offset returns the offset just past the last complete line.
func (f *Follower) Offset() int64 {
	return f.offset
}

// Close stops watching and closes the file.
func (f *Follower) Close() error {
	werr := f.watcher.Close()
	if f.file != nil {
		if err := f.file.Close(); err != nil {
			return err
		}
	}
	return werr
}

func (f *Follower) open(offset int64) error {
	file, err := os.Open(f.path)
	if err != nil {
		return err
	}
	if offset > 0 {
		if _, err := file.Seek(offset, io.SeekStart); err != nil {
			file.Close()
			return fmt.Errorf("seek %s to %d: %w", f.path, offset, err)
		}
	}
	if f.file != nil {
		f.file.Close()
	}
	f.file = file
	f.rd = bufio.NewReader(file)
	f.offset = offset
	f.partial = f.partial[:0]
	return nil
}

// wait blocks until the file may have changed.
func (f *Follower) wait(ctx context.Context) error {
	timer := time.NewTimer(f.poll)
	defer timer.Stop()

	name := filepath.Clean(f.path)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-timer.C:
			return nil

		case event, ok := <-f.watcher.Events:
			if !ok {
				return errors.New("source: watcher closed")
			}
			if filepath.Clean(event.Name) != name {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				return nil
			}

		case err, ok := <-f.watcher.Errors:
			if !ok {
				return errors.New("source: watcher closed")
			}
			f.logger.Warn("file watcher error", log.String("path", f.path), log.Err(err))
		}
	}
}

// checkReplaced reopens the file from the start when it was truncated or
// replaced by a new file at the same path.
func (f *Follower) checkReplaced() error {
	cur, err := f.file.Stat()
	if err != nil {
		return err
	}

	onDisk, err := os.Stat(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			// Rotated away and not yet recreated.
			return nil
		}
		return err
	}

	read := f.offset + int64(len(f.partial))
	switch {
	case !os.SameFile(cur, onDisk):
		f.logger.Info("file replaced, reopening", log.String("path", f.path))
		return f.open(0)
	case cur.Size() < read:
		f.logger.Info("file truncated, reopening",
			log.String("path", f.path),
			log.Int64("size", cur.Size()),
			log.Int64("offset", read),
		)
		return f.open(0)
	}
	return nil
}
