// FILE: thermwatch/src/internal/source/tail.go
package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"thermwatch/src/internal/clock"
	"thermwatch/src/internal/config"
	"thermwatch/src/internal/core"

	"github.com/lixenwraith/log"
)

// ErrNotFound is returned by Open when the input file does not exist
var ErrNotFound = errors.New("input file not found")

const readChunkSize = 32 * 1024

// Tailer follows an append-only file and yields complete lines.
// Next, Checkpoint and Close must be called from a single goroutine;
// GetStats is safe from any goroutine.
type Tailer struct {
	path            string
	pollInterval    time.Duration
	checkpointEvery int64
	maxLineBytes    int64

	store    OffsetStore
	clock    clock.Clock
	notifier *writeNotifier
	logger   *log.Logger

	// Reader state, owned by the calling goroutine
	file       *os.File
	inode      uint64
	offset     int64 // first byte not yet yielded
	readPos    int64 // first byte not yet read into buf
	buf        []byte
	chunk      []byte
	skipping   bool
	sinceCheck int64
	closeOnce  sync.Once
	closeErr   error

	// Statistics
	startTime      time.Time
	linesRead      atomic.Uint64
	linesDiscarded atomic.Uint64
	rotations      atomic.Uint64
	currentOffset  atomic.Int64
	currentSize    atomic.Int64
	resumed        atomic.Bool
	lastLineTime   atomic.Value // time.Time
}

// Open starts tailing cfg.Path. The reader begins at end of file unless a
// persisted offset for the same file generation is available.
func Open(cfg config.SourceConfig, clk clock.Clock, logger *log.Logger) (*Tailer, error) {
	return OpenWithStore(cfg, NewOffsetStore(cfg.OffsetPath()), clk, logger)
}

// OpenWithStore is Open with an explicit offset store
func OpenWithStore(cfg config.SourceConfig, store OffsetStore, clk clock.Clock, logger *log.Logger) (*Tailer, error) {
	path, err := filepath.Abs(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve input path %s: %w", cfg.Path, err)
	}

	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("failed to open input file: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to stat input file: %w", err)
	}

	maxLine := cfg.MaxLineBytes
	if maxLine <= 0 {
		maxLine = 64 * 1024
	}
	every := cfg.CheckpointEvery
	if every <= 0 {
		every = 1
	}

	t := &Tailer{
		path:            path,
		pollInterval:    cfg.PollInterval(),
		checkpointEvery: every,
		maxLineBytes:    maxLine,
		store:           store,
		clock:           clk,
		logger:          logger,
		file:            file,
		inode:           inodeOf(info),
		chunk:           make([]byte, readChunkSize),
		startTime:       clk.Now(),
	}
	t.lastLineTime.Store(time.Time{})

	size := info.Size()
	t.offset = size
	if state, ok, err := store.Load(); err != nil {
		logger.Warn("msg", "Ignoring unreadable offset state, starting at end of file",
			"component", "tailer",
			"path", path,
			"error", err)
	} else if ok {
		switch {
		case state.Path != path:
			logger.Info("msg", "Offset state belongs to another file, starting at end of file",
				"component", "tailer",
				"path", path,
				"state_path", state.Path)
		case state.Inode != t.inode:
			logger.Info("msg", "Input file replaced since last run, starting at end of file",
				"component", "tailer",
				"path", path,
				"old_inode", state.Inode,
				"new_inode", t.inode)
		case state.Offset > size:
			logger.Info("msg", "Input file truncated since last run, starting at end of file",
				"component", "tailer",
				"path", path,
				"offset", state.Offset,
				"size", size)
		default:
			t.offset = state.Offset
			t.resumed.Store(true)
		}
	}
	t.readPos = t.offset
	t.currentOffset.Store(t.offset)
	t.currentSize.Store(size)

	if cfg.WatchEvents {
		n, err := newWriteNotifier(path, logger)
		if err != nil {
			// Polling still works without events
			logger.Warn("msg", "Filesystem events unavailable, polling only",
				"component", "tailer",
				"path", path,
				"error", err)
		} else {
			t.notifier = n
		}
	}

	logger.Info("msg", "Tailing input file",
		"component", "tailer",
		"path", path,
		"offset", t.offset,
		"size", size,
		"resumed", t.resumed.Load(),
		"poll_interval", t.pollInterval)

	return t, nil
}

// Next blocks until a complete line is available. It only returns an error
// when ctx is cancelled.
func (t *Tailer) Next(ctx context.Context) (core.Line, error) {
	for {
		if err := ctx.Err(); err != nil {
			return core.Line{}, err
		}

		if line, ok := t.takeLine(); ok {
			t.afterYield()
			return line, nil
		}

		n, err := t.fill()
		if err != nil {
			t.logger.Warn("msg", "Read error on input file",
				"component", "tailer",
				"path", t.path,
				"offset", t.offset,
				"error", err)
		}
		if n > 0 {
			continue
		}

		if err := t.wait(ctx); err != nil {
			return core.Line{}, err
		}
	}
}

// Offset returns the position just past the last yielded line
func (t *Tailer) Offset() int64 {
	return t.currentOffset.Load()
}

// Checkpoint persists the current offset
func (t *Tailer) Checkpoint() error {
	t.sinceCheck = 0
	state := OffsetState{
		Path:      t.path,
		Offset:    t.offset,
		Inode:     t.inode,
		UpdatedAt: t.clock.Now().UTC(),
	}
	if err := t.store.Save(state); err != nil {
		return fmt.Errorf("failed to checkpoint offset: %w", err)
	}
	return nil
}

// Close checkpoints the offset and releases the file. Safe to call twice.
func (t *Tailer) Close() error {
	t.closeOnce.Do(func() {
		var errs []error
		if err := t.Checkpoint(); err != nil {
			errs = append(errs, err)
		}
		if t.notifier != nil {
			if err := t.notifier.close(); err != nil {
				errs = append(errs, err)
			}
		}
		if t.file != nil {
			if err := t.file.Close(); err != nil {
				errs = append(errs, err)
			}
			t.file = nil
		}
		t.closeErr = errors.Join(errs...)

		t.logger.Info("msg", "Tailer closed",
			"component", "tailer",
			"path", t.path,
			"offset", t.offset,
			"lines_read", t.linesRead.Load())
	})
	return t.closeErr
}

// GetStats returns tailer statistics
func (t *Tailer) GetStats() SourceStats {
	lastLine, _ := t.lastLineTime.Load().(time.Time)
	return SourceStats{
		Type:           "tail",
		TotalEntries:   t.linesRead.Load(),
		DroppedEntries: t.linesDiscarded.Load(),
		StartTime:      t.startTime,
		LastEntryTime:  lastLine,
		Details: map[string]any{
			"path":      t.path,
			"offset":    t.currentOffset.Load(),
			"size":      t.currentSize.Load(),
			"rotations": t.rotations.Load(),
			"resumed":   t.resumed.Load(),
		},
	}
}

// takeLine pops the next complete line from the buffer
func (t *Tailer) takeLine() (core.Line, bool) {
	for {
		idx := bytes.IndexByte(t.buf, '\n')
		if idx < 0 {
			if int64(len(t.buf)) > t.maxLineBytes {
				// Drop the oversized head and skip until its newline
				t.advance(int64(len(t.buf)))
				t.buf = t.buf[:0]
				t.skipping = true
			}
			return core.Line{}, false
		}

		raw := t.buf[:idx]
		t.buf = t.buf[idx+1:]
		t.advance(int64(idx + 1))

		if t.skipping {
			t.skipping = false
			t.discard("line exceeds max_line_bytes")
			continue
		}

		raw = bytes.TrimSuffix(raw, []byte{'\r'})
		if int64(len(raw)) > t.maxLineBytes {
			t.discard("line exceeds max_line_bytes")
			continue
		}
		if len(bytes.TrimSpace(raw)) == 0 {
			continue
		}

		return core.Line{Text: string(raw), Offset: t.offset}, true
	}
}

func (t *Tailer) advance(n int64) {
	t.offset += n
	t.currentOffset.Store(t.offset)
}

func (t *Tailer) discard(reason string) {
	t.linesDiscarded.Add(1)
	t.logger.Warn("msg", "Discarding input line",
		"component", "tailer",
		"path", t.path,
		"offset", t.offset,
		"reason", reason,
		"max_line_bytes", t.maxLineBytes)
}

func (t *Tailer) afterYield() {
	t.linesRead.Add(1)
	t.lastLineTime.Store(t.clock.Now())

	t.sinceCheck++
	if t.sinceCheck >= t.checkpointEvery {
		if err := t.Checkpoint(); err != nil {
			t.logger.Warn("msg", "Offset checkpoint failed",
				"component", "tailer",
				"path", t.path,
				"offset", t.offset,
				"error", err)
		}
	}
}

// fill reads newly appended bytes into the buffer, handling truncation and rotation
func (t *Tailer) fill() (int, error) {
	if err := t.checkGeneration(); err != nil {
		return 0, err
	}
	if t.file == nil {
		return 0, nil
	}

	n, err := t.file.ReadAt(t.chunk, t.readPos)
	if n > 0 {
		t.buf = append(t.buf, t.chunk[:n]...)
		t.readPos += int64(n)
	}
	if errors.Is(err, io.EOF) {
		err = nil
	}
	return n, err
}

// checkGeneration resets to the end of the file on truncation or rotation
func (t *Tailer) checkGeneration() error {
	info, err := os.Stat(t.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			// Mid-rotation, the new file has not appeared yet
			return nil
		}
		return err
	}
	size := info.Size()
	t.currentSize.Store(size)

	inode := inodeOf(info)
	if t.file != nil && inode == t.inode {
		if t.readPos <= size {
			return nil
		}
		t.reset(size, "truncated")
		return nil
	}

	file, err := os.Open(t.path)
	if err != nil {
		return err
	}
	if t.file != nil {
		t.file.Close()
	}
	t.file = file
	t.inode = inode

	// The new generation may have grown between stat and open
	if fi, err := file.Stat(); err == nil {
		size = fi.Size()
		t.currentSize.Store(size)
	}
	t.reset(size, "rotated")
	return nil
}

func (t *Tailer) reset(size int64, reason string) {
	t.rotations.Add(1)
	t.logger.Info("msg", "Input file "+reason+", resetting to end",
		"component", "tailer",
		"path", t.path,
		"previous_offset", t.offset,
		"buffered_bytes", len(t.buf),
		"new_offset", size)

	t.buf = t.buf[:0]
	t.skipping = false
	t.offset = size
	t.readPos = size
	t.currentOffset.Store(size)
	t.sinceCheck = t.checkpointEvery
}

// wait suspends until the poll interval elapses or a write event arrives
func (t *Tailer) wait(ctx context.Context) error {
	var wake <-chan struct{}
	if t.notifier != nil {
		wake = t.notifier.C()
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.clock.After(t.pollInterval):
	case <-wake:
	}
	return nil
}

func inodeOf(info os.FileInfo) uint64 {
	if stat, ok := info.Sys().(*syscall.Stat_t); ok {
		return stat.Ino
	}
	return 0
}
