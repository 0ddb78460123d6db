package collector

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"logflow/pkg/logger"
	"logflow/pkg/logmodel"
)

// TailerOptions configures one file tailer.
type TailerOptions struct {
	Path             string
	Level            logmodel.Level
	PollInterval     time.Duration
	MaxLinesPerRound int
	// EnableBackup, if set, copies the prefix a round is about to discard
	// to a timestamped sidecar before truncating.
	EnableBackup bool
	BackupDir    string
}

// Tailer reads newly-appended lines from a file and truncates the portion
// it has consumed, bounding disk usage for a file producers write to
// continuously. Truncation and the optional backup copy happen under the
// same mutex so they can never interleave with each other.
type Tailer struct {
	opts   TailerOptions
	submit func(ctx context.Context, content []byte, level logmodel.Level) SubmitResult

	lastPos int64
	mu      sync.Mutex

	stopCh chan struct{}
	wg     sync.WaitGroup

	errorCallback func(error)
}

// NewTailer returns a Tailer that calls submit for each non-empty line it
// consumes from opts.Path.
func NewTailer(opts TailerOptions, submit func(ctx context.Context, content []byte, level logmodel.Level) SubmitResult) *Tailer {
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	if opts.MaxLinesPerRound <= 0 {
		opts.MaxLinesPerRound = 100
	}
	return &Tailer{opts: opts, submit: submit, stopCh: make(chan struct{})}
}

// SetErrorCallback registers the callback invoked if the tailer's initial
// file open fails. The tailer exits without starting its loop in that case.
func (t *Tailer) SetErrorCallback(fn func(error)) {
	t.errorCallback = fn
}

// Start opens the file once to verify it's readable, then runs the poll
// loop in a background goroutine until Stop is called.
func (t *Tailer) Start(ctx context.Context) error {
	f, err := os.OpenFile(t.opts.Path, os.O_RDWR, 0)
	if err != nil {
		if t.errorCallback != nil {
			t.errorCallback(err)
		}
		return err
	}
	_ = f.Close()

	t.wg.Add(1)
	go t.loop(ctx)
	return nil
}

// Stop signals the poll loop to exit and waits for it.
func (t *Tailer) Stop() {
	select {
	case <-t.stopCh:
	default:
		close(t.stopCh)
	}
	t.wg.Wait()
}

func (t *Tailer) loop(ctx context.Context) {
	defer t.wg.Done()

	ticker := time.NewTicker(t.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.stopCh:
			return
		case <-ticker.C:
			if err := t.round(ctx); err != nil {
				logger.Log.Warn("tailer round failed", "path", t.opts.Path, "error", err)
			}
		}
	}
}

// round performs one poll-read-(maybe truncate) cycle, reopening the file
// fresh each time rather than holding a handle across rounds.
func (t *Tailer) round(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	f, err := os.OpenFile(t.opts.Path, os.O_RDWR, 0)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	end := info.Size()
	if end <= t.lastPos {
		return nil
	}

	if _, err := f.Seek(t.lastPos, io.SeekStart); err != nil {
		return err
	}
	reader := bufio.NewReader(f)

	consumed := t.lastPos
	lines := 0
	for lines < t.opts.MaxLinesPerRound {
		line, err := reader.ReadString('\n')
		if !strings.HasSuffix(line, "\n") {
			// Partial line at EOF: leave it for the next round.
			break
		}
		consumed += int64(len(line))
		if trimmed := strings.TrimRight(line, "\r\n"); trimmed != "" {
			t.submit(ctx, []byte(trimmed), t.opts.Level)
		}
		lines++
		if err != nil {
			break
		}
	}

	if consumed == t.lastPos {
		return nil
	}

	if t.opts.EnableBackup {
		if err := t.backupPrefix(f, consumed); err != nil {
			logger.Log.Warn("tailer backup failed, truncating anyway", "path", t.opts.Path, "error", err)
		}
	}

	if err := truncateAfterConsume(f, consumed, end); err != nil {
		return err
	}
	t.lastPos = 0
	return nil
}

// backupPrefix copies the bytes [0, consumedUpto) — everything this round
// is about to discard — to a timestamped sidecar file.
func (t *Tailer) backupPrefix(f *os.File, consumedUpto int64) error {
	if consumedUpto == 0 {
		return nil
	}

	prefix := make([]byte, consumedUpto)
	if _, err := f.ReadAt(prefix, 0); err != nil && err != io.EOF {
		return err
	}

	dir := t.opts.BackupDir
	if dir == "" {
		dir = "."
	}
	name := fmt.Sprintf("%s/%s.%d.bak", dir, baseName(t.opts.Path), time.Now().UnixNano())
	return os.WriteFile(name, prefix, 0o644)
}

func baseName(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[i+1:]
		}
	}
	return path
}

// truncateAfterConsume rewrites f to contain only [consumedUpto, end), the
// suffix not yet delivered to Submit.
func truncateAfterConsume(f *os.File, consumedUpto, end int64) error {
	suffixLen := end - consumedUpto
	suffix := make([]byte, suffixLen)
	if suffixLen > 0 {
		if _, err := f.ReadAt(suffix, consumedUpto); err != nil && err != io.EOF {
			return err
		}
	}

	if err := f.Truncate(0); err != nil {
		return err
	}
	if _, err := f.WriteAt(suffix, 0); err != nil {
		return err
	}
	return f.Sync()
}
