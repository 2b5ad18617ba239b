// Package dropdir turns a local directory into an event source: a file
// dropped there is submitted to the pipeline as if it had arrived through
// the webhook.
package dropdir

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/memorelay/memorelay/internal/pipeline"
)

// settleDelay debounces write bursts so a file is submitted only after
// the producer has stopped writing it.
const settleDelay = 500 * time.Millisecond

type Watcher struct {
	dir    string
	intake *pipeline.Intake
	logger *slog.Logger

	mu     sync.Mutex
	timers map[string]*time.Timer
	ready  chan string
}

func NewWatcher(dir string, intake *pipeline.Intake, logger *slog.Logger) (*Watcher, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" || intake == nil {
		return nil, pipeline.ErrInvalidInput
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		dir:    dir,
		intake: intake,
		logger: logger,
		timers: map[string]*time.Timer{},
		ready:  make(chan string, 64),
	}, nil
}

// Run watches the drop directory until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return err
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsw.Close()

	if err := fsw.Add(w.dir); err != nil {
		return err
	}
	w.logger.Info("drop directory watcher started", slog.String("dir", w.dir))

	for {
		select {
		case <-ctx.Done():
			w.stopTimers()
			w.logger.Info("drop directory watcher stopped")
			return nil

		case path := <-w.ready:
			w.submit(path)

		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if strings.HasPrefix(filepath.Base(ev.Name), ".") {
				continue
			}
			if info, statErr := os.Stat(ev.Name); statErr != nil || info.IsDir() {
				continue
			}
			w.schedule(ev.Name)

		case watchErr, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("drop directory watch error", slog.String("error", watchErr.Error()))
		}
	}
}

func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if timer, ok := w.timers[path]; ok {
		timer.Reset(settleDelay)
		return
	}
	w.timers[path] = time.AfterFunc(settleDelay, func() {
		select {
		case w.ready <- path:
		default:
		}
	})
}

func (w *Watcher) submit(path string) {
	w.mu.Lock()
	delete(w.timers, path)
	w.mu.Unlock()

	if _, err := os.Stat(path); err != nil {
		return
	}
	_, err := w.intake.SubmitFilePath(path, filepath.Base(path))
	if err != nil {
		if errors.Is(err, pipeline.ErrQueueFull) {
			// Leave the file in place; the next write event retries it.
			w.logger.Warn("queue full, leaving dropped file in place", slog.String("path", path))
			return
		}
		w.logger.Error("dropped file rejected",
			slog.String("path", path),
			slog.String("error", err.Error()))
		return
	}
	w.logger.Info("dropped file submitted", slog.String("path", path))
}

func (w *Watcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, timer := range w.timers {
		timer.Stop()
	}
	w.timers = map[string]*time.Timer{}
}
