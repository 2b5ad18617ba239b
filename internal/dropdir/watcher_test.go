package dropdir

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/memorelay/memorelay/internal/pipeline"
)

func TestWatcherSubmitsDroppedFile(t *testing.T) {
	dir := t.TempDir()
	queue := pipeline.NewMemoryJobQueue(4)
	intake, err := pipeline.NewIntake(pipeline.IntakeOptions{Queue: queue, ScratchDir: t.TempDir()})
	if err != nil {
		t.Fatalf("new intake failed: %v", err)
	}
	watcher, err := NewWatcher(dir, intake, nil)
	if err != nil {
		t.Fatalf("new watcher failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- watcher.Run(ctx) }()

	// Give the watcher a moment to register before dropping the file.
	time.Sleep(100 * time.Millisecond)
	path := filepath.Join(dir, "dropped.pdf")
	if err := os.WriteFile(path, []byte("pdf bytes"), 0o644); err != nil {
		t.Fatalf("write dropped file failed: %v", err)
	}

	dequeueCtx, dequeueCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer dequeueCancel()
	job, ok := queue.Dequeue(dequeueCtx)
	if !ok {
		t.Fatalf("expected a job for the dropped file")
	}
	if job.Kind != pipeline.JobProcessFile {
		t.Fatalf("expected process_file job, got %s", job.Kind)
	}
	if job.DisplayName != "dropped.pdf" || job.LocalPath != path {
		t.Fatalf("unexpected job %+v", job)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("watcher exited with error: %v", err)
	}
}

func TestWatcherIgnoresDotfiles(t *testing.T) {
	dir := t.TempDir()
	queue := pipeline.NewMemoryJobQueue(4)
	intake, err := pipeline.NewIntake(pipeline.IntakeOptions{Queue: queue, ScratchDir: t.TempDir()})
	if err != nil {
		t.Fatalf("new intake failed: %v", err)
	}
	watcher, err := NewWatcher(dir, intake, nil)
	if err != nil {
		t.Fatalf("new watcher failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- watcher.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(filepath.Join(dir, ".partial.pdf"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write dotfile failed: %v", err)
	}

	time.Sleep(settleDelay + 300*time.Millisecond)
	if depth := queue.Depth(); depth != 0 {
		t.Fatalf("expected dotfile to be ignored, queue depth %d", depth)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("watcher exited with error: %v", err)
	}
}

func TestWatcherCreatesMissingDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "inbox")
	queue := pipeline.NewMemoryJobQueue(4)
	intake, err := pipeline.NewIntake(pipeline.IntakeOptions{Queue: queue, ScratchDir: t.TempDir()})
	if err != nil {
		t.Fatalf("new intake failed: %v", err)
	}
	watcher, err := NewWatcher(dir, intake, nil)
	if err != nil {
		t.Fatalf("new watcher failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	if err := watcher.Run(ctx); err != nil {
		t.Fatalf("watcher failed: %v", err)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Fatalf("expected drop directory to be created: %v", err)
	}
}

func TestNewWatcherValidatesInputs(t *testing.T) {
	if _, err := NewWatcher("", nil, nil); !errors.Is(err, pipeline.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}
