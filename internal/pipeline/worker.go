package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"
)

type WorkerOptions struct {
	Queue        JobQueue
	Uploader     *Uploader
	Reconciler   *Reconciler
	Ledger       *Ledger
	Logger       *slog.Logger
	OnTransition func(JobTransition)
}

// Worker drains the job queue with exactly one goroutine and executes
// each job end to end: an upload completes (including all retries) before
// reconciliation starts, and reconciliation completes before the next job
// begins. This serialization is what keeps reconcile calls from racing on
// the same ledger row; running more than one worker requires adding
// compare-and-set semantics to Ledger.SetLink first.
type Worker struct {
	queue        JobQueue
	uploader     *Uploader
	reconciler   *Reconciler
	ledger       *Ledger
	logger       *slog.Logger
	onTransition func(JobTransition)

	completed atomic.Uint64
	failed    atomic.Uint64
}

func NewWorker(opts WorkerOptions) (*Worker, error) {
	if opts.Queue == nil || opts.Uploader == nil || opts.Reconciler == nil || opts.Ledger == nil {
		return nil, ErrInvalidInput
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		queue:        opts.Queue,
		uploader:     opts.Uploader,
		reconciler:   opts.Reconciler,
		ledger:       opts.Ledger,
		logger:       logger,
		onTransition: opts.OnTransition,
	}, nil
}

// Run blocks until ctx is cancelled. A job failure terminates only that
// job; the loop always proceeds to the next one.
func (w *Worker) Run(ctx context.Context) {
	for {
		job, ok := w.queue.Dequeue(ctx)
		if !ok {
			return
		}
		w.process(ctx, job)
	}
}

// Stats reports how many jobs completed and failed since startup.
func (w *Worker) Stats() (completed, failed uint64) {
	return w.completed.Load(), w.failed.Load()
}

func (w *Worker) process(ctx context.Context, job Job) {
	w.emit(job, JobStateRunning, nil)
	if err := w.execute(ctx, job); err != nil {
		w.failed.Add(1)
		w.logger.Error("job failed",
			slog.String("job", job.ID),
			slog.String("kind", string(job.Kind)),
			slog.String("error", err.Error()))
		w.emit(job, JobStateFailed, err)
		return
	}
	w.completed.Add(1)
	w.emit(job, JobStateCompleted, nil)
}

func (w *Worker) execute(ctx context.Context, job Job) error {
	switch job.Kind {
	case JobAppendNote:
		return w.ledger.Append(ctx, Row{
			Timestamp: job.Timestamp,
			NoteText:  job.Text,
			Link:      job.PDFLink,
		})
	case JobProcessFile:
		defer w.removeScratch(job.LocalPath)
		link, err := w.uploader.Upload(ctx, job.LocalPath, job.DisplayName)
		if err != nil {
			return err
		}
		matched, err := w.reconciler.Reconcile(ctx, link, job.DisplayName)
		if err != nil {
			return err
		}
		w.logger.Info("file processed",
			slog.String("job", job.ID),
			slog.String("link", link),
			slog.Bool("matched", matched))
		return nil
	default:
		return fmt.Errorf("%w: job kind %q", ErrInvalidInput, job.Kind)
	}
}

// removeScratch deletes the job's scratch file regardless of outcome to
// bound disk usage.
func (w *Worker) removeScratch(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		w.logger.Warn("scratch file removal failed",
			slog.String("path", path),
			slog.String("error", err.Error()))
	}
}

func (w *Worker) emit(job Job, state JobState, cause error) {
	if w.onTransition == nil {
		return
	}
	transition := JobTransition{
		JobID: job.ID,
		Kind:  job.Kind,
		State: state,
		At:    time.Now().UTC().Format(time.RFC3339Nano),
	}
	if cause != nil {
		transition.Error = cause.Error()
	}
	w.onTransition(transition)
}
