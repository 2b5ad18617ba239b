package pipeline

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// pdfLinkPattern extracts an embedded document link from memo text.
var pdfLinkPattern = regexp.MustCompile(`http[^\s]+\.pdf`)

type IntakeOptions struct {
	Queue        JobQueue
	ScratchDir   string
	Logger       *slog.Logger
	OnTransition func(JobTransition)
}

// Intake is the producer side of the pipeline: it validates inbound
// events, spills file content to the scratch directory, and enqueues jobs
// without blocking. Malformed events are rejected here and never reach
// the queue.
type Intake struct {
	queue        JobQueue
	scratchDir   string
	logger       *slog.Logger
	onTransition func(JobTransition)
}

func NewIntake(opts IntakeOptions) (*Intake, error) {
	if opts.Queue == nil {
		return nil, ErrInvalidInput
	}
	scratchDir := strings.TrimSpace(opts.ScratchDir)
	if scratchDir == "" {
		scratchDir = filepath.Join(os.TempDir(), "memorelay")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Intake{
		queue:        opts.Queue,
		scratchDir:   scratchDir,
		logger:       logger,
		onTransition: opts.OnTransition,
	}, nil
}

// SubmitNote enqueues an append-note job for a text event. A document
// link embedded in the text is extracted and stored alongside it.
func (in *Intake) SubmitNote(text string, receivedAt time.Time) (Job, error) {
	if strings.TrimSpace(text) == "" {
		return Job{}, ErrInvalidInput
	}
	job := Job{
		ID:        newJobID(),
		Kind:      JobAppendNote,
		Timestamp: receivedAt.Format(ledgerTimeFormat),
		Text:      text,
		PDFLink:   pdfLinkPattern.FindString(text),
	}
	if !in.queue.TryEnqueue(job) {
		return Job{}, ErrQueueFull
	}
	in.announce(job)
	return job, nil
}

// SubmitFile spills content into a scratch file and enqueues a
// process-file job. The job owns the scratch file from here on; if the
// enqueue fails the file is removed before returning.
func (in *Intake) SubmitFile(content io.Reader, fileName string) (Job, error) {
	if content == nil || strings.TrimSpace(fileName) == "" {
		return Job{}, ErrInvalidInput
	}
	if err := os.MkdirAll(in.scratchDir, 0o755); err != nil {
		return Job{}, err
	}
	f, err := os.CreateTemp(in.scratchDir, "upload-*"+scratchExt(fileName))
	if err != nil {
		return Job{}, err
	}
	path := f.Name()
	_, copyErr := io.Copy(f, content)
	closeErr := f.Close()
	if copyErr != nil || closeErr != nil {
		_ = os.Remove(path)
		if copyErr != nil {
			return Job{}, copyErr
		}
		return Job{}, closeErr
	}

	job, err := in.SubmitFilePath(path, fileName)
	if err != nil {
		_ = os.Remove(path)
		return Job{}, err
	}
	return job, nil
}

// SubmitFilePath enqueues a process-file job for a file already on disk.
// Ownership of the file transfers to the job on success; on failure the
// file is left in place for the caller.
func (in *Intake) SubmitFilePath(path, displayName string) (Job, error) {
	if strings.TrimSpace(path) == "" || strings.TrimSpace(displayName) == "" {
		return Job{}, ErrInvalidInput
	}
	if _, err := os.Stat(path); err != nil {
		return Job{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	job := Job{
		ID:          newJobID(),
		Kind:        JobProcessFile,
		LocalPath:   path,
		DisplayName: displayName,
	}
	if !in.queue.TryEnqueue(job) {
		return Job{}, ErrQueueFull
	}
	in.announce(job)
	return job, nil
}

func (in *Intake) announce(job Job) {
	in.logger.Info("job enqueued",
		slog.String("job", job.ID),
		slog.String("kind", string(job.Kind)))
	if in.onTransition != nil {
		in.onTransition(JobTransition{
			JobID: job.ID,
			Kind:  job.Kind,
			State: JobStateEnqueued,
			At:    time.Now().UTC().Format(time.RFC3339Nano),
		})
	}
}

func scratchExt(fileName string) string {
	ext := filepath.Ext(fileName)
	if len(ext) > 10 || strings.ContainsAny(ext, `/\`) {
		return ""
	}
	return ext
}
