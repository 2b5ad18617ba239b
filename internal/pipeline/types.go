package pipeline

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrQueueFull         = errors.New("queue full")
	ErrUploadFailed      = errors.New("upload failed")
	ErrLedgerUnavailable = errors.New("ledger unavailable")
	ErrNotImplemented    = errors.New("not implemented")
)

type JobKind string

const (
	JobAppendNote  JobKind = "append_note"
	JobProcessFile JobKind = "process_file"
)

// Job is one unit of ingestion work. Jobs are immutable once enqueued;
// a process_file job owns its LocalPath scratch file until processing
// finishes, at which point the file is removed regardless of outcome.
type Job struct {
	ID            string  `json:"id"`
	Kind          JobKind `json:"kind"`
	Timestamp     string  `json:"timestamp,omitempty"`
	Text          string  `json:"text,omitempty"`
	PDFLink       string  `json:"pdfLink,omitempty"`
	LocalPath     string  `json:"localPath,omitempty"`
	DisplayName   string  `json:"displayName,omitempty"`
	CorrelationID string  `json:"correlationId,omitempty"`
}

type JobState string

const (
	JobStateEnqueued  JobState = "enqueued"
	JobStateRunning   JobState = "running"
	JobStateCompleted JobState = "completed"
	JobStateFailed    JobState = "failed"
)

// JobTransition is a point-in-time state change of a job, published to
// observers such as the ops event feed.
type JobTransition struct {
	JobID string   `json:"jobId"`
	Kind  JobKind  `json:"kind"`
	State JobState `json:"state"`
	Error string   `json:"error,omitempty"`
	At    string   `json:"at"`
}

// JobQueue is a FIFO queue of ingestion jobs. Enqueue may be called from
// multiple goroutines; the pipeline attaches exactly one consumer.
type JobQueue interface {
	TryEnqueue(job Job) bool
	Enqueue(ctx context.Context, job Job) bool
	Dequeue(ctx context.Context) (Job, bool)
	Depth() int
	Capacity() int
	Close() error
}

// Row is one ledger entry. Identity is positional; Link is set at most
// once and never overwritten afterwards.
type Row struct {
	Timestamp string
	NoteText  string
	Link      string
}

// ledgerTimeFormat is the wall-clock format stored in column A.
const ledgerTimeFormat = "2006/01/02 15:04:05"

func newJobID() string {
	return "job_" + uuid.NewString()
}
