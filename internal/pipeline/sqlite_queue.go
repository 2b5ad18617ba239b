package pipeline

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const sqliteQueuePollInterval = 10 * time.Millisecond

// sqliteJobQueue is the single-file durable backend. SQLite serializes
// writers on its own, so unlike the postgres core no advisory lock is
// needed around the capacity check.
type sqliteJobQueue struct {
	path         string
	capacity     int
	pollInterval time.Duration
	openDB       sqlOpenFunc

	initOnce sync.Once
	initErr  error
	db       *sql.DB
}

func NewSQLiteJobQueue(path string, capacity int) (JobQueue, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, ErrInvalidInput
	}
	if capacity <= 0 {
		capacity = 1024
	}
	return &sqliteJobQueue{
		path:         path,
		capacity:     capacity,
		pollInterval: sqliteQueuePollInterval,
		openDB:       sql.Open,
	}, nil
}

func (q *sqliteJobQueue) ensureReady() error {
	if q == nil {
		return ErrInvalidInput
	}
	q.initOnce.Do(func() {
		db, err := q.openDB("sqlite3", q.path+"?_busy_timeout=5000&_journal_mode=WAL")
		if err != nil {
			q.initErr = err
			return
		}
		db.SetMaxOpenConns(1)
		_, err = db.Exec(`
			CREATE TABLE IF NOT EXISTS memorelay_jobs (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				payload TEXT NOT NULL,
				created_at TEXT NOT NULL DEFAULT (datetime('now'))
			)`)
		if err != nil {
			_ = db.Close()
			q.initErr = err
			return
		}
		q.db = db
	})
	return q.initErr
}

func (q *sqliteJobQueue) TryEnqueue(job Job) bool {
	if q == nil || job.ID == "" {
		return false
	}
	payload, err := json.Marshal(job)
	if err != nil {
		return false
	}
	if err := q.ensureReady(); err != nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), postgresOperationTimeout)
	defer cancel()

	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return false
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	var depth int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM memorelay_jobs").Scan(&depth); err != nil {
		return false
	}
	if depth >= q.capacity {
		return false
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO memorelay_jobs (payload) VALUES (?)", string(payload)); err != nil {
		return false
	}
	if err := tx.Commit(); err != nil {
		return false
	}
	committed = true
	return true
}

func (q *sqliteJobQueue) Enqueue(ctx context.Context, job Job) bool {
	for {
		if q.TryEnqueue(job) {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(q.pollInterval):
		}
	}
}

func (q *sqliteJobQueue) Dequeue(ctx context.Context) (Job, bool) {
	for {
		job, ok := q.tryDequeue(ctx)
		if ok {
			return job, true
		}
		select {
		case <-ctx.Done():
			return Job{}, false
		case <-time.After(q.pollInterval):
		}
	}
}

func (q *sqliteJobQueue) tryDequeue(ctx context.Context) (Job, bool) {
	if err := q.ensureReady(); err != nil {
		return Job{}, false
	}
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return Job{}, false
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	var id int64
	var payload string
	err = tx.QueryRowContext(ctx, "SELECT id, payload FROM memorelay_jobs ORDER BY id ASC LIMIT 1").Scan(&id, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return Job{}, false
	}
	if err != nil {
		return Job{}, false
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM memorelay_jobs WHERE id = ?", id); err != nil {
		return Job{}, false
	}
	if err := tx.Commit(); err != nil {
		return Job{}, false
	}
	committed = true

	var job Job
	if err := json.Unmarshal([]byte(payload), &job); err != nil || job.ID == "" {
		return Job{}, false
	}
	return job, true
}

func (q *sqliteJobQueue) Depth() int {
	if err := q.ensureReady(); err != nil {
		return 0
	}
	ctx, cancel := context.WithTimeout(context.Background(), postgresOperationTimeout)
	defer cancel()

	var depth int
	if err := q.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM memorelay_jobs").Scan(&depth); err != nil {
		return 0
	}
	return depth
}

func (q *sqliteJobQueue) Capacity() int {
	if q == nil {
		return 0
	}
	return q.capacity
}

func (q *sqliteJobQueue) Close() error {
	if q == nil || q.db == nil {
		return nil
	}
	return q.db.Close()
}
