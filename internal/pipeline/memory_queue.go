package pipeline

import "context"

type memoryJobQueue struct {
	ch chan Job
}

func NewMemoryJobQueue(capacity int) JobQueue {
	if capacity <= 0 {
		capacity = 1024
	}
	return &memoryJobQueue{
		ch: make(chan Job, capacity),
	}
}

func (q *memoryJobQueue) TryEnqueue(job Job) bool {
	if q == nil || job.ID == "" {
		return false
	}
	select {
	case q.ch <- job:
		return true
	default:
		return false
	}
}

func (q *memoryJobQueue) Enqueue(ctx context.Context, job Job) bool {
	if q == nil || job.ID == "" {
		return false
	}
	select {
	case q.ch <- job:
		return true
	case <-ctx.Done():
		return false
	}
}

func (q *memoryJobQueue) Dequeue(ctx context.Context) (Job, bool) {
	if q == nil {
		return Job{}, false
	}
	select {
	case job := <-q.ch:
		return job, true
	case <-ctx.Done():
		return Job{}, false
	}
}

func (q *memoryJobQueue) Depth() int {
	if q == nil {
		return 0
	}
	return len(q.ch)
}

func (q *memoryJobQueue) Capacity() int {
	if q == nil {
		return 0
	}
	return cap(q.ch)
}

func (q *memoryJobQueue) Close() error {
	return nil
}
