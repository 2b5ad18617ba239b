package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/memorelay/memorelay/internal/chat"
	"github.com/memorelay/memorelay/internal/pipeline"
)

const testSecret = "channel-secret"

type fakeFetcher struct {
	content map[string]string
	err     error
	calls   int
}

func (f *fakeFetcher) GetMessageContent(_ context.Context, messageID string) (io.ReadCloser, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	content, ok := f.content[messageID]
	if !ok {
		return nil, errors.New("unknown message")
	}
	return io.NopCloser(strings.NewReader(content)), nil
}

func newTestServer(t *testing.T, queue pipeline.JobQueue, fetcher ContentFetcher) *Server {
	t.Helper()
	intake, err := pipeline.NewIntake(pipeline.IntakeOptions{Queue: queue, ScratchDir: t.TempDir()})
	if err != nil {
		t.Fatalf("new intake failed: %v", err)
	}
	server, err := NewServer(ServerOptions{
		Config:  ServerConfig{ChannelSecret: testSecret},
		Intake:  intake,
		Queue:   queue,
		Fetcher: fetcher,
		Now:     func() time.Time { return time.Date(2024, 5, 3, 10, 0, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("new server failed: %v", err)
	}
	return server
}

func postCallback(server *Server, body string, sign bool) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/callback", strings.NewReader(body))
	if sign {
		req.Header.Set("X-Line-Signature", chat.Sign(testSecret, []byte(body)))
	}
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)
	return rec
}

func dequeueOne(t *testing.T, queue pipeline.JobQueue) pipeline.Job {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	job, ok := queue.Dequeue(ctx)
	if !ok {
		t.Fatalf("expected a queued job")
	}
	return job
}

func TestCallbackRejectsBadSignature(t *testing.T) {
	queue := pipeline.NewMemoryJobQueue(4)
	server := newTestServer(t, queue, nil)

	body := `{"events":[]}`
	rec := postCallback(server, body, false)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing signature, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/callback", strings.NewReader(body))
	req.Header.Set("X-Line-Signature", chat.Sign("wrong-secret", []byte(body)))
	rec = httptest.NewRecorder()
	server.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for wrong secret, got %d", rec.Code)
	}
	if queue.Depth() != 0 {
		t.Fatalf("expected nothing queued")
	}
}

func TestCallbackRejectsPayloadMissingEvents(t *testing.T) {
	queue := pipeline.NewMemoryJobQueue(4)
	server := newTestServer(t, queue, nil)

	rec := postCallback(server, `{"destination":"abc"}`, true)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for schema violation, got %d", rec.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("error body is not json: %v", err)
	}
	if resp["code"] != "invalid_payload" {
		t.Fatalf("expected invalid_payload code, got %v", resp["code"])
	}
}

func TestCallbackEnqueuesTextMessage(t *testing.T) {
	queue := pipeline.NewMemoryJobQueue(4)
	server := newTestServer(t, queue, nil)

	body := `{"events":[{"type":"message","message":{"id":"msg_1","type":"text","text":"讀完富邦季報"}}]}`
	rec := postCallback(server, body, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Body.String() != "OK" {
		t.Fatalf("expected OK body, got %q", rec.Body.String())
	}

	job := dequeueOne(t, queue)
	if job.Kind != pipeline.JobAppendNote || job.Text != "讀完富邦季報" {
		t.Fatalf("unexpected job: %+v", job)
	}
	if job.Timestamp != "2024/05/03 10:00:00" {
		t.Fatalf("expected server clock timestamp, got %q", job.Timestamp)
	}
}

func TestCallbackFetchesAndEnqueuesFileMessage(t *testing.T) {
	queue := pipeline.NewMemoryJobQueue(4)
	fetcher := &fakeFetcher{content: map[string]string{"msg_7": "pdf bytes"}}
	server := newTestServer(t, queue, fetcher)

	body := `{"events":[{"type":"message","message":{"id":"msg_7","type":"file","fileName":"富邦Q1.pdf"}}]}`
	rec := postCallback(server, body, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if fetcher.calls != 1 {
		t.Fatalf("expected one content fetch, got %d", fetcher.calls)
	}

	job := dequeueOne(t, queue)
	if job.Kind != pipeline.JobProcessFile || job.DisplayName != "富邦Q1.pdf" {
		t.Fatalf("unexpected job: %+v", job)
	}
	if job.LocalPath == "" {
		t.Fatalf("expected scratch file path on job")
	}
}

func TestCallbackIgnoresUnknownEvents(t *testing.T) {
	queue := pipeline.NewMemoryJobQueue(4)
	server := newTestServer(t, queue, nil)

	body := `{"events":[{"type":"follow"},{"type":"message","message":{"id":"m","type":"sticker"}}]}`
	rec := postCallback(server, body, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for ignorable events, got %d", rec.Code)
	}
	if queue.Depth() != 0 {
		t.Fatalf("expected nothing queued, depth %d", queue.Depth())
	}
}

func TestCallbackStillRespondsOKWhenQueueIsFull(t *testing.T) {
	queue := pipeline.NewMemoryJobQueue(1)
	server := newTestServer(t, queue, nil)
	if !queue.TryEnqueue(pipeline.Job{ID: "job_blocker"}) {
		t.Fatalf("expected blocker enqueue to succeed")
	}

	body := `{"events":[{"type":"message","message":{"id":"m","type":"text","text":"memo"}}]}`
	rec := postCallback(server, body, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 even when the event is dropped, got %d", rec.Code)
	}
	if server.dropped.Load() != 1 {
		t.Fatalf("expected one dropped event, got %d", server.dropped.Load())
	}
}

func TestStatusReportsQueueAndCounters(t *testing.T) {
	queue := pipeline.NewMemoryJobQueue(4)
	server := newTestServer(t, queue, nil)

	body := `{"events":[{"type":"message","message":{"id":"m","type":"text","text":"memo"}}]}`
	if rec := postCallback(server, body, true); rec.Code != http.StatusOK {
		t.Fatalf("callback failed: %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/ops/status", nil)
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var status map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("status body is not json: %v", err)
	}
	if status["queueDepth"].(float64) != 1 {
		t.Fatalf("expected queue depth 1, got %v", status["queueDepth"])
	}
	if status["queueCapacity"].(float64) != 4 {
		t.Fatalf("expected queue capacity 4, got %v", status["queueCapacity"])
	}
	if status["accepted"].(float64) != 1 {
		t.Fatalf("expected 1 accepted event, got %v", status["accepted"])
	}
}

func TestReadyAndUnknownRoutes(t *testing.T) {
	queue := pipeline.NewMemoryJobQueue(4)
	server := newTestServer(t, queue, nil)

	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "memorelay ready" {
		t.Fatalf("unexpected ready response: %d %q", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown route, got %d", rec.Code)
	}
}
