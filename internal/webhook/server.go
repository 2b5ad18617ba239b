// Package webhook is the HTTP surface of the service: the bot platform's
// callback endpoint plus a small operational API.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/memorelay/memorelay/internal/chat"
	"github.com/memorelay/memorelay/internal/pipeline"
)

// ContentFetcher retrieves the bytes of an uploaded message.
type ContentFetcher interface {
	GetMessageContent(ctx context.Context, messageID string) (io.ReadCloser, error)
}

type ServerConfig struct {
	ChannelSecret string
	MaxBodyBytes  int64
	ReadyMessage  string
}

type ServerOptions struct {
	Config  ServerConfig
	Intake  *pipeline.Intake
	Queue   pipeline.JobQueue
	Worker  *pipeline.Worker
	Fetcher ContentFetcher
	Feed    *Feed
	Logger  *slog.Logger
	Now     func() time.Time
}

type Server struct {
	cfg     ServerConfig
	intake  *pipeline.Intake
	queue   pipeline.JobQueue
	worker  *pipeline.Worker
	fetcher ContentFetcher
	feed    *Feed
	logger  *slog.Logger
	now     func() time.Time

	accepted atomic.Uint64
	dropped  atomic.Uint64
}

func NewServer(opts ServerOptions) (*Server, error) {
	if opts.Intake == nil || opts.Queue == nil {
		return nil, pipeline.ErrInvalidInput
	}
	cfg := opts.Config
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	if cfg.ReadyMessage == "" {
		cfg.ReadyMessage = "memorelay ready"
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Server{
		cfg:     cfg,
		intake:  opts.Intake,
		queue:   opts.Queue,
		worker:  opts.Worker,
		fetcher: opts.Fetcher,
		feed:    opts.Feed,
		logger:  logger,
		now:     now,
	}, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/" && r.Method == http.MethodGet:
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(s.cfg.ReadyMessage))
	case r.URL.Path == "/callback" && r.Method == http.MethodPost:
		s.handleCallback(w, r)
	case r.URL.Path == "/ops/status" && r.Method == http.MethodGet:
		s.handleStatus(w, r)
	case r.URL.Path == "/ops/events" && r.Method == http.MethodGet:
		s.handleEvents(w, r)
	default:
		writeError(w, http.StatusNotFound, "not_found", "route not found")
	}
}

func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "unable to read body")
		return
	}
	if !chat.ValidateSignature(s.cfg.ChannelSecret, body, r.Header.Get("X-Line-Signature")) {
		s.logger.Error("webhook signature validation failed")
		writeError(w, http.StatusBadRequest, "invalid_signature", "signature validation failed")
		return
	}
	if err := validatePayload(body); err != nil {
		s.logger.Warn("webhook payload rejected", slog.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, "invalid_payload", err.Error())
		return
	}

	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_payload", "malformed json")
		return
	}
	for _, event := range payload.Events {
		s.dispatch(r.Context(), event)
	}

	// The pipeline never reports back through the webhook response;
	// failures past this point are visible via logs and /ops/status only.
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) dispatch(ctx context.Context, event inboundEvent) {
	if event.Type != "message" || event.Message == nil {
		return
	}
	switch event.Message.Type {
	case "text":
		_, err := s.intake.SubmitNote(event.Message.Text, s.now())
		s.record(err, "text", event.Message.ID)
	case "file":
		s.dispatchFile(ctx, event.Message)
	}
}

func (s *Server) dispatchFile(ctx context.Context, message *inboundMessage) {
	if s.fetcher == nil {
		s.record(errors.New("no content fetcher configured"), "file", message.ID)
		return
	}
	content, err := s.fetcher.GetMessageContent(ctx, message.ID)
	if err != nil {
		s.record(err, "file", message.ID)
		return
	}
	defer content.Close()
	_, err = s.intake.SubmitFile(content, message.FileName)
	s.record(err, "file", message.ID)
}

func (s *Server) record(err error, eventKind, messageID string) {
	if err != nil {
		s.dropped.Add(1)
		s.logger.Error("event dropped",
			slog.String("event", eventKind),
			slog.String("message", messageID),
			slog.String("error", err.Error()))
		return
	}
	s.accepted.Add(1)
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	var completed, failed uint64
	if s.worker != nil {
		completed, failed = s.worker.Stats()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"queueDepth":    s.queue.Depth(),
		"queueCapacity": s.queue.Capacity(),
		"accepted":      s.accepted.Load(),
		"dropped":       s.dropped.Load(),
		"completed":     completed,
		"failed":        failed,
	})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.feed == nil {
		writeError(w, http.StatusNotFound, "not_found", "event feed disabled")
		return
	}
	s.feed.handleWS(w, r)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"code":    code,
		"message": message,
	})
}
