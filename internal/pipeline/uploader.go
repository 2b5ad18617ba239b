package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// BlobStore is the durable content store the uploader writes to.
type BlobStore interface {
	Create(ctx context.Context, content io.Reader, name string) (objectID string, err error)
	SetPublic(ctx context.Context, objectID string) error
	PublicLink(objectID string) string
}

const (
	defaultUploadAttempts   = 5
	defaultUploadBaseDelay  = 2 * time.Second
	defaultUploadMultiplier = 2
)

type UploaderOptions struct {
	Store       BlobStore
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  int
	Logger      *slog.Logger
}

// Uploader pushes a local file to the blob store and widens the object's
// visibility to anyone-with-the-link. Both steps run inside one attempt,
// so a link is only ever returned for an object that is already readable.
// Failures are treated as transient and retried with exponential backoff.
type Uploader struct {
	store       BlobStore
	maxAttempts int
	baseDelay   time.Duration
	multiplier  int
	logger      *slog.Logger
}

func NewUploader(opts UploaderOptions) (*Uploader, error) {
	if opts.Store == nil {
		return nil, ErrInvalidInput
	}
	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultUploadAttempts
	}
	baseDelay := opts.BaseDelay
	if baseDelay <= 0 {
		baseDelay = defaultUploadBaseDelay
	}
	multiplier := opts.Multiplier
	if multiplier <= 1 {
		multiplier = defaultUploadMultiplier
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Uploader{
		store:       opts.Store,
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		multiplier:  multiplier,
		logger:      logger,
	}, nil
}

// Upload returns the public link of the stored object, or ErrUploadFailed
// once every attempt is exhausted.
func (u *Uploader) Upload(ctx context.Context, localPath, displayName string) (string, error) {
	if strings.TrimSpace(localPath) == "" || strings.TrimSpace(displayName) == "" {
		return "", ErrInvalidInput
	}
	if _, err := os.Stat(localPath); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	delay := u.baseDelay
	var lastErr error
	for attempt := 1; attempt <= u.maxAttempts; attempt++ {
		link, err := u.attempt(ctx, localPath, displayName)
		if err == nil {
			return link, nil
		}
		lastErr = err
		u.logger.Warn("upload attempt failed",
			slog.Int("attempt", attempt),
			slog.String("name", displayName),
			slog.String("error", err.Error()))
		if attempt == u.maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("%w: %v", ErrUploadFailed, ctx.Err())
		case <-time.After(delay):
		}
		delay *= time.Duration(u.multiplier)
	}
	return "", fmt.Errorf("%w after %d attempts: %v", ErrUploadFailed, u.maxAttempts, lastErr)
}

func (u *Uploader) attempt(ctx context.Context, localPath, displayName string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	objectID, err := u.store.Create(ctx, f, displayName)
	if err != nil {
		return "", err
	}
	if err := u.store.SetPublic(ctx, objectID); err != nil {
		return "", err
	}
	return u.store.PublicLink(objectID), nil
}
