// Package drive implements the blob storage backend client: object
// creation, anyone-with-link visibility, and deterministic public links.
package drive

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"
)

type AccessTokenProvider func(ctx context.Context) (string, error)

type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Message)
}

type ClientOptions struct {
	BaseURL       string
	LinkBaseURL   string
	TokenProvider AccessTokenProvider
	HTTPClient    *http.Client
	UserAgent     string
}

// Client talks to a Drive-style files API. It performs no retries of its
// own; the pipeline's uploader owns the retry policy.
type Client struct {
	baseURL       string
	linkBaseURL   string
	tokenProvider AccessTokenProvider
	httpClient    *http.Client
	userAgent     string
}

func NewClient(opts ClientOptions) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://www.googleapis.com"
	}
	linkBaseURL := strings.TrimRight(strings.TrimSpace(opts.LinkBaseURL), "/")
	if linkBaseURL == "" {
		linkBaseURL = "https://drive.google.com"
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &Client{
		baseURL:       baseURL,
		linkBaseURL:   linkBaseURL,
		tokenProvider: opts.TokenProvider,
		httpClient:    httpClient,
		userAgent:     strings.TrimSpace(opts.UserAgent),
	}
}

// Create uploads content as a new object and returns its object ID.
func (c *Client) Create(ctx context.Context, content io.Reader, name string) (string, error) {
	if content == nil || strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("drive create: missing content or name")
	}

	var body strings.Builder
	writer := multipart.NewWriter(&body)

	metaHeader := textproto.MIMEHeader{}
	metaHeader.Set("Content-Type", "application/json; charset=UTF-8")
	metaPart, err := writer.CreatePart(metaHeader)
	if err != nil {
		return "", err
	}
	metadata, err := json.Marshal(map[string]string{"name": name})
	if err != nil {
		return "", err
	}
	if _, err := metaPart.Write(metadata); err != nil {
		return "", err
	}

	contentHeader := textproto.MIMEHeader{}
	contentHeader.Set("Content-Type", "application/octet-stream")
	contentPart, err := writer.CreatePart(contentHeader)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(contentPart, content); err != nil {
		return "", err
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	url := c.baseURL + "/upload/drive/v3/files?uploadType=multipart&fields=id"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(body.String()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "multipart/related; boundary="+writer.Boundary())
	if err := c.authorize(ctx, req); err != nil {
		return "", err
	}

	respBody, err := c.do(req)
	if err != nil {
		return "", err
	}
	var created struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(respBody, &created); err != nil {
		return "", err
	}
	if strings.TrimSpace(created.ID) == "" {
		return "", fmt.Errorf("drive create: response missing object id")
	}
	return created.ID, nil
}

// SetPublic grants anyone-with-the-link read access to the object.
func (c *Client) SetPublic(ctx context.Context, objectID string) error {
	objectID = strings.TrimSpace(objectID)
	if objectID == "" {
		return fmt.Errorf("drive set public: missing object id")
	}
	payload := `{"type":"anyone","role":"reader"}`
	url := c.baseURL + "/drive/v3/files/" + objectID + "/permissions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if err := c.authorize(ctx, req); err != nil {
		return err
	}
	_, err = c.do(req)
	return err
}

// PublicLink derives the shareable view link from an object ID.
func (c *Client) PublicLink(objectID string) string {
	return c.linkBaseURL + "/file/d/" + strings.TrimSpace(objectID) + "/view"
}

func (c *Client) authorize(ctx context.Context, req *http.Request) error {
	if c.tokenProvider == nil {
		return fmt.Errorf("drive client: token provider is required")
	}
	token, err := c.tokenProvider(ctx)
	if err != nil {
		return err
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("drive client: token is empty")
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	return nil
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	respBody, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return nil, readErr
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPError{
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(respBody)),
		}
	}
	return respBody, nil
}
