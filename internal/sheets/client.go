// Package sheets implements the ledger backend client: range-based reads
// and writes over a spreadsheet values API.
package sheets

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
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
	SpreadsheetID string
	TokenProvider AccessTokenProvider
	HTTPClient    *http.Client
	UserAgent     string
}

type Client struct {
	baseURL       string
	spreadsheetID string
	tokenProvider AccessTokenProvider
	httpClient    *http.Client
	userAgent     string
}

func NewClient(opts ClientOptions) (*Client, error) {
	spreadsheetID := strings.TrimSpace(opts.SpreadsheetID)
	if spreadsheetID == "" {
		return nil, fmt.Errorf("sheets client: spreadsheet id is required")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://sheets.googleapis.com"
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 20 * time.Second}
	}
	return &Client{
		baseURL:       baseURL,
		spreadsheetID: spreadsheetID,
		tokenProvider: opts.TokenProvider,
		httpClient:    httpClient,
		userAgent:     strings.TrimSpace(opts.UserAgent),
	}, nil
}

// GetRange reads the cells in an A1-style range. Cells arrive as loosely
// typed JSON values and are normalized to strings.
func (c *Client) GetRange(ctx context.Context, rng string) ([][]string, error) {
	reqURL := c.valuesURL(rng, "")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	if err := c.authorize(ctx, req); err != nil {
		return nil, err
	}
	respBody, err := c.do(req)
	if err != nil {
		return nil, err
	}
	var payload struct {
		Values [][]any `json:"values"`
	}
	if err := json.Unmarshal(respBody, &payload); err != nil {
		return nil, err
	}
	values := make([][]string, 0, len(payload.Values))
	for _, row := range payload.Values {
		cells := make([]string, 0, len(row))
		for _, cell := range row {
			cells = append(cells, cellString(cell))
		}
		values = append(values, cells)
	}
	return values, nil
}

// UpdateRange overwrites the cells in an A1-style range.
func (c *Client) UpdateRange(ctx context.Context, rng string, values [][]string) error {
	body, err := marshalValues(values)
	if err != nil {
		return err
	}
	reqURL := c.valuesURL(rng, "") + "?valueInputOption=RAW"
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, reqURL, bytes.NewReader(body))
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

// AppendRange appends rows after the last populated row of the range.
func (c *Client) AppendRange(ctx context.Context, rng string, values [][]string) error {
	body, err := marshalValues(values)
	if err != nil {
		return err
	}
	reqURL := c.valuesURL(rng, ":append") + "?valueInputOption=RAW"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
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

func (c *Client) valuesURL(rng, suffix string) string {
	return c.baseURL + "/v4/spreadsheets/" + url.PathEscape(c.spreadsheetID) +
		"/values/" + url.PathEscape(rng) + suffix
}

func (c *Client) authorize(ctx context.Context, req *http.Request) error {
	if c.tokenProvider == nil {
		return fmt.Errorf("sheets client: token provider is required")
	}
	token, err := c.tokenProvider(ctx)
	if err != nil {
		return err
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("sheets client: token is empty")
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

func marshalValues(values [][]string) ([]byte, error) {
	return json.Marshal(map[string][][]string{"values": values})
}

func cellString(cell any) string {
	switch v := cell.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", v)
	}
}
