package sheets

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func staticToken(token string) AccessTokenProvider {
	return func(ctx context.Context) (string, error) {
		return token, nil
	}
}

func newTestClient(t *testing.T, url string) *Client {
	t.Helper()
	client, err := NewClient(ClientOptions{
		BaseURL:       url,
		SpreadsheetID: "sheet_1",
		TokenProvider: staticToken("tok"),
	})
	if err != nil {
		t.Fatalf("new client failed: %v", err)
	}
	return client
}

func TestGetRangeNormalizesCellValues(t *testing.T) {
	var gotPath, gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`{"values":[["Timestamp","Memo","Link"],["2024/05/02 09:30:00",42,true],[null]]}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	values, err := client.GetRange(context.Background(), "A:C")
	if err != nil {
		t.Fatalf("get range failed: %v", err)
	}
	if gotPath != "/v4/spreadsheets/sheet_1/values/A:C" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	if gotAuth != "Bearer tok" {
		t.Fatalf("unexpected authorization %q", gotAuth)
	}
	if len(values) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(values))
	}
	if values[1][1] != "42" || values[1][2] != "true" {
		t.Fatalf("expected loose cells normalized to strings, got %v", values[1])
	}
	if values[2][0] != "" {
		t.Fatalf("expected null cell to read as empty, got %q", values[2][0])
	}
}

func TestUpdateRangePutsRawValues(t *testing.T) {
	var gotMethod, gotQuery, gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotQuery = r.URL.RawQuery
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	err := client.UpdateRange(context.Background(), "C2", [][]string{{"https://blob.example/x/view"}})
	if err != nil {
		t.Fatalf("update range failed: %v", err)
	}
	if gotMethod != http.MethodPut {
		t.Fatalf("expected PUT, got %s", gotMethod)
	}
	if gotQuery != "valueInputOption=RAW" {
		t.Fatalf("unexpected query %q", gotQuery)
	}
	if gotBody != `{"values":[["https://blob.example/x/view"]]}` {
		t.Fatalf("unexpected body %q", gotBody)
	}
}

func TestAppendRangePostsToAppendEndpoint(t *testing.T) {
	var gotMethod, gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	err := client.AppendRange(context.Background(), "A:C", [][]string{{"ts", "memo", ""}})
	if err != nil {
		t.Fatalf("append range failed: %v", err)
	}
	if gotMethod != http.MethodPost {
		t.Fatalf("expected POST, got %s", gotMethod)
	}
	if gotPath != "/v4/spreadsheets/sheet_1/values/A:C:append" {
		t.Fatalf("unexpected path %q", gotPath)
	}
}

func TestClientSurfacesHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	_, err := client.GetRange(context.Background(), "A:C")
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("expected HTTPError, got %v", err)
	}
	if httpErr.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("unexpected status %d", httpErr.StatusCode)
	}
}

func TestNewClientRequiresSpreadsheetID(t *testing.T) {
	if _, err := NewClient(ClientOptions{}); err == nil {
		t.Fatalf("expected error for missing spreadsheet id")
	}
}
