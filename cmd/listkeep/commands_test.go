package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   string
	Auth   string
}

type testServer struct {
	server   *httptest.Server
	requests []recordedRequest
}

func newTestServer(t *testing.T, responses map[string]string) *testServer {
	t.Helper()
	ts := &testServer{}

	ts.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body bytes.Buffer
		body.ReadFrom(r.Body)

		ts.requests = append(ts.requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.RequestURI(),
			Body:   body.String(),
			Auth:   r.Header.Get("Authorization"),
		})

		key := r.Method + " " + r.URL.Path
		if resp, ok := responses[key]; ok {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(resp))
			return
		}

		w.WriteHeader(404)
		w.Write([]byte(`{"error":{"message":"not found","type":"not_found"}}`))
	}))

	t.Cleanup(ts.server.Close)
	return ts
}

func (ts *testServer) client() *apiClient {
	return &apiClient{
		baseURL:    ts.server.URL,
		token:      "test-token",
		httpClient: ts.server.Client(),
	}
}

var ctx = context.Background()

func TestAskRequest(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /requests": `{"outcome":"created","message":"Added \"milk\" to your list.","item_id":1}`,
	})

	client := ts.client()
	resp, err := client.post(ctx, "/requests", map[string]string{"text": "add milk to my list"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()

	var buf bytes.Buffer
	buf.ReadFrom(resp.Body)
	out, err := parseAskResponse(resp.StatusCode, buf.Bytes())
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if out.Outcome != "created" {
		t.Errorf("outcome = %q, want created", out.Outcome)
	}

	if len(ts.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(ts.requests))
	}
	r := ts.requests[0]
	if r.Auth != "Bearer test-token" {
		t.Errorf("auth = %q, want Bearer test-token", r.Auth)
	}

	var body map[string]string
	if err := json.Unmarshal([]byte(r.Body), &body); err != nil {
		t.Fatalf("body parse error: %v", err)
	}
	if body["text"] != "add milk to my list" {
		t.Errorf("body.text = %q, want the joined request", body["text"])
	}
}

func TestParseAskResponse(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		wantOutcome string
		wantErr     string
	}{
		{
			name:        "created",
			status:      201,
			body:        `{"outcome":"created","message":"Added \"milk\" to your list."}`,
			wantOutcome: "created",
		},
		{
			name:        "conflict body still parses",
			status:      409,
			body:        `{"outcome":"conflict","message":"\"milk\" is already on your list."}`,
			wantOutcome: "conflict",
		},
		{
			name:        "query with items",
			status:      200,
			body:        `{"outcome":"query","message":"2 items","items":[{"id":1,"content":"milk"},{"id":2,"content":"eggs"}]}`,
			wantOutcome: "query",
		},
		{
			name:    "error envelope",
			status:  401,
			body:    `{"error":{"message":"invalid or expired session","type":"auth_error"}}`,
			wantErr: "invalid or expired session",
		},
		{
			name:    "rate limited",
			status:  429,
			body:    `{"error":{"message":"too many requests","type":"rate_limit_error"}}`,
			wantErr: "too many requests",
		},
		{
			name:    "garbage body",
			status:  502,
			body:    `<html>Bad Gateway</html>`,
			wantErr: "server returned 502",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := parseAskResponse(tt.status, []byte(tt.body))
			if tt.wantErr != "" {
				if err == nil {
					t.Fatalf("expected error containing %q, got none", tt.wantErr)
				}
				if !strings.Contains(err.Error(), tt.wantErr) {
					t.Errorf("error = %q, want it to contain %q", err.Error(), tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if out.Outcome != tt.wantOutcome {
				t.Errorf("outcome = %q, want %q", out.Outcome, tt.wantOutcome)
			}
		})
	}
}

func TestParseAskResponse_Suggestion(t *testing.T) {
	body := `{"outcome":"rejected_ambiguous","message":"Which item do you mean?","suggestion":{"message":"Did you mean one of these?","items":["milk","oat milk"]}}`
	out, err := parseAskResponse(422, []byte(body))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Outcome != "rejected_ambiguous" {
		t.Errorf("outcome = %q, want rejected_ambiguous", out.Outcome)
	}
	if out.Suggestion == nil {
		t.Fatal("expected a suggestion")
	}
	if len(out.Suggestion.Items) != 2 {
		t.Errorf("suggestion items = %d, want 2", len(out.Suggestion.Items))
	}
}

func TestItemsCommandPath(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /items": `[{"id":1,"content":"milk"},{"id":2,"content":"eggs"}]`,
	})

	client := ts.client()
	resp, err := client.get(ctx, "/items")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var items []itemView
	if err := decodeJSON(resp, &items); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if items[0].Content != "milk" {
		t.Errorf("content = %q, want milk", items[0].Content)
	}
}

func TestHistoryLimitParam(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /requests/recent": `[{"input":"add milk","outcome":"created","created_at":"2025-06-01T10:00:00Z"}]`,
	})

	client := ts.client()
	resp, err := client.get(ctx, "/requests/recent?limit=5")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var entries []historyEntry
	if err := decodeJSON(resp, &entries); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].Outcome != "created" {
		t.Errorf("outcome = %q, want created", entries[0].Outcome)
	}

	if len(ts.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(ts.requests))
	}
	if !strings.Contains(ts.requests[0].Path, "limit=5") {
		t.Errorf("path = %q, want it to carry limit=5", ts.requests[0].Path)
	}
}

func TestBuildImportFiles(t *testing.T) {
	dir := t.TempDir()
	txtPath := filepath.Join(dir, "groceries.txt")
	htmlPath := filepath.Join(dir, "list.html")
	if err := os.WriteFile(txtPath, []byte("milk\neggs\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(htmlPath, []byte("<ul><li>bread</li></ul>"), 0o600); err != nil {
		t.Fatal(err)
	}

	files, err := buildImportFiles([]string{txtPath, htmlPath})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("expected 2 files, got %d", len(files))
	}

	if files[0].Name != "groceries.txt" {
		t.Errorf("name = %q, want groceries.txt", files[0].Name)
	}
	if files[0].Format != "text" {
		t.Errorf("format = %q, want text", files[0].Format)
	}
	decoded, err := base64.StdEncoding.DecodeString(files[0].Content)
	if err != nil {
		t.Fatalf("content is not base64: %v", err)
	}
	if string(decoded) != "milk\neggs\n" {
		t.Errorf("decoded content = %q", decoded)
	}

	if files[1].Format != "html" {
		t.Errorf("format = %q, want html", files[1].Format)
	}
}

func TestBuildImportFiles_MissingFile(t *testing.T) {
	_, err := buildImportFiles([]string{filepath.Join(t.TempDir(), "nope.txt")})
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !strings.Contains(err.Error(), "nope.txt") {
		t.Errorf("error = %q, want it to name the file", err.Error())
	}
}

func TestFormatForExt(t *testing.T) {
	tests := []struct {
		ext  string
		want string
	}{
		{".txt", "text"},
		{".md", "text"},
		{"", "text"},
		{".html", "html"},
		{".HTM", "html"},
		{".pdf", "pdf"},
		{".PDF", "pdf"},
	}
	for _, tt := range tests {
		if got := formatForExt(tt.ext); got != tt.want {
			t.Errorf("formatForExt(%q) = %q, want %q", tt.ext, got, tt.want)
		}
	}
}

func TestRegisterCommand_MissingArgs(t *testing.T) {
	defer rootCmd.SetArgs(nil)

	rootCmd.SetArgs([]string{"register"})
	err := rootCmd.Execute()
	if err == nil {
		t.Fatal("expected error for missing email")
	}
	if !strings.Contains(err.Error(), "accepts 1 arg") {
		t.Errorf("error = %q, want it to mention 'accepts 1 arg'", err.Error())
	}
}

func TestAskCommand_MissingArgs(t *testing.T) {
	defer rootCmd.SetArgs(nil)

	rootCmd.SetArgs([]string{"ask"})
	err := rootCmd.Execute()
	if err == nil {
		t.Fatal("expected error for missing text")
	}
	if !strings.Contains(err.Error(), "requires at least 1 arg") {
		t.Errorf("error = %q, want it to mention 'requires at least 1 arg'", err.Error())
	}
}

func TestSessionTokenRoundTrip(t *testing.T) {
	dir := t.TempDir()

	if _, err := loadToken(dir); err == nil {
		t.Fatal("expected error before any token is saved")
	}

	if err := saveToken(dir, "tok-abc123"); err != nil {
		t.Fatalf("save error: %v", err)
	}
	token, err := loadToken(dir)
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	if token != "tok-abc123" {
		t.Errorf("token = %q, want tok-abc123", token)
	}

	clearToken(dir)
	if _, err := loadToken(dir); err == nil {
		t.Fatal("expected error after clearing the token")
	}
}

func TestRequireLogin(t *testing.T) {
	err := requireLogin(&apiClient{})
	if err == nil {
		t.Fatal("expected error without a token")
	}
	if !strings.Contains(err.Error(), "listkeep login") {
		t.Errorf("error = %q, want it to point at the login command", err.Error())
	}

	if err := requireLogin(&apiClient{token: "tok"}); err != nil {
		t.Errorf("unexpected error with a token: %v", err)
	}
}

func TestAPIClientAuth(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /health": `{"status":"ok"}`,
	})

	client := ts.client()
	client.token = "my-secret-token"

	resp, err := client.get(ctx, "/health")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()

	if len(ts.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(ts.requests))
	}
	if ts.requests[0].Auth != "Bearer my-secret-token" {
		t.Errorf("auth = %q, want 'Bearer my-secret-token'", ts.requests[0].Auth)
	}
}

func TestAPIClientNoToken(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /health": `{"status":"ok"}`,
	})

	client := ts.client()
	client.token = ""

	resp, err := client.get(ctx, "/health")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()

	if ts.requests[0].Auth != "" {
		t.Errorf("auth = %q, want no Authorization header", ts.requests[0].Auth)
	}
}

func TestStatusCommand_Stopped(t *testing.T) {
	ts := newTestServer(t, map[string]string{})
	ts.server.Close()

	client := ts.client()
	_, err := client.get(ctx, "/health")
	if err == nil {
		t.Fatal("expected error for stopped server")
	}
	if !strings.Contains(err.Error(), "not reachable") {
		t.Errorf("error = %q, want it to mention 'not reachable'", err.Error())
	}
}

func TestDecodeJSON_ErrorResponse(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(401)
		w.Write([]byte(`{"error":{"message":"unauthorized","type":"auth_error"}}`))
	}))
	defer ts.Close()

	client := &apiClient{
		baseURL:    ts.URL,
		token:      "bad-token",
		httpClient: ts.Client(),
	}

	resp, err := client.get(ctx, "/items")
	if err != nil {
		t.Fatalf("unexpected transport error: %v", err)
	}

	var result any
	err = decodeJSON(resp, &result)
	if err == nil {
		t.Fatal("expected error for 401 response")
	}
	if !strings.Contains(err.Error(), "401") {
		t.Errorf("error = %q, want it to contain '401'", err.Error())
	}
}

func TestNoColorFlag(t *testing.T) {
	old := noColor
	defer func() { noColor = old }()

	noColor = true
	result := colorize(colorGreen, "test message")
	if strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=true should not contain ANSI codes, got %q", result)
	}
	if result != "test message" {
		t.Errorf("result = %q, want %q", result, "test message")
	}

	noColor = false
	result = colorize(colorGreen, "test message")
	if !strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=false should contain ANSI codes, got %q", result)
	}
}

func TestOutcomeColor(t *testing.T) {
	if outcomeColor("created") != colorGreen {
		t.Error("created should be green")
	}
	if outcomeColor("conflict") != colorYellow {
		t.Error("conflict should be yellow")
	}
	if outcomeColor("internal_error") != colorRed {
		t.Error("internal_error should be red")
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 60); got != "short" {
		t.Errorf("truncate(short) = %q", got)
	}
	long := strings.Repeat("x", 80)
	got := truncate(long, 60)
	if len(got) != 60 {
		t.Errorf("len = %d, want 60", len(got))
	}
	if !strings.HasSuffix(got, "...") {
		t.Errorf("truncated string should end with ..., got %q", got)
	}
}

func TestPIDFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := pidFilePath(dir)

	if err := writePIDFile(path); err != nil {
		t.Fatalf("write error: %v", err)
	}
	pid, err := readPIDFile(path)
	if err != nil {
		t.Fatalf("read error: %v", err)
	}
	if pid != os.Getpid() {
		t.Errorf("pid = %d, want %d", pid, os.Getpid())
	}

	removePIDFile(path)
	if _, err := readPIDFile(path); err == nil {
		t.Fatal("expected error after removing PID file")
	}
}
