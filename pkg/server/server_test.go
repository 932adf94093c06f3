package server_test

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/faheem-arif/pii-scrubber/pkg/api"
	"github.com/faheem-arif/pii-scrubber/pkg/scanners"
	"github.com/faheem-arif/pii-scrubber/pkg/scrub"
	"github.com/faheem-arif/pii-scrubber/pkg/server"
	"github.com/faheem-arif/pii-scrubber/pkg/storage"
)

func newTestServer(t *testing.T, defaults scrub.Options) (*server.Server, *storage.MemoryStore) {
	t.Helper()

	store := storage.NewMemoryStore()
	config := server.DefaultConfig()
	config.Host = "127.0.0.1"
	config.Port = 0 // Random available port

	srv, err := server.New(config, scrub.NewEngine(), defaults, store, nil)
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}
	return srv, store
}

func startTestServer(t *testing.T) (*server.Server, string) {
	t.Helper()
	srv, _ := newTestServer(t, scrub.DefaultOptions())

	if err := srv.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}

	time.Sleep(50 * time.Millisecond)

	baseURL := fmt.Sprintf("http://%s", srv.Addr())
	return srv, baseURL
}

func postScrub(t *testing.T, baseURL string, req any) (int, []byte) {
	t.Helper()
	body, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("Failed to encode request: %v", err)
	}

	resp, err := http.Post(baseURL+"/v1/scrub", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read response: %v", err)
	}
	return resp.StatusCode, data
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		t.Fatalf("Failed to decode response %s: %v", data, err)
	}
	return v
}

func TestServer_StartStop(t *testing.T) {
	srv, _ := newTestServer(t, scrub.DefaultOptions())

	// Server should not be running initially
	if srv.IsRunning() {
		t.Error("Server should not be running before Start()")
	}

	if err := srv.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}

	time.Sleep(50 * time.Millisecond)

	if !srv.IsRunning() {
		t.Error("Server should be running after Start()")
	}
	if err := srv.Start(); err == nil {
		t.Error("Expected error when starting twice")
	}

	if err := srv.Stop(); err != nil {
		t.Errorf("Failed to stop server: %v", err)
	}

	if srv.IsRunning() {
		t.Error("Server should not be running after Stop()")
	}
}

func TestServer_HealthEndpoint(t *testing.T) {
	srv, baseURL := startTestServer(t)
	defer srv.Stop()

	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	var result api.HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if result.Status != "healthy" {
		t.Errorf("Expected status 'healthy', got %q", result.Status)
	}
}

func TestServer_ReadyEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, scrub.DefaultOptions())
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/ready")
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	empty, err := server.New(server.DefaultConfig(), &scrub.Engine{}, scrub.DefaultOptions(), nil, nil)
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}
	rec := httptest.NewRecorder()
	empty.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status 503 without detectors, got %d", rec.Code)
	}
}

func TestServer_Scrub(t *testing.T) {
	srv, _ := newTestServer(t, scrub.DefaultOptions())
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	tokenMap := "token-map"
	keepLast := 2

	tests := []struct {
		name        string
		req         api.ScrubRequest
		wantText    string
		wantMode    scrub.Mode
		wantMapping bool
	}{
		{
			name:     "server default redact",
			req:      api.ScrubRequest{Text: "contact alice@example.com now"},
			wantText: "contact [EMAIL_REDACTED] now",
			wantMode: scrub.ModeRedact,
		},
		{
			name: "token map override",
			req: api.ScrubRequest{
				Text:    "a@b.io and a@b.io",
				Options: &api.RequestOptions{Mode: &tokenMap},
			},
			wantText:    "[[EMAIL:1]] and [[EMAIL:1]]",
			wantMode:    scrub.ModeTokenMap,
			wantMapping: true,
		},
		{
			name: "keep last override",
			req: api.ScrubRequest{
				Text:    "host 10.1.2.34",
				Options: &api.RequestOptions{KeepLast: &keepLast},
			},
			wantText: "host [IPV4_REDACTED]:34",
			wantMode: scrub.ModeRedact,
		},
		{
			name:     "empty text",
			req:      api.ScrubRequest{Text: ""},
			wantText: "",
			wantMode: scrub.ModeRedact,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, data := postScrub(t, ts.URL, tt.req)
			if status != http.StatusOK {
				t.Fatalf("Expected status 200, got %d: %s", status, data)
			}

			result := decode[api.ScrubResponse](t, data)
			if result.ScrubbedText != tt.wantText {
				t.Errorf("Expected %q, got %q", tt.wantText, result.ScrubbedText)
			}
			if result.Mode != tt.wantMode {
				t.Errorf("Expected mode %s, got %s", tt.wantMode, result.Mode)
			}
			if _, err := uuid.Parse(result.RunID); err != nil {
				t.Errorf("Expected UUID run id, got %q", result.RunID)
			}
			if (result.MappingJSONL != "") != tt.wantMapping {
				t.Errorf("Unexpected mapping presence: %q", result.MappingJSONL)
			}
			if result.Report.Findings == nil {
				t.Error("Expected findings to be a list, got null")
			}
		})
	}
}

func TestServer_ScrubMappingLog(t *testing.T) {
	srv, _ := newTestServer(t, scrub.Options{Mode: scrub.ModeTokenMap})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	status, data := postScrub(t, ts.URL, api.ScrubRequest{Text: "ping 10.0.0.1"})
	if status != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", status)
	}

	result := decode[api.ScrubResponse](t, data)
	if result.ScrubbedText != "ping [[IPV4:1]]" {
		t.Errorf("Unexpected output: %q", result.ScrubbedText)
	}
	if !strings.Contains(result.MappingJSONL, `"token":"IPV4:1"`) || !strings.Contains(result.MappingJSONL, `"original":"10.0.0.1"`) {
		t.Errorf("Unexpected mapping: %s", result.MappingJSONL)
	}
}

func TestServer_ScrubHash(t *testing.T) {
	withSalt, _ := newTestServer(t, scrub.Options{Mode: scrub.ModeHash, HashSalt: "pepper"})
	ts := httptest.NewServer(withSalt.Handler())
	defer ts.Close()

	status, data := postScrub(t, ts.URL, api.ScrubRequest{Text: "mail bob@example.com"})
	if status != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", status)
	}
	result := decode[api.ScrubResponse](t, data)
	if !strings.HasPrefix(result.ScrubbedText, "mail EMAIL_SHA256:") {
		t.Errorf("Unexpected output: %q", result.ScrubbedText)
	}
	if strings.Contains(string(data), "pepper") {
		t.Error("Salt leaked into response")
	}
}

func TestServer_ScrubErrors(t *testing.T) {
	srv, store := newTestServer(t, scrub.DefaultOptions())
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	hash := "hash"
	bogus := "rot13"

	tests := []struct {
		name     string
		body     string
		wantCode int
		wantErr  string
	}{
		{
			name:     "malformed json",
			body:     `{"text": `,
			wantCode: http.StatusBadRequest,
			wantErr:  api.CodeInvalidRequest,
		},
		{
			name:     "hash without configured salt",
			body:     mustJSON(t, api.ScrubRequest{Text: "a@b.io", Options: &api.RequestOptions{Mode: &hash}}),
			wantCode: http.StatusBadRequest,
			wantErr:  api.CodeInvalidOptions,
		},
		{
			name:     "unknown mode",
			body:     mustJSON(t, api.ScrubRequest{Text: "a@b.io", Options: &api.RequestOptions{Mode: &bogus}}),
			wantCode: http.StatusBadRequest,
			wantErr:  api.CodeInvalidOptions,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(ts.URL+"/v1/scrub", "application/json", strings.NewReader(tt.body))
			if err != nil {
				t.Fatalf("Failed to make request: %v", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != tt.wantCode {
				t.Errorf("Expected status %d, got %d", tt.wantCode, resp.StatusCode)
			}
			var result api.ErrorResponse
			if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
				t.Fatalf("Failed to decode response: %v", err)
			}
			if result.Code != tt.wantErr {
				t.Errorf("Expected code %q, got %q", tt.wantErr, result.Code)
			}
		})
	}

	if runs, _ := store.Query(storage.QueryOptions{}); len(runs) != 0 {
		t.Errorf("Expected no runs recorded for failed requests, got %d", len(runs))
	}
}

func TestServer_BodyLimit(t *testing.T) {
	config := server.DefaultConfig()
	config.MaxBodyBytes = 64
	srv, err := server.New(config, nil, scrub.DefaultOptions(), nil, nil)
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	status, data := postScrub(t, ts.URL, api.ScrubRequest{Text: strings.Repeat("x", 200)})
	if status != http.StatusRequestEntityTooLarge {
		t.Fatalf("Expected status 413, got %d: %s", status, data)
	}
	if result := decode[api.ErrorResponse](t, data); result.Code != api.CodeTooLarge {
		t.Errorf("Expected code %q, got %q", api.CodeTooLarge, result.Code)
	}
}

func TestServer_Detectors(t *testing.T) {
	srv, _ := newTestServer(t, scrub.DefaultOptions())
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/detectors", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}
	result := decode[api.DetectorsResponse](t, rec.Body.Bytes())

	registry := scanners.DefaultScanners()
	if len(result.Detectors) != len(registry) {
		t.Fatalf("Expected %d detectors, got %d", len(registry), len(result.Detectors))
	}
	for i, sc := range registry {
		if result.Detectors[i].ID != sc.Name() || result.Detectors[i].Category != sc.Category() {
			t.Errorf("Detector %d = %+v, want %s/%s", i, result.Detectors[i], sc.Name(), sc.Category())
		}
	}
	if len(result.Modes) != 3 {
		t.Errorf("Expected 3 modes, got %v", result.Modes)
	}
}

func TestServer_Audits(t *testing.T) {
	srv, _ := newTestServer(t, scrub.DefaultOptions())
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	for _, text := range []string{"a@b.io", "10.0.0.1 and c@d.io"} {
		if status, _ := postScrub(t, ts.URL, api.ScrubRequest{Text: text}); status != http.StatusOK {
			t.Fatalf("Scrub failed with status %d", status)
		}
	}

	tests := []struct {
		query    string
		wantCode int
		wantRuns int
	}{
		{"", http.StatusOK, 2},
		{"?limit=1", http.StatusOK, 1},
		{"?mode=hash", http.StatusOK, 0},
		{"?limit=0", http.StatusBadRequest, 0},
		{"?limit=abc", http.StatusBadRequest, 0},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			resp, err := http.Get(ts.URL + "/v1/audits" + tt.query)
			if err != nil {
				t.Fatalf("Failed to make request: %v", err)
			}
			defer resp.Body.Close()
			data, _ := io.ReadAll(resp.Body)

			if resp.StatusCode != tt.wantCode {
				t.Fatalf("Expected status %d, got %d", tt.wantCode, resp.StatusCode)
			}
			if tt.wantCode != http.StatusOK {
				return
			}
			if strings.Contains(string(data), "a@b.io") {
				t.Error("Audit records leaked a matched value")
			}
			result := decode[api.AuditsResponse](t, data)
			if len(result.Runs) != tt.wantRuns {
				t.Errorf("Expected %d runs, got %d", tt.wantRuns, len(result.Runs))
			}
		})
	}
}

func TestServer_Stats(t *testing.T) {
	srv, _ := newTestServer(t, scrub.DefaultOptions())
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	postScrub(t, ts.URL, api.ScrubRequest{Text: "a@b.io c@d.io"})

	resp, err := http.Get(ts.URL + "/v1/stats")
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}
	defer resp.Body.Close()

	var result server.StatsResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if result.DefaultMode != "redact" {
		t.Errorf("Expected default mode redact, got %q", result.DefaultMode)
	}
	if result.Runs == nil || result.Runs.TotalRuns != 1 || result.Runs.ByType["email"] != 2 {
		t.Errorf("Unexpected run stats: %+v", result.Runs)
	}
}

func TestServer_SetOptions(t *testing.T) {
	if _, err := server.New(server.DefaultConfig(), nil, scrub.Options{Mode: scrub.ModeHash}, nil, nil); err == nil {
		t.Error("Expected error for hash defaults without salt")
	}

	srv, _ := newTestServer(t, scrub.DefaultOptions())
	if err := srv.SetOptions(scrub.Options{Mode: "bogus"}); err == nil {
		t.Error("Expected error for invalid mode")
	}
	if srv.Options().Mode != scrub.ModeRedact {
		t.Errorf("Expected previous options to stay, got %s", srv.Options().Mode)
	}

	if err := srv.SetOptions(scrub.Options{Mode: scrub.ModeTokenMap}); err != nil {
		t.Fatalf("SetOptions() error = %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	_, data := postScrub(t, ts.URL, api.ScrubRequest{Text: "a@b.io"})
	if result := decode[api.ScrubResponse](t, data); result.ScrubbedText != "[[EMAIL:1]]" {
		t.Errorf("Expected swapped defaults to apply, got %q", result.ScrubbedText)
	}
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}
