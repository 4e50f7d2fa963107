package httpserver

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"pastekeep/internal/service"
	"pastekeep/internal/storage/sqlitestore"
)

func newTestServer(t *testing.T, mutate func(*Config)) *httptest.Server {
	t.Helper()

	store, err := sqlitestore.Open(filepath.Join(t.TempDir(), "pastes.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	svc, err := service.New(service.Config{Store: store})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	cfg := Config{
		Service: svc,
		CurrentUser: func(r *http.Request) string {
			return r.Header.Get("X-Test-User")
		},
	}
	if mutate != nil {
		mutate(&cfg)
	}
	srv, err := New(cfg)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func doJSON(t *testing.T, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	var out bytes.Buffer
	if _, err := out.ReadFrom(resp.Body); err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, out.Bytes()
}

func createPaste(t *testing.T, ts *httptest.Server, req createRequest, user string) string {
	t.Helper()
	headers := map[string]string{}
	if user != "" {
		headers["X-Test-User"] = user
	}
	resp, body := doJSON(t, http.MethodPost, ts.URL+"/api/pastes", req, headers)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create: status %d body %s", resp.StatusCode, body)
	}
	var created createResponse
	if err := json.Unmarshal(body, &created); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	return created.Slug
}

func TestCreateAndFetchFlow(t *testing.T) {
	ts := newTestServer(t, nil)

	slug := createPaste(t, ts, createRequest{
		Content:  "hello world",
		Title:    "greeting",
		Language: "text",
		Tags:     []string{"demo"},
	}, "")

	resp, body := doJSON(t, http.MethodGet, ts.URL+"/api/pastes/"+slug, nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get: status %d body %s", resp.StatusCode, body)
	}
	var got pasteResponse
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Content != "hello world" || got.Views != 1 || got.Burned {
		t.Fatalf("unexpected response: %+v", got)
	}
	if len(got.Tags) != 1 || got.Tags[0].Name != "demo" {
		t.Fatalf("unexpected tags: %+v", got.Tags)
	}

	resp, body = doJSON(t, http.MethodGet, ts.URL+"/api/pastes/"+slug+"/raw", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("raw: status %d", resp.StatusCode)
	}
	if string(body) != "hello world" {
		t.Fatalf("raw body %q", body)
	}
	if cc := resp.Header.Get("Cache-Control"); cc != "no-store" {
		t.Fatalf("raw Cache-Control %q", cc)
	}
}

func TestGetUnknownSlug(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, body := doJSON(t, http.MethodGet, ts.URL+"/api/pastes/missing1", nil, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status %d body %s", resp.StatusCode, body)
	}
	var errResp errorResponse
	if err := json.Unmarshal(body, &errResp); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if errResp.Code != "not_found" {
		t.Fatalf("code %q", errResp.Code)
	}
}

func TestBurnAfterReadOverHTTP(t *testing.T) {
	ts := newTestServer(t, nil)

	slug := createPaste(t, ts, createRequest{Content: "once", BurnAfterRead: true}, "")

	resp, body := doJSON(t, http.MethodGet, ts.URL+"/api/pastes/"+slug, nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("first read: status %d", resp.StatusCode)
	}
	var first pasteResponse
	if err := json.Unmarshal(body, &first); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !first.Burned || first.Content != "once" {
		t.Fatalf("first read: %+v", first)
	}

	resp, _ = doJSON(t, http.MethodGet, ts.URL+"/api/pastes/"+slug, nil, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("second read: status %d, want 404", resp.StatusCode)
	}
}

func TestPasswordStatuses(t *testing.T) {
	ts := newTestServer(t, nil)

	slug := createPaste(t, ts, createRequest{Content: "guarded", Password: "sekret"}, "")
	url := ts.URL + "/api/pastes/" + slug

	resp, body := doJSON(t, http.MethodGet, url, nil, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("no password: status %d body %s", resp.StatusCode, body)
	}
	resp, _ = doJSON(t, http.MethodGet, url, nil, map[string]string{"X-Paste-Password": "wrong"})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("wrong password: status %d", resp.StatusCode)
	}
	resp, body = doJSON(t, http.MethodGet, url, nil, map[string]string{"X-Paste-Password": "sekret"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("correct password: status %d body %s", resp.StatusCode, body)
	}

	// The query parameter works as a fallback carrier.
	resp, _ = doJSON(t, http.MethodGet, url+"?password=sekret", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("query password: status %d", resp.StatusCode)
	}
}

func TestCustomSlugConflict(t *testing.T) {
	ts := newTestServer(t, nil)

	createPaste(t, ts, createRequest{Content: "x", CustomSlug: "my-slug"}, "")

	resp, body := doJSON(t, http.MethodPost, ts.URL+"/api/pastes", createRequest{Content: "y", CustomSlug: "my-slug"}, nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status %d body %s", resp.StatusCode, body)
	}

	resp, body = doJSON(t, http.MethodGet, ts.URL+"/api/slugs/my-slug", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("slug check: status %d", resp.StatusCode)
	}
	var check map[string]bool
	if err := json.Unmarshal(body, &check); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if check["available"] {
		t.Fatalf("expected my-slug unavailable")
	}
}

func TestValidationStatus(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, body := doJSON(t, http.MethodPost, ts.URL+"/api/pastes", createRequest{Content: ""}, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status %d body %s", resp.StatusCode, body)
	}
	var errResp errorResponse
	if err := json.Unmarshal(body, &errResp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if errResp.Code != "invalid" {
		t.Fatalf("code %q", errResp.Code)
	}

	// Unknown JSON fields are rejected rather than silently dropped.
	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/api/pastes", bytes.NewBufferString(`{"content":"x","bogus":true}`))
	req.Header.Set("Content-Type", "application/json")
	raw, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	raw.Body.Close()
	if raw.StatusCode != http.StatusBadRequest {
		t.Fatalf("unknown field: status %d", raw.StatusCode)
	}
}

func TestDeleteAndUpdateAuth(t *testing.T) {
	ts := newTestServer(t, nil)

	slug := createPaste(t, ts, createRequest{Content: "mine"}, "alice")

	// First insert in a fresh database is row id 1.
	deleteURL := ts.URL + "/api/pastes/1"

	resp, _ := doJSON(t, http.MethodDelete, deleteURL, nil, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("anonymous delete: status %d", resp.StatusCode)
	}
	resp, _ = doJSON(t, http.MethodDelete, deleteURL, nil, map[string]string{"X-Test-User": "mallory"})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("stranger delete: status %d", resp.StatusCode)
	}

	unlisted := "unlisted"
	resp, _ = doJSON(t, http.MethodPatch, deleteURL, updateRequest{Visibility: &unlisted}, map[string]string{"X-Test-User": "alice"})
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("owner update: status %d", resp.StatusCode)
	}

	resp, _ = doJSON(t, http.MethodDelete, deleteURL, nil, map[string]string{"X-Test-User": "alice"})
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("owner delete: status %d", resp.StatusCode)
	}
	resp, _ = doJSON(t, http.MethodGet, ts.URL+"/api/pastes/"+slug, nil, map[string]string{"X-Test-User": "alice"})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("read after delete: status %d", resp.StatusCode)
	}

	resp, _ = doJSON(t, http.MethodDelete, ts.URL+"/api/pastes/abc", nil, map[string]string{"X-Test-User": "alice"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("malformed id: status %d", resp.StatusCode)
	}
}

func TestPublicListing(t *testing.T) {
	ts := newTestServer(t, nil)

	for i := 0; i < 3; i++ {
		createPaste(t, ts, createRequest{Content: fmt.Sprintf("paste %d", i), Title: fmt.Sprintf("t%d", i)}, "")
	}
	createPaste(t, ts, createRequest{Content: "hidden", Visibility: "unlisted"}, "")

	resp, body := doJSON(t, http.MethodGet, ts.URL+"/api/public?per_page=2", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d body %s", resp.StatusCode, body)
	}
	var list listResponse
	if err := json.Unmarshal(body, &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list.Items) != 2 || list.Page != 1 {
		t.Fatalf("unexpected page: %+v", list)
	}
	if list.Items[0].Title != "t2" {
		t.Fatalf("expected newest first, got %+v", list.Items)
	}

	resp, body = doJSON(t, http.MethodGet, ts.URL+"/api/public?per_page=2&page=2", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("page 2: status %d", resp.StatusCode)
	}
	if err := json.Unmarshal(body, &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list.Items) != 1 || list.Items[0].Title != "t0" {
		t.Fatalf("unexpected second page: %+v", list.Items)
	}
}

func TestOwnerStatsEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)

	slug := createPaste(t, ts, createRequest{Content: "mine"}, "alice")
	if resp, _ := doJSON(t, http.MethodGet, ts.URL+"/api/pastes/"+slug, nil, nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("view: status %d", resp.StatusCode)
	}

	resp, _ := doJSON(t, http.MethodGet, ts.URL+"/api/me/stats", nil, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("anonymous stats: status %d", resp.StatusCode)
	}

	resp, body := doJSON(t, http.MethodGet, ts.URL+"/api/me/stats", nil, map[string]string{"X-Test-User": "alice"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("stats: status %d body %s", resp.StatusCode, body)
	}
	var stats struct {
		Pastes int64
		Views  int64
	}
	if err := json.Unmarshal(body, &stats); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stats.Pastes != 1 || stats.Views != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestThrottleMiddleware(t *testing.T) {
	ts := newTestServer(t, func(cfg *Config) {
		cfg.Limiter = NewIPLimiter(rate.Limit(1), 2, time.Minute)
	})

	var throttled bool
	for i := 0; i < 5; i++ {
		resp, _ := doJSON(t, http.MethodGet, ts.URL+"/healthz", nil, nil)
		if resp.StatusCode == http.StatusTooManyRequests {
			if resp.Header.Get("Retry-After") == "" {
				t.Fatalf("throttled response missing Retry-After")
			}
			throttled = true
			break
		}
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("request %d: status %d", i, resp.StatusCode)
		}
	}
	if !throttled {
		t.Fatalf("expected a throttled request after burst exhaustion")
	}
}

func TestHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, body := doJSON(t, http.MethodGet, ts.URL+"/healthz", nil, nil)
	if resp.StatusCode != http.StatusOK || string(body) != "ok" {
		t.Fatalf("healthz: status %d body %q", resp.StatusCode, body)
	}
	resp, _ = doJSON(t, http.MethodGet, ts.URL+"/metrics", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("metrics: status %d", resp.StatusCode)
	}
}
