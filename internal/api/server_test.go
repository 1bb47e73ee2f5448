package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dgallion1/alignread/internal/config"
	"github.com/dgallion1/alignread/internal/pipeline"
)

const testKey = "test-key"

var testLog = slog.New(slog.NewTextHandler(io.Discard, nil))

const (
	enDoc = `<?xml version="1.0" encoding="utf-8"?>
<document>
<s id="1"><w>Hello</w> <w>world</w></s>
<s id="2"><w>Bye</w></s>
</document>
`
	fiDoc = `<?xml version="1.0" encoding="utf-8"?>
<document>
<s id="1"><w>Hei</w> <w>maailma</w></s>
<s id="2"><w>Hei</w> <w>hei</w></s>
</document>
`
	enFi = `<?xml version="1.0" encoding="utf-8"?>
<cesAlign version="1.0">
<linkGrp targType="s" fromDoc="en/1.xml" toDoc="fi/1.xml">
<link xtargets="1;1"/>
<link xtargets="2;2"/>
</linkGrp>
</cesAlign>
`
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "xml", "en", "1.xml"), enDoc)
	writeFile(t, filepath.Join(root, "xml", "fi", "1.xml"), fiDoc)
	writeFile(t, filepath.Join(root, "en-fi.xml"), enFi)

	cfg := config.Load()
	cfg.APIKey = testKey
	cfg.CorpusRoot = root
	cfg.OutputDir = t.TempDir()
	cfg.MaxQueueSize = 4

	orch := pipeline.NewOrchestrator(cfg, testLog)
	orch.Start(context.Background())
	t.Cleanup(orch.Stop)
	return NewServer(orch, testLog, cfg)
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Authorization", "Bearer "+testKey)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("invalid JSON %q: %v", rec.Body.String(), err)
	}
	return out
}

func submit(t *testing.T, s *Server, body string) string {
	t.Helper()
	rec := do(t, s, http.MethodPost, "/api/extract", body)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	resp := decode(t, rec)
	id, _ := resp["job_id"].(string)
	if id == "" {
		t.Fatalf("expected a job id, got %v", resp)
	}
	if resp["poll_url"] != "/api/extract/"+id+"/status" {
		t.Errorf("unexpected poll_url %v", resp["poll_url"])
	}
	return id
}

func waitStatus(t *testing.T, s *Server, id string) map[string]any {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		rec := do(t, s, http.MethodGet, "/api/extract/"+id+"/status", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		snap := decode(t, rec)
		if pipeline.JobStatus(snap["status"].(string)).Done() {
			return snap
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %s did not finish", id)
	return nil
}

func TestHealth_NoAuth(t *testing.T) {
	s := newTestServer(t)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Errorf("expected ok status, got %s", rec.Body.String())
	}
}

func TestAuth(t *testing.T) {
	s := newTestServer(t)
	cases := []struct {
		name   string
		header string
		value  string
		code   int
	}{
		{"missing", "", "", http.StatusUnauthorized},
		{"wrong bearer", "Authorization", "Bearer nope", http.StatusUnauthorized},
		{"basic scheme", "Authorization", "Basic " + testKey, http.StatusUnauthorized},
		{"bearer", "Authorization", "Bearer " + testKey, http.StatusOK},
		{"api key header", "X-API-Key", testKey, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
			if tc.header != "" {
				req.Header.Set(tc.header, tc.value)
			}
			rec := httptest.NewRecorder()
			s.ServeHTTP(rec, req)
			if rec.Code != tc.code {
				t.Errorf("expected %d, got %d", tc.code, rec.Code)
			}
		})
	}
}

func TestExtract_EndToEnd(t *testing.T) {
	s := newTestServer(t)
	id := submit(t, s, `{"alignment":"en-fi.xml","src_dir":"xml","trg_dir":"xml","write_mode":"moses"}`)

	snap := waitStatus(t, s, id)
	if snap["status"] != string(pipeline.StatusCompleted) {
		t.Fatalf("expected completed, got %v (%v)", snap["status"], snap["progress"])
	}
	progress := snap["progress"].(map[string]any)
	if progress["pairs"].(float64) != 2 {
		t.Errorf("expected 2 pairs, got %v", progress["pairs"])
	}

	rec := do(t, s, http.MethodGet, "/api/extract/"+id+"/output", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	want := "Hello world\tHei maailma\nBye\tHei hei\n"
	if rec.Body.String() != want {
		t.Errorf("expected %q, got %q", want, rec.Body.String())
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, `"en-fi.txt"`) {
		t.Errorf("expected en-fi.txt attachment, got %q", cd)
	}

	rec = do(t, s, http.MethodGet, "/api/stats", "")
	stats := decode(t, rec)
	if pairs := stats["pairs"].(map[string]any); pairs["pairs"].(float64) != 2 {
		t.Errorf("expected 2 timed pairs, got %v", pairs)
	}
}

func TestExtract_ServerDefaultsAndOverrides(t *testing.T) {
	s := newTestServer(t)
	id := submit(t, s, `{"alignment":"en-fi.xml","src_dir":"xml","trg_dir":"xml","write_mode":"tmx","src_lang":"en","trg_lang":"fi","maximum":1}`)

	snap := waitStatus(t, s, id)
	if snap["status"] != string(pipeline.StatusCompleted) {
		t.Fatalf("expected completed, got %v", snap["status"])
	}
	rec := do(t, s, http.MethodGet, "/api/extract/"+id+"/output", "")
	if ct := rec.Header().Get("Content-Type"); ct != "application/xml" {
		t.Errorf("expected application/xml, got %q", ct)
	}
	body := rec.Body.String()
	if strings.Count(body, "<tu>") != 1 {
		t.Errorf("expected one translation unit, got %s", body)
	}
	if !strings.Contains(body, "Hello world") {
		t.Errorf("expected the first pair, got %s", body)
	}
}

func TestExtract_BadRequests(t *testing.T) {
	s := newTestServer(t)
	cases := []struct {
		name string
		body string
		want string
	}{
		{"not json", `alignment=x`, "invalid request"},
		{"unknown field", `{"alignment":"en-fi.xml","colour":"red"}`, "invalid request"},
		{"no alignment", `{"src_dir":"xml"}`, "alignment is required"},
		{"escaping path", `{"alignment":"../../etc/passwd"}`, "escapes the corpus root"},
		{"absolute path", `{"alignment":"en-fi.xml","src_dir":"/tmp"}`, "escapes the corpus root"},
		{"bad mode", `{"alignment":"en-fi.xml","preprocess":"pdf"}`, "unsupported preprocessing"},
		{"bad range", `{"alignment":"en-fi.xml","src_range":"9-1"}`, "src_range"},
		{"tmx without langs", `{"alignment":"en-fi.xml","write_mode":"tmx"}`, "src_lang and trg_lang"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, s, http.MethodPost, "/api/extract", tc.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rec.Code)
			}
			if msg := decode(t, rec)["error"].(string); !strings.Contains(msg, tc.want) {
				t.Errorf("expected error containing %q, got %q", tc.want, msg)
			}
		})
	}
}

func TestExtract_TooLarge(t *testing.T) {
	s := newTestServer(t)
	body := `{"alignment":"` + strings.Repeat("a", maxRequestBytes) + `"}`
	rec := do(t, s, http.MethodPost, "/api/extract", body)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestExtract_FailedJob(t *testing.T) {
	s := newTestServer(t)
	id := submit(t, s, `{"alignment":"missing.xml","src_dir":"xml","trg_dir":"xml"}`)
	snap := waitStatus(t, s, id)
	if snap["status"] != string(pipeline.StatusFailed) {
		t.Fatalf("expected failed, got %v", snap["status"])
	}
	rec := do(t, s, http.MethodGet, "/api/extract/"+id+"/output", "")
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", rec.Code)
	}
}

func TestJobNotFound(t *testing.T) {
	s := newTestServer(t)
	for _, path := range []string{"/api/extract/nope/status", "/api/extract/nope/output"} {
		if rec := do(t, s, http.MethodGet, path, ""); rec.Code != http.StatusNotFound {
			t.Errorf("%s: expected 404, got %d", path, rec.Code)
		}
	}
	if rec := do(t, s, http.MethodDelete, "/api/extract/nope", ""); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestListAndDeleteJobs(t *testing.T) {
	s := newTestServer(t)
	id := submit(t, s, `{"alignment":"en-fi.xml","src_dir":"xml","trg_dir":"xml"}`)
	waitStatus(t, s, id)

	rec := do(t, s, http.MethodGet, "/api/extract?status=completed", "")
	var list struct {
		Jobs []map[string]any `json:"jobs"`
	}
	if err := json.NewDecoder(bytes.NewReader(rec.Body.Bytes())).Decode(&list); err != nil {
		t.Fatal(err)
	}
	if len(list.Jobs) != 1 || list.Jobs[0]["job_id"] != id {
		t.Fatalf("expected job %s listed, got %v", id, list.Jobs)
	}

	rec = do(t, s, http.MethodGet, "/api/extract?status=failed", "")
	if strings.Contains(rec.Body.String(), id) {
		t.Error("expected status filter to exclude the completed job")
	}

	if rec := do(t, s, http.MethodDelete, "/api/extract/"+id, ""); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec := do(t, s, http.MethodGet, "/api/extract/"+id+"/status", ""); rec.Code != http.StatusNotFound {
		t.Errorf("expected deleted job to be gone, got %d", rec.Code)
	}
}

func TestDownloadName(t *testing.T) {
	cases := []struct{ alignment, mode, want string }{
		{"en-fi.xml.gz", "tmx", "en-fi.tmx"},
		{"sub/dir/en-de.xml", "normal", "en-de.txt"},
		{"links", "links", "links.xml"},
		{".xml", "moses", "alignread.txt"},
	}
	for _, c := range cases {
		if got := downloadName(c.alignment, c.mode); got != c.want {
			t.Errorf("downloadName(%q, %q): expected %q, got %q", c.alignment, c.mode, c.want, got)
		}
	}
}
