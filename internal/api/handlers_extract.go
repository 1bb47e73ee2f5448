package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/dgallion1/alignread/internal/output"
	"github.com/dgallion1/alignread/internal/pipeline"
	"github.com/go-chi/chi/v5"
)

// maxRequestBytes bounds a job request body.
const maxRequestBytes = 1 << 20

func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)

	// Fields the request leaves out keep the server defaults.
	req := pipeline.Request{Extract: s.cfg.Extract}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		jsonError(w, "invalid request: "+err.Error(), http.StatusBadRequest)
		return
	}
	req.Extract.ApplyDefaults()

	if _, err := req.Files.Within(s.cfg.CorpusRoot); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := req.Extract.Validate(); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	job := pipeline.NewJob(req)
	if err := s.orchestrator.Submit(job); err != nil {
		jsonError(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	s.log.Info("job queued", "job_id", job.ID, "alignment", req.Alignment, "write_mode", req.WriteMode)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]any{
		"job_id":     job.ID,
		"status":     pipeline.StatusQueued,
		"poll_url":   fmt.Sprintf("/api/extract/%s/status", job.ID),
		"output_url": fmt.Sprintf("/api/extract/%s/output", job.ID),
	})
}

func (s *Server) handleExtractStatus(w http.ResponseWriter, r *http.Request) {
	job := s.orchestrator.GetJob(chi.URLParam(r, "jobID"))
	if job == nil {
		jsonError(w, "job not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(job.Snapshot())
}

func (s *Server) handleExtractOutput(w http.ResponseWriter, r *http.Request) {
	job := s.orchestrator.GetJob(chi.URLParam(r, "jobID"))
	if job == nil {
		jsonError(w, "job not found", http.StatusNotFound)
		return
	}
	snap := job.Snapshot()
	switch {
	case snap.Status == pipeline.StatusFailed:
		jsonError(w, "job failed", http.StatusConflict)
		return
	case !snap.Status.Done():
		jsonError(w, fmt.Sprintf("job is %s", snap.Status), http.StatusConflict)
		return
	}

	f, err := os.Open(snap.OutputPath)
	if err != nil {
		jsonError(w, "output unavailable", http.StatusGone)
		return
	}
	defer f.Close()

	contentType := "text/plain; charset=utf-8"
	if snap.WriteMode == "tmx" || snap.WriteMode == "links" {
		contentType = "application/xml"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", downloadName(snap.Alignment, snap.WriteMode)))
	if _, err := io.Copy(w, f); err != nil {
		s.log.Warn("send output", "job_id", snap.ID, "error", err)
	}
}

// downloadName derives the attachment name from the alignment file, as in
// "en-fi.xml.gz" -> "en-fi.tmx".
func downloadName(alignment, writeMode string) string {
	base := path.Base(filepath.ToSlash(alignment))
	base = strings.TrimSuffix(base, ".gz")
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return sanitizeFilename(base + output.Extension(writeMode))
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func sanitizeFilename(name string) string {
	name = filepath.Base(name)
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")
	name = strings.ReplaceAll(name, "..", "_")
	name = strings.ReplaceAll(name, `"`, "_")
	if name == "" || name == "." || strings.HasPrefix(name, ".") {
		name = "alignread" + name
	}
	return name
}
