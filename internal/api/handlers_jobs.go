package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dgallion1/alignread/internal/pipeline"
	"github.com/go-chi/chi/v5"
)

// handleListJobs lists every job the server still holds.
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	jobs := s.orchestrator.ListJobs()
	if status := r.URL.Query().Get("status"); status != "" {
		filtered := jobs[:0]
		for _, j := range jobs {
			if string(j.Status) == status {
				filtered = append(filtered, j)
			}
		}
		jobs = filtered
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"jobs": jobs})
}

// handleDeleteJob forgets a finished job and deletes its output file.
func (s *Server) handleDeleteJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	found, err := s.orchestrator.RemoveJob(jobID)
	switch {
	case !found:
		jsonError(w, "job not found", http.StatusNotFound)
		return
	case errors.Is(err, pipeline.ErrJobRunning):
		jsonError(w, err.Error(), http.StatusConflict)
		return
	case err != nil:
		jsonError(w, "failed to delete job: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"job_id": jobID, "deleted": true})
}
