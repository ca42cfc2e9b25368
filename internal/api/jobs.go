package api

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/curator-cli/internal/extraction"
	"github.com/sells-group/curator-cli/internal/model"
	"github.com/sells-group/curator-cli/internal/store"
)

// startJob hands the whole body to the gateway as job params; only the kind
// is peeled off here. The runner for that kind owns the rest of the shape.
func (h *Handlers) startJob(w http.ResponseWriter, r *http.Request) error {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		return eris.Wrap(model.ErrValidation, "api: read request body")
	}
	var body struct {
		Kind model.JobKind `json:"kind"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return eris.Wrap(model.ErrValidation, "api: malformed JSON body")
	}

	jobID, err := h.gateway.Start(r.Context(), body.Kind, raw)
	if err != nil {
		return err
	}
	respondJSON(w, http.StatusAccepted, map[string]string{"job_id": jobID})
	return nil
}

// pollJob never fails: the gateway's poll contract folds every outcome into
// a status payload.
func (h *Handlers) pollJob(w http.ResponseWriter, r *http.Request) {
	ps := h.gateway.Poll(r.Context(), chi.URLParam(r, "jobID"))
	respondJSON(w, http.StatusOK, ps)
}

func (h *Handlers) createJob(w http.ResponseWriter, r *http.Request) error {
	var body struct {
		Project    string `json:"project"`
		Entity     string `json:"entity"`
		SourceType string `json:"source_type"`
		EvidenceID string `json:"evidence_id"`
	}
	if err := decodeJSON(r, &body); err != nil {
		return err
	}

	jobID, err := h.pipeline.CreateJob(r.Context(), body.Project, body.Entity, body.SourceType, body.EvidenceID)
	if err != nil {
		return err
	}
	respondJSON(w, http.StatusCreated, map[string]string{"job_id": jobID})
	return nil
}

func (h *Handlers) listJobs(w http.ResponseWriter, r *http.Request) error {
	q := r.URL.Query()
	jobsList, err := h.pipeline.ListJobs(r.Context(), store.JobFilter{
		Project: q.Get("project"),
		Status:  model.JobStatus(q.Get("status")),
		Kind:    model.JobKind(q.Get("kind")),
		Entity:  q.Get("entity"),
		Limit:   queryInt(r, "limit", defaultQueueLimit),
		Offset:  queryInt(r, "offset", 0),
	})
	if err != nil {
		return err
	}
	if jobsList == nil {
		jobsList = []model.Job{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"jobs": jobsList, "count": len(jobsList)})
	return nil
}

func (h *Handlers) getJob(w http.ResponseWriter, r *http.Request) error {
	job, err := h.pipeline.GetJob(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		return err
	}
	respondJSON(w, http.StatusOK, job)
	return nil
}

func (h *Handlers) updateJob(w http.ResponseWriter, r *http.Request) error {
	var fields map[string]any
	if err := decodeJSON(r, &fields); err != nil {
		return err
	}

	updated, err := h.pipeline.UpdateJob(r.Context(), chi.URLParam(r, "jobID"), fields)
	if err != nil {
		return err
	}
	respondJSON(w, http.StatusOK, map[string]bool{"updated": updated})
	return nil
}

func (h *Handlers) pipelineStats(w http.ResponseWriter, r *http.Request) error {
	stats, err := h.pipeline.Stats(r.Context(), r.URL.Query().Get("project"))
	if err != nil {
		return err
	}
	respondJSON(w, http.StatusOK, stats)
	return nil
}

func (h *Handlers) recordResults(w http.ResponseWriter, r *http.Request) error {
	var body struct {
		JobID            string                 `json:"job_id"`
		EntityID         string                 `json:"entity_id"`
		Results          []extraction.Candidate `json:"results"`
		SourceEvidenceID string                 `json:"source_evidence_id"`
	}
	if err := decodeJSON(r, &body); err != nil {
		return err
	}

	ids, err := h.pipeline.RecordResults(r.Context(), body.JobID, body.EntityID, body.Results, body.SourceEvidenceID)
	if err != nil {
		return err
	}
	respondJSON(w, http.StatusCreated, map[string]any{"result_ids": ids})
	return nil
}
