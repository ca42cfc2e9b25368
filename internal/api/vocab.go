package api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/curator-cli/internal/model"
	"github.com/sells-group/curator-cli/internal/store"
)

func (h *Handlers) createFeature(w http.ResponseWriter, r *http.Request) error {
	var body struct {
		Project       string   `json:"project"`
		AttrSlug      string   `json:"attr_slug"`
		CanonicalName string   `json:"canonical_name"`
		Description   string   `json:"description"`
		Category      string   `json:"category"`
		Mappings      []string `json:"mappings"`
	}
	if err := decodeJSON(r, &body); err != nil {
		return err
	}

	feature := model.CanonicalFeature{
		Project:       body.Project,
		AttrSlug:      body.AttrSlug,
		CanonicalName: body.CanonicalName,
		Description:   body.Description,
		Category:      body.Category,
	}
	for _, raw := range body.Mappings {
		feature.Mappings = append(feature.Mappings, model.FeatureMapping{RawValue: raw})
	}

	created, err := h.vocab.CreateFeature(r.Context(), feature)
	if err != nil {
		return err
	}
	respondJSON(w, http.StatusCreated, created)
	return nil
}

func (h *Handlers) listFeatures(w http.ResponseWriter, r *http.Request) error {
	features, err := h.vocab.ListFeatures(r.Context(),
		r.URL.Query().Get("project"),
		r.URL.Query().Get("attr_slug"),
	)
	if err != nil {
		return err
	}
	if features == nil {
		features = []model.CanonicalFeature{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"features": features, "count": len(features)})
	return nil
}

func (h *Handlers) getFeature(w http.ResponseWriter, r *http.Request) error {
	feature, err := h.vocab.GetFeature(r.Context(), chi.URLParam(r, "featureID"))
	if err != nil {
		return err
	}
	respondJSON(w, http.StatusOK, feature)
	return nil
}

func (h *Handlers) addMapping(w http.ResponseWriter, r *http.Request) error {
	var body struct {
		RawValue string `json:"raw_value"`
	}
	if err := decodeJSON(r, &body); err != nil {
		return err
	}

	mapping, err := h.vocab.AddMapping(r.Context(), chi.URLParam(r, "featureID"), body.RawValue)
	if err != nil {
		return err
	}
	respondJSON(w, http.StatusCreated, mapping)
	return nil
}

func (h *Handlers) removeMapping(w http.ResponseWriter, r *http.Request) error {
	if err := h.vocab.RemoveMapping(r.Context(), chi.URLParam(r, "mappingID")); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (h *Handlers) mergeFeatures(w http.ResponseWriter, r *http.Request) error {
	var body struct {
		TargetID  string   `json:"target_id"`
		SourceIDs []string `json:"source_ids"`
	}
	if err := decodeJSON(r, &body); err != nil {
		return err
	}

	moved, err := h.vocab.Merge(r.Context(), body.TargetID, body.SourceIDs)
	if err != nil {
		return err
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": "merged", "mappings_moved": moved})
	return nil
}

func (h *Handlers) resolveMapping(w http.ResponseWriter, r *http.Request) error {
	q := r.URL.Query()
	feature, err := h.vocab.Resolve(r.Context(), q.Get("project"), q.Get("attr_slug"), q.Get("raw_value"))
	if err != nil {
		return err
	}
	if feature == nil {
		respondJSON(w, http.StatusOK, map[string]any{"matched": false})
		return nil
	}
	respondJSON(w, http.StatusOK, map[string]any{"matched": true, "canonical": feature})
	return nil
}

func (h *Handlers) unmappedValues(w http.ResponseWriter, r *http.Request) error {
	q := r.URL.Query()
	values, err := h.vocab.FindUnmapped(r.Context(), q.Get("project"), q.Get("attr_slug"))
	if err != nil {
		return err
	}
	if values == nil {
		values = []store.UnmappedValue{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"unmapped": values, "count": len(values)})
	return nil
}

func (h *Handlers) suggestFeatures(w http.ResponseWriter, r *http.Request) error {
	var body struct {
		Project   string   `json:"project"`
		AttrSlug  string   `json:"attr_slug"`
		RawValues []string `json:"raw_values"`
	}
	if err := decodeJSON(r, &body); err != nil {
		return err
	}

	suggestions, err := h.vocab.Suggest(r.Context(), body.Project, body.AttrSlug, body.RawValues)
	if err != nil {
		return err
	}
	if suggestions == nil {
		suggestions = []model.Suggestion{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"suggestions": suggestions, "count": len(suggestions)})
	return nil
}

func (h *Handlers) vocabStats(w http.ResponseWriter, r *http.Request) error {
	stats, err := h.vocab.Stats(r.Context(), r.URL.Query().Get("project"))
	if err != nil {
		return err
	}
	if stats == nil {
		stats = []store.VocabStat{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"stats": stats, "count": len(stats)})
	return nil
}

// exportVocabulary streams an xlsx workbook. Validation happens before the
// first write so the wrapper can still map early errors to a status code.
func (h *Handlers) exportVocabulary(w http.ResponseWriter, r *http.Request) error {
	project := r.URL.Query().Get("project")
	if project == "" {
		return eris.Wrap(model.ErrValidation, "api: project is required")
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", project+"-vocabulary.xlsx"))
	return h.vocab.ExportXLSX(r.Context(), project, w)
}
