package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sells-group/curator-cli/internal/model"
)

func (h *Handlers) createDimension(w http.ResponseWriter, r *http.Request) error {
	var dim model.Dimension
	if err := decodeJSON(r, &dim); err != nil {
		return err
	}

	created, err := h.dimensions.Create(r.Context(), dim)
	if err != nil {
		return err
	}
	respondJSON(w, http.StatusCreated, created)
	return nil
}

func (h *Handlers) listDimensions(w http.ResponseWriter, r *http.Request) error {
	dims, err := h.dimensions.List(r.Context(), r.URL.Query().Get("project"))
	if err != nil {
		return err
	}
	if dims == nil {
		dims = []model.Dimension{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"dimensions": dims, "count": len(dims)})
	return nil
}

func (h *Handlers) getDimension(w http.ResponseWriter, r *http.Request) error {
	dim, err := h.dimensions.Get(r.Context(), chi.URLParam(r, "dimensionID"))
	if err != nil {
		return err
	}
	respondJSON(w, http.StatusOK, dim)
	return nil
}

func (h *Handlers) deleteDimension(w http.ResponseWriter, r *http.Request) error {
	if err := h.dimensions.Delete(r.Context(), chi.URLParam(r, "dimensionID")); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (h *Handlers) setDimensionValue(w http.ResponseWriter, r *http.Request) error {
	var val model.DimensionValue
	if err := decodeJSON(r, &val); err != nil {
		return err
	}
	val.DimensionID = chi.URLParam(r, "dimensionID")

	if err := h.dimensions.SetValue(r.Context(), val); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (h *Handlers) bulkSetDimensionValues(w http.ResponseWriter, r *http.Request) error {
	var body struct {
		Values []model.DimensionValue `json:"values"`
	}
	if err := decodeJSON(r, &body); err != nil {
		return err
	}

	count, err := h.dimensions.BulkSetValues(r.Context(), chi.URLParam(r, "dimensionID"), body.Values)
	if err != nil {
		return err
	}
	respondJSON(w, http.StatusOK, map[string]int{"count": count})
	return nil
}
