package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sells-group/curator-cli/internal/model"
)

func (h *Handlers) attributeHistory(w http.ResponseWriter, r *http.Request) error {
	attrs, err := h.attributes.History(r.Context(),
		chi.URLParam(r, "entityID"),
		r.URL.Query().Get("attr_slug"),
	)
	if err != nil {
		return err
	}
	if attrs == nil {
		attrs = []model.EntityAttribute{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"attributes": attrs, "count": len(attrs)})
	return nil
}

func (h *Handlers) appendAttribute(w http.ResponseWriter, r *http.Request) error {
	var attr model.EntityAttribute
	if err := decodeJSON(r, &attr); err != nil {
		return err
	}
	attr.EntityID = chi.URLParam(r, "entityID")

	created, err := h.attributes.Append(r.Context(), attr)
	if err != nil {
		return err
	}
	respondJSON(w, http.StatusCreated, created)
	return nil
}
