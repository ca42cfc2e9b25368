package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sells-group/curator-cli/internal/model"
)

func (h *Handlers) reviewResult(w http.ResponseWriter, r *http.Request) error {
	var body struct {
		ResultID    string  `json:"result_id"`
		Action      string  `json:"action"`
		EditedValue *string `json:"edited_value"`
	}
	if err := decodeJSON(r, &body); err != nil {
		return err
	}

	applied, err := h.reviews.Review(r.Context(), body.ResultID, model.ReviewAction(body.Action), body.EditedValue)
	if err != nil {
		return err
	}
	respondJSON(w, http.StatusOK, map[string]bool{"applied": applied})
	return nil
}

func (h *Handlers) bulkReview(w http.ResponseWriter, r *http.Request) error {
	var body struct {
		ResultIDs []string `json:"result_ids"`
		Action    string   `json:"action"`
	}
	if err := decodeJSON(r, &body); err != nil {
		return err
	}

	count, err := h.reviews.BulkReview(r.Context(), body.ResultIDs, model.ReviewAction(body.Action))
	if err != nil {
		return err
	}
	respondJSON(w, http.StatusOK, map[string]int{"count": count})
	return nil
}

func (h *Handlers) reviewQueue(w http.ResponseWriter, r *http.Request) error {
	items, err := h.reviews.Queue(r.Context(),
		r.URL.Query().Get("project"),
		queryInt(r, "limit", defaultQueueLimit),
		queryInt(r, "offset", 0),
	)
	if err != nil {
		return err
	}
	if items == nil {
		items = []model.ReviewQueueItem{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"items": items, "count": len(items)})
	return nil
}

func (h *Handlers) getResult(w http.ResponseWriter, r *http.Request) error {
	result, err := h.reviews.Get(r.Context(), chi.URLParam(r, "resultID"))
	if err != nil {
		return err
	}
	respondJSON(w, http.StatusOK, result)
	return nil
}
