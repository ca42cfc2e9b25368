package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/curator-cli/internal/model"
	"github.com/sells-group/curator-cli/internal/store"
)

type handlerFunc func(w http.ResponseWriter, r *http.Request) error

// wrap adapts an error-returning handler, mapping the sentinel errors onto
// status codes in one place. Anything unrecognized is a 500 with the chain
// logged server-side and a generic message on the wire.
func wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := h(w, r)
		if err == nil {
			return
		}
		switch {
		case errors.Is(err, model.ErrValidation):
			respondError(w, http.StatusBadRequest, err)
		case errors.Is(err, store.ErrConflict):
			respondError(w, http.StatusConflict, err)
		case errors.Is(err, store.ErrNotFound):
			respondError(w, http.StatusNotFound, err)
		default:
			zap.L().Error("request failed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Error(err))
			respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		}
	}
}

func respondError(w http.ResponseWriter, status int, err error) {
	respondJSON(w, status, map[string]string{"error": err.Error()})
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return eris.Wrap(model.ErrValidation, "api: malformed JSON body")
	}
	return nil
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
