package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nextlevelbuilder/pigeon/internal/dispatch"
	"github.com/nextlevelbuilder/pigeon/internal/store"
	"github.com/nextlevelbuilder/pigeon/pkg/protocol"
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, kind, message string) {
	writeJSON(w, status, errorBody{Error: message, Kind: kind})
}

// writeOpError maps dispatcher/store errors onto status codes and the
// stable error kinds clients match on.
func writeOpError(w http.ResponseWriter, err error) {
	switch {
	case store.IsValidation(err):
		writeError(w, http.StatusBadRequest, protocol.ErrValidation, err.Error())
	case store.IsNotFound(err):
		writeError(w, http.StatusNotFound, protocol.ErrNotFound, err.Error())
	case errors.Is(err, dispatch.ErrSenderNotReady):
		writeError(w, http.StatusServiceUnavailable, protocol.ErrNotReady, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, protocol.ErrStore, err.Error())
	}
}

// decodeBody parses the JSON request body into v.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, protocol.ErrValidation, "invalid JSON: "+err.Error())
		return false
	}
	return true
}
