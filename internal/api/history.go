package api

import (
	"net/http"
	"strconv"

	"github.com/nextlevelbuilder/pigeon/internal/store"
	"github.com/nextlevelbuilder/pigeon/pkg/protocol"
)

// defaultHistoryLimit bounds unfiltered history reads; clients page by
// passing their own limit.
const defaultHistoryLimit = 100

func (s *Server) handleListHistory(w http.ResponseWriter, r *http.Request) {
	filter := store.HistoryFilter{
		JobID: r.URL.Query().Get("jobId"),
		Limit: defaultHistoryLimit,
	}

	if raw := r.URL.Query().Get("status"); raw != "" {
		status := store.HistoryStatus(raw)
		if !status.IsValid() {
			writeError(w, http.StatusBadRequest, protocol.ErrValidation, "unknown history status "+strconv.Quote(raw))
			return
		}
		filter.Status = status
	}

	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, protocol.ErrValidation, "limit must be a positive integer")
			return
		}
		filter.Limit = n
	}

	entries, err := s.dispatcher.ListHistory(r.Context(), filter)
	if err != nil {
		logRequestError(r, protocol.ErrStore, err)
		writeOpError(w, err)
		return
	}
	if entries == nil {
		entries = []store.HistoryEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}
