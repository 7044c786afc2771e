package api

import (
	"net/http"

	"github.com/nextlevelbuilder/pigeon/internal/clock"
	"github.com/nextlevelbuilder/pigeon/internal/store"
	"github.com/nextlevelbuilder/pigeon/pkg/protocol"
)

func (s *Server) handleListSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.settings.ListSettings(r.Context())
	if err != nil {
		logRequestError(r, protocol.ErrStore, err)
		writeOpError(w, err)
		return
	}
	if settings == nil {
		settings = map[string]string{}
	}
	writeJSON(w, http.StatusOK, settings)
}

type putSettingRequest struct {
	Value string `json:"value"`
}

func (s *Server) handlePutSetting(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")

	var req putSettingRequest
	if !decodeBody(w, r, &req) {
		return
	}

	// The timezone setting only affects display formatting, but a bad
	// zone name would break every render, so reject it here.
	if key == store.SettingTimezone {
		if _, err := clock.Location(req.Value); err != nil {
			writeError(w, http.StatusBadRequest, protocol.ErrValidation, "unknown timezone "+req.Value)
			return
		}
	}

	if err := s.settings.SetSetting(r.Context(), key, req.Value); err != nil {
		logRequestError(r, protocol.ErrStore, err)
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{key: req.Value})
}
