package api

import (
	"net/http"

	"github.com/nextlevelbuilder/pigeon/internal/sender"
	"github.com/nextlevelbuilder/pigeon/internal/tracing"
	"github.com/nextlevelbuilder/pigeon/pkg/protocol"
)

// statusResponse is the one-call health and activity snapshot the CLI
// renders for `pigeon status`.
type statusResponse struct {
	Version     string                `json:"version"`
	SenderReady bool                  `json:"senderReady"`
	Session     *sender.SessionInfo   `json:"session,omitempty"`
	Jobs        map[string]int        `json:"jobs"`
	Executing   int                   `json:"executing"`
	Subscribers int                   `json:"subscribers"`
	Attempts    map[string]int        `json:"attempts,omitempty"`
	Recent      []tracing.AttemptSpan `json:"recentAttempts,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.dispatcher.ListJobs(r.Context())
	if err != nil {
		logRequestError(r, protocol.ErrStore, err)
		writeOpError(w, err)
		return
	}

	counts := make(map[string]int)
	for _, job := range jobs {
		counts[string(job.Status)]++
	}

	resp := statusResponse{
		Version:     s.version,
		SenderReady: s.sender != nil && s.sender.Ready(r.Context()),
		Jobs:        counts,
		Executing:   s.dispatcher.ExecutingCount(),
	}
	if rep, ok := s.sender.(sender.SessionReporter); ok {
		info := rep.Session(r.Context())
		info.QR = "" // the pairing payload only ships on /api/session
		resp.Session = &info
	}
	if s.hub != nil {
		resp.Subscribers = s.hub.Subscribers()
	}
	if s.collector != nil {
		resp.Attempts = s.collector.Counts()
		resp.Recent = s.collector.Recent(10)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	rep, ok := s.sender.(sender.SessionReporter)
	if !ok {
		writeError(w, http.StatusNotFound, protocol.ErrNotFound, "sender does not report session state")
		return
	}
	writeJSON(w, http.StatusOK, rep.Session(r.Context()))
}
