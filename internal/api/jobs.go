package api

import (
	"net/http"
	"time"

	"github.com/nextlevelbuilder/pigeon/internal/store"
	"github.com/nextlevelbuilder/pigeon/pkg/protocol"
)

// createJobRequest is the create payload. kind=instant is accepted here
// but never stored: it sends immediately and returns the history entry.
type createJobRequest struct {
	Kind             store.JobKind      `json:"kind"`
	ContactName      string             `json:"contactName"`
	Message          string             `json:"message"`
	AnchorTime       time.Time          `json:"anchorTime,omitzero"`
	IntervalValue    int                `json:"intervalValue,omitempty"`
	IntervalUnit     store.IntervalUnit `json:"intervalUnit,omitempty"`
	ToleranceMinutes *int               `json:"toleranceMinutes,omitempty"`
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.dispatcher.ListJobs(r.Context())
	if err != nil {
		logRequestError(r, protocol.ErrStore, err)
		writeOpError(w, err)
		return
	}
	if jobs == nil {
		jobs = []store.Job{}
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if req.Kind == store.KindInstant {
		entry, err := s.dispatcher.SendInstant(r.Context(), req.ContactName, req.Message)
		if err != nil {
			writeOpError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, entry)
		return
	}

	job, err := s.dispatcher.CreateJob(r.Context(), store.JobSpec{
		Kind:             req.Kind,
		ContactName:      req.ContactName,
		Message:          req.Message,
		AnchorTime:       req.AnchorTime,
		IntervalValue:    req.IntervalValue,
		IntervalUnit:     req.IntervalUnit,
		ToleranceMinutes: req.ToleranceMinutes,
	})
	if err != nil {
		if !store.IsValidation(err) {
			logRequestError(r, protocol.ErrStore, err)
		}
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, job)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.dispatcher.GetJob(r.Context(), r.PathValue("id"))
	if err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleUpdateJob(w http.ResponseWriter, r *http.Request) {
	var patch store.JobPatch
	if !decodeBody(w, r, &patch) {
		return
	}

	job, err := s.dispatcher.UpdateJob(r.Context(), r.PathValue("id"), patch)
	if err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

type setStatusRequest struct {
	Status store.JobStatus `json:"status"`
}

func (s *Server) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	var req setStatusRequest
	if !decodeBody(w, r, &req) {
		return
	}

	job, err := s.dispatcher.SetJobStatus(r.Context(), r.PathValue("id"), req.Status)
	if err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]store.JobStatus{"status": job.Status})
}

func (s *Server) handleDeleteJob(w http.ResponseWriter, r *http.Request) {
	if err := s.dispatcher.DeleteJob(r.Context(), r.PathValue("id")); err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
