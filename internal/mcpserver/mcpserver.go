// Package mcpserver exposes the daemon as MCP tools over stdio, so an
// assistant can schedule and send messages without shelling out to the
// CLI. Every tool call is forwarded to the running daemon's HTTP API;
// the MCP process itself holds no state.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/nextlevelbuilder/pigeon/internal/client"
	"github.com/nextlevelbuilder/pigeon/internal/jobfile"
	"github.com/nextlevelbuilder/pigeon/internal/store"
)

// Server bridges MCP tool calls onto the daemon API.
type Server struct {
	api     *client.Client
	version string
}

// New creates a Server talking to the given daemon client.
func New(api *client.Client, version string) *Server {
	return &Server{api: api, version: version}
}

// ServeStdio runs the MCP server on stdin/stdout until EOF.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.build())
}

func (s *Server) build() *server.MCPServer {
	srv := server.NewMCPServer("pigeon", s.version, server.WithToolCapabilities(false))

	srv.AddTool(mcp.NewTool("schedule_message",
		mcp.WithDescription("Schedule a message to a contact. With 'every' the message repeats on a fixed cadence anchored at 'anchor'; without it the message is sent once at 'anchor'."),
		mcp.WithString("contact", mcp.Required(), mcp.Description("Contact name exactly as it appears in the chat client")),
		mcp.WithString("message", mcp.Required(), mcp.Description("Message text to send")),
		mcp.WithString("anchor", mcp.Required(), mcp.Description("First send time, RFC 3339 (e.g. 2025-06-01T13:00:00Z)")),
		mcp.WithString("every", mcp.Description("Repeat cadence like '1 day' or '2 hours'; omit for a one-shot message")),
		mcp.WithNumber("tolerance_minutes", mcp.Description("Skip a repeat if it would start more than this many minutes late")),
	), s.handleSchedule)

	srv.AddTool(mcp.NewTool("send_message",
		mcp.WithDescription("Send a message to a contact immediately."),
		mcp.WithString("contact", mcp.Required(), mcp.Description("Contact name exactly as it appears in the chat client")),
		mcp.WithString("message", mcp.Required(), mcp.Description("Message text to send")),
	), s.handleSend)

	srv.AddTool(mcp.NewTool("list_jobs",
		mcp.WithDescription("List all scheduled message jobs with their status and next send time."),
	), s.handleListJobs)

	srv.AddTool(mcp.NewTool("pause_job",
		mcp.WithDescription("Pause a scheduled job. The cadence is preserved; resuming realigns to the original schedule."),
		mcp.WithString("job_id", mcp.Required(), mcp.Description("Job id from list_jobs")),
	), s.handlePause)

	srv.AddTool(mcp.NewTool("resume_job",
		mcp.WithDescription("Resume a paused job on its original cadence."),
		mcp.WithString("job_id", mcp.Required(), mcp.Description("Job id from list_jobs")),
	), s.handleResume)

	srv.AddTool(mcp.NewTool("cancel_job",
		mcp.WithDescription("Delete a scheduled job. Past send history is kept."),
		mcp.WithString("job_id", mcp.Required(), mcp.Description("Job id from list_jobs")),
	), s.handleCancel)

	srv.AddTool(mcp.NewTool("list_history",
		mcp.WithDescription("List past send attempts, newest first."),
		mcp.WithString("job_id", mcp.Description("Only attempts of this job")),
		mcp.WithString("status", mcp.Description("Only attempts with this outcome: sent, failed, unknown, skipped")),
		mcp.WithNumber("limit", mcp.Description("Max entries to return (default 20)")),
	), s.handleHistory)

	return srv
}

func (s *Server) handleSchedule(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	contact, err := req.RequireString("contact")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	message, err := req.RequireString("message")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	anchorRaw, err := req.RequireString("anchor")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	anchor, err := time.Parse(time.RFC3339, anchorRaw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("anchor must be RFC 3339: %v", err)), nil
	}

	spec := store.JobSpec{
		Kind:        store.KindOnce,
		ContactName: contact,
		Message:     message,
		AnchorTime:  anchor,
	}
	if every := req.GetString("every", ""); every != "" {
		value, unit, err := jobfile.ParseEvery(every)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		spec.Kind = store.KindRecurring
		spec.IntervalValue = value
		spec.IntervalUnit = unit
	}
	if tol := req.GetInt("tolerance_minutes", -1); tol >= 0 {
		spec.ToleranceMinutes = &tol
	}

	job, err := s.api.CreateJob(ctx, spec)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(job)
}

func (s *Server) handleSend(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	contact, err := req.RequireString("contact")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	message, err := req.RequireString("message")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	entry, err := s.api.SendInstant(ctx, contact, message)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(entry)
}

func (s *Server) handleListJobs(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	jobs, err := s.api.ListJobs(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(jobs)
}

func (s *Server) handlePause(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.setStatus(ctx, req, store.StatusPaused)
}

func (s *Server) handleResume(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.setStatus(ctx, req, store.StatusActive)
}

func (s *Server) setStatus(ctx context.Context, req mcp.CallToolRequest, status store.JobStatus) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("job_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.api.SetJobStatus(ctx, id, status); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("job %s is now %s", id, status)), nil
}

func (s *Server) handleCancel(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("job_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.api.DeleteJob(ctx, id); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText("job " + id + " deleted"), nil
}

func (s *Server) handleHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filter := store.HistoryFilter{
		JobID:  req.GetString("job_id", ""),
		Status: store.HistoryStatus(req.GetString("status", "")),
		Limit:  req.GetInt("limit", 20),
	}
	if filter.Status != "" && !filter.Status.IsValid() {
		return mcp.NewToolResultError(fmt.Sprintf("unknown status %q", filter.Status)), nil
	}

	entries, err := s.api.ListHistory(ctx, filter)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(entries)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
