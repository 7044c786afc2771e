// Package api exposes the scheduler over HTTP/JSON plus a WebSocket
// event stream. Every route is a thin translation onto a dispatcher or
// store operation; no scheduling decisions live here.
package api

import (
	"crypto/subtle"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/nextlevelbuilder/pigeon/internal/dispatch"
	"github.com/nextlevelbuilder/pigeon/internal/notify"
	"github.com/nextlevelbuilder/pigeon/internal/sender"
	"github.com/nextlevelbuilder/pigeon/internal/store"
	"github.com/nextlevelbuilder/pigeon/internal/tracing"
)

// maxRequestBody caps request bodies. Message bodies max out at 64 KiB,
// so 1 MB leaves generous JSON overhead.
const maxRequestBody = 1 << 20

// Server wires the HTTP surface to the scheduler internals.
type Server struct {
	dispatcher *dispatch.Dispatcher
	settings   store.SettingsStore
	sender     sender.Sender
	hub        *notify.Hub
	collector  *tracing.Collector // nil disables attempt summaries
	limiter    *RateLimiter
	token      string
	version    string
}

// Options configures a Server.
type Options struct {
	Settings store.SettingsStore
	Sender   sender.Sender
	Hub      *notify.Hub
	Tracing  *tracing.Collector
	Limiter  *RateLimiter

	// AuthToken protects every route with a bearer token when set.
	// Empty leaves the API open for the loopback default.
	AuthToken string

	Version string
}

// New creates a Server around the dispatcher.
func New(d *dispatch.Dispatcher, opts Options) *Server {
	return &Server{
		dispatcher: d,
		settings:   opts.Settings,
		sender:     opts.Sender,
		hub:        opts.Hub,
		collector:  opts.Tracing,
		limiter:    opts.Limiter,
		token:      opts.AuthToken,
		version:    opts.Version,
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/jobs", s.handleListJobs)
	mux.HandleFunc("POST /api/jobs", s.handleCreateJob)
	mux.HandleFunc("GET /api/jobs/{id}", s.handleGetJob)
	mux.HandleFunc("PATCH /api/jobs/{id}", s.handleUpdateJob)
	mux.HandleFunc("POST /api/jobs/{id}/status", s.handleSetStatus)
	mux.HandleFunc("DELETE /api/jobs/{id}", s.handleDeleteJob)

	mux.HandleFunc("GET /api/history", s.handleListHistory)

	mux.HandleFunc("GET /api/settings", s.handleListSettings)
	mux.HandleFunc("PUT /api/settings/{key}", s.handlePutSetting)

	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/session", s.handleSession)

	if s.hub != nil {
		mux.HandleFunc("GET /api/events", s.handleEvents)
	}

	return s.middleware(mux)
}

// middleware applies bearer auth to everything and the rate limiter to
// mutating requests.
func (s *Server) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !tokenMatch(bearerToken(r), s.token) {
			writeError(w, http.StatusUnauthorized, "unauthorized", "invalid or missing token")
			return
		}

		if s.limiter != nil && r.Method != http.MethodGet {
			if !s.limiter.Allow(clientKey(r)) {
				writeError(w, http.StatusTooManyRequests, "rate-limited", "too many requests")
				return
			}
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
		next.ServeHTTP(w, r)
	})
}

// bearerToken extracts the token from the Authorization header.
func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(auth, "Bearer ")
}

// tokenMatch compares tokens in constant time. An empty expected token
// means auth is disabled.
func tokenMatch(provided, expected string) bool {
	if expected == "" {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(provided), []byte(expected)) == 1
}

// clientKey identifies the caller for rate limiting: the remote IP.
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func logRequestError(r *http.Request, kind string, err error) {
	slog.Warn("api request failed", "method", r.Method, "path", r.URL.Path, "kind", kind, "error", err)
}
