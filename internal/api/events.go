package api

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
)

// upgrader accepts any origin: the daemon binds loopback by default and
// remote deployments are protected by the bearer token.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	s.hub.Serve(conn)
}
