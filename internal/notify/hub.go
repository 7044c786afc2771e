package notify

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"log/slog"

	"github.com/gorilla/websocket"

	"github.com/nextlevelbuilder/pigeon/pkg/protocol"
)

const (
	sendBuffer   = 64
	writeTimeout = 10 * time.Second
	pongTimeout  = 60 * time.Second
	pingPeriod   = 30 * time.Second
)

// Hub broadcasts events to every connected WebSocket subscriber. A slow
// subscriber drops frames rather than stalling the dispatcher.
type Hub struct {
	mu     sync.Mutex
	subs   map[*subscriber]struct{}
	closed bool
	seq    atomic.Int64
}

var _ Notifier = (*Hub)(nil)

type subscriber struct {
	conn *websocket.Conn
	send chan []byte
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[*subscriber]struct{})}
}

// Notify implements Notifier by fanning the event out as a wire frame.
func (h *Hub) Notify(ev Event) {
	h.broadcast(protocol.NewEvent(ev.Name, protocol.DeliveryEvent{
		JobID:       ev.JobID,
		HistoryID:   ev.HistoryID,
		ContactName: ev.ContactName,
		Reason:      ev.Reason,
	}))
}

// NotifySession pushes a session state change.
func (h *Hub) NotifySession(state string) {
	h.broadcast(protocol.NewEvent(protocol.EventSessionState, protocol.SessionEvent{State: state}))
}

// Subscribers returns the number of connected clients.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Serve registers conn and pumps events to it until the connection
// drops. It blocks; call it from the HTTP handler goroutine.
func (h *Hub) Serve(conn *websocket.Conn) {
	sub := &subscriber{conn: conn, send: make(chan []byte, sendBuffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.subs[sub] = struct{}{}
	h.mu.Unlock()

	go sub.writePump()
	sub.readPump()

	h.drop(sub)
}

// Close disconnects all subscribers and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for sub := range h.subs {
		delete(h.subs, sub)
		close(sub.send)
	}
}

func (h *Hub) broadcast(frame *protocol.EventFrame) {
	frame.Seq = h.seq.Add(1)
	data, err := json.Marshal(frame)
	if err != nil {
		slog.Error("marshal event failed", "event", frame.Event, "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs {
		select {
		case sub.send <- data:
		default:
			slog.Warn("subscriber buffer full, dropping event", "event", frame.Event)
		}
	}
}

// drop unregisters sub exactly once, whether the connection died or the
// hub was closed first.
func (h *Hub) drop(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.subs[sub]; ok {
		delete(h.subs, sub)
		close(sub.send)
	}
}

// readPump discards inbound frames; the stream is push-only. Reading is
// still required to process pongs and notice the peer going away.
func (s *subscriber) readPump() {
	defer s.conn.Close()

	s.conn.SetReadLimit(512)
	s.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongTimeout))
		return nil
	})

	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
		s.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	}
}

func (s *subscriber) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-s.send:
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
