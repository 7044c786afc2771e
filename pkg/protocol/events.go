// Package protocol defines the wire format for pigeon's WebSocket event
// stream. The HTTP API is request/response; everything the server pushes
// (delivery outcomes, session changes) travels as an EventFrame. This
// package is importable by external clients.
package protocol

import "encoding/json"

// Protocol version. Bumped when frame or payload shapes change.
const ProtocolVersion = 1

// Event names pushed from server to client.
const (
	EventDeliverySent    = "delivery.sent"
	EventDeliveryFailed  = "delivery.failed"
	EventDeliveryUnknown = "delivery.unknown"
	EventDeliverySkipped = "delivery.skipped"
	EventSessionState    = "session.state"
)

// EventFrame is pushed from server to client without a preceding request.
type EventFrame struct {
	Type    string      `json:"type"` // always "event"
	Event   string      `json:"event"`
	Payload interface{} `json:"payload,omitempty"`
	Seq     int64       `json:"seq,omitempty"` // ordering sequence number
}

// FrameTypeEvent is the only frame type pigeon pushes.
const FrameTypeEvent = "event"

// DeliveryEvent is the payload for the delivery.* events.
// JobID is empty for instant sends that are not backed by a stored job.
type DeliveryEvent struct {
	JobID       string `json:"jobId,omitempty"`
	HistoryID   string `json:"historyId"`
	ContactName string `json:"contactName"`
	Reason      string `json:"reason,omitempty"` // failed/unknown/skipped only
}

// SessionEvent is the payload for session.state.
type SessionEvent struct {
	State string `json:"state"` // linked | pending | disconnected
}

// NewEvent creates an event frame. Seq is stamped by the hub on broadcast.
func NewEvent(event string, payload interface{}) *EventFrame {
	return &EventFrame{
		Type:    FrameTypeEvent,
		Event:   event,
		Payload: payload,
	}
}

// ParseEvent decodes a raw frame into its name and raw payload bytes.
// Clients use it to switch on the event name before decoding the payload.
func ParseEvent(data []byte) (string, json.RawMessage, error) {
	var frame struct {
		Event   string          `json:"event"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &frame); err != nil {
		return "", nil, err
	}
	return frame.Event, frame.Payload, nil
}
