// Package sender defines the contract between the dispatcher and the
// message delivery collaborator.
package sender

import "context"

// Status classifies one send attempt.
type Status int

const (
	// StatusOK means delivery to the transport was positively confirmed.
	StatusOK Status = iota

	// StatusFailed means a well-defined failure happened before or
	// during the attempt; the message did not go out.
	StatusFailed

	// StatusUnknown means the message was issued but confirmation never
	// arrived within the sender's timeout. The send may have taken
	// effect, so callers must treat the slot as consumed.
	StatusUnknown
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusFailed:
		return "failed"
	case StatusUnknown:
		return "unknown"
	}
	return "invalid"
}

// Outcome is the result of one send attempt.
type Outcome struct {
	Status Status
	Reason string // set for failed and unknown
}

// OK reports positive delivery confirmation.
func OK() Outcome {
	return Outcome{Status: StatusOK}
}

// Failed reports a definite failure; nothing went out.
func Failed(reason string) Outcome {
	return Outcome{Status: StatusFailed, Reason: reason}
}

// Unknown reports an unconfirmed send; the message may have gone out.
func Unknown(reason string) Outcome {
	return Outcome{Status: StatusUnknown, Reason: reason}
}

// Sender delivers one message at a time.
//
// Implementations own a single non-shareable resource (one browser
// session) and serialise Send internally. A call may block for many
// seconds; the correlation id ties the attempt to its history row.
type Sender interface {
	Send(ctx context.Context, contactName, message, correlationID string) Outcome

	// Ready cheaply reports whether a delivery can be attempted right
	// now. When false the dispatcher skips the whole tick.
	Ready(ctx context.Context) bool
}

// SessionState describes the link between the sender and the chat
// service account.
type SessionState string

const (
	SessionLinked       SessionState = "linked"
	SessionPending      SessionState = "pending" // waiting for a QR scan
	SessionDisconnected SessionState = "disconnected"
)

// SessionInfo is the pairing status exposed by session-aware senders.
type SessionInfo struct {
	State SessionState `json:"state"`

	// QR carries the pairing payload while State is pending.
	QR string `json:"qr,omitempty"`
}

// SessionReporter is implemented by senders that expose link state.
type SessionReporter interface {
	Session(ctx context.Context) SessionInfo
}
