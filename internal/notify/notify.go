// Package notify fans terminal attempt outcomes out to interested
// listeners, primarily the WebSocket event stream.
package notify

import "github.com/nextlevelbuilder/pigeon/pkg/protocol"

// Event is one notification: a delivery outcome or a session change.
type Event struct {
	Name        string
	JobID       string
	HistoryID   string
	ContactName string
	Reason      string
}

// Notifier receives one event per terminal history update. Fire and
// forget: implementations never block the caller and never surface
// errors back into the dispatcher.
type Notifier interface {
	Notify(ev Event)
}

// Sent builds a delivery.sent event.
func Sent(jobID, historyID, contactName string) Event {
	return Event{Name: protocol.EventDeliverySent, JobID: jobID, HistoryID: historyID, ContactName: contactName}
}

// Failed builds a delivery.failed event.
func Failed(jobID, historyID, contactName, reason string) Event {
	return Event{Name: protocol.EventDeliveryFailed, JobID: jobID, HistoryID: historyID, ContactName: contactName, Reason: reason}
}

// Unknown builds a delivery.unknown event.
func Unknown(jobID, historyID, contactName, reason string) Event {
	return Event{Name: protocol.EventDeliveryUnknown, JobID: jobID, HistoryID: historyID, ContactName: contactName, Reason: reason}
}

// Skipped builds a delivery.skipped event.
func Skipped(jobID, historyID, contactName, reason string) Event {
	return Event{Name: protocol.EventDeliverySkipped, JobID: jobID, HistoryID: historyID, ContactName: contactName, Reason: reason}
}

// Nop discards every event.
type Nop struct{}

func (Nop) Notify(Event) {}
