package protocol

// Stable error kind identifiers. These appear verbatim in API error
// bodies, structured logs, and history reason strings, so clients can
// match on them.
const (
	ErrValidation  = "validation"   // rejected input; never reaches dispatch
	ErrNotReady    = "not-ready"    // sender unavailable
	ErrSkippedLate = "skipped-late" // tolerance exceeded, slot skipped
	ErrSendFailed  = "send-failed"  // sender reported a definite failure
	ErrSendUnknown = "send-unknown" // send issued, delivery unverifiable
	ErrStore       = "store-error"  // persistence failure
	ErrNotFound    = "not-found"    // unknown job or resource
	ErrInternal    = "internal"     // unexpected failure
)
