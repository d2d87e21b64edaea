// Package status carries the dashboard's loading/success/error line to the
// page: a board holding the current status, a fan-out stream for live
// listeners and a translator for the message text.
package status

import "time"

// Kind is one of the three states the status line can show.
type Kind string

const (
	Loading Kind = "loading"
	Success Kind = "success"
	Error   Kind = "error"
)

// Message IDs understood by the translator.
const (
	MsgLoading        = "status_loading"
	MsgLoaded         = "status_loaded"
	MsgNoValidData    = "status_no_valid_data"
	MsgTransportError = "status_transport_error"
	MsgRefreshAborted = "status_refresh_aborted"
	MsgFiltersAll     = "status_filters_all"
	MsgFiltersVisible = "status_filters_visible"
	MsgFiltersReset   = "status_filters_reset"
	MsgShareCopied    = "share_copied"
	MsgShareManual    = "share_manual_copy"
)

// Status is one update of the status line. The text is resolved later from
// MessageID and Data so every client gets its own language.
type Status struct {
	Kind      Kind           `json:"kind"`
	MessageID string         `json:"messageId"`
	Data      map[string]any `json:"data,omitempty"`
	At        time.Time      `json:"at"`
	Seq       uint64         `json:"seq"`
}

// Publisher accepts status updates.
type Publisher interface {
	Publish(s Status)
}

// New is a shorthand for building a Status.
func New(kind Kind, messageID string, data map[string]any) Status {
	return Status{Kind: kind, MessageID: messageID, Data: data}
}

// Count builds the Data map used by the counting messages.
func Count(n int) map[string]any {
	return map[string]any{"Count": n}
}
