package types

import (
	"fmt"
	"time"
)

// Event statuses cover every observable state transition of a fence
// operation. Every request ends with exactly one terminal status.
const (
	StatusRequested  = "requested"
	StatusDiscovered = "discovered"
	StatusCompleted  = "completed"
	StatusTimedOut   = "timed_out"
	StatusFailed     = "failed"
)

// IsTerminalStatus reports whether status closes the audit trail for a
// request.
func IsTerminalStatus(status string) bool {
	switch status {
	case StatusCompleted, StatusTimedOut, StatusFailed:
		return true
	}
	return false
}

// FenceEvent is the audit-log record, one per lifecycle transition.
type FenceEvent struct {
	Timestamp    time.Time `json:"timestamp"`
	Action       string    `json:"action"`
	TargetNode   string    `json:"target_node"`
	Filesystems  []string  `json:"filesystems"`
	Status       string    `json:"status"`
	Details      string    `json:"details,omitempty"`
	RecorderNode string    `json:"recorder_node"`
}

// Validate ensures the event is recordable.
func (e *FenceEvent) Validate() error {
	if e.Action == "" {
		return fmt.Errorf("event action cannot be empty")
	}
	if e.TargetNode == "" {
		return fmt.Errorf("event target node cannot be empty")
	}
	switch e.Status {
	case StatusRequested, StatusDiscovered, StatusCompleted, StatusTimedOut, StatusFailed:
	default:
		return fmt.Errorf("unknown event status %q", e.Status)
	}
	return nil
}
