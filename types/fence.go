package types

import (
	"fmt"
	"time"
)

// Fence actions mirror the actions a cluster manager may request from a
// STONITH-style agent.
const (
	ActionOn     = "on"
	ActionOff    = "off"
	ActionReboot = "reboot"
	ActionStatus = "status"

	// Agent-local actions. These never produce a fence request.
	ActionMonitor  = "monitor"
	ActionMetadata = "metadata"
)

// Discovery sentinels. The filesystems list is never left empty: downstream
// log consumers must be able to tell "checked, found nothing" apart from
// "not checked".
const (
	FilesystemsDisabled     = "discovery-disabled"
	FilesystemsNoneDetected = "none-detected"
)

// FenceActions lists the actions that go through the request/response
// transport, in metadata order.
var FenceActions = []string{ActionOn, ActionOff, ActionReboot, ActionStatus}

// IsFenceAction reports whether action requires the external executor.
func IsFenceAction(action string) bool {
	switch action {
	case ActionOn, ActionOff, ActionReboot, ActionStatus:
		return true
	}
	return false
}

// FenceRequest is written once by the coordinator and consumed by the
// watcher. It is never mutated after submission.
type FenceRequest struct {
	RequestID   string    `json:"request_id"`
	Timestamp   time.Time `json:"timestamp"`
	Action      string    `json:"action"`
	TargetNode  string    `json:"target_node"`
	Filesystems []string  `json:"filesystems"`
	OriginNode  string    `json:"origin_node"`
}

// Validate ensures the request has the fields both sides depend on.
func (r *FenceRequest) Validate() error {
	if r.RequestID == "" {
		return fmt.Errorf("request ID cannot be empty")
	}
	if !IsFenceAction(r.Action) {
		return fmt.Errorf("unknown fence action %q", r.Action)
	}
	if r.TargetNode == "" {
		return fmt.Errorf("target node cannot be empty")
	}
	return nil
}

// FenceResponse is written once by the watcher after the fencing action
// completed or definitively failed. Correlation with the originating request
// is strictly by RequestID, never by filename.
type FenceResponse struct {
	RequestID       string    `json:"request_id"`
	Success         bool      `json:"success"`
	ActionPerformed string    `json:"action_performed"`
	TargetNode      string    `json:"target_node"`
	Message         string    `json:"message"`
	Timestamp       time.Time `json:"timestamp"`
}

// Validate ensures the response can be correlated.
func (r *FenceResponse) Validate() error {
	if r.RequestID == "" {
		return fmt.Errorf("response request ID cannot be empty")
	}
	return nil
}
