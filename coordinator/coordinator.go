// Package coordinator implements the synchronous fence entry point invoked
// by the cluster manager. It discovers implicated filesystems, hands the
// fence request to the external executor through the file transport, and
// blocks until a correlated response arrives or the deadline passes.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/fenceline/fenceline/audit"
	"github.com/fenceline/fenceline/transport"
	"github.com/fenceline/fenceline/types"
)

// State is a position in the fence operation state machine.
type State string

const (
	StateInit             State = "INIT"
	StateDiscovering      State = "DISCOVERING"
	StateRequestWritten   State = "REQUEST_WRITTEN"
	StateAwaitingResponse State = "AWAITING_RESPONSE"
	StateSucceeded        State = "SUCCEEDED"
	StateFailed           State = "FAILED"
	StateTimedOut         State = "TIMED_OUT"
)

// DefaultResponseTimeout is how long the coordinator waits for the watcher.
// Deployments must keep it below the cluster manager's own fencing timeout.
const DefaultResponseTimeout = 60 * time.Second

// DefaultDiscoveryTimeout bounds the whole discovery phase.
const DefaultDiscoveryTimeout = 15 * time.Second

// Discoverer produces the filesystems implicated by fencing a node.
type Discoverer interface {
	Discover(ctx context.Context, targetNode string, enabled bool) []string
}

// Transport is the request/response channel to the external executor.
type Transport interface {
	Submit(req types.FenceRequest) error
	AwaitResponse(ctx context.Context, requestID string, timeout time.Duration) (*types.FenceResponse, error)
}

// Config holds per-invocation coordinator settings.
type Config struct {
	ResponseTimeout  time.Duration
	DiscoveryTimeout time.Duration
	DiscoveryEnabled bool
	OriginNode       string
}

// Result is the terminal outcome of a fence invocation.
type Result struct {
	State       State
	RequestID   string
	Filesystems []string
	Message     string
}

// ExitCode maps the terminal state to the STONITH exit-code contract:
// 0 means fencing confirmed, anything else means retry or escalate.
func (r Result) ExitCode() int {
	if r.State == StateSucceeded {
		return 0
	}
	return 1
}

// Coordinator drives one fence operation end to end.
type Coordinator struct {
	discoverer Discoverer
	transport  Transport
	log        *audit.Log
	cfg        Config
}

// New creates a coordinator. Zero timeouts take the defaults; an empty
// origin node takes the local hostname.
func New(discoverer Discoverer, tr Transport, log *audit.Log, cfg Config) *Coordinator {
	if cfg.ResponseTimeout <= 0 {
		cfg.ResponseTimeout = DefaultResponseTimeout
	}
	if cfg.DiscoveryTimeout <= 0 {
		cfg.DiscoveryTimeout = DefaultDiscoveryTimeout
	}
	if cfg.OriginNode == "" {
		cfg.OriginNode, _ = os.Hostname()
	}

	return &Coordinator{
		discoverer: discoverer,
		transport:  tr,
		log:        log,
		cfg:        cfg,
	}
}

// Run executes the fence state machine for action against targetNode.
// Every submitted request ends with exactly one terminal audit record.
func (c *Coordinator) Run(ctx context.Context, action, targetNode string) Result {
	// INIT: invalid input fails fast, before any request exists. A debug
	// note is the only trace.
	if !types.IsFenceAction(action) {
		c.log.Debug().Str("action", action).Msg("rejecting unknown fence action")
		return Result{State: StateFailed, Message: fmt.Sprintf("unknown fence action %q", action)}
	}
	if targetNode == "" {
		c.log.Debug().Msg("rejecting fence request without target node")
		return Result{State: StateFailed, Message: "target node is required"}
	}

	// DISCOVERING: bounded, and never fatal on any outcome.
	discoverCtx, cancel := context.WithTimeout(ctx, c.cfg.DiscoveryTimeout)
	filesystems := c.discoverer.Discover(discoverCtx, targetNode, c.cfg.DiscoveryEnabled)
	cancel()

	req := types.FenceRequest{
		RequestID:   uuid.NewString(),
		Timestamp:   time.Now().UTC(),
		Action:      action,
		TargetNode:  targetNode,
		Filesystems: filesystems,
		OriginNode:  c.cfg.OriginNode,
	}

	c.record(req, types.StatusRequested,
		fmt.Sprintf("fence action %s requested by cluster manager", action))
	if c.cfg.DiscoveryEnabled {
		c.record(req, types.StatusDiscovered,
			fmt.Sprintf("discovery resolved %d implicated filesystems", len(filesystems)))
	}

	// REQUEST_WRITTEN: a write failure here is fatal to this invocation;
	// the atomic rename in the transport guarantees the watcher never saw
	// a partial request.
	if err := c.transport.Submit(req); err != nil {
		c.log.Debug().Err(err).Str("request_id", req.RequestID).Msg("failed to write fence request")
		c.record(req, types.StatusFailed,
			fmt.Sprintf("failed to create fence request file: %v", err))
		return Result{
			State:       StateFailed,
			RequestID:   req.RequestID,
			Filesystems: filesystems,
			Message:     fmt.Sprintf("submit fence request: %v", err),
		}
	}

	c.log.Debug().
		Str("request_id", req.RequestID).
		Str("target", targetNode).
		Dur("timeout", c.cfg.ResponseTimeout).
		Msg("waiting for fence response")

	// AWAITING_RESPONSE: the only deliberate blocking point in the system.
	resp, err := c.transport.AwaitResponse(ctx, req.RequestID, c.cfg.ResponseTimeout)
	switch {
	case errors.Is(err, transport.ErrTimedOut):
		c.record(req, types.StatusTimedOut,
			fmt.Sprintf("fence action %s timed out after %s", action, c.cfg.ResponseTimeout))
		return Result{
			State:       StateTimedOut,
			RequestID:   req.RequestID,
			Filesystems: filesystems,
			Message:     fmt.Sprintf("no fence response within %s", c.cfg.ResponseTimeout),
		}
	case err != nil:
		c.record(req, types.StatusFailed,
			fmt.Sprintf("fence action %s aborted: %v", action, err))
		return Result{
			State:       StateFailed,
			RequestID:   req.RequestID,
			Filesystems: filesystems,
			Message:     fmt.Sprintf("await fence response: %v", err),
		}
	}

	if resp.Success {
		c.record(req, types.StatusCompleted,
			fmt.Sprintf("fence action %s completed successfully: %s", resp.ActionPerformed, resp.Message))
		return Result{
			State:       StateSucceeded,
			RequestID:   req.RequestID,
			Filesystems: filesystems,
			Message:     resp.Message,
		}
	}

	c.record(req, types.StatusFailed,
		fmt.Sprintf("fence action %s failed: %s", action, resp.Message))
	return Result{
		State:       StateFailed,
		RequestID:   req.RequestID,
		Filesystems: filesystems,
		Message:     resp.Message,
	}
}

// record writes one audit event. Logging failures are reported but never
// change the fence outcome.
func (c *Coordinator) record(req types.FenceRequest, status, details string) {
	err := c.log.Record(types.FenceEvent{
		Action:       req.Action,
		TargetNode:   req.TargetNode,
		Filesystems:  req.Filesystems,
		Status:       status,
		Details:      details,
		RecorderNode: c.cfg.OriginNode,
	})
	if err != nil {
		c.log.Debug().Err(err).Str("status", status).Msg("audit record failed")
	}
}
