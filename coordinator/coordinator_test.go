package coordinator

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fenceline/fenceline/audit"
	"github.com/fenceline/fenceline/transport"
	"github.com/fenceline/fenceline/types"
)

type stubDiscoverer struct {
	result []string
	called bool
}

func (d *stubDiscoverer) Discover(ctx context.Context, targetNode string, enabled bool) []string {
	d.called = true
	if !enabled {
		return []string{types.FilesystemsDisabled}
	}
	if d.result == nil {
		return []string{types.FilesystemsNoneDetected}
	}
	return d.result
}

type stubTransport struct {
	submitted []types.FenceRequest
	submitErr error
	response  *types.FenceResponse
	awaitErr  error
}

func (t *stubTransport) Submit(req types.FenceRequest) error {
	if t.submitErr != nil {
		return t.submitErr
	}
	t.submitted = append(t.submitted, req)
	return nil
}

func (t *stubTransport) AwaitResponse(ctx context.Context, requestID string, timeout time.Duration) (*types.FenceResponse, error) {
	if t.awaitErr != nil {
		return nil, t.awaitErr
	}
	resp := *t.response
	resp.RequestID = requestID
	return &resp, nil
}

func newTestLog(t *testing.T) *audit.Log {
	t.Helper()
	l, err := audit.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to open audit log: %v", err)
	}
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func auditStatuses(t *testing.T, l *audit.Log) []string {
	t.Helper()
	var statuses []string
	err := audit.Replay(l.Dir(), time.Time{}, func(e *types.FenceEvent) error {
		statuses = append(statuses, e.Status)
		return nil
	})
	require.NoError(t, err)
	return statuses
}

func TestCoordinator_InvalidInput(t *testing.T) {
	log := newTestLog(t)
	disc := &stubDiscoverer{}
	tr := &stubTransport{}
	c := New(disc, tr, log, Config{OriginNode: "rabbit-01"})

	tests := []struct {
		name   string
		action string
		target string
	}{
		{"unknown action", "destroy", "compute-01"},
		{"monitor is not submittable", types.ActionMonitor, "compute-01"},
		{"empty target", types.ActionReboot, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := c.Run(context.Background(), tt.action, tt.target)

			assert.Equal(t, StateFailed, result.State)
			assert.Equal(t, 1, result.ExitCode())
			assert.Empty(t, tr.submitted, "invalid input must never write a request")
		})
	}

	assert.False(t, disc.called, "invalid input must not trigger discovery")
	assert.Empty(t, auditStatuses(t, log), "invalid input leaves no audit record")
}

func TestCoordinator_SuccessfulFence(t *testing.T) {
	log := newTestLog(t)
	disc := &stubDiscoverer{result: []string{"gfs2-scratch"}}
	tr := &stubTransport{response: &types.FenceResponse{
		Success:         true,
		ActionPerformed: types.ActionReboot,
		Message:         "node power cycled",
	}}
	c := New(disc, tr, log, Config{DiscoveryEnabled: true, OriginNode: "rabbit-01"})

	result := c.Run(context.Background(), types.ActionReboot, "compute-01")

	assert.Equal(t, StateSucceeded, result.State)
	assert.Equal(t, 0, result.ExitCode())
	assert.NotEmpty(t, result.RequestID)
	assert.Equal(t, []string{"gfs2-scratch"}, result.Filesystems)

	require.Len(t, tr.submitted, 1)
	req := tr.submitted[0]
	assert.Equal(t, result.RequestID, req.RequestID)
	assert.Equal(t, "rabbit-01", req.OriginNode)
	assert.Equal(t, []string{"gfs2-scratch"}, req.Filesystems)

	assert.Equal(t, []string{types.StatusRequested, types.StatusDiscovered, types.StatusCompleted},
		auditStatuses(t, log))
}

func TestCoordinator_ExplicitFailure(t *testing.T) {
	log := newTestLog(t)
	tr := &stubTransport{response: &types.FenceResponse{
		Success:         false,
		ActionPerformed: types.ActionOff,
		Message:         "power controller unreachable",
	}}
	c := New(&stubDiscoverer{}, tr, log, Config{OriginNode: "rabbit-01"})

	result := c.Run(context.Background(), types.ActionOff, "compute-01")

	assert.Equal(t, StateFailed, result.State)
	assert.Equal(t, 1, result.ExitCode())
	assert.Equal(t, "power controller unreachable", result.Message)
	assert.Equal(t, []string{types.StatusRequested, types.StatusFailed}, auditStatuses(t, log))
}

func TestCoordinator_SubmitFailureIsTerminal(t *testing.T) {
	log := newTestLog(t)
	tr := &stubTransport{submitErr: fmt.Errorf("disk full")}
	c := New(&stubDiscoverer{}, tr, log, Config{OriginNode: "rabbit-01"})

	result := c.Run(context.Background(), types.ActionReboot, "compute-01")

	assert.Equal(t, StateFailed, result.State)
	assert.Equal(t, []string{types.StatusRequested, types.StatusFailed}, auditStatuses(t, log))
}

func TestCoordinator_DiscoveryDisabledSentinel(t *testing.T) {
	log := newTestLog(t)
	tr := &stubTransport{response: &types.FenceResponse{Success: true, ActionPerformed: types.ActionReboot}}
	c := New(&stubDiscoverer{result: []string{"should-not-appear"}}, tr, log,
		Config{DiscoveryEnabled: false, OriginNode: "rabbit-01"})

	result := c.Run(context.Background(), types.ActionReboot, "compute-01")

	require.Equal(t, StateSucceeded, result.State)
	require.Len(t, tr.submitted, 1)
	assert.Equal(t, []string{types.FilesystemsDisabled}, tr.submitted[0].Filesystems,
		"disabled discovery must submit the sentinel regardless of target")
}

// Watcher unavailable: a real transport with nobody answering must time out
// and leave a terminal timed_out audit record.
func TestCoordinator_TimeoutAgainstRealTransport(t *testing.T) {
	log := newTestLog(t)
	base := t.TempDir()
	store, err := transport.NewStore(filepath.Join(base, "requests"), filepath.Join(base, "responses"))
	require.NoError(t, err)
	store.SetPollInterval(20 * time.Millisecond)

	c := New(&stubDiscoverer{}, store, log, Config{
		ResponseTimeout: 200 * time.Millisecond,
		OriginNode:      "rabbit-01",
	})

	start := time.Now()
	result := c.Run(context.Background(), types.ActionOff, "node-B")
	elapsed := time.Since(start)

	assert.Equal(t, StateTimedOut, result.State)
	assert.Equal(t, 1, result.ExitCode())
	assert.GreaterOrEqual(t, elapsed, 200*time.Millisecond)
	assert.Less(t, elapsed, 2*time.Second)

	statuses := auditStatuses(t, log)
	require.NotEmpty(t, statuses)
	assert.Equal(t, types.StatusTimedOut, statuses[len(statuses)-1],
		"last audit record must be the terminal timed_out")

	// The request is not retracted on timeout.
	paths, err := store.ListRequests()
	require.NoError(t, err)
	assert.Len(t, paths, 1)
}

// Two coordinators fencing different targets against one responder must each
// correlate to their own request with no cross-contamination.
func TestCoordinator_ConcurrentTargets(t *testing.T) {
	base := t.TempDir()
	store, err := transport.NewStore(filepath.Join(base, "requests"), filepath.Join(base, "responses"))
	require.NoError(t, err)
	store.SetPollInterval(10 * time.Millisecond)

	// Minimal responder standing in for the watcher.
	stop := make(chan struct{})
	responderDone := make(chan struct{})
	go func() {
		defer close(responderDone)
		answered := make(map[string]bool)
		for {
			select {
			case <-stop:
				return
			case <-time.After(10 * time.Millisecond):
			}
			paths, _ := store.ListRequests()
			for _, path := range paths {
				req, err := store.ReadRequest(path)
				if err != nil || answered[req.RequestID] {
					continue
				}
				answered[req.RequestID] = true
				_ = store.WriteResponse(types.FenceResponse{
					RequestID:       req.RequestID,
					Success:         true,
					ActionPerformed: req.Action,
					TargetNode:      req.TargetNode,
					Message:         "fenced " + req.TargetNode,
					Timestamp:       time.Now().UTC(),
				})
			}
		}
	}()

	var wg sync.WaitGroup
	results := make([]Result, 2)
	targets := []string{"compute-01", "compute-02"}

	for i, target := range targets {
		wg.Add(1)
		go func(i int, target string) {
			defer wg.Done()
			log, err := audit.Open(t.TempDir())
			if err != nil {
				t.Errorf("Failed to open audit log: %v", err)
				return
			}
			defer log.Close()

			c := New(&stubDiscoverer{}, store, log, Config{
				ResponseTimeout: 5 * time.Second,
				OriginNode:      "rabbit-01",
			})
			results[i] = c.Run(context.Background(), types.ActionReboot, target)
		}(i, target)
	}
	wg.Wait()
	close(stop)
	<-responderDone

	for i, target := range targets {
		assert.Equal(t, StateSucceeded, results[i].State, "target %s", target)
		assert.Equal(t, "fenced "+target, results[i].Message,
			"response for %s must correlate to its own request", target)
	}
	assert.NotEqual(t, results[0].RequestID, results[1].RequestID)
}
