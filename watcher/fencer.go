package watcher

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Result is the structured outcome of a fencing attempt.
type Result struct {
	Success         bool
	Message         string
	ActionPerformed string
}

// Fencer performs the actual node isolation. This is the single
// customization point where real mechanisms (power control, storage
// detachment, cloud APIs) plug in; the watcher itself is
// mechanism-agnostic. Implementations must be idempotent per request since
// the watcher may retry after a crash.
type Fencer interface {
	Perform(ctx context.Context, action, targetNode string, filesystems []string) (Result, error)
}

// SimulateFencer pretends to fence and always succeeds. It exists for
// development and integration testing; production deployments configure a
// real mechanism.
type SimulateFencer struct {
	Delay time.Duration
}

// Perform implements Fencer.
func (f SimulateFencer) Perform(ctx context.Context, action, targetNode string, filesystems []string) (Result, error) {
	if f.Delay > 0 {
		select {
		case <-time.After(f.Delay):
		case <-ctx.Done():
			return Result{}, ctx.Err()
		}
	}

	return Result{
		Success:         true,
		Message:         fmt.Sprintf("simulated fence %s succeeded for %s", action, targetNode),
		ActionPerformed: action,
	}, nil
}

// ExecFencer delegates to an external fence command, the conventional way to
// hook up IPMI, PDU, or management-interface agents. The command is invoked
// as: <command> [args...] --action <action> --plug <target>.
type ExecFencer struct {
	Command string
	Args    []string
}

// Perform implements Fencer. Exit status zero means the fence succeeded.
func (f ExecFencer) Perform(ctx context.Context, action, targetNode string, filesystems []string) (Result, error) {
	if f.Command == "" {
		return Result{}, fmt.Errorf("no fence command configured")
	}

	args := append(append([]string{}, f.Args...), "--action", action, "--plug", targetNode)
	out, err := exec.CommandContext(ctx, f.Command, args...).CombinedOutput() // #nosec G204 -- command comes from operator configuration
	output := strings.TrimSpace(string(out))

	if err != nil {
		return Result{
			Success:         false,
			Message:         fmt.Sprintf("%s failed: %v: %s", f.Command, err, output),
			ActionPerformed: action,
		}, nil
	}

	return Result{
		Success:         true,
		Message:         fmt.Sprintf("%s %s succeeded for %s", f.Command, action, targetNode),
		ActionPerformed: action,
	}, nil
}
