package discover

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Runner executes an external cluster query command and captures its output.
// Discovery methods treat every collaborator as a black box behind this
// interface so tests can substitute canned output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (string, error)
}

// ExecRunner runs commands via os/exec.
type ExecRunner struct{}

// Run executes the command and returns trimmed stdout. Stderr is discarded;
// discovery only ever pattern-matches stdout.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, name, args...).Output()
	if err != nil {
		return "", fmt.Errorf("run %s: %w", name, err)
	}
	return strings.TrimSpace(string(out)), nil
}
