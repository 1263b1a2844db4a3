package discover

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fenceline/fenceline/types"
)

type stubMethod struct {
	name    string
	results []string
	err     error
	delay   time.Duration
	calls   int
}

func (m *stubMethod) Name() string { return m.name }

func (m *stubMethod) Discover(ctx context.Context, targetNode string) ([]string, error) {
	m.calls++
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return m.results, m.err
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func TestChain_Disabled(t *testing.T) {
	m := &stubMethod{name: "stub", results: []string{"gfs2-scratch"}}
	chain := NewChain(testLogger(), m)

	got := chain.Discover(context.Background(), "compute-01", false)

	assert.Equal(t, []string{types.FilesystemsDisabled}, got)
	assert.Zero(t, m.calls, "disabled discovery must not invoke methods")
}

func TestChain_MergesAndDeduplicates(t *testing.T) {
	first := &stubMethod{name: "first", results: []string{"scratch", "home"}}
	second := &stubMethod{name: "second", results: []string{"home", "projects"}}
	chain := NewChain(testLogger(), first, second)

	got := chain.Discover(context.Background(), "compute-01", true)

	assert.Equal(t, []string{"scratch", "home", "projects"}, got,
		"merge must preserve first-seen order")
}

func TestChain_MethodErrorDegradesToNext(t *testing.T) {
	failing := &stubMethod{name: "failing", err: fmt.Errorf("cluster query failed")}
	working := &stubMethod{name: "working", results: []string{"scratch"}}
	chain := NewChain(testLogger(), failing, working)

	got := chain.Discover(context.Background(), "compute-01", true)

	assert.Equal(t, []string{"scratch"}, got)
	assert.Equal(t, 1, failing.calls)
	assert.Equal(t, 1, working.calls)
}

func TestChain_AllMethodsFailReturnsSentinel(t *testing.T) {
	a := &stubMethod{name: "a", err: fmt.Errorf("boom")}
	b := &stubMethod{name: "b", err: fmt.Errorf("boom")}
	chain := NewChain(testLogger(), a, b)

	got := chain.Discover(context.Background(), "compute-01", true)

	assert.Equal(t, []string{types.FilesystemsNoneDetected}, got)
}

func TestChain_SlowMethodTimesOutIndependently(t *testing.T) {
	slow := &stubMethod{name: "slow", results: []string{"never"}, delay: time.Second}
	fast := &stubMethod{name: "fast", results: []string{"scratch"}}
	chain := NewChain(testLogger(), slow, fast)
	chain.SetMethodTimeout(20 * time.Millisecond)

	start := time.Now()
	got := chain.Discover(context.Background(), "compute-01", true)

	require.Equal(t, []string{"scratch"}, got)
	assert.Less(t, time.Since(start), 500*time.Millisecond,
		"slow method timeout must not stall the chain")
}

func TestChain_NoMethodsReturnsSentinel(t *testing.T) {
	chain := NewChain(testLogger())
	got := chain.Discover(context.Background(), "compute-01", true)
	assert.Equal(t, []string{types.FilesystemsNoneDetected}, got)
}
