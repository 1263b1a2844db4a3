// Package discover maps a fence target to the shared filesystems implicated
// by fencing it. During an actual fencing event the target may already be
// unreachable, so the chain leans on redundancy: every method degrades
// independently and the overall operation never fails.
package discover

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/fenceline/fenceline/types"
)

// DefaultMethodTimeout bounds each individual discovery method.
const DefaultMethodTimeout = 5 * time.Second

// Method is one way of finding filesystems for a target node. Returning an
// error or nothing means "no result here", never a fatal condition.
type Method interface {
	Name() string
	Discover(ctx context.Context, targetNode string) ([]string, error)
}

// Chain tries methods in preference order. Methods that need only
// cluster-manager-local state come first since they stay available while the
// target is down.
type Chain struct {
	methods []Method
	timeout time.Duration
	logger  zerolog.Logger
}

// NewChain builds a chain over the given methods.
func NewChain(logger zerolog.Logger, methods ...Method) *Chain {
	return &Chain{
		methods: methods,
		timeout: DefaultMethodTimeout,
		logger:  logger,
	}
}

// SetMethodTimeout overrides the per-method timeout.
func (c *Chain) SetMethodTimeout(d time.Duration) {
	if d > 0 {
		c.timeout = d
	}
}

// Discover returns the merged, first-seen-ordered, deduplicated filesystem
// list for targetNode. The result is never empty: a sentinel marks both the
// disabled and the nothing-found cases so log consumers can tell "checked,
// found nothing" from "not checked".
func (c *Chain) Discover(ctx context.Context, targetNode string, enabled bool) []string {
	if !enabled {
		c.logger.Debug().Msg("filesystem discovery disabled")
		return []string{types.FilesystemsDisabled}
	}

	var merged []string
	seen := make(map[string]bool)

	for _, method := range c.methods {
		results := c.tryMethod(ctx, method, targetNode)
		for _, fs := range results {
			if fs == "" || seen[fs] {
				continue
			}
			seen[fs] = true
			merged = append(merged, fs)
		}
	}

	if len(merged) == 0 {
		c.logger.Debug().Str("target", targetNode).Msg("no shared filesystems detected")
		return []string{types.FilesystemsNoneDetected}
	}

	c.logger.Debug().
		Str("target", targetNode).
		Strs("filesystems", merged).
		Msg("discovery complete")
	return merged
}

// tryMethod runs one method under its own timeout. Any failure degrades to
// an empty result.
func (c *Chain) tryMethod(ctx context.Context, method Method, targetNode string) []string {
	methodCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	results, err := method.Discover(methodCtx, targetNode)
	if err != nil {
		c.logger.Debug().
			Err(err).
			Str("method", method.Name()).
			Str("target", targetNode).
			Msg("discovery method failed, trying next")
		return nil
	}

	if len(results) > 0 {
		c.logger.Debug().
			Str("method", method.Name()).
			Strs("filesystems", results).
			Msg("discovery method succeeded")
	}
	return results
}
