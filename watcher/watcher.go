// Package watcher implements the long-lived executor daemon. It observes
// the fence request directory, performs the configured fencing action, and
// writes the correlated response. The coordinator that wrote a request may
// be long gone by the time the response lands; responses are fire-and-forget.
package watcher

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/fenceline/fenceline/transport"
	"github.com/fenceline/fenceline/types"
)

// DefaultRescanInterval is the polling fallback for deployments where
// inotify events are unreliable (network filesystems among them).
const DefaultRescanInterval = 2 * time.Second

// DefaultActionTimeout bounds a single fencing action.
const DefaultActionTimeout = 30 * time.Second

// Config holds watcher settings.
type Config struct {
	// IndexPath is the bbolt file backing the processed-request index.
	IndexPath string
	// RescanInterval is the polling fallback period.
	RescanInterval time.Duration
	// ActionTimeout bounds each Fencer.Perform call.
	ActionTimeout time.Duration
}

// Watcher is the executor loop. Requests are processed sequentially: two
// concurrent operations never share a fencing mechanism invocation, and
// same-target duplicates collapse on the idempotency key.
type Watcher struct {
	store   *transport.Store
	fencer  Fencer
	index   *processedIndex
	logger  zerolog.Logger
	metrics *Metrics

	rescanInterval time.Duration
	actionTimeout  time.Duration
}

// New creates a watcher over store, executing actions through fencer.
// metrics may be nil.
func New(store *transport.Store, fencer Fencer, logger zerolog.Logger, metrics *Metrics, cfg Config) (*Watcher, error) {
	if cfg.IndexPath == "" {
		cfg.IndexPath = filepath.Join(filepath.Dir(store.RequestDir()), "processed.db")
	}
	if cfg.RescanInterval <= 0 {
		cfg.RescanInterval = DefaultRescanInterval
	}
	if cfg.ActionTimeout <= 0 {
		cfg.ActionTimeout = DefaultActionTimeout
	}

	index, err := openProcessedIndex(cfg.IndexPath)
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		store:          store,
		fencer:         fencer,
		index:          index,
		logger:         logger,
		metrics:        metrics,
		rescanInterval: cfg.RescanInterval,
		actionTimeout:  cfg.ActionTimeout,
	}

	if err := w.rebuildFromResponses(); err != nil {
		_ = index.Close()
		return nil, err
	}

	return w, nil
}

// Close releases the processed index.
func (w *Watcher) Close() error {
	return w.index.Close()
}

// ProcessedCount returns the number of requests marked processed.
func (w *Watcher) ProcessedCount() int {
	return w.index.Len()
}

// rebuildFromResponses seeds the processed index from response files already
// on disk, so a rebuilt index file does not cause double-fencing.
func (w *Watcher) rebuildFromResponses() error {
	paths, err := w.store.ListResponses()
	if err != nil {
		return fmt.Errorf("rebuild processed index: %w", err)
	}

	for _, path := range paths {
		data, err := os.ReadFile(path) // #nosec G304 -- paths come from our own directory listing
		if err != nil {
			continue
		}
		var resp types.FenceResponse
		if err := json.Unmarshal(data, &resp); err != nil || resp.RequestID == "" {
			continue
		}
		if w.index.Has(resp.RequestID) {
			continue
		}
		if err := w.index.Mark(resp.RequestID, resp.TargetNode); err != nil {
			return err
		}
	}
	return nil
}

// Run processes requests until ctx is cancelled. Filesystem notifications
// drive the fast path; a periodic rescan catches anything they miss under
// the same idempotent-processing contract.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	defer func() { _ = fsw.Close() }()

	if err := fsw.Add(w.store.RequestDir()); err != nil {
		return fmt.Errorf("watch request directory: %w", err)
	}

	w.logger.Info().
		Str("request_dir", w.store.RequestDir()).
		Str("response_dir", w.store.ResponseDir()).
		Dur("rescan", w.rescanInterval).
		Msg("fence watcher started")

	// Catch up on requests that arrived while we were down.
	w.Scan(ctx)

	ticker := time.NewTicker(w.rescanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Msg("fence watcher stopping")
			return nil
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			// Requests become visible only through an atomic rename, so
			// Write events are ignored; an in-place foreign writer is
			// caught by the rescan tick once its file parses.
			if event.Op&(fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if !strings.HasSuffix(event.Name, ".json") {
				continue
			}
			w.processFile(ctx, event.Name)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn().Err(err).Msg("fsnotify error")
		case <-ticker.C:
			w.Scan(ctx)
		}
	}
}

// Scan processes every request file currently in the directory.
func (w *Watcher) Scan(ctx context.Context) {
	paths, err := w.store.ListRequests()
	if err != nil {
		w.logger.Warn().Err(err).Msg("failed to list fence requests")
		return
	}

	for _, path := range paths {
		select {
		case <-ctx.Done():
			return
		default:
		}
		w.processFile(ctx, path)
	}
}

// processFile handles one request file end to end. A malformed file is
// logged and skipped; it must never take the loop down.
func (w *Watcher) processFile(ctx context.Context, path string) {
	req, err := w.store.ReadRequest(path)
	if err != nil {
		w.logger.Warn().Err(err).Str("file", filepath.Base(path)).
			Msg("skipping malformed fence request")
		w.metrics.RecordMalformed(ctx)
		return
	}

	if w.index.Has(req.RequestID) {
		w.logger.Debug().Str("request_id", req.RequestID).
			Msg("request already processed, skipping")
		return
	}

	w.logger.Info().
		Str("request_id", req.RequestID).
		Str("action", req.Action).
		Str("target", req.TargetNode).
		Strs("filesystems", req.Filesystems).
		Msg("processing fence request")

	start := time.Now()
	result := w.perform(ctx, req)
	w.metrics.RecordProcessed(ctx, req.Action, result.Success, time.Since(start).Seconds())

	resp := types.FenceResponse{
		RequestID:       req.RequestID,
		Success:         result.Success,
		ActionPerformed: result.ActionPerformed,
		TargetNode:      req.TargetNode,
		Message:         result.Message,
		Timestamp:       time.Now().UTC(),
	}

	// Response first, processed-mark second: a crash between the two is
	// recovered by the response rebuild, never by losing the event.
	if err := w.store.WriteResponse(resp); err != nil {
		w.logger.Error().Err(err).Str("request_id", req.RequestID).
			Msg("failed to write fence response")
		return
	}

	if err := w.index.Mark(req.RequestID, req.TargetNode); err != nil {
		w.logger.Warn().Err(err).Str("request_id", req.RequestID).
			Msg("failed to persist processed mark")
	}

	w.logger.Info().
		Str("request_id", req.RequestID).
		Bool("success", resp.Success).
		Str("action_performed", resp.ActionPerformed).
		Msg("fence response written")
}

// perform runs the fencing action under its own timeout and folds fencer
// errors into an explicit failure response.
func (w *Watcher) perform(ctx context.Context, req *types.FenceRequest) Result {
	actionCtx, cancel := context.WithTimeout(ctx, w.actionTimeout)
	defer cancel()

	result, err := w.fencer.Perform(actionCtx, req.Action, req.TargetNode, req.Filesystems)
	if err != nil {
		return Result{
			Success:         false,
			Message:         fmt.Sprintf("fence mechanism error: %v", err),
			ActionPerformed: req.Action,
		}
	}
	if result.ActionPerformed == "" {
		result.ActionPerformed = req.Action
	}
	return result
}
