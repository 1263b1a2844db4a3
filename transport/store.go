// Package transport implements the file-based request/response channel
// between the fence coordinator and the watcher. The two processes share
// nothing but these directories; every file is written to a temporary path
// and renamed into place so readers never observe a partial write.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fenceline/fenceline/types"
)

// ErrTimedOut is returned by AwaitResponse when no correlated response
// appeared within the deadline.
var ErrTimedOut = errors.New("timed out waiting for fence response")

// DefaultPollInterval is how often AwaitResponse rescans the response
// directory.
const DefaultPollInterval = 500 * time.Millisecond

// Store is the request/response file store. It never deletes files on the
// request/response path; retention is an out-of-band policy (see Cleanup).
type Store struct {
	requestDir   string
	responseDir  string
	pollInterval time.Duration
}

// NewStore creates both directories if needed and returns a store over them.
func NewStore(requestDir, responseDir string) (*Store, error) {
	for _, dir := range []string{requestDir, responseDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create transport directory %s: %w", dir, err)
		}
	}

	return &Store{
		requestDir:   requestDir,
		responseDir:  responseDir,
		pollInterval: DefaultPollInterval,
	}, nil
}

// SetPollInterval overrides the response polling interval.
func (s *Store) SetPollInterval(d time.Duration) {
	if d > 0 {
		s.pollInterval = d
	}
}

// RequestDir returns the request directory path.
func (s *Store) RequestDir() string { return s.requestDir }

// ResponseDir returns the response directory path.
func (s *Store) ResponseDir() string { return s.responseDir }

// fileName derives the on-disk name for a request/response pair. The name
// is a hint for operators; correlation is always by the request_id field.
func fileName(targetNode, requestID string) string {
	return fmt.Sprintf("%s-%s.json", targetNode, requestID)
}

// Submit atomically writes req into the request directory.
func (s *Store) Submit(req types.FenceRequest) error {
	if err := req.Validate(); err != nil {
		return fmt.Errorf("invalid fence request: %w", err)
	}

	data, err := json.MarshalIndent(req, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal fence request: %w", err)
	}

	return writeAtomic(s.requestDir, fileName(req.TargetNode, req.RequestID), data)
}

// WriteResponse atomically writes resp into the response directory. It must
// succeed even when the coordinator that wrote the request has already given
// up and exited.
func (s *Store) WriteResponse(resp types.FenceResponse) error {
	if err := resp.Validate(); err != nil {
		return fmt.Errorf("invalid fence response: %w", err)
	}

	data, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal fence response: %w", err)
	}

	return writeAtomic(s.responseDir, fileName(resp.TargetNode, resp.RequestID), data)
}

// ReadRequest parses the request file at path.
func (s *Store) ReadRequest(path string) (*types.FenceRequest, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- paths come from our own directory listing
	if err != nil {
		return nil, fmt.Errorf("read fence request: %w", err)
	}

	var req types.FenceRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("parse fence request %s: %w", filepath.Base(path), err)
	}
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("fence request %s: %w", filepath.Base(path), err)
	}
	return &req, nil
}

// ListRequests returns all request file paths, oldest first by name.
func (s *Store) ListRequests() ([]string, error) {
	return listJSON(s.requestDir)
}

// ListResponses returns all response file paths.
func (s *Store) ListResponses() ([]string, error) {
	return listJSON(s.responseDir)
}

func listJSON(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		paths = append(paths, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

// AwaitResponse polls the response directory until a response whose
// request_id field matches requestID appears, the timeout elapses, or ctx is
// cancelled. Files that fail to parse are skipped and retried on the next
// poll.
func (s *Store) AwaitResponse(ctx context.Context, requestID string, timeout time.Duration) (*types.FenceResponse, error) {
	deadline := time.After(timeout)
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		if resp := s.findResponse(requestID); resp != nil {
			return resp, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline:
			return nil, ErrTimedOut
		case <-ticker.C:
		}
	}
}

// findResponse scans every response file for a matching request_id. The
// filename is deliberately ignored so the watcher is free to use its own
// naming convention.
func (s *Store) findResponse(requestID string) *types.FenceResponse {
	paths, err := listJSON(s.responseDir)
	if err != nil {
		return nil
	}

	for _, path := range paths {
		data, err := os.ReadFile(path) // #nosec G304 -- paths come from our own directory listing
		if err != nil {
			continue
		}

		var resp types.FenceResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			continue
		}
		if resp.RequestID == requestID {
			return &resp
		}
	}
	return nil
}

// Remove deletes the request/response pair for a consumed operation. Safe to
// omit entirely; correctness never depends on it.
func (s *Store) Remove(targetNode, requestID string) {
	_ = os.Remove(filepath.Join(s.requestDir, fileName(targetNode, requestID)))
	_ = os.Remove(filepath.Join(s.responseDir, fileName(targetNode, requestID)))
}

// writeAtomic writes data to a temporary file in dir, syncs it, and renames
// it into place under name.
func writeAtomic(dir, name string, data []byte) error {
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpName, filepath.Join(dir, name)); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}
