package discover

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// KubeStorage discovers filesystems from the Kubernetes storage inventory.
// The storage orchestrator knows which shared filesystems exist regardless
// of the target's reachability, which makes this the preferred method.
type KubeStorage struct {
	runner  Runner
	kubectl string
}

// NewKubeStorage returns the kubectl-backed method. kubectlCmd defaults to
// "kubectl" when empty.
func NewKubeStorage(runner Runner, kubectlCmd string) *KubeStorage {
	if kubectlCmd == "" {
		kubectlCmd = "kubectl"
	}
	return &KubeStorage{runner: runner, kubectl: kubectlCmd}
}

// Name implements Method.
func (k *KubeStorage) Name() string { return "kube-storage" }

// nnfStorageList is the subset of the storage inventory we inspect.
type nnfStorageList struct {
	Items []struct {
		Metadata struct {
			Name string `json:"name"`
		} `json:"metadata"`
		Spec struct {
			FileSystemType string `json:"fileSystemType"`
		} `json:"spec"`
	} `json:"items"`
}

// Discover lists cluster-managed storages and keeps the gfs2-typed ones.
func (k *KubeStorage) Discover(ctx context.Context, targetNode string) ([]string, error) {
	out, err := k.runner.Run(ctx, k.kubectl, "get", "nnfstorage", "-A", "-o", "json")
	if err != nil {
		return nil, err
	}

	var list nnfStorageList
	if err := json.Unmarshal([]byte(out), &list); err != nil {
		return nil, fmt.Errorf("parse storage inventory: %w", err)
	}

	var filesystems []string
	for _, item := range list.Items {
		if item.Spec.FileSystemType == "gfs2" {
			filesystems = append(filesystems, item.Metadata.Name)
		}
	}
	return filesystems, nil
}

// ClusterStatus discovers filesystems from the cluster manager's live
// resource status. DLM and gfs2 resource rows stay visible even while the
// node they served is down.
type ClusterStatus struct {
	runner Runner
	pcs    string
}

// NewClusterStatus returns the resource-status method. pcsCmd defaults to
// "pcs" when empty.
func NewClusterStatus(runner Runner, pcsCmd string) *ClusterStatus {
	if pcsCmd == "" {
		pcsCmd = "pcs"
	}
	return &ClusterStatus{runner: runner, pcs: pcsCmd}
}

// Name implements Method.
func (c *ClusterStatus) Name() string { return "cluster-status" }

// Discover pattern-matches dlm/gfs2 resource rows mentioning the target.
func (c *ClusterStatus) Discover(ctx context.Context, targetNode string) ([]string, error) {
	out, err := c.runner.Run(ctx, c.pcs, "status", "resources")
	if err != nil {
		return nil, err
	}

	var filesystems []string
	for _, line := range strings.Split(out, "\n") {
		lower := strings.ToLower(line)
		if !strings.Contains(lower, "gfs2") || !strings.Contains(line, targetNode) {
			continue
		}
		filesystems = append(filesystems, extractNames(line)...)
	}
	return filesystems, nil
}

// ClusterConfig discovers filesystems from the static cluster configuration
// dump. Least specific to the target but available under any failure mode.
type ClusterConfig struct {
	runner Runner
	pcs    string
}

// NewClusterConfig returns the configuration-dump method.
func NewClusterConfig(runner Runner, pcsCmd string) *ClusterConfig {
	if pcsCmd == "" {
		pcsCmd = "pcs"
	}
	return &ClusterConfig{runner: runner, pcs: pcsCmd}
}

// Name implements Method.
func (c *ClusterConfig) Name() string { return "cluster-config" }

// Discover pattern-matches gfs2 resource definitions in the configuration.
func (c *ClusterConfig) Discover(ctx context.Context, targetNode string) ([]string, error) {
	out, err := c.runner.Run(ctx, c.pcs, "config", "show")
	if err != nil {
		return nil, err
	}

	var filesystems []string
	for _, line := range strings.Split(out, "\n") {
		lower := strings.ToLower(line)
		if !strings.Contains(lower, "gfs2") {
			continue
		}
		if !strings.Contains(lower, "resource") && !strings.Contains(lower, "primitive") {
			continue
		}
		filesystems = append(filesystems, extractNames(line)...)
	}
	return filesystems, nil
}

// extractNames pulls filesystem names out of a resource line. Two shapes
// appear in the wild: "dlm:NAME"-style qualified tokens and "gfs2-NAME"
// prefixed resource names.
func extractNames(line string) []string {
	var names []string
	for _, token := range strings.Fields(line) {
		lower := strings.ToLower(token)
		switch {
		case strings.Contains(lower, "gfs2") && strings.Contains(token, ":"):
			parts := strings.Split(token, ":")
			if name := parts[len(parts)-1]; name != "" {
				names = append(names, name)
			}
		case strings.HasPrefix(lower, "gfs2-"):
			if name := token[len("gfs2-"):]; name != "" {
				names = append(names, name)
			}
		}
	}
	return names
}
