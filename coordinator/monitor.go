package coordinator

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// Monitor verifies the agent itself is operational: the audit log directory
// must be writable. It never contacts the watcher and leaves no trace in the
// audit trail beyond debug notes, so the cluster manager can poll it
// frequently.
func (c *Coordinator) Monitor(kubectlCmd string) error {
	dir := c.log.Dir()

	probe := filepath.Join(dir, ".monitor-probe")
	f, err := os.Create(probe) // #nosec G304 -- probe lives in our own log directory
	if err != nil {
		return fmt.Errorf("log directory %s is not writable: %w", dir, err)
	}
	_ = f.Close()
	_ = os.Remove(probe)

	if c.cfg.DiscoveryEnabled {
		if kubectlCmd == "" {
			kubectlCmd = "kubectl"
		}
		if _, err := exec.LookPath(kubectlCmd); err != nil {
			c.log.Debug().Str("kubectl", kubectlCmd).
				Msg("kubectl not available, filesystem discovery will be limited")
		} else {
			c.log.Debug().Msg("kubectl available for filesystem discovery")
		}
	}

	c.log.Debug().Msg("monitor successful, fence coordinator operational")
	return nil
}
