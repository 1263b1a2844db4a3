package coordinator

import (
	"fmt"
	"io"

	"github.com/fenceline/fenceline/types"
)

// WriteMetadata emits the resource-agent-style description of the agent's
// parameters and actions. It performs no other I/O.
func WriteMetadata(w io.Writer) error {
	const header = `<?xml version="1.0" ?>
<resource-agent name="fenceline" shortdesc="Shared-storage fence coordinator">
  <longdesc>
fenceline is a fence coordinator for two-cluster shared-storage deployments.
It records every fencing event with the shared filesystems implicated, hands
the fence action to an external executor through a file-based request and
response channel, and reports the outcome back to the cluster manager.
  </longdesc>
  <parameters>
    <parameter name="target" unique="0" required="1">
      <content type="string" />
      <shortdesc lang="en">Node to be fenced</shortdesc>
    </parameter>
    <parameter name="timeout" unique="0" required="0">
      <content type="string" default="60s" />
      <shortdesc lang="en">How long to wait for the fence response</shortdesc>
    </parameter>
    <parameter name="log-dir" unique="0" required="0">
      <content type="string" default="/var/log/fenceline" />
      <shortdesc lang="en">Directory for fence event logs</shortdesc>
    </parameter>
    <parameter name="no-discovery" unique="0" required="0">
      <content type="boolean" default="false" />
      <shortdesc lang="en">Disable shared-filesystem discovery</shortdesc>
    </parameter>
  </parameters>
  <actions>
`

	if _, err := io.WriteString(w, header); err != nil {
		return err
	}

	for _, action := range types.FenceActions {
		if _, err := fmt.Fprintf(w, "    <action name=%q />\n", action); err != nil {
			return err
		}
	}

	const footer = `    <action name="monitor" />
    <action name="metadata" />
  </actions>
</resource-agent>
`
	_, err := io.WriteString(w, footer)
	return err
}
