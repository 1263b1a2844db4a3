package coordinator

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fenceline/fenceline/types"
)

func TestMonitor_WritableLogDir(t *testing.T) {
	log := newTestLog(t)
	c := New(&stubDiscoverer{}, &stubTransport{}, log, Config{OriginNode: "rabbit-01"})

	err := c.Monitor("")
	assert.NoError(t, err)

	assert.Empty(t, auditStatuses(t, log),
		"monitor must leave no audit trail")
}

func TestWriteMetadata(t *testing.T) {
	var sb strings.Builder
	require.NoError(t, WriteMetadata(&sb))

	out := sb.String()
	assert.True(t, strings.HasPrefix(out, "<?xml"))
	for _, action := range types.FenceActions {
		assert.Contains(t, out, `<action name="`+action+`"`)
	}
	assert.Contains(t, out, `<action name="monitor"`)
	assert.Contains(t, out, `<action name="metadata"`)
	assert.Contains(t, out, "</resource-agent>")
}
