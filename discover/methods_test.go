package discover

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	output map[string]string
	err    error
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	key := name + " " + strings.Join(args, " ")
	out, ok := f.output[key]
	if !ok {
		return "", fmt.Errorf("unexpected command: %s", key)
	}
	return out, nil
}

func TestKubeStorage_Discover(t *testing.T) {
	inventory := `{
  "items": [
    {"metadata": {"name": "scratch-fs"}, "spec": {"fileSystemType": "gfs2"}},
    {"metadata": {"name": "fast-lustre"}, "spec": {"fileSystemType": "lustre"}},
    {"metadata": {"name": "home-fs"}, "spec": {"fileSystemType": "gfs2"}}
  ]
}`
	runner := &fakeRunner{output: map[string]string{
		"kubectl get nnfstorage -A -o json": inventory,
	}}

	method := NewKubeStorage(runner, "")
	got, err := method.Discover(context.Background(), "compute-01")

	require.NoError(t, err)
	assert.Equal(t, []string{"scratch-fs", "home-fs"}, got,
		"only gfs2-typed storages are implicated")
}

func TestKubeStorage_BadJSON(t *testing.T) {
	runner := &fakeRunner{output: map[string]string{
		"kubectl get nnfstorage -A -o json": "Error from server: not found",
	}}

	method := NewKubeStorage(runner, "")
	_, err := method.Discover(context.Background(), "compute-01")
	assert.Error(t, err)
}

func TestKubeStorage_CommandFailure(t *testing.T) {
	runner := &fakeRunner{err: fmt.Errorf("exec: kubectl: not found")}

	method := NewKubeStorage(runner, "")
	_, err := method.Discover(context.Background(), "compute-01")
	assert.Error(t, err)
}

func TestClusterStatus_Discover(t *testing.T) {
	status := strings.Join([]string{
		"  * dlm-clone [dlm]: Started compute-01 compute-02",
		"  * gfs2-scratch (ocf:heartbeat:Filesystem): Started compute-01",
		"  * gfs2-home (ocf:heartbeat:Filesystem): Started compute-02",
		"  * webserver (systemd:httpd): Started compute-01",
	}, "\n")
	runner := &fakeRunner{output: map[string]string{
		"pcs status resources": status,
	}}

	method := NewClusterStatus(runner, "")
	got, err := method.Discover(context.Background(), "compute-01")

	require.NoError(t, err)
	assert.Equal(t, []string{"scratch"}, got,
		"only gfs2 rows mentioning the target count")
}

func TestClusterStatus_QualifiedTokens(t *testing.T) {
	runner := &fakeRunner{output: map[string]string{
		"pcs status resources": " * clone:gfs2:storage-1 Started compute-01",
	}}

	method := NewClusterStatus(runner, "")
	got, err := method.Discover(context.Background(), "compute-01")

	require.NoError(t, err)
	assert.Equal(t, []string{"storage-1"}, got)
}

func TestClusterConfig_Discover(t *testing.T) {
	config := strings.Join([]string{
		"Resources:",
		" Resource: gfs2-scratch (class=ocf provider=heartbeat type=Filesystem)",
		"  Attributes: device=/dev/vg/scratch fstype=gfs2",
		" Resource: webserver (class=systemd type=httpd)",
		" primitive gfs2-projects ocf:heartbeat:Filesystem",
	}, "\n")
	runner := &fakeRunner{output: map[string]string{
		"pcs config show": config,
	}}

	method := NewClusterConfig(runner, "")
	got, err := method.Discover(context.Background(), "compute-01")

	require.NoError(t, err)
	assert.Contains(t, got, "scratch")
	assert.Contains(t, got, "projects")
}
