package launch

import (
	"testing"

	"github.com/cuemby/hamster/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpecCli(t *testing.T) {
	dapp := &types.DApp{ID: 5, Owner: "alice", Name: "web"}
	deployment := &types.Deployment{Method: types.CliDeployment("nginx", 8080), CPU: 2, Memory: 4}

	spec, err := Spec(dapp, deployment)
	require.NoError(t, err)

	assert.Equal(t, "web", spec.Hostname)
	assert.Equal(t, "5", spec.Annotations[AnnotationDAppID])
	assert.Equal(t, "alice", spec.Annotations[AnnotationOwner])
	assert.Equal(t, "cli", spec.Annotations[AnnotationMethod])
	assert.Equal(t, "nginx", spec.Annotations[AnnotationImage])
	assert.Equal(t, "8080", spec.Annotations[AnnotationPort])
	assert.NotContains(t, spec.Annotations, AnnotationCID)
	assert.Contains(t, spec.Process.Env, "PORT=8080")

	res := spec.Linux.Resources
	assert.Equal(t, int64(200000), *res.CPU.Quota)
	assert.Equal(t, uint64(100000), *res.CPU.Period)
	assert.Equal(t, int64(4)<<30, *res.Memory.Limit)
}

func TestSpecIpfs(t *testing.T) {
	dapp := &types.DApp{ID: 1, Owner: "bob", Name: "site"}
	deployment := &types.Deployment{Method: types.IpfsDeployment("bafy123"), CPU: 1, Memory: 1}

	spec, err := Spec(dapp, deployment)
	require.NoError(t, err)

	assert.Equal(t, "ipfs", spec.Annotations[AnnotationMethod])
	assert.Equal(t, "bafy123", spec.Annotations[AnnotationCID])
	assert.Equal(t, []string{"ipfs", "cat", "bafy123"}, spec.Process.Args)
}

func TestSpecRejectsInvalidMethod(t *testing.T) {
	dapp := &types.DApp{ID: 1, Name: "x"}
	_, err := Spec(dapp, &types.Deployment{Method: types.DeploymentMethod{Kind: types.MethodCli}})
	assert.Error(t, err)
}
