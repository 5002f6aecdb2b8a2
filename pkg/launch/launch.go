package launch

import (
	"fmt"
	"strconv"

	"github.com/cuemby/hamster/pkg/types"
	specs "github.com/opencontainers/runtime-spec/specs-go"
)

// Annotation keys set on every launch spec
const (
	AnnotationDAppID = "io.hamster.dapp.id"
	AnnotationName   = "io.hamster.dapp.name"
	AnnotationOwner  = "io.hamster.dapp.owner"
	AnnotationMethod = "io.hamster.method"
	AnnotationImage  = "io.hamster.image"
	AnnotationPort   = "io.hamster.port"
	AnnotationCID    = "io.hamster.cid"
)

const (
	cpuPeriod   uint64 = 100000
	bytesPerGiB int64  = 1 << 30
)

// Spec builds the OCI runtime spec template a node uses to start a DApp.
// Capacity units map to one full core of CFS quota per cpu and one GiB of
// memory limit per memory unit.
func Spec(dapp *types.DApp, deployment *types.Deployment) (*specs.Spec, error) {
	if err := deployment.Method.Validate(); err != nil {
		return nil, err
	}

	annotations := map[string]string{
		AnnotationDAppID: strconv.FormatUint(dapp.ID, 10),
		AnnotationName:   dapp.Name,
		AnnotationOwner:  string(dapp.Owner),
		AnnotationMethod: deployment.Method.Kind.String(),
	}

	process := &specs.Process{
		Cwd: "/",
		Env: []string{
			"PATH=/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin",
			fmt.Sprintf("HAMSTER_DAPP_NAME=%s", dapp.Name),
		},
	}

	switch deployment.Method.Kind {
	case types.MethodCli:
		annotations[AnnotationImage] = deployment.Method.Cli.Image
		annotations[AnnotationPort] = strconv.FormatUint(uint64(deployment.Method.Cli.Port), 10)
		process.Env = append(process.Env, fmt.Sprintf("PORT=%d", deployment.Method.Cli.Port))
	case types.MethodIpfs:
		annotations[AnnotationCID] = deployment.Method.Ipfs.CID
		process.Args = []string{"ipfs", "cat", deployment.Method.Ipfs.CID}
	}

	quota := int64(uint64(deployment.CPU) * cpuPeriod)
	period := cpuPeriod
	limit := int64(deployment.Memory) * bytesPerGiB

	return &specs.Spec{
		Version:     specs.Version,
		Hostname:    dapp.Name,
		Annotations: annotations,
		Process:     process,
		Root:        &specs.Root{Path: "rootfs"},
		Linux: &specs.Linux{
			Resources: &specs.LinuxResources{
				CPU: &specs.LinuxCPU{
					Quota:  &quota,
					Period: &period,
				},
				Memory: &specs.LinuxMemory{
					Limit: &limit,
				},
			},
		},
	}, nil
}
