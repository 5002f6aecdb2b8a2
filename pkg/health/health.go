package health

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/cuemby/hamster/pkg/types"
)

// CheckType represents the type of health probe
type CheckType string

const (
	CheckTypeHTTP CheckType = "http"
	CheckTypeTCP  CheckType = "tcp"
)

// Result represents the outcome of one probe
type Result struct {
	Healthy   bool
	Message   string
	CheckedAt time.Time
	Duration  time.Duration
}

func result(start time.Time, healthy bool, format string, args ...interface{}) Result {
	return Result{
		Healthy:   healthy,
		Message:   fmt.Sprintf(format, args...),
		CheckedAt: start,
		Duration:  time.Since(start),
	}
}

// Checker probes a running DApp
type Checker interface {
	Check(ctx context.Context) Result
	Type() CheckType
}

// Config controls how probe results turn into a health verdict
type Config struct {
	// Timeout bounds a single probe
	Timeout time.Duration

	// Retries is the number of consecutive failures before marking unhealthy
	Retries int

	// StartPeriod is the grace period after a DApp lands on the resource.
	// Failures inside it do not count.
	StartPeriod time.Duration
}

// DefaultConfig returns the probe settings used by the agent
func DefaultConfig() Config {
	return Config{
		Timeout:     5 * time.Second,
		Retries:     3,
		StartPeriod: 30 * time.Second,
	}
}

// Status tracks the health verdict of one DApp
type Status struct {
	ConsecutiveFailures  int
	ConsecutiveSuccesses int
	LastCheck            time.Time
	LastResult           Result
	Healthy              bool
	StartedAt            time.Time
}

// NewStatus creates a Status that is healthy until proven otherwise
func NewStatus() *Status {
	return &Status{
		Healthy:   true,
		StartedAt: time.Now(),
	}
}

// Update folds a probe result into the status
func (s *Status) Update(r Result, config Config) {
	s.LastCheck = r.CheckedAt
	s.LastResult = r

	if r.Healthy {
		s.ConsecutiveSuccesses++
		s.ConsecutiveFailures = 0
		s.Healthy = true
		return
	}

	s.ConsecutiveSuccesses = 0
	if s.InStartPeriod(config) {
		return
	}
	s.ConsecutiveFailures++
	if s.ConsecutiveFailures >= config.Retries {
		s.Healthy = false
	}
}

// InStartPeriod reports whether the grace period is still running
func (s *Status) InStartPeriod(config Config) bool {
	if config.StartPeriod == 0 {
		return false
	}
	return time.Since(s.StartedAt) < config.StartPeriod
}

// ForDeployment builds the probe for a DApp hosted on resource. Only cli
// deployments expose a port; ipfs deployments get a nil Checker and are
// reported without probing.
func ForDeployment(kind CheckType, resource *types.ComputingResource, deployment *types.Deployment) (Checker, error) {
	if deployment.Method.Kind != types.MethodCli || deployment.Method.Cli == nil {
		return nil, nil
	}
	if deployment.Method.Cli.Port == 0 {
		return nil, nil
	}

	address := net.JoinHostPort(resource.PublicIP, strconv.Itoa(int(deployment.Method.Cli.Port)))
	switch kind {
	case CheckTypeTCP, "":
		return NewTCPChecker(address), nil
	case CheckTypeHTTP:
		return NewHTTPChecker("http://" + address + "/"), nil
	default:
		return nil, fmt.Errorf("unsupported probe type: %s", kind)
	}
}
