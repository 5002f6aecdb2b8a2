package types

import "math"

// ResourceConfig tracks the total and unused capacity of a resource.
// CPU is counted in cores and memory in GiB.
type ResourceConfig struct {
	TotalCPU     uint32 `json:"total_cpu"`
	TotalMemory  uint32 `json:"total_memory"`
	UnusedCPU    uint32 `json:"unused_cpu"`
	UnusedMemory uint32 `json:"unused_memory"`
}

// NewResourceConfig returns a config with all capacity unused
func NewResourceConfig(cpu, memory uint32) ResourceConfig {
	return ResourceConfig{
		TotalCPU:     cpu,
		TotalMemory:  memory,
		UnusedCPU:    cpu,
		UnusedMemory: memory,
	}
}

// UseResource reserves cpu and memory. Nothing is reserved unless both fit.
func (c *ResourceConfig) UseResource(cpu, memory uint32) bool {
	if cpu > c.UnusedCPU || memory > c.UnusedMemory {
		return false
	}
	c.UnusedCPU = saturatingSub(c.UnusedCPU, cpu)
	c.UnusedMemory = saturatingSub(c.UnusedMemory, memory)
	return true
}

// ReleaseResource returns cpu and memory. It fails when more would be returned
// than is currently in use.
func (c *ResourceConfig) ReleaseResource(cpu, memory uint32) bool {
	if cpu > c.UsedCPU() || memory > c.UsedMemory() {
		return false
	}
	c.UnusedCPU = saturatingAdd(c.UnusedCPU, cpu)
	c.UnusedMemory = saturatingAdd(c.UnusedMemory, memory)
	return true
}

// UsedCPU returns the reserved cores
func (c ResourceConfig) UsedCPU() uint32 {
	return saturatingSub(c.TotalCPU, c.UnusedCPU)
}

// UsedMemory returns the reserved memory
func (c ResourceConfig) UsedMemory() uint32 {
	return saturatingSub(c.TotalMemory, c.UnusedMemory)
}

// Fits reports whether cpu and memory could be reserved right now
func (c ResourceConfig) Fits(cpu, memory uint32) bool {
	return cpu <= c.UnusedCPU && memory <= c.UnusedMemory
}

// Score is the rank key: remaining cpu plus remaining memory
func (c ResourceConfig) Score() uint64 {
	return uint64(c.UnusedCPU) + uint64(c.UnusedMemory)
}

// Valid reports whether unused capacity stays within totals
func (c ResourceConfig) Valid() bool {
	return c.UnusedCPU <= c.TotalCPU && c.UnusedMemory <= c.TotalMemory
}

func saturatingSub(a, b uint32) uint32 {
	if b > a {
		return 0
	}
	return a - b
}

func saturatingAdd(a, b uint32) uint32 {
	if a > math.MaxUint32-b {
		return math.MaxUint32
	}
	return a + b
}
