//go:build linux

package placement

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

var sysfsCPU = "/sys/devices/system/cpu"

func pinThread(cpu int) error {
	var set unix.CPUSet
	set.Zero()
	set.Set(cpu)
	if err := unix.SchedSetaffinity(0, &set); err != nil {
		return fmt.Errorf("placement: pin to cpu %d: %w", cpu, err)
	}
	return nil
}

func pinThreadRestorable(cpu int) (func(), error) {
	var prev unix.CPUSet
	if err := unix.SchedGetaffinity(0, &prev); err != nil {
		return nil, fmt.Errorf("placement: read affinity: %w", err)
	}
	if err := pinThread(cpu); err != nil {
		return nil, err
	}
	return func() { _ = unix.SchedSetaffinity(0, &prev) }, nil
}

// NodeOfCPU returns the NUMA node of cpu, or -1 when unknown.
func NodeOfCPU(cpu int) int {
	if cpu < 0 {
		return -1
	}
	entries, err := os.ReadDir(fmt.Sprintf("%s/cpu%d", sysfsCPU, cpu))
	if err != nil {
		return -1
	}
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, "node") {
			continue
		}
		if n, err := strconv.Atoi(name[len("node"):]); err == nil {
			return n
		}
	}
	return -1
}

// AllowedCPUs returns the CPUs the process may run on.
func AllowedCPUs() []int {
	var set unix.CPUSet
	if err := unix.SchedGetaffinity(0, &set); err != nil {
		return nil
	}
	cpus := make([]int, 0, set.Count())
	for i := 0; len(cpus) < set.Count() && i < 8*1024; i++ {
		if set.IsSet(i) {
			cpus = append(cpus, i)
		}
	}
	return cpus
}
