//go:build !linux

package placement

import "runtime"

func pinThread(int) error { return ErrUnsupported }

func pinThreadRestorable(int) (func(), error) { return nil, ErrUnsupported }

// NodeOfCPU returns -1: NUMA topology is not available on this platform.
func NodeOfCPU(int) int { return -1 }

// AllowedCPUs returns 0..NumCPU-1.
func AllowedCPUs() []int {
	cpus := make([]int, runtime.NumCPU())
	for i := range cpus {
		cpus[i] = i
	}
	return cpus
}
