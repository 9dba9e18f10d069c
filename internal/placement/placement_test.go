package placement

import (
	"runtime"
	"testing"
)

func TestOnCPUWithoutHintRunsInline(t *testing.T) {
	ran := false
	if err := OnCPU(NoCPU, func() { ran = true }); err != nil {
		t.Fatal(err)
	}
	if !ran {
		t.Fatal("fn not called")
	}
}

func TestOnCPURunsFnEvenIfPinningFails(t *testing.T) {
	ran := false
	// CPU ids this large never exist; pinning fails but fn must still run.
	err := OnCPU(1000, func() { ran = true })
	if !ran {
		t.Fatal("fn not called")
	}
	if err == nil {
		t.Log("pinning to cpu 1000 unexpectedly succeeded")
	}
}

func TestOnCPUAllowedCPU(t *testing.T) {
	cpus := AllowedCPUs()
	if len(cpus) == 0 {
		t.Skip("affinity mask not readable")
	}
	ran := false
	err := OnCPU(cpus[0], func() { ran = true })
	if !ran {
		t.Fatal("fn not called")
	}
	if runtime.GOOS == "linux" && err != nil {
		t.Errorf("pin to allowed cpu %d: %v", cpus[0], err)
	}
}

func TestPinCurrentThreadRestore(t *testing.T) {
	cpus := AllowedCPUs()
	if len(cpus) == 0 || runtime.GOOS != "linux" {
		t.Skip("pinning not available")
	}
	restore, err := PinCurrentThread(cpus[len(cpus)-1])
	if err != nil {
		t.Fatal(err)
	}
	restore()
	if got := AllowedCPUs(); len(got) != len(cpus) {
		t.Errorf("affinity not restored: %v, want %v", got, cpus)
	}
}

func TestNodeOfCPU(t *testing.T) {
	if NodeOfCPU(-1) != -1 {
		t.Error("negative cpu must map to -1")
	}
	if n := NodeOfCPU(0); n < -1 {
		t.Errorf("NodeOfCPU(0) = %d", n)
	}
}
