// Package placement applies worker placement hints: CPU affinity and NUMA
// node lookup. Hints are best effort; failures are reported but never fatal
// to the caller.
package placement

import (
	"errors"
	"runtime"
)

// ErrUnsupported is returned where the platform cannot pin threads.
var ErrUnsupported = errors.New("placement: CPU affinity not supported on this platform")

// NoCPU means "no placement hint".
const NoCPU = -1

// OnCPU runs fn on an OS thread pinned to cpu and waits for it to return.
// Memory fn allocates and touches first is then likely local to cpu's NUMA
// node. If pinning fails fn still runs, unpinned, and the pinning error is
// returned.
func OnCPU(cpu int, fn func()) error {
	if cpu < 0 {
		fn()
		return nil
	}
	errc := make(chan error, 1)
	go func() {
		// The goroutine exits with the thread still locked, so the runtime
		// discards the thread instead of reusing it with a narrowed mask.
		runtime.LockOSThread()
		err := pinThread(cpu)
		fn()
		errc <- err
	}()
	return <-errc
}

// PinCurrentThread locks the calling goroutine to its OS thread and binds
// that thread to cpu. The returned func restores the previous affinity and
// unlocks the thread.
func PinCurrentThread(cpu int) (restore func(), err error) {
	runtime.LockOSThread()
	undo, err := pinThreadRestorable(cpu)
	if err != nil {
		runtime.UnlockOSThread()
		return func() {}, err
	}
	return func() {
		undo()
		runtime.UnlockOSThread()
	}, nil
}
