//go:build linux

package threading

import "golang.org/x/sys/unix"

// PinThread restricts the given thread to a single CPU. A tid of 0 targets
// the calling thread. Returns false on invalid CPU numbers or when the
// kernel rejects the mask.
func PinThread(tid, cpuNum int) bool {
	if cpuNum < 0 {
		return false
	}
	var set unix.CPUSet
	set.Zero()
	set.Set(cpuNum)
	return unix.SchedSetaffinity(tid, &set) == nil
}

// PinCurrentThread pins the calling thread to the given CPU. Callers that
// need the pin to stick to a goroutine must hold runtime.LockOSThread.
func PinCurrentThread(cpuNum int) bool {
	return PinThread(0, cpuNum)
}
