//go:build !linux

package threading

// PinThread is unsupported on this platform and always returns false.
func PinThread(tid, cpuNum int) bool { return false }

// PinCurrentThread is unsupported on this platform and always returns false.
func PinCurrentThread(cpuNum int) bool { return false }
