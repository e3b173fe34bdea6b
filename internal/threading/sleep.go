package threading

import (
	"runtime"
	"time"
)

// sleepSpinMargin is how much of the requested duration is left to the
// yield-spin after the coarse sleep.
const sleepSpinMargin = 500 * time.Microsecond

// PreciseSleep sleeps for d with lower jitter than time.Sleep alone: the
// bulk of the wait uses the timer, the final margin yield-spins to the
// target deadline.
func PreciseSleep(d time.Duration) {
	if d <= 0 {
		return
	}
	target := time.Now().Add(d)
	if d > sleepSpinMargin {
		time.Sleep(d - sleepSpinMargin)
	}
	for time.Now().Before(target) {
		runtime.Gosched()
	}
}
