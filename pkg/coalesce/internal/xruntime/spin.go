// Package xruntime provides the adaptive-spin backoff used by the ring
// buffer's lock-free slot claim loop.
package xruntime

import (
	"runtime"
	_ "unsafe" // for go:linkname
)

// Procyield spins for the given number of cycles without yielding to the
// scheduler. On x86 it issues the PAUSE instruction, which keeps the core
// warm while reducing power draw versus a tight empty loop.
//
//go:linkname Procyield runtime.procyield
func Procyield(cycles uint32)

// ActiveSpinCycles is the number of PAUSE cycles per active-spin iteration.
const ActiveSpinCycles = 4

// ActiveSpinTries is the number of active-spin iterations attempted before
// falling back to a scheduler yield.
const ActiveSpinTries = 30

// Backoff performs one step of adaptive spinning: PAUSE-spin while attempt
// is below ActiveSpinTries, otherwise yield the goroutine to the scheduler.
// Callers loop on attempt themselves; Backoff only decides active vs.
// passive spin for the current attempt.
func Backoff(attempt int) {
	if attempt < ActiveSpinTries {
		Procyield(ActiveSpinCycles)
		return
	}
	runtime.Gosched()
}
