// Package rtsched pins the data-plane threads to the host's real-time FIFO
// scheduling class (spec §5, §9 "Realtime priorities"). On platforms without
// real-time scheduling it degrades to a normal goroutine and documents the
// degradation via its returned Result.
package rtsched

import (
	"fmt"
	"runtime"
)

// Role identifies which of the two real-time-pinned threads a call is for.
// Thread B (data I/O) runs at the highest real-time priority the process
// holds; thread C (data worker) runs at that priority minus 8.
type Role int

const (
	RoleDataIO Role = iota
	RoleDataWorker
)

// priorityOffset is subtracted from the I/O thread's priority to get the
// worker thread's priority (spec §4.3: "FIFO priority minus 8").
const priorityOffset = 8

// Result reports what scheduling was actually achieved, so a caller can log
// the degradation rather than silently running at normal priority.
type Result struct {
	Applied  bool
	Role     Role
	Priority int
	Err      error
}

// RunPinned locks the calling goroutine to its OS thread, attempts to apply
// SCHED_FIFO at the priority implied by role, and then invokes fn. fn runs
// regardless of whether the scheduling change succeeded; the Result passed
// to onResult (if non-nil) describes what happened.
//
// Callers are expected to invoke RunPinned from inside a freshly spawned
// goroutine intended to live for the lifetime of the data plane; it never
// returns early on scheduling failure.
func RunPinned(role Role, basePriority int, onResult func(Result), fn func()) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	priority := basePriority
	if role == RoleDataWorker {
		priority = basePriority - priorityOffset
	}

	res := applyFIFO(role, priority)

	if onResult != nil {
		onResult(res)
	}

	fn()
}

func describe(role Role) string {
	if role == RoleDataIO {
		return "data-io"
	}
	return "data-worker"
}

func errDegraded(role Role, priority int, cause error) Result {
	return Result{
		Applied:  false,
		Role:     role,
		Priority: priority,
		Err:      fmt.Errorf("rtsched: %s thread degraded to normal scheduling: %w", describe(role), cause),
	}
}
