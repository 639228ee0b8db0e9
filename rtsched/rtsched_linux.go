//go:build linux

package rtsched

import (
	"fmt"

	"golang.org/x/sys/unix"
)

func applyFIFO(role Role, priority int) Result {
	param := &unix.SchedParam{Priority: int32(priority)}
	if err := unix.SchedSetscheduler(0, unix.SCHED_FIFO, param); err != nil {
		return errDegraded(role, priority, fmt.Errorf("SchedSetscheduler: %w", err))
	}
	return Result{Applied: true, Role: role, Priority: priority}
}
