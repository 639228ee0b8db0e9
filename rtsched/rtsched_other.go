//go:build !linux

package rtsched

import "errors"

var errNoRealtime = errors.New("real-time scheduling not supported on this platform")

func applyFIFO(role Role, priority int) Result {
	return errDegraded(role, priority, errNoRealtime)
}
