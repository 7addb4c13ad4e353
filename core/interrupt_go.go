//go:build !tinygo

package core

// State stands in for the saved interrupt mask on the host build.
type State uintptr

// disableInterrupts does nothing on the host; host callers that share
// state across goroutines go through the atomic snapshots instead.
func disableInterrupts() State {
	return 0
}

func restoreInterrupts(State) {}
