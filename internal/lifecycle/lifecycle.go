package lifecycle

import (
	"sync/atomic"
	"time"
)

// State tracks process start time and whether the process is draining.
type State struct {
	started      time.Time
	shuttingDown atomic.Bool
}

// NewState returns a State started now.
func NewState() *State {
	return &State{started: time.Now()}
}

// SetShuttingDown sets the shutdown flag. Call when SIGTERM/SIGINT is received.
// The health handler reports shutting-down with 503 while it is set.
func (s *State) SetShuttingDown(v bool) {
	s.shuttingDown.Store(v)
}

// IsShuttingDown reports whether the process is draining and should not receive new traffic.
func (s *State) IsShuttingDown() bool {
	return s.shuttingDown.Load()
}

// Uptime returns the time since the State was created.
func (s *State) Uptime() time.Duration {
	return time.Since(s.started)
}
