package tele

import (
	"sync"
)

// Stat low priority telemetry counters. Can be updated at any time.
// Sent together with report.
type Stat struct { //nolint:maligned
	sync.Mutex
	Events map[string]uint32
	Errors uint32
	// events dropped because delivery queue was full
	Dropped uint32
}

// Locked_Reset Internal for tele package. Caller must hold s.Mutex.
func (s *Stat) Locked_Reset() {
	s.Events = make(map[string]uint32, 8)
	s.Errors = 0
	s.Dropped = 0
}
