package clock

import (
	"fmt"
	"sync"
	"time"
)

// Clock supplies wall-clock time.
type Clock interface {
	Now() time.Time
}

// RealClock reads the system clock in UTC.
type RealClock struct{}

// Now returns the current UTC time.
func (RealClock) Now() time.Time {
	return time.Now().UTC()
}

// HLC implements a simple hybrid logical clock. Its timestamps identify
// split runs and sort in issue order even when the wall clock stalls.
type HLC struct {
	mu           sync.Mutex
	clk          Clock
	lastPhysical int64
	logical      uint32
}

// New returns a new HLC reading physical time from clk (RealClock when nil).
func New(clk Clock) *HLC {
	if clk == nil {
		clk = RealClock{}
	}
	return &HLC{clk: clk}
}

// Next returns the next HLC timestamp string (lexicographically sortable).
func (h *HLC) Next() string {
	now := h.clk.Now().UnixNano()
	h.mu.Lock()
	if now > h.lastPhysical {
		h.lastPhysical = now
		h.logical = 0
	} else {
		h.logical++
	}
	physical := h.lastPhysical
	logical := h.logical
	h.mu.Unlock()
	return format(physical, logical)
}

func format(physical int64, logical uint32) string {
	return fmt.Sprintf("%019d-%010d", physical, logical)
}
