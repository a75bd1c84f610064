package paging

import "sync/atomic"

// Counter is a Progress that counts steps. It may be read from another
// goroutine while a scan runs.
type Counter struct {
	total    atomic.Int64
	steps    atomic.Int64
	scans    atomic.Int64
	finished atomic.Int64
}

// SetupKnownSteps starts a scan of n steps.
func (c *Counter) SetupKnownSteps(n int) {
	c.total.Store(int64(n))
	c.steps.Store(0)
	c.scans.Add(1)
}

// SetupUnknownSteps starts a scan of unknown length.
func (c *Counter) SetupUnknownSteps() {
	c.total.Store(-1)
	c.steps.Store(0)
}

// Step records one processed object.
func (c *Counter) Step() { c.steps.Add(1) }

// Finish ends the current phase.
func (c *Counter) Finish() { c.finished.Add(1) }

// Steps returns the steps of the current phase.
func (c *Counter) Steps() int64 { return c.steps.Load() }

// Total returns the expected steps of the current phase, or -1.
func (c *Counter) Total() int64 { return c.total.Load() }

// Scans returns how many full source scans were started.
func (c *Counter) Scans() int64 { return c.scans.Load() }

// Finished returns how many phases ended.
func (c *Counter) Finished() int64 { return c.finished.Load() }
