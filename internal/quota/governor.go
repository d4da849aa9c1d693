// Package quota tracks API spend against a fixed per-cycle budget.
package quota

import "sync"

// Governor accounts quota units consumed by paid provider calls. It is
// process-local and single-writer: the pipeline processes queries serially
// so the budget check immediately precedes every paid call.
//
// Exhaustion has two sources that set the same flag: the governor's own
// accounting and out-of-band quota-exceeded responses reported by callers
// through MarkExhausted.
type Governor struct {
	mu        sync.Mutex
	budget    int
	used      int
	exhausted bool
	reason    string
}

// NewGovernor creates a governor for one run cycle with the given budget.
func NewGovernor(budget int) *Governor {
	return &Governor{budget: budget}
}

// Reserve attempts to account costUnits against the remaining budget.
// Returns false, without spending, when the budget cannot cover the cost;
// crossing the line also latches the exhausted flag so subsequent cheap
// checks stay consistent.
func (g *Governor) Reserve(costUnits int) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.exhausted {
		return false
	}
	if costUnits < 0 {
		costUnits = 0
	}
	if g.used+costUnits > g.budget {
		g.exhausted = true
		if g.reason == "" {
			g.reason = "budget consumed"
		}
		return false
	}
	g.used += costUnits
	return true
}

// Exhausted reports whether the cycle budget is spent. Checked before every
// paid call; once true no further paid calls are attempted this cycle.
func (g *Governor) Exhausted() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.exhausted
}

// MarkExhausted latches the exhausted flag from an out-of-band provider
// signal. The provider can report quota exhaustion mid-call, independent of
// the governor's own accounting.
func (g *Governor) MarkExhausted(reason string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.exhausted = true
	if g.reason == "" {
		g.reason = reason
	}
}

// Reason returns why the governor latched, or empty when it has not.
func (g *Governor) Reason() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.reason
}

// Used returns the quota units consumed so far this cycle.
func (g *Governor) Used() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.used
}

// Remaining returns the unconsumed budget for this cycle.
func (g *Governor) Remaining() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	remaining := g.budget - g.used
	if remaining < 0 {
		return 0
	}
	return remaining
}
