package session

import "math"

// Window enforces pos + incoming + maxTokens <= Capacity.
type Window struct {
	Capacity  int
	KeepRatio float64
	MinKeep   int
}

// Plan returns how many of the oldest resident tokens must be evicted before
// evaluating incoming tokens with a full maxTokens generation budget
// reserved. It evicts at least pos*(1-KeepRatio) once eviction is needed so
// the eviction cost is amortized over several turns, and never goes below
// MinKeep. If the turn still cannot fit it returns a context overflow error
// and zero.
func (w Window) Plan(pos, incoming, maxTokens int) (int, error) {
	needed := incoming + maxTokens
	if pos+needed <= w.Capacity {
		return 0, nil
	}
	overflow := pos + needed - w.Capacity
	// The epsilon absorbs binary rounding of decimal ratios (1-0.9 is
	// 0.09999999999999998).
	ratio := int(math.Floor(float64(pos)*(1-w.KeepRatio) + 1e-9))
	toRemove := max(overflow, ratio)
	toRemove = min(toRemove, max(pos-w.MinKeep, 0))
	if pos-toRemove+needed > w.Capacity {
		return 0, contextOverflowError{pos: pos, needed: needed, capacity: w.Capacity, minKeep: w.MinKeep}
	}
	return toRemove, nil
}
