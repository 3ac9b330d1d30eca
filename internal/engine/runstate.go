package engine

import (
	"github.com/google/uuid"

	"github.com/solvik/meetwise/pkg/schema"
)

const (
	// A step action may execute at most this many times per run before
	// the run is treated as looping.
	maxActionOccurrences = 3

	// Total fallback executions allowed per run, across all steps.
	maxGlobalFallbacks = 5
)

// fallbackKey scopes a fallback attempt budget to one entry of one
// step's chain. The same recovery action on a different step has its
// own budget.
type fallbackKey struct {
	step   int
	action schema.FallbackAction
}

// RunState holds the per-run counters: the loop guard and the fallback
// budgets. It is owned by a single Execute call and needs no locking.
type RunState struct {
	RunID uuid.UUID

	actionCounts    map[schema.Action]int
	fallbackCounts  map[fallbackKey]int
	globalFallbacks int
}

func newRunState() *RunState {
	return &RunState{
		RunID:          uuid.New(),
		actionCounts:   make(map[schema.Action]int),
		fallbackCounts: make(map[fallbackKey]int),
	}
}

// noteStep counts one execution of the action and returns a loop error
// when the occurrence after the cap is reached. The capped occurrences
// themselves run; only the next one aborts.
func (s *RunState) noteStep(a schema.Action) *schema.WorkflowError {
	s.actionCounts[a]++
	if s.actionCounts[a] > maxActionOccurrences {
		return schema.NewErrorf(schema.ErrCodeLoopDetected,
			"action '%s' executed %d times, aborting workflow", a, maxActionOccurrences).WithAction(a)
	}
	return nil
}

// globalBudgetExceeded reports whether any further fallback execution
// would go over the per-run cap.
func (s *RunState) globalBudgetExceeded() bool {
	return s.globalFallbacks >= maxGlobalFallbacks
}

// entryBudgetExhausted reports whether this chain entry has used up its
// own attempt allowance.
func (s *RunState) entryBudgetExhausted(step int, fb schema.Fallback) bool {
	return s.fallbackCounts[fallbackKey{step, fb.Action}] >= fb.MaxAttempts
}

// consumeFallback records one attempt against both the entry budget and
// the global budget. Counted before the attempt executes so that a
// crashing fallback still spends its slot.
func (s *RunState) consumeFallback(step int, fb schema.Fallback) {
	s.fallbackCounts[fallbackKey{step, fb.Action}]++
	s.globalFallbacks++
}
