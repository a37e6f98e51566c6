package agent

// PlanMode is the lifecycle state of a multi-step plan.
type PlanMode int

const (
	ModeIdle PlanMode = iota
	ModePlanning
	ModeConfirming
	ModeExecuting
	ModeComplete
)

func (m PlanMode) String() string {
	switch m {
	case ModeIdle:
		return "idle"
	case ModePlanning:
		return "planning"
	case ModeConfirming:
		return "confirming"
	case ModeExecuting:
		return "executing"
	case ModeComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// PlanState is the full state of one plan lifecycle. Transitions are pure
// functions (state, event) -> state; callers hold the current value and
// replace it wholesale.
type PlanState struct {
	Mode         PlanMode
	Plan         *Plan
	CurrentGroup int
	Results      []GroupResult
	Skipped      map[int]bool
	Context      ExecutionContext
}

// NewPlanState returns the Idle state.
func NewPlanState() PlanState {
	return PlanState{Mode: ModeIdle, CurrentGroup: -1, Skipped: map[int]bool{}}
}

// IsPlanComplete reports whether the group at idx is the last one, i.e. the
// plan is complete once the current index has advanced to or past it.
// Skipped groups do not block completion.
func IsPlanComplete(idx, totalGroups int) bool {
	return idx >= totalGroups-1
}

// StartPlan resets everything and enters Planning with a fresh execution
// context.
func StartPlan(_ PlanState, plan Plan) PlanState {
	s := NewPlanState()
	s.Mode = ModePlanning
	s.Plan = &plan
	return s
}

// NextGroup advances the current pointer. Advancing past the last group
// completes the plan.
func NextGroup(s PlanState) PlanState {
	if s.Plan == nil {
		return s
	}
	if IsPlanComplete(s.CurrentGroup, len(s.Plan.Groups)) {
		s.Mode = ModeComplete
		return s
	}
	s.CurrentGroup++
	s.Mode = ModeConfirming
	return s
}

// GoToGroup selects an explicit group index for review.
func GoToGroup(s PlanState, i int) PlanState {
	if s.Plan == nil || i < 0 || i >= len(s.Plan.Groups) {
		return s
	}
	s.CurrentGroup = i
	s.Mode = ModeConfirming
	return s
}

// RecordResults appends one group's result and merges its execution-context
// delta. The current pointer is advanced separately via NextGroup.
func RecordResults(s PlanState, result GroupResult, delta ExecutionContext) PlanState {
	s.Results = append(append([]GroupResult{}, s.Results...), result)
	ctx := s.Context
	ctx.Merge(delta)
	s.Context = ctx
	s.Mode = ModeConfirming
	return s
}

// SkipGroup marks the current group skipped (it stays in the plan) and
// advances.
func SkipGroup(s PlanState) PlanState {
	if s.Plan == nil || s.CurrentGroup < 0 {
		return s
	}
	skipped := copySkips(s.Skipped)
	skipped[s.CurrentGroup] = true
	s.Skipped = skipped
	return NextGroup(s)
}

// UpdateGroup revises exactly group i in place and re-enters Confirming on
// it so the user re-approves before execution resumes. Results and the
// execution context are untouched; a skip mark on i is cleared.
func UpdateGroup(s PlanState, i int, g Group) PlanState {
	if s.Plan == nil || i < 0 || i >= len(s.Plan.Groups) {
		return s
	}
	groups := append([]Group{}, s.Plan.Groups...)
	groups[i] = g
	plan := *s.Plan
	plan.Groups = groups
	s.Plan = &plan

	skipped := copySkips(s.Skipped)
	delete(skipped, i)
	s.Skipped = skipped

	s.CurrentGroup = i
	s.Mode = ModeConfirming
	return s
}

// Cancel unconditionally resets to Idle, destroying the plan, its results,
// skip marks, and execution context.
func Cancel(_ PlanState) PlanState {
	return NewPlanState()
}

func copySkips(in map[int]bool) map[int]bool {
	out := make(map[int]bool, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
