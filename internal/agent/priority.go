package agent

// Terminal tools end the current conversation turn: their payload becomes
// the outbound response. Everything else is a query, mutation, or view
// directive whose result is fed back to the model.
var terminalTools = map[string]bool{
	"respond":          true,
	"clarify":          true,
	"confirm_action":   true,
	"propose_plan":     true,
	"revise_plan_step": true,
	"skip_plan_step":   true,
	"cancel_plan":      true,
}

// IsTerminal reports whether a tool name ends the turn. Unknown tool names
// are treated as non-terminal so their error results reach the model.
func IsTerminal(toolName string) bool {
	return terminalTools[toolName]
}

// sortToolCalls orders tool calls so every non-terminal call executes before
// any terminal call, since a terminal call may report on the result of a
// preceding mutation. The sort is stable: relative order inside each
// partition is preserved.
func sortToolCalls[T any](calls []T, name func(T) string) []T {
	out := make([]T, 0, len(calls))
	for _, c := range calls {
		if !IsTerminal(name(c)) {
			out = append(out, c)
		}
	}
	for _, c := range calls {
		if IsTerminal(name(c)) {
			out = append(out, c)
		}
	}
	return out
}
