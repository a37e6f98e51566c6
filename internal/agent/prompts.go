package agent

import (
	"fmt"
	"strings"
	"time"
)

const defaultPromptTemplate = `You are the assistant for a hierarchical note workspace (pages contain sections, sections contain notes).
Act through tool calls. Run queries and mutations first, then end the turn with exactly one of: respond, clarify, confirm_action, propose_plan, revise_plan_step.
Never claim an action happened unless the corresponding tool call succeeded in this conversation.
For destructive or bulk operations the gated tool returns requires_confirmation with a confirm_value; relay it via confirm_action and only retry the operation after the user has confirmed.
When a request describes several dependent steps (for example a new page with multiple sections), call propose_plan with ordered groups instead of executing directly.
Today is {{today}}.{{position}}`

const capturePromptTemplate = `You are a quick-capture assistant for a note workspace. Turn the user's message into a single note with create_note, then end the turn with respond.
Prefer existing tags when they match the content. Do not navigate or restructure anything.
Today is {{today}}.{{position}}`

// buildSystemPrompt renders the persona template with the request's
// position context and, when a plan is mid-flight, a short plan status so
// the model can reason about skips and revisions.
func buildSystemPrompt(p Persona, req Request, planState PlanState) string {
	position := ""
	if req.Context.CurrentPage != "" || req.Context.CurrentSection != "" {
		position = fmt.Sprintf("\nThe user is currently viewing page %q", req.Context.CurrentPage)
		if req.Context.CurrentSection != "" {
			position += fmt.Sprintf(", section %q", req.Context.CurrentSection)
		}
		position += "."
	}

	out := p.PromptTemplate
	out = strings.ReplaceAll(out, "{{today}}", time.Now().Format("2006-01-02"))
	out = strings.ReplaceAll(out, "{{position}}", position)

	if planState.Mode == ModeConfirming && planState.Plan != nil {
		out += fmt.Sprintf(
			"\nAn approved plan is in progress: %q, awaiting the user's decision on group %d of %d (%q). "+
				"Use skip_plan_step, revise_plan_step, or cancel_plan if the user asks to change course.",
			planState.Plan.Summary, planState.CurrentGroup+1, len(planState.Plan.Groups),
			planState.Plan.Groups[planState.CurrentGroup].Title)
	}
	return out
}

// correctiveMessage is injected once by the hallucination guard when a
// terminal turn arrives without the mutation the message called for.
const correctiveMessage = "You have not performed the required change yet. " +
	"Call the appropriate mutation tool (such as create_note) before responding; do not claim success without it."
