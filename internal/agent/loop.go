package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/starford/ansuz/internal/llm"
	"github.com/starford/ansuz/internal/store"
)

// LLMClient is the model-provider contract the loop consumes.
type LLMClient interface {
	ChatWithTools(ctx context.Context, apiKey, model string, messages []llm.ChatMessage, tools []llm.Tool) (llm.ChatResponse, error)
}

// Config holds the loop's process-wide settings, resolved at startup.
// Per-request key/model overrides arrive on the Request, never through
// reassigned globals.
type Config struct {
	Model         string
	APIKey        string
	MaxIterations int
	HistoryWindow int
	Thresholds    ViewThresholds
}

// DefaultMaxIterations bounds the number of model calls per request.
const DefaultMaxIterations = 10

// DefaultHistoryWindow bounds how many prior messages are replayed.
const DefaultHistoryWindow = 20

// Loop drives the iterative exchange with the model for one request at a
// time: call the model, dispatch tool calls sequentially, stop at the
// first terminal call or when the iteration budget runs out.
type Loop struct {
	client     LLMClient
	ws         store.Workspace
	dispatcher *Dispatcher
	personas   *PersonaTable
	policy     MutationPolicy
	cfg        Config
	logger     *slog.Logger
}

// NewLoop wires a conversation loop.
func NewLoop(client LLMClient, ws store.Workspace, personas *PersonaTable, cfg Config, logger *slog.Logger) *Loop {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = DefaultHistoryWindow
	}
	if cfg.Thresholds == (ViewThresholds{}) {
		cfg.Thresholds = DefaultViewThresholds()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		client:     client,
		ws:         ws,
		dispatcher: NewDispatcher(ws, cfg.Thresholds, logger),
		personas:   personas,
		policy:     KeywordPolicy{},
		cfg:        cfg,
		logger:     logger,
	}
}

// Run processes one inbound message against the caller-held plan state and
// returns the outbound response plus the updated state.
func (l *Loop) Run(ctx context.Context, req Request, state PlanState) (Response, PlanState) {
	scope, err := l.ws.VisibleScope(req.UserID)
	if err != nil {
		l.logger.Error("visible scope failed", slog.String("user", req.UserID), slog.String("error", err.Error()))
		return errorResponse("Something went wrong loading your workspace."), state
	}
	env := &Env{Scope: scope, UserID: req.UserID, Confirmed: req.Confirmed, Request: req.Context}

	// An echoed plan-group confirmation executes the pending group directly,
	// without a model round-trip.
	if state.Mode == ModeConfirming && req.Confirmed != "" && req.Confirmed == planGroupToken(req.UserID, state) {
		return l.runConfirmedGroup(env, state)
	}

	persona := l.personas.Select(req.Source)
	tools := CatalogFor(persona.AllowedSet())
	intent := l.policy.Classify(req.Message)

	messages := l.buildMessages(persona, req, state)

	model := req.Model
	if model == "" {
		model = l.cfg.Model
	}
	apiKey := req.APIKey
	if apiKey == "" {
		apiKey = l.cfg.APIKey
	}

	guardTripped := false
	for i := 0; i < l.cfg.MaxIterations; i++ {
		reply, err := l.client.ChatWithTools(ctx, apiKey, model, messages, tools)
		if err != nil {
			return transportResponse(err, l.logger), state
		}
		messages = append(messages, llm.ChatMessage{
			Role:      llm.RoleAssistant,
			Content:   reply.Content,
			ToolCalls: reply.ToolCalls,
		})

		if len(reply.ToolCalls) == 0 {
			if veto, resp := l.applyGuard(intent, env, &guardTripped, i); veto {
				if resp != nil {
					return *resp, state
				}
				messages = append(messages, llm.ChatMessage{Role: llm.RoleUser, Content: correctiveMessage})
				continue
			}
			return Response{Type: TypeResponse, Message: reply.Content, Actions: env.actions()}, state
		}

		ordered := sortToolCalls(reply.ToolCalls, func(tc llm.ToolCall) string { return tc.Function.Name })
		retry := false
		for _, call := range ordered {
			name := call.Function.Name
			args := parseArguments(call.Function.Arguments, l.logger, name)

			if !IsTerminal(name) {
				result := l.dispatcher.Dispatch(env, name, args)
				messages = append(messages, toolResultMessage(call.ID, result))
				continue
			}

			// The hallucination guard also vetoes a respond call that
			// claims completion without the required mutation.
			if name == "respond" {
				if veto, resp := l.applyGuard(intent, env, &guardTripped, i); veto {
					if resp != nil {
						return *resp, state
					}
					messages = append(messages, toolResultMessage(call.ID, errResult("response rejected: the required change has not been made")))
					messages = append(messages, llm.ChatMessage{Role: llm.RoleUser, Content: correctiveMessage})
					retry = true
					break
				}
			}
			return l.handleTerminal(env, req, state, name, args)
		}
		if retry {
			continue
		}
	}

	l.logger.Warn("iteration budget exhausted", slog.String("user", req.UserID))
	return errorResponse("I could not complete that request. Please try rephrasing it."), state
}

// applyGuard implements the hallucination check before a terminal turn is
// accepted: veto once with a corrective retry while budget remains, then
// surface an explicit error instead of a false success.
func (l *Loop) applyGuard(intent Intent, env *Env, tripped *bool, iteration int) (bool, *Response) {
	if !intent.ExpectsMutation || env.Mutated {
		return false, nil
	}
	if *tripped || iteration >= l.cfg.MaxIterations-1 {
		resp := errorResponse("I was unable to make the requested change.")
		return true, &resp
	}
	*tripped = true
	return true, nil
}

// handleTerminal turns a terminal tool call into the outbound response,
// applying any plan state transition it implies.
func (l *Loop) handleTerminal(env *Env, req Request, state PlanState, name string, args map[string]any) (Response, PlanState) {
	switch name {
	case "respond":
		return Response{Type: TypeResponse, Message: argString(args, "message"), Actions: env.actions()}, state

	case "clarify":
		return Response{
			Type:    TypeClarify,
			Message: argString(args, "message"),
			Options: parseOptions(args),
			Actions: env.actions(),
		}, state

	case "confirm_action":
		return Response{
			Type:         TypeConfirmation,
			Message:      argString(args, "message"),
			ConfirmValue: argString(args, "confirm_value", "confirmValue"),
			Actions:      env.actions(),
		}, state

	case "propose_plan":
		plan, err := parsePlan(args)
		if err != nil {
			return errorResponse("The proposed plan was malformed. Please try again."), state
		}
		state = NextGroup(StartPlan(state, plan))
		return Response{
			Type:         TypePlanProposal,
			Message:      plan.Summary,
			Plan:         BuildPlanPreview(plan),
			ConfirmValue: planGroupToken(req.UserID, state),
			Actions:      env.actions(),
		}, state

	case "revise_plan_step":
		idx := argInt(args, "step_index", "stepIndex")
		group, err := parseGroup(argMap(args, "group"))
		if err != nil || state.Plan == nil || idx < 0 || idx >= len(state.Plan.Groups) {
			return errorResponse("The revised step was malformed. Please try again."), state
		}
		state = UpdateGroup(state, idx, group)
		preview := buildGroupPreview(state.Plan.Groups[idx])
		return Response{
			Type:         TypeStepRevision,
			Message:      fmt.Sprintf("Updated step %d. Approve it to continue.", idx+1),
			StepIndex:    idx,
			RevisedGroup: &preview,
			ConfirmValue: planGroupToken(req.UserID, state),
			Actions:      env.actions(),
		}, state

	case "skip_plan_step":
		if state.Plan == nil {
			return errorResponse("There is no active plan to skip a step of."), state
		}
		skippedIdx := state.CurrentGroup
		state = SkipGroup(state)
		if state.Mode == ModeComplete {
			resp := Response{
				Type:    TypeResponse,
				Message: fmt.Sprintf("Skipped step %d. That was the last step, so the plan is finished.", skippedIdx+1),
				Actions: env.actions(),
			}
			return resp, Cancel(state)
		}
		return l.groupConfirmation(env, req.UserID, state, fmt.Sprintf("Skipped step %d. ", skippedIdx+1)), state

	case "cancel_plan":
		state = Cancel(state)
		return Response{
			Type:    TypeResponse,
			Message: "Plan cancelled. Anything already completed stays in place.",
			Actions: env.actions(),
		}, state
	}
	return errorResponse("I could not complete that request."), state
}

// runConfirmedGroup executes the group the user just approved, records its
// results, and either asks about the next group or wraps up the plan.
func (l *Loop) runConfirmedGroup(env *Env, state PlanState) (Response, PlanState) {
	idx := state.CurrentGroup
	group := state.Plan.Groups[idx]

	state.Mode = ModeExecuting
	result, delta := l.dispatcher.ExecuteGroup(env, state.Context, group, idx)
	state = RecordResults(state, result, delta)
	state = NextGroup(state)

	summary := fmt.Sprintf("Step %d (%s): %d done", idx+1, group.Title, result.Succeeded)
	if result.Failed > 0 {
		summary = fmt.Sprintf("Step %d (%s): %d done, %d failed", idx+1, group.Title, result.Succeeded, result.Failed)
	}

	if state.Mode == ModeComplete {
		done, failed := 0, 0
		for _, r := range state.Results {
			done += r.Succeeded
			failed += r.Failed
		}
		msg := fmt.Sprintf("%s. Plan finished: %d actions completed", summary, done)
		if failed > 0 {
			msg += fmt.Sprintf(", %d failed", failed)
		}
		if len(state.Skipped) > 0 {
			msg += fmt.Sprintf(", %d steps skipped", len(state.Skipped))
		}
		msg += "."
		return Response{Type: TypeResponse, Message: msg, Actions: env.actions()}, Cancel(state)
	}

	return l.groupConfirmation(env, env.UserID, state, summary+". "), state
}

// groupConfirmation builds the approval request for the plan's current
// group.
func (l *Loop) groupConfirmation(env *Env, userID string, state PlanState, prefix string) Response {
	g := state.Plan.Groups[state.CurrentGroup]
	return Response{
		Type: TypeConfirmation,
		Message: fmt.Sprintf("%sNext step %d of %d: %s (%d actions). Proceed?",
			prefix, state.CurrentGroup+1, len(state.Plan.Groups), g.Title, len(g.Operations)),
		ConfirmValue: planGroupToken(userID, state),
		Actions:      env.actions(),
	}
}

// planGroupToken derives the confirmation token for the plan's current
// group.
func planGroupToken(userID string, state PlanState) string {
	if state.Plan == nil || state.CurrentGroup < 0 || state.CurrentGroup >= len(state.Plan.Groups) {
		return ""
	}
	return ConfirmToken(userID, "plan_group", map[string]any{
		"index": state.CurrentGroup,
		"title": state.Plan.Groups[state.CurrentGroup].Title,
	})
}

// buildMessages assembles the bounded message window for one model call.
func (l *Loop) buildMessages(persona Persona, req Request, state PlanState) []llm.ChatMessage {
	messages := []llm.ChatMessage{{Role: llm.RoleSystem, Content: buildSystemPrompt(persona, req, state)}}
	history := req.History
	if len(history) > l.cfg.HistoryWindow {
		history = history[len(history)-l.cfg.HistoryWindow:]
	}
	messages = append(messages, history...)
	if req.Confirmed != "" {
		messages = append(messages, llm.ChatMessage{
			Role:    llm.RoleSystem,
			Content: fmt.Sprintf("The user approved the pending action (confirm_value %s). Re-run the gated tool with the same arguments now.", req.Confirmed),
		})
	}
	messages = append(messages, llm.ChatMessage{Role: llm.RoleUser, Content: req.Message})
	return messages
}

// parseArguments decodes a tool call's JSON arguments. Malformed payloads
// become an empty argument object; the loop keeps going.
func parseArguments(raw string, logger *slog.Logger, tool string) map[string]any {
	if raw == "" {
		return map[string]any{}
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		logger.Warn("malformed tool arguments", slog.String("tool", tool), slog.String("error", err.Error()))
		return map[string]any{}
	}
	if args == nil {
		args = map[string]any{}
	}
	return args
}

func toolResultMessage(callID string, result map[string]any) llm.ChatMessage {
	payload, err := json.Marshal(result)
	if err != nil {
		payload = []byte(`{"error":"unencodable tool result"}`)
	}
	return llm.ChatMessage{Role: llm.RoleTool, ToolCallID: callID, Content: string(payload)}
}

// transportResponse maps provider failures onto the fixed user-facing
// taxonomy. The request fails; the process does not.
func transportResponse(err error, logger *slog.Logger) Response {
	logger.Error("model provider call failed", slog.String("error", err.Error()))
	switch {
	case errors.Is(err, llm.ErrUnauthorized):
		return errorResponse("The model provider rejected the configured API key.")
	case errors.Is(err, llm.ErrForbidden):
		return errorResponse("The configured model is not available for this API key.")
	case errors.Is(err, llm.ErrRateLimited):
		return errorResponse("The model provider is rate limiting requests. Please try again shortly.")
	default:
		return errorResponse("The assistant could not reach the model provider. Please try again.")
	}
}

func errorResponse(msg string) Response {
	return Response{Type: TypeError, Message: msg, Actions: []Action{}}
}

// actions returns the collected side-channel directives, never nil.
func (e *Env) actions() []Action {
	if e.Actions == nil {
		return []Action{}
	}
	return e.Actions
}

func parseOptions(args map[string]any) []ClarifyOption {
	raw, ok := args["options"].([]any)
	if !ok {
		return nil
	}
	out := make([]ClarifyOption, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		out = append(out, ClarifyOption{
			Label: argString(m, "label"),
			Value: argString(m, "value"),
		})
	}
	return out
}

func parsePlan(args map[string]any) (Plan, error) {
	plan := Plan{Summary: argString(args, "summary")}
	raw, ok := args["groups"].([]any)
	if !ok || len(raw) == 0 {
		return plan, fmt.Errorf("plan has no groups")
	}
	for i, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			return plan, fmt.Errorf("group %d is not an object", i)
		}
		g, err := parseGroup(m)
		if err != nil {
			return plan, fmt.Errorf("group %d: %w", i, err)
		}
		plan.Groups = append(plan.Groups, g)
	}
	return plan, nil
}

func parseGroup(m map[string]any) (Group, error) {
	if m == nil {
		return Group{}, fmt.Errorf("missing group")
	}
	g := Group{
		ID:          argString(m, "id"),
		Title:       argString(m, "title"),
		Description: argString(m, "description"),
	}
	raw, ok := m["operations"].([]any)
	if !ok || len(raw) == 0 {
		return g, fmt.Errorf("group has no operations")
	}
	for i, item := range raw {
		om, ok := item.(map[string]any)
		if !ok {
			return g, fmt.Errorf("operation %d is not an object", i)
		}
		op := Operation{Type: argString(om, "type")}
		if op.Type == "" {
			return g, fmt.Errorf("operation %d has no type", i)
		}
		op.Params, _ = om["params"].(map[string]any)
		if op.Params == nil {
			op.Params = map[string]any{}
		}
		g.Operations = append(g.Operations, op)
	}
	return g, nil
}

func argInt(args map[string]any, keys ...string) int {
	for _, k := range keys {
		switch v := args[k].(type) {
		case float64:
			return int(v)
		case int:
			return v
		}
	}
	return 0
}
