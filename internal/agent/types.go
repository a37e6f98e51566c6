// Package agent implements the conversation loop, tool dispatch, and the
// multi-step plan state machine that drive the Ansuz workspace assistant.
package agent

import (
	"github.com/starford/ansuz/internal/llm"
)

// Response discriminator values.
const (
	TypeResponse     = "response"
	TypeClarify      = "clarification"
	TypeConfirmation = "confirmation"
	TypePlanProposal = "plan_proposal"
	TypeStepRevision = "step_revision"
	TypeError        = "error"
)

// RequestContext carries the caller's current UI position so the model can
// default page/section parameters.
type RequestContext struct {
	CurrentPage    string `json:"currentPage,omitempty"`
	CurrentSection string `json:"currentSection,omitempty"`
}

// Request is one inbound user message plus its conversational surroundings.
type Request struct {
	Message   string            `json:"message"`
	UserID    string            `json:"userId"`
	History   []llm.ChatMessage `json:"conversationHistory,omitempty"`
	Confirmed string            `json:"confirmed,omitempty"`
	Context   RequestContext    `json:"context,omitempty"`
	Source    string            `json:"source,omitempty"`

	// Per-request provider overrides; empty values fall back to config.
	Model  string `json:"-"`
	APIKey string `json:"-"`
}

// ClarifyOption is one selectable answer in a clarification response.
type ClarifyOption struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Action is a side-channel view/navigation directive collected during tool
// dispatch. The caller applies it; the core never does.
type Action struct {
	Type    string         `json:"type"` // navigate, apply_filter, clear_filters, create_custom_view
	Payload map[string]any `json:"payload,omitempty"`
}

// OperationPreview is the user-facing rendering of one plan operation.
type OperationPreview struct {
	Type    string `json:"type"`
	Summary string `json:"summary"`
}

// GroupPreview is the user-facing rendering of one plan group.
type GroupPreview struct {
	ID          string             `json:"id"`
	Title       string             `json:"title"`
	Description string             `json:"description,omitempty"`
	Operations  []OperationPreview `json:"operations"`
}

// PlanPreview is the plan proposal payload returned to the caller.
type PlanPreview struct {
	Summary      string         `json:"summary"`
	Groups       []GroupPreview `json:"groups"`
	TotalGroups  int            `json:"totalGroups"`
	TotalActions int            `json:"totalActions"`
}

// Response is the discriminated outbound payload.
type Response struct {
	Type         string          `json:"type"`
	Message      string          `json:"message"`
	Options      []ClarifyOption `json:"options,omitempty"`
	ConfirmValue string          `json:"confirmValue,omitempty"`
	Plan         *PlanPreview    `json:"plan,omitempty"`
	StepIndex    int             `json:"stepIndex,omitempty"`
	RevisedGroup *GroupPreview   `json:"revisedGroup,omitempty"`
	Actions      []Action        `json:"actions"`
}

// Operation is a single typed mutation inside a plan group.
type Operation struct {
	Type   string         `json:"type"`
	Params map[string]any `json:"params"`
}

// Group is a titled batch of operations approved as one step.
type Group struct {
	ID          string      `json:"id"`
	Title       string      `json:"title"`
	Description string      `json:"description,omitempty"`
	Operations  []Operation `json:"operations"`
}

// Plan is an ordered list of groups proposed for a multi-step batch.
type Plan struct {
	Summary string  `json:"summary"`
	Groups  []Group `json:"groups"`
}

// OperationResult records the outcome of one executed operation.
type OperationResult struct {
	Type    string `json:"type"`
	OK      bool   `json:"ok"`
	Detail  string `json:"detail,omitempty"`
	Error   string `json:"error,omitempty"`
	Created string `json:"created,omitempty"` // entity ID when the op created one
}

// GroupResult summarizes one executed group.
type GroupResult struct {
	GroupIndex int               `json:"groupIndex"`
	Succeeded  int               `json:"succeeded"`
	Failed     int               `json:"failed"`
	Operations []OperationResult `json:"operations"`
}
