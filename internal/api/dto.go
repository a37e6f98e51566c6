package api

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/ansuz/internal/agent"
	"github.com/starford/ansuz/internal/llm"
	"github.com/starford/ansuz/internal/models"
)

// maxMessageLen bounds an inbound assistant message.
const maxMessageLen = 8000

// AssistantMessageRequest is the request body for POST /assistant/message.
type AssistantMessageRequest struct {
	Message   string               `json:"message" validate:"required"`
	History   []llm.ChatMessage    `json:"conversationHistory,omitempty"`
	Confirmed string               `json:"confirmed,omitempty"`
	Context   agent.RequestContext `json:"context,omitempty"`
	Source    string               `json:"source,omitempty"`
}

// Validate checks the request body.
func (r *AssistantMessageRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Message, validation.Required, validation.Length(1, maxMessageLen)),
		validation.Field(&r.Source, validation.Length(0, 64)),
	)
}

// AssistantResponse is the discriminated assistant payload (aliased from
// the agent core).
type AssistantResponse = agent.Response

// CreatePageRequest is the request body for creating a page.
type CreatePageRequest struct {
	Name string `json:"name" validate:"required"`
}

// Validate checks the request body.
func (r *CreatePageRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Name, validation.Required, validation.Length(1, 200)),
	)
}

// RestoreRequest is the request body for restoring a trashed item.
type RestoreRequest struct {
	Kind string `json:"kind" validate:"required"` // page, section, note
	ID   string `json:"id" validate:"required"`
}

// Validate checks the request body.
func (r *RestoreRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Kind, validation.Required, validation.In("page", "section", "note")),
		validation.Field(&r.ID, validation.Required),
	)
}

// PageListResponse wraps page listings.
type PageListResponse struct {
	Pages []models.Page `json:"pages" validate:"required"`
}

// SectionListResponse wraps section listings.
type SectionListResponse struct {
	Sections []models.Section `json:"sections" validate:"required"`
}

// NoteListResponse wraps note query results.
type NoteListResponse struct {
	Notes []models.Note `json:"notes" validate:"required"`
	Total int           `json:"total" validate:"required"`
}

// TagListResponse wraps the distinct tag listing.
type TagListResponse struct {
	Tags []string `json:"tags" validate:"required"`
}

// TrashListResponse wraps trash listings.
type TrashListResponse struct {
	Items []models.TrashItem `json:"items" validate:"required"`
}
