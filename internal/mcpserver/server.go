// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Ansuz workspace tools for LLM integration via stdio
// transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/parser"
	"github.com/starford/ansuz/internal/store"
)

// Server wraps the MCP server with Ansuz workspace tools. The tool surface
// is deliberately restricted: reads plus note capture, no deletes and no
// bulk mutations.
type Server struct {
	mcp    *server.MCPServer
	ws     store.Workspace
	userID string
}

// New creates a new MCP server acting as the given user.
func New(ws store.Workspace, userID string) *Server {
	s := &Server{ws: ws, userID: userID}

	s.mcp = server.NewMCPServer(
		"Ansuz",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_pages",
		mcp.WithDescription("List the pages visible to the workspace user."),
	), s.listPages)

	s.mcp.AddTool(mcp.NewTool("list_sections",
		mcp.WithDescription("List the sections of a page."),
		mcp.WithString("page_id", mcp.Required(), mcp.Description("Page ID")),
	), s.listSections)

	s.mcp.AddTool(mcp.NewTool("search_notes",
		mcp.WithDescription("Search notes by content substring, optionally narrowed to a page."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
		mcp.WithString("page_id", mcp.Description("Optional page ID to narrow the search")),
	), s.searchNotes)

	s.mcp.AddTool(mcp.NewTool("create_note",
		mcp.WithDescription("Create a note in a section. Inline #tags and a !YYYY-MM-DD date "+
			"in the content are extracted automatically; see the ansuz://note-format resource."),
		mcp.WithString("section_id", mcp.Required(), mcp.Description("Target section ID")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Note content")),
	), s.createNote)

	s.mcp.AddTool(mcp.NewTool("list_tags",
		mcp.WithDescription("List the distinct tags in use across visible notes."),
	), s.listTags)

	// Resource: note capture format.
	s.mcp.AddResource(
		mcp.NewResource("ansuz://note-format", "Note Capture Format",
			mcp.WithResourceDescription("Inline tag and date syntax recognized when capturing notes."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readNoteFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) scope() (store.Scope, error) {
	return s.ws.VisibleScope(s.userID)
}

func (s *Server) listPages(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	scope, err := s.scope()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	pages, err := s.ws.ListPages(scope)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(pages, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) listSections(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	pageID, err := req.RequireString("page_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	scope, err := s.scope()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	sections, err := s.ws.ListSections(scope, pageID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("page not found: %s", pageID)), nil
	}
	out, _ := json.MarshalIndent(sections, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) searchNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	scope, err := s.scope()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	f := store.Filter{Search: query, Limit: 20}
	if pageID, pErr := req.RequireString("page_id"); pErr == nil {
		f.PageID = pageID
	}
	notes, err := s.ws.QueryNotes(scope, f)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(notes) == 0 {
		return mcp.NewToolResultText("no notes matched"), nil
	}
	out, _ := json.MarshalIndent(notes, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) createNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sectionID, err := req.RequireString("section_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	parsed := parser.Parse(content)
	n := &models.Note{
		SectionID: sectionID,
		Content:   parsed.Body,
		Tags:      parsed.Tags,
		Date:      parsed.Date,
		OwnerID:   s.userID,
	}
	if err := s.ws.CreateNote(n); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("created: %s (tags: %s)", n.ID, strings.Join(n.Tags, ", "))), nil
}

func (s *Server) listTags(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	scope, err := s.scope()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	tags, err := s.ws.ListTags(scope)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(tags) == 0 {
		return mcp.NewToolResultText("no tags in use"), nil
	}
	return mcp.NewToolResultText(strings.Join(tags, "\n")), nil
}

func (s *Server) readNoteFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      "ansuz://note-format",
			MIMEType: "text/markdown",
			Text:     NoteFormatContract,
		},
	}, nil
}
