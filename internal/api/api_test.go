package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/starford/ansuz/internal/agent"
	"github.com/starford/ansuz/internal/llm"
	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/observe"
	"github.com/starford/ansuz/internal/session"
	"github.com/starford/ansuz/internal/store"
	"github.com/starford/ansuz/internal/testutil"
)

// scriptedClient replays canned model responses so handler tests never need
// a provider.
type scriptedClient struct {
	script []llm.ChatResponse
	calls  int
}

func (c *scriptedClient) ChatWithTools(_ context.Context, _, _ string, _ []llm.ChatMessage, _ []llm.Tool) (llm.ChatResponse, error) {
	if c.calls >= len(c.script) {
		return llm.ChatResponse{}, fmt.Errorf("scripted client exhausted")
	}
	r := c.script[c.calls]
	c.calls++
	return r, nil
}

func respondCall(message string) llm.ChatResponse {
	args, _ := json.Marshal(map[string]string{"message": message})
	return llm.ChatResponse{
		ToolCalls: []llm.ToolCall{{
			ID:       "1",
			Type:     "function",
			Function: llm.ToolCallFunction{Name: "respond", Arguments: string(args)},
		}},
		FinishReason: "tool_calls",
	}
}

// testEnv wires a temp workspace, a scripted loop, and the router.
// authToken == "" means auth disabled.
func testEnv(t *testing.T, authToken string, script ...llm.ChatResponse) (*store.DB, http.Handler) {
	t.Helper()
	db := testutil.TestDB(t)
	personas, err := agent.NewPersonaTable("")
	if err != nil {
		t.Fatal(err)
	}
	loop := agent.NewLoop(&scriptedClient{script: script}, db, personas, agent.Config{
		Model:  "test-model",
		APIKey: "test-key",
	}, nil)
	journal, err := observe.New("", nil)
	if err != nil {
		t.Fatal(err)
	}
	h := NewHandler(db, loop, session.NewManager(), journal, "local")
	return db, NewRouter(h, authToken != "", authToken, nil)
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestAssistantMessage(t *testing.T) {
	_, router := testEnv(t, "", respondCall("Hello there."))

	w := doJSON(t, router, http.MethodPost, "/assistant/message", map[string]string{"message": "hi"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp AssistantResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Type != agent.TypeResponse || resp.Message != "Hello there." {
		t.Errorf("resp = %+v", resp)
	}
	if resp.Actions == nil {
		t.Error("actions omitted from the payload")
	}
}

func TestAssistantMessage_BadRequests(t *testing.T) {
	_, router := testEnv(t, "")

	req := httptest.NewRequest(http.MethodPost, "/assistant/message", bytes.NewReader([]byte("{not json")))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("malformed body status = %d", w.Code)
	}

	w = doJSON(t, router, http.MethodPost, "/assistant/message", map[string]string{"message": ""})
	if w.Code != http.StatusBadRequest {
		t.Errorf("empty message status = %d", w.Code)
	}
}

func TestAssistantReset(t *testing.T) {
	_, router := testEnv(t, "")
	w := doJSON(t, router, http.MethodPost, "/assistant/reset", nil)
	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d", w.Code)
	}
}

func TestAuthMiddleware(t *testing.T) {
	_, router := testEnv(t, "secret")

	req := httptest.NewRequest(http.MethodGet, "/pages", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("no token status = %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/pages", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token status = %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/pages", nil)
	req.Header.Set("Authorization", "Bearer secret")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("valid token status = %d", w.Code)
	}
}

func TestListPages_EmptyIsArray(t *testing.T) {
	_, router := testEnv(t, "")
	w := doJSON(t, router, http.MethodGet, "/pages", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !bytes.Contains(w.Body.Bytes(), []byte(`"pages":[]`)) {
		t.Errorf("body = %s, want empty array not null", w.Body.String())
	}
}

func TestCreatePage_AndDuplicate(t *testing.T) {
	_, router := testEnv(t, "")

	w := doJSON(t, router, http.MethodPost, "/pages", map[string]string{"name": "Work"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", w.Code, w.Body.String())
	}
	var p models.Page
	if err := json.Unmarshal(w.Body.Bytes(), &p); err != nil {
		t.Fatal(err)
	}
	if p.ID == "" || p.Name != "Work" {
		t.Errorf("page = %+v", p)
	}

	w = doJSON(t, router, http.MethodPost, "/pages", map[string]string{"name": "Work"})
	if w.Code != http.StatusConflict {
		t.Errorf("duplicate create status = %d, want 409", w.Code)
	}

	w = doJSON(t, router, http.MethodPost, "/pages", map[string]string{"name": ""})
	if w.Code != http.StatusBadRequest {
		t.Errorf("empty name status = %d", w.Code)
	}
}

func TestListSections(t *testing.T) {
	db, router := testEnv(t, "")
	p, _ := testutil.Seed(t, db, "local", "Work", "Inbox")

	w := doJSON(t, router, http.MethodGet, "/pages/"+p.ID+"/sections", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp SectionListResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Sections) != 1 || resp.Sections[0].Name != "Inbox" {
		t.Errorf("sections = %+v", resp.Sections)
	}

	w = doJSON(t, router, http.MethodGet, "/pages/nope/sections", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("missing page status = %d", w.Code)
	}
}

func TestQueryNotesFilters(t *testing.T) {
	db, router := testEnv(t, "")
	_, sec := testutil.Seed(t, db, "local", "Work", "Inbox")
	for i, tag := range []string{"alpha", "beta"} {
		n := &models.Note{SectionID: sec.ID, Content: fmt.Sprintf("task %d", i), Tags: []string{tag}, OwnerID: "local"}
		if err := db.CreateNote(n); err != nil {
			t.Fatal(err)
		}
	}

	w := doJSON(t, router, http.MethodGet, "/notes?tag=alpha", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp NoteListResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Total != 1 || len(resp.Notes) != 1 || resp.Notes[0].Tags[0] != "alpha" {
		t.Errorf("resp = %+v", resp)
	}

	w = doJSON(t, router, http.MethodGet, "/notes?search=task", nil)
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Total != 2 {
		t.Errorf("search total = %d", resp.Total)
	}
}

func TestGetNote(t *testing.T) {
	db, router := testEnv(t, "")
	_, sec := testutil.Seed(t, db, "local", "Work", "Inbox")
	n := &models.Note{SectionID: sec.ID, Content: "hello", OwnerID: "local"}
	if err := db.CreateNote(n); err != nil {
		t.Fatal(err)
	}

	w := doJSON(t, router, http.MethodGet, "/notes/"+n.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	w = doJSON(t, router, http.MethodGet, "/notes/nope", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("missing note status = %d", w.Code)
	}
}

func TestTrashRestoreFlow(t *testing.T) {
	db, router := testEnv(t, "")
	p, sec := testutil.Seed(t, db, "local", "Work", "Inbox")
	n := &models.Note{SectionID: sec.ID, Content: "x", OwnerID: "local"}
	if err := db.CreateNote(n); err != nil {
		t.Fatal(err)
	}
	scope, err := db.VisibleScope("local")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.SoftDeletePage(scope, p.ID); err != nil {
		t.Fatal(err)
	}

	w := doJSON(t, router, http.MethodGet, "/trash", nil)
	var trash TrashListResponse
	if err := json.Unmarshal(w.Body.Bytes(), &trash); err != nil {
		t.Fatal(err)
	}
	if len(trash.Items) != 1 {
		t.Fatalf("trash items = %+v", trash.Items)
	}

	// The note went down with the page; restoring it alone conflicts.
	w = doJSON(t, router, http.MethodPost, "/trash/restore", map[string]string{"kind": "note", "id": n.ID})
	if w.Code != http.StatusConflict {
		t.Errorf("note-first restore status = %d, want 409", w.Code)
	}

	w = doJSON(t, router, http.MethodPost, "/trash/restore", map[string]string{"kind": "page", "id": p.ID})
	if w.Code != http.StatusNoContent {
		t.Errorf("page restore status = %d, body = %s", w.Code, w.Body.String())
	}

	w = doJSON(t, router, http.MethodPost, "/trash/restore", map[string]string{"kind": "page", "id": "nope"})
	if w.Code != http.StatusNotFound {
		t.Errorf("missing restore status = %d", w.Code)
	}

	w = doJSON(t, router, http.MethodPost, "/trash/restore", map[string]string{"kind": "folder", "id": "x"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad kind status = %d", w.Code)
	}
}

func TestUserScopingViaHeader(t *testing.T) {
	db, router := testEnv(t, "")
	testutil.Seed(t, db, "alice", "Private", "Stuff")

	req := httptest.NewRequest(http.MethodGet, "/pages", nil)
	req.Header.Set("X-User-ID", "alice")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	var resp PageListResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Pages) != 1 {
		t.Errorf("alice sees %d pages", len(resp.Pages))
	}

	// The default user must not see alice's pages.
	w = doJSON(t, router, http.MethodGet, "/pages", nil)
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Pages) != 0 {
		t.Errorf("default user sees %d pages", len(resp.Pages))
	}
}
