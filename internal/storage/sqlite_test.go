package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/hyperjump/bunmyaku/internal/models"
)

func newTestResources(t *testing.T) *SQLiteResources {
	t.Helper()
	store, err := NewSQLiteResources(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteResources_ConversationAgentTools(t *testing.T) {
	store := newTestResources(t)
	ctx := context.Background()

	if err := store.PutAgent(ctx, &models.Agent{ID: "ag1", Name: "helper", Instructions: "Be brief.", Tokens: 12}); err != nil {
		t.Fatal(err)
	}
	fn := &models.ToolFunction{
		ID: "t1", Name: "lookup", Description: "Look things up", Tokens: 30,
		Parameters: map[string]any{"type": "object"},
	}
	if err := store.PutToolFunction(ctx, fn); err != nil {
		t.Fatal(err)
	}
	if err := store.PutToolFunction(ctx, &models.ToolFunction{ID: "t2", Name: "noop", Tokens: 5}); err != nil {
		t.Fatal(err)
	}
	conv := &models.Conversation{ID: "c1", AgentID: "ag1", ToolFunctionIDs: []string{"t2", "t1"}}
	if err := store.PutConversation(ctx, conv); err != nil {
		t.Fatal(err)
	}

	got, err := store.Conversation(ctx, "c1")
	if err != nil {
		t.Fatal(err)
	}
	if got.AgentID != "ag1" || len(got.ToolFunctionIDs) != 2 || got.ToolFunctionIDs[0] != "t2" {
		t.Errorf("unexpected conversation: %+v", got)
	}
	agent, err := store.Agent(ctx, "ag1")
	if err != nil {
		t.Fatal(err)
	}
	if agent.Tokens != 12 || agent.Instructions != "Be brief." {
		t.Errorf("unexpected agent: %+v", agent)
	}
	tool, err := store.ToolFunction(ctx, "t1")
	if err != nil {
		t.Fatal(err)
	}
	if tool.Parameters["type"] != "object" {
		t.Errorf("parameters not round-tripped: %+v", tool.Parameters)
	}
	noop, err := store.ToolFunction(ctx, "t2")
	if err != nil {
		t.Fatal(err)
	}
	if noop.Parameters != nil {
		t.Errorf("expected nil parameters for tool without schema, got %+v", noop.Parameters)
	}

	n, err := store.CountConversations(ctx)
	if err != nil || n != 1 {
		t.Errorf("CountConversations = %d, %v", n, err)
	}
}

func TestSQLiteResources_NotFound(t *testing.T) {
	store := newTestResources(t)
	ctx := context.Background()
	if _, err := store.Conversation(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("conversation: expected ErrNotFound, got %v", err)
	}
	if _, err := store.Agent(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("agent: expected ErrNotFound, got %v", err)
	}
	if _, err := store.ToolFunction(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("tool: expected ErrNotFound, got %v", err)
	}
}

func TestSQLiteResources_MessagesPreserveOrder(t *testing.T) {
	store := newTestResources(t)
	ctx := context.Background()
	msgs := map[string]*models.Message{
		"m1": {Role: models.RoleUser, Content: "hi"},
		"m2": {Role: models.RoleAssistant, ToolCalls: []models.ToolCall{{ID: "call1", Name: "lookup", Arguments: "{}"}}},
		"m3": {Role: models.RoleTool, Content: "42", ToolCallID: "call1"},
	}
	for name, msg := range msgs {
		if err := store.PutMessage(ctx, "c1", name, msg); err != nil {
			t.Fatal(err)
		}
	}

	ids := []models.Identifier{{Name: "m3"}, {Name: "m1"}, {Name: "m2"}}
	got, err := store.Messages(ctx, "c1", ids)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(got))
	}
	if got[0].Content != "42" || got[0].ToolCallID != "call1" {
		t.Errorf("first message = %+v", got[0])
	}
	if got[1].Content != "hi" {
		t.Errorf("second message = %+v", got[1])
	}
	if len(got[2].ToolCalls) != 1 || got[2].ToolCalls[0].Name != "lookup" {
		t.Errorf("tool calls not hydrated: %+v", got[2])
	}

	if _, err := store.Messages(ctx, "c1", []models.Identifier{{Name: "missing"}}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for missing message, got %v", err)
	}
	if _, err := store.Messages(ctx, "c2", []models.Identifier{{Name: "m1"}}); !errors.Is(err, ErrNotFound) {
		t.Errorf("messages must be scoped to their conversation, got %v", err)
	}
}

func TestSQLiteResources_Describe(t *testing.T) {
	store := newTestResources(t)
	ctx := context.Background()
	if err := store.PutExperience(ctx, &models.Experience{ID: "e1", Content: "Refunds need an order id.", Tokens: 8}); err != nil {
		t.Fatal(err)
	}
	got, err := store.Describe(ctx, []string{"e1", "e2"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got["e1"] != "Refunds need an order id." {
		t.Errorf("Describe = %+v", got)
	}
}
