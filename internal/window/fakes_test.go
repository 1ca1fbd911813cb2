package window

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hyperjump/bunmyaku/internal/models"
	"github.com/hyperjump/bunmyaku/internal/storage"
)

type fakeResolver struct {
	conversations map[string]*models.Conversation
	agents        map[string]*models.Agent
	tools         map[string]*models.ToolFunction
	messages      map[string]models.Message
	hydrated      [][]models.Identifier
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{
		conversations: map[string]*models.Conversation{},
		agents:        map[string]*models.Agent{},
		tools:         map[string]*models.ToolFunction{},
		messages:      map[string]models.Message{},
	}
}

func (f *fakeResolver) Conversation(ctx context.Context, id string) (*models.Conversation, error) {
	c, ok := f.conversations[id]
	if !ok {
		return nil, fmt.Errorf("conversation %s: %w", id, storage.ErrNotFound)
	}
	return c, nil
}

func (f *fakeResolver) Agent(ctx context.Context, id string) (*models.Agent, error) {
	a, ok := f.agents[id]
	if !ok {
		return nil, fmt.Errorf("agent %s: %w", id, storage.ErrNotFound)
	}
	return a, nil
}

func (f *fakeResolver) ToolFunction(ctx context.Context, id string) (*models.ToolFunction, error) {
	t, ok := f.tools[id]
	if !ok {
		return nil, fmt.Errorf("tool %s: %w", id, storage.ErrNotFound)
	}
	return t, nil
}

func (f *fakeResolver) Messages(ctx context.Context, conversationID string, ids []models.Identifier) ([]models.Message, error) {
	f.hydrated = append(f.hydrated, ids)
	out := make([]models.Message, 0, len(ids))
	for _, id := range ids {
		m, ok := f.messages[id.Name]
		if !ok {
			return nil, fmt.Errorf("message %s: %w", id.Name, storage.ErrNotFound)
		}
		out = append(out, m)
	}
	return out, nil
}

// fixture wires an assembler for conversation "c1" bound to agent "a1".
type fixture struct {
	store    *storage.DiskStore
	resolver *fakeResolver
	budgets  StaticBudgets
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := storage.NewDiskStore(t.TempDir())
	require.NoError(t, err)
	r := newFakeResolver()
	r.agents["a1"] = &models.Agent{ID: "a1", Name: "helper", Instructions: "You help.", Tokens: 0}
	r.conversations["c1"] = &models.Conversation{ID: "c1", AgentID: "a1"}
	return &fixture{
		store:    store,
		resolver: r,
		budgets:  StaticBudgets{"test-model": 1000},
	}
}

func (f *fixture) assembler(t *testing.T, injector Injector) *Assembler {
	t.Helper()
	a, err := NewAssembler("c1", Dependencies{
		Store:    f.store,
		Resolver: f.resolver,
		Budgets:  f.budgets,
		Injector: injector,
	})
	require.NoError(t, err)
	return a
}

// logMessages appends identifiers and registers matching hydrated messages.
func (f *fixture) logMessages(t *testing.T, a *Assembler, ids ...models.Identifier) {
	t.Helper()
	for _, id := range ids {
		role := id.Role
		if role == "" {
			role = models.RoleUser
		}
		f.resolver.messages[id.Name] = models.Message{Role: role, Content: "content of " + id.Name}
	}
	require.NoError(t, a.Append(context.Background(), ids))
}

func ident(name, role string, tokens int) models.Identifier {
	typ := models.TypeMessage
	if role == models.RoleTool {
		typ = models.TypeToolResult
	}
	return models.Identifier{Name: name, Type: typ, Role: role, Tokens: models.Tokens(tokens)}
}
