package window

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/bunmyaku/internal/models"
	"github.com/hyperjump/bunmyaku/internal/storage"
)

type stubInjector struct {
	block     string
	err       error
	gotText   string
	gotTools  []string
	callCount int
}

func (s *stubInjector) GenerateContext(ctx context.Context, latestUserText string, toolNames []string) (string, error) {
	s.callCount++
	s.gotText = latestUserText
	s.gotTools = toolNames
	return s.block, s.err
}

func historyNames(w *models.Window) []string {
	var names []string
	for _, m := range w.Messages {
		if m.Role == models.RoleSystem {
			continue
		}
		names = append(names, m.Content)
	}
	return names
}

func TestNewAssembler_MissingArguments(t *testing.T) {
	f := newFixture(t)
	deps := Dependencies{Store: f.store, Resolver: f.resolver, Budgets: f.budgets}

	_, err := NewAssembler("", deps)
	assert.ErrorIs(t, err, ErrMissingArgument)

	for name, d := range map[string]Dependencies{
		"store":    {Resolver: f.resolver, Budgets: f.budgets},
		"resolver": {Store: f.store, Budgets: f.budgets},
		"budgets":  {Store: f.store, Resolver: f.resolver},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := NewAssembler("c1", d)
			assert.ErrorIs(t, err, ErrMissingArgument)
		})
	}
}

func TestBuild_ExactFit(t *testing.T) {
	f := newFixture(t)
	f.budgets["small"] = 36
	a := f.assembler(t, nil)
	f.logMessages(t, a,
		ident("m1", models.RoleUser, 15),
		ident("m2", models.RoleAssistant, 25),
		ident("m3", models.RoleUser, 10),
	)

	w, err := a.Build(context.Background(), "small", 1)
	require.NoError(t, err)
	assert.Equal(t, 35, w.HistoryBudget)
	assert.Equal(t, 35, w.HistoryTokens)
	assert.Equal(t, []string{"content of m2", "content of m3"}, historyNames(w))
	assert.Equal(t, 1, w.Dropped)
	assert.Equal(t, 0, w.Repaired)
}

func TestBuild_RepairsOrphanToolResults(t *testing.T) {
	f := newFixture(t)
	f.budgets["small"] = 131
	a := f.assembler(t, nil)
	f.logMessages(t, a,
		ident("call", models.RoleAssistant, 100),
		ident("r1", models.RoleTool, 50),
		ident("r2", models.RoleTool, 50),
		ident("reply", models.RoleAssistant, 30),
	)

	w, err := a.Build(context.Background(), "small", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"content of reply"}, historyNames(w))
	assert.Equal(t, 2, w.Repaired)
	assert.Equal(t, 30, w.HistoryTokens)
	require.NotEmpty(t, w.Messages)
	assert.Equal(t, models.RoleSystem, w.Messages[0].Role)
	assert.NotEqual(t, models.RoleTool, w.Messages[1].Role)
}

func TestBuild_UnknownModel(t *testing.T) {
	f := newFixture(t)
	a := f.assembler(t, nil)
	_, err := a.Build(context.Background(), "nonexistent-model", 100)
	assert.ErrorIs(t, err, ErrUnknownModel)
}

func TestBuild_InvalidRequest(t *testing.T) {
	f := newFixture(t)
	a := f.assembler(t, nil)
	ctx := context.Background()

	_, err := a.Build(ctx, "", 100)
	assert.ErrorIs(t, err, ErrInvalidRequest)
	_, err = a.Build(ctx, "test-model", 0)
	assert.ErrorIs(t, err, ErrInvalidRequest)
	_, err = a.Build(ctx, "test-model", -5)
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestBuild_NotFound(t *testing.T) {
	ctx := context.Background()

	t.Run("conversation", func(t *testing.T) {
		f := newFixture(t)
		delete(f.resolver.conversations, "c1")
		_, err := f.assembler(t, nil).Build(ctx, "test-model", 10)
		assert.ErrorIs(t, err, ErrConversationNotFound)
	})
	t.Run("agent", func(t *testing.T) {
		f := newFixture(t)
		delete(f.resolver.agents, "a1")
		_, err := f.assembler(t, nil).Build(ctx, "test-model", 10)
		assert.ErrorIs(t, err, ErrAgentNotFound)
	})
	t.Run("tool", func(t *testing.T) {
		f := newFixture(t)
		f.resolver.conversations["c1"].ToolFunctionIDs = []string{"missing"}
		_, err := f.assembler(t, nil).Build(ctx, "test-model", 10)
		assert.ErrorIs(t, err, ErrToolNotFound)
	})
}

func TestBuild_MissingTokensInLog(t *testing.T) {
	f := newFixture(t)
	a := f.assembler(t, nil)
	ctx := context.Background()
	// written around Append, which refuses identifiers without a cost
	raw := `{"id":"x","identifier":{"name":"m1","type":"message","role":"user"}}` + "\n"
	require.NoError(t, f.store.Append(ctx, LogKey("c1"), []byte(raw)))

	_, err := a.Build(ctx, "test-model", 10)
	assert.ErrorIs(t, err, ErrMissingTokens)
}

func TestBuild_OverheadAndTools(t *testing.T) {
	f := newFixture(t)
	f.budgets["small"] = 100
	f.resolver.agents["a1"].Tokens = 20
	f.resolver.tools["t1"] = &models.ToolFunction{ID: "t1", Name: "search", Description: "find things", Tokens: 15}
	f.resolver.tools["t2"] = &models.ToolFunction{
		ID:         "t2",
		Name:       "fetch",
		Parameters: map[string]any{"type": "object", "properties": map[string]any{"url": map[string]any{"type": "string"}}},
		Tokens:     5,
	}
	f.resolver.conversations["c1"].ToolFunctionIDs = []string{"t2", "t1"}
	a := f.assembler(t, nil)
	f.logMessages(t, a, ident("m1", models.RoleUser, 40), ident("m2", models.RoleAssistant, 40))

	w, err := a.Build(context.Background(), "small", 10)
	require.NoError(t, err)
	assert.Equal(t, 40, w.OverheadTokens)
	assert.Equal(t, 50, w.HistoryBudget)
	assert.Equal(t, []string{"content of m2"}, historyNames(w))

	require.Len(t, w.Tools, 2)
	assert.Equal(t, "fetch", w.Tools[0].Function.Name)
	assert.Equal(t, "search", w.Tools[1].Function.Name)
	assert.Equal(t, "function", w.Tools[1].Type)
	assert.Equal(t, "object", w.Tools[1].Function.Parameters["type"])
	assert.Equal(t, map[string]any{}, w.Tools[1].Function.Parameters["properties"])

	sys := w.Messages[0]
	assert.Equal(t, models.RoleSystem, sys.Role)
	assert.Equal(t, "You help.", sys.Content)
	assert.Equal(t, "helper", sys.Name)
}

func TestBuild_OverheadExceedsBudget(t *testing.T) {
	f := newFixture(t)
	f.budgets["small"] = 50
	f.resolver.agents["a1"].Tokens = 100
	a := f.assembler(t, nil)
	f.logMessages(t, a, ident("m1", models.RoleUser, 1), ident("free", models.RoleUser, 0))

	w, err := a.Build(context.Background(), "small", 10)
	require.NoError(t, err)
	assert.Equal(t, 0, w.HistoryBudget)
	assert.Equal(t, []string{"content of free"}, historyNames(w))
}

func TestBuild_EmptyLog(t *testing.T) {
	f := newFixture(t)
	w, err := f.assembler(t, nil).Build(context.Background(), "test-model", 10)
	require.NoError(t, err)
	require.Len(t, w.Messages, 1)
	assert.Equal(t, models.RoleSystem, w.Messages[0].Role)
	assert.Empty(t, w.Tools)
}

func TestBuild_Injection(t *testing.T) {
	ctx := context.Background()

	t.Run("block inserted after system message", func(t *testing.T) {
		f := newFixture(t)
		f.resolver.tools["t1"] = &models.ToolFunction{ID: "t1", Name: "search"}
		f.resolver.conversations["c1"].ToolFunctionIDs = []string{"t1"}
		inj := &stubInjector{block: "past experience"}
		a := f.assembler(t, inj)
		f.logMessages(t, a, ident("q1", models.RoleUser, 5), ident("r1", models.RoleAssistant, 5), ident("q2", models.RoleUser, 5))

		w, err := a.Build(ctx, "test-model", 10)
		require.NoError(t, err)
		require.Len(t, w.Messages, 5)
		assert.Equal(t, models.RoleSystem, w.Messages[1].Role)
		assert.Equal(t, "past experience", w.Messages[1].Content)
		assert.Equal(t, "content of q2", inj.gotText)
		assert.Equal(t, []string{"search"}, inj.gotTools)
	})

	t.Run("empty block skipped", func(t *testing.T) {
		f := newFixture(t)
		inj := &stubInjector{}
		a := f.assembler(t, inj)
		f.logMessages(t, a, ident("q1", models.RoleUser, 5))

		w, err := a.Build(ctx, "test-model", 10)
		require.NoError(t, err)
		assert.Len(t, w.Messages, 2)
		assert.Equal(t, 1, inj.callCount)
	})

	t.Run("injector failure does not fail the build", func(t *testing.T) {
		f := newFixture(t)
		inj := &stubInjector{block: "ignored", err: errors.New("boom")}
		a := f.assembler(t, inj)
		f.logMessages(t, a, ident("q1", models.RoleUser, 5))

		w, err := a.Build(ctx, "test-model", 10)
		require.NoError(t, err)
		assert.Len(t, w.Messages, 2)
	})
}

func TestAppend(t *testing.T) {
	f := newFixture(t)
	a := f.assembler(t, nil)
	ctx := context.Background()

	require.NoError(t, a.Append(ctx, nil))
	exists, err := f.store.Exists(ctx, LogKey("c1"))
	require.NoError(t, err)
	assert.False(t, exists, "empty append must not create the log")

	f.logMessages(t, a, ident("m1", models.RoleUser, 1), ident("m2", models.RoleAssistant, 2))
	f.logMessages(t, a, ident("m3", models.RoleUser, 3))

	logged, err := a.log.read(ctx)
	require.NoError(t, err)
	require.Len(t, logged, 3)
	assert.Equal(t, "m1", logged[0].Name)
	assert.Equal(t, "m2", logged[1].Name)
	assert.Equal(t, "m3", logged[2].Name)

	assert.ErrorIs(t, a.Append(ctx, []models.Identifier{{Type: models.TypeMessage, Tokens: models.Tokens(1)}}), ErrInvalidRequest)
	assert.ErrorIs(t, a.Append(ctx, []models.Identifier{{Name: "x", Type: models.TypeMessage}}), ErrMissingTokens)
}

func TestWithLogKey(t *testing.T) {
	f := newFixture(t)
	a, err := NewAssembler("c1", Dependencies{Store: f.store, Resolver: f.resolver, Budgets: f.budgets}, WithLogKey("custom/log.jsonl"))
	require.NoError(t, err)
	require.NoError(t, a.Append(context.Background(), []models.Identifier{ident("m1", models.RoleUser, 1)}))

	exists, err := f.store.Exists(context.Background(), "custom/log.jsonl")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestBuild_WithSQLiteResources(t *testing.T) {
	ctx := context.Background()
	res, err := storage.NewSQLiteResources(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = res.Close() })
	store, err := storage.NewDiskStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, res.PutAgent(ctx, &models.Agent{ID: "a1", Name: "helper", Instructions: "Be brief.", Tokens: 10}))
	require.NoError(t, res.PutToolFunction(ctx, &models.ToolFunction{ID: "t1", Name: "lookup", Tokens: 10}))
	require.NoError(t, res.PutConversation(ctx, &models.Conversation{ID: "c1", AgentID: "a1", ToolFunctionIDs: []string{"t1"}}))
	require.NoError(t, res.PutMessage(ctx, "c1", "m1", &models.Message{Role: models.RoleUser, Content: "hello"}))
	require.NoError(t, res.PutMessage(ctx, "c1", "m2", &models.Message{Role: models.RoleAssistant, Content: "hi"}))

	a, err := NewAssembler("c1", Dependencies{Store: store, Resolver: res, Budgets: StaticBudgets{"m": 100}})
	require.NoError(t, err)
	require.NoError(t, a.Append(ctx, []models.Identifier{ident("m1", models.RoleUser, 5), ident("m2", models.RoleAssistant, 5)}))

	w, err := a.Build(ctx, "m", 10)
	require.NoError(t, err)
	require.Len(t, w.Messages, 3)
	assert.Equal(t, "Be brief.", w.Messages[0].Content)
	assert.Equal(t, "hello", w.Messages[1].Content)
	assert.Equal(t, "hi", w.Messages[2].Content)
	require.Len(t, w.Tools, 1)
	assert.Equal(t, "lookup", w.Tools[0].Function.Name)
}
