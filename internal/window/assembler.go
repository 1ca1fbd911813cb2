package window

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/bunmyaku/internal/models"
	"github.com/hyperjump/bunmyaku/internal/storage"
	"github.com/hyperjump/bunmyaku/pkg/utils"
)

// Resolver loads conversation resources and hydrates logged identifiers.
type Resolver interface {
	Conversation(ctx context.Context, id string) (*models.Conversation, error)
	Agent(ctx context.Context, id string) (*models.Agent, error)
	ToolFunction(ctx context.Context, id string) (*models.ToolFunction, error)
	Messages(ctx context.Context, conversationID string, ids []models.Identifier) ([]models.Message, error)
}

// Injector produces an extra context block for the latest user message.
// An empty string means there is nothing to inject.
type Injector interface {
	GenerateContext(ctx context.Context, latestUserText string, toolNames []string) (string, error)
}

// Dependencies are the collaborators of an Assembler. Injector and Logger are optional.
type Dependencies struct {
	Store    storage.Store
	Resolver Resolver
	Budgets  BudgetTable
	Injector Injector
	Logger   *zap.Logger
}

// Assembler builds context windows for one conversation. It keeps no state between
// calls: every Build reads the reference log and resources afresh.
type Assembler struct {
	conversationID string
	log            *referenceLog
	resolver       Resolver
	budgets        BudgetTable
	injector       Injector
	logger         *zap.Logger
}

// Option configures an Assembler.
type Option func(*Assembler)

// WithLogKey overrides the store key of the reference log.
func WithLogKey(key string) Option {
	return func(a *Assembler) {
		if key != "" {
			a.log.key = key
		}
	}
}

// NewAssembler returns an assembler for conversationID.
func NewAssembler(conversationID string, deps Dependencies, opts ...Option) (*Assembler, error) {
	switch {
	case conversationID == "":
		return nil, fmt.Errorf("conversation id: %w", ErrMissingArgument)
	case deps.Store == nil:
		return nil, fmt.Errorf("store: %w", ErrMissingArgument)
	case deps.Resolver == nil:
		return nil, fmt.Errorf("resolver: %w", ErrMissingArgument)
	case deps.Budgets == nil:
		return nil, fmt.Errorf("budget table: %w", ErrMissingArgument)
	}
	logger := utils.LoggerOrNop(deps.Logger)
	a := &Assembler{
		conversationID: conversationID,
		log:            &referenceLog{store: deps.Store, key: LogKey(conversationID)},
		resolver:       deps.Resolver,
		budgets:        deps.Budgets,
		injector:       deps.Injector,
		logger:         logger.With(zap.String("conversation_id", conversationID)),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Append adds identifiers to the end of the reference log in the order given.
// It does nothing for empty input.
func (a *Assembler) Append(ctx context.Context, ids []models.Identifier) error {
	if len(ids) == 0 {
		return nil
	}
	for _, id := range ids {
		if id.Name == "" {
			return fmt.Errorf("identifier without name: %w", ErrInvalidRequest)
		}
		if _, ok := id.TokenCount(); !ok {
			return fmt.Errorf("identifier %q: %w", id.Name, ErrMissingTokens)
		}
	}
	if err := a.log.append(ctx, ids); err != nil {
		return err
	}
	a.logger.Debug("reference log appended", zap.Int("identifiers", len(ids)))
	return nil
}

// DefaultModel returns the model recorded on the conversation, or "" when it has none.
func (a *Assembler) DefaultModel(ctx context.Context) (string, error) {
	conv, err := a.resolver.Conversation(ctx, a.conversationID)
	if err != nil {
		return "", notFound(err, ErrConversationNotFound, a.conversationID)
	}
	return conv.Model, nil
}

// Build assembles the window for a completion call on model, leaving reservedOutputTokens
// of the model's context free for the response.
func (a *Assembler) Build(ctx context.Context, model string, reservedOutputTokens int) (*models.Window, error) {
	if model == "" {
		return nil, fmt.Errorf("model is required: %w", ErrInvalidRequest)
	}
	if reservedOutputTokens <= 0 {
		return nil, fmt.Errorf("reserved output tokens must be positive, got %d: %w", reservedOutputTokens, ErrInvalidRequest)
	}

	conv, err := a.resolver.Conversation(ctx, a.conversationID)
	if err != nil {
		return nil, notFound(err, ErrConversationNotFound, a.conversationID)
	}
	agent, err := a.resolver.Agent(ctx, conv.AgentID)
	if err != nil {
		return nil, notFound(err, ErrAgentNotFound, conv.AgentID)
	}

	tools := make([]models.ToolDefinition, 0, len(conv.ToolFunctionIDs))
	toolNames := make([]string, 0, len(conv.ToolFunctionIDs))
	overhead := agent.Tokens
	for _, toolID := range conv.ToolFunctionIDs {
		fn, err := a.resolver.ToolFunction(ctx, toolID)
		if err != nil {
			return nil, notFound(err, ErrToolNotFound, toolID)
		}
		tools = append(tools, models.ToolDefinition{
			Type: "function",
			Function: models.FunctionSpec{
				Name:        fn.Name,
				Description: fn.Description,
				Parameters:  NormalizeParameters(fn.Parameters),
			},
		})
		toolNames = append(toolNames, fn.Name)
		overhead += fn.Tokens
	}

	modelBudget, err := a.budgets.Budget(model)
	if err != nil {
		return nil, err
	}
	historyBudget := max(0, modelBudget-overhead-reservedOutputTokens)

	logged, err := a.log.read(ctx)
	if err != nil {
		return nil, err
	}
	selected, _, err := SelectHistory(logged, historyBudget)
	if err != nil {
		return nil, err
	}
	dropped := len(logged) - len(selected)
	selected, repaired := StripDanglingToolResults(selected)
	historyTokens := sumTokens(selected)

	history, err := a.resolver.Messages(ctx, a.conversationID, selected)
	if err != nil {
		return nil, fmt.Errorf("hydrate history: %w", err)
	}

	messages := make([]models.Message, 0, len(history)+2)
	messages = append(messages, models.Message{Role: models.RoleSystem, Content: agent.Instructions, Name: agent.Name})
	if a.injector != nil {
		if block := a.inject(ctx, history, toolNames); block != "" {
			messages = append(messages, models.Message{Role: models.RoleSystem, Content: block})
		}
	}
	messages = append(messages, history...)

	a.logger.Debug("window built",
		zap.String("model", model),
		zap.Int("model_budget", modelBudget),
		zap.Int("overhead_tokens", overhead),
		zap.Int("history_budget", historyBudget),
		zap.Int("history_tokens", historyTokens),
		zap.Int("selected", len(selected)),
		zap.Int("dropped", dropped),
		zap.Int("repaired", repaired),
	)

	return &models.Window{
		Messages:       messages,
		Tools:          tools,
		Model:          model,
		ModelBudget:    modelBudget,
		OverheadTokens: overhead,
		HistoryBudget:  historyBudget,
		HistoryTokens:  historyTokens,
		Dropped:        dropped,
		Repaired:       repaired,
	}, nil
}

// inject asks the injector for a context block. Injection is an enrichment: failures are
// logged and the window is built without it.
func (a *Assembler) inject(ctx context.Context, history []models.Message, toolNames []string) string {
	latest := latestUserText(history)
	block, err := a.injector.GenerateContext(ctx, latest, toolNames)
	if err != nil {
		a.logger.Warn("experience injection failed", zap.Error(err))
		return ""
	}
	return block
}

func latestUserText(history []models.Message) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == models.RoleUser {
			return history[i].Content
		}
	}
	return ""
}

func sumTokens(ids []models.Identifier) int {
	total := 0
	for _, id := range ids {
		n, _ := id.TokenCount()
		total += n
	}
	return total
}

// notFound maps storage.ErrNotFound to the typed not-found error and passes other errors through.
func notFound(err, kind error, id string) error {
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%s: %w", id, kind)
	}
	return err
}
