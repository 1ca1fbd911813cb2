// Package experience turns semantically related past experience into a context block
// for the window assembler.
package experience

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/bunmyaku/internal/embedding"
	"github.com/hyperjump/bunmyaku/internal/models"
	"github.com/hyperjump/bunmyaku/internal/vector"
)

// ErrMissingArgument is returned when a required constructor argument is absent.
var ErrMissingArgument = errors.New("missing required argument")

const header = "Relevant past experience:"

// Describer resolves experience ids to the text shown to the model.
type Describer interface {
	Describe(ctx context.Context, ids []string) (map[string]string, error)
}

// Config bounds a retrieval.
type Config struct {
	// Scopes are searched together; empty means every registry scope.
	Scopes        []string
	Threshold     float64
	PerScopeLimit int
	Limit         int
	// MaxTokens caps the summed token cost of included experiences. Zero means no cap.
	MaxTokens int
}

// Injector implements window.Injector on top of a vector registry.
type Injector struct {
	embedder  embedding.Embedder
	registry  *vector.Registry
	describer Describer
	cfg       Config
	logger    *zap.Logger
}

// Option configures an Injector.
type Option func(*Injector)

// WithDescriber sets how experience ids become text. Without one the ids are shown.
func WithDescriber(d Describer) Option {
	return func(in *Injector) { in.describer = d }
}

// WithLogger sets the injector's logger.
func WithLogger(l *zap.Logger) Option {
	return func(in *Injector) {
		if l != nil {
			in.logger = l
		}
	}
}

// NewInjector creates an injector searching registry with embeddings from embedder.
func NewInjector(embedder embedding.Embedder, registry *vector.Registry, cfg Config, opts ...Option) (*Injector, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder: %w", ErrMissingArgument)
	}
	if registry == nil {
		return nil, fmt.Errorf("registry: %w", ErrMissingArgument)
	}
	in := &Injector{embedder: embedder, registry: registry, cfg: cfg, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(in)
	}
	return in, nil
}

// GenerateContext returns a formatted block of experiences related to latestUserText,
// or "" when the text is empty or nothing matches.
func (in *Injector) GenerateContext(ctx context.Context, latestUserText string, toolNames []string) (string, error) {
	if strings.TrimSpace(latestUserText) == "" {
		return "", nil
	}
	query, err := in.embedder.Embed(ctx, queryText(latestUserText, toolNames))
	if err != nil {
		return "", fmt.Errorf("embed query: %w", err)
	}
	searchers, err := in.registry.Searchers(in.cfg.Scopes)
	if err != nil {
		return "", err
	}
	results, err := vector.Search(ctx, searchers, query, in.cfg.Threshold, in.cfg.PerScopeLimit, in.cfg.Limit)
	if err != nil {
		return "", fmt.Errorf("search experience: %w", err)
	}
	results = withinTokens(results, in.cfg.MaxTokens)
	if len(results) == 0 {
		return "", nil
	}

	texts := map[string]string{}
	if in.describer != nil {
		ids := make([]string, len(results))
		for i, r := range results {
			ids[i] = r.ID
		}
		texts, err = in.describer.Describe(ctx, ids)
		if err != nil {
			return "", fmt.Errorf("describe experience: %w", err)
		}
	}

	in.logger.Debug("experience retrieved", zap.Int("results", len(results)), zap.Int("tool_names", len(toolNames)))
	return format(results, texts), nil
}

func queryText(userText string, toolNames []string) string {
	if len(toolNames) == 0 {
		return userText
	}
	return userText + "\nTools: " + strings.Join(toolNames, ", ")
}

// withinTokens keeps the best results until the next one would exceed maxTokens.
func withinTokens(results []models.QueryResult, maxTokens int) []models.QueryResult {
	if maxTokens <= 0 {
		return results
	}
	total := 0
	for i, r := range results {
		if r.Tokens > maxTokens-total {
			return results[:i]
		}
		total += r.Tokens
	}
	return results
}

func format(results []models.QueryResult, texts map[string]string) string {
	var b strings.Builder
	b.WriteString(header)
	for i, r := range results {
		text, ok := texts[r.ID]
		if !ok || text == "" {
			text = r.ID
		}
		fmt.Fprintf(&b, "\n%d. %s", i+1, text)
	}
	return b.String()
}
