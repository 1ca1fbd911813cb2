package window

import (
	"fmt"
	"sort"
)

// BudgetTable maps model names to their context size in tokens.
type BudgetTable interface {
	Budget(model string) (int, error)
}

// DefaultModelBudgets is the built-in context size table.
var DefaultModelBudgets = map[string]int{
	"gpt-4o":                     128000,
	"gpt-4o-mini":                128000,
	"gpt-4.1":                    1047576,
	"gpt-4.1-mini":               1047576,
	"gpt-4-turbo":                128000,
	"gpt-4":                      8192,
	"gpt-3.5-turbo":              16385,
	"o3-mini":                    200000,
	"claude-3-5-sonnet-20241022": 200000,
	"claude-3-5-haiku-20241022":  200000,
	"claude-3-7-sonnet-20250219": 200000,
	"claude-sonnet-4-20250514":   200000,
	"claude-opus-4-20250514":     200000,
	"gemini-1.5-pro":             2097152,
	"gemini-1.5-flash":           1048576,
	"gemini-2.0-flash":           1048576,
	"llama-3.1-70b-instruct":     131072,
	"llama-3.1-8b-instruct":      131072,
}

// StaticBudgets is a fixed model table. Lookups never fall back to a default.
type StaticBudgets map[string]int

// NewStaticBudgets returns DefaultModelBudgets merged with overrides.
// A non-positive override removes the model.
func NewStaticBudgets(overrides map[string]int) StaticBudgets {
	b := make(StaticBudgets, len(DefaultModelBudgets)+len(overrides))
	for model, n := range DefaultModelBudgets {
		b[model] = n
	}
	for model, n := range overrides {
		if n <= 0 {
			delete(b, model)
			continue
		}
		b[model] = n
	}
	return b
}

// Budget returns the context size for model.
func (b StaticBudgets) Budget(model string) (int, error) {
	n, ok := b[model]
	if !ok {
		return 0, fmt.Errorf("%q: %w", model, ErrUnknownModel)
	}
	return n, nil
}

// Models returns the known model names, sorted.
func (b StaticBudgets) Models() []string {
	names := make([]string, 0, len(b))
	for m := range b {
		names = append(names, m)
	}
	sort.Strings(names)
	return names
}
