package models

import "time"

// Conversation binds an agent and its tool functions.
type Conversation struct {
	ID              string    `json:"id" db:"id"`
	AgentID         string    `json:"agent_id" db:"agent_id"`
	Model           string    `json:"model,omitempty" db:"model"`
	ToolFunctionIDs []string  `json:"tool_function_ids,omitempty"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}

// Agent carries the system instructions for a conversation.
type Agent struct {
	ID           string `json:"id" db:"id"`
	Name         string `json:"name" db:"name"`
	Instructions string `json:"instructions" db:"instructions"`
	Tokens       int    `json:"tokens" db:"tokens"`
}

// ToolFunction is a callable tool with a JSON-schema parameter definition.
type ToolFunction struct {
	ID          string         `json:"id" db:"id"`
	Name        string         `json:"name" db:"name"`
	Description string         `json:"description" db:"description"`
	Parameters  map[string]any `json:"parameters" db:"parameters"`
	Tokens      int            `json:"tokens" db:"tokens"`
}

// ToolCall is an assistant request to invoke a tool.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Message is a hydrated conversation message.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	Name       string     `json:"name,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
}

// ToolDefinition is a tool in the shape expected by completion APIs.
type ToolDefinition struct {
	Type     string       `json:"type"`
	Function FunctionSpec `json:"function"`
}

// FunctionSpec is the function part of a ToolDefinition.
type FunctionSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters"`
}

// Window is the assembled input for a single completion call.
type Window struct {
	Messages []Message        `json:"messages"`
	Tools    []ToolDefinition `json:"tools"`

	Model          string `json:"model"`
	ModelBudget    int    `json:"model_budget"`
	OverheadTokens int    `json:"overhead_tokens"`
	HistoryBudget  int    `json:"history_budget"`
	HistoryTokens  int    `json:"history_tokens"`
	// Dropped counts log entries that did not fit the history budget.
	Dropped int `json:"dropped"`
	// Repaired counts leading tool results removed from the selection.
	Repaired int `json:"repaired"`
}

// Experience is a stored past interaction that can be injected as context.
type Experience struct {
	ID      string `json:"id" db:"id"`
	Content string `json:"content" db:"content"`
	Tokens  int    `json:"tokens" db:"tokens"`
}
