package models

// Identifier types with special meaning to the window assembler.
const (
	TypeMessage    = "message"
	TypeToolCall   = "tool_call"
	TypeToolResult = "tool_result"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Identifier is a lightweight reference to conversation content that is hydrated elsewhere.
// Tokens is a pointer so that a missing cost can be told apart from a zero cost.
type Identifier struct {
	Name   string         `json:"name"`
	Type   string         `json:"type"`
	Tokens *int           `json:"tokens,omitempty"`
	Role   string         `json:"role,omitempty"`
	Extra  map[string]any `json:"extra,omitempty"`
}

// IsToolResult reports whether the identifier refers to a tool-result message.
func (i Identifier) IsToolResult() bool {
	return i.Type == TypeToolResult || i.Role == RoleTool
}

// TokenCount returns the attached token cost and whether it was present.
func (i Identifier) TokenCount() (int, bool) {
	if i.Tokens == nil {
		return 0, false
	}
	return *i.Tokens, true
}

// LogRecord is one line of a conversation's reference log.
type LogRecord struct {
	ID         string     `json:"id"`
	Identifier Identifier `json:"identifier"`
}

// Tokens returns a pointer to n, for building identifiers inline.
func Tokens(n int) *int {
	return &n
}
