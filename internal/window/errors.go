// Package window assembles the message and tool lists sent with a completion call,
// keeping conversation history within the target model's token budget.
package window

import "errors"

var (
	// ErrMissingArgument is returned when a required constructor argument is absent.
	ErrMissingArgument = errors.New("missing required argument")
	// ErrInvalidRequest is returned for an empty model name or non-positive reserved output tokens.
	ErrInvalidRequest = errors.New("invalid build request")
	// ErrUnknownModel is returned when the budget table has no entry for a model.
	ErrUnknownModel = errors.New("unknown model")
	// ErrMissingTokens is returned when a logged identifier carries no token cost.
	ErrMissingTokens = errors.New("identifier is missing token cost")
	// ErrConversationNotFound is returned when the conversation cannot be resolved.
	ErrConversationNotFound = errors.New("conversation not found")
	// ErrAgentNotFound is returned when the conversation's agent cannot be resolved.
	ErrAgentNotFound = errors.New("agent not found")
	// ErrToolNotFound is returned when a referenced tool function cannot be resolved.
	ErrToolNotFound = errors.New("tool function not found")
)
