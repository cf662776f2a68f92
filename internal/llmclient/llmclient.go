// Package llmclient defines the external LLM client interface the core
// consumes (spec §6 "LLM client (consumed)"): a single operation,
// generate(messages, deadline) → text. The core never assumes a specific
// wire format beyond "returns a string expected to contain JSON";
// internal/jsonrepair is responsible for extracting and repairing that
// JSON before any component parses it.
package llmclient

import (
	"context"
	"time"
)

// Role identifies the speaker of one Message in a chat-style prompt.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn in the prompt sent to generate.
type Message struct {
	Role    Role
	Content string
}

// Client is the external LLM client interface.
type Client interface {
	// Generate sends messages to the model and returns its raw text
	// response. The call is bounded by deadline; callers should pass a
	// context already carrying that deadline.
	Generate(ctx context.Context, messages []Message, deadline time.Time) (string, error)
}
