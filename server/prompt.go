package server

import (
	"context"
	"strings"

	"github.com/toolwire/mcpd/protocol"
)

// TextContent represents text content in a prompt message.
type TextContent struct {
	Type string `json:"type"` // always "text"
	Text string `json:"text"`
}

// PromptMessage represents one message in a rendered prompt.
type PromptMessage struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content any    `json:"content"`
}

// PromptResult is the rendered message sequence returned by prompts/get.
type PromptResult struct {
	Description string          `json:"description,omitempty"`
	Messages    []PromptMessage `json:"messages"`
}

// PromptArgument describes an argument accepted by a prompt.
type PromptArgument struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required,omitempty"`
}

// PromptHandler is the function signature for prompt handlers.
type PromptHandler func(ctx context.Context, args map[string]string) (*PromptResult, error)

// Prompt represents a prompt template exposed via MCP.
type Prompt struct {
	name        string
	description string
	arguments   []PromptArgument
	handler     PromptHandler
}

// PromptInfo represents metadata about a registered prompt.
type PromptInfo struct {
	Name        string
	Description string
	Arguments   []PromptArgument
}

// PromptBuilder provides a fluent API for building prompts.
type PromptBuilder struct {
	prompt *Prompt
	server *Server
	err    error
}

// Description sets the prompt description.
func (b *PromptBuilder) Description(desc string) *PromptBuilder {
	if b.err != nil {
		return b
	}
	b.prompt.description = desc
	return b
}

// Argument adds an argument to the prompt.
func (b *PromptBuilder) Argument(name, description string, required bool) *PromptBuilder {
	if b.err != nil {
		return b
	}
	b.prompt.arguments = append(b.prompt.arguments, PromptArgument{
		Name:        name,
		Description: description,
		Required:    required,
	})
	return b
}

// Handler sets the prompt handler function and registers the prompt.
func (b *PromptBuilder) Handler(fn PromptHandler) *PromptBuilder {
	if b.err != nil {
		return b
	}

	b.prompt.handler = fn
	if err := b.server.registerPrompt(b.prompt); err != nil {
		b.err = err
	}
	return b
}

// Template registers a prompt rendered from a static template string.
// Occurrences of {arg} are substituted with the caller's argument values.
func (b *PromptBuilder) Template(role, template string) *PromptBuilder {
	return b.Handler(func(_ context.Context, args map[string]string) (*PromptResult, error) {
		text := template
		for name, value := range args {
			text = strings.ReplaceAll(text, "{"+name+"}", value)
		}
		return &PromptResult{
			Messages: []PromptMessage{
				{Role: role, Content: TextContent{Type: "text", Text: text}},
			},
		}, nil
	})
}

// Err returns the first error encountered while building or registering.
func (b *PromptBuilder) Err() error {
	return b.err
}

// Get executes the prompt handler with the given arguments. Required
// arguments are checked before the handler runs.
func (p *Prompt) Get(ctx context.Context, args map[string]string) (*PromptResult, error) {
	for _, arg := range p.arguments {
		if arg.Required {
			if args == nil || args[arg.Name] == "" {
				return nil, protocol.NewInvalidParams("missing required argument: " + arg.Name)
			}
		}
	}

	return p.handler(ctx, args)
}
