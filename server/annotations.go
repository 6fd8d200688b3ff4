package server

import "sync"

// ToolAnnotations provides metadata hints about tool behavior. These help
// clients understand what a tool does without calling it; the core does
// not act on them beyond exposing them, except NonReentrantHint which the
// scheduler honors by serializing calls.
type ToolAnnotations struct {
	// Title is a human-readable title for the tool.
	Title string `json:"title,omitempty"`

	// ReadOnlyHint indicates the tool only reads data (no side effects).
	ReadOnlyHint *bool `json:"readOnlyHint,omitempty"`

	// DestructiveHint indicates the tool might make destructive changes.
	DestructiveHint *bool `json:"destructiveHint,omitempty"`

	// IdempotentHint indicates repeated calls with the same input have
	// the same effect as one call. Relevant when a timed-out call may
	// still complete: retrying a non-idempotent tool is unsafe.
	IdempotentHint *bool `json:"idempotentHint,omitempty"`

	// NonReentrantHint indicates calls to this tool never run
	// concurrently with each other.
	NonReentrantHint *bool `json:"nonReentrantHint,omitempty"`
}

// Bool returns a pointer to a bool value for use in annotations.
func Bool(v bool) *bool {
	return &v
}

func (b *ToolBuilder) annotations() *ToolAnnotations {
	if b.tool.annotations == nil {
		b.tool.annotations = &ToolAnnotations{}
	}
	return b.tool.annotations
}

// Title sets a human-readable title for the tool.
func (b *ToolBuilder) Title(title string) *ToolBuilder {
	if b.err != nil {
		return b
	}
	b.annotations().Title = title
	return b
}

// ReadOnly marks the tool as read-only (no side effects).
func (b *ToolBuilder) ReadOnly() *ToolBuilder {
	if b.err != nil {
		return b
	}
	b.annotations().ReadOnlyHint = Bool(true)
	b.annotations().DestructiveHint = Bool(false)
	return b
}

// Destructive marks the tool as potentially destructive.
func (b *ToolBuilder) Destructive() *ToolBuilder {
	if b.err != nil {
		return b
	}
	b.annotations().DestructiveHint = Bool(true)
	return b
}

// Idempotent marks the tool as idempotent.
func (b *ToolBuilder) Idempotent() *ToolBuilder {
	if b.err != nil {
		return b
	}
	b.annotations().IdempotentHint = Bool(true)
	return b
}

// Serialized marks the tool as non-reentrant and records the hint in its
// annotations.
func (b *ToolBuilder) Serialized() *ToolBuilder {
	if b.err != nil {
		return b
	}
	b.tool.serialize = &sync.Mutex{}
	b.annotations().NonReentrantHint = Bool(true)
	return b
}
