package server

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sync"

	"github.com/toolwire/mcpd/protocol"
	"github.com/toolwire/mcpd/schema"
)

// ContentBlock is one typed block in a tool result.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// TextBlock creates a text content block.
func TextBlock(text string) ContentBlock {
	return ContentBlock{Type: "text", Text: text}
}

// CallToolResult is the payload of a tools/call response. A handler's own
// failure (an application error) is reported here with IsError set, inside
// a successful protocol response; only dispatch-level failures become
// protocol errors.
type CallToolResult struct {
	Content []ContentBlock `json:"content"`
	IsError bool           `json:"isError,omitempty"`
}

// Tool represents a callable function exposed via MCP.
type Tool struct {
	name        string
	description string
	inputType   reflect.Type
	inputSchema *schema.Schema
	handler     any
	hasContext  bool
	annotations *ToolAnnotations

	// serialize guards execution of non-reentrant tools.
	serialize *sync.Mutex
}

// Name returns the tool name.
func (t *Tool) Name() string {
	return t.name
}

// InputSchema returns the tool's declared input schema.
func (t *Tool) InputSchema() *schema.Schema {
	return t.inputSchema
}

// NonReentrant reports whether concurrent calls to this tool serialize.
func (t *Tool) NonReentrant() bool {
	return t.serialize != nil
}

// ToolBuilder provides a fluent API for building tools.
type ToolBuilder struct {
	tool   *Tool
	server *Server
	err    error
}

// Description sets the tool description.
func (b *ToolBuilder) Description(desc string) *ToolBuilder {
	if b.err != nil {
		return b
	}
	b.tool.description = desc
	return b
}

// Handler sets the tool handler function and registers the tool.
// Handler signature must be one of:
//   - func(input T) (R, error)
//   - func(ctx context.Context, input T) (R, error)
//
// The input schema is generated from T and every call is validated against
// it before the handler runs.
func (b *ToolBuilder) Handler(fn any) *ToolBuilder {
	if b.err != nil {
		return b
	}

	if err := b.validateHandler(fn); err != nil {
		b.err = err
		return b
	}

	b.tool.handler = fn
	if err := b.server.registerTool(b.tool); err != nil {
		b.err = err
	}
	return b
}

// Err returns the first error encountered while building or registering.
func (b *ToolBuilder) Err() error {
	return b.err
}

// validateHandler validates the handler function signature.
func (b *ToolBuilder) validateHandler(fn any) error {
	fnType := reflect.TypeOf(fn)

	if fnType == nil || fnType.Kind() != reflect.Func {
		return fmt.Errorf("handler must be a function, got %T", fn)
	}

	numIn := fnType.NumIn()
	if numIn < 1 || numIn > 2 {
		return fmt.Errorf("handler must have 1 or 2 parameters, got %d", numIn)
	}

	var inputParamIdx int
	if numIn == 2 {
		if !fnType.In(0).Implements(reflect.TypeOf((*context.Context)(nil)).Elem()) {
			return fmt.Errorf("first parameter must be context.Context when using 2 parameters")
		}
		b.tool.hasContext = true
		inputParamIdx = 1
	}

	inputType := fnType.In(inputParamIdx)
	if inputType.Kind() == reflect.Ptr {
		inputType = inputType.Elem()
	}
	b.tool.inputType = inputType

	inputSchema, err := schema.GenerateFromType(inputType)
	if err != nil {
		return fmt.Errorf("failed to generate input schema: %w", err)
	}
	b.tool.inputSchema = inputSchema

	if fnType.NumOut() != 2 {
		return fmt.Errorf("handler must return (result, error), got %d return values", fnType.NumOut())
	}

	errType := reflect.TypeOf((*error)(nil)).Elem()
	if !fnType.Out(1).Implements(errType) {
		return fmt.Errorf("second return value must be error")
	}

	return nil
}

// Execute validates the input against the tool's schema and runs the
// handler. Invalid input never reaches the handler; the returned error is
// an InvalidParams protocol error carrying the offending field path.
func (t *Tool) Execute(ctx context.Context, input json.RawMessage) (any, error) {
	if len(input) == 0 {
		input = json.RawMessage(`{}`)
	}

	if err := t.inputSchema.Validate(input); err != nil {
		return nil, invalidParamsError(err)
	}

	inputPtr := reflect.New(t.inputType)
	if err := json.Unmarshal(input, inputPtr.Interface()); err != nil {
		return nil, protocol.NewInvalidParams(fmt.Sprintf("failed to parse input: %v", err))
	}

	if t.serialize != nil {
		t.serialize.Lock()
		defer t.serialize.Unlock()
	}

	fnVal := reflect.ValueOf(t.handler)
	var args []reflect.Value

	if t.hasContext {
		args = append(args, reflect.ValueOf(ctx))
	}
	args = append(args, inputPtr.Elem())

	results := fnVal.Call(args)

	resultVal := results[0].Interface()
	errVal := results[1].Interface()

	if errVal != nil {
		return nil, errVal.(error)
	}

	return resultVal, nil
}

// invalidParamsError converts a schema validation failure into an
// InvalidParams error with field-level detail attached.
func invalidParamsError(err error) *protocol.Error {
	type fieldError struct {
		Field  string `json:"field"`
		Reason string `json:"reason"`
	}

	var details []fieldError
	if errs, ok := err.(schema.ValidationErrors); ok {
		for _, ve := range errs {
			details = append(details, fieldError{Field: ve.Path, Reason: ve.Message})
		}
	} else if ve, ok := err.(*schema.ValidationError); ok {
		details = append(details, fieldError{Field: ve.Path, Reason: ve.Message})
	}

	perr := protocol.NewInvalidParams(fmt.Sprintf("input validation failed: %v", err))
	if len(details) > 0 {
		return perr.WithData(map[string]any{"errors": details})
	}
	return perr
}
