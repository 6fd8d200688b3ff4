package mcpd

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/toolwire/mcpd/middleware"
	"github.com/toolwire/mcpd/protocol"
	"github.com/toolwire/mcpd/server"
	"github.com/toolwire/mcpd/transport"
)

// DefaultCallTimeout bounds a single capability call unless configured
// otherwise.
const DefaultCallTimeout = 30 * time.Second

// Handler is the session dispatcher. It owns the lifecycle state machine
// and the execution scheduler for one client session and routes decoded
// requests to the capability registry.
type Handler struct {
	srv       *server.Server
	lifecycle *server.Lifecycle
	scheduler *server.Scheduler
	session   *server.Session
	timeout   time.Duration

	handleFunc middleware.HandlerFunc
}

// NewHandler creates a session dispatcher for the given server.
func NewHandler(srv *server.Server, opts ...ServeOption) *Handler {
	options := newServeOptions(opts)

	lifecycle := server.NewLifecycle(options.gracePeriod)
	scheduler := server.NewScheduler(options.maxConcurrent)

	h := &Handler{
		srv:       srv,
		lifecycle: lifecycle,
		scheduler: scheduler,
		session:   server.NewSession(lifecycle, scheduler),
		timeout:   options.callTimeout,
	}

	mw := options.middleware
	if len(mw) == 0 && options.logger != nil {
		mw = middleware.DefaultStack(options.logger)
	}

	baseHandler := middleware.HandlerFunc(h.handle)
	if len(mw) > 0 {
		h.handleFunc = middleware.Chain(mw...)(baseHandler)
	} else {
		h.handleFunc = baseHandler
	}

	return h
}

// Session returns the dispatcher's session.
func (h *Handler) Session() *server.Session { return h.session }

// Lifecycle returns the session lifecycle state machine.
func (h *Handler) Lifecycle() *server.Lifecycle { return h.lifecycle }

// Scheduler returns the session's execution scheduler.
func (h *Handler) Scheduler() *server.Scheduler { return h.scheduler }

// Shutdown begins shutdown and waits for in-flight requests to drain.
func (h *Handler) Shutdown(ctx context.Context) error {
	h.lifecycle.BeginShutdown()
	return h.lifecycle.Drain(ctx)
}

// HandleRequest implements transport.Handler.
func (h *Handler) HandleRequest(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	if sender := transport.NotificationSenderFromContext(ctx); sender != nil {
		h.session.SetNotifier(sender)
	}
	ctx = server.ContextWithSession(ctx, h.session)
	return h.handleFunc(ctx, req)
}

func (h *Handler) handle(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	if req.IsNotification() {
		h.handleNotification(req)
		return nil, nil
	}

	switch h.lifecycle.Phase() {
	case server.PhaseShuttingDown, server.PhaseClosed:
		return nil, protocol.NewShuttingDown("server is shutting down")
	case server.PhaseUninitialized:
		switch req.Method {
		case protocol.MethodInitialize:
			return h.handleInitialize(req)
		case protocol.MethodPing:
			return protocol.NewResponse(req.ID, map[string]any{}), nil
		default:
			return nil, protocol.NewNotReady("session not initialized; send initialize first")
		}
	}

	// Ready. Track the request so shutdown can drain it; a false return
	// means shutdown won, even if the phase check above raced.
	if !h.lifecycle.TrackRequest() {
		return nil, protocol.NewShuttingDown("server is shutting down")
	}
	defer h.lifecycle.CompleteRequest()

	switch req.Method {
	case protocol.MethodInitialize:
		return nil, protocol.NewInvalidRequest("session already initialized")
	case protocol.MethodToolsList:
		return h.handleToolsList(req)
	case protocol.MethodToolsCall:
		return h.handleToolsCall(ctx, req)
	case protocol.MethodResourcesList:
		return h.handleResourcesList(req)
	case protocol.MethodResourcesRead:
		return h.handleResourcesRead(ctx, req)
	case protocol.MethodPromptsList:
		return h.handlePromptsList(req)
	case protocol.MethodPromptsGet:
		return h.handlePromptsGet(ctx, req)
	case protocol.MethodSetLogLevel:
		return h.handleSetLogLevel(req)
	case protocol.MethodPing:
		return protocol.NewResponse(req.ID, map[string]any{}), nil
	default:
		return nil, protocol.NewMethodNotFound(req.Method)
	}
}

// handleNotification processes client notifications. Unknown notification
// methods are ignored; there is no channel to report them on.
func (h *Handler) handleNotification(req *protocol.Request) {
	switch req.Method {
	case protocol.MethodInitialized:
		// Handshake acknowledgment, nothing to do.
	case protocol.MethodShutdown:
		h.lifecycle.BeginShutdown()
	case protocol.MethodCancelled:
		var params struct {
			RequestID json.RawMessage `json:"requestId"`
		}
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return
		}
		h.scheduler.Cancel(string(params.RequestID))
	}
}

func (h *Handler) handleInitialize(req *protocol.Request) (*protocol.Response, error) {
	var params struct {
		ProtocolVersion string `json:"protocolVersion"`
		ClientInfo      struct {
			Name    string `json:"name"`
			Version string `json:"version"`
		} `json:"clientInfo"`
	}
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return nil, protocol.NewInvalidParams(err.Error())
		}
	}

	if err := h.lifecycle.Ready(); err != nil {
		return nil, protocol.NewInvalidRequest("session already initialized")
	}
	h.srv.Seal()

	manifest := h.srv.Manifest()

	capabilities := make(map[string]any)
	if manifest.Capabilities.Tools {
		capabilities["tools"] = map[string]any{}
	}
	if manifest.Capabilities.Resources {
		capabilities["resources"] = map[string]any{}
	}
	if manifest.Capabilities.Prompts {
		capabilities["prompts"] = map[string]any{}
	}
	// logging/setLevel is always available.
	capabilities["logging"] = map[string]any{}

	result := map[string]any{
		"protocolVersion": manifest.ProtocolVersion,
		"serverInfo": map[string]any{
			"name":    manifest.Name,
			"version": manifest.Version,
		},
		"capabilities": capabilities,
		"tools":        toolListing(h.srv),
		"resources":    resourceListing(h.srv),
		"prompts":      promptListing(h.srv),
	}
	if manifest.Instructions != "" {
		result["instructions"] = manifest.Instructions
	}

	return protocol.NewResponse(req.ID, result), nil
}

func (h *Handler) handleToolsList(req *protocol.Request) (*protocol.Response, error) {
	return protocol.NewResponse(req.ID, map[string]any{
		"tools": toolListing(h.srv),
	}), nil
}

func (h *Handler) handleToolsCall(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	var params struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return nil, protocol.NewInvalidParams(err.Error())
	}

	tool, ok := h.srv.GetTool(params.Name)
	if !ok {
		return nil, protocol.NewCapabilityNotFound("tool not found: " + params.Name)
	}

	if token := server.ExtractProgressToken(req.Params); token != "" {
		if sender := transport.NotificationSenderFromContext(ctx); sender != nil {
			reporter := server.NewProgressReporter(token, sender)
			ctx = server.ContextWithProgress(ctx, reporter)
		}
	}

	result, err := h.scheduler.Submit(ctx, req.IDString(), h.timeout, func(callCtx context.Context) (any, error) {
		return tool.Execute(callCtx, params.Arguments)
	})
	if err != nil {
		if errors.Is(err, server.ErrCallCancelled) {
			return nil, nil
		}
		var mcpErr *protocol.Error
		if errors.As(err, &mcpErr) {
			return nil, mcpErr
		}
		if ctx.Err() != nil {
			return nil, nil
		}
		// Handler-level failure: a successful envelope carrying a failure
		// payload, distinct from protocol errors.
		return protocol.NewResponse(req.ID, server.CallToolResult{
			Content: []server.ContentBlock{server.TextBlock(err.Error())},
			IsError: true,
		}), nil
	}

	return protocol.NewResponse(req.ID, toolCallResult(result)), nil
}

// toolCallResult shapes a handler's return value into a call result.
// Handlers may return a CallToolResult directly for full control; strings
// pass through as text and anything else is JSON-encoded.
func toolCallResult(result any) server.CallToolResult {
	switch v := result.(type) {
	case server.CallToolResult:
		return v
	case *server.CallToolResult:
		return *v
	case string:
		return server.CallToolResult{Content: []server.ContentBlock{server.TextBlock(v)}}
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return server.CallToolResult{
				Content: []server.ContentBlock{server.TextBlock(err.Error())},
				IsError: true,
			}
		}
		return server.CallToolResult{Content: []server.ContentBlock{server.TextBlock(string(data))}}
	}
}

func (h *Handler) handleResourcesList(req *protocol.Request) (*protocol.Response, error) {
	return protocol.NewResponse(req.ID, map[string]any{
		"resources": resourceListing(h.srv),
	}), nil
}

func (h *Handler) handleResourcesRead(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	var params struct {
		URI string `json:"uri"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return nil, protocol.NewInvalidParams(err.Error())
	}

	resource, ok := h.srv.FindResourceForURI(params.URI)
	if !ok {
		return nil, protocol.NewCapabilityNotFound("resource not found: " + params.URI)
	}

	result, err := h.scheduler.Submit(ctx, req.IDString(), h.timeout, func(callCtx context.Context) (any, error) {
		return resource.Read(callCtx, params.URI)
	})
	if err != nil {
		if errors.Is(err, server.ErrCallCancelled) {
			return nil, nil
		}
		var mcpErr *protocol.Error
		if errors.As(err, &mcpErr) {
			return nil, mcpErr
		}
		if ctx.Err() != nil {
			return nil, nil
		}
		return nil, protocol.NewInternalError(err.Error())
	}

	content := result.(*server.ResourceContent)
	item := map[string]any{
		"uri":      content.URI,
		"mimeType": content.MimeType,
		"text":     content.Text,
	}
	if content.Blob != "" {
		item["blob"] = content.Blob
	}

	return protocol.NewResponse(req.ID, map[string]any{
		"contents": []map[string]any{item},
	}), nil
}

func (h *Handler) handlePromptsList(req *protocol.Request) (*protocol.Response, error) {
	return protocol.NewResponse(req.ID, map[string]any{
		"prompts": promptListing(h.srv),
	}), nil
}

func (h *Handler) handlePromptsGet(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	var params struct {
		Name      string            `json:"name"`
		Arguments map[string]string `json:"arguments"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return nil, protocol.NewInvalidParams(err.Error())
	}

	prompt, ok := h.srv.GetPrompt(params.Name)
	if !ok {
		return nil, protocol.NewCapabilityNotFound("prompt not found: " + params.Name)
	}

	result, err := h.scheduler.Submit(ctx, req.IDString(), h.timeout, func(callCtx context.Context) (any, error) {
		return prompt.Get(callCtx, params.Arguments)
	})
	if err != nil {
		if errors.Is(err, server.ErrCallCancelled) {
			return nil, nil
		}
		var mcpErr *protocol.Error
		if errors.As(err, &mcpErr) {
			return nil, mcpErr
		}
		if ctx.Err() != nil {
			return nil, nil
		}
		return nil, protocol.NewInternalError(err.Error())
	}

	promptResult := result.(*server.PromptResult)
	response := map[string]any{
		"messages": promptResult.Messages,
	}
	if promptResult.Description != "" {
		response["description"] = promptResult.Description
	}

	return protocol.NewResponse(req.ID, response), nil
}

func (h *Handler) handleSetLogLevel(req *protocol.Request) (*protocol.Response, error) {
	var params server.SetLevelRequest
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return nil, protocol.NewInvalidParams(err.Error())
	}
	if !server.ValidLogLevel(params.Level) {
		return nil, protocol.NewInvalidParams("unknown log level: " + string(params.Level))
	}

	h.session.SetLogLevel(params.Level)
	return protocol.NewResponse(req.ID, map[string]any{}), nil
}

// toolListing renders the tool manifest in registration order.
func toolListing(srv *server.Server) []map[string]any {
	tools := srv.Tools()
	out := make([]map[string]any, 0, len(tools))
	for _, t := range tools {
		item := map[string]any{
			"name":        t.Name,
			"description": t.Description,
			"inputSchema": t.InputSchema,
		}
		if t.Annotations != nil {
			item["annotations"] = t.Annotations
		}
		out = append(out, item)
	}
	return out
}

// resourceListing renders the resource manifest in registration order.
func resourceListing(srv *server.Server) []map[string]any {
	resources := srv.Resources()
	out := make([]map[string]any, 0, len(resources))
	for _, r := range resources {
		item := map[string]any{
			"uri":  r.URITemplate,
			"name": r.Name,
		}
		if r.Description != "" {
			item["description"] = r.Description
		}
		if r.MimeType != "" {
			item["mimeType"] = r.MimeType
		}
		out = append(out, item)
	}
	return out
}

// promptListing renders the prompt manifest in registration order.
func promptListing(srv *server.Server) []map[string]any {
	prompts := srv.Prompts()
	out := make([]map[string]any, 0, len(prompts))
	for _, p := range prompts {
		item := map[string]any{
			"name": p.Name,
		}
		if p.Description != "" {
			item["description"] = p.Description
		}
		if len(p.Arguments) > 0 {
			args := make([]map[string]any, 0, len(p.Arguments))
			for _, arg := range p.Arguments {
				argItem := map[string]any{
					"name":     arg.Name,
					"required": arg.Required,
				}
				if arg.Description != "" {
					argItem["description"] = arg.Description
				}
				args = append(args, argItem)
			}
			item["arguments"] = args
		}
		out = append(out, item)
	}
	return out
}
