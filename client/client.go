// Package client provides an MCP client for connecting to MCP servers.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/toolwire/mcpd/protocol"
)

// Transport is the client side of a connection to a server.
type Transport interface {
	// Send sends a request and waits for the matching response.
	Send(ctx context.Context, req *protocol.Request) (*protocol.Response, error)
	// Notify sends a notification; no response is expected.
	Notify(ctx context.Context, notif *protocol.Notification) error
	// Close closes the connection.
	Close() error
}

// Client is an MCP client that communicates with an MCP server.
type Client struct {
	transport Transport
	opts      clientOptions

	mu         sync.RWMutex
	serverInfo *ServerInfo
	requestID  atomic.Int64
}

// ServerInfo describes the connected server.
type ServerInfo struct {
	Name            string
	Version         string
	ProtocolVersion string
	Capabilities    Capabilities
}

// Capabilities describes what the server supports.
type Capabilities struct {
	Tools     bool
	Resources bool
	Prompts   bool
	Logging   bool
}

// Tool describes a tool exposed by the server.
type Tool struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	InputSchema any    `json:"inputSchema"`
}

// ToolResult is the result of calling a tool.
type ToolResult struct {
	Content []ContentItem `json:"content"`
	IsError bool          `json:"isError,omitempty"`
}

// Text returns the text of the first content item.
func (r *ToolResult) Text() string {
	if len(r.Content) == 0 {
		return ""
	}
	return r.Content[0].Text
}

// ContentItem is one content block in a tool result.
type ContentItem struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
	Data string `json:"data,omitempty"`
}

// Resource describes a resource exposed by the server.
type Resource struct {
	URI         string `json:"uri"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

// ResourceContent is the content of a read resource.
type ResourceContent struct {
	URI      string `json:"uri"`
	MimeType string `json:"mimeType,omitempty"`
	Text     string `json:"text,omitempty"`
	Blob     string `json:"blob,omitempty"`
}

// Prompt describes a prompt exposed by the server.
type Prompt struct {
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Arguments   []PromptArgument `json:"arguments,omitempty"`
}

// PromptArgument describes an argument accepted by a prompt.
type PromptArgument struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required,omitempty"`
}

// PromptResult is a rendered prompt.
type PromptResult struct {
	Description string          `json:"description,omitempty"`
	Messages    []PromptMessage `json:"messages"`
}

// PromptMessage is one message in a rendered prompt.
type PromptMessage struct {
	Role    string      `json:"role"`
	Content ContentItem `json:"content"`
}

// Option configures a Client.
type Option func(*clientOptions)

type clientOptions struct {
	timeout     time.Duration
	clientName  string
	clientVer   string
	protocolVer string
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *clientOptions) {
		o.timeout = d
	}
}

// WithClientInfo sets the client name and version sent during initialization.
func WithClientInfo(name, version string) Option {
	return func(o *clientOptions) {
		o.clientName = name
		o.clientVer = version
	}
}

// WithProtocolVersion overrides the protocol version sent during initialization.
func WithProtocolVersion(version string) Option {
	return func(o *clientOptions) {
		o.protocolVer = version
	}
}

// New creates a client on the given transport. Call Initialize before
// any other method.
func New(transport Transport, opts ...Option) *Client {
	options := clientOptions{
		timeout:     30 * time.Second,
		clientName:  "mcpd-client",
		clientVer:   "1.0.0",
		protocolVer: protocol.MCPVersion,
	}
	for _, opt := range opts {
		opt(&options)
	}

	return &Client{
		transport: transport,
		opts:      options,
	}
}

// Initialize performs the MCP handshake with the server.
func (c *Client) Initialize(ctx context.Context) (*ServerInfo, error) {
	var result struct {
		ProtocolVersion string `json:"protocolVersion"`
		ServerInfo      struct {
			Name    string `json:"name"`
			Version string `json:"version"`
		} `json:"serverInfo"`
		Capabilities map[string]json.RawMessage `json:"capabilities"`
	}

	params := map[string]any{
		"protocolVersion": c.opts.protocolVer,
		"clientInfo": map[string]any{
			"name":    c.opts.clientName,
			"version": c.opts.clientVer,
		},
		"capabilities": map[string]any{},
	}
	if err := c.call(ctx, protocol.MethodInitialize, params, &result); err != nil {
		return nil, fmt.Errorf("initialize: %w", err)
	}

	_, tools := result.Capabilities["tools"]
	_, resources := result.Capabilities["resources"]
	_, prompts := result.Capabilities["prompts"]
	_, logging := result.Capabilities["logging"]

	info := &ServerInfo{
		Name:            result.ServerInfo.Name,
		Version:         result.ServerInfo.Version,
		ProtocolVersion: result.ProtocolVersion,
		Capabilities: Capabilities{
			Tools:     tools,
			Resources: resources,
			Prompts:   prompts,
			Logging:   logging,
		},
	}

	c.mu.Lock()
	c.serverInfo = info
	c.mu.Unlock()

	return info, nil
}

// ListTools returns the tools available on the server.
func (c *Client) ListTools(ctx context.Context) ([]Tool, error) {
	var result struct {
		Tools []Tool `json:"tools"`
	}
	if err := c.call(ctx, protocol.MethodToolsList, nil, &result); err != nil {
		return nil, fmt.Errorf("list tools: %w", err)
	}
	return result.Tools, nil
}

// CallTool calls a tool with the given arguments.
func (c *Client) CallTool(ctx context.Context, name string, arguments any) (*ToolResult, error) {
	params := map[string]any{"name": name}
	if arguments != nil {
		params["arguments"] = arguments
	}

	var result ToolResult
	if err := c.call(ctx, protocol.MethodToolsCall, params, &result); err != nil {
		return nil, fmt.Errorf("call tool %q: %w", name, err)
	}
	return &result, nil
}

// ListResources returns the resources available on the server.
func (c *Client) ListResources(ctx context.Context) ([]Resource, error) {
	var result struct {
		Resources []Resource `json:"resources"`
	}
	if err := c.call(ctx, protocol.MethodResourcesList, nil, &result); err != nil {
		return nil, fmt.Errorf("list resources: %w", err)
	}
	return result.Resources, nil
}

// ReadResource reads a resource by URI.
func (c *Client) ReadResource(ctx context.Context, uri string) (*ResourceContent, error) {
	var result struct {
		Contents []ResourceContent `json:"contents"`
	}
	if err := c.call(ctx, protocol.MethodResourcesRead, map[string]any{"uri": uri}, &result); err != nil {
		return nil, fmt.Errorf("read resource %q: %w", uri, err)
	}
	if len(result.Contents) == 0 {
		return nil, fmt.Errorf("read resource %q: empty contents", uri)
	}
	return &result.Contents[0], nil
}

// ListPrompts returns the prompts available on the server.
func (c *Client) ListPrompts(ctx context.Context) ([]Prompt, error) {
	var result struct {
		Prompts []Prompt `json:"prompts"`
	}
	if err := c.call(ctx, protocol.MethodPromptsList, nil, &result); err != nil {
		return nil, fmt.Errorf("list prompts: %w", err)
	}
	return result.Prompts, nil
}

// GetPrompt renders a prompt with the given arguments.
func (c *Client) GetPrompt(ctx context.Context, name string, arguments map[string]string) (*PromptResult, error) {
	params := map[string]any{"name": name}
	if arguments != nil {
		params["arguments"] = arguments
	}

	var result PromptResult
	if err := c.call(ctx, protocol.MethodPromptsGet, params, &result); err != nil {
		return nil, fmt.Errorf("get prompt %q: %w", name, err)
	}
	return &result, nil
}

// SetLogLevel sets the minimum level for log notifications from the server.
func (c *Client) SetLogLevel(ctx context.Context, level string) error {
	if err := c.call(ctx, protocol.MethodSetLogLevel, map[string]any{"level": level}, nil); err != nil {
		return fmt.Errorf("set log level: %w", err)
	}
	return nil
}

// Ping checks that the server is responsive.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.call(ctx, protocol.MethodPing, nil, nil); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Cancel asks the server to stop work on an in-flight request. The
// request's caller stops waiting either way.
func (c *Client) Cancel(ctx context.Context, requestID json.RawMessage) error {
	params, err := json.Marshal(map[string]any{"requestId": requestID})
	if err != nil {
		return fmt.Errorf("cancel: %w", err)
	}
	return c.transport.Notify(ctx, &protocol.Notification{
		JSONRPC: protocol.JSONRPCVersion,
		Method:  protocol.MethodCancelled,
		Params:  params,
	})
}

// Shutdown tells the server to stop accepting new requests and drain.
func (c *Client) Shutdown(ctx context.Context) error {
	return c.transport.Notify(ctx, &protocol.Notification{
		JSONRPC: protocol.JSONRPCVersion,
		Method:  protocol.MethodShutdown,
	})
}

// ServerInfo returns the server info captured during initialization,
// or nil before Initialize.
func (c *Client) ServerInfo() *ServerInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.serverInfo
}

// Close closes the underlying transport.
func (c *Client) Close() error {
	return c.transport.Close()
}

// call sends a request and decodes the result into out, if out is non-nil.
func (c *Client) call(ctx context.Context, method string, params, out any) error {
	var paramsRaw json.RawMessage
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("marshal params: %w", err)
		}
		paramsRaw = data
	}

	req := &protocol.Request{
		JSONRPC: protocol.JSONRPCVersion,
		ID:      json.RawMessage(fmt.Sprintf("%d", c.requestID.Add(1))),
		Method:  method,
		Params:  paramsRaw,
	}

	if c.opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.timeout)
		defer cancel()
	}

	resp, err := c.transport.Send(ctx, req)
	if err != nil {
		return err
	}
	if resp.Error != nil {
		return resp.Error
	}
	if out == nil {
		return nil
	}

	// The result arrives as whatever shape the transport decoded; a JSON
	// round trip lands it in the caller's typed struct either way.
	data, err := json.Marshal(resp.Result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode result: %w", err)
	}
	return nil
}
