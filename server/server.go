// Package server provides the core MCP server implementation: the
// capability registry, session lifecycle, and execution scheduler.
package server

import (
	"errors"
	"fmt"
	"sync"

	"github.com/toolwire/mcpd/protocol"
)

// Registry errors.
var (
	// ErrDuplicateCapability is returned when a name collides within a kind.
	ErrDuplicateCapability = errors.New("duplicate capability name")

	// ErrRegistryClosed is returned when registration is attempted after
	// the initialize handshake has completed.
	ErrRegistryClosed = errors.New("registry closed: capabilities must be registered before initialization")
)

// Info contains server metadata exposed to clients.
type Info struct {
	Name         string
	Version      string
	Capabilities Capabilities
}

// Capabilities declares what features the server supports.
type Capabilities struct {
	Tools     bool
	Resources bool
	Prompts   bool
}

// Manifest represents the server manifest returned to clients during the
// initialize handshake.
type Manifest struct {
	Name            string       `json:"name"`
	Version         string       `json:"version"`
	ProtocolVersion string       `json:"protocolVersion"`
	Capabilities    Capabilities `json:"capabilities"`
	Instructions    string       `json:"instructions,omitempty"`
}

// ToolInfo represents metadata about a registered tool.
type ToolInfo struct {
	Name        string
	Description string
	InputSchema any
	Annotations *ToolAnnotations
}

// Option configures a Server.
type Option func(*Server)

// WithInstructions sets usage instructions returned to clients during the
// initialize handshake.
func WithInstructions(instructions string) Option {
	return func(s *Server) {
		s.instructions = instructions
	}
}

// Server holds the capability registry. Registration is append-only during
// the uninitialized phase; once sealed the registry is read-only and safe
// to share across goroutines without further locking discipline from
// callers.
type Server struct {
	mu sync.RWMutex

	info         Info
	instructions string
	sealed       bool

	tools     map[string]*Tool
	toolOrder []string

	resources     map[string]*Resource
	resourceOrder []string

	prompts     map[string]*Prompt
	promptOrder []string
}

// New creates a new MCP server with the given info and options.
func New(info Info, opts ...Option) *Server {
	s := &Server{
		info:      info,
		tools:     make(map[string]*Tool),
		resources: make(map[string]*Resource),
		prompts:   make(map[string]*Prompt),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Info returns the server info.
func (s *Server) Info() Info {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.info
}

// Manifest returns the server manifest for MCP initialization.
func (s *Server) Manifest() Manifest {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Declared capabilities are honored as-is; anything actually
	// registered is advertised regardless.
	caps := s.info.Capabilities
	caps.Tools = caps.Tools || len(s.tools) > 0
	caps.Resources = caps.Resources || len(s.resources) > 0
	caps.Prompts = caps.Prompts || len(s.prompts) > 0

	return Manifest{
		Name:            s.info.Name,
		Version:         s.info.Version,
		ProtocolVersion: protocol.MCPVersion,
		Capabilities:    caps,
		Instructions:    s.instructions,
	}
}

// Seal closes the registry. Called when the session transitions to Ready;
// every registration attempt afterwards fails with ErrRegistryClosed.
func (s *Server) Seal() {
	s.mu.Lock()
	s.sealed = true
	s.mu.Unlock()
}

// Sealed reports whether the registry has been closed.
func (s *Server) Sealed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sealed
}

// Tool starts building a new tool with the given name.
func (s *Server) Tool(name string) *ToolBuilder {
	return &ToolBuilder{
		tool: &Tool{
			name: name,
		},
		server: s,
	}
}

// Tools returns info about all registered tools in registration order.
// The order is stable across calls within a session.
func (s *Server) Tools() []ToolInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]ToolInfo, 0, len(s.toolOrder))
	for _, name := range s.toolOrder {
		t := s.tools[name]
		result = append(result, ToolInfo{
			Name:        t.name,
			Description: t.description,
			InputSchema: t.inputSchema,
			Annotations: t.annotations,
		})
	}
	return result
}

// registerTool adds a tool to the registry.
func (s *Server) registerTool(t *Tool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sealed {
		return fmt.Errorf("register tool %q: %w", t.name, ErrRegistryClosed)
	}
	if _, exists := s.tools[t.name]; exists {
		return fmt.Errorf("register tool %q: %w", t.name, ErrDuplicateCapability)
	}

	s.tools[t.name] = t
	s.toolOrder = append(s.toolOrder, t.name)
	return nil
}

// GetTool retrieves a tool by name.
func (s *Server) GetTool(name string) (*Tool, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tools[name]
	return t, ok
}

// Resource starts building a new resource with the given URI template.
func (s *Server) Resource(uriTemplate string) *ResourceBuilder {
	return &ResourceBuilder{
		resource: &Resource{
			uriTemplate: uriTemplate,
		},
		server: s,
	}
}

// Resources returns info about all registered resources in registration order.
func (s *Server) Resources() []ResourceInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]ResourceInfo, 0, len(s.resourceOrder))
	for _, uri := range s.resourceOrder {
		r := s.resources[uri]
		result = append(result, ResourceInfo{
			URITemplate: r.uriTemplate,
			Name:        r.name,
			Description: r.description,
			MimeType:    r.mimeType,
		})
	}
	return result
}

// registerResource adds a resource to the registry.
func (s *Server) registerResource(r *Resource) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sealed {
		return fmt.Errorf("register resource %q: %w", r.uriTemplate, ErrRegistryClosed)
	}
	if _, exists := s.resources[r.uriTemplate]; exists {
		return fmt.Errorf("register resource %q: %w", r.uriTemplate, ErrDuplicateCapability)
	}

	s.resources[r.uriTemplate] = r
	s.resourceOrder = append(s.resourceOrder, r.uriTemplate)
	return nil
}

// GetResource retrieves a resource by URI template.
func (s *Server) GetResource(uriTemplate string) (*Resource, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.resources[uriTemplate]
	return r, ok
}

// FindResourceForURI finds the first registered resource whose template
// matches the given URI.
func (s *Server) FindResourceForURI(uri string) (*Resource, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, tmpl := range s.resourceOrder {
		r := s.resources[tmpl]
		if _, ok := r.matchURI(uri); ok {
			return r, true
		}
	}
	return nil, false
}

// Prompt starts building a new prompt with the given name.
func (s *Server) Prompt(name string) *PromptBuilder {
	return &PromptBuilder{
		prompt: &Prompt{
			name: name,
		},
		server: s,
	}
}

// Prompts returns info about all registered prompts in registration order.
func (s *Server) Prompts() []PromptInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]PromptInfo, 0, len(s.promptOrder))
	for _, name := range s.promptOrder {
		p := s.prompts[name]
		result = append(result, PromptInfo{
			Name:        p.name,
			Description: p.description,
			Arguments:   p.arguments,
		})
	}
	return result
}

// registerPrompt adds a prompt to the registry.
func (s *Server) registerPrompt(p *Prompt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sealed {
		return fmt.Errorf("register prompt %q: %w", p.name, ErrRegistryClosed)
	}
	if _, exists := s.prompts[p.name]; exists {
		return fmt.Errorf("register prompt %q: %w", p.name, ErrDuplicateCapability)
	}

	s.prompts[p.name] = p
	s.promptOrder = append(s.promptOrder, p.name)
	return nil
}

// GetPrompt retrieves a prompt by name.
func (s *Server) GetPrompt(name string) (*Prompt, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.prompts[name]
	return p, ok
}
