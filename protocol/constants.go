package protocol

// MCP protocol version.
const MCPVersion = "2024-11-05"

// MCP method names.
const (
	MethodInitialize    = "initialize"
	MethodToolsList     = "tools/list"
	MethodToolsCall     = "tools/call"
	MethodResourcesList = "resources/list"
	MethodResourcesRead = "resources/read"
	MethodPromptsList   = "prompts/list"
	MethodPromptsGet    = "prompts/get"
	MethodSetLogLevel   = "logging/setLevel"
	MethodPing          = "ping"
)

// MCP notification methods.
const (
	MethodInitialized    = "notifications/initialized"
	MethodShutdown       = "notifications/shutdown"
	MethodCancelled      = "notifications/cancelled"
	MethodProgress       = "notifications/progress"
	MethodLoggingMessage = "notifications/message"
)
