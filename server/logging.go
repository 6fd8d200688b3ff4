package server

// LogLevel represents MCP logging levels.
// These follow syslog severity levels per the MCP specification.
type LogLevel string

const (
	LogLevelDebug     LogLevel = "debug"
	LogLevelInfo      LogLevel = "info"
	LogLevelNotice    LogLevel = "notice"
	LogLevelWarning   LogLevel = "warning"
	LogLevelError     LogLevel = "error"
	LogLevelCritical  LogLevel = "critical"
	LogLevelAlert     LogLevel = "alert"
	LogLevelEmergency LogLevel = "emergency"
)

// LoggingMessage is a log message sent from server to client.
type LoggingMessage struct {
	Level  LogLevel `json:"level"`
	Logger string   `json:"logger,omitempty"`
	Data   any      `json:"data"`
}

// SetLevelRequest is sent by the client to set the logging level.
type SetLevelRequest struct {
	Level LogLevel `json:"level"`
}

// logLevelPriority returns the priority of a log level (higher = more severe).
func logLevelPriority(level LogLevel) int {
	switch level {
	case LogLevelDebug:
		return 0
	case LogLevelInfo:
		return 1
	case LogLevelNotice:
		return 2
	case LogLevelWarning:
		return 3
	case LogLevelError:
		return 4
	case LogLevelCritical:
		return 5
	case LogLevelAlert:
		return 6
	case LogLevelEmergency:
		return 7
	default:
		return 0
	}
}

// ShouldLog returns true if a message at the given level should be logged
// given the current minimum level.
func ShouldLog(messageLevel, minLevel LogLevel) bool {
	return logLevelPriority(messageLevel) >= logLevelPriority(minLevel)
}

// ValidLogLevel reports whether the level is one of the MCP levels.
func ValidLogLevel(level LogLevel) bool {
	switch level {
	case LogLevelDebug, LogLevelInfo, LogLevelNotice, LogLevelWarning,
		LogLevelError, LogLevelCritical, LogLevelAlert, LogLevelEmergency:
		return true
	default:
		return false
	}
}
