package tools

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ToolErrorLogEntry represents a logged tool error
type ToolErrorLogEntry struct {
	Timestamp string         `json:"timestamp"`
	ToolName  string         `json:"tool_name"`
	Arguments map[string]any `json:"arguments,omitempty"`
	Error     string         `json:"error"`
	Transport string         `json:"transport,omitempty"`
}

// ToolErrorLogger appends failed tool calls to a JSON lines file when LOG_TOOL_ERRORS=true
type ToolErrorLogger struct {
	enabled  bool
	logFile  *os.File
	logger   *logrus.Logger
	mu       sync.Mutex
	filePath string
}

// NewToolErrorLogger opens tool-errors.log under logDir if LOG_TOOL_ERRORS is "true".
// A disabled logger is returned otherwise; its methods are no-ops.
func NewToolErrorLogger(logger *logrus.Logger, logDir string) (*ToolErrorLogger, error) {
	if os.Getenv("LOG_TOOL_ERRORS") != "true" {
		return &ToolErrorLogger{logger: logger}, nil
	}

	if err := os.MkdirAll(logDir, 0700); err != nil {
		return &ToolErrorLogger{logger: logger}, fmt.Errorf("failed to create log directory: %w", err)
	}

	logFilePath := filepath.Join(logDir, "tool-errors.log")
	logFile, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return &ToolErrorLogger{logger: logger}, fmt.Errorf("failed to open tool error log file: %w", err)
	}

	if logger != nil {
		logger.Infof("Tool error logging enabled: %s", logFilePath)
	}
	return &ToolErrorLogger{
		enabled:  true,
		logFile:  logFile,
		logger:   logger,
		filePath: logFilePath,
	}, nil
}

// LogToolError logs a tool execution error
func (l *ToolErrorLogger) LogToolError(toolName string, args map[string]any, err error, transport string) {
	if l == nil || !l.enabled || l.logFile == nil || err == nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	entry := ToolErrorLogEntry{
		Timestamp: time.Now().Format(time.RFC3339),
		ToolName:  toolName,
		Arguments: args,
		Error:     err.Error(),
		Transport: transport,
	}

	jsonData, marshalErr := json.Marshal(entry)
	if marshalErr != nil {
		if l.logger != nil {
			l.logger.WithError(marshalErr).Error("Failed to marshal tool error log entry")
		}
		return
	}

	if _, writeErr := l.logFile.Write(append(jsonData, '\n')); writeErr != nil && l.logger != nil {
		l.logger.WithError(writeErr).Error("Failed to write tool error log entry")
	}
}

// Close closes the error logger and its log file
func (l *ToolErrorLogger) Close() error {
	if l == nil || !l.enabled || l.logFile == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	return l.logFile.Close()
}

// IsEnabled returns whether error logging is enabled
func (l *ToolErrorLogger) IsEnabled() bool {
	return l != nil && l.enabled
}

// GetLogFilePath returns the path to the error log file
func (l *ToolErrorLogger) GetLogFilePath() string {
	return l.filePath
}
