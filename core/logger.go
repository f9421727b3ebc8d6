package core

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// StructuredLogger is a production logger: JSON output in containers, text
// locally, leveled, component-scoped. It is the ComponentAwareLogger
// implementation components get when none is supplied via an Option.
//
// Configuration priority (the constructor takes no level or format):
//  1. Environment variables (KEYROTATE_LOG_LEVEL, KEYROTATE_LOG_FORMAT)
//  2. Auto-detection (Kubernetes environment selects json format)
//  3. Defaults (INFO level, text format)
type StructuredLogger struct {
	mu        sync.RWMutex
	level     string
	format    string
	component string
	output    io.Writer
}

// NewStructuredLogger builds the root logger for a component named
// component (typically "keyrotate").
func NewStructuredLogger(component string) *StructuredLogger {
	level := strings.ToUpper(os.Getenv("KEYROTATE_LOG_LEVEL"))
	if level == "" {
		level = "INFO"
	}

	format := "text"
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		format = "json"
	}
	if envFormat := os.Getenv("KEYROTATE_LOG_FORMAT"); envFormat != "" {
		format = envFormat
	}

	return &StructuredLogger{
		level:     level,
		format:    format,
		component: component,
		output:    os.Stdout,
	}
}

// WithComponent returns a child logger sharing this logger's level, format
// and output but scoped to a different component name.
func (l *StructuredLogger) WithComponent(component string) Logger {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return &StructuredLogger{
		level:     l.level,
		format:    l.format,
		component: component,
		output:    l.output,
	}
}

// SetOutput redirects log output, primarily for tests.
func (l *StructuredLogger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.output = w
}

func (l *StructuredLogger) Info(msg string, fields map[string]interface{}) {
	l.log("INFO", msg, fields)
}

func (l *StructuredLogger) Warn(msg string, fields map[string]interface{}) {
	l.log("WARN", msg, fields)
}

func (l *StructuredLogger) Error(msg string, fields map[string]interface{}) {
	l.log("ERROR", msg, fields)
}

func (l *StructuredLogger) Debug(msg string, fields map[string]interface{}) {
	l.log("DEBUG", msg, fields)
}

func (l *StructuredLogger) log(level, msg string, fields map[string]interface{}) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if !l.shouldLog(level) {
		return
	}

	timestamp := time.Now().Format(time.RFC3339)
	if l.format == "json" {
		l.logJSON(timestamp, level, msg, fields)
		return
	}
	l.logText(timestamp, level, msg, fields)
}

func (l *StructuredLogger) logJSON(timestamp, level, msg string, fields map[string]interface{}) {
	entry := map[string]interface{}{
		"timestamp": timestamp,
		"level":     level,
		"component": l.component,
		"message":   msg,
	}
	for k, v := range fields {
		if k == "timestamp" || k == "level" || k == "component" || k == "message" {
			continue
		}
		entry[k] = v
	}
	if data, err := json.Marshal(entry); err == nil {
		fmt.Fprintln(l.output, string(data))
	}
}

func (l *StructuredLogger) logText(timestamp, level, msg string, fields map[string]interface{}) {
	var b strings.Builder
	for k, v := range fields {
		fmt.Fprintf(&b, " %s=%v", k, v)
	}
	fmt.Fprintf(l.output, "%s [%s] [%s] %s%s\n", timestamp, level, l.component, msg, b.String())
}

func (l *StructuredLogger) shouldLog(level string) bool {
	ranks := map[string]int{"DEBUG": 0, "INFO": 1, "WARN": 2, "ERROR": 3}
	cur, ok1 := ranks[l.level]
	msg, ok2 := ranks[level]
	if !ok1 || !ok2 {
		return true
	}
	return msg >= cur
}
