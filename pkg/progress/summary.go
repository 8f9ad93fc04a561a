package progress

import (
	"path/filepath"
	"strings"
)

const (
	maxInputSummary  = 70
	maxResultSummary = 100
)

// toolIcons map tool names to their activity-log icons.
var toolIcons = map[string]string{
	"Read":      "📖",
	"Write":     "✏️",
	"Edit":      "✏️",
	"MultiEdit": "✏️",
	"Bash":      "💻",
	"Glob":      "🔍",
	"Grep":      "🔍",
	"WebFetch":  "🌐",
	"WebSearch": "🌐",
	"Task":      "🤖",
	"TodoWrite": "📋",
}

// ToolIcon returns the icon for a tool, with a wrench fallback.
func ToolIcon(name string) string {
	if icon, ok := toolIcons[name]; ok {
		return icon
	}
	return "🔧"
}

// InputSummary derives a short, redacted detail string from a tool's input.
// Per-tool: file tools show the base filename, search tools the pattern,
// Bash the command, web tools the URL or query, Task the description;
// anything else falls back to the first string value present.
func InputSummary(toolName string, input map[string]any) string {
	var detail string
	switch toolName {
	case "Read", "Write", "Edit", "MultiEdit", "NotebookEdit":
		if path := stringField(input, "file_path", "path", "notebook_path"); path != "" {
			detail = filepath.Base(path)
		}
	case "Glob", "Grep":
		detail = stringField(input, "pattern")
	case "Bash":
		detail = stringField(input, "command")
	case "WebFetch":
		detail = stringField(input, "url")
	case "WebSearch":
		detail = stringField(input, "query")
	case "Task":
		detail = stringField(input, "description")
	default:
		for _, v := range input {
			if s, ok := v.(string); ok && s != "" {
				detail = s
				break
			}
		}
	}
	return truncate(Redact(detail), maxInputSummary)
}

// ResultSummary reduces a tool result to its first non-empty line, capped at
// 100 characters.
func ResultSummary(result string) string {
	for _, line := range strings.Split(result, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			return truncate(Redact(line), maxResultSummary)
		}
	}
	return ""
}

func stringField(input map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := input[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "…"
}
