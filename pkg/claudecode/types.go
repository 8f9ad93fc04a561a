// Package claudecode manages long-lived Claude Code CLI subprocesses speaking
// the stream-json protocol over stdio.
//
// One Client owns one `claude` process. Outbound user messages and control
// requests are written as NDJSON to stdin; inbound NDJSON lines from stdout
// are normalized into StreamEvent values and delivered on a channel.
package claudecode

import "encoding/json"

// ContentBlock mirrors the Anthropic content block schema used on both
// directions of the wire: text, thinking, tool_use, and tool_result blocks
// inbound; text, image, and document blocks outbound.
type ContentBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	Thinking  string          `json:"thinking,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
	Source    *BlockSource    `json:"source,omitempty"`
	Title     string          `json:"title,omitempty"`
}

// BlockSource carries base64 payloads for image and document blocks.
type BlockSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type,omitempty"`
	Data      string `json:"data,omitempty"`
}

// TextBlock builds a plain text content block.
func TextBlock(text string) ContentBlock {
	return ContentBlock{Type: "text", Text: text}
}

// ImageBlock builds a base64 image content block.
func ImageBlock(mediaType, data string) ContentBlock {
	return ContentBlock{
		Type:   "image",
		Source: &BlockSource{Type: "base64", MediaType: mediaType, Data: data},
	}
}

// DocumentBlock builds a base64 PDF document block with a title.
func DocumentBlock(title, data string) ContentBlock {
	return ContentBlock{
		Type:   "document",
		Title:  title,
		Source: &BlockSource{Type: "base64", MediaType: "application/pdf", Data: data},
	}
}

// CLIMessage is one parsed NDJSON line from `claude --output-format stream-json`.
// Only the fields this system consumes are declared; unknown fields are dropped.
type CLIMessage struct {
	Type       string          `json:"type"`
	Subtype    string          `json:"subtype,omitempty"`
	SessionID  string          `json:"session_id,omitempty"`
	Message    json.RawMessage `json:"message,omitempty"`
	Result     string          `json:"result,omitempty"`
	IsError    bool            `json:"is_error,omitempty"`
	Cost       float64         `json:"total_cost_usd,omitempty"`
	NumTurns   int             `json:"num_turns,omitempty"`
	DurationMS int64           `json:"duration_ms,omitempty"`
	// control_request fields (permission prompts and interrupts)
	RequestID string          `json:"request_id,omitempty"`
	Request   json.RawMessage `json:"request,omitempty"`
	// stream_event inner event (from --include-partial-messages)
	Event json.RawMessage `json:"event,omitempty"`
}

// parsedMessage is the message field of an assistant or user CLIMessage.
type parsedMessage struct {
	Role    string         `json:"role"`
	Content []ContentBlock `json:"content"`
}

// controlRequestBody is the request field of a control_request line.
type controlRequestBody struct {
	Subtype  string          `json:"subtype"`
	ToolName string          `json:"tool_name,omitempty"`
	Input    json.RawMessage `json:"input,omitempty"`
}

// partialEvent is the inner event of a stream_event line.
type partialEvent struct {
	Type         string        `json:"type"`
	ContentBlock *ContentBlock `json:"content_block,omitempty"`
	Delta        *partialDelta `json:"delta,omitempty"`
}

type partialDelta struct {
	Type        string `json:"type"`
	Text        string `json:"text,omitempty"`
	Thinking    string `json:"thinking,omitempty"`
	PartialJSON string `json:"partial_json,omitempty"`
}

// stdinUserMessage is the NDJSON format for user messages on the CLI's stdin.
type stdinUserMessage struct {
	Type      string            `json:"type"`
	SessionID string            `json:"session_id,omitempty"`
	Message   stdinMessageInner `json:"message"`
}

type stdinMessageInner struct {
	Role    string         `json:"role"`
	Content []ContentBlock `json:"content"`
}

// stdinControlRequest carries interrupt requests to the CLI.
type stdinControlRequest struct {
	Type      string             `json:"type"`
	RequestID string             `json:"request_id"`
	Request   controlRequestBody `json:"request"`
}

// stdinControlResponse answers a can_use_tool control_request.
type stdinControlResponse struct {
	Type     string               `json:"type"`
	Response controlResponseOuter `json:"response"`
}

type controlResponseOuter struct {
	Subtype   string              `json:"subtype"`
	RequestID string              `json:"request_id"`
	Response  *PermissionDecision `json:"response,omitempty"`
	Error     string              `json:"error,omitempty"`
}

// PermissionDecision is the verdict returned by a permission callback.
// Behavior is "allow" or "deny"; Message explains a denial to the agent.
type PermissionDecision struct {
	Behavior string `json:"behavior"`
	Message  string `json:"message,omitempty"`
}

// Allow returns an allowing decision.
func Allow() PermissionDecision {
	return PermissionDecision{Behavior: "allow"}
}

// Deny returns a denying decision with an explanatory message.
func Deny(message string) PermissionDecision {
	return PermissionDecision{Behavior: "deny", Message: message}
}

// PermissionFunc authorizes one tool invocation before the CLI executes it.
type PermissionFunc func(toolName string, input map[string]any) PermissionDecision
