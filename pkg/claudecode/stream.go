package claudecode

import "encoding/json"

// EventKind enumerates the normalized stream event vocabulary.
type EventKind string

const (
	EventText       EventKind = "text"
	EventThinking   EventKind = "thinking"
	EventToolUse    EventKind = "tool_use"
	EventToolResult EventKind = "tool_result"
	EventResult     EventKind = "result"
	EventUser       EventKind = "user"
	EventUnknown    EventKind = "unknown"
)

// StreamEvent is one normalized element of the backend event stream.
// Only the fields relevant to the Kind are populated.
type StreamEvent struct {
	Kind EventKind

	// Text carries textual content for text, thinking, tool_result, and
	// result events.
	Text string

	// ToolName and ToolInput are set for tool_use events. ToolInput is nil
	// for partial tool_use events, whose input has not finished streaming.
	ToolName  string
	ToolInput map[string]any

	// Partial marks events reconstructed from streaming deltas. Partial
	// tool_use events must not be counted as turns.
	Partial bool

	// Result fields.
	SessionID  string
	Cost       float64
	NumTurns   int
	DurationMS int64
	IsError    bool
}

// ExtractEvent normalizes one CLI message into a StreamEvent. Malformed
// messages yield an unknown event; no error escapes.
func ExtractEvent(msg *CLIMessage) StreamEvent {
	if msg == nil {
		return StreamEvent{Kind: EventUnknown}
	}

	switch msg.Type {
	case "assistant":
		return extractAssistant(msg)
	case "user":
		return extractUserEcho(msg)
	case "result":
		return StreamEvent{
			Kind:       EventResult,
			Text:       msg.Result,
			SessionID:  msg.SessionID,
			Cost:       msg.Cost,
			NumTurns:   msg.NumTurns,
			DurationMS: msg.DurationMS,
			IsError:    msg.IsError,
		}
	case "stream_event":
		return extractPartial(msg.Event)
	default:
		return StreamEvent{Kind: EventUnknown}
	}
}

// extractAssistant applies the complete-message rules: a single thinking
// block yields a thinking event, a single tool_use block yields a tool_use
// event, anything else concatenates the text blocks.
func extractAssistant(msg *CLIMessage) StreamEvent {
	var parsed parsedMessage
	if err := json.Unmarshal(msg.Message, &parsed); err != nil {
		return StreamEvent{Kind: EventUnknown}
	}

	if len(parsed.Content) == 1 {
		block := parsed.Content[0]
		switch block.Type {
		case "thinking":
			return StreamEvent{Kind: EventThinking, Text: block.Thinking}
		case "tool_use":
			input := map[string]any{}
			if len(block.Input) > 0 {
				// Undecodable input degrades to an empty map; the event
				// still reports the tool name.
				_ = json.Unmarshal(block.Input, &input)
			}
			return StreamEvent{Kind: EventToolUse, ToolName: block.Name, ToolInput: input}
		}
	}

	var text string
	for _, block := range parsed.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	return StreamEvent{Kind: EventText, Text: text}
}

// extractUserEcho surfaces tool_result blocks the CLI echoes back inside
// user messages; a user message without one is reported as a user event.
func extractUserEcho(msg *CLIMessage) StreamEvent {
	var parsed parsedMessage
	if err := json.Unmarshal(msg.Message, &parsed); err != nil {
		return StreamEvent{Kind: EventUser}
	}

	for _, block := range parsed.Content {
		if block.Type != "tool_result" {
			continue
		}
		return StreamEvent{Kind: EventToolResult, Text: toolResultText(block.Content)}
	}
	return StreamEvent{Kind: EventUser}
}

// toolResultText flattens a tool_result content payload, which may be a bare
// string or a list of text blocks.
func toolResultText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var blocks []ContentBlock
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return ""
	}
	var text string
	for _, b := range blocks {
		if b.Type == "text" {
			text += b.Text
		}
	}
	return text
}

// extractPartial normalizes the inner event of a stream_event line.
// input_json_delta and unrecognized kinds are reported as unknown and
// ignored upstream.
func extractPartial(raw json.RawMessage) StreamEvent {
	var ev partialEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return StreamEvent{Kind: EventUnknown}
	}

	switch ev.Type {
	case "content_block_start":
		if ev.ContentBlock == nil {
			return StreamEvent{Kind: EventUnknown}
		}
		switch ev.ContentBlock.Type {
		case "tool_use":
			return StreamEvent{Kind: EventToolUse, ToolName: ev.ContentBlock.Name, Partial: true}
		case "thinking":
			return StreamEvent{Kind: EventThinking, Partial: true}
		}
		return StreamEvent{Kind: EventUnknown}
	case "content_block_delta":
		if ev.Delta == nil {
			return StreamEvent{Kind: EventUnknown}
		}
		switch ev.Delta.Type {
		case "text_delta":
			return StreamEvent{Kind: EventText, Text: ev.Delta.Text, Partial: true}
		case "thinking_delta":
			return StreamEvent{Kind: EventThinking, Text: ev.Delta.Thinking, Partial: true}
		}
		return StreamEvent{Kind: EventUnknown}
	default:
		return StreamEvent{Kind: EventUnknown}
	}
}
