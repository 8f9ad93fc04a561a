package claudecode

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseLine(t *testing.T, line string) *CLIMessage {
	t.Helper()
	var msg CLIMessage
	require.NoError(t, json.Unmarshal([]byte(line), &msg))
	return &msg
}

func TestExtractEvent_AssistantSingleThinking(t *testing.T) {
	msg := parseLine(t, `{"type":"assistant","message":{"role":"assistant","content":[{"type":"thinking","thinking":"pondering"}]}}`)

	evt := ExtractEvent(msg)
	assert.Equal(t, EventThinking, evt.Kind)
	assert.Equal(t, "pondering", evt.Text)
	assert.False(t, evt.Partial)
}

func TestExtractEvent_AssistantSingleToolUse(t *testing.T) {
	msg := parseLine(t, `{"type":"assistant","message":{"role":"assistant","content":[{"type":"tool_use","name":"Bash","input":{"command":"ls"}}]}}`)

	evt := ExtractEvent(msg)
	assert.Equal(t, EventToolUse, evt.Kind)
	assert.Equal(t, "Bash", evt.ToolName)
	assert.Equal(t, "ls", evt.ToolInput["command"])
	assert.False(t, evt.Partial)
}

func TestExtractEvent_AssistantTextConcatenation(t *testing.T) {
	msg := parseLine(t, `{"type":"assistant","message":{"role":"assistant","content":[{"type":"text","text":"one "},{"type":"tool_use","name":"Read","input":{}},{"type":"text","text":"two"}]}}`)

	evt := ExtractEvent(msg)
	assert.Equal(t, EventText, evt.Kind)
	assert.Equal(t, "one two", evt.Text)
}

func TestExtractEvent_AssistantEmptyContent(t *testing.T) {
	msg := parseLine(t, `{"type":"assistant","message":{"role":"assistant","content":[]}}`)

	evt := ExtractEvent(msg)
	assert.Equal(t, EventText, evt.Kind)
	assert.Empty(t, evt.Text)
}

func TestExtractEvent_Result(t *testing.T) {
	msg := parseLine(t, `{"type":"result","result":"done","session_id":"S1","total_cost_usd":0.42,"num_turns":3,"duration_ms":1500}`)

	evt := ExtractEvent(msg)
	assert.Equal(t, EventResult, evt.Kind)
	assert.Equal(t, "done", evt.Text)
	assert.Equal(t, "S1", evt.SessionID)
	assert.InDelta(t, 0.42, evt.Cost, 1e-9)
	assert.Equal(t, 3, evt.NumTurns)
	assert.Equal(t, int64(1500), evt.DurationMS)
	assert.False(t, evt.IsError)
}

func TestExtractEvent_ResultError(t *testing.T) {
	msg := parseLine(t, `{"type":"result","result":"No conversation found with session ID: S9","is_error":true}`)

	evt := ExtractEvent(msg)
	assert.Equal(t, EventResult, evt.Kind)
	assert.True(t, evt.IsError)
}

func TestExtractEvent_UserEchoToolResult(t *testing.T) {
	msg := parseLine(t, `{"type":"user","message":{"role":"user","content":[{"type":"tool_result","tool_use_id":"t1","content":"file contents here"}]}}`)

	evt := ExtractEvent(msg)
	assert.Equal(t, EventToolResult, evt.Kind)
	assert.Equal(t, "file contents here", evt.Text)
}

func TestExtractEvent_UserEchoToolResultBlockList(t *testing.T) {
	msg := parseLine(t, `{"type":"user","message":{"role":"user","content":[{"type":"tool_result","content":[{"type":"text","text":"a"},{"type":"text","text":"b"}]}]}}`)

	evt := ExtractEvent(msg)
	assert.Equal(t, EventToolResult, evt.Kind)
	assert.Equal(t, "ab", evt.Text)
}

func TestExtractEvent_UserEchoPlain(t *testing.T) {
	msg := parseLine(t, `{"type":"user","message":{"role":"user","content":[{"type":"text","text":"hi"}]}}`)

	evt := ExtractEvent(msg)
	assert.Equal(t, EventUser, evt.Kind)
}

func TestExtractEvent_PartialToolUseStart(t *testing.T) {
	msg := parseLine(t, `{"type":"stream_event","event":{"type":"content_block_start","content_block":{"type":"tool_use","name":"Grep"}}}`)

	evt := ExtractEvent(msg)
	assert.Equal(t, EventToolUse, evt.Kind)
	assert.Equal(t, "Grep", evt.ToolName)
	assert.True(t, evt.Partial)
	assert.Nil(t, evt.ToolInput)
}

func TestExtractEvent_PartialThinkingStart(t *testing.T) {
	msg := parseLine(t, `{"type":"stream_event","event":{"type":"content_block_start","content_block":{"type":"thinking"}}}`)

	evt := ExtractEvent(msg)
	assert.Equal(t, EventThinking, evt.Kind)
	assert.True(t, evt.Partial)
	assert.Empty(t, evt.Text)
}

func TestExtractEvent_PartialDeltas(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		wantKind EventKind
		wantText string
	}{
		{
			name:     "text delta",
			line:     `{"type":"stream_event","event":{"type":"content_block_delta","delta":{"type":"text_delta","text":"chunk"}}}`,
			wantKind: EventText,
			wantText: "chunk",
		},
		{
			name:     "thinking delta",
			line:     `{"type":"stream_event","event":{"type":"content_block_delta","delta":{"type":"thinking_delta","thinking":"hmm"}}}`,
			wantKind: EventThinking,
			wantText: "hmm",
		},
		{
			name:     "input json delta is ignored",
			line:     `{"type":"stream_event","event":{"type":"content_block_delta","delta":{"type":"input_json_delta","partial_json":"{\"com"}}}`,
			wantKind: EventUnknown,
		},
		{
			name:     "terminal event is ignored",
			line:     `{"type":"stream_event","event":{"type":"content_block_stop"}}`,
			wantKind: EventUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			evt := ExtractEvent(parseLine(t, tt.line))
			assert.Equal(t, tt.wantKind, evt.Kind)
			if tt.wantText != "" {
				assert.Equal(t, tt.wantText, evt.Text)
				assert.True(t, evt.Partial)
			}
		})
	}
}

func TestExtractEvent_Malformed(t *testing.T) {
	assert.Equal(t, EventUnknown, ExtractEvent(nil).Kind)

	msg := parseLine(t, `{"type":"assistant","message":"not an object"}`)
	assert.Equal(t, EventUnknown, ExtractEvent(msg).Kind)

	msg = parseLine(t, `{"type":"wat"}`)
	assert.Equal(t, EventUnknown, ExtractEvent(msg).Kind)
}

func TestOptionsArgs(t *testing.T) {
	opts := &Options{Model: "opus", ResumeSessionID: "S1"}
	args := opts.args()

	assert.Contains(t, args, "--resume")
	assert.Contains(t, args, "S1")
	assert.Contains(t, args, "--model")
	assert.Contains(t, args, "stream-json")
	assert.Contains(t, args, "--include-partial-messages")

	fresh := &Options{}
	assert.NotContains(t, fresh.args(), "--resume")
	assert.NotContains(t, fresh.args(), "--model")
}

func TestPermissionDecisions(t *testing.T) {
	assert.Equal(t, "allow", Allow().Behavior)
	deny := Deny("out of bounds")
	assert.Equal(t, "deny", deny.Behavior)
	assert.Equal(t, "out of bounds", deny.Message)
}
