package history

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
)

// TranscriptMessage is one conversational message from a session transcript.
type TranscriptMessage struct {
	Role string // "user" or "assistant"
	Text string
}

// transcriptRecord is the loosely typed on-disk shape. Message content may
// be a bare string or a list of blocks.
type transcriptRecord struct {
	Type    string `json:"type"`
	Message struct {
		Content json.RawMessage `json:"content"`
	} `json:"message"`
}

// TranscriptPath returns the CLI's transcript location for a session:
// <projectsRoot>/<slug>/<sessionID>.jsonl, where the slug is the project
// directory with path separators replaced by dashes.
func TranscriptPath(projectsRoot, projectDir, sessionID string) string {
	slug := strings.ReplaceAll(projectDir, "/", "-")
	return filepath.Join(projectsRoot, slug, sessionID+".jsonl")
}

// ReadTranscript returns up to 2*limit of the most recent user/assistant
// messages from a session transcript. Empty messages and system-injected
// messages (text starting with "<") are skipped. A missing or unreadable
// file yields nil.
func ReadTranscript(projectsRoot, projectDir, sessionID string, limit int) []TranscriptMessage {
	data, err := os.ReadFile(TranscriptPath(projectsRoot, projectDir, sessionID))
	if err != nil {
		return nil
	}

	var msgs []TranscriptMessage
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var rec transcriptRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			continue
		}
		if rec.Type != "user" && rec.Type != "assistant" {
			continue
		}
		text := contentText(rec.Message.Content)
		text = strings.TrimSpace(text)
		if text == "" || strings.HasPrefix(text, "<") {
			continue
		}
		msgs = append(msgs, TranscriptMessage{Role: rec.Type, Text: text})
	}

	if limit > 0 && len(msgs) > 2*limit {
		msgs = msgs[len(msgs)-2*limit:]
	}
	return msgs
}

// contentText flattens a transcript content payload, which may be a string
// or a list of blocks whose text-typed members carry the text.
func contentText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var blocks []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return ""
	}
	var parts []string
	for _, b := range blocks {
		if b.Type == "text" && b.Text != "" {
			parts = append(parts, b.Text)
		}
	}
	return strings.Join(parts, "\n")
}
