package history

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeLog(t *testing.T, lines ...string) *Index {
	t.Helper()
	path := filepath.Join(t.TempDir(), "history.jsonl")
	content := ""
	for _, l := range lines {
		content += l + "\n"
	}
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return NewIndex(path)
}

func entryLine(sid, display, project string, ts int64) string {
	return fmt.Sprintf(`{"sessionId":%q,"display":%q,"timestamp":%d,"project":%q}`,
		sid, display, ts, project)
}

func TestRead_SortedNewestFirst(t *testing.T) {
	idx := writeLog(t,
		entryLine("S1", "hello", "/w/proj", 500),
		entryLine("S2", "x", "/w/other", 1000),
		entryLine("S3", "y", "/w/proj", 750),
	)

	entries := idx.Read()
	require.Len(t, entries, 3)
	assert.Equal(t, "S2", entries[0].SessionID)
	assert.Equal(t, "S3", entries[1].SessionID)
	assert.Equal(t, "S1", entries[2].SessionID)
}

func TestRead_MissingFile(t *testing.T) {
	idx := NewIndex(filepath.Join(t.TempDir(), "absent.jsonl"))
	assert.Empty(t, idx.Read())
}

func TestRead_DropsMalformedLines(t *testing.T) {
	idx := writeLog(t,
		entryLine("S1", "ok", "/w/proj", 500),
		`{"broken`,
		`{"sessionId":"","display":"no sid","timestamp":5,"project":"/w"}`,
		`{"sessionId":"S2","timestamp":5,"project":"/w"}`,
		`{"sessionId":"S3","display":"","timestamp":5,"project":"/w"}`,
		"",
	)

	// The line missing the display key is malformed; an empty display is
	// still a complete record.
	entries := idx.Read()
	require.Len(t, entries, 2)
	assert.Equal(t, "S1", entries[0].SessionID)
	assert.Equal(t, "S3", entries[1].SessionID)
}

func TestFilterByDirectory(t *testing.T) {
	idx := writeLog(t,
		entryLine("S2", "x", "/w/other", 1000),
		entryLine("S1", "hello", "/w/proj", 500),
	)

	filtered := idx.FilterByDirectory(idx.Read(), "/w/proj")
	require.Len(t, filtered, 1)
	assert.Equal(t, "S1", filtered[0].SessionID)
}

func TestLatest_ResolvesPerDirectory(t *testing.T) {
	idx := writeLog(t,
		entryLine("S2", "x", "/w/other", 1000),
		entryLine("S1", "hello", "/w/proj", 500),
	)

	latest, ok := idx.Latest("/w/other")
	require.True(t, ok)
	assert.Equal(t, "S2", latest.SessionID)

	_, ok = idx.Latest("/nowhere")
	assert.False(t, ok)
}

func TestFind(t *testing.T) {
	idx := writeLog(t, entryLine("S1", "hello", "/w/proj", 500))

	e, ok := idx.Find("S1")
	require.True(t, ok)
	assert.Equal(t, "/w/proj", e.Project)

	_, ok = idx.Find("S9")
	assert.False(t, ok)
}

func TestHealthWarning(t *testing.T) {
	healthy := writeLog(t,
		entryLine("S1", "a", "/w", 1),
		`{"broken`,
	)
	assert.Empty(t, healthy.HealthWarning())

	// 3 of 5 malformed crosses the majority threshold.
	sick := writeLog(t,
		entryLine("S1", "a", "/w", 1),
		entryLine("S2", "b", "/w", 2),
		`{"broken`, `also broken`, `{"nope"}`,
	)
	assert.Contains(t, sick.HealthWarning(), "3 of 5")
}

func TestAppend_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "history.jsonl")
	idx := NewIndex(path)

	before := time.Now().UnixMilli()
	idx.Append("S1", "hello", "/w/proj")

	entries := idx.Read()
	require.Len(t, entries, 1)
	assert.Equal(t, "S1", entries[0].SessionID)
	assert.Equal(t, "hello", entries[0].Display)
	assert.Equal(t, "/w/proj", entries[0].Project)
	assert.GreaterOrEqual(t, entries[0].Timestamp, before)
}

func TestList_Limit(t *testing.T) {
	idx := writeLog(t,
		entryLine("S1", "a", "/w", 1),
		entryLine("S2", "b", "/w", 2),
		entryLine("S3", "c", "/w", 3),
	)

	got := idx.List("/w", 2)
	require.Len(t, got, 2)
	assert.Equal(t, "S3", got[0].SessionID)
}

func TestTranscriptPath(t *testing.T) {
	got := TranscriptPath("/root/.claude/projects", "/w/proj", "S1")
	assert.Equal(t, "/root/.claude/projects/-w-proj/S1.jsonl", got)
}

func TestReadTranscript(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "-w-proj")
	require.NoError(t, os.MkdirAll(dir, 0o755))

	lines := []string{
		`{"type":"user","message":{"content":"first question"}}`,
		`{"type":"assistant","message":{"content":[{"type":"text","text":"first answer"}]}}`,
		`{"type":"user","message":{"content":"<system-injected>"}}`,
		`{"type":"summary","summary":"irrelevant"}`,
		`{"type":"assistant","message":{"content":[{"type":"tool_use","name":"Bash"}]}}`,
		`{"type":"user","message":{"content":"second question"}}`,
		`{"type":"assistant","message":{"content":[{"type":"text","text":"second answer"}]}}`,
	}
	content := ""
	for _, l := range lines {
		content += l + "\n"
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "S1.jsonl"), []byte(content), 0o644))

	msgs := ReadTranscript(root, "/w/proj", "S1", 10)
	require.Len(t, msgs, 4)
	assert.Equal(t, "user", msgs[0].Role)
	assert.Equal(t, "first question", msgs[0].Text)
	assert.Equal(t, "second answer", msgs[3].Text)

	// Tail of length 2*limit.
	tail := ReadTranscript(root, "/w/proj", "S1", 1)
	require.Len(t, tail, 2)
	assert.Equal(t, "second question", tail[0].Text)
}

func TestReadTranscript_Missing(t *testing.T) {
	assert.Nil(t, ReadTranscript(t.TempDir(), "/w/proj", "S9", 5))
}
