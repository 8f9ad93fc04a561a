package progress

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/teleclaude/teleclaude/pkg/claudecode"
)

// Editor is the platform surface the manager edits through. Errors from
// either operation are treated as best-effort by the caller.
type Editor interface {
	SendMessage(ctx context.Context, text string) (messageID int, err error)
	EditMessage(ctx context.Context, messageID int, text string) error
}

// entryKind tags one activity log entry.
type entryKind int

const (
	entryText entryKind = iota
	entryTool
	entryThinking
)

// ActivityEntry is one line of the activity log.
type ActivityEntry struct {
	kind          entryKind
	content       string // text entries
	toolName      string
	inputSummary  string
	resultSummary string
	running       bool
}

// Manager owns the live progress message for one query. Not safe for
// concurrent use; the per-query event loop serializes all calls.
type Manager struct {
	editor            Editor
	editInterval      time.Duration
	rolloverThreshold int

	messageIDs  []int
	entries     []*ActivityEntry
	startedAt   time.Time
	lastEdit    time.Time
	spinnerTick int
	log         *slog.Logger
}

// NewManager creates a manager; Start must be called before Update.
func NewManager(editor Editor, editInterval time.Duration, rolloverThreshold int) *Manager {
	return &Manager{
		editor:            editor,
		editInterval:      editInterval,
		rolloverThreshold: rolloverThreshold,
		startedAt:         time.Now(),
		log:               slog.With("component", "progress"),
	}
}

// Start sends the initial progress message.
func (m *Manager) Start(ctx context.Context) error {
	id, err := m.editor.SendMessage(ctx, "Working...")
	if err != nil {
		return fmt.Errorf("send initial progress message: %w", err)
	}
	m.messageIDs = append(m.messageIDs, id)
	m.lastEdit = time.Now()
	return nil
}

// MessageIDs returns the platform message handles created so far; the last
// one is the current edit target.
func (m *Manager) MessageIDs() []int {
	return m.messageIDs
}

// Update ingests one stream event into the activity log and issues a
// throttled edit when the cadence allows.
func (m *Manager) Update(ctx context.Context, evt claudecode.StreamEvent) {
	m.ingest(evt)
	m.spinnerTick++

	if time.Since(m.lastEdit) < m.editInterval {
		return
	}
	m.edit(ctx, m.render(false))
}

// ingest applies the event to the activity log without touching the platform.
func (m *Manager) ingest(evt claudecode.StreamEvent) {
	if evt.Kind != claudecode.EventToolResult && evt.Kind != claudecode.EventThinking {
		m.finishRunning()
	}

	switch evt.Kind {
	case claudecode.EventToolUse:
		m.entries = append(m.entries, &ActivityEntry{
			kind:         entryTool,
			toolName:     evt.ToolName,
			inputSummary: InputSummary(evt.ToolName, evt.ToolInput),
			running:      true,
		})
	case claudecode.EventText:
		if last := m.lastEntry(); last != nil && last.kind == entryText {
			last.content += evt.Text
		} else {
			m.entries = append(m.entries, &ActivityEntry{kind: entryText, content: evt.Text})
		}
	case claudecode.EventThinking:
		if last := m.lastEntry(); last != nil && last.kind == entryThinking && last.running {
			return
		}
		m.entries = append(m.entries, &ActivityEntry{kind: entryThinking, running: true})
	case claudecode.EventToolResult:
		for i := len(m.entries) - 1; i >= 0; i-- {
			if m.entries[i].kind == entryTool {
				m.entries[i].resultSummary = ResultSummary(evt.Text)
				break
			}
		}
	}
}

// Finalize renders once with the Done header and spinners suppressed, and
// edits best-effort.
func (m *Manager) Finalize(ctx context.Context) {
	m.finishRunning()
	if len(m.messageIDs) == 0 {
		return
	}
	text := m.render(true)
	if err := m.editor.EditMessage(ctx, m.currentMessageID(), text); err != nil {
		m.log.Debug("Final progress edit failed", "error", err)
	}
}

// edit issues one platform edit and handles rollover. Edit errors are
// swallowed and the edit clock advances regardless, preserving cadence.
func (m *Manager) edit(ctx context.Context, text string) {
	if len(m.messageIDs) == 0 {
		return
	}
	if err := m.editor.EditMessage(ctx, m.currentMessageID(), text); err != nil {
		m.log.Debug("Progress edit failed", "error", err)
	}
	m.lastEdit = time.Now()

	if len(text) >= m.rolloverThreshold {
		m.rollover(ctx)
	}
}

// rollover finalizes the full message and directs subsequent edits to a
// fresh one with an empty activity log.
func (m *Manager) rollover(ctx context.Context) {
	if err := m.editor.EditMessage(ctx, m.currentMessageID(), m.render(true)); err != nil {
		m.log.Debug("Rollover final edit failed", "error", err)
	}

	id, err := m.editor.SendMessage(ctx, "Working... (continued)")
	if err != nil {
		m.log.Warn("Failed to create rollover message, keeping current", "error", err)
		return
	}
	m.messageIDs = append(m.messageIDs, id)
	m.entries = nil
	m.lastEdit = time.Now()
}

// render produces the full progress text. Text entries are omitted: the
// final answer arrives as its own reply and must not be duplicated here.
func (m *Manager) render(done bool) string {
	elapsed := int(time.Since(m.startedAt).Seconds())
	var b strings.Builder
	if done {
		fmt.Fprintf(&b, "Done (%ds)", elapsed)
	} else {
		fmt.Fprintf(&b, "Working... (%ds)", elapsed)
	}

	for _, e := range m.entries {
		switch e.kind {
		case entryText:
			continue
		case entryTool:
			b.WriteString("\n")
			b.WriteString(ToolIcon(e.toolName))
			b.WriteString(" ")
			b.WriteString(e.toolName)
			if e.inputSummary != "" {
				b.WriteString(": ")
				b.WriteString(e.inputSummary)
			}
			if e.running && !done {
				b.WriteString(" ⏳")
			}
			if e.resultSummary != "" {
				b.WriteString("\n  ↳ ")
				b.WriteString(e.resultSummary)
			}
		case entryThinking:
			if e.running && !done {
				b.WriteString("\n💭 Thinking" + strings.Repeat(".", m.spinnerTick%3+1))
			} else {
				b.WriteString("\n💭 Thinking (done)")
			}
		}
	}
	return b.String()
}

func (m *Manager) finishRunning() {
	for i := len(m.entries) - 1; i >= 0; i-- {
		if m.entries[i].running {
			m.entries[i].running = false
			return
		}
	}
}

func (m *Manager) lastEntry() *ActivityEntry {
	if len(m.entries) == 0 {
		return nil
	}
	return m.entries[len(m.entries)-1]
}

func (m *Manager) currentMessageID() int {
	return m.messageIDs[len(m.messageIDs)-1]
}
