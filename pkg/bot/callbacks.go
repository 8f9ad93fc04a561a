package bot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	tg "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/teleclaude/teleclaude/pkg/client"
)

// beta flag enabling the 1M-token context window.
const beta1MContext = "context-1m-2025-08-07"

// handleCallback routes inline-keyboard callbacks by data prefix.
func (b *Bot) handleCallback(ctx context.Context, q *models.CallbackQuery) {
	if _, err := b.tg.AnswerCallbackQuery(ctx, &tg.AnswerCallbackQueryParams{CallbackQueryID: q.ID}); err != nil {
		b.log.Debug("Failed to answer callback query", "error", err)
	}

	msg := q.Message.Message
	if msg == nil {
		return
	}
	prefix, value, ok := strings.Cut(q.Data, ":")
	if !ok {
		return
	}
	chatID, messageID, userID := msg.Chat.ID, msg.ID, q.From.ID

	switch prefix {
	case "model":
		b.callbackModel(ctx, chatID, messageID, userID, value)
	case "skill":
		b.callbackSkill(ctx, chatID, messageID, userID, value)
	case "nav":
		b.callbackNav(ctx, chatID, messageID, userID, value)
	case "sel":
		b.callbackSel(ctx, chatID, messageID, userID, value)
	case "session":
		b.callbackSession(ctx, chatID, messageID, userID, value)
	case "cd":
		b.callbackCd(ctx, chatID, messageID, userID, value)
	}
}

// callbackModel applies a model selection, e.g. "sonnet" or "opus:1m".
func (b *Bot) callbackModel(ctx context.Context, chatID int64, messageID int, userID int64, value string) {
	model, variant, _ := strings.Cut(value, ":")
	var betas []string
	if variant == "1m" {
		betas = []string{beta1MContext}
	}

	st := b.stateFor(ctx, userID)
	b.mu.Lock()
	st.model = model
	st.betas = betas
	b.mu.Unlock()

	b.manager.SetModel(ctx, userID, model, betas)

	label := model
	switch model {
	case "sonnet":
		label = "Sonnet"
	case "opus":
		label = "Opus"
	case "haiku":
		label = "Haiku"
	}
	if variant == "1m" {
		label += " 1M"
	}
	b.editText(ctx, chatID, messageID, "Model set to: "+EscapeHTML(label), nil)
}

// callbackSkill runs a skill picked from the /skills keyboard.
func (b *Bot) callbackSkill(ctx context.Context, chatID int64, messageID int, userID int64, name string) {
	b.editText(ctx, chatID, messageID, fmt.Sprintf(
		"⚙️ Running skill: <b>%s</b>...", EscapeHTML(name)), nil)
	b.invokeSkill(ctx, chatID, userID, name, "")
}

// callbackNav moves the browser up or into a subdirectory.
func (b *Bot) callbackNav(ctx context.Context, chatID int64, messageID int, userID int64, value string) {
	st := b.stateFor(ctx, userID)
	roots := b.settings.Claude.ApprovedRoots

	b.mu.Lock()
	root, rel := st.browseRoot, st.browseRel
	b.mu.Unlock()
	if root == "" || !containsString(roots, root) {
		root, rel = roots[0], ""
	}

	if value == ".." {
		if rel != "" {
			parent := filepath.Dir(rel)
			if parent == "." {
				parent = ""
			}
			rel = parent
		} else if len(roots) > 1 {
			// Up from a root cycles to the next approved root.
			for i, r := range roots {
				if r == root {
					root = roots[(i+1)%len(roots)]
					break
				}
			}
		}
	} else {
		target := filepath.Clean(filepath.Join(root, value))
		if !isUnderDir(target, root) || !dirExists(target) {
			b.editText(ctx, chatID, messageID, fmt.Sprintf(
				"Directory not found: <code>%s</code>", EscapeHTML(value)), nil)
			return
		}
		newRel, err := filepath.Rel(root, target)
		if err != nil {
			return
		}
		if newRel == "." {
			newRel = ""
		}
		rel = newRel
	}

	b.setBrowseState(st, root, rel)
	browseDir := root
	if rel != "" {
		browseDir = filepath.Join(root, rel)
	}
	b.sendBrowser(ctx, chatID, messageID, browseDir, root)
}

// callbackSel selects the current or a child directory as the workspace.
func (b *Bot) callbackSel(ctx context.Context, chatID int64, messageID int, userID int64, value string) {
	st := b.stateFor(ctx, userID)
	roots := b.settings.Claude.ApprovedRoots

	b.mu.Lock()
	root, rel := st.browseRoot, st.browseRel
	b.mu.Unlock()
	if root == "" || !containsString(roots, root) {
		root, rel = roots[0], ""
	}

	var target string
	if value == "." {
		target = root
		if rel != "" {
			target = filepath.Join(root, rel)
		}
	} else {
		target = filepath.Clean(filepath.Join(root, value))
	}

	if !dirExists(target) {
		b.editText(ctx, chatID, messageID, fmt.Sprintf(
			"Directory not found: <code>%s</code>", EscapeHTML(value)), nil)
		return
	}
	if !b.withinApprovedRoots(target) {
		b.editText(ctx, chatID, messageID, "Access denied.", nil)
		return
	}
	b.selectDirectory(ctx, chatID, messageID, userID, target)
}

// callbackSession resumes a picked session or starts a fresh one.
func (b *Bot) callbackSession(ctx context.Context, chatID int64, messageID int, userID int64, value string) {
	st := b.stateFor(ctx, userID)
	directory, model, betas, _ := b.snapshot(st)

	if value == "new" {
		b.mu.Lock()
		st.forceNew = true
		b.mu.Unlock()

		_, err := b.manager.GetOrConnect(ctx, client.ConnectParams{
			UserID: userID, Directory: directory, Model: model, Betas: betas, ForceNew: true,
		})
		if err == nil {
			b.mu.Lock()
			st.forceNew = false
			b.mu.Unlock()
		} else {
			b.log.Debug("Eager connect for new session failed", "user_id", userID, "error", err)
		}
		b.editText(ctx, chatID, messageID, "New session started. Ready.", nil)
		return
	}

	_, err := b.manager.SwitchSession(ctx, client.ConnectParams{
		UserID: userID, Directory: directory, SessionID: value, Model: model, Betas: betas,
	})
	if err != nil {
		b.log.Warn("Session resume failed", "user_id", userID, "session_id", value, "error", err)
		b.editText(ctx, chatID, messageID, "Failed to resume session. Send a message to start a new one.", nil)
		return
	}

	lines := []string{"📂 <b>Session resumed. Ready.</b>"}
	lines = append(lines, b.transcriptPreview(directory, value)...)
	b.editText(ctx, chatID, messageID, strings.Join(lines, "\n"), nil)
}

// callbackCd switches the workspace directly to a named directory.
func (b *Bot) callbackCd(ctx context.Context, chatID int64, messageID int, userID int64, value string) {
	roots := b.settings.Claude.ApprovedRoots

	var target string
	if filepath.IsAbs(value) {
		if dirExists(value) && b.withinApprovedRoots(value) {
			target = filepath.Clean(value)
		}
	} else {
		for _, root := range roots {
			candidate := filepath.Join(root, value)
			if dirExists(candidate) {
				target = candidate
				break
			}
		}
	}
	if target == "" {
		b.editText(ctx, chatID, messageID, fmt.Sprintf(
			"Directory not found: <code>%s</code>", EscapeHTML(value)), nil)
		return
	}
	b.selectDirectory(ctx, chatID, messageID, userID, target)
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
