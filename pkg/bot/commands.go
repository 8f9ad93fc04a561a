package bot

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/go-telegram/bot/models"

	"github.com/teleclaude/teleclaude/pkg/client"
	"github.com/teleclaude/teleclaude/pkg/history"
)

const helpText = "<b>Commands:</b>\n" +
	"/new — Start a fresh session\n" +
	"/stop — Interrupt the running query\n" +
	"/status — Current session info\n" +
	"/sessions — Pick a session to resume\n" +
	"/repo — Browse and switch workspace\n" +
	"/model — Switch model\n" +
	"/skills — Browse available skills"

func (b *Bot) cmdStart(ctx context.Context, msg *models.Message) {
	st := b.stateFor(ctx, msg.From.ID)
	directory, _, _, _ := b.snapshot(st)

	b.reply(ctx, msg.Chat.ID, fmt.Sprintf(
		"Hi %s! I'm your AI coding assistant.\n"+
			"Just tell me what you need — I can read, write, and run code.\n\n"+
			"Working in: <code>%s/</code>\n\n%s",
		EscapeHTML(msg.From.FirstName), EscapeHTML(directory), helpText), true)
}

func (b *Bot) cmdHelp(ctx context.Context, msg *models.Message) {
	b.reply(ctx, msg.Chat.ID, helpText, true)
}

// cmdNew resets session state and eagerly connects a fresh backend session.
func (b *Bot) cmdNew(ctx context.Context, msg *models.Message) {
	userID := msg.From.ID
	st := b.stateFor(ctx, userID)

	b.mu.Lock()
	st.forceNew = true
	directory := st.directory
	model, betas := st.model, st.betas
	b.mu.Unlock()

	b.manager.Disconnect(userID)
	if b.store != nil {
		if err := b.store.Delete(ctx, userID); err != nil {
			b.log.Warn("Failed to clear persisted session", "user_id", userID, "error", err)
		}
	}

	_, err := b.manager.GetOrConnect(ctx, client.ConnectParams{
		UserID:    userID,
		Directory: directory,
		Model:     model,
		Betas:     betas,
		ForceNew:  true,
	})
	if err != nil {
		b.log.Debug("Eager connect for new session failed", "user_id", userID, "error", err)
		b.reply(ctx, msg.Chat.ID, "Session reset. Will connect on your next message.", false)
		return
	}

	b.mu.Lock()
	st.forceNew = false
	b.mu.Unlock()
	b.reply(ctx, msg.Chat.ID, fmt.Sprintf(
		"New session in <code>%s/</code>. Ready.", EscapeHTML(filepath.Base(directory))), true)
}

func (b *Bot) cmdStop(ctx context.Context, msg *models.Message) {
	userID := msg.From.ID
	if uc, ok := b.manager.Get(userID); ok && uc.IsQuerying() {
		if err := b.manager.Interrupt(userID); err != nil {
			b.log.Warn("Interrupt failed", "user_id", userID, "error", err)
		}
		b.reply(ctx, msg.Chat.ID, "Interrupting current query...", false)
		return
	}
	b.reply(ctx, msg.Chat.ID, "No active query to interrupt.", false)
}

// cmdStatus reports the workspace, session, model, and connection state,
// with a short transcript preview when a resumable session exists.
func (b *Bot) cmdStatus(ctx context.Context, msg *models.Message) {
	userID := msg.From.ID
	st := b.stateFor(ctx, userID)
	directory, model, _, _ := b.snapshot(st)

	var lines []string
	if root, ok := b.workspaceRoot(directory); ok && len(b.settings.Claude.ApprovedRoots) > 1 {
		lines = append(lines, "<b>Workspace:</b> "+EscapeHTML(filepath.Base(root)))
	}
	lines = append(lines, "<b>Directory:</b> <code>"+EscapeHTML(directory)+"</code>")

	sessionID := ""
	state := ""
	if uc, ok := b.manager.Get(userID); ok {
		sessionID = uc.SessionID()
		if uc.Model() != "" {
			model = uc.Model()
		}
		switch {
		case uc.IsQuerying():
			state = "querying"
		case uc.IsConnected():
			state = "connected"
		default:
			state = "disconnected"
		}
	}

	if sessionID != "" {
		display := sessionID[:min(12, len(sessionID))] + "..."
		if entry, found := b.history.Find(sessionID); found && entry.Display != "" {
			display = EscapeHTML(truncateString(entry.Display, 50))
		}
		lines = append(lines, "<b>Session:</b> "+display)
		if n := len(b.manager.ListSessions(directory, 0)); n > 1 {
			lines = append(lines, fmt.Sprintf("(%d sessions available)", n))
		}
	} else {
		lines = append(lines, "<b>Session:</b> none (send a message to start)")
	}

	if model == "" {
		model = "default"
	}
	lines = append(lines, "<b>Model:</b> "+EscapeHTML(model))
	if state != "" {
		lines = append(lines, "<b>State:</b> "+state)
	}

	if sessionID != "" {
		lines = append(lines, b.transcriptPreview(directory, sessionID)...)
	}
	b.reply(ctx, msg.Chat.ID, strings.Join(lines, "\n"), true)
}

// transcriptPreview renders the last exchanges of a session, if readable.
func (b *Bot) transcriptPreview(directory, sessionID string) []string {
	transcript := history.ReadTranscript(b.settings.Claude.ProjectsRoot, directory, sessionID, 3)
	if len(transcript) == 0 {
		return nil
	}
	lines := []string{"", "<b>Recent:</b>"}
	for _, m := range transcript {
		label := "Claude"
		if m.Role == "user" {
			label = "You"
		}
		preview := truncateString(m.Text, 120)
		if preview != m.Text {
			preview += "…"
		}
		lines = append(lines, fmt.Sprintf("  <b>%s:</b> %s", label, EscapeHTML(preview)))
	}
	return lines
}

// cmdSessions shows the session picker for the current directory.
func (b *Bot) cmdSessions(ctx context.Context, msg *models.Message) {
	st := b.stateFor(ctx, msg.From.ID)
	directory, _, _, _ := b.snapshot(st)

	if warning := b.history.HealthWarning(); warning != "" {
		b.reply(ctx, msg.Chat.ID, "⚠️ "+EscapeHTML(warning), true)
	}

	entries := b.manager.ListSessions(directory, 10)
	var rows [][]models.InlineKeyboardButton
	for _, entry := range entries {
		display := entry.Display
		if display == "" {
			display = entry.SessionID[:min(12, len(entry.SessionID))]
		}
		label := RelativeTime(entry.Timestamp) + " — " + truncateString(display, 45)
		rows = append(rows, []models.InlineKeyboardButton{
			{Text: label, CallbackData: "session:" + entry.SessionID},
		})
	}
	rows = append(rows, []models.InlineKeyboardButton{
		{Text: "+ New Session", CallbackData: "session:new"},
	})

	dirName := EscapeHTML(filepath.Base(directory))
	text := fmt.Sprintf("<b>Sessions in <code>%s/</code></b>\n\nSelect a session to resume or start a new one:", dirName)
	if len(entries) == 0 {
		text = fmt.Sprintf("<b>No sessions found in <code>%s/</code></b>\n\nStart a new session:", dirName)
	}
	b.replyMarkup(ctx, msg.Chat.ID, text, &models.InlineKeyboardMarkup{InlineKeyboard: rows})
}

// cmdRepo opens the directory browser, optionally navigating straight to a
// relative path under one of the approved roots.
func (b *Bot) cmdRepo(ctx context.Context, msg *models.Message, args string) {
	userID := msg.From.ID
	st := b.stateFor(ctx, userID)
	roots := b.settings.Claude.ApprovedRoots

	b.mu.Lock()
	browseRoot, browseRel := st.browseRoot, st.browseRel
	b.mu.Unlock()
	if browseRoot == "" || !containsString(roots, browseRoot) {
		browseRoot, browseRel = roots[0], ""
	}

	if args != "" {
		target, root, ok := resolveBrowsePath(args, roots)
		if !ok {
			b.reply(ctx, msg.Chat.ID, fmt.Sprintf(
				"Directory not found: <code>%s</code>", EscapeHTML(args)), true)
			return
		}
		if isBranchDir(target) {
			rel, _ := filepath.Rel(root, target)
			if rel == "." {
				rel = ""
			}
			b.setBrowseState(st, root, rel)
			b.sendBrowser(ctx, msg.Chat.ID, 0, target, root)
			return
		}
		b.selectDirectory(ctx, msg.Chat.ID, 0, userID, target)
		return
	}

	browseDir := browseRoot
	if browseRel != "" {
		browseDir = filepath.Join(browseRoot, browseRel)
	}
	if !isBranchDir(browseDir) && browseDir != browseRoot {
		browseDir, browseRel = browseRoot, ""
	}
	b.setBrowseState(st, browseRoot, browseRel)
	b.sendBrowser(ctx, msg.Chat.ID, 0, browseDir, browseRoot)
}

func (b *Bot) setBrowseState(st *userState, root, rel string) {
	b.mu.Lock()
	st.browseRoot, st.browseRel = root, rel
	b.mu.Unlock()
}

// sendBrowser renders the browser; messageID zero sends a new message,
// non-zero edits in place.
func (b *Bot) sendBrowser(ctx context.Context, chatID int64, messageID int, browseDir, root string) {
	multiRoot := len(b.settings.Claude.ApprovedRoots) > 1
	text := browserListing(browseDir, root)
	markup := browserKeyboard(browseDir, root, multiRoot)
	if messageID != 0 {
		b.editText(ctx, chatID, messageID, text, markup)
		return
	}
	b.replyMarkup(ctx, chatID, text, markup)
}

// selectDirectory switches the working directory and clears session state;
// the user resumes explicitly via /sessions or starts fresh via /new.
func (b *Bot) selectDirectory(ctx context.Context, chatID int64, messageID int, userID int64, target string) {
	st := b.stateFor(ctx, userID)
	b.mu.Lock()
	st.directory = target
	st.forceNew = false
	b.mu.Unlock()

	b.manager.Disconnect(userID)
	if b.store != nil {
		if err := b.store.Delete(ctx, userID); err != nil {
			b.log.Warn("Failed to clear persisted session", "user_id", userID, "error", err)
		}
	}

	badge := ""
	if isGitRepo(target) {
		badge = " (git)"
	}
	text := fmt.Sprintf("Switched to <code>%s/</code>%s", EscapeHTML(filepath.Base(target)), badge)
	if messageID != 0 {
		b.editText(ctx, chatID, messageID, text, nil)
		return
	}
	b.reply(ctx, chatID, text, true)
}

func (b *Bot) cmdModel(ctx context.Context, msg *models.Message) {
	markup := &models.InlineKeyboardMarkup{InlineKeyboard: [][]models.InlineKeyboardButton{
		{
			{Text: "Sonnet", CallbackData: "model:sonnet"},
			{Text: "Opus", CallbackData: "model:opus"},
			{Text: "Haiku", CallbackData: "model:haiku"},
		},
		{
			{Text: "Sonnet 1M", CallbackData: "model:sonnet:1m"},
			{Text: "Opus 1M", CallbackData: "model:opus:1m"},
		},
	}}
	b.replyMarkup(ctx, msg.Chat.ID, "Select a model:", markup)
}

// cmdSkills lists discovered skills with one-tap invocation buttons.
func (b *Bot) cmdSkills(ctx context.Context, msg *models.Message) {
	st := b.stateFor(ctx, msg.From.ID)
	directory, _, _, _ := b.snapshot(st)

	discovered := b.skills.Discover(directory)
	if len(discovered) == 0 {
		b.reply(ctx, msg.Chat.ID,
			"📝 <b>No Skills Available</b>\n\n"+
				"Skills are loaded from:\n"+
				"  • <code>.claude/skills/&lt;name&gt;/SKILL.md</code> (project)\n"+
				"  • <code>~/.claude/skills/&lt;name&gt;/SKILL.md</code> (personal)\n"+
				"  • Installed plugins", true)
		return
	}

	var rows [][]models.InlineKeyboardButton
	lines := []string{"<b>Available Skills</b>\n"}
	for _, skill := range discovered {
		button := models.InlineKeyboardButton{Text: skill.Name, CallbackData: "skill:" + skill.Name}
		if skill.ArgumentHint != "" {
			button = models.InlineKeyboardButton{
				Text:                         skill.Name + " ...",
				SwitchInlineQueryCurrentChat: "/" + skill.Name + " ",
			}
		}
		rows = append(rows, []models.InlineKeyboardButton{button})

		line := "  • <code>" + EscapeHTML(skill.Name) + "</code>"
		if skill.Description != "" {
			line += " — " + EscapeHTML(truncateString(skill.Description, 80))
		}
		lines = append(lines, line)
	}
	if len(rows) > 100 {
		rows = rows[:100]
	}

	text := strings.Join(lines, "\n")
	if len(text) > 4000 {
		text = text[:3950] + "\n\n<i>... truncated</i>"
	}
	b.replyMarkup(ctx, msg.Chat.ID, text, &models.InlineKeyboardMarkup{InlineKeyboard: rows})
}

// workspaceRoot returns the approved root containing dir.
func (b *Bot) workspaceRoot(dir string) (string, bool) {
	for _, root := range b.settings.Claude.ApprovedRoots {
		if isUnderDir(dir, root) {
			return root, true
		}
	}
	return "", false
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}
