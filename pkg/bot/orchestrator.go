package bot

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-telegram/bot/models"

	"github.com/teleclaude/teleclaude/pkg/attachments"
	"github.com/teleclaude/teleclaude/pkg/claudecode"
	"github.com/teleclaude/teleclaude/pkg/client"
	"github.com/teleclaude/teleclaude/pkg/progress"
	"github.com/teleclaude/teleclaude/pkg/skills"
)

// displayPreviewLen bounds the history-entry snippet taken from the prompt.
const displayPreviewLen = 80

// handleText submits a plain text message as a query.
func (b *Bot) handleText(ctx context.Context, msg *models.Message, text string) {
	b.log.Info("Text message", "user_id", msg.From.ID, "length", len(text))
	b.executeQuery(ctx, msg.Chat.ID, msg.From.ID, client.Query{Text: text})
}

// invokeSkill resolves an unrecognized /name command against the discovered
// skills and submits the resolved body.
func (b *Bot) invokeSkill(ctx context.Context, chatID, userID int64, name, args string) {
	st := b.stateFor(ctx, userID)
	directory, _, _, _ := b.snapshot(st)

	meta, ok := b.skills.Find(directory, name)
	if !ok {
		b.reply(ctx, chatID, fmt.Sprintf(
			"❌ Skill <code>%s</code> not found. Use /skills to see available skills.",
			EscapeHTML(name)), true)
		return
	}
	body, err := meta.Body()
	if err != nil {
		b.log.Warn("Failed to read skill body", "skill", name, "error", err)
		b.reply(ctx, chatID, "Failed to load skill "+EscapeHTML(name)+".", true)
		return
	}

	sessionID := ""
	if uc, found := b.manager.Get(userID); found {
		sessionID = uc.SessionID()
	}
	prompt := skills.Resolve(body, args, sessionID)

	b.log.Info("Skill invoked", "user_id", userID, "skill", name)
	b.executeQuery(ctx, chatID, userID, client.Query{Text: prompt})
}

// handleAttachment buffers album items and runs single attachments
// immediately.
func (b *Bot) handleAttachment(ctx context.Context, update *models.Update) {
	batch := b.collector.Add(update.Message.MediaGroupID, update)
	if batch == nil {
		return // album still accumulating; onAlbumReady fires later
	}
	b.processBatch(ctx, batch)
}

// onAlbumReady is the collector's timer callback for a quiet media group.
func (b *Bot) onAlbumReady(groupID string) {
	batch := b.collector.PopReady(groupID)
	if len(batch) == 0 {
		return
	}
	b.mu.Lock()
	ctx := b.runCtx
	b.mu.Unlock()
	b.processBatch(ctx, batch)
}

// processBatch converts a batch of media updates into one query.
func (b *Bot) processBatch(ctx context.Context, batch []*models.Update) {
	first := batch[0].Message
	chatID, userID := first.Chat.ID, first.From.ID
	dl := &telegramDownloader{tg: b.tg}

	var processed []attachments.Attachment
	caption := ""
	for _, u := range batch {
		msg := u.Message
		if msg == nil {
			continue
		}
		if caption == "" {
			caption = msg.Caption
		}

		var att *attachments.Attachment
		var err error
		switch {
		case len(msg.Photo) > 0:
			att, err = attachments.ProcessPhoto(ctx, dl, msg.Photo)
		case msg.Document != nil:
			att, err = attachments.ProcessDocument(ctx, dl, msg.Document)
		default:
			continue
		}
		if err != nil {
			var unsupported *attachments.UnsupportedAttachmentError
			if errors.As(err, &unsupported) {
				b.reply(ctx, chatID, unsupported.Error(), false)
				return
			}
			b.log.Error("Attachment processing failed", "user_id", userID, "error", err)
			b.reply(ctx, chatID, "Failed to process attachment. Please try again.", false)
			return
		}
		processed = append(processed, *att)
	}

	if len(processed) == 0 {
		b.reply(ctx, chatID, "No supported attachments found.", false)
		return
	}
	if caption == "" {
		caption = "Analyze this."
	}

	b.log.Info("Attachment query", "user_id", userID, "items", len(processed))
	b.executeQuery(ctx, chatID, userID, client.Query{Text: caption, Attachments: processed})
}

// executeQuery is the shared query pipeline: progress message, typing
// heartbeat, backend submission with one fresh-session retry, session and
// history bookkeeping, and response delivery.
func (b *Bot) executeQuery(ctx context.Context, chatID, userID int64, q client.Query) {
	st := b.stateFor(ctx, userID)
	b.sendTyping(ctx, chatID)

	pm := progress.NewManager(&messageEditor{tg: b.tg, chatID: chatID},
		b.settings.Progress.EditInterval, b.settings.Progress.RolloverThreshold)
	if err := pm.Start(ctx); err != nil {
		b.log.Warn("Failed to start progress message", "error", err)
	}
	stopTyping := b.startTypingHeartbeat(ctx, chatID)
	defer stopTyping()

	res, err := b.runQuery(ctx, userID, st, q, pm)
	pm.Finalize(ctx)
	if err != nil {
		b.log.Error("Query failed", "user_id", userID, "error", err)
		b.reply(ctx, chatID, "❌ "+EscapeHTML(truncateString(err.Error(), 200)), true)
		return
	}

	// Fresh-session intent is one-shot and survives failed attempts.
	b.mu.Lock()
	st.forceNew = false
	b.mu.Unlock()

	if res.ResponseText != "" {
		b.deliverResponse(ctx, chatID, res.ResponseText)
	}
}

// runQuery connects and submits, retrying once with a fresh session when a
// resume attempt fails.
func (b *Bot) runQuery(ctx context.Context, userID int64, st *userState,
	q client.Query, pm *progress.Manager) (*client.QueryResult, error) {

	directory, model, betas, forceNew := b.snapshot(st)
	params := client.ConnectParams{
		UserID:    userID,
		Directory: directory,
		Model:     model,
		Betas:     betas,
		ForceNew:  forceNew,
	}

	uc, err := b.manager.GetOrConnect(ctx, params)
	if err != nil && !params.ForceNew {
		b.log.Warn("Connect with resume failed, retrying with a fresh session",
			"user_id", userID, "error", err)
		params.ForceNew = true
		uc, err = b.manager.GetOrConnect(ctx, params)
	}
	if err != nil {
		return nil, fmt.Errorf("connect backend: %w", err)
	}

	previousSession := uc.SessionID()
	onStream := func(evt claudecode.StreamEvent) { pm.Update(ctx, evt) }

	res, err := uc.Submit(q.Blocks(), onStream)
	if err != nil && !params.ForceNew {
		b.log.Warn("Query on resumed session failed, retrying with a fresh session",
			"user_id", userID, "error", err)
		params.ForceNew = true
		retryClient, retryErr := b.manager.GetOrConnect(ctx, params)
		if retryErr != nil {
			return nil, err
		}
		previousSession = ""
		res, err = retryClient.Submit(q.Blocks(), onStream)
	}
	if err != nil {
		return nil, err
	}

	if res.SessionID != "" {
		b.manager.UpdateSessionID(ctx, userID, res.SessionID)
		if res.SessionID != previousSession {
			b.history.Append(res.SessionID, truncateString(q.Text, displayPreviewLen), params.Directory)
		}
	}
	return res, nil
}
