package bot

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	tg "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// typingInterval is the cadence of the typing-indicator heartbeat.
const typingInterval = 2 * time.Second

// maxDownloadSize caps attachment downloads at Telegram's bot file limit.
const maxDownloadSize = 20 << 20

// telegramDownloader fetches file bytes through the Bot API file endpoint.
type telegramDownloader struct {
	tg *tg.Bot
}

func (d *telegramDownloader) Download(ctx context.Context, fileID string) ([]byte, error) {
	file, err := d.tg.GetFile(ctx, &tg.GetFileParams{FileID: fileID})
	if err != nil {
		return nil, fmt.Errorf("get file %s: %w", fileID, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.tg.FileDownloadLink(file), nil)
	if err != nil {
		return nil, fmt.Errorf("build download request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download file %s: %w", fileID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download file %s: unexpected status %d", fileID, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadSize))
	if err != nil {
		return nil, fmt.Errorf("read file %s: %w", fileID, err)
	}
	return data, nil
}

// messageEditor adapts the Telegram transport to the progress manager's
// editor surface. Progress messages are plain text.
type messageEditor struct {
	tg     *tg.Bot
	chatID int64
}

func (e *messageEditor) SendMessage(ctx context.Context, text string) (int, error) {
	msg, err := e.tg.SendMessage(ctx, &tg.SendMessageParams{ChatID: e.chatID, Text: text})
	if err != nil {
		return 0, err
	}
	return msg.ID, nil
}

func (e *messageEditor) EditMessage(ctx context.Context, messageID int, text string) error {
	_, err := e.tg.EditMessageText(ctx, &tg.EditMessageTextParams{
		ChatID:    e.chatID,
		MessageID: messageID,
		Text:      text,
	})
	return err
}

// sendTyping issues one typing chat action, best-effort.
func (b *Bot) sendTyping(ctx context.Context, chatID int64) {
	_, err := b.tg.SendChatAction(ctx, &tg.SendChatActionParams{
		ChatID: chatID,
		Action: models.ChatActionTyping,
	})
	if err != nil {
		b.log.Debug("Typing action failed", "error", err)
	}
}

// startTypingHeartbeat keeps the typing indicator alive independently of
// stream events. The returned func stops the heartbeat.
func (b *Bot) startTypingHeartbeat(ctx context.Context, chatID int64) func() {
	ctx, cancel := context.WithCancel(ctx)
	go func() {
		ticker := time.NewTicker(typingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				b.sendTyping(ctx, chatID)
			}
		}
	}()
	return cancel
}

// reply sends one message to a chat, optionally as HTML.
func (b *Bot) reply(ctx context.Context, chatID int64, text string, html bool) {
	params := &tg.SendMessageParams{ChatID: chatID, Text: text}
	if html {
		params.ParseMode = models.ParseModeHTML
	}
	if _, err := b.tg.SendMessage(ctx, params); err != nil {
		b.log.Warn("Failed to send message", "chat_id", chatID, "error", err)
	}
}

// replyMarkup sends an HTML message with an inline keyboard.
func (b *Bot) replyMarkup(ctx context.Context, chatID int64, text string, markup models.ReplyMarkup) {
	_, err := b.tg.SendMessage(ctx, &tg.SendMessageParams{
		ChatID:      chatID,
		Text:        text,
		ParseMode:   models.ParseModeHTML,
		ReplyMarkup: markup,
	})
	if err != nil {
		b.log.Warn("Failed to send message with keyboard", "chat_id", chatID, "error", err)
	}
}

// editText edits a previously sent message as HTML, optionally replacing its
// keyboard.
func (b *Bot) editText(ctx context.Context, chatID int64, messageID int, text string, markup models.ReplyMarkup) {
	_, err := b.tg.EditMessageText(ctx, &tg.EditMessageTextParams{
		ChatID:      chatID,
		MessageID:   messageID,
		Text:        text,
		ParseMode:   models.ParseModeHTML,
		ReplyMarkup: markup,
	})
	if err != nil {
		b.log.Debug("Failed to edit message", "chat_id", chatID, "message_id", messageID, "error", err)
	}
}

// deliverResponse renders the final answer as Telegram HTML and sends it in
// limit-sized chunks. HTML failure falls back to plain text, then to a terse
// error notice.
func (b *Bot) deliverResponse(ctx context.Context, chatID int64, text string) {
	html := MarkdownToHTML(text)
	for _, part := range SplitMessage(html, maxMessageLen) {
		_, err := b.tg.SendMessage(ctx, &tg.SendMessageParams{
			ChatID:    chatID,
			Text:      part,
			ParseMode: models.ParseModeHTML,
		})
		if err == nil {
			continue
		}
		b.log.Warn("HTML send failed, retrying as plain text", "error", err)

		if _, plainErr := b.tg.SendMessage(ctx, &tg.SendMessageParams{ChatID: chatID, Text: part}); plainErr != nil {
			b.reply(ctx, chatID, fmt.Sprintf(
				"Failed to deliver response (Telegram error: %s). Please try again.",
				truncateString(plainErr.Error(), 150)), false)
		}
	}
}

// truncateString caps s at n runes; byte slicing could split a multi-byte
// rune and produce invalid UTF-8 in replies.
func truncateString(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
