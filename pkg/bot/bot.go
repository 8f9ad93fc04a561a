// Package bot is the orchestrator: it routes Telegram updates to commands,
// callbacks, and the query pipeline, drives the live progress message, and
// keeps per-user working-directory and session state.
package bot

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	tg "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/teleclaude/teleclaude/pkg/attachments"
	"github.com/teleclaude/teleclaude/pkg/client"
	"github.com/teleclaude/teleclaude/pkg/config"
	"github.com/teleclaude/teleclaude/pkg/history"
	"github.com/teleclaude/teleclaude/pkg/skills"
	"github.com/teleclaude/teleclaude/pkg/storage"
)

// userState is the per-user conversational state kept between updates.
type userState struct {
	directory  string
	forceNew   bool
	model      string
	betas      []string
	browseRoot string
	browseRel  string
}

// Bot wires the Telegram transport to the session runtime.
type Bot struct {
	settings  *config.Settings
	tg        *tg.Bot
	manager   *client.Manager
	history   *history.Index
	skills    *skills.Resolver
	store     *storage.BotSessionRepository
	collector *attachments.Collector[*models.Update]
	log       *slog.Logger

	mu     sync.Mutex
	states map[int64]*userState

	// runCtx backs album-timer callbacks that fire outside any update.
	runCtx context.Context
}

// New builds the bot and its Telegram connection. The bot does not poll
// until Run is called.
func New(settings *config.Settings, manager *client.Manager, index *history.Index,
	resolver *skills.Resolver, store *storage.BotSessionRepository) (*Bot, error) {
	b := &Bot{
		settings: settings,
		manager:  manager,
		history:  index,
		skills:   resolver,
		store:    store,
		log:      slog.With("component", "bot"),
		states:   make(map[int64]*userState),
		runCtx:   context.Background(),
	}
	b.collector = attachments.NewCollector[*models.Update](settings.Media.AlbumWindow, b.onAlbumReady)

	tgBot, err := tg.New(settings.Telegram.Token,
		tg.WithDefaultHandler(b.handleUpdate),
		tg.WithMiddlewares(b.authMiddleware),
	)
	if err != nil {
		return nil, err
	}
	b.tg = tgBot
	return b, nil
}

// Run registers the command menu and polls for updates until ctx is
// cancelled.
func (b *Bot) Run(ctx context.Context) {
	b.mu.Lock()
	b.runCtx = ctx
	b.mu.Unlock()

	b.setCommandMenu(ctx)
	b.log.Info("Bot polling started")
	b.tg.Start(ctx)
	b.collector.Stop()
	b.log.Info("Bot polling stopped")
}

func (b *Bot) setCommandMenu(ctx context.Context) {
	_, err := b.tg.SetMyCommands(ctx, &tg.SetMyCommandsParams{
		Commands: []models.BotCommand{
			{Command: "start", Description: "Start the bot"},
			{Command: "new", Description: "Start a fresh session"},
			{Command: "stop", Description: "Interrupt the running query"},
			{Command: "status", Description: "Show session status"},
			{Command: "sessions", Description: "Choose a session to resume"},
			{Command: "repo", Description: "Browse and switch workspace"},
			{Command: "model", Description: "Switch model"},
			{Command: "skills", Description: "Browse available skills"},
			{Command: "help", Description: "Show available commands"},
		},
	})
	if err != nil {
		b.log.Warn("Failed to register command menu", "error", err)
	}
}

// authMiddleware drops updates from users outside the allow-list. An empty
// list allows everyone.
func (b *Bot) authMiddleware(next tg.HandlerFunc) tg.HandlerFunc {
	return func(ctx context.Context, tgBot *tg.Bot, update *models.Update) {
		userID := senderID(update)
		if !b.allowed(userID) {
			b.log.Warn("Update from unauthorized user dropped", "user_id", userID)
			return
		}
		next(ctx, tgBot, update)
	}
}

func (b *Bot) allowed(userID int64) bool {
	if len(b.settings.Telegram.AllowedUserIDs) == 0 {
		return true
	}
	for _, id := range b.settings.Telegram.AllowedUserIDs {
		if id == userID {
			return true
		}
	}
	return false
}

func senderID(update *models.Update) int64 {
	switch {
	case update.Message != nil && update.Message.From != nil:
		return update.Message.From.ID
	case update.CallbackQuery != nil:
		return update.CallbackQuery.From.ID
	default:
		return 0
	}
}

// handleUpdate is the single entry point for every authorized update.
func (b *Bot) handleUpdate(ctx context.Context, _ *tg.Bot, update *models.Update) {
	if update.CallbackQuery != nil {
		b.handleCallback(ctx, update.CallbackQuery)
		return
	}
	msg := update.Message
	if msg == nil || msg.From == nil {
		return
	}

	if len(msg.Photo) > 0 || msg.Document != nil {
		b.handleAttachment(ctx, update)
		return
	}

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}
	if strings.HasPrefix(text, "/") {
		b.handleCommand(ctx, msg, text)
		return
	}
	b.handleText(ctx, msg, text)
}

// handleCommand dispatches registered commands; anything else is a skill
// invocation attempt.
func (b *Bot) handleCommand(ctx context.Context, msg *models.Message, text string) {
	name, args, _ := strings.Cut(strings.TrimPrefix(text, "/"), " ")
	// Group chats append @botname to commands.
	if i := strings.Index(name, "@"); i >= 0 {
		name = name[:i]
	}
	args = strings.TrimSpace(args)

	switch name {
	case "start":
		b.cmdStart(ctx, msg)
	case "help":
		b.cmdHelp(ctx, msg)
	case "new":
		b.cmdNew(ctx, msg)
	case "stop":
		b.cmdStop(ctx, msg)
	case "status":
		b.cmdStatus(ctx, msg)
	case "sessions":
		b.cmdSessions(ctx, msg)
	case "repo":
		b.cmdRepo(ctx, msg, args)
	case "model":
		b.cmdModel(ctx, msg)
	case "skills":
		b.cmdSkills(ctx, msg)
	default:
		b.invokeSkill(ctx, msg.Chat.ID, msg.From.ID, name, args)
	}
}

// stateFor returns the user's conversational state, restoring the working
// directory and model from the persisted session row on cold start.
func (b *Bot) stateFor(ctx context.Context, userID int64) *userState {
	b.mu.Lock()
	if st, ok := b.states[userID]; ok {
		b.mu.Unlock()
		return st
	}
	b.mu.Unlock()

	st := &userState{
		directory: b.settings.Claude.DefaultDirectory,
		model:     b.settings.Claude.Model,
	}
	if b.store != nil {
		if row, err := b.store.Get(ctx, userID); err == nil && row != nil {
			if b.withinApprovedRoots(row.Directory) {
				st.directory = row.Directory
			}
			if row.Model != "" {
				st.model = row.Model
			}
			st.betas = row.Betas
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if existing, ok := b.states[userID]; ok {
		return existing
	}
	b.states[userID] = st
	return st
}

func (b *Bot) withinApprovedRoots(dir string) bool {
	if dir == "" {
		return false
	}
	for _, root := range b.settings.Claude.ApprovedRoots {
		if isUnderDir(dir, root) {
			return true
		}
	}
	return false
}

// snapshot copies the fields executeQuery needs under the lock.
func (b *Bot) snapshot(st *userState) (directory, model string, betas []string, forceNew bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return st.directory, st.model, st.betas, st.forceNew
}
