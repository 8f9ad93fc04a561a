package client

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/teleclaude/teleclaude/pkg/claudecode"
	"github.com/teleclaude/teleclaude/pkg/history"
	"github.com/teleclaude/teleclaude/pkg/storage"
)

// SessionStore is the persistence surface the manager needs. Implemented by
// storage.BotSessionRepository.
type SessionStore interface {
	Get(ctx context.Context, userID int64) (*storage.BotSession, error)
	Upsert(ctx context.Context, s *storage.BotSession) error
	Delete(ctx context.Context, userID int64) error
}

// SessionIndex is the history log surface the manager needs. Implemented by
// history.Index.
type SessionIndex interface {
	Latest(dir string) (history.Entry, bool)
	List(dir string, limit int) []history.Entry
}

// ManagerConfig wires the manager's collaborators.
type ManagerConfig struct {
	Store   SessionStore
	Index   SessionIndex
	Factory BackendFactory

	// Binary is the CLI executable passed through to backend options.
	Binary string

	// PermissionFor builds the per-directory permission callback.
	PermissionFor func(workDir string) claudecode.PermissionFunc

	// OnStderr receives backend stderr lines; nil logs at debug level.
	OnStderr func(line string)

	// IdleTimeout applies to every actor the manager creates.
	IdleTimeout time.Duration
}

// ConnectParams select or create a session for a user.
type ConnectParams struct {
	UserID    int64
	Directory string
	SessionID string // explicit resume target, highest priority
	Model     string
	Betas     []string
	ForceNew  bool
}

// Manager owns the user_id → UserClient registry. Exactly one client per
// user exists at any time; actors remove themselves through the on-exit
// callback when they terminate. Connect and disconnect paths are serialized
// per user, because update handlers and album-timer callbacks run on
// separate goroutines.
type Manager struct {
	cfg ManagerConfig
	log *slog.Logger

	mu        sync.Mutex
	clients   map[int64]*UserClient
	userLocks map[int64]*sync.Mutex
}

// NewManager creates an empty registry.
func NewManager(cfg ManagerConfig) *Manager {
	return &Manager{
		cfg:       cfg,
		log:       slog.With("component", "client_manager"),
		clients:   make(map[int64]*UserClient),
		userLocks: make(map[int64]*sync.Mutex),
	}
}

// userLock returns the mutex serializing connect/disconnect for one user.
// The registry mutex alone cannot span a connect, which blocks on the
// subprocess.
func (m *Manager) userLock(userID int64) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.userLocks[userID]
	if !ok {
		l = &sync.Mutex{}
		m.userLocks[userID] = l
	}
	return l
}

// GetOrConnect returns a connected client for the user, reusing the existing
// one when it is connected to the same directory and no fresh session was
// forced. Session resolution priority: explicit id, persisted row with a
// matching directory, then the newest history entry for the directory.
func (m *Manager) GetOrConnect(ctx context.Context, p ConnectParams) (*UserClient, error) {
	l := m.userLock(p.UserID)
	l.Lock()
	defer l.Unlock()
	return m.getOrConnect(ctx, p)
}

// getOrConnect does the resolve/start/store sequence; callers hold the
// user lock so two racing calls cannot both build a backend.
func (m *Manager) getOrConnect(ctx context.Context, p ConnectParams) (*UserClient, error) {
	m.mu.Lock()
	existing := m.clients[p.UserID]
	m.mu.Unlock()

	if existing != nil && existing.IsConnected() && existing.Directory() == p.Directory && !p.ForceNew {
		return existing, nil
	}
	if existing != nil {
		m.stopAndRemove(p.UserID, existing)
	}

	sessionID, model, betas := m.resolveSession(ctx, p)

	opts := claudecode.Options{
		Binary:          m.cfg.Binary,
		WorkDir:         p.Directory,
		ResumeSessionID: sessionID,
		Model:           model,
		Betas:           betas,
		OnStderr:        m.cfg.OnStderr,
	}
	if m.cfg.PermissionFor != nil {
		opts.CanUseTool = m.cfg.PermissionFor(p.Directory)
	}

	uc := NewUserClient(p.UserID, p.Directory, opts, m.cfg.IdleTimeout, m.cfg.Factory, m.removeOnExit)
	if err := uc.Start(ctx); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.clients[p.UserID] = uc
	m.mu.Unlock()

	if uc.SessionID() != "" {
		m.persist(ctx, uc)
	}
	return uc, nil
}

// SwitchSession stops the user's current client and connects with an
// explicit session id.
func (m *Manager) SwitchSession(ctx context.Context, p ConnectParams) (*UserClient, error) {
	l := m.userLock(p.UserID)
	l.Lock()
	defer l.Unlock()

	m.mu.Lock()
	existing := m.clients[p.UserID]
	m.mu.Unlock()
	if existing != nil {
		m.stopAndRemove(p.UserID, existing)
	}
	return m.getOrConnect(ctx, p)
}

// Get returns the user's client when one is registered.
func (m *Manager) Get(userID int64) (*UserClient, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	uc, ok := m.clients[userID]
	return uc, ok
}

// Interrupt forwards to the user's client; no-op when none exists.
func (m *Manager) Interrupt(userID int64) error {
	uc, ok := m.Get(userID)
	if !ok {
		return nil
	}
	return uc.Interrupt()
}

// SetModel updates the in-memory model and beta flags and persists them when
// a session id exists. Persistence errors are logged and swallowed.
func (m *Manager) SetModel(ctx context.Context, userID int64, model string, betas []string) {
	uc, ok := m.Get(userID)
	if !ok {
		return
	}
	uc.SetModel(model, betas)
	if uc.SessionID() != "" {
		m.persist(ctx, uc)
	}
}

// UpdateSessionID records a session id observed from a result event, in
// memory and persisted.
func (m *Manager) UpdateSessionID(ctx context.Context, userID int64, sessionID string) {
	uc, ok := m.Get(userID)
	if !ok {
		return
	}
	uc.SetSessionID(sessionID)
	m.persist(ctx, uc)
}

// GetLatestSession delegates to the session index.
func (m *Manager) GetLatestSession(dir string) (history.Entry, bool) {
	return m.cfg.Index.Latest(dir)
}

// ListSessions delegates to the session index.
func (m *Manager) ListSessions(dir string, limit int) []history.Entry {
	return m.cfg.Index.List(dir, limit)
}

// Disconnect stops and removes the user's client.
func (m *Manager) Disconnect(userID int64) {
	l := m.userLock(userID)
	l.Lock()
	defer l.Unlock()

	uc, ok := m.Get(userID)
	if !ok {
		return
	}
	m.stopAndRemove(userID, uc)
}

// DisconnectAll stops every client, for shutdown.
func (m *Manager) DisconnectAll() {
	m.mu.Lock()
	ids := make([]int64, 0, len(m.clients))
	for id := range m.clients {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		m.Disconnect(id)
	}
}

// ClientCount reports the registry size, for the ops API.
func (m *Manager) ClientCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.clients)
}

// resolveSession applies the resolution priority and inherits persisted
// model/betas when not overridden. A store read error drops the persisted
// hint rather than failing the connect.
func (m *Manager) resolveSession(ctx context.Context, p ConnectParams) (sessionID, model string, betas []string) {
	model = p.Model
	betas = p.Betas
	if p.ForceNew {
		return "", model, betas
	}
	if p.SessionID != "" {
		return p.SessionID, model, betas
	}

	if m.cfg.Store != nil {
		row, err := m.cfg.Store.Get(ctx, p.UserID)
		if err != nil {
			m.log.Warn("Failed to read persisted session, resolving from index",
				"user_id", p.UserID, "error", err)
		} else if row != nil && row.Directory == p.Directory {
			if model == "" {
				model = row.Model
			}
			if len(betas) == 0 {
				betas = row.Betas
			}
			return row.SessionID, model, betas
		}
	}

	if entry, ok := m.cfg.Index.Latest(p.Directory); ok {
		return entry.SessionID, model, betas
	}
	return "", model, betas
}

// persist upserts the user's BotSession row. Errors are logged and
// swallowed; persistence is advisory.
func (m *Manager) persist(ctx context.Context, uc *UserClient) {
	if m.cfg.Store == nil {
		return
	}
	err := m.cfg.Store.Upsert(ctx, &storage.BotSession{
		UserID:    uc.userID,
		SessionID: uc.SessionID(),
		Directory: uc.Directory(),
		Model:     uc.Model(),
		Betas:     uc.Betas(),
	})
	if err != nil {
		m.log.Warn("Failed to persist session", "user_id", uc.userID, "error", err)
	}
}

// stopAndRemove stops a client and clears its registry slot when it still
// points at that client.
func (m *Manager) stopAndRemove(userID int64, uc *UserClient) {
	_ = uc.Stop()
	m.mu.Lock()
	if m.clients[userID] == uc {
		delete(m.clients, userID)
	}
	m.mu.Unlock()
}

// removeOnExit is the actor's terminal callback: a point delete, never a
// cascade into persistence.
func (m *Manager) removeOnExit(userID int64) {
	m.mu.Lock()
	delete(m.clients, userID)
	m.mu.Unlock()
	m.log.Info("User client exited", "user_id", userID)
}
