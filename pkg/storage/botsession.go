package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// BotSession is the persisted per-user session state: exactly one row per
// user id.
type BotSession struct {
	UserID     int64
	SessionID  string
	Directory  string
	Model      string
	Betas      []string
	LastActive time.Time
}

// BotSessionRepository persists BotSession rows.
type BotSessionRepository struct {
	db *sql.DB
}

// NewBotSessionRepository creates a repository over the given client.
func NewBotSessionRepository(client *Client) *BotSessionRepository {
	return &BotSessionRepository{db: client.DB()}
}

// Upsert inserts or replaces the user's row, refreshing last_active.
func (r *BotSessionRepository) Upsert(ctx context.Context, s *BotSession) error {
	betas, err := json.Marshal(s.Betas)
	if err != nil {
		return fmt.Errorf("marshal betas: %w", err)
	}
	if s.Betas == nil {
		betas = []byte("[]")
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO bot_sessions (user_id, session_id, directory, model, betas, last_active)
		VALUES (?, ?, ?, ?, ?, ?)`,
		s.UserID, s.SessionID, s.Directory, s.Model, string(betas), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("upsert bot session: %w", err)
	}
	return nil
}

// Get returns the user's row, or (nil, nil) when none exists.
func (r *BotSessionRepository) Get(ctx context.Context, userID int64) (*BotSession, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT user_id, session_id, directory, model, betas, last_active
		FROM bot_sessions WHERE user_id = ?`, userID)

	var s BotSession
	var betas string
	err := row.Scan(&s.UserID, &s.SessionID, &s.Directory, &s.Model, &betas, &s.LastActive)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get bot session: %w", err)
	}

	if err := json.Unmarshal([]byte(betas), &s.Betas); err != nil {
		// A corrupt betas column should not make the whole row unusable.
		s.Betas = nil
	}
	return &s, nil
}

// Delete removes the user's row if present.
func (r *BotSessionRepository) Delete(ctx context.Context, userID int64) error {
	if _, err := r.db.ExecContext(ctx,
		`DELETE FROM bot_sessions WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("delete bot session: %w", err)
	}
	return nil
}

// CleanupExpired removes rows whose last_active is older than maxAge and
// returns the number removed.
func (r *BotSessionRepository) CleanupExpired(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-maxAge)
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM bot_sessions WHERE last_active < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup expired bot sessions: %w", err)
	}
	return res.RowsAffected()
}

// Count returns the number of persisted rows, for the ops API.
func (r *BotSessionRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM bot_sessions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count bot sessions: %w", err)
	}
	return n, nil
}
