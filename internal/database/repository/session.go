package repository

import (
	"context"
	"database/sql"
)

// SessionRepo persists the single local session row so access state
// survives restarts.
type SessionRepo struct {
	db *sql.DB
}

func NewSessionRepo(db *sql.DB) *SessionRepo { return &SessionRepo{db: db} }

// Load returns the persisted session, or nil when none exists.
func (r *SessionRepo) Load(ctx context.Context) (*Session, error) {
	row := r.db.QueryRowContext(ctx, `SELECT identity, source, contributions, joined_at FROM session WHERE id = 1`)
	var s Session
	if err := row.Scan(&s.Identity, &s.Source, &s.Contributions, &s.JoinedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

// Save upserts the session row.
func (r *SessionRepo) Save(ctx context.Context, s Session) error {
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO session(id, identity, source, contributions, joined_at)
	VALUES(1, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
	 identity = excluded.identity,
	 source = excluded.source,
	 contributions = excluded.contributions,
	 joined_at = excluded.joined_at;
	`, s.Identity, s.Source, s.Contributions, s.JoinedAt)
	return err
}

// AddContribution bumps the contribution counter. The counter never
// decreases outside Clear.
func (r *SessionRepo) AddContribution(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `UPDATE session SET contributions = contributions + 1 WHERE id = 1`)
	return err
}

// Clear deletes the session row (explicit account deletion only).
func (r *SessionRepo) Clear(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM session WHERE id = 1`)
	return err
}
