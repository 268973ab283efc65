package repository

import (
	"context"
	"database/sql"
	"time"
)

// SnapshotRepo caches remote payloads by logical name for offline fallback.
type SnapshotRepo struct {
	db *sql.DB
}

func NewSnapshotRepo(db *sql.DB) *SnapshotRepo { return &SnapshotRepo{db: db} }

func (r *SnapshotRepo) Put(ctx context.Context, name string, payload []byte, fetchedAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO snapshots(name, payload, fetched_at) VALUES(?, ?, ?)
	ON CONFLICT(name) DO UPDATE SET payload = excluded.payload, fetched_at = excluded.fetched_at;
	`, name, string(payload), fetchedAt)
	return err
}

// Get returns the snapshot, or nil when the name has never been cached.
func (r *SnapshotRepo) Get(ctx context.Context, name string) (*Snapshot, error) {
	row := r.db.QueryRowContext(ctx, `SELECT name, payload, fetched_at FROM snapshots WHERE name = ?`, name)
	var s Snapshot
	var payload string
	if err := row.Scan(&s.Name, &payload, &s.FetchedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	s.Payload = []byte(payload)
	return &s, nil
}
