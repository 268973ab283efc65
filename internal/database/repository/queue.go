package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// QueueRepo stores pending writes. Replay order is strictly FIFO by seq.
type QueueRepo struct {
	db *sql.DB
}

func NewQueueRepo(db *sql.DB) *QueueRepo { return &QueueRepo{db: db} }

// Enqueue appends a write durably and assigns its creation order.
func (r *QueueRepo) Enqueue(ctx context.Context, kind string, payload []byte, now time.Time) (PendingWrite, error) {
	w := PendingWrite{
		ID:        uuid.NewString(),
		Kind:      kind,
		Payload:   payload,
		CreatedAt: now,
	}
	res, err := r.db.ExecContext(ctx, `
	INSERT INTO pending_writes(id, kind, payload, retry_count, created_at)
	VALUES(?, ?, ?, 0, ?);
	`, w.ID, w.Kind, string(w.Payload), w.CreatedAt)
	if err != nil {
		return PendingWrite{}, err
	}
	w.Seq, err = res.LastInsertId()
	if err != nil {
		return PendingWrite{}, err
	}
	return w, nil
}

// ListPending returns all pending writes in enqueue order.
func (r *QueueRepo) ListPending(ctx context.Context) ([]PendingWrite, error) {
	rows, err := r.db.QueryContext(ctx, `
	SELECT seq, id, kind, payload, retry_count, created_at
	FROM pending_writes ORDER BY seq ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PendingWrite
	for rows.Next() {
		var w PendingWrite
		var payload string
		if err := rows.Scan(&w.Seq, &w.ID, &w.Kind, &payload, &w.RetryCount, &w.CreatedAt); err != nil {
			return nil, err
		}
		w.Payload = []byte(payload)
		out = append(out, w)
	}
	return out, rows.Err()
}

func (r *QueueRepo) Remove(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM pending_writes WHERE id = ?`, id)
	return err
}

func (r *QueueRepo) IncrementRetry(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE pending_writes SET retry_count = retry_count + 1 WHERE id = ?`, id)
	return err
}

// PurgeOlderThan removes entries created before cutoff and returns how many went.
func (r *QueueRepo) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM pending_writes WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// PurgeRetriesAbove removes entries whose retry count exceeds max.
func (r *QueueRepo) PurgeRetriesAbove(ctx context.Context, max int) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM pending_writes WHERE retry_count > ?`, max)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Count returns the number of pending writes.
func (r *QueueRepo) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pending_writes`).Scan(&n)
	return n, err
}
