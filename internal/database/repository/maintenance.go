package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/avlasov/farmmap/internal/database"
)

// MaintenanceRepo houses destructive whole-store actions surfaced
// through the TUI.
type MaintenanceRepo struct {
	db *sql.DB
}

func NewMaintenanceRepo(db *sql.DB) *MaintenanceRepo { return &MaintenanceRepo{db: db} }

// Reset wipes everything the app stores locally: the session, queued
// writes and cached snapshots go together or not at all. It keeps the
// schema intact so the app can continue running.
func (r *MaintenanceRepo) Reset(ctx context.Context) error {
	if err := database.WithTx(r.db, func(tx *sql.Tx) error {
		tables := []string{
			"pending_writes",
			"snapshots",
			"session",
		}
		for _, t := range tables {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+t); err != nil {
				return fmt.Errorf("reset table %s: %w", t, err)
			}
		}
		return nil
	}); err != nil {
		return err
	}
	_, _ = r.db.ExecContext(ctx, "VACUUM")
	return nil
}
