package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
)

// Checkpoint returns the end instant of the last fully published
// window. ok is false when no checkpoint has ever been committed.
func (s *Store) Checkpoint(ctx context.Context) (time.Time, bool, error) {
	var lastEnd int64
	err := s.db.QueryRowContext(ctx,
		`SELECT last_end_utc FROM iot_checkpoint ORDER BY ROWID DESC LIMIT 1`).Scan(&lastEnd)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return time.Time{}, false, nil
	case err != nil:
		return time.Time{}, false, errors.WithMessage(err, "failed to read checkpoint")
	case lastEnd == 0:
		return time.Time{}, false, nil
	}
	return time.Unix(lastEnd, 0).UTC(), true, nil
}

// CommitCheckpoint replaces the single checkpoint row with end. The
// delete and insert run in one transaction so a successful commit never
// leaves zero or multiple rows behind.
func (s *Store) CommitCheckpoint(ctx context.Context, end time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.WithMessage(err, "failed to begin checkpoint tx")
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM iot_checkpoint`); err != nil {
		_ = tx.Rollback()
		return errors.WithMessage(err, "failed to clear checkpoint")
	}
	if _, err = tx.ExecContext(ctx,
		`INSERT INTO iot_checkpoint (last_end_utc) VALUES (?)`, end.Unix()); err != nil {
		_ = tx.Rollback()
		return errors.WithMessage(err, "failed to write checkpoint")
	}
	return errors.WithMessage(tx.Commit(), "failed to commit checkpoint")
}
