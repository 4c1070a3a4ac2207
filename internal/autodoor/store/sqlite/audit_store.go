package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/BrandonDHaskell/autodoor/internal/autodoor/store"
	"github.com/BrandonDHaskell/autodoor/internal/autodoor/types"
	dbpkg "github.com/BrandonDHaskell/autodoor/internal/db"
)

// AuditStore is the durable broadcast audit log.
type AuditStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewAuditStore(db *sql.DB, writer *dbpkg.Worker) *AuditStore {
	return &AuditStore{db: db, writer: writer}
}

func (s *AuditStore) RecordEvent(ctx context.Context, ev types.AuditEvent) error {
	publishedMs := toMs(ev.PublishedAt)

	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
INSERT INTO event_audit(event, payload, published_at_ms)
VALUES (?, ?, ?);
`, ev.Event, string(ev.Payload), publishedMs)
		return err
	})
	return store.Transient("RecordEvent", err)
}

// PruneOlderThan deletes audit rows published before cutoff and returns the
// number of rows removed. Uses idx_event_audit_time for the range scan.
func (s *AuditStore) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	cutoffMs := cutoff.UTC().UnixMilli()

	var deleted int64
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
DELETE FROM event_audit
WHERE published_at_ms < ?;
`, cutoffMs)
		if err != nil {
			return err
		}
		deleted, _ = res.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, store.Transient("PruneOlderThan", err)
	}
	return deleted, nil
}
