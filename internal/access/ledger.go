// internal/access/ledger.go
package access

import (
	"context"
	"database/sql"
	"fmt"

	"lead-access-service/internal/common/logger"
	"lead-access-service/internal/keyqueue"

	"github.com/lib/pq"
)

// readChunkSize bounds the record-id array passed to a single lookup.
const readChunkSize = 5000

const createTableStmt = `
CREATE TABLE IF NOT EXISTS access_entries (
	user_id      TEXT        NOT NULL,
	record_id    BIGINT      NOT NULL,
	access_level SMALLINT    NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (user_id, record_id)
)`

// mergeUpsertStmt applies the upgrade rule inside the statement itself,
// so the write stays correct even if a caller bypasses the per-key
// queue. Mirrors Merge: EMAIL+PHONE combine, BOTH and FULL absorb.
const mergeUpsertStmt = `
INSERT INTO access_entries (user_id, record_id, access_level)
VALUES ($1, $2, $3)
ON CONFLICT (user_id, record_id) DO UPDATE SET
	access_level = CASE
		WHEN access_entries.access_level = 1 AND EXCLUDED.access_level = 2 THEN 3
		WHEN access_entries.access_level = 2 AND EXCLUDED.access_level = 1 THEN 3
		WHEN access_entries.access_level >= 3 THEN access_entries.access_level
		ELSE EXCLUDED.access_level
	END,
	updated_at = now()`

// mergeBatchUpsertStmt is the bulk form driven by a bigint array, one
// durable statement for the whole batch.
const mergeBatchUpsertStmt = `
INSERT INTO access_entries (user_id, record_id, access_level)
SELECT $1, unnest($2::bigint[]), $3
ON CONFLICT (user_id, record_id) DO UPDATE SET
	access_level = CASE
		WHEN access_entries.access_level = 1 AND EXCLUDED.access_level = 2 THEN 3
		WHEN access_entries.access_level = 2 AND EXCLUDED.access_level = 1 THEN 3
		WHEN access_entries.access_level >= 3 THEN access_entries.access_level
		ELSE EXCLUDED.access_level
	END,
	updated_at = now()`

// Ledger is the durable (user, record) -> access level table. Writes
// for one key are serialized through the queue; reads are not, which
// is safe because the merge rule is monotonic and idempotent.
type Ledger struct {
	db     *sql.DB
	queue  *keyqueue.Queue
	logger logger.Logger
}

func NewLedger(db *sql.DB, queue *keyqueue.Queue, log logger.Logger) *Ledger {
	return &Ledger{
		db:     db,
		queue:  queue,
		logger: log.WithFields(map[string]interface{}{"component": "access-ledger"}),
	}
}

// EnsureSchema creates the backing table when missing.
func (l *Ledger) EnsureSchema(ctx context.Context) error {
	if _, err := l.db.ExecContext(ctx, createTableStmt); err != nil {
		return fmt.Errorf("create access_entries: %w", err)
	}
	return nil
}

// Levels returns the stored access level for each requested record.
// Records with no entry are omitted; callers treat omission as NONE.
func (l *Ledger) Levels(ctx context.Context, userID string, recordIDs []int64) (map[int64]Level, error) {
	out := make(map[int64]Level, len(recordIDs))
	if len(recordIDs) == 0 {
		return out, nil
	}

	for start := 0; start < len(recordIDs); start += readChunkSize {
		end := start + readChunkSize
		if end > len(recordIDs) {
			end = len(recordIDs)
		}

		rows, err := l.db.QueryContext(ctx, `
			SELECT record_id, access_level
			FROM access_entries
			WHERE user_id = $1 AND record_id = ANY($2)`,
			userID, pq.Array(recordIDs[start:end]),
		)
		if err != nil {
			return nil, fmt.Errorf("query access levels: %w", err)
		}

		for rows.Next() {
			var recordID int64
			var level int
			if err := rows.Scan(&recordID, &level); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan access level: %w", err)
			}
			out[recordID] = Level(level)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, fmt.Errorf("iterate access levels: %w", err)
		}
		rows.Close()
	}

	return out, nil
}

// Upsert records an unlock for a single (user, record), serialized
// through the per-key queue so repeated requests for the same key
// apply in order.
func (l *Ledger) Upsert(ctx context.Context, userID string, recordID int64, requested Level) error {
	if !requested.Requestable() {
		return fmt.Errorf("access level %s is not requestable", requested)
	}

	key := fmt.Sprintf("%s:%d", userID, recordID)
	return l.queue.Do(key, func() error {
		if _, err := l.db.ExecContext(ctx, mergeUpsertStmt, userID, recordID, int(requested)); err != nil {
			l.logger.WithError(err).Error("access upsert failed", map[string]interface{}{
				"userId":   userID,
				"recordId": recordID,
				"level":    requested.String(),
			})
			return fmt.Errorf("upsert access entry: %w", err)
		}
		return nil
	})
}

// BatchUpsert applies the merge rule to every (userID, recordID) pair
// as one durable statement. Batches within a single request are
// disjoint per key in practice, so they skip the queue, but the merge
// expression still guards against interleaved writers.
func (l *Ledger) BatchUpsert(ctx context.Context, userID string, recordIDs []int64, requested Level) error {
	return l.batchUpsert(ctx, l.db, userID, recordIDs, requested)
}

// BatchUpsertTx is BatchUpsert inside a caller-owned transaction, so
// an unlock batch can commit its ledger writes and its balance debit
// together.
func (l *Ledger) BatchUpsertTx(ctx context.Context, tx *sql.Tx, userID string, recordIDs []int64, requested Level) error {
	return l.batchUpsert(ctx, tx, userID, recordIDs, requested)
}

// execer is the statement surface shared by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func (l *Ledger) batchUpsert(ctx context.Context, run execer, userID string, recordIDs []int64, requested Level) error {
	if !requested.Requestable() {
		return fmt.Errorf("access level %s is not requestable", requested)
	}
	if len(recordIDs) == 0 {
		return nil
	}

	if _, err := run.ExecContext(ctx, mergeBatchUpsertStmt, userID, pq.Array(recordIDs), int(requested)); err != nil {
		l.logger.WithError(err).Error("access batch upsert failed", map[string]interface{}{
			"userId":  userID,
			"records": len(recordIDs),
			"level":   requested.String(),
		})
		return fmt.Errorf("batch upsert access entries: %w", err)
	}
	return nil
}
