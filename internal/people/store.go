// internal/people/store.go
package people

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"lead-access-service/internal/common/logger"

	"github.com/lib/pq"
	"github.com/redis/go-redis/v9"
)

// Contact carries the unlockable fields of one dataset record. Empty
// strings mean the dataset holds no value for that field.
type Contact struct {
	RecordID int64  `json:"recordId"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
}

// Store resolves contact fields for record ids. Contact rows are
// immutable in the dataset, so resolved rows are cached in redis.
type Store struct {
	db       *sql.DB
	redis    *redis.Client
	cacheTTL time.Duration
	logger   logger.Logger
}

func NewStore(db *sql.DB, rdb *redis.Client, cacheTTL time.Duration, log logger.Logger) *Store {
	return &Store{
		db:       db,
		redis:    rdb,
		cacheTTL: cacheTTL,
		logger:   log.WithFields(map[string]interface{}{"component": "people-store"}),
	}
}

// ContactsFor returns the email/phone values for each record id that
// exists in the dataset. Missing records are omitted from the result.
func (s *Store) ContactsFor(ctx context.Context, recordIDs []int64) (map[int64]Contact, error) {
	out := make(map[int64]Contact, len(recordIDs))
	if len(recordIDs) == 0 {
		return out, nil
	}

	misses := recordIDs
	if s.redis != nil {
		misses = s.fromCache(ctx, recordIDs, out)
	}
	if len(misses) == 0 {
		return out, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT record_id, COALESCE(email, ''), COALESCE(phone, '')
		FROM people
		WHERE record_id = ANY($1)`,
		pq.Array(misses),
	)
	if err != nil {
		return nil, fmt.Errorf("query people: %w", err)
	}
	defer rows.Close()

	var fetched []Contact
	for rows.Next() {
		var c Contact
		if err := rows.Scan(&c.RecordID, &c.Email, &c.Phone); err != nil {
			return nil, fmt.Errorf("scan person: %w", err)
		}
		out[c.RecordID] = c
		fetched = append(fetched, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate people: %w", err)
	}

	if s.redis != nil && len(fetched) > 0 {
		s.fillCache(ctx, fetched)
	}

	return out, nil
}

func cacheKey(recordID int64) string {
	return fmt.Sprintf("contact:%d", recordID)
}

// fromCache populates out from redis and returns the ids it could not
// serve. Cache errors degrade to a dataset read, never a failure.
func (s *Store) fromCache(ctx context.Context, recordIDs []int64, out map[int64]Contact) []int64 {
	keys := make([]string, len(recordIDs))
	for i, id := range recordIDs {
		keys[i] = cacheKey(id)
	}

	vals, err := s.redis.MGet(ctx, keys...).Result()
	if err != nil {
		s.logger.WithError(err).Warn("contact cache read failed", nil)
		return recordIDs
	}

	var misses []int64
	for i, v := range vals {
		str, ok := v.(string)
		if !ok {
			misses = append(misses, recordIDs[i])
			continue
		}
		var c Contact
		if err := json.Unmarshal([]byte(str), &c); err != nil {
			misses = append(misses, recordIDs[i])
			continue
		}
		out[recordIDs[i]] = c
	}
	return misses
}

func (s *Store) fillCache(ctx context.Context, contacts []Contact) {
	pipe := s.redis.Pipeline()
	for _, c := range contacts {
		data, err := json.Marshal(c)
		if err != nil {
			continue
		}
		pipe.Set(ctx, cacheKey(c.RecordID), data, s.cacheTTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.WithError(err).Warn("contact cache write failed", nil)
	}
}
