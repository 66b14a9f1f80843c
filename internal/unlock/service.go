// internal/unlock/service.go
package unlock

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"lead-access-service/internal/access"
	errs "lead-access-service/internal/common/errors"
	"lead-access-service/internal/common/logger"
	"lead-access-service/internal/common/metrics"
	"lead-access-service/internal/credits"
	"lead-access-service/internal/people"
)

// NilValue is the sentinel returned for a requested field the dataset
// holds no value for.
const NilValue = "NIL"

// RecordResult is the per-record outcome of an unlock batch. Only the
// requested fields are populated; a requested field with no data
// carries the NIL sentinel.
type RecordResult struct {
	RecordID int64  `json:"recordId"`
	Email    string `json:"email,omitempty"`
	Phone    string `json:"phone,omitempty"`
}

// Result is the caller-facing outcome of one unlock batch.
type Result struct {
	Records          []RecordResult `json:"records"`
	CreditsCharged   int64          `json:"creditsCharged"`
	RemainingCredits int64          `json:"remainingCredits"`
}

// Service prices unlock batches against the ledger and commits the
// balance debit and the ledger upgrades in one transaction.
type Service struct {
	db      *sql.DB
	ledger  *access.Ledger
	credits *credits.Engine
	people  *people.Store
	costs   CostTable
	logger  logger.Logger
}

func NewService(db *sql.DB, ledger *access.Ledger, engine *credits.Engine, store *people.Store, costs CostTable, log logger.Logger) *Service {
	return &Service{
		db:      db,
		ledger:  ledger,
		credits: engine,
		people:  store,
		costs:   costs,
		logger:  log.WithFields(map[string]interface{}{"component": "unlock-service"}),
	}
}

// Unlock grants the requested visibility on every record in the batch,
// charging only for transitions the user has not already paid for.
// Records whose requested fields are all empty are exempt from cost.
// The batch is rejected whole when the balance cannot cover it.
func (s *Service) Unlock(ctx context.Context, userID string, recordIDs []int64, requested access.Level) (*Result, error) {
	start := time.Now()
	res, err := s.unlock(ctx, userID, recordIDs, requested)
	metrics.UnlockDuration.WithLabelValues(requested.String()).Observe(time.Since(start).Seconds())
	if err != nil {
		code := "STORAGE_FAILURE"
		var se *errs.StandardError
		if errors.As(err, &se) {
			code = string(se.Code)
		}
		metrics.UnlocksFailed.WithLabelValues(requested.String(), code).Inc()
		return nil, err
	}
	metrics.UnlocksCompleted.WithLabelValues(requested.String()).Inc()
	metrics.CreditsCharged.WithLabelValues(requested.String()).Add(float64(res.CreditsCharged))
	return res, nil
}

func (s *Service) unlock(ctx context.Context, userID string, recordIDs []int64, requested access.Level) (*Result, error) {
	if !requested.Requestable() {
		return nil, errs.NewInvalidUnlockTypeError(requested.String())
	}

	// Duplicate ids in one batch would double-price a single
	// transition and collide inside the bulk upsert.
	recordIDs = dedupe(recordIDs)

	// Step 1: balance precheck. A user with no account has nothing to
	// spend.
	acc, err := s.credits.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, errs.ErrAccountNotFound) {
			return nil, errs.NewInsufficientCreditsError(0, 0)
		}
		return nil, err
	}
	if acc.Credits <= 0 {
		return nil, errs.NewInsufficientCreditsError(acc.Credits, 0)
	}

	// Step 2: resolve the underlying contact fields.
	contacts, err := s.people.ContactsFor(ctx, recordIDs)
	if err != nil {
		return nil, errs.NewStorageFailureError("unlock.contacts", err)
	}

	// Read path bypasses the per-key queue; the merge rule keeps a
	// concurrently upgraded level safe to price against.
	levels, err := s.ledger.Levels(ctx, userID, recordIDs)
	if err != nil {
		return nil, errs.NewStorageFailureError("unlock.levels", err)
	}

	// Step 3: price each record. Records resolving to no data are
	// exempt from cost and from ledger writes.
	results := make([]RecordResult, 0, len(recordIDs))
	var validIDs []int64
	var totalCost int64

	for _, id := range recordIDs {
		contact, found := contacts[id]
		results = append(results, buildRecordResult(id, contact, requested))

		if !found || invalidFor(contact, requested) {
			continue
		}

		totalCost += s.costs.Cost(levels[id], requested)
		validIDs = append(validIDs, id)
	}

	// Step 4/5: all-or-nothing commit. A zero-cost batch is a free
	// replay; its ledger writes are idempotent under the merge rule.
	remaining := acc.Credits
	if len(validIDs) > 0 {
		if totalCost > acc.Credits {
			return nil, errs.NewInsufficientCreditsError(acc.Credits, totalCost)
		}
		remaining, err = s.commit(ctx, userID, validIDs, requested, totalCost)
		if err != nil {
			return nil, err
		}
	}

	s.logger.Info("unlock batch committed", map[string]interface{}{
		"userId":    userID,
		"records":   len(recordIDs),
		"valid":     len(validIDs),
		"type":      requested.String(),
		"cost":      totalCost,
		"remaining": remaining,
	})

	return &Result{
		Records:          results,
		CreditsCharged:   totalCost,
		RemainingCredits: remaining,
	}, nil
}

// commit debits the balance and writes the ledger upgrades in one
// transaction, so a crash or guard rejection never leaves a partial
// charge.
func (s *Service) commit(ctx context.Context, userID string, recordIDs []int64, requested access.Level, totalCost int64) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errs.NewStorageFailureError("unlock.begin", err)
	}
	defer tx.Rollback()

	remaining := int64(0)
	if totalCost > 0 {
		remaining, err = s.credits.DebitTx(ctx, tx, userID, totalCost)
		if err != nil {
			return 0, err
		}
	} else {
		acc, err := s.credits.Get(ctx, userID)
		if err != nil {
			return 0, err
		}
		remaining = acc.Credits
	}

	if err := s.ledger.BatchUpsertTx(ctx, tx, userID, recordIDs, requested); err != nil {
		return 0, errs.NewStorageFailureError("unlock.batchUpsert", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, errs.NewStorageFailureError("unlock.commit", err)
	}
	return remaining, nil
}

// buildRecordResult fills the requested fields, substituting the NIL
// sentinel where the dataset is empty.
func buildRecordResult(id int64, contact people.Contact, requested access.Level) RecordResult {
	r := RecordResult{RecordID: id}
	if requested.HasEmail() {
		r.Email = contact.Email
		if r.Email == "" {
			r.Email = NilValue
		}
	}
	if requested.HasPhone() {
		r.Phone = contact.Phone
		if r.Phone == "" {
			r.Phone = NilValue
		}
	}
	return r
}

// invalidFor reports whether the record has no data for the request.
// For BOTH the record counts as invalid only when both fields are
// empty; a half-empty record still prices the full transition.
func invalidFor(contact people.Contact, requested access.Level) bool {
	switch requested {
	case access.LevelEmail:
		return contact.Email == ""
	case access.LevelPhone:
		return contact.Phone == ""
	case access.LevelBoth:
		return contact.Email == "" && contact.Phone == ""
	default:
		return true
	}
}

func dedupe(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := ids[:0:0]
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
