// internal/credits/engine.go
package credits

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"lead-access-service/internal/common/config"
	errs "lead-access-service/internal/common/errors"
	"lead-access-service/internal/common/logger"
	"lead-access-service/internal/common/metrics"
	"lead-access-service/internal/keyqueue"

	"github.com/google/uuid"
)

const createTablesStmt = `
CREATE TABLE IF NOT EXISTS credit_accounts (
	user_id                TEXT        PRIMARY KEY,
	credits                BIGINT      NOT NULL,
	active_plan            TEXT        NOT NULL DEFAULT 'FREE',
	expires_at             TIMESTAMPTZ,
	starter_remaining_days INT         NOT NULL DEFAULT 0,
	pro_remaining_days     INT         NOT NULL DEFAULT 0,
	last_updated           TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS plan_purchases (
	id            UUID        PRIMARY KEY,
	user_id       TEXT        NOT NULL,
	plan          TEXT        NOT NULL,
	credits_added BIGINT      NOT NULL,
	duration_days INT         NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
)`

const selectAccountStmt = `
SELECT user_id, credits, active_plan, expires_at,
       starter_remaining_days, pro_remaining_days, last_updated
FROM credit_accounts
WHERE user_id = $1`

// Account is a snapshot of one user's credit balance and plan state.
type Account struct {
	UserID               string     `json:"userId"`
	Credits              int64      `json:"credits"`
	ActivePlan           Plan       `json:"activePlan"`
	ExpiresAt            *time.Time `json:"expiresAt"`
	StarterRemainingDays int        `json:"starterRemainingDays"`
	ProRemainingDays     int        `json:"proRemainingDays"`
	LastUpdated          time.Time  `json:"lastUpdated"`
}

// PlanPurchase drives one account mutation; it is not persisted beyond
// its receipt row.
type PlanPurchase struct {
	UserID       string `json:"userId"`
	Plan         Plan   `json:"plan"`
	CreditsToAdd int64  `json:"creditsToAdd"`
	DurationDays int    `json:"durationDays"`
}

// Engine owns credit balances, active plans, and banked days. All
// read-modify-write mutations for one user run through the per-user
// queue and a row lock, so concurrent purchases and debits cannot lose
// updates.
type Engine struct {
	db     *sql.DB
	queue  *keyqueue.Queue
	cfg    config.CreditsConfig
	logger logger.Logger
	now    func() time.Time
}

func NewEngine(db *sql.DB, queue *keyqueue.Queue, cfg config.CreditsConfig, log logger.Logger) *Engine {
	return &Engine{
		db:     db,
		queue:  queue,
		cfg:    cfg,
		logger: log.WithFields(map[string]interface{}{"component": "credit-engine"}),
		now:    time.Now,
	}
}

// EnsureSchema creates the backing tables when missing.
func (e *Engine) EnsureSchema(ctx context.Context) error {
	if _, err := e.db.ExecContext(ctx, createTablesStmt); err != nil {
		return fmt.Errorf("create credit tables: %w", err)
	}
	return nil
}

// Get returns the account snapshot, or ErrAccountNotFound.
func (e *Engine) Get(ctx context.Context, userID string) (*Account, error) {
	return scanAccount(e.db.QueryRowContext(ctx, selectAccountStmt, userID), userID)
}

// EnsureAccount creates the account on first contact. The starting
// balance depends on the caller's email domain; existing accounts are
// left untouched.
func (e *Engine) EnsureAccount(ctx context.Context, userID, email string) (*Account, error) {
	grant := DefaultCredits(email, e.cfg.DefaultFreeMail, e.cfg.DefaultWorkMail)
	_, err := e.db.ExecContext(ctx, `
		INSERT INTO credit_accounts (user_id, credits, active_plan, last_updated)
		VALUES ($1, $2, 'FREE', now())
		ON CONFLICT (user_id) DO NOTHING`,
		userID, grant,
	)
	if err != nil {
		return nil, errs.NewStorageFailureError("credits.ensure", err)
	}
	return e.Get(ctx, userID)
}

// Balance returns the account snapshot, creating it when absent and
// running the lazy expiry rollover when a paid plan has lapsed.
func (e *Engine) Balance(ctx context.Context, userID, email string) (*Account, error) {
	acc, err := e.EnsureAccount(ctx, userID, email)
	if err != nil {
		return nil, err
	}

	if acc.ActivePlan.Paid() && acc.ExpiresAt != nil && !e.now().Before(*acc.ExpiresAt) {
		return e.CheckExpiry(ctx, userID)
	}
	return acc, nil
}

// Debit subtracts amount from the balance as one conditional atomic
// decrement. It returns the remaining balance, or
// ErrInsufficientCredits with no mutation when the balance cannot
// cover the amount.
func (e *Engine) Debit(ctx context.Context, userID string, amount int64) (int64, error) {
	return e.debit(ctx, e.db, userID, amount)
}

// DebitTx is Debit inside a caller-owned transaction.
func (e *Engine) DebitTx(ctx context.Context, tx *sql.Tx, userID string, amount int64) (int64, error) {
	return e.debit(ctx, tx, userID, amount)
}

// rowQueryer is the query surface shared by *sql.DB and *sql.Tx.
type rowQueryer interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func (e *Engine) debit(ctx context.Context, run rowQueryer, userID string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("debit amount must be positive, got %d", amount)
	}

	var remaining int64
	err := run.QueryRowContext(ctx, `
		UPDATE credit_accounts
		SET credits = credits - $2, last_updated = now()
		WHERE user_id = $1 AND credits >= $2
		RETURNING credits`,
		userID, amount,
	).Scan(&remaining)
	if errors.Is(err, sql.ErrNoRows) {
		// Either no account or the guard rejected the decrement.
		acc, getErr := scanAccount(run.QueryRowContext(ctx, selectAccountStmt, userID), userID)
		if getErr != nil {
			return 0, getErr
		}
		return acc.Credits, errs.NewInsufficientCreditsError(acc.Credits, amount)
	}
	if err != nil {
		return 0, errs.NewStorageFailureError("credits.debit", err)
	}
	return remaining, nil
}

// AddCredits applies a CUSTOM top-up. Plan, expiry, and banked days
// are never touched.
func (e *Engine) AddCredits(ctx context.Context, userID string, amount int64) (int64, error) {
	var balance int64
	err := e.db.QueryRowContext(ctx, `
		UPDATE credit_accounts
		SET credits = credits + $2, last_updated = now()
		WHERE user_id = $1
		RETURNING credits`,
		userID, amount,
	).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, errs.NewAccountNotFoundError(userID)
	}
	if err != nil {
		return 0, errs.NewStorageFailureError("credits.add", err)
	}
	return balance, nil
}

// Purchase applies a plan purchase: credits always accumulate, then
// the tier transition runs. A lower tier bought under a higher one is
// banked as remaining days, never applied mid-term; the same tier
// extends; a higher tier banks the lower tier's remaining days and
// takes over. Zero CreditsToAdd/DurationDays are filled from the plan
// catalog.
func (e *Engine) Purchase(ctx context.Context, p PlanPurchase) (*Account, error) {
	if !p.Plan.Purchasable() {
		return nil, errs.NewInvalidPlanError(string(p.Plan))
	}
	if catalog, ok := e.cfg.Plans[string(p.Plan)]; ok {
		if p.CreditsToAdd == 0 {
			p.CreditsToAdd = catalog.Credits
		}
		if p.DurationDays == 0 {
			p.DurationDays = catalog.DurationDays
		}
	}
	if p.DurationDays <= 0 {
		return nil, errs.NewInvalidPlanError(fmt.Sprintf("%s: non-positive duration", p.Plan))
	}

	var out *Account
	err := e.queue.Do(p.UserID, func() error {
		return e.withAccountLock(ctx, p.UserID, func(acc *Account) error {
			now := e.now()
			acc.Credits += p.CreditsToAdd
			applyPurchase(acc, p.Plan, p.DurationDays, now)
			out = acc
			return nil
		}, func(tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO plan_purchases (id, user_id, plan, credits_added, duration_days)
				VALUES ($1, $2, $3, $4, $5)`,
				uuid.NewString(), p.UserID, string(p.Plan), p.CreditsToAdd, p.DurationDays,
			)
			return err
		})
	})
	if err != nil {
		return nil, err
	}

	metrics.PlanPurchases.WithLabelValues(string(p.Plan)).Inc()
	e.logger.Info("plan purchase applied", map[string]interface{}{
		"userId":       p.UserID,
		"plan":         string(p.Plan),
		"creditsAdded": p.CreditsToAdd,
		"durationDays": p.DurationDays,
	})
	return out, nil
}

// CheckExpiry rolls a lapsed paid plan over to its highest banked
// tier: PRO bank first, then STARTER bank, otherwise FREE. Accounts
// whose expiry has not passed are returned unchanged.
func (e *Engine) CheckExpiry(ctx context.Context, userID string) (*Account, error) {
	var out *Account
	rolled := false
	err := e.queue.Do(userID, func() error {
		return e.withAccountLock(ctx, userID, func(acc *Account) error {
			now := e.now()
			if acc.ExpiresAt == nil || now.Before(*acc.ExpiresAt) {
				out = acc
				return errSkipUpdate
			}
			rolled = true

			switch {
			case acc.ProRemainingDays > 0:
				acc.ActivePlan = PlanPro
				exp := now.AddDate(0, 0, acc.ProRemainingDays)
				acc.ExpiresAt = &exp
				acc.ProRemainingDays = 0
			case acc.StarterRemainingDays > 0:
				acc.ActivePlan = PlanStarter
				exp := now.AddDate(0, 0, acc.StarterRemainingDays)
				acc.ExpiresAt = &exp
				acc.StarterRemainingDays = 0
			default:
				acc.ActivePlan = PlanFree
				acc.ExpiresAt = nil
			}
			out = acc
			return nil
		}, nil)
	})
	if err != nil {
		return nil, err
	}

	if rolled {
		metrics.PlanExpiryRollovers.WithLabelValues(string(out.ActivePlan)).Inc()
	}
	return out, nil
}

// errSkipUpdate aborts withAccountLock's write while still committing
// the (read-only) transaction.
var errSkipUpdate = errors.New("skip update")

// withAccountLock runs mutate on the row under SELECT ... FOR UPDATE
// and writes the result back. extra, when set, runs in the same
// transaction after the update.
func (e *Engine) withAccountLock(ctx context.Context, userID string, mutate func(*Account) error, extra func(*sql.Tx) error) error {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return errs.NewStorageFailureError("credits.begin", err)
	}
	defer tx.Rollback()

	acc, err := scanAccount(tx.QueryRowContext(ctx, selectAccountStmt+" FOR UPDATE", userID), userID)
	if err != nil {
		return err
	}

	if err := mutate(acc); err != nil {
		if errors.Is(err, errSkipUpdate) {
			return tx.Commit()
		}
		return err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE credit_accounts
		SET credits = $2, active_plan = $3, expires_at = $4,
		    starter_remaining_days = $5, pro_remaining_days = $6,
		    last_updated = now()
		WHERE user_id = $1`,
		acc.UserID, acc.Credits, string(acc.ActivePlan), acc.ExpiresAt,
		acc.StarterRemainingDays, acc.ProRemainingDays,
	)
	if err != nil {
		return errs.NewStorageFailureError("credits.update", err)
	}

	if extra != nil {
		if err := extra(tx); err != nil {
			return errs.NewStorageFailureError("credits.receipt", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errs.NewStorageFailureError("credits.commit", err)
	}
	return nil
}

// applyPurchase runs the tier transition. Tier order is
// BUSINESS > PRO > STARTER.
func applyPurchase(acc *Account, newPlan Plan, durationDays int, now time.Time) {
	current := acc.ActivePlan
	banked := remainingDays(acc.ExpiresAt, now)

	switch newPlan {
	case PlanBusiness:
		switch current {
		case PlanStarter:
			acc.StarterRemainingDays += banked
		case PlanPro:
			acc.ProRemainingDays += banked
		}
		if current == PlanBusiness {
			acc.ExpiresAt = extend(acc.ExpiresAt, now, durationDays)
		} else {
			acc.ActivePlan = PlanBusiness
			acc.ExpiresAt = extend(nil, now, durationDays)
		}

	case PlanPro:
		switch current {
		case PlanBusiness:
			acc.ProRemainingDays += durationDays
		case PlanPro:
			acc.ExpiresAt = extend(acc.ExpiresAt, now, durationDays)
		case PlanStarter:
			acc.StarterRemainingDays += banked
			acc.ActivePlan = PlanPro
			acc.ExpiresAt = extend(nil, now, durationDays)
		default:
			acc.ActivePlan = PlanPro
			acc.ExpiresAt = extend(nil, now, durationDays)
		}

	case PlanStarter:
		switch current {
		case PlanBusiness, PlanPro:
			acc.StarterRemainingDays += durationDays
		case PlanStarter:
			acc.ExpiresAt = extend(acc.ExpiresAt, now, durationDays)
		default:
			acc.ActivePlan = PlanStarter
			acc.ExpiresAt = extend(nil, now, durationDays)
		}
	}
}

// extend adds durationDays to the current expiry, or to now when the
// account has no expiry on record.
func extend(expiresAt *time.Time, now time.Time, durationDays int) *time.Time {
	base := now
	if expiresAt != nil {
		base = *expiresAt
	}
	exp := base.AddDate(0, 0, durationDays)
	return &exp
}

// remainingDays counts whole days left until expiry, floored at zero.
func remainingDays(expiresAt *time.Time, now time.Time) int {
	if expiresAt == nil {
		return 0
	}
	d := int(expiresAt.Sub(now).Hours() / 24)
	if d < 0 {
		return 0
	}
	return d
}

func scanAccount(row *sql.Row, userID string) (*Account, error) {
	var acc Account
	var plan string
	var expiresAt sql.NullTime
	err := row.Scan(
		&acc.UserID, &acc.Credits, &plan, &expiresAt,
		&acc.StarterRemainingDays, &acc.ProRemainingDays, &acc.LastUpdated,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.NewAccountNotFoundError(userID)
	}
	if err != nil {
		return nil, errs.NewStorageFailureError("credits.get", err)
	}
	acc.ActivePlan = Plan(plan)
	if expiresAt.Valid {
		t := expiresAt.Time
		acc.ExpiresAt = &t
	}
	return &acc, nil
}
