package concurrency

import (
	"context"
	"database/sql"
	"errors"
	"time"

	apperrors "github.com/Pranjal0410/real-estate-project-sub000/internal/errors"
	"github.com/Pranjal0410/real-estate-project-sub000/internal/logger"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// PostgreSQL SQLSTATEs that signal contention rather than a bad request.
const (
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgLockNotAvailable     = "55P03"
)

// Controller applies the per-operation policies: in-process locks, database
// transaction isolation and bounded retry.
type Controller struct {
	locks    *LockRegistry
	policies map[Operation]Policy
}

// NewController creates a Controller over the given lock registry and policies.
func NewController(locks *LockRegistry, policies map[Operation]Policy) *Controller {
	if locks == nil {
		locks = NewLockRegistry()
	}
	return &Controller{locks: locks, policies: policies}
}

// Policy returns the policy of op. Unknown operations get a single attempt
// at the driver's default isolation.
func (c *Controller) Policy(op Operation) Policy {
	if p, ok := c.policies[op]; ok {
		return p
	}
	return Policy{Operation: op, Isolation: sql.LevelDefault, MaxAttempts: 1}
}

// Lock acquires the given keys in order. Callers build the sequence with
// Order or PortfolioKeys so that every path agrees on it.
func (c *Controller) Lock(ctx context.Context, keys ...string) (func(), error) {
	return c.locks.LockAll(ctx, keys...)
}

// InTx runs fn inside a database transaction at the isolation level of op.
// Isolation is only requested from dialects that honour it; sqlite already
// serializes writers.
func (c *Controller) InTx(ctx context.Context, db *gorm.DB, op Operation, fn func(tx *gorm.DB) error) error {
	var opts []*sql.TxOptions
	if db.Dialector.Name() == "postgres" {
		opts = append(opts, &sql.TxOptions{Isolation: c.Policy(op).Isolation})
	}
	return db.WithContext(ctx).Transaction(fn, opts...)
}

// Run executes fn with the retry policy of op. Only transient failures are
// retried, and only while ctx is still live. The final error is classified
// so that contention surfaces as a conflict rather than an internal error.
func (c *Controller) Run(ctx context.Context, op Operation, fn func(ctx context.Context) error) error {
	p := c.Policy(op)

	var err error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		err = fn(ctx)
		if err == nil || !IsTransient(err) {
			return err
		}
		if attempt == p.MaxAttempts {
			break
		}

		logger.Named("concurrency").Warnw("Retrying after transient conflict",
			"operation", op, "attempt", attempt, "max_attempts", p.MaxAttempts, "error", err)
		if waitErr := sleep(ctx, p.Backoff*time.Duration(attempt)); waitErr != nil {
			break
		}
	}
	return Classify(err)
}

// IsTransient reports whether err is contention that a fresh attempt may clear.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, apperrors.ErrLockTimeout) || errors.Is(err, apperrors.ErrConcurrentModification) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgSerializationFailure, pgDeadlockDetected, pgLockNotAvailable:
			return true
		}
	}
	return false
}

// Classify maps driver-level contention errors onto their AppError. Other
// errors are returned unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case pgSerializationFailure, pgDeadlockDetected:
		return apperrors.Wrap(apperrors.ErrConcurrentModification, err)
	case pgLockNotAvailable:
		return apperrors.Wrap(apperrors.ErrLockTimeout, err)
	}
	return err
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
