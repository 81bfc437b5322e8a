// Package concurrency defines how every mutating ledger operation serializes
// against the others: which aggregates it locks and in what order, the SQL
// isolation level of its database transaction, and how often it is retried.
package concurrency

import (
	"database/sql"
	"sort"
	"time"
)

// Operation names a mutating ledger command.
type Operation string

const (
	OpBuy         Operation = "buy"
	OpSell        Operation = "sell"
	OpTransfer    Operation = "transfer"
	OpDividend    Operation = "dividend"
	OpReverse     Operation = "reverse"
	OpRecalculate Operation = "recalculate"
	OpClose       Operation = "close"
)

// Policy is the locking and retry contract of one operation.
type Policy struct {
	Operation   Operation
	Isolation   sql.IsolationLevel
	MaxAttempts int
	Backoff     time.Duration
}

// Retryable reports whether the policy allows more than one attempt.
func (p Policy) Retryable() bool {
	return p.MaxAttempts > 1
}

// DefaultPolicies returns the per-operation policies. Buy tolerates transient
// contention and retries; commands that read and rewrite an existing quantity
// run serializable and surface conflicts immediately.
func DefaultPolicies(buyAttempts int, buyBackoff time.Duration) map[Operation]Policy {
	if buyAttempts < 1 {
		buyAttempts = 1
	}
	return map[Operation]Policy{
		OpBuy:         {Operation: OpBuy, Isolation: sql.LevelRepeatableRead, MaxAttempts: buyAttempts, Backoff: buyBackoff},
		OpSell:        {Operation: OpSell, Isolation: sql.LevelSerializable, MaxAttempts: 1},
		OpTransfer:    {Operation: OpTransfer, Isolation: sql.LevelSerializable, MaxAttempts: 1},
		OpDividend:    {Operation: OpDividend, Isolation: sql.LevelSerializable, MaxAttempts: 1},
		OpReverse:     {Operation: OpReverse, Isolation: sql.LevelReadCommitted, MaxAttempts: 1},
		OpRecalculate: {Operation: OpRecalculate, Isolation: sql.LevelRepeatableRead, MaxAttempts: 1},
		OpClose:       {Operation: OpClose, Isolation: sql.LevelRepeatableRead, MaxAttempts: 1},
	}
}

// Lock key namespaces. Keys from different namespaces never collide.
const (
	idempotencyPrefix = "idem:"
	portfolioPrefix   = "portfolio:"
	holdingPrefix     = "holding:"
	transactionPrefix = "txn:"
)

// IdempotencyKey returns the lock key guarding a client idempotency key.
func IdempotencyKey(key string) string { return idempotencyPrefix + key }

// HoldingKey returns the lock key of a holding.
func HoldingKey(id string) string { return holdingPrefix + id }

// TransactionKey returns the lock key of a ledger entry.
func TransactionKey(id string) string { return transactionPrefix + id }

// PortfolioKeys returns the lock keys of the given portfolios in ascending id
// order, the global order every multi-portfolio operation must follow.
func PortfolioKeys(ids ...string) []string {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	keys := make([]string, 0, len(sorted))
	for _, id := range sorted {
		keys = append(keys, portfolioPrefix+id)
	}
	return keys
}

// Order assembles a full lock sequence: idempotency key (if any), then
// portfolios ascending, then holdings.
func Order(idempotencyKey string, portfolioIDs []string, holdingIDs ...string) []string {
	keys := make([]string, 0, 1+len(portfolioIDs)+len(holdingIDs))
	if idempotencyKey != "" {
		keys = append(keys, IdempotencyKey(idempotencyKey))
	}
	keys = append(keys, PortfolioKeys(portfolioIDs...)...)
	for _, id := range holdingIDs {
		keys = append(keys, HoldingKey(id))
	}
	return keys
}
