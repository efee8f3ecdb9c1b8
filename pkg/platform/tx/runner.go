package tx

import (
	"context"
	"database/sql"
	"time"

	dErrors "ownergraph/pkg/domain-errors"
)

const defaultTxTimeout = 5 * time.Second

// SQLRunner runs a function inside a database transaction that downstream
// stores pick up through From(ctx). The key argument exists so SQLRunner and
// shardlock.Locker share one signature; row locks taken inside the
// transaction provide the per-key scoping.
type SQLRunner struct {
	db        *sql.DB
	timeout   time.Duration
	isolation sql.IsolationLevel
}

// RunnerOption configures a SQLRunner.
type RunnerOption func(*SQLRunner)

// WithIsolation sets the isolation level used for new transactions.
func WithIsolation(level sql.IsolationLevel) RunnerOption {
	return func(r *SQLRunner) { r.isolation = level }
}

// WithTimeout overrides the default transaction timeout.
func WithTimeout(d time.Duration) RunnerOption {
	return func(r *SQLRunner) { r.timeout = d }
}

// NewSQLRunner creates a SQLRunner for db.
func NewSQLRunner(db *sql.DB, opts ...RunnerOption) *SQLRunner {
	r := &SQLRunner{db: db, timeout: defaultTxTimeout}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunInTx begins a transaction, or joins the one already carried by ctx.
func (r *SQLRunner) RunInTx(ctx context.Context, _ string, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if _, ok := From(ctx); ok {
		return fn(ctx)
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	sqlTx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: r.isolation})
	if err != nil {
		return err
	}
	defer func() {
		_ = sqlTx.Rollback()
	}()

	if err := fn(WithTx(ctx, sqlTx)); err != nil {
		return err
	}

	return sqlTx.Commit()
}
