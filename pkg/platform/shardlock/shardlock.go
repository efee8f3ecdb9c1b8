// Package shardlock provides keyed critical sections backed by a fixed set of
// mutex shards. Keys hash onto shards with FNV-1a, so unrelated keys rarely
// contend and the memory cost stays constant regardless of key cardinality.
package shardlock

import (
	"context"
	"sync"
	"time"

	dErrors "ownergraph/pkg/domain-errors"
)

const (
	// DefaultShards is the number of mutexes when WithShards is not given.
	DefaultShards = 128
	// DefaultTimeout bounds how long a critical section may run when the
	// caller's context carries no deadline.
	DefaultTimeout = 5 * time.Second
)

// Locker serializes work per key.
type Locker struct {
	shards  []sync.Mutex
	timeout time.Duration
}

// Option configures a Locker.
type Option func(*Locker)

// WithShards overrides the shard count. Values below one are ignored.
func WithShards(n int) Option {
	return func(l *Locker) {
		if n > 0 {
			l.shards = make([]sync.Mutex, n)
		}
	}
}

// WithTimeout overrides the default critical-section timeout.
func WithTimeout(d time.Duration) Option {
	return func(l *Locker) {
		if d > 0 {
			l.timeout = d
		}
	}
}

// New creates a Locker.
func New(opts ...Option) *Locker {
	l := &Locker{
		shards:  make([]sync.Mutex, DefaultShards),
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

type heldKey struct{ l *Locker }

// RunInTx runs fn while holding the shard for key. A nested call on the same
// Locker and shard from inside fn reuses the held lock instead of deadlocking.
// Nested calls for a different shard of the same Locker must be avoided.
func (l *Locker) RunInTx(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	shard := l.shardFor(key)
	if held, ok := ctx.Value(heldKey{l}).(int); ok && held == shard {
		return fn(ctx)
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	l.shards[shard].Lock()
	defer l.shards[shard].Unlock()

	// Check again after acquiring lock
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	return fn(context.WithValue(ctx, heldKey{l}, shard))
}

func (l *Locker) shardFor(key string) int {
	return int(hashString(key) % uint32(len(l.shards)))
}

// hashString is FNV-1a.
func hashString(s string) uint32 {
	const (
		fnvOffset = 2166136261
		fnvPrime  = 16777619
	)
	h := uint32(fnvOffset)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= fnvPrime
	}
	return h
}
