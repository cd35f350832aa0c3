package service

import (
	"context"
	"sync"
	"time"

	id "claimreg/pkg/domain"
	dErrors "claimreg/pkg/domain-errors"
	txcontext "claimreg/pkg/platform/tx"
)

// ClaimTx is the atomic boundary around one claim operation. Implementations
// serialize operations on the same fingerprint and make fn's store writes and
// event append commit or fail together.
type ClaimTx interface {
	RunInTx(ctx context.Context, fingerprint id.Fingerprint, fn func(ctx context.Context) error) error
}

// numClaimShards spreads fingerprints over independent locks so unrelated
// claims do not contend.
const numClaimShards = 128

// shardedClaimTx serializes in-memory operations with a mutex per shard of
// the fingerprint hash. It does not roll back; pair it only with sinks that
// cannot fail, such as events.MemorySink.
type shardedClaimTx struct {
	shards  [numClaimShards]sync.Mutex
	timeout time.Duration
}

// NewShardedTx returns the in-memory transaction boundary.
func NewShardedTx(timeout time.Duration) ClaimTx {
	return &shardedClaimTx{timeout: timeout}
}

func (t *shardedClaimTx) RunInTx(ctx context.Context, fingerprint id.Fingerprint, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	timeout := t.timeout
	if timeout == 0 {
		timeout = txcontext.DefaultTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	shard := hashFingerprint(fingerprint) % numClaimShards
	t.shards[shard].Lock()
	defer t.shards[shard].Unlock()

	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	return fn(ctx)
}

// hashFingerprint is FNV-1a over the raw fingerprint bytes.
func hashFingerprint(fp id.Fingerprint) uint32 {
	const (
		fnvOffset = 2166136261
		fnvPrime  = 16777619
	)
	h := uint32(fnvOffset)
	for i := 0; i < len(fp); i++ {
		h ^= uint32(fp[i])
		h *= fnvPrime
	}
	return h
}

// postgresClaimTx runs each operation in its own database transaction. Row
// locks taken by the store serialize operations on one fingerprint.
type postgresClaimTx struct {
	runner *txcontext.Postgres
}

// NewPostgresTx adapts a database transaction runner to ClaimTx.
func NewPostgresTx(runner *txcontext.Postgres) ClaimTx {
	return &postgresClaimTx{runner: runner}
}

func (t *postgresClaimTx) RunInTx(ctx context.Context, _ id.Fingerprint, fn func(ctx context.Context) error) error {
	return t.runner.RunInTx(ctx, fn)
}
