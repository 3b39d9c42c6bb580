package domain

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"
)

// AccountProcessor is the per-account unit of work the batch drives. It is
// satisfied by *Pipeline and by fakes in tests.
type AccountProcessor interface {
	ProcessAccount(ctx context.Context, account string) CommentResult
}

// Batch runs the pipeline sequentially over an ordered account list. All
// accounts share one exclusively-owned automation session, so the batch is
// strictly sequential: concurrent use would interleave browser state across
// accounts. A randomized delay between accounts avoids a fixed cadence.
type Batch struct {
	processor AccountProcessor
	delayMin  time.Duration
	delayMax  time.Duration
	logger    *slog.Logger

	// sleep is injected so tests can observe and skip the jitter.
	sleep func(ctx context.Context, d time.Duration)
}

// NewBatch builds a batch orchestrator. delayMin and delayMax bound the
// uniform random pause inserted between accounts.
func NewBatch(processor AccountProcessor, delayMin, delayMax time.Duration, logger *slog.Logger) *Batch {
	if delayMax < delayMin {
		delayMax = delayMin
	}
	return &Batch{
		processor: processor,
		delayMin:  delayMin,
		delayMax:  delayMax,
		logger:    logger,
		sleep: func(ctx context.Context, d time.Duration) {
			select {
			case <-ctx.Done():
			case <-time.After(d):
			}
		},
	}
}

// Run processes every account in order and returns one result per account.
// Each account runs inside its own error boundary: a panic or failure is
// converted into a failed result and the remaining accounts still run.
// Counts of engaged/skipped/failed are derived by callers, not here.
func (b *Batch) Run(ctx context.Context, accounts []string) []CommentResult {
	results := make([]CommentResult, 0, len(accounts))

	for i, account := range accounts {
		b.logger.Info("processing account", "account", account, "position", i+1, "total", len(accounts))
		results = append(results, b.processOne(ctx, account))

		// No delay after the last account.
		if i < len(accounts)-1 {
			d := b.jitter()
			b.logger.Info("inter-account delay", "duration", d)
			b.sleep(ctx, d)
		}
	}

	return results
}

func (b *Batch) processOne(ctx context.Context, account string) (result CommentResult) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("pipeline panicked", "account", account, "panic", r)
			result = Failed(account, fmt.Sprintf("pipeline panic: %v", r))
		}
	}()
	return b.processor.ProcessAccount(ctx, account)
}

// jitter draws a duration uniformly from [delayMin, delayMax].
func (b *Batch) jitter() time.Duration {
	if b.delayMax <= b.delayMin {
		return b.delayMin
	}
	return b.delayMin + time.Duration(rand.Int63n(int64(b.delayMax-b.delayMin)+1))
}
