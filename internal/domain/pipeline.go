package domain

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// PipelineConfig holds the per-account decision thresholds. It is immutable
// after construction; components never read toggles from ambient state.
type PipelineConfig struct {
	// Platform tags every ledger record, e.g. "instagram".
	Platform string

	// MaxAgeDays drops candidates older than this many days. Zero or
	// negative disables the age filter.
	MaxAgeDays int

	// CaptionMinLength and CaptionMaxLength bound the caption gate, both
	// inclusive.
	CaptionMinLength int
	CaptionMaxLength int

	// GenerationAttempts is how many times Generate is tried before the
	// account is marked failed. Values below 1 are treated as 1.
	GenerationAttempts int

	// GenerationRetryDelay is the pause between generation attempts.
	GenerationRetryDelay time.Duration
}

// Pipeline runs the per-account state sequence: discover, select, fetch
// detail, caption gate, generate, submit, record. Every step short-circuits
// to a terminal CommentResult; nothing here aborts sibling accounts.
type Pipeline struct {
	cfg       PipelineConfig
	source    PostSource
	details   DetailFetcher
	generator CommentGenerator
	submitter CommentSubmitter
	ledger    CommentLedger
	logger    *slog.Logger

	// now is the injected clock, overridable in tests.
	now func() time.Time
}

// NewPipeline wires a pipeline from its collaborators.
func NewPipeline(
	cfg PipelineConfig,
	source PostSource,
	details DetailFetcher,
	generator CommentGenerator,
	submitter CommentSubmitter,
	ledger CommentLedger,
	logger *slog.Logger,
) *Pipeline {
	if cfg.GenerationAttempts < 1 {
		cfg.GenerationAttempts = 1
	}
	return &Pipeline{
		cfg:       cfg,
		source:    source,
		details:   details,
		generator: generator,
		submitter: submitter,
		ledger:    ledger,
		logger:    logger,
		now:       time.Now,
	}
}

// ProcessAccount decides whether the account has exactly one new eligible
// post, engages with it, and records the engagement. The returned result is
// terminal for this account on this run.
func (p *Pipeline) ProcessAccount(ctx context.Context, account string) CommentResult {
	// Step 1: discover the candidate window.
	candidates, err := p.source.Discover(ctx, account)
	if err != nil {
		return Failed(account, fmt.Sprintf("discover posts: %v", err))
	}
	if len(candidates) == 0 {
		return Skipped(account, "no posts found")
	}

	// Step 2: cheap selection over timestamps and ledger lookups only.
	selected, skip, err := SelectEligible(candidates, p.now(), p.cfg.MaxAgeDays, func(unitID string) (bool, error) {
		return p.ledger.HasRecorded(ctx, p.cfg.Platform, account, unitID)
	})
	if err != nil {
		return Failed(account, fmt.Sprintf("check ledger: %v", err))
	}
	if selected == nil {
		return Skipped(account, string(skip))
	}

	p.logger.Info("selected post",
		"account", account,
		"unit_id", selected.UnitID,
		"published_at", selected.PublishedAt,
		"pinned", selected.IsPinned,
	)

	// Step 3: the expensive detail fetch, for the selected unit only. A
	// missing post is not an error condition worth escalating.
	detail, err := p.details.FetchDetail(ctx, selected.URL)
	if err != nil {
		p.logger.Warn("detail fetch failed", "account", account, "url", selected.URL, "error", err)
		return Skipped(account, "failed to get details")
	}
	if detail == nil {
		return Skipped(account, "failed to get details")
	}

	// Step 4: caption gate. Runs after the fetch because it needs the
	// caption; a skip here costs one wasted detail fetch.
	if !CaptionWithinBounds(detail.CaptionLength, p.cfg.CaptionMinLength, p.cfg.CaptionMaxLength) {
		reason := fmt.Sprintf("caption length %d outside [%d, %d]",
			detail.CaptionLength, p.cfg.CaptionMinLength, p.cfg.CaptionMaxLength)
		return Skipped(account, reason)
	}

	// Step 5: generation. Failures escalate; the ledger stays untouched so
	// the post remains eligible next run.
	text, err := p.generateWithRetry(ctx, detail)
	if err != nil {
		return Failed(account, fmt.Sprintf("generate comment: %v", err))
	}

	// Step 6: submission. A failed submission is deliberately not
	// recorded: the post stays eligible and is retried on the next run.
	// Only a confirmed submission reaches step 7.
	if err := p.submitter.Submit(ctx, detail.URL, text); err != nil {
		return Failed(account, fmt.Sprintf("submit comment: %v", err))
	}

	// Step 7: record. A uniqueness conflict means a concurrent run already
	// recorded this unit; that is equivalent to success, not an error.
	rec := &CommentRecord{
		Platform:      p.cfg.Platform,
		Account:       account,
		UnitID:        detail.UnitID,
		URL:           detail.URL,
		CaptionLength: detail.CaptionLength,
		Caption:       detail.Caption,
		CommentText:   text,
		Succeeded:     true,
		RecordedAt:    p.now().UTC(),
		Metadata: map[string]string{
			"content_kind": string(detail.Kind),
		},
	}
	inserted, err := p.ledger.Insert(ctx, rec)
	if err != nil {
		return Failed(account, fmt.Sprintf("record comment: %v", err))
	}
	if !inserted {
		p.logger.Warn("duplicate record, another run got here first",
			"account", account, "unit_id", detail.UnitID)
	}

	return CommentResult{
		Account:       account,
		Succeeded:     true,
		Action:        ActionEngaged,
		UnitID:        detail.UnitID,
		URL:           detail.URL,
		CaptionLength: detail.CaptionLength,
		CommentText:   text,
	}
}

func (p *Pipeline) generateWithRetry(ctx context.Context, detail *PostDetail) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= p.cfg.GenerationAttempts; attempt++ {
		if attempt > 1 {
			p.logger.Info("retrying generation", "attempt", attempt, "unit_id", detail.UnitID)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(p.cfg.GenerationRetryDelay):
			}
		}
		text, err := p.generator.Generate(ctx, detail.Caption, detail.Visual)
		if err != nil {
			lastErr = err
			continue
		}
		if text == "" {
			lastErr = fmt.Errorf("generator returned empty comment")
			continue
		}
		return text, nil
	}
	return "", lastErr
}
