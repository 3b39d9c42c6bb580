package domain

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"
)

type fakeSource struct {
	candidates []PostCandidate
	err        error
}

func (f *fakeSource) Discover(context.Context, string) ([]PostCandidate, error) {
	return f.candidates, f.err
}

type fakeDetails struct {
	detail *PostDetail
	err    error
	calls  int
}

func (f *fakeDetails) FetchDetail(context.Context, string) (*PostDetail, error) {
	f.calls++
	return f.detail, f.err
}

type fakeGenerator struct {
	text  string
	errs  []error // consumed per call; nil entries succeed
	calls int
}

func (f *fakeGenerator) Generate(context.Context, string, VisualPayload) (string, error) {
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return "", err
		}
	}
	return f.text, nil
}

type fakeSubmitter struct {
	err   error
	calls int
}

func (f *fakeSubmitter) Submit(context.Context, string, string) error {
	f.calls++
	return f.err
}

type fakeLedger struct {
	recorded  map[string]bool // keyed by unitID
	hasErr    error
	insertErr error
	conflict  bool
	inserts   []*CommentRecord
}

func (f *fakeLedger) HasRecorded(_ context.Context, _, _, unitID string) (bool, error) {
	return f.recorded[unitID], f.hasErr
}

func (f *fakeLedger) Insert(_ context.Context, rec *CommentRecord) (bool, error) {
	if f.insertErr != nil {
		return false, f.insertErr
	}
	if f.conflict {
		return false, nil
	}
	f.inserts = append(f.inserts, rec)
	return true, nil
}

func (f *fakeLedger) Stats(context.Context, string, int) (LedgerStats, error) {
	return LedgerStats{}, nil
}

func (f *fakeLedger) RecentRecords(context.Context, int) ([]CommentRecord, error) {
	return nil, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func goodDetail(unitID string, captionLen int) *PostDetail {
	return &PostDetail{
		UnitID:        unitID,
		URL:           "https://www.instagram.com/p/" + unitID + "/",
		Caption:       strings.Repeat("x", captionLen),
		CaptionLength: captionLen,
		Kind:          ContentImage,
	}
}

type pipelineFakes struct {
	source    *fakeSource
	details   *fakeDetails
	generator *fakeGenerator
	submitter *fakeSubmitter
	ledger    *fakeLedger
}

func newTestPipeline(cfg PipelineConfig, f pipelineFakes) *Pipeline {
	if cfg.Platform == "" {
		cfg.Platform = "instagram"
	}
	p := NewPipeline(cfg, f.source, f.details, f.generator, f.submitter, f.ledger, discardLogger())
	p.now = func() time.Time { return now }
	return p
}

func defaultFakes() pipelineFakes {
	return pipelineFakes{
		source:    &fakeSource{candidates: []PostCandidate{ageDays("a", 0.5), ageDays("b", 2), ageDays("c", 0.9), ageDays("d", 10)}},
		details:   &fakeDetails{detail: goodDetail("a", 120)},
		generator: &fakeGenerator{text: "lovely shot!"},
		submitter: &fakeSubmitter{},
		ledger:    &fakeLedger{recorded: map[string]bool{}},
	}
}

func defaultConfig() PipelineConfig {
	return PipelineConfig{
		Platform:         "instagram",
		MaxAgeDays:       1,
		CaptionMinLength: 50,
		CaptionMaxLength: 2200,
	}
}

func TestPipelineEngagesNewestEligible(t *testing.T) {
	f := defaultFakes()
	p := newTestPipeline(defaultConfig(), f)

	res := p.ProcessAccount(context.Background(), "acct")
	if res.Action != ActionEngaged || !res.Succeeded {
		t.Fatalf("result = %+v, want engaged", res)
	}
	if res.UnitID != "a" {
		t.Errorf("engaged unit = %q, want a", res.UnitID)
	}
	if res.CommentText != "lovely shot!" {
		t.Errorf("comment = %q", res.CommentText)
	}
	if len(f.ledger.inserts) != 1 {
		t.Fatalf("ledger inserts = %d, want 1", len(f.ledger.inserts))
	}
	rec := f.ledger.inserts[0]
	if rec.Platform != "instagram" || rec.Account != "acct" || rec.UnitID != "a" || !rec.Succeeded {
		t.Errorf("record = %+v", rec)
	}
}

func TestPipelineNoPostsFound(t *testing.T) {
	f := defaultFakes()
	f.source.candidates = nil
	p := newTestPipeline(defaultConfig(), f)

	res := p.ProcessAccount(context.Background(), "acct")
	if res.Action != ActionSkipped || res.Reason != "no posts found" {
		t.Errorf("result = %+v, want skipped(no posts found)", res)
	}
}

func TestPipelineDiscoveryErrorFails(t *testing.T) {
	f := defaultFakes()
	f.source.err = errors.New("browser crashed")
	p := newTestPipeline(defaultConfig(), f)

	res := p.ProcessAccount(context.Background(), "acct")
	if res.Action != ActionFailed || res.Succeeded {
		t.Errorf("result = %+v, want failed", res)
	}
	if f.details.calls != 0 {
		t.Errorf("detail fetch ran despite discovery failure")
	}
}

func TestPipelineAllDuplicateSkips(t *testing.T) {
	f := defaultFakes()
	f.ledger.recorded = map[string]bool{"a": true, "b": true, "c": true, "d": true}
	p := newTestPipeline(defaultConfig(), f)

	res := p.ProcessAccount(context.Background(), "acct")
	if res.Action != ActionSkipped || res.Reason != string(SkipAllDuplicate) {
		t.Errorf("result = %+v, want skipped(%s)", res, SkipAllDuplicate)
	}
	if f.details.calls != 0 {
		t.Errorf("detail fetch should not run when nothing is eligible")
	}
}

func TestPipelineRecordedNewestFallsBack(t *testing.T) {
	f := defaultFakes()
	f.ledger.recorded = map[string]bool{"a": true}
	f.details.detail = goodDetail("c", 120)
	p := newTestPipeline(defaultConfig(), f)

	res := p.ProcessAccount(context.Background(), "acct")
	if res.Action != ActionEngaged || res.UnitID != "c" {
		t.Errorf("result = %+v, want engaged on c", res)
	}
}

func TestPipelineDetailMissIsSkipNotFailure(t *testing.T) {
	for name, details := range map[string]*fakeDetails{
		"nil detail":  {detail: nil},
		"fetch error": {err: errors.New("page gone")},
	} {
		t.Run(name, func(t *testing.T) {
			f := defaultFakes()
			f.details = details
			p := newTestPipeline(defaultConfig(), f)

			res := p.ProcessAccount(context.Background(), "acct")
			if res.Action != ActionSkipped || res.Reason != "failed to get details" {
				t.Errorf("result = %+v, want skipped(failed to get details)", res)
			}
			if f.generator.calls != 0 {
				t.Errorf("generation ran despite detail miss")
			}
		})
	}
}

func TestPipelineCaptionGate(t *testing.T) {
	cases := []struct {
		length  int
		engaged bool
	}{
		{49, false},
		{50, true},
		{2200, true},
		{2201, false},
	}
	for _, tc := range cases {
		f := defaultFakes()
		f.details.detail = goodDetail("a", tc.length)
		p := newTestPipeline(defaultConfig(), f)

		res := p.ProcessAccount(context.Background(), "acct")
		if tc.engaged && res.Action != ActionEngaged {
			t.Errorf("caption length %d: result = %+v, want engaged", tc.length, res)
		}
		if !tc.engaged {
			if res.Action != ActionSkipped {
				t.Errorf("caption length %d: result = %+v, want skipped", tc.length, res)
			}
			if len(f.ledger.inserts) != 0 {
				t.Errorf("caption length %d: ledger written on a gated post", tc.length)
			}
		}
	}
}

func TestPipelineGenerationFailureLeavesLedgerUntouched(t *testing.T) {
	f := defaultFakes()
	f.generator.errs = []error{errors.New("model unavailable")}
	p := newTestPipeline(defaultConfig(), f)

	res := p.ProcessAccount(context.Background(), "acct")
	if res.Action != ActionFailed {
		t.Fatalf("result = %+v, want failed", res)
	}
	if f.submitter.calls != 0 {
		t.Errorf("submit ran after generation failure")
	}
	if len(f.ledger.inserts) != 0 {
		t.Errorf("ledger written after generation failure")
	}
}

func TestPipelineEmptyGenerationIsFailure(t *testing.T) {
	f := defaultFakes()
	f.generator.text = ""
	p := newTestPipeline(defaultConfig(), f)

	res := p.ProcessAccount(context.Background(), "acct")
	if res.Action != ActionFailed {
		t.Errorf("result = %+v, want failed on empty comment", res)
	}
}

func TestPipelineSubmitFailureLeavesLedgerUntouched(t *testing.T) {
	f := defaultFakes()
	f.submitter.err = errors.New("comment box not found")
	p := newTestPipeline(defaultConfig(), f)

	res := p.ProcessAccount(context.Background(), "acct")
	if res.Action != ActionFailed {
		t.Fatalf("result = %+v, want failed", res)
	}
	// Retry-by-omission: the unit stays eligible for the next run.
	if len(f.ledger.inserts) != 0 {
		t.Errorf("ledger written after failed submission")
	}
}

func TestPipelineInsertConflictTreatedAsSuccess(t *testing.T) {
	f := defaultFakes()
	f.ledger.conflict = true
	p := newTestPipeline(defaultConfig(), f)

	res := p.ProcessAccount(context.Background(), "acct")
	if res.Action != ActionEngaged || !res.Succeeded {
		t.Errorf("result = %+v, want engaged (conflict is an idempotent no-op)", res)
	}
}

func TestPipelineLedgerFaultFails(t *testing.T) {
	f := defaultFakes()
	f.ledger.hasErr = errors.New("disk failure")
	p := newTestPipeline(defaultConfig(), f)

	res := p.ProcessAccount(context.Background(), "acct")
	if res.Action != ActionFailed {
		t.Errorf("result = %+v, want failed", res)
	}
}

func TestPipelineInsertFaultFails(t *testing.T) {
	f := defaultFakes()
	f.ledger.insertErr = errors.New("disk full")
	p := newTestPipeline(defaultConfig(), f)

	res := p.ProcessAccount(context.Background(), "acct")
	if res.Action != ActionFailed {
		t.Errorf("result = %+v, want failed", res)
	}
}

func TestPipelineGenerationRetry(t *testing.T) {
	f := defaultFakes()
	f.generator.errs = []error{errors.New("transient"), nil}
	cfg := defaultConfig()
	cfg.GenerationAttempts = 2
	p := newTestPipeline(cfg, f)

	res := p.ProcessAccount(context.Background(), "acct")
	if res.Action != ActionEngaged {
		t.Fatalf("result = %+v, want engaged after retry", res)
	}
	if f.generator.calls != 2 {
		t.Errorf("generator calls = %d, want 2", f.generator.calls)
	}
}

func TestPipelineGenerationRetriesExhausted(t *testing.T) {
	f := defaultFakes()
	f.generator.errs = []error{errors.New("down"), errors.New("still down")}
	cfg := defaultConfig()
	cfg.GenerationAttempts = 2
	p := newTestPipeline(cfg, f)

	res := p.ProcessAccount(context.Background(), "acct")
	if res.Action != ActionFailed {
		t.Errorf("result = %+v, want failed after exhausted retries", res)
	}
	if len(f.ledger.inserts) != 0 {
		t.Errorf("ledger written after exhausted retries")
	}
}
