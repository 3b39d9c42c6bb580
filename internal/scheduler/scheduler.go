package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/RajaChaiban/InstaAgent/internal/domain"
)

// BatchRunner executes one sweep of the target account list.
type BatchRunner interface {
	Run(ctx context.Context, accounts []string) []domain.CommentResult
}

// Config holds the scheduler's immutable settings.
type Config struct {
	// Targets is the ordered default account list for timed runs.
	Targets []string

	// Interval is the period between ticks. Ticks fire on wall-clock
	// boundaries of the interval (e.g. every 30th minute).
	Interval time.Duration

	// SkipIfRunning drops a tick or manual trigger that arrives while a
	// batch is executing, instead of running a second batch against the
	// shared automation session.
	SkipIfRunning bool

	// RunOnStart fires one extra run shortly after Start.
	RunOnStart bool

	// StartupDelay is how long to wait before the RunOnStart run.
	StartupDelay time.Duration
}

// RunSnapshot captures the most recent run. Only one snapshot is retained,
// in memory, for the process lifetime.
type RunSnapshot struct {
	RunID        string                 `json:"runId"`
	StartedAt    time.Time              `json:"startedAt"`
	DurationMs   int64                  `json:"durationMs"`
	AccountCount int                    `json:"accountCount"`
	Results      []domain.CommentResult `json:"results"`
	Error        string                 `json:"error,omitempty"`
}

// Status is the scheduler's observable state.
type Status struct {
	Enabled         bool         `json:"enabled"`
	TimerArmed      bool         `json:"timerArmed"`
	Running         bool         `json:"running"`
	RunCount        int64        `json:"runCount"`
	LastRunAt       *time.Time   `json:"lastRunAt,omitempty"`
	LastRun         *RunSnapshot `json:"lastRun,omitempty"`
	IntervalMinutes int          `json:"intervalMinutes"`

	// NextRunAt is an estimate (last run + interval), not the timer's
	// authoritative next fire time.
	NextRunAt *time.Time `json:"nextRunAt,omitempty"`
}

// Scheduler fires batches on a timer and guards against overlapping
// executions. States: stopped (no timer), idle (timer armed), running
// (batch executing). The idle-to-running transition is an atomic
// compare-and-swap, so a tick and a manual trigger arriving together can
// never both start a batch.
type Scheduler struct {
	cfg    Config
	runner BatchRunner
	logger *slog.Logger

	enabled bool
	running atomic.Bool
	runs    atomic.Int64

	mu        sync.Mutex
	armed     bool
	stop      chan struct{}
	lastRun   *RunSnapshot
	lastRunAt time.Time
	subs      map[chan RunSnapshot]struct{}
}

// New builds a scheduler. enabled reports whether timed runs are switched on
// in configuration; it is surfaced in Status and does not change at runtime.
func New(cfg Config, runner BatchRunner, enabled bool, logger *slog.Logger) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Minute
	}
	return &Scheduler{
		cfg:     cfg,
		runner:  runner,
		logger:  logger,
		enabled: enabled,
		subs:    make(map[chan RunSnapshot]struct{}),
	}
}

// Start arms the periodic timer. It is a no-op with a warning when the timer
// is already armed.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.armed {
		s.logger.Warn("scheduler already started")
		return
	}

	s.armed = true
	s.stop = make(chan struct{})
	go s.loop(s.stop)

	s.logger.Info("scheduler started",
		"interval", s.cfg.Interval,
		"targets", len(s.cfg.Targets),
		"run_on_start", s.cfg.RunOnStart,
	)
}

// Stop cancels the timer. An in-flight run is not interrupted; it completes
// on its own. Stop only prevents future ticks.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.armed {
		s.logger.Warn("scheduler already stopped")
		return
	}

	close(s.stop)
	s.armed = false
	s.logger.Info("scheduler stopped")
}

// RunNow triggers one execution immediately, bypassing the timer but not the
// overlap guard. It returns the snapshot, or nil if the run was skipped
// because a batch was already executing.
func (s *Scheduler) RunNow(ctx context.Context, targets []string) *RunSnapshot {
	if len(targets) == 0 {
		targets = s.cfg.Targets
	}
	return s.execute(ctx, targets, "manual")
}

// Status reports the current observable state.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		Enabled:         s.enabled,
		TimerArmed:      s.armed,
		Running:         s.running.Load(),
		RunCount:        s.runs.Load(),
		LastRun:         s.lastRun,
		IntervalMinutes: int(s.cfg.Interval / time.Minute),
	}
	if !s.lastRunAt.IsZero() {
		t := s.lastRunAt
		st.LastRunAt = &t
		next := t.Add(s.cfg.Interval)
		st.NextRunAt = &next
	}
	return st
}

// Subscribe registers for run snapshots. The returned cancel function must
// be called to release the subscription. Slow subscribers miss snapshots
// rather than blocking the scheduler.
func (s *Scheduler) Subscribe() (<-chan RunSnapshot, func()) {
	ch := make(chan RunSnapshot, 4)

	s.mu.Lock()
	s.subs[ch] = struct{}{}
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		delete(s.subs, ch)
		s.mu.Unlock()
	}
	return ch, cancel
}

func (s *Scheduler) loop(stop chan struct{}) {
	if s.cfg.RunOnStart {
		select {
		case <-stop:
			return
		case <-time.After(s.cfg.StartupDelay):
			s.execute(context.Background(), s.cfg.Targets, "startup")
		}
	}

	// Align ticks to wall-clock boundaries of the interval.
	timer := time.NewTimer(untilNextBoundary(time.Now(), s.cfg.Interval))
	defer timer.Stop()

	for {
		select {
		case <-stop:
			return
		case <-timer.C:
			s.execute(context.Background(), s.cfg.Targets, "tick")
			timer.Reset(untilNextBoundary(time.Now(), s.cfg.Interval))
		}
	}
}

// execute is the single path shared by ticks, startup runs and manual
// triggers. The CAS below is the only mutual exclusion guarding the shared
// automation session.
func (s *Scheduler) execute(ctx context.Context, targets []string, trigger string) *RunSnapshot {
	owned := s.running.CompareAndSwap(false, true)
	if !owned {
		if s.cfg.SkipIfRunning {
			// Logged skip only: no state change, no snapshot, no
			// failed result for the dropped invocation.
			s.logger.Warn("run already in progress, skipping", "trigger", trigger)
			return nil
		}
		s.logger.Warn("run already in progress, proceeding anyway", "trigger", trigger)
	}
	if owned {
		defer s.running.Store(false)
	}

	start := time.Now()
	s.logger.Info("run starting", "trigger", trigger, "accounts", len(targets))

	results := s.runner.Run(ctx, targets)

	snapshot := &RunSnapshot{
		RunID:        uuid.NewString(),
		StartedAt:    start.UTC(),
		DurationMs:   time.Since(start).Milliseconds(),
		AccountCount: len(targets),
		Results:      results,
	}

	s.runs.Add(1)

	s.mu.Lock()
	s.lastRun = snapshot
	s.lastRunAt = start
	for ch := range s.subs {
		select {
		case ch <- *snapshot:
		default:
		}
	}
	s.mu.Unlock()

	s.logger.Info("run finished",
		"trigger", trigger,
		"run_id", snapshot.RunID,
		"duration_ms", snapshot.DurationMs,
	)
	return snapshot
}

// untilNextBoundary returns the wait until the next wall-clock multiple of
// interval (e.g. the next :00/:30 for a 30 minute interval).
func untilNextBoundary(now time.Time, interval time.Duration) time.Duration {
	next := now.Truncate(interval).Add(interval)
	return next.Sub(now)
}
