// Package scheduler runs analysis jobs on a bounded worker pool.
//
// Jobs pass the quota gate in Submit, wait in a bounded queue and are executed
// by Run's workers. Transient failures are retried after an exponential delay
// until the job's attempt budget is spent.
package scheduler

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"transcript-backend/internal/jobs"
	"transcript-backend/internal/llm"
	"transcript-backend/internal/quota"
	"transcript-backend/internal/registry"
	"transcript-backend/internal/shared/apperr"
	"transcript-backend/internal/shared/metrics"
	"transcript-backend/internal/shared/scope"
	"transcript-backend/internal/shared/storage/object"
	"transcript-backend/internal/shared/telemetry"
	"transcript-backend/internal/transcripts"
)

// Admitter is the quota gate.
type Admitter interface {
	Admit(ctx context.Context, orgID, jobID string) (quota.Result, error)
	ReleaseDeferred(ctx context.Context, now time.Time) ([]quota.Release, error)
}

// TextLoader returns the text of a recorded transcript.
type TextLoader interface {
	LoadText(ctx context.Context, t transcripts.Transcript) (string, error)
}

// Directory resolves the display names used in prompts.
type Directory interface {
	GetCompany(ctx context.Context, orgID, companyID string) (registry.Company, error)
	GetGroup(ctx context.Context, orgID, groupID string) (registry.Group, error)
}

// Completer is notified once a job reaches Completed.
type Completer interface {
	OnCompleted(ctx context.Context, j jobs.Job) error
}

// Config tunes the worker pool.
type Config struct {
	Workers          int
	QueueSize        int
	AttemptTimeout   time.Duration
	RetryBase        time.Duration
	RetryMax         time.Duration
	RolloverInterval time.Duration
	RatePerSec       float64
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = 2 * time.Minute
	}
	if c.RetryBase <= 0 {
		c.RetryBase = 2 * time.Second
	}
	if c.RetryMax <= 0 {
		c.RetryMax = 2 * time.Minute
	}
	if c.RolloverInterval <= 0 {
		c.RolloverInterval = time.Minute
	}
	return c
}

// Deps are the collaborators a Scheduler drives.
type Deps struct {
	Jobs        *jobs.Service
	Quota       Admitter
	Transcripts TextLoader
	Directory   Directory
	Analyzer    llm.Analyzer
	Store       object.Store
	Completer   Completer
}

// Scheduler executes admitted jobs.
type Scheduler struct {
	cfg     Config
	deps    Deps
	limiter *rate.Limiter
	queue   chan string
	now     func() time.Time

	mu       sync.Mutex
	timers   map[string]*time.Timer
	stop     chan struct{}
	stopOnce sync.Once
}

// New constructs a Scheduler.
func New(cfg Config, deps Deps) *Scheduler {
	cfg = cfg.withDefaults()
	limit := rate.Inf
	if cfg.RatePerSec > 0 {
		limit = rate.Limit(cfg.RatePerSec)
	}
	return &Scheduler{
		cfg:     cfg,
		deps:    deps,
		limiter: rate.NewLimiter(limit, 1),
		queue:   make(chan string, cfg.QueueSize),
		now:     time.Now,
		timers:  make(map[string]*time.Timer),
		stop:    make(chan struct{}),
	}
}

// Backoff returns min(base·2^attempt, max).
func Backoff(base, max time.Duration, attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 30 {
		return max
	}
	d := base << uint(attempt)
	if d <= 0 || d > max {
		return max
	}
	return d
}

// Submit passes the job through the quota gate and enqueues it. It blocks
// while the queue is full. Deferred jobs are enqueued after rollover;
// rejected jobs are marked Dead.
func (s *Scheduler) Submit(ctx context.Context, j jobs.Job) error {
	if !j.Admitted() {
		res, err := s.deps.Quota.Admit(ctx, j.OrgID, j.ID)
		switch {
		case errors.Is(err, apperr.ErrQuotaExceeded):
			if _, kerr := s.deps.Jobs.Kill(ctx, j.ID, apperr.CodeQuotaExceeded, err.Error()); kerr != nil && !errors.Is(kerr, jobs.ErrInvalidTransition) {
				return kerr
			}
			return nil
		case err != nil:
			return err
		case res.Decision == quota.Deferred:
			return nil
		}
		if _, err := s.deps.Jobs.MarkAdmitted(ctx, j.ID, res.PeriodID); err != nil {
			return err
		}
	}
	return s.enqueue(ctx, j.ID)
}

func (s *Scheduler) enqueue(ctx context.Context, id string) error {
	select {
	case s.queue <- id:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.stop:
		return errors.New("scheduler stopped")
	}
}

// Run starts the workers and the quota rollover loop and blocks until ctx ends.
func (s *Scheduler) Run(ctx context.Context) error {
	defer s.shutdown()
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < s.cfg.Workers; i++ {
		g.Go(func() error {
			s.work(gctx)
			return nil
		})
	}
	g.Go(func() error {
		s.rolloverLoop(gctx)
		return nil
	})
	telemetry.Info("scheduler.started", map[string]any{"workers": s.cfg.Workers, "queue_size": s.cfg.QueueSize})
	err := g.Wait()
	telemetry.Info("scheduler.stopped", nil)
	return err
}

// Drain executes queued jobs on the calling goroutine until the queue is
// empty or ctx ends, and returns how many it processed. It serves processes
// that cannot keep workers alive between requests. Retries scheduled during
// Drain fire only while the process lives; Recover picks up the rest.
func (s *Scheduler) Drain(ctx context.Context) int {
	n := 0
	for ctx.Err() == nil {
		select {
		case id := <-s.queue:
			s.process(ctx, id)
			n++
		default:
			return n
		}
	}
	return n
}

func (s *Scheduler) shutdown() {
	s.stopOnce.Do(func() {
		close(s.stop)
		s.mu.Lock()
		for id, t := range s.timers {
			t.Stop()
			delete(s.timers, id)
		}
		s.mu.Unlock()
	})
}

func (s *Scheduler) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-s.queue:
			s.process(ctx, id)
		}
	}
}

func (s *Scheduler) rolloverLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RolloverInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.ReleaseDeferred(ctx); err != nil && ctx.Err() == nil {
				telemetry.Error("quota.release_failed", map[string]any{telemetry.FieldError: err})
			}
		}
	}
}

// ReleaseDeferred admits jobs deferred in an earlier quota period and enqueues them.
func (s *Scheduler) ReleaseDeferred(ctx context.Context) error {
	released, err := s.deps.Quota.ReleaseDeferred(ctx, s.now())
	for _, r := range released {
		if _, merr := s.deps.Jobs.MarkAdmitted(ctx, r.JobID, r.PeriodID); merr != nil {
			return merr
		}
		if qerr := s.enqueue(ctx, r.JobID); qerr != nil {
			return qerr
		}
	}
	return err
}

// Recover re-enqueues work left behind by a previous process. Pending jobs go
// through Submit, Failed jobs are retried at their scheduled time, and jobs
// stuck in Running count as a failed attempt.
func (s *Scheduler) Recover(ctx context.Context) (int, error) {
	orphaned, err := s.deps.Jobs.Running(ctx)
	if err != nil {
		return 0, err
	}
	handled := make(map[string]struct{}, len(orphaned))
	for _, j := range orphaned {
		if _, err := s.fail(ctx, j, errors.Mark(errors.New("worker stopped during attempt"), apperr.ErrTransient)); err != nil {
			return 0, err
		}
		handled[j.ID] = struct{}{}
	}

	pending, err := s.deps.Jobs.Recoverable(ctx)
	if err != nil {
		return 0, err
	}
	n := len(handled)
	for _, j := range pending {
		if _, ok := handled[j.ID]; ok {
			continue
		}
		switch j.Status {
		case jobs.StatusPending:
			if err := s.Submit(ctx, j); err != nil {
				return n, err
			}
		case jobs.StatusFailed:
			delay := time.Duration(0)
			if j.NextAttemptAt != nil {
				delay = j.NextAttemptAt.Sub(s.now())
			}
			s.retryAfter(j.ID, delay)
		}
		n++
	}
	telemetry.Info("scheduler.recovered", map[string]any{"jobs": n, "orphaned": len(orphaned)})
	return n, nil
}

func (s *Scheduler) retryAfter(id string, delay time.Duration) {
	if delay < 0 {
		delay = 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.stop:
		return
	default:
	}
	if t, ok := s.timers[id]; ok {
		t.Stop()
	}
	s.timers[id] = time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.timers, id)
		s.mu.Unlock()
		select {
		case s.queue <- id:
		case <-s.stop:
		}
	})
}

func (s *Scheduler) process(ctx context.Context, id string) {
	j, err := s.deps.Jobs.Claim(ctx, id)
	if err != nil {
		if !errors.Is(err, jobs.ErrInvalidTransition) && ctx.Err() == nil {
			telemetry.Error("job.claim_failed", map[string]any{telemetry.FieldJobID: id, telemetry.FieldError: err})
		}
		return
	}
	// Bookkeeping must land even when shutdown cancels ctx mid-attempt.
	bctx := context.WithoutCancel(ctx)
	start := time.Now()
	fields := map[string]any{
		telemetry.FieldJobID:  j.ID,
		telemetry.FieldOrgID:  j.OrgID,
		telemetry.FieldPeriod: j.Period,
		"attempt":             j.AttemptCount,
		"target":              string(j.Target) + ":" + j.TargetID,
	}
	telemetry.Info("job.started", fields)

	text, err := s.execute(ctx, j)
	if err == nil {
		err = s.finish(bctx, j, text)
	}
	metrics.ObserveJobDurationMs(metrics.SinceMs(start))
	fields[telemetry.FieldDuration] = metrics.SinceMs(start)
	if err == nil {
		fields[telemetry.FieldStatus] = string(jobs.StatusCompleted)
		telemetry.Info("job.completed", fields)
		return
	}

	updated, ferr := s.fail(bctx, j, err)
	fields[telemetry.FieldError] = err
	if ferr != nil {
		fields["record_error"] = ferr
		telemetry.Error("job.record_failed", fields)
		return
	}
	fields[telemetry.FieldStatus] = string(updated.Status)
	fields["error_code"] = updated.ErrorCode
	telemetry.Warn("job.failed", fields)
}

func (s *Scheduler) finish(ctx context.Context, j jobs.Job, text string) error {
	key := OutputKey(j.ID)
	if _, err := s.deps.Store.SaveWithKey(ctx, key, "text/markdown; charset=utf-8", strings.NewReader(text)); err != nil {
		return errors.Mark(errors.Wrap(err, "save job output"), errStorage)
	}
	done, err := s.deps.Jobs.Complete(ctx, j.ID, key)
	if err != nil {
		return err
	}
	if s.deps.Completer != nil {
		if err := s.deps.Completer.OnCompleted(ctx, done); err != nil {
			telemetry.Error("job.completion_hook_failed", map[string]any{telemetry.FieldJobID: j.ID, telemetry.FieldError: err})
		}
	}
	return nil
}

// OutputKey is the object-store key of a job's analysis output.
func OutputKey(jobID string) string {
	return "outputs/" + jobID + ".md"
}

var errStorage = errors.Mark(errors.New("storage error"), apperr.ErrTransient)

// fail records a failed attempt: transient errors are retried while attempts remain.
func (s *Scheduler) fail(ctx context.Context, j jobs.Job, cause error) (jobs.Job, error) {
	code := errorCode(cause)
	msg := cause.Error()
	if isTransient(cause) && j.AttemptCount < j.MaxAttempts {
		delay := Backoff(s.cfg.RetryBase, s.cfg.RetryMax, j.AttemptCount)
		updated, err := s.deps.Jobs.Fail(ctx, j.ID, code, msg, s.now().Add(delay))
		if err != nil {
			return jobs.Job{}, err
		}
		s.retryAfter(j.ID, delay)
		return updated, nil
	}
	return s.deps.Jobs.Kill(ctx, j.ID, code, msg)
}

// isTransient treats anything not explicitly permanent as retryable; the
// attempt budget bounds the cost of a wrong guess.
func isTransient(err error) bool {
	if errors.Is(err, apperr.ErrPermanent) {
		return false
	}
	return true
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, transcripts.ErrDocumentMissing):
		return apperr.CodeTranscript
	case errors.Is(err, errStorage):
		return apperr.CodeStorage
	case errors.Is(err, apperr.ErrPermanent) && !errors.Is(err, llm.ErrContentRejected) && !errors.Is(err, llm.ErrInvalidInput):
		return apperr.CodeTranscript
	}
	return llm.ErrorCode(err)
}

func (s *Scheduler) execute(ctx context.Context, j jobs.Job) (string, error) {
	sections := make([]llm.Transcript, 0, len(j.TranscriptRefs))
	multi := len(j.TranscriptRefs) > 1
	for _, ref := range j.TranscriptRefs {
		text, err := s.deps.Transcripts.LoadText(ctx, transcripts.Transcript{
			CompanyID:   ref.CompanyID,
			Period:      ref.Period,
			DocumentRef: ref.DocumentRef,
		})
		if err != nil {
			return "", err
		}
		section := llm.Transcript{Period: ref.Period, Text: text}
		if multi {
			section.Company = s.companyName(ctx, j.OrgID, ref.CompanyID)
		}
		sections = append(sections, section)
	}

	prompt := llm.ComposeAnalysis(s.subject(ctx, j), sections, j.PromptSnapshot)
	if err := s.limiter.Wait(ctx); err != nil {
		return "", errors.Mark(errors.Wrap(err, "rate limiter"), apperr.ErrTransient)
	}

	actx, cancel := context.WithTimeout(ctx, s.cfg.AttemptTimeout)
	defer cancel()
	resp, err := s.deps.Analyzer.Analyze(actx, llm.Request{Prompt: prompt, Label: j.ID})
	if err != nil {
		if errors.Is(actx.Err(), context.DeadlineExceeded) && !errors.Is(err, llm.ErrTimeout) {
			return "", errors.Mark(errors.Wrap(err, "attempt timeout"), llm.ErrTimeout)
		}
		return "", err
	}
	return resp.Text, nil
}

func (s *Scheduler) subject(ctx context.Context, j jobs.Job) llm.Subject {
	if j.Target == scope.Group && j.CompanyID == "" {
		if g, err := s.deps.Directory.GetGroup(ctx, j.OrgID, j.GroupID); err == nil {
			return llm.Subject{Name: g.Name}
		}
		return llm.Subject{Name: j.GroupID}
	}
	c, err := s.deps.Directory.GetCompany(ctx, j.OrgID, j.CompanyID)
	if err != nil {
		return llm.Subject{Name: j.CompanyID}
	}
	return llm.Subject{Name: c.Name, ISIN: c.ISIN}
}

func (s *Scheduler) companyName(ctx context.Context, orgID, companyID string) string {
	if c, err := s.deps.Directory.GetCompany(ctx, orgID, companyID); err == nil && c.Name != "" {
		return c.Name
	}
	return companyID
}
