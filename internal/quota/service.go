package quota

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"transcript-backend/internal/orgs"
	"transcript-backend/internal/shared/metrics"
	"transcript-backend/internal/shared/telemetry"
)

// DefaultDeferDepth bounds the per-org deferred queue when none is configured.
const DefaultDeferDepth = 100

// Service gates job dispatch against each organization's plan limit.
// Deferred jobs are held in memory; after a restart they are pending again
// and go through admission once more.
type Service struct {
	store      store
	Orgs       orgs.Repo
	Policy     Policy
	DeferDepth int
	Now        func() time.Time

	mu       sync.Mutex
	deferred map[string][]string
}

// NewService constructs a Service backed by in-memory counters.
func NewService(orgRepo orgs.Repo, policy Policy, deferDepth int) *Service {
	return newService(newMemoryStore(), orgRepo, policy, deferDepth)
}

// NewPostgresService constructs a Service backed by the quota_counters table.
func NewPostgresService(pgStore store, orgRepo orgs.Repo, policy Policy, deferDepth int) *Service {
	return newService(pgStore, orgRepo, policy, deferDepth)
}

func newService(st store, orgRepo orgs.Repo, policy Policy, deferDepth int) *Service {
	if policy != PolicyReject {
		policy = PolicyDefer
	}
	if deferDepth <= 0 {
		deferDepth = DefaultDeferDepth
	}
	return &Service{
		store:      st,
		Orgs:       orgRepo,
		Policy:     policy,
		DeferDepth: deferDepth,
		Now:        time.Now,
		deferred:   make(map[string][]string),
	}
}

func (s *Service) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now().UTC()
}

// Admit decides whether jobID may be dispatched now. Admitted increments the
// org's counter for the current period. Rejected returns ErrLimitReached.
func (s *Service) Admit(ctx context.Context, orgID, jobID string) (Result, error) {
	org, err := s.Orgs.Get(ctx, orgID)
	if err != nil {
		return Result{}, err
	}
	now := s.now()
	periodID := org.Plan.PeriodID(now)
	fields := map[string]any{
		telemetry.FieldOrgID: orgID,
		telemetry.FieldJobID: jobID,
		"period_id":          periodID,
	}

	// Jobs already waiting for rollover keep their place; new work queues
	// behind them until ReleaseDeferred drains the queue.
	if waiting, queued := s.deferBehind(orgID, jobID); waiting {
		if queued {
			metrics.IncQuotaDeferred()
			telemetry.Info("quota.deferred", fields)
			return Result{PeriodID: periodID, Decision: Deferred}, nil
		}
		metrics.IncQuotaRejected()
		telemetry.Warn("quota.rejected", fields)
		return Result{PeriodID: periodID, Decision: Rejected}, errors.Wrapf(ErrLimitReached, "org %s period %s", orgID, periodID)
	}

	c, ok, err := s.store.Increment(ctx, orgID, periodID, org.Plan.JobLimit, now)
	if err != nil {
		return Result{}, errors.Wrapf(err, "admit job %s", jobID)
	}
	res := Result{PeriodID: periodID, Counter: c}
	if ok {
		metrics.IncQuotaAdmitted()
		res.Decision = Admitted
		return res, nil
	}

	fields["limit"] = c.Limit
	if s.Policy == PolicyDefer && s.deferJob(orgID, jobID) {
		metrics.IncQuotaDeferred()
		telemetry.Info("quota.deferred", fields)
		res.Decision = Deferred
		return res, nil
	}
	metrics.IncQuotaRejected()
	telemetry.Warn("quota.rejected", fields)
	res.Decision = Rejected
	return res, errors.Wrapf(ErrLimitReached, "org %s period %s", orgID, periodID)
}

// deferBehind reports whether the org has jobs waiting for rollover and, if
// so, whether jobID now holds a place in that queue.
func (s *Service) deferBehind(orgID, jobID string) (waiting, queued bool) {
	if s.Policy != PolicyDefer {
		return false, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	queue := s.deferred[orgID]
	if len(queue) == 0 {
		return false, false
	}
	for _, id := range queue {
		if id == jobID {
			return true, true
		}
	}
	if len(queue) >= s.DeferDepth {
		return true, false
	}
	s.deferred[orgID] = append(queue, jobID)
	return true, true
}

func (s *Service) deferJob(orgID, jobID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	queue := s.deferred[orgID]
	for _, id := range queue {
		if id == jobID {
			return true
		}
	}
	if len(queue) >= s.DeferDepth {
		return false
	}
	s.deferred[orgID] = append(queue, jobID)
	return true
}

// ReleaseDeferred admits deferred jobs in FIFO order while their org has room
// in the period containing now. It stops at the first job that does not fit.
func (s *Service) ReleaseDeferred(ctx context.Context, now time.Time) ([]Release, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	orgIDs := make([]string, 0, len(s.deferred))
	for id := range s.deferred {
		orgIDs = append(orgIDs, id)
	}
	sort.Strings(orgIDs)

	released := make([]Release, 0)
	for _, orgID := range orgIDs {
		org, err := s.Orgs.Get(ctx, orgID)
		if err != nil {
			return released, err
		}
		periodID := org.Plan.PeriodID(now)
		queue := s.deferred[orgID]
		n := 0
		for _, jobID := range queue {
			_, ok, err := s.store.Increment(ctx, orgID, periodID, org.Plan.JobLimit, now.UTC())
			if err != nil {
				s.deferred[orgID] = queue[n:]
				return released, err
			}
			if !ok {
				break
			}
			metrics.IncQuotaAdmitted()
			released = append(released, Release{OrgID: orgID, JobID: jobID, PeriodID: periodID})
			n++
		}
		if n == len(queue) {
			delete(s.deferred, orgID)
		} else {
			s.deferred[orgID] = queue[n:]
		}
	}
	if len(released) > 0 {
		telemetry.Info("quota.released", map[string]any{"count": len(released)})
	}
	return released, nil
}

// DeferredCount returns how many jobs of the org wait for rollover.
func (s *Service) DeferredCount(orgID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.deferred[orgID])
}

// Usage returns the org's counter for the current period.
func (s *Service) Usage(ctx context.Context, orgID string) (Usage, error) {
	org, err := s.Orgs.Get(ctx, orgID)
	if err != nil {
		return Usage{}, err
	}
	periodID := org.Plan.PeriodID(s.now())
	c, err := s.store.Get(ctx, orgID, periodID, org.Plan.JobLimit)
	if err != nil {
		return Usage{}, err
	}
	remaining := org.Plan.JobLimit - c.Count
	if remaining < 0 {
		remaining = 0
	}
	return Usage{
		OrgID:     orgID,
		Plan:      org.Plan.Name,
		Period:    org.Plan.Period,
		PeriodID:  periodID,
		Used:      c.Count,
		Limit:     org.Plan.JobLimit,
		Remaining: remaining,
		Deferred:  s.DeferredCount(orgID),
		Policy:    s.Policy,
	}, nil
}
