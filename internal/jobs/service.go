package jobs

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"transcript-backend/internal/shared/apperr"
	"transcript-backend/internal/shared/metrics"
	"transcript-backend/internal/shared/scope"
	"transcript-backend/internal/shared/telemetry"
)

// Service owns job records and their state machine.
type Service struct {
	Repo        Repo
	MaxAttempts int
	Now         func() time.Time
}

// NewService constructs a Service. A non-positive maxAttempts uses DefaultMaxAttempts.
func NewService(repo Repo, maxAttempts int) *Service {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Service{Repo: repo, MaxAttempts: maxAttempts, Now: time.Now}
}

func (s *Service) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now().UTC()
}

// Create inserts the job for req unless its idempotency key already exists.
// A duplicate returns the existing job and created=false.
func (s *Service) Create(ctx context.Context, req Request) (Job, bool, error) {
	if err := validateRequest(req); err != nil {
		return Job{}, false, err
	}
	if req.Trigger == "" {
		req.Trigger = TriggerAuto
	}
	now := s.now()
	j := Job{
		ID:             uuid.NewString(),
		IdempotencyKey: KeyFor(req),
		OrgID:          req.OrgID,
		Target:         req.Target,
		TargetID:       req.TargetID,
		CompanyID:      req.CompanyID,
		GroupID:        req.GroupID,
		Period:         req.Period,
		PromptID:       req.PromptID,
		PromptRef:      req.PromptRef,
		PromptSnapshot: req.PromptText,
		TranscriptRefs: append([]TranscriptRef(nil), req.TranscriptRefs...),
		Trigger:        req.Trigger,
		Nonce:          req.Nonce,
		Status:         StatusPending,
		MaxAttempts:    s.MaxAttempts,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	stored, created, err := s.Repo.CreateIfAbsent(ctx, j)
	if err != nil {
		return Job{}, false, err
	}
	if !created {
		metrics.IncJobsDuplicate()
		return stored, false, nil
	}
	metrics.IncJobsCreated()
	telemetry.Info("job.created", map[string]any{
		telemetry.FieldJobID:     stored.ID,
		telemetry.FieldOrgID:     stored.OrgID,
		telemetry.FieldCompanyID: stored.CompanyID,
		telemetry.FieldGroupID:   stored.GroupID,
		telemetry.FieldPeriod:    stored.Period,
		"target":                 string(stored.Target) + ":" + stored.TargetID,
		"prompt_ref":             stored.PromptRef,
		"trigger":                string(stored.Trigger),
	})
	return stored, true, nil
}

func validateRequest(req Request) error {
	switch {
	case strings.TrimSpace(req.OrgID) == "":
		return apperr.Validationf("org id is required")
	case req.Target != scope.Org && req.Target != scope.Group && req.Target != scope.Company:
		return apperr.Validationf("unknown target scope %q", req.Target)
	case strings.TrimSpace(req.TargetID) == "":
		return apperr.Validationf("target id is required")
	case req.Subject() == "":
		return apperr.Validationf("job needs a subject company or group")
	case strings.TrimSpace(req.Period) == "":
		return apperr.Validationf("period is required")
	case req.PromptRef == "" || strings.TrimSpace(req.PromptText) == "":
		return apperr.Validationf("prompt is required")
	case len(req.TranscriptRefs) == 0:
		return apperr.Validationf("at least one transcript is required")
	}
	return nil
}

// Get returns a job owned by orgID. An empty orgID skips the ownership check.
func (s *Service) Get(ctx context.Context, orgID, id string) (Job, error) {
	j, err := s.Repo.Get(ctx, id)
	if err != nil {
		return Job{}, err
	}
	if orgID != "" && j.OrgID != orgID {
		return Job{}, ErrNotFound
	}
	return j, nil
}

// ListForCompany returns jobs whose subject is the company.
func (s *Service) ListForCompany(ctx context.Context, orgID, companyID string) ([]Job, error) {
	return s.Repo.ListByCompany(ctx, orgID, companyID)
}

// ListForGroup returns jobs run under the group's prompt.
func (s *Service) ListForGroup(ctx context.Context, orgID, groupID string) ([]Job, error) {
	return s.Repo.ListByGroup(ctx, orgID, groupID)
}

// CompletedGroupOutputs returns the org's completed group-target jobs, newest first.
func (s *Service) CompletedGroupOutputs(ctx context.Context, orgID string) ([]Job, error) {
	return s.Repo.ListCompleted(ctx, orgID, scope.Group)
}

// Recoverable returns Pending and Failed jobs, oldest first.
func (s *Service) Recoverable(ctx context.Context) ([]Job, error) {
	out := make([]Job, 0)
	for _, st := range []Status{StatusPending, StatusFailed} {
		list, err := s.Repo.ListByStatus(ctx, st)
		if err != nil {
			return nil, err
		}
		out = append(out, list...)
	}
	sort.SliceStable(out, func(i, k int) bool {
		return out[i].CreatedAt.Before(out[k].CreatedAt)
	})
	return out, nil
}

// Running returns jobs currently marked Running.
func (s *Service) Running(ctx context.Context) ([]Job, error) {
	return s.Repo.ListByStatus(ctx, StatusRunning)
}

// Cancel cancels a Pending job. Claimed jobs run to completion.
func (s *Service) Cancel(ctx context.Context, orgID, id string) (Job, error) {
	if _, err := s.Get(ctx, orgID, id); err != nil {
		return Job{}, err
	}
	return s.Repo.Transition(ctx, id, StatusCanceled, s.now(), func(j *Job) {
		j.ErrorCode = apperr.CodeCanceled
	})
}

// CancelPending cancels Pending jobs of a target; it satisfies the registry's canceler.
func (s *Service) CancelPending(ctx context.Context, target scope.Scope, targetID, companyID string) (int, error) {
	return s.Repo.CancelPending(ctx, target, targetID, companyID, s.now())
}

// MarkAdmitted records the quota period the job was admitted under.
func (s *Service) MarkAdmitted(ctx context.Context, id, periodID string) (bool, error) {
	return s.Repo.MarkAdmitted(ctx, id, periodID, s.now())
}

// Claim moves a Pending or Failed job to Running and counts the attempt.
func (s *Service) Claim(ctx context.Context, id string) (Job, error) {
	now := s.now()
	j, err := s.Repo.Transition(ctx, id, StatusRunning, now, func(j *Job) {
		j.AttemptCount++
		j.NextAttemptAt = nil
		j.StartedAt = &now
	})
	if err != nil {
		return Job{}, err
	}
	metrics.IncJobsStarted()
	return j, nil
}

// Complete records a successful attempt.
func (s *Service) Complete(ctx context.Context, id, outputRef string) (Job, error) {
	now := s.now()
	j, err := s.Repo.Transition(ctx, id, StatusCompleted, now, func(j *Job) {
		j.OutputRef = outputRef
		j.ErrorCode = ""
		j.LastError = ""
		j.CompletedAt = &now
	})
	if err != nil {
		return Job{}, err
	}
	metrics.IncJobsCompleted()
	return j, nil
}

// Fail records a transient failure; the job becomes eligible again at retryAt.
func (s *Service) Fail(ctx context.Context, id, code, message string, retryAt time.Time) (Job, error) {
	j, err := s.Repo.Transition(ctx, id, StatusFailed, s.now(), func(j *Job) {
		j.ErrorCode = code
		j.LastError = message
		j.NextAttemptAt = &retryAt
	})
	if err != nil {
		return Job{}, err
	}
	metrics.IncJobsRetried()
	return j, nil
}

// Kill moves the job to Dead, keeping the error for inspection.
func (s *Service) Kill(ctx context.Context, id, code, message string) (Job, error) {
	now := s.now()
	j, err := s.Repo.Transition(ctx, id, StatusDead, now, func(j *Job) {
		j.ErrorCode = code
		j.LastError = message
		j.NextAttemptAt = nil
		j.CompletedAt = &now
	})
	if err != nil {
		return Job{}, err
	}
	metrics.IncJobsDead()
	return j, nil
}
