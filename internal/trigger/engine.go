package trigger

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"transcript-backend/internal/jobs"
	"transcript-backend/internal/prompts"
	"transcript-backend/internal/registry"
	"transcript-backend/internal/shared/apperr"
	"transcript-backend/internal/shared/metrics"
	"transcript-backend/internal/shared/scope"
	"transcript-backend/internal/shared/telemetry"
	"transcript-backend/internal/transcripts"
)

// Directory is the registry view the engine reads.
type Directory interface {
	GetCompany(ctx context.Context, orgID, companyID string) (registry.Company, error)
	GetGroup(ctx context.Context, orgID, groupID string) (registry.Group, error)
	GroupsForCompany(ctx context.Context, companyID string) ([]registry.Group, error)
}

// Resolver decides which prompts apply.
type Resolver interface {
	Resolve(ctx context.Context, companyID string, asOf time.Time) ([]prompts.Resolution, error)
	ResolveTarget(ctx context.Context, orgID string, target scope.Scope, targetID string, asOf time.Time) (prompts.Prompt, error)
	HasOverride(ctx context.Context, companyID string, asOf time.Time) (bool, error)
}

// Transcripts records arrivals and lists available transcripts.
type Transcripts interface {
	Record(ctx context.Context, t transcripts.Transcript) (transcripts.Transcript, bool, error)
	Get(ctx context.Context, companyID, period string) (transcripts.Transcript, error)
	Latest(ctx context.Context, companyID string) (transcripts.Transcript, error)
	ListForPeriod(ctx context.Context, companyIDs []string, period string) ([]transcripts.Transcript, error)
	ListByCompany(ctx context.Context, companyID string) ([]transcripts.Transcript, error)
}

// Submitter hands created jobs to the scheduler.
type Submitter interface {
	Submit(ctx context.Context, j jobs.Job) error
}

// Engine turns transcript arrivals and manual run commands into analysis jobs.
type Engine struct {
	Directory   Directory
	Resolver    Resolver
	Transcripts Transcripts
	Jobs        *jobs.Service
	Submitter   Submitter
	DeadLetters DeadLetterRepo
	Now         func() time.Time

	gate *gate
}

// NewEngine constructs an Engine. A nil submitter leaves created jobs Pending
// for a later Recover.
func NewEngine(dir Directory, resolver Resolver, ts Transcripts, jobSvc *jobs.Service, sub Submitter, dead DeadLetterRepo) *Engine {
	return &Engine{
		Directory:   dir,
		Resolver:    resolver,
		Transcripts: ts,
		Jobs:        jobSvc,
		Submitter:   sub,
		DeadLetters: dead,
		Now:         time.Now,
		gate:        newGate(),
	}
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now().UTC()
	}
	return time.Now().UTC()
}

// HandleArrival records the transcript and requests every job the arrival
// makes due. Unknown companies are dead-lettered and reported as not found.
func (e *Engine) HandleArrival(ctx context.Context, a Arrival) (Outcome, error) {
	metrics.IncArrivalsReceived()
	a.CompanyID = strings.TrimSpace(a.CompanyID)
	a.Period = strings.TrimSpace(a.Period)
	if a.ReceivedAt.IsZero() {
		a.ReceivedAt = e.now()
	}
	if err := validateArrival(a); err != nil {
		return Outcome{}, err
	}

	company, err := e.Directory.GetCompany(ctx, "", a.CompanyID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			e.DeadLetter(ctx, a, ReasonUnknownCompany, err)
		}
		return Outcome{}, err
	}

	t, _, err := e.Transcripts.Record(ctx, transcripts.Transcript{
		CompanyID:   a.CompanyID,
		Period:      a.Period,
		DocumentRef: a.DocumentRef,
		ReceivedAt:  a.ReceivedAt,
	})
	if err != nil {
		return Outcome{}, errors.Wrap(err, "record transcript")
	}
	out := Outcome{Transcript: t}
	fields := map[string]any{
		telemetry.FieldOrgID:     company.OrgID,
		telemetry.FieldCompanyID: company.ID,
		telemetry.FieldPeriod:    a.Period,
	}

	// The recorded transcript keeps the first delivery's time, so a
	// redelivery resolves the same prompt versions.
	pairs, err := e.Resolver.Resolve(ctx, company.ID, t.ReceivedAt)
	if err != nil {
		return out, errors.Wrap(err, "resolve prompts")
	}
	ref := refOf(t)
	for _, p := range pairs {
		req := jobs.Request{
			OrgID:          company.OrgID,
			Target:         p.Target,
			TargetID:       p.TargetID,
			CompanyID:      company.ID,
			Period:         a.Period,
			PromptID:       p.Prompt.ID,
			PromptRef:      p.Prompt.Ref(),
			PromptText:     p.Prompt.Text,
			TranscriptRefs: []jobs.TranscriptRef{ref},
			Trigger:        jobs.TriggerAuto,
		}
		if p.Target == scope.Group {
			g, err := e.Directory.GetGroup(ctx, company.OrgID, p.TargetID)
			if err != nil {
				return out, err
			}
			if g.Gated() {
				continue
			}
			req.GroupID = g.ID
		}
		if err := e.request(ctx, req, &out); err != nil {
			return out, err
		}
	}

	groups, err := e.Directory.GroupsForCompany(ctx, company.ID)
	if err != nil {
		return out, errors.Wrap(err, "groups for company")
	}
	for _, g := range groups {
		if !g.Gated() {
			continue
		}
		req, ok, err := e.evaluateGate(ctx, company, g.ID, a.Period)
		if err != nil {
			return out, err
		}
		if ok {
			if err := e.request(ctx, req, &out); err != nil {
				return out, err
			}
		}
	}

	fields["created"] = len(out.Created)
	fields["duplicates"] = out.Duplicates
	telemetry.Info("arrival.handled", fields)
	return out, nil
}

// evaluateGate records that company reported for (group, period) and returns
// the group job request on the transition to every current member reported.
// Prompts and overrides are resolved as of the moment the last member
// reported, so a later evaluation of a completed period reaches the same
// decision.
func (e *Engine) evaluateGate(ctx context.Context, company registry.Company, groupID, period string) (jobs.Request, bool, error) {
	unlock := e.gate.lock(groupID)
	defer unlock()

	key := gateKey(groupID, period)
	if e.gate.hasFired(key) {
		return jobs.Request{}, false, nil
	}
	g, err := e.Directory.GetGroup(ctx, company.OrgID, groupID)
	if err != nil {
		return jobs.Request{}, false, err
	}
	fired, err := e.groupJobExists(ctx, g, period)
	if err != nil {
		return jobs.Request{}, false, err
	}
	if fired {
		e.gate.markFired(key)
		return jobs.Request{}, false, nil
	}

	reported, err := e.Transcripts.ListForPeriod(ctx, g.Members, period)
	if err != nil {
		return jobs.Request{}, false, errors.Wrap(err, "list reported members")
	}
	fields := map[string]any{
		telemetry.FieldGroupID: g.ID,
		telemetry.FieldPeriod:  period,
		"reported":             len(reported),
		"members":              len(g.Members),
	}
	if len(g.Members) == 0 || len(reported) < len(g.Members) {
		telemetry.Info("gate.waiting", fields)
		return jobs.Request{}, false, nil
	}

	completedAt := completionTime(reported)
	p, err := e.Resolver.ResolveTarget(ctx, g.OrgID, scope.Group, g.ID, completedAt)
	if errors.Is(err, prompts.ErrNoActivePrompt) {
		e.gate.markFired(key)
		telemetry.Info("gate.complete_without_prompt", fields)
		return jobs.Request{}, false, nil
	}
	if err != nil {
		return jobs.Request{}, false, err
	}
	refs, err := e.groupRefs(ctx, reported, completedAt)
	if err != nil {
		return jobs.Request{}, false, err
	}
	e.gate.markFired(key)
	if len(refs) == 0 {
		telemetry.Info("gate.complete_all_overridden", fields)
		return jobs.Request{}, false, nil
	}
	telemetry.Info("gate.fired", fields)
	return jobs.Request{
		OrgID:          g.OrgID,
		Target:         scope.Group,
		TargetID:       g.ID,
		GroupID:        g.ID,
		Period:         period,
		PromptID:       p.ID,
		PromptRef:      p.Ref(),
		PromptText:     p.Text,
		TranscriptRefs: refs,
		Trigger:        jobs.TriggerAuto,
	}, true, nil
}

// completionTime is when the last of the reported members arrived.
func completionTime(list []transcripts.Transcript) time.Time {
	var at time.Time
	for _, t := range list {
		if t.ReceivedAt.After(at) {
			at = t.ReceivedAt
		}
	}
	return at
}

// groupJobExists reports whether an automatic group-level job already exists
// for the period, so the gate stays fired across restarts.
func (e *Engine) groupJobExists(ctx context.Context, g registry.Group, period string) (bool, error) {
	list, err := e.Jobs.ListForGroup(ctx, g.OrgID, g.ID)
	if err != nil {
		return false, err
	}
	for _, j := range list {
		if j.Target == scope.Group && j.CompanyID == "" && j.Period == period && j.Trigger == jobs.TriggerAuto {
			return true, nil
		}
	}
	return false, nil
}

// groupRefs returns the transcripts of members without an active override.
func (e *Engine) groupRefs(ctx context.Context, list []transcripts.Transcript, asOf time.Time) ([]jobs.TranscriptRef, error) {
	refs := make([]jobs.TranscriptRef, 0, len(list))
	for _, t := range list {
		overridden, err := e.Resolver.HasOverride(ctx, t.CompanyID, asOf)
		if err != nil {
			return nil, err
		}
		if !overridden {
			refs = append(refs, refOf(t))
		}
	}
	return refs, nil
}

// RunNowGroup creates a manual group-level job over every member's transcript
// for the period, bypassing the all-reported gate.
func (e *Engine) RunNowGroup(ctx context.Context, req RunRequest) (jobs.Job, bool, error) {
	g, err := e.Directory.GetGroup(ctx, req.OrgID, req.TargetID)
	if err != nil {
		return jobs.Job{}, false, err
	}
	now := e.now()
	period := strings.TrimSpace(req.Period)
	if period == "" {
		if period, err = e.latestPeriod(ctx, g.Members); err != nil {
			return jobs.Job{}, false, err
		}
	}
	list, err := e.Transcripts.ListForPeriod(ctx, g.Members, period)
	if err != nil {
		return jobs.Job{}, false, err
	}
	refs, err := e.groupRefs(ctx, list, now)
	if err != nil {
		return jobs.Job{}, false, err
	}
	if len(refs) == 0 {
		return jobs.Job{}, false, apperr.Validationf("no member transcripts for period %s", period)
	}
	p, err := e.Resolver.ResolveTarget(ctx, g.OrgID, scope.Group, g.ID, now)
	if err != nil {
		return jobs.Job{}, false, err
	}
	return e.runNow(ctx, jobs.Request{
		OrgID:          g.OrgID,
		Target:         scope.Group,
		TargetID:       g.ID,
		GroupID:        g.ID,
		Period:         period,
		PromptID:       p.ID,
		PromptRef:      p.Ref(),
		PromptText:     p.Text,
		TranscriptRefs: refs,
		Trigger:        jobs.TriggerManual,
		Nonce:          req.Nonce,
	})
}

// RunNowCompany creates a manual company job using its override or the org
// default prompt. An empty period uses the latest transcript.
func (e *Engine) RunNowCompany(ctx context.Context, req RunRequest) (jobs.Job, bool, error) {
	c, err := e.Directory.GetCompany(ctx, req.OrgID, req.TargetID)
	if err != nil {
		return jobs.Job{}, false, err
	}
	var t transcripts.Transcript
	if period := strings.TrimSpace(req.Period); period != "" {
		t, err = e.Transcripts.Get(ctx, c.ID, period)
	} else {
		t, err = e.Transcripts.Latest(ctx, c.ID)
	}
	if err != nil {
		return jobs.Job{}, false, err
	}
	p, err := e.Resolver.ResolveTarget(ctx, c.OrgID, scope.Company, c.ID, e.now())
	if err != nil {
		return jobs.Job{}, false, err
	}
	return e.runNow(ctx, jobs.Request{
		OrgID:          c.OrgID,
		Target:         scope.Company,
		TargetID:       c.ID,
		CompanyID:      c.ID,
		Period:         t.Period,
		PromptID:       p.ID,
		PromptRef:      p.Ref(),
		PromptText:     p.Text,
		TranscriptRefs: []jobs.TranscriptRef{refOf(t)},
		Trigger:        jobs.TriggerManual,
		Nonce:          req.Nonce,
	})
}

func (e *Engine) runNow(ctx context.Context, req jobs.Request) (jobs.Job, bool, error) {
	if strings.TrimSpace(req.Nonce) == "" {
		req.Nonce = uuid.NewString()
	}
	return e.create(ctx, req)
}

// request creates the job and records it on out.
func (e *Engine) request(ctx context.Context, req jobs.Request, out *Outcome) error {
	j, created, err := e.create(ctx, req)
	if err != nil {
		return err
	}
	if created {
		out.Created = append(out.Created, j)
	} else {
		out.Duplicates++
	}
	return nil
}

// create inserts the job and submits it when new. Duplicates return the
// existing job unchanged.
func (e *Engine) create(ctx context.Context, req jobs.Request) (jobs.Job, bool, error) {
	j, created, err := e.Jobs.Create(ctx, req)
	if err != nil || !created {
		return j, false, err
	}
	if e.Submitter == nil {
		return j, true, nil
	}
	if err := e.Submitter.Submit(ctx, j); err != nil {
		telemetry.Warn("job.submit_deferred", map[string]any{
			telemetry.FieldJobID: j.ID,
			telemetry.FieldError: err,
		})
	}
	return j, true, nil
}

func (e *Engine) latestPeriod(ctx context.Context, companyIDs []string) (string, error) {
	latest := ""
	for _, id := range companyIDs {
		t, err := e.Transcripts.Latest(ctx, id)
		if errors.Is(err, apperr.ErrNotFound) {
			continue
		}
		if err != nil {
			return "", err
		}
		if latest == "" || transcripts.ComparePeriods(t.Period, latest) > 0 {
			latest = t.Period
		}
	}
	if latest == "" {
		return "", apperr.Validationf("no member transcripts available")
	}
	return latest, nil
}

// DeadLetter stores an arrival that will not be retried.
func (e *Engine) DeadLetter(ctx context.Context, a Arrival, reason string, cause error) {
	metrics.IncArrivalsDeadLettered()
	d := DeadLetter{
		ID:        uuid.NewString(),
		Arrival:   a,
		Reason:    reason,
		CreatedAt: e.now(),
	}
	if cause != nil {
		d.Error = cause.Error()
	}
	fields := map[string]any{
		telemetry.FieldCompanyID: a.CompanyID,
		telemetry.FieldPeriod:    a.Period,
		"reason":                 reason,
		telemetry.FieldError:     cause,
	}
	if e.DeadLetters == nil {
		telemetry.Error("arrival.dead_lettered", fields)
		return
	}
	if err := e.DeadLetters.Add(context.WithoutCancel(ctx), d); err != nil {
		fields["store_error"] = err
	}
	telemetry.Error("arrival.dead_lettered", fields)
}

// ListDeadLetters returns recent dead letters, newest first.
func (e *Engine) ListDeadLetters(ctx context.Context, limit int) ([]DeadLetter, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return e.DeadLetters.List(ctx, limit)
}

func validateArrival(a Arrival) error {
	switch {
	case a.CompanyID == "":
		return apperr.Validationf("company_id is required")
	case a.Period == "":
		return apperr.Validationf("period is required")
	case strings.TrimSpace(a.DocumentRef) == "":
		return apperr.Validationf("document_ref is required")
	}
	return nil
}

func refOf(t transcripts.Transcript) jobs.TranscriptRef {
	return jobs.TranscriptRef{CompanyID: t.CompanyID, Period: t.Period, DocumentRef: t.DocumentRef}
}

// gate tracks which (group, period) pairs already fired and serializes gate
// evaluation per group.
type gate struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
	fired map[string]struct{}
}

func newGate() *gate {
	return &gate{locks: make(map[string]*sync.Mutex), fired: make(map[string]struct{})}
}

func (g *gate) lock(groupID string) func() {
	g.mu.Lock()
	l, ok := g.locks[groupID]
	if !ok {
		l = &sync.Mutex{}
		g.locks[groupID] = l
	}
	g.mu.Unlock()
	l.Lock()
	return l.Unlock
}

func (g *gate) hasFired(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.fired[key]
	return ok
}

func (g *gate) markFired(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fired[key] = struct{}{}
}

func gateKey(groupID, period string) string {
	return groupID + "|" + period
}
