package distribution

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"transcript-backend/internal/jobs"
	"transcript-backend/internal/orgs"
	"transcript-backend/internal/registry"
	"transcript-backend/internal/shared/metrics"
	"transcript-backend/internal/shared/scope"
	"transcript-backend/internal/shared/storage/object"
	"transcript-backend/internal/shared/telemetry"
)

const (
	defaultAttempts   = 3
	defaultRetryDelay = 300 * time.Millisecond
)

// Directory exposes the email settings of groups and companies.
type Directory interface {
	GetCompany(ctx context.Context, orgID, companyID string) (registry.Company, error)
	GetGroup(ctx context.Context, orgID, groupID string) (registry.Group, error)
}

// Manager emails completed job outputs to the target's recipients, at most once per job.
type Manager struct {
	Repo       Repo
	Sender     Sender
	Directory  Directory
	Orgs       orgs.Repo
	Store      object.Store
	Attempts   int
	RetryDelay time.Duration
	Now        func() time.Time
}

// NewManager constructs a Manager. A non-positive attempts uses three.
func NewManager(repo Repo, sender Sender, dir Directory, orgRepo orgs.Repo, store object.Store, attempts int) *Manager {
	if attempts <= 0 {
		attempts = defaultAttempts
	}
	return &Manager{
		Repo:       repo,
		Sender:     sender,
		Directory:  dir,
		Orgs:       orgRepo,
		Store:      store,
		Attempts:   attempts,
		RetryDelay: defaultRetryDelay,
		Now:        time.Now,
	}
}

// delivery is the resolved email configuration for one job's target.
type delivery struct {
	enabled    bool
	name       string
	recipients []string
}

// OnCompleted sends the job's output unless auto-email is off for its target
// or a dispatch for the job already exists. Send failures are recorded on the
// dispatch and never touch the job.
func (m *Manager) OnCompleted(ctx context.Context, j jobs.Job) error {
	if j.Status != jobs.StatusCompleted {
		return nil
	}
	fields := map[string]any{
		telemetry.FieldJobID: j.ID,
		telemetry.FieldOrgID: j.OrgID,
		"target":             string(j.Target) + ":" + j.TargetID,
	}
	dl, err := m.resolve(ctx, j)
	if err != nil {
		return errors.Wrapf(err, "resolve recipients for job %s", j.ID)
	}
	if !dl.enabled {
		telemetry.Info("email.skipped", withReason(fields, "auto_email_off"))
		return nil
	}
	if len(dl.recipients) == 0 {
		telemetry.Info("email.skipped", withReason(fields, "no_recipients"))
		return nil
	}

	d := Dispatch{
		JobID:      j.ID,
		Recipients: dl.recipients,
		Subject:    fmt.Sprintf("[Transcript Analysis] %s %s", dl.name, j.Period),
		Status:     StatusPending,
		CreatedAt:  m.now(),
	}
	claimed, err := m.Repo.Claim(ctx, d)
	if err != nil {
		return err
	}
	if !claimed {
		telemetry.Info("email.skipped", withReason(fields, "already_dispatched"))
		return nil
	}

	body, err := m.body(ctx, j, dl.name)
	if err != nil {
		return m.record(ctx, d, err, fields)
	}
	msg := Message{To: dl.recipients, Subject: d.Subject, Body: body}

	var sendErr error
	for attempt := 1; attempt <= m.Attempts; attempt++ {
		d.Attempts = attempt
		if sendErr = m.Sender.Send(ctx, msg); sendErr == nil {
			break
		}
		if attempt < m.Attempts {
			select {
			case <-time.After(m.RetryDelay * time.Duration(attempt)):
			case <-ctx.Done():
				return m.record(ctx, d, ctx.Err(), fields)
			}
		}
	}
	return m.record(ctx, d, sendErr, fields)
}

func (m *Manager) record(ctx context.Context, d Dispatch, sendErr error, fields map[string]any) error {
	if sendErr == nil {
		sentAt := m.now()
		d.Status = StatusSent
		d.SentAt = &sentAt
		metrics.IncEmailSent()
		fields["recipients"] = len(d.Recipients)
		telemetry.Info("email.dispatched", fields)
	} else {
		d.Status = StatusFailed
		d.LastError = sendErr.Error()
		metrics.IncEmailFailed()
		fields[telemetry.FieldError] = sendErr
		fields["attempts"] = d.Attempts
		telemetry.Error("EmailDispatchFailure", fields)
	}
	if err := m.Repo.Update(context.WithoutCancel(ctx), d); err != nil {
		return errors.Wrapf(err, "record dispatch for job %s", d.JobID)
	}
	if sendErr != nil {
		return errors.Wrapf(ErrDispatchFailed, "job %s: %v", d.JobID, sendErr)
	}
	return nil
}

func (m *Manager) resolve(ctx context.Context, j jobs.Job) (delivery, error) {
	switch j.Target {
	case scope.Group:
		g, err := m.Directory.GetGroup(ctx, j.OrgID, j.GroupID)
		if err != nil {
			return delivery{}, err
		}
		return delivery{enabled: g.AutoEmail, name: g.Name, recipients: MergeRecipients(g.Recipients)}, nil
	case scope.Company:
		c, err := m.Directory.GetCompany(ctx, j.OrgID, j.CompanyID)
		if err != nil {
			return delivery{}, err
		}
		return delivery{enabled: c.AutoEmail, name: c.Name, recipients: MergeRecipients(c.Recipients)}, nil
	default:
		c, err := m.Directory.GetCompany(ctx, j.OrgID, j.CompanyID)
		if err != nil {
			return delivery{}, err
		}
		org, err := m.Orgs.Get(ctx, j.OrgID)
		if err != nil {
			return delivery{}, err
		}
		return delivery{enabled: c.AutoEmail, name: c.Name, recipients: MergeRecipients(c.Recipients, org.DefaultRecipients)}, nil
	}
}

func (m *Manager) body(ctx context.Context, j jobs.Job, name string) (string, error) {
	r, err := m.Store.Open(ctx, j.OutputRef)
	if err != nil {
		return "", errors.Wrapf(err, "open output %s", j.OutputRef)
	}
	defer r.Close()
	raw, err := io.ReadAll(r)
	if err != nil {
		return "", errors.Wrapf(err, "read output %s", j.OutputRef)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Analysis for %s, period %s\n", name, j.Period)
	fmt.Fprintf(&b, "Prompt: %s\n\n", j.PromptRef)
	b.Write(raw)
	fmt.Fprintf(&b, "\n\n--\nJob %s\n", j.ID)
	return b.String(), nil
}

func (m *Manager) now() time.Time {
	if m.Now == nil {
		return time.Now().UTC()
	}
	return m.Now().UTC()
}

// MergeRecipients concatenates lists and drops case-insensitive duplicates,
// keeping the first spelling.
func MergeRecipients(lists ...[]string) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, list := range lists {
		for _, addr := range list {
			addr = strings.TrimSpace(addr)
			if addr == "" {
				continue
			}
			key := strings.ToLower(addr)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, addr)
		}
	}
	return out
}

func withReason(fields map[string]any, reason string) map[string]any {
	out := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		out[k] = v
	}
	out["reason"] = reason
	return out
}
