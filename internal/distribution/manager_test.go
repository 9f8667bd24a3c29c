package distribution

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"

	"transcript-backend/internal/jobs"
	"transcript-backend/internal/orgs"
	"transcript-backend/internal/registry"
	"transcript-backend/internal/shared/apperr"
	"transcript-backend/internal/shared/scope"
	"transcript-backend/internal/shared/storage/object/local"
)

type stubDirectory struct {
	companies map[string]registry.Company
	groups    map[string]registry.Group
}

func (d stubDirectory) GetCompany(_ context.Context, _ string, id string) (registry.Company, error) {
	c, ok := d.companies[id]
	if !ok {
		return registry.Company{}, registry.ErrCompanyNotFound
	}
	return c, nil
}

func (d stubDirectory) GetGroup(_ context.Context, _ string, id string) (registry.Group, error) {
	g, ok := d.groups[id]
	if !ok {
		return registry.Group{}, registry.ErrGroupNotFound
	}
	return g, nil
}

type fakeSender struct {
	mu       sync.Mutex
	failures int
	sent     []Message
	calls    int
}

func (s *fakeSender) Send(_ context.Context, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.failures > 0 {
		s.failures--
		return errors.New("smtp unavailable")
	}
	s.sent = append(s.sent, msg)
	return nil
}

type fixture struct {
	mgr    *Manager
	repo   *MemoryRepo
	sender *fakeSender
	dir    stubDirectory
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := local.New(t.TempDir())
	if _, err := store.SaveWithKey(context.Background(), "outputs/job-1.md", "text/markdown", strings.NewReader("## Findings\nmargin expansion")); err != nil {
		t.Fatalf("SaveWithKey: %v", err)
	}
	dir := stubDirectory{
		companies: map[string]registry.Company{
			"infy": {ID: "infy", Name: "Infosys", AutoEmail: true, Recipients: []string{"pm@fund.com", "Analyst@fund.com"}},
			"tcs":  {ID: "tcs", Name: "TCS", AutoEmail: false, Recipients: []string{"pm@fund.com"}},
		},
		groups: map[string]registry.Group{
			"w1": {ID: "w1", Name: "Watchlist 1", AutoEmail: true, Recipients: []string{"desk@fund.com"}},
		},
	}
	orgRepo := orgs.NewMemoryRepo(orgs.Organization{ID: "org-1", DefaultRecipients: []string{"analyst@fund.com", "cio@fund.com"}})
	f := &fixture{repo: NewMemoryRepo(), sender: &fakeSender{}, dir: dir}
	f.mgr = NewManager(f.repo, f.sender, dir, orgRepo, store, 3)
	f.mgr.RetryDelay = time.Millisecond
	return f
}

func completedJob(target scope.Scope, targetID, companyID, groupID string) jobs.Job {
	return jobs.Job{
		ID:        "job-1",
		OrgID:     "org-1",
		Target:    target,
		TargetID:  targetID,
		CompanyID: companyID,
		GroupID:   groupID,
		Period:    "Q2FY26",
		PromptRef: "company:infy:v1",
		Status:    jobs.StatusCompleted,
		OutputRef: "outputs/job-1.md",
	}
}

func TestOnCompletedSendsOncePerJob(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	j := completedJob(scope.Company, "infy", "infy", "")

	if err := f.mgr.OnCompleted(ctx, j); err != nil {
		t.Fatalf("OnCompleted: %v", err)
	}
	if err := f.mgr.OnCompleted(ctx, j); err != nil {
		t.Fatalf("duplicate OnCompleted: %v", err)
	}
	if len(f.sender.sent) != 1 {
		t.Fatalf("expected exactly one email, got %d", len(f.sender.sent))
	}
	msg := f.sender.sent[0]
	if msg.Subject != "[Transcript Analysis] Infosys Q2FY26" || !strings.Contains(msg.Body, "margin expansion") {
		t.Fatalf("unexpected message %+v", msg)
	}
	d, err := f.repo.Get(ctx, "job-1")
	if err != nil || d.Status != StatusSent || d.SentAt == nil || d.Attempts != 1 {
		t.Fatalf("unexpected dispatch %+v %v", d, err)
	}
}

func TestOnCompletedSkipsWhenAutoEmailOff(t *testing.T) {
	f := newFixture(t)
	if err := f.mgr.OnCompleted(context.Background(), completedJob(scope.Company, "tcs", "tcs", "")); err != nil {
		t.Fatalf("OnCompleted: %v", err)
	}
	if f.sender.calls != 0 {
		t.Fatalf("expected no send")
	}
	if _, err := f.repo.Get(context.Background(), "job-1"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected no dispatch record, got %v", err)
	}
}

func TestRecipientsByTarget(t *testing.T) {
	tests := []struct {
		name string
		job  jobs.Job
		want []string
	}{
		{name: "group", job: completedJob(scope.Group, "w1", "", "w1"), want: []string{"desk@fund.com"}},
		{name: "org", job: completedJob(scope.Org, "org-1", "infy", ""), want: []string{"pm@fund.com", "Analyst@fund.com", "cio@fund.com"}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			if err := f.mgr.OnCompleted(context.Background(), tt.job); err != nil {
				t.Fatalf("OnCompleted: %v", err)
			}
			got := f.sender.sent[0].To
			if strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Fatalf("recipients = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSendFailuresAreBoundedAndRecorded(t *testing.T) {
	f := newFixture(t)
	f.sender.failures = 5
	err := f.mgr.OnCompleted(context.Background(), completedJob(scope.Company, "infy", "infy", ""))
	if !errors.Is(err, apperr.ErrEmailDispatch) {
		t.Fatalf("expected email dispatch error, got %v", err)
	}
	if f.sender.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", f.sender.calls)
	}
	d, _ := f.repo.Get(context.Background(), "job-1")
	if d.Status != StatusFailed || d.Attempts != 3 || d.LastError == "" {
		t.Fatalf("unexpected dispatch %+v", d)
	}
}

func TestMergeRecipients(t *testing.T) {
	got := MergeRecipients([]string{"A@x.com", " b@x.com "}, []string{"a@X.com", "", "c@x.com"})
	if strings.Join(got, ",") != "A@x.com,b@x.com,c@x.com" {
		t.Fatalf("MergeRecipients = %v", got)
	}
}
