package retrieval

import (
	"context"
	"io"
	"strings"

	"github.com/cockroachdb/errors"

	"transcript-backend/internal/jobs"
	"transcript-backend/internal/registry"
	"transcript-backend/internal/shared/apperr"
	"transcript-backend/internal/shared/scope"
	"transcript-backend/internal/shared/storage/object"
	"transcript-backend/internal/shared/telemetry"
	"transcript-backend/internal/transcripts"
)

// Directory is the registry view the builder reads.
type Directory interface {
	GetCompany(ctx context.Context, orgID, companyID string) (registry.Company, error)
	GetGroup(ctx context.Context, orgID, groupID string) (registry.Group, error)
}

// Transcripts lists and loads transcript text.
type Transcripts interface {
	ListByCompany(ctx context.Context, companyID string) ([]transcripts.Transcript, error)
	LoadText(ctx context.Context, t transcripts.Transcript) (string, error)
}

// Outputs lists completed group-level analyses.
type Outputs interface {
	CompletedGroupOutputs(ctx context.Context, orgID string) ([]jobs.Job, error)
}

// Builder selects the transcripts, prior outputs and history for a question.
type Builder struct {
	Directory   Directory
	Transcripts Transcripts
	Outputs     Outputs
	Sessions    SessionRepo
	Store       object.Store
}

// NewBuilder constructs a Builder.
func NewBuilder(dir Directory, ts Transcripts, outputs Outputs, sessions SessionRepo, store object.Store) *Builder {
	return &Builder{Directory: dir, Transcripts: ts, Outputs: outputs, Sessions: sessions, Store: store}
}

// ValidateK rejects k outside 1..10.
func ValidateK(k int) error {
	if k < MinK || k > MaxK {
		return apperr.Validationf("k must be between %d and %d", MinK, MaxK)
	}
	return nil
}

// BuildContext assembles the bundle for q.
//
// Company scope returns the company's k most recent transcripts, newest
// first, plus up to ten completed sector outputs mentioning the company's
// name or ticker when requested. Group scope returns every member transcript
// from the group's k most recent periods together with the full history of
// the org's sessions on that group.
func (b *Builder) BuildContext(ctx context.Context, q Query) (Bundle, error) {
	if err := ValidateK(q.K); err != nil {
		return Bundle{}, err
	}
	switch q.Scope {
	case scope.Company:
		return b.companyContext(ctx, q)
	case scope.Group:
		return b.groupContext(ctx, q)
	default:
		return Bundle{}, apperr.Validationf("ask scope must be company or group")
	}
}

func (b *Builder) companyContext(ctx context.Context, q Query) (Bundle, error) {
	c, err := b.Directory.GetCompany(ctx, q.OrgID, q.TargetID)
	if err != nil {
		return Bundle{}, err
	}
	list, err := b.Transcripts.ListByCompany(ctx, c.ID)
	if err != nil {
		return Bundle{}, err
	}
	transcripts.SortNewestFirst(list)
	if len(list) > q.K {
		list = list[:q.K]
	}
	out := Bundle{Scope: scope.Company, TargetID: c.ID, Name: c.Name}
	if out.Transcripts, err = b.excerpts(ctx, list, map[string]string{c.ID: c.Name}); err != nil {
		return Bundle{}, err
	}
	if q.IncludeSectorOutputs {
		if out.SectorOutputs, err = b.sectorOutputs(ctx, q.OrgID, c); err != nil {
			return Bundle{}, err
		}
	}
	return out, nil
}

func (b *Builder) groupContext(ctx context.Context, q Query) (Bundle, error) {
	g, err := b.Directory.GetGroup(ctx, q.OrgID, q.TargetID)
	if err != nil {
		return Bundle{}, err
	}
	names := make(map[string]string, len(g.Members))
	all := make([]transcripts.Transcript, 0)
	for _, id := range g.Members {
		if c, err := b.Directory.GetCompany(ctx, q.OrgID, id); err == nil {
			names[id] = c.Name
		}
		list, err := b.Transcripts.ListByCompany(ctx, id)
		if err != nil {
			return Bundle{}, err
		}
		all = append(all, list...)
	}
	transcripts.SortNewestFirst(all)

	periods := make(map[string]struct{}, q.K)
	selected := make([]transcripts.Transcript, 0, len(all))
	for _, t := range all {
		if _, ok := periods[t.Period]; !ok {
			if len(periods) == q.K {
				continue
			}
			periods[t.Period] = struct{}{}
		}
		selected = append(selected, t)
	}

	out := Bundle{Scope: scope.Group, TargetID: g.ID, Name: g.Name}
	if out.Transcripts, err = b.excerpts(ctx, selected, names); err != nil {
		return Bundle{}, err
	}
	if out.History, err = b.Sessions.TurnsForTarget(ctx, q.OrgID, scope.Group, g.ID); err != nil {
		return Bundle{}, err
	}
	return out, nil
}

// excerpts loads text for each transcript. Documents missing from storage are
// skipped.
func (b *Builder) excerpts(ctx context.Context, list []transcripts.Transcript, names map[string]string) ([]Excerpt, error) {
	out := make([]Excerpt, 0, len(list))
	for _, t := range list {
		text, err := b.Transcripts.LoadText(ctx, t)
		if errors.Is(err, transcripts.ErrDocumentMissing) {
			telemetry.Warn("retrieval.transcript_missing", map[string]any{
				telemetry.FieldCompanyID: t.CompanyID,
				telemetry.FieldPeriod:    t.Period,
			})
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, Excerpt{
			CompanyID:   t.CompanyID,
			Company:     names[t.CompanyID],
			Period:      t.Period,
			DocumentRef: t.DocumentRef,
			Text:        text,
		})
	}
	return out, nil
}

// sectorOutputs returns completed sector-group outputs, newest first, whose
// text mentions the company's name or ticker.
func (b *Builder) sectorOutputs(ctx context.Context, orgID string, c registry.Company) ([]SectorOutput, error) {
	jobList, err := b.Outputs.CompletedGroupOutputs(ctx, orgID)
	if err != nil {
		return nil, err
	}
	needles := make([]string, 0, 2)
	for _, s := range []string{c.Name, c.Ticker} {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			needles = append(needles, s)
		}
	}
	kinds := make(map[string]registry.Kind)
	out := make([]SectorOutput, 0)
	for _, j := range jobList {
		if len(out) == MaxSectorOutputs {
			break
		}
		kind, ok := kinds[j.GroupID]
		if !ok {
			g, err := b.Directory.GetGroup(ctx, orgID, j.GroupID)
			if err != nil && !errors.Is(err, apperr.ErrNotFound) {
				return nil, err
			}
			kind = g.Kind
			kinds[j.GroupID] = kind
		}
		if kind != registry.KindSector || j.OutputRef == "" {
			continue
		}
		text, err := b.readOutput(ctx, j.OutputRef)
		if err != nil {
			return nil, err
		}
		if mentions(text, needles) {
			out = append(out, SectorOutput{JobID: j.ID, GroupID: j.GroupID, Period: j.Period, Text: text})
		}
	}
	return out, nil
}

func (b *Builder) readOutput(ctx context.Context, key string) (string, error) {
	r, err := b.Store.Open(ctx, key)
	if err != nil {
		return "", errors.Wrapf(err, "open output %s", key)
	}
	defer r.Close()
	raw, err := io.ReadAll(r)
	if err != nil {
		return "", errors.Wrapf(err, "read output %s", key)
	}
	return string(raw), nil
}

func mentions(text string, needles []string) bool {
	lower := strings.ToLower(text)
	for _, n := range needles {
		if strings.Contains(lower, n) {
			return true
		}
	}
	return false
}
