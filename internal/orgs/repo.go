package orgs

import (
	"context"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"

	"transcript-backend/internal/shared/apperr"
)

// ErrNotFound is returned for unknown organizations.
var ErrNotFound = errors.Mark(errors.New("organization not found"), apperr.ErrNotFound)

// Repo reads organizations. Plans are owned by billing and loaded from a seed file.
type Repo interface {
	Get(ctx context.Context, orgID string) (Organization, error)
	List(ctx context.Context) ([]Organization, error)
}

// MemoryRepo is an in-memory organization catalog.
type MemoryRepo struct {
	mu   sync.RWMutex
	data map[string]Organization
}

// NewMemoryRepo constructs a MemoryRepo holding the given organizations.
func NewMemoryRepo(list ...Organization) *MemoryRepo {
	r := &MemoryRepo{data: make(map[string]Organization, len(list))}
	for _, o := range list {
		r.data[o.ID] = o
	}
	return r
}

// Get returns the organization by id.
func (r *MemoryRepo) Get(ctx context.Context, orgID string) (Organization, error) {
	if err := ctx.Err(); err != nil {
		return Organization{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.data[orgID]
	if !ok {
		return Organization{}, ErrNotFound
	}
	return o, nil
}

// List returns all organizations ordered by id.
func (r *MemoryRepo) List(ctx context.Context) ([]Organization, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Organization, 0, len(r.data))
	for _, o := range r.data {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Exists reports whether orgID is known; used by the tenant middleware.
func (r *MemoryRepo) Exists(orgID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.data[orgID]
	return ok
}

type seedFile struct {
	Organizations []Organization `yaml:"organizations"`
}

// LoadSeed reads organizations from a YAML file.
func LoadSeed(path string) ([]Organization, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read org seed %s", path)
	}
	return ParseSeed(raw)
}

// ParseSeed decodes and validates an organizations YAML document.
func ParseSeed(raw []byte) ([]Organization, error) {
	var f seedFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, errors.Wrap(err, "decode org seed")
	}
	seen := make(map[string]struct{}, len(f.Organizations))
	for i := range f.Organizations {
		o := &f.Organizations[i]
		o.ID = strings.TrimSpace(o.ID)
		if o.ID == "" {
			return nil, apperr.Validationf("organization %d: id is required", i)
		}
		if _, dup := seen[o.ID]; dup {
			return nil, apperr.Validationf("organization %s: duplicate id", o.ID)
		}
		seen[o.ID] = struct{}{}
		switch strings.ToLower(strings.TrimSpace(o.Plan.Period)) {
		case PeriodDaily:
			o.Plan.Period = PeriodDaily
		case PeriodMonthly, "":
			o.Plan.Period = PeriodMonthly
		default:
			return nil, apperr.Validationf("organization %s: unknown plan period %q", o.ID, o.Plan.Period)
		}
		if o.Plan.JobLimit <= 0 {
			return nil, apperr.Validationf("organization %s: plan job_limit must be positive", o.ID)
		}
	}
	return f.Organizations, nil
}
