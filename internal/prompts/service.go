package prompts

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"transcript-backend/internal/shared/apperr"
	"transcript-backend/internal/shared/scope"
	"transcript-backend/internal/shared/telemetry"
)

// ErrNoActivePrompt is returned when an owner has no active version.
var ErrNoActivePrompt = errors.Mark(errors.New("no active prompt"), apperr.ErrNotFound)

// Service is the versioned prompt store.
type Service struct {
	Repo Repo
	Now  func() time.Time
}

// NewService constructs a Service.
func NewService(repo Repo) *Service {
	return &Service{Repo: repo, Now: time.Now}
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// SetPrompt appends a new version and makes it active.
func (s *Service) SetPrompt(ctx context.Context, sc scope.Scope, ownerID, text string) (Prompt, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Prompt{}, apperr.Validationf("prompt text is required")
	}
	return s.append(ctx, sc, ownerID, text, false)
}

// ClearPrompt appends a tombstone so the owner falls back to the next scope.
func (s *Service) ClearPrompt(ctx context.Context, sc scope.Scope, ownerID string) (Prompt, error) {
	return s.append(ctx, sc, ownerID, "", true)
}

func (s *Service) append(ctx context.Context, sc scope.Scope, ownerID, text string, cleared bool) (Prompt, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return Prompt{}, apperr.Validationf("owner id is required")
	}
	p, err := s.Repo.Append(ctx, Prompt{
		ID:        uuid.NewString(),
		Scope:     sc,
		OwnerID:   ownerID,
		Text:      text,
		Cleared:   cleared,
		CreatedAt: s.now(),
	})
	if err != nil {
		return Prompt{}, err
	}
	telemetry.Info("prompt.version.created", map[string]any{
		"prompt_ref": p.Ref(),
		"cleared":    cleared,
	})
	return p, nil
}

// Active returns the current version for the owner.
func (s *Service) Active(ctx context.Context, sc scope.Scope, ownerID string) (Prompt, error) {
	return s.ActiveAsOf(ctx, sc, ownerID, time.Time{})
}

// ActiveAsOf returns the latest version created at or before asOf. A zero asOf
// means now. A tombstone as the latest version means there is no active prompt.
func (s *Service) ActiveAsOf(ctx context.Context, sc scope.Scope, ownerID string, asOf time.Time) (Prompt, error) {
	history, err := s.Repo.History(ctx, sc, ownerID)
	if err != nil {
		return Prompt{}, err
	}
	for i := len(history) - 1; i >= 0; i-- {
		p := history[i]
		if !asOf.IsZero() && p.CreatedAt.After(asOf) {
			continue
		}
		if p.Cleared {
			return Prompt{}, ErrNoActivePrompt
		}
		return p, nil
	}
	return Prompt{}, ErrNoActivePrompt
}

// History returns every version for the owner, oldest first.
func (s *Service) History(ctx context.Context, sc scope.Scope, ownerID string) ([]Prompt, error) {
	return s.Repo.History(ctx, sc, ownerID)
}

func activeOrNone(p Prompt, err error) (Prompt, bool, error) {
	if err == nil {
		return p, true, nil
	}
	if errors.Is(err, ErrNoActivePrompt) {
		return Prompt{}, false, nil
	}
	return Prompt{}, false, err
}
