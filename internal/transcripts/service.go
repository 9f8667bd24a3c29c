package transcripts

import (
	"context"
	"io"
	"io/fs"
	"path"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"transcript-backend/internal/extract"
	"transcript-backend/internal/shared/apperr"
	"transcript-backend/internal/shared/storage/object"
)

// DefaultMaxChars caps the transcript text handed to the analyzer.
const DefaultMaxChars = 50000

var (
	ErrNotFound = errors.Mark(errors.New("transcript not found"), apperr.ErrNotFound)
	// ErrDocumentMissing marks a recorded transcript whose document is gone from storage.
	ErrDocumentMissing = errors.Mark(errors.New("transcript document missing"), apperr.ErrPermanent)
)

// Service records transcripts and loads their text.
type Service struct {
	Repo     Repo
	Store    object.Store
	MaxChars int
}

// NewService constructs a Service.
func NewService(repo Repo, store object.Store) *Service {
	return &Service{Repo: repo, Store: store, MaxChars: DefaultMaxChars}
}

// Record validates and stores a transcript record idempotently.
func (s *Service) Record(ctx context.Context, t Transcript) (Transcript, bool, error) {
	t.CompanyID = strings.TrimSpace(t.CompanyID)
	t.Period = strings.TrimSpace(t.Period)
	t.DocumentRef = strings.TrimSpace(t.DocumentRef)
	switch {
	case t.CompanyID == "":
		return Transcript{}, false, apperr.Validationf("company_id is required")
	case t.Period == "":
		return Transcript{}, false, apperr.Validationf("period is required")
	case t.DocumentRef == "":
		return Transcript{}, false, apperr.Validationf("document_ref is required")
	}
	if t.ReceivedAt.IsZero() {
		t.ReceivedAt = time.Now().UTC()
	}
	return s.Repo.Record(ctx, t)
}

// SaveDocument stores an uploaded transcript document and returns its key.
func (s *Service) SaveDocument(ctx context.Context, companyID, fileName string, r io.Reader) (string, error) {
	key, _, _, err := s.Store.Save(ctx, path.Join("transcripts", companyID), fileName, r)
	if err != nil {
		return "", errors.Wrap(err, "save transcript document")
	}
	return key, nil
}

// Get returns the transcript for (company, period).
func (s *Service) Get(ctx context.Context, companyID, period string) (Transcript, error) {
	return s.Repo.Get(ctx, companyID, period)
}

// ListByCompany returns the company's transcripts, newest period first.
func (s *Service) ListByCompany(ctx context.Context, companyID string) ([]Transcript, error) {
	return s.Repo.ListByCompany(ctx, companyID)
}

// Latest returns the company's newest transcript.
func (s *Service) Latest(ctx context.Context, companyID string) (Transcript, error) {
	list, err := s.Repo.ListByCompany(ctx, companyID)
	if err != nil {
		return Transcript{}, err
	}
	if len(list) == 0 {
		return Transcript{}, errors.Wrapf(ErrNotFound, "company %s has no transcripts", companyID)
	}
	return list[0], nil
}

// ListForPeriod returns the transcripts of companyIDs for period.
func (s *Service) ListForPeriod(ctx context.Context, companyIDs []string, period string) ([]Transcript, error) {
	return s.Repo.ListForPeriod(ctx, companyIDs, period)
}

// LoadText returns the transcript's text truncated to MaxChars.
func (s *Service) LoadText(ctx context.Context, t Transcript) (string, error) {
	text, err := extract.Text(ctx, s.Store, t.DocumentRef)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || strings.Contains(err.Error(), "NoSuchKey") {
			return "", errors.Wrapf(ErrDocumentMissing, "company %s period %s", t.CompanyID, t.Period)
		}
		return "", err
	}
	return Truncate(text, s.MaxChars), nil
}

// Truncate cuts text to at most max runes. A non-positive max disables the cap.
func Truncate(text string, max int) string {
	if max <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max])
}
