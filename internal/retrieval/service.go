package retrieval

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"transcript-backend/internal/llm"
	"transcript-backend/internal/shared/apperr"
	"transcript-backend/internal/shared/scope"
	"transcript-backend/internal/shared/telemetry"
)

// AskInput is one question, optionally continuing a session. When SessionID
// is set the session's scope and target apply; K and IncludeSectorOutputs
// override the session's values when provided.
type AskInput struct {
	OrgID                string
	SessionID            string
	Scope                scope.Scope
	TargetID             string
	K                    int
	IncludeSectorOutputs *bool
	Question             string
}

// AskResult is the answered turn with the context it was built from.
type AskResult struct {
	Session Session `json:"session"`
	Turn    Turn    `json:"turn"`
	Context Bundle  `json:"context"`
}

// Service answers questions over retrieval-scoped context.
type Service struct {
	Builder  *Builder
	Sessions SessionRepo
	Analyzer llm.Analyzer
	Now      func() time.Time
}

// NewService constructs a Service.
func NewService(builder *Builder, sessions SessionRepo, analyzer llm.Analyzer) *Service {
	return &Service{Builder: builder, Sessions: sessions, Analyzer: analyzer, Now: time.Now}
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// Ask builds the context, asks the model and appends the turn to the session.
// Nothing is appended when the model call fails.
func (s *Service) Ask(ctx context.Context, in AskInput) (AskResult, error) {
	question := strings.TrimSpace(in.Question)
	if question == "" {
		return AskResult{}, apperr.Validationf("question is required")
	}
	sess, created, err := s.session(ctx, in)
	if err != nil {
		return AskResult{}, err
	}

	bundle, err := s.Builder.BuildContext(ctx, Query{
		OrgID:                sess.OrgID,
		Scope:                sess.Scope,
		TargetID:             sess.TargetID,
		K:                    sess.K,
		IncludeSectorOutputs: sess.IncludeSectorOutputs,
	})
	if err != nil {
		return AskResult{}, err
	}
	if created {
		if err := s.Sessions.Create(ctx, sess); err != nil {
			return AskResult{}, err
		}
	}

	prompt := llm.ComposeQuestion(llm.Subject{Name: bundle.Name}, toLLMTranscripts(bundle.Transcripts), outputTexts(bundle.SectorOutputs), toLLMTurns(bundle.History), question)
	resp, err := s.Analyzer.Analyze(ctx, llm.Request{Prompt: prompt, Label: "ask:" + sess.ID})
	if err != nil {
		return AskResult{}, errors.Wrap(err, "ask model")
	}

	turn, err := s.Sessions.AppendTurn(ctx, sess.ID, Turn{Question: question, Answer: resp.Text, AskedAt: s.now()})
	if err != nil {
		return AskResult{}, err
	}
	telemetry.Info("ask.answered", map[string]any{
		telemetry.FieldOrgID: sess.OrgID,
		"session_id":         sess.ID,
		"scope":              string(sess.Scope),
		"target_id":          sess.TargetID,
		"transcripts":        len(bundle.Transcripts),
		"sector_outputs":     len(bundle.SectorOutputs),
		"history_turns":      len(bundle.History),
		"model":              resp.Model,
	})
	sess.Turns = append(sess.Turns, turn)
	return AskResult{Session: sess, Turn: turn, Context: bundle}, nil
}

// session loads the continuing session or prepares a new one. The new session
// is stored only after its context builds.
func (s *Service) session(ctx context.Context, in AskInput) (Session, bool, error) {
	if id := strings.TrimSpace(in.SessionID); id != "" {
		sess, err := s.GetSession(ctx, in.OrgID, id)
		if err != nil {
			return Session{}, false, err
		}
		if in.K != 0 {
			sess.K = in.K
		}
		if in.IncludeSectorOutputs != nil {
			sess.IncludeSectorOutputs = *in.IncludeSectorOutputs
		}
		return sess, false, nil
	}
	if in.Scope != scope.Company && in.Scope != scope.Group {
		return Session{}, false, apperr.Validationf("ask scope must be company or group")
	}
	if strings.TrimSpace(in.TargetID) == "" {
		return Session{}, false, apperr.Validationf("target id is required")
	}
	k := in.K
	if k == 0 {
		k = DefaultK
	}
	include := in.Scope == scope.Company
	if in.IncludeSectorOutputs != nil {
		include = *in.IncludeSectorOutputs && in.Scope == scope.Company
	}
	return Session{
		ID:                   uuid.NewString(),
		OrgID:                in.OrgID,
		Scope:                in.Scope,
		TargetID:             strings.TrimSpace(in.TargetID),
		K:                    k,
		IncludeSectorOutputs: include,
		CreatedAt:            s.now(),
	}, true, nil
}

// GetSession returns a session of the org with its turns.
func (s *Service) GetSession(ctx context.Context, orgID, id string) (Session, error) {
	sess, err := s.Sessions.Get(ctx, id)
	if err != nil {
		return Session{}, err
	}
	if orgID != "" && sess.OrgID != orgID {
		return Session{}, ErrSessionNotFound
	}
	return sess, nil
}

func toLLMTranscripts(list []Excerpt) []llm.Transcript {
	out := make([]llm.Transcript, 0, len(list))
	for _, e := range list {
		out = append(out, llm.Transcript{Company: e.Company, Period: e.Period, Text: e.Text})
	}
	return out
}

func outputTexts(list []SectorOutput) []string {
	out := make([]string, 0, len(list))
	for _, o := range list {
		out = append(out, o.Text)
	}
	return out
}

func toLLMTurns(list []Turn) []llm.Turn {
	out := make([]llm.Turn, 0, len(list))
	for _, t := range list {
		out = append(out, llm.Turn{Question: t.Question, Answer: t.Answer})
	}
	return out
}
