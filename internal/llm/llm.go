package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"

	"transcript-backend/internal/shared/apperr"
)

// Analyzer abstracts LLM providers: one prompt in, one text answer out.
type Analyzer interface {
	Analyze(ctx context.Context, req Request) (Response, error)
}

// Request is a fully composed prompt.
type Request struct {
	Prompt string
	// Label identifies the caller in provider logs, e.g. a job id or ask session id.
	Label string
}

// Response carries the model's answer and token accounting when available.
type Response struct {
	Text             string
	Model            string
	PromptTokens     int
	CompletionTokens int
}

// Provider failures. Timeouts, rate limits and upstream errors are transient;
// rejected content and invalid input are permanent.
var (
	ErrTimeout         = errors.Mark(errors.New("llm request timed out"), apperr.ErrTransient)
	ErrRateLimited     = errors.Mark(errors.New("llm rate limited"), apperr.ErrTransient)
	ErrUpstream        = errors.Mark(errors.New("llm upstream error"), apperr.ErrTransient)
	ErrContentRejected = errors.Mark(errors.New("llm content rejected"), apperr.ErrPermanent)
	ErrInvalidInput    = errors.Mark(errors.New("llm invalid input"), apperr.ErrPermanent)
)

// ErrorCode maps an analyzer error to the code recorded on the job.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return apperr.CodeLLMTimeout
	case errors.Is(err, ErrRateLimited):
		return apperr.CodeLLMRateLimit
	case errors.Is(err, ErrContentRejected):
		return apperr.CodeLLMRejected
	case errors.Is(err, ErrInvalidInput):
		return apperr.CodeValidation
	case errors.Is(err, ErrUpstream):
		return apperr.CodeLLMUpstream
	default:
		return apperr.CodeInternal
	}
}

// EchoAnalyzer answers without calling a provider. It is used when no provider is configured.
type EchoAnalyzer struct{}

// Analyze returns a short deterministic digest of the prompt.
func (EchoAnalyzer) Analyze(ctx context.Context, req Request) (Response, error) {
	if err := ctx.Err(); err != nil {
		return Response{}, err
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return Response{}, errors.Wrap(ErrInvalidInput, "empty prompt")
	}
	return Response{
		Text:  fmt.Sprintf("# Analysis\n\nNo LLM provider configured. Prompt received (%d characters).\n", len(req.Prompt)),
		Model: "echo",
	}, nil
}

var _ Analyzer = EchoAnalyzer{}
