package llm

import (
	"context"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"

	"transcript-backend/internal/shared/apperr"
)

func TestComposeAnalysisLayout(t *testing.T) {
	prompt := ComposeAnalysis(
		Subject{Name: "Infosys", ISIN: "INE009A01021"},
		[]Transcript{{Period: "Q2FY26", Text: "Revenue grew."}, {Period: "Q1FY26", Text: "Margins held."}},
		"Summarize guidance",
	)

	order := []string{
		analystPreamble,
		"COMPANY: Infosys",
		"ISIN: INE009A01021",
		"Transcripts: 2",
		"═══ TRANSCRIPT 1: Q2FY26 ═══\nRevenue grew.",
		"═══ TRANSCRIPT 2: Q1FY26 ═══\nMargins held.",
		"FORMATTING REQUIREMENTS:",
		"USER REQUEST:\nSummarize guidance",
		closingInstruction,
	}
	pos := 0
	for _, part := range order {
		idx := strings.Index(prompt[pos:], part)
		if idx < 0 {
			t.Fatalf("missing or out of order %q in prompt:\n%s", part, prompt)
		}
		pos += idx + len(part)
	}
}

func TestComposeCapsEachTranscript(t *testing.T) {
	long := strings.Repeat("a", MaxTranscriptChars+500)
	prompt := ComposeAnalysis(Subject{Name: "TCS"}, []Transcript{{Period: "Q2FY26", Text: long}}, "x")
	if strings.Contains(prompt, strings.Repeat("a", MaxTranscriptChars+1)) || !strings.Contains(prompt, strings.Repeat("a", MaxTranscriptChars)) {
		t.Fatalf("transcript not capped")
	}
	if strings.Contains(prompt, "ISIN:") {
		t.Fatalf("empty ISIN should be omitted")
	}
}

func TestComposeQuestionIncludesHistory(t *testing.T) {
	prompt := ComposeQuestion(Subject{Name: "Watchlist 1"}, nil, []string{"sector view"}, []Turn{{Question: "q1", Answer: "a1"}}, "q2")
	for _, want := range []string{"PRIOR ANALYSES", "sector view", "Q: q1\nA: a1", "QUESTION:\nq2"} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt missing %q", want)
		}
	}
}

func TestErrorCodeClassification(t *testing.T) {
	tests := []struct {
		err       error
		code      string
		transient bool
	}{
		{errors.Wrap(ErrTimeout, "call"), apperr.CodeLLMTimeout, true},
		{errors.Wrap(ErrRateLimited, "call"), apperr.CodeLLMRateLimit, true},
		{errors.Wrap(ErrUpstream, "call"), apperr.CodeLLMUpstream, true},
		{errors.Wrap(ErrContentRejected, "call"), apperr.CodeLLMRejected, false},
		{errors.Wrap(ErrInvalidInput, "call"), apperr.CodeValidation, false},
	}
	for _, tt := range tests {
		if got := ErrorCode(tt.err); got != tt.code {
			t.Fatalf("ErrorCode(%v) = %s, want %s", tt.err, got, tt.code)
		}
		if apperr.IsTransient(tt.err) != tt.transient {
			t.Fatalf("IsTransient(%v) = %v", tt.err, !tt.transient)
		}
	}
}

func TestEchoAnalyzer(t *testing.T) {
	resp, err := EchoAnalyzer{}.Analyze(context.Background(), Request{Prompt: "hello"})
	if err != nil || !strings.Contains(resp.Text, "5 characters") {
		t.Fatalf("unexpected echo response %+v %v", resp, err)
	}
	if _, err := (EchoAnalyzer{}).Analyze(context.Background(), Request{}); !errors.Is(err, apperr.ErrPermanent) {
		t.Fatalf("expected permanent error, got %v", err)
	}
}
