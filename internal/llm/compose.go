package llm

import (
	"fmt"
	"strings"
)

// MaxTranscriptChars caps each transcript included in a prompt.
const MaxTranscriptChars = 50000

const analystPreamble = "You are an expert financial analyst for the Indian stock market."

const formattingRequirements = `FORMATTING REQUIREMENTS:
Please maintain consistent formatting:
- Use bullet points (•) for main points
- Use sub-bullets (□) for supporting details
- Present numerical data in tables where possible
- Bold key metrics and percentages
- Use italics for management quotes`

const closingInstruction = "Analyze the transcripts following the structure above. Be comprehensive but concise."

// Transcript is one document section of a composed prompt.
type Transcript struct {
	Company string
	Period  string
	Text    string
}

// Subject names what a prompt is about: a company or a whole group.
type Subject struct {
	Name string
	ISIN string
}

// ComposeAnalysis builds the analysis prompt for a job.
func ComposeAnalysis(subject Subject, transcripts []Transcript, userPrompt string) string {
	var b strings.Builder
	b.WriteString(analystPreamble)
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "COMPANY: %s\n", subject.Name)
	if subject.ISIN != "" {
		fmt.Fprintf(&b, "ISIN: %s\n", subject.ISIN)
	}
	b.WriteString("\nTRANSCRIPTS:\n")
	writeTranscripts(&b, transcripts)
	b.WriteString("\n")
	b.WriteString(formattingRequirements)
	b.WriteString("\n\nUSER REQUEST:\n")
	b.WriteString(strings.TrimSpace(userPrompt))
	b.WriteString("\n\n")
	b.WriteString(closingInstruction)
	return b.String()
}

// Turn is a prior question and answer in an ask session.
type Turn struct {
	Question string
	Answer   string
}

// ComposeQuestion builds the prompt for an interactive question over a context bundle.
func ComposeQuestion(subject Subject, transcripts []Transcript, outputs []string, history []Turn, question string) string {
	var b strings.Builder
	b.WriteString(analystPreamble)
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "SCOPE: %s\n", subject.Name)
	b.WriteString("\nTRANSCRIPTS:\n")
	writeTranscripts(&b, transcripts)
	if len(outputs) > 0 {
		b.WriteString("\nPRIOR ANALYSES:\n")
		for i, out := range outputs {
			fmt.Fprintf(&b, "\n═══ ANALYSIS %d ═══\n%s\n", i+1, strings.TrimSpace(out))
		}
	}
	if len(history) > 0 {
		b.WriteString("\nCONVERSATION SO FAR:\n")
		for _, t := range history {
			fmt.Fprintf(&b, "Q: %s\nA: %s\n\n", strings.TrimSpace(t.Question), strings.TrimSpace(t.Answer))
		}
	}
	b.WriteString("\n")
	b.WriteString(formattingRequirements)
	b.WriteString("\n\nQUESTION:\n")
	b.WriteString(strings.TrimSpace(question))
	return b.String()
}

func writeTranscripts(b *strings.Builder, transcripts []Transcript) {
	fmt.Fprintf(b, "Transcripts: %d\n", len(transcripts))
	for i, t := range transcripts {
		label := t.Period
		if t.Company != "" {
			label = t.Company + " " + t.Period
		}
		fmt.Fprintf(b, "\n═══ TRANSCRIPT %d: %s ═══\n%s\n", i+1, label, capText(t.Text, MaxTranscriptChars))
	}
}

func capText(text string, max int) string {
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max])
}
