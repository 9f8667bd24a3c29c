package main

// Try a prompt against a local transcript without touching the database:
//   go run ./cmd/prompttest -transcript q2.pdf -company Infosys -period Q2FY26 -prompt-file prompt.txt

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"transcript-backend/internal/extract"
	"transcript-backend/internal/llm"
	openai "transcript-backend/internal/llm/openai"
	"transcript-backend/internal/shared/config"
)

func main() {
	cfg := config.Load()

	transcriptPath := flag.String("transcript", "", "Path to transcript file (pdf, docx or text)")
	company := flag.String("company", "", "Company display name")
	isin := flag.String("isin", "", "Company ISIN (optional)")
	period := flag.String("period", "", "Fiscal period, e.g. Q2FY26")
	promptText := flag.String("prompt", "", "Prompt text")
	promptFile := flag.String("prompt-file", "", "Path to a file holding the prompt text")
	printOnly := flag.Bool("print-prompt", false, "Print the composed prompt and exit")
	outPath := flag.String("out", "", "Path to write the analysis (optional)")
	model := flag.String("model", cfg.LLMModel, "LLM model")
	flag.Parse()

	if strings.TrimSpace(*transcriptPath) == "" {
		exitErr("transcript path is required")
	}

	prompt := *promptText
	if strings.TrimSpace(*promptFile) != "" {
		raw, err := os.ReadFile(*promptFile)
		if err != nil {
			exitErr(fmt.Sprintf("read prompt: %v", err))
		}
		prompt = string(raw)
	}
	if strings.TrimSpace(prompt) == "" {
		exitErr("one of -prompt or -prompt-file is required")
	}

	data, err := os.ReadFile(*transcriptPath)
	if err != nil {
		exitErr(fmt.Sprintf("read transcript: %v", err))
	}
	fileName := filepath.Base(*transcriptPath)
	text, err := extract.FromBytes(context.Background(), data, "", fileName)
	if err != nil {
		exitErr(fmt.Sprintf("extract transcript text: %v", err))
	}

	name := *company
	if name == "" {
		name = strings.TrimSuffix(fileName, filepath.Ext(fileName))
	}
	composed := llm.ComposeAnalysis(
		llm.Subject{Name: name, ISIN: *isin},
		[]llm.Transcript{{Company: name, Period: *period, Text: text}},
		prompt,
	)
	if *printOnly {
		fmt.Println(composed)
		return
	}

	analyzer := llm.Analyzer(llm.EchoAnalyzer{})
	if strings.TrimSpace(cfg.LLMAPIKey) != "" {
		client, err := openai.NewClient(cfg.LLMAPIKey, *model, cfg.LLMTimeout)
		if err != nil {
			exitErr(err.Error())
		}
		analyzer = client
	}

	resp, err := analyzer.Analyze(context.Background(), llm.Request{Prompt: composed, Label: "prompttest"})
	if err != nil {
		exitErr(fmt.Sprintf("llm analyze [%s]: %v", llm.ErrorCode(err), err))
	}

	if *outPath != "" {
		if err := os.WriteFile(*outPath, []byte(resp.Text), 0o644); err != nil {
			exitErr(fmt.Sprintf("write output: %v", err))
		}
	}
	fmt.Println(resp.Text)
	_, _ = fmt.Fprintf(os.Stderr, "model=%s prompt_tokens=%d completion_tokens=%d\n", resp.Model, resp.PromptTokens, resp.CompletionTokens)
}

func exitErr(msg string) {
	_, _ = fmt.Fprintln(os.Stderr, msg)
	os.Exit(1)
}
