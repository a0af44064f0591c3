package gemini

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	_ "embed"

	"go.uber.org/zap"

	"github.com/mazholin/jobpilot/internal/job"
	"github.com/mazholin/jobpilot/internal/utils"
)

//go:embed letter_prompt.md
var letterPromptTemplate string

// LetterWriter generates personalized cover letters with Gemini.
type LetterWriter struct {
	generator contentGenerator
	logger    *zap.Logger
	maxLogLen int
}

func NewLetterWriter(generator contentGenerator, logger *zap.Logger, maxLogLength int) *LetterWriter {
	if maxLogLength <= 0 {
		maxLogLength = defaultMaxLogLength
	}

	return &LetterWriter{
		generator: generator,
		logger:    logger,
		maxLogLen: maxLogLength,
	}
}

func (w *LetterWriter) Generate(ctx context.Context, posting *job.Posting, profile *job.Profile) (string, error) {
	if posting == nil {
		return "", errors.New("posting is required")
	}
	if profile == nil {
		return "", errors.New("profile is required")
	}

	prompt := buildLetterPrompt(posting, profile)

	w.logger.Debug("gemini letter request",
		zap.String("job_id", posting.ID),
		zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
	)

	letter, err := w.generator.GenerateContent(ctx, prompt)
	if err != nil {
		return "", err
	}

	w.logger.Debug("gemini letter response",
		zap.String("job_id", posting.ID),
		zap.String("letter_preview", utils.TruncateForLog(letter, w.maxLogLen)),
	)

	return strings.TrimSpace(letter), nil
}

func buildLetterPrompt(posting *job.Posting, profile *job.Profile) string {
	template := letterPromptTemplate
	if strings.TrimSpace(template) == "" {
		template = "Write a short cover letter.\nCandidate:\n{{PROFILE}}\n\nJob:\n{{JOB}}"
	}

	name := profile.Name
	if strings.TrimSpace(name) == "" {
		name = "the candidate"
	}

	prompt := strings.ReplaceAll(template, "{{PROFILE}}", profile.SummaryText())
	prompt = strings.ReplaceAll(prompt, "{{NAME}}", name)
	prompt = strings.ReplaceAll(prompt, "{{JOB_TITLE}}", posting.Title)
	prompt = strings.ReplaceAll(prompt, "{{COMPANY}}", posting.Company)
	prompt = strings.ReplaceAll(prompt, "{{JOB}}", posting.Text())
	return prompt
}
