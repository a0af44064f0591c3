package gemini

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	_ "embed"

	"go.uber.org/zap"

	"github.com/mazholin/jobpilot/internal/utils"
)

type contentGenerator interface {
	GenerateContent(ctx context.Context, prompt string) (string, error)
}

//go:embed judge_prompt.md
var judgePromptTemplate string

const defaultMaxLogLength = 200

// Judge asks Gemini to rate candidate-to-posting fit on a 0.0-1.0 scale.
type Judge struct {
	generator contentGenerator
	logger    *zap.Logger
	maxLogLen int
}

func NewJudge(generator contentGenerator, logger *zap.Logger, maxLogLength int) *Judge {
	if maxLogLength <= 0 {
		maxLogLength = defaultMaxLogLength
	}

	return &Judge{
		generator: generator,
		logger:    logger,
		maxLogLen: maxLogLength,
	}
}

// Judge sends the profile summary and job text to the model and parses the
// numeric reply. The reply is untrusted free text: a reply without a usable
// number is an error, never a panic. Parsed values are clamped to [0,1].
func (j *Judge) Judge(ctx context.Context, profileSummary, jobText string) (float64, error) {
	prompt := buildJudgePrompt(profileSummary, jobText)

	j.logger.Debug("gemini judge request",
		zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
		zap.String("prompt_preview", utils.TruncateForLog(prompt, j.maxLogLen)),
	)

	raw, err := j.generator.GenerateContent(ctx, prompt)
	if err != nil {
		return 0, err
	}

	j.logger.Debug("gemini judge response",
		zap.String("response_preview", utils.TruncateForLog(raw, j.maxLogLen)),
	)

	score, err := parseScore(raw)
	if err != nil {
		return 0, err
	}

	return score, nil
}

func buildJudgePrompt(profileSummary, jobText string) string {
	template := judgePromptTemplate
	if strings.TrimSpace(template) == "" {
		template = "Candidate:\n{{PROFILE}}\n\nJob:\n{{JOB}}\n\nScore (0.0-1.0):"
	}
	prompt := strings.ReplaceAll(template, "{{PROFILE}}", profileSummary)
	prompt = strings.ReplaceAll(prompt, "{{JOB}}", jobText)
	return prompt
}

// parseScore extracts the first parseable float from the reply and clamps it
// to [0,1].
func parseScore(raw string) (float64, error) {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.Trim(cleaned, "`")

	for _, field := range strings.Fields(cleaned) {
		field = strings.Trim(field, ".,;:!%")
		score, err := strconv.ParseFloat(field, 64)
		if err != nil {
			continue
		}

		if score < 0 {
			score = 0
		}
		if score > 1 {
			score = 1
		}
		return score, nil
	}

	return 0, fmt.Errorf("no numeric score in reply: %q", utils.TruncateForLog(raw, defaultMaxLogLength))
}
