// Package ai defines the contracts for the AI collaborators: the holistic
// fit judge, the cover letter writer and the text embedding provider.
package ai

import (
	"context"

	"github.com/mazholin/jobpilot/internal/job"
)

// Judge rates candidate-to-posting fit from free text on a 0.0-1.0 scale.
// Replies are untrusted: implementations must never fail on a malformed
// reply, callers handle the returned error with a fallback score.
type Judge interface {
	Judge(ctx context.Context, profileSummary, jobText string) (float64, error)
}

// LetterWriter generates a cover letter for one posting.
type LetterWriter interface {
	Generate(ctx context.Context, posting *job.Posting, profile *job.Profile) (string, error)
}

// Embedder converts text into fixed-dimension vectors. Caching is the
// implementation's responsibility.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}
