package scoring

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mazholin/jobpilot/internal/job"
)

type stubEmbedder struct {
	vectors map[string][]float32
	err     error
}

func (s *stubEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	if v, ok := s.vectors[text]; ok {
		return v, nil
	}
	return []float32{1, 0, 0}, nil
}

func (s *stubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		v, err := s.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

type stubJudge struct {
	score float64
	err   error
}

func (s *stubJudge) Judge(context.Context, string, string) (float64, error) {
	return s.score, s.err
}

func testProfile() *job.Profile {
	return &job.Profile{
		Name:      "Alex",
		Skills:    []string{"Go", "PostgreSQL", "Docker"},
		Positions: 5,
		Location:  "Berlin",
		Embedding: []float32{1, 0, 0},
	}
}

func TestScoreAlwaysWithinBounds(t *testing.T) {
	t.Parallel()

	postings := []*job.Posting{
		{ID: "full", Title: "Go Developer", Description: "go docker kubernetes", Requirements: []string{"go"}, Location: "Remote", ExperienceLevel: "senior"},
		{ID: "empty"},
		{ID: "unknown-level", ExperienceLevel: "wizard"},
	}

	engines := []*Engine{
		NewEngine(&stubEmbedder{}, &stubJudge{score: 1}, zap.NewNop()),
		NewEngine(&stubEmbedder{err: errors.New("boom")}, &stubJudge{err: errors.New("boom")}, zap.NewNop()),
		NewEngine(nil, nil, zap.NewNop()),
	}

	for _, engine := range engines {
		for _, posting := range postings {
			result := engine.Score(context.Background(), posting, testProfile())
			assert.GreaterOrEqual(t, result.Overall, 0.0, "posting %s", posting.ID)
			assert.LessOrEqual(t, result.Overall, 1.0, "posting %s", posting.ID)
			for _, component := range []float64{
				result.Breakdown.Semantic,
				result.Breakdown.Skills,
				result.Breakdown.Experience,
				result.Breakdown.Location,
				result.Breakdown.Holistic,
			} {
				assert.GreaterOrEqual(t, component, 0.0)
				assert.LessOrEqual(t, component, 1.0)
			}
		}
	}
}

func TestSemanticFallbackOnProviderError(t *testing.T) {
	t.Parallel()

	engine := NewEngine(&stubEmbedder{err: errors.New("provider down")}, &stubJudge{score: 0.5}, zap.NewNop())

	result := engine.Score(context.Background(), &job.Posting{ID: "j1", Title: "Go"}, testProfile())
	assert.Equal(t, 0.5, result.Breakdown.Semantic)
}

func TestSkillOverlap(t *testing.T) {
	t.Parallel()

	engine := NewEngine(nil, nil, zap.NewNop())

	posting := &job.Posting{
		ID:           "j1",
		Description:  "We use go, docker and kafka in production.",
		Requirements: []string{"Go", "Kafka"},
	}

	result := engine.Score(context.Background(), posting, testProfile())

	// Tokens found: go, docker, kafka. Profile matches go and docker.
	assert.InDelta(t, 2.0/3.0, result.Breakdown.Skills, 1e-9)
}

func TestSkillOverlapFallbackWhenNoTokens(t *testing.T) {
	t.Parallel()

	engine := NewEngine(nil, nil, zap.NewNop())

	result := engine.Score(context.Background(), &job.Posting{ID: "j1", Description: "we do things"}, testProfile())
	assert.Equal(t, 0.3, result.Breakdown.Skills)
}

func TestExperienceFit(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		level     string
		positions int
		want      float64
	}{
		{name: "meets senior requirement", level: "senior", positions: 7, want: 1.0},
		{name: "seventy percent of senior", level: "senior", positions: 5, want: 0.8},
		{name: "half of senior", level: "senior", positions: 4, want: 0.6},
		{name: "far below senior", level: "senior", positions: 1, want: 0.3},
		{name: "entry always met", level: "entry", positions: 0, want: 1.0},
		{name: "unknown level defaults to mid", level: "architect", positions: 4, want: 1.0},
		{name: "empty level defaults to mid", level: "", positions: 2, want: 0.6},
	}

	engine := NewEngine(nil, nil, zap.NewNop())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			profile := &job.Profile{Positions: tt.positions}
			posting := &job.Posting{ID: "j", ExperienceLevel: tt.level}
			result := engine.Score(context.Background(), posting, profile)
			assert.Equal(t, tt.want, result.Breakdown.Experience)
		})
	}
}

func TestLocationFit(t *testing.T) {
	t.Parallel()

	engine := NewEngine(nil, nil, zap.NewNop())

	tests := []struct {
		name     string
		location string
		want     float64
	}{
		{name: "remote posting", location: "Remote (EU)", want: 1.0},
		{name: "matching city", location: "Berlin, Germany", want: 1.0},
		{name: "other city is neutral", location: "Munich", want: 0.5},
		{name: "empty is neutral", location: "", want: 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			result := engine.Score(context.Background(), &job.Posting{ID: "j", Location: tt.location}, testProfile())
			assert.Equal(t, tt.want, result.Breakdown.Location)
		})
	}
}

func TestHolisticClampsJudgeOutput(t *testing.T) {
	t.Parallel()

	engine := NewEngine(nil, &stubJudge{score: 7.5}, zap.NewNop())
	result := engine.Score(context.Background(), &job.Posting{ID: "j"}, testProfile())
	assert.Equal(t, 1.0, result.Breakdown.Holistic)

	engine = NewEngine(nil, &stubJudge{err: errors.New("malformed reply")}, zap.NewNop())
	result = engine.Score(context.Background(), &job.Posting{ID: "j"}, testProfile())
	assert.Equal(t, 0.5, result.Breakdown.Holistic)
}

func TestCosineSimilarity(t *testing.T) {
	t.Parallel()

	sim, ok := cosineSimilarity([]float32{1, 0}, []float32{1, 0})
	require.True(t, ok)
	assert.InDelta(t, 1.0, sim, 1e-9)

	sim, ok = cosineSimilarity([]float32{1, 0}, []float32{0, 1})
	require.True(t, ok)
	assert.InDelta(t, 0.0, sim, 1e-9)

	_, ok = cosineSimilarity([]float32{1, 0}, []float32{1, 0, 0})
	assert.False(t, ok)

	_, ok = cosineSimilarity([]float32{0, 0}, []float32{0, 0})
	assert.False(t, ok)
}

func TestMatchedThresholdBoundary(t *testing.T) {
	t.Parallel()

	// Identical embeddings, full skill overlap and a perfect judge give a
	// deterministic overall score to check the >= boundary against.
	embedder := &stubEmbedder{}
	engine := NewEngine(embedder, &stubJudge{score: 1}, zap.NewNop())

	posting := &job.Posting{
		ID:              "j1",
		Description:     "go docker postgresql",
		Location:        "Remote",
		ExperienceLevel: "entry",
	}

	result := engine.Score(context.Background(), posting, testProfile())
	require.InDelta(t, 1.0, result.Overall, 1e-9)
	assert.True(t, result.Matched(result.Overall))
	assert.False(t, result.Matched(result.Overall+1e-6))
}
