// Package discovery finds candidate postings on an external job board.
package discovery

import (
	"context"

	"github.com/mazholin/jobpilot/internal/job"
)

// Searcher is the discovery collaborator consumed by the orchestrator.
// Implementations are best-effort: the orchestrator treats an error as an
// empty result set and backs off.
type Searcher interface {
	Search(ctx context.Context, params *SearchParams) (*job.Postings, error)
}

// SearchParams describes one discovery query.
type SearchParams struct {
	Keywords string `yaml:"keywords" mapstructure:"keywords"`
	Location string `yaml:"location"`
	// boardparam is a custom reflect tag. Please see params.go.
	ExperienceLevel string `boardparam:"experience_level" mapstructure:"experience_level"`
	JobType         string `boardparam:"job_type" mapstructure:"job_type"`
	Company         string `yaml:"company"`
	Limit           int    `yaml:"limit"`
	PerPage         string `yaml:"per_page" mapstructure:"per_page"`
}
