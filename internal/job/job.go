package job

import (
	"encoding/json"
	"os"
	"strings"
)

const (
	PostingIDField      = "ID"
	PostingCompanyField = "Company"
)

// Posting is a discovered job opening. It is immutable once discovered:
// the orchestration pipeline only reads from it.
type Posting struct {
	ID              string   `json:"id,omitempty"`
	Title           string   `json:"title,omitempty"`
	Company         string   `json:"company,omitempty"`
	Location        string   `json:"location,omitempty"`
	URL             string   `json:"url,omitempty"`
	Description     string   `json:"description,omitempty"`
	Requirements    []string `json:"requirements,omitempty"`
	ExperienceLevel string   `json:"experience_level,omitempty"`
	JobType         string   `json:"job_type,omitempty"`
	PostedAt        string   `json:"posted_at,omitempty"`
}

// Text flattens the posting into one string for embedding and AI judging.
func (p *Posting) Text() string {
	parts := []string{
		p.Title,
		p.Company,
		p.Description,
		strings.Join(p.Requirements, " "),
		p.ExperienceLevel,
		p.JobType,
	}

	nonEmpty := parts[:0]
	for _, part := range parts {
		if strings.TrimSpace(part) != "" {
			nonEmpty = append(nonEmpty, part)
		}
	}

	return strings.Join(nonEmpty, " ")
}

func (p *Posting) GetStringField(name string) string {
	switch name {
	case PostingIDField:
		return p.ID
	case PostingCompanyField:
		return p.Company
	default:
		return ""
	}
}

type Postings struct {
	Items []*Posting
}

func (p *Postings) Len() int {
	return len(p.Items)
}

func (p *Postings) FindByID(id string) *Posting {
	for _, posting := range p.Items {
		if posting.ID == id {
			return posting
		}
	}
	return nil
}

func (p *Postings) IDs() []string {
	ids := make([]string, 0, len(p.Items))
	for _, posting := range p.Items {
		ids = append(ids, posting.ID)
	}
	return ids
}

// Exclude removes postings whose field value is in targets and returns
// the ids of removed postings.
func (p *Postings) Exclude(name string, targets []string) []string {
	var excluded []string
	for _, target := range targets {
		for idx, posting := range p.Items {
			if posting.GetStringField(name) == target {
				p.RemoveByIndex(idx)
				excluded = append(excluded, posting.ID)
				break
			}
		}
	}
	return excluded
}

// RemoveByIndex removes a posting from the list by index. Do not preserve order.
func (p *Postings) RemoveByIndex(idx int) {
	p.Items[idx] = p.Items[len(p.Items)-1]
	p.Items = p.Items[:len(p.Items)-1]
}

func (p *Postings) DumpToTmpFile() (string, error) {
	file, err := os.CreateTemp("", "postings_*.json")
	if err != nil {
		return "", err
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	if err := enc.Encode(p); err != nil {
		return "", err
	}
	return file.Name(), nil
}

// Profile is the candidate profile loaded once per orchestration run and
// treated as read-only while the run is active.
type Profile struct {
	Name      string    `json:"name,omitempty"`
	Summary   string    `json:"summary,omitempty"`
	Skills    []string  `json:"skills,omitempty"`
	Positions int       `json:"positions,omitempty"`
	Location  string    `json:"location,omitempty"`
	Embedding []float32 `json:"-"`
}

// YearsProxy approximates years of experience by the number of held positions.
func (p *Profile) YearsProxy() int {
	return p.Positions
}

// SummaryText flattens the profile into one string for prompts and embeddings.
func (p *Profile) SummaryText() string {
	parts := make([]string, 0, 3)
	if strings.TrimSpace(p.Summary) != "" {
		parts = append(parts, p.Summary)
	}
	if len(p.Skills) > 0 {
		parts = append(parts, "Skills: "+strings.Join(p.Skills, ", "))
	}
	if p.Location != "" {
		parts = append(parts, "Location: "+p.Location)
	}
	return strings.Join(parts, " ")
}

// Breakdown holds the per-signal components of a match score, each in [0,1].
type Breakdown struct {
	Semantic   float64 `json:"semantic"`
	Skills     float64 `json:"skills"`
	Experience float64 `json:"experience"`
	Location   float64 `json:"location"`
	Holistic   float64 `json:"holistic"`
}

// MatchResult is the scored fit between one posting and the candidate profile.
type MatchResult struct {
	JobID     string    `json:"job_id"`
	Overall   float64   `json:"overall"`
	Breakdown Breakdown `json:"breakdown"`
}

// Matched reports whether the result clears the given threshold.
// Equality matches.
func (m *MatchResult) Matched(threshold float64) bool {
	return m.Overall >= threshold
}
