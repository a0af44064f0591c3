package job

import (
	"strings"
	"testing"
)

func TestExcludeByID(t *testing.T) {
	postings := &Postings{
		Items: []*Posting{
			{ID: "1", Title: "Go Developer", Company: "Acme"},
			{ID: "2", Title: "SRE", Company: "Globex"},
			{ID: "3", Title: "Backend Engineer", Company: "Initech"},
		},
	}

	excluded := postings.Exclude(PostingIDField, []string{"2", "missing"})

	if len(excluded) != 1 || excluded[0] != "2" {
		t.Fatalf("expected only posting 2 excluded, got %v", excluded)
	}
	if postings.Len() != 2 {
		t.Fatalf("expected 2 postings left, got %d", postings.Len())
	}
	if postings.FindByID("2") != nil {
		t.Fatalf("posting 2 should be gone")
	}
}

func TestExcludeByCompany(t *testing.T) {
	postings := &Postings{
		Items: []*Posting{
			{ID: "1", Company: "Acme"},
			{ID: "2", Company: "Globex"},
		},
	}

	excluded := postings.Exclude(PostingCompanyField, []string{"Acme"})

	if len(excluded) != 1 || excluded[0] != "1" {
		t.Fatalf("expected posting 1 excluded, got %v", excluded)
	}
}

func TestPostingText(t *testing.T) {
	posting := &Posting{
		Title:        "Go Developer",
		Company:      "Acme",
		Description:  "Build services",
		Requirements: []string{"Go", "PostgreSQL"},
	}

	text := posting.Text()
	for _, want := range []string{"Go Developer", "Acme", "Build services", "Go PostgreSQL"} {
		if !strings.Contains(text, want) {
			t.Fatalf("expected %q in posting text, got %q", want, text)
		}
	}
}

func TestMatchedBoundary(t *testing.T) {
	result := &MatchResult{JobID: "1", Overall: 0.7}

	if !result.Matched(0.7) {
		t.Fatalf("equality must match the threshold")
	}
	if result.Matched(0.71) {
		t.Fatalf("score below threshold must not match")
	}
}
