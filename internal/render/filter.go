package render

import (
	"strings"

	"feed_relay/internal/domain"
)

// Filter keeps articles by title. Matching is a case-insensitive substring
// test; excludes win over includes.
type Filter struct {
	Include []string
	Exclude []string
}

// ParseTerms splits a "|"-separated query value.
func ParseTerms(s string) []string {
	var terms []string
	for _, t := range strings.Split(s, "|") {
		if t = strings.TrimSpace(t); t != "" {
			terms = append(terms, strings.ToLower(t))
		}
	}
	return terms
}

func (f Filter) Empty() bool {
	return len(f.Include) == 0 && len(f.Exclude) == 0
}

func (f Filter) Match(title string) bool {
	title = strings.ToLower(title)

	for _, t := range f.Exclude {
		if strings.Contains(title, strings.ToLower(t)) {
			return false
		}
	}

	if len(f.Include) == 0 {
		return true
	}
	for _, t := range f.Include {
		if strings.Contains(title, strings.ToLower(t)) {
			return true
		}
	}
	return false
}

func (f Filter) Apply(articles []domain.Article) []domain.Article {
	if f.Empty() {
		return articles
	}

	kept := make([]domain.Article, 0, len(articles))
	for _, a := range articles {
		if f.Match(a.Title) {
			kept = append(kept, a)
		}
	}
	return kept
}
