package usecase

import (
	"net/url"
	"strings"

	"github.com/kirillkom/nhs-clinical-assistant/internal/core/domain"
)

// SourcesFromReferences deduplicates the cited pages by URL, keeping the
// first-seen order and collecting every marker that refers to each page.
// References without an absolute http(s) URL are not listed.
func SourcesFromReferences(refs []domain.Reference) []domain.Source {
	sources := make([]domain.Source, 0, len(refs))
	index := make(map[string]int, len(refs))
	for _, ref := range refs {
		link := strings.TrimSpace(ref.Source.URL)
		if !isCitableURL(link) {
			continue
		}
		if pos, ok := index[link]; ok {
			sources[pos].Markers = append(sources[pos].Markers, ref.Marker)
			continue
		}
		title := strings.TrimSpace(ref.Source.Title)
		if title == "" {
			title = link
		}
		index[link] = len(sources)
		sources = append(sources, domain.Source{
			Title:   title,
			URL:     link,
			Markers: []int{ref.Marker},
		})
	}
	return sources
}

func isCitableURL(raw string) bool {
	if raw == "" {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
