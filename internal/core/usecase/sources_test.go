package usecase

import (
	"testing"

	"github.com/kirillkom/nhs-clinical-assistant/internal/core/domain"
)

func TestSourcesFromReferencesDeduplicatesByURL(t *testing.T) {
	assembled := AssembleContext(testMatches(), 0, "")
	sources := SourcesFromReferences(assembled.References)

	if len(sources) != 2 {
		t.Fatalf("expected 2 sources, got %d", len(sources))
	}
	if sources[0].URL != "https://www.nhs.uk/conditions/adhd-adults/" || sources[1].URL != "https://www.nhs.uk/conditions/insomnia/" {
		t.Fatalf("unexpected source order: %+v", sources)
	}
	if len(sources[0].Markers) != 2 || sources[0].Markers[0] != 1 || sources[0].Markers[1] != 2 {
		t.Fatalf("expected markers [1 2], got %v", sources[0].Markers)
	}
	if len(sources[1].Markers) != 1 || sources[1].Markers[0] != 3 {
		t.Fatalf("expected markers [3], got %v", sources[1].Markers)
	}
}

func TestSourcesFromReferencesSkipsUnlinkablePages(t *testing.T) {
	refs := []domain.Reference{
		{Marker: 1, Source: domain.Source{Title: "No link"}},
		{Marker: 2, Source: domain.Source{Title: "Relative", URL: "/conditions/flu/"}},
		{Marker: 3, Source: domain.Source{Title: "Script", URL: "javascript:alert(1)"}},
		{Marker: 4, Source: domain.Source{URL: "https://www.nhs.uk/conditions/flu/"}},
	}
	sources := SourcesFromReferences(refs)
	if len(sources) != 1 {
		t.Fatalf("expected one source, got %+v", sources)
	}
	if sources[0].Title != "https://www.nhs.uk/conditions/flu/" {
		t.Fatalf("expected URL as fallback title, got %q", sources[0].Title)
	}
}

func TestSourcesFromReferencesEmpty(t *testing.T) {
	sources := SourcesFromReferences(nil)
	if sources == nil || len(sources) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", sources)
	}
}
