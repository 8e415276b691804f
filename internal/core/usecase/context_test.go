package usecase

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/kirillkom/nhs-clinical-assistant/internal/core/domain"
)

func TestAssembleContextRendersMarkersInOrder(t *testing.T) {
	assembled := AssembleContext(testMatches(), 0, "not found")

	want := "[1] Source: ADHD in adults (https://www.nhs.uk/conditions/adhd-adults/)\nADHD overview text" +
		"\n\n---\n\n" +
		"[2] Source: ADHD in adults (https://www.nhs.uk/conditions/adhd-adults/)\nADHD symptoms text" +
		"\n\n---\n\n" +
		"[3] Source: Insomnia (https://www.nhs.uk/conditions/insomnia/)\nInsomnia text"
	if assembled.Text != want {
		t.Fatalf("unexpected context:\n%s", assembled.Text)
	}
	if assembled.Empty {
		t.Fatalf("expected non-empty context")
	}
	if len(assembled.References) != 3 {
		t.Fatalf("expected 3 references, got %d", len(assembled.References))
	}
	for i, ref := range assembled.References {
		if ref.Marker != i+1 {
			t.Fatalf("expected marker %d, got %d", i+1, ref.Marker)
		}
	}
}

func TestAssembleContextEmptyInputUsesMarker(t *testing.T) {
	assembled := AssembleContext(nil, 1000, "No relevant NHS health information is available.")
	if !assembled.Empty {
		t.Fatalf("expected empty context flag")
	}
	if !strings.Contains(assembled.Text, domain.NoRelevantInformationMarker) {
		t.Fatalf("expected marker in %q", assembled.Text)
	}
	if !strings.Contains(assembled.Text, "No relevant NHS health information is available.") {
		t.Fatalf("expected not-found message in %q", assembled.Text)
	}
	if len(assembled.References) != 0 {
		t.Fatalf("expected no references")
	}
}

func TestAssembleContextSkipsBlankChunks(t *testing.T) {
	assembled := AssembleContext([]domain.Match{{ID: "x", Text: "   ", URL: "https://www.nhs.uk/x/"}}, 0, "")
	if !assembled.Empty || assembled.Text != domain.NoRelevantInformationMarker {
		t.Fatalf("expected marker-only context, got %+v", assembled)
	}
}

func TestAssembleContextStopsAtBoundWithWholeChunks(t *testing.T) {
	matches := testMatches()
	first := renderChunk(1, matches[0].Title, matches[0].URL, matches[0].Text)
	bound := utf8.RuneCountInString(first) + 10

	assembled := AssembleContext(matches, bound, "")
	if assembled.Text != first {
		t.Fatalf("expected only first chunk, got %q", assembled.Text)
	}
	if len(assembled.References) != 1 {
		t.Fatalf("expected one reference, got %d", len(assembled.References))
	}
}

func TestAssembleContextTruncatesOversizedFirstChunk(t *testing.T) {
	long := strings.Repeat("é", 500)
	assembled := AssembleContext([]domain.Match{{ID: "a", Text: long, Title: "T", URL: "https://www.nhs.uk/a/"}}, 100, "")
	if got := utf8.RuneCountInString(assembled.Text); got != 100 {
		t.Fatalf("expected 100 runes, got %d", got)
	}
	if !utf8.ValidString(assembled.Text) {
		t.Fatalf("truncation split a rune")
	}
	if len(assembled.References) != 1 {
		t.Fatalf("expected truncated chunk to be referenced")
	}
}

func TestAssembleContextFallsBackToSectionTitle(t *testing.T) {
	assembled := AssembleContext([]domain.Match{{ID: "adhd-adults__Overview__Part_1", Text: "t"}}, 0, "")
	if !strings.HasPrefix(assembled.Text, "[1] Source: Adhd Adults - Overview\n") {
		t.Fatalf("unexpected header %q", assembled.Text)
	}
}

func TestCleanSectionID(t *testing.T) {
	cases := map[string]string{
		"adhd-adults__Overview__Part_1":       "Adhd Adults - Overview",
		"high_blood-pressure__Treatment":      "High Blood Pressure - Treatment",
		"insomnia__self_help__Part_2":         "Insomnia - Self Help",
		"back-pain":                           "Back Pain",
		"":                                    "",
		"COVID-19__Long_term_effects__Part_3": "Covid 19 - Long Term Effects",
	}
	for in, want := range cases {
		if got := cleanSectionID(in); got != want {
			t.Fatalf("cleanSectionID(%q) = %q, want %q", in, got, want)
		}
	}
}
