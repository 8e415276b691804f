package usecase

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/kirillkom/nhs-clinical-assistant/internal/core/domain"
)

const contextSeparator = "\n\n---\n\n"

// AssembleContext renders matches into one bounded prompt context. Each
// included chunk gets a 1-based marker in match order. Chunks are added whole
// until the next one would exceed maxChars runes; a first chunk that alone
// exceeds the bound is truncated. maxChars <= 0 disables the bound.
func AssembleContext(matches []domain.Match, maxChars int, notFound string) domain.AssembledContext {
	var (
		b     strings.Builder
		refs  []domain.Reference
		used  int
		total int
	)
	for _, m := range matches {
		text := strings.TrimSpace(m.Text)
		if text == "" {
			continue
		}
		marker := len(refs) + 1
		title := displayTitle(m)
		block := renderChunk(marker, title, m.URL, text)

		size := utf8.RuneCountInString(block)
		if used > 0 {
			size += utf8.RuneCountInString(contextSeparator)
		}
		if maxChars > 0 && total+size > maxChars {
			if used > 0 {
				break
			}
			block = truncateRunes(block, maxChars)
			size = maxChars
		}

		if used > 0 {
			b.WriteString(contextSeparator)
		}
		b.WriteString(block)
		total += size
		used++
		refs = append(refs, domain.Reference{
			Marker:  marker,
			MatchID: m.ID,
			Source:  domain.Source{Title: title, URL: strings.TrimSpace(m.URL)},
		})
	}

	if used == 0 {
		text := domain.NoRelevantInformationMarker
		if msg := strings.TrimSpace(notFound); msg != "" {
			text += "\n\n" + msg
		}
		return domain.AssembledContext{Text: text, Empty: true}
	}
	return domain.AssembledContext{Text: b.String(), References: refs}
}

func renderChunk(marker int, title, url, text string) string {
	url = strings.TrimSpace(url)
	if url == "" {
		return fmt.Sprintf("[%d] Source: %s\n%s", marker, title, text)
	}
	return fmt.Sprintf("[%d] Source: %s (%s)\n%s", marker, title, url, text)
}

func displayTitle(m domain.Match) string {
	if title := strings.TrimSpace(m.Title); title != "" {
		return title
	}
	if section := cleanSectionID(m.SectionID); section != "" {
		return section
	}
	if section := cleanSectionID(m.ID); section != "" {
		return section
	}
	return "NHS"
}

// cleanSectionID turns ids like "adhd-adults__Overview__Part_1" into
// "Adhd Adults - Overview". The part suffix is dropped.
func cleanSectionID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return ""
	}
	if parts := strings.Split(id, "__"); len(parts) >= 2 {
		condition := titleCase(strings.NewReplacer("-", " ", "_", " ").Replace(parts[0]))
		section := titleCase(strings.ReplaceAll(parts[1], "_", " "))
		return condition + " - " + section
	}
	return titleCase(strings.NewReplacer("_", " ", "-", " ").Replace(id))
}

// titleCase upper-cases every letter that follows a non-letter and lower-cases
// the rest.
func titleCase(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	prevLetter := false
	for _, r := range s {
		if unicode.IsLetter(r) {
			if prevLetter {
				b.WriteRune(unicode.ToLower(r))
			} else {
				b.WriteRune(unicode.ToUpper(r))
			}
			prevLetter = true
			continue
		}
		b.WriteRune(r)
		prevLetter = false
	}
	return b.String()
}

func truncateRunes(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == limit {
			return s[:i]
		}
		count++
	}
	return s
}
