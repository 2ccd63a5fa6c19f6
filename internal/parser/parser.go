// Package parser extracts typed spans (wikilinks, tags, URLs) from bullet text.
package parser

import (
	"regexp"
	"sort"

	"github.com/starford/dagaz/internal/models"
)

var (
	wikilinkRe = regexp.MustCompile(`\[\[(.*?)\]\]`)
	tagRe      = regexp.MustCompile(`(?:^|\s)#([A-Za-z0-9_-]+)`)
	urlRe      = regexp.MustCompile(`https?://\S+`)
)

// Extract scans text left to right and returns every wikilink, tag, and URL
// span with byte offsets, ordered by start position. Matches are reported
// independently: overlapping or adjacent spans are not merged or deduplicated.
// Malformed input never fails; an unbalanced [[ simply yields no wikilink.
// Extract is pure and deterministic.
func Extract(text string) []models.Span {
	if text == "" {
		return nil
	}

	var spans []models.Span

	for _, m := range wikilinkRe.FindAllStringSubmatchIndex(text, -1) {
		spans = append(spans, models.Span{
			Type:   models.SpanWikilink,
			Start:  m[0],
			End:    m[1],
			Target: text[m[2]:m[3]],
		})
	}

	// The tag pattern anchors on start-of-string or whitespace; the span
	// itself starts at the '#', excluding the separator.
	for _, m := range tagRe.FindAllStringSubmatchIndex(text, -1) {
		spans = append(spans, models.Span{
			Type:   models.SpanTag,
			Start:  m[2] - 1,
			End:    m[3],
			Target: text[m[2]:m[3]],
		})
	}

	for _, m := range urlRe.FindAllStringIndex(text, -1) {
		spans = append(spans, models.Span{
			Type:   models.SpanURL,
			Start:  m[0],
			End:    m[1],
			Target: text[m[0]:m[1]],
		})
	}

	sort.SliceStable(spans, func(i, j int) bool {
		if spans[i].Start != spans[j].Start {
			return spans[i].Start < spans[j].Start
		}
		return spans[i].End < spans[j].End
	})

	return spans
}

// Valid reports whether every span's offsets fall within text and each range
// is well-formed. Used to vet client-supplied spans before they are stored.
func Valid(text string, spans []models.Span) bool {
	for _, s := range spans {
		if s.Start < 0 || s.End < s.Start || s.End > len(text) {
			return false
		}
	}
	return true
}
