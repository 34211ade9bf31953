package app

import (
	"regexp"
	"strings"
)

// Segment is one (heading, body) pair produced by splitting workbook
// text on the canonical headings.
type Segment struct {
	Heading string
	Body    string
}

// SegmentText splits text into ordered segments, one per heading found.
// A heading only matches when it is the entire content of a line,
// ignoring surrounding whitespace; substring occurrences inside other
// text do not count. Headings missing from the text are skipped, and
// output order follows order of appearance, not the heading list. Zero
// matches yields an empty result, not an error.
func SegmentText(text string, headings []string) []Segment {
	if len(headings) == 0 || text == "" {
		return nil
	}
	escaped := make([]string, 0, len(headings))
	for _, h := range headings {
		escaped = append(escaped, regexp.QuoteMeta(h))
	}
	pattern := regexp.MustCompile(`(?m)^[^\S\n]*(` + strings.Join(escaped, "|") + `)[^\S\n]*$`)
	matches := pattern.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return nil
	}
	segments := make([]Segment, 0, len(matches))
	for i, m := range matches {
		start := m[1]
		end := len(text)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		segments = append(segments, Segment{
			Heading: text[m[2]:m[3]],
			Body:    strings.TrimSpace(text[start:end]),
		})
	}
	return segments
}
