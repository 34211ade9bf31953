package app

import (
	"html"
	"regexp"
	"strings"

	"scitrek/internal/util"
	"scitrek/pkg/domain"
)

var paragraphBreak = regexp.MustCompile(`\n{2,}`)

// renderBodyHTML escapes raw extracted text and converts whitespace
// structure into markup: blank-line separated blocks become <p>
// paragraphs, single newlines inside a block become <br>.
func renderBodyHTML(body string) string {
	body = strings.ReplaceAll(body, "\r\n", "\n")
	body = strings.TrimSpace(body)
	if body == "" {
		return ""
	}
	escaped := html.EscapeString(body)
	blocks := paragraphBreak.Split(escaped, -1)
	paragraphs := make([]string, 0, len(blocks))
	for _, block := range blocks {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		block = strings.ReplaceAll(block, "\n", "<br>")
		paragraphs = append(paragraphs, "<p>"+block+"</p>")
	}
	return strings.Join(paragraphs, "\n\n")
}

// materializeSections turns segments into the final section set for a
// workbook, with order assigned as 1-based position independent of any
// previous run.
func materializeSections(workbookID string, segments []Segment) []domain.Section {
	sections := make([]domain.Section, 0, len(segments))
	for i, seg := range segments {
		sections = append(sections, domain.Section{
			ID:          util.NewID(),
			WorkbookID:  workbookID,
			Order:       i + 1,
			Heading:     seg.Heading,
			ContentHTML: renderBodyHTML(seg.Body),
		})
	}
	return sections
}
