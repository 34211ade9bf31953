package app

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"

	"scitrek/pkg/domain"
	"scitrek/pkg/store"
)

// sectionPolicy allows the markup teachers paste into section editors
// while stripping scripts and event handlers.
var sectionPolicy = bluemonday.UGCPolicy()

const previewLimit = 280

// SectionView is a section plus a plain-text preview for list pages.
type SectionView struct {
	domain.Section
	Preview string `json:"preview"`
}

// ListSections returns the ordered sections of a workbook.
func (a *App) ListSections(workbookID string) ([]SectionView, error) {
	if _, err := a.GetWorkbook(workbookID); err != nil {
		return nil, err
	}
	sections, err := a.store.ListSections(workbookID)
	if err != nil {
		return nil, err
	}
	views := make([]SectionView, 0, len(sections))
	for _, s := range sections {
		views = append(views, SectionView{Section: s, Preview: previewText(s.ContentHTML)})
	}
	return views, nil
}

func (a *App) GetSection(id string) (domain.Section, error) {
	section, err := a.store.GetSection(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Section{}, ErrNotFound
		}
		return domain.Section{}, err
	}
	return section, nil
}

// UpdateSectionContent replaces a section's HTML after sanitization.
// Teacher edits survive re-imports only until the next import run
// rebuilds the section set.
func (a *App) UpdateSectionContent(id, contentHTML string) (domain.Section, error) {
	if strings.TrimSpace(contentHTML) == "" {
		return domain.Section{}, fmt.Errorf("%w: content required", ErrValidation)
	}
	clean := sectionPolicy.Sanitize(contentHTML)
	if err := a.store.UpdateSectionContent(id, clean); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Section{}, ErrNotFound
		}
		return domain.Section{}, err
	}
	return a.GetSection(id)
}

// previewText flattens section HTML into a short plain-text snippet.
func previewText(contentHTML string) string {
	root, err := html.Parse(strings.NewReader(contentHTML))
	if err != nil {
		return ""
	}
	var buf strings.Builder
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		switch node.Type {
		case html.TextNode:
			buf.WriteString(node.Data)
			buf.WriteString(" ")
		case html.ElementNode:
			if node.Data == "script" || node.Data == "style" {
				return
			}
		}
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
		if node.Type == html.ElementNode && (node.Data == "p" || node.Data == "br" || node.Data == "div" || node.Data == "li") {
			buf.WriteString(" ")
		}
	}
	walk(root)
	text := strings.Join(strings.Fields(buf.String()), " ")
	if len(text) > previewLimit {
		cut := previewLimit
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = strings.TrimSpace(text[:cut]) + "…"
	}
	return text
}
