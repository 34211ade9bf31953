package app

import (
	"fmt"
	"os/exec"
	"strings"

	"github.com/ledongthuc/pdf"
)

// extractPageText returns the text of each PDF page, preserving line
// structure so heading matches stay anchored to their own lines.
// pdftotext (poppler-utils) handles complex layouts better, so it runs
// first; the Go library is the fallback when the tool is unavailable.
func extractPageText(path string) ([]string, error) {
	pages, err := extractWithPdftotext(path)
	if err == nil && len(pages) > 0 {
		return pages, nil
	}
	return extractWithGoLib(path)
}

func extractWithPdftotext(path string) ([]string, error) {
	if _, err := exec.LookPath("pdftotext"); err != nil {
		return nil, fmt.Errorf("pdftotext not found: %w", err)
	}
	cmd := exec.Command("pdftotext", "-layout", "-enc", "UTF-8", path, "-")
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("pdftotext failed: %w", err)
	}
	text := strings.ToValidUTF8(strings.ReplaceAll(string(output), "\x00", " "), "")
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("no text extracted from PDF")
	}
	// pdftotext separates pages with form feeds.
	return strings.Split(text, "\f"), nil
}

func extractWithGoLib(path string) ([]string, error) {
	file, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer file.Close()
	totalPages := reader.NumPage()
	pages := make([]string, 0, totalPages)
	for i := 1; i <= totalPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		rows, err := page.GetTextByRow()
		if err != nil {
			// Skip problematic pages instead of failing entirely
			pages = append(pages, "")
			continue
		}
		var lines []string
		for _, row := range rows {
			var words []string
			for _, word := range row.Content {
				if s := strings.TrimSpace(word.S); s != "" {
					words = append(words, s)
				}
			}
			if len(words) > 0 {
				lines = append(lines, strings.Join(words, " "))
			}
		}
		pages = append(pages, strings.Join(lines, "\n"))
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("no text extracted from PDF")
	}
	return pages, nil
}
