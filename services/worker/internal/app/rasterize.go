package app

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"

	"scitrek/internal/util"
	"scitrek/pkg/domain"
)

// rasterizeWorkbook renders each PDF page to a PNG, persists it to the
// blob store under a stable key, and returns one placeholder section
// per page with an attached image record. A failure on any page aborts
// the whole run.
func (a *App) rasterizeWorkbook(ctx context.Context, workbookID, path string) ([]domain.Section, error) {
	if err := api.ValidateFile(path, nil); err != nil {
		return nil, fmt.Errorf("validate pdf: %w", err)
	}
	pageCount, err := api.PageCountFile(path)
	if err != nil {
		return nil, fmt.Errorf("count pages: %w", err)
	}
	if pageCount == 0 {
		return nil, fmt.Errorf("pdf has no pages")
	}

	tmpDir, err := os.MkdirTemp("", "scitrek-raster-")
	if err != nil {
		return nil, fmt.Errorf("create raster dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	if _, err := exec.LookPath("pdftoppm"); err != nil {
		return nil, fmt.Errorf("pdftoppm not found: %w", err)
	}
	cmd := exec.CommandContext(ctx, "pdftoppm", "-png", "-r", "150", path, filepath.Join(tmpDir, "page"))
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("pdftoppm failed: %w: %s", err, strings.TrimSpace(string(out)))
	}

	rasters, err := collectRasters(tmpDir)
	if err != nil {
		return nil, err
	}
	if len(rasters) != pageCount {
		return nil, fmt.Errorf("rasterized %d pages, expected %d", len(rasters), pageCount)
	}

	sections := make([]domain.Section, 0, pageCount)
	for i, raster := range rasters {
		pageNum := i + 1
		key := fmt.Sprintf("workbooks/%s/pages/%04d.png", workbookID, pageNum)
		if err := a.putRaster(ctx, key, raster); err != nil {
			return nil, fmt.Errorf("store page %d raster: %w", pageNum, err)
		}
		heading := fmt.Sprintf("Section %d", pageNum)
		sectionID := util.NewID()
		sections = append(sections, domain.Section{
			ID:          sectionID,
			WorkbookID:  workbookID,
			Order:       pageNum,
			Heading:     heading,
			ContentHTML: fmt.Sprintf("<img src=%q alt=%q>", "/files/"+key, heading),
			Images: []domain.SectionImage{{
				ID:        util.NewID(),
				SectionID: sectionID,
				ImageKey:  key,
				Caption:   fmt.Sprintf("Page %d", pageNum),
				Order:     0,
			}},
		})
	}
	return sections, nil
}

func (a *App) putRaster(ctx context.Context, key, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return err
	}
	return a.blobs.Put(ctx, key, f, info.Size(), "image/png")
}

// collectRasters returns the PNGs pdftoppm wrote, sorted by page
// number. pdftoppm zero-pads names according to the page total, so a
// numeric sort on the parsed suffix is required, not a lexical one.
func collectRasters(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read raster dir: %w", err)
	}
	type raster struct {
		page int
		path string
	}
	var rasters []raster
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, "page-") || !strings.HasSuffix(name, ".png") {
			continue
		}
		num, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, "page-"), ".png"))
		if err != nil {
			continue
		}
		rasters = append(rasters, raster{page: num, path: filepath.Join(dir, name)})
	}
	sort.Slice(rasters, func(i, j int) bool { return rasters[i].page < rasters[j].page })
	paths := make([]string, 0, len(rasters))
	for _, r := range rasters {
		paths = append(paths, r.path)
	}
	return paths, nil
}
