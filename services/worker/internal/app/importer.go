package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"scitrek/pkg/domain"
	"scitrek/pkg/store"
)

// ImportWorkbook runs one ingestion pass for a workbook: mark started,
// extract and materialize sections by the configured strategy, then
// record exactly one terminal state. Returned errors are retryable by
// the queue; permanent conditions are recorded and swallowed.
func (a *App) ImportWorkbook(ctx context.Context, workbookID string) error {
	wb, err := a.store.GetWorkbook(workbookID)
	if err != nil {
		// A deleted workbook is not retryable; anything else is.
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("load workbook %s: %w", workbookID, err)
	}
	if err := a.store.MarkImportStarted(workbookID, time.Now().UTC()); err != nil {
		return err
	}

	runErr := a.runImport(ctx, wb)
	errText := ""
	if runErr != nil {
		errText = runErr.Error()
	}
	if err := a.store.MarkImportFinished(workbookID, time.Now().UTC(), errText); err != nil {
		return err
	}
	return runErr
}

func (a *App) runImport(ctx context.Context, wb domain.Workbook) error {
	if strings.TrimSpace(wb.FileKey) == "" {
		return fmt.Errorf("workbook has no file")
	}
	path, err := a.fetchFile(ctx, wb.FileKey)
	if err != nil {
		return fmt.Errorf("fetch workbook file: %w", err)
	}
	defer os.Remove(path)

	var sections []domain.Section
	switch wb.Strategy {
	case domain.StrategyPages:
		sections, err = a.rasterizeWorkbook(ctx, wb.ID, path)
		if err != nil {
			return err
		}
	default:
		pages, err := a.extract(path)
		if err != nil {
			return err
		}
		segments := SegmentText(strings.Join(pages, "\n"), SectionHeadings)
		// Zero headings found means zero sections, not a failure.
		sections = materializeSections(wb.ID, segments)
	}
	if err := a.store.ReplaceSections(wb.ID, sections); err != nil {
		return fmt.Errorf("replace sections: %w", err)
	}
	return nil
}

// fetchFile copies the blob to a temp file so external tools can read
// it by path.
func (a *App) fetchFile(ctx context.Context, key string) (string, error) {
	r, err := a.blobs.Get(ctx, key)
	if err != nil {
		return "", err
	}
	defer r.Close()
	tmp, err := os.CreateTemp("", "scitrek-*.pdf")
	if err != nil {
		return "", err
	}
	defer tmp.Close()
	if _, err := io.Copy(tmp, r); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	return tmp.Name(), nil
}
