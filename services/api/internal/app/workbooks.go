package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"scitrek/internal/util"
	"scitrek/pkg/domain"
	"scitrek/pkg/queue"
	"scitrek/pkg/store"
)

// UploadWorkbookInput carries the metadata and PDF content of a new
// workbook upload.
type UploadWorkbookInput struct {
	Title       string
	Description string
	Role        domain.WorkbookRole
	Strategy    domain.ImportStrategy
	File        io.Reader
	FileSize    int64
	FileName    string
}

func workbookFileKey(workbookID string) string {
	return path.Join("workbooks", workbookID, "source.pdf")
}

// UploadWorkbook stores the PDF, records the workbook and queues the
// import. The workbook stays in the pending state until the worker
// picks the job up.
func (a *App) UploadWorkbook(ctx context.Context, in UploadWorkbookInput) (domain.Workbook, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return domain.Workbook{}, fmt.Errorf("%w: title required", ErrValidation)
	}
	if in.File == nil {
		return domain.Workbook{}, fmt.Errorf("%w: file required", ErrValidation)
	}
	if in.FileName != "" && !strings.EqualFold(path.Ext(in.FileName), ".pdf") {
		return domain.Workbook{}, fmt.Errorf("%w: only PDF uploads are supported", ErrValidation)
	}
	role := in.Role
	if role == "" {
		role = domain.RoleStudentWorkbook
	}
	if role != domain.RoleStudentWorkbook && role != domain.RoleTeacherWorkbook {
		return domain.Workbook{}, fmt.Errorf("%w: unknown workbook role %q", ErrValidation, in.Role)
	}
	strategy := in.Strategy
	if strategy == "" {
		strategy = domain.StrategyText
	}
	if strategy != domain.StrategyText && strategy != domain.StrategyPages {
		return domain.Workbook{}, fmt.Errorf("%w: unknown import strategy %q", ErrValidation, in.Strategy)
	}

	wb := domain.Workbook{
		ID:          util.NewID(),
		Role:        role,
		Title:       title,
		Description: strings.TrimSpace(in.Description),
		Strategy:    strategy,
		UploadedAt:  time.Now().UTC(),
	}
	wb.FileKey = workbookFileKey(wb.ID)

	if err := a.blobs.Put(ctx, wb.FileKey, in.File, in.FileSize, "application/pdf"); err != nil {
		return domain.Workbook{}, fmt.Errorf("store workbook file: %w", err)
	}
	if err := a.store.CreateWorkbook(wb); err != nil {
		// Roll back the orphaned blob; best effort.
		_ = a.blobs.Delete(ctx, wb.FileKey)
		return domain.Workbook{}, fmt.Errorf("save workbook: %w", err)
	}
	a.enqueue(ctx, queue.KindWorkbookImport, wb.ID)
	return wb, nil
}

// UpdateWorkbookInput carries a metadata edit and an optional
// replacement PDF.
type UpdateWorkbookInput struct {
	Title       string
	Description string
	File        io.Reader
	FileSize    int64
	FileName    string
}

// UpdateWorkbook edits workbook metadata. When a replacement file is
// supplied the old sections are rebuilt by a fresh import; a pure
// metadata edit never re-imports.
func (a *App) UpdateWorkbook(ctx context.Context, id string, in UpdateWorkbookInput) (domain.Workbook, error) {
	wb, err := a.GetWorkbook(id)
	if err != nil {
		return domain.Workbook{}, err
	}
	if title := strings.TrimSpace(in.Title); title != "" {
		wb.Title = title
	}
	if in.Description != "" {
		wb.Description = strings.TrimSpace(in.Description)
	}

	fileChanged := in.File != nil
	if fileChanged {
		if in.FileName != "" && !strings.EqualFold(path.Ext(in.FileName), ".pdf") {
			return domain.Workbook{}, fmt.Errorf("%w: only PDF uploads are supported", ErrValidation)
		}
		wb.FileKey = workbookFileKey(wb.ID)
		if err := a.blobs.Put(ctx, wb.FileKey, in.File, in.FileSize, "application/pdf"); err != nil {
			return domain.Workbook{}, fmt.Errorf("store workbook file: %w", err)
		}
		wb.UploadedAt = time.Now().UTC()
	}
	if err := a.store.UpdateWorkbook(wb); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Workbook{}, ErrNotFound
		}
		return domain.Workbook{}, err
	}
	if fileChanged {
		// The old import result no longer describes the file.
		if err := a.store.ResetImport(wb.ID, wb.UploadedAt); err != nil {
			return domain.Workbook{}, err
		}
		wb.ImportStarted = nil
		wb.ImportFinished = nil
		wb.ImportError = ""
		a.enqueue(ctx, queue.KindWorkbookImport, wb.ID)
	}
	return wb, nil
}

func (a *App) GetWorkbook(id string) (domain.Workbook, error) {
	wb, err := a.store.GetWorkbook(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Workbook{}, ErrNotFound
		}
		return domain.Workbook{}, err
	}
	return wb, nil
}

func (a *App) ListWorkbooks() ([]domain.Workbook, error) {
	return a.store.ListWorkbooks()
}

// RetryImport re-queues the import of an errored workbook.
func (a *App) RetryImport(ctx context.Context, id string) (domain.Workbook, error) {
	wb, err := a.GetWorkbook(id)
	if err != nil {
		return domain.Workbook{}, err
	}
	if wb.ImportState() == domain.ImportInProgress {
		return domain.Workbook{}, fmt.Errorf("%w: import already running", ErrValidation)
	}
	a.enqueue(ctx, queue.KindWorkbookImport, wb.ID)
	return wb, nil
}

// WorkbookFileURL returns a short-lived download URL for the source PDF.
func (a *App) WorkbookFileURL(ctx context.Context, id string) (string, error) {
	wb, err := a.GetWorkbook(id)
	if err != nil {
		return "", err
	}
	if wb.FileKey == "" {
		return "", ErrNotFound
	}
	url, err := a.blobs.PresignGet(ctx, wb.FileKey, a.presignExpiry)
	if err != nil {
		return "", fmt.Errorf("presign workbook file: %w", err)
	}
	return url, nil
}
