package app

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"scitrek/pkg/domain"
	"scitrek/pkg/storage"
	"scitrek/pkg/store"
)

func newTestApp(t *testing.T) (*App, *store.MemoryStore) {
	t.Helper()
	dataStore := store.NewMemoryStore()
	blobs, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	a, err := New(Config{Store: dataStore, Blobs: blobs})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	return a, dataStore
}

func putWorkbookFile(t *testing.T, a *App, key string) {
	t.Helper()
	content := "%PDF-1.4 stub"
	if err := a.blobs.Put(context.Background(), key, strings.NewReader(content), int64(len(content)), "application/pdf"); err != nil {
		t.Fatalf("put blob: %v", err)
	}
}

func TestImportWorkbookTextStrategy(t *testing.T) {
	a, dataStore := newTestApp(t)
	wb := domain.Workbook{
		ID:         "wb1",
		Role:       domain.RoleStudentWorkbook,
		Title:      "Bioinformatics",
		FileKey:    "workbooks/wb1/source.pdf",
		Strategy:   domain.StrategyText,
		UploadedAt: time.Now().UTC(),
	}
	if err := dataStore.CreateWorkbook(wb); err != nil {
		t.Fatalf("create workbook: %v", err)
	}
	putWorkbookFile(t, a, wb.FileKey)
	a.extract = func(string) ([]string, error) {
		return []string{
			"Welcome to SciTrek!\nintro text",
			"Day 1\nfirst day\n\nsecond paragraph",
		}, nil
	}

	if err := a.ImportWorkbook(context.Background(), "wb1"); err != nil {
		t.Fatalf("import: %v", err)
	}

	got, _ := dataStore.GetWorkbook("wb1")
	if got.ImportState() != domain.ImportDone {
		t.Fatalf("want done, got %s (err %q)", got.ImportState(), got.ImportError)
	}
	sections, err := dataStore.ListSections("wb1")
	if err != nil {
		t.Fatalf("list sections: %v", err)
	}
	if len(sections) != 2 {
		t.Fatalf("want 2 sections, got %d", len(sections))
	}
	if sections[0].Heading != "Welcome to SciTrek!" || sections[0].Order != 1 {
		t.Fatalf("unexpected first section %+v", sections[0])
	}
	if sections[1].ContentHTML != "<p>first day</p>\n\n<p>second paragraph</p>" {
		t.Fatalf("unexpected second content %q", sections[1].ContentHTML)
	}
}

func TestImportWorkbookReplacesPreviousRun(t *testing.T) {
	a, dataStore := newTestApp(t)
	wb := domain.Workbook{ID: "wb1", Title: "Forces", FileKey: "workbooks/wb1/source.pdf", Strategy: domain.StrategyText}
	if err := dataStore.CreateWorkbook(wb); err != nil {
		t.Fatalf("create workbook: %v", err)
	}
	putWorkbookFile(t, a, wb.FileKey)

	a.extract = func(string) ([]string, error) {
		return []string{"Day 1\none\nDay 2\ntwo\nDay 3\nthree"}, nil
	}
	if err := a.ImportWorkbook(context.Background(), "wb1"); err != nil {
		t.Fatalf("first import: %v", err)
	}
	a.extract = func(string) ([]string, error) {
		return []string{"Day 4\nfour"}, nil
	}
	if err := a.ImportWorkbook(context.Background(), "wb1"); err != nil {
		t.Fatalf("second import: %v", err)
	}
	sections, _ := dataStore.ListSections("wb1")
	if len(sections) != 1 {
		t.Fatalf("second run should replace sections, got %d", len(sections))
	}
	if sections[0].Heading != "Day 4" || sections[0].Order != 1 {
		t.Fatalf("unexpected section %+v", sections[0])
	}
}

func TestImportWorkbookZeroHeadingsIsDone(t *testing.T) {
	a, dataStore := newTestApp(t)
	wb := domain.Workbook{ID: "wb1", Title: "Misprint", FileKey: "workbooks/wb1/source.pdf", Strategy: domain.StrategyText}
	if err := dataStore.CreateWorkbook(wb); err != nil {
		t.Fatalf("create workbook: %v", err)
	}
	putWorkbookFile(t, a, wb.FileKey)
	a.extract = func(string) ([]string, error) {
		return []string{"no recognizable structure here"}, nil
	}
	if err := a.ImportWorkbook(context.Background(), "wb1"); err != nil {
		t.Fatalf("import: %v", err)
	}
	got, _ := dataStore.GetWorkbook("wb1")
	if got.ImportState() != domain.ImportDone {
		t.Fatalf("zero headings should finish done, got %s", got.ImportState())
	}
	sections, _ := dataStore.ListSections("wb1")
	if len(sections) != 0 {
		t.Fatalf("want zero sections, got %d", len(sections))
	}
}

func TestImportWorkbookRecordsErrorState(t *testing.T) {
	a, dataStore := newTestApp(t)
	wb := domain.Workbook{ID: "wb1", Title: "Broken", FileKey: "workbooks/wb1/source.pdf", Strategy: domain.StrategyText}
	if err := dataStore.CreateWorkbook(wb); err != nil {
		t.Fatalf("create workbook: %v", err)
	}
	putWorkbookFile(t, a, wb.FileKey)
	extractErr := errors.New("corrupt xref table")
	a.extract = func(string) ([]string, error) { return nil, extractErr }

	err := a.ImportWorkbook(context.Background(), "wb1")
	if !errors.Is(err, extractErr) {
		t.Fatalf("import should surface the extraction error, got %v", err)
	}
	got, _ := dataStore.GetWorkbook("wb1")
	if got.ImportState() != domain.ImportErrored {
		t.Fatalf("want errored, got %s", got.ImportState())
	}
	if !strings.Contains(got.ImportError, "corrupt xref table") {
		t.Fatalf("error text not recorded: %q", got.ImportError)
	}
}

func TestImportWorkbookMissingFile(t *testing.T) {
	a, dataStore := newTestApp(t)
	wb := domain.Workbook{ID: "wb1", Title: "No upload yet", Strategy: domain.StrategyText}
	if err := dataStore.CreateWorkbook(wb); err != nil {
		t.Fatalf("create workbook: %v", err)
	}
	if err := a.ImportWorkbook(context.Background(), "wb1"); err == nil {
		t.Fatalf("expected error for fileless workbook")
	}
	got, _ := dataStore.GetWorkbook("wb1")
	if got.ImportState() != domain.ImportErrored {
		t.Fatalf("want errored, got %s", got.ImportState())
	}
}

func TestImportWorkbookUnknownIDIsDropped(t *testing.T) {
	a, _ := newTestApp(t)
	if err := a.ImportWorkbook(context.Background(), "nope"); err != nil {
		t.Fatalf("missing workbook should not be retried, got %v", err)
	}
}

// outageStore fails every workbook read the way a dropped database
// connection would.
type outageStore struct {
	store.Store
}

func (s outageStore) GetWorkbook(string) (domain.Workbook, error) {
	return domain.Workbook{}, errors.New("connection refused")
}

func TestImportWorkbookTransientLoadFailureIsRetried(t *testing.T) {
	a, dataStore := newTestApp(t)
	wb := domain.Workbook{ID: "wb1", Title: "Day 1", Strategy: domain.StrategyText}
	if err := dataStore.CreateWorkbook(wb); err != nil {
		t.Fatalf("create workbook: %v", err)
	}
	a.store = outageStore{Store: dataStore}

	if err := a.ImportWorkbook(context.Background(), "wb1"); err == nil {
		t.Fatalf("transient load failure must surface so the queue retries")
	}
	got, _ := dataStore.GetWorkbook("wb1")
	if got.ImportState() != domain.ImportPending {
		t.Fatalf("workbook should stay pending, got %s", got.ImportState())
	}
}
