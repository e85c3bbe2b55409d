package services

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"superstore-dashboard/internal/dataset"
	"superstore-dashboard/internal/errors"
	"superstore-dashboard/internal/models"
)

const uploadCSV = `Order Date,Region,State,City,Category,Sales
2016-11-08,South,Kentucky,Henderson,Furniture,261.96
2016-06-12,West,California,Los Angeles,Office Supplies,14.62
2017-01-05,East,New York,New York City,Technology,1299.99
`

func createTempCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "superstore.csv")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestAnalytics(t *testing.T, fallback string, opts Options) (*Analytics, *fakeClock) {
	t.Helper()
	opts.Loader = dataset.NewLoader(dataset.Options{FallbackFile: fallback})
	a := NewAnalytics(opts)
	clock := &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	a.now = clock.Now
	return a, clock
}

func TestNewAnalytics(t *testing.T) {
	a := NewAnalytics(Options{})
	if a == nil {
		t.Fatal("NewAnalytics() returned nil")
	}
	if a.uploads == nil {
		t.Error("uploads should be initialized")
	}
	if a.logger == nil {
		t.Error("logger should be initialized")
	}
	if a.ttl != defaultUploadTTL {
		t.Errorf("ttl = %v, want %v", a.ttl, defaultUploadTTL)
	}
	if a.maxDatasets != defaultMaxDatasets {
		t.Errorf("maxDatasets = %d, want %d", a.maxDatasets, defaultMaxDatasets)
	}
	if a.fallbackRetry != defaultFallbackRetry {
		t.Errorf("fallbackRetry = %v, want %v", a.fallbackRetry, defaultFallbackRetry)
	}
}

func TestAnalytics_MissingFallbackWithoutUpload(t *testing.T) {
	a, _ := newTestAnalytics(t, filepath.Join(t.TempDir(), "Sample - Superstore.xls"), Options{})

	if err := a.LoadFallback(context.Background()); err == nil {
		t.Fatal("LoadFallback() should fail when the file is absent")
	}

	view, ds, err := a.View("", models.ViewRequest{})
	if err == nil {
		t.Fatal("View() should fail without a dataset")
	}
	if view != nil || ds != nil {
		t.Error("no view should be computed")
	}
	if !errors.HasCode(err, errors.CodeDatasetUnavailable) {
		t.Errorf("error = %v, want DATASET_UNAVAILABLE", err)
	}
	if got := errors.UserMessage(err); got != dataset.MissingFallbackMessage {
		t.Errorf("message = %q, want %q", got, dataset.MissingFallbackMessage)
	}
	if a.viewsServed.Load() != 0 {
		t.Error("no view should be counted")
	}

	stats := a.Stats()
	if stats["fallback_loaded"] != false {
		t.Errorf("fallback_loaded = %v", stats["fallback_loaded"])
	}
	if stats["fallback_error"] != dataset.MissingFallbackMessage {
		t.Errorf("fallback_error = %v", stats["fallback_error"])
	}
}

func TestAnalytics_FallbackAppearsAfterStartup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "superstore.csv")
	a, clock := newTestAnalytics(t, path, Options{FallbackRetry: time.Minute})

	if err := a.LoadFallback(context.Background()); err == nil {
		t.Fatal("LoadFallback() should fail when the file is absent")
	}
	if err := os.WriteFile(path, []byte(uploadCSV), 0o600); err != nil {
		t.Fatal(err)
	}

	clock.Advance(30 * time.Second)
	if _, err := a.Dataset(DefaultDatasetID); !errors.HasCode(err, errors.CodeDatasetUnavailable) {
		t.Fatalf("Dataset() before the retry interval = %v, want DATASET_UNAVAILABLE", err)
	}

	clock.Advance(time.Minute)
	ds, err := a.Dataset(DefaultDatasetID)
	if err != nil {
		t.Fatalf("Dataset() after the retry interval: %v", err)
	}
	if ds.Table.Len() != 3 || ds.Source.Kind != models.SourceFallback {
		t.Errorf("unexpected dataset: %d rows from %s", ds.Table.Len(), ds.Source.Kind)
	}
	if stats := a.Stats(); stats["fallback_loaded"] != true {
		t.Errorf("fallback_loaded = %v", stats["fallback_loaded"])
	}
}

func TestAnalytics_DefaultWithoutLoad(t *testing.T) {
	a := NewAnalytics(Options{})
	_, err := a.Dataset(DefaultDatasetID)
	if !errors.HasCode(err, errors.CodeDatasetUnavailable) {
		t.Errorf("error = %v, want DATASET_UNAVAILABLE", err)
	}
}

func TestAnalytics_LoadFallback(t *testing.T) {
	a, _ := newTestAnalytics(t, createTempCSV(t, uploadCSV), Options{})

	if err := a.LoadFallback(context.Background()); err != nil {
		t.Fatalf("LoadFallback() error = %v", err)
	}

	for _, id := range []string{"", DefaultDatasetID} {
		view, ds, err := a.View(id, models.ViewRequest{})
		if err != nil {
			t.Fatalf("View(%q) error = %v", id, err)
		}
		if ds.Source.Kind != models.SourceFallback {
			t.Errorf("Source.Kind = %s, want fallback", ds.Source.Kind)
		}
		if view.RowCount != 3 {
			t.Errorf("RowCount = %d, want 3", view.RowCount)
		}
	}

	stats := a.Stats()
	if stats["fallback_rows"] != 3 {
		t.Errorf("fallback_rows = %v, want 3", stats["fallback_rows"])
	}
	if stats["views_served"] != int64(2) {
		t.Errorf("views_served = %v, want 2", stats["views_served"])
	}
}

func TestAnalytics_Upload(t *testing.T) {
	a, _ := newTestAnalytics(t, "", Options{})

	ds, err := a.Upload(context.Background(), "orders.csv", strings.NewReader(uploadCSV))
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if ds.ID == "" || ds.ID == DefaultDatasetID {
		t.Errorf("unexpected dataset ID %q", ds.ID)
	}
	if ds.Source.Kind != models.SourceUpload || ds.Source.Name != "orders.csv" || ds.Source.Rows != 3 {
		t.Errorf("Source = %+v", ds.Source)
	}

	view, got, err := a.View(ds.ID, models.ViewRequest{Selection: models.Selection{Regions: []string{"West"}}})
	if err != nil {
		t.Fatalf("View() error = %v", err)
	}
	if got.ID != ds.ID {
		t.Errorf("View() resolved %s, want %s", got.ID, ds.ID)
	}
	if view.RowCount != 1 || view.Filtered.Orders[0].City != "Los Angeles" {
		t.Errorf("unexpected view rows: %d", view.RowCount)
	}

	// The fallback is independent of uploads.
	if _, err := a.Dataset(DefaultDatasetID); err == nil {
		t.Error("default dataset should still be unavailable")
	}
}

func TestAnalytics_UploadRejected(t *testing.T) {
	a, _ := newTestAnalytics(t, "", Options{})

	_, err := a.Upload(context.Background(), "orders.csv", strings.NewReader("Order Date,Sales\n2017-01-01,1\n"))
	if !errors.HasCode(err, errors.CodeSchemaMismatch) {
		t.Errorf("error = %v, want SCHEMA_MISMATCH", err)
	}
	if len(a.uploads) != 0 {
		t.Error("a rejected upload must not be stored")
	}
}

func TestAnalytics_UnknownDataset(t *testing.T) {
	a, _ := newTestAnalytics(t, "", Options{})
	_, err := a.Dataset("4f1c1f38-0000-0000-0000-000000000000")
	if !errors.HasCode(err, errors.CodeDatasetUnavailable) {
		t.Errorf("error = %v, want DATASET_UNAVAILABLE", err)
	}
}

func TestAnalytics_Expiry(t *testing.T) {
	a, clock := newTestAnalytics(t, "", Options{UploadTTL: time.Hour})
	table := &models.Table{}

	ds := a.Add(table, models.Source{Kind: models.SourceUpload})

	clock.Advance(45 * time.Minute)
	if _, err := a.Dataset(ds.ID); err != nil {
		t.Fatalf("dataset should still be live: %v", err)
	}

	// Access extended the expiry.
	clock.Advance(45 * time.Minute)
	if _, err := a.Dataset(ds.ID); err != nil {
		t.Fatalf("dataset should have been refreshed: %v", err)
	}

	clock.Advance(2 * time.Hour)
	if _, err := a.Dataset(ds.ID); err == nil {
		t.Error("dataset should have expired")
	}
}

func TestAnalytics_Sweep(t *testing.T) {
	a, clock := newTestAnalytics(t, "", Options{UploadTTL: time.Minute})

	a.Add(&models.Table{}, models.Source{})
	a.Add(&models.Table{}, models.Source{})
	clock.Advance(2 * time.Minute)
	keep := a.Add(&models.Table{}, models.Source{})

	// Add already swept the two expired uploads.
	if n := a.Sweep(); n != 0 {
		t.Errorf("Sweep() = %d, want 0", n)
	}
	if len(a.uploads) != 1 {
		t.Fatalf("expected 1 live upload, got %d", len(a.uploads))
	}
	if _, ok := a.uploads[keep.ID]; !ok {
		t.Error("the fresh upload should remain")
	}

	clock.Advance(2 * time.Minute)
	if n := a.Sweep(); n != 1 {
		t.Errorf("Sweep() = %d, want 1", n)
	}
}

func TestAnalytics_CapacityEvictsOldest(t *testing.T) {
	a, clock := newTestAnalytics(t, "", Options{MaxDatasets: 2})

	first := a.Add(&models.Table{}, models.Source{Name: "first"})
	clock.Advance(time.Second)
	second := a.Add(&models.Table{}, models.Source{Name: "second"})
	clock.Advance(time.Second)
	third := a.Add(&models.Table{}, models.Source{Name: "third"})

	if _, err := a.Dataset(first.ID); err == nil {
		t.Error("the oldest upload should have been evicted")
	}
	for _, ds := range []*Dataset{second, third} {
		if _, err := a.Dataset(ds.ID); err != nil {
			t.Errorf("upload %s should remain: %v", ds.Source.Name, err)
		}
	}
	if a.uploadCount.Load() != 3 {
		t.Errorf("uploads_total = %d, want 3", a.uploadCount.Load())
	}
}

func TestAnalytics_RunJanitorStops(t *testing.T) {
	a := NewAnalytics(Options{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		a.RunJanitor(ctx, time.Millisecond)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunJanitor() did not stop after cancel")
	}
}

func TestAnalytics_Stats(t *testing.T) {
	a, _ := newTestAnalytics(t, "", Options{UploadTTL: 30 * time.Minute, MaxDatasets: 5})
	a.Add(&models.Table{}, models.Source{Name: "a.csv"})

	stats := a.Stats()
	expectedKeys := []string{"fallback_loaded", "fallback_file", "uploaded_active", "uploads_total", "views_served", "upload_ttl", "max_datasets", "uploads"}
	for _, key := range expectedKeys {
		if _, exists := stats[key]; !exists {
			t.Errorf("Stats() should contain key %s", key)
		}
	}
	if stats["uploaded_active"] != 1 {
		t.Errorf("uploaded_active = %v, want 1", stats["uploaded_active"])
	}
	if stats["upload_ttl"] != "30m0s" {
		t.Errorf("upload_ttl = %v", stats["upload_ttl"])
	}
}
