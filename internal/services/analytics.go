package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"superstore-dashboard/internal/dataset"
	"superstore-dashboard/internal/errors"
	"superstore-dashboard/internal/models"
)

// DefaultDatasetID names the fallback dataset in URLs and signals.
const DefaultDatasetID = "default"

const (
	defaultUploadTTL     = 2 * time.Hour
	defaultMaxDatasets   = 32
	defaultFallbackRetry = 30 * time.Second
	defaultLoadTimeout   = 30 * time.Second
)

var errNoTable = errors.DatasetUnavailable(dataset.MissingFallbackMessage)

// Dataset is a loaded table and where it came from.
type Dataset struct {
	ID     string
	Table  *models.Table
	Source models.Source

	expires time.Time
}

type Options struct {
	Loader      *dataset.Loader
	UploadTTL   time.Duration
	MaxDatasets int
	// FallbackRetry is how often a missing default dataset is looked for again.
	FallbackRetry time.Duration
	LoadTimeout   time.Duration
	Logger        *slog.Logger
}

// Analytics owns the fallback dataset and the uploaded datasets, and serves
// views computed from them.
type Analytics struct {
	mu              sync.RWMutex
	fallback        *Dataset
	fallbackErr     error
	fallbackChecked time.Time
	uploads         map[string]*Dataset

	loader        *dataset.Loader
	ttl           time.Duration
	maxDatasets   int
	fallbackRetry time.Duration
	loadTimeout   time.Duration
	logger        *slog.Logger
	now           func() time.Time

	viewsServed atomic.Int64
	uploadCount atomic.Int64
}

func NewAnalytics(opts Options) *Analytics {
	a := &Analytics{
		uploads:       make(map[string]*Dataset),
		loader:        opts.Loader,
		ttl:           opts.UploadTTL,
		maxDatasets:   opts.MaxDatasets,
		fallbackRetry: opts.FallbackRetry,
		loadTimeout:   opts.LoadTimeout,
		logger:        opts.Logger,
		now:           time.Now,
	}
	if a.loader == nil {
		a.loader = dataset.NewLoader(dataset.Options{})
	}
	if a.ttl <= 0 {
		a.ttl = defaultUploadTTL
	}
	if a.maxDatasets <= 0 {
		a.maxDatasets = defaultMaxDatasets
	}
	if a.fallbackRetry <= 0 {
		a.fallbackRetry = defaultFallbackRetry
	}
	if a.loadTimeout <= 0 {
		a.loadTimeout = defaultLoadTimeout
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	return a
}

// LoadFallback loads the bundled dataset. A missing file is remembered and
// reported for the default dataset rather than failing startup; requests look
// for the file again at most once per FallbackRetry.
func (a *Analytics) LoadFallback(ctx context.Context) error {
	table, source, err := a.loader.LoadFallback(ctx)

	a.mu.Lock()
	defer a.mu.Unlock()
	a.fallbackChecked = a.now()
	if err != nil {
		a.fallback = nil
		a.fallbackErr = err
		return err
	}
	a.fallback = &Dataset{ID: DefaultDatasetID, Table: table, Source: source}
	a.fallbackErr = nil
	return nil
}

// SetFallback installs an already loaded table as the default dataset.
func (a *Analytics) SetFallback(table *models.Table, source models.Source) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.fallback = &Dataset{ID: DefaultDatasetID, Table: table, Source: source}
	a.fallbackErr = nil
}

// Upload parses an uploaded file and stores it under a new ID.
func (a *Analytics) Upload(ctx context.Context, name string, r io.Reader) (*Dataset, error) {
	table, err := a.loader.Load(ctx, name, r)
	if err != nil {
		return nil, err
	}

	source := models.Source{
		Kind:     models.SourceUpload,
		Name:     name,
		Rows:     table.Len(),
		LoadedAt: a.now(),
	}
	ds := a.Add(table, source)

	a.logger.Info("dataset uploaded", "dataset_id", ds.ID, "file", name, "rows", source.Rows)
	return ds, nil
}

// Add stores a table under a new ID, evicting the oldest upload when full.
func (a *Analytics) Add(table *models.Table, source models.Source) *Dataset {
	ds := &Dataset{
		ID:      uuid.NewString(),
		Table:   table,
		Source:  source,
		expires: a.now().Add(a.ttl),
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.sweepLocked()
	for len(a.uploads) >= a.maxDatasets {
		a.evictOldestLocked()
	}
	a.uploads[ds.ID] = ds
	a.uploadCount.Add(1)
	return ds
}

// Dataset resolves an ID. Empty and "default" resolve to the fallback.
// Access extends the expiry of an upload.
func (a *Analytics) Dataset(id string) (*Dataset, error) {
	if id == "" || id == DefaultDatasetID {
		return a.defaultDataset()
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	ds, ok := a.uploads[id]
	if !ok || a.now().After(ds.expires) {
		delete(a.uploads, id)
		return nil, errors.DatasetUnavailable(fmt.Sprintf("dataset %s has expired or does not exist, please upload the file again", id))
	}
	ds.expires = a.now().Add(a.ttl)
	return ds, nil
}

func (a *Analytics) defaultDataset() (*Dataset, error) {
	a.mu.RLock()
	ds := a.fallback
	a.mu.RUnlock()
	if ds != nil {
		return ds, nil
	}

	a.mu.Lock()
	if a.fallback != nil {
		ds := a.fallback
		a.mu.Unlock()
		return ds, nil
	}
	err := a.fallbackErr
	due := errors.HasCode(err, errors.CodeDatasetUnavailable) && !a.now().Before(a.fallbackChecked.Add(a.fallbackRetry))
	if due {
		// Claim the attempt so concurrent requests keep the old answer.
		a.fallbackChecked = a.now()
	}
	a.mu.Unlock()

	if !due {
		if err == nil {
			err = errNoTable
		}
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.loadTimeout)
	defer cancel()
	if err := a.LoadFallback(ctx); err != nil {
		return nil, err
	}
	a.logger.Info("default dataset loaded", "file", a.loader.FallbackPath())

	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.fallback == nil {
		return nil, errNoTable
	}
	return a.fallback, nil
}

// View resolves a dataset and computes the filtered view for it.
func (a *Analytics) View(id string, req models.ViewRequest) (*models.View, *Dataset, error) {
	ds, err := a.Dataset(id)
	if err != nil {
		return nil, nil, err
	}
	view, err := ComputeView(ds.Table, req)
	if err != nil {
		return nil, nil, err
	}
	a.viewsServed.Add(1)
	return view, ds, nil
}

// Sweep drops expired uploads and reports how many were removed.
func (a *Analytics) Sweep() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sweepLocked()
}

// RunJanitor sweeps expired uploads every interval until ctx is done.
func (a *Analytics) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := a.Sweep(); n > 0 {
				a.logger.Info("expired uploaded datasets", "count", n)
			}
		}
	}
}

func (a *Analytics) sweepLocked() int {
	now := a.now()
	removed := 0
	for id, ds := range a.uploads {
		if now.After(ds.expires) {
			delete(a.uploads, id)
			removed++
		}
	}
	return removed
}

func (a *Analytics) evictOldestLocked() {
	var oldest *Dataset
	for _, ds := range a.uploads {
		if oldest == nil || ds.expires.Before(oldest.expires) {
			oldest = ds
		}
	}
	if oldest != nil {
		delete(a.uploads, oldest.ID)
		a.logger.Info("evicted uploaded dataset", "dataset_id", oldest.ID)
	}
}

// Utility method for monitoring
func (a *Analytics) Stats() map[string]any {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := map[string]any{
		"fallback_loaded": a.fallback != nil,
		"fallback_file":   a.loader.FallbackPath(),
		"uploaded_active": len(a.uploads),
		"uploads_total":   a.uploadCount.Load(),
		"views_served":    a.viewsServed.Load(),
		"upload_ttl":      a.ttl.String(),
		"max_datasets":    a.maxDatasets,
		"uploads":         a.uploadSummariesLocked(),
	}
	if a.fallback != nil {
		stats["fallback_rows"] = a.fallback.Source.Rows
		stats["fallback_loaded_at"] = a.fallback.Source.LoadedAt
	}
	if a.fallbackErr != nil {
		stats["fallback_error"] = errors.UserMessage(a.fallbackErr)
	}
	return stats
}

func (a *Analytics) uploadSummariesLocked() []models.Source {
	sources := make([]models.Source, 0, len(a.uploads))
	for _, ds := range a.uploads {
		sources = append(sources, ds.Source)
	}
	slices.SortFunc(sources, func(x, y models.Source) int {
		return x.LoadedAt.Compare(y.LoadedAt)
	})
	return sources
}
