package dataset

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"superstore-dashboard/internal/errors"
	"superstore-dashboard/internal/models"
	"superstore-dashboard/internal/observability"
)

const (
	defaultBatchSize = 2000
	defaultWorkers   = 8
)

// MissingFallbackMessage is shown when nothing was uploaded and the bundled
// dataset is absent.
const MissingFallbackMessage = "No file uploaded and default dataset is missing. Please upload a file."

type Options struct {
	FallbackFile string
	// CacheDir holds parsed copies of the fallback file. Empty disables caching.
	CacheDir  string
	Workers   int
	BatchSize int
	Logger    *slog.Logger
}

// Loader turns uploaded or on-disk files into validated tables.
type Loader struct {
	fallback  string
	cache     *tableCache
	workers   int
	batchSize int
	logger    *slog.Logger
}

func NewLoader(opts Options) *Loader {
	l := &Loader{
		fallback:  opts.FallbackFile,
		workers:   opts.Workers,
		batchSize: opts.BatchSize,
		logger:    opts.Logger,
	}
	if l.workers <= 0 {
		l.workers = defaultWorkers
	}
	if l.batchSize <= 0 {
		l.batchSize = defaultBatchSize
	}
	if l.logger == nil {
		l.logger = slog.Default()
	}
	if opts.CacheDir != "" {
		l.cache = newTableCache(opts.CacheDir)
	}
	return l
}

func (l *Loader) FallbackPath() string {
	return l.fallback
}

// Load parses r with the parser selected by the extension of name.
func (l *Loader) Load(ctx context.Context, name string, r io.Reader) (*models.Table, error) {
	format, err := DetectFormat(name)
	if err != nil {
		return nil, err
	}

	ctx, span := observability.StartSpan(ctx, "dataset.load")
	span.SetTag("dataset.name", filepath.Base(name))
	span.SetTag("dataset.format", string(format))
	defer span.End(ctx, l.logger)

	data, err := io.ReadAll(r)
	if err != nil {
		span.SetError(err)
		return nil, fmt.Errorf("read %s: %w", name, err)
	}

	rows, err := readRows(format, data)
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	table, err := l.buildTable(ctx, format, rows)
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	span.SetTag("dataset.rows", fmt.Sprint(table.Len()))
	return table, nil
}

func (l *Loader) LoadFile(ctx context.Context, path string) (*models.Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return nil, errors.Wrap(err, errors.CodeDatasetUnavailable, fmt.Sprintf("dataset %q not found", path))
		}
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	return l.Load(ctx, path, bytes.NewReader(data))
}

// LoadFallback loads the bundled dataset, using the parsed cache when it is
// current with the file on disk.
func (l *Loader) LoadFallback(ctx context.Context) (*models.Table, models.Source, error) {
	info, err := os.Stat(l.fallback)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return nil, models.Source{}, errors.Wrap(err, errors.CodeDatasetUnavailable, MissingFallbackMessage)
		}
		return nil, models.Source{}, fmt.Errorf("stat fallback dataset: %w", err)
	}

	source := models.Source{
		Kind:     models.SourceFallback,
		Name:     filepath.Base(l.fallback),
		LoadedAt: time.Now(),
	}

	if l.cache != nil {
		if table, err := l.cache.load(l.fallback, info.ModTime()); err == nil {
			source.Rows = table.Len()
			l.logger.Info("loaded fallback dataset from cache", "file", l.fallback, "rows", source.Rows)
			return table, source, nil
		}
	}

	start := time.Now()
	table, err := l.LoadFile(ctx, l.fallback)
	if err != nil {
		return nil, models.Source{}, err
	}
	source.Rows = table.Len()

	l.logger.Info("loaded fallback dataset",
		"file", l.fallback,
		"rows", source.Rows,
		"duration", time.Since(start),
	)

	if l.cache != nil {
		if err := l.cache.save(l.fallback, info.ModTime(), table); err != nil {
			l.logger.Warn("failed to save dataset cache", "error", err)
		}
	}

	return table, source, nil
}
