package dataset

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"superstore-dashboard/internal/models"
)

const cacheVersion = "v1"

// tableCache stores parsed tables as gob files so a restart does not have to
// re-read a large spreadsheet.
type tableCache struct {
	dir string
}

type cachedTable struct {
	Version       string
	SourceModTime time.Time
	Table         models.Table
}

func newTableCache(dir string) *tableCache {
	return &tableCache{dir: dir}
}

func (c *tableCache) filename(source string) string {
	abs, err := filepath.Abs(source)
	if err != nil {
		abs = source
	}
	replacer := strings.NewReplacer("/", "_", "\\", "_", ":", "_", " ", "_")
	return filepath.Join(c.dir, fmt.Sprintf("%s_%s.gob", replacer.Replace(abs), cacheVersion))
}

func (c *tableCache) save(source string, modTime time.Time, table *models.Table) error {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(c.dir, "table-*.gob")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	entry := cachedTable{
		Version:       cacheVersion,
		SourceModTime: modTime,
		Table:         *table,
	}
	if err := gob.NewEncoder(tmp).Encode(entry); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), c.filename(source))
}

func (c *tableCache) load(source string, modTime time.Time) (*models.Table, error) {
	file, err := os.Open(c.filename(source))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var entry cachedTable
	if err := gob.NewDecoder(file).Decode(&entry); err != nil {
		return nil, err
	}
	if entry.Version != cacheVersion || !entry.SourceModTime.Equal(modTime) {
		return nil, fmt.Errorf("stale cache for %s", source)
	}
	return &entry.Table, nil
}
