package handlers

import (
	"bytes"
	"encoding/base64"
	"html/template"
	"image/png"
	"sync"

	"superstore-dashboard/internal/errors"
	"superstore-dashboard/internal/ui/templates"
)

// Background is the page background image shared by every visitor.
type Background struct {
	mu      sync.RWMutex
	dataURL string
}

func NewBackground() *Background {
	return &Background{}
}

// Set stores a PNG image. Anything that does not decode as PNG is rejected.
func (b *Background) Set(data []byte) error {
	if _, err := png.DecodeConfig(bytes.NewReader(data)); err != nil {
		return errors.Wrap(err, errors.CodeUnsupportedFormat, "background image must be a PNG file")
	}
	url := "data:image/png;base64," + base64.StdEncoding.EncodeToString(data)

	b.mu.Lock()
	b.dataURL = url
	b.mu.Unlock()
	return nil
}

func (b *Background) Clear() {
	b.mu.Lock()
	b.dataURL = ""
	b.mu.Unlock()
}

func (b *Background) DataURL() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.dataURL
}

func (b *Background) CSS() template.CSS {
	if b == nil {
		return ""
	}
	return templates.BackgroundStyle(b.DataURL())
}
