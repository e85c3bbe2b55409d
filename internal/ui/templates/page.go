package templates

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"net/url"
	"time"

	"github.com/a-h/templ"

	"superstore-dashboard/internal/charts"
	"superstore-dashboard/internal/models"
)

const DatastarScript = "https://cdn.jsdelivr.net/gh/starfederation/datastar@1.0.0-RC.5/bundles/datastar.js"

// Element IDs patched by the view stream.
const (
	FiltersID = "filters"
	ViewID    = "view"
)

//go:embed *.html
var files embed.FS

var pages = template.Must(template.New("pages").Funcs(template.FuncMap{
	"currency":  FormatCurrency,
	"count":     FormatCount,
	"dateValue": dateValue,
	"contains":  contains,
}).ParseFS(files, "*.html"))

// Table is the displayed slice of the filtered rows.
type Table struct {
	Columns   []string
	Rows      [][]string
	Total     int
	Truncated bool
}

// NewTable copies at most limit rows of t for display, with Order Date
// normalised to YYYY-MM-DD. A non-positive limit shows every row.
func NewTable(t *models.Table, limit int) Table {
	if t == nil {
		return Table{}
	}
	n := t.Len()
	if limit > 0 && n > limit {
		n = limit
	}
	rows := make([][]string, n)
	for i := 0; i < n; i++ {
		order := t.Orders[i]
		row := make([]string, len(t.Columns))
		copy(row, order.Fields)
		if t.DateColumn >= 0 && t.DateColumn < len(row) {
			row[t.DateColumn] = order.OrderDate.String()
		}
		rows[i] = row
	}
	return Table{
		Columns:   t.Columns,
		Rows:      rows,
		Total:     t.Len(),
		Truncated: n < t.Len(),
	}
}

// Page is everything the dashboard templates render.
type Page struct {
	DatasetID string
	Source    *models.Source
	Error     string

	View   *models.View
	Charts charts.Set
	Table  Table

	AssetsHost    string
	Theme         string
	BackgroundCSS template.CSS

	// Partial omits chart scripts; the stream runs them separately.
	Partial bool
}

func (p *Page) DatastarScript() string {
	return DatastarScript
}

// SourceMessage tells the user which dataset is shown.
func (p *Page) SourceMessage() string {
	if p.Source == nil {
		return ""
	}
	if p.Source.Kind == models.SourceFallback {
		return "Loaded default dataset."
	}
	return fmt.Sprintf("Loaded %s (%s rows).", p.Source.Name, FormatCount(p.Source.Rows))
}

// Query encodes the current widget values as URL parameters.
func (p *Page) Query() url.Values {
	q := url.Values{}
	if p.DatasetID != "" {
		q.Set("dataset", p.DatasetID)
	}
	if p.View == nil {
		return q
	}
	if v := dateValue(p.View.Range.Start); v != "" {
		q.Set("start", v)
	}
	if v := dateValue(p.View.Range.End); v != "" {
		q.Set("end", v)
	}
	for _, v := range p.View.Selection.Regions {
		q.Add("region", v)
	}
	for _, v := range p.View.Selection.States {
		q.Add("state", v)
	}
	for _, v := range p.View.Selection.Cities {
		q.Add("city", v)
	}
	return q
}

func (p *Page) DownloadURL() string {
	return "/download?" + p.Query().Encode()
}

// Signals is the Datastar signal set mirroring the filter widgets.
type Signals struct {
	Dataset string   `json:"dataset"`
	Start   string   `json:"start"`
	End     string   `json:"end"`
	Region  []string `json:"region"`
	State   []string `json:"state"`
	City    []string `json:"city"`
}

func (p *Page) Signals() Signals {
	s := Signals{
		Dataset: p.DatasetID,
		Region:  []string{},
		State:   []string{},
		City:    []string{},
	}
	if p.View != nil {
		s.Start = dateValue(p.View.Range.Start)
		s.End = dateValue(p.View.Range.End)
		if len(p.View.Selection.Regions) > 0 {
			s.Region = p.View.Selection.Regions
		}
		if len(p.View.Selection.States) > 0 {
			s.State = p.View.Selection.States
		}
		if len(p.View.Selection.Cities) > 0 {
			s.City = p.View.Selection.Cities
		}
	}
	return s
}

func (p *Page) SignalsJSON() string {
	b, err := json.Marshal(p.Signals())
	if err != nil {
		return "{}"
	}
	return string(b)
}

func (p *Page) BoundsText() string {
	if p.View == nil || !p.View.HasBounds {
		return ""
	}
	return dateValue(p.View.Bounds.Start) + " to " + dateValue(p.View.Bounds.End)
}

// BackgroundStyle returns the CSS for a page-wide PNG background.
func BackgroundStyle(dataURL string) template.CSS {
	if dataURL == "" {
		return ""
	}
	return template.CSS(fmt.Sprintf(
		"body { background-image: url(%q); background-size: cover; background-attachment: fixed; }",
		dataURL,
	))
}

func component(name string, data any) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		return pages.ExecuteTemplate(w, name, data)
	})
}

// Dashboard is the full page.
func Dashboard(p *Page) templ.Component {
	return component("dashboard", p)
}

// Filters is the sidebar filter form, patched by id.
func Filters(p *Page) templ.Component {
	return component("filters", p)
}

// View is the charts, table and download link, patched by id.
func View(p *Page) templ.Component {
	return component("view", p)
}

// LoadedAt is shown in the sidebar footer.
func (p *Page) LoadedAt() string {
	if p.Source == nil || p.Source.LoadedAt.IsZero() {
		return ""
	}
	return p.Source.LoadedAt.UTC().Format(time.RFC1123)
}
