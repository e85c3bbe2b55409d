package charts

import (
	"html/template"
	"regexp"
	"strings"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/render"
	"github.com/go-echarts/go-echarts/v2/types"

	"superstore-dashboard/internal/models"
)

// Element IDs of the three dashboard charts. They double as JavaScript
// identifiers in the generated scripts, so they must not contain dashes.
const (
	CategoryChartID = "category_sales_chart"
	RegionChartID   = "region_sales_chart"
	MonthlyChartID  = "monthly_sales_chart"
)

const (
	defaultChartHeight = "400px"
	lineChartHeight    = "500px"
)

// currencyLabel formats bar values as $1,234.56 in the browser.
const currencyLabel = `function (params) {
	return '$' + Number(params.value).toLocaleString('en-US', {minimumFractionDigits: 2, maximumFractionDigits: 2});
}`

var scriptBody = regexp.MustCompile(`(?s)<script[^>]*>(.*)</script>`)

// Snippet is the markup of one chart: a container element and the script
// that draws into it.
type Snippet struct {
	ID      string
	Element template.HTML
	Script  template.HTML
}

// HTML returns the element followed by its script, for full page renders.
func (s Snippet) HTML() template.HTML {
	return s.Element + "\n" + s.Script
}

// ScriptBody returns the script without its tag, wrapped in a function so it
// can run again after the element is replaced.
func (s Snippet) ScriptBody() string {
	m := scriptBody.FindStringSubmatch(string(s.Script))
	if m == nil {
		return ""
	}
	return "(function () {\n" + strings.TrimSpace(m[1]) + "\n})();"
}

// Set holds the three charts of one view.
type Set struct {
	Category Snippet
	Region   Snippet
	Monthly  Snippet
}

// Scripts returns the re-runnable script bodies of every chart in the set.
func (s Set) Scripts() []string {
	return []string{s.Category.ScriptBody(), s.Region.ScriptBody(), s.Monthly.ScriptBody()}
}

// DefaultAssetsHost is the go-echarts asset mirror, used when no host is set.
const DefaultAssetsHost = "https://go-echarts.github.io/go-echarts-assets/assets/"

// Renderer builds go-echarts snippets for the dashboard aggregates.
type Renderer struct {
	theme      string
	assetsHost string
	cache      *ChartCache
}

// Option customizes renderer behavior.
type Option func(*Renderer)

// WithTheme sets the ECharts theme (defaults to Westeros).
func WithTheme(theme string) Option {
	return func(r *Renderer) {
		r.theme = theme
	}
}

// WithAssetsHost sets where the page loads the ECharts runtime from.
func WithAssetsHost(host string) Option {
	return func(r *Renderer) {
		r.assetsHost = host
	}
}

// WithCache injects a render cache.
func WithCache(cache *ChartCache) Option {
	return func(r *Renderer) {
		r.cache = cache
	}
}

func NewRenderer(options ...Option) *Renderer {
	r := &Renderer{theme: types.ThemeWesteros, assetsHost: DefaultAssetsHost}
	for _, opt := range options {
		opt(r)
	}
	if r.theme == "" {
		r.theme = types.ThemeWesteros
	}
	if r.assetsHost == "" {
		r.assetsHost = DefaultAssetsHost
	}
	return r
}

func (r *Renderer) Theme() string {
	return r.theme
}

func (r *Renderer) AssetsHost() string {
	return r.assetsHost
}

// Render draws all three charts of a view.
func (r *Renderer) Render(view *models.View) (Set, error) {
	var (
		set Set
		err error
	)
	if set.Category, err = r.CategoryBar(view.CategorySales); err != nil {
		return Set{}, err
	}
	if set.Region, err = r.RegionPie(view.RegionSales); err != nil {
		return Set{}, err
	}
	if set.Monthly, err = r.MonthlyLine(view.MonthlySales); err != nil {
		return Set{}, err
	}
	return set, nil
}

// CategoryBar renders summed Sales per Category with currency value labels.
func (r *Renderer) CategoryBar(data []models.CategorySales) (Snippet, error) {
	return r.cached("bar", data, func() Snippet {
		bar := charts.NewBar()
		bar.SetGlobalOptions(r.globalOptions(CategoryChartID, defaultChartHeight)...)
		bar.SetGlobalOptions(
			charts.WithXAxisOpts(opts.XAxis{Name: "Category"}),
			charts.WithYAxisOpts(opts.YAxis{Name: "Sales"}),
			charts.WithLegendOpts(opts.Legend{Show: opts.Bool(false)}),
		)

		labels := make([]string, len(data))
		values := make([]opts.BarData, len(data))
		for i, c := range data {
			labels[i] = c.Category
			values[i] = opts.BarData{Name: c.Category, Value: c.Sales.Round(2).InexactFloat64()}
		}
		bar.SetXAxis(labels).AddSeries("Sales", values)
		bar.SetSeriesOptions(charts.WithLabelOpts(opts.Label{
			Show:      opts.Bool(true),
			Position:  "top",
			Formatter: opts.FuncOpts(currencyLabel),
		}))
		return snippet(CategoryChartID, bar)
	})
}

// RegionPie renders each Region's share of Sales as a labelled donut.
func (r *Renderer) RegionPie(data []models.RegionSales) (Snippet, error) {
	return r.cached("pie", data, func() Snippet {
		pie := charts.NewPie()
		pie.SetGlobalOptions(r.globalOptions(RegionChartID, defaultChartHeight)...)

		items := make([]opts.PieData, len(data))
		for i, region := range data {
			items[i] = opts.PieData{Name: region.Region, Value: region.Sales.Round(2).InexactFloat64()}
		}
		pie.AddSeries("Sales", items)
		pie.SetSeriesOptions(
			charts.WithPieChartOpts(opts.PieChart{Radius: []string{"35%", "70%"}}),
			charts.WithLabelOpts(opts.Label{
				Show:      opts.Bool(true),
				Position:  "outside",
				Formatter: "{b}: {d}%",
			}),
		)
		return snippet(RegionChartID, pie)
	})
}

// MonthlyLine renders summed Sales per month in chronological order.
func (r *Renderer) MonthlyLine(data []models.MonthlySales) (Snippet, error) {
	return r.cached("line", data, func() Snippet {
		line := charts.NewLine()
		line.SetGlobalOptions(r.globalOptions(MonthlyChartID, lineChartHeight)...)
		line.SetGlobalOptions(
			charts.WithXAxisOpts(opts.XAxis{Name: "Month"}),
			charts.WithYAxisOpts(opts.YAxis{Name: "Amount"}),
			charts.WithLegendOpts(opts.Legend{Show: opts.Bool(false)}),
		)

		months := make([]string, len(data))
		values := make([]opts.LineData, len(data))
		for i, m := range data {
			months[i] = m.Month
			values[i] = opts.LineData{Name: m.Month, Value: m.Sales.Round(2).InexactFloat64()}
		}
		line.SetXAxis(months).AddSeries("Amount", values)
		line.SetSeriesOptions(charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(true)}))
		return snippet(MonthlyChartID, line)
	})
}

func (r *Renderer) cached(kind string, data any, build func() Snippet) (Snippet, error) {
	renderFn := func() (Snippet, error) {
		return build(), nil
	}
	if r.cache == nil {
		return renderFn()
	}
	return r.cache.GetOrRender(inputHash(kind, r.theme, r.assetsHost, data), renderFn)
}

func (r *Renderer) globalOptions(id, height string) []charts.GlobalOpts {
	initOpts := opts.Initialization{
		Theme:   r.theme,
		Width:   "100%",
		Height:  height,
		ChartID: id,
	}
	if r.assetsHost != "" {
		initOpts.AssetsHost = r.assetsHost
	}
	return []charts.GlobalOpts{
		charts.WithInitializationOpts(initOpts),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	}
}

type snippetRenderer interface {
	RenderSnippet() render.ChartSnippet
}

func snippet(id string, c snippetRenderer) Snippet {
	s := c.RenderSnippet()
	return Snippet{
		ID:      id,
		Element: template.HTML(s.Element),
		Script:  template.HTML(s.Script),
	}
}
