package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DateRange is an inclusive range of calendar days.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (r DateRange) IsZero() bool {
	return r.Start.IsZero() && r.End.IsZero()
}

// Selection holds the multi-select values per dimension. An empty slice means
// no restriction on that dimension.
type Selection struct {
	Regions []string `json:"regions"`
	States  []string `json:"states"`
	Cities  []string `json:"cities"`
}

func (s Selection) IsEmpty() bool {
	return len(s.Regions) == 0 && len(s.States) == 0 && len(s.Cities) == 0
}

// ViewRequest carries the widget values of one dashboard render. Zero Start or
// End fall back to the dataset bounds.
type ViewRequest struct {
	Start     time.Time
	End       time.Time
	Selection Selection
}

type CategorySales struct {
	Category string          `json:"category"`
	Sales    decimal.Decimal `json:"sales"`
}

type RegionSales struct {
	Region string          `json:"region"`
	Sales  decimal.Decimal `json:"sales"`
}

type MonthlySales struct {
	Month string          `json:"month"`
	Sales decimal.Decimal `json:"sales"`
}

// FilterOptions lists the distinct values offered by each multi-select.
type FilterOptions struct {
	Regions []string `json:"regions"`
	States  []string `json:"states"`
	Cities  []string `json:"cities"`
}

// View is the result of one pass through the filter and aggregate pipeline.
type View struct {
	Bounds    DateRange     `json:"bounds"`
	HasBounds bool          `json:"has_bounds"`
	Range     DateRange     `json:"range"`
	Options   FilterOptions `json:"options"`
	Selection Selection     `json:"selection"`

	Filtered *Table `json:"-"`

	CategorySales []CategorySales `json:"category_sales"`
	RegionSales   []RegionSales   `json:"region_sales"`
	MonthlySales  []MonthlySales  `json:"monthly_sales"`
	TotalSales    decimal.Decimal `json:"total_sales"`
	RowCount      int             `json:"row_count"`

	Warnings []string `json:"warnings,omitempty"`
}
