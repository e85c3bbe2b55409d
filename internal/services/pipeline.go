package services

import (
	"slices"

	"github.com/shopspring/decimal"

	"superstore-dashboard/internal/models"
)

// BlankLabel groups rows whose key column is empty so aggregates still cover
// every filtered row.
const BlankLabel = "(blank)"

const (
	WarningStartAfterEnd = "Start date is after end date, so no rows match."
	WarningNoValidDates  = "Order Date has no parseable values, so no rows can be shown."
)

// Dimension is one of the categorical filter columns.
type Dimension int

const (
	DimensionRegion Dimension = iota
	DimensionState
	DimensionCity
)

func (d Dimension) String() string {
	switch d {
	case DimensionRegion:
		return "region"
	case DimensionState:
		return "state"
	case DimensionCity:
		return "city"
	default:
		return "unknown"
	}
}

func (d Dimension) value(o *models.Order) string {
	switch d {
	case DimensionRegion:
		return o.Region
	case DimensionState:
		return o.State
	case DimensionCity:
		return o.City
	default:
		return ""
	}
}

// DateBounds returns the earliest and latest valid Order Date. ok is false
// when no row carries a parseable date.
func DateBounds(orders []models.Order) (r models.DateRange, ok bool) {
	for i := range orders {
		d := orders[i].OrderDate
		if !d.Valid {
			continue
		}
		if !ok || d.Time.Before(r.Start) {
			r.Start = d.Time
		}
		if !ok || d.Time.After(r.End) {
			r.End = d.Time
		}
		ok = true
	}
	return r, ok
}

// FilterByDate keeps the rows whose Order Date falls on a calendar day within
// [r.Start, r.End]. Rows without a valid date never match.
func FilterByDate(orders []models.Order, r models.DateRange) []models.Order {
	start := models.NewDate(r.Start).Time
	end := models.NewDate(r.End).Time
	if start.After(end) {
		return []models.Order{}
	}

	out := make([]models.Order, 0, len(orders))
	for i := range orders {
		d := orders[i].OrderDate
		if !d.Valid {
			continue
		}
		if d.Time.Before(start) || d.Time.After(end) {
			continue
		}
		out = append(out, orders[i])
	}
	return out
}

// Distinct returns the sorted distinct non-empty values of a dimension.
func Distinct(orders []models.Order, dim Dimension) []string {
	seen := make(map[string]struct{})
	for i := range orders {
		if v := dim.value(&orders[i]); v != "" {
			seen[v] = struct{}{}
		}
	}
	values := make([]string, 0, len(seen))
	for v := range seen {
		values = append(values, v)
	}
	slices.Sort(values)
	return values
}

// FilterByDimensions applies the Region, State and City selections in that
// order. An empty selection on a dimension passes every row through.
func FilterByDimensions(orders []models.Order, sel models.Selection) []models.Order {
	out := orders
	out = filterDimension(out, DimensionRegion, sel.Regions)
	out = filterDimension(out, DimensionState, sel.States)
	out = filterDimension(out, DimensionCity, sel.Cities)
	return out
}

func filterDimension(orders []models.Order, dim Dimension, values []string) []models.Order {
	if len(values) == 0 {
		return orders
	}
	keep := make(map[string]struct{}, len(values))
	for _, v := range values {
		keep[v] = struct{}{}
	}
	out := make([]models.Order, 0, len(orders))
	for i := range orders {
		if _, ok := keep[dim.value(&orders[i])]; ok {
			out = append(out, orders[i])
		}
	}
	return out
}

// PruneSelection drops selected values that are not among the options and
// removes duplicates. The result follows option order.
func PruneSelection(sel models.Selection, opts models.FilterOptions) models.Selection {
	return models.Selection{
		Regions: intersect(opts.Regions, sel.Regions),
		States:  intersect(opts.States, sel.States),
		Cities:  intersect(opts.Cities, sel.Cities),
	}
}

func intersect(options, selected []string) []string {
	if len(selected) == 0 {
		return nil
	}
	want := make(map[string]struct{}, len(selected))
	for _, v := range selected {
		want[v] = struct{}{}
	}
	var out []string
	for _, v := range options {
		if _, ok := want[v]; ok {
			out = append(out, v)
		}
	}
	return out
}

func groupKey(v string) string {
	if v == "" {
		return BlankLabel
	}
	return v
}

func sumBy(orders []models.Order, key func(*models.Order) string) map[string]decimal.Decimal {
	sums := make(map[string]decimal.Decimal)
	for i := range orders {
		k := key(&orders[i])
		sums[k] = sums[k].Add(orders[i].Sales)
	}
	return sums
}

// AggregateByCategory sums Sales per Category, sorted by category name.
func AggregateByCategory(orders []models.Order) []models.CategorySales {
	sums := sumBy(orders, func(o *models.Order) string { return groupKey(o.Category) })
	result := make([]models.CategorySales, 0, len(sums))
	for category, sales := range sums {
		result = append(result, models.CategorySales{Category: category, Sales: sales})
	}
	slices.SortFunc(result, func(a, b models.CategorySales) int {
		if a.Category < b.Category {
			return -1
		}
		if a.Category > b.Category {
			return 1
		}
		return 0
	})
	return result
}

// AggregateByRegion sums Sales per Region, largest first.
func AggregateByRegion(orders []models.Order) []models.RegionSales {
	sums := sumBy(orders, func(o *models.Order) string { return groupKey(o.Region) })
	result := make([]models.RegionSales, 0, len(sums))
	for region, sales := range sums {
		result = append(result, models.RegionSales{Region: region, Sales: sales})
	}
	slices.SortFunc(result, func(a, b models.RegionSales) int {
		if c := b.Sales.Cmp(a.Sales); c != 0 {
			return c
		}
		if a.Region < b.Region {
			return -1
		}
		if a.Region > b.Region {
			return 1
		}
		return 0
	})
	return result
}

// AggregateByMonth sums Sales per YYYY-MM bucket in chronological order. Rows
// without a valid date are skipped; date-filtered input never has any.
func AggregateByMonth(orders []models.Order) []models.MonthlySales {
	sums := make(map[string]decimal.Decimal)
	for i := range orders {
		month := orders[i].OrderDate.Month()
		if month == "" {
			continue
		}
		sums[month] = sums[month].Add(orders[i].Sales)
	}
	result := make([]models.MonthlySales, 0, len(sums))
	for month, sales := range sums {
		result = append(result, models.MonthlySales{Month: month, Sales: sales})
	}
	slices.SortFunc(result, func(a, b models.MonthlySales) int {
		if a.Month < b.Month {
			return -1
		}
		if a.Month > b.Month {
			return 1
		}
		return 0
	})
	return result
}

// TotalSales sums Sales over every row.
func TotalSales(orders []models.Order) decimal.Decimal {
	total := decimal.Zero
	for i := range orders {
		total = total.Add(orders[i].Sales)
	}
	return total
}

// ComputeView runs one dashboard pass: date bounds, date filter, filter
// options, dimension filter and the three aggregates. It does not modify table.
func ComputeView(table *models.Table, req models.ViewRequest) (*models.View, error) {
	if table == nil {
		return nil, errNoTable
	}

	view := &models.View{}
	view.Bounds, view.HasBounds = DateBounds(table.Orders)

	view.Range = models.DateRange{Start: req.Start, End: req.End}
	if view.Range.Start.IsZero() {
		view.Range.Start = view.Bounds.Start
	}
	if view.Range.End.IsZero() {
		view.Range.End = view.Bounds.End
	}

	var dated []models.Order
	switch {
	case !view.HasBounds:
		dated = []models.Order{}
		view.Warnings = append(view.Warnings, WarningNoValidDates)
	case models.NewDate(view.Range.Start).Time.After(models.NewDate(view.Range.End).Time):
		dated = []models.Order{}
		view.Warnings = append(view.Warnings, WarningStartAfterEnd)
	default:
		dated = FilterByDate(table.Orders, view.Range)
	}

	view.Options = models.FilterOptions{
		Regions: Distinct(dated, DimensionRegion),
		States:  Distinct(dated, DimensionState),
		Cities:  Distinct(dated, DimensionCity),
	}
	view.Selection = PruneSelection(req.Selection, view.Options)

	filtered := FilterByDimensions(dated, view.Selection)
	view.Filtered = table.WithOrders(filtered)
	view.RowCount = len(filtered)
	view.CategorySales = AggregateByCategory(filtered)
	view.RegionSales = AggregateByRegion(filtered)
	view.MonthlySales = AggregateByMonth(filtered)
	view.TotalSales = TotalSales(filtered)

	return view, nil
}
