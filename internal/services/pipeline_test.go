package services

import (
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"superstore-dashboard/internal/errors"
	"superstore-dashboard/internal/models"
)

type location struct {
	region, state, city string
}

var scenarioLocations = []location{
	{"East", "New York", "New York City"},
	{"East", "Ohio", "Columbus"},
	{"West", "California", "Los Angeles"},
	{"West", "Washington", "Seattle"},
}

var scenarioCategories = []string{"Furniture", "Office Supplies", "Technology"}

func day(year int, month time.Month, d int) time.Time {
	return time.Date(year, month, d, 0, 0, 0, 0, time.UTC)
}

// scenarioTable has one row per location per month from 2015-01 through
// 2018-12, dated on days 1, 8, 15 and 22, plus one row with no valid date.
// Every row's Sales is unique so rows can be identified by it.
func scenarioTable() *models.Table {
	var orders []models.Order
	n := 0
	for year := 2015; year <= 2018; year++ {
		for month := time.January; month <= time.December; month++ {
			for i, loc := range scenarioLocations {
				n++
				orders = append(orders, models.Order{
					OrderDate: models.NewDate(day(year, month, 1+i*7)),
					Region:    loc.region,
					State:     loc.state,
					City:      loc.city,
					Category:  scenarioCategories[n%len(scenarioCategories)],
					Sales:     decimal.NewFromInt(int64(n)).Div(decimal.NewFromInt(4)),
				})
			}
		}
	}
	orders = append(orders, models.Order{
		Region:   "East",
		State:    "Ohio",
		City:     "Columbus",
		Category: "Furniture",
		Sales:    decimal.NewFromInt(100000),
	})
	return &models.Table{Columns: models.RequiredColumns, Orders: orders, DateColumn: 0}
}

func salesKeys(orders []models.Order) map[string]bool {
	keys := make(map[string]bool, len(orders))
	for _, o := range orders {
		keys[o.Sales.String()] = true
	}
	return keys
}

func TestDateBounds(t *testing.T) {
	table := scenarioTable()

	bounds, ok := DateBounds(table.Orders)
	if !ok {
		t.Fatal("DateBounds() should find bounds")
	}
	if !bounds.Start.Equal(day(2015, time.January, 1)) {
		t.Errorf("Start = %v, want 2015-01-01", bounds.Start)
	}
	if !bounds.End.Equal(day(2018, time.December, 22)) {
		t.Errorf("End = %v, want 2018-12-22", bounds.End)
	}

	if _, ok := DateBounds(nil); ok {
		t.Error("DateBounds(nil) should report no bounds")
	}
	if _, ok := DateBounds([]models.Order{{Region: "East"}}); ok {
		t.Error("rows without valid dates should not produce bounds")
	}
}

func TestFilterByDate_SubsetWithinRange(t *testing.T) {
	table := scenarioTable()
	original := salesKeys(table.Orders)

	ranges := []models.DateRange{
		{Start: day(2016, time.January, 1), End: day(2016, time.December, 31)},
		{Start: day(2015, time.March, 8), End: day(2015, time.March, 8)},
		{Start: day(2014, time.January, 1), End: day(2020, time.January, 1)},
		{Start: day(2017, time.June, 2), End: day(2017, time.June, 7)},
	}

	for _, r := range ranges {
		t.Run(fmt.Sprintf("%s_%s", r.Start.Format(time.DateOnly), r.End.Format(time.DateOnly)), func(t *testing.T) {
			got := FilterByDate(table.Orders, r)
			if len(got) > len(table.Orders) {
				t.Fatalf("filtered %d rows from %d", len(got), len(table.Orders))
			}
			for _, o := range got {
				if !original[o.Sales.String()] {
					t.Errorf("row %s is not in the original table", o.Sales)
				}
				if !o.OrderDate.Valid {
					t.Errorf("row %s has no valid date", o.Sales)
					continue
				}
				if o.OrderDate.Time.Before(r.Start) || o.OrderDate.Time.After(r.End) {
					t.Errorf("row dated %s outside [%s, %s]", o.OrderDate, r.Start, r.End)
				}
			}
		})
	}
}

func TestFilterByDate_EndDayInclusive(t *testing.T) {
	table := scenarioTable()

	// End carries a time of day; the whole calendar day still matches.
	got := FilterByDate(table.Orders, models.DateRange{
		Start: day(2016, time.March, 22),
		End:   time.Date(2016, time.March, 22, 0, 0, 0, 0, time.UTC),
	})
	if len(got) != 1 {
		t.Fatalf("expected 1 row on 2016-03-22, got %d", len(got))
	}
	if got[0].City != "Seattle" {
		t.Errorf("City = %q, want Seattle", got[0].City)
	}
}

func TestFilterByDate_ExcludesNullDates(t *testing.T) {
	table := scenarioTable()
	got := FilterByDate(table.Orders, models.DateRange{Start: day(1900, time.January, 1), End: day(2100, time.January, 1)})
	if len(got) != len(table.Orders)-1 {
		t.Errorf("expected every dated row (%d), got %d", len(table.Orders)-1, len(got))
	}
	for _, o := range got {
		if !o.OrderDate.Valid {
			t.Error("null-dated row should be excluded")
		}
	}
}

func TestFilterByDate_StartAfterEnd(t *testing.T) {
	table := scenarioTable()
	got := FilterByDate(table.Orders, models.DateRange{Start: day(2017, time.January, 1), End: day(2016, time.January, 1)})
	if len(got) != 0 {
		t.Errorf("expected no rows, got %d", len(got))
	}
}

func TestDistinct(t *testing.T) {
	orders := []models.Order{
		{Region: "West", State: "Utah"},
		{Region: "East", State: ""},
		{Region: "West", State: "Utah"},
		{Region: "Central", State: "Texas"},
	}

	regions := Distinct(orders, DimensionRegion)
	want := []string{"Central", "East", "West"}
	if fmt.Sprint(regions) != fmt.Sprint(want) {
		t.Errorf("Distinct(region) = %v, want %v", regions, want)
	}

	states := Distinct(orders, DimensionState)
	if len(states) != 2 {
		t.Errorf("empty values should be skipped, got %v", states)
	}
}

func TestFilterByDimensions_EmptySelectionPassesThrough(t *testing.T) {
	table := scenarioTable()
	got := FilterByDimensions(table.Orders, models.Selection{})
	if len(got) != len(table.Orders) {
		t.Errorf("expected %d rows, got %d", len(table.Orders), len(got))
	}
}

func TestFilterByDimensions_Monotonic(t *testing.T) {
	table := scenarioTable()

	selections := []models.Selection{
		{},
		{Regions: []string{"East"}},
		{Regions: []string{"East"}, States: []string{"Ohio"}},
		{Regions: []string{"East"}, States: []string{"Ohio"}, Cities: []string{"Columbus"}},
		{Regions: []string{"East"}, States: []string{"Ohio"}, Cities: []string{"Seattle"}},
	}

	prev := len(table.Orders) + 1
	for i, sel := range selections {
		got := len(FilterByDimensions(table.Orders, sel))
		if got > prev {
			t.Errorf("step %d: narrowing the selection grew the result from %d to %d", i, prev, got)
		}
		prev = got
	}

	if prev != 0 {
		t.Errorf("contradicting selections should leave no rows, got %d", prev)
	}

	// Restricting any single dimension never exceeds the unrestricted count.
	for _, sel := range []models.Selection{
		{Regions: []string{"West"}},
		{States: []string{"New York", "California"}},
		{Cities: []string{"Seattle", "Columbus", "Nowhere"}},
	} {
		if got := len(FilterByDimensions(table.Orders, sel)); got > len(table.Orders) {
			t.Errorf("selection %+v returned %d rows from %d", sel, got, len(table.Orders))
		}
	}
}

func TestFilterByDimensions_KeepsOnlySelected(t *testing.T) {
	table := scenarioTable()
	got := FilterByDimensions(table.Orders, models.Selection{States: []string{"Ohio", "Washington"}})
	if len(got) == 0 {
		t.Fatal("expected rows")
	}
	for _, o := range got {
		if o.State != "Ohio" && o.State != "Washington" {
			t.Errorf("unexpected state %q", o.State)
		}
	}
}

func TestPruneSelection(t *testing.T) {
	opts := models.FilterOptions{
		Regions: []string{"East", "West"},
		States:  []string{"Ohio"},
	}
	got := PruneSelection(models.Selection{
		Regions: []string{"West", "Nowhere", "East", "West"},
		States:  []string{"Texas"},
	}, opts)

	if fmt.Sprint(got.Regions) != "[East West]" {
		t.Errorf("Regions = %v, want [East West]", got.Regions)
	}
	if len(got.States) != 0 {
		t.Errorf("States = %v, want none", got.States)
	}
	if got.Cities != nil {
		t.Errorf("Cities = %v, want nil", got.Cities)
	}
}

func TestAggregates_PartitionTotal(t *testing.T) {
	table := scenarioTable()

	subsets := [][]models.Order{
		table.Orders,
		FilterByDate(table.Orders, models.DateRange{Start: day(2017, time.January, 1), End: day(2017, time.June, 30)}),
		FilterByDimensions(table.Orders, models.Selection{Regions: []string{"West"}}),
		{},
	}

	for i, orders := range subsets {
		total := TotalSales(orders)

		var byCategory, byRegion decimal.Decimal
		for _, c := range AggregateByCategory(orders) {
			byCategory = byCategory.Add(c.Sales)
		}
		for _, r := range AggregateByRegion(orders) {
			byRegion = byRegion.Add(r.Sales)
		}
		if !byCategory.Equal(total) {
			t.Errorf("subset %d: category sum %s != total %s", i, byCategory, total)
		}
		if !byRegion.Equal(total) {
			t.Errorf("subset %d: region sum %s != total %s", i, byRegion, total)
		}

		// Month buckets cover every dated row.
		dated := FilterByDate(orders, models.DateRange{Start: day(1900, time.January, 1), End: day(2100, time.January, 1)})
		var byMonth decimal.Decimal
		for _, m := range AggregateByMonth(orders) {
			byMonth = byMonth.Add(m.Sales)
		}
		if !byMonth.Equal(TotalSales(dated)) {
			t.Errorf("subset %d: month sum %s != dated total %s", i, byMonth, TotalSales(dated))
		}
	}
}

func TestAggregates_BlankKeysGrouped(t *testing.T) {
	orders := []models.Order{
		{Category: "Technology", Region: "East", Sales: decimal.NewFromInt(10)},
		{Category: "", Region: "", Sales: decimal.NewFromInt(5)},
	}

	categories := AggregateByCategory(orders)
	if len(categories) != 2 || categories[0].Category != BlankLabel {
		t.Errorf("AggregateByCategory() = %+v, want a %q group first", categories, BlankLabel)
	}

	regions := AggregateByRegion(orders)
	if len(regions) != 2 || regions[1].Region != BlankLabel || !regions[1].Sales.Equal(decimal.NewFromInt(5)) {
		t.Errorf("AggregateByRegion() = %+v", regions)
	}
}

func TestAggregateByRegion_SortedBySalesDescending(t *testing.T) {
	orders := []models.Order{
		{Region: "South", Sales: decimal.NewFromInt(1)},
		{Region: "West", Sales: decimal.NewFromInt(30)},
		{Region: "East", Sales: decimal.NewFromInt(20)},
		{Region: "South", Sales: decimal.NewFromInt(2)},
	}

	got := AggregateByRegion(orders)
	want := []string{"West", "East", "South"}
	for i, r := range got {
		if r.Region != want[i] {
			t.Errorf("position %d = %s, want %s", i, r.Region, want[i])
		}
	}
	if !got[2].Sales.Equal(decimal.NewFromInt(3)) {
		t.Errorf("South = %s, want 3", got[2].Sales)
	}
}

func TestAggregateByMonth_Chronological(t *testing.T) {
	orders := []models.Order{
		{OrderDate: models.NewDate(day(2017, time.February, 3)), Sales: decimal.NewFromInt(1)},
		{OrderDate: models.NewDate(day(2016, time.December, 30)), Sales: decimal.NewFromInt(2)},
		{OrderDate: models.NewDate(day(2017, time.February, 28)), Sales: decimal.NewFromInt(4)},
		{OrderDate: models.NewDate(day(2017, time.January, 1)), Sales: decimal.NewFromInt(8)},
		{Sales: decimal.NewFromInt(16)},
	}

	got := AggregateByMonth(orders)
	if len(got) != 3 {
		t.Fatalf("expected 3 months, got %+v", got)
	}
	wantMonths := []string{"2016-12", "2017-01", "2017-02"}
	wantSales := []int64{2, 8, 5}
	for i := range got {
		if got[i].Month != wantMonths[i] {
			t.Errorf("month %d = %s, want %s", i, got[i].Month, wantMonths[i])
		}
		if !got[i].Sales.Equal(decimal.NewFromInt(wantSales[i])) {
			t.Errorf("sales %d = %s, want %d", i, got[i].Sales, wantSales[i])
		}
	}
}

func TestComputeView_YearAndRegionScenario(t *testing.T) {
	table := scenarioTable()

	yearView, err := ComputeView(table, models.ViewRequest{
		Start: day(2016, time.January, 1),
		End:   day(2016, time.December, 31),
	})
	if err != nil {
		t.Fatalf("ComputeView() error = %v", err)
	}
	if yearView.RowCount != 48 {
		t.Errorf("expected 48 rows in 2016, got %d", yearView.RowCount)
	}
	for _, o := range yearView.Filtered.Orders {
		if o.OrderDate.Time.Year() != 2016 {
			t.Errorf("row dated %s outside 2016", o.OrderDate)
		}
	}

	eastView, err := ComputeView(table, models.ViewRequest{
		Start:     day(2016, time.January, 1),
		End:       day(2016, time.December, 31),
		Selection: models.Selection{Regions: []string{"East"}},
	})
	if err != nil {
		t.Fatalf("ComputeView() error = %v", err)
	}
	if eastView.RowCount != 24 {
		t.Errorf("expected 24 East rows in 2016, got %d", eastView.RowCount)
	}

	want := decimal.Zero
	for _, o := range table.Orders {
		if o.OrderDate.Valid && o.OrderDate.Time.Year() == 2016 && o.Region == "East" {
			want = want.Add(o.Sales)
		}
	}
	for _, o := range eastView.Filtered.Orders {
		if o.Region != "East" || o.OrderDate.Time.Year() != 2016 {
			t.Errorf("unexpected row %s %s", o.Region, o.OrderDate)
		}
	}

	var got decimal.Decimal
	for _, c := range eastView.CategorySales {
		got = got.Add(c.Sales)
	}
	if !got.Equal(want) {
		t.Errorf("category aggregate sum = %s, want %s", got, want)
	}
	if !eastView.TotalSales.Equal(want) {
		t.Errorf("TotalSales = %s, want %s", eastView.TotalSales, want)
	}
	if len(eastView.RegionSales) != 1 || eastView.RegionSales[0].Region != "East" {
		t.Errorf("RegionSales = %+v, want only East", eastView.RegionSales)
	}
	if len(eastView.MonthlySales) != 12 {
		t.Errorf("expected 12 months, got %d", len(eastView.MonthlySales))
	}
}

func TestComputeView_EmptySelectionsMatchDateFilter(t *testing.T) {
	table := scenarioTable()
	r := models.DateRange{Start: day(2015, time.June, 1), End: day(2017, time.May, 31)}

	view, err := ComputeView(table, models.ViewRequest{Start: r.Start, End: r.End})
	if err != nil {
		t.Fatalf("ComputeView() error = %v", err)
	}

	dated := FilterByDate(table.Orders, r)
	if view.RowCount != len(dated) {
		t.Fatalf("RowCount = %d, want %d", view.RowCount, len(dated))
	}
	for i := range dated {
		if !view.Filtered.Orders[i].Sales.Equal(dated[i].Sales) {
			t.Fatalf("row %d differs from the date-filtered table", i)
		}
	}
}

func TestComputeView_Defaults(t *testing.T) {
	table := scenarioTable()
	rows := len(table.Orders)

	view, err := ComputeView(table, models.ViewRequest{})
	if err != nil {
		t.Fatalf("ComputeView() error = %v", err)
	}
	if !view.HasBounds {
		t.Error("HasBounds should be true")
	}
	if !view.Range.Start.Equal(view.Bounds.Start) || !view.Range.End.Equal(view.Bounds.End) {
		t.Errorf("Range = %+v, want bounds %+v", view.Range, view.Bounds)
	}
	if view.RowCount != rows-1 {
		t.Errorf("RowCount = %d, want %d", view.RowCount, rows-1)
	}
	if len(view.Options.Regions) != 2 || len(view.Options.States) != 4 || len(view.Options.Cities) != 4 {
		t.Errorf("Options = %+v", view.Options)
	}
	if len(view.Warnings) != 0 {
		t.Errorf("unexpected warnings %v", view.Warnings)
	}
	if len(table.Orders) != rows {
		t.Error("ComputeView() must not modify the table")
	}
	if view.Filtered.DateColumn != table.DateColumn || len(view.Filtered.Columns) != len(table.Columns) {
		t.Error("filtered table should keep the header")
	}
}

func TestComputeView_StaleSelectionPruned(t *testing.T) {
	table := scenarioTable()

	view, err := ComputeView(table, models.ViewRequest{
		Selection: models.Selection{Cities: []string{"Nowhere"}},
	})
	if err != nil {
		t.Fatalf("ComputeView() error = %v", err)
	}
	if len(view.Selection.Cities) != 0 {
		t.Errorf("stale city should be dropped, got %v", view.Selection.Cities)
	}
	if view.RowCount != len(table.Orders)-1 {
		t.Errorf("pruned selection should not restrict rows, got %d", view.RowCount)
	}
}

func TestComputeView_StartAfterEnd(t *testing.T) {
	view, err := ComputeView(scenarioTable(), models.ViewRequest{
		Start: day(2018, time.January, 1),
		End:   day(2017, time.January, 1),
	})
	if err != nil {
		t.Fatalf("ComputeView() error = %v", err)
	}
	if view.RowCount != 0 || len(view.CategorySales) != 0 || len(view.MonthlySales) != 0 {
		t.Errorf("expected an empty view, got %d rows", view.RowCount)
	}
	if len(view.Warnings) != 1 || view.Warnings[0] != WarningStartAfterEnd {
		t.Errorf("Warnings = %v", view.Warnings)
	}
	if !view.TotalSales.IsZero() {
		t.Errorf("TotalSales = %s, want 0", view.TotalSales)
	}
}

func TestComputeView_NoValidDates(t *testing.T) {
	table := &models.Table{Orders: []models.Order{{Region: "East", Sales: decimal.NewFromInt(1)}}}

	view, err := ComputeView(table, models.ViewRequest{})
	if err != nil {
		t.Fatalf("ComputeView() error = %v", err)
	}
	if view.HasBounds {
		t.Error("HasBounds should be false")
	}
	if view.RowCount != 0 {
		t.Errorf("RowCount = %d, want 0", view.RowCount)
	}
	if len(view.Warnings) != 1 || view.Warnings[0] != WarningNoValidDates {
		t.Errorf("Warnings = %v", view.Warnings)
	}
}

func TestComputeView_NilTable(t *testing.T) {
	view, err := ComputeView(nil, models.ViewRequest{})
	if err == nil {
		t.Fatal("expected an error")
	}
	if view != nil {
		t.Error("no view should be computed")
	}
	if !errors.HasCode(err, errors.CodeDatasetUnavailable) {
		t.Errorf("error = %v, want DATASET_UNAVAILABLE", err)
	}
}
