package dataset

import (
	"context"
	"fmt"
	"strings"

	"github.com/ettle/strcase"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"superstore-dashboard/internal/errors"
	"superstore-dashboard/internal/models"
)

type columnIndex struct {
	date     int
	region   int
	state    int
	city     int
	category int
	sales    int
}

// normalizeHeader folds "Order Date", "ORDER  DATE" and "order_date" onto
// the same key.
func normalizeHeader(h string) string {
	return strcase.ToSnake(strings.Join(strings.Fields(h), " "))
}

// resolveColumns maps the required columns onto header positions. Matching
// ignores case, repeated whitespace and snake_case spelling.
func resolveColumns(header []string) (columnIndex, error) {
	positions := make(map[string]int, len(header))
	for i, h := range header {
		key := normalizeHeader(h)
		if _, seen := positions[key]; !seen {
			positions[key] = i
		}
	}

	var missing []string
	lookup := func(name string) int {
		i, ok := positions[normalizeHeader(name)]
		if !ok {
			missing = append(missing, name)
			return -1
		}
		return i
	}

	idx := columnIndex{
		date:     lookup(models.ColumnOrderDate),
		region:   lookup(models.ColumnRegion),
		state:    lookup(models.ColumnState),
		city:     lookup(models.ColumnCity),
		category: lookup(models.ColumnCategory),
		sales:    lookup(models.ColumnSales),
	}

	if len(missing) > 0 {
		return columnIndex{}, errors.SchemaMismatch(fmt.Sprintf(
			"dataset is missing required column(s): %s", strings.Join(missing, ", ")))
	}
	return idx, nil
}

// parseSales reads a Sales cell. A blank cell counts as zero so that it
// drops out of every sum, as a missing value would.
func parseSales(value string) (decimal.Decimal, error) {
	cleaned := strings.TrimSpace(value)
	cleaned = strings.TrimPrefix(cleaned, "$")
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	if cleaned == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s %q is not a number", models.ColumnSales, value)
	}
	return d, nil
}

func isBlankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func parseOrder(row []string, width int, idx columnIndex, parseDate func(string) models.Date) (models.Order, error) {
	fields := make([]string, width)
	copy(fields, row)

	sales, err := parseSales(fields[idx.sales])
	if err != nil {
		return models.Order{}, err
	}

	return models.Order{
		OrderDate: parseDate(fields[idx.date]),
		Region:    strings.TrimSpace(fields[idx.region]),
		State:     strings.TrimSpace(fields[idx.state]),
		City:      strings.TrimSpace(fields[idx.city]),
		Category:  strings.TrimSpace(fields[idx.category]),
		Sales:     sales,
		Fields:    fields,
	}, nil
}

// buildTable validates the header and converts the data rows in batches on a
// bounded worker pool. Row order is preserved.
func (l *Loader) buildTable(ctx context.Context, format Format, rows [][]string) (*models.Table, error) {
	if len(rows) == 0 || isBlankRow(rows[0]) {
		return nil, errors.EmptyDataset("the file is empty")
	}

	header := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		header[i] = strings.TrimSpace(h)
	}
	// Spreadsheets pad the header with empty trailing cells.
	for len(header) > 0 && header[len(header)-1] == "" {
		header = header[:len(header)-1]
	}

	idx, err := resolveColumns(header)
	if err != nil {
		return nil, err
	}

	parseDate := ParseDate
	if format != FormatCSV {
		parseDate = ParseSheetDate
	}

	type numbered struct {
		line  int
		cells []string
	}
	data := make([]numbered, 0, len(rows)-1)
	for i, row := range rows[1:] {
		if isBlankRow(row) {
			continue
		}
		data = append(data, numbered{line: i + 1, cells: row})
	}
	if len(data) == 0 {
		return nil, errors.EmptyDataset("the file has a header but no data rows")
	}

	orders := make([]models.Order, len(data))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.workers)

	for start := 0; start < len(data); start += l.batchSize {
		end := min(start+l.batchSize, len(data))
		g.Go(func() error {
			for i := start; i < end; i++ {
				if err := gctx.Err(); err != nil {
					return err
				}
				order, err := parseOrder(data[i].cells, len(header), idx, parseDate)
				if err != nil {
					appErr := errors.SchemaMismatch(fmt.Sprintf("data row %d: %v", data[i].line, err))
					appErr.Cause = err
					return appErr
				}
				orders[i] = order
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &models.Table{
		Columns:    header,
		Orders:     orders,
		DateColumn: idx.date,
	}, nil
}
