package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Column names every dataset must carry.
const (
	ColumnOrderDate = "Order Date"
	ColumnRegion    = "Region"
	ColumnState     = "State"
	ColumnCity      = "City"
	ColumnCategory  = "Category"
	ColumnSales     = "Sales"
)

// RequiredColumns lists the columns validated at load time.
var RequiredColumns = []string{
	ColumnOrderDate,
	ColumnRegion,
	ColumnState,
	ColumnCity,
	ColumnCategory,
	ColumnSales,
}

// Date is a calendar date that may be missing. Valid is false when the source
// value could not be parsed.
type Date struct {
	Time  time.Time
	Valid bool
}

func NewDate(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Time: time.Date(y, m, d, 0, 0, 0, 0, time.UTC), Valid: true}
}

func (d Date) String() string {
	if !d.Valid {
		return ""
	}
	return d.Time.Format(time.DateOnly)
}

// Month returns the YYYY-MM bucket of the date.
func (d Date) Month() string {
	if !d.Valid {
		return ""
	}
	return d.Time.Format("2006-01")
}

type Order struct {
	OrderDate Date
	Region    string
	State     string
	City      string
	Category  string
	Sales     decimal.Decimal

	// Fields holds every cell of the source row in Table.Columns order.
	Fields []string
}

// Table is a loaded dataset. Columns keeps the header exactly as read.
type Table struct {
	Columns []string
	Orders  []Order

	// DateColumn is the index of the Order Date column in Columns.
	DateColumn int
}

func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Orders)
}

// WithOrders returns a table sharing the header of t with a different row set.
func (t *Table) WithOrders(orders []Order) *Table {
	return &Table{
		Columns:    t.Columns,
		Orders:     orders,
		DateColumn: t.DateColumn,
	}
}

type SourceKind string

const (
	SourceUpload   SourceKind = "upload"
	SourceFallback SourceKind = "fallback"
)

// Source describes where a dataset came from.
type Source struct {
	Kind     SourceKind `json:"kind"`
	Name     string     `json:"name"`
	Rows     int        `json:"rows"`
	LoadedAt time.Time  `json:"loaded_at"`
}
