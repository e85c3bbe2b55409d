package dataset

import (
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"superstore-dashboard/internal/models"
)

var dateLayouts = []string{
	time.DateOnly,
	time.RFC3339,
	"2006-01-02T15:04:05",
	time.DateTime,
	"2006/01/02",
	"01/02/2006",
	"1/2/2006",
	"01/02/2006 15:04:05",
	"1/2/2006 15:04",
	"01-02-06",
	"1-2-06",
	"01-02-2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
	"02-Jan-2006",
	"2-Jan-06",
	"2006-01",
	"2006",
}

// Excel serials outside this window are treated as plain numbers, not dates
// (1 = 1900-01-01, 2958465 = 9999-12-31).
const (
	minExcelSerial = 1
	maxExcelSerial = 2958465
)

// ParseDate reads an Order Date cell leniently. Values that match no layout
// yield an invalid Date rather than an error. Bare numbers are not dates
// here; see ParseSheetDate.
func ParseDate(value string) models.Date {
	value = strings.TrimSpace(value)
	if value == "" {
		return models.Date{}
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return models.NewDate(t)
		}
	}
	return models.Date{}
}

// ParseSheetDate reads an Order Date cell from a spreadsheet, where date
// cells arrive as Excel serial day numbers.
func ParseSheetDate(value string) models.Date {
	value = strings.TrimSpace(value)
	if serial, err := strconv.ParseFloat(value, 64); err == nil {
		if serial < minExcelSerial || serial > maxExcelSerial {
			return models.Date{}
		}
		t, err := excelize.ExcelDateToTime(serial, false)
		if err != nil {
			return models.Date{}
		}
		return models.NewDate(t)
	}
	return ParseDate(value)
}
