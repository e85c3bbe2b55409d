package dataset

import (
	"encoding/csv"
	"io"

	"superstore-dashboard/internal/models"
)

const (
	ExportFilename    = "Processed_Data.csv"
	ExportContentType = "text/csv"
)

// WriteCSV writes the table as UTF-8 CSV with a header row and no index
// column. Order Date is written as YYYY-MM-DD (blank when it could not be
// parsed); every other cell is written as loaded.
func WriteCSV(w io.Writer, table *models.Table) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(table.Columns); err != nil {
		return err
	}

	record := make([]string, len(table.Columns))
	for _, order := range table.Orders {
		clear(record)
		copy(record, order.Fields)
		if table.DateColumn >= 0 && table.DateColumn < len(record) {
			record[table.DateColumn] = order.OrderDate.String()
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}
