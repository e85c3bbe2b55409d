package dataset

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"

	"superstore-dashboard/internal/errors"
)

// Format is a supported input file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
	FormatXLS  Format = "xls"
)

// DetectFormat picks the parser from the file extension.
func DetectFormat(name string) (Format, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv", ".txt":
		return FormatCSV, nil
	case ".xlsx", ".xlsm":
		return FormatXLSX, nil
	case ".xls":
		return FormatXLS, nil
	default:
		return "", errors.UnsupportedFormat(fmt.Sprintf("unsupported file type %q: upload a .csv, .txt, .xlsx or .xls file", filepath.Ext(name)))
	}
}

func readRows(format Format, data []byte) ([][]string, error) {
	switch format {
	case FormatCSV:
		return readDelimited(data)
	case FormatXLSX:
		return readXLSX(data)
	case FormatXLS:
		return readXLS(data)
	default:
		return nil, errors.UnsupportedFormat(fmt.Sprintf("unsupported format %q", format))
	}
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// readDelimited reads comma or tab separated text with a header row. Input
// that is not valid UTF-8 is decoded as Windows-1252, which is how the public
// Superstore CSV exports are encoded.
func readDelimited(data []byte) ([][]string, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if !utf8.Valid(data) {
		decoded, err := charmap.Windows1252.NewDecoder().Bytes(data)
		if err != nil {
			return nil, errors.BadRequestWrap(err, "file is not valid UTF-8 or Windows-1252 text")
		}
		data = decoded
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = sniffDelimiter(data)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.ReuseRecord = false

	var rows [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.BadRequestWrap(err, "malformed delimited text")
		}
		rows = append(rows, record)
	}
	return rows, nil
}

func sniffDelimiter(data []byte) rune {
	line := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		line = data[:i]
	}
	if bytes.Count(line, []byte{'\t'}) > bytes.Count(line, []byte{','}) {
		return '\t'
	}
	return ','
}

func readXLSX(data []byte) ([][]string, error) {
	file, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, errors.BadRequestWrap(err, "could not open spreadsheet")
	}
	defer func() { _ = file.Close() }()

	sheetName := file.GetSheetName(0)
	if sheetName == "" {
		return nil, errors.EmptyDataset("no worksheet found")
	}

	// Raw values keep dates as serial numbers and sales without currency
	// formatting; both are normalised by the row parser.
	rows, err := file.GetRows(sheetName, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, errors.BadRequestWrap(err, "could not read worksheet")
	}
	return rows, nil
}

func readXLS(data []byte) (rows [][]string, err error) {
	// The legacy BIFF reader panics on some malformed workbooks.
	defer func() {
		if r := recover(); r != nil {
			rows = nil
			err = errors.BadRequest(fmt.Sprintf("could not read legacy spreadsheet: %v", r))
		}
	}()

	workbook, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
	if err != nil {
		return nil, errors.BadRequestWrap(err, "could not open legacy spreadsheet")
	}
	if workbook == nil || workbook.NumSheets() == 0 {
		return nil, errors.EmptyDataset("no worksheet found")
	}
	useGeneralFormat(workbook)

	// The Superstore workbook carries Returns and People sheets after Orders;
	// only the first sheet is the dataset.
	sheet := workbook.GetSheet(0)
	if sheet == nil {
		return nil, errors.EmptyDataset("no worksheet found")
	}

	width := 0
	rows = make([][]string, 0, int(sheet.MaxRow)+1)
	for i := 0; i <= int(sheet.MaxRow); i++ {
		row := sheetRow(sheet, i)
		if row == nil {
			rows = append(rows, nil)
			continue
		}
		// ROW records store one past the last column. Rows written without a
		// ROW record report none, so the header width is the floor.
		last := max(row.LastCol(), width-1)
		cells := make([]string, last+1)
		for c := 0; c <= last; c++ {
			cells[c] = row.Col(c)
		}
		for len(cells) > 0 && cells[len(cells)-1] == "" {
			cells = cells[:len(cells)-1]
		}
		if width == 0 {
			width = len(cells)
		}
		rows = append(rows, cells)
	}
	return rows, nil
}

// useGeneralFormat renders every number cell as its raw value, matching the
// XLSX reader. The library formats built-in date styles as "2006.01", which
// drops the day, so date cells are read as serials instead.
//
// TODO: extrame/xls v0.0.1 does not divide integer RK values flagged as
// x100, so cents stored that way read 100 times too large. Drop the caveat
// once a tagged release fixes RK decoding.
func useGeneralFormat(workbook *xls.WorkBook) {
	for _, xf := range workbook.Xfs {
		switch x := xf.(type) {
		case *xls.Xf8:
			x.Format = 0
		case *xls.Xf5:
			x.Format = 0
		}
	}
}

// sheetRow returns nil for rows with no cells; the library panics on them.
func sheetRow(sheet *xls.WorkSheet, i int) (row *xls.Row) {
	defer func() {
		if recover() != nil {
			row = nil
		}
	}()
	return sheet.Row(i)
}
