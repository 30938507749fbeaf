// Package ingest decodes uploaded spreadsheet files into ordered row
// records. It knows nothing about issues: cell values are raw strings and
// all semantic validation happens downstream.
package ingest

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

var (
	ErrEmptyFile  = errors.New("file is empty")
	ErrNoHeader   = errors.New("no header row detected")
	ErrNoDataRows = errors.New("file contains a header but no data rows")
)

// Format identifies the input file encoding
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// xlsxMagic is the ZIP local-file-header signature; XLSX files are ZIP archives
var xlsxMagic = []byte{0x50, 0x4B, 0x03, 0x04}

// Row is one data row of the imported file. Number is 1-indexed over data
// rows (the header row is excluded). Columns preserves header order;
// Values maps trimmed, lowercased column name to raw cell value.
type Row struct {
	Number  int
	Columns []string
	Values  map[string]string
}

// Get returns the cell value for a column, matching the header
// case-insensitively with surrounding whitespace ignored.
func (r Row) Get(column string) string {
	return r.Values[strings.ToLower(strings.TrimSpace(column))]
}

// SniffFormat guesses the file format from its leading bytes. Anything
// that is not a ZIP archive is treated as delimited text.
func SniffFormat(data []byte) Format {
	if bytes.HasPrefix(data, xlsxMagic) {
		return FormatXLSX
	}
	return FormatCSV
}

// Parse decodes file bytes into ordered rows. Declared format "" means
// sniff from content. An empty file, a missing header row, or a file with
// zero data rows is an error: there is nothing to import and reporting
// that early beats a silent empty run.
func Parse(data []byte, format Format) ([]Row, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmptyFile
	}
	if format == "" {
		format = SniffFormat(data)
	}

	var (
		records [][]string
		err     error
	)
	switch format {
	case FormatXLSX:
		records, err = readXLSX(data)
	case FormatCSV:
		records, err = readCSV(data)
	default:
		err = fmt.Errorf("unsupported format %q", format)
	}
	if err != nil {
		return nil, err
	}

	return buildRows(records)
}

func readCSV(data []byte) ([][]string, error) {
	reader := csv.NewReader(stripBOM(bytes.NewReader(data)))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	var records [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading delimited text: %w", err)
		}
		records = append(records, record)
	}
	return records, nil
}

func buildRows(records [][]string) ([]Row, error) {
	if len(records) == 0 {
		return nil, ErrNoHeader
	}

	header := records[0]
	columns := make([]string, 0, len(header))
	hasNamedColumn := false
	for _, h := range header {
		name := strings.TrimSpace(h)
		columns = append(columns, name)
		if name != "" {
			hasNamedColumn = true
		}
	}
	if !hasNamedColumn {
		return nil, ErrNoHeader
	}
	if len(records) == 1 {
		return nil, ErrNoDataRows
	}

	rows := make([]Row, 0, len(records)-1)
	for i, record := range records[1:] {
		values := make(map[string]string, len(columns))
		for j, col := range columns {
			if col == "" {
				continue
			}
			val := ""
			if j < len(record) {
				val = strings.TrimSpace(record[j])
			}
			values[strings.ToLower(col)] = val
		}
		rows = append(rows, Row{
			Number:  i + 1,
			Columns: columns,
			Values:  values,
		})
	}
	return rows, nil
}

// stripBOM removes a UTF-8 byte order mark if present
func stripBOM(r io.Reader) io.Reader {
	buf := make([]byte, 3)
	n, err := r.Read(buf)
	if err != nil || n < 3 {
		return io.MultiReader(strings.NewReader(string(buf[:n])), r)
	}
	if buf[0] == 0xEF && buf[1] == 0xBB && buf[2] == 0xBF {
		return r
	}
	return io.MultiReader(strings.NewReader(string(buf[:n])), r)
}
