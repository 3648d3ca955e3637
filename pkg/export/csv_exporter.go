// Package export renders tabular reports for download.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
)

// utf8BOM lets spreadsheet applications detect UTF-8 in files holding Japanese text.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Table is a header row plus records keyed by header.
type Table struct {
	Headers []string
	Rows    []map[string]string
}

// CSVExporter writes tables as CSV.
type CSVExporter struct {
	BOM bool
}

// NewCSVExporter builds a CSV exporter. With bom set the output starts with a UTF-8 byte
// order mark.
func NewCSVExporter(bom bool) *CSVExporter {
	return &CSVExporter{BOM: bom}
}

// Write streams the table to w. Missing cells are written empty.
func (e *CSVExporter) Write(w io.Writer, table Table) error {
	if len(table.Headers) == 0 {
		return fmt.Errorf("csv requires at least one header")
	}
	if e.BOM {
		if _, err := w.Write(utf8BOM); err != nil {
			return fmt.Errorf("write bom: %w", err)
		}
	}
	writer := csv.NewWriter(w)
	if err := writer.Write(table.Headers); err != nil {
		return fmt.Errorf("write csv headers: %w", err)
	}
	record := make([]string, len(table.Headers))
	for _, row := range table.Rows {
		for i, header := range table.Headers {
			record[i] = row[header]
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}
