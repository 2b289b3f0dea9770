package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"
)

const utf8BOM = "\xef\xbb\xbf"

// Dataset is tabular export content; Rows are keyed by header.
type Dataset struct {
	Headers []string
	Rows    []map[string]string
	// ExcelBOM prefixes the output with a UTF-8 byte order mark so spreadsheet apps detect
	// the encoding.
	ExcelBOM bool
}

// RenderCSV encodes the dataset with a header row. Cells that a spreadsheet would read as
// a formula are prefixed with a single quote.
func RenderCSV(data Dataset) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, fmt.Errorf("csv requires at least one header")
	}
	buf := &bytes.Buffer{}
	if data.ExcelBOM {
		buf.WriteString(utf8BOM)
	}
	w := csv.NewWriter(buf)
	if err := w.Write(data.Headers); err != nil {
		return nil, fmt.Errorf("write csv headers: %w", err)
	}
	record := make([]string, len(data.Headers))
	for _, row := range data.Rows {
		for i, header := range data.Headers {
			record[i] = escapeFormula(row[header])
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

// StripBOM drops a leading UTF-8 byte order mark, as written by Excel's "CSV UTF-8".
func StripBOM(data []byte) []byte {
	return bytes.TrimPrefix(data, []byte(utf8BOM))
}

func escapeFormula(cell string) string {
	if cell != "" && strings.ContainsRune("=+-@\t\r", rune(cell[0])) {
		return "'" + cell
	}
	return cell
}
