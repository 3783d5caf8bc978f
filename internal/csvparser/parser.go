// =============================================================================
// pouch-ops - CSV Parser Module
// =============================================================================
//
// This module reads PayPal "Activity download" CSV exports. PayPal writes
// these files with a UTF-8 byte-order mark, a single header row, quoted
// values and the occasional blank trailing line.
//
// FEATURES:
//   - Leading BOM stripped before the header is read
//   - Rows returned as header -> value maps, values trimmed
//   - Blank lines skipped
//   - Variable field counts tolerated (missing trailing columns become "")
//
// A malformed row fails the whole file. Files are independent units of work,
// so the importer isolates the failure to the file being parsed.
//
// =============================================================================

package csvparser

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// utf8BOM is the byte sequence Excel and PayPal prepend to UTF-8 CSV files.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ErrEmptyFile is returned when a CSV file has no header row.
var ErrEmptyFile = errors.New("CSV file is empty")

// =============================================================================
// CSV DATA STRUCTURE
// =============================================================================

// CSVData represents a parsed CSV file.
type CSVData struct {
	// Headers contains the column headers, trimmed.
	Headers []string

	// Rows contains the data rows as maps of header -> value.
	Rows []map[string]string

	// RowNumbers holds the 1-indexed line of each entry in Rows, counting the
	// header as line 1. Used for error reporting.
	RowNumbers []int

	// SourceFile is the path to the source CSV file, if any.
	SourceFile string
}

// RowCount is the number of non-blank data rows.
func (d *CSVData) RowCount() int {
	return len(d.Rows)
}

// =============================================================================
// PARSER FUNCTIONS
// =============================================================================

// ParseFile opens and parses a CSV file.
//
// PARAMETERS:
//   - filePath: The path to the CSV file.
//
// RETURNS:
//   - The parsed data.
//   - An error if the file cannot be opened or any row is malformed.
func ParseFile(filePath string) (*CSVData, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	data, err := Parse(file)
	if err != nil {
		return nil, err
	}
	data.SourceFile = filePath
	return data, nil
}

// Parse reads CSV-with-header content from r.
//
// PARSING PROCESS:
//   1. Strip a leading byte-order mark
//   2. Read the header row
//   3. Read each data row, skipping blank lines
//   4. Convert each row to a map of header -> trimmed value
func Parse(r io.Reader) (*CSVData, error) {
	reader := csv.NewReader(StripBOM(r))
	configureReader(reader)

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrEmptyFile
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	data := &CSVData{Headers: cleanHeaders(header)}

	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV: %w", err)
		}

		if isRowEmpty(row) {
			continue
		}

		line, _ := reader.FieldPos(0)

		rowMap := make(map[string]string, len(data.Headers))
		for colIndex, h := range data.Headers {
			if colIndex < len(row) {
				rowMap[h] = strings.TrimSpace(row[colIndex])
			} else {
				rowMap[h] = ""
			}
		}

		data.Rows = append(data.Rows, rowMap)
		data.RowNumbers = append(data.RowNumbers, line)
	}

	return data, nil
}

// configureReader applies the settings PayPal exports need.
func configureReader(reader *csv.Reader) {
	// Trailing columns are sometimes omitted on short rows.
	reader.FieldsPerRecord = -1

	// Item titles occasionally contain stray quotes.
	reader.LazyQuotes = true

	reader.TrimLeadingSpace = true
}

// cleanHeaders trims header names and strips surrounding quotes left by
// LazyQuotes. Empty headers get a positional name so they stay addressable.
func cleanHeaders(headers []string) []string {
	cleaned := make([]string, len(headers))
	for i, h := range headers {
		h = strings.Trim(strings.TrimSpace(h), `"`)
		if h == "" {
			h = fmt.Sprintf("Column_%d", i+1)
		}
		cleaned[i] = h
	}
	return cleaned
}

// isRowEmpty checks if a row contains only empty values.
func isRowEmpty(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// StripBOM returns a reader that skips a leading UTF-8 byte-order mark.
func StripBOM(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	prefix, err := br.Peek(len(utf8BOM))
	if err == nil && bytes.Equal(prefix, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}
	return br
}
