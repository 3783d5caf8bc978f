// =============================================================================
// pouch-ops - Price Sheet (XLSX)
// =============================================================================
//
// The sales team maintains prices in a spreadsheet. This module reads and
// writes that workbook so it can replace the built-in table.
//
// WORKBOOK LAYOUT:
//
//   Sheet "Prices" (required)
//   | Column A        | Column B | Column C | Column D     |
//   |-----------------|----------|----------|--------------|
//   | Shape           | Size     | Quantity | Price        |
//   | stand-up        | m        | 500      | 191.40       |
//
//   Sheet "Images" (optional)
//   | Column A        | Column B                                   |
//   |-----------------|--------------------------------------------|
//   | Shape           | URL                                        |
//
// The first row of each sheet is a header and is skipped. Blank rows are
// ignored. Any other invalid row rejects the whole workbook.
//
// =============================================================================

package catalog

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

const (
	pricesSheet = "Prices"
	imagesSheet = "Images"
)

// LoadSheet builds a Catalog from an XLSX price sheet.
//
// PARAMETERS:
//   - path: The path to the workbook.
//
// RETURNS:
//   - The Catalog.
//   - An error naming the sheet row when a row has an unknown shape, size or
//     quantity, or a price that is not a positive number.
func LoadSheet(path string) (*Catalog, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open price sheet: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if !slices.Contains(sheets, pricesSheet) {
		return nil, fmt.Errorf("price sheet %s has no %q sheet", path, pricesSheet)
	}

	rows, err := f.GetRows(pricesSheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}

	c := newCatalog()

	// Row 1 is the header.
	for i := 1; i < len(rows); i++ {
		row := rows[i]
		if isRowEmpty(row) {
			continue
		}
		if err := parsePriceRow(c, row); err != nil {
			return nil, fmt.Errorf("error parsing %s row %d: %w", pricesSheet, i+1, err)
		}
	}

	if slices.Contains(sheets, imagesSheet) {
		rows, err := f.GetRows(imagesSheet)
		if err != nil {
			return nil, fmt.Errorf("failed to read rows: %w", err)
		}
		for i := 1; i < len(rows); i++ {
			row := rows[i]
			if isRowEmpty(row) {
				continue
			}
			if err := c.setImage(cell(row, 0), cell(row, 1)); err != nil {
				return nil, fmt.Errorf("error parsing %s row %d: %w", imagesSheet, i+1, err)
			}
		}
	}

	return c, nil
}

// parsePriceRow reads Shape | Size | Quantity | Price.
func parsePriceRow(c *Catalog, row []string) error {
	qtyText := strings.ReplaceAll(cell(row, 2), ",", "")
	qty, err := strconv.Atoi(qtyText)
	if err != nil {
		return fmt.Errorf("invalid quantity %q", cell(row, 2))
	}

	total, err := decimal.NewFromString(strings.ReplaceAll(cell(row, 3), ",", ""))
	if err != nil {
		return fmt.Errorf("invalid price %q", cell(row, 3))
	}

	return c.set(cell(row, 0), cell(row, 1), qty, total)
}

// WriteSheet exports c in the LoadSheet layout.
func WriteSheet(c *Catalog, path string) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), pricesSheet); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	priceStyle, err := f.NewStyle(&excelize.Style{NumFmt: 2}) // 0.00
	if err != nil {
		return fmt.Errorf("failed to create style: %w", err)
	}
	headerStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create style: %w", err)
	}

	if err := f.SetSheetRow(pricesSheet, "A1", &[]interface{}{"Shape", "Size", "Quantity", "Price"}); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	if err := f.SetCellStyle(pricesSheet, "A1", "D1", headerStyle); err != nil {
		return fmt.Errorf("failed to style header: %w", err)
	}

	entries := c.Entries()
	for i, e := range entries {
		axis, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(pricesSheet, axis, &[]interface{}{
			string(e.Shape), e.Size, e.Quantity, e.Total.InexactFloat64(),
		}); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}
	if len(entries) > 0 {
		last, _ := excelize.CoordinatesToCellName(4, len(entries)+1)
		if err := f.SetCellStyle(pricesSheet, "D2", last, priceStyle); err != nil {
			return fmt.Errorf("failed to style prices: %w", err)
		}
	}
	_ = f.SetColWidth(pricesSheet, "A", "A", 24)

	if _, err := f.NewSheet(imagesSheet); err != nil {
		return fmt.Errorf("failed to create %s sheet: %w", imagesSheet, err)
	}
	if err := f.SetSheetRow(imagesSheet, "A1", &[]interface{}{"Shape", "URL"}); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	images := c.Images()
	row := 2
	for _, shape := range Shapes {
		url, ok := images[shape]
		if !ok {
			continue
		}
		axis, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetSheetRow(imagesSheet, axis, &[]interface{}{string(shape), url}); err != nil {
			return fmt.Errorf("failed to write image row %d: %w", row, err)
		}
		row++
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save price sheet: %w", err)
	}
	return nil
}

func cell(row []string, i int) string {
	if i < len(row) {
		return strings.TrimSpace(row[i])
	}
	return ""
}

// isRowEmpty checks if a row contains only empty values.
func isRowEmpty(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
