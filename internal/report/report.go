// Package report writes an import run to an XLSX workbook for the sales team.
//
// Sheets:
//   - Summary      : run totals, classification, revenue
//   - Transactions : every kept transaction and whether it was new
//   - Countries    : transactions per resolved country
//   - Issues       : unreadable files, invalid rows and the write error
package report

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/xuri/excelize/v2"

	"github.com/ginjaninja78/pouch-ops/internal/importer"
	"github.com/ginjaninja78/pouch-ops/internal/validation"
)

const (
	summarySheet      = "Summary"
	transactionsSheet = "Transactions"
	countriesSheet    = "Countries"
	issuesSheet       = "Issues"
)

var transactionHeader = []interface{}{
	"Transaction ID", "Date", "Name", "Email", "Type", "Subject",
	"Gross", "Currency", "USD", "Classification", "Country", "Status", "Source File",
}

// Write saves the run summary as an XLSX workbook at path.
func Write(s *importer.Summary, path string) error {
	f := excelize.NewFile()
	defer f.Close()

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create style: %w", err)
	}
	money, err := f.NewStyle(&excelize.Style{NumFmt: 4}) // #,##0.00
	if err != nil {
		return fmt.Errorf("failed to create style: %w", err)
	}

	if err := f.SetSheetName(f.GetSheetName(0), summarySheet); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}
	if err := writeSummary(f, s, bold); err != nil {
		return err
	}
	if err := writeTransactions(f, s, bold, money); err != nil {
		return err
	}
	if err := writeCountries(f, s, bold); err != nil {
		return err
	}
	if err := writeIssues(f, s, bold); err != nil {
		return err
	}

	f.SetActiveSheet(0)
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save report: %w", err)
	}
	return nil
}

func writeSummary(f *excelize.File, s *importer.Summary, bold int) error {
	mode := "import"
	if s.DryRun {
		mode = "dry run"
	}

	rows := [][]interface{}{
		{"Run ID", s.RunID},
		{"Started", s.StartTime.UTC().Format("2006-01-02 15:04:05 MST")},
		{"Finished", s.EndTime.UTC().Format("2006-01-02 15:04:05 MST")},
		{"Mode", mode},
		{"Files", len(s.Files)},
		{"Failed files", len(s.FailedFiles())},
		{"Rows read", s.TotalRows()},
		{"Invalid rows", len(s.RowIssues)},
		{"Transactions kept", len(s.Records)},
		{"Customers", s.Customers},
		{"Samples", s.Samples},
		{"Revenue (USD)", s.TotalUSD.InexactFloat64()},
		{"Already imported", s.AlreadyImported},
		{"New", s.New},
		{"Inserted", s.Inserted},
	}

	reasons := make([]string, 0, len(s.SkipStats))
	for r := range s.SkipStats {
		reasons = append(reasons, string(r))
	}
	sort.Strings(reasons)
	for _, r := range reasons {
		rows = append(rows, []interface{}{"Skipped: " + r, s.SkipStats[validation.SkipReason(r)]})
	}

	for i, row := range rows {
		if err := setRow(f, summarySheet, i+1, row); err != nil {
			return err
		}
	}
	_ = f.SetColWidth(summarySheet, "A", "A", 32)
	_ = f.SetColWidth(summarySheet, "B", "B", 40)
	return f.SetCellStyle(summarySheet, "A1", fmt.Sprintf("A%d", len(rows)), bold)
}

func writeTransactions(f *excelize.File, s *importer.Summary, bold, money int) error {
	if _, err := f.NewSheet(transactionsSheet); err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}
	if err := setRow(f, transactionsSheet, 1, transactionHeader); err != nil {
		return err
	}
	if err := f.SetCellStyle(transactionsSheet, "A1", "M1", bold); err != nil {
		return fmt.Errorf("failed to style header: %w", err)
	}

	for i, rec := range s.Records {
		tx := rec.Transaction

		date := ""
		if tx.Timestamp != nil {
			date = tx.Timestamp.Format("2006-01-02 15:04:05")
		}
		status := "new"
		if rec.AlreadyImported {
			status = "already imported"
		}
		country := tx.Country
		if !tx.HasCountry {
			country = importer.UnknownCountry
		}

		if err := setRow(f, transactionsSheet, i+2, []interface{}{
			tx.PayPalTransactionID, date, tx.Name, tx.Email, tx.Type, tx.Subject,
			tx.GrossAmount.InexactFloat64(), tx.Currency, tx.AmountUSD.InexactFloat64(),
			string(tx.CustomerType), country, status, filepath.Base(tx.SourceFile),
		}); err != nil {
			return err
		}
	}

	if n := len(s.Records); n > 0 {
		if err := f.SetCellStyle(transactionsSheet, "G2", fmt.Sprintf("G%d", n+1), money); err != nil {
			return fmt.Errorf("failed to style amounts: %w", err)
		}
		if err := f.SetCellStyle(transactionsSheet, "I2", fmt.Sprintf("I%d", n+1), money); err != nil {
			return fmt.Errorf("failed to style amounts: %w", err)
		}
	}
	return nil
}

func writeCountries(f *excelize.File, s *importer.Summary, bold int) error {
	if _, err := f.NewSheet(countriesSheet); err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}
	if err := setRow(f, countriesSheet, 1, []interface{}{"Country", "Transactions"}); err != nil {
		return err
	}
	if err := f.SetCellStyle(countriesSheet, "A1", "B1", bold); err != nil {
		return fmt.Errorf("failed to style header: %w", err)
	}

	countries := make([]string, 0, len(s.ByCountry))
	for c := range s.ByCountry {
		countries = append(countries, c)
	}
	// Most transactions first, then by name.
	sort.Slice(countries, func(i, j int) bool {
		a, b := s.ByCountry[countries[i]], s.ByCountry[countries[j]]
		if a != b {
			return a > b
		}
		return countries[i] < countries[j]
	})

	for i, c := range countries {
		if err := setRow(f, countriesSheet, i+2, []interface{}{c, s.ByCountry[c]}); err != nil {
			return err
		}
	}
	return nil
}

func writeIssues(f *excelize.File, s *importer.Summary, bold int) error {
	if _, err := f.NewSheet(issuesSheet); err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}
	if err := setRow(f, issuesSheet, 1, []interface{}{"Kind", "File", "Line", "Column", "Error"}); err != nil {
		return err
	}
	if err := f.SetCellStyle(issuesSheet, "A1", "E1", bold); err != nil {
		return fmt.Errorf("failed to style header: %w", err)
	}

	row := 2
	for _, file := range s.FailedFiles() {
		if err := setRow(f, issuesSheet, row, []interface{}{"file", filepath.Base(file.Path), "", "", file.Err.Error()}); err != nil {
			return err
		}
		row++
	}
	for _, issue := range s.RowIssues {
		if err := setRow(f, issuesSheet, row, []interface{}{"row", issue.File, issue.Line, issue.Column, issue.Err.Error()}); err != nil {
			return err
		}
		row++
	}
	if s.WriteErr != nil {
		if err := setRow(f, issuesSheet, row, []interface{}{"write", "", "", "", s.WriteErr.Error()}); err != nil {
			return err
		}
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	axis, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, axis, &values); err != nil {
		return fmt.Errorf("failed to write %s row %d: %w", sheet, row, err)
	}
	return nil
}
