package importer

import (
	"fmt"
	"io"
	"path/filepath"
	"sort"

	"github.com/ginjaninja78/pouch-ops/internal/validation"
)

// PrintSummary writes the human-readable run report. The layout is for
// operators and may change.
func (s *Summary) PrintSummary(w io.Writer) {
	fmt.Fprintln(w, "========================================")
	fmt.Fprintln(w, "PayPal Import Summary")
	fmt.Fprintln(w, "========================================")
	fmt.Fprintf(w, "Run ID:           %s\n", s.RunID)
	if s.DryRun {
		fmt.Fprintln(w, "Mode:             dry run (nothing written)")
	}
	fmt.Fprintf(w, "Files:            %d (%d failed)\n", len(s.Files), len(s.FailedFiles()))

	for _, f := range s.Files {
		name := filepath.Base(f.Path)
		if f.Err != nil {
			fmt.Fprintf(w, "  %s: FAILED (%v)\n", name, f.Err)
			continue
		}
		fmt.Fprintf(w, "  %s: %d rows, %d kept", name, f.Rows, f.Kept)
		if f.RowErrors > 0 {
			fmt.Fprintf(w, ", %d invalid", f.RowErrors)
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Skipped rows:")
	fmt.Fprint(w, validation.FormatStats(s.SkipStats))

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Transactions:     %d\n", len(s.Records))
	fmt.Fprintf(w, "  Customers:      %d\n", s.Customers)
	fmt.Fprintf(w, "  Samples:        %d\n", s.Samples)
	fmt.Fprintf(w, "Revenue (USD):    %s\n", s.TotalUSD.StringFixed(2))

	if len(s.UnknownCurrencies) > 0 {
		fmt.Fprintln(w, "Unknown currency (converted 1:1):")
		for _, code := range sortedKeys(s.UnknownCurrencies) {
			fmt.Fprintf(w, "  %-8s %d\n", code, s.UnknownCurrencies[code])
		}
	}

	if len(s.ByCountry) > 0 {
		fmt.Fprintln(w, "By country:")
		for _, country := range sortedKeys(s.ByCountry) {
			fmt.Fprintf(w, "  %-24s %d\n", country, s.ByCountry[country])
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Already imported: %d\n", s.AlreadyImported)
	fmt.Fprintf(w, "New:              %d\n", s.New)
	if !s.DryRun {
		fmt.Fprintf(w, "Inserted:         %d\n", s.Inserted)
	}
	if s.WriteErr != nil {
		fmt.Fprintf(w, "WRITE FAILED:     %v\n", s.WriteErr)
	}
	fmt.Fprintln(w, "========================================")
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
