// =============================================================================
// pouch-ops - Validate Command
// =============================================================================
//
// COMMAND USAGE:
//   pouchops validate
//
// Checks what an import would use without touching the CRM: the resolved
// configuration, the credential file, the input directory and the catalog.
//
// =============================================================================

package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ginjaninja78/pouch-ops/internal/catalog"
	"github.com/ginjaninja78/pouch-ops/internal/config"
	"github.com/ginjaninja78/pouch-ops/pkg/utils"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check configuration, credentials and inputs without importing",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runValidate(cmd)
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().StringVar(&inputDir, "input", "", "Directory of PayPal exports (overrides input_dir)")
}

func runValidate(cmd *cobra.Command) error {
	cfg := mainConfig
	out := cmd.OutOrStdout()
	var problems []string

	fmt.Fprintln(out, "=== Configuration ===")
	fmt.Fprintf(out, "Config file:     %s\n", cfgFile)
	fmt.Fprintf(out, "Source tag:      %s\n", cfg.SourceTag)
	fmt.Fprintf(out, "CRM table:       %s\n", cfg.Store.Table)
	fmt.Fprintf(out, "Timeout:         %s\n", cfg.RequestTimeout())
	fmt.Fprintf(out, "Timezone:        %s\n", cfg.Timezone)
	fmt.Fprintf(out, "Allowed types:   %s\n", strings.Join(cfg.AllowedTypes, ", "))
	fmt.Fprintf(out, "Blocked senders: %d\n", len(cfg.BlockedSenders))
	fmt.Fprintf(out, "Currencies:      %s\n", strings.Join(sortedCodes(cfg.CurrencyRates), " "))
	if cfg.Lock.RedisURL != "" {
		fmt.Fprintln(out, "Run lock:        redis")
	} else {
		fmt.Fprintf(out, "Run lock:        %s\n", cfg.Lock.File)
	}

	// Credentials.
	creds, err := config.LoadCredentials(cfg.EnvFile)
	if err != nil {
		problems = append(problems, err.Error())
		fmt.Fprintf(out, "Credentials:     MISSING (%s)\n", cfg.EnvFile)
	} else {
		kind := "public key"
		switch {
		case creds.IsPostgres():
			kind = "postgres DSN"
		case creds.Privileged:
			kind = "service key"
		}
		fmt.Fprintf(out, "Credentials:     %s (%s)\n", kind, cfg.EnvFile)
	}

	// Input directory.
	dir := cfg.InputDir
	if inputDir != "" {
		dir = inputDir
	}
	files, err := utils.NewFileManager(dir, cfg.ArchiveDir).DiscoverCSVFiles()
	if err != nil {
		problems = append(problems, err.Error())
		fmt.Fprintf(out, "Input:           %s (unreadable)\n", dir)
	} else {
		fmt.Fprintf(out, "Input:           %s (%d export(s))\n", dir, len(files))
	}

	// Catalog.
	cat, err := catalog.Load(cfg.CatalogFile)
	if err != nil {
		problems = append(problems, err.Error())
		fmt.Fprintln(out, "Catalog:         INVALID")
	} else {
		source := "built-in"
		if cfg.CatalogFile != "" {
			source = cfg.CatalogFile
		}
		fmt.Fprintf(out, "Catalog:         %s (%d prices)\n", source, len(cat.Entries()))
	}

	if len(problems) > 0 {
		fmt.Fprintln(out, "\n=== Problems ===")
		for _, p := range problems {
			fmt.Fprintf(out, "  - %s\n", p)
		}
		return fmt.Errorf("validation found %d problem(s)", len(problems))
	}

	fmt.Fprintln(out, "\nOK")
	return nil
}

func sortedCodes(m map[string]float64) []string {
	codes := make([]string, 0, len(m))
	for code := range m {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}
