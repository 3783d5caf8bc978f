// =============================================================================
// pouch-ops - Import Command
// =============================================================================
//
// This file defines the 'import' command, which loads PayPal CSV exports into
// the CRM inquiries table.
//
// COMMAND USAGE:
//   pouchops import [flags]
//
// FLAGS:
//   --dry-run : Do everything except the insert and archival
//   --input   : Read exports from this directory instead of input_dir
//   --report  : Write an XLSX report and text logs to report_dir
//   --strict  : Exit non-zero when the insert fails
//
// IMPORT STEPS:
//   1. Load the CRM credentials (fatal when missing, before any file I/O)
//   2. Take the run lock
//   3. Run the import pipeline (see internal/importer)
//   4. Print the summary and write the optional report
//
// =============================================================================

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/ginjaninja78/pouch-ops/internal/config"
	"github.com/ginjaninja78/pouch-ops/internal/crmstore"
	"github.com/ginjaninja78/pouch-ops/internal/importer"
	"github.com/ginjaninja78/pouch-ops/internal/report"
	"github.com/ginjaninja78/pouch-ops/internal/runlock"
	"github.com/ginjaninja78/pouch-ops/pkg/utils"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	dryRun      bool
	inputDir    string
	writeReport bool
	strict      bool
)

// errWriteFailed is returned in strict mode when the insert failed.
var errWriteFailed = errors.New("CRM insert failed")

// =============================================================================
// IMPORT COMMAND DEFINITION
// =============================================================================

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import PayPal CSV exports into the CRM",
	Long: `The import command reads every PayPal CSV export in the input directory,
keeps completed sales, classifies each buyer as a sample or a customer, and
adds the buyers the CRM does not know yet as new inquiries.

Re-running is safe: transactions already imported under the same email are
skipped. Only one import may run at a time.

Exit status:
  - non-zero when credentials are missing, the CRM cannot be queried, or
    another import holds the lock
  - non-zero when the insert fails and --strict (or fail_on_write_error) is set
  - zero otherwise`,

	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runImport(ctx)
	},
}

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Compare against the CRM but do not insert or archive")
	importCmd.Flags().StringVar(&inputDir, "input", "", "Directory of PayPal exports (overrides input_dir)")
	importCmd.Flags().BoolVar(&writeReport, "report", false, "Write an XLSX report and text logs to report_dir")
	importCmd.Flags().BoolVar(&strict, "strict", false, "Exit non-zero when the CRM insert fails")
}

// =============================================================================
// MAIN IMPORT FUNCTION
// =============================================================================

func runImport(ctx context.Context) error {
	cfg := mainConfig
	runID := uuid.NewString()
	logger := log.With().Str("run_id", runID).Logger()

	fmt.Println("=== PayPal Import ===")

	// =========================================================================
	// STEP 1: CREDENTIALS
	// =========================================================================

	var store crmstore.Store
	creds, err := config.LoadCredentials(cfg.EnvFile)
	switch {
	case err != nil && dryRun:
		logger.Warn().Err(err).Msg("no CRM credentials, dry run will treat every buyer as new")
	case err != nil:
		return fmt.Errorf("failed to load CRM credentials: %w", err)
	default:
		if !creds.Privileged && !creds.IsPostgres() {
			logger.Warn().Msg("using a public CRM key, inserts may be rejected by row-level security")
		}
		store, err = crmstore.New(creds, crmstore.Options{
			Table:    cfg.Store.Table,
			PageSize: cfg.Store.PageSize,
			Timeout:  cfg.RequestTimeout(),
		})
		if err != nil {
			return fmt.Errorf("failed to create CRM client: %w", err)
		}
		defer store.Close()
	}

	// =========================================================================
	// STEP 2: RUN LOCK
	// =========================================================================
	// A dry run writes nothing, so it does not need the lock.

	if !dryRun {
		locker, closeLocker, err := newLocker(cfg, runID)
		if err != nil {
			return err
		}
		defer closeLocker()

		release, err := locker.Acquire(ctx)
		if err != nil {
			return err
		}
		defer func() {
			if err := release(); err != nil {
				logger.Warn().Err(err).Msg("failed to release run lock")
			}
		}()
	}

	// =========================================================================
	// STEP 3: IMPORT
	// =========================================================================

	imp := importer.New(cfg, store, importer.Options{
		InputDir: inputDir,
		DryRun:   dryRun,
		RunID:    runID,
	})

	summary, runErr := imp.Run(ctx)

	// =========================================================================
	// STEP 4: REPORT
	// =========================================================================

	if summary != nil {
		fmt.Println()
		summary.PrintSummary(os.Stdout)

		if writeReport {
			if err := writeReports(cfg.ReportDir, summary); err != nil {
				logger.Error().Err(err).Msg("failed to write report")
			}
		}
	}

	if runErr != nil {
		return runErr
	}

	if summary.WriteErr != nil && (strict || cfg.FailOnWriteError) {
		return fmt.Errorf("%w: %v", errWriteFailed, summary.WriteErr)
	}

	return nil
}

// newLocker picks the Redis run-marker when configured, else the lock file.
// The returned close function releases the Redis connection; call it after
// the lock itself has been released.
func newLocker(cfg *config.MainConfig, runID string) (runlock.Locker, func() error, error) {
	if cfg.Lock.RedisURL == "" {
		return runlock.NewFileLock(cfg.Lock.File, runID), func() error { return nil }, nil
	}
	client, err := runlock.NewRedisClient(cfg.Lock.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	ttl := time.Duration(cfg.Lock.TTLSeconds) * time.Second
	return runlock.NewRedisLock(client, "", runID, ttl), client.Close, nil
}

// writeReports writes the XLSX report, the summary log and, when something
// went wrong, the error log.
func writeReports(dir string, summary *importer.Summary) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}

	xlsxPath := filepath.Join(dir, utils.GenerateOutputFileName(
		"paypal_import_{timestamp}_{run}", ".xlsx", map[string]string{"run": summary.RunID[:8]}))
	if err := report.Write(summary, xlsxPath); err != nil {
		return err
	}
	fmt.Printf("Report:  %s\n", xlsxPath)

	logPath, err := utils.WriteSummaryLog(summary.ProcessingSummary(), dir)
	if err != nil {
		return err
	}
	fmt.Printf("Summary: %s\n", logPath)

	errPath, err := utils.WriteErrorLog(summary.ErrorLogEntries(), dir)
	if err != nil {
		return err
	}
	if errPath != "" {
		fmt.Printf("Errors:  %s\n", errPath)
	}
	return nil
}
