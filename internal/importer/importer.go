// =============================================================================
// pouch-ops - PayPal Importer
// =============================================================================
//
// This module contains the import pipeline. It turns a directory of PayPal
// CSV exports into CRM inquiry rows, importing only customers the CRM does
// not already know about.
//
// IMPORT PIPELINE:
//   1. Discover the CSV exports in the input directory
//   2. Parse each file (a broken file is recorded and skipped)
//   3. Type and filter each row
//   4. Normalize and classify the surviving rows
//   5. Aggregate the run summary
//   6. Fetch the emails already imported for the source tag (one query)
//   7. Insert the new rows (one bulk call)
//   8. Archive the processed files, when archival is configured
//
// CONCURRENCY:
//   Files and rows are processed sequentially. The remote store is called
//   exactly twice per run. Overlapping runs must be prevented by the caller
//   (see internal/runlock).
//
// =============================================================================

package importer

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/ginjaninja78/pouch-ops/internal/config"
	"github.com/ginjaninja78/pouch-ops/internal/crmstore"
	"github.com/ginjaninja78/pouch-ops/internal/csvparser"
	"github.com/ginjaninja78/pouch-ops/internal/types"
	"github.com/ginjaninja78/pouch-ops/internal/validation"
	"github.com/ginjaninja78/pouch-ops/pkg/utils"
)

// =============================================================================
// OPTIONS
// =============================================================================

// Options adjust a single run.
type Options struct {
	// InputDir overrides the configured input directory.
	InputDir string

	// DryRun skips the insert and archival. The existence query still runs
	// so the summary shows what would be imported.
	DryRun bool

	// RunID identifies the run in logs and reports. Generated when empty.
	RunID string

	// Logger defaults to the global zerolog logger.
	Logger *zerolog.Logger

	// Now defaults to time.Now.
	Now func() time.Time
}

// =============================================================================
// IMPORTER STRUCTURE
// =============================================================================

// Importer runs the PayPal import pipeline. An Importer holds per-run state
// and must not be reused across runs.
type Importer struct {
	cfg        *config.MainConfig
	store      crmstore.Store
	files      *utils.FileManager
	filter     *validation.Filter
	normalizer *Normalizer

	dryRun bool
	runID  string
	logger zerolog.Logger
	now    func() time.Time
}

// New creates an Importer.
//
// PARAMETERS:
//   - cfg: The loaded main configuration.
//   - store: The CRM store. May be nil only for a dry run, in which case the
//     existence query is skipped and every kept row counts as new.
//   - opts: Per-run options.
func New(cfg *config.MainConfig, store crmstore.Store, opts Options) *Importer {
	inputDir := cfg.InputDir
	if opts.InputDir != "" {
		inputDir = opts.InputDir
	}

	logger := log.Logger
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	runID := opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	files := utils.NewFileManager(inputDir, cfg.ArchiveDir)
	files.UseTimestampSubdirs = cfg.ArchiveTimestampSubdirs
	files.SetClock(now)

	return &Importer{
		cfg:        cfg,
		store:      store,
		files:      files,
		filter:     validation.NewFilter(cfg.AllowedTypes, cfg.BlockedSenders),
		normalizer: NewNormalizer(cfg.Rates(), cfg.CountryCodes, cfg.Location()),
		dryRun:     opts.DryRun,
		runID:      runID,
		logger:     logger.With().Str("run_id", runID).Logger(),
		now:        now,
	}
}

// RunID returns the identifier of this run.
func (im *Importer) RunID() string {
	return im.runID
}

// =============================================================================
// MAIN PROCESSING FUNCTION
// =============================================================================

// Run executes the import.
//
// RETURNS:
//   - The run Summary. It is returned even alongside an error, describing as
//     much of the run as completed.
//   - An error when the input directory cannot be read or the existence query
//     fails. A failed insert is NOT returned as an error; it is recorded in
//     Summary.WriteErr so the caller can decide the exit code.
func (im *Importer) Run(ctx context.Context) (*Summary, error) {
	summary := newSummary(im.runID, im.now(), im.dryRun)
	defer func() { summary.EndTime = im.now() }()

	// =========================================================================
	// STEP 1: DISCOVER EXPORTS
	// =========================================================================

	paths, err := im.files.DiscoverCSVFiles()
	if err != nil {
		return summary, err
	}

	im.logger.Info().Str("input_dir", im.files.InputDir).Int("files", len(paths)).Msg("discovered PayPal exports")

	// =========================================================================
	// STEPS 2-4: PARSE, FILTER, NORMALIZE
	// =========================================================================

	for _, path := range paths {
		summary.Files = append(summary.Files, im.processFile(path, summary))
	}

	// =========================================================================
	// STEP 5: AGGREGATE
	// =========================================================================

	summary.SkipStats = im.filter.Stats()
	summary.aggregate()

	if len(summary.Records) == 0 {
		im.logger.Info().Msg("no importable transactions found")
		return summary, nil
	}

	// =========================================================================
	// STEP 6: REMOTE DIFF
	// =========================================================================
	// One query for every email already imported under the source tag. A
	// failure here is fatal: without the diff every row would be re-imported.

	existing := map[string]struct{}{}
	if im.store != nil {
		existing, err = im.existingEmails(ctx)
		if err != nil {
			return summary, err
		}
	}

	var inquiries []crmstore.Inquiry
	for i := range summary.Records {
		rec := &summary.Records[i]
		if _, ok := existing[rec.Transaction.Email]; ok {
			rec.AlreadyImported = true
			summary.AlreadyImported++
			continue
		}
		summary.New++
		inquiries = append(inquiries, BuildInquiry(rec.Transaction, im.cfg.SourceTag, summary.StartTime))
	}

	im.logger.Info().
		Int("already_imported", summary.AlreadyImported).
		Int("new", summary.New).
		Msg("compared against CRM")

	// =========================================================================
	// STEP 7: WRITE
	// =========================================================================

	if len(inquiries) == 0 {
		return summary, nil
	}

	if im.dryRun || im.store == nil {
		im.logger.Info().Int("rows", len(inquiries)).Msg("dry run, skipping insert")
		return summary, nil
	}

	inserted, err := im.insert(ctx, inquiries)
	if err != nil {
		// Reported, not retried. Nothing local was changed, and the next run
		// picks the rows up again through the email diff.
		summary.WriteErr = err
		im.logger.Error().Err(err).
			Int("rows", len(inquiries)).
			Bool("retryable", crmstore.IsRetryable(err)).
			Msg("failed to insert inquiries")
		return summary, nil
	}
	summary.Inserted = inserted

	im.logger.Info().Int("inserted", inserted).Msg("inserted inquiries")

	// =========================================================================
	// STEP 8: ARCHIVE
	// =========================================================================

	im.archive(summary)

	return summary, nil
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// processFile parses one export and feeds its rows through the filter and
// normalizer, appending kept transactions to the summary.
func (im *Importer) processFile(path string, summary *Summary) FileResult {
	result := FileResult{Path: path}
	fileName := filepath.Base(path)
	logger := im.logger.With().Str("file", fileName).Logger()

	data, err := csvparser.ParseFile(path)
	if err != nil {
		result.Err = err
		logger.Error().Err(err).Msg("failed to parse export, skipping file")
		return result
	}

	result.Rows = data.RowCount()

	for i, fields := range data.Rows {
		line := data.RowNumbers[i]

		row, err := types.ParseRow(line, fields)
		if err != nil {
			im.recordRowError(summary, &result, fileName, err)
			continue
		}

		if reason := im.filter.Check(row); reason != validation.Keep {
			logger.Debug().Int("line", line).Str("transaction_id", row.TransactionID).
				Str("reason", string(reason)).Msg("skipped row")
			continue
		}

		tx, err := im.normalizer.Normalize(row, fileName)
		if err != nil {
			im.recordRowError(summary, &result, fileName, err)
			continue
		}

		if tx.Timestamp == nil {
			logger.Warn().Int("line", line).Str("transaction_id", tx.PayPalTransactionID).
				Msg("unparseable date, using run time")
		}

		result.Kept++
		summary.Records = append(summary.Records, Record{Transaction: tx})
	}

	logger.Info().Int("rows", result.Rows).Int("kept", result.Kept).Msg("processed export")
	return result
}

func (im *Importer) recordRowError(summary *Summary, result *FileResult, fileName string, err error) {
	result.RowErrors++
	issue := RowIssue{File: fileName, Err: err}
	var rowErr *types.RowError
	if errors.As(err, &rowErr) {
		issue.Line = rowErr.Line
		issue.Column = rowErr.Column
	}
	summary.RowIssues = append(summary.RowIssues, issue)
	im.logger.Warn().Err(err).Str("file", fileName).Msg("invalid row")
}

func (im *Importer) existingEmails(ctx context.Context) (map[string]struct{}, error) {
	ctx, cancel := im.withTimeout(ctx)
	defer cancel()

	emails, err := im.store.ExistingEmails(ctx, im.cfg.SourceTag)
	if err != nil {
		return nil, fmt.Errorf("failed to query existing CRM records: %w", err)
	}
	return emails, nil
}

func (im *Importer) insert(ctx context.Context, rows []crmstore.Inquiry) (int, error) {
	ctx, cancel := im.withTimeout(ctx)
	defer cancel()

	n, err := im.store.InsertInquiries(ctx, rows)
	if err != nil {
		return 0, fmt.Errorf("failed to insert %d inquiries: %w", len(rows), err)
	}
	return n, nil
}

func (im *Importer) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if d := im.cfg.RequestTimeout(); d > 0 {
		return context.WithTimeout(ctx, d)
	}
	return context.WithCancel(ctx)
}

// archive moves every successfully parsed export. Failures are logged and do
// not affect the run; the rows are already in the CRM.
func (im *Importer) archive(summary *Summary) {
	if im.files.ArchiveDir == "" {
		return
	}
	for i := range summary.Files {
		f := &summary.Files[i]
		if f.Err != nil {
			continue
		}
		archived, err := im.files.ArchiveInputFile(f.Path)
		if err != nil {
			im.logger.Warn().Err(err).Str("file", f.Path).Msg("failed to archive export")
			continue
		}
		f.ArchivePath = archived
	}
}

// =============================================================================
// SUMMARY
// =============================================================================

// FileResult is the outcome of reading one export.
type FileResult struct {
	Path        string
	Rows        int
	Kept        int
	RowErrors   int
	ArchivePath string

	// Err is set when the file could not be parsed at all.
	Err error
}

// RowIssue is a row that could not be typed or normalized.
type RowIssue struct {
	File   string
	Line   int
	Column string
	Err    error
}

// Record is a kept transaction and whether the CRM already had its email.
type Record struct {
	Transaction     types.Transaction
	AlreadyImported bool
}

// Summary describes one import run.
type Summary struct {
	RunID     string
	StartTime time.Time
	EndTime   time.Time
	DryRun    bool

	Files     []FileResult
	RowIssues []RowIssue
	SkipStats map[validation.SkipReason]int
	Records   []Record

	Samples   int
	Customers int
	ByCountry map[string]int
	TotalUSD  decimal.Decimal

	// UnknownCurrencies counts rows per currency code missing from the rate
	// table; their USD amounts were taken 1:1.
	UnknownCurrencies map[string]int

	AlreadyImported int
	New             int
	Inserted        int

	// WriteErr is the insert failure, if any.
	WriteErr error
}

// UnknownCountry labels transactions without a resolved country in
// Summary.ByCountry.
const UnknownCountry = "Unknown"

func newSummary(runID string, start time.Time, dryRun bool) *Summary {
	return &Summary{
		RunID:             runID,
		StartTime:         start,
		DryRun:            dryRun,
		SkipStats:         map[validation.SkipReason]int{},
		ByCountry:         map[string]int{},
		UnknownCurrencies: map[string]int{},
		TotalUSD:          decimal.Zero,
	}
}

func (s *Summary) aggregate() {
	for _, rec := range s.Records {
		tx := rec.Transaction
		switch tx.CustomerType {
		case types.CustomerSample:
			s.Samples++
		case types.CustomerFull:
			s.Customers++
		}

		country := tx.Country
		if !tx.HasCountry {
			country = UnknownCountry
		}
		s.ByCountry[country]++

		s.TotalUSD = s.TotalUSD.Add(tx.AmountUSD)

		if !tx.KnownCurrency {
			s.UnknownCurrencies[tx.Currency]++
		}
	}
}

// FailedFiles returns the exports that could not be parsed.
func (s *Summary) FailedFiles() []FileResult {
	var failed []FileResult
	for _, f := range s.Files {
		if f.Err != nil {
			failed = append(failed, f)
		}
	}
	return failed
}

// TotalRows is the number of data rows read across all parsed files.
func (s *Summary) TotalRows() int {
	total := 0
	for _, f := range s.Files {
		total += f.Rows
	}
	return total
}

// ErrorLogEntries converts file and row failures for utils.WriteErrorLog.
func (s *Summary) ErrorLogEntries() []utils.ErrorLogEntry {
	var entries []utils.ErrorLogEntry
	for _, f := range s.FailedFiles() {
		entries = append(entries, utils.ErrorLogEntry{
			Timestamp:    s.StartTime,
			FileName:     filepath.Base(f.Path),
			ErrorType:    "file",
			ErrorMessage: f.Err.Error(),
		})
	}
	for _, issue := range s.RowIssues {
		entries = append(entries, utils.ErrorLogEntry{
			Timestamp:    s.StartTime,
			FileName:     issue.File,
			ErrorType:    "row",
			ErrorMessage: issue.Err.Error(),
			RowNumber:    issue.Line,
			FieldName:    issue.Column,
		})
	}
	if s.WriteErr != nil {
		entries = append(entries, utils.ErrorLogEntry{
			Timestamp:    s.EndTime,
			ErrorType:    "write",
			ErrorMessage: s.WriteErr.Error(),
		})
	}
	return entries
}

// ProcessingSummary converts the run for utils.WriteSummaryLog.
func (s *Summary) ProcessingSummary() utils.ProcessingSummary {
	ps := utils.ProcessingSummary{
		RunID:           s.RunID,
		StartTime:       s.StartTime,
		EndTime:         s.EndTime,
		DryRun:          s.DryRun,
		TotalFiles:      len(s.Files),
		TotalRows:       s.TotalRows(),
		Kept:            len(s.Records),
		AlreadyImported: s.AlreadyImported,
		New:             s.New,
		Inserted:        s.Inserted,
	}
	if s.WriteErr != nil {
		ps.WriteError = s.WriteErr.Error()
	}
	for _, f := range s.Files {
		if f.Err != nil {
			ps.FailedFiles++
			ps.FailedFilesList = append(ps.FailedFilesList, utils.FailedFileInfo{
				InputFile:    f.Path,
				ErrorMessage: f.Err.Error(),
			})
			continue
		}
		ps.ProcessedFiles = append(ps.ProcessedFiles, utils.ProcessedFileInfo{
			InputFile:   f.Path,
			ArchivePath: f.ArchivePath,
			Rows:        f.Rows,
			Kept:        f.Kept,
		})
	}
	return ps
}
