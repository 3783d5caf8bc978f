// =============================================================================
// pouch-ops - File Manager Utility
// =============================================================================
//
// This module provides file management utilities for the importer, including:
//   - Export discovery (case-insensitive .csv, sorted)
//   - Export archival (moving processed files)
//   - Error and summary log generation
//   - Output file naming
//
// ARCHIVAL STRATEGY:
//   - Archival is off unless an archive directory is configured
//   - Exports are moved only after the CRM write succeeded
//   - Files that failed to parse stay where they are
//
// =============================================================================

package utils

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// FILE MANAGER
// =============================================================================

// FileManager handles file operations for the importer.
type FileManager struct {
	// InputDir is the directory PayPal exports are dropped into.
	InputDir string

	// ArchiveDir receives processed exports. Empty disables archival.
	ArchiveDir string

	// UseTimestampSubdirs creates date-based subdirectories in the archive.
	// Example: archive/2024/01/15/Download.CSV
	UseTimestampSubdirs bool

	// now is replaced in tests.
	now func() time.Time
}

// NewFileManager creates a new FileManager for the given directories.
func NewFileManager(inputDir, archiveDir string) *FileManager {
	return &FileManager{
		InputDir:   inputDir,
		ArchiveDir: archiveDir,
		now:        time.Now,
	}
}

// =============================================================================
// FILE DISCOVERY
// =============================================================================

// DiscoverCSVFiles lists the CSV exports in the input directory.
//
// RETURNS:
//   - File paths whose extension is ".csv" in any letter case, sorted by name
//     so repeated runs see the files in the same order.
//   - An error if the directory cannot be read.
//
// Subdirectories are not scanned.
func (fm *FileManager) DiscoverCSVFiles() ([]string, error) {
	entries, err := os.ReadDir(fm.InputDir)
	if err != nil {
		return nil, fmt.Errorf("failed to scan input directory: %w", err)
	}

	var result []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.EqualFold(filepath.Ext(entry.Name()), ".csv") {
			result = append(result, filepath.Join(fm.InputDir, entry.Name()))
		}
	}

	sort.Strings(result)
	return result, nil
}

// =============================================================================
// FILE ARCHIVAL
// =============================================================================

// ArchiveInputFile moves a processed export to the archive directory.
//
// PARAMETERS:
//   - filePath: The path to the file to archive.
//
// RETURNS:
//   - The path to the archived file (filePath itself when archival is off).
//   - An error if archival fails.
func (fm *FileManager) ArchiveInputFile(filePath string) (string, error) {
	if fm.ArchiveDir == "" {
		return filePath, nil
	}

	archivePath := fm.getArchivePath(filePath)

	if err := os.MkdirAll(filepath.Dir(archivePath), 0755); err != nil {
		return "", fmt.Errorf("failed to create archive directory: %w", err)
	}

	if err := os.Rename(filePath, archivePath); err != nil {
		// If rename fails (e.g., cross-device), try copy and delete.
		if err := copyFile(filePath, archivePath); err != nil {
			return "", fmt.Errorf("failed to copy file to archive: %w", err)
		}
		if err := os.Remove(filePath); err != nil {
			return "", fmt.Errorf("failed to remove original file: %w", err)
		}
	}

	return archivePath, nil
}

// getArchivePath constructs the archive path for a file.
func (fm *FileManager) getArchivePath(filePath string) string {
	fileName := filepath.Base(filePath)

	if fm.UseTimestampSubdirs {
		now := fm.now()
		return filepath.Join(
			fm.ArchiveDir,
			fmt.Sprintf("%d", now.Year()),
			fmt.Sprintf("%02d", now.Month()),
			fmt.Sprintf("%02d", now.Day()),
			fileName,
		)
	}

	return filepath.Join(fm.ArchiveDir, fileName)
}

// SetClock replaces the time source used for timestamped archive folders.
func (fm *FileManager) SetClock(now func() time.Time) {
	fm.now = now
}

// =============================================================================
// OUTPUT FILE NAMING
// =============================================================================

// GenerateOutputFileName generates a unique output file name.
//
// PARAMETERS:
//   - format: The format string for the file name.
//             Placeholders:
//               {uuid}      - A random UUID
//               {timestamp} - Current timestamp (YYYYMMDD_HHMMSS)
//               {date}      - Current date (YYYYMMDD)
//   - ext: The extension to enforce, e.g. ".xlsx".
//   - params: Extra placeholder values, e.g. {"run": runID}.
//
// EXAMPLE:
//   format: "paypal_import_{timestamp}_{run}"
//   output: "paypal_import_20240315_100000_1f0e....xlsx"
func GenerateOutputFileName(format, ext string, params map[string]string) string {
	now := time.Now()

	replacements := map[string]string{
		"{uuid}":      uuid.New().String(),
		"{timestamp}": now.Format("20060102_150405"),
		"{date}":      now.Format("20060102"),
	}
	for key, value := range params {
		replacements["{"+key+"}"] = value
	}

	result := format
	for placeholder, value := range replacements {
		result = strings.ReplaceAll(result, placeholder, value)
	}

	if ext != "" && !strings.HasSuffix(strings.ToLower(result), strings.ToLower(ext)) {
		result += ext
	}

	return result
}

// =============================================================================
// ERROR LOG GENERATION
// =============================================================================

// ErrorLogEntry represents a single error log entry.
type ErrorLogEntry struct {
	Timestamp    time.Time
	FileName     string
	ErrorType    string
	ErrorMessage string
	RowNumber    int
	FieldName    string
}

// WriteErrorLog writes error entries to a log file.
//
// PARAMETERS:
//   - entries: The error entries to write.
//   - outputDir: The directory to write the log file.
//
// RETURNS:
//   - The path to the error log file, or "" when there is nothing to write.
//   - An error if writing fails.
func WriteErrorLog(entries []ErrorLogEntry, outputDir string) (string, error) {
	if len(entries) == 0 {
		return "", nil
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create log directory: %w", err)
	}

	logPath := filepath.Join(outputDir, GenerateOutputFileName("error_log_{timestamp}", ".txt", nil))

	file, err := os.Create(logPath)
	if err != nil {
		return "", fmt.Errorf("failed to create error log: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)

	fmt.Fprintf(writer, "PayPal Import - Error Log\n"+
		"Generated: %s\n"+
		"Total Errors: %d\n"+
		"================================================================================\n\n",
		time.Now().Format("2006-01-02 15:04:05"),
		len(entries))

	for i, entry := range entries {
		fmt.Fprintf(writer, "Error #%d\n"+
			"  Timestamp:      %s\n"+
			"  File:           %s\n"+
			"  Error Type:     %s\n"+
			"  Message:        %s\n",
			i+1,
			entry.Timestamp.Format("2006-01-02 15:04:05"),
			entry.FileName,
			entry.ErrorType,
			entry.ErrorMessage)

		if entry.RowNumber > 0 {
			fmt.Fprintf(writer, "  Row Number:     %d\n", entry.RowNumber)
		}
		if entry.FieldName != "" {
			fmt.Fprintf(writer, "  Field:          %s\n", entry.FieldName)
		}
		writer.WriteString("\n")
	}

	writer.WriteString("================================================================================\n" +
		"End of Error Log\n")

	if err := writer.Flush(); err != nil {
		return "", fmt.Errorf("failed to flush error log: %w", err)
	}

	return logPath, nil
}

// =============================================================================
// PROCESSING SUMMARY
// =============================================================================

// ProcessingSummary is the plain-text record of one import run.
type ProcessingSummary struct {
	RunID           string
	StartTime       time.Time
	EndTime         time.Time
	DryRun          bool
	TotalFiles      int
	FailedFiles     int
	TotalRows       int
	Kept            int
	AlreadyImported int
	New             int
	Inserted        int
	WriteError      string
	ProcessedFiles  []ProcessedFileInfo
	FailedFilesList []FailedFileInfo
}

// ProcessedFileInfo contains information about a successfully parsed export.
type ProcessedFileInfo struct {
	InputFile   string
	ArchivePath string
	Rows        int
	Kept        int
}

// FailedFileInfo contains information about an export that could not be read.
type FailedFileInfo struct {
	InputFile    string
	ErrorMessage string
}

// WriteSummaryLog writes a processing summary to a log file.
//
// PARAMETERS:
//   - summary: The processing summary.
//   - outputDir: The directory to write the summary file.
//
// RETURNS:
//   - The path to the summary file.
//   - An error if writing fails.
func WriteSummaryLog(summary ProcessingSummary, outputDir string) (string, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create log directory: %w", err)
	}

	summaryPath := filepath.Join(outputDir, GenerateOutputFileName(
		"import_summary_{timestamp}_{run}", ".txt", map[string]string{"run": shortID(summary.RunID)}))

	file, err := os.Create(summaryPath)
	if err != nil {
		return "", fmt.Errorf("failed to create summary file: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)

	duration := summary.EndTime.Sub(summary.StartTime)
	fmt.Fprintf(writer, "PayPal Import - Processing Summary\n"+
		"================================================================================\n\n"+
		"Run Information:\n"+
		"  Run ID:         %s\n"+
		"  Start Time:     %s\n"+
		"  End Time:       %s\n"+
		"  Duration:       %s\n"+
		"  Dry Run:        %t\n\n"+
		"Statistics:\n"+
		"  Total Files:        %d\n"+
		"  Failed Files:       %d\n"+
		"  Total Rows:         %d\n"+
		"  Kept Rows:          %d\n"+
		"  Already Imported:   %d\n"+
		"  New:                %d\n"+
		"  Inserted:           %d\n\n",
		summary.RunID,
		summary.StartTime.Format("2006-01-02 15:04:05"),
		summary.EndTime.Format("2006-01-02 15:04:05"),
		duration.String(),
		summary.DryRun,
		summary.TotalFiles,
		summary.FailedFiles,
		summary.TotalRows,
		summary.Kept,
		summary.AlreadyImported,
		summary.New,
		summary.Inserted)

	if summary.WriteError != "" {
		fmt.Fprintf(writer, "Write Error:\n  %s\n\n", summary.WriteError)
	}

	if len(summary.ProcessedFiles) > 0 {
		writer.WriteString("Processed Files:\n")
		writer.WriteString("--------------------------------------------------------------------------------\n")
		for _, pf := range summary.ProcessedFiles {
			fmt.Fprintf(writer, "  Input:        %s\n", pf.InputFile)
			if pf.ArchivePath != "" {
				fmt.Fprintf(writer, "  Archived:     %s\n", pf.ArchivePath)
			}
			fmt.Fprintf(writer, "  Rows:         %d\n", pf.Rows)
			fmt.Fprintf(writer, "  Kept:         %d\n\n", pf.Kept)
		}
	}

	if len(summary.FailedFilesList) > 0 {
		writer.WriteString("Failed Files:\n")
		writer.WriteString("--------------------------------------------------------------------------------\n")
		for _, ff := range summary.FailedFilesList {
			fmt.Fprintf(writer, "  File:  %s\n", ff.InputFile)
			fmt.Fprintf(writer, "  Error: %s\n\n", ff.ErrorMessage)
		}
	}

	writer.WriteString("================================================================================\n" +
		"End of Summary\n")

	if err := writer.Flush(); err != nil {
		return "", fmt.Errorf("failed to flush summary file: %w", err)
	}

	return summaryPath, nil
}

// =============================================================================
// UTILITY FUNCTIONS
// =============================================================================

// copyFile copies a file from src to dst.
func copyFile(src, dst string) error {
	sourceFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer sourceFile.Close()

	destFile, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer destFile.Close()

	if _, err := io.Copy(destFile, sourceFile); err != nil {
		return err
	}

	return destFile.Sync()
}

// DirExists reports whether path exists and is a directory.
func DirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
