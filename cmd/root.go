// =============================================================================
// pouch-ops - Root Command
// =============================================================================
//
// This file defines the root command for the Cobra CLI. All other commands
// are attached to it.
//
// COBRA CLI STRUCTURE:
//   rootCmd (pouchops)
//   ├── importCmd   (pouchops import)
//   ├── validateCmd (pouchops validate)
//   ├── priceCmd    (pouchops price)
//   ├── catalogCmd  (pouchops catalog)
//   └── versionCmd  (pouchops version)
//
// The root command loads config.yaml and configures zerolog before any
// subcommand runs. Logs go to stderr; reports and summaries go to stdout.
//
// =============================================================================

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/ginjaninja78/pouch-ops/internal/config"
)

// =============================================================================
// GLOBAL VARIABLES
// =============================================================================

// cfgFile holds the path to the main configuration file.
var cfgFile string

// verbose forces debug logging.
var verbose bool

// mainConfig is loaded once in PersistentPreRunE.
var mainConfig *config.MainConfig

// =============================================================================
// ROOT COMMAND DEFINITION
// =============================================================================

var rootCmd = &cobra.Command{
	Use:   "pouchops",
	Short: "pouch-ops - back-office tools for the pouch storefront",
	Long: `pouch-ops runs the back-office jobs of the sustainable packaging store.

Commands:
  - import   : import PayPal CSV exports into the CRM as inquiries
  - validate : check configuration, credentials and the input directory
  - price    : price a pouch configuration from the catalog
  - catalog  : list or export the price table

Example Usage:
  pouchops import                       # Import every export in the input directory
  pouchops import --dry-run --report    # Show what would be imported
  pouchops price stand-up m 500         # Price 500 medium stand-up pouches
  pouchops catalog --export prices.xlsx # Export the price table for editing`,

	SilenceUsage: true,

	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadMainConfig(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load main config: %w", err)
		}
		mainConfig = cfg
		setupLogger(cfg.LogLevel, verbose)
		return nil
	},

	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// =============================================================================
// EXECUTE FUNCTION
// =============================================================================

// Execute runs the root command. This is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// setupLogger points the global zerolog logger at stderr.
func setupLogger(level string, verbose bool) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	if verbose {
		lvl = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(lvl)

	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).
		With().Timestamp().Logger()
}

// =============================================================================
// INITIALIZATION
// =============================================================================

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile,
		"config",
		"config.yaml",
		"Path to the main configuration file",
	)

	rootCmd.PersistentFlags().BoolVarP(
		&verbose,
		"verbose",
		"v",
		false,
		"Enable debug logging",
	)
}
