// =============================================================================
// pouch-ops - Configuration Module
// =============================================================================
//
// This module loads the run configuration for the PayPal importer and the
// catalog commands. Two sources are involved:
//
//   1. Main Config (config.yaml): directories, filter lists, currency rates,
//      country codes, timeouts and locking. Every field has a default, so a
//      missing file is not an error and the importer can run with no flags.
//   2. Credential file (.env style key=value): the CRM store base URL and its
//      access key. Read separately so secrets never live in config.yaml.
//
// =============================================================================

package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// MAIN CONFIGURATION STRUCTURE
// =============================================================================

// MainConfig holds the importer and catalog configuration.
type MainConfig struct {
	// =========================================================================
	// DIRECTORY SETTINGS
	// =========================================================================

	// InputDir is scanned for PayPal CSV exports.
	// Default: "./paypal-exports"
	InputDir string `yaml:"input_dir"`

	// EnvFile is the key=value file holding the CRM store credentials.
	// Default: ".env"
	EnvFile string `yaml:"env_file"`

	// ArchiveDir receives processed CSV files after a successful write.
	// Empty disables archival, which keeps re-runs idempotent on the same input.
	ArchiveDir string `yaml:"archive_dir"`

	// ArchiveTimestampSubdirs files archived exports under YYYY/MM/DD of the
	// run date instead of directly in ArchiveDir.
	ArchiveTimestampSubdirs bool `yaml:"archive_timestamp_subdirs"`

	// ReportDir is where XLSX run reports are written when requested.
	// Default: "./reports"
	ReportDir string `yaml:"report_dir"`

	// CatalogFile optionally replaces the built-in price table with an XLSX
	// price sheet.
	CatalogFile string `yaml:"catalog_file"`

	// =========================================================================
	// LOGGING SETTINGS
	// =========================================================================

	// LogLevel controls zerolog verbosity: "debug", "info", "warn", "error".
	// Default: "info"
	LogLevel string `yaml:"log_level"`

	// =========================================================================
	// IMPORT SETTINGS
	// =========================================================================

	// SourceTag scopes which CRM rows belong to this importer.
	// Default: "paypal"
	SourceTag string `yaml:"source_tag"`

	// Store configures the remote CRM table.
	Store StoreConfig `yaml:"store"`

	// RequestTimeoutSeconds bounds each remote call (existence query, insert).
	// Default: 30
	RequestTimeoutSeconds int `yaml:"request_timeout_seconds"`

	// FailOnWriteError makes a failed bulk insert exit non-zero.
	// Default: false (the run is safe to repeat, so a failed write is reported
	// and the process still exits 0).
	FailOnWriteError bool `yaml:"fail_on_write_error"`

	// Timezone is the location PayPal Date/Time columns are interpreted in
	// when a row carries no usable TimeZone column.
	// Default: "UTC"
	Timezone string `yaml:"timezone"`

	// AllowedTypes lists the PayPal transaction types that are imported.
	AllowedTypes []string `yaml:"allowed_types"`

	// BlockedSenders lists sender emails that are never imported
	// (internal test accounts, the company's own address).
	// Default: DefaultBlockedSenders. An explicit empty list disables the check.
	BlockedSenders []string `yaml:"blocked_senders"`

	// CurrencyRates maps ISO currency codes to their USD rate.
	// Unknown codes are treated as rate 1.0.
	CurrencyRates map[string]float64 `yaml:"currency_rates"`

	// CountryCodes maps two-letter country codes to country names. Used as
	// the last step of the country fallback chain.
	CountryCodes map[string]string `yaml:"country_codes"`

	// Lock prevents two imports from running against the store at once.
	Lock LockConfig `yaml:"lock"`
}

// StoreConfig configures the CRM table the importer reads and writes.
type StoreConfig struct {
	// Table is the CRM inquiries table.
	// Default: "crm_inquiries"
	Table string `yaml:"table"`

	// PageSize is the number of rows fetched per existence-query page on the
	// REST backend.
	// Default: 1000
	PageSize int `yaml:"page_size"`
}

// LockConfig selects how concurrent imports are prevented.
type LockConfig struct {
	// File is the lock file path used when RedisURL is empty.
	// Default: "./paypal-import.lock"
	File string `yaml:"file"`

	// RedisURL switches to a Redis run-marker, for when imports may be
	// started from more than one machine.
	RedisURL string `yaml:"redis_url"`

	// TTLSeconds bounds how long a Redis run-marker survives a crashed run.
	// Default: 900
	TTLSeconds int `yaml:"ttl_seconds"`
}

// =============================================================================
// DEFAULT TABLES
// =============================================================================

// DefaultAllowedTypes are the PayPal transaction types that represent a sale.
var DefaultAllowedTypes = []string{
	"Express Checkout Payment",
	"General Payment",
	"Mobile Payment",
}

// DefaultBlockedSenders are the store's own PayPal addresses. Transfers and
// test payments from them are not customer sales.
var DefaultBlockedSenders = []string{
	"paypal@pouchops.com",
	"orders@pouchops.com",
}

// DefaultCurrencyRates is the static currency -> USD rate table.
var DefaultCurrencyRates = map[string]float64{
	"USD": 1.0,
	"GBP": 1.27,
	"EUR": 1.08,
	"CAD": 0.74,
	"AUD": 0.66,
	"NZD": 0.61,
	"JMD": 0.0064,
	"MXN": 0.058,
	"JPY": 0.0067,
	"CHF": 1.13,
	"SEK": 0.096,
	"SGD": 0.74,
	"HKD": 0.13,
}

// DefaultCountryCodes maps PayPal "Country Code" values to country names.
var DefaultCountryCodes = map[string]string{
	"US": "United States",
	"CA": "Canada",
	"GB": "United Kingdom",
	"UK": "United Kingdom",
	"AU": "Australia",
	"NZ": "New Zealand",
	"JM": "Jamaica",
	"TT": "Trinidad and Tobago",
	"BB": "Barbados",
	"BS": "Bahamas",
	"MX": "Mexico",
	"DE": "Germany",
	"FR": "France",
	"IE": "Ireland",
	"NL": "Netherlands",
	"ES": "Spain",
	"IT": "Italy",
	"SE": "Sweden",
	"CH": "Switzerland",
	"SG": "Singapore",
	"HK": "Hong Kong",
	"JP": "Japan",
}

// =============================================================================
// CONFIGURATION LOADING FUNCTIONS
// =============================================================================

// LoadMainConfig loads the main configuration from a YAML file.
//
// PARAMETERS:
//   - configPath: The path to the main configuration file.
//
// RETURNS:
//   - A pointer to the MainConfig struct with defaults applied.
//   - An error if the file exists but cannot be read, parsed or validated.
//
// A missing file is not an error: the defaults describe a complete setup.
func LoadMainConfig(configPath string) (*MainConfig, error) {
	var config MainConfig

	data, err := os.ReadFile(configPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		// Defaults only.
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyMainConfigDefaults(&config)

	if err := validateMainConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// applyMainConfigDefaults sets default values for any unset configuration options.
func applyMainConfigDefaults(config *MainConfig) {
	if config.InputDir == "" {
		config.InputDir = "./paypal-exports"
	}
	if config.EnvFile == "" {
		config.EnvFile = ".env"
	}
	if config.ReportDir == "" {
		config.ReportDir = "./reports"
	}
	if config.LogLevel == "" {
		config.LogLevel = "info"
	}
	if config.SourceTag == "" {
		config.SourceTag = "paypal"
	}
	if config.Store.Table == "" {
		config.Store.Table = "crm_inquiries"
	}
	if config.Store.PageSize == 0 {
		config.Store.PageSize = 1000
	}
	if config.RequestTimeoutSeconds == 0 {
		config.RequestTimeoutSeconds = 30
	}
	if config.Timezone == "" {
		config.Timezone = "UTC"
	}
	if len(config.AllowedTypes) == 0 {
		config.AllowedTypes = append([]string(nil), DefaultAllowedTypes...)
	}
	if config.BlockedSenders == nil {
		config.BlockedSenders = append([]string(nil), DefaultBlockedSenders...)
	}
	if config.CurrencyRates == nil {
		config.CurrencyRates = make(map[string]float64, len(DefaultCurrencyRates))
		for code, rate := range DefaultCurrencyRates {
			config.CurrencyRates[code] = rate
		}
	}
	if config.CountryCodes == nil {
		config.CountryCodes = make(map[string]string, len(DefaultCountryCodes))
		for code, name := range DefaultCountryCodes {
			config.CountryCodes[code] = name
		}
	}
	if config.Lock.File == "" {
		config.Lock.File = "./paypal-import.lock"
	}
	if config.Lock.TTLSeconds == 0 {
		config.Lock.TTLSeconds = 900
	}

	// Lookups are case-insensitive on codes and emails.
	config.CurrencyRates = upperKeys(config.CurrencyRates)
	config.CountryCodes = upperKeys(config.CountryCodes)
	for i, sender := range config.BlockedSenders {
		config.BlockedSenders[i] = strings.ToLower(strings.TrimSpace(sender))
	}
}

// validateMainConfig rejects settings that would make an import meaningless.
func validateMainConfig(config *MainConfig) error {
	if config.RequestTimeoutSeconds < 0 {
		return fmt.Errorf("request_timeout_seconds must be positive")
	}
	if config.Store.PageSize < 0 {
		return fmt.Errorf("store.page_size must be positive")
	}
	for code, rate := range config.CurrencyRates {
		if rate <= 0 {
			return fmt.Errorf("currency rate for %s must be positive", code)
		}
	}
	if _, err := time.LoadLocation(config.Timezone); err != nil {
		return fmt.Errorf("unknown timezone %q: %w", config.Timezone, err)
	}
	return nil
}

// RequestTimeout returns the per-call timeout for remote store requests.
func (c *MainConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// Location returns the configured default timezone.
func (c *MainConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Rates returns the currency table as decimals for exact money arithmetic.
func (c *MainConfig) Rates() map[string]decimal.Decimal {
	rates := make(map[string]decimal.Decimal, len(c.CurrencyRates))
	for code, rate := range c.CurrencyRates {
		rates[code] = decimal.NewFromFloat(rate)
	}
	return rates
}

func upperKeys[V any](in map[string]V) map[string]V {
	out := make(map[string]V, len(in))
	for k, v := range in {
		out[strings.ToUpper(strings.TrimSpace(k))] = v
	}
	return out
}

// =============================================================================
// CREDENTIALS
// =============================================================================

// ErrMissingCredentials is returned when the credential file does not name a
// store URL or access key.
var ErrMissingCredentials = errors.New("missing CRM store credentials")

// Credential keys, in lookup order.
var (
	urlKeys        = []string{"CRM_STORE_URL", "SUPABASE_URL", "VITE_SUPABASE_URL"}
	privilegedKeys = []string{"CRM_SERVICE_KEY", "SUPABASE_SERVICE_ROLE_KEY"}
	publicKeys     = []string{"CRM_ANON_KEY", "SUPABASE_ANON_KEY", "VITE_SUPABASE_ANON_KEY"}
)

// Credentials identify the remote CRM store.
type Credentials struct {
	// BaseURL is either an https:// data API root or a postgres:// DSN.
	BaseURL string

	// APIKey is the access credential. Empty for postgres:// DSNs, which carry
	// their own password.
	APIKey string

	// Privileged is true when APIKey came from a service credential rather
	// than a public one.
	Privileged bool
}

// IsPostgres reports whether the credentials point at a PostgreSQL DSN.
func (c Credentials) IsPostgres() bool {
	lower := strings.ToLower(c.BaseURL)
	return strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://")
}

// LoadCredentials reads the store URL and access key from a key=value file.
//
// PARAMETERS:
//   - envFile: The path to the credential file. Values from the process
//     environment are used for keys the file does not set.
//
// RETURNS:
//   - The resolved Credentials, preferring a service key over a public key.
//   - ErrMissingCredentials (wrapped) when the URL or key cannot be found, or
//     an error when the URL is malformed.
func LoadCredentials(envFile string) (Credentials, error) {
	values := map[string]string{}
	if envFile != "" {
		fileValues, err := godotenv.Read(envFile)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return Credentials{}, fmt.Errorf("failed to read credential file %s: %w", envFile, err)
		}
		for k, v := range fileValues {
			values[k] = v
		}
	}

	lookup := func(keys []string) string {
		for _, key := range keys {
			if v := strings.TrimSpace(values[key]); v != "" {
				return v
			}
			if v := strings.TrimSpace(os.Getenv(key)); v != "" {
				return v
			}
		}
		return ""
	}

	creds := Credentials{BaseURL: strings.TrimRight(lookup(urlKeys), "/")}
	if creds.BaseURL == "" {
		return Credentials{}, fmt.Errorf("%w: none of %s is set", ErrMissingCredentials, strings.Join(urlKeys, ", "))
	}

	lowerURL := strings.ToLower(creds.BaseURL)
	if !creds.IsPostgres() && !strings.HasPrefix(lowerURL, "https://") && !strings.HasPrefix(lowerURL, "http://") {
		return Credentials{}, fmt.Errorf("%w: store URL %q is neither http(s):// nor postgres://", ErrMissingCredentials, creds.BaseURL)
	}

	if key := lookup(privilegedKeys); key != "" {
		creds.APIKey = key
		creds.Privileged = true
	} else {
		creds.APIKey = lookup(publicKeys)
	}

	if creds.APIKey == "" && !creds.IsPostgres() {
		return Credentials{}, fmt.Errorf("%w: no access key found", ErrMissingCredentials)
	}

	return creds, nil
}
