// =============================================================================
// pouch-ops - Normalization
// =============================================================================
//
// This module turns a filtered PayPal row into a Transaction ready for the
// CRM. Each conversion is a small pure function so the rules can be tested
// one at a time:
//
//   - ConvertUSD      : gross string + currency -> USD decimal, rounded to cents
//   - ResolveCountry  : Country column, then address suffix, then code map
//   - ParseTimestamp  : DD/MM/YYYY + HH:MM:SS in the row's or default zone
//   - BuildInquiry    : Transaction -> CRM inquiry row
//
// None of these fail on odd data except ConvertUSD, which cannot invent an
// amount for a gross value that is not a number.
//
// =============================================================================

package importer

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ginjaninja78/pouch-ops/internal/crmstore"
	"github.com/ginjaninja78/pouch-ops/internal/types"
)

// =============================================================================
// NORMALIZER
// =============================================================================

// Normalizer holds the lookup tables used to normalize rows.
type Normalizer struct {
	rates        map[string]decimal.Decimal
	countryCodes map[string]string
	location     *time.Location
}

// NewNormalizer builds a Normalizer. Currency and country code keys are
// expected upper-cased, as config.LoadMainConfig leaves them.
func NewNormalizer(rates map[string]decimal.Decimal, countryCodes map[string]string, loc *time.Location) *Normalizer {
	if loc == nil {
		loc = time.UTC
	}
	return &Normalizer{rates: rates, countryCodes: countryCodes, location: loc}
}

// Normalize converts a row that passed the filter into a Transaction.
//
// RETURNS:
//   - The Transaction.
//   - A *types.RowError when the gross amount is not a number.
func (n *Normalizer) Normalize(row types.PayPalRow, sourceFile string) (types.Transaction, error) {
	gross, usd, known, err := ConvertUSD(row.Gross, row.Currency, n.rates)
	if err != nil {
		return types.Transaction{}, &types.RowError{Line: row.Line, Column: types.ColGross, Reason: err.Error()}
	}

	country, hasCountry := ResolveCountry(row.Country, row.Shipping, row.CountryCode, n.countryCodes)

	subject := row.ItemTitle
	if subject == "" {
		subject = row.Type
	}

	return types.Transaction{
		PayPalTransactionID: row.TransactionID,
		Name:                strings.TrimSpace(row.Name),
		Email:               strings.ToLower(strings.TrimSpace(row.FromEmail)),
		Phone:               row.Phone,
		Type:                row.Type,
		Subject:             subject,
		ItemTitle:           row.ItemTitle,
		GrossAmount:         gross,
		Currency:            row.Currency,
		AmountUSD:           usd,
		KnownCurrency:       known,
		CustomerType:        types.Classify(usd),
		Country:             country,
		HasCountry:          hasCountry,
		ShippingAddress:     row.Shipping,
		Timestamp:           ParseTimestamp(row.Date, row.Time, row.TimeZone, n.location),
		SourceFile:          sourceFile,
	}, nil
}

// =============================================================================
// CURRENCY
// =============================================================================

// ConvertUSD parses a PayPal gross amount and converts it to USD.
//
// PARAMETERS:
//   - gross: The amount as exported, e.g. "1,234.56". Thousands separators
//     are removed; the decimal point is always ".".
//   - currency: ISO code, looked up upper-cased in rates.
//   - rates: Currency -> USD rate table.
//
// RETURNS:
//   - The parsed gross amount.
//   - The USD amount, rounded half away from zero to 2 places.
//   - Whether the currency was in the table. Unknown currencies are treated
//     as USD (rate 1).
//   - An error when gross is not a number.
func ConvertUSD(gross, currency string, rates map[string]decimal.Decimal) (decimal.Decimal, decimal.Decimal, bool, error) {
	cleaned := strings.ReplaceAll(strings.TrimSpace(gross), ",", "")
	amount, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, decimal.Zero, false, fmt.Errorf("invalid amount %q", gross)
	}

	rate, known := rates[strings.ToUpper(strings.TrimSpace(currency))]
	if !known {
		rate = decimal.NewFromInt(1)
	}

	return amount, amount.Mul(rate).Round(2), known, nil
}

// =============================================================================
// COUNTRY
// =============================================================================

// addressCountry matches the last comma-separated segment of an address when
// it contains no digits, e.g. "1 King St, Kingston, Jamaica" -> "Jamaica".
var addressCountry = regexp.MustCompile(`,\s*([^,\d]+?)\s*$`)

// ResolveCountry picks the customer's country from, in order: the Country
// column, the trailing segment of the shipping address, and the country code
// map. The bool is false when none of them produced a name.
func ResolveCountry(country, shipping, code string, codes map[string]string) (string, bool) {
	if c := strings.TrimSpace(country); c != "" {
		return c, true
	}

	if m := addressCountry.FindStringSubmatch(shipping); m != nil {
		return m[1], true
	}

	if name, ok := codes[strings.ToUpper(strings.TrimSpace(code))]; ok && name != "" {
		return name, true
	}

	return "", false
}

// =============================================================================
// TIMESTAMP
// =============================================================================

// zoneAliases maps the abbreviations PayPal writes in the TimeZone column to
// IANA locations. Abbreviations are ambiguous in general; these are the ones
// PayPal uses.
var zoneAliases = map[string]string{
	"PST":  "America/Los_Angeles",
	"PDT":  "America/Los_Angeles",
	"MST":  "America/Denver",
	"MDT":  "America/Denver",
	"CST":  "America/Chicago",
	"CDT":  "America/Chicago",
	"EST":  "America/New_York",
	"EDT":  "America/New_York",
	"GMT":  "UTC",
	"UTC":  "UTC",
	"BST":  "Europe/London",
	"CET":  "Europe/Paris",
	"CEST": "Europe/Paris",
}

// ParseTimestamp combines PayPal's Date (DD/MM/YYYY) and Time (HH:MM:SS)
// columns into an instant.
//
// The row's TimeZone is used when it resolves, otherwise fallback. A missing
// Time means midnight. Returns nil when the date cannot be parsed; callers
// substitute the run time.
func ParseTimestamp(date, clock, zone string, fallback *time.Location) *time.Time {
	date = strings.TrimSpace(date)
	clock = strings.TrimSpace(clock)
	if date == "" {
		return nil
	}
	if clock == "" {
		clock = "00:00:00"
	}

	loc := resolveZone(zone, fallback)

	// Day first. "2" and "1" accept one or two digits.
	t, err := time.ParseInLocation("2/1/2006 15:04:05", date+" "+clock, loc)
	if err != nil {
		return nil
	}
	return &t
}

func resolveZone(zone string, fallback *time.Location) *time.Location {
	if fallback == nil {
		fallback = time.UTC
	}
	zone = strings.TrimSpace(zone)
	if zone == "" {
		return fallback
	}
	if name, ok := zoneAliases[strings.ToUpper(zone)]; ok {
		zone = name
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return fallback
	}
	return loc
}

// =============================================================================
// CRM MAPPING
// =============================================================================

// BuildInquiry maps a Transaction onto the CRM inquiry columns.
//
// PARAMETERS:
//   - tx: The normalized transaction.
//   - source: The source tag, e.g. "paypal".
//   - runTime: Used for updated_at, and for created_at when the transaction
//     has no timestamp.
func BuildInquiry(tx types.Transaction, source string, runTime time.Time) crmstore.Inquiry {
	created := runTime
	if tx.Timestamp != nil {
		created = *tx.Timestamp
	}

	message := tx.ItemTitle
	if message == "" {
		message = "PayPal transaction " + tx.PayPalTransactionID
	}

	priority := "medium"
	if tx.CustomerType == types.CustomerFull {
		priority = "high"
	}

	return crmstore.Inquiry{
		Name:          tx.Name,
		Email:         tx.Email,
		Phone:         tx.Phone,
		Message:       message,
		PackagingType: tx.ItemTitle,
		Subject:       tx.Subject,
		Source:        source,
		Status:        "new",
		Priority:      priority,
		Notes:         buildNotes(tx),
		CreatedAt:     created.UTC(),
		UpdatedAt:     runTime.UTC(),
	}
}

// buildNotes renders the free-text notes column for the sales team.
func buildNotes(tx types.Transaction) string {
	parts := []string{
		"Classification: " + string(tx.CustomerType),
		fmt.Sprintf("Amount: %s %s", tx.GrossAmount.StringFixed(2), tx.Currency),
		"USD: " + tx.AmountUSD.StringFixed(2),
	}
	if !tx.KnownCurrency {
		parts = append(parts, "Currency not in rate table, converted 1:1")
	}
	parts = append(parts, "PayPal ID: "+tx.PayPalTransactionID)
	if tx.ShippingAddress != "" {
		parts = append(parts, "Address: "+tx.ShippingAddress)
	}
	if tx.HasCountry {
		parts = append(parts, "Country: "+tx.Country)
	}
	return strings.Join(parts, " | ")
}
